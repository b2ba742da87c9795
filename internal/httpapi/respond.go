package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/matzehuels/netmeta/pkg/errors"
)

// errorBody is the JSON document of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`

	// Components lists the treatments of each component of a disconnected
	// network.
	Components [][]string `json:"components,omitempty"`
}

// status maps error codes to HTTP statuses.
func status(code errors.Code) int {
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeDisconnectedNetwork, errors.ErrCodeUnknownReference:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeEstimationTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeEstimationFailed, errors.ErrCodeInvalidResult:
		return http.StatusBadGateway
	case errors.ErrCodeUnsupported:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	st := status(code)
	detail := errorDetail{Code: code, Message: errors.UserMessage(err)}
	var d *errors.DisconnectedNetworkError
	if errors.As(err, &d) {
		detail.Components = d.Components
	}
	if st >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "code", code, "err", err)
	} else {
		s.log.Debug("request rejected", "path", r.URL.Path, "code", code, "err", detail.Message)
	}
	writeJSON(w, st, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.New(errors.ErrCodeInvalidInput, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request body")
	}
	return nil
}
