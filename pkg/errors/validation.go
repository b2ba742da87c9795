package errors

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLabelLength is the longest study or treatment label accepted.
const MaxLabelLength = 256

// ValidateLabel validates a study or treatment label.
// kind names the field in the returned message ("treatment", "study").
//
// The validation rules are intentionally conservative:
//   - No empty or whitespace-only labels
//   - No leading or trailing whitespace
//   - Valid UTF-8 only
//   - No control characters (including null bytes and newlines)
//   - Maximum length of MaxLabelLength bytes
//
// Labels end up as Graphviz node IDs and solver inputs, so anything that
// could break out of a quoted field is rejected up front.
func ValidateLabel(kind, label string) error {
	if strings.TrimSpace(label) == "" {
		return New(ErrCodeValidation, "%s label cannot be empty", kind)
	}

	if len(label) > MaxLabelLength {
		return New(ErrCodeValidation, "%s label too long (max %d characters)", kind, MaxLabelLength)
	}

	if strings.TrimSpace(label) != label {
		return New(ErrCodeValidation, "%s label %q has leading or trailing whitespace", kind, label)
	}

	if !utf8.ValidString(label) {
		return New(ErrCodeValidation, "%s label %q is not valid UTF-8", kind, label)
	}

	for _, r := range label {
		if unicode.IsControl(r) {
			return New(ErrCodeValidation, "%s label %q contains control characters", kind, label)
		}
	}

	return nil
}
