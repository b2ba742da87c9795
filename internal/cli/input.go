package cli

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/ingest"
	"github.com/matzehuels/netmeta/pkg/pipeline"
)

// inputFlags selects how a data file is read.
type inputFlags struct {
	format string
	sheet  string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", string(ingest.FormatPairwise), "table layout: pairwise, arm_binary, arm_continuous")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "worksheet of an Excel workbook (default: first sheet)")
}

// table reads a CSV or Excel file. A path of "-" reads CSV from stdin.
func (f *inputFlags) table(stdin io.Reader, path string) (*ingest.Table, error) {
	format, err := ingest.ParseFormat(f.format)
	if err != nil {
		return nil, err
	}
	if path == "-" {
		return ingest.ReadCSV(stdin, format)
	}
	if f.sheet != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
		}
		defer file.Close()
		return ingest.ReadXLSX(file, f.sheet, format)
	}
	return ingest.ReadFile(path, format)
}

// request reads the input of an analysis. A .json file holds a complete
// request; any other file is a data table.
func (f *inputFlags) request(stdin io.Reader, path string) (pipeline.Request, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return readRequest(path)
	}
	tbl, err := f.table(stdin, path)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		Records:   tbl.Records,
		Outcome:   tbl.Format.Outcome(),
		Contrasts: tbl.Contrasts,
	}, nil
}

func readRequest(path string) (pipeline.Request, error) {
	var req pipeline.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	return req, nil
}

// contrasts reads the input at path and returns its pairwise contrasts,
// converting arm-level records with opts.
func (f *inputFlags) contrasts(stdin io.Reader, path string, opts pipeline.Options) ([]contrast.PairwiseContrast, pipeline.Options, error) {
	req, err := f.request(stdin, path)
	if err != nil {
		return nil, opts, err
	}
	if err := req.Validate(); err != nil {
		return nil, opts, err
	}
	outcome := req.Outcome
	if len(req.Records) == 0 {
		outcome = ""
	}
	if err := opts.ValidateAndSetDefaults(outcome); err != nil {
		return nil, opts, err
	}
	cs, err := pipeline.BuildContrasts(req.Records, outcome, req.Contrasts, opts)
	return cs, opts, err
}
