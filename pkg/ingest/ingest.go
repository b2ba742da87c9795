// Package ingest reads trial data tables from CSV and Excel files.
//
// Three layouts are recognized, selected by [Format]:
//
//	pairwise        study, treat1, treat2, TE, seTE
//	arm_binary      study, treatment, events, n
//	arm_continuous  study, treatment, mean, sd, n
//
// Header names are matched case-insensitively and extra columns are
// ignored. A missing column or a cell that does not parse is reported as a
// VALIDATION_ERROR naming the row and column.
package ingest

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
)

// Format is a table layout.
type Format string

const (
	FormatPairwise      Format = "pairwise"
	FormatArmBinary     Format = "arm_binary"
	FormatArmContinuous Format = "arm_continuous"
)

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPairwise, FormatArmBinary, FormatArmContinuous:
		return f, nil
	}
	return "", errors.Validation("invalid data format: %q (must be one of: pairwise, arm_binary, arm_continuous)", s)
}

// Columns lists the required columns of the format.
func (f Format) Columns() []string {
	switch f {
	case FormatPairwise:
		return []string{"study", "treat1", "treat2", "TE", "seTE"}
	case FormatArmBinary:
		return []string{"study", "treatment", "events", "n"}
	case FormatArmContinuous:
		return []string{"study", "treatment", "mean", "sd", "n"}
	}
	return nil
}

// Outcome returns the outcome type of an arm-level format, or "" for
// pairwise data.
func (f Format) Outcome() contrast.Outcome {
	switch f {
	case FormatArmBinary:
		return contrast.OutcomeBinary
	case FormatArmContinuous:
		return contrast.OutcomeContinuous
	}
	return ""
}

// Table is a parsed data table. Arm-level formats fill Records, the pairwise
// format fills Contrasts.
type Table struct {
	Format    Format                      `json:"format"`
	Columns   []string                    `json:"columns"`
	Records   []contrast.ArmRecord        `json:"records,omitempty"`
	Contrasts []contrast.PairwiseContrast `json:"contrasts,omitempty"`
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Records) + len(t.Contrasts)
}

// ReadCSV parses CSV data with a header row.
func ReadCSV(r io.Reader, format Format) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read CSV")
	}
	return FromRows(rows, format)
}

// ReadXLSX parses a worksheet of an Excel workbook. An empty sheet name
// selects the first sheet.
func ReadXLSX(r io.Reader, sheet string, format Format) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open workbook")
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read sheet %q", sheet)
	}
	return FromRows(rows, format)
}

// ReadFile parses a .csv, .xlsx or .xlsm file.
func ReadFile(path string, format Format) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		return ReadCSV(f, format)
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, "", format)
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported file type: %q (must be .csv or .xlsx)", ext)
	}
}

// FromRows parses a header row followed by data rows. Blank rows are
// skipped.
func FromRows(rows [][]string, format Format) (*Table, error) {
	required := format.Columns()
	if required == nil {
		return nil, errors.Validation("invalid data format: %q", format)
	}
	if len(rows) == 0 {
		return nil, errors.Validation("no data found: the table is empty")
	}

	header := make([]string, len(rows[0]))
	index := make(map[string]int, len(header))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		key := strings.ToLower(header[i])
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	var missing []string
	for _, c := range required {
		if _, ok := index[strings.ToLower(c)]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Validation("missing required columns for %s format: %s (found: %s)",
			format, strings.Join(missing, ", "), strings.Join(header, ", "))
	}

	t := &Table{Format: format, Columns: header}
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		r := reader{row: row, line: i + 2, index: index}
		switch format {
		case FormatPairwise:
			t.Contrasts = append(t.Contrasts, contrast.PairwiseContrast{
				Study:  r.text("study"),
				Treat1: r.text("treat1"),
				Treat2: r.text("treat2"),
				TE:     r.number("TE"),
				SeTE:   r.number("seTE"),
			})
		case FormatArmBinary:
			t.Records = append(t.Records, contrast.ArmRecord{
				Study:     r.text("study"),
				Treatment: r.text("treatment"),
				Events:    r.integer("events"),
				N:         r.integer("n"),
			})
		case FormatArmContinuous:
			t.Records = append(t.Records, contrast.ArmRecord{
				Study:     r.text("study"),
				Treatment: r.text("treatment"),
				Mean:      r.number("mean"),
				SD:        r.number("sd"),
				N:         r.integer("n"),
			})
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	if t.Len() == 0 {
		return nil, errors.Validation("no data found: the table has a header but no rows")
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// reader extracts typed cells from one row, keeping the first error.
type reader struct {
	row   []string
	line  int
	index map[string]int
	err   error
}

func (r *reader) cell(col string) string {
	i := r.index[strings.ToLower(col)]
	if i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

func (r *reader) text(col string) string {
	v := r.cell(col)
	if v == "" {
		r.fail(col, v, "value is empty")
	}
	return v
}

func (r *reader) number(col string) float64 {
	v := r.cell(col)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		r.fail(col, v, "not a number")
		return 0
	}
	return f
}

func (r *reader) integer(col string) int {
	v := r.cell(col)
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	// Spreadsheets may store counts as decimals.
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		r.fail(col, v, "not an integer")
		return 0
	}
	return int(f)
}

func (r *reader) fail(col, value, reason string) {
	if r.err == nil {
		r.err = errors.Validation("row %d, column %s: %s (got %q)", r.line, col, reason, value)
	}
}
