package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
)

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		input  string
		want   *Table
	}{
		{
			name:   "pairwise",
			format: FormatPairwise,
			input:  "study,treat1,treat2,TE,seTE\nS1,A,B,0.5,0.2\nS2,A,C,0.8,0.25\n",
			want: &Table{
				Format:  FormatPairwise,
				Columns: []string{"study", "treat1", "treat2", "TE", "seTE"},
				Contrasts: []contrast.PairwiseContrast{
					{Study: "S1", Treat1: "A", Treat2: "B", TE: 0.5, SeTE: 0.2},
					{Study: "S2", Treat1: "A", Treat2: "C", TE: 0.8, SeTE: 0.25},
				},
			},
		},
		{
			name:   "arm binary with extra column and blank line",
			format: FormatArmBinary,
			input:  "Study, Treatment, Events, N, year\nT1,Placebo,20,100,2001\n\nT1,SSRI,35,100,2001\n",
			want: &Table{
				Format:  FormatArmBinary,
				Columns: []string{"Study", "Treatment", "Events", "N", "year"},
				Records: []contrast.ArmRecord{
					{Study: "T1", Treatment: "Placebo", Events: 20, N: 100},
					{Study: "T1", Treatment: "SSRI", Events: 35, N: 100},
				},
			},
		},
		{
			name:   "arm continuous",
			format: FormatArmContinuous,
			input:  "study,treatment,mean,sd,n\nC1,Diet,-2.5,1.2,40\nC1,Control,-0.4,1.1,38\n",
			want: &Table{
				Format:  FormatArmContinuous,
				Columns: []string{"study", "treatment", "mean", "sd", "n"},
				Records: []contrast.ArmRecord{
					{Study: "C1", Treatment: "Diet", Mean: -2.5, SD: 1.2, N: 40},
					{Study: "C1", Treatment: "Control", Mean: -0.4, SD: 1.1, N: 38},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadCSV(strings.NewReader(tt.input), tt.format)
			if err != nil {
				t.Fatalf("ReadCSV() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadCSV() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		input   string
		wantMsg string
	}{
		{"missing columns", FormatPairwise, "study,treat1,TE\nS1,A,0.5\n", "missing required columns for pairwise format: treat2, seTE"},
		{"bad number", FormatPairwise, "study,treat1,treat2,TE,seTE\nS1,A,B,abc,0.2\n", "row 2, column TE: not a number"},
		{"fractional count", FormatArmBinary, "study,treatment,events,n\nT1,A,2.5,10\n", "row 2, column events: not an integer"},
		{"empty label", FormatArmBinary, "study,treatment,events,n\nT1,,2,10\n", "row 2, column treatment: value is empty"},
		{"short row", FormatArmContinuous, "study,treatment,mean,sd,n\nC1,Diet,1.0\n", "row 2, column sd"},
		{"header only", FormatArmBinary, "study,treatment,events,n\n", "no rows"},
		{"empty", FormatArmBinary, "", "table is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), tt.format)
			if !errors.Is(err, errors.ErrCodeValidation) {
				t.Fatalf("ReadCSV() error = %v, want VALIDATION_ERROR", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("ReadCSV() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestIntegralDecimals(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("study,treatment,events,n\nT1,A,20.0,100\nT1,B,35,1e2\n"), FormatArmBinary)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if got.Records[0].Events != 20 || got.Records[1].N != 100 {
		t.Errorf("Records = %+v", got.Records)
	}
}

func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	data := workbook(t, "arms", [][]any{
		{"study", "treatment", "events", "n"},
		{"T1", "Placebo", 20, 100},
		{"T1", "SSRI", 35, 100},
		{"T2", "Placebo", 18, 80},
		{"T2", "CBT", 30, 80},
	})
	got, err := ReadXLSX(bytes.NewReader(data), "", FormatArmBinary)
	if err != nil {
		t.Fatalf("ReadXLSX() error = %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", got.Len())
	}
	want := contrast.ArmRecord{Study: "T2", Treatment: "CBT", Events: 30, N: 80}
	if diff := cmp.Diff(want, got.Records[3]); diff != "" {
		t.Errorf("last record mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadXLSX(bytes.NewReader(data), "missing", FormatArmBinary); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("ReadXLSX(missing sheet) error = %v, want INVALID_INPUT", err)
	}
	if _, err := ReadXLSX(strings.NewReader("not a workbook"), "", FormatArmBinary); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("ReadXLSX(garbage) error = %v, want INVALID_INPUT", err)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(csvPath, []byte("study,treat1,treat2,TE,seTE\nS1,A,B,0.5,0.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	xlsxPath := filepath.Join(dir, "data.xlsx")
	if err := os.WriteFile(xlsxPath, workbook(t, "Sheet1", [][]any{
		{"study", "treat1", "treat2", "TE", "seTE"},
		{"S1", "A", "B", 0.5, 0.2},
	}), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{csvPath, xlsxPath} {
		got, err := ReadFile(path, FormatPairwise)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", path, err)
		}
		if len(got.Contrasts) != 1 || got.Contrasts[0].SeTE != 0.2 {
			t.Errorf("ReadFile(%s) = %+v", path, got.Contrasts)
		}
	}

	if _, err := ReadFile(filepath.Join(dir, "data.json"), FormatPairwise); err == nil {
		t.Error("ReadFile(missing .json) error = nil")
	}
	jsonPath := filepath.Join(dir, "data.json")
	if err := os.WriteFile(jsonPath, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(jsonPath, FormatPairwise); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("ReadFile(.json) error = %v, want UNSUPPORTED", err)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"pairwise", "ARM_BINARY", " arm_continuous "} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", s, err)
		}
	}
	if _, err := ParseFormat("long"); !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("ParseFormat(long) error = %v, want VALIDATION_ERROR", err)
	}
	if FormatArmContinuous.Outcome() != contrast.OutcomeContinuous || FormatPairwise.Outcome() != "" {
		t.Error("Outcome() mismatch")
	}
}
