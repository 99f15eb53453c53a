package sheet

import (
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func xlsxFixture(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := xlsxFixture(t, [][]any{
		{"Escola", "Aluno", "Série", "Q1"},
		{"EMEF Centro", "Ana", "5º Ano", 1},
		{},
		{"EMEF Centro", "Bruno", "5º Ano", "X"},
	})

	s, err := Parse("notas.xlsx", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(s.Headers) != 4 || s.Headers[2] != "Série" {
		t.Errorf("unexpected headers %v", s.Headers)
	}
	if len(s.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(s.Rows))
	}
	if s.Rows[0].Line != 2 || s.Rows[1].Line != 4 {
		t.Errorf("expected lines 2 and 4, got %d and %d", s.Rows[0].Line, s.Rows[1].Line)
	}
	if s.Rows[0].Cells[3] != "1" {
		t.Errorf("expected numeric cell read as \"1\", got %q", s.Rows[0].Cells[3])
	}
}

func TestParseXLSXWithoutExtension(t *testing.T) {
	data := xlsxFixture(t, [][]any{{"Escola", "Aluno"}, {"E", "A"}})
	s, err := Parse("upload", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(s.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(s.Rows))
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"semicolon", []byte("Escola;Aluno;Nota LP\nEMEF;Ana;7,5\n")},
		{"comma", []byte("Escola,Aluno,Nota LP\nEMEF,Ana,\"7,5\"\n")},
		{"bom", []byte("\xef\xbb\xbfEscola;Aluno;Nota LP\r\nEMEF;Ana;7,5\r\n")},
		{"leading blank lines", []byte("\n \r\n;;\nEscola;Aluno;Nota LP\nEMEF;Ana;7,5\n")},
		{"separator-only line", []byte("Escola,Aluno,Nota LP\n,,\nEMEF,Ana,\"7,5\"\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse("notas.csv", tt.data)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(s.Headers) != 3 || s.Headers[0] != "Escola" {
				t.Errorf("expected 3 headers starting with Escola, got %q", s.Headers)
			}
			if len(s.Rows) != 1 || s.Rows[0].Cells[2] != "7,5" {
				t.Errorf("unexpected rows %v", s.Rows)
			}
		})
	}
}

func TestParseCSVLatin1(t *testing.T) {
	data, err := charmap.Windows1252.NewEncoder().Bytes([]byte("Escola;Presença\nSão José;P\n"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s, err := Parse("notas.CSV", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Headers[1] != "Presença" {
		t.Errorf("expected decoded header Presença, got %q", s.Headers[1])
	}
	if s.Rows[0].Cells[0] != "São José" {
		t.Errorf("expected São José, got %q", s.Rows[0].Cells[0])
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("notas.xls", []byte("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := Parse("notas.csv", []byte("\n ; \n")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("expected ErrNoHeader, got %v", err)
	}
}
