// Package sheet decodes uploaded spreadsheets into a header row and data rows.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrNoHeader          = errors.New("spreadsheet has no header row")
)

// Row is one non-blank data row with its 1-based spreadsheet line.
type Row struct {
	Line  int
	Cells []string
}

// Sheet is the first worksheet of an upload.
type Sheet struct {
	Headers []string
	Rows    []Row
}

var zipMagic = []byte("PK\x03\x04")

// Parse decodes data according to the file extension, sniffing the content when the
// extension is missing. Only .xlsx and .csv are accepted.
func Parse(filename string, data []byte) (*Sheet, error) {
	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); {
	case ext == ".xlsx" || ext == ".xlsm":
		records, err = readXLSX(data)
	case ext == ".csv" || ext == ".txt":
		records, err = readCSV(data)
	case ext == "" && bytes.HasPrefix(data, zipMagic):
		records, err = readXLSX(data)
	case ext == "":
		records, err = readCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return build(records)
}

func build(records [][]string) (*Sheet, error) {
	s := &Sheet{}
	for i, rec := range records {
		if blank(rec) {
			continue
		}
		if s.Headers == nil {
			s.Headers = rec
			continue
		}
		s.Rows = append(s.Rows, Row{Line: i + 1, Cells: rec})
	}
	if s.Headers == nil {
		return nil, ErrNoHeader
	}
	return s, nil
}

// blank reports whether a record holds nothing but whitespace and separators.
func blank(rec []string) bool {
	for _, c := range rec {
		if strings.Trim(c, separators) != "" {
			return false
		}
	}
	return true
}

const separators = " \t\r;,"

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

var utf8BOM = []byte("\xef\xbb\xbf")

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	var r io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		// Spreadsheet programs on Windows export CSV as Windows-1252.
		r = charmap.Windows1252.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

// detectDelimiter picks ';' or ',' from whichever occurs more often in the first line
// with content.
func detectDelimiter(data []byte) rune {
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		if len(bytes.Trim(line, separators)) == 0 {
			continue
		}
		if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
			return ';'
		}
		return ','
	}
	return ','
}
