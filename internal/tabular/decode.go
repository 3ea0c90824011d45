package tabular

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
	// ErrUnsupportedFormat is returned when the filename extension is not a
	// supported tabular format.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrDecode is returned when the file is a supported format but no
	// decode attempt succeeded.
	ErrDecode = errors.New("could not decode file")
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// candidate is one (encoding, delimiter, policy) combination to try when
// reading delimited text. A zero delimiter means sniff it from the header
// line. Lenient candidates tolerate bytes with no mapping in the charset.
type candidate struct {
	charset   *charmap.Charmap // nil means UTF-8
	delimiter rune
	lenient   bool
}

// Upload sources disagree on encoding and delimiter, so decoding walks an
// ordered candidate list and the first fully successful one wins. Ordering
// matters: UTF-8 with a sniffed delimiter covers most files, the legacy
// single-byte charsets catch the rest.
var csvCandidates = []candidate{
	{charset: nil, delimiter: 0},
	{charset: nil, delimiter: ';'},
	{charset: charmap.ISO8859_1, delimiter: ','},
	{charset: charmap.ISO8859_1, delimiter: ';'},
	{charset: charmap.Windows1252, delimiter: ';', lenient: true},
	{charset: charmap.Windows1252, delimiter: ',', lenient: true},
}

// Decode reads an uploaded file of a priori unknown encoding into a Table.
// The filename extension selects the reader; cells are always read as text.
func Decode(data []byte, filename string) (*Table, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "csv", "tsv", "txt":
		return decodeDelimited(data, filename)
	case "xlsx":
		return decodeWorkbook(data, filename)
	case "xls":
		// The binary legacy workbook format has no Go reader here; callers
		// get a pointed message instead of the generic unknown-format one.
		return nil, fmt.Errorf("%w: legacy .xls workbooks are not supported, save the file as .xlsx", ErrUnsupportedFormat)
	case "parquet":
		return decodeParquet(data, filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func decodeDelimited(data []byte, filename string) (*Table, error) {
	data = bytes.TrimPrefix(data, byteOrderMark)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDecode, filename)
	}

	for _, c := range csvCandidates {
		t, delim, err := tryCandidate(data, c)
		if err != nil {
			continue
		}
		// A comma parse whose first header still carries a semicolon is a
		// mis-detected delimiter, not a one-column file.
		if delim == ',' && len(t.Columns) > 0 && strings.Contains(t.Columns[0], ";") {
			continue
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s: no encoding/delimiter combination matched", ErrDecode, filename)
}

func tryCandidate(data []byte, c candidate) (*Table, rune, error) {
	var text string
	if c.charset == nil {
		if !utf8.Valid(data) {
			return nil, 0, errors.New("not valid utf-8")
		}
		text = string(data)
	} else {
		decoded, err := c.charset.NewDecoder().Bytes(data)
		if err != nil {
			return nil, 0, err
		}
		if !c.lenient && bytes.ContainsRune(decoded, utf8.RuneError) {
			return nil, 0, errors.New("unmappable bytes in input")
		}
		text = string(decoded)
	}

	delim := c.delimiter
	if delim == 0 {
		delim = sniffDelimiter(text)
	}

	t, err := parseDelimited(text, delim)
	if err != nil {
		return nil, 0, err
	}
	return t, delim, nil
}

// sniffDelimiter picks the most frequent of the usual delimiters on the
// header line, defaulting to comma.
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSuffix(line, "\r")

	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// parseDelimited reads header plus rows, skipping malformed lines instead of
// aborting the whole file.
func parseDelimited(text string, delim rune) (*Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	t := &Table{Columns: make([]string, len(header))}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
		}
		t.Columns[i] = name
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Ragged or otherwise malformed line: skip it, keep the rest.
			continue
		}
		if len(record) != len(t.Columns) {
			continue
		}
		row := make([]Value, len(record))
		for j, field := range record {
			row[j] = String(field)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// decodeWorkbook reads the first sheet of an xlsx workbook. Empty in-range
// cells come back as explicit nulls, matching how spreadsheets represent
// absent data.
func decodeWorkbook(data []byte, filename string) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filename, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", ErrDecode, filename)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filename, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDecode, filename)
	}

	t := &Table{Columns: make([]string, len(rows[0]))}
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
		}
		t.Columns[i] = name
	}

	for _, raw := range rows[1:] {
		row := make([]Value, len(t.Columns))
		for j := range row {
			if j >= len(raw) || raw[j] == "" {
				row[j] = NullValue()
				continue
			}
			row[j] = String(raw[j])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
