package tabular

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// WriteParquetTemp re-encodes a table as a snappy-compressed Parquet file in
// a request-scoped temp location. Every column is an optional UTF8 byte
// array: the table carries text only, and optional columns let nulls survive
// the round trip. The caller owns removal of the returned path.
func WriteParquetTemp(t *Table, originalFilename string) (string, error) {
	md := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c)
	}

	base := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))
	if base == "" {
		base = "data"
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.parquet", base, uuid.NewString()))

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return "", fmt.Errorf("creating parquet temp file: %w", err)
	}

	pw, err := writer.NewCSVWriter(md, fw, 4)
	if err != nil {
		fw.Close()
		os.Remove(path)
		return "", fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range t.Rows {
		rec := make([]*string, len(t.Columns))
		for j := range t.Columns {
			if j >= len(row) || row[j].Null {
				continue
			}
			s := row[j].Str
			rec[j] = &s
		}
		if err := pw.WriteString(rec); err != nil {
			fw.Close()
			os.Remove(path)
			return "", fmt.Errorf("writing parquet row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		os.Remove(path)
		return "", fmt.Errorf("finalizing parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing parquet temp file: %w", err)
	}
	return path, nil
}

// decodeParquet reads a flat Parquet file column by column, stringifying
// every leaf value; definition levels mark nulls.
func decodeParquet(data []byte, filename string) (*Table, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDecode, filename)
	}

	bf := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(bf, nil, 4)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filename, err)
	}
	defer pr.ReadStop()

	var columns []string
	for _, el := range pr.Footer.Schema[1:] {
		if el.NumChildren == nil || *el.NumChildren == 0 {
			columns = append(columns, el.Name)
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s has no columns", ErrDecode, filename)
	}

	numRows := int(pr.GetNumRows())
	t := &Table{Columns: columns, Rows: make([][]Value, numRows)}
	for i := range t.Rows {
		t.Rows[i] = make([]Value, len(columns))
	}

	for i := range columns {
		values, _, dls, err := pr.ReadColumnByIndex(int64(i), int64(numRows))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: column %q: %v", ErrDecode, filename, columns[i], err)
		}
		for r := 0; r < numRows && r < len(values); r++ {
			if values[r] == nil || (r < len(dls) && dls[r] == 0) {
				t.Rows[r][i] = NullValue()
				continue
			}
			t.Rows[r][i] = String(stringifyParquet(values[r]))
		}
	}
	return t, nil
}

func stringifyParquet(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
