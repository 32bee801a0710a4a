package table

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"rfpca/internal/common"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// DetectFormat guesses the file format from the path extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return common.FormatCSV, nil
	case ".json":
		return common.FormatJSON, nil
	case ".xlsx":
		return common.FormatXLSX, nil
	case ".parquet", ".pq":
		return common.FormatParquet, nil
	case ".db":
		return common.FormatBoltDB, nil
	default:
		return "", fmt.Errorf("cannot determine file format for: %s", path)
	}
}

// LoadFile reads a table from a local file in one of the file formats.
// BoltDB stores are opened through the storage package instead.
func LoadFile(path, format, idColumn string) (*Table, error) {
	if format == "" || format == common.FormatAuto {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = f
	}

	var (
		t   *Table
		err error
	)
	switch format {
	case common.FormatCSV:
		t, err = LoadCSV(path, idColumn)
	case common.FormatJSON:
		t, err = LoadJSON(path, idColumn)
	case common.FormatXLSX:
		t, err = LoadXLSX(path, idColumn)
	case common.FormatParquet:
		t, err = LoadParquet(path, idColumn)
	default:
		return nil, fmt.Errorf("unsupported file format %q", format)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Str("format", format).
		Int("rows", t.NumRows()).
		Int("columns", t.NumCols()).
		Int("missing", t.MissingCount()).
		Msg("Feature table loaded")

	return t, nil
}

// LoadCSV reads a CSV file with a header row. The idColumn holds the entity
// identifier; every other column is coerced to float64.
func LoadCSV(path, idColumn string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return ReadCSV(file, idColumn)
}

// ReadCSV reads CSV records from r.
func ReadCSV(r io.Reader, idColumn string) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty CSV input: %w", common.ErrDataFormat)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV records: %v: %w", err, common.ErrDataFormat)
	}

	return FromRecords(header, records, idColumn)
}

// WriteCSV writes the table with the identifier as the first column.
func WriteCSV(w io.Writer, t *Table, idColumn string) error {
	writer := csv.NewWriter(w)

	header := append([]string{idColumn}, t.Columns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i, row := range t.Rows {
		record[0] = t.IDs[i]
		for j, v := range row {
			if math.IsNaN(v) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// FromRecords builds a table from a header and text records, as produced by
// CSV and spreadsheet readers. Short records are padded with missing values.
func FromRecords(header []string, records [][]string, idColumn string) (*Table, error) {
	idIdx := -1
	for i, h := range header {
		if strings.TrimSpace(h) == idColumn {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("identifier column %q not found: %w", idColumn, common.ErrDataFormat)
	}

	columns := make([]string, 0, len(header)-1)
	for i, h := range header {
		if i != idIdx {
			columns = append(columns, strings.TrimSpace(h))
		}
	}

	ids := make([]string, 0, len(records))
	rows := make([][]float64, 0, len(records))
	for n, rec := range records {
		if idIdx >= len(rec) || strings.TrimSpace(rec[idIdx]) == "" {
			return nil, fmt.Errorf("record %d has no identifier: %w", n+1, common.ErrDataFormat)
		}
		row := make([]float64, 0, len(columns))
		for i := range header {
			if i == idIdx {
				continue
			}
			if i < len(rec) {
				row = append(row, ParseValue(rec[i]))
			} else {
				row = append(row, math.NaN())
			}
		}
		ids = append(ids, strings.TrimSpace(rec[idIdx]))
		rows = append(rows, row)
	}

	return New(ids, columns, rows)
}

// LoadJSON reads an array of flat objects (pandas "records" orientation).
// Columns are the union of keys other than idColumn, in sorted order.
func LoadJSON(path, idColumn string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %v: %w", err, common.ErrDataFormat)
	}

	colSet := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			if k != idColumn {
				colSet[k] = struct{}{}
			}
		}
	}
	columns := make([]string, 0, len(colSet))
	for k := range colSet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	ids := make([]string, len(records))
	rows := make([][]float64, len(records))
	for i, rec := range records {
		id, ok := rec[idColumn]
		if !ok || id == nil {
			return nil, fmt.Errorf("record %d has no identifier: %w", i+1, common.ErrDataFormat)
		}
		ids[i] = fmt.Sprint(id)

		row := make([]float64, len(columns))
		for j, c := range columns {
			row[j] = CoerceValue(rec[c])
		}
		rows[i] = row
	}

	return New(ids, columns, rows)
}

// LoadXLSX reads the first sheet of a workbook; the first row is the header.
func LoadXLSX(path, idColumn string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty: %w", sheet, common.ErrDataFormat)
	}

	return FromRecords(rows[0], rows[1:], idColumn)
}

// LoadParquet reads a flat Parquet file. Nested columns are flattened with a
// dotted path; the idColumn may be a string or integer column.
func LoadParquet(path, idColumn string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet footer: %v: %w", err, common.ErrDataFormat)
	}

	leaves := pf.Schema().Columns()
	idIdx := -1
	columns := make([]string, 0, len(leaves))
	colPos := make([]int, len(leaves))
	for i, p := range leaves {
		name := strings.Join(p, ".")
		if name == idColumn {
			idIdx = i
			colPos[i] = -1
			continue
		}
		colPos[i] = len(columns)
		columns = append(columns, name)
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("identifier column %q not found: %w", idColumn, common.ErrDataFormat)
	}

	var (
		ids  []string
		rows [][]float64
	)
	buf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		reader := rg.Rows()
		for {
			n, err := reader.ReadRows(buf)
			for _, r := range buf[:n] {
				row := make([]float64, len(columns))
				for j := range row {
					row[j] = math.NaN()
				}
				id := ""
				for _, v := range r {
					c := v.Column()
					if c == idIdx {
						id = parquetString(v)
						continue
					}
					if c >= 0 && c < len(colPos) && colPos[c] >= 0 {
						row[colPos[c]] = parquetFloat(v)
					}
				}
				ids = append(ids, id)
				rows = append(rows, row)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				reader.Close()
				return nil, fmt.Errorf("failed to read parquet rows: %w", err)
			}
		}
		reader.Close()
	}

	return New(ids, columns, rows)
}

func parquetString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	default:
		return strconv.FormatFloat(parquetFloat(v), 'g', -1, 64)
	}
}

func parquetFloat(v parquet.Value) float64 {
	if v.IsNull() {
		return math.NaN()
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return 1
		}
		return 0
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Float:
		return CoerceValue(float64(v.Float()))
	case parquet.Double:
		return CoerceValue(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return ParseValue(string(v.ByteArray()))
	default:
		return math.NaN()
	}
}
