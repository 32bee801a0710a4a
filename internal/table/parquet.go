package table

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/parquet-go/parquet-go"
)

// WriteParquet writes the table as a flat Parquet file: a required string
// identifier column plus one optional double column per feature.
func WriteParquet(w io.Writer, t *Table, idColumn string) error {
	group := parquet.Group{idColumn: parquet.String()}
	for _, c := range t.Columns {
		group[c] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
	schema := parquet.NewSchema("features", group)

	idLeaf, ok := schema.Lookup(idColumn)
	if !ok {
		return fmt.Errorf("identifier column %q missing from schema", idColumn)
	}
	colIdx := make([]int, len(t.Columns))
	for j, c := range t.Columns {
		leaf, ok := schema.Lookup(c)
		if !ok {
			return fmt.Errorf("column %q missing from schema", c)
		}
		colIdx[j] = leaf.ColumnIndex
	}

	writer := parquet.NewWriter(w, schema)
	batch := make([]parquet.Row, 0, 256)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := writer.WriteRows(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for i, values := range t.Rows {
		row := make(parquet.Row, len(t.Columns)+1)
		row[idLeaf.ColumnIndex] = parquet.ValueOf(t.IDs[i]).Level(0, 0, idLeaf.ColumnIndex)
		for j, v := range values {
			if math.IsNaN(v) {
				row[colIdx[j]] = parquet.Value{}.Level(0, 0, colIdx[j])
			} else {
				row[colIdx[j]] = parquet.ValueOf(v).Level(0, 1, colIdx[j])
			}
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	return writer.Close()
}

// SaveParquet writes the table to path.
func SaveParquet(path string, t *Table, idColumn string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	if err := WriteParquet(file, t, idColumn); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
