package matrix

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"rfpca/internal/common"
	"rfpca/internal/table"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Builder assembles the feature table.
type Builder struct {
	Source  Source
	RawRoot string // base directory of relative payload paths
	Prefix  string // payload source name and column prefix
}

// Build pivots the long-format features and left-joins the payload columns.
func (b *Builder) Build(ctx context.Context) (*table.Table, error) {
	rows, err := b.Source.Features(ctx)
	if err != nil {
		return nil, err
	}
	wide, err := Pivot(rows)
	if err != nil {
		return nil, err
	}

	files, err := b.Source.RawFiles(ctx, b.Prefix)
	if err != nil {
		return nil, err
	}
	raw, err := PayloadTable(b.RawRoot, files, b.Prefix)
	if err != nil {
		return nil, err
	}

	out, err := Join(wide, raw)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("tracks", out.NumRows()).
		Int("features", wide.NumCols()).
		Int("payload_columns", raw.NumCols()).
		Msg("Feature matrix built")
	return out, nil
}

// Pivot turns (track, source, feature, value) rows into one row per track
// and one "source.feature" column per pair, averaging repeated
// observations. Tracks and columns are sorted; absent cells are missing.
func Pivot(rows []FeatureRow) (*table.Table, error) {
	type cell struct {
		sum float64
		n   int
	}
	cells := make(map[string]map[string]*cell)
	colSet := make(map[string]struct{})

	for _, r := range rows {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		col := r.Source + "." + r.Feature
		colSet[col] = struct{}{}
		byCol, ok := cells[r.TrackID]
		if !ok {
			byCol = make(map[string]*cell)
			cells[r.TrackID] = byCol
		}
		c, ok := byCol[col]
		if !ok {
			c = &cell{}
			byCol[col] = c
		}
		c.sum += r.Value
		c.n++
	}

	ids := sortedKeys(cells)
	cols := sortedKeys(colSet)
	colIndex := make(map[string]int, len(cols))
	for j, c := range cols {
		colIndex[c] = j
	}

	out := make([][]float64, len(ids))
	for i, id := range ids {
		row := make([]float64, len(cols))
		for j := range row {
			row[j] = math.NaN()
		}
		for col, c := range cells[id] {
			row[colIndex[col]] = c.sum / float64(c.n)
		}
		out[i] = row
	}
	return table.New(ids, cols, out)
}

// ReadPayload decompresses a zstd JSON payload and returns its top-level
// numeric and boolean fields.
func ReadPayload(dec *zstd.Decoder, path string) (map[string]float64, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("payload %s is not valid JSON: %w", path, common.ErrDataFormat)
	}

	fields := make(map[string]float64)
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Number:
			fields[key.String()] = value.Float()
		case gjson.True:
			fields[key.String()] = 1
		case gjson.False:
			fields[key.String()] = 0
		}
		return true
	})
	return fields, nil
}

// PayloadTable reads every payload in files into a table with columns
// "prefix.field". Unreadable payloads are skipped, and a track listed twice
// keeps its first payload.
func PayloadTable(root string, files []RawFile, prefix string) (*table.Table, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	var (
		ids     []string
		records []map[string]float64
		seen    = make(map[string]struct{})
		colSet  = make(map[string]struct{})
		skipped int
	)
	for _, f := range files {
		if _, dup := seen[f.TrackID]; dup {
			continue
		}
		path := f.RelPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		fields, err := ReadPayload(dec, path)
		if err != nil {
			skipped++
			log.Debug().Err(err).Str("track_id", f.TrackID).Msg("Skipping payload")
			continue
		}
		seen[f.TrackID] = struct{}{}
		ids = append(ids, f.TrackID)
		records = append(records, fields)
		for k := range fields {
			colSet[k] = struct{}{}
		}
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Int("read", len(ids)).Msg("Some payloads could not be read")
	}

	fields := sortedKeys(colSet)
	cols := make([]string, len(fields))
	for j, k := range fields {
		cols[j] = prefix + "." + k
	}
	rows := make([][]float64, len(ids))
	for i, rec := range records {
		row := make([]float64, len(fields))
		for j, k := range fields {
			if v, ok := rec[k]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		rows[i] = row
	}
	return table.New(ids, cols, rows)
}

// Join appends the columns of right to left, matching rows by identifier.
// Every left row is kept; rows without a match get missing values.
func Join(left, right *table.Table) (*table.Table, error) {
	for _, c := range right.Columns {
		if _, dup := left.ColumnIndex(c); dup {
			return nil, fmt.Errorf("column %q present on both sides of join: %w", c, common.ErrDataFormat)
		}
	}

	pos := make(map[string]int, right.NumRows())
	for i, id := range right.IDs {
		pos[id] = i
	}

	cols := append(append([]string(nil), left.Columns...), right.Columns...)
	rows := make([][]float64, left.NumRows())
	for i, id := range left.IDs {
		row := make([]float64, 0, len(cols))
		row = append(row, left.Rows[i]...)
		if k, ok := pos[id]; ok {
			row = append(row, right.Rows[k]...)
		} else {
			for range right.Columns {
				row = append(row, math.NaN())
			}
		}
		rows[i] = row
	}
	return table.New(append([]string(nil), left.IDs...), cols, rows)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
