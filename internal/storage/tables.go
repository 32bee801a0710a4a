package storage

import (
	"encoding/json"
	"fmt"
	"math"

	"rfpca/internal/common"
	"rfpca/internal/table"

	"go.etcd.io/bbolt"
)

var metaKey = []byte("\x00meta")

type tableMeta struct {
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// storedRow keeps missing values as null.
type storedRow struct {
	ID     string     `json:"id"`
	Values []*float64 `json:"values"`
}

// SaveTable stores t under name, replacing any table of the same name.
func (s *Store) SaveTable(name string, t *table.Table) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		parent := tx.Bucket([]byte(tablesBucket))
		if parent.Bucket([]byte(name)) != nil {
			if err := parent.DeleteBucket([]byte(name)); err != nil {
				return fmt.Errorf("replace table %s: %w", name, err)
			}
		}
		b, err := parent.CreateBucket([]byte(name))
		if err != nil {
			return fmt.Errorf("create table bucket %s: %w", name, err)
		}

		meta, err := json.Marshal(tableMeta{Columns: t.Columns, Rows: t.NumRows()})
		if err != nil {
			return fmt.Errorf("marshal table meta: %w", err)
		}
		if err := b.Put(metaKey, meta); err != nil {
			return err
		}

		for i, row := range t.Rows {
			rec := storedRow{ID: t.IDs[i], Values: make([]*float64, len(row))}
			for j := range row {
				if !math.IsNaN(row[j]) {
					rec.Values[j] = &row[j]
				}
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal row %s: %w", t.IDs[i], err)
			}
			if err := b.Put([]byte(fmt.Sprintf("%012d", i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadTable reads the table stored under name, rows in saved order.
func (s *Store) LoadTable(name string) (*table.Table, error) {
	var (
		meta tableMeta
		ids  []string
		rows [][]float64
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tablesBucket)).Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("table %s not found: %w", name, common.ErrDataFormat)
		}
		if err := json.Unmarshal(b.Get(metaKey), &meta); err != nil {
			return fmt.Errorf("table %s meta: %w: %v", name, common.ErrDataFormat, err)
		}

		ids = make([]string, 0, meta.Rows)
		rows = make([][]float64, 0, meta.Rows)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if string(k) == string(metaKey) {
				continue
			}
			var rec storedRow
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("table %s row %s: %w: %v", name, k, common.ErrDataFormat, err)
			}
			row := make([]float64, len(rec.Values))
			for j, v := range rec.Values {
				if v == nil {
					row[j] = math.NaN()
				} else {
					row[j] = *v
				}
			}
			ids = append(ids, rec.ID)
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return table.New(ids, meta.Columns, rows)
}

// ListTables returns the stored table names in key order.
func (s *Store) ListTables() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tablesBucket)).ForEach(func(k, v []byte) error {
			if v == nil {
				names = append(names, string(k))
			}
			return nil
		})
	})
	return names, err
}
