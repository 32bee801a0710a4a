// Package matrix builds the wide feature table the pipeline consumes from
// a relational store of per-track features and a directory of compressed
// raw API payloads.
package matrix

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// FeatureRow is one numeric observation in long format.
type FeatureRow struct {
	TrackID string  `db:"track_id"`
	Source  string  `db:"source"`
	Feature string  `db:"feature"`
	Value   float64 `db:"num_value"`
}

// RawFile locates the stored payload of one track.
type RawFile struct {
	TrackID string `db:"track_id"`
	RelPath string `db:"rel_path"`
}

// Source supplies the long-format features and the raw payload index.
type Source interface {
	Features(ctx context.Context) ([]FeatureRow, error)
	RawFiles(ctx context.Context, source string) ([]RawFile, error)
}

// SQLSource reads from the crawler's tracks, features and raw_files tables.
type SQLSource struct {
	db *sqlx.DB
}

// Connect opens and pings the database.
func Connect(driver, url string) (*SQLSource, error) {
	db, err := sqlx.Connect(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return &SQLSource{db: db}, nil
}

// NewSQLSource wraps an open connection.
func NewSQLSource(db *sqlx.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Features returns every numeric feature of tracks with a known Spotify id.
func (s *SQLSource) Features(ctx context.Context) ([]FeatureRow, error) {
	var rows []FeatureRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.spotify_id AS track_id, f.source, f.feature, f.num_value
		FROM features f
		JOIN tracks t ON t.id = f.track_id
		WHERE f.dtype = 'num' AND t.spotify_id IS NOT NULL AND f.num_value IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	return rows, nil
}

// RawFiles returns the track payloads stored for source.
func (s *SQLSource) RawFiles(ctx context.Context, source string) ([]RawFile, error) {
	var files []RawFile
	err := s.db.SelectContext(ctx, &files, `
		SELECT track_id, rel_path
		FROM raw_files
		WHERE source = $1 AND subtype = 'track'
		ORDER BY track_id
	`, source)
	if err != nil {
		return nil, fmt.Errorf("query raw files: %w", err)
	}
	return files, nil
}
