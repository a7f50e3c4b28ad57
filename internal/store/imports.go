package store

import (
	"context"
	"fmt"
	"time"
)

// ImportChecksums returns the checksum recorded for every imported seed file.
func (s *Store) ImportChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT path, checksum FROM seed_imports`)
	if err != nil {
		return nil, fmt.Errorf("store: import checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// ImportChecksum returns the recorded checksum for a seed file, or "" if it
// was never imported.
func (s *Store) ImportChecksum(ctx context.Context, path string) (string, error) {
	var cs string
	err := s.conn.QueryRowContext(ctx, `SELECT checksum FROM seed_imports WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not imported yet
	}
	return cs, nil
}

// RecordImport stores the checksum of a successfully imported seed file.
func (s *Store) RecordImport(ctx context.Context, path, checksum string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO seed_imports (path, checksum, imported_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET checksum = excluded.checksum, imported_at = excluded.imported_at
	`, path, checksum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: record import: %w", err)
	}
	return nil
}
