// Package storage reads seed documents from the seed directory.
package storage

import "time"

// File describes one seed document on disk.
type File struct {
	Path      string    // relative to the seed root, slash separated
	Checksum  string    // hex sha256 of the content
	UpdatedAt time.Time
}

// Provider is the interface for seed file access.
type Provider interface {
	// List returns metadata for every seed document under dir (relative to
	// the root), sorted by path.
	List(dir string) ([]File, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Root returns the absolute root directory.
	Root() string
}
