// Package storage keeps generated agenda files on disk.
package storage

import (
	"io"
	"time"
)

// FileInfo describes one stored agenda file.
type FileInfo struct {
	Name      string
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}

// Provider is the interface for agenda file operations. Names are flat file
// names inside the storage root; sub-directories are not used.
type Provider interface {
	// List returns every agenda file.
	List() ([]FileInfo, error)
	// Read returns the raw bytes of the named file.
	Read(name string) ([]byte, error)
	// Open returns a reader for streaming the named file along with its info.
	Open(name string) (io.ReadSeekCloser, FileInfo, error)
	// Write atomically replaces the named file.
	Write(name string, content []byte) error
	// Delete removes the named file.
	Delete(name string) error
	// Root returns the absolute storage directory.
	Root() string
}
