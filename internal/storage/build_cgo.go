//go:build sqlite_vec && !purego
// +build sqlite_vec,!purego

package storage

// Compiled with CGO and the sqlite_vec tag. Vector search runs in SQL through
// vec_distance_cosine, which needs the sqlite-vec extension loaded into the
// process (for example via SQLITE_EXTENSIONS or a static build).
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec,sqlite_fts5" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
