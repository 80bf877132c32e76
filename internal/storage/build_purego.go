//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Default build: pure Go SQLite, no C compiler required. Cosine similarity is
// computed in Go over the candidate rows of the caller's scope.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
