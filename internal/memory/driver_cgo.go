//go:build cgo

package memory

import _ "github.com/mattn/go-sqlite3"

// defaultDriver is the production SQLite driver when cgo is available:
// mattn/go-sqlite3, with FTS5 compiled in.
const defaultDriver = "sqlite3"
