//go:build cgo

package memory

// Under cgo builds, defaultDriver is mattn/go-sqlite3 (registered as
// "sqlite3"); tests need the pure-Go "sqlite" driver too, registered here
// since driver_nocgo.go isn't compiled in this configuration.
import _ "modernc.org/sqlite"
