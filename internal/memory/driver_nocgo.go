//go:build !cgo

package memory

import _ "modernc.org/sqlite"

// defaultDriver falls back to the pure-Go modernc.org/sqlite driver when
// cgo isn't available, so the package — and its tests — still build.
const defaultDriver = "sqlite"
