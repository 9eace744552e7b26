//go:build !linux

package sandbox

// probeLandlock always reports unsupported outside Linux; Activate then
// becomes a documented no-op per the sandbox contract.
func probeLandlock() bool { return false }

func enforceLandlock(rw, ro []string) error { return nil }
