package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	s := New(nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitCreatesLayout(t *testing.T) {
	s := newTestSandbox(t)

	for _, dir := range []string{s.BaseDir(), s.DBDir(), s.JailDir(), s.PluginsDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory at %s", dir)
		}
	}
	if filepath.Base(s.BaseDir()) != ".opencrank" {
		t.Fatalf("base dir = %s, want .opencrank suffix", s.BaseDir())
	}
}

func TestAllowPathIgnoredAfterActivate(t *testing.T) {
	s := newTestSandbox(t)

	extra := t.TempDir()
	s.AllowPath(extra)
	if !s.IsPathAllowed(extra) {
		t.Fatalf("expected %s to be allowed before activate", extra)
	}

	if _, err := s.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	tooLate := t.TempDir()
	s.AllowPath(tooLate)
	if s.IsPathAllowed(tooLate) {
		t.Fatalf("allow_path after activate should be ignored")
	}
}

func TestIsPathAllowedUnderBase(t *testing.T) {
	s := newTestSandbox(t)

	if !s.IsPathAllowed(s.JailDir()) {
		t.Fatalf("jail dir should be allowed, it's under base")
	}
	if s.IsPathAllowed("/etc/passwd") {
		t.Fatalf("/etc/passwd should not be allowed by default")
	}
}

func TestIsPathAllowedRejectsSiblingPrefix(t *testing.T) {
	s := newTestSandbox(t)

	sibling := s.BaseDir() + "-evil"
	if s.IsPathAllowed(sibling) {
		t.Fatalf("sibling directory sharing a string prefix must not be allowed: %s", sibling)
	}
}

func TestActivateNoopWithoutSupport(t *testing.T) {
	s := newTestSandbox(t)
	s.supported = false

	ok, err := s.Activate()
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if ok {
		t.Fatalf("expected unsupported activate to report false")
	}
	if !s.Active() {
		t.Fatalf("expected Active() true even when unsupported")
	}
	if s.Enforced() {
		t.Fatalf("expected Enforced() false when unsupported")
	}
}
