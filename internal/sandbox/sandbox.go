// Package sandbox confines the agent's filesystem access using Landlock,
// Linux's unprivileged mandatory access control facility. It is the
// process-wide safety boundary for the shell, read_file, write_file, and
// edit_file tools.
package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Paths are the fixed subdirectories created under the sandbox base.
const (
	dbDirName     = "db"
	jailDirName   = "jail"
	pluginsDirName = "plugins"
)

// readOnlySystemDirs are granted read-only access during activate.
var readOnlySystemDirs = []string{
	"/usr", "/lib", "/lib64", "/bin", "/sbin",
	"/etc", "/dev", "/proc", "/sys", "/run",
}

// readWriteSystemDirs are granted read-write access during activate,
// independent of any caller-supplied allow_path calls.
var readWriteSystemDirs = []string{"/tmp"}

// Sandbox is the process-wide filesystem confinement singleton. Its
// lifecycle is strictly init, then zero or more AllowPath calls, then
// Activate; AllowPath calls after Activate are ignored.
type Sandbox struct {
	mu sync.Mutex

	base    string
	dbDir   string
	jailDir string
	pluginsDir string

	supported bool // capability probe result from Init
	active    bool
	allowed   []string // extra read-write paths granted via AllowPath

	log *slog.Logger
}

// New constructs a Sandbox bound to logger. Call Init before anything else.
func New(log *slog.Logger) *Sandbox {
	if log == nil {
		log = slog.Default()
	}
	return &Sandbox{log: log.With("component", "sandbox")}
}

// BaseDir returns the resolved base directory, valid only after Init.
func (s *Sandbox) BaseDir() string { return s.base }

// DBDir returns base/db, the Memory Store's directory.
func (s *Sandbox) DBDir() string { return s.dbDir }

// JailDir returns base/jail, the tool workspace.
func (s *Sandbox) JailDir() string { return s.jailDir }

// PluginsDir returns base/plugins.
func (s *Sandbox) PluginsDir() string { return s.pluginsDir }

// Init resolves the base directory ($HOME/.opencrank, or .opencrank when
// HOME is unset), creates the fixed subdirectory layout, and probes the
// platform for Landlock support. It does not restrict anything yet.
func (s *Sandbox) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	s.base = filepath.Join(home, ".opencrank")
	s.dbDir = filepath.Join(s.base, dbDirName)
	s.jailDir = filepath.Join(s.base, jailDirName)
	s.pluginsDir = filepath.Join(s.base, pluginsDirName)

	for _, dir := range []string{
		s.base, s.dbDir, s.jailDir, s.pluginsDir,
		filepath.Join(s.jailDir, "memory"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sandbox: create %s: %w", dir, err)
		}
	}

	s.supported = probeLandlock()
	if !s.supported {
		s.log.Warn("filesystem sandboxing unsupported on this platform; running unconfined")
	}

	s.log.Info("sandbox initialized", "base", s.base, "landlock_supported", s.supported)
	return nil
}

// AllowPath grants read-write access to path once Activate runs. It must
// be called before Activate; calls afterward are silently ignored.
func (s *Sandbox) AllowPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.log.Warn("allow_path called after activate; ignoring", "path", path)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	s.allowed = append(s.allowed, filepath.Clean(abs))
}

// Activate constructs and enforces the Landlock ruleset: read-write under
// base/ and every AllowPath'd directory, read-only under the fixed system
// directories, read-write under /tmp, with new-privilege acquisition
// disabled. It reports false on platforms without Landlock support,
// logging a warning; the rest of the system continues unconfined.
func (s *Sandbox) Activate() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return s.supported, nil
	}
	s.active = true

	if !s.supported {
		s.log.Warn("activate called without sandboxing support; no-op")
		return false, nil
	}

	rw := append([]string{s.base}, s.allowed...)
	rw = append(rw, readWriteSystemDirs...)

	if err := enforceLandlock(rw, readOnlySystemDirs); err != nil {
		s.log.Error("landlock enforcement failed", "error", err)
		return false, fmt.Errorf("sandbox: activate: %w", err)
	}

	s.log.Info("sandbox activated", "read_write", rw, "read_only", readOnlySystemDirs)
	return true, nil
}

// Active reports whether Activate has run (regardless of whether
// enforcement actually took effect on this platform).
func (s *Sandbox) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Enforced reports whether this process is actually running under
// Landlock restriction, as opposed to an unconfined no-op.
func (s *Sandbox) Enforced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.supported
}

// IsPathAllowed reports whether p, after resolution, lies under base/ or
// any directory granted via AllowPath.
func (s *Sandbox) IsPathAllowed(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)

	for _, dir := range append([]string{s.base}, s.allowed...) {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
