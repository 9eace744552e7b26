package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const configFileMode = 0o600

// defaultConfigYAML is written by "opencrankd init" when no config.yaml
// already exists in the target directory.
const defaultConfigYAML = `listen:
  address: ""
  port: 8080

models:
  default: qwen3:4b
  ollama_url: http://localhost:11434
  local_first: true
  available:
    - name: qwen3:4b
      provider: ollama
      supports_tools: true
      context_window: 4096

anthropic:
  api_key: ""

agent:
  max_iterations: 15
  max_consecutive_errors: 3

context:
  max_context_chars: 100000
  usage_threshold: 0.75

shell_exec:
  enabled: false

log_level: info
`

// runInit writes a default config.yaml into dir if one does not already
// exist. The Sandbox creates its own jail/db directory layout at Init
// time, so init's only job is to scaffold a starting configuration for
// the user to edit. config.yaml gets 0600 since it holds the Anthropic
// API key.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing opencrank workspace in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(w, configPath, []byte(defaultConfigYAML), configFileMode); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to set your model and Anthropic API key, then run opencrankd serve.")
	return nil
}

// writeIfMissing writes content to path with the given mode, unless a file
// already exists there. Either way it reports what it did to w, so init
// never silently overwrites a user's customizations.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  %s exists, skipping\n", path)
		return nil
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
