package contextmgr

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
)

// appendDailyLog appends resume to cfg.DailyLogDir/YYYY-MM-DD.md as a
// dated Markdown section. Before writing, it renders the section through
// goldmark purely to validate it's well-formed Markdown — the file
// itself is kept as source text, not the rendered HTML, since it's meant
// to be read directly.
func (m *Manager) appendDailyLog(resume string) error {
	if m.cfg.DailyLogDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.cfg.DailyLogDir, 0o755); err != nil {
		return fmt.Errorf("contextmgr: daily log dir: %w", err)
	}

	section := fmt.Sprintf("\n## %s\n\n%s\n", time.Now().Format(time.RFC3339), resume)

	var rendered bytes.Buffer
	if err := goldmark.Convert([]byte(section), &rendered); err != nil {
		return fmt.Errorf("contextmgr: daily log markdown invalid: %w", err)
	}

	path := filepath.Join(m.cfg.DailyLogDir, time.Now().Format("2006-01-02")+".md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("contextmgr: open daily log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(section); err != nil {
		return fmt.Errorf("contextmgr: write daily log: %w", err)
	}
	return nil
}
