package auth

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maltedev/pricelist-scraper/internal/dom"
)

// Diagnostics writes the page markup and a screenshot when the login
// breaks. Every step is best effort.
type Diagnostics struct {
	dir    string
	logger *slog.Logger
}

func NewDiagnostics(dir string, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{dir: dir, logger: logger.With("component", "diagnostics")}
}

func (d *Diagnostics) SourcePath(tag string) string {
	return filepath.Join(d.dir, fmt.Sprintf("login_source_%s.html", tag))
}

func (d *Diagnostics) ScreenshotPath(tag string) string {
	return filepath.Join(d.dir, fmt.Sprintf("login_fail_%s.png", tag))
}

func (d *Diagnostics) Dump(session dom.Session, tag string) {
	if d == nil || d.dir == "" {
		return
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.Warn("failed to create diagnostics dir", "dir", d.dir, "error", err)
		return
	}

	if markup, err := session.Content(); err == nil {
		if err := os.WriteFile(d.SourcePath(tag), []byte(markup), 0o644); err != nil {
			d.logger.Warn("failed to write page source", "error", err)
		}
	}

	if err := session.Screenshot(d.ScreenshotPath(tag)); err != nil {
		d.logger.Debug("screenshot not taken", "error", err)
	}

	d.logger.Info("login diagnostics saved", "dir", d.dir, "tag", tag)
}
