// Package export writes report artifacts to the notes repository and
// publishes long-form content to Telegraph.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quantops/qubot/internal/compress"
)

// Exporter writes the per-channel report artifacts: the rendered markdown
// and the raw compression JSON.
type Exporter struct {
	root string // notes repository root; empty means cwd
}

// NewExporter builds an exporter rooted at the notes repository.
func NewExporter(root string) *Exporter {
	if root == "" {
		root = "."
	}
	return &Exporter{root: root}
}

// Artifacts are the relative paths of one written report pair.
type Artifacts struct {
	MarkdownPath string
	DataPath     string
}

// Write persists the markdown report and the raw compression result.
// Returned paths are relative to the notes root.
func (e *Exporter) Write(channel string, when time.Time, markdown string, result *compress.CompressionResult) (*Artifacts, error) {
	safe := SafeName(channel)
	art := &Artifacts{
		MarkdownPath: filepath.Join("reports", "channels",
			fmt.Sprintf("%s_%s.md", safe, when.Format("20060102_1504"))),
		DataPath: filepath.Join("reports", "data",
			fmt.Sprintf("%s_%s.json", when.Format("2006-01-02"), safe)),
	}

	if err := e.writeFile(art.MarkdownPath, []byte(markdown)); err != nil {
		return nil, fmt.Errorf("write report markdown: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal compression result: %w", err)
	}
	if err := e.writeFile(art.DataPath, data); err != nil {
		return nil, fmt.Errorf("write report data: %w", err)
	}
	return art, nil
}

func (e *Exporter) writeFile(rel string, data []byte) error {
	abs := filepath.Join(e.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}

// SafeName reduces a channel name to a filesystem-safe slug.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= 0x4e00 && r <= 0x9fff:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")
	if s == "" {
		s = "channel"
	}
	return s
}
