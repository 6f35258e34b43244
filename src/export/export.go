// Package export accumulates recognized messages and writes them to a
// single-column spreadsheet.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	Header    = "Message"
	sheetName = "Sheet1"
)

// Matches Unicode whitespace: the separators, the ASCII controls \t-\r and
// \x1c-\x1f, NEL U+0085 and the ideographic space U+3000.
var whitespace = regexp.MustCompile(`[\s\v\x1c-\x1f\x{85}\p{Z}]+`)

// Normalize removes every whitespace run from msg. Tesseract puts spaces
// between CJK glyphs and breaks lines at bubble width, neither of which
// belong in the message. Any newline left after that becomes a full-width
// comma.
func Normalize(msg string) string {
	msg = whitespace.ReplaceAllString(msg, "")
	return strings.ReplaceAll(msg, "\n", "，")
}

// Messages collects text in the order it was recognized.
type Messages struct {
	items []string
}

func (m *Messages) Add(texts ...string) {
	m.items = append(m.items, texts...)
}

func (m *Messages) Len() int { return len(m.items) }

// All returns a copy of the collected messages.
func (m *Messages) All() []string {
	out := make([]string, len(m.items))
	copy(out, m.items)
	return out
}

// WriteXLSX writes a header row followed by one normalized message per row
// in column A, creating the parent directory if needed.
func WriteXLSX(path string, messages []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", []interface{}{Header}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, msg := range messages {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, []interface{}{Normalize(msg)}); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Join returns the normalized messages one per line, for the clipboard.
func Join(messages []string) string {
	normalized := make([]string, 0, len(messages))
	for _, m := range messages {
		normalized = append(normalized, Normalize(m))
	}
	return strings.Join(normalized, "\n")
}
