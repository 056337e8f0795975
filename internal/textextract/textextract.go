package textextract

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Lines turns a document into trimmed, non-empty text lines in reading order.
// PDFs are read with their text layer; anything else is treated as UTF-8 text.
func Lines(name string, data []byte) ([]string, error) {
	if strings.EqualFold(path.Ext(name), ".pdf") {
		return pdfLines(data)
	}
	return SplitLines(string(data)), nil
}

// SplitLines splits text on newlines, trimming each line and dropping blanks.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func pdfLines(data []byte) (lines []string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfLines: reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdfLines: opening pdf: %w", err)
	}

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines = append(lines, pageLines(page)...)
	}
	return lines, nil
}

// pageLines prefers row grouping and falls back to the page's plain text.
func pageLines(page pdf.Page) []string {
	if rows, err := page.GetTextByRow(); err == nil && len(rows) > 0 {
		var out []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				out = append(out, line)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		f := page.Font(name)
		fonts[name] = &f
	}
	text, err := page.GetPlainText(fonts)
	if err != nil {
		return nil
	}
	return SplitLines(text)
}
