package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/pixscout/pkg/imagecheck"
	"github.com/jmylchreest/pixscout/pkg/pixscout"
)

// MarkdownWriter writes a human-readable report per result.
type MarkdownWriter struct {
	w           *bufio.Writer
	maxText     int
	showInvalid bool
	written     int
}

// NewMarkdownWriter creates a markdown writer. maxText caps the summary in
// runes; 0 leaves it whole.
func NewMarkdownWriter(w io.Writer, maxText int, showInvalid bool) *MarkdownWriter {
	return &MarkdownWriter{
		w:           bufio.NewWriter(w),
		maxText:     maxText,
		showInvalid: showInvalid,
	}
}

// Write renders res.
func (w *MarkdownWriter) Write(res *pixscout.Result) error {
	if w.written > 0 {
		w.printf("\n---\n\n")
	}
	w.written++

	if res.Failed() {
		w.printf("# Extraction failed\n\n")
		w.printf("%s\n", quoteLines(res.Err.Error()))
		return w.w.Flush()
	}

	title := res.TextContent.Title
	if title == "" {
		title = res.URL
	}
	w.printf("# %s\n\n", escapeInline(title))
	w.printf("<%s>\n\n", res.URL)
	w.printf("Mode: %s. Found %d images, %d valid.\n", res.Mode, res.TotalFound, res.ValidImages)

	w.writeImages(res.Images)
	w.writeText(res)

	if d := res.Debug; d != nil {
		w.writeDebug(d)
	}
	return w.w.Flush()
}

func (w *MarkdownWriter) writeImages(images []imagecheck.ValidatedImage) {
	w.printf("\n## Images\n\n")
	if len(images) == 0 {
		w.printf("_No images found._\n")
		return
	}

	w.printf("| # | Image | Size | Dimensions | Format | Source |\n")
	w.printf("|---|---|---|---|---|---|\n")
	n := 0
	for _, img := range images {
		if !img.Valid && !w.showInvalid {
			continue
		}
		n++
		size := "unknown"
		if img.ByteSize > 0 {
			size = humanize.Bytes(uint64(img.ByteSize))
		}
		dims := "unknown"
		if img.Info.Width.Known() && img.Info.Height.Known() {
			dims = fmt.Sprintf("%d x %d", img.Info.Width, img.Info.Height)
		}
		format := img.Format
		if !img.Valid {
			format = "not inspected"
		}
		alt := img.AltText
		if alt == "" {
			alt = "image"
		}
		w.printf("| %d | ![%s](%s) | %s | %s | %s | %s |\n",
			n, escapeCell(alt), img.URL, size, dims, format, img.Source)
	}
}

func (w *MarkdownWriter) writeText(res *pixscout.Result) {
	tc := res.TextContent

	if summary := w.clip(tc.MainContentSummary); summary != "" {
		w.printf("\n## Summary\n\n%s\n", summary)
	}

	if len(tc.Headings) > 0 {
		w.printf("\n## Headings\n\n")
		for _, h := range tc.Headings {
			depth := 0
			if len(h.Level) == 2 && h.Level[0] == 'h' {
				depth = int(h.Level[1]-'0') - 1
			}
			w.printf("%s- %s\n", strings.Repeat("  ", max(depth, 0)), escapeInline(h.Text))
		}
	}

	if len(tc.Links) > 0 {
		w.printf("\n## Links\n\n")
		for _, l := range tc.Links {
			w.printf("- [%s](%s)\n", escapeInline(l.Text), l.URL)
		}
	}
}

func (w *MarkdownWriter) writeDebug(d *pixscout.Debug) {
	w.printf("\n## Debug\n\n")
	row := func(k string, v any) { w.printf("- %s: %v\n", k, v) }

	if d.Error != "" {
		row("error", d.Error)
	}
	if d.StatusCode != 0 {
		row("status", d.StatusCode)
		row("content length", humanize.Bytes(uint64(d.ContentLength)))
		row("encoding", orNone(d.Encoding))
		row("detected charset", orNone(d.DetectedCharset))
		row("profile", fmt.Sprintf("%s (attempt %d)", d.Profile, d.Attempts))
		row("title", d.Title)
		row("img tags", d.ImgTagCount)
		row("has scripts", d.HasScripts)
	}
	if d.CollectedURLsSample != nil {
		row("dom urls", d.DOMCount)
		row("captured", fmt.Sprintf("%d stored, %d remote", d.Captured, d.Remote))
		row("scrolls", d.Scrolls)
		row("clicks", d.Clicks)
		for _, u := range d.CollectedURLsSample {
			w.printf("  - %s\n", u)
		}
	}
}

// Close flushes the writer.
func (w *MarkdownWriter) Close() error {
	return w.w.Flush()
}

func (w *MarkdownWriter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.w, format, args...)
}

func (w *MarkdownWriter) clip(s string) string {
	if w.maxText <= 0 || utf8.RuneCountInString(s) <= w.maxText {
		return s
	}
	return string([]rune(s)[:w.maxText]) + "..."
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

var inlineEscaper = strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`, "`", "\\`")

func escapeInline(s string) string {
	return inlineEscaper.Replace(strings.Join(strings.Fields(s), " "))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(escapeInline(s), "|", `\|`)
}

func quoteLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
