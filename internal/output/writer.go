// Package output renders extraction results.
package output

import (
	"fmt"
	"io"

	"github.com/jmylchreest/pixscout/pkg/pixscout"
)

// Format represents output format types.
type Format string

const (
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formats lists every supported format, for flag help.
var Formats = []Format{FormatJSON, FormatJSONL, FormatYAML, FormatMarkdown}

// Writer serialises results.
type Writer interface {
	// Write outputs a single result. Buffered writers emit on Close.
	Write(res *pixscout.Result) error

	// Close flushes buffered results.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty      bool
	indent      string
	maxText     int
	showInvalid bool
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WithMaxText caps the summary length in markdown reports. 0 disables it.
func WithMaxText(runes int) WriterOption {
	return func(c *writerConfig) {
		c.maxText = runes
	}
}

// WithInvalid lists images that failed inspection in markdown reports.
func WithInvalid(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.showInvalid = enabled
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty:      true,
		indent:      "  ",
		maxText:     2000,
		showInvalid: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(w, cfg.maxText, cfg.showInvalid), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
