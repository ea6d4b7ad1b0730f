package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/jmylchreest/pixscout/pkg/pixscout"
)

// JSONWriter writes JSON output. A single result is written as an object,
// several as an array.
type JSONWriter struct {
	w       *bufio.Writer
	pretty  bool
	indent  string
	results []*pixscout.Result
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
	}
}

// Write buffers a result until Close.
func (w *JSONWriter) Write(res *pixscout.Result) error {
	w.results = append(w.results, res)
	return nil
}

// Close writes the buffered results.
func (w *JSONWriter) Close() error {
	var v any = w.results
	switch len(w.results) {
	case 0:
		v = []any{}
	case 1:
		v = w.results[0]
	}

	var (
		output []byte
		err    error
	)
	if w.pretty {
		output, err = json.MarshalIndent(v, "", w.indent)
	} else {
		output, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// JSONLWriter writes one compact JSON object per line as results arrive.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w)}
}

// Write writes res as a JSON line.
func (w *JSONLWriter) Write(res *pixscout.Result) error {
	output, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.w.Flush()
}
