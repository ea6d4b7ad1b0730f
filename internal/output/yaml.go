package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/pixscout/pkg/pixscout"
)

// YAMLWriter writes YAML output, one document per result.
type YAMLWriter struct {
	w       *bufio.Writer
	results []*pixscout.Result
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{w: bufio.NewWriter(w)}
}

// Write buffers a result until Close.
func (w *YAMLWriter) Write(res *pixscout.Result) error {
	w.results = append(w.results, res)
	return nil
}

// Close writes the buffered results.
func (w *YAMLWriter) Close() error {
	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)

	for _, res := range w.results {
		if err := encoder.Encode(res); err != nil {
			return err
		}
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return w.w.Flush()
}
