package imagecheck

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jmylchreest/pixscout/pkg/extract"
)

// Dimension is a decoded pixel size. Zero means the image could not be
// decoded and is serialised as "unknown".
type Dimension int

// Known reports whether the dimension was decoded.
func (d Dimension) Known() bool { return d > 0 }

func (d Dimension) String() string {
	if !d.Known() {
		return FormatUnknown
	}
	return strconv.Itoa(int(d))
}

// MarshalJSON implements json.Marshaler.
func (d Dimension) MarshalJSON() ([]byte, error) {
	if !d.Known() {
		return json.Marshal(FormatUnknown)
	}
	return json.Marshal(int(d))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Dimension) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Dimension(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid dimension %s", b)
	}
	if s != FormatUnknown {
		return fmt.Errorf("invalid dimension %q", s)
	}
	*d = 0
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Dimension) MarshalYAML() (any, error) {
	if !d.Known() {
		return FormatUnknown, nil
	}
	return int(d), nil
}

// Info is what inspection learned about an image.
type Info struct {
	Valid       bool      `json:"valid" yaml:"valid"`
	ContentType string    `json:"contentType" yaml:"contentType"`
	ByteSize    int64     `json:"byteSize" yaml:"byteSize"`
	Width       Dimension `json:"width" yaml:"width"`
	Height      Dimension `json:"height" yaml:"height"`
	Format      string    `json:"format" yaml:"format"`
}

// ValidatedImage is a candidate that passed validation, with its
// inspection result.
type ValidatedImage struct {
	extract.Candidate `yaml:",inline"`
	Info              `yaml:",inline"`
}
