package pixscout

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/jmylchreest/pixscout/pkg/extract"
	"github.com/jmylchreest/pixscout/pkg/imagecheck"
)

// Mode identifies which pipeline produced a result.
type Mode string

const (
	ModeStatic   Mode = "static"
	ModeRendered Mode = "rendered"
)

// Result is the outcome of one extraction. A failed extraction carries
// only Err; it serialises as {"error": "..."}.
type Result struct {
	Success     bool                        `json:"success" yaml:"success"`
	Mode        Mode                        `json:"mode" yaml:"mode"`
	URL         string                      `json:"url" yaml:"url"`
	TotalFound  int                         `json:"totalFound" yaml:"totalFound"`
	ValidImages int                         `json:"validImages" yaml:"validImages"`
	Images      []imagecheck.ValidatedImage `json:"images" yaml:"images"`
	TextContent extract.TextContent         `json:"textContent" yaml:"textContent"`
	Debug       *Debug                      `json:"debug,omitempty" yaml:"debug,omitempty"`

	Err error `json:"-" yaml:"-"`
}

// Debug holds diagnostics requested with Request.Debug.
type Debug struct {
	// Static mode
	StatusCode      int    `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	ContentLength   int    `json:"contentLength,omitempty" yaml:"contentLength,omitempty"`
	Encoding        string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	DetectedCharset string `json:"detectedCharset,omitempty" yaml:"detectedCharset,omitempty"`
	Profile         string `json:"profile,omitempty" yaml:"profile,omitempty"`
	Attempts        int    `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Title           string `json:"title,omitempty" yaml:"title,omitempty"`
	ImgTagCount     int    `json:"imgTagCount,omitempty" yaml:"imgTagCount,omitempty"`
	HasScripts      bool   `json:"hasScripts,omitempty" yaml:"hasScripts,omitempty"`
	SampleHTML      string `json:"sampleHtml,omitempty" yaml:"sampleHtml,omitempty"`

	// Rendering mode
	CollectedURLsSample []string `json:"collectedUrlsSample,omitempty" yaml:"collectedUrlsSample,omitempty"`
	DOMCount            int      `json:"domCount,omitempty" yaml:"domCount,omitempty"`
	Captured            int      `json:"captured,omitempty" yaml:"captured,omitempty"`
	Remote              int      `json:"remote,omitempty" yaml:"remote,omitempty"`
	Scrolls             int      `json:"scrolls,omitempty" yaml:"scrolls,omitempty"`
	Clicks              int      `json:"clicks,omitempty" yaml:"clicks,omitempty"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

const (
	sampleHTMLLength = 1000
	urlSampleSize    = 10
)

type errorResult struct {
	Error string `json:"error" yaml:"error"`
}

func failed(err error) *Result {
	return &Result{Err: err}
}

// Failed reports whether the extraction failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// MarshalJSON writes failures as a bare error object.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(errorResult{Error: r.Err.Error()})
	}
	type plain Result
	return json.Marshal((*plain)(r))
}

// MarshalYAML mirrors MarshalJSON.
func (r *Result) MarshalYAML() (any, error) {
	if r.Err != nil {
		return errorResult{Error: r.Err.Error()}, nil
	}
	type plain Result
	return (*plain)(r), nil
}

func sampleHTML(html string) string {
	if len(html) <= sampleHTMLLength {
		return html
	}
	cut := sampleHTMLLength
	for cut > 0 && !utf8.RuneStart(html[cut]) {
		cut--
	}
	return html[:cut] + "..."
}
