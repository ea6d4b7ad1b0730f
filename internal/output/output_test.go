package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/pixscout/pkg/extract"
	"github.com/jmylchreest/pixscout/pkg/imagecheck"
	"github.com/jmylchreest/pixscout/pkg/pixscout"
)

func sampleResult() *pixscout.Result {
	tc := extract.EmptyTextContent()
	tc.Title = "Holiday | Gallery"
	tc.Headings = []extract.Heading{{Level: "h1", Text: "Photos"}, {Level: "h2", Text: "Day *one*"}}
	tc.Paragraphs = []string{"These are the photos from our trip."}
	tc.Links = []extract.Link{{Text: "Home", URL: "https://example.com/"}}
	tc.MainContentSummary = "These are the photos from our trip."

	return &pixscout.Result{
		Success:     true,
		Mode:        pixscout.ModeStatic,
		URL:         "https://example.com/gallery",
		TotalFound:  3,
		ValidImages: 2,
		Images: []imagecheck.ValidatedImage{
			{
				Candidate: extract.Candidate{
					URL:            "https://example.com/beach.png",
					AltText:        "Beach | sunset",
					Width:          "640",
					OriginalSource: "/beach.png",
					Source:         extract.SourceTag,
				},
				Info: imagecheck.Info{Valid: true, ContentType: "image/png", ByteSize: 2048, Width: 640, Height: 480, Format: "PNG"},
			},
			{
				Candidate: extract.Candidate{URL: "https://example.com/x.svg", Source: extract.SourceMeta},
				Info:      imagecheck.Info{},
			},
		},
		TextContent: tc,
	}
}

func failedResult() *pixscout.Result {
	return &pixscout.Result{Err: errors.New("access denied (403 Forbidden): try\n1. this")}
}

// --- NewWriter Factory Tests ---

func TestNewWriter(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, "*output.JSONWriter"},
		{FormatJSONL, "*output.JSONLWriter"},
		{FormatYAML, "*output.YAMLWriter"},
		{FormatMarkdown, "*output.MarkdownWriter"},
		{"md", "*output.MarkdownWriter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			w, err := NewWriter(&bytes.Buffer{}, tt.format)
			if err != nil {
				t.Fatalf("NewWriter() error = %v", err)
			}
			if got := typeName(w); got != tt.want {
				t.Errorf("NewWriter() = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(w Writer) string {
	switch w.(type) {
	case *JSONWriter:
		return "*output.JSONWriter"
	case *JSONLWriter:
		return "*output.JSONLWriter"
	case *YAMLWriter:
		return "*output.YAMLWriter"
	case *MarkdownWriter:
		return "*output.MarkdownWriter"
	}
	return "unknown"
}

func TestNewWriter_UnsupportedFormat(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, Format("xml"))
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

// --- JSONWriter Tests ---

func TestJSONWriter_SingleResult(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, true, "  ")

	if err := w.Write(sampleResult()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Error("JSON output should be buffered until Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not a JSON object: %v\n%s", err, buf.String())
	}
	if got["totalFound"] != float64(3) || got["validImages"] != float64(2) {
		t.Errorf("counts = %v, %v", got["totalFound"], got["validImages"])
	}

	images := got["images"].([]any)
	second := images[1].(map[string]any)
	if second["width"] != "unknown" || second["valid"] != false {
		t.Errorf("undecoded image = %v", second)
	}
	if !strings.Contains(buf.String(), "\n  \"success\": true") {
		t.Error("expected two-space indentation")
	}
}

func TestJSONWriter_MultipleResults(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, false, "")

	_ = w.Write(sampleResult())
	_ = w.Write(failedResult())
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results", len(got))
	}
	if len(got[1]) != 1 || !strings.HasPrefix(got[1]["error"].(string), "access denied") {
		t.Errorf("failure = %v", got[1])
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Error("compact output should be a single line")
	}
}

func TestJSONWriter_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, true, "  ")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty output = %q", buf.String())
	}
}

// --- JSONLWriter Tests ---

func TestJSONLWriter_StreamsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONLWriter(buf)

	if err := w.Write(sampleResult()); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("JSONL line should be written immediately")
	}
	if err := w.Write(failedResult()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	for i, line := range lines {
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			t.Errorf("line %d is not JSON: %v", i, err)
		}
	}
}

// --- YAMLWriter Tests ---

func TestYAMLWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewYAMLWriter(buf)

	_ = w.Write(sampleResult())
	_ = w.Write(failedResult())
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf.Bytes()))
	var first map[string]any
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("first document: %v", err)
	}
	if first["url"] != "https://example.com/gallery" || first["validImages"] != 2 {
		t.Errorf("first document = %v", first)
	}
	images := first["images"].([]any)
	img := images[0].(map[string]any)
	if img["discoverySource"] != "tag" || img["width"] != 640 || img["attrWidth"] != "640" {
		t.Errorf("inline image fields = %v", img)
	}
	if images[1].(map[string]any)["height"] != "unknown" {
		t.Errorf("undecoded height = %v", images[1])
	}

	var second map[string]any
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("second document: %v", err)
	}
	if len(second) != 1 || second["error"] == nil {
		t.Errorf("failure document = %v", second)
	}
}

// --- MarkdownWriter Tests ---

func TestMarkdownWriter_Report(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewMarkdownWriter(buf, 0, true)

	res := sampleResult()
	res.Debug = &pixscout.Debug{StatusCode: 200, ContentLength: 1500, Encoding: "utf-8", Profile: "baseline", Attempts: 1, Title: "Holiday"}
	if err := w.Write(res); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Holiday | Gallery\n",
		"<https://example.com/gallery>",
		"Found 3 images, 2 valid.",
		`| 1 | ![Beach \| sunset](https://example.com/beach.png) | 2.0 kB | 640 x 480 | PNG | tag |`,
		"| 2 | ![image](https://example.com/x.svg) | unknown | unknown | not inspected | meta |",
		"## Summary\n\nThese are the photos from our trip.",
		"- Photos\n  - Day \\*one\\*\n",
		"- [Home](https://example.com/)",
		"- status: 200",
		"- content length: 1.5 kB",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestMarkdownWriter_HidesInvalid(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewMarkdownWriter(buf, 0, false)
	_ = w.Write(sampleResult())

	if strings.Contains(buf.String(), "x.svg") {
		t.Error("invalid image listed")
	}
}

func TestMarkdownWriter_ClipsSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewMarkdownWriter(buf, 10, true)
	_ = w.Write(sampleResult())

	if !strings.Contains(buf.String(), "## Summary\n\nThese are ...\n") {
		t.Errorf("summary not clipped:\n%s", buf.String())
	}
}

func TestMarkdownWriter_Failure(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewMarkdownWriter(buf, 0, true)
	_ = w.Write(sampleResult())
	_ = w.Write(failedResult())

	out := buf.String()
	if !strings.Contains(out, "\n---\n\n# Extraction failed\n\n> access denied (403 Forbidden): try\n> 1. this\n") {
		t.Errorf("failure report:\n%s", out)
	}
}

func TestMarkdownWriter_NoImages(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewMarkdownWriter(buf, 0, true)
	res := &pixscout.Result{Success: true, URL: "https://example.com", TextContent: extract.EmptyTextContent()}
	_ = w.Write(res)

	out := buf.String()
	if !strings.Contains(out, "# https://example.com\n") || !strings.Contains(out, "_No images found._") {
		t.Errorf("report:\n%s", out)
	}
}
