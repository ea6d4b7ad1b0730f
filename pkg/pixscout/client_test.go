package pixscout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jmylchreest/pixscout/pkg/extract"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const galleryHTML = `<!DOCTYPE html>
<html><head><title>Gallery</title></head>
<body>
  <article>
    <h1>Holiday photos</h1>
    <p>These are the photos from our trip to the coast.</p>
    <img src="/img/beach.png" alt="Beach" width="3" height="2">
    <img src="/img/missing.png" alt="Gone">
  </article>
</body></html>`

type testSite struct {
	*httptest.Server

	mu       sync.Mutex
	referers []string
	cookies  []string
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	img := pngBytes(t, 3, 2)
	site := &testSite{}

	mux := http.NewServeMux()
	mux.HandleFunc("/gallery", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(galleryHTML))
	})
	mux.HandleFunc("/img/beach.png", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.referers = append(site.referers, r.Header.Get("Referer"))
		site.cookies = append(site.cookies, r.Header.Get("Cookie"))
		site.mu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	})
	mux.HandleFunc("/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(append([]Option{WithStoreDir(t.TempDir())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// --- URL Normalisation Tests ---

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"example.com", "https://example.com", false},
		{"  example.com/a?b=1  ", "https://example.com/a?b=1", false},
		{"http://example.com", "http://example.com", false},
		{"HTTPS://Example.com/x", "HTTPS://Example.com/x", false},
		{"", "", true},
		{"   ", "", true},
		{"https://", "", true},
		{"exa mple.com/%zz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("error %v is not ErrInvalidURL", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// --- Static Extraction Tests ---

func TestExtract_StaticPage(t *testing.T) {
	site := newTestSite(t)
	c := newTestClient(t)
	pageURL := site.URL + "/gallery"

	res := c.Extract(context.Background(), pageURL, Request{Cookie: "session=abc"})
	if res.Failed() {
		t.Fatalf("Extract() failed: %v", res.Err)
	}

	if !res.Success || res.Mode != ModeStatic || res.URL != pageURL {
		t.Errorf("result header = %+v", res)
	}
	if res.TotalFound != 2 || res.ValidImages != 1 {
		t.Fatalf("found %d, valid %d, want 2 and 1", res.TotalFound, res.ValidImages)
	}

	img := res.Images[0]
	if img.URL != site.URL+"/img/beach.png" || img.AltText != "Beach" || img.Source != extract.SourceTag {
		t.Errorf("image = %+v", img.Candidate)
	}
	if !img.Valid || img.Info.Width != 3 || img.Info.Height != 2 || img.Format != "PNG" {
		t.Errorf("info = %+v", img.Info)
	}

	if res.TextContent.Title != "Gallery" {
		t.Errorf("title = %q", res.TextContent.Title)
	}
	if len(res.TextContent.Paragraphs) != 1 {
		t.Errorf("paragraphs = %q", res.TextContent.Paragraphs)
	}
	if res.Debug != nil {
		t.Error("debug info without Request.Debug")
	}

	site.mu.Lock()
	defer site.mu.Unlock()
	if len(site.referers) == 0 {
		t.Fatal("image was never requested")
	}
	for i := range site.referers {
		if site.referers[i] != pageURL || site.cookies[i] != "session=abc" {
			t.Errorf("image request %d: referer %q, cookie %q", i, site.referers[i], site.cookies[i])
		}
	}
}

func TestExtract_Debug(t *testing.T) {
	site := newTestSite(t)
	c := newTestClient(t)

	res := c.Extract(context.Background(), site.URL+"/gallery", Request{Debug: true})
	if res.Failed() {
		t.Fatal(res.Err)
	}
	d := res.Debug
	if d == nil {
		t.Fatal("missing debug info")
	}
	if d.StatusCode != http.StatusOK || d.ContentLength != len(galleryHTML) {
		t.Errorf("status %d, length %d", d.StatusCode, d.ContentLength)
	}
	if d.Encoding != "utf-8" || d.Title != "Gallery" || d.ImgTagCount != 2 || d.HasScripts {
		t.Errorf("debug = %+v", d)
	}
	if d.Profile != "baseline" || d.Attempts != 1 {
		t.Errorf("profile %q after %d attempts", d.Profile, d.Attempts)
	}
	if d.SampleHTML != galleryHTML {
		t.Error("short pages are sampled whole")
	}
}

func TestExtract_DirectImage(t *testing.T) {
	site := newTestSite(t)
	c := newTestClient(t)
	imgURL := site.URL + "/photo.png"

	res := c.Extract(context.Background(), imgURL, Request{})
	if res.Failed() {
		t.Fatal(res.Err)
	}
	if res.TotalFound != 1 || res.ValidImages != 1 || len(res.Images) != 1 {
		t.Fatalf("result = %+v", res)
	}
	img := res.Images[0]
	if !img.IsDirectImage || img.URL != imgURL || img.Source != extract.SourceDirectLink {
		t.Errorf("candidate = %+v", img.Candidate)
	}
	if img.Info.Width != 3 || img.Info.Height != 2 || img.Format != "PNG" || img.ContentType != "image/png" {
		t.Errorf("info = %+v", img.Info)
	}
	if res.TextContent.Paragraphs == nil || len(res.TextContent.Paragraphs) != 0 {
		t.Errorf("text = %+v", res.TextContent)
	}
}

func TestExtract_Blocked(t *testing.T) {
	site := newTestSite(t)
	c := newTestClient(t)

	res := c.Extract(context.Background(), site.URL+"/blocked", Request{})
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked", res.Err)
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatal(err)
	}
	if len(body) != 1 {
		t.Errorf("failure JSON has extra keys: %s", b)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "403") || !strings.Contains(msg, "direct image link") {
		t.Errorf("error message lacks guidance: %q", msg)
	}
}

func TestExtract_InvalidURL(t *testing.T) {
	c := newTestClient(t)
	res := c.Extract(context.Background(), " ", Request{})
	if !errors.Is(res.Err, ErrInvalidURL) {
		t.Errorf("err = %v", res.Err)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	site := newTestSite(t)
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Extract(ctx, site.URL+"/gallery", Request{})
	if !res.Failed() {
		t.Error("cancelled extraction should fail")
	}
}

func TestResult_SuccessJSON(t *testing.T) {
	site := newTestSite(t)
	c := newTestClient(t)

	res := c.Extract(context.Background(), site.URL+"/gallery", Request{})
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}

	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"success", "url", "totalFound", "validImages", "images", "textContent"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing key %q in %s", key, b)
		}
	}
	if _, ok := body["error"]; ok {
		t.Error("success JSON has an error key")
	}

	images := body["images"].([]any)
	first := images[0].(map[string]any)
	if first["discoverySource"] != "tag" || first["attrWidth"] != "3" || first["width"] != float64(3) {
		t.Errorf("image JSON = %v", first)
	}
}

// --- Rendering Tests ---

func TestExtractRendered_InvalidOptions(t *testing.T) {
	c := newTestClient(t, WithChromePath("/nonexistent/chrome"))

	res := c.ExtractRendered(context.Background(), "example.com", RenderRequest{WaitUntil: "whenever"})
	if !errors.Is(res.Err, ErrRenderFailed) {
		t.Fatalf("err = %v, want ErrRenderFailed", res.Err)
	}
	if !strings.HasPrefix(res.Err.Error(), "rendering mode failed: ") {
		t.Errorf("message = %q", res.Err.Error())
	}
}

func TestValidateRenderRequest(t *testing.T) {
	c := newTestClient(t)
	if err := c.ValidateRenderRequest(RenderRequest{}); err != nil {
		t.Errorf("zero request rejected: %v", err)
	}
	if err := c.ValidateRenderRequest(RenderRequest{MaxScrolls: -3}); err == nil {
		t.Error("negative scrolls accepted")
	}
}

// --- Option Tests ---

func TestNew_Options(t *testing.T) {
	dir := t.TempDir()
	c, err := New(
		WithStoreDir(dir),
		WithStoreURLPrefix("/assets"),
		WithConcurrency(2),
		WithProbeRate(5),
		WithMaxImageBytes(1<<20),
		WithStealth(false),
		WithLegacyStylePatterns(true),
		WithCDNHints("cdn.example"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if c.Store() == nil || c.Store().Dir() != dir {
		t.Errorf("store = %v", c.Store())
	}
	cfg := c.config
	if cfg.StoreURLPrefix != "/assets" || cfg.Concurrency != 2 || cfg.ProbeRate != 5 ||
		cfg.MaxImageBytes != 1<<20 || cfg.Stealth || !cfg.LegacyStylePatterns || cfg.CDNHints[0] != "cdn.example" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestNew_WithoutStore(t *testing.T) {
	c, err := New(WithStoreDir(""))
	if err != nil {
		t.Fatal(err)
	}
	if c.Store() != nil {
		t.Error("store created without a directory")
	}
}
