package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/pixscout/pkg/extract"
	"github.com/jmylchreest/pixscout/pkg/store"
)

// fakeSession wraps fakePage with the session lifecycle.
type fakeSession struct {
	*fakePage
	handler  ResponseHandler
	drained  bool
	closed   bool
	shotDirs []string
}

func (s *fakeSession) OnResponse(h ResponseHandler) { s.handler = h }

func (s *fakeSession) Drain(context.Context) error {
	s.drained = true
	return nil
}

func (s *fakeSession) Screenshot(dir string) string {
	s.shotDirs = append(s.shotDirs, dir)
	return dir + "/shot.png"
}

func (s *fakeSession) Close() { s.closed = true }

func newFakeRenderer(cfg Config, sess *fakeSession) (*Renderer, *SessionConfig) {
	r := New(cfg)
	var got SessionConfig
	r.start = func(_ context.Context, sc SessionConfig) (session, error) {
		got = sc
		return sess, nil
	}
	return r, &got
}

func defaultScan() scanResult {
	return scanResult{
		URLs: []string{"https://x.com/dom-a.jpg", "https://cdn.x.com/hero.webp", "https://x.com/dom-a.jpg"},
		Text: scanText{
			Title:      "  Gallery  ",
			Headings:   []extract.Heading{{Level: "h1", Text: "Gallery"}},
			Paragraphs: []string{"short", "  A paragraph long enough to keep.  "},
			Links:      []extract.Link{{Text: "Home", URL: "https://x.com/"}},
			FullText:   "Gallery\n\n   \nA paragraph long enough to keep.\n",
		},
	}
}

// --- Extract Tests ---

func TestExtract_MergesNetworkThenDOM(t *testing.T) {
	st := newTestStore(t)
	sess := &fakeSession{fakePage: &fakePage{
		heights: []int64{800},
		scan:    defaultScan(),
	}}
	r, sc := newFakeRenderer(Config{Store: st, Stealth: true}, sess)

	sess.onNavigate = func() {
		if sess.handler == nil {
			t.Error("handler not registered before navigation")
			return
		}
		captured := ResponseInfo{URL: "https://cdn.x.com/hero.webp", ContentType: "image/webp"}
		if sess.handler.Match(captured) {
			sess.handler.Handle(captured, []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), nil)
		}
		failed := ResponseInfo{URL: "https://cdn.x.com/gone.png", ContentType: "image/png"}
		sess.handler.Handle(failed, nil, errors.New("no body"))
	}

	res, err := r.Extract(context.Background(), "https://x.com/gallery", Options{Cookie: "sid=1"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if !sess.closed || !sess.drained {
		t.Errorf("closed = %v, drained = %v", sess.closed, sess.drained)
	}
	if len(sess.shotDirs) != 0 {
		t.Error("no screenshot expected on success")
	}

	if sc.Headers["Referer"] != "https://x.com/gallery" || sc.Headers["Cookie"] != "sid=1" {
		t.Errorf("session headers = %v", sc.Headers)
	}
	if !sc.Stealth || sc.UserAgent == "" {
		t.Errorf("session config = %+v", sc)
	}

	var urls []string
	for _, c := range res.Images {
		urls = append(urls, c.URL)
	}
	if len(urls) != 4 {
		t.Fatalf("images = %v, want 4", urls)
	}
	if !strings.HasPrefix(urls[0], store.DefaultURLPrefix+"/") || !strings.HasSuffix(urls[0], ".webp") {
		t.Errorf("first image should be the stored capture, got %q", urls[0])
	}
	if urls[1] != "https://cdn.x.com/gone.png" {
		t.Errorf("second image = %q", urls[1])
	}
	// The stored copy has a local URL, so the DOM's remote URL is kept.
	if urls[2] != "https://x.com/dom-a.jpg" || urls[3] != "https://cdn.x.com/hero.webp" {
		t.Errorf("DOM images = %v", urls[2:])
	}
	if res.Images[0].Source != extract.SourceRenderedNetwork || res.Images[2].Source != extract.SourceRenderedDOM {
		t.Errorf("sources = %s, %s", res.Images[0].Source, res.Images[2].Source)
	}

	if res.Captured != 1 || res.Remote != 1 || res.DOMCount != 3 {
		t.Errorf("stats = captured %d, remote %d, dom %d", res.Captured, res.Remote, res.DOMCount)
	}
	if res.Scrolls != 3 {
		t.Errorf("scrolls = %d, want 3", res.Scrolls)
	}

	text := res.Text
	if text.Title != "Gallery" {
		t.Errorf("title = %q", text.Title)
	}
	if len(text.Paragraphs) != 1 || text.Paragraphs[0] != "A paragraph long enough to keep." {
		t.Errorf("paragraphs = %q", text.Paragraphs)
	}
	if text.FullText != "Gallery\nA paragraph long enough to keep." {
		t.Errorf("fullText = %q", text.FullText)
	}
	if text.MainContentSummary != "A paragraph long enough to keep." {
		t.Errorf("summary = %q", text.MainContentSummary)
	}
	if text.Lists == nil {
		t.Error("lists should be empty, not nil")
	}
}

func TestExtract_DefaultsApplied(t *testing.T) {
	sess := &fakeSession{fakePage: &fakePage{heights: []int64{1}, scan: scanResult{}}}
	r, _ := newFakeRenderer(Config{}, sess)

	if _, err := r.Extract(context.Background(), "https://x.com", Options{}); err != nil {
		t.Fatal(err)
	}
	if len(sess.navCalls) == 0 || sess.navCalls[0] != WaitNetworkIdle {
		t.Errorf("navigations = %v", sess.navCalls)
	}
	for _, d := range sess.sleeps {
		if d != DefaultOptions().ScrollPause {
			t.Errorf("scroll pause = %v", d)
		}
	}
}

func TestExtract_ScanFailure(t *testing.T) {
	sess := &fakeSession{fakePage: &fakePage{
		heights: []int64{1},
		evalErr: map[string]error{scanScript: errors.New("execution context was destroyed")},
	}}
	r, _ := newFakeRenderer(Config{DebugDir: "/tmp/debug"}, sess)

	res, err := r.Extract(context.Background(), "https://x.com", Options{})
	if res != nil {
		t.Error("no partial result expected")
	}
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("err = %v, want ErrRenderFailed", err)
	}
	if !strings.HasPrefix(err.Error(), "rendering mode failed: ") {
		t.Errorf("message = %q", err.Error())
	}
	if !sess.closed {
		t.Error("session not closed")
	}
	if len(sess.shotDirs) != 1 || sess.shotDirs[0] != "/tmp/debug" {
		t.Errorf("screenshots = %v", sess.shotDirs)
	}
}

func TestExtract_ScrollFailure(t *testing.T) {
	sess := &fakeSession{fakePage: &fakePage{
		evalErr: map[string]error{scrollScript: errors.New("target closed")},
	}}
	r, _ := newFakeRenderer(Config{}, sess)

	_, err := r.Extract(context.Background(), "https://x.com", Options{})
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(sess.shotDirs) != 0 {
		t.Error("screenshot taken without a debug dir")
	}
}

func TestExtract_StartFailure(t *testing.T) {
	r := New(Config{})
	r.start = func(context.Context, SessionConfig) (session, error) {
		return nil, errors.New("exec: \"google-chrome\": executable file not found")
	}

	_, err := r.Extract(context.Background(), "https://x.com", Options{})
	if !errors.Is(err, ErrRenderFailed) || !strings.Contains(err.Error(), "executable file not found") {
		t.Errorf("err = %v", err)
	}
}

func TestExtract_InvalidOptions(t *testing.T) {
	started := false
	r := New(Config{})
	r.start = func(context.Context, SessionConfig) (session, error) {
		started = true
		return nil, errors.New("unreachable")
	}

	_, err := r.Extract(context.Background(), "https://x.com", Options{WaitUntil: "idle2"})
	if !errors.Is(err, ErrRenderFailed) {
		t.Errorf("err = %v", err)
	}
	if started {
		t.Error("browser started for invalid options")
	}
}

// --- Options Tests ---

func TestValidateOptions(t *testing.T) {
	r := New(Config{})

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"zero", Options{}, false},
		{"load", Options{WaitUntil: WaitLoad}, false},
		{"domcontentloaded", Options{WaitUntil: WaitDOMContentLoaded}, false},
		{"unknown wait", Options{WaitUntil: "commit"}, true},
		{"negative scrolls", Options{MaxScrolls: -1}, true},
		{"too many scrolls", Options{MaxScrolls: 501}, true},
		{"long pause", Options{ScrollPause: time.Minute}, true},
		{"long timeout", Options{Timeout: time.Hour}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateOptions(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{MaxScrolls: 5}.withDefaults()
	def := DefaultOptions()
	if got.MaxScrolls != 5 || got.ScrollPause != def.ScrollPause || got.Timeout != def.Timeout || got.WaitUntil != def.WaitUntil {
		t.Errorf("withDefaults() = %+v", got)
	}
}

// --- Browser Discovery Tests ---

func TestFindChromePath(t *testing.T) {
	if got := FindChromePath("/opt/chrome/chrome"); got != "/opt/chrome/chrome" {
		t.Errorf("explicit path = %q", got)
	}

	t.Setenv(ChromePathEnv, "/usr/local/bin/chromium-custom")
	if got := FindChromePath(""); got != "/usr/local/bin/chromium-custom" {
		t.Errorf("env path = %q", got)
	}
}
