package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/pixscout/internal/logger"
	"github.com/jmylchreest/pixscout/pkg/extract"
	"github.com/jmylchreest/pixscout/pkg/fetcher"
)

// ErrRenderFailed wraps every rendering failure.
var ErrRenderFailed = errors.New("rendering mode failed")

// Options controls a single rendered extraction. Zero fields take the
// values from DefaultOptions.
type Options struct {
	MaxScrolls  int           `validate:"gte=0,lte=500"`
	ScrollPause time.Duration `validate:"gte=0,lte=30s"`
	Timeout     time.Duration `validate:"gte=0,lte=10m"`
	WaitUntil   string        `validate:"omitempty,oneof=networkidle domcontentloaded load"`
	Cookie      string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxScrolls:  30,
		ScrollPause: 700 * time.Millisecond,
		Timeout:     45 * time.Second,
		WaitUntil:   WaitNetworkIdle,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxScrolls == 0 {
		o.MaxScrolls = def.MaxScrolls
	}
	if o.ScrollPause == 0 {
		o.ScrollPause = def.ScrollPause
	}
	if o.Timeout == 0 {
		o.Timeout = def.Timeout
	}
	if o.WaitUntil == "" {
		o.WaitUntil = def.WaitUntil
	}
	return o
}

// Config configures a Renderer.
type Config struct {
	Store      AssetStore // Captured bytes; nil keeps remote URLs
	ChromePath string
	UserAgent  string
	Stealth    bool
	CDNHints   []string
	DebugDir   string // Screenshot destination on failure
}

// Result is a rendered extraction with session statistics.
type Result struct {
	*extract.Extraction
	Captured int // Saved to the store
	Remote   int // Recorded by remote URL
	DOMCount int // URLs returned by the DOM scan
	Scrolls  int
	Clicks   int
}

// Renderer runs rendered extractions, one browser per call.
type Renderer struct {
	config   Config
	validate *validator.Validate
	start    func(ctx context.Context, cfg SessionConfig) (session, error)
}

// session is what Extract needs from a browser session.
type session interface {
	pageDriver
	OnResponse(h ResponseHandler)
	Drain(ctx context.Context) error
	Screenshot(dir string) string
	Close()
}

// New creates a Renderer.
func New(cfg Config) *Renderer {
	if cfg.UserAgent == "" {
		cfg.UserAgent = fetcher.MacChromeUserAgent
	}
	return &Renderer{
		config:   cfg,
		validate: validator.New(),
		start: func(ctx context.Context, sc SessionConfig) (session, error) {
			return NewSession(ctx, sc)
		},
	}
}

// ValidateOptions reports whether opts are acceptable after defaults are
// applied.
func (r *Renderer) ValidateOptions(opts Options) error {
	return r.validate.Struct(opts.withDefaults())
}

type scanResult struct {
	URLs []string `json:"urls"`
	Text scanText `json:"text"`
}

type scanText struct {
	Title      string            `json:"title"`
	Headings   []extract.Heading `json:"headings"`
	Paragraphs []string          `json:"paragraphs"`
	Lists      []extract.List    `json:"lists"`
	Links      []extract.Link    `json:"links"`
	FullText   string            `json:"fullText"`
}

// textContent applies the shared normalisation to the scanned text.
func (t scanText) textContent() extract.TextContent {
	tc := extract.EmptyTextContent()
	tc.Title = strings.TrimSpace(t.Title)
	tc.Headings = append(tc.Headings, t.Headings...)
	for _, p := range t.Paragraphs {
		if p = strings.TrimSpace(p); extract.KeepParagraph(p) {
			tc.Paragraphs = append(tc.Paragraphs, p)
		}
	}
	tc.Lists = append(tc.Lists, t.Lists...)
	tc.Links = append(tc.Links, t.Links...)
	tc.FullText = extract.NormalizeText(t.FullText)
	tc.MainContentSummary = extract.Summarize(tc.Paragraphs, tc.FullText)
	return tc
}

// Extract renders targetURL and returns every image it saw together with
// the page text. Any failure is reported as ErrRenderFailed and no partial
// result is returned.
func (r *Renderer) Extract(ctx context.Context, targetURL string, opts Options) (res *Result, err error) {
	opts = opts.withDefaults()
	if err := r.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: invalid options: %v", ErrRenderFailed, err)
	}

	logger.Info("rendered extraction starting",
		"url", targetURL,
		"wait_until", opts.WaitUntil,
		"max_scrolls", opts.MaxScrolls,
		"timeout", opts.Timeout)

	sess, err := r.start(ctx, SessionConfig{
		ChromePath: r.config.ChromePath,
		UserAgent:  r.config.UserAgent,
		Stealth:    r.config.Stealth,
		Headers: map[string]string{
			"Accept-Language": fetcher.DefaultAcceptLanguage,
			"Referer":         targetURL,
			"Cookie":          opts.Cookie,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	defer sess.Close()

	defer func() {
		if err != nil && r.config.DebugDir != "" {
			sess.Screenshot(r.config.DebugDir)
		}
	}()

	set := extract.NewCandidateSet()
	capt := NewCapturer(r.config.Store, set, r.config.CDNHints)
	sess.OnResponse(capt)

	navigate(ctx, sess, targetURL, opts.WaitUntil, opts.Timeout)
	clicks := revealMore(ctx, sess)

	scrolls, err := autoScroll(ctx, sess, opts.MaxScrolls, opts.ScrollPause)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	nudgeLazy(ctx, sess)

	var scan scanResult
	if err = sess.Eval(ctx, scanScript, &scan); err != nil {
		return nil, fmt.Errorf("%w: dom scan: %v", ErrRenderFailed, err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if derr := sess.Drain(drainCtx); derr != nil {
		logger.Warn("pending captures abandoned", "error", derr)
	}
	cancel()
	if err = ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	for _, u := range scan.URLs {
		set.Add(extract.Candidate{
			URL:            u,
			AltText:        "rendered DOM image",
			OriginalSource: u,
			Source:         extract.SourceRenderedDOM,
		})
	}

	res = &Result{
		Extraction: &extract.Extraction{Images: set.Items(), Text: scan.Text.textContent()},
		Captured:   capt.Saved(),
		Remote:     capt.Remote(),
		DOMCount:   len(scan.URLs),
		Scrolls:    scrolls,
		Clicks:     clicks,
	}

	logger.Info("rendered extraction complete",
		"url", targetURL,
		"images", len(res.Images),
		"captured", res.Captured,
		"dom_urls", res.DOMCount,
		"scrolls", scrolls)
	return res, nil
}
