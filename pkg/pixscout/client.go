package pixscout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmylchreest/pixscout/internal/logger"
	"github.com/jmylchreest/pixscout/pkg/extract"
	"github.com/jmylchreest/pixscout/pkg/fetcher"
	"github.com/jmylchreest/pixscout/pkg/imagecheck"
	"github.com/jmylchreest/pixscout/pkg/render"
	"github.com/jmylchreest/pixscout/pkg/store"
)

// ErrInvalidURL is returned for URLs that cannot be normalised.
var ErrInvalidURL = errors.New("invalid URL")

// Re-exported for callers that only import this package.
var (
	ErrBlocked      = fetcher.ErrBlocked
	ErrRenderFailed = render.ErrRenderFailed
)

// Request controls a static extraction.
type Request struct {
	Cookie string
	Debug  bool
}

// RenderRequest controls a rendered extraction. Zero values take the
// renderer defaults.
type RenderRequest struct {
	Cookie      string
	MaxScrolls  int
	ScrollPause time.Duration
	Timeout     time.Duration
	WaitUntil   string
	Debug       bool
}

// Client runs extractions. It is safe for concurrent use.
type Client struct {
	config   Config
	fetcher  fetcher.Fetcher
	static   *extract.StaticExtractor
	checker  *imagecheck.Checker
	renderer *render.Renderer
	store    *store.Store
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{config: cfg}

	if cfg.StoreDir != "" {
		st, err := store.New(cfg.StoreDir, cfg.StoreURLPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open content store: %w", err)
		}
		c.store = st
	}

	if cfg.Fetcher != nil {
		c.fetcher = cfg.Fetcher
	} else {
		c.fetcher = fetcher.NewHTTP(fetcher.HTTPConfig{
			Profiles: cfg.Profiles,
			Timeout:  cfg.Timeout,
		})
	}

	sheets := cfg.Stylesheets
	if sheets == nil {
		sheets = extract.NewCollyStylesheetFetcher(fetcher.MacChromeUserAgent)
	}
	c.static = extract.NewStatic(extract.StaticConfig{
		Stylesheets:         sheets,
		LegacyStylePatterns: cfg.LegacyStylePatterns,
	})

	checkCfg := imagecheck.Config{
		MaxImageBytes: cfg.MaxImageBytes,
		ProbeRate:     cfg.ProbeRate,
		Concurrency:   cfg.Concurrency,
	}
	renderCfg := render.Config{
		ChromePath: cfg.ChromePath,
		Stealth:    cfg.Stealth,
		CDNHints:   cfg.CDNHints,
		DebugDir:   cfg.DebugDir,
	}
	if c.store != nil {
		checkCfg.Local = c.store
		renderCfg.Store = c.store
	}
	c.checker = imagecheck.New(checkCfg)
	c.renderer = render.New(renderCfg)

	return c, nil
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	return c.fetcher.Close()
}

// Store returns the content store, or nil when none is configured.
func (c *Client) Store() *store.Store {
	return c.store
}

// NormalizeURL trims raw and adds https:// when it has no http(s) scheme.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidURL, raw)
	}
	return raw, nil
}

// Extract fetches rawURL and mines the returned HTML. A direct image link
// yields that image as the only result.
func (c *Client) Extract(ctx context.Context, rawURL string, req Request) *Result {
	pageURL, err := NormalizeURL(rawURL)
	if err != nil {
		return failed(err)
	}

	start := time.Now()
	resp, err := c.fetcher.Fetch(ctx, pageURL, fetcher.Options{Cookie: req.Cookie})
	if err != nil {
		logger.Warn("page fetch failed", "url", pageURL, "error", err)
		return failed(err)
	}

	if resp.IsDirectImage {
		return c.directImage(pageURL, resp, req)
	}

	ext, err := c.static.Extract(ctx, resp.Text, resp.URL, extract.Options{Cookie: req.Cookie})
	if err != nil {
		return failed(fmt.Errorf("failed to parse page: %w", err))
	}

	images := c.checker.Enrich(ctx, ext.Images, imagecheck.Request{Referer: pageURL, Cookie: req.Cookie})
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	res := &Result{
		Success:     true,
		Mode:        ModeStatic,
		URL:         pageURL,
		TotalFound:  len(ext.Images),
		ValidImages: len(images),
		Images:      images,
		TextContent: ext.Text,
	}
	if req.Debug {
		res.Debug = staticDebug(resp)
	}

	logger.Info("static extraction complete",
		"url", pageURL,
		"found", res.TotalFound,
		"valid", res.ValidImages,
		"duration", time.Since(start))
	return res
}

func (c *Client) directImage(pageURL string, resp *fetcher.Response, req Request) *Result {
	cand := extract.Candidate{
		URL:            pageURL,
		AltText:        "direct image link",
		OriginalSource: pageURL,
		Source:         extract.SourceDirectLink,
		IsDirectImage:  true,
	}
	info := imagecheck.InspectBytes(resp.Body, resp.ContentType)
	logger.Debug("direct image link", "url", pageURL, "format", info.Format, "bytes", info.ByteSize)

	res := &Result{
		Success:     true,
		Mode:        ModeStatic,
		URL:         pageURL,
		TotalFound:  1,
		ValidImages: 1,
		Images:      []imagecheck.ValidatedImage{{Candidate: cand, Info: info}},
		TextContent: extract.EmptyTextContent(),
	}
	if req.Debug {
		res.Debug = &Debug{
			StatusCode:    resp.StatusCode,
			ContentLength: len(resp.Body),
			Profile:       resp.Profile,
			Attempts:      resp.Attempts,
		}
	}
	return res
}

func staticDebug(resp *fetcher.Response) *Debug {
	d := &Debug{
		StatusCode:      resp.StatusCode,
		ContentLength:   len(resp.Body),
		Encoding:        resp.Charset,
		DetectedCharset: resp.DetectCharset(),
		Profile:         resp.Profile,
		Attempts:        resp.Attempts,
		SampleHTML:      sampleHTML(resp.Text),
	}
	stats, err := extract.DocumentStats(resp.Text)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.Title = stats.Title
	if d.Title == "" {
		d.Title = "No title"
	}
	d.ImgTagCount = stats.ImgTags
	d.HasScripts = stats.HasScripts
	return d
}

// ExtractRendered loads rawURL in a headless browser, captures the images
// it downloads and scans the final DOM.
func (c *Client) ExtractRendered(ctx context.Context, rawURL string, req RenderRequest) *Result {
	pageURL, err := NormalizeURL(rawURL)
	if err != nil {
		return failed(err)
	}

	rendered, err := c.renderer.Extract(ctx, pageURL, render.Options{
		MaxScrolls:  req.MaxScrolls,
		ScrollPause: req.ScrollPause,
		Timeout:     req.Timeout,
		WaitUntil:   req.WaitUntil,
		Cookie:      req.Cookie,
	})
	if err != nil {
		logger.Warn("rendered extraction failed", "url", pageURL, "error", err)
		return failed(err)
	}

	images := c.checker.Enrich(ctx, rendered.Images, imagecheck.Request{Referer: pageURL, Cookie: req.Cookie})
	if err := ctx.Err(); err != nil {
		return failed(fmt.Errorf("%w: %v", render.ErrRenderFailed, err))
	}

	res := &Result{
		Success:     true,
		Mode:        ModeRendered,
		URL:         pageURL,
		TotalFound:  len(rendered.Images),
		ValidImages: len(images),
		Images:      images,
		TextContent: rendered.Text,
	}
	if req.Debug {
		sample := make([]string, 0, urlSampleSize)
		for _, img := range rendered.Images[:min(len(rendered.Images), urlSampleSize)] {
			sample = append(sample, img.URL)
		}
		res.Debug = &Debug{
			CollectedURLsSample: sample,
			DOMCount:            rendered.DOMCount,
			Captured:            rendered.Captured,
			Remote:              rendered.Remote,
			Scrolls:             rendered.Scrolls,
			Clicks:              rendered.Clicks,
		}
	}
	return res
}

// ValidateRenderRequest checks req without starting a browser.
func (c *Client) ValidateRenderRequest(req RenderRequest) error {
	return c.renderer.ValidateOptions(render.Options{
		MaxScrolls:  req.MaxScrolls,
		ScrollPause: req.ScrollPause,
		Timeout:     req.Timeout,
		WaitUntil:   req.WaitUntil,
	})
}
