package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// StaticConfig configures the static extractor.
type StaticConfig struct {
	// Stylesheets fetches external CSS. Nil disables that source.
	Stylesheets StylesheetFetcher

	// LegacyStylePatterns keeps only the last background pattern's matches
	// for <style> blocks instead of the union of all three.
	LegacyStylePatterns bool
}

// StaticExtractor mines an already-fetched HTML document.
type StaticExtractor struct {
	config  StaticConfig
	sources []source
}

// NewStatic creates a static extractor.
func NewStatic(cfg StaticConfig) *StaticExtractor {
	return &StaticExtractor{
		config: cfg,
		sources: []source{
			{"img", collectImgTags},
			{"style", collectStyleBlocks(cfg.LegacyStylePatterns)},
			{"stylesheet", collectStylesheets(cfg.Stylesheets)},
			{"style-attr", collectStyleAttrs},
			{"picture", collectPictureSources},
			{"meta", collectMetaImages},
			{"noscript", collectNoscript},
			{"video", collectVideoPosters},
			{"script", collectScriptURLs},
			{"json", collectJSONScripts},
		},
	}
}

// Options controls a single extraction.
type Options struct {
	Cookie string // Forwarded to stylesheet requests
}

// Extract parses html and returns the deduplicated image candidates and
// the page's text content. Only an unparsable document or base URL is an
// error; individual sources fail silently.
func (e *StaticExtractor) Extract(ctx context.Context, html, baseURL string, opts Options) (*Extraction, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	p := &page{ctx: ctx, doc: doc, base: base, baseURL: baseURL, cookie: opts.Cookie}

	text := extractText(doc, base)

	set := NewCandidateSet()
	for _, src := range e.sources {
		found := src.run(p)
		added := set.AddAll(found)
		logger.Debug("image source scanned", "source", src.name, "found", len(found), "new", added)
	}

	logger.Debug("static extraction complete",
		"url", baseURL,
		"images", set.Len(),
		"paragraphs", len(text.Paragraphs),
		"headings", len(text.Headings))

	return &Extraction{Images: set.Items(), Text: text}, nil
}

// run invokes the collector, turning a panic in a heuristic into an empty
// result for that source.
func (s source) run(p *page) (out []Candidate) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("image source failed", "source", s.name, "panic", r)
			out = nil
		}
	}()
	return s.collect(p)
}

// Stats summarises a document for diagnostics.
type Stats struct {
	Title      string `json:"title" yaml:"title"`
	ImgTags    int    `json:"imgTagCount" yaml:"imgTagCount"`
	HasScripts bool   `json:"hasScripts" yaml:"hasScripts"`
}

// DocumentStats parses html and reports a few structural counts.
func DocumentStats(html string) (Stats, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		ImgTags:    doc.Find("img").Length(),
		HasScripts: doc.Find("script").Length() > 0,
	}, nil
}
