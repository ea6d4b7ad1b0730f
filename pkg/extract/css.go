package extract

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// Background patterns applied to <style> blocks. The capture class stops at
// a closing parenthesis so that unquoted url() values do not swallow the
// rest of the rule.
var styleBackgroundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)background-image:\s*url\(["']?([^"')]+)["']?\)`),
	regexp.MustCompile(`(?i)background:\s*url\(["']?([^"')]+)["']?\)`),
	regexp.MustCompile(`(?i)background:\s*[^;]*url\(["']?([^"')]+)["']?\)`),
}

var (
	styleAttrPattern = styleBackgroundPatterns[0]
	cssURLPattern    = regexp.MustCompile(`(?i)url\(\s*["']?([^"')]+)["']?\s*\)`)
)

// styleBlockURLs returns background image references in a <style> block.
// In legacy mode only the last pattern's matches are kept, which mirrors
// the historical behaviour of overwriting results on each pattern.
func styleBlockURLs(css string, legacy bool) []string {
	var out []string
	for _, re := range styleBackgroundPatterns {
		matches := submatches(re, css)
		if legacy {
			out = matches
			continue
		}
		out = append(out, matches...)
	}
	return out
}

// stylesheetURLs returns every non-data url() reference in CSS text.
func stylesheetURLs(css string) []string {
	var out []string
	for _, m := range submatches(cssURLPattern, css) {
		if strings.HasPrefix(strings.ToLower(m), "data:") {
			continue
		}
		out = append(out, m)
	}
	return out
}

func submatches(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// StylesheetFetcher retrieves external CSS referenced by a page.
type StylesheetFetcher interface {
	FetchStylesheet(ctx context.Context, cssURL string, headers map[string]string) (string, error)
}

// CollyStylesheetFetcher fetches stylesheets with a short-lived colly
// collector per request.
type CollyStylesheetFetcher struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// NewCollyStylesheetFetcher returns a fetcher with an 8 second timeout.
func NewCollyStylesheetFetcher(userAgent string) *CollyStylesheetFetcher {
	return &CollyStylesheetFetcher{
		UserAgent:   userAgent,
		Timeout:     8 * time.Second,
		MaxBodySize: 4 << 20,
	}
}

// FetchStylesheet returns the CSS body. Non-2xx responses and empty
// bodies are errors.
func (f *CollyStylesheetFetcher) FetchStylesheet(ctx context.Context, cssURL string, headers map[string]string) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(f.MaxBodySize),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.Timeout)

	var body string
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
		logger.Debug("stylesheet fetched", "url", cssURL, "status", r.StatusCode, "size", len(r.Body))
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("stylesheet %s (status %d): %w", cssURL, status, err)
	})

	hdr := http.Header{}
	for k, v := range headers {
		hdr.Set(k, v)
	}

	if err := c.Request(http.MethodGet, cssURL, nil, nil, hdr); err != nil {
		return "", fmt.Errorf("failed to request stylesheet: %w", err)
	}
	if fetchErr != nil {
		return "", fetchErr
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("stylesheet %s is empty", cssURL)
	}
	return body, nil
}
