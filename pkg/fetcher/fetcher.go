// Package fetcher retrieves web pages for extraction.
// The HTTP fetcher rotates through browser-like header profiles so that
// sites with basic anti-bot checks still serve their HTML.
package fetcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/saintfish/chardet"
)

// Fetcher abstracts page fetching strategies.
type Fetcher interface {
	// Fetch retrieves a resource, trying each configured profile in turn.
	Fetch(ctx context.Context, url string, opts Options) (*Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns a string identifying the fetcher type.
	Type() string
}

// Options controls a single fetch.
type Options struct {
	Cookie  string            // Raw Cookie header forwarded on every attempt
	Headers map[string]string // Extra headers applied on top of the profile
}

// Response is the outcome of a successful fetch.
type Response struct {
	URL           string
	StatusCode    int
	ContentType   string
	Charset       string // Declared charset, empty if none
	Body          []byte // Decompressed raw bytes
	Text          string // Body decoded to UTF-8
	IsDirectImage bool
	Profile       string // Name of the profile that succeeded
	Attempts      int
	FetchedAt     time.Time
}

// DetectCharset guesses the body charset from its bytes. It is only used
// for diagnostics; decoding relies on the declared charset.
func (r *Response) DetectCharset() string {
	if len(r.Body) == 0 {
		return ""
	}
	res, err := chardet.NewHtmlDetector().DetectBest(r.Body)
	if err != nil {
		return ""
	}
	return strings.ToLower(res.Charset)
}

// ErrBlocked indicates every header profile was rejected with HTTP 403.
// Check with errors.Is(err, fetcher.ErrBlocked).
var ErrBlocked = errors.New("access denied (403 Forbidden)")

// BlockedGuidance is appended to ErrBlocked to tell the user what to try.
const BlockedGuidance = "the site is blocking automated access. Try:\n" +
	"1. using a direct image link instead of the page URL\n" +
	"2. trying a different site\n" +
	"3. retrying later"
