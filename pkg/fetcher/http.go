package fetcher

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// HTTPConfig holds configuration for the HTTP fetcher.
type HTTPConfig struct {
	Profiles     []Profile     // Tried in order until one returns 2xx
	Timeout      time.Duration // Per attempt
	MaxRedirects int
	MaxBodyBytes int // 0 means unlimited
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Profiles:     DefaultProfiles(),
		Timeout:      10 * time.Second,
		MaxRedirects: 10,
		MaxBodyBytes: 32 << 20,
	}
}

// HTTPFetcher fetches pages with resty, rotating header profiles on
// failure. It implements the Fetcher interface.
type HTTPFetcher struct {
	config HTTPConfig
	client *resty.Client
}

// NewHTTP creates a new HTTP fetcher.
func NewHTTP(cfg HTTPConfig) *HTTPFetcher {
	def := DefaultHTTPConfig()
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = def.Profiles
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects)).
		SetLogger(logger.Printf{Component: "resty"})
	if cfg.MaxBodyBytes > 0 {
		client.SetResponseBodyLimit(cfg.MaxBodyBytes)
	}

	return &HTTPFetcher{config: cfg, client: client}
}

// Fetch retrieves targetURL. Each profile gets one attempt; a 403 on the
// final attempt yields ErrBlocked, any other final failure is returned as is.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string, opts Options) (*Response, error) {
	logger.Debug("http fetch starting", "url", targetURL, "profiles", len(f.config.Profiles))

	var lastErr error
	for i, profile := range f.config.Profiles {
		attempt := i + 1

		req := f.client.R().
			SetContext(ctx).
			SetHeaders(profile.Headers)
		if len(opts.Headers) > 0 {
			req.SetHeaders(opts.Headers)
		}
		if opts.Cookie != "" {
			req.SetHeader("Cookie", opts.Cookie)
		}

		resp, err := req.Get(targetURL)
		if err != nil {
			logger.Debug("http fetch attempt failed",
				"url", targetURL,
				"attempt", attempt,
				"profile", profile.Name,
				"error", err)
			lastErr = fmt.Errorf("failed to fetch %s: %w", targetURL, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		logger.Debug("http fetch response received",
			"url", targetURL,
			"attempt", attempt,
			"profile", profile.Name,
			"status", status,
			"body_size", len(resp.Body()))

		switch {
		case status == http.StatusForbidden:
			lastErr = fmt.Errorf("%w: %s", ErrBlocked, BlockedGuidance)
			continue
		case status < 200 || status > 299:
			lastErr = fmt.Errorf("failed to fetch %s: unexpected status %d", targetURL, status)
			continue
		}

		return f.buildResponse(targetURL, resp, profile.Name, attempt)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("failed to fetch %s: no header profiles configured", targetURL)
	}
	logger.Debug("http fetch exhausted profiles", "url", targetURL, "error", lastErr)
	return nil, lastErr
}

func (f *HTTPFetcher) buildResponse(targetURL string, resp *resty.Response, profile string, attempts int) (*Response, error) {
	body, err := decompress(resp.Body(), resp.Header().Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", targetURL, err)
	}

	contentType := resp.Header().Get("Content-Type")
	result := &Response{
		URL:           targetURL,
		StatusCode:    resp.StatusCode(),
		ContentType:   contentType,
		Body:          body,
		IsDirectImage: strings.Contains(strings.ToLower(contentType), "image"),
		Profile:       profile,
		Attempts:      attempts,
		FetchedAt:     time.Now(),
	}

	if !result.IsDirectImage {
		result.Text, result.Charset = DecodeText(body, contentType)
	}

	logger.Debug("http fetch complete",
		"url", targetURL,
		"content_type", contentType,
		"direct_image", result.IsDirectImage,
		"charset", result.Charset)
	return result, nil
}

// DecodeText converts body to UTF-8 using the charset declared in
// contentType. Unknown or missing charsets fall back to UTF-8 with invalid
// sequences replaced, so decoding never fails.
func DecodeText(body []byte, contentType string) (text, declared string) {
	declared = declaredCharset(contentType)
	if declared != "" {
		if enc, name := charset.Lookup(declared); enc != nil {
			if out, err := enc.NewDecoder().Bytes(body); err == nil {
				return strings.ToValidUTF8(string(out), "\uFFFD"), name
			}
			logger.Debug("charset decode failed, falling back to utf-8", "charset", declared)
		}
	}
	return strings.ToValidUTF8(string(body), "\uFFFD"), declared
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

// decompress handles encodings resty leaves alone. gzip is already
// decoded by resty.
func decompress(body []byte, encoding string) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		r = zr
	default:
		return body, nil
	}
	return io.ReadAll(r)
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	return nil
}

// Type returns the fetcher type.
func (f *HTTPFetcher) Type() string {
	return "http"
}
