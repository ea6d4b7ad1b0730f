// Package imagecheck validates image candidates and inspects the images
// behind them.
package imagecheck

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/pixscout/internal/logger"
	"github.com/jmylchreest/pixscout/pkg/fetcher"
)

// FormatUnknown is reported when the image bytes could not be decoded.
const FormatUnknown = "unknown"

// sniffLength is how many leading bytes are read for signature checks.
const sniffLength = 512

// imageAccept is sent on every probe in place of the page Accept header.
const imageAccept = "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"

// LocalResolver maps a served URL to a file on disk. The content store
// implements it so captured assets can be checked without a request.
type LocalResolver interface {
	Lookup(url string) (string, bool)
}

// Config holds configuration for a Checker.
type Config struct {
	ValidateTimeout time.Duration     // HEAD and probe GET
	InspectTimeout  time.Duration     // Full GET
	MaxImageBytes   int64             // Upper bound read when inspecting
	ProbeRate       float64           // Requests per second, 0 for unlimited
	Concurrency     int               // Workers used by Enrich
	Headers         map[string]string // Base headers for every request
	Local           LocalResolver     // Optional
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ValidateTimeout: 8 * time.Second,
		InspectTimeout:  10 * time.Second,
		MaxImageBytes:   32 << 20,
		Concurrency:     4,
		Headers:         probeHeaders(),
	}
}

// probeHeaders derives image request headers from the baseline fetch
// profile. Accept-Encoding is left to the transport so streamed bodies
// arrive decoded.
func probeHeaders() map[string]string {
	h := maps.Clone(fetcher.BaselineProfile().Headers)
	delete(h, "Accept-Encoding")
	delete(h, "Upgrade-Insecure-Requests")
	h["Accept"] = imageAccept
	h["Sec-Fetch-Dest"] = "image"
	h["Sec-Fetch-Mode"] = "no-cors"
	return h
}

// Request carries per-page context forwarded to image hosts.
type Request struct {
	Referer string
	Cookie  string
}

// Checker validates and inspects image URLs. It is safe for concurrent use.
type Checker struct {
	config   Config
	validate *resty.Client
	inspect  *resty.Client
	limiter  *rate.Limiter
}

// New creates a Checker, filling zero fields from DefaultConfig.
func New(cfg Config) *Checker {
	def := DefaultConfig()
	if cfg.ValidateTimeout == 0 {
		cfg.ValidateTimeout = def.ValidateTimeout
	}
	if cfg.InspectTimeout == 0 {
		cfg.InspectTimeout = def.InspectTimeout
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = def.MaxImageBytes
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Headers == nil {
		cfg.Headers = def.Headers
	}

	c := &Checker{
		config:   cfg,
		validate: newClient(cfg.ValidateTimeout),
		inspect:  newClient(cfg.InspectTimeout),
	}
	if cfg.ProbeRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRate), max(1, int(cfg.ProbeRate)))
	}
	return c
}

func newClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetLogger(logger.Printf{Component: "imagecheck"})
}

func (c *Checker) request(ctx context.Context, client *resty.Client, req Request) *resty.Request {
	r := client.R().SetContext(ctx).SetHeaders(c.config.Headers)
	if req.Referer != "" {
		r.SetHeader("Referer", req.Referer)
	}
	if req.Cookie != "" {
		r.SetHeader("Cookie", req.Cookie)
	}
	return r
}

func (c *Checker) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Validate reports whether rawURL resolves to image bytes. It tries a HEAD
// request, then a streamed GET, then the leading byte signature. Any
// failure is reported as false.
func (c *Checker) Validate(ctx context.Context, rawURL string, req Request) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("image validation panicked", "url", rawURL, "panic", r)
			ok = false
		}
	}()

	if body, ct, handled, err := c.readLocal(rawURL, sniffLength); handled {
		if err != nil {
			logger.Debug("local image unreadable", "url", truncate(rawURL), "error", err)
			return false
		}
		return isImageType(ct) || SniffSignature(body)
	}

	if err := c.wait(ctx); err != nil {
		return false
	}
	head, err := c.request(ctx, c.validate, req).Head(rawURL)
	if err != nil {
		logger.Debug("image HEAD failed", "url", rawURL, "error", err)
		return false
	}
	if isImageType(head.Header().Get("Content-Type")) {
		return true
	}

	if err := c.wait(ctx); err != nil {
		return false
	}
	resp, err := c.request(ctx, c.validate, req).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		logger.Debug("image probe GET failed", "url", rawURL, "error", err)
		return false
	}
	defer func() { _ = resp.RawBody().Close() }()

	if isImageType(resp.Header().Get("Content-Type")) {
		return true
	}

	buf := make([]byte, sniffLength)
	n, _ := io.ReadFull(resp.RawBody(), buf)
	valid := SniffSignature(buf[:n])
	logger.Debug("image signature checked", "url", rawURL, "bytes", n, "valid", valid)
	return valid
}

// Inspect downloads rawURL and decodes its dimensions. Network failures and
// non-200 responses yield an invalid Info. Undecodable bodies are still
// valid, with unknown dimensions and format.
func (c *Checker) Inspect(ctx context.Context, rawURL string, req Request) Info {
	if body, ct, handled, err := c.readLocal(rawURL, c.config.MaxImageBytes); handled {
		if err != nil {
			return Info{}
		}
		return InspectBytes(body, ct)
	}

	if err := c.wait(ctx); err != nil {
		return Info{}
	}
	resp, err := c.request(ctx, c.inspect, req).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		logger.Debug("image inspect failed", "url", rawURL, "error", err)
		return Info{}
	}
	defer func() { _ = resp.RawBody().Close() }()

	if resp.StatusCode() != http.StatusOK {
		logger.Debug("image inspect non-200", "url", rawURL, "status", resp.StatusCode())
		return Info{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.RawBody(), c.config.MaxImageBytes))
	if err != nil {
		logger.Debug("image body read failed", "url", rawURL, "error", err)
		return Info{}
	}

	info := InspectBytes(body, resp.Header().Get("Content-Type"))
	if n, err := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64); err == nil && n > 0 {
		info.ByteSize = n
	}
	return info
}

// InspectBytes describes image bytes already in hand.
func InspectBytes(body []byte, contentType string) Info {
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}
	info := Info{
		Valid:       true,
		ContentType: contentType,
		ByteSize:    int64(len(body)),
		Format:      FormatUnknown,
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return info
	}
	info.Width = Dimension(cfg.Width)
	info.Height = Dimension(cfg.Height)
	info.Format = strings.ToUpper(format)
	return info
}

// readLocal serves data: URLs and store paths without a request. handled
// is false when rawURL must go over the network.
func (c *Checker) readLocal(rawURL string, limit int64) (body []byte, contentType string, handled bool, err error) {
	if isDataURL(rawURL) {
		body, contentType, err = DecodeDataURL(rawURL)
		return body, contentType, true, err
	}
	if c.config.Local == nil {
		return nil, "", false, nil
	}
	p, ok := c.config.Local.Lookup(rawURL)
	if !ok {
		return nil, "", false, nil
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, "", true, err
	}
	defer func() { _ = f.Close() }()
	body, err = io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, "", true, err
	}
	return body, localContentType(p, body), true, nil
}

// localContentType types a stored file. Text formats such as SVG carry no
// byte signature, so the extension the store chose is the fallback.
func localContentType(p string, body []byte) string {
	if mt := mimetype.Detect(body).String(); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return mime.TypeByExtension(filepath.Ext(p))
}

func isDataURL(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// DecodeDataURL returns the payload and media type of a data: URL.
func DecodeDataURL(raw string) ([]byte, string, error) {
	if !isDataURL(raw) {
		return nil, "", fmt.Errorf("not a data URL")
	}
	meta, payload, found := strings.Cut(raw[5:], ",")
	if !found {
		return nil, "", fmt.Errorf("malformed data URL: missing payload")
	}

	params := strings.Split(meta, ";")
	mediaType := strings.ToLower(strings.TrimSpace(params[0]))
	encoded := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			encoded = true
		}
	}

	if !encoded {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("malformed data URL: %w", err)
		}
		return []byte(s), mediaType, nil
	}

	payload = strings.TrimRight(strings.TrimSpace(payload), "=")
	body, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("malformed data URL: %w", err)
	}
	return body, mediaType, nil
}

func isImageType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "image")
}

var signatures = [][]byte{
	{0xFF, 0xD8, 0xFF},                            // JPEG
	{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, // PNG
	[]byte("GIF87a"),                              // GIF
	[]byte("GIF89a"),                              // GIF
	[]byte("BM"),                                  // BMP
	[]byte("RIFF"),                                // WEBP container
	{0x00, 0x00, 0x01, 0x00},                      // ICO
}

// SniffSignature reports whether b starts with a known image signature.
func SniffSignature(b []byte) bool {
	for _, sig := range signatures {
		if bytes.HasPrefix(b, sig) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	if len(s) <= 64 {
		return s
	}
	return s[:64] + "..."
}
