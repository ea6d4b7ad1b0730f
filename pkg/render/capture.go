package render

import (
	"errors"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"github.com/chromedp/cdproto/network"

	"github.com/jmylchreest/pixscout/internal/logger"
	"github.com/jmylchreest/pixscout/pkg/extract"
	"github.com/jmylchreest/pixscout/pkg/store"
)

// DefaultCDNHints are host fragments of image CDNs that serve images
// without an image extension or content type.
var DefaultCDNHints = []string{"byteimg.com", "doubao"}

var imageURLExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".bmp": true, ".ico": true, ".tiff": true,
}

// AssetStore persists captured bytes. *store.Store implements it.
type AssetStore interface {
	Put(body []byte, ext string) (store.Asset, error)
}

type captureRule int

const (
	ruleNone captureRule = iota
	ruleImageType
	ruleImageURL
)

// Capturer saves image responses into a store and records them as
// candidates. It implements ResponseHandler.
type Capturer struct {
	store AssetStore
	set   *extract.CandidateSet
	hints []string

	saved  atomic.Int64
	remote atomic.Int64
}

// NewCapturer returns a capturer adding to set. A nil store records remote
// URLs only.
func NewCapturer(st AssetStore, set *extract.CandidateSet, hints []string) *Capturer {
	if hints == nil {
		hints = DefaultCDNHints
	}
	return &Capturer{store: st, set: set, hints: hints}
}

func (c *Capturer) classify(info ResponseInfo) captureRule {
	if info.URL == "" || strings.HasPrefix(strings.ToLower(info.URL), "data:") {
		return ruleNone
	}
	if strings.Contains(strings.ToLower(info.ContentType), "image") ||
		info.ResourceType == network.ResourceTypeImage {
		return ruleImageType
	}

	lower := strings.ToLower(info.URL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	if imageURLExts[path.Ext(lower)] {
		return ruleImageURL
	}
	host := lower
	if u, err := url.Parse(lower); err == nil && u.Host != "" {
		host = u.Host
	}
	for _, h := range c.hints {
		if strings.Contains(host, h) {
			return ruleImageURL
		}
	}
	return ruleNone
}

// Match implements ResponseHandler.
func (c *Capturer) Match(info ResponseInfo) bool {
	return c.classify(info) != ruleNone
}

// Handle implements ResponseHandler.
func (c *Capturer) Handle(info ResponseInfo, body []byte, bodyErr error) {
	if bodyErr == nil && len(body) == 0 {
		bodyErr = errors.New("empty body")
	}
	if bodyErr != nil || c.store == nil {
		c.addRemote(info, bodyErr)
		return
	}

	asset, err := c.store.Put(body, c.extension(info))
	if err != nil {
		c.addRemote(info, err)
		return
	}
	c.saved.Add(1)
	c.set.Add(extract.Candidate{
		URL:            asset.URL,
		AltText:        "captured network image",
		OriginalSource: info.URL,
		Source:         extract.SourceRenderedNetwork,
	})
}

func (c *Capturer) extension(info ResponseInfo) string {
	ct := info.ContentType
	if ct == "" {
		ct = info.MimeType
	}
	if c.classify(info) == ruleImageURL {
		if ext := store.ExtFromURL(info.URL); ext != "" {
			return ext
		}
	}
	return store.ExtFromContentType(ct)
}

func (c *Capturer) addRemote(info ResponseInfo, err error) {
	if err != nil {
		logger.Debug("capture fell back to remote url", "url", info.URL, "error", err)
	}
	c.remote.Add(1)
	c.set.Add(extract.Candidate{
		URL:            info.URL,
		AltText:        "captured network image",
		OriginalSource: info.URL,
		Source:         extract.SourceRenderedNetwork,
	})
}

// Saved returns how many responses were written to the store.
func (c *Capturer) Saved() int { return int(c.saved.Load()) }

// Remote returns how many responses were recorded by their remote URL.
func (c *Capturer) Remote() int { return int(c.remote.Load()) }
