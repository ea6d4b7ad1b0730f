// Package render extracts images and text from pages that need a real
// browser. A headless Chrome session loads the page, provokes lazy content
// and captures image responses as they arrive.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// Navigation strategies.
const (
	WaitNetworkIdle      = "networkidle"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitLoad             = "load"
)

// idleQuiet is how long the network must stay quiet to count as idle.
const idleQuiet = 500 * time.Millisecond

// ErrNetworkBusy is returned when the network does not go idle in time.
var ErrNetworkBusy = errors.New("network did not become idle")

// SessionConfig configures browser launch.
type SessionConfig struct {
	ChromePath string
	UserAgent  string
	Stealth    bool
	Headers    map[string]string // Sent with every request the page makes
	OpTimeout  time.Duration     // Default bound for Eval
}

// ResponseInfo describes a network response seen by the page.
type ResponseInfo struct {
	URL          string
	Status       int64
	ContentType  string
	MimeType     string
	ResourceType network.ResourceType
}

// ResponseHandler receives matching responses once their body is
// available. Handle is called from its own goroutine; bodyErr is set when
// the body could not be read.
type ResponseHandler interface {
	Match(ResponseInfo) bool
	Handle(info ResponseInfo, body []byte, bodyErr error)
}

// Session is one browser with one page. Methods are synchronous; response
// handlers run concurrently with them.
type Session struct {
	ctx         context.Context // tab
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	opTimeout   time.Duration
	closeOnce   sync.Once

	mu           sync.Mutex
	handlers     []ResponseHandler
	matched      map[network.RequestID]matchedResponse
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time

	readBody func(network.RequestID) ([]byte, error)
	bodies   sync.WaitGroup
}

type matchedResponse struct {
	info     ResponseInfo
	handlers []ResponseHandler
}

// NewSession launches a headless browser and prepares one page.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 10 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], headlessOptions()...)
	if cfg.Stealth {
		opts = append(opts, stealthOptions()...)
	}
	if p := FindChromePath(cfg.ChromePath); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	opts = append(opts, chromedp.WindowSize(1920, 1080))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Logf("chromedp")),
		chromedp.WithErrorf(logger.Logf("chromedp")),
	)

	s := &Session{
		ctx:          tabCtx,
		cancelTab:    cancelTab,
		cancelAlloc:  cancelAlloc,
		opTimeout:    cfg.OpTimeout,
		matched:      make(map[network.RequestID]matchedResponse),
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
	s.readBody = s.responseBody
	chromedp.ListenTarget(tabCtx, s.onEvent)

	headers := make(network.Headers, len(cfg.Headers))
	for k, v := range cfg.Headers {
		if v != "" {
			headers[k] = v
		}
	}

	setup := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		page.SetBypassCSP(true),
		security.SetIgnoreCertificateErrors(true),
	}
	if cfg.Stealth {
		setup = append(setup, injectStealth())
	}
	if err := chromedp.Run(tabCtx, setup); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug("browser session started", "stealth", cfg.Stealth, "headers", len(headers))
	return s, nil
}

// OnResponse registers h for responses received from now on.
func (s *Session) OnResponse(h ResponseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *Session) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.mu.Lock()
		s.inflight[e.RequestID] = struct{}{}
		s.lastActivity = time.Now()
		s.mu.Unlock()

	case *network.EventResponseReceived:
		info := responseInfo(e)
		s.mu.Lock()
		var hs []ResponseHandler
		for _, h := range s.handlers {
			if h.Match(info) {
				hs = append(hs, h)
			}
		}
		if len(hs) > 0 {
			s.matched[e.RequestID] = matchedResponse{info: info, handlers: hs}
		}
		s.lastActivity = time.Now()
		s.mu.Unlock()

	case *network.EventLoadingFinished:
		m, ok := s.settle(e.RequestID)
		if !ok {
			return
		}
		s.bodies.Add(1)
		go func() {
			defer s.bodies.Done()
			body, err := s.readBody(e.RequestID)
			for _, h := range m.handlers {
				h.Handle(m.info, body, err)
			}
		}()

	case *network.EventLoadingFailed:
		m, ok := s.settle(e.RequestID)
		if !ok {
			return
		}
		err := fmt.Errorf("loading failed: %s", e.ErrorText)
		s.bodies.Add(1)
		go func() {
			defer s.bodies.Done()
			for _, h := range m.handlers {
				h.Handle(m.info, nil, err)
			}
		}()
	}
}

// settle marks a request as finished and returns its matched response.
func (s *Session) settle(id network.RequestID) (matchedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
	s.lastActivity = time.Now()
	m, ok := s.matched[id]
	delete(s.matched, id)
	return m, ok
}

func (s *Session) responseBody(id network.RequestID) ([]byte, error) {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return nil, errors.New("browser target unavailable")
	}
	ctx, cancel := context.WithTimeout(cdp.WithExecutor(s.ctx, c.Target), s.opTimeout)
	defer cancel()
	return network.GetResponseBody(id).Do(ctx)
}

func responseInfo(e *network.EventResponseReceived) ResponseInfo {
	info := ResponseInfo{ResourceType: e.Type}
	if r := e.Response; r != nil {
		info.URL = r.URL
		info.Status = r.Status
		info.MimeType = r.MimeType
		info.ContentType = headerValue(r.Headers, "Content-Type")
	}
	return info
}

func headerValue(h network.Headers, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// run executes actions on the page, bounded by timeout and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url using the given wait strategy.
func (s *Session) Navigate(ctx context.Context, url, waitUntil string, timeout time.Duration) error {
	start := time.Now()
	switch waitUntil {
	case WaitDOMContentLoaded:
		return s.run(ctx, timeout, navigateDOMContentLoaded(url))
	case WaitLoad:
		return s.run(ctx, timeout, chromedp.Navigate(url))
	default:
		if err := s.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
			return err
		}
		return s.WaitNetworkIdle(ctx, timeout-time.Since(start))
	}
}

// navigateDOMContentLoaded navigates without waiting for the load event.
func navigateDOMContentLoaded(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigation failed: %s", errText)
		}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err == nil && state != "loading" {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// WaitNetworkIdle blocks until no request has been in flight for 500ms,
// or returns ErrNetworkBusy once max has elapsed.
func (s *Session) WaitNetworkIdle(ctx context.Context, max time.Duration) error {
	if max <= 0 {
		return ErrNetworkBusy
	}
	deadline := time.Now().Add(max)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		idle := len(s.inflight) == 0 && time.Since(s.lastActivity) >= idleQuiet
		s.mu.Unlock()
		if idle {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNetworkBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-ticker.C:
		}
	}
}

// Eval evaluates js in the page and decodes the result into out.
func (s *Session) Eval(ctx context.Context, js string, out any) error {
	return s.run(ctx, s.opTimeout, chromedp.Evaluate(js, out))
}

// Click clicks the first element matching the CSS selector.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery))
}

// Sleep pauses for d unless ctx or the session ends first.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-t.C:
		return nil
	}
}

// Drain waits for outstanding response handlers, up to ctx's deadline.
func (s *Session) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bodies.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Screenshot saves a screenshot into dir and returns its path, or "" if
// it could not be taken.
func (s *Session) Screenshot(dir string) string {
	return saveDebugScreenshot(s.ctx, dir)
}

// Close shuts down the page and the browser. It is safe to call more than
// once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() {
			if err := chromedp.Cancel(s.ctx); err != nil {
				logger.Debug("browser close failed", "error", err)
			}
			close(done)
		}()
		select {
		case <-done:
		case <-closeCtx.Done():
			logger.Warn("browser close timed out")
		}
		s.cancelTab()
		s.cancelAlloc()
		logger.Debug("browser session closed")
	})
}
