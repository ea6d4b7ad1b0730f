package render

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// pageDriver is the part of Session the extraction steps use.
type pageDriver interface {
	Navigate(ctx context.Context, url, waitUntil string, timeout time.Duration) error
	WaitNetworkIdle(ctx context.Context, max time.Duration) error
	Eval(ctx context.Context, js string, out any) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Sleep(ctx context.Context, d time.Duration) error
}

const (
	postNavigateIdle = 8 * time.Second
	revealRounds     = 5
	revealPerRound   = 3
	revealClickLimit = 1500 * time.Millisecond
	revealPause      = 500 * time.Millisecond
	revealIdle       = 3 * time.Second
	scrollIdle       = 2500 * time.Millisecond
	nudgeIdle        = 3 * time.Second
	stableHeights    = 2
)

// navigate loads url with the requested strategy, retrying once with
// domcontentloaded, then waits briefly for the network. Failures are
// logged and otherwise ignored.
func navigate(ctx context.Context, p pageDriver, url, waitUntil string, timeout time.Duration) {
	if err := p.Navigate(ctx, url, waitUntil, timeout); err != nil {
		logger.Debug("navigation failed, retrying", "url", url, "wait_until", waitUntil, "error", err)
		if err := p.Navigate(ctx, url, WaitDOMContentLoaded, timeout); err != nil {
			logger.Warn("navigation fallback failed", "url", url, "error", err)
		}
	}
	if err := p.WaitNetworkIdle(ctx, min(postNavigateIdle, timeout)); err != nil {
		logger.Debug("network not idle after navigation", "url", url, "error", err)
	}
}

// revealMore clicks "load more" style controls for a few rounds. It stops
// early once no control matches. Click failures are ignored.
func revealMore(ctx context.Context, p pageDriver) (clicks int) {
	for round := 0; round < revealRounds; round++ {
		var found int
		if err := p.Eval(ctx, revealScript, &found); err != nil {
			logger.Debug("reveal scan failed", "round", round, "error", err)
			return clicks
		}
		if found == 0 {
			break
		}
		for i := 0; i < min(found, revealPerRound); i++ {
			sel := fmt.Sprintf(`[%s="%d"]`, revealAttr, i)
			if err := p.Click(ctx, sel, revealClickLimit); err != nil {
				logger.Debug("reveal click failed", "selector", sel, "error", err)
			} else {
				clicks++
			}
			if err := p.Sleep(ctx, revealPause); err != nil {
				return clicks
			}
		}
		_ = p.WaitNetworkIdle(ctx, revealIdle)
	}
	logger.Debug("reveal complete", "clicks", clicks)
	return clicks
}

// autoScroll scrolls until the document height has stayed the same for
// two consecutive iterations or maxScrolls is reached. It returns the
// number of iterations performed.
func autoScroll(ctx context.Context, p pageDriver, maxScrolls int, pause time.Duration) (int, error) {
	var last int64
	same := 0
	for i := 0; i < maxScrolls; i++ {
		if err := p.Eval(ctx, scrollScript, nil); err != nil {
			return i, fmt.Errorf("scroll failed: %w", err)
		}
		if err := p.Sleep(ctx, pause); err != nil {
			return i, err
		}
		var height int64
		if err := p.Eval(ctx, heightScript, &height); err != nil {
			return i, fmt.Errorf("failed to read page height: %w", err)
		}
		if height == last {
			same++
			if same >= stableHeights {
				logger.Debug("scrolling settled", "iterations", i+1, "height", height)
				return i + 1, nil
			}
		} else {
			same = 0
		}
		last = height
		_ = p.WaitNetworkIdle(ctx, scrollIdle)
	}
	return maxScrolls, nil
}

// nudgeLazy scrolls lazy elements into view so their loaders fire.
func nudgeLazy(ctx context.Context, p pageDriver) {
	var n int
	if err := p.Eval(ctx, nudgeScript, &n); err != nil {
		logger.Debug("lazy nudge failed", "error", err)
		return
	}
	_ = p.WaitNetworkIdle(ctx, nudgeIdle)
	logger.Debug("lazy elements nudged", "count", n)
}
