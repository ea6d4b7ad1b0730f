package imagecheck

import (
	"context"
	"sync"

	"github.com/jmylchreest/pixscout/internal/logger"
	"github.com/jmylchreest/pixscout/pkg/extract"
)

// Enrich validates every candidate and inspects those that pass, using at
// most Config.Concurrency workers. The result keeps the input order and
// omits candidates that failed validation.
func (c *Checker) Enrich(ctx context.Context, candidates []extract.Candidate, req Request) []ValidatedImage {
	slots := make([]*ValidatedImage, len(candidates))
	sem := make(chan struct{}, c.config.Concurrency)
	var wg sync.WaitGroup

	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand extract.Candidate) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if !c.Validate(ctx, cand.URL, req) {
				return
			}
			slots[i] = &ValidatedImage{Candidate: cand, Info: c.Inspect(ctx, cand.URL, req)}
		}(i, cand)
	}
	wg.Wait()

	out := make([]ValidatedImage, 0, len(candidates))
	for _, v := range slots {
		if v != nil {
			out = append(out, *v)
		}
	}

	logger.Debug("image enrichment complete",
		"candidates", len(candidates),
		"valid", len(out),
		"concurrency", c.config.Concurrency)
	return out
}
