package mthttp

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/mtdown/internal/utils"
)

type ProbeOptions struct {
	MaxCandidate int
	Timeout      time.Duration // per probe request
	Cooldown     time.Duration // between levels
	OnLevel      func(level int, ok bool)
}

// Probe finds how many simultaneous connections the server accepts. Level i
// fires i concurrent GETs and passes only if every one answers 200. The
// result is the last passing level, 0 if level 1 already fails.
func Probe(ctx context.Context, transport Transport, url string, opts ProbeOptions) int {
	if opts.Timeout <= 0 {
		opts.Timeout = utils.DefaultProbeTimeout
	}
	for level := 1; level <= opts.MaxCandidate; level++ {
		if level > 1 && opts.Cooldown > 0 {
			select {
			case <-time.After(opts.Cooldown):
			case <-ctx.Done():
				return level - 1
			}
		}
		ok := probeLevel(ctx, transport, url, level, opts.Timeout)
		if opts.OnLevel != nil {
			opts.OnLevel(level, ok)
		}
		if !ok {
			log.Debug().Str("op", "http/probe").Msgf("level %d rejected", level)
			return level - 1
		}
	}
	return opts.MaxCandidate
}

func probeLevel(ctx context.Context, transport Transport, url string, level int, timeout time.Duration) bool {
	var g errgroup.Group
	results := make([]bool, level)
	for i := range level {
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			status, err := transport.ProbeStatus(reqCtx, url)
			results[i] = err == nil && status == http.StatusOK
			return nil
		})
	}
	g.Wait()
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}
