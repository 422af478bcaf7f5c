package mthttp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tanq16/mtdown/internal/storage"
	"github.com/tanq16/mtdown/internal/utils"
)

var ErrSegmentOverrun = errors.New("write past end of segment")

// segmentWorker owns one segment: its write handle, its session and its
// counters. Counters are written by the worker and read by the aggregator.
type segmentWorker struct {
	segment   utils.Segment
	url       string
	whole     bool
	transport Transport
	writer    storage.SegmentWriter
	session   *Session
	policy    utils.RetryPolicy
	log       zerolog.Logger
	onDone    func()

	expected  atomic.Int64
	received  atomic.Int64
	attempts  atomic.Int32
	finished  atomic.Bool
	exhausted atomic.Bool
}

func (w *segmentWorker) Expected() int64 { return w.expected.Load() }
func (w *segmentWorker) Received() int64 { return w.received.Load() }

func (w *segmentWorker) run(ctx context.Context) {
	defer w.finish()
	w.log.Info().Msgf("segment %d started downloading", w.segment.Index)

	retry := newRetryState(w.policy)
	for {
		attempt := retry.begin()
		w.attempts.Store(int32(attempt))
		err := w.attempt(ctx)
		switch retry.resolve(ctx, err) {
		case attemptSucceeded:
			w.log.Debug().Msgf("segment %d finished after %d attempt(s)", w.segment.Index, attempt)
			return
		case attemptCancelled:
			w.log.Debug().Msgf("segment %d stopped", w.segment.Index)
			return
		case attemptExhausted:
			w.exhausted.Store(true)
			w.log.Error().Err(err).Str("event", "exiting").Int("attempt", attempt).
				Msgf("segment %d failed to download, exiting", w.segment.Index)
			return
		case attemptRetryPending:
			w.log.Warn().Err(err).Str("event", "retrying").Int("attempt", attempt).
				Msgf("segment %d failed to download, retrying", w.segment.Index)
			if retry.wait(ctx) != nil {
				return
			}
		}
	}
}

// attempt requests the whole segment and writes it from its first byte.
// A retried attempt starts over, overwriting whatever a failed one wrote.
func (w *segmentWorker) attempt(ctx context.Context) error {
	cursor := w.segment.Start
	w.received.Store(0)
	return w.transport.RangeGet(ctx, RangeRequest{
		URL:     w.url,
		Segment: w.segment,
		Whole:   w.whole,
		Session: w.session,
		OnBytes: func(p []byte) error {
			if cursor+int64(len(p)) > w.segment.End+1 {
				return fmt.Errorf("%w %d", ErrSegmentOverrun, w.segment.Index)
			}
			n, err := w.writer.WriteAt(p, cursor)
			cursor += int64(n)
			if err != nil {
				return fmt.Errorf("error writing segment %d: %w", w.segment.Index, err)
			}
			return nil
		},
		OnProgress: func(expected, received int64) {
			w.expected.Store(expected)
			w.received.Store(received)
		},
	})
}

func (w *segmentWorker) finish() {
	if err := w.writer.Close(); err != nil {
		w.log.Warn().Err(err).Msgf("segment %d could not close its file handle", w.segment.Index)
	}
	w.finished.Store(true)
	w.onDone()
}
