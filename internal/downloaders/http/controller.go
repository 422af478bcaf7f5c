package mthttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanq16/mtdown/internal/output"
	"github.com/tanq16/mtdown/internal/progress"
	"github.com/tanq16/mtdown/internal/storage"
	"github.com/tanq16/mtdown/internal/utils"
)

var (
	ErrCancelled      = errors.New("download cancelled")
	ErrSegmentsFailed = errors.New("segments failed")
	ErrAlreadyStarted = errors.New("controller already started")
)

// SegmentsFailedError lists the segments that exhausted their retries. The
// rest of the file was written; those ranges keep their zero bytes.
type SegmentsFailedError struct {
	Segments []int
}

func (e *SegmentsFailedError) Error() string {
	return fmt.Sprintf("%d segment(s) failed after exhausting retries: %v", len(e.Segments), e.Segments)
}

func (e *SegmentsFailedError) Unwrap() error {
	return ErrSegmentsFailed
}

type State int32

const (
	StatePlanning State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s >= StateCompleted
}

type Options struct {
	Probe         bool
	ProbeTimeout  time.Duration
	ProbeCooldown time.Duration
	OnProbeLevel  func(level int, ok bool)
	Retry         utils.RetryPolicy
	PollInterval  time.Duration
	CancelGrace   time.Duration
	// LogMirror receives a copy of every job log event, e.g. the log file.
	LogMirror io.Writer
}

func DefaultOptions() Options {
	return Options{
		Probe:         true,
		ProbeTimeout:  utils.DefaultProbeTimeout,
		ProbeCooldown: utils.DefaultProbeCooldown,
		Retry:         utils.DefaultRetryPolicy(),
		PollInterval:  utils.DefaultPollInterval,
		CancelGrace:   utils.DefaultCancelGrace,
	}
}

type intentKind int

const (
	intentPause intentKind = iota
	intentResume
	intentToggle
)

type intent struct {
	kind    intentKind
	applied chan struct{}
}

// Controller runs one job: planning, one worker per segment, pause and
// cancel handling, and the final verdict.
type Controller struct {
	job       utils.Job
	opts      Options
	transport Transport
	storage   *storage.FileStorage
	sink      *output.LogSink
	log       zerolog.Logger

	started   atomic.Bool
	state     atomic.Int32
	paused    atomic.Bool
	threads   atomic.Int32
	intents   chan intent
	cancelReq chan struct{}
	cancel    sync.Once
	finished  chan struct{}
	snapshot  atomic.Pointer[progress.Snapshot]

	workers    []*segmentWorker
	aggregator *progress.Aggregator

	mu        sync.Mutex // guards completed
	completed int
	allDone   chan struct{}
}

func NewController(job utils.Job, transport Transport, store *storage.FileStorage, opts Options) *Controller {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = defaults.CancelGrace
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaults.ProbeTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = defaults.Retry
	}
	sink := output.NewLogSink(0)
	var w io.Writer = sink
	if opts.LogMirror != nil {
		w = zerolog.MultiLevelWriter(sink, opts.LogMirror)
	}
	c := &Controller{
		job:       job,
		opts:      opts,
		transport: transport,
		storage:   store,
		sink:      sink,
		log:       zerolog.New(w).With().Timestamp().Str("job", job.ID).Logger(),
		intents:   make(chan intent, 16),
		cancelReq: make(chan struct{}),
		finished:  make(chan struct{}),
		allDone:   make(chan struct{}),
	}
	c.state.Store(int32(StatePlanning))
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// Status is State as text, for the dashboard.
func (c *Controller) Status() string {
	return c.State().String()
}

func (c *Controller) Paused() bool {
	return c.paused.Load()
}

// Threads returns the number of segments, known once planning is done.
func (c *Controller) Threads() int {
	return int(c.threads.Load())
}

// Snapshot returns the progress published at the latest poll tick.
func (c *Controller) Snapshot() progress.Snapshot {
	if s := c.snapshot.Load(); s != nil {
		return *s
	}
	return progress.Snapshot{}
}

func (c *Controller) Logs() []output.Entry {
	return c.sink.Entries()
}

func (c *Controller) LogSink() *output.LogSink {
	return c.sink
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.finished
}

// Pause suspends every session and blocks until that is done. Calls made
// before the workers start are applied as soon as they do.
func (c *Controller) Pause() { c.send(intentPause) }

func (c *Controller) Resume() { c.send(intentResume) }

func (c *Controller) TogglePause() { c.send(intentToggle) }

// Cancel asks the job to stop. It does not wait; Run returns ErrCancelled
// within two grace windows.
func (c *Controller) Cancel() {
	c.cancel.Do(func() { close(c.cancelReq) })
}

func (c *Controller) send(kind intentKind) {
	it := intent{kind: kind, applied: make(chan struct{})}
	select {
	case c.intents <- it:
	case <-c.finished:
		return
	}
	select {
	case <-it.applied:
	case <-c.finished:
	}
}

// Run downloads the job to its output path and blocks until every worker is
// terminal or the job is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(c.finished)
	defer c.sink.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-c.cancelReq:
			stop()
		case <-runCtx.Done():
		}
	}()

	if err := c.plan(runCtx); err != nil {
		if c.cancelled(ctx) {
			return c.finishCancelled()
		}
		c.log.Error().Err(err).Msg("planning failed")
		c.state.Store(int32(StateFailed))
		return err
	}
	c.state.Store(int32(StateRunning))

	var wg sync.WaitGroup
	for _, w := range c.workers {
		wg.Add(1)
		go func(w *segmentWorker) {
			defer wg.Done()
			w.run(runCtx)
		}(w)
	}
	return c.loop(ctx, stop, &wg)
}

func (c *Controller) cancelled(ctx context.Context) bool {
	select {
	case <-c.cancelReq:
		return true
	default:
		return ctx.Err() != nil
	}
}

func (c *Controller) plan(ctx context.Context) error {
	contentLength := c.job.ContentLength
	ranged := rangeSupported(c.job)
	if contentLength <= 0 {
		info, err := c.transport.Stat(ctx, c.job.URL)
		if err != nil {
			return err
		}
		if info.Size <= 0 {
			return utils.ErrNoContentLength
		}
		contentLength = info.Size
		ranged = ranged && info.AcceptRanges
	}
	c.log.Info().Msgf("content length: %d bytes", contentLength)

	requested := max(min(c.job.Connections, utils.MaxConnections), 1)
	threads := requested
	if !ranged {
		threads = 1
		if requested > 1 {
			c.log.Warn().Msg("server does not support byte ranges, downloading as a single stream")
		}
	} else if c.opts.Probe && requested > 1 {
		probed := Probe(ctx, c.transport, c.job.URL, ProbeOptions{
			MaxCandidate: requested,
			Timeout:      c.opts.ProbeTimeout,
			Cooldown:     c.opts.ProbeCooldown,
			OnLevel:      c.opts.OnProbeLevel,
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if probed < 1 {
			c.log.Warn().Msg("server rejected concurrent requests, falling back to a single thread")
			probed = 1
		}
		threads = min(requested, probed)
		c.log.Info().Msgf("max threads updated: %d", threads)
		if closer, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
			closer.CloseIdleConnections()
		}
	}
	if int64(threads) > contentLength {
		threads = int(contentLength)
	}

	segments, err := Plan(contentLength, threads)
	if err != nil {
		return err
	}
	if err := c.storage.Preallocate(c.job.OutputPath, contentLength); err != nil {
		return err
	}

	c.workers = make([]*segmentWorker, 0, len(segments))
	counters := make([]progress.Counter, 0, len(segments))
	for _, seg := range segments {
		writer, err := c.storage.OpenWriter(c.job.OutputPath)
		if err != nil {
			for _, w := range c.workers {
				w.writer.Close()
			}
			c.workers = nil
			return err
		}
		w := &segmentWorker{
			segment:   seg,
			url:       c.job.URL,
			whole:     len(segments) == 1,
			transport: c.transport,
			writer:    writer,
			session:   NewSession(),
			policy:    c.opts.Retry,
			log:       c.log.With().Int("segment", seg.Index).Logger(),
			onDone:    c.markDone,
		}
		w.expected.Store(seg.Len())
		c.workers = append(c.workers, w)
		counters = append(counters, w)
	}
	c.threads.Store(int32(len(segments)))
	c.aggregator = progress.NewAggregator(counters, time.Now())
	c.publish()
	return nil
}

// rangeSupported reports what the source resolver learned about byte
// ranges. Sources that did not record it are assumed to support them.
func rangeSupported(job utils.Job) bool {
	supported, ok := job.Metadata["rangeSupported"].(bool)
	return !ok || supported
}

func (c *Controller) markDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed++
	if c.completed == len(c.workers) {
		close(c.allDone)
	}
}

func (c *Controller) loop(ctx context.Context, stop context.CancelFunc, wg *sync.WaitGroup) error {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.allDone:
			wg.Wait()
			c.publish()
			return c.verdict()
		case it := <-c.intents:
			c.apply(it)
		case <-c.cancelReq:
			return c.shutdown(stop, wg)
		case <-ctx.Done():
			return c.shutdown(stop, wg)
		case <-ticker.C:
			c.publish()
		}
	}
}

func (c *Controller) apply(it intent) {
	defer close(it.applied)
	pause := c.paused.Load()
	switch it.kind {
	case intentPause:
		pause = true
	case intentResume:
		pause = false
	case intentToggle:
		pause = !pause
	}
	if pause == c.paused.Load() {
		return
	}
	for _, w := range c.workers {
		if pause {
			w.session.SuspendReceive()
		} else {
			w.session.ResumeReceive()
		}
	}
	c.paused.Store(pause)
	if pause {
		c.log.Info().Str("event", "paused").Msg("download paused")
	} else {
		c.log.Info().Str("event", "resumed").Msg("download resumed")
	}
	c.publish()
}

func (c *Controller) publish() {
	if c.aggregator == nil {
		return
	}
	snap := c.aggregator.Snapshot()
	c.snapshot.Store(&snap)
}

func (c *Controller) verdict() error {
	var failed []int
	for _, w := range c.workers {
		if w.exhausted.Load() {
			failed = append(failed, w.segment.Index)
		}
	}
	if len(failed) > 0 {
		err := &SegmentsFailedError{Segments: failed}
		c.log.Error().Err(err).Msg("download finished with failed segments")
		c.state.Store(int32(StateFailed))
		return err
	}
	c.log.Info().Msg("download completed")
	c.state.Store(int32(StateCompleted))
	return nil
}

// shutdown stops every worker: cooperatively first, then by aborting the
// sessions if a worker is still running after the grace window.
func (c *Controller) shutdown(stop context.CancelFunc, wg *sync.WaitGroup) error {
	c.log.Error().Str("event", "cancelled").Msg("download cancelled, exiting")
	stop()
	if !waitFor(c.allDone, c.opts.CancelGrace) {
		c.log.Warn().Msg("workers still running after grace period, aborting connections")
		for _, w := range c.workers {
			w.session.Abort()
		}
		if waitFor(c.allDone, c.opts.CancelGrace) {
			wg.Wait()
		} else {
			c.log.Error().Msg("workers did not stop, giving up on them")
		}
	} else {
		wg.Wait()
	}
	c.publish()
	return c.finishCancelled()
}

func (c *Controller) finishCancelled() error {
	c.state.Store(int32(StateCancelled))
	return ErrCancelled
}

func waitFor(ch <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
