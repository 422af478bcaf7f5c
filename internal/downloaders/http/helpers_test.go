package mthttp

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/mtdown/internal/storage"
	"github.com/tanq16/mtdown/internal/utils"
)

const testOutput = "/downloads/file.bin"

func testData(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)
	return data
}

// slowReader hands out at most chunk bytes per read with a delay, so ranged
// responses stream over a measurable time.
type slowReader struct {
	*bytes.Reader
	chunk int
	delay time.Duration
}

func (r *slowReader) Read(p []byte) (int, error) {
	if len(p) > r.chunk {
		p = p[:r.chunk]
	}
	time.Sleep(r.delay)
	return r.Reader.Read(p)
}

// rangeServer serves data with byte-range support and counts ranged GETs
// per Range header. inject may take over a request and return true.
type rangeServer struct {
	*httptest.Server
	data   []byte
	delay  time.Duration
	inject func(w http.ResponseWriter, r *http.Request, hit int) bool

	mu   sync.Mutex
	hits map[string]int
}

func newRangeServer(t *testing.T, data []byte) *rangeServer {
	s := &rangeServer{data: data, hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *rangeServer) handle(w http.ResponseWriter, r *http.Request) {
	rng := r.Header.Get("Range")
	hit := 0
	if r.Method == http.MethodGet && rng != "" {
		s.mu.Lock()
		s.hits[rng]++
		hit = s.hits[rng]
		s.mu.Unlock()
	}
	if s.inject != nil && s.inject(w, r, hit) {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="file.bin"`)
	var content io.ReadSeeker = bytes.NewReader(s.data)
	if s.delay > 0 && r.Method == http.MethodGet {
		content = &slowReader{Reader: bytes.NewReader(s.data), chunk: 1024, delay: s.delay}
	}
	http.ServeContent(w, r, "file.bin", time.Time{}, content)
}

func (s *rangeServer) hitsFor(seg utils.Segment) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[seg.RangeHeader()]
}

// abortAfter sends a valid 206 header for seg, n bytes of junk and then
// drops the connection.
func abortAfter(w http.ResponseWriter, seg utils.Segment, n int) {
	w.Header().Set("Content-Range", "bytes "+itoa(seg.Start)+"-"+itoa(seg.End)+"/*")
	w.Header().Set("Content-Length", itoa(seg.Len()))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(bytes.Repeat([]byte{'X'}, n))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	panic(http.ErrAbortHandler)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func testOptions() Options {
	return Options{
		Probe:         false,
		ProbeTimeout:  time.Second,
		ProbeCooldown: time.Millisecond,
		Retry:         utils.RetryPolicy{MaxAttempts: 5, Backoff: 5 * time.Millisecond},
		PollInterval:  10 * time.Millisecond,
		CancelGrace:   200 * time.Millisecond,
	}
}

func newTestController(t *testing.T, url string, threads int, contentLength int64, opts Options) (*Controller, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	job := utils.Job{
		ID:            "test-job",
		JobType:       "http",
		URL:           url,
		OutputPath:    testOutput,
		Connections:   threads,
		ContentLength: contentLength,
	}
	transport := NewHTTPTransport(utils.NewHTTPClient(utils.HTTPClientConfig{Timeout: 5 * time.Second}))
	return NewController(job, transport, storage.NewFileStorageWithFS(fs), opts), fs
}

func runAsync(c *Controller) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(within):
		require.FailNow(t, "controller did not finish in time")
		return nil
	}
}
