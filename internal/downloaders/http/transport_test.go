package mthttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/mtdown/internal/utils"
)

func newTestTransport() *HTTPTransport {
	return NewHTTPTransport(utils.NewHTTPClient(utils.HTTPClientConfig{}))
}

func TestHeadReportsFileInfo(t *testing.T) {
	srv := newRangeServer(t, testData(2048))
	info, err := newTestTransport().Head(context.Background(), srv.URL+"/some/path")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), info.Size)
	assert.Equal(t, "file.bin", info.FileName)
	assert.True(t, info.AcceptRanges)

	stat, err := newTestTransport().Stat(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), stat.Size)
	assert.True(t, stat.AcceptRanges)
}

func TestHeadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := newTestTransport().Stat(context.Background(), srv.URL)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestHeadWithoutLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	_, err := newTestTransport().Stat(context.Background(), srv.URL)
	assert.ErrorIs(t, err, utils.ErrNoContentLength)
}

func TestRangeGetDeliversSegment(t *testing.T) {
	data := testData(4096)
	srv := newRangeServer(t, data)
	seg := utils.Segment{Index: 1, Start: 1000, End: 2999}

	var buf bytes.Buffer
	var lastExpected, lastReceived int64
	err := newTestTransport().RangeGet(context.Background(), RangeRequest{
		URL:     srv.URL,
		Segment: seg,
		Session: NewSession(),
		OnBytes: func(p []byte) error {
			buf.Write(p)
			return nil
		},
		OnProgress: func(expected, received int64) {
			lastExpected, lastReceived = expected, received
		},
	})
	require.NoError(t, err)
	assert.Equal(t, data[1000:3000], buf.Bytes())
	assert.Equal(t, int64(2000), lastExpected)
	assert.Equal(t, int64(2000), lastReceived)
	assert.Equal(t, 1, srv.hitsFor(seg))
}

func TestRangeGetRejectsFullResponseForPartialSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(testData(100))
	}))
	defer srv.Close()
	req := RangeRequest{
		URL:     srv.URL,
		Segment: utils.Segment{Start: 0, End: 49},
		Session: NewSession(),
		OnBytes: func(p []byte) error { return nil },
	}
	err := newTestTransport().RangeGet(context.Background(), req)
	assert.ErrorIs(t, err, utils.ErrRangeRequestsNotSupported)

	req.Segment = utils.Segment{Start: 0, End: 99}
	req.Whole = true
	assert.NoError(t, newTestTransport().RangeGet(context.Background(), req))
}

func TestRangeGetShortBody(t *testing.T) {
	seg := utils.Segment{Start: 0, End: 999}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		abortAfter(w, seg, 100)
	}))
	defer srv.Close()

	var got int
	err := newTestTransport().RangeGet(context.Background(), RangeRequest{
		URL:     srv.URL,
		Segment: seg,
		Session: NewSession(),
		OnBytes: func(p []byte) error {
			got += len(p)
			return nil
		},
	})
	require.Error(t, err)
	assert.Equal(t, 100, got)
}

func TestRangeGetStopsOnWriteError(t *testing.T) {
	srv := newRangeServer(t, testData(1024))
	writeErr := errors.New("disk full")
	err := newTestTransport().RangeGet(context.Background(), RangeRequest{
		URL:     srv.URL,
		Segment: utils.Segment{Start: 0, End: 511},
		Session: NewSession(),
		OnBytes: func(p []byte) error { return writeErr },
	})
	assert.ErrorIs(t, err, writeErr)
}

func TestRangeGetLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, "0123456789")
	}))
	defer srv.Close()
	err := newTestTransport().RangeGet(context.Background(), RangeRequest{
		URL:     srv.URL,
		Segment: utils.Segment{Start: 0, End: 19},
		Session: NewSession(),
		OnBytes: func(p []byte) error { return nil },
	})
	assert.ErrorIs(t, err, ErrSegmentLength)
}
