package mthttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/mtdown/internal/utils"
)

var ErrSegmentLength = errors.New("response length does not match segment")

// Transport is everything the engine needs from the remote side.
type Transport interface {
	// Stat returns the declared size of the resource and whether the server
	// serves byte ranges, following redirects.
	Stat(ctx context.Context, url string) (*FileInfo, error)
	// ProbeStatus issues a plain GET and returns its status code without
	// consuming the body.
	ProbeStatus(ctx context.Context, url string) (int, error)
	// RangeGet fetches one segment, handing every received chunk to
	// req.OnBytes through req.Session.
	RangeGet(ctx context.Context, req RangeRequest) error
}

type RangeRequest struct {
	URL     string
	Segment utils.Segment
	// Whole is set when the segment covers the entire resource, in which case
	// a 200 reply is as good as a 206.
	Whole      bool
	Session    *Session
	OnBytes    func(p []byte) error
	OnProgress func(expected, received int64)
}

// FileInfo is what a HEAD request tells about the resource.
type FileInfo struct {
	Size         int64
	FileName     string
	AcceptRanges bool
	Location     string
}

type HTTPTransport struct {
	client     *utils.HTTPClient
	bufferSize int
}

func NewHTTPTransport(client *utils.HTTPClient) *HTTPTransport {
	return &HTTPTransport{client: client, bufferSize: utils.DefaultBufferSize}
}

// CloseIdleConnections drops the keep-alive connections left by probing, so
// they do not count against the server's connection limit.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

// Head issues a HEAD request and reports size, file name and range support.
// Redirects are followed by the client; Location is only set when the server
// answered with a redirect the client did not follow.
func (t *HTTPTransport) Head(ctx context.Context, url string) (*FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error checking URL: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound:
		return &FileInfo{Location: resp.Header.Get("Location")}, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, utils.ErrNotFound
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("server returned error: %d", resp.StatusCode)
	}
	info := &FileInfo{
		Size:         resp.ContentLength,
		FileName:     utils.FileNameFromDisposition(resp.Header.Get("Content-Disposition")),
		AcceptRanges: resp.Header.Get("Accept-Ranges") == "bytes",
	}
	if info.Size <= 0 {
		return info, utils.ErrNoContentLength
	}
	return info, nil
}

func (t *HTTPTransport) Stat(ctx context.Context, url string) (*FileInfo, error) {
	info, err := t.Head(ctx, url)
	if err != nil {
		return nil, err
	}
	if info.Location != "" && info.Location != url {
		return t.Stat(ctx, info.Location)
	}
	return info, nil
}

func (t *HTTPTransport) ProbeStatus(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (t *HTTPTransport) RangeGet(ctx context.Context, rr RangeRequest) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rr.URL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Range", rr.Segment.RangeHeader())
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()
	detach, err := rr.Session.attach(resp.Body)
	if err != nil {
		return err
	}
	defer detach()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK && rr.Whole:
	case resp.StatusCode == http.StatusOK:
		return fmt.Errorf("%w: full body returned for %s", utils.ErrRangeRequestsNotSupported, rr.Segment.RangeHeader())
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	expected := rr.Segment.Len()
	if resp.ContentLength >= 0 && resp.ContentLength != expected {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSegmentLength, resp.ContentLength, expected)
	}
	if rr.OnProgress != nil {
		rr.OnProgress(expected, 0)
	}

	var received int64
	buffer := make([]byte, t.bufferSize)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			err := rr.Session.Deliver(ctx, func() error {
				if err := rr.OnBytes(buffer[:n]); err != nil {
					return err
				}
				received += int64(n)
				if rr.OnProgress != nil {
					rr.OnProgress(expected, received)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("error reading response: %w", readErr)
		}
	}
	if received != expected {
		return fmt.Errorf("%w: received %d of %d bytes", io.ErrUnexpectedEOF, received, expected)
	}
	return nil
}
