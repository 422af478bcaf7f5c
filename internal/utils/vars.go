package utils

import (
	"errors"
	"time"
)

const (
	DefaultBufferSize = 256 * 1024 // read buffer per segment worker
	SocketBufferSize  = 1024 * 1024
	MaxConnections    = 32
	DefaultMaxThreads = 4

	DefaultMaxAttempts   = 5
	DefaultBackoff       = time.Second
	DefaultProbeTimeout  = time.Second
	DefaultProbeCooldown = time.Second
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultCancelGrace   = 2 * time.Second
)

const ToolUserAgent = "mtdown/1.0"

var (
	ErrNoContentLength           = errors.New("could not fetch content length")
	ErrRangeRequestsNotSupported = errors.New("range requests are not supported")
	ErrNotFound                  = errors.New("resource not found (404)")
)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:136.0) Gecko/20100101 Firefox/136.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/8.5.0",
	"Wget/1.21.4",
}
