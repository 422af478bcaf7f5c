package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Job is the immutable description of one download. It is validated once
// and read-only for the lifetime of the download.
type Job struct {
	ID               string
	JobType          string `validate:"oneof=http s3"`
	URL              string `validate:"required"`
	OutputPath       string
	Connections      int   `validate:"min=1,max=32"`
	ContentLength    int64 // known up front for resolved sources, 0 means fetch via HEAD
	Overwrite        bool
	HTTPClientConfig HTTPClientConfig
	Metadata         map[string]any
}

func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	return nil
}

// Downloader prepares jobs of one source type for the segment engine.
type Downloader interface {
	ValidateJob(job *Job) error
	BuildJob(ctx context.Context, job *Job) error
}

// Segment is an inclusive byte range [Start, End] owned by exactly one worker.
type Segment struct {
	Index int
	Start int64
	End   int64
}

func (s Segment) Len() int64 {
	return s.End - s.Start + 1
}

func (s Segment) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", s.Start, s.End)
}

// RetryPolicy drives the per-segment retry state machine.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}
