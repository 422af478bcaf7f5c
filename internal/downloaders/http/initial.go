package mthttp

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/mtdown/internal/storage"
	"github.com/tanq16/mtdown/internal/utils"
)

type HTTPDownloader struct {
	Storage *storage.FileStorage
}

func (d *HTTPDownloader) storage() *storage.FileStorage {
	if d.Storage == nil {
		d.Storage = storage.NewFileStorage()
	}
	return d.Storage
}

func (d *HTTPDownloader) ValidateJob(job *utils.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	return nil
}

// BuildJob resolves redirects, records the content length and settles the
// output path: the name from Content-Disposition or the URL, renewed to a
// free name unless the job overwrites.
func (d *HTTPDownloader) BuildJob(ctx context.Context, job *utils.Job) error {
	job.HTTPClientConfig.HighThreadMode = job.Connections > 5
	transport := NewHTTPTransport(utils.NewHTTPClient(job.HTTPClientConfig))

	info, err := transport.Head(ctx, job.URL)
	if err == nil && info.Location != "" {
		log.Debug().Str("op", "http/build").Msgf("following redirect to %s", info.Location)
		job.URL = info.Location
		info, err = transport.Head(ctx, job.URL)
	}
	if err != nil {
		return fmt.Errorf("error getting file info: %w", err)
	}
	if !info.AcceptRanges {
		log.Debug().Str("op", "http/build").Msg("server does not advertise byte ranges")
	}
	job.ContentLength = info.Size

	if job.OutputPath == "" {
		job.OutputPath = info.FileName
		if job.OutputPath == "" {
			job.OutputPath = utils.FileNameFromURL(job.URL)
		}
	} else if isDir(d.storage(), job.OutputPath) {
		name := info.FileName
		if name == "" {
			name = utils.FileNameFromURL(job.URL)
		}
		job.OutputPath = filepath.Join(job.OutputPath, name)
	}
	d.settleOutputPath(job)

	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	job.Metadata["fileSize"] = info.Size
	job.Metadata["rangeSupported"] = info.AcceptRanges
	return nil
}

func (d *HTTPDownloader) settleOutputPath(job *utils.Job) {
	if !job.Overwrite && d.storage().Exists(job.OutputPath) {
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
		log.Debug().Str("op", "http/build").Msgf("output exists, writing to %s", job.OutputPath)
	}
}

// NewController returns the engine for a built job of any source type.
func (d *HTTPDownloader) NewController(job utils.Job, opts Options) *Controller {
	transport := NewHTTPTransport(utils.NewHTTPClient(job.HTTPClientConfig))
	return NewController(job, transport, d.storage(), opts)
}

func isDir(store *storage.FileStorage, path string) bool {
	info, err := store.Fs().Stat(path)
	return err == nil && info.IsDir()
}
