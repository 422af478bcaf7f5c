package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	mthttp "github.com/tanq16/mtdown/internal/downloaders/http"
	"github.com/tanq16/mtdown/internal/downloaders/s3"
	"github.com/tanq16/mtdown/internal/output"
	"github.com/tanq16/mtdown/internal/storage"
	"github.com/tanq16/mtdown/internal/utils"
)

type Options struct {
	Engine mthttp.Options
	// Interactive draws the dashboard and reads p/q from the keyboard.
	Interactive bool
	Out         io.Writer
	Storage     *storage.FileStorage
}

// downloaderRegistry maps job types to the downloader that prepares them.
// Every type ends up as a plain URL downloaded by the segment engine.
func downloaderRegistry(store *storage.FileStorage) map[string]utils.Downloader {
	return map[string]utils.Downloader{
		"http": &mthttp.HTTPDownloader{Storage: store},
		"s3":   &s3.S3Downloader{Storage: store},
	}
}

// Run validates, builds and downloads one job, showing it on the dashboard.
func Run(ctx context.Context, job utils.Job, opts Options) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewFileStorage()
	}
	outputMgr := output.NewManager(opts.Out, opts.Engine.PollInterval)
	outputMgr.SetTitle(job.URL)
	if opts.Interactive {
		release := utils.HoldConsole()
		defer release()
		outputMgr.StartDisplay()
		defer outputMgr.StopDisplay()
	}
	logger := utils.GetLogger("scheduler").With().Str("job", job.ID).Logger()

	downloader, exists := downloaderRegistry(opts.Storage)[job.JobType]
	if !exists {
		err := fmt.Errorf("unknown job type: %s", job.JobType)
		outputMgr.ReportError(err)
		return err
	}

	outputMgr.SetMessage(fmt.Sprintf("Validating %s job", job.JobType))
	if err := downloader.ValidateJob(&job); err != nil {
		err = fmt.Errorf("validation failed: %w", err)
		outputMgr.ReportError(err)
		return err
	}
	outputMgr.SetMessage(fmt.Sprintf("Building %s job", job.JobType))
	if err := downloader.BuildJob(ctx, &job); err != nil {
		err = fmt.Errorf("build failed: %w", err)
		outputMgr.ReportError(err)
		return err
	}
	logger.Debug().Str("op", "scheduler/run").Msgf("job built: %s -> %s (%d bytes)", job.JobType, job.OutputPath, job.ContentLength)

	engineOpts := opts.Engine
	engineOpts.OnProbeLevel = outputMgr.ProbeLevel
	engineOpts.LogMirror = utils.LogFile()
	if !opts.Interactive && engineOpts.LogMirror == nil {
		engineOpts.LogMirror = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	engine := &mthttp.HTTPDownloader{Storage: opts.Storage}
	ctrl := engine.NewController(job, engineOpts)

	outputMgr.SetTitle(fmt.Sprintf("Downloading %s", job.OutputPath))
	outputMgr.SetMessage("")
	outputMgr.Attach(ctrl)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Interactive {
		closeKeys, err := listenKeys(ctrl)
		if err != nil {
			logger.Debug().Err(err).Msg("keyboard unavailable, use Ctrl+C to cancel")
		} else {
			defer closeKeys()
		}
	}

	if err := ctrl.Run(ctx); err != nil {
		logger.Error().Err(err).Str("op", "scheduler/run").Msg("download did not complete")
		outputMgr.ReportError(err)
		return err
	}
	outputMgr.Complete(fmt.Sprintf("Completed %s", job.OutputPath))
	logger.Info().Str("op", "scheduler/run").Msgf("downloaded %s", job.OutputPath)
	return nil
}
