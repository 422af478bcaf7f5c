package s3

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/mtdown/internal/storage"
	"github.com/tanq16/mtdown/internal/utils"
)

const defaultPresignExpiry = time.Hour

// S3Downloader turns an s3://bucket/key job into a presigned HTTPS job with a
// known content length, which the segment engine then downloads like any
// other URL.
type S3Downloader struct {
	Storage *storage.FileStorage
	// newClient is replaced in tests.
	newClient func(ctx context.Context, profile string) (*S3Client, error)
}

func (d *S3Downloader) ValidateJob(job *utils.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	bucket, key, err := parseS3URL(job.URL)
	if err != nil {
		return err
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	job.Metadata["bucket"] = bucket
	job.Metadata["key"] = key
	log.Info().Str("op", "s3/initial").Msgf("job validated for s3://%s/%s", bucket, key)
	return nil
}

func (d *S3Downloader) BuildJob(ctx context.Context, job *utils.Job) error {
	bucket, _ := job.Metadata["bucket"].(string)
	key, _ := job.Metadata["key"].(string)
	profile, _ := job.Metadata["profile"].(string)
	expiry, _ := job.Metadata["presignExpiry"].(time.Duration)
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}

	newClient := d.newClient
	if newClient == nil {
		newClient = getS3Client
	}
	client, err := newClient(ctx, profile)
	if err != nil {
		return fmt.Errorf("error creating S3 client: %v", err)
	}
	size, err := objectSize(ctx, client, bucket, key)
	if err != nil {
		return err
	}
	presigned, err := presignGet(ctx, client, bucket, key, expiry)
	if err != nil {
		return err
	}
	log.Debug().Str("op", "s3/initial").Msgf("object size: %d, presigned for %s", size, expiry)

	job.Metadata["source"] = job.URL
	job.URL = presigned
	job.ContentLength = size
	job.HTTPClientConfig.HighThreadMode = job.Connections > 5

	if job.OutputPath == "" {
		job.OutputPath = path.Base(key)
	}
	store := d.Storage
	if store == nil {
		store = storage.NewFileStorage()
	}
	if !job.Overwrite && store.Exists(job.OutputPath) {
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}
	log.Info().Str("op", "s3/initial").Msgf("job built for s3://%s/%s", bucket, key)
	return nil
}
