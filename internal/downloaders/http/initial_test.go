package mthttp

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/mtdown/internal/storage"
	"github.com/tanq16/mtdown/internal/utils"
)

func TestValidateJob(t *testing.T) {
	d := &HTTPDownloader{}
	assert.NoError(t, d.ValidateJob(&utils.Job{JobType: "http", URL: "https://example.com/f.iso", Connections: 4}))
	assert.ErrorContains(t, d.ValidateJob(&utils.Job{JobType: "http", URL: "ftp://example.com/f", Connections: 4}), "unsupported scheme")
	assert.Error(t, d.ValidateJob(&utils.Job{JobType: "http", URL: "https://example.com/f", Connections: 0}))
	assert.Error(t, d.ValidateJob(&utils.Job{JobType: "http", URL: "https://example.com/f", Connections: 33}))
	assert.Error(t, d.ValidateJob(&utils.Job{JobType: "http", Connections: 4}))
}

func TestBuildJobInfersOutput(t *testing.T) {
	srv := newRangeServer(t, testData(2048))
	d := &HTTPDownloader{Storage: storage.NewFileStorageWithFS(afero.NewMemMapFs())}
	job := &utils.Job{JobType: "http", URL: srv.URL + "/dl?id=1", Connections: 8}

	require.NoError(t, d.BuildJob(context.Background(), job))
	assert.Equal(t, "file.bin", job.OutputPath)
	assert.Equal(t, int64(2048), job.ContentLength)
	assert.True(t, job.HTTPClientConfig.HighThreadMode)
	assert.Equal(t, true, job.Metadata["rangeSupported"])
}

func TestBuildJobFallsBackToURLName(t *testing.T) {
	srv := newRangeServer(t, testData(64))
	srv.inject = func(w http.ResponseWriter, r *http.Request, hit int) bool {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "64")
			w.WriteHeader(http.StatusOK)
			return true
		}
		return false
	}
	d := &HTTPDownloader{Storage: storage.NewFileStorageWithFS(afero.NewMemMapFs())}
	job := &utils.Job{JobType: "http", URL: srv.URL + "/files/archive.tar.gz", Connections: 2}
	require.NoError(t, d.BuildJob(context.Background(), job))
	assert.Equal(t, "archive.tar.gz", job.OutputPath)
	assert.False(t, job.HTTPClientConfig.HighThreadMode)
}

func TestBuildJobRenewsExistingFile(t *testing.T) {
	srv := newRangeServer(t, testData(64))
	dir := t.TempDir()
	out := filepath.Join(dir, "file.bin")
	fs := afero.NewOsFs()
	require.NoError(t, afero.WriteFile(fs, out, []byte("old"), 0644))
	d := &HTTPDownloader{Storage: storage.NewFileStorageWithFS(fs)}

	job := &utils.Job{JobType: "http", URL: srv.URL, OutputPath: out, Connections: 1}
	require.NoError(t, d.BuildJob(context.Background(), job))
	assert.Equal(t, filepath.Join(dir, "file-(1).bin"), job.OutputPath)

	job = &utils.Job{JobType: "http", URL: srv.URL, OutputPath: out, Connections: 1, Overwrite: true}
	require.NoError(t, d.BuildJob(context.Background(), job))
	assert.Equal(t, out, job.OutputPath)

	job = &utils.Job{JobType: "http", URL: srv.URL, OutputPath: dir, Connections: 1, Overwrite: true}
	require.NoError(t, d.BuildJob(context.Background(), job))
	assert.Equal(t, out, job.OutputPath)
}

func TestBuildJobNotFound(t *testing.T) {
	srv := newRangeServer(t, nil)
	srv.inject = func(w http.ResponseWriter, r *http.Request, hit int) bool {
		http.NotFound(w, r)
		return true
	}
	d := &HTTPDownloader{Storage: storage.NewFileStorageWithFS(afero.NewMemMapFs())}
	err := d.BuildJob(context.Background(), &utils.Job{JobType: "http", URL: srv.URL, Connections: 1})
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestDownloaderEndToEnd(t *testing.T) {
	data := testData(50_000)
	srv := newRangeServer(t, data)
	fs := afero.NewMemMapFs()
	d := &HTTPDownloader{Storage: storage.NewFileStorageWithFS(fs)}
	job := &utils.Job{ID: "e2e", JobType: "http", URL: srv.URL, OutputPath: "/out/data.bin", Connections: 6}

	require.NoError(t, d.ValidateJob(job))
	require.NoError(t, d.BuildJob(context.Background(), job))
	c := d.NewController(*job, testOptions())
	require.NoError(t, c.Run(context.Background()))

	got, err := afero.ReadFile(fs, "/out/data.bin")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
