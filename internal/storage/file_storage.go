package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
)

var ErrInsufficientSpace = errors.New("insufficient disk space")

// SegmentWriter is one independent write handle on the destination file.
// Each segment worker owns one and only writes inside its own byte range.
type SegmentWriter interface {
	io.WriterAt
	io.Closer
}

// FileStorage creates and opens destination files on an afero filesystem.
type FileStorage struct {
	fs         afero.Fs
	checkSpace bool
}

// NewFileStorage returns storage on the real filesystem with a free-space
// check before preallocation.
func NewFileStorage() *FileStorage {
	return &FileStorage{fs: afero.NewOsFs(), checkSpace: true}
}

// NewFileStorageWithFS returns storage on the given filesystem. The
// free-space check is skipped because fs may not be backed by a disk.
func NewFileStorageWithFS(fs afero.Fs) *FileStorage {
	return &FileStorage{fs: fs}
}

func (s *FileStorage) Fs() afero.Fs {
	return s.fs
}

// Exists reports whether path is already present.
func (s *FileStorage) Exists(path string) bool {
	_, err := s.fs.Stat(path)
	return err == nil
}

// Preallocate creates (or truncates) path and sizes it to exactly size bytes
// so that every segment can write at its offset. Unwritten ranges read as zero.
func (s *FileStorage) Preallocate(path string, size int64) error {
	if size <= 0 {
		return fmt.Errorf("invalid file size %d", size)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}
	if s.checkSpace {
		if err := checkFreeSpace(filepath.Dir(path), size); err != nil {
			return err
		}
	}
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("could not create file %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return fmt.Errorf("could not allocate file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close file %s: %w", path, err)
	}
	log.Debug().Str("op", "storage/preallocate").Msgf("allocated %d bytes for %s", size, path)
	return nil
}

// OpenWriter opens a new write handle on an existing, preallocated file.
func (s *FileStorage) OpenWriter(path string) (SegmentWriter, error) {
	f, err := s.fs.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", path, err)
	}
	return f, nil
}

// Remove deletes path, ignoring a missing file.
func (s *FileStorage) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func checkFreeSpace(dir string, size int64) error {
	if dir == "" {
		dir = "."
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		// not fatal, some filesystems do not report usage
		log.Debug().Str("op", "storage/preallocate").Err(err).Msg("could not read disk usage")
		return nil
	}
	if usage.Free < uint64(size) {
		return fmt.Errorf("%w: need %d bytes, %d available in %s", ErrInsufficientSpace, size, usage.Free, dir)
	}
	return nil
}
