package transcription

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// Stager writes uploads to short-lived temp files owned by a single request.
type Stager struct {
	dir string
}

// NewStager stages files under dir, or the OS temp dir when dir is empty.
func NewStager(dir string) *Stager {
	return &Stager{dir: dir}
}

// StagedFile is a temp copy of one upload. The owner must call Release,
// normally with defer right after Stage returns.
type StagedFile struct {
	path        string
	size        int64
	contentType string

	once       sync.Once
	releaseErr error
}

func (s *Stager) Stage(content []byte) (*StagedFile, error) {
	f, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	staged := &StagedFile{
		path:        f.Name(),
		size:        int64(len(content)),
		contentType: mimetype.Detect(content).String(),
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		staged.Release()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		staged.Release()
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return staged, nil
}

func (f *StagedFile) Path() string {
	return f.path
}

func (f *StagedFile) Size() int64 {
	return f.size
}

// ContentType is the MIME type sniffed from the staged bytes.
func (f *StagedFile) ContentType() string {
	return f.contentType
}

func (f *StagedFile) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	return file, nil
}

// Release deletes the temp file. It is safe to call more than once.
func (f *StagedFile) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.releaseErr = fmt.Errorf("failed to remove staged file: %w", err)
		}
	})
	return f.releaseErr
}
