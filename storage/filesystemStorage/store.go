package filesystemStorage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"plugin-store/storage"
)

var _ storage.BlobStore = (*FilesystemStore)(nil)

var ErrInvalidBlobName = errors.New("invalid blob name")

// FilesystemStore keeps blobs as files below a base directory, mirroring the
// blob names as relative paths.
type FilesystemStore struct {
	baseDir string
}

func New(baseDir string) (*FilesystemStore, error) {
	if !filepath.IsAbs(baseDir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		baseDir = filepath.Join(wd, baseDir)
	}

	//nolint:gosec,mnd // Directory permissions 0755 are intentional
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStore{baseDir: baseDir}, nil
}

func (s *FilesystemStore) BaseDir() string {
	return s.baseDir
}

func (s *FilesystemStore) Store(_ context.Context, name string, content []byte, _ string) error {
	blobPath, err := s.resolve(name)
	if err != nil {
		return err
	}

	//nolint:gosec,mnd // Directory permissions 0755 are intentional
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// write then rename
	tmp, err := os.CreateTemp(filepath.Dir(blobPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	//nolint:mnd // filemode constant
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmp.Name(), blobPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return nil
}

// resolve maps a blob name to a file below baseDir.
func (s *FilesystemStore) resolve(name string) (string, error) {
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBlobName, name)
	}

	return filepath.Join(s.baseDir, filepath.FromSlash(cleaned)), nil
}
