package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilePublisher writes the document below a local directory, mirroring the
// object path. It backs dry runs.
type FilePublisher struct {
	dir    string
	object string
}

// NewFilePublisher returns a publisher writing dir/object.
func NewFilePublisher(dir, object string) (*FilePublisher, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if object == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &FilePublisher{dir: dir, object: object}, nil
}

// Path is the file the document is written to.
func (p *FilePublisher) Path() string {
	return filepath.Join(p.dir, filepath.FromSlash(p.object))
}

// Publish replaces the file in one rename so readers never see a partial
// document.
func (p *FilePublisher) Publish(_ context.Context, document []byte) (string, error) {
	path := p.Path()
	if err := ensureDir(path); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename document: %w", err)
	}
	return "file://" + path, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
