package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Dirs holds the local filesystem locations for uploaded inputs and
// generated outputs. Each job owns distinct paths keyed by a fresh id per
// upload, so there is no concurrent-write hazard.
type Dirs struct {
	Uploads string
	Outputs string
}

// NewDirs creates both directories if needed.
func NewDirs(uploads, outputs string) (*Dirs, error) {
	for _, dir := range []string{uploads, outputs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Dirs{Uploads: uploads, Outputs: outputs}, nil
}

// SaveUpload writes an uploaded file under the uploads directory with a
// fresh unique prefix and returns the stored path.
func (d *Dirs) SaveUpload(filename string, r io.Reader) (string, error) {
	name := uuid.New().String()[:8] + "-" + SanitizeName(filename)
	path := filepath.Join(d.Uploads, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return path, nil
}

// OutputPath returns a path under the outputs directory for name.
func (d *Dirs) OutputPath(name string) string {
	return filepath.Join(d.Outputs, SanitizeName(name))
}

// SanitizeName strips directory components and unsafe characters from a
// client-supplied filename.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
