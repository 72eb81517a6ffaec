// Package upload spools uploaded media to disk so jobs carry a file path
// rather than the raw bytes.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidName is returned for file names that reduce to nothing once
// directory components are stripped.
var ErrInvalidName = errors.New("upload: invalid file name")

// Spooler writes uploads into a single directory under unique names.
type Spooler struct {
	dir string
}

// New creates the directory if needed and returns a Spooler for it.
func New(dir string) (*Spooler, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Spooler{dir: dir}, nil
}

// Dir returns the spool directory.
func (s *Spooler) Dir() string { return s.dir }

// Save copies r into the spool directory as "<uuid>_<name>" and returns
// the full path. A partially written file is removed on error.
func (s *Spooler) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name, err := SafeName(filename)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, uuid.NewString()+"_"+name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// SafeName strips directory components from a client-supplied name.
func SafeName(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	return name, nil
}
