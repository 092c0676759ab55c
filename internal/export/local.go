package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalSink writes files into a directory
type LocalSink struct {
	dir    string
	logger zerolog.Logger
}

// NewLocalSink creates dir if needed
func NewLocalSink(dir string, logger zerolog.Logger) (*LocalSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalSink{
		dir:    dir,
		logger: logger.With().Str("component", "local-export").Logger(),
	}, nil
}

// Put writes to a temp file and renames it into place
func (s *LocalSink) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid file name %q", name)
	}
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Int64("size", written).Msg("Wrote export file")
	return nil
}

// Location implements Sink
func (s *LocalSink) Location(name string) string {
	return filepath.Join(s.dir, name)
}
