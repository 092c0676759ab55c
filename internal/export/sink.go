// Package export stores exported dataset files in a local directory or an
// object store bucket.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Sink stores named objects
type Sink interface {
	// Put stores size bytes read from r under name
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	// Location returns where name is stored, for logging
	Location(name string) string
}

// Config holds object store credentials for export targets
type Config struct {
	S3    S3Config
	Azure AzureConfig
}

// NewSink returns the sink for target. "s3://bucket/prefix" and
// "az://container/prefix" select object stores; anything else is a directory.
func NewSink(ctx context.Context, target string, cfg Config, logger zerolog.Logger) (Sink, error) {
	switch {
	case strings.HasPrefix(target, "s3://"):
		bucket, prefix := splitTarget(strings.TrimPrefix(target, "s3://"))
		if bucket == "" {
			return nil, fmt.Errorf("export target %q has no bucket", target)
		}
		s3cfg := cfg.S3
		s3cfg.Bucket = bucket
		return NewS3Sink(ctx, &s3cfg, prefix, logger)
	case strings.HasPrefix(target, "az://"):
		container, prefix := splitTarget(strings.TrimPrefix(target, "az://"))
		if container == "" {
			return nil, fmt.Errorf("export target %q has no container", target)
		}
		azcfg := cfg.Azure
		azcfg.Container = container
		return NewAzureSink(&azcfg, prefix, logger)
	default:
		return NewLocalSink(target, logger)
	}
}

func splitTarget(s string) (root, prefix string) {
	root, prefix, _ = strings.Cut(s, "/")
	return root, strings.Trim(prefix, "/")
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(name, ".arrow"):
		return "application/vnd.apache.arrow.stream"
	default:
		return "application/octet-stream"
	}
}
