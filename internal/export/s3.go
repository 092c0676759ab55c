package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const (
	uploadPartSize    = 16 * 1024 * 1024
	uploadConcurrency = 5
)

// S3Config holds S3 and MinIO settings
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for MinIO, e.g. http://localhost:9000
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Sink uploads objects to an S3 bucket under a key prefix
type S3Sink struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   zerolog.Logger
}

// NewS3Sink creates an S3 sink. Credentials fall back to the default chain.
func NewS3Sink(ctx context.Context, cfg *S3Config, prefix string, logger zerolog.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	log := logger.With().Str("component", "s3-export").Logger()

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	accessKey, secretKey := cfg.AccessKey, cfg.SecretKey
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if secretKey == "" {
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Opts...)

	log.Debug().Str("bucket", cfg.Bucket).Str("prefix", prefix).Str("region", region).Msg("S3 export sink ready")
	return &S3Sink{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
			u.Concurrency = uploadConcurrency
		}),
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: log,
	}, nil
}

// Put uploads r, switching to multipart for large bodies
func (s *S3Sink) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	start := time.Now()
	key := objectKey(s.prefix, name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debug().
		Str("key", key).
		Int64("size", size).
		Dur("duration", time.Since(start)).
		Msg("Uploaded export file")
	return nil
}

// Location implements Sink
func (s *S3Sink) Location(name string) string {
	return "s3://" + s.bucket + "/" + objectKey(s.prefix, name)
}
