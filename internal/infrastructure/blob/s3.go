package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"sunkelo/internal/config"
	"sunkelo/internal/ports"
)

// S3Store uploads public objects to an S3-compatible bucket.
type S3Store struct {
	uploader  *s3manager.Uploader
	bucket    string
	publicURL string
	logger    *slog.Logger
}

var _ ports.BlobStore = (*S3Store)(nil)

// NewS3Store opens a session against the configured endpoint.
func NewS3Store(cfg config.BlobConfig, logger *slog.Logger) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create blob session: %w", err)
	}

	return &S3Store{
		uploader:  s3manager.NewUploader(sess),
		bucket:    cfg.Bucket,
		publicURL: PublicBaseURL(cfg),
		logger:    logger,
	}, nil
}

// Put uploads data as a public-read object and returns its URL.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	if s.logger != nil {
		s.logger.Debug("uploaded blob", "key", key, "bytes", len(data))
	}
	return s.publicURL + "/" + key, nil
}

// PublicBaseURL is the prefix under which uploaded keys are served.
func PublicBaseURL(cfg config.BlobConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
}
