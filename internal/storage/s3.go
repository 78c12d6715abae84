package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const baseBackoff = 100 * time.Millisecond

// S3Storage keeps schema definitions and manifest snapshots in one S3 (or
// S3-compatible) bucket.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	maxRetries int
}

// S3Config selects the bucket location. Endpoint and UsePathStyle are only
// needed for S3-compatible stores such as MinIO.
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewS3Storage builds a client from the default AWS credential chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket), nil
}

// NewS3StorageWithClient wraps an already configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, maxRetries: 3}
}

// Upload publishes the file at localPath under objectPath. The file is
// reopened for every attempt so a retried request never sends a partial body.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	err := s.withRetry(ctx, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
			Body:   f,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUploadFailed, objectPath, err)
	}
	return nil
}

// Download writes objectPath to localPath through a sibling temp file, so a
// failed transfer never leaves a truncated schema file behind.
func (s *S3Storage) Download(ctx context.Context, objectPath, localPath string) error {
	var body io.ReadCloser
	err := s.withRetry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			return notFoundOr(err)
		}
		body = out.Body
		return nil
	})
	if errors.Is(err, ErrObjectNotFound) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, objectPath, err)
	}
	defer body.Close()

	if err := writeAtomically(localPath, body); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, objectPath, err)
	}
	return nil
}

// Exists reports whether objectPath is present, using a HEAD request.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	err := s.withRetry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			return notFoundOr(err)
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ListObjects returns the sorted keys under prefix, skipping folder markers.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); !strings.HasSuffix(k, "/") {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// withRetry runs fn until it succeeds, reports a missing object or runs out
// of attempts. The wait doubles after each failure.
func (s *S3Storage) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = fn()
		if err == nil || errors.Is(err, ErrObjectNotFound) || attempt >= s.maxRetries {
			return err
		}

		timer := time.NewTimer(baseBackoff << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// notFoundOr maps the SDK's missing-key errors to ErrObjectNotFound. GET
// reports NoSuchKey; HEAD has no body and reports NotFound.
func notFoundOr(err error) error {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrObjectNotFound
	}
	return err
}

func writeAtomically(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
