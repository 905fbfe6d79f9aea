package runtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tristendillon/locus/core/logger"
)

// S3Options configures an S3-compatible bundle host.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Fetcher reads s3://bucket/key locations from any S3-compatible store.
type S3Fetcher struct {
	client *minio.Client
}

func NewS3Fetcher(opts S3Options) (*S3Fetcher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	logger.Debug("S3Fetcher: using endpoint %s (region %q, ssl %t)", opts.Endpoint, opts.Region, opts.UseSSL)
	return &S3Fetcher{client: client}, nil
}

// splitS3Location returns the bucket and object key of an s3:// location.
func splitS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 location %q has no object key", location)
	}
	return u.Host, key, nil
}

func (s *S3Fetcher) Fetch(ctx context.Context, location string, progress ProgressFunc) ([]byte, error) {
	bucket, key, err := splitS3Location(location)
	if err != nil {
		return nil, err
	}

	stat, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("failed to get object info: %w", err)
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer obj.Close()

	return readChunks(ctx, obj, stat.Size, progress)
}
