package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"nvr-worker-go/internal/config"
)

// MinioStore mirrors snapshot images into an S3-compatible bucket
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL *url.URL
	useSSL  bool
}

func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY / MINIO_SECRET_KEY not configured")
	}

	cli, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Create the bucket if it does not exist
	if err := cli.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
		exists, errBucketExists := cli.BucketExists(ctx, cfg.MinioBucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("failed to create/verify bucket %s: %w", cfg.MinioBucket, err)
		}
	}

	var u *url.URL
	if cfg.MinioPublicURL != "" {
		u, err = url.Parse(cfg.MinioPublicURL)
		if err != nil {
			return nil, fmt.Errorf("invalid MINIO_PUBLIC_BASE_URL: %w", err)
		}
	}

	log.Info().Str("endpoint", cfg.MinioEndpoint).Str("bucket", cfg.MinioBucket).Msg("MinIO connection established")

	return &MinioStore{
		client:  cli,
		bucket:  cfg.MinioBucket,
		baseURL: u,
		useSSL:  cfg.MinioUseSSL,
	}, nil
}

// SaveSnapshot uploads data under key and returns the object URL
func (s *MinioStore) SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object to MinIO: %w", err)
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return ObjectURL(s.baseURL, scheme, s.client.EndpointURL().Host, s.bucket, key), nil
}

// ObjectURL prefers the public base URL and falls back to the raw S3 endpoint
func ObjectURL(base *url.URL, scheme, host, bucket, key string) string {
	if base != nil {
		u := *base
		if u.Path == "" || u.Path == "/" {
			u.Path = "/" + key
		} else {
			u.Path = strings.TrimSuffix(u.Path, "/") + "/" + key
		}
		return u.String()
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, host, bucket, key)
}
