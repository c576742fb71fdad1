package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage implements Storage on any S3-compatible endpoint, used for
// self-hosted deployments.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// MinioConfig carries connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStorage constructs a minio-backed asset store.
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("media: minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("media: init minio client: %w", err)
	}
	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioStorage) DeleteAsset(ctx context.Context, assetID string) error {
	err := m.client.RemoveObject(ctx, m.bucket, assetID, minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" {
		return ErrAssetNotFound
	}
	return fmt.Errorf("media: delete %s: %w", assetID, err)
}

func (m *MinioStorage) Bucket() string { return m.bucket }
