package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage implements Storage on Google Cloud Storage.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// NewGCSStorage constructs a GCS-backed asset store.
func NewGCSStorage(ctx context.Context, bucket, credentialsFile string) (*GCSStorage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("media: gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: init gcs client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket}, nil
}

func (g *GCSStorage) DeleteAsset(ctx context.Context, assetID string) error {
	err := g.client.Bucket(g.bucket).Object(assetID).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrAssetNotFound
	}
	if err != nil {
		return fmt.Errorf("media: delete %s: %w", assetID, err)
	}
	return nil
}

func (g *GCSStorage) Bucket() string { return g.bucket }
