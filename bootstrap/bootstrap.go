// Package bootstrap assembles the configured backends into the lifecycle
// services. Both binaries share this wiring.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gigflow/config"
	"gigflow/db"
	"gigflow/identity"
	"gigflow/media"
	"gigflow/store"
	"gigflow/store/firedoc"
	"gigflow/store/pgdoc"
)

// Logger builds the process logger.
func Logger() (*zap.SugaredLogger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}
	return base.Sugar(), nil
}

// Store builds the configured document store. The returned closer may be nil.
func Store(ctx context.Context, cfg config.Config) (store.DocumentStore, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemStore(), nil, nil
	case config.BackendFirestore:
		s, err := firedoc.New(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		s := pgdoc.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func() error { pool.Close(); return nil }, nil
	}
	return nil, nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.Backend)
}

// Identity builds the identity provider: Firebase when credentials are
// configured, the local provider otherwise.
func Identity(ctx context.Context, cfg config.Config) (identity.Provider, error) {
	if cfg.Identity.CredentialsFile != "" {
		return identity.NewFirebaseProvider(ctx, cfg.Firestore.ProjectID, cfg.Identity.CredentialsFile)
	}
	return identity.NewLocalProvider(cfg.Identity.JWTSecret), nil
}

// Media builds the asset store: minio when an endpoint is configured, GCS
// when running against Firestore, in-memory otherwise.
func Media(ctx context.Context, cfg config.Config) (media.Storage, error) {
	if cfg.Media.MinioEndpoint != "" {
		return media.NewMinioStorage(media.MinioConfig{
			Endpoint:  cfg.Media.MinioEndpoint,
			AccessKey: cfg.Media.MinioAccessKey,
			SecretKey: cfg.Media.MinioSecretKey,
			Bucket:    cfg.Media.Bucket,
			UseSSL:    cfg.Media.MinioUseSSL,
		})
	}
	if cfg.Backend == config.BackendFirestore {
		return media.NewGCSStorage(ctx, cfg.Media.Bucket, cfg.Firestore.CredentialsFile)
	}
	return media.NewMemStorage(), nil
}
