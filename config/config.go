// Package config loads process configuration from the environment, with an
// optional .env file in development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Backend selects the document-store implementation.
type Backend string

const (
	BackendMemory    Backend = "memory"
	BackendFirestore Backend = "firestore"
	BackendPostgres  Backend = "postgres"
)

type Config struct {
	Backend   Backend
	Firestore FirestoreConfig
	Postgres  PostgresConfig
	Identity  IdentityConfig
	Media     MediaConfig
	Rating    RatingConfig
	Reconcile ReconcileConfig
}

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

type PostgresConfig struct {
	URL string
}

type IdentityConfig struct {
	// Local identity is used when CredentialsFile is empty.
	CredentialsFile string
	JWTSecret       string
}

type MediaConfig struct {
	Bucket string
	// Minio is used instead of GCS when Endpoint is set.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
}

type RatingConfig struct {
	CacheWriteBack bool
}

type ReconcileConfig struct {
	PageSize int
	Workers  int
}

// Load reads configuration from the environment.
func Load() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		Backend: Backend(getEnv("STORE_BACKEND", string(BackendMemory))),
		Firestore: FirestoreConfig{
			ProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Postgres: PostgresConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Identity: IdentityConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS", ""),
			JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		},
		Media: MediaConfig{
			Bucket:         getEnv("MEDIA_BUCKET", "gigflow-media"),
			MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
			MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
			MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Rating: RatingConfig{
			CacheWriteBack: getEnvBool("RATING_CACHE_WRITEBACK", false),
		},
		Reconcile: ReconcileConfig{
			PageSize: getEnvInt("RECONCILE_PAGE_SIZE", 200),
			Workers:  getEnvInt("DELETION_WORKERS", 4),
		},
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
