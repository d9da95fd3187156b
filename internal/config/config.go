package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	// URL, when set, is used verbatim instead of the individual components.
	URL                string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	ConnectAttempts    int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Config holds object storage settings for AWS S3 or another S3-compatible service
// reached through the AWS SDK.
type S3Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
}

// DocumentsConfig holds limits applied by the document API.
type DocumentsConfig struct {
	MaxUploadBytes        int
	DefaultListLimit      int
	MaxListLimit          int
	DownloadPresignTTLSec int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Timezone string

	// RepositoryBackend selects the metadata store: "postgres" or "memory".
	RepositoryBackend string
	// StorageBackend selects the content store: "minio", "s3" or "memory".
	StorageBackend string
	MigrateOnStart bool

	Database  DatabaseConfig
	MinIO     MinIOConfig
	S3        S3Config
	Documents DocumentsConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:           getEnv("APP_HOST", "localhost:8080"),
		Port:              getEnv("PORT", "8080"), // default only for non-sensitive value
		Timezone:          getEnv("APP_TIMEZONE", "UTC"),
		RepositoryBackend: getEnv("REPOSITORY_BACKEND", "postgres"),
		StorageBackend:    getEnv("STORAGE_BACKEND", "minio"),
		MigrateOnStart:    getEnvBool("MIGRATE_ON_START", true),
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			ConnectAttempts:    getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		S3: S3Config{
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			Region:       getEnv("S3_REGION", "us-east-1"),
			AccessKey:    getEnv("S3_ACCESS_KEY_ID", ""),
			SecretKey:    getEnv("S3_SECRET_ACCESS_KEY", ""),
			Bucket:       getEnv("S3_BUCKET", ""),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", true),
		},
		Documents: DocumentsConfig{
			MaxUploadBytes:        getEnvInt("MAX_UPLOAD_BYTES", 32<<20),
			DefaultListLimit:      getEnvInt("LIST_DEFAULT_LIMIT", 20),
			MaxListLimit:          getEnvInt("LIST_MAX_LIMIT", 100),
			DownloadPresignTTLSec: getEnvInt("DOWNLOAD_PRESIGN_TTL_SEC", 0),
		},
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
