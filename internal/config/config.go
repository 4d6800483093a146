package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort            = 6143
	DefaultPreviewSize     = 50
	DefaultInsertBatchSize = 500
	DefaultMaxUploadMB     = 25

	// Janitor: remove temporary uploads left behind by interrupted ingests.
	DefaultJanitorSchedule = "*/30 * * * *"
	DefaultTempMaxAge      = 6 * time.Hour

	DefaultArtifactDir = "./data/artifacts"
	DefaultSQLitePath  = "./data/bankimport.db"
)

// DB describes the metadata store connection, read from the environment.
type DB struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
	Path     string
}

// DSN returns a libpq keyword/value connection string.
func (d DB) DSN() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, ssl,
	)
}

// Artifacts selects and configures the artifact backend.
type Artifacts struct {
	Backend        string
	Dir            string
	Bucket         string
	Prefix         string
	Region         string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
}

func DBFromEnv() DB {
	return DB{
		Driver:   strings.ToLower(envOr("STORE_DRIVER", "postgres")),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envOr("DB_PORT", "5432"),
		Name:     os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
		Path:     envOr("SQLITE_PATH", DefaultSQLitePath),
	}
}

func ArtifactsFromEnv() Artifacts {
	useSSL, _ := strconv.ParseBool(os.Getenv("MINIO_USE_SSL"))
	return Artifacts{
		Backend:        strings.ToLower(envOr("ARTIFACT_BACKEND", "fs")),
		Dir:            envOr("ARTIFACT_DIR", DefaultArtifactDir),
		Bucket:         os.Getenv("ARTIFACT_BUCKET"),
		Prefix:         os.Getenv("ARTIFACT_PREFIX"),
		Region:         envOr("AWS_REGION", "ap-south-1"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    useSSL,
	}
}

// envOr trims accidental quoting some .env loaders leave behind.
func envOr(key, def string) string {
	v := strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"")
	if v == "" {
		return def
	}
	return v
}

// Int reads an integer entry of a services.yaml config block.
func Int(cfg map[string]interface{}, key string, def int) int {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

func String(cfg map[string]interface{}, key, def string) string {
	if s, ok := cfg[key].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

func Bool(cfg map[string]interface{}, key string, def bool) bool {
	switch t := cfg[key].(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Duration accepts "90s"-style strings or a number of seconds.
func Duration(cfg map[string]interface{}, key string, def time.Duration) time.Duration {
	switch t := cfg[key].(type) {
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
	case int:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	}
	return def
}
