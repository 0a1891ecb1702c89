package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Storage  StorageConfig
	Broker   BrokerConfig
	Upload   UploadConfig
	Worker   WorkerConfig
	FFmpeg   FFmpegConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/clips?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT validation settings. Tokens are issued by the wider
// platform; this service only validates them.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// StorageConfig holds S3 credentials and clip bucket settings for the broker.
type StorageConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ClipsBucket          string
	PublicHost           string // host for public object URLs: https://{bucket}.{host}/{key}
	PresignExpireMinutes int
}

// BrokerConfig holds settings for the upload broker.
type BrokerConfig struct {
	Port    string // broker service listen port
	BaseURL string // URL the API uses to request upload credentials
}

// UploadConfig holds clip upload policy. All values are per-deployment
// policy, not hard-coded business logic.
type UploadConfig struct {
	MaxFileSizeMB      int64   // maximum clip size in MiB
	MaxDurationSec     int     // maximum clip duration in seconds
	ThumbnailOffsetSec float64 // seek offset for thumbnail extraction
	TempDir            string  // spool dir for incoming files; empty = os.TempDir()
}

// WorkerConfig holds reconciliation worker settings.
type WorkerConfig struct {
	SweepIntervalMin  int // how often to sweep provisional rows
	ProvisionalTTLMin int // provisional rows older than this are deleted
}

// FFmpegConfig holds paths to the media tool binaries.
type FFmpegConfig struct {
	FFprobePath string
	FFmpegPath  string
}

// MaxFileSizeBytes returns the size limit in bytes.
func (c UploadConfig) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "clips"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Storage: StorageConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ClipsBucket:          getEnv("AWS_S3_CLIPS_BUCKET", "clipstash-clips"),
			PublicHost:           getEnv("OBJECT_STORE_PUBLIC_HOST", "s3.us-east-1.amazonaws.com"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Broker: BrokerConfig{
			Port:    getEnv("BROKER_PORT", "8081"),
			BaseURL: getEnv("BROKER_BASE_URL", "http://localhost:8081/broker"),
		},
		Upload: UploadConfig{
			MaxFileSizeMB:      int64(getEnvInt("UPLOAD_MAX_FILE_SIZE_MB", 100)),
			MaxDurationSec:     getEnvInt("UPLOAD_MAX_DURATION_SEC", 45),
			ThumbnailOffsetSec: getEnvFloat("UPLOAD_THUMBNAIL_OFFSET_SEC", 1.5),
			TempDir:            getEnv("UPLOAD_TEMP_DIR", ""),
		},
		Worker: WorkerConfig{
			SweepIntervalMin:  getEnvInt("WORKER_SWEEP_INTERVAL_MIN", 10),
			ProvisionalTTLMin: getEnvInt("WORKER_PROVISIONAL_TTL_MIN", 60),
		},
		FFmpeg: FFmpegConfig{
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}
