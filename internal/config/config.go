package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfiguration indicates the process cannot start with the supplied environment.
var ErrConfiguration = errors.New("configuration error")

// Config captures the runtime configuration for the VidShare backend service.
type Config struct {
	AppPort       int
	PublicBaseURL string
	DatabaseURL   string
	DatabaseName  string
	LogLevel      string

	Session     SessionConfig
	OAuth       OAuthConfig
	Uploads     UploadConfig
	ImageKit    ImageKitConfig
	ObjectStore ObjectStoreConfig

	AuthRateLimit  int
	AuthRateWindow time.Duration
	AuthRateBurst  int
}

// SessionConfig controls how session tokens are signed and transported.
type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	CookieSecure bool
	Issuer       string
}

// OAuthConfig holds credentials for the external identity providers. A provider is
// enabled when its client id is set.
type OAuthConfig struct {
	GitHubClientID     string
	GitHubClientSecret string

	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
}

// UploadConfig governs upload credential issuance and the server-side relay.
type UploadConfig struct {
	CredentialTTL  time.Duration
	RequireSession bool
	MaxSizeBytes   int64
}

// ImageKitConfig holds the media CDN keys used to sign direct uploads.
type ImageKitConfig struct {
	PublicKey      string
	PrivateKey     string
	UploadEndpoint string
}

// ObjectStoreConfig describes the S3-compatible bucket used for presigned and relayed uploads.
type ObjectStoreConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

// Load reads configuration from the environment after applying an optional .env file.
// A missing database connection string or session secret is reported as ErrConfiguration.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load .env: %v", ErrConfiguration, err)
	}

	cfg := Config{
		AppPort:       getInt("VIDSHARE_PORT", 8080),
		PublicBaseURL: strings.TrimSuffix(getString("VIDSHARE_PUBLIC_URL", "http://localhost:8080"), "/"),
		DatabaseURL:   getString("VIDSHARE_DATABASE_URL", os.Getenv("MONGODB_URL")),
		DatabaseName:  getString("VIDSHARE_DATABASE_NAME", "vidshare"),
		LogLevel:      getString("VIDSHARE_LOG_LEVEL", "info"),
		Session: SessionConfig{
			Secret:       getString("VIDSHARE_SESSION_SECRET", os.Getenv("NEXTAUTH_SECRET")),
			TTL:          getDuration("VIDSHARE_SESSION_TTL", 30*24*time.Hour),
			CookieSecure: getBool("VIDSHARE_COOKIE_SECURE", false),
			Issuer:       getString("VIDSHARE_SESSION_ISSUER", "vidshare"),
		},
		OAuth: OAuthConfig{
			GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			OIDCIssuer:         os.Getenv("OIDC_ISSUER"),
			OIDCClientID:       os.Getenv("OIDC_CLIENT_ID"),
			OIDCClientSecret:   os.Getenv("OIDC_CLIENT_SECRET"),
		},
		Uploads: UploadConfig{
			CredentialTTL:  getDuration("VIDSHARE_UPLOAD_CREDENTIAL_TTL", 30*time.Minute),
			RequireSession: getBool("VIDSHARE_UPLOAD_REQUIRE_SESSION", true),
			MaxSizeBytes:   int64(getInt("VIDSHARE_UPLOAD_MAX_BYTES", 100*1024*1024)),
		},
		ImageKit: ImageKitConfig{
			PublicKey:      getString("IMAGEKIT_PUBLIC_KEY", os.Getenv("NEXT_PUBLIC_IMAGEKIT_PUBLIC_KEY")),
			PrivateKey:     os.Getenv("IMAGEKIT_PRIVATE_KEY"),
			UploadEndpoint: getString("IMAGEKIT_UPLOAD_ENDPOINT", "https://upload.imagekit.io/api/v1/files/upload"),
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:        os.Getenv("VIDSHARE_S3_BUCKET"),
			Region:        getString("VIDSHARE_S3_REGION", "us-east-1"),
			Endpoint:      os.Getenv("VIDSHARE_S3_ENDPOINT"),
			PublicBaseURL: os.Getenv("VIDSHARE_S3_PUBLIC_BASE_URL"),
		},
		AuthRateLimit:  getInt("VIDSHARE_AUTH_RATE_LIMIT", 10),
		AuthRateWindow: getDuration("VIDSHARE_AUTH_RATE_WINDOW", time.Minute),
		AuthRateBurst:  getInt("VIDSHARE_AUTH_RATE_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first fatal problem with the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%w: VIDSHARE_DATABASE_URL is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.Session.Secret) == "" {
		return fmt.Errorf("%w: VIDSHARE_SESSION_SECRET is required", ErrConfiguration)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: VIDSHARE_SESSION_TTL must be positive", ErrConfiguration)
	}
	if c.ImageKit.PublicKey != "" && c.ImageKit.PrivateKey == "" {
		return fmt.Errorf("%w: IMAGEKIT_PRIVATE_KEY is required when IMAGEKIT_PUBLIC_KEY is set", ErrConfiguration)
	}
	return nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
