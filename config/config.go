// Package config loads socialsync settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Google   GoogleConfig   `yaml:"google"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Media    MediaConfig    `yaml:"media"`
	Push     PushConfig     `yaml:"push"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port            string   `yaml:"port"`
	Mode            string   `yaml:"mode"` // gin mode: debug, release, test
	RequestTimeout  string   `yaml:"request_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RateLimit       int      `yaml:"rate_limit"` // requests per minute per client IP
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

type FirebaseConfig struct {
	APIKey       string `yaml:"api_key"`
	ProjectID    string `yaml:"project_id"`
	Database     string `yaml:"database"`
	FirestoreURL string `yaml:"firestore_url"`
	IdentityURL  string `yaml:"identity_url"`
	TokenURL     string `yaml:"token_url"`
}

type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

type MongoConfig struct {
	URI             string `yaml:"uri"` // empty keeps sessions in memory
	Database        string `yaml:"database"`
	ConnectAttempts int    `yaml:"connect_attempts"`
}

type MediaConfig struct {
	MaxDimension  int    `yaml:"max_dimension"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
	CloudinaryURL string `yaml:"cloudinary_url"`
	Folder        string `yaml:"folder"`
}

type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subscriber string `yaml:"vapid_email"`
}

type SyncConfig struct {
	PageSize    int `yaml:"page_size"`
	MaxAttempts int `yaml:"max_attempts"`
	Concurrency int `yaml:"concurrency"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used for anything a file or the
// environment does not set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Mode:            "debug",
			RequestTimeout:  "10s",
			ShutdownTimeout: "5s",
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       60,
		},
		Auth: AuthConfig{
			TokenTTL: "24h",
		},
		Firebase: FirebaseConfig{
			Database:     "(default)",
			FirestoreURL: "https://firestore.googleapis.com/v1",
			IdentityURL:  "https://identitytoolkit.googleapis.com/v1",
			TokenURL:     "https://securetoken.googleapis.com/v1",
		},
		Google: GoogleConfig{
			RedirectURL: "http://localhost:8080/api/google/callback",
		},
		Mongo: MongoConfig{
			Database:        "socialsync",
			ConnectAttempts: 5,
		},
		Media: MediaConfig{
			MaxDimension: 400,
			JPEGQuality:  50,
			Folder:       "socialsync/avatars",
		},
		Sync: SyncConfig{
			PageSize:    100,
			MaxAttempts: 5,
			Concurrency: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, then the given .env files (or ./.env when
// none are given), then the environment. A missing file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = v
		}
	}

	setString(&c.Server.Port, "PORT")
	setString(&c.Server.Mode, "GIN_MODE")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	setInt(&c.Server.RateLimit, "RATE_LIMIT")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")

	setString(&c.Firebase.APIKey, "FIREBASE_API_KEY")
	setString(&c.Firebase.ProjectID, "FIREBASE_PROJECT_ID")
	setString(&c.Firebase.FirestoreURL, "FIRESTORE_URL")
	setString(&c.Firebase.IdentityURL, "IDENTITY_URL")
	setString(&c.Firebase.TokenURL, "SECURETOKEN_URL")

	setString(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URL")

	setString(&c.Mongo.URI, "MONGODB_URI")
	setString(&c.Mongo.Database, "MONGODB_DATABASE")

	setString(&c.Media.CloudinaryURL, "CLOUDINARY_URL")

	setString(&c.Push.PublicKey, "VAPID_PUBLIC_KEY")
	setString(&c.Push.PrivateKey, "VAPID_PRIVATE_KEY")
	setString(&c.Push.Subscriber, "VAPID_EMAIL")

	setString(&c.Logging.Level, "LOG_LEVEL")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Firebase.APIKey == "" {
		missing = append(missing, "FIREBASE_API_KEY")
	}
	if c.Firebase.ProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if c.Sync.MaxAttempts < 1 {
		return errors.New("sync.max_attempts must be at least 1")
	}
	return nil
}

// GoogleEnabled reports whether the Google code flow is configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 10*time.Second)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

func (c *Config) GetTokenTTL() time.Duration {
	return parseDuration(c.Auth.TokenTTL, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
