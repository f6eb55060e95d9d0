package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"

	AuthFirebase = "firebase"
	AuthJWT      = "jwt"

	maxBatchCapacity = 500
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Firebase  FirebaseConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Erasure   ErasureConfig
	Auth      AuthConfig
	Admin     AdminConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Secure    SecureConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	StorageBucket   string
}

type StoreConfig struct {
	Driver string // firestore | memory
}

type DatabaseConfig struct {
	URL string // empty = in-memory run ledger
}

type RedisConfig struct {
	URL string // empty = in-process task execution
}

type ErasureConfig struct {
	BatchCapacity     int
	MaxBatchesPerStep int
	FollowUpBatches   int
	FollowUpSchedule  string // cron spec; empty disables
	FollowUpSettle    time.Duration
	IntakeEnabled     bool
	WorkerConcurrency int
}

type AuthConfig struct {
	Mode             string // firebase | jwt
	JWTPublicKeyPath string
	JWTIssuer        string
	JWTAudience      string
	CheckRevoked     bool
}

type AdminConfig struct {
	Secret         string
	MaxFailures    int // 0 disables lockout
	LockoutSeconds int
}

type WebhookConfig struct {
	URL    string
	Secret string
}

type RateLimitConfig struct {
	RatePerIP   string
	RatePerUser string
}

type SecureConfig struct {
	IsDevelopment bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	viper.AutomaticEnv()
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		viper.SetConfigFile(p)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	setDefaults()

	cfg := &Config{
		Server: ServerConfig{Port: viper.GetString("PORT")},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Pretty: viper.GetBool("LOG_PRETTY"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       viper.GetString("FIREBASE_PROJECT_ID"),
			CredentialsFile: viper.GetString("FIREBASE_CREDENTIALS_FILE"),
			StorageBucket:   viper.GetString("FIREBASE_STORAGE_BUCKET"),
		},
		Store:    StoreConfig{Driver: strings.ToLower(viper.GetString("STORE_DRIVER"))},
		Database: DatabaseConfig{URL: viper.GetString("DATABASE_URL")},
		Redis:    RedisConfig{URL: viper.GetString("REDIS_URL")},
		Erasure: ErasureConfig{
			BatchCapacity:     viper.GetInt("ERASURE_BATCH_CAPACITY"),
			MaxBatchesPerStep: viper.GetInt("ERASURE_MAX_BATCHES_PER_STEP"),
			FollowUpBatches:   viper.GetInt("ERASURE_FOLLOWUP_MAX_BATCHES"),
			FollowUpSchedule:  viper.GetString("ERASURE_FOLLOWUP_SCHEDULE"),
			FollowUpSettle:    viper.GetDuration("ERASURE_FOLLOWUP_SETTLE"),
			IntakeEnabled:     viper.GetBool("ERASURE_INTAKE_ENABLED"),
			WorkerConcurrency: viper.GetInt("ERASURE_WORKER_CONCURRENCY"),
		},
		Auth: AuthConfig{
			Mode:             strings.ToLower(viper.GetString("AUTH_MODE")),
			JWTPublicKeyPath: viper.GetString("JWT_PUBLIC_KEY_PATH"),
			JWTIssuer:        viper.GetString("JWT_ISSUER"),
			JWTAudience:      viper.GetString("JWT_AUDIENCE"),
			CheckRevoked:     viper.GetBool("AUTH_CHECK_REVOKED"),
		},
		Admin: AdminConfig{
			Secret:         viper.GetString("ADMIN_SECRET"),
			MaxFailures:    viper.GetInt("ADMIN_MAX_FAILURES"),
			LockoutSeconds: viper.GetInt("ADMIN_LOCKOUT_SECONDS"),
		},
		Webhook:   WebhookConfig{URL: viper.GetString("WEBHOOK_URL"), Secret: viper.GetString("WEBHOOK_SECRET")},
		RateLimit: RateLimitConfig{RatePerIP: viper.GetString("RATE_LIMIT_IP"), RatePerUser: viper.GetString("RATE_LIMIT_USER")},
		Secure:    SecureConfig{IsDevelopment: viper.GetBool("SECURE_DEV")},
		CORS:      CORSConfig{AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS"))},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORE_DRIVER", StoreFirestore)
	viper.SetDefault("ERASURE_BATCH_CAPACITY", 450)
	viper.SetDefault("ERASURE_MAX_BATCHES_PER_STEP", 1)
	viper.SetDefault("ERASURE_FOLLOWUP_MAX_BATCHES", 10)
	viper.SetDefault("ERASURE_FOLLOWUP_SCHEDULE", "@hourly")
	viper.SetDefault("ERASURE_FOLLOWUP_SETTLE", "15m")
	viper.SetDefault("ERASURE_WORKER_CONCURRENCY", 2)
	viper.SetDefault("AUTH_MODE", AuthFirebase)
	viper.SetDefault("ADMIN_MAX_FAILURES", 5)
	viper.SetDefault("ADMIN_LOCKOUT_SECONDS", 900)
	viper.SetDefault("RATE_LIMIT_IP", "100-M")
	viper.SetDefault("RATE_LIMIT_USER", "5-H")
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Erasure.BatchCapacity < 1 || c.Erasure.BatchCapacity > maxBatchCapacity {
		errs = append(errs, fmt.Errorf("ERASURE_BATCH_CAPACITY must be between 1 and %d, got %d", maxBatchCapacity, c.Erasure.BatchCapacity))
	}
	if c.Erasure.MaxBatchesPerStep < 1 {
		errs = append(errs, fmt.Errorf("ERASURE_MAX_BATCHES_PER_STEP must be positive, got %d", c.Erasure.MaxBatchesPerStep))
	}
	if c.Erasure.FollowUpBatches < 1 {
		errs = append(errs, fmt.Errorf("ERASURE_FOLLOWUP_MAX_BATCHES must be positive, got %d", c.Erasure.FollowUpBatches))
	}
	switch c.Store.Driver {
	case StoreFirestore:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firestore store driver"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreFirestore, StoreMemory, c.Store.Driver))
	}
	switch c.Auth.Mode {
	case AuthFirebase:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for firebase auth"))
		}
	case AuthJWT:
		if c.Auth.JWTPublicKeyPath == "" {
			errs = append(errs, errors.New("JWT_PUBLIC_KEY_PATH is required for jwt auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthFirebase, AuthJWT, c.Auth.Mode))
	}
	return errors.Join(errs...)
}

// UsesFirebase reports whether a Firebase app must be initialized.
func (c *Config) UsesFirebase() bool {
	return c.Store.Driver == StoreFirestore || c.Auth.Mode == AuthFirebase
}

// LoadJWTPublicKey reads the PEM file and returns its contents.
func (c *Config) LoadJWTPublicKey() ([]byte, error) {
	if c.Auth.JWTPublicKeyPath == "" {
		return nil, fmt.Errorf("JWT_PUBLIC_KEY_PATH is required")
	}
	return os.ReadFile(c.Auth.JWTPublicKeyPath)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
