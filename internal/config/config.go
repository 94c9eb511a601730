package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "petition"

// Config holds service configuration.
type Config struct {
	DatabaseURL        string `yaml:"databaseUrl"        envconfig:"DATABASE_URL"`
	ServerAddr         string `yaml:"serverAddr"         envconfig:"SERVER_ADDR"`
	RedisAddr          string `yaml:"redisAddr"          envconfig:"REDIS_ADDR"`
	LogLevel           string `yaml:"logLevel"           envconfig:"LOG_LEVEL"`
	MigrationsDir      string `yaml:"migrationsDir"      envconfig:"MIGRATIONS_DIR"`
	ConstituenciesFile string `yaml:"constituenciesFile" envconfig:"CONSTITUENCIES_FILE"`
	AuditSigningKey    string `yaml:"auditSigningKey"    envconfig:"AUDIT_SIGNING_KEY"`
	AnonymizeSecret    string `yaml:"anonymizeSecret"    envconfig:"ANONYMIZE_SECRET"`

	Site      Site      `yaml:"site"`
	Jobs      Jobs      `yaml:"jobs"`
	Sweeps    Sweeps    `yaml:"sweeps"`
	RateLimit RateLimit `yaml:"rateLimit"`

	// Operators may only be set from the config file.
	Operators []Operator `yaml:"operators" ignored:"true"`
}

// Operator is an API administrator. TokenHash is the bcrypt hash of the bearer token.
type Operator struct {
	Name      string `yaml:"name"`
	TokenHash string `yaml:"tokenHash"`
}

// Site holds the petition rules the engine applies. Referral and debate thresholds are
// snapshotted onto each petition when it is created.
type Site struct {
	ModerationThreshold   int           `yaml:"moderationThreshold"   envconfig:"MODERATION_THRESHOLD"`
	ReferralThreshold     int           `yaml:"referralThreshold"     envconfig:"REFERRAL_THRESHOLD"`
	DebateThreshold       int           `yaml:"debateThreshold"       envconfig:"DEBATE_THRESHOLD"`
	PetitionDuration      time.Duration `yaml:"petitionDuration"      envconfig:"PETITION_DURATION"`
	ReferralDelay         time.Duration `yaml:"referralDelay"         envconfig:"REFERRAL_DELAY"`
	InvalidationBatchSize int           `yaml:"invalidationBatchSize" envconfig:"INVALIDATION_BATCH_SIZE"`
	AnonymizeBatchSize    int           `yaml:"anonymizeBatchSize"    envconfig:"ANONYMIZE_BATCH_SIZE"`
}

// Jobs configures the background job worker.
type Jobs struct {
	PollInterval time.Duration `yaml:"pollInterval" envconfig:"JOBS_POLL_INTERVAL"`
	BatchSize    int           `yaml:"batchSize"    envconfig:"JOBS_BATCH_SIZE"`
	Lease        time.Duration `yaml:"lease"        envconfig:"JOBS_LEASE"`
	Backoff      time.Duration `yaml:"backoff"      envconfig:"JOBS_BACKOFF"`
}

// Sweeps configures the periodic maintenance loops.
type Sweeps struct {
	ReconcileInterval time.Duration `yaml:"reconcileInterval" envconfig:"RECONCILE_INTERVAL"`
	ReconcileLimit    int           `yaml:"reconcileLimit"    envconfig:"RECONCILE_LIMIT"`
	CloseInterval     time.Duration `yaml:"closeInterval"     envconfig:"CLOSE_INTERVAL"`
	ReferralInterval  time.Duration `yaml:"referralInterval"  envconfig:"REFERRAL_INTERVAL"`
}

// RateLimit configures the signature admission gate.
type RateLimit struct {
	IPWindow       time.Duration `yaml:"ipWindow"       envconfig:"RATE_LIMIT_IP_WINDOW"`
	IPLimit        int           `yaml:"ipLimit"        envconfig:"RATE_LIMIT_IP_LIMIT"`
	DomainWindow   time.Duration `yaml:"domainWindow"   envconfig:"RATE_LIMIT_DOMAIN_WINDOW"`
	DomainLimit    int           `yaml:"domainLimit"    envconfig:"RATE_LIMIT_DOMAIN_LIMIT"`
	Rules          []string      `yaml:"rules"          envconfig:"RATE_LIMIT_RULES"`
	AllowedIPs     []string      `yaml:"allowedIps"     envconfig:"RATE_LIMIT_ALLOWED_IPS"`
	BlockedIPs     []string      `yaml:"blockedIps"     envconfig:"RATE_LIMIT_BLOCKED_IPS"`
	AllowedDomains []string      `yaml:"allowedDomains" envconfig:"RATE_LIMIT_ALLOWED_DOMAINS"`
	BlockedDomains []string      `yaml:"blockedDomains" envconfig:"RATE_LIMIT_BLOCKED_DOMAINS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerAddr:    "0.0.0.0:8080",
		LogLevel:      "info",
		MigrationsDir: "internal/migrations",
		Site: Site{
			ModerationThreshold:   5,
			ReferralThreshold:     10000,
			DebateThreshold:       100000,
			PetitionDuration:      6 * 30 * 24 * time.Hour,
			ReferralDelay:         24 * time.Hour,
			InvalidationBatchSize: 1000,
			AnonymizeBatchSize:    1000,
		},
		Jobs: Jobs{
			PollInterval: time.Second,
			BatchSize:    50,
			Lease:        5 * time.Minute,
			Backoff:      5 * time.Second,
		},
		Sweeps: Sweeps{
			ReconcileInterval: 5 * time.Minute,
			ReconcileLimit:    100,
			CloseInterval:     time.Minute,
			ReferralInterval:  10 * time.Minute,
		},
		RateLimit: RateLimit{
			IPWindow:     time.Hour,
			IPLimit:      10,
			DomainWindow: 5 * time.Minute,
			DomainLimit:  50,
		},
	}
}

// Load reads configuration from an optional YAML file, then the environment.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if cfg.DatabaseURL == "" {
		user := getenv("POSTGRES_USER", "petitions")
		pass := getenv("POSTGRES_PASSWORD", "petitions_pass")
		db := getenv("POSTGRES_DB", "petitions")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the engine misbehave.
func (c *Config) Validate() error {
	s := c.Site
	switch {
	case s.ModerationThreshold < 1:
		return errors.New("moderation threshold must be at least 1")
	case s.ReferralThreshold < 1:
		return errors.New("referral threshold must be at least 1")
	case s.DebateThreshold < s.ReferralThreshold:
		return fmt.Errorf("debate threshold (%d) must not be below referral threshold (%d)", s.DebateThreshold, s.ReferralThreshold)
	case s.PetitionDuration <= 0:
		return errors.New("petition duration must be positive")
	case s.InvalidationBatchSize < 1:
		return errors.New("invalidation batch size must be at least 1")
	case c.Jobs.BatchSize < 1:
		return errors.New("job batch size must be at least 1")
	case c.Jobs.Lease <= 0:
		return errors.New("job lease must be positive")
	}
	for i, op := range c.Operators {
		if op.Name == "" || op.TokenHash == "" {
			return fmt.Errorf("operator %d needs a name and a tokenHash", i)
		}
	}
	return nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}
