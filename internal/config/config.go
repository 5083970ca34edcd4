package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. RANKSARTHI_DB_DRIVER.
const EnvPrefix = "RANKSARTHI"

type Config struct {
	Server        ServerConfig        `yaml:"server" envconfig:"SERVER"`
	DB            DBConfig            `yaml:"db" envconfig:"DB"`
	Auth          AuthConfig          `yaml:"auth" envconfig:"AUTH"`
	Normalization NormalizationConfig `yaml:"normalization" envconfig:"NORMALIZATION"`
	Logging       LoggingConfig       `yaml:"logging" envconfig:"LOGGING"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" envconfig:"TELEMETRY"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
	// Submission endpoint limiter, per client IP.
	SubmitRPS   float64 `yaml:"submit_rps" envconfig:"SUBMIT_RPS"`
	SubmitBurst int     `yaml:"submit_burst" envconfig:"SUBMIT_BURST"`
}

type DBConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"` // sqlite|postgres|memory
	DSN    string `yaml:"dsn" envconfig:"DSN"`
}

type AuthConfig struct {
	Secret        string        `yaml:"secret" envconfig:"SECRET"`
	AdminUser     string        `yaml:"admin_user" envconfig:"ADMIN_USER"`
	AdminPassHash string        `yaml:"admin_pass_hash" envconfig:"ADMIN_PASS_HASH"` // bcrypt
	TokenTTL      time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL"`
}

type NormalizationConfig struct {
	Cooldown time.Duration `yaml:"cooldown" envconfig:"COOLDOWN"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"` // json|text
}

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"` // none|stdout
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
			SubmitRPS:       5,
			SubmitBurst:     10,
		},
		DB: DBConfig{Driver: "sqlite"},
		Auth: AuthConfig{
			Secret:    "dev-secret-change-me",
			AdminUser: "admin",
			TokenTTL:  8 * time.Hour,
		},
		Normalization: NormalizationConfig{Cooldown: 30 * time.Second},
		Logging:       LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			ServiceName:    "ranksarthi",
			MetricsEnabled: true,
			TraceExporter:  "none",
		},
	}
}

// Load layers configuration: defaults, then the YAML file named by
// RANKSARTHI_CONFIG_FILE (if any), then environment variables. A .env file in
// the working directory is read into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	return LoadFile(os.Getenv(EnvPrefix + "_CONFIG_FILE"))
}

// LoadFile is Load without the .env step; path may be empty.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not one of sqlite|postgres|memory", c.DB.Driver))
	}
	if c.Normalization.Cooldown <= 0 {
		errs = append(errs, errors.New("normalization.cooldown must be positive"))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.Server.SubmitRPS < 0 || c.Server.SubmitBurst < 0 {
		errs = append(errs, errors.New("server submit limits must not be negative"))
	}
	switch c.Telemetry.TraceExporter {
	case "", "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("telemetry.trace_exporter %q is not one of none|stdout", c.Telemetry.TraceExporter))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
