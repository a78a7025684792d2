package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dependency probe kinds.
const (
	KindTCP      = "tcp"
	KindPostgres = "postgres"
	KindRedis    = "redis"
)

// Hand-off modes for the final server command.
const (
	HandoffExec      = "exec"
	HandoffSupervise = "supervise"
)

// Config is the root configuration for launchpad.
type Config struct {
	EnvFile    string           `mapstructure:"env_file"`
	Dependency DependencyConfig `mapstructure:"dependency"`
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Status     StatusConfig     `mapstructure:"status"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Events     EventsConfig     `mapstructure:"events"`
}

// DependencyConfig describes the endpoint the sequencer waits for.
type DependencyConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Kind          string        `mapstructure:"kind"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	Name          string        `mapstructure:"name"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	SSLMode       string        `mapstructure:"ssl_mode"`
}

// AppConfig describes how the application's management commands are invoked.
type AppConfig struct {
	Python  string     `mapstructure:"python"`
	Manage  string     `mapstructure:"manage"`
	Workdir string     `mapstructure:"workdir"`
	Hooks   [][]string `mapstructure:"hooks"`
}

// ServerConfig describes the long-running server the process hands off to.
type ServerConfig struct {
	Command  string `mapstructure:"command"`
	WSGI     string `mapstructure:"wsgi"`
	BindHost string `mapstructure:"bind_host"`
	Port     int    `mapstructure:"port"`
	Workers  int    `mapstructure:"workers"`
	Handoff  string `mapstructure:"handoff"`
}

// StatusConfig controls the optional status HTTP API.
type StatusConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DeepHealthRate  float64       `mapstructure:"deep_health_rate"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// BindAddr returns the address the server binds to, e.g. 0.0.0.0:8000.
func (s ServerConfig) BindAddr() string {
	return fmt.Sprintf("%s:%d", s.BindHost, s.Port)
}

// Load reads config from the optional YAML file at path, then the optional
// dotenv file, then environment variables with the LAUNCHPAD_ prefix
// (e.g. LAUNCHPAD_SERVER_WORKERS). The database variables used by the
// application itself (DB_HOST, DB_PORT, ...) are honoured as well.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LAUNCHPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := loadEnvFile(v.GetString("env_file")); err != nil {
		return nil, err
	}

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the values the sequencer cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.Dependency.Host == "" {
		errs = append(errs, errors.New("dependency.host is required"))
	}
	if c.Dependency.Port < 1 || c.Dependency.Port > 65535 {
		errs = append(errs, fmt.Errorf("dependency.port %d out of range", c.Dependency.Port))
	}
	if c.Dependency.ProbeInterval <= 0 {
		errs = append(errs, errors.New("dependency.probe_interval must be positive"))
	}
	switch c.Dependency.Kind {
	case KindTCP, KindPostgres, KindRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown dependency.kind %q", c.Dependency.Kind))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, errors.New("server.workers must be at least 1"))
	}
	switch c.Server.Handoff {
	case HandoffExec, HandoffSupervise:
	default:
		errs = append(errs, fmt.Errorf("unknown server.handoff %q", c.Server.Handoff))
	}
	if c.Status.DeepHealthRate < 0 {
		errs = append(errs, errors.New("status.deep_health_rate must not be negative"))
	}
	for i, hook := range c.App.Hooks {
		if len(hook) == 0 {
			errs = append(errs, fmt.Errorf("app.hooks[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env_file", ".env")

	v.SetDefault("dependency.host", "db")
	v.SetDefault("dependency.port", 5432)
	v.SetDefault("dependency.kind", KindTCP)
	v.SetDefault("dependency.probe_interval", 500*time.Millisecond)
	v.SetDefault("dependency.dial_timeout", 2*time.Second)
	v.SetDefault("dependency.name", "")
	v.SetDefault("dependency.user", "")
	v.SetDefault("dependency.password", "")
	v.SetDefault("dependency.ssl_mode", "disable")

	v.SetDefault("app.python", "python")
	v.SetDefault("app.manage", "manage.py")
	v.SetDefault("app.workdir", "")
	v.SetDefault("app.hooks", [][]string{})

	v.SetDefault("server.command", "gunicorn")
	v.SetDefault("server.wsgi", "config.wsgi:application")
	v.SetDefault("server.bind_host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.workers", 3)
	v.SetDefault("server.handoff", HandoffExec)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.port", 8081)
	v.SetDefault("status.read_timeout", 5*time.Second)
	v.SetDefault("status.write_timeout", 10*time.Second)
	v.SetDefault("status.shutdown_timeout", 5*time.Second)
	v.SetDefault("status.deep_health_rate", 2.0)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "launchpad")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "launchpad")
}

// bindLegacyEnv maps the variables the application reads for its own database
// settings onto the dependency section. The LAUNCHPAD_ form wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"dependency.host":     "DB_HOST",
		"dependency.port":     "DB_PORT",
		"dependency.name":     "DB_NAME",
		"dependency.user":     "DB_USER",
		"dependency.password": "DB_PASSWORD",
	}
	for key, legacy := range bindings {
		prefixed := "LAUNCHPAD_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// loadEnvFile exports KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set are left alone. A missing file
// is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}

	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return fmt.Errorf("exporting %s: %w", name, err)
		}
	}
	return nil
}
