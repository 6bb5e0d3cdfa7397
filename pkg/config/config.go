// Package config loads the server configuration from a TOML file, the
// environment and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/no-abramov/todoapi/pkg/api"
	"github.com/no-abramov/todoapi/pkg/auth"
	"github.com/no-abramov/todoapi/pkg/storage/mongo"
	"github.com/no-abramov/todoapi/pkg/storage/postgres"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Environment variables holding secrets. They are never read from the file.
const (
	EnvJWTKey           = "TODOAPI_JWT_KEY"
	EnvAdminPassword    = "TODOAPI_ADMIN_PASSWORD"
	EnvPostgresPassword = "POSTGRES_PASSWORD"
	EnvPostgresHost     = "POSTGRES_HOST"
	EnvPostgresPort     = "POSTGRES_PORT"
	EnvMongoPass        = "MONGO_PASS"
)

type Config struct {
	ServiceName       string `toml:"serviceName"`
	HTTPAddr          string `toml:"httpAddr"`
	MetricsAddr       string `toml:"metricsAddr"`
	LogLevel          string `toml:"logLevel"`
	LogFormat         string `toml:"logFormat"`
	TrustProxyHeaders bool   `toml:"trustProxyHeaders"`

	Auth       Auth       `toml:"auth"`
	Storage    Storage    `toml:"storage"`
	RequestLog RequestLog `toml:"requestLog"`
	Kafka      Kafka      `toml:"kafka"`
}

type Auth struct {
	Token              auth.Config `toml:"token"`
	Username           string      `toml:"username"`
	Password           string      `toml:"-"`
	ProtectRequestLogs bool        `toml:"protectRequestLogs"`
}

type Storage struct {
	Driver     string          `toml:"driver"`
	SQLitePath string          `toml:"sqlitePath"`
	Postgres   postgres.Config `toml:"postgres"`
}

type RequestLog struct {
	// Driver moves request logs to a dedicated store. Empty keeps them next to the todo items.
	Driver          string       `toml:"driver"`
	ExcludePrefixes []string     `toml:"excludePrefixes"`
	Mongo           mongo.Config `toml:"mongo"`
}

type Kafka struct {
	Brokers   []string `toml:"brokers"`
	Topic     string   `toml:"topic"`
	BatchSize int      `toml:"batchSize"`
}

// Enabled reports whether request logs should be shipped to Kafka.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Flags holds command-line values. Zero values leave the file setting alone.
type Flags struct {
	HTTPAddr      string
	MetricsAddr   string
	LogLevel      string
	StorageDriver string
	Dev           bool
}

func Default() Config {
	return Config{
		ServiceName: "todoapi",
		HTTPAddr:    ":8080",
		LogLevel:    "info",
		LogFormat:   "text",
		Auth: Auth{
			Token: auth.Config{
				Issuer:          "todoapi",
				Audience:        "todoapi-clients",
				LifetimeMinutes: 60,
			},
			Username: "admin",
			Password: "password",
		},
		Storage: Storage{
			Driver:     DriverMemory,
			SQLitePath: "todo.db",
			Postgres: postgres.Config{
				User:    "postgres",
				Host:    "localhost",
				Port:    "5432",
				DBName:  "todo",
				SSLMode: "disable",
			},
		},
		RequestLog: RequestLog{
			ExcludePrefixes: []string{api.RequestLogsPath},
			Mongo: mongo.Config{
				Host:   "localhost",
				Port:   "27017",
				DBName: "todo",
			},
		},
	}
}

// Load reads the TOML file at path over the defaults and then applies secrets
// from the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Auth.Token.Key, EnvJWTKey)
	set(&c.Auth.Password, EnvAdminPassword)
	set(&c.Storage.Postgres.Password, EnvPostgresPassword)
	set(&c.Storage.Postgres.Host, EnvPostgresHost)
	set(&c.Storage.Postgres.Port, EnvPostgresPort)
	set(&c.RequestLog.Mongo.Pass, EnvMongoPass)
}

// Override applies command-line flags over the loaded values.
func (c *Config) Override(f Flags) {
	if f.HTTPAddr != "" {
		c.HTTPAddr = f.HTTPAddr
	}
	if f.MetricsAddr != "" {
		c.MetricsAddr = f.MetricsAddr
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.StorageDriver != "" {
		c.Storage.Driver = f.StorageDriver
	}
	if f.Dev {
		c.Storage.Driver = DriverMemory
		c.RequestLog.Driver = ""
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	if !strings.Contains(c.HTTPAddr, ":") {
		return invalid("httpAddr %q must be in the form 'host:port'", c.HTTPAddr)
	}
	if c.MetricsAddr != "" && !strings.Contains(c.MetricsAddr, ":") {
		return invalid("metricsAddr %q must be in the form 'host:port'", c.MetricsAddr)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("unknown logLevel %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return invalid("unknown logFormat %q", c.LogFormat)
	}

	if err := c.Auth.Token.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return invalid("auth username and password must be set")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if !c.Storage.Postgres.IsValid() {
			return invalid("incomplete postgres config: %s", c.Storage.Postgres)
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return invalid("storage.sqlitePath is empty")
		}
	default:
		return invalid("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.RequestLog.Driver {
	case "":
	case DriverMongo:
		if err := c.RequestLog.Mongo.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	default:
		return invalid("unknown requestLog driver %q", c.RequestLog.Driver)
	}
	for _, p := range c.RequestLog.ExcludePrefixes {
		if !strings.HasPrefix(p, "/") {
			return invalid("excluded prefix %q must start with '/'", p)
		}
	}

	if (len(c.Kafka.Brokers) > 0) != (c.Kafka.Topic != "") {
		return invalid("kafka brokers and topic must be set together")
	}

	return nil
}

func mask(s string) string {
	return strings.Repeat("*", len([]rune(s)))
}

// String prints the configuration with every secret masked.
func (c Config) String() string {
	type plain Config
	p := plain(c)
	p.Auth.Token.Key = mask(p.Auth.Token.Key)
	p.Auth.Password = mask(p.Auth.Password)
	p.Storage.Postgres.Password = mask(p.Storage.Postgres.Password)
	p.RequestLog.Mongo.Pass = mask(p.RequestLog.Mongo.Pass)

	return fmt.Sprintf("%+v", p)
}
