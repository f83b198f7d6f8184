package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/utils"
)

const (
	ModeThreadPerConnection = "tpc"
	ModeReactor             = "reactor"

	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// ErrConfigCreated is returned alongside the defaults when the configuration file was missing.
var ErrConfigCreated = errors.New("the configuration file does not exist and has been created with defaults")

type Server struct {
	Port           int    `json:"port" env:"PORT"`
	Mode           string `json:"mode" env:"SERVER_MODE"`
	Workers        int    `json:"workers" env:"WORKERS"`
	ReadTimeout    string `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   string `json:"write_timeout" env:"WRITE_TIMEOUT"`
	MaxConnections int    `json:"max_connections" env:"MAX_CONNECTIONS"`
}

type Auth struct {
	Backend    string `json:"backend" env:"AUTH_BACKEND"`
	BcryptCost int    `json:"bcrypt_cost" env:"AUTH_BCRYPT_COST"`
	CacheSize  int    `json:"cache_size" env:"AUTH_CACHE_SIZE"`
	CacheTTL   string `json:"cache_ttl" env:"AUTH_CACHE_TTL"`
}

type Database struct {
	Host               string `json:"host" env:"DB_HOST"`
	Port               uint64 `json:"port" env:"DB_PORT"`
	Username           string `json:"username" env:"DB_USERNAME"`
	Password           string `json:"password" env:"DB_PASSWORD"`
	Database           string `json:"database" env:"DB_NAME"`
	UseTLS             bool   `json:"use_tls" env:"DB_USE_TLS"`
	ConnectTimeout     string `json:"connect_timeout" env:"DB_CONNECT_TIMEOUT"`
	SocketTimeout      string `json:"socket_timeout" env:"DB_SOCKET_TIMEOUT"`
	ConnectIdleTimeout string `json:"connect_idle_timeout" env:"DB_CONNECT_IDLE_TIMEOUT"`
	OperationTimeout   string `json:"operation_timeout" env:"DB_OPERATION_TIMEOUT"`
	Heartbeat          string `json:"heartbeat" env:"DB_HEARTBEAT"`
	MinPoolSize        uint64 `json:"min_pool_size" env:"DB_MIN_POOL_SIZE"`
	MaxPoolSize        uint64 `json:"max_pool_size" env:"DB_MAX_POOL_SIZE"`
}

type Metrics struct {
	Enabled   bool   `json:"enabled" env:"METRICS_ENABLED"`
	Addr      string `json:"addr" env:"METRICS_ADDR"`
	Namespace string `json:"namespace" env:"METRICS_NAMESPACE"`
}

type Log struct {
	Dir       string `json:"dir" env:"LOG_DIR"`
	Retention string `json:"retention" env:"LOG_RETENTION"`
}

type Config struct {
	Server    Server   `json:"server"`
	Auth      Auth     `json:"auth"`
	Database  Database `json:"database"`
	Metrics   Metrics  `json:"metrics"`
	Log       Log      `json:"log"`
	DebugMode bool     `json:"debug_mode" env:"DEBUG_MODE"`
	AppName   string   `json:"app_name" env:"APP_NAME"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server: Server{
			Port:           7777,
			Mode:           ModeThreadPerConnection,
			Workers:        0,
			ReadTimeout:    "",
			WriteTimeout:   "30s",
			MaxConnections: 10000,
		},
		Auth: Auth{
			Backend:    BackendMemory,
			BcryptCost: 10,
			CacheSize:  256,
			CacheTTL:   "1h",
		},
		Database: Database{
			Host:               "127.0.0.1",
			Port:               27017,
			Database:           "stomp",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        20,
		},
		Metrics: Metrics{
			Addr:      ":9090",
			Namespace: "stomp_broker",
		},
		Log: Log{
			Dir:       "logs",
			Retention: "30d",
		},
		AppName: "stomp-broker",
	}
}

// ReadConfig loads path and applies .env and STOMP_* environment overrides. A missing file is
// created with the defaults and ErrConfigCreated is returned together with a usable configuration.
// The result is not validated; callers apply command line overrides first and then call Validate.
func ReadConfig(path string) (Config, error) {
	config := Default()
	var created error

	bytes, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data, _ := json.MarshalIndent(config, "", "\t")
		if werr := os.WriteFile(path, data, 0644); werr != nil {
			return config, fmt.Errorf("creating configuration file: %w", werr)
		}
		created = ErrConfigCreated
	case err != nil:
		return config, fmt.Errorf("reading configuration file: %w", err)
	default:
		if err := json.Unmarshal(bytes, &config); err != nil {
			return config, fmt.Errorf("the configuration file does not contain valid JSON: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := env.ParseWithOptions(&config, env.Options{Prefix: "STOMP_"}); err != nil {
		return config, fmt.Errorf("parsing environment overrides: %w", err)
	}

	return config, created
}

// Validate checks value ranges and duration strings.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.Mode != ModeThreadPerConnection && c.Server.Mode != ModeReactor {
		return fmt.Errorf("unknown server mode %q, expected %s or %s", c.Server.Mode, ModeThreadPerConnection, ModeReactor)
	}
	if c.Auth.Backend != BackendMemory && c.Auth.Backend != BackendMongo {
		return fmt.Errorf("unknown auth backend %q, expected %s or %s", c.Auth.Backend, BackendMemory, BackendMongo)
	}
	if c.Server.Workers < 0 || c.Server.MaxConnections < 0 {
		return errors.New("workers and max_connections must not be negative")
	}
	for name, value := range map[string]string{
		"server.read_timeout":   c.Server.ReadTimeout,
		"server.write_timeout":  c.Server.WriteTimeout,
		"auth.cache_ttl":        c.Auth.CacheTTL,
		"log.retention":         c.Log.Retention,
		"database.op_timeout":   c.Database.OperationTimeout,
		"database.conn_timeout": c.Database.ConnectTimeout,
	} {
		if _, err := utils.ParseStringTime(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Duration parses a duration field that Validate already accepted.
func Duration(value string) time.Duration {
	d, _ := utils.ParseStringTime(value)
	return d
}
