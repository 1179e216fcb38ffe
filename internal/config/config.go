// Package config loads the viewcone server configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/viewcone/internal/core/observability/log"
	"github.com/zeusync/viewcone/internal/core/storage"
	"github.com/zeusync/viewcone/internal/core/visibility"
)

// EnvConfigPath names the config file when no -config flag is given.
const EnvConfigPath = "VIEWCONE_CONFIG"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	HTTP3      HTTP3Config      `yaml:"http3"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Store      StoreConfig      `yaml:"store"`
	Visibility VisibilityConfig `yaml:"visibility"`
	Log        log.Options      `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// RetryAfter is advertised to clients when the store is unavailable.
	RetryAfter time.Duration `yaml:"retry_after"`

	WebSocket WebSocketConfig `yaml:"websocket"`
}

type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
}

type HTTP3Config struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
}

type AuthConfig struct {
	// Token enables bearer auth on the /v1 routes when non-empty.
	Token string `yaml:"token"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	IdleTTL           time.Duration `yaml:"idle_ttl"`
}

type StoreConfig struct {
	storage.Options `yaml:",inline"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

type VisibilityConfig struct {
	Coincident visibility.CoincidentPolicy `yaml:"coincident"`
	Workers    int                         `yaml:"workers"`
	ChunkSize  int                         `yaml:"chunk_size"`
}

func (v VisibilityConfig) Options() visibility.Options {
	return visibility.Options{
		Coincident: v.Coincident,
		Workers:    v.Workers,
		ChunkSize:  v.ChunkSize,
	}
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:4000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 * 1024,
			RetryAfter:      time.Second,
			WebSocket: WebSocketConfig{
				Enabled:         true,
				ReadBufferSize:  1024,
				WriteBufferSize: 4096,
				PingInterval:    30 * time.Second,
				PongTimeout:     60 * time.Second,
				MaxMessageSize:  64 * 1024,
			},
		},
		HTTP3: HTTP3Config{
			ListenAddr: "127.0.0.1:4443",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
			IdleTTL:           5 * time.Minute,
		},
		Store: StoreConfig{
			Options: storage.Options{
				Driver:       storage.DriverMemory,
				MaxOpenConns: 8,
			},
			QueryTimeout: 5 * time.Second,
		},
		Visibility: VisibilityConfig{
			Coincident: visibility.CoincidentInclude,
			Workers:    1,
			ChunkSize:  4096,
		},
		Log: log.Options{
			Level:    log.LevelInfo,
			Encoding: "json",
			File: log.FileOptions{
				MaxSizeMB:  50,
				MaxBackups: 3,
			},
		},
	}
}

// Decode reads YAML from r on top of the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the file at path. An empty path falls back to $VIEWCONE_CONFIG and
// then to the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.HTTP3.Enabled && (c.HTTP3.CertFile == "" || c.HTTP3.KeyFile == "") {
		errs = append(errs, errors.New("http3 needs cert_file and key_file"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit needs positive requests_per_second and burst"))
	}
	switch c.Store.Driver {
	case storage.DriverMemory:
	case storage.DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.QueryTimeout <= 0 {
		errs = append(errs, errors.New("store.query_timeout must be positive"))
	}
	if c.Visibility.Workers < 0 || c.Visibility.ChunkSize < 0 {
		errs = append(errs, errors.New("visibility.workers and visibility.chunk_size must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
