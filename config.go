package relay

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the router configuration. Zero values are not all usable;
// start from DefaultConfig or LoadConfig.
type Config struct {
	// Routing.
	ContextPath           string `yaml:"context_path" envconfig:"CONTEXT_PATH"`
	IgnoreTrailingSlashes bool   `yaml:"ignore_trailing_slashes" envconfig:"IGNORE_TRAILING_SLASHES"`
	CaseInsensitiveRoutes bool   `yaml:"case_insensitive_routes" envconfig:"CASE_INSENSITIVE_ROUTES"`
	Prefer405Over404      bool   `yaml:"prefer_405_over_404" envconfig:"PREFER_405_OVER_404"`

	// Requests and responses.
	MaxRequestSize     int64  `yaml:"max_request_size" envconfig:"MAX_REQUEST_SIZE"`
	DefaultContentType string `yaml:"default_content_type" envconfig:"DEFAULT_CONTENT_TYPE"`
	ETags              bool   `yaml:"etags" envconfig:"ETAGS"`

	// Async.
	AsyncTimeout        time.Duration `yaml:"async_timeout" envconfig:"ASYNC_TIMEOUT"`
	AsyncTimeoutStatus  int           `yaml:"async_timeout_status" envconfig:"ASYNC_TIMEOUT_STATUS"`
	AsyncTimeoutMessage string        `yaml:"async_timeout_message" envconfig:"ASYNC_TIMEOUT_MESSAGE"`

	Compression CompressionConfig `yaml:"compression" envconfig:"COMPRESSION"`
	WebSocket   WebSocketConfig   `yaml:"websocket" envconfig:"WEBSOCKET"`
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
}

// CompressionConfig configures response compression performed at finalize.
type CompressionConfig struct {
	Enabled bool     `yaml:"enabled" envconfig:"ENABLED"`
	Level   int      `yaml:"level" envconfig:"LEVEL"`
	MinSize int      `yaml:"min_size" envconfig:"MIN_SIZE"`
	Types   []string `yaml:"types" envconfig:"TYPES"`
}

// WebSocketConfig configures WebSocket sessions.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	ReadLimit       int64         `yaml:"read_limit" envconfig:"READ_LIMIT"`
	PingInterval    time.Duration `yaml:"ping_interval" envconfig:"PING_INTERVAL"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
	WriteWait       time.Duration `yaml:"write_wait" envconfig:"WRITE_WAIT"`
}

// ServerConfig configures ListenAndServe.
type ServerConfig struct {
	Addr              string        `yaml:"addr" envconfig:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" envconfig:"READ_HEADER_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ContextPath:           "/",
		IgnoreTrailingSlashes: true,
		MaxRequestSize:        1_000_000,
		DefaultContentType:    "text/plain",
		AsyncTimeoutStatus:    http.StatusInternalServerError,
		AsyncTimeoutMessage:   "Request timed out",
		Compression: CompressionConfig{
			Level:   5,
			MinSize: 1024,
			Types:   []string{"application/json", "text/"},
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			ReadLimit:       64 << 10,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
	}
}

// EnvPrefix is the environment variable prefix read by LoadConfig.
const EnvPrefix = "RELAY"

// LoadConfig builds a Config from defaults, then the YAML file at path (if
// path is non-empty and the file exists), then RELAY_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := processEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// processEnv overlays environment variables. The struct carries no
// `default` tags, so unset variables leave file and default values alone.
func processEnv(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	if c.MaxRequestSize < 0 {
		return fmt.Errorf("%w: max_request_size must not be negative", ErrInvalidConfig)
	}
	if c.AsyncTimeout < 0 {
		return fmt.Errorf("%w: async_timeout must not be negative", ErrInvalidConfig)
	}
	if c.AsyncTimeoutStatus < 100 || c.AsyncTimeoutStatus > 599 {
		return fmt.Errorf("%w: async_timeout_status %d is not an HTTP status", ErrInvalidConfig, c.AsyncTimeoutStatus)
	}
	if c.Compression.Level < gzip.HuffmanOnly || c.Compression.Level > gzip.BestCompression {
		return fmt.Errorf("%w: compression level %d out of range", ErrInvalidConfig, c.Compression.Level)
	}
	if c.Compression.MinSize < 0 {
		return fmt.Errorf("%w: compression min_size must not be negative", ErrInvalidConfig)
	}
	return nil
}
