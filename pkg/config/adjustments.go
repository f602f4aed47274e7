// Package config holds the tunable settings ("adjustments") shared by the
// dispatcher, the tasks and the channels that feed them.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Adjustments holds server-wide settings.
type Adjustments struct {
	// Host and Port the example server listens on
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Ident is the server identity used for Server/Via headers and
	// SERVER_SOFTWARE
	Ident string `yaml:"ident"`

	// Threads is the number of dispatcher workers
	Threads int `yaml:"threads"`

	// URLScheme is reported to applications as wsgi.url_scheme
	URLScheme string `yaml:"url_scheme"`

	// URLPrefix is reported as SCRIPT_NAME and stripped from PATH_INFO
	URLPrefix string `yaml:"url_prefix"`

	// LogSocketErrors makes transport errors propagate out of Service
	// so the worker logs them
	LogSocketErrors bool `yaml:"log_socket_errors"`

	// ShutdownTimeout bounds how long Shutdown waits for workers
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// ChannelTimeout is the idle timeout for keep-alive connections
	ChannelTimeout time.Duration `yaml:"channel_timeout"`

	// MaxRequestHeaderSize bounds the request head in bytes
	MaxRequestHeaderSize int `yaml:"max_request_header_size"`

	// MaxRequestBodySize bounds the request entity in bytes
	MaxRequestBodySize int64 `yaml:"max_request_body_size"`

	// SendBytes is the block size used by file-wrapper bodies
	SendBytes int `yaml:"send_bytes"`
}

// DefaultAdjustments returns default settings
func DefaultAdjustments() *Adjustments {
	return &Adjustments{
		Host:                 "0.0.0.0",
		Port:                 8080,
		Ident:                "taskserve",
		Threads:              4,
		URLScheme:            "http",
		LogSocketErrors:      true,
		ShutdownTimeout:      5 * time.Second,
		ChannelTimeout:       120 * time.Second,
		MaxRequestHeaderSize: 262144,
		MaxRequestBodySize:   1073741824,
		SendBytes:            18000,
	}
}

// LoadAdjustments reads YAML settings from path on top of the defaults,
// then applies TASKSERVE_* environment overrides. A missing file yields
// the defaults.
func LoadAdjustments(path string) (*Adjustments, error) {
	adj := DefaultAdjustments()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, adj); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := adj.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := adj.Validate(); err != nil {
		return nil, err
	}
	return adj, nil
}

func (a *Adjustments) applyEnvOverrides() error {
	if v := os.Getenv("TASKSERVE_HOST"); v != "" {
		a.Host = v
	}
	if v := os.Getenv("TASKSERVE_IDENT"); v != "" {
		a.Ident = v
	}
	if v := os.Getenv("TASKSERVE_URL_SCHEME"); v != "" {
		a.URLScheme = v
	}
	if v := os.Getenv("TASKSERVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKSERVE_PORT %q: %w", v, err)
		}
		a.Port = port
	}
	if v := os.Getenv("TASKSERVE_THREADS"); v != "" {
		threads, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TASKSERVE_THREADS %q: %w", v, err)
		}
		a.Threads = threads
	}
	if v := os.Getenv("TASKSERVE_LOG_SOCKET_ERRORS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TASKSERVE_LOG_SOCKET_ERRORS %q: %w", v, err)
		}
		a.LogSocketErrors = b
	}
	return nil
}

// Validate checks the settings for values the server cannot run with
func (a *Adjustments) Validate() error {
	if a.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", a.Threads)
	}
	if a.Port < 0 || a.Port > 65535 {
		return fmt.Errorf("port out of range: %d", a.Port)
	}
	if strings.TrimSpace(a.Ident) == "" {
		return fmt.Errorf("ident must not be empty")
	}
	if a.URLScheme != "http" && a.URLScheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", a.URLScheme)
	}
	if a.URLPrefix != "" && (!strings.HasPrefix(a.URLPrefix, "/") || strings.HasSuffix(a.URLPrefix, "/")) {
		return fmt.Errorf("url prefix must start and not end with '/', got %q", a.URLPrefix)
	}
	if a.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative")
	}
	if a.SendBytes <= 0 {
		return fmt.Errorf("send bytes must be positive, got %d", a.SendBytes)
	}
	return nil
}

// ListenAddr returns the host:port pair the server binds to
func (a *Adjustments) ListenAddr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
