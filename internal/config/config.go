/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// Config represents application configuration loaded from config.json.
// Every field is optional; absent fields keep their defaults.
type Config struct {
	Port       int    `json:"port"`        // HTTP responder port
	ListenHost string `json:"listen_host"` // Must be a loopback address

	DataDir  string `json:"data_dir"`  // Directory holding the persisted snapshot
	LogDir   string `json:"log_dir"`   // Directory holding the log file
	LogLevel string `json:"log_level"` // Log level: debug, info, warn, error

	EnableGPU     bool `json:"enable_gpu"`     // Probe GPU sources at startup
	EnableMetrics bool `json:"enable_metrics"` // Expose Prometheus /metrics

	CommandTimeout Duration `json:"command_timeout"` // Upper bound for each external process call
	SampleWindow   Duration `json:"sample_window"`   // Network measurement window, also the minimum cycle period

	RateLimit float64 `json:"rate_limit"` // Requests per second accepted by the responder
	RateBurst int     `json:"rate_burst"`

	// Filters
	IncludeNetworks []string `json:"include_networks"` // Network interfaces to monitor (empty = all)
	ExcludeNetworks []string `json:"exclude_networks"` // Network interfaces to exclude

	// Path is the file the configuration was read from (empty = built-in defaults).
	Path string `json:"-"`
}

// Default configuration values.
const (
	DefaultPort           = 5000
	DefaultListenHost     = "127.0.0.1"
	DefaultLogLevel       = "info"
	DefaultCommandTimeout = 3 * time.Second
	DefaultSampleWindow   = 1 * time.Second
	DefaultRateLimit      = 50.0
	DefaultRateBurst      = 100

	ConfigFileName   = "config.json"
	SnapshotFileName = "performance.json"
	LogFileName      = "unoperf.log"
	ServiceName      = "unoperf"
	DisplayName      = "UnoPerf Performance Monitor"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		ListenHost:     DefaultListenHost,
		DataDir:        DefaultDataDir(),
		LogDir:         DefaultLogDir(),
		LogLevel:       DefaultLogLevel,
		EnableGPU:      true,
		EnableMetrics:  true,
		CommandTimeout: Duration(DefaultCommandTimeout),
		SampleWindow:   Duration(DefaultSampleWindow),
		RateLimit:      DefaultRateLimit,
		RateBurst:      DefaultRateBurst,
	}
}

// DefaultDataDir returns the platform well-known data directory.
func DefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(programData(), "UnoPerf")
	}
	return "/var/lib/unoperf"
}

// DefaultLogDir returns the platform well-known log directory.
func DefaultLogDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(programData(), "UnoPerf", "logs")
	}
	return "/var/log/unoperf"
}

func programData() string {
	if dir := os.Getenv("PROGRAMDATA"); dir != "" {
		return dir
	}
	return `C:\ProgramData`
}

// GetDefaultConfigPath returns config.json located next to the executable.
func GetDefaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory
		return ConfigFileName
	}
	return filepath.Join(filepath.Dir(exePath), ConfigFileName)
}

// Load reads the configuration file at path.
// It always returns a usable Config. A missing file yields the defaults with a nil error;
// an unreadable or malformed file yields the defaults plus an error describing why;
// individually invalid fields are reset to their defaults and reported in the error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		return cfg, err
	}
	parsed.Path = path

	return parsed, parsed.Repair()
}

// Parse decodes a JSON document (comments and trailing commas allowed) over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Repair resets invalid fields to their defaults and reports what was changed.
func (c *Config) Repair() error {
	var errs []error
	def := Default()

	if err := validatePort(c.Port); err != nil {
		errs = append(errs, err)
		c.Port = def.Port
	}
	if err := validateListenHost(c.ListenHost); err != nil {
		errs = append(errs, err)
		c.ListenHost = def.ListenHost
	}
	if err := validateLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
		c.LogLevel = def.LogLevel
	}
	if err := validateRange("command timeout", c.CommandTimeout.Std(), 100*time.Millisecond, time.Minute); err != nil {
		errs = append(errs, err)
		c.CommandTimeout = def.CommandTimeout
	}
	if err := validateRange("sample window", c.SampleWindow.Std(), 100*time.Millisecond, time.Minute); err != nil {
		errs = append(errs, err)
		c.SampleWindow = def.SampleWindow
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid rate limit %v/%d", c.RateLimit, c.RateBurst))
		c.RateLimit, c.RateBurst = def.RateLimit, def.RateBurst
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = def.LogDir
	}

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}

	if err := validateListenHost(c.ListenHost); err != nil {
		return err
	}

	if err := validateLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.DataDir == "" {
		return errors.New("data directory cannot be empty")
	}

	if c.CommandTimeout <= 0 {
		return errors.New("command timeout must be positive")
	}

	if c.SampleWindow <= 0 {
		return errors.New("sample window must be positive")
	}

	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", port)
	}
	return nil
}

func validateListenHost(host string) error {
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("invalid listen host: %q (must be a loopback address)", host)
	}
	return nil
}

func validateLogLevel(level string) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
	return nil
}

func validateRange(name string, d, minimum, maximum time.Duration) error {
	if d < minimum || d > maximum {
		return fmt.Errorf("invalid %s: %v (must be between %v and %v)", name, d, minimum, maximum)
	}
	return nil
}

// Address returns the host:port the responder binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// SnapshotPath returns the persisted snapshot file location.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, SnapshotFileName)
}

// LogPath returns the log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogDir, LogFileName)
}

// String returns a human-readable representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Addr=%s, DataDir=%s, LogDir=%s, GPU=%t, Metrics=%t, CommandTimeout=%v, Window=%v}",
		c.Address(), c.DataDir, c.LogDir, c.EnableGPU, c.EnableMetrics, c.CommandTimeout, c.SampleWindow)
}

// ParseCommaSeparated parses a comma-separated string into a slice of trimmed strings.
func ParseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
