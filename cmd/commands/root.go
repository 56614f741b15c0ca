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

package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/phuonguno98/unoperf/internal/config"
	"github.com/phuonguno98/unoperf/internal/logging"
)

var (
	// Global persistent flags (shared by subcommands)
	configPath      string
	logLevel        string
	includeNetworks string
	excludeNetworks string
)

const (
	osWindows = "windows"
	osLinux   = "linux"
	osDarwin  = "darwin"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "unoperf",
	Short: "UnoPerf - Local host performance sampler",
	Long: `UnoPerf samples CPU, memory, GPU, VRAM, temperatures, network throughput
and disk usage about once per second and serves the latest snapshot on a
loopback HTTP port (GET /performance, GET /status).

Use 'unoperf run' to start sampling in the foreground, or
'unoperf install' to register it as a systemd service.`,
	SilenceUsage: true,
	// No RunE field, so it prints help by default
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetDefaultConfigPath(),
		"Path to config.json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level override (debug, info, warn, error)")

	// Filter flags, overriding include_networks/exclude_networks
	rootCmd.PersistentFlags().StringVar(&includeNetworks, "include-networks", "",
		"Comma-separated list of network interfaces to count (empty = config value)")
	rootCmd.PersistentFlags().StringVar(&excludeNetworks, "exclude-networks", "",
		"Comma-separated list of network interfaces to exclude (empty = config value)")
}

// loadConfig reads the configuration named by --config.
// The returned Config is always usable; the error lists what fell back to defaults.
// Flag overrides go through the same validation as the file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if includeNetworks != "" {
		cfg.IncludeNetworks = config.ParseCommaSeparated(includeNetworks)
	}
	if excludeNetworks != "" {
		cfg.ExcludeNetworks = config.ParseCommaSeparated(excludeNetworks)
	}

	if vErr := cfg.Validate(); vErr != nil {
		err = errors.Join(err, cfg.Repair())
	}
	return cfg, err
}

// consoleLogger returns a console-only logger for short-lived commands.
func consoleLogger(w io.Writer, level string) *slog.Logger {
	logger, _, _ := logging.New(level, "", "", w)
	return logger
}

// checkPlatformCapabilities logs platform-specific capability warnings.
func checkPlatformCapabilities(logger *slog.Logger) {
	switch runtime.GOOS {
	case osWindows:
		logger.Info("Running on Windows: GPU counters and ACPI temperature are read through PowerShell")
	case osDarwin:
		logger.Warn("Running on macOS: GPU metrics are not available, CPU temperature depends on SMC sensors")
	case osLinux:
		logger.Info("Running on Linux: GPU metrics via nvidia-smi or DRM sysfs")
	default:
		logger.Warn("Running on unsupported platform, some metrics will report 0 or null", "os", runtime.GOOS)
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
