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
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phuonguno98/unoperf/internal/app"
	"github.com/phuonguno98/unoperf/internal/config"
	"github.com/phuonguno98/unoperf/internal/logging"
	"github.com/phuonguno98/unoperf/pkg/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample host metrics and serve them until stopped",
	Long: `Run the sampling loop and the HTTP responder in the foreground.
SIGINT or SIGTERM stops both. When started by systemd with Type=notify,
readiness and stopping are reported through sd_notify.

Examples:
  # Run with the config.json next to the binary
  unoperf run

  # Run with an explicit config and verbose logging
  unoperf run --config /etc/unoperf/config.json --log-level debug`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runService is the main monitoring entry point.
func runService(_ *cobra.Command, _ []string) error {
	cfg, cfgErr := loadConfig()

	logger, sink, logErr := logging.New(cfg.LogLevel, cfg.LogDir, config.LogFileName, os.Stdout)
	defer func() {
		if dropped := sink.Dropped(); dropped > 0 {
			logger.Warn("Log records could not be written to the log file", "dropped", dropped, "path", sink.Path())
		}
		if err := sink.Close(); err != nil {
			logger.Error("Failed to close log file", "error", err)
		}
	}()
	if logErr != nil {
		logger.Warn("Logging to console only", "error", logErr)
	}
	if cfgErr != nil {
		logger.Warn("Configuration problems, affected fields use defaults", "path", configPath, "error", cfgErr)
	}

	logger.Info("Starting UnoPerf",
		"version", version.Info(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH,
		"log_file", sink.Path(),
	)
	logger.Info("Configuration loaded", "config", cfg.String())

	checkPlatformCapabilities(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(ctx, cfg, logger, app.Options{}).Run(ctx); err != nil {
		logger.Error("UnoPerf stopped with error", "error", err)
		return err
	}
	return nil
}
