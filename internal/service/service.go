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

// Package service manages UnoPerf as a systemd unit over D-Bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/unit"

	"github.com/phuonguno98/unoperf/internal/config"
)

const (
	// DefaultUnitDir is where system units are installed.
	DefaultUnitDir = "/etc/systemd/system"

	jobMode = "replace"
	jobDone = "done"
)

// ErrUnsupported is returned on hosts without systemd.
var ErrUnsupported = errors.New("service management requires systemd on linux")

// ErrNotInstalled is returned when operating on a unit that was never installed.
var ErrNotInstalled = errors.New("service is not installed")

// systemdConn is the subset of *dbus.Conn used here.
type systemdConn interface {
	ReloadContext(ctx context.Context) error
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	Close()
}

// Options describe the unit to manage.
type Options struct {
	Name       string // Unit base name, without .service
	ExecPath   string // Absolute path of the binary
	ConfigPath string // Passed to `run --config`
	UnitDir    string
	Logger     *slog.Logger
}

// Status is the current state of the unit.
type Status struct {
	Installed   bool
	LoadState   string
	ActiveState string
	SubState    string
}

// Running reports whether the unit is active.
func (s Status) Running() bool {
	return s.ActiveState == "active"
}

func (s Status) String() string {
	if !s.Installed {
		return "not installed"
	}
	if s.ActiveState == "" {
		return "installed"
	}
	return fmt.Sprintf("%s (%s)", s.ActiveState, s.SubState)
}

// Controller installs, starts, stops and removes the unit.
type Controller struct {
	conn   systemdConn
	opts   Options
	logger *slog.Logger
}

// Connect opens a connection to the system manager.
func Connect(ctx context.Context, opts Options) (*Controller, error) {
	if runtime.GOOS != "linux" {
		return nil, ErrUnsupported
	}
	conn, err := dbus.NewSystemdConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return newController(conn, opts), nil
}

// DefaultOptions returns options for the running executable.
func DefaultOptions(configPath string, logger *slog.Logger) (Options, error) {
	exe, err := os.Executable()
	if err != nil {
		return Options{}, fmt.Errorf("failed to resolve executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return Options{
		Name:       config.ServiceName,
		ExecPath:   exe,
		ConfigPath: configPath,
		UnitDir:    DefaultUnitDir,
		Logger:     logger,
	}, nil
}

func newController(conn systemdConn, opts Options) *Controller {
	if opts.Name == "" {
		opts.Name = config.ServiceName
	}
	if opts.UnitDir == "" {
		opts.UnitDir = DefaultUnitDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{conn: conn, opts: opts, logger: logger}
}

// Close releases the D-Bus connection.
func (c *Controller) Close() {
	c.conn.Close()
}

// UnitName returns the full unit name.
func (c *Controller) UnitName() string {
	return c.opts.Name + ".service"
}

// UnitPath returns the unit file path.
func (c *Controller) UnitPath() string {
	return filepath.Join(c.opts.UnitDir, c.UnitName())
}

// Unit renders the unit file.
func (c *Controller) Unit() io.Reader {
	execStart := quote(c.opts.ExecPath) + " run"
	if c.opts.ConfigPath != "" {
		execStart += " --config " + quote(c.opts.ConfigPath)
	}

	return unit.Serialize([]*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", config.DisplayName),
		unit.NewUnitOption("Unit", "After", "network.target"),
		unit.NewUnitOption("Service", "Type", "notify"),
		unit.NewUnitOption("Service", "ExecStart", execStart),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Service", "RestartSec", "5"),
		unit.NewUnitOption("Install", "WantedBy", "multi-user.target"),
	})
}

// Install writes the unit file, reloads the manager and enables the unit.
func (c *Controller) Install(ctx context.Context) error {
	data, err := io.ReadAll(c.Unit())
	if err != nil {
		return fmt.Errorf("failed to render unit: %w", err)
	}
	if err := os.MkdirAll(c.opts.UnitDir, 0o755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	if err := os.WriteFile(c.UnitPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if err := c.conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if _, _, err := c.conn.EnableUnitFilesContext(ctx, []string{c.UnitPath()}, false, true); err != nil {
		return fmt.Errorf("failed to enable %s: %w", c.UnitName(), err)
	}

	c.logger.Info("Service installed", "unit", c.UnitPath())
	return nil
}

// Start starts the unit and waits for the job to finish.
func (c *Controller) Start(ctx context.Context) error {
	if !c.installed() {
		return ErrNotInstalled
	}
	ch := make(chan string, 1)
	if _, err := c.conn.StartUnitContext(ctx, c.UnitName(), jobMode, ch); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.UnitName(), err)
	}
	return c.waitJob(ctx, "start", ch)
}

// Stop stops the unit and waits for the job to finish.
func (c *Controller) Stop(ctx context.Context) error {
	if !c.installed() {
		return ErrNotInstalled
	}
	ch := make(chan string, 1)
	if _, err := c.conn.StopUnitContext(ctx, c.UnitName(), jobMode, ch); err != nil {
		return fmt.Errorf("failed to stop %s: %w", c.UnitName(), err)
	}
	return c.waitJob(ctx, "stop", ch)
}

// Remove stops and disables the unit, then deletes the unit file.
func (c *Controller) Remove(ctx context.Context) error {
	if !c.installed() {
		return ErrNotInstalled
	}

	status, err := c.Status(ctx)
	if err == nil && status.Running() {
		if err := c.Stop(ctx); err != nil {
			c.logger.Warn("Failed to stop service before removal", "error", err)
		}
	}

	if _, err := c.conn.DisableUnitFilesContext(ctx, []string{c.UnitName()}, false); err != nil {
		return fmt.Errorf("failed to disable %s: %w", c.UnitName(), err)
	}
	if err := os.Remove(c.UnitPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	if err := c.conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	c.logger.Info("Service removed", "unit", c.UnitName())
	return nil
}

// Status reports whether the unit is installed and its runtime state.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	status := Status{Installed: c.installed()}
	if !status.Installed {
		return status, nil
	}

	units, err := c.conn.ListUnitsByNamesContext(ctx, []string{c.UnitName()})
	if err != nil {
		return status, fmt.Errorf("failed to query %s: %w", c.UnitName(), err)
	}
	for _, u := range units {
		if u.Name == c.UnitName() {
			status.LoadState = u.LoadState
			status.ActiveState = u.ActiveState
			status.SubState = u.SubState
		}
	}
	return status, nil
}

func (c *Controller) installed() bool {
	_, err := os.Stat(c.UnitPath())
	return err == nil
}

func (c *Controller) waitJob(ctx context.Context, action string, ch <-chan string) error {
	select {
	case result := <-ch:
		if result != jobDone {
			return fmt.Errorf("%s job for %s finished with %q", action, c.UnitName(), result)
		}
		c.logger.Info("Service job finished", "action", action, "unit", c.UnitName())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s job: %w", action, ctx.Err())
	}
}

// quote wraps values containing spaces for ExecStart.
func quote(s string) string {
	if !strings.ContainsAny(s, " \t") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
