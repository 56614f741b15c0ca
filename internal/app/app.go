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

// Package app wires up and runs the sampling loop and the HTTP responder.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"github.com/phuonguno98/unoperf/internal/collector"
	"github.com/phuonguno98/unoperf/internal/config"
	"github.com/phuonguno98/unoperf/internal/exporter"
	"github.com/phuonguno98/unoperf/internal/server"
	"github.com/phuonguno98/unoperf/internal/store"
)

// Notifier reports lifecycle state to a service supervisor.
type Notifier func(state string) (bool, error)

// Options override host-facing dependencies, mainly for tests.
type Options struct {
	Sources  *collector.Sources // nil probes the host
	Listener net.Listener       // nil binds the configured address
	Notify   Notifier           // nil uses sd_notify
}

// App is the process-scoped context: everything the loop and the responder
// share, built once in a fixed order.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	assembler *collector.Assembler
	loop      *collector.Manager
	server    *server.Server
	listener  net.Listener
	notify    Notifier
}

// New builds the application: snapshot store, sources, sampling loop, then
// the responder. Probing the host for GPU and temperature sources happens here.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) *App {
	appLogger := logger.With("component", "app")

	file := exporter.NewJSONExporter(cfg.SnapshotPath())
	st := store.New(file, logger.With("component", "store"))
	appLogger.Info("Snapshot store ready", "path", file.Path())

	var sources collector.Sources
	if opts.Sources != nil {
		sources = *opts.Sources
	} else {
		sources = collector.NewSources(ctx, cfg, logger.With("component", "collector"))
	}

	assembler := collector.NewAssembler(sources, cfg.SampleWindow.Std(), logger.With("component", "assembler"))
	loop := collector.NewManager(assembler, st, cfg.SampleWindow.Std(), logger.With("component", "loop"))

	srv := server.NewServer(server.Options{
		Config: cfg,
		Store:  st,
		Loop:   loop,
		GPU:    assembler.GPUSource(),
		Logger: logger.With("component", "http"),
	})

	notify := opts.Notify
	if notify == nil {
		notify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }
	}

	return &App{
		cfg:       cfg,
		logger:    appLogger,
		store:     st,
		assembler: assembler,
		loop:      loop,
		server:    srv,
		listener:  opts.Listener,
		notify:    notify,
	}
}

// Store returns the snapshot store.
func (a *App) Store() *store.Store { return a.store }

// Loop returns the sampling loop.
func (a *App) Loop() *collector.Manager { return a.loop }

// Server returns the HTTP responder.
func (a *App) Server() *server.Server { return a.server }

// Run starts the loop and the responder and blocks until ctx is cancelled.
// The two are independent failure domains: if the responder cannot bind, the
// failure is logged and the loop keeps sampling until the stop signal.
func (a *App) Run(ctx context.Context) error {
	// No shared context: one task failing must not cancel the other
	var g errgroup.Group

	g.Go(func() error {
		if err := a.loop.Start(ctx); err != nil {
			a.logger.Error("Sampling loop stopped with error", "error", err)
			return fmt.Errorf("sampling loop: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if a.listener != nil {
			err = a.server.Serve(ctx, a.listener)
		} else {
			err = a.server.Start(ctx)
		}
		if err != nil {
			a.logger.Error("HTTP responder stopped, sampling continues", "error", err)
			return fmt.Errorf("http responder: %w", err)
		}
		return nil
	})

	if sent, err := a.notify(daemon.SdNotifyReady); err != nil {
		a.logger.Warn("Failed to notify service manager", "error", err)
	} else if sent {
		a.logger.Debug("Service manager notified", "state", "ready")
	}

	a.logger.Info("UnoPerf is running", "address", a.cfg.Address())

	<-ctx.Done()
	a.logger.Info("Shutdown initiated", "reason", context.Cause(ctx))
	if _, err := a.notify(daemon.SdNotifyStopping); err != nil {
		a.logger.Debug("Failed to notify service manager", "error", err)
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.logger.Info("Shutdown complete", "cycles", a.loop.Stats().Cycles)
	return nil
}
