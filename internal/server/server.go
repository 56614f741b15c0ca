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

// Package server implements the loopback HTTP responder.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/phuonguno98/unoperf/internal/collector"
	"github.com/phuonguno98/unoperf/internal/config"
	"github.com/phuonguno98/unoperf/internal/store"
	"github.com/phuonguno98/unoperf/pkg/version"
	"github.com/phuonguno98/unoperf/web"
)

const shutdownTimeout = 5 * time.Second

// LoopStatus reports the state of the sampling loop.
type LoopStatus interface {
	State() collector.State
	Stats() collector.Stats
}

// Options holds the dependencies of the responder.
type Options struct {
	Config *config.Config
	Store  *store.Store
	Loop   LoopStatus          // Optional
	GPU    collector.GPUSource // Optional; nil reports no GPU
	Logger *slog.Logger
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status       string    `json:"status"`
	Service      string    `json:"service"`
	Port         int       `json:"port"`
	GPUAvailable bool      `json:"gpu_available"`
	GPUSource    string    `json:"gpu_source"`
	GPUName      string    `json:"gpu_name,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Server is the read-only HTTP responder. It never blocks on the sampling loop.
type Server struct {
	config      *config.Config
	store       *store.Store
	loop        LoopStatus
	gpu         collector.GPUSource
	logger      *slog.Logger
	router      *mux.Router
	rateLimiter *rate.Limiter
	now         func() time.Time

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates the responder and sets up its routes.
func NewServer(opts Options) *Server {
	s := &Server{
		config:      opts.Config,
		store:       opts.Store,
		loop:        opts.Loop,
		gpu:         opts.GPU,
		logger:      opts.Logger,
		router:      mux.NewRouter(),
		rateLimiter: rate.NewLimiter(rate.Limit(opts.Config.RateLimit), opts.Config.RateBurst),
		now:         time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/version", s.handleGetVersion).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start binds the configured loopback address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		// Long-lived websocket handlers end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("HTTP responder listening", "address", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return fmt.Errorf("http responder failed: %w", err)
	}
}

// Shutdown closes the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP responder stopping...")
	return srv.Shutdown(shutdownCtx)
}

// Addr returns the bound address once serving, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleIndex serves the live dashboard.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	indexFile, err := web.Assets.Open("index.html")
	if err != nil {
		s.logger.Error("Failed to open index.html", "error", err)
		http.Error(w, "Internal Server Error: index.html not found", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := indexFile.Close(); err != nil {
			s.logger.Warn("Failed to close index.html", "error", err)
		}
	}()

	if _, err := io.Copy(w, indexFile); err != nil {
		s.logger.Error("Failed to serve index.html", "error", err)
	}
}

// handlePerformance returns the current snapshot: in memory, else the
// persisted file, else the all-zero default.
func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	data, err := s.store.Resolve(s.now())
	if err != nil {
		s.logger.Error("Error serving performance data", "error", err)
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("Failed to write performance response", "error", err)
	}
}

// handleStatus reports service health independently of the snapshot store.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:    collector.Running.String(),
		Service:   config.DisplayName,
		Port:      s.config.Port,
		GPUSource: collector.GPUSourceUnsupported,
		Timestamp: s.now(),
	}
	if s.loop != nil {
		resp.Status = s.loop.State().String()
	}
	if s.gpu != nil {
		resp.GPUSource = s.gpu.Name()
		resp.GPUName = s.gpu.Device()
	}
	resp.GPUAvailable = resp.GPUSource != collector.GPUSourceUnsupported

	s.writeJSON(w, resp)
}

// handleGetVersion returns version information from the version package.
func (s *Server) handleGetVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, version.Map())
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	}); err != nil {
		s.logger.Error("Failed to write error response", "error", err)
	}
}
