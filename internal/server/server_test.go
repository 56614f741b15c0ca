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

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/phuonguno98/unoperf/internal/collector"
	"github.com/phuonguno98/unoperf/internal/config"
	"github.com/phuonguno98/unoperf/internal/exporter"
	"github.com/phuonguno98/unoperf/internal/store"
	"github.com/phuonguno98/unoperf/pkg/metrics"
)

type fakeLoop struct {
	state collector.State
	stats collector.Stats
}

func (f fakeLoop) State() collector.State { return f.state }
func (f fakeLoop) Stats() collector.Stats { return f.stats }

type fakeGPU struct{}

func (fakeGPU) Name() string                                { return collector.GPUSourceNvidiaSMI }
func (fakeGPU) Device() string                              { return "NVIDIA GeForce RTX 3060" }
func (fakeGPU) Sample(context.Context) collector.GPUReading { return collector.GPUReading{} }

type testEnv struct {
	srv      *Server
	store    *store.Store
	snapshot string
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	file := exporter.NewJSONExporter(cfg.SnapshotPath())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(file, logger)

	opts := Options{
		Config: cfg,
		Store:  st,
		Loop:   fakeLoop{state: collector.Running},
		GPU:    fakeGPU{},
		Logger: logger,
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &testEnv{srv: NewServer(opts), store: st, snapshot: cfg.SnapshotPath()}
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w.Result()
}

func decodeSnapshot(t *testing.T, resp *http.Response) metrics.Snapshot {
	t.Helper()
	var s metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("invalid snapshot JSON: %v", err)
	}
	return s
}

func TestServer_PerformanceColdStart(t *testing.T) {
	env := newTestEnv(t, nil)
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	env.srv.now = func() time.Time { return fixed }

	resp := env.get(t, "/performance")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /performance status = %v, want %v", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	s := decodeSnapshot(t, resp)
	if s.CPUPercent != 0 || s.MemoryPercent != 0 {
		t.Errorf("default snapshot has cpu=%v memory=%v", s.CPUPercent, s.MemoryPercent)
	}
	if !s.CapturedAt.Equal(fixed) {
		t.Errorf("captured_at = %v, want %v", s.CapturedAt, fixed)
	}
}

func TestServer_PerformanceFromFile(t *testing.T) {
	env := newTestEnv(t, nil)
	persisted := `{"cpu_percent":21.5,"memory_percent":40,"captured_at":"2026-06-01T09:59:59Z"}`
	if err := os.WriteFile(env.snapshot, []byte(persisted), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := env.get(t, "/performance")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %v, body = %s", resp.StatusCode, body)
	}
	if string(body) != persisted {
		t.Errorf("body = %s, want persisted file verbatim", body)
	}
}

func TestServer_PerformanceCorruptFile(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := os.WriteFile(env.snapshot, []byte(`{"cpu_percent":`), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := env.get(t, "/performance")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %v, want 500", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body["error"], "parse") {
		t.Errorf("error = %q, want parse failure description", body["error"])
	}
}

func TestServer_PerformanceFromMemory(t *testing.T) {
	env := newTestEnv(t, nil)
	snapshot := metrics.Default(time.Now())
	snapshot.CPUPercent = 63.2
	snapshot.DiskUsage["c"] = "100.0 GB/200.0 GB"
	if err := env.store.Publish(snapshot); err != nil {
		t.Fatal(err)
	}

	s := decodeSnapshot(t, env.get(t, "/performance"))
	if s.CPUPercent != 63.2 || s.DiskUsage["c"] != "100.0 GB/200.0 GB" {
		t.Errorf("got %+v", s)
	}
}

func TestServer_Status(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Options)
		wantStatus string
		wantGPU    bool
		wantSource string
		wantName   string
	}{
		{
			name:       "Running with GPU",
			wantStatus: "running",
			wantGPU:    true,
			wantSource: collector.GPUSourceNvidiaSMI,
			wantName:   "NVIDIA GeForce RTX 3060",
		},
		{
			name: "Stopped loop without GPU",
			mutate: func(o *Options) {
				o.Loop = fakeLoop{state: collector.Stopped}
				o.GPU = nil
			},
			wantStatus: "stopped",
			wantSource: collector.GPUSourceUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.mutate)
			resp := env.get(t, "/status")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status code = %v", resp.StatusCode)
			}

			var got StatusResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.Service != config.DisplayName || got.Port != config.DefaultPort {
				t.Errorf("service/port = %q/%d", got.Service, got.Port)
			}
			if got.GPUAvailable != tt.wantGPU || got.GPUSource != tt.wantSource || got.GPUName != tt.wantName {
				t.Errorf("gpu = %v/%q/%q", got.GPUAvailable, got.GPUSource, got.GPUName)
			}
			if got.Timestamp.IsZero() {
				t.Error("timestamp is zero")
			}
		})
	}
}

func TestServer_Middleware(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.get(t, "/status")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if id := resp.Header.Get("X-Request-Id"); len(id) != 36 {
		t.Errorf("X-Request-Id = %q, want generated UUID", id)
	}

	// A valid client supplied ID is echoed back
	req := httptest.NewRequest(http.MethodGet, "/status", http.NoBody)
	req.Header.Set("X-Request-Id", "3f1c2e4a-9b7d-4c1e-8a2f-6d5b4c3a2e1f")
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-Id"); got != "3f1c2e4a-9b7d-4c1e-8a2f-6d5b4c3a2e1f" {
		t.Errorf("X-Request-Id = %q, want echo", got)
	}

	// Preflight
	req = httptest.NewRequest(http.MethodOptions, "/performance", http.NoBody)
	w = httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %v, want 200", w.Code)
	}

	// Read-only surface
	req = httptest.NewRequest(http.MethodPost, "/performance", strings.NewReader("{}"))
	w = httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %v, want 405", w.Code)
	}
}

func TestServer_RateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Config.RateLimit = 0.001
		o.Config.RateBurst = 1
	})

	if resp := env.get(t, "/api/version"); resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %v", resp.StatusCode)
	}
	resp := env.get(t, "/api/version")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request status = %v, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Core endpoints are never throttled
	for _, path := range []string{"/performance", "/status", "/performance", "/status"} {
		if resp := env.get(t, path); resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %v, want 200", path, resp.StatusCode)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Loop = fakeLoop{state: collector.Running, stats: collector.Stats{Cycles: 7, PersistenceFailures: 1}}
	})
	snapshot := metrics.Default(time.Now())
	snapshot.CPUPercent = 42
	snapshot.CPUTempCelsius = metrics.Float64(51.5)
	snapshot.DiskUsage["c"] = "1.0 GB/2.0 GB"
	if err := env.store.Publish(snapshot); err != nil {
		t.Fatal(err)
	}

	resp := env.get(t, "/metrics")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %v", resp.StatusCode)
	}

	for _, want := range []string{
		"unoperf_host_cpu_percent 42",
		"unoperf_host_cpu_temperature_celsius 51.5",
		`unoperf_host_disk_usage_info{drive="c",usage="1.0 GB/2.0 GB"} 1`,
		"unoperf_collection_cycles_total 7",
		"unoperf_persistence_failures_total 1",
		"unoperf_sampling_loop_running 1",
		"unoperf_snapshots_published_total 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	// Absent temperature is omitted rather than reported as zero
	if strings.Contains(string(body), "\nunoperf_host_gpu_temperature_celsius ") {
		t.Error("gpu temperature exported without a reading")
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Config.EnableMetrics = false })
	if resp := env.get(t, "/metrics"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /metrics status = %v, want 404", resp.StatusCode)
	}
}

func TestServer_VersionAndIndex(t *testing.T) {
	env := newTestEnv(t, nil)

	var info map[string]string
	if err := json.NewDecoder(env.get(t, "/api/version").Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info["version"] == "" {
		t.Errorf("version info = %v", info)
	}

	resp := env.get(t, "/")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "/ws") {
		t.Errorf("GET / status = %v", resp.StatusCode)
	}
}

func TestServer_WebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Current snapshot on connect
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("initial Read() error = %v", err)
	}
	var initial metrics.Snapshot
	if err := json.Unmarshal(data, &initial); err != nil {
		t.Fatal(err)
	}

	// Wait for the subscription before publishing
	deadline := time.Now().Add(2 * time.Second)
	for env.store.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	published := metrics.Default(time.Now())
	published.MemoryPercent = 77.7
	if err := env.store.Publish(published); err != nil {
		t.Fatal(err)
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var got metrics.Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.MemoryPercent != 77.7 {
		t.Errorf("memory = %v, want 77.7", got.MemoryPercent)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/status"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	if env.srv.Addr() == nil {
		t.Error("Addr() is nil while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return")
	}
}

func TestServer_StartBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	env := newTestEnv(t, func(o *Options) {
		o.Config.Port = occupied.Addr().(*net.TCPAddr).Port
	})

	if err := env.srv.Start(context.Background()); err == nil {
		t.Error("Start() on an occupied port succeeded, want error")
	}
}

func TestServer_SnapshotPathLayout(t *testing.T) {
	env := newTestEnv(t, nil)
	if filepath.Base(env.snapshot) != config.SnapshotFileName {
		t.Errorf("snapshot file = %q", env.snapshot)
	}
}
