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

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuonguno98/unoperf/internal/collector"
	"github.com/phuonguno98/unoperf/internal/config"
	"github.com/phuonguno98/unoperf/pkg/metrics"
)

type constSampler float64

func (c constSampler) Sample(context.Context) collector.Reading {
	return collector.Available(float64(c))
}

type windowMeter struct{}

func (windowMeter) Measure(ctx context.Context, window time.Duration) (metrics.Throughput, error) {
	select {
	case <-time.After(window):
		return metrics.Throughput{UploadKbps: 8, DownloadKbps: 64}, nil
	case <-ctx.Done():
		return metrics.Throughput{}, ctx.Err()
	}
}

type staticDisks map[string]string

func (d staticDisks) Usage(context.Context) (map[string]string, error) {
	return d, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (r *recordingNotifier) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return false, nil
}

func fakeSources() *collector.Sources {
	return &collector.Sources{
		CPU:     constSampler(17.5),
		Memory:  constSampler(60),
		CPUTemp: constSampler(48),
		Network: windowMeter{},
		Disk:    staticDisks{"c": "50.0 GB/100.0 GB"},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.SampleWindow = config.Duration(40 * time.Millisecond)
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runningApp struct {
	app  *App
	stop func() error
}

func start(t *testing.T, cfg *config.Config, opts Options) runningApp {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	a := New(ctx, cfg, testLogger(), opts)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	return runningApp{app: a, stop: func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after cancellation")
			return nil
		}
	}}
}

func waitCycles(t *testing.T, a *App, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return a.Loop().Stats().Cycles >= n }, 5*time.Second, 10*time.Millisecond)
}

func getPerformance(t *testing.T, base string) metrics.Snapshot {
	t.Helper()
	resp, err := http.Get(base + "/performance")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var s metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func TestApp_EndToEnd(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := testConfig(t)
	notifier := &recordingNotifier{}
	r := start(t, cfg, Options{Sources: fakeSources(), Listener: ln, Notify: notifier.notify})

	waitCycles(t, r.app, 2)

	base := "http://" + ln.Addr().String()
	first := getPerformance(t, base)
	second := getPerformance(t, base)

	assert.True(t, first.Valid(), "first snapshot invalid: %+v", first)
	assert.True(t, second.Valid(), "second snapshot invalid: %+v", second)
	assert.False(t, second.CapturedAt.Before(first.CapturedAt))
	assert.Equal(t, 17.5, second.CPUPercent)
	assert.Equal(t, 64.0, second.DownloadKbps)
	require.NotNil(t, second.GPUUsagePercent)
	assert.Zero(t, *second.GPUUsagePercent)
	require.NotNil(t, second.CPUTempCelsius)
	assert.Equal(t, 48.0, *second.CPUTempCelsius)
	assert.Nil(t, second.GPUTempCelsius)

	// The loop mirrors every snapshot to disk
	data, err := os.ReadFile(cfg.SnapshotPath())
	require.NoError(t, err)
	var persisted metrics.Snapshot
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, 17.5, persisted.CPUPercent)

	require.NoError(t, r.stop())
	assert.Equal(t, collector.Stopped, r.app.Loop().State())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, notifier.states)
}

func TestApp_ConfiguredPort(t *testing.T) {
	// Find a free port, then hand it to the config file
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := probe.Addr().(*net.TCPAddr).Port
	require.NoError(t, probe.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`{"port": %d}`, port)), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.DataDir = dir
	cfg.SampleWindow = config.Duration(40 * time.Millisecond)

	r := start(t, cfg, Options{Sources: fakeSources(), Notify: (&recordingNotifier{}).notify})
	defer func() { require.NoError(t, r.stop()) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/status", port))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.EqualValues(t, port, status["port"])
	assert.Equal(t, false, status["gpu_available"])
}

func TestApp_BindFailureKeepsSampling(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig(t)
	cfg.Port = occupied.Addr().(*net.TCPAddr).Port

	r := start(t, cfg, Options{Sources: fakeSources(), Notify: (&recordingNotifier{}).notify})

	// The responder failed to bind, yet the loop keeps publishing
	waitCycles(t, r.app, 2)
	assert.Equal(t, collector.Running, r.app.Loop().State())
	require.NotNil(t, r.app.Store().Latest())

	err = r.stop()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "http responder"), "unexpected error: %v", err)
}
