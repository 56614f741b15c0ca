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

package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

// State is the sampling loop state.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Cycle produces one snapshot per call.
type Cycle interface {
	Assemble(ctx context.Context) *metrics.Snapshot
}

// Publisher receives every assembled snapshot.
type Publisher interface {
	Publish(snapshot *metrics.Snapshot) error
}

// Stats are the loop counters exposed on /metrics.
type Stats struct {
	Cycles              uint64
	PersistenceFailures uint64
	CycleFaults         uint64
	LastCycleDuration   time.Duration
}

// Manager is the sampling loop: it assembles a snapshot, publishes it, and
// starts the next cycle. The cycle duration is the cadence; minPeriod only
// pads cycles that finished early.
type Manager struct {
	cycle     Cycle
	publisher Publisher
	minPeriod time.Duration
	logger    *slog.Logger

	state        atomic.Int32
	cycles       atomic.Uint64
	persistFails atomic.Uint64
	cycleFaults  atomic.Uint64
	lastDuration atomic.Int64
}

// NewManager creates a new sampling loop.
func NewManager(cycle Cycle, publisher Publisher, minPeriod time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		cycle:     cycle,
		publisher: publisher,
		minPeriod: minPeriod,
		logger:    logger,
	}
}

// Start runs the loop until ctx is cancelled. Faults inside a cycle are logged
// and the loop continues with the next one.
func (m *Manager) Start(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return fmt.Errorf("sampling loop already running")
	}
	defer m.state.Store(int32(Stopped))

	m.logger.Info("Sampling loop started", "min_period", m.minPeriod)

	for {
		if ctx.Err() != nil {
			m.logger.Info("Sampling loop stopping...")
			return nil
		}

		start := time.Now()
		m.runCycle(ctx)
		elapsed := time.Since(start)
		m.lastDuration.Store(int64(elapsed))

		if err := wait(ctx, m.minPeriod-elapsed); err != nil {
			m.logger.Info("Sampling loop stopping...")
			return nil
		}
	}
}

// runCycle assembles and publishes one snapshot.
func (m *Manager) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.cycleFaults.Add(1)
			m.logger.Error("Collection cycle failed", "panic", fmt.Sprint(r))
		}
	}()

	snapshot := m.cycle.Assemble(ctx)
	if ctx.Err() != nil {
		// Measurements were cut short by shutdown
		return
	}
	if snapshot == nil {
		snapshot = metrics.Default(time.Now())
	}

	m.cycles.Add(1)
	if err := m.publisher.Publish(snapshot); err != nil {
		m.persistFails.Add(1)
		m.logger.Error("Failed to persist snapshot", "error", err)
		return
	}

	m.logger.Debug("Snapshot published", "captured_at", snapshot.CapturedAt)
}

// State returns the current loop state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns the loop counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Cycles:              m.cycles.Load(),
		PersistenceFailures: m.persistFails.Load(),
		CycleFaults:         m.cycleFaults.Load(),
		LastCycleDuration:   time.Duration(m.lastDuration.Load()),
	}
}
