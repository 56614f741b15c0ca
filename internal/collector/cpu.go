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
	"sync"
	"time"

	"github.com/phuonguno98/unoperf/pkg/metrics"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Dependency injection point for testing
var cpuTimes = cpu.TimesWithContext

// CPUCollector reports CPU utilization as the busy share of CPU time since the
// previous call.
type CPUCollector struct {
	mu          sync.Mutex
	prevStats   metrics.CPUTimeStats
	firstRun    bool
	firstWindow time.Duration
}

// NewCPUCollector creates a new CPU collector instance.
// On the first call it measures over firstWindow instead of returning a
// meaningless baseline.
func NewCPUCollector(firstWindow time.Duration) *CPUCollector {
	return &CPUCollector{
		firstRun:    true,
		firstWindow: firstWindow,
	}
}

// Sample implements Sampler.
func (c *CPUCollector) Sample(ctx context.Context) Reading {
	util, err := c.Collect(ctx)
	if err != nil {
		return Unavailable
	}
	return Available(util)
}

// Collect gathers current CPU times and calculates utilization.
func (c *CPUCollector) Collect(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firstRun {
		baseline, err := c.getCPUTimeStats(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to get CPU stats: %w", err)
		}
		c.prevStats = baseline
		c.firstRun = false
		if err := wait(ctx, c.firstWindow); err != nil {
			return 0, err
		}
	}

	currentStats, err := c.getCPUTimeStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get CPU stats: %w", err)
	}

	utilization := metrics.CalculateCPUUtilization(&c.prevStats, &currentStats)
	c.prevStats = currentStats

	return utilization, nil
}

// getCPUTimeStats retrieves CPU time statistics aggregated across all CPUs.
func (c *CPUCollector) getCPUTimeStats(ctx context.Context) (metrics.CPUTimeStats, error) {
	stats := metrics.CPUTimeStats{
		Timestamp: time.Now(),
	}

	times, err := cpuTimes(ctx, false)
	if err != nil {
		return stats, err
	}

	if len(times) == 0 {
		return stats, fmt.Errorf("no CPU time stats available")
	}

	t := times[0]

	stats.User = t.User + t.Nice
	stats.System = t.System
	stats.Idle = t.Idle
	stats.IOWait = t.Iowait
	stats.Irq = t.Irq
	stats.SoftIrq = t.Softirq
	stats.Steal = t.Steal
	stats.Guest = t.Guest
	stats.GuestNice = t.GuestNice

	return stats, nil
}

// Name returns the collector name for logging purposes.
func (c *CPUCollector) Name() string {
	return "CPU"
}
