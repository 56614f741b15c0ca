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
	"time"

	"github.com/phuonguno98/unoperf/pkg/metrics"
	"github.com/shirou/gopsutil/v3/net"
)

// Dependency injection point for testing
var netIOCounters = net.IOCountersWithContext

// NetworkCollector measures upload and download throughput summed over the
// monitored interfaces.
type NetworkCollector struct {
	includeInterfaces []string // Interfaces to monitor (empty = all)
	excludeInterfaces []string // Interfaces to exclude
}

// NewNetworkCollector creates a new network collector instance.
// includeInterfaces: list of interface names to monitor (empty = all available)
// excludeInterfaces: list of interface names to exclude
func NewNetworkCollector(includeInterfaces, excludeInterfaces []string) *NetworkCollector {
	return &NetworkCollector{
		includeInterfaces: includeInterfaces,
		excludeInterfaces: excludeInterfaces,
	}
}

// Measure reads the byte counters, waits for window, reads them again and
// returns the rate in kilobits per second. It occupies the caller for the
// whole window; this wait is what paces the sampling loop.
func (n *NetworkCollector) Measure(ctx context.Context, window time.Duration) (metrics.Throughput, error) {
	before, err := n.readCounters(ctx)
	if err != nil {
		return metrics.Throughput{}, err
	}

	if err := wait(ctx, window); err != nil {
		return metrics.Throughput{}, err
	}

	after, err := n.readCounters(ctx)
	if err != nil {
		return metrics.Throughput{}, err
	}

	prev, current := aggregate(before, after)
	return metrics.CalculateThroughput(prev, current), nil
}

// readCounters returns the counters of every monitored interface.
func (n *NetworkCollector) readCounters(ctx context.Context) (map[string]metrics.NetworkIOStats, error) {
	ioCounters, err := netIOCounters(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get network I/O counters: %w", err)
	}

	now := time.Now()
	result := make(map[string]metrics.NetworkIOStats, len(ioCounters))

	for _, counter := range ioCounters {
		interfaceName := counter.Name

		// Skip loopback interfaces
		if n.isLoopback(interfaceName) {
			continue
		}

		// Apply filters
		if !n.shouldMonitor(interfaceName) {
			continue
		}

		result[interfaceName] = metrics.NetworkIOStats{
			BytesSent: counter.BytesSent,
			BytesRecv: counter.BytesRecv,
			Timestamp: now,
		}
	}

	return result, nil
}

// aggregate sums the interfaces present in both reads. An interface whose
// counter went backwards contributes no traffic for that direction.
func aggregate(before, after map[string]metrics.NetworkIOStats) (prev, current metrics.NetworkIOStats) {
	for name, b := range before {
		a, ok := after[name]
		if !ok {
			continue
		}

		prev.BytesSent += b.BytesSent
		prev.BytesRecv += b.BytesRecv
		current.BytesSent += max(a.BytesSent, b.BytesSent)
		current.BytesRecv += max(a.BytesRecv, b.BytesRecv)

		prev.Timestamp = b.Timestamp
		current.Timestamp = a.Timestamp
	}
	return prev, current
}

// Monitors reports whether throughput of interfaceName is counted.
func (n *NetworkCollector) Monitors(interfaceName string) bool {
	return !n.isLoopback(interfaceName) && n.shouldMonitor(interfaceName)
}

// isLoopback checks if an interface is a loopback interface.
func (n *NetworkCollector) isLoopback(interfaceName string) bool {
	// Common loopback interface names
	loopbacks := []string{"lo", "lo0", "Loopback"}
	for _, lo := range loopbacks {
		if interfaceName == lo {
			return true
		}
	}
	return len(interfaceName) >= 8 && interfaceName[:8] == "Loopback"
}

// shouldMonitor checks if an interface should be monitored based on include/exclude filters.
func (n *NetworkCollector) shouldMonitor(interfaceName string) bool {
	// Check exclude list first
	for _, excluded := range n.excludeInterfaces {
		if excluded == interfaceName {
			return false
		}
	}

	// If include list is empty, monitor all (except excluded)
	if len(n.includeInterfaces) == 0 {
		return true
	}

	// Check include list
	for _, included := range n.includeInterfaces {
		if included == interfaceName {
			return true
		}
	}

	return false
}

// Name returns the collector name for logging purposes.
func (n *NetworkCollector) Name() string {
	return "Network"
}
