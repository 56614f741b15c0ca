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
	"sync"
	"time"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

// ThroughputMeter measures network throughput over a window.
type ThroughputMeter interface {
	Measure(ctx context.Context, window time.Duration) (metrics.Throughput, error)
}

// DiskUsageReader reports capacity per volume.
type DiskUsageReader interface {
	Usage(ctx context.Context) (map[string]string, error)
}

// Sources holds one adapter per metric family.
type Sources struct {
	CPU     Sampler
	Memory  Sampler
	GPU     GPUSource
	CPUTemp Sampler
	GPUTemp Sampler // Used when the GPU source reports no temperature
	Network ThroughputMeter
	Disk    DiskUsageReader
}

// Assembler produces exactly one Snapshot per call by running every adapter once.
type Assembler struct {
	sources Sources
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewAssembler creates an assembler. window is the network measurement window.
func NewAssembler(sources Sources, window time.Duration, logger *slog.Logger) *Assembler {
	if sources.GPU == nil {
		sources.GPU = unsupportedGPU{}
	}
	return &Assembler{
		sources: sources,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// GPUSource returns the GPU source chosen at startup.
func (a *Assembler) GPUSource() GPUSource {
	return a.sources.GPU
}

// Assemble runs all adapters in parallel and merges their results.
// The network measurement dominates the duration; the other adapters run
// inside its window. A failing adapter degrades only its own fields, and a
// fault in the assembly itself yields the default snapshot. It never panics.
func (a *Assembler) Assemble(ctx context.Context) (snapshot *metrics.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Snapshot assembly failed, using default snapshot", "panic", fmt.Sprint(r))
			snapshot = metrics.Default(a.now())
		}
	}()

	snapshot = metrics.Default(a.now())

	var (
		wg sync.WaitGroup
		mu sync.Mutex // Protects snapshot updates
	)

	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.logger.Debug("Adapter faulted, using default", "adapter", name, "panic", fmt.Sprint(r))
				}
			}()
			fn()
		}()
	}

	// Collect network throughput (occupies the whole window)
	run("network", func() {
		throughput, err := a.sources.Network.Measure(ctx, a.window)
		if err != nil {
			a.logger.Debug("Network throughput unavailable", "error", err)
			return
		}
		mu.Lock()
		snapshot.UploadKbps = throughput.UploadKbps
		snapshot.DownloadKbps = throughput.DownloadKbps
		mu.Unlock()
	})

	// Collect CPU load
	run("cpu", func() {
		r := a.sources.CPU.Sample(ctx)
		mu.Lock()
		snapshot.CPUPercent = r.Or(0)
		mu.Unlock()
	})

	// Collect memory load
	run("memory", func() {
		r := a.sources.Memory.Sample(ctx)
		mu.Lock()
		snapshot.MemoryPercent = r.Or(0)
		mu.Unlock()
	})

	// Collect GPU load, VRAM and temperature
	run("gpu", func() {
		g := a.sources.GPU.Sample(ctx)
		temp := g.Temp
		if (!temp.OK || !metrics.IsPlausibleTemperature(temp.Value)) && a.sources.GPUTemp != nil {
			temp = a.sources.GPUTemp.Sample(ctx)
		}
		mu.Lock()
		// GPU load and VRAM degrade to 0, never null
		snapshot.GPUUsagePercent = metrics.Float64(g.Usage.Or(0))
		snapshot.VRAMUsagePercent = metrics.Float64(g.VRAM.Or(0))
		snapshot.GPUTempCelsius = temp.Ptr()
		mu.Unlock()
	})

	// Collect CPU temperature
	if a.sources.CPUTemp != nil {
		run("cpu_temperature", func() {
			r := a.sources.CPUTemp.Sample(ctx)
			mu.Lock()
			snapshot.CPUTempCelsius = r.Ptr()
			mu.Unlock()
		})
	}

	// Collect disk usage
	run("disk", func() {
		usage, err := a.sources.Disk.Usage(ctx)
		if err != nil {
			a.logger.Debug("Disk usage unavailable", "error", err)
			return
		}
		mu.Lock()
		snapshot.DiskUsage = usage
		mu.Unlock()
	})

	// Wait for all adapters to finish
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	snapshot.CapturedAt = a.now()
	snapshot.Sanitize()

	a.logger.Debug("Snapshot assembled",
		"cpu", snapshot.CPUPercent,
		"memory", snapshot.MemoryPercent,
		"upload_kbps", snapshot.UploadKbps,
		"download_kbps", snapshot.DownloadKbps,
		"disks", len(snapshot.DiskUsage),
	)

	return snapshot
}
