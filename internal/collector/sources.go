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
	"log/slog"
	"runtime"

	"github.com/phuonguno98/unoperf/internal/config"
)

// NewSources builds the adapters for this host. GPU and temperature sources
// are probed here, once; the chosen strategies are kept for the process lifetime.
func NewSources(ctx context.Context, cfg *config.Config, logger *slog.Logger) Sources {
	runner := ExecRunner{Timeout: cfg.CommandTimeout.Std()}
	return newSources(ctx, cfg, runtime.GOOS, runner, "/sys", logger)
}

func newSources(ctx context.Context, cfg *config.Config, goos string, runner CommandRunner, sysfsDir string, logger *slog.Logger) Sources {
	gpu := SelectGPUSource(ctx, GPUProbeOptions{
		Enabled:  cfg.EnableGPU,
		GOOS:     goos,
		Runner:   runner,
		SysfsDir: sysfsDir,
		Logger:   logger,
	})

	cpuTemp := NewTemperatureChain(ctx, logger, CPUTemperatureCandidates(goos, runner, sysfsDir)...)
	logger.Info("CPU temperature strategies", "available", cpuTemp.Strategies())

	sources := Sources{
		CPU:     NewCPUCollector(cfg.SampleWindow.Std()),
		Memory:  NewMemoryCollector(),
		GPU:     gpu,
		CPUTemp: cpuTemp,
		Network: NewNetworkCollector(cfg.IncludeNetworks, cfg.ExcludeNetworks),
		Disk:    NewDiskCollector(),
	}

	if gpu.Name() != GPUSourceUnsupported {
		sources.GPUTemp = NewTemperatureChain(ctx, logger, GPUTemperatureCandidates(runner)...)
	}

	return sources
}
