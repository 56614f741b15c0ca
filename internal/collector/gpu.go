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
	"strings"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

// GPU source names reported in /status.
const (
	GPUSourceNvidiaSMI      = "nvidia-smi"
	GPUSourcePerfCounters   = "perf-counters"
	GPUSourceDRM            = "drm-sysfs"
	GPUSourceUnsupported    = "none"
	nvidiaSMI               = "nvidia-smi"
	nvidiaSMIFormat         = "--format=csv,noheader,nounits"
	nvidiaSMIQuery          = "--query-gpu=index,name,utilization.gpu,memory.used,memory.total,temperature.gpu"
	nvidiaSMITemperatureArg = "--query-gpu=temperature.gpu"
)

// GPUReading is one sample of the selected GPU source.
type GPUReading struct {
	Usage Reading // Busy percentage
	VRAM  Reading // Dedicated memory used/total percentage
	Temp  Reading // Degrees Celsius
}

// GPUSource samples GPU load, memory and temperature.
type GPUSource interface {
	Name() string
	Device() string
	Sample(ctx context.Context) GPUReading
}

// GPUProbeOptions configures SelectGPUSource.
type GPUProbeOptions struct {
	Enabled  bool
	GOOS     string
	Runner   CommandRunner
	SysfsDir string // Root of sysfs, "/sys" outside tests
	Logger   *slog.Logger
}

// SelectGPUSource probes the GPU sources in priority order once and returns the
// first one that answers: the vendor query tool, then platform performance
// counters, then a stub that reports nothing.
func SelectGPUSource(ctx context.Context, opts GPUProbeOptions) GPUSource {
	logger := opts.Logger
	if !opts.Enabled {
		logger.Info("GPU metrics disabled by configuration")
		return unsupportedGPU{}
	}

	candidates := []func() (GPUSource, error){
		func() (GPUSource, error) { return probeNvidiaSMI(ctx, opts.Runner) },
	}
	switch opts.GOOS {
	case osWindows:
		candidates = append(candidates, func() (GPUSource, error) { return probeWindowsCounters(ctx, opts.Runner) })
	case osLinux:
		candidates = append(candidates, func() (GPUSource, error) { return probeDRM(opts.SysfsDir, logger) })
	}

	for _, probe := range candidates {
		source, err := probe()
		if err != nil {
			logger.Debug("GPU source probe failed", "error", err)
			continue
		}
		logger.Info("GPU source selected", "source", source.Name(), "device", source.Device())
		return source
	}

	logger.Info("No GPU source available, GPU metrics will report 0")
	return unsupportedGPU{}
}

// unsupportedGPU is selected when no source answers.
type unsupportedGPU struct{}

func (unsupportedGPU) Name() string                      { return GPUSourceUnsupported }
func (unsupportedGPU) Device() string                    { return "" }
func (unsupportedGPU) Sample(context.Context) GPUReading { return GPUReading{} }

// nvidiaGPU queries every NVIDIA GPU with one nvidia-smi call.
type nvidiaGPU struct {
	runner CommandRunner
	device string
}

type nvidiaRow struct {
	index    int
	name     string
	util     Reading
	memUsed  Reading
	memTotal Reading
	temp     Reading
}

func probeNvidiaSMI(ctx context.Context, runner CommandRunner) (GPUSource, error) {
	rows, err := queryNvidiaSMI(ctx, runner)
	if err != nil {
		return nil, err
	}
	return &nvidiaGPU{runner: runner, device: rows[0].name}, nil
}

func (g *nvidiaGPU) Name() string   { return GPUSourceNvidiaSMI }
func (g *nvidiaGPU) Device() string { return g.device }

// Sample reports the highest load across GPUs and the VRAM ratio of the GPU
// with the largest memory; on multi-GPU hosts these may be different devices.
func (g *nvidiaGPU) Sample(ctx context.Context) GPUReading {
	rows, err := queryNvidiaSMI(ctx, g.runner)
	if err != nil {
		return GPUReading{}
	}
	return summarizeNvidia(rows)
}

func summarizeNvidia(rows []nvidiaRow) GPUReading {
	var reading GPUReading
	largest := -1.0

	for _, row := range rows {
		if row.util.OK && (!reading.Usage.OK || row.util.Value > reading.Usage.Value) {
			reading.Usage = row.util
		}
		if row.memTotal.OK && row.memUsed.OK && row.memTotal.Value > largest {
			if pct, ok := metrics.UsagePercent(row.memUsed.Value, row.memTotal.Value); ok {
				largest = row.memTotal.Value
				reading.VRAM = Available(pct)
			}
		}
	}

	// First GPU by index
	first := rows[0]
	for _, row := range rows[1:] {
		if row.index < first.index {
			first = row
		}
	}
	reading.Temp = first.temp

	return reading
}

func queryNvidiaSMI(ctx context.Context, runner CommandRunner) ([]nvidiaRow, error) {
	out, err := runner.Run(ctx, nvidiaSMI, nvidiaSMIQuery, nvidiaSMIFormat)
	if err != nil {
		return nil, err
	}

	rows := parseNvidiaSMI(out)
	if len(rows) == 0 {
		return nil, fmt.Errorf("nvidia-smi reported no GPUs: %w", ErrUnavailable)
	}
	return rows, nil
}

// parseNvidiaSMI parses "index, name, util, mem used, mem total, temp" rows.
// Fields printed as "[N/A]" become unavailable.
func parseNvidiaSMI(out string) []nvidiaRow {
	var rows []nvidiaRow
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 6 {
			continue
		}
		index, err := parseNumber(parts[0])
		if err != nil {
			continue
		}
		rows = append(rows, nvidiaRow{
			index:    int(index),
			name:     strings.TrimSpace(parts[1]),
			util:     readingOf(parts[2]),
			memUsed:  readingOf(parts[3]),
			memTotal: readingOf(parts[4]),
			temp:     readingOf(parts[5]),
		})
	}
	return rows
}

func readingOf(raw string) Reading {
	v, err := parseNumber(raw)
	if err != nil {
		return Unavailable
	}
	return Available(v)
}

// nvidiaTemperature is the GPU temperature fallback using the vendor CLI alone.
type nvidiaTemperature struct {
	runner CommandRunner
}

func (n nvidiaTemperature) Name() string { return "nvidia-smi-temperature" }

func (n nvidiaTemperature) Sample(ctx context.Context) Reading {
	out, err := n.runner.Run(ctx, nvidiaSMI, nvidiaSMITemperatureArg, nvidiaSMIFormat)
	if err != nil {
		return Unavailable
	}
	return readingOf(firstLine(out))
}
