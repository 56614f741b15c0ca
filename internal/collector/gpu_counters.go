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
	"strings"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

const (
	// Largest dedicated memory among the video controllers, in bytes.
	adapterRAMScript = `(Get-CimInstance Win32_VideoController | Measure-Object -Property AdapterRAM -Maximum).Maximum`

	adapterNameScript = `Get-CimInstance Win32_VideoController | Sort-Object -Property AdapterRAM -Descending | Select-Object -First 1 -ExpandProperty Name`

	// Engine utilization and dedicated memory usage summed over all instances,
	// printed as "<busy>;<bytes>".
	gpuCountersScript = `$ErrorActionPreference='Stop';` +
		`$u=((Get-Counter '\GPU Engine(*)\Utilization Percentage').CounterSamples | Measure-Object -Property CookedValue -Sum).Sum;` +
		`$m=((Get-Counter '\GPU Adapter Memory(*)\Dedicated Usage').CounterSamples | Measure-Object -Property CookedValue -Sum).Sum;` +
		`[string]::Format([cultureinfo]::InvariantCulture,'{0};{1}',$u,$m)`
)

// windowsCounters reads GPU performance counters through PowerShell.
type windowsCounters struct {
	runner CommandRunner
	device string
	// Dedicated memory of the largest adapter, captured once at probe time so a
	// transient zero can never become the denominator.
	vramTotal float64
}

func probeWindowsCounters(ctx context.Context, runner CommandRunner) (GPUSource, error) {
	out, err := powershell(ctx, runner, adapterRAMScript)
	if err != nil {
		return nil, err
	}

	total, err := parseNumber(firstLine(out))
	if err != nil {
		return nil, fmt.Errorf("failed to parse adapter RAM: %w", err)
	}

	source := &windowsCounters{runner: runner, vramTotal: total}

	// The counters must answer at least once for the source to be usable.
	if _, _, err := source.query(ctx); err != nil {
		return nil, err
	}

	if name, err := powershell(ctx, runner, adapterNameScript); err == nil {
		source.device = firstLine(name)
	}

	return source, nil
}

func (w *windowsCounters) Name() string   { return GPUSourcePerfCounters }
func (w *windowsCounters) Device() string { return w.device }

// Sample implements GPUSource. Temperature is not exposed by these counters.
func (w *windowsCounters) Sample(ctx context.Context) GPUReading {
	busy, used, err := w.query(ctx)
	if err != nil {
		return GPUReading{}
	}

	reading := GPUReading{Usage: Available(metrics.ClampPercent(busy))}
	if pct, ok := metrics.UsagePercent(used, w.vramTotal); ok {
		reading.VRAM = Available(pct)
	}
	return reading
}

func (w *windowsCounters) query(ctx context.Context) (busy, used float64, err error) {
	out, err := powershell(ctx, w.runner, gpuCountersScript)
	if err != nil {
		return 0, 0, err
	}
	return parseCounterPair(firstLine(out))
}

// parseCounterPair parses "<busy>;<bytes>". Empty halves count as zero, which
// is what Measure-Object prints when no instance exists.
func parseCounterPair(line string) (busy, used float64, err error) {
	parts := strings.Split(line, ";")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected counter output %q", line)
	}

	values := make([]float64, 2)
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if values[i], err = parseNumber(part); err != nil {
			return 0, 0, fmt.Errorf("unexpected counter output %q: %w", line, err)
		}
	}
	return values[0], values[1], nil
}
