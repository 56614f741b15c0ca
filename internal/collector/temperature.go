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
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

// Dependency injection point for testing
var sensorsTemperatures = host.SensorsTemperaturesWithContext

// cpuSensorGroups lists known CPU sensor group names in priority order.
var cpuSensorGroups = []string{
	"coretemp",
	"k10temp",
	"zenpower",
	"cpu_thermal",
	"cpu-thermal",
	"soc_thermal",
	"acpitz",
}

const (
	hardwareMonitorScript = `foreach ($ns in 'root/LibreHardwareMonitor','root/OpenHardwareMonitor') {` +
		`$s = Get-CimInstance -Namespace $ns -ClassName Sensor -ErrorAction SilentlyContinue |` +
		` Where-Object { $_.SensorType -eq 'Temperature' -and $_.Name -like '*CPU*' } | Select-Object -First 1;` +
		`if ($s) { [string]::Format([cultureinfo]::InvariantCulture,'{0}',$s.Value); break } }`

	acpiThermalScript = `Get-CimInstance -Namespace root/wmi -ClassName MSAcpi_ThermalZoneTemperature |` +
		` Select-Object -First 1 -ExpandProperty CurrentTemperature`
)

// TemperatureStrategy is one way of reading a temperature in degrees Celsius.
type TemperatureStrategy interface {
	Name() string
	Sample(ctx context.Context) Reading
}

// TemperatureChain tries its strategies in order and returns the first
// plausible reading.
type TemperatureChain struct {
	strategies []TemperatureStrategy
}

// NewTemperatureChain probes every candidate once and keeps those that
// produced a plausible reading, preserving their order.
func NewTemperatureChain(ctx context.Context, logger *slog.Logger, candidates ...TemperatureStrategy) *TemperatureChain {
	chain := &TemperatureChain{}
	for _, candidate := range candidates {
		r := candidate.Sample(ctx)
		if !r.OK || !metrics.IsPlausibleTemperature(r.Value) {
			logger.Debug("Temperature strategy unavailable", "strategy", candidate.Name())
			continue
		}
		logger.Debug("Temperature strategy available", "strategy", candidate.Name(), "celsius", r.Value)
		chain.strategies = append(chain.strategies, candidate)
	}
	return chain
}

// Strategies returns the names of the retained strategies.
func (c *TemperatureChain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Sample implements Sampler.
func (c *TemperatureChain) Sample(ctx context.Context) Reading {
	for _, s := range c.strategies {
		r := s.Sample(ctx)
		if r.OK && metrics.IsPlausibleTemperature(r.Value) {
			return r
		}
	}
	return Unavailable
}

// CPUTemperatureCandidates returns the CPU temperature strategies for goos in
// priority order: OS sensor API, hardware monitor query, ACPI thermal zone.
func CPUTemperatureCandidates(goos string, runner CommandRunner, sysfsDir string) []TemperatureStrategy {
	candidates := []TemperatureStrategy{sensorStrategy{}}
	switch goos {
	case osWindows:
		candidates = append(candidates,
			hardwareMonitorWMI{runner: runner},
			acpiWMI{runner: runner},
		)
	case osLinux:
		candidates = append(candidates,
			lmSensors{runner: runner},
			thermalZones{sysfsDir: sysfsDir},
		)
	}
	return candidates
}

// GPUTemperatureCandidates returns the GPU temperature fallbacks used when the
// selected GPU source reports no temperature.
func GPUTemperatureCandidates(runner CommandRunner) []TemperatureStrategy {
	return []TemperatureStrategy{nvidiaTemperature{runner: runner}}
}

// sensorStrategy scans the OS sensor API for a known CPU sensor group.
type sensorStrategy struct{}

func (sensorStrategy) Name() string { return "sensors" }

func (sensorStrategy) Sample(ctx context.Context) Reading {
	// gopsutil returns partial results together with warnings
	temps, _ := sensorsTemperatures(ctx)
	if len(temps) == 0 {
		return Unavailable
	}

	for _, group := range cpuSensorGroups {
		for _, t := range temps {
			if !strings.HasPrefix(strings.ToLower(t.SensorKey), group) {
				continue
			}
			if metrics.IsPlausibleTemperature(t.Temperature) {
				return Available(t.Temperature)
			}
		}
	}
	return Unavailable
}

// hardwareMonitorWMI queries LibreHardwareMonitor or OpenHardwareMonitor.
type hardwareMonitorWMI struct {
	runner CommandRunner
}

func (hardwareMonitorWMI) Name() string { return "hardware-monitor" }

func (h hardwareMonitorWMI) Sample(ctx context.Context) Reading {
	out, err := powershell(ctx, h.runner, hardwareMonitorScript)
	if err != nil {
		return Unavailable
	}
	return readingOf(firstLine(out))
}

// acpiWMI reads the ACPI thermal zone, reported in tenths of Kelvin.
type acpiWMI struct {
	runner CommandRunner
}

func (acpiWMI) Name() string { return "acpi-thermal-zone" }

func (a acpiWMI) Sample(ctx context.Context) Reading {
	out, err := powershell(ctx, a.runner, acpiThermalScript)
	if err != nil {
		return Unavailable
	}
	deciKelvin, err := parseNumber(firstLine(out))
	if err != nil {
		return Unavailable
	}
	celsius := metrics.DeciKelvinToCelsius(deciKelvin)
	if !metrics.IsPlausibleTemperature(celsius) {
		return Unavailable
	}
	return Available(celsius)
}

// lmSensors parses `sensors -j` output from lm-sensors.
type lmSensors struct {
	runner CommandRunner
}

func (lmSensors) Name() string { return "lm-sensors" }

func (l lmSensors) Sample(ctx context.Context) Reading {
	out, err := l.runner.Run(ctx, "sensors", "-j")
	if err != nil {
		return Unavailable
	}
	return parseLMSensors([]byte(out))
}

// parseLMSensors returns the first temperature input of the highest priority
// CPU chip. Chips are keyed like "coretemp-isa-0000".
func parseLMSensors(data []byte) Reading {
	var chips map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &chips); err != nil {
		return Unavailable
	}

	for _, group := range cpuSensorGroups {
		names := make([]string, 0, len(chips))
		for name := range chips {
			if strings.HasPrefix(strings.ToLower(name), group) {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		for _, name := range names {
			if r := firstTempInput(chips[name]); r.OK {
				return r
			}
		}
	}
	return Unavailable
}

func firstTempInput(features map[string]json.RawMessage) Reading {
	labels := make([]string, 0, len(features))
	for label := range features {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		var sub map[string]float64
		if err := json.Unmarshal(features[label], &sub); err != nil {
			continue
		}
		keys := make([]string, 0, len(sub))
		for key := range sub {
			if strings.HasPrefix(key, "temp") && strings.HasSuffix(key, "_input") {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			if metrics.IsPlausibleTemperature(sub[key]) {
				return Available(sub[key])
			}
		}
	}
	return Unavailable
}

// thermalZones reads /sys/class/thermal/thermal_zone*/temp in millidegrees.
type thermalZones struct {
	sysfsDir string
}

func (thermalZones) Name() string { return "acpi-thermal-zone" }

func (t thermalZones) Sample(_ context.Context) Reading {
	root := t.sysfsDir
	if root == "" {
		root = "/sys"
	}

	zones, err := filepath.Glob(filepath.Join(root, "class", "thermal", "thermal_zone*"))
	if err != nil {
		return Unavailable
	}
	sort.Strings(zones)

	for _, zone := range zones {
		kind, _ := os.ReadFile(filepath.Join(zone, "type"))
		if !isCPUZone(strings.TrimSpace(string(kind))) {
			continue
		}
		milli, err := readSysfsFloat(filepath.Join(zone, "temp"))
		if err != nil {
			continue
		}
		if c := metrics.MilliCelsiusToCelsius(milli); metrics.IsPlausibleTemperature(c) {
			return Available(c)
		}
	}
	return Unavailable
}

// isCPUZone accepts zones that describe the package or ACPI zones without a type.
func isCPUZone(kind string) bool {
	if kind == "" {
		return true
	}
	lower := strings.ToLower(kind)
	for _, marker := range []string{"x86_pkg_temp", "cpu", "soc", "acpitz", "k10temp", "coretemp"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
