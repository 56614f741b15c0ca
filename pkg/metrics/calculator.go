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

package metrics

import (
	"fmt"
	"math"
)

// Temperature sanity bounds in degrees Celsius (exclusive).
const (
	MinPlausibleCelsius = 0.0
	MaxPlausibleCelsius = 150.0
)

const bytesPerGB = 1024 * 1024 * 1024

// CalculateCPUUtilization calculates CPU utilization percentage from two CPU time snapshots.
// Formula: 100 * (1 - ΔIdle / ΔTotal)
func CalculateCPUUtilization(prev, current *CPUTimeStats) float64 {
	if prev.Timestamp.IsZero() {
		return 0.0
	}

	prevTotal := prev.User + prev.System + prev.Idle + prev.IOWait + prev.Irq + prev.SoftIrq + prev.Steal
	currentTotal := current.User + current.System + current.Idle + current.IOWait + current.Irq + current.SoftIrq + current.Steal

	deltaTotal := currentTotal - prevTotal
	deltaIdle := current.Idle - prev.Idle

	if deltaTotal <= 0 {
		return 0.0
	}

	return ClampPercent(100.0 * (1.0 - deltaIdle/deltaTotal))
}

// CalculateThroughput calculates upload and download rates in kilobits per second.
// Formula: Δbytes × 8 / 1000 / Δt
// A direction whose counter went backwards (reset or wrap) reports 0.
func CalculateThroughput(prev, current NetworkIOStats) Throughput {
	if prev.Timestamp.IsZero() {
		return Throughput{}
	}

	deltaTime := current.Timestamp.Sub(prev.Timestamp).Seconds()
	if deltaTime <= 0 {
		return Throughput{}
	}

	return Throughput{
		UploadKbps:   Round1(kbps(prev.BytesSent, current.BytesSent, deltaTime)),
		DownloadKbps: Round1(kbps(prev.BytesRecv, current.BytesRecv, deltaTime)),
	}
}

func kbps(before, after uint64, seconds float64) float64 {
	if after < before {
		return 0
	}
	return float64(after-before) * 8 / 1000 / seconds
}

// UsagePercent returns used/total as a percentage clamped to [0, 100].
// ok is false when total is zero.
func UsagePercent(used, total float64) (pct float64, ok bool) {
	if total <= 0 || math.IsNaN(used) || math.IsNaN(total) {
		return 0, false
	}
	return ClampPercent(used / total * 100), true
}

// ClampPercent bounds v to [0, 100]. NaN becomes 0.
func ClampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// IsPlausibleTemperature reports whether c lies strictly inside (0, 150) °C.
func IsPlausibleTemperature(c float64) bool {
	return c > MinPlausibleCelsius && c < MaxPlausibleCelsius
}

// MilliCelsiusToCelsius converts a sysfs millidegree reading.
func MilliCelsiusToCelsius(milli float64) float64 {
	return milli / 1000.0
}

// DeciKelvinToCelsius converts an ACPI thermal zone reading (tenths of Kelvin).
func DeciKelvinToCelsius(deciKelvin float64) float64 {
	return deciKelvin/10.0 - 273.15
}

// FormatDiskUsage renders capacity as "<used> GB/<total> GB" with one decimal place.
func FormatDiskUsage(used, total uint64) string {
	return fmt.Sprintf("%.1f GB/%.1f GB", float64(used)/bytesPerGB, float64(total)/bytesPerGB)
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
