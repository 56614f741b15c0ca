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
	"math"
	"time"
)

// Snapshot is one complete set of host metrics for a single collection cycle.
// A Snapshot is built once per cycle and never mutated after publication.
type Snapshot struct {
	CPUPercent       float64           `json:"cpu_percent"`
	MemoryPercent    float64           `json:"memory_percent"`
	GPUUsagePercent  *float64          `json:"gpu_usage_percent"`
	VRAMUsagePercent *float64          `json:"vram_usage_percent"`
	CPUTempCelsius   *float64          `json:"cpu_temp_celsius"`
	GPUTempCelsius   *float64          `json:"gpu_temp_celsius"`
	UploadKbps       float64           `json:"upload_kbps"`
	DownloadKbps     float64           `json:"download_kbps"`
	DiskUsage        map[string]string `json:"disk_usage"` // Key: drive identifier
	CapturedAt       time.Time         `json:"captured_at"`
}

// Default returns the all-zero snapshot served before the first real sample exists.
// GPU fields are zero rather than null so clients always see the same payload shape.
func Default(now time.Time) *Snapshot {
	return &Snapshot{
		GPUUsagePercent:  Float64(0),
		VRAMUsagePercent: Float64(0),
		DiskUsage:        make(map[string]string),
		CapturedAt:       now,
	}
}

// Sanitize enforces the physical bounds of every field in place and rounds
// values to one decimal place. It must only be called before publication.
func (s *Snapshot) Sanitize() {
	s.CPUPercent = Round1(ClampPercent(s.CPUPercent))
	s.MemoryPercent = Round1(ClampPercent(s.MemoryPercent))
	s.GPUUsagePercent = sanitizePercent(s.GPUUsagePercent)
	s.VRAMUsagePercent = sanitizePercent(s.VRAMUsagePercent)
	s.CPUTempCelsius = sanitizeTemperature(s.CPUTempCelsius)
	s.GPUTempCelsius = sanitizeTemperature(s.GPUTempCelsius)
	s.UploadKbps = Round1(nonNegative(s.UploadKbps))
	s.DownloadKbps = Round1(nonNegative(s.DownloadKbps))
	if s.DiskUsage == nil {
		s.DiskUsage = make(map[string]string)
	}
}

// Valid reports whether every field lies within its documented range.
func (s *Snapshot) Valid() bool {
	if !inPercentRange(s.CPUPercent) || !inPercentRange(s.MemoryPercent) {
		return false
	}
	for _, p := range []*float64{s.GPUUsagePercent, s.VRAMUsagePercent} {
		if p != nil && !inPercentRange(*p) {
			return false
		}
	}
	for _, t := range []*float64{s.CPUTempCelsius, s.GPUTempCelsius} {
		if t != nil && !IsPlausibleTemperature(*t) {
			return false
		}
	}
	return s.UploadKbps >= 0 && s.DownloadKbps >= 0 && !s.CapturedAt.IsZero()
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

func sanitizePercent(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) {
		return nil
	}
	return Float64(Round1(ClampPercent(*p)))
}

func sanitizeTemperature(t *float64) *float64 {
	if t == nil || !IsPlausibleTemperature(*t) {
		return nil
	}
	v := Round1(*t)
	if !IsPlausibleTemperature(v) {
		return nil
	}
	return Float64(v)
}

func inPercentRange(v float64) bool {
	return v >= 0 && v <= 100
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// CPUTimeStats represents CPU time statistics for delta calculations.
type CPUTimeStats struct {
	User      float64
	System    float64
	Idle      float64
	IOWait    float64
	Irq       float64
	SoftIrq   float64
	Steal     float64
	Guest     float64
	GuestNice float64
	Timestamp time.Time
}

// NetworkIOStats represents cumulative network byte counters for delta calculations.
type NetworkIOStats struct {
	BytesSent uint64
	BytesRecv uint64
	Timestamp time.Time
}

// Throughput is the measured transfer rate of all monitored interfaces.
type Throughput struct {
	UploadKbps   float64
	DownloadKbps float64
}
