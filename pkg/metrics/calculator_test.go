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
	"testing"
	"time"
)

func TestCalculateCPUUtilization(t *testing.T) {
	tests := []struct {
		name     string
		prev     CPUTimeStats
		current  CPUTimeStats
		expected float64
	}{
		{
			name: "Normal usage",
			prev: CPUTimeStats{
				User: 100, System: 50, Idle: 800, IOWait: 10,
				Timestamp: time.Now(),
			},
			current: CPUTimeStats{
				User: 110, System: 60, Idle: 810, IOWait: 15, // Deltas: U:10, S:10, I:10, IO:5 -> Total: 35
				Timestamp: time.Now().Add(1 * time.Second),
			},
			// Util = 100 * (1 - 10/35)
			expected: 71.42857142857143,
		},
		{
			name: "Zero timestamp (First run)",
			prev: CPUTimeStats{},
			current: CPUTimeStats{
				User:      100,
				Timestamp: time.Now(),
			},
			expected: 0.0,
		},
		{
			name: "No change (Zero delta total)",
			prev: CPUTimeStats{
				User: 100, Idle: 100,
				Timestamp: time.Now(),
			},
			current: CPUTimeStats{
				User: 100, Idle: 100,
				Timestamp: time.Now().Add(1 * time.Second),
			},
			expected: 0.0,
		},
		{
			name: "Idle counter ahead of total (clamped)",
			prev: CPUTimeStats{
				User: 100, Idle: 100,
				Timestamp: time.Now(),
			},
			current: CPUTimeStats{
				User: 90, Idle: 120,
				Timestamp: time.Now().Add(1 * time.Second),
			},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCPUUtilization(&tt.prev, &tt.current)
			if math.Abs(got-tt.expected) > 0.00001 {
				t.Errorf("CalculateCPUUtilization() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCalculateThroughput(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		prev         NetworkIOStats
		current      NetworkIOStats
		wantUpload   float64
		wantDownload float64
	}{
		{
			name:         "One second window",
			prev:         NetworkIOStats{BytesSent: 1000, BytesRecv: 2000, Timestamp: base},
			current:      NetworkIOStats{BytesSent: 126000, BytesRecv: 252000, Timestamp: base.Add(time.Second)},
			wantUpload:   1000.0, // 125000 B * 8 / 1000
			wantDownload: 2000.0,
		},
		{
			name:         "Two second window halves the rate",
			prev:         NetworkIOStats{BytesSent: 0, BytesRecv: 0, Timestamp: base},
			current:      NetworkIOStats{BytesSent: 250, BytesRecv: 500, Timestamp: base.Add(2 * time.Second)},
			wantUpload:   1.0,
			wantDownload: 2.0,
		},
		{
			name:         "Counter reset reports zero",
			prev:         NetworkIOStats{BytesSent: 5000, BytesRecv: 100, Timestamp: base},
			current:      NetworkIOStats{BytesSent: 10, BytesRecv: 225, Timestamp: base.Add(time.Second)},
			wantUpload:   0,
			wantDownload: 1.0,
		},
		{
			name:    "Zero timestamp",
			prev:    NetworkIOStats{},
			current: NetworkIOStats{BytesSent: 100, Timestamp: base},
		},
		{
			name:    "Non-positive window",
			prev:    NetworkIOStats{Timestamp: base},
			current: NetworkIOStats{BytesSent: 100, Timestamp: base},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateThroughput(tt.prev, tt.current)
			if got.UploadKbps != tt.wantUpload {
				t.Errorf("CalculateThroughput().UploadKbps = %v, want %v", got.UploadKbps, tt.wantUpload)
			}
			if got.DownloadKbps != tt.wantDownload {
				t.Errorf("CalculateThroughput().DownloadKbps = %v, want %v", got.DownloadKbps, tt.wantDownload)
			}
		})
	}
}

func TestUsagePercent(t *testing.T) {
	tests := []struct {
		name   string
		used   float64
		total  float64
		want   float64
		wantOK bool
	}{
		{"Half", 4, 8, 50, true},
		{"Over capacity clamps", 9, 8, 100, true},
		{"Zero total", 1, 0, 0, false},
		{"NaN used", math.NaN(), 8, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UsagePercent(tt.used, tt.total)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("UsagePercent(%v, %v) = (%v, %v), want (%v, %v)", tt.used, tt.total, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTemperatureHelpers(t *testing.T) {
	tests := []struct {
		name      string
		celsius   float64
		plausible bool
	}{
		{"Typical CPU", 45.5, true},
		{"Zero", 0, false},
		{"Negative", -10, false},
		{"Upper bound exclusive", 150, false},
		{"Just below upper bound", 149.9, true},
		{"Sensor glitch", 255, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPlausibleTemperature(tt.celsius); got != tt.plausible {
				t.Errorf("IsPlausibleTemperature(%v) = %v, want %v", tt.celsius, got, tt.plausible)
			}
		})
	}

	if got := DeciKelvinToCelsius(3182); math.Abs(got-45.05) > 0.0001 {
		t.Errorf("DeciKelvinToCelsius(3182) = %v, want 45.05", got)
	}
	if got := MilliCelsiusToCelsius(52000); got != 52 {
		t.Errorf("MilliCelsiusToCelsius(52000) = %v, want 52", got)
	}
}

func TestFormatDiskUsage(t *testing.T) {
	const gb = 1024 * 1024 * 1024

	tests := []struct {
		name  string
		used  uint64
		total uint64
		want  string
	}{
		{"Whole numbers", 100 * gb, 500 * gb, "100.0 GB/500.0 GB"},
		{"Fractional", gb + gb/2, 2 * gb, "1.5 GB/2.0 GB"},
		{"Empty volume", 0, 0, "0.0 GB/0.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDiskUsage(tt.used, tt.total); got != tt.want {
				t.Errorf("FormatDiskUsage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClampPercentAndRound(t *testing.T) {
	if got := ClampPercent(-3); got != 0 {
		t.Errorf("ClampPercent(-3) = %v, want 0", got)
	}
	if got := ClampPercent(101); got != 100 {
		t.Errorf("ClampPercent(101) = %v, want 100", got)
	}
	if got := ClampPercent(math.NaN()); got != 0 {
		t.Errorf("ClampPercent(NaN) = %v, want 0", got)
	}
	if got := Round1(12.345); got != 12.3 {
		t.Errorf("Round1(12.345) = %v, want 12.3", got)
	}
}
