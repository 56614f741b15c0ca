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

package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phuonguno98/unoperf/internal/collector"
	"github.com/phuonguno98/unoperf/internal/store"
	"github.com/phuonguno98/unoperf/pkg/metrics"
)

const namespace = "unoperf"

// snapshotCollector exports the latest published snapshot as gauges.
type snapshotCollector struct {
	store     *store.Store
	metrics   []snapshotMetric
	diskUsage *prometheus.Desc
}

type snapshotMetric struct {
	desc    *prometheus.Desc
	extract func(s *metrics.Snapshot) (float64, bool)
}

func optional(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func newSnapshotCollector(st *store.Store) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "host", name), help, nil, nil)
	}

	return &snapshotCollector{
		store: st,
		diskUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "disk_usage_info"),
			"Disk usage per drive; the value is always 1.",
			[]string{"drive", "usage"},
			nil,
		),
		metrics: []snapshotMetric{
			{
				desc:    desc("cpu_percent", "CPU utilization percentage."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return s.CPUPercent, true },
			},
			{
				desc:    desc("memory_percent", "Physical memory utilization percentage."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return s.MemoryPercent, true },
			},
			{
				desc:    desc("gpu_usage_percent", "GPU utilization percentage."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return optional(s.GPUUsagePercent) },
			},
			{
				desc:    desc("vram_usage_percent", "GPU memory utilization percentage."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return optional(s.VRAMUsagePercent) },
			},
			{
				desc:    desc("cpu_temperature_celsius", "CPU temperature in Celsius."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return optional(s.CPUTempCelsius) },
			},
			{
				desc:    desc("gpu_temperature_celsius", "GPU temperature in Celsius."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return optional(s.GPUTempCelsius) },
			},
			{
				desc:    desc("upload_kbps", "Aggregate upload throughput in kilobits per second."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return s.UploadKbps, true },
			},
			{
				desc:    desc("download_kbps", "Aggregate download throughput in kilobits per second."),
				extract: func(s *metrics.Snapshot) (float64, bool) { return s.DownloadKbps, true },
			},
			{
				desc: desc("snapshot_age_seconds", "Seconds elapsed since the latest snapshot was captured."),
				extract: func(s *metrics.Snapshot) (float64, bool) {
					return max(time.Since(s.CapturedAt).Seconds(), 0), true
				},
			},
		},
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
	ch <- c.diskUsage
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.store.Latest()
	if snapshot == nil {
		return
	}
	for _, metric := range c.metrics {
		value, ok := metric.extract(snapshot)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, value)
	}
	for drive, usage := range snapshot.DiskUsage {
		ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, 1, drive, usage)
	}
}

// metricsHandler builds the /metrics endpoint on a private registry.
func (s *Server) metricsHandler() http.Handler {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		newSnapshotCollector(s.store),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total snapshots published to the store.",
		}, func() float64 { return float64(s.store.Publishes()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_dropped_snapshots_total",
			Help:      "Snapshots discarded for slow websocket clients.",
		}, func() float64 { return float64(s.store.Dropped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients.",
		}, func() float64 { return float64(s.store.Subscribers()) }),
	}

	if s.loop != nil {
		collectors = append(collectors,
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_cycles_total",
				Help:      "Total completed collection cycles.",
			}, func() float64 { return float64(s.loop.Stats().Cycles) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_failures_total",
				Help:      "Total failed snapshot file writes.",
			}, func() float64 { return float64(s.loop.Stats().PersistenceFailures) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycle_faults_total",
				Help:      "Total collection cycles aborted by an unexpected fault.",
			}, func() float64 { return float64(s.loop.Stats().CycleFaults) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_duration_seconds",
				Help:      "Duration of the latest collection cycle.",
			}, func() float64 { return s.loop.Stats().LastCycleDuration.Seconds() }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sampling_loop_running",
				Help:      "1 while the sampling loop is running.",
			}, func() float64 {
				if s.loop.State() == collector.Running {
					return 1
				}
				return 0
			}),
		)
	}

	for _, c := range collectors {
		registry.MustRegister(c)
	}

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
