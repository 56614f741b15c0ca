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
	"path/filepath"
	"strings"

	"github.com/phuonguno98/unoperf/pkg/metrics"
	"github.com/shirou/gopsutil/v3/disk"
)

// Dependency injection points for testing
var (
	diskPartitions = disk.PartitionsWithContext
	diskUsage      = disk.UsageWithContext
)

// opticalFilesystems are skipped along with anything mounted with the cdrom option.
var opticalFilesystems = map[string]bool{
	"iso9660": true,
	"udf":     true,
	"cdfs":    true,
}

// DiskCollector reports used/total capacity per mounted volume.
type DiskCollector struct{}

// NewDiskCollector creates a new disk collector instance.
func NewDiskCollector() *DiskCollector {
	return &DiskCollector{}
}

// Usage enumerates mounted volumes and returns "<used> GB/<total> GB" keyed by
// drive identifier. A volume that cannot be read is omitted; it never aborts
// the other volumes. Entries are recomputed on every call.
func (d *DiskCollector) Usage(ctx context.Context) (map[string]string, error) {
	partitions, err := diskPartitions(ctx, false)
	if err != nil && len(partitions) == 0 {
		return nil, fmt.Errorf("failed to get disk partitions: %w", err)
	}

	result := make(map[string]string, len(partitions))

	for _, partition := range partitions {
		if SkipReason(partition) != "" {
			continue
		}

		id := DriveID(partition.Device)
		if id == "" {
			continue
		}
		if _, seen := result[id]; seen {
			continue
		}

		usage, err := diskUsage(ctx, partition.Mountpoint)
		if err != nil || usage == nil {
			// Permission denied, not ready, vanished: omit this volume only
			continue
		}

		result[id] = metrics.FormatDiskUsage(usage.Used, usage.Total)
	}

	return result, nil
}

// SkipReason returns why a partition is excluded from disk usage, or "" to include it.
func SkipReason(p disk.PartitionStat) string {
	if p.Fstype == "" {
		return "no filesystem"
	}
	if opticalFilesystems[strings.ToLower(p.Fstype)] {
		return "optical media"
	}
	for _, opt := range p.Opts {
		if strings.EqualFold(opt, "cdrom") {
			return "optical media"
		}
	}
	return ""
}

// DriveID derives the key of a volume in the disk usage map.
// Drive letter devices ("C:", `D:\`) map to the lowercase letter; other
// devices map to their lowercase base name ("/dev/sda1" -> "sda1").
func DriveID(device string) string {
	if len(device) >= 2 && device[1] == ':' && isLetter(device[0]) {
		return strings.ToLower(device[:1])
	}

	base := strings.TrimRight(strings.ReplaceAll(device, `\`, "/"), "/")
	if base == "" {
		return ""
	}
	return strings.ToLower(filepath.Base(base))
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Name returns the collector name for logging purposes.
func (d *DiskCollector) Name() string {
	return "Disk"
}
