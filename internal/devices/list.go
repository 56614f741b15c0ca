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

package devices

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/phuonguno98/unoperf/internal/collector"
)

// Dependency injection points for testing
var (
	diskPartitions = disk.Partitions
	diskUsage      = disk.Usage
	netInterfaces  = net.Interfaces
)

// StatusReported marks a disk that appears in the performance snapshot.
const StatusReported = "reported"

// DiskInfo represents disk device information.
type DiskInfo struct {
	Name       string
	DriveID    string // Key in disk_usage
	Mountpoint string
	Filesystem string
	Used       uint64
	Total      uint64
	Status     string // StatusReported, or why the disk is skipped
}

// NetworkInfo represents network interface information.
type NetworkInfo struct {
	Name       string
	MacAddress string
	Addresses  []string
	Monitored  bool // Counted in upload/download throughput
}

// ListDisks returns all partitions with the drive identifier they are
// reported under, or the reason they are skipped.
func ListDisks() ([]DiskInfo, error) {
	partitions, err := diskPartitions(false)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk partitions: %w", err)
	}

	disks := make([]DiskInfo, 0)
	seen := make(map[string]bool)

	for _, partition := range partitions {
		// Skip duplicate devices
		if seen[partition.Device] {
			continue
		}
		seen[partition.Device] = true

		info := DiskInfo{
			Name:       partition.Device,
			DriveID:    collector.DriveID(partition.Device),
			Mountpoint: partition.Mountpoint,
			Filesystem: partition.Fstype,
			Status:     StatusReported,
		}

		if reason := collector.SkipReason(partition); reason != "" {
			info.Status = "skipped: " + reason
		} else if usage, err := diskUsage(partition.Mountpoint); err != nil || usage == nil {
			info.Status = "skipped: inaccessible"
		} else {
			info.Used = usage.Used
			info.Total = usage.Total
		}

		disks = append(disks, info)
	}

	// Sort by device name
	sort.Slice(disks, func(i, j int) bool {
		return disks[i].Name < disks[j].Name
	})

	return disks, nil
}

// ListNetworkInterfaces returns interfaces with addresses and whether the
// given network collector counts them.
func ListNetworkInterfaces(nc *collector.NetworkCollector) ([]NetworkInfo, error) {
	interfaces, err := netInterfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	networks := make([]NetworkInfo, 0)

	for _, iface := range interfaces {
		// Skip interfaces without addresses
		if len(iface.Addrs) == 0 {
			continue
		}

		addresses := make([]string, 0, len(iface.Addrs))
		for _, addr := range iface.Addrs {
			addresses = append(addresses, addr.Addr)
		}

		networks = append(networks, NetworkInfo{
			Name:       iface.Name,
			MacAddress: iface.HardwareAddr,
			Addresses:  addresses,
			Monitored:  nc.Monitors(iface.Name),
		})
	}

	// Sort by interface name
	sort.Slice(networks, func(i, j int) bool {
		return networks[i].Name < networks[j].Name
	})

	return networks, nil
}

// FormatDisksTable formats disk information as a table.
func FormatDisksTable(disks []DiskInfo) string {
	var sb strings.Builder

	sb.WriteString("\nDisks:\n")
	sb.WriteString(strings.Repeat("=", 96))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%-22s %-8s %-20s %-10s %-10s %s\n", "DEVICE", "ID", "MOUNTPOINT", "FS", "SIZE", "STATUS"))
	sb.WriteString(strings.Repeat("-", 96))
	sb.WriteString("\n")

	for _, d := range disks {
		size := "-"
		if d.Total > 0 {
			size = formatBytes(d.Total)
		}
		sb.WriteString(fmt.Sprintf("%-22s %-8s %-20s %-10s %-10s %s\n",
			truncate(d.Name, 22),
			d.DriveID,
			truncate(d.Mountpoint, 20),
			d.Filesystem,
			size,
			d.Status,
		))
	}

	sb.WriteString(strings.Repeat("=", 96))
	sb.WriteString("\n")

	return sb.String()
}

// FormatNetworksTable formats network interface information as a table.
func FormatNetworksTable(networks []NetworkInfo) string {
	var sb strings.Builder

	sb.WriteString("\nNetwork Interfaces:\n")
	sb.WriteString(strings.Repeat("=", 96))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%-36s %-17s %-10s %s\n", "INTERFACE", "MAC ADDRESS", "COUNTED", "IP ADDRESSES"))
	sb.WriteString(strings.Repeat("-", 96))
	sb.WriteString("\n")

	for _, n := range networks {
		mac := n.MacAddress
		if mac == "" {
			mac = "N/A"
		}

		counted := "no"
		if n.Monitored {
			counted = "yes"
		}

		// Show first IP address on same line
		firstIP := "N/A"
		if len(n.Addresses) > 0 {
			firstIP = n.Addresses[0]
		}

		sb.WriteString(fmt.Sprintf("%-36s %-17s %-10s %s\n",
			truncate(n.Name, 36),
			mac,
			counted,
			firstIP,
		))

		// Show additional IPs on separate lines
		for i := 1; i < len(n.Addresses); i++ {
			sb.WriteString(fmt.Sprintf("%-36s %-17s %-10s %s\n", "", "", "", n.Addresses[i]))
		}
	}

	sb.WriteString(strings.Repeat("=", 96))
	sb.WriteString("\n")

	return sb.String()
}

// formatBytes converts bytes to human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
