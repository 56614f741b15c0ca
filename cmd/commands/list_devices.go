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

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phuonguno98/unoperf/internal/collector"
	"github.com/phuonguno98/unoperf/internal/devices"
)

var listDevicesCmd = &cobra.Command{
	Use:   "list-devices",
	Short: "List disk drives and network interfaces as the sampler sees them",
	Long: `List disk partitions with the drive key used in the disk_usage map,
and network interfaces with whether they count towards throughput.
This helps to configure include_networks/exclude_networks accurately.

Examples:
  # List devices using the config.json next to the binary
  unoperf list-devices

  # Check the effect of another config's filters
  unoperf list-devices --config ./config.json`,
	RunE: runListDevices,
}

func init() {
	rootCmd.AddCommand(listDevicesCmd)
}

func runListDevices(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	fmt.Println("\n========================================")
	fmt.Println("   UnoPerf - Available Devices")
	fmt.Println("========================================")

	// List disk devices
	disks, err := devices.ListDisks()
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error listing disks: %v\n", err)
	case len(disks) == 0:
		fmt.Println("\nNo disk devices found.")
	default:
		fmt.Print(devices.FormatDisksTable(disks))
	}

	// List network interfaces
	nc := collector.NewNetworkCollector(cfg.IncludeNetworks, cfg.ExcludeNetworks)
	networks, err := devices.ListNetworkInterfaces(nc)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error listing network interfaces: %v\n", err)
	case len(networks) == 0:
		fmt.Println("\nNo network interfaces found.")
	default:
		fmt.Print(devices.FormatNetworksTable(networks))
		fmt.Println("\nExample config.json:")
		if len(networks) > 0 {
			fmt.Printf("  \"include_networks\": [\"%s\"]\n", networks[0].Name)
		}
		if len(networks) > 1 {
			fmt.Printf("  \"exclude_networks\": [\"%s\"]\n", networks[1].Name)
		}
	}

	fmt.Println("\nNotes:")
	fmt.Println("  - Loopback interfaces are never counted")
	fmt.Println("  - Exclude filters take priority over include filters")
	fmt.Println("  - Empty include list means count all interfaces (except excluded)")
	fmt.Println()

	return nil
}
