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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

const (
	drmClassPath      = "class/drm"
	gpuBusyFilename   = "gpu_busy_percent"
	vramUsedFilename  = "mem_info_vram_used"
	vramTotalFilename = "mem_info_vram_total"
	hwmonTempFile     = "temp1_input"
)

var (
	pciOnce sync.Once
	pciDB   *pcidb.PCIDB
	pciErr  error
)

// drmGPU reads busy percentage and VRAM counters exposed by the kernel DRM
// driver (amdgpu and compatible) under sysfs.
type drmGPU struct {
	cards  []string // device directories, sorted by card name
	device string
	logger *slog.Logger
}

func probeDRM(sysfsDir string, logger *slog.Logger) (GPUSource, error) {
	if sysfsDir == "" {
		sysfsDir = "/sys"
	}

	matches, err := filepath.Glob(filepath.Join(sysfsDir, drmClassPath, "card*", "device", gpuBusyFilename))
	if err != nil {
		return nil, err
	}

	cards := make([]string, 0, len(matches))
	for _, match := range matches {
		// Skip connector entries such as card0-DP-1
		card := filepath.Base(filepath.Dir(filepath.Dir(match)))
		if strings.Contains(card, "-") {
			continue
		}
		cards = append(cards, filepath.Dir(match))
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no DRM card exposes %s: %w", gpuBusyFilename, ErrUnavailable)
	}
	sort.Strings(cards)

	return &drmGPU{
		cards:  cards,
		device: lookupGPUName(cards[0]),
		logger: logger,
	}, nil
}

func (g *drmGPU) Name() string   { return GPUSourceDRM }
func (g *drmGPU) Device() string { return g.device }

// Sample implements GPUSource with the same selection rules as the vendor
// tool: highest busy card for load, largest VRAM card for memory, first card
// for temperature.
func (g *drmGPU) Sample(_ context.Context) GPUReading {
	var reading GPUReading
	largest := -1.0

	for i, dir := range g.cards {
		if busy, err := readSysfsFloat(filepath.Join(dir, gpuBusyFilename)); err == nil {
			if busy > 100 {
				// Some kernels report busy % scaled by 100.
				busy /= 100
			}
			busy = metrics.ClampPercent(busy)
			if !reading.Usage.OK || busy > reading.Usage.Value {
				reading.Usage = Available(busy)
			}
		}

		total, errTotal := readSysfsFloat(filepath.Join(dir, vramTotalFilename))
		used, errUsed := readSysfsFloat(filepath.Join(dir, vramUsedFilename))
		if errTotal == nil && errUsed == nil && total > largest {
			if pct, ok := metrics.UsagePercent(used, total); ok {
				largest = total
				reading.VRAM = Available(pct)
			}
		}

		if i == 0 {
			reading.Temp = readHwmonTemp(dir)
		}
	}

	return reading
}

func readHwmonTemp(deviceDir string) Reading {
	matches, err := filepath.Glob(filepath.Join(deviceDir, "hwmon", "hwmon*", hwmonTempFile))
	if err != nil || len(matches) == 0 {
		return Unavailable
	}
	sort.Strings(matches)
	milli, err := readSysfsFloat(matches[0])
	if err != nil {
		return Unavailable
	}
	return Available(metrics.MilliCelsiusToCelsius(milli))
}

func readSysfsFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
}

// lookupGPUName resolves the marketing name of the card from its PCI IDs.
func lookupGPUName(deviceDir string) string {
	vendorID := readPCIID(filepath.Join(deviceDir, "vendor"))
	deviceID := readPCIID(filepath.Join(deviceDir, "device"))
	if vendorID == "" || deviceID == "" {
		return ""
	}

	db := loadPCIDatabase()
	if db == nil {
		return vendorID + ":" + deviceID
	}

	product, ok := db.Products[vendorID+deviceID]
	if !ok || product == nil {
		return vendorID + ":" + deviceID
	}
	if vendor, ok := db.Vendors[vendorID]; ok && vendor != nil && vendor.Name != "" {
		return vendor.Name + " " + product.Name
	}
	return product.Name
}

func loadPCIDatabase() *pcidb.PCIDB {
	pciOnce.Do(func() {
		pciDB, pciErr = pcidb.New()
	})
	if pciErr != nil || pciDB == nil {
		return nil
	}
	return pciDB
}

// readPCIID reads a sysfs id file ("0x1002") as four lowercase hex digits.
func readPCIID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	value := strings.ToLower(strings.TrimSpace(string(data)))
	value = strings.TrimPrefix(value, "0x")
	if value == "" {
		return ""
	}
	if len(value) < 4 {
		value = strings.Repeat("0", 4-len(value)) + value
	}
	return value
}
