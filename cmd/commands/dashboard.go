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
	"os/exec"

	"github.com/spf13/cobra"
)

var dashOpenBrowser bool

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the URL of the live dashboard of a running instance",
	Long: `Print the URL of the live dashboard served by 'unoperf run'.
The dashboard streams every new snapshot over a websocket.

Examples:
  unoperf dashboard
  unoperf dashboard --open-browser`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().BoolVar(&dashOpenBrowser, "open-browser", false, "Open browser automatically")
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	url := dashboardURL(cfg.Address())
	printf(cmd.OutOrStdout(), "UnoPerf dashboard: %s\n", url)
	printf(cmd.OutOrStdout(), "Snapshot:          %sperformance\n", url)

	if dashOpenBrowser {
		openBrowserURL(url)
	}
	return nil
}

func dashboardURL(addr string) string {
	return "http://" + addr + "/"
}

func openBrowserURL(url string) {
	var cmd *exec.Cmd
	switch {
	case fileExists("C:\\Windows\\System32\\rundll32.exe"):
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case fileExists("/usr/bin/xdg-open"):
		cmd = exec.Command("xdg-open", url)
	case fileExists("/usr/bin/open"):
		cmd = exec.Command("open", url)
	default:
		return
	}
	if err := cmd.Start(); err != nil {
		// Browser opening is optional.
		fmt.Fprintf(os.Stderr, "Failed to open browser: %v\n", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
