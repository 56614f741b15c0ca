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
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

// ErrUnavailable reports that a metric source is missing on this host.
var ErrUnavailable = errors.New("source unavailable")

// Reading is the result of sampling one metric source: a value, or unavailable.
type Reading struct {
	Value float64
	OK    bool
}

// Available wraps a measured value.
func Available(v float64) Reading {
	return Reading{Value: v, OK: true}
}

// Unavailable is the zero Reading.
var Unavailable = Reading{}

// Ptr returns the value as a pointer, nil when unavailable.
func (r Reading) Ptr() *float64 {
	if !r.OK {
		return nil
	}
	return metrics.Float64(r.Value)
}

// Or returns the value, or def when unavailable.
func (r Reading) Or(def float64) float64 {
	if !r.OK {
		return def
	}
	return r.Value
}

// Sampler measures a single scalar metric.
type Sampler interface {
	Sample(ctx context.Context) Reading
}

// CommandRunner executes an external process and returns its standard output.
// A non-zero exit status is an error.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// commandWaitDelay bounds how long output pipes held open by descendants of a
// killed process are waited for.
const commandWaitDelay = 500 * time.Millisecond

// ExecRunner runs commands with a hard timeout per call.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes name with args. The call is detached from ctx cancellation so an
// in-flight process is bounded only by Timeout, never killed mid-output by shutdown.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.WaitDelay = commandWaitDelay

	out, err := cmd.Output()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%s timed out after %v", name, timeout)
	}
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return string(out), nil
}

// powershell runs a PowerShell script through runner.
func powershell(ctx context.Context, runner CommandRunner, script string) (string, error) {
	return runner.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

// parseNumber parses a trimmed decimal number, accepting a comma decimal separator
// as printed by localized PowerShell hosts.
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

// firstLine returns the first non-empty line of out.
func firstLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
