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
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == osWindows {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecRunner_Output(t *testing.T) {
	requireShell(t)

	out, err := ExecRunner{Timeout: time.Second}.Run(context.Background(), "sh", "-c", "echo 42")
	require.NoError(t, err)
	assert.Equal(t, "42", strings.TrimSpace(out))
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireShell(t)

	_, err := ExecRunner{Timeout: time.Second}.Run(context.Background(), "sh", "-c", "exit 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)

	start := time.Now()
	_, err := ExecRunner{Timeout: 200 * time.Millisecond}.Run(context.Background(), "sh", "-c", "sleep 5")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecRunner_TimeoutWithDescendantHoldingOutput(t *testing.T) {
	requireShell(t)

	// The background sleep inherits stdout and outlives the killed shell.
	start := time.Now()
	_, err := ExecRunner{Timeout: 200 * time.Millisecond}.Run(context.Background(), "sh", "-c", "sleep 3 & sleep 5")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecRunner_IgnoresCallerCancellation(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := ExecRunner{Timeout: time.Second}.Run(ctx, "sh", "-c", "echo done")
	require.NoError(t, err)
	assert.Equal(t, "done", strings.TrimSpace(out))
}
