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

package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	reloads   int
	enabled   []string
	disabled  []string
	started   []string
	stopped   []string
	active    string
	jobResult string
	closed    bool
}

func (f *fakeConn) ReloadContext(context.Context) error {
	f.reloads++
	return nil
}

func (f *fakeConn) EnableUnitFilesContext(_ context.Context, files []string, _ bool, _ bool) (bool, []dbus.EnableUnitFileChange, error) {
	f.enabled = append(f.enabled, files...)
	return false, nil, nil
}

func (f *fakeConn) DisableUnitFilesContext(_ context.Context, files []string, _ bool) ([]dbus.DisableUnitFileChange, error) {
	f.disabled = append(f.disabled, files...)
	return nil, nil
}

func (f *fakeConn) StartUnitContext(_ context.Context, name string, _ string, ch chan<- string) (int, error) {
	f.started = append(f.started, name)
	f.active = "active"
	ch <- f.jobResult
	return 1, nil
}

func (f *fakeConn) StopUnitContext(_ context.Context, name string, _ string, ch chan<- string) (int, error) {
	f.stopped = append(f.stopped, name)
	f.active = "inactive"
	ch <- f.jobResult
	return 2, nil
}

func (f *fakeConn) ListUnitsByNamesContext(_ context.Context, units []string) ([]dbus.UnitStatus, error) {
	sub := "dead"
	if f.active == "active" {
		sub = "running"
	}
	return []dbus.UnitStatus{{Name: units[0], LoadState: "loaded", ActiveState: f.active, SubState: sub}}, nil
}

func (f *fakeConn) Close() { f.closed = true }

func newTestController(t *testing.T) (*Controller, *fakeConn) {
	t.Helper()
	conn := &fakeConn{jobResult: "done", active: "inactive"}
	c := newController(conn, Options{
		ExecPath:   "/usr/local/bin/unoperf",
		ConfigPath: "/etc/unoperf/config file.json",
		UnitDir:    t.TempDir(),
	})
	return c, conn
}

func TestController_Unit(t *testing.T) {
	c, _ := newTestController(t)

	data, err := io.ReadAll(c.Unit())
	require.NoError(t, err)
	unitFile := string(data)

	assert.Contains(t, unitFile, "[Service]")
	assert.Contains(t, unitFile, "Type=notify")
	assert.Contains(t, unitFile, `ExecStart=/usr/local/bin/unoperf run --config "/etc/unoperf/config file.json"`)
	assert.Contains(t, unitFile, "WantedBy=multi-user.target")
	assert.Equal(t, "unoperf.service", c.UnitName())
}

func TestController_UnitQuotesExecPath(t *testing.T) {
	c := newController(&fakeConn{}, Options{
		ExecPath:   "/opt/uno perf/unoperf",
		ConfigPath: "/etc/unoperf/config.json",
		UnitDir:    t.TempDir(),
	})

	data, err := io.ReadAll(c.Unit())
	require.NoError(t, err)
	assert.Contains(t, string(data), `ExecStart="/opt/uno perf/unoperf" run --config /etc/unoperf/config.json`)
}

func TestController_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c, conn := newTestController(t)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Installed)
	assert.Equal(t, "not installed", status.String())
	assert.ErrorIs(t, c.Start(ctx), ErrNotInstalled)

	require.NoError(t, c.Install(ctx))
	_, err = os.Stat(filepath.Join(c.opts.UnitDir, "unoperf.service"))
	require.NoError(t, err)
	assert.Equal(t, []string{c.UnitPath()}, conn.enabled)
	assert.Equal(t, 1, conn.reloads)

	require.NoError(t, c.Start(ctx))
	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running())
	assert.Equal(t, "active (running)", status.String())

	require.NoError(t, c.Stop(ctx))
	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running())

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Remove(ctx))
	assert.Equal(t, []string{"unoperf.service"}, conn.disabled)
	assert.Len(t, conn.stopped, 2, "remove must stop a running unit")
	_, err = os.Stat(c.UnitPath())
	assert.True(t, errors.Is(err, os.ErrNotExist))

	c.Close()
	assert.True(t, conn.closed)
}

func TestController_FailedJob(t *testing.T) {
	ctx := context.Background()
	c, conn := newTestController(t)
	require.NoError(t, c.Install(ctx))

	conn.jobResult = "failed"
	err := c.Start(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), `"failed"`))
}

type silentConn struct{ fakeConn }

func (s *silentConn) StartUnitContext(_ context.Context, name string, _ string, _ chan<- string) (int, error) {
	s.started = append(s.started, name)
	return 1, nil
}

func TestController_JobTimeout(t *testing.T) {
	conn := &silentConn{}
	c := newController(conn, Options{ExecPath: "/bin/unoperf", UnitDir: t.TempDir()})
	require.NoError(t, c.Install(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "/etc/unoperf.json", quote("/etc/unoperf.json"))
	assert.Equal(t, `"/opt/my app/config.json"`, quote("/opt/my app/config.json"))
}
