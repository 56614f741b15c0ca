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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/phuonguno98/unoperf/internal/service"
)

// serviceTimeout bounds one lifecycle operation, including waiting for the systemd job.
const serviceTimeout = 30 * time.Second

// serviceAction is one lifecycle operation, shared by the subcommands and the manage menu.
type serviceAction struct {
	name  string
	short string
	run   func(ctx context.Context, c *service.Controller) (string, error)
}

var serviceActions = []serviceAction{
	{
		name:  "install",
		short: "Install the systemd unit and enable it at boot",
		run: func(ctx context.Context, c *service.Controller) (string, error) {
			if err := c.Install(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("Installed %s", c.UnitPath()), nil
		},
	},
	{
		name:  "start",
		short: "Start the installed service",
		run: func(ctx context.Context, c *service.Controller) (string, error) {
			if err := c.Start(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("Started %s", c.UnitName()), nil
		},
	},
	{
		name:  "stop",
		short: "Stop the running service",
		run: func(ctx context.Context, c *service.Controller) (string, error) {
			if err := c.Stop(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("Stopped %s", c.UnitName()), nil
		},
	},
	{
		name:  "remove",
		short: "Stop, disable and delete the systemd unit",
		run: func(ctx context.Context, c *service.Controller) (string, error) {
			if err := c.Remove(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("Removed %s", c.UnitName()), nil
		},
	},
	{
		name:  "status",
		short: "Show the service state",
		run: func(ctx context.Context, c *service.Controller) (string, error) {
			st, err := c.Status(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %s", c.UnitName(), st), nil
		},
	},
}

func init() {
	for _, action := range serviceActions {
		rootCmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				out, err := runServiceAction(action)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s\n", out)
				return nil
			},
		})
	}
}

// runServiceAction connects to systemd and performs one lifecycle operation.
func runServiceAction(action serviceAction) (string, error) {
	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	opts, err := service.DefaultOptions(absConfig, consoleLogger(os.Stderr, logLevel))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()

	ctrl, err := service.Connect(ctx, opts)
	if err != nil {
		return "", err
	}
	defer ctrl.Close()

	out, err := action.run(ctx, ctrl)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", action.name, err)
	}
	return out, nil
}
