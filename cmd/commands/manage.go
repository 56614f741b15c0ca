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
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var manageCmd = &cobra.Command{
	Use:   "manage",
	Short: "Interactive menu for installing and controlling the service",
	Args:  cobra.NoArgs,
	RunE:  runManage,
}

func init() {
	rootCmd.AddCommand(manageCmd)
}

func runManage(_ *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("manage requires an interactive terminal, use install|start|stop|remove|status instead")
	}

	model := newMenuModel(serviceActions, func(action serviceAction) tea.Cmd {
		return func() tea.Msg {
			out, err := runServiceAction(action)
			return actionDoneMsg{text: out, err: err}
		}
	})
	_, err := tea.NewProgram(model).Run()
	return err
}

// Styles
var (
	menuTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	menuHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type actionDoneMsg struct {
	text string
	err  error
}

// menuModel lists the lifecycle actions and runs the selected one.
type menuModel struct {
	actions []serviceAction
	exec    func(serviceAction) tea.Cmd
	cursor  int
	busy    bool
	result  string
	failed  bool
}

func newMenuModel(actions []serviceAction, exec func(serviceAction) tea.Cmd) *menuModel {
	return &menuModel{actions: actions, exec: exec}
}

func (m *menuModel) Init() tea.Cmd { return nil }

func (m *menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 && !m.busy {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.actions)-1 && !m.busy {
				m.cursor++
			}
		case "enter", " ":
			if m.busy {
				return m, nil
			}
			action := m.actions[m.cursor]
			m.busy = true
			m.result = fmt.Sprintf("Running %s...", action.name)
			m.failed = false
			return m, m.exec(action)
		}
	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.result = msg.err.Error()
			m.failed = true
		} else {
			m.result = msg.text
			m.failed = false
		}
	}
	return m, nil
}

func (m *menuModel) View() string {
	var b strings.Builder
	b.WriteString(menuTitleStyle.Render("UnoPerf service"))
	b.WriteString("\n\n")

	for i, action := range m.actions {
		line := fmt.Sprintf("  %-8s %s", action.name, action.short)
		if i == m.cursor {
			line = selectedStyle.Render("> " + line[2:])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.result != "" {
		b.WriteString("\n")
		if m.failed {
			b.WriteString(errStyle.Render(m.result))
		} else {
			b.WriteString(okStyle.Render(m.result))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(menuHelpStyle.Render("↑/↓ select • enter run • q quit"))
	b.WriteString("\n")
	return b.String()
}
