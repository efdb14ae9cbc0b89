// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ui prints progress and results to a terminal, or to the log
// when stdout is not a terminal.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// Spinner shows progress of a long operation.
type Spinner interface {
	// Start starts the spinner with the specified formatted string.
	Start(format string, args ...any)
	// Stop stops the spinner, outputting an error if provided.
	Stop(err error)
	// Done finishes the spinner with message.
	Done(format string, args ...any)
}

// UI is a user interface.
type UI interface {
	// PrintLines prints message lines.
	// If msgs starts with \n, it will print from the current line.
	// Otherwise, it will replace the last N lines, where N is len(msgs).
	PrintLines(msgs ...string)
	// NewSpinner returns a new spinner.
	NewSpinner() Spinner

	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Default holds the default UI interface.
// Making changes to this variable after init is undefined behavior.
var Default UI

func init() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		termUI := &TermUI{}
		termUI.init()
		Default = termUI
	} else {
		Default = &LogUI{}
	}
}

// Style is a text style.
type Style int

const (
	Bold Style = iota
	Red
	Green
	Yellow
)

var styles = map[Style]lipgloss.Style{
	Bold:   lipgloss.NewStyle().Bold(true),
	Red:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(1)),
	Green:  lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(2)),
	Yellow: lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(3)),
}

// Render renders s in style. Each line is rendered separately, so
// lines are not padded to the same width.
// Colors are dropped if stdout doesn't support them.
func Render(style Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		lines[i] = styles[style].Render(line)
	}
	return strings.Join(lines, "\n")
}

// writeLinesMaxWidth writes msgs separated by newline, eliding single
// line messages wider than width.
func writeLinesMaxWidth(sb *strings.Builder, msgs []string, width int) {
	for i, msg := range msgs {
		if msg == "" {
			continue
		}
		if width > 4 && !strings.Contains(strings.TrimSuffix(msg, "\n"), "\n") {
			msg = elideMiddle(msg, width)
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(msg)
	}
}

// elideMiddle replaces the middle of msg with "..." to fit in width
// cells. Escape sequences are not counted.
func elideMiddle(msg string, width int) string {
	const marker = "..."
	w := ansi.StringWidth(msg)
	if w < width {
		return msg
	}
	n := (width - (len(marker) + 1)) / 2
	if n <= 0 {
		return msg
	}
	return ansi.Truncate(msg, n, "") + marker + ansi.TruncateLeft(msg, w-n, "")
}
