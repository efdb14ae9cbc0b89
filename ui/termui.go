// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// clearLine moves to the line head and erases the line.
const clearLine = "\r" + ansi.EraseLineRight

type termSpinner struct {
	quit, done chan struct{}
	started    time.Time
	msg        string
}

// Start starts the spinner.
func (s *termSpinner) Start(format string, args ...any) {
	s.started = time.Now()
	s.msg = fmt.Sprintf(format, args...)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	fmt.Printf("%s... ", s.msg)
	go func() {
		defer close(s.done)
		const chars = `/-\|`
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for n := 0; ; n = (n + 1) % len(chars) {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				fmt.Printf("\b%c", chars[n])
			}
		}
	}()
}

func (s *termSpinner) finish() time.Duration {
	close(s.quit)
	<-s.done
	return time.Since(s.started)
}

// Stop stops the spinner.
func (s *termSpinner) Stop(err error) {
	d := s.finish()
	switch {
	case err != nil:
		fmt.Printf("%s%6s %s %s\n", clearLine, FormatDuration(d), s.msg, Render(Red, "failed "+err.Error()))
	case d < DurationThreshold:
		fmt.Print(clearLine)
	default:
		fmt.Printf("%s%6s %s\n", clearLine, FormatDuration(d), s.msg)
	}
}

// Done finishes the spinner with message.
func (s *termSpinner) Done(format string, args ...any) {
	d := s.finish()
	fmt.Printf("%s%6s %s %s\n", clearLine, FormatDuration(d), s.msg, fmt.Sprintf(format, args...))
}

// TermUI is a terminal-based UI.
type TermUI struct {
	width int
}

func (t *TermUI) init() {
	t.width, _, _ = term.GetSize(int(os.Stdout.Fd()))
}

// PrintLines implements the UI interface.
func (t *TermUI) PrintLines(msgs ...string) {
	var sb strings.Builder
	if len(msgs) > 0 && msgs[0] == "\n" {
		msgs = msgs[1:]
	} else {
		for range len(msgs) - 1 {
			sb.WriteString(clearLine + ansi.CursorUp1)
		}
		sb.WriteString(clearLine)
	}
	writeLinesMaxWidth(&sb, msgs, t.width)
	os.Stdout.WriteString(sb.String())
}

// NewSpinner returns a terminal-based spinner.
func (*TermUI) NewSpinner() Spinner {
	return &termSpinner{}
}

// Infof prints message to stdout.
func (*TermUI) Infof(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// Warningf prints message to stderr in yellow.
func (*TermUI) Warningf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, Render(Yellow, fmt.Sprintf(format, args...)))
}

// Errorf prints message to stderr in red.
func (*TermUI) Errorf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, Render(Red, fmt.Sprintf(format, args...)))
}
