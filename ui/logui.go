// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"
)

type logSpinner struct {
	started time.Time
	msg     string
}

// Start logs the start of the operation.
func (l *logSpinner) Start(format string, args ...any) {
	l.started = time.Now()
	l.msg = fmt.Sprintf(format, args...)
	log.Info(l.msg)
}

// Stop logs how long the operation took.
func (l *logSpinner) Stop(err error) {
	if err != nil {
		log.Warn(l.msg, "status", "failed", "duration", FormatDuration(time.Since(l.started)), "err", err)
		return
	}
	log.Info(l.msg, "status", "done", "duration", FormatDuration(time.Since(l.started)))
}

// Done finishes the spinner with message.
func (l *logSpinner) Done(format string, args ...any) {
	log.Info(l.msg, "status", fmt.Sprintf(format, args...), "duration", FormatDuration(time.Since(l.started)))
}

// LogUI is a log-based UI. Messages are logged without escape sequences.
type LogUI struct{}

// PrintLines logs each message line.
func (LogUI) PrintLines(msgs ...string) {
	for _, msg := range msgs {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			continue
		}
		log.Info(ansi.Strip(msg))
	}
}

// NewSpinner returns a log-based spinner.
func (LogUI) NewSpinner() Spinner {
	return &logSpinner{}
}

// Infof logs message at info level.
func (LogUI) Infof(format string, args ...any) {
	log.Helper()
	log.Info(ansi.Strip(fmt.Sprintf(format, args...)))
}

// Warningf logs message at warn level.
func (LogUI) Warningf(format string, args ...any) {
	log.Helper()
	log.Warn(ansi.Strip(fmt.Sprintf(format, args...)))
}

// Errorf logs message at error level.
func (LogUI) Errorf(format string, args ...any) {
	log.Helper()
	log.Error(ansi.Strip(fmt.Sprintf(format, args...)))
}
