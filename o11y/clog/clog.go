// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clog provides context aware logging.
// It can store trace, spanID, arbitrary labels to each context.
// The main use case is to add translation unit context to each log entry
// automatically.
//
// It uses Cloud logging.Entry as log entry representation, and writes
// entries with glog.
package clog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/logging"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

type contextKeyType int

var contextKey contextKeyType

// defaultFormatter prefixes labels to the payload.
var defaultFormatter = func(e logging.Entry) string {
	if len(e.Labels) == 0 {
		return fmt.Sprintf("%v", e.Payload)
	}
	keys := make([]string, 0, len(e.Labels))
	for k := range e.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s ", k, e.Labels[k])
	}
	fmt.Fprintf(&sb, "%v", e.Payload)
	return sb.String()
}

// defaultLogger is used when no logger is set in the context.
var defaultLogger = &Logger{Formatter: defaultFormatter}

// New creates a new Logger.
func New(ctx context.Context) *Logger {
	return &Logger{
		Formatter: defaultFormatter,
	}
}

// NewContext sets the given logger to the context.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey, logger)
}

// NewSpan sets a new logger.Span with the given labels to the context.
func NewSpan(ctx context.Context, trace, spanID string, labels map[string]string) context.Context {
	return NewContext(ctx, FromContext(ctx).Span(trace, spanID, labels))
}

// NewTUSpan sets a new span for translation unit tu to the context.
// The span has a new random span id, and label "tu".
func NewTUSpan(ctx context.Context, tu string) context.Context {
	l := FromContext(ctx)
	labels := make(map[string]string, len(l.labels)+1)
	for k, v := range l.labels {
		labels[k] = v
	}
	labels["tu"] = tu
	return NewContext(ctx, l.Span(l.trace, uuid.New().String(), labels))
}

// FromContext returns a logger in the context, or default logger if
// it's not set.
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey).(*Logger)
	if !ok || logger == nil {
		return defaultLogger
	}
	return logger
}

// Logger holds the trace, spanID, arbitrary labels of the context.
// It also can have custom formatter to generate a log content.
type Logger struct {
	// Formatter is a formatter of the entry for glog.
	// Default prints labels and payload.
	Formatter func(e logging.Entry) string

	// The following properties are equivalent to the ones in logging.LogEntry.
	// https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry
	trace  string
	spanID string
	labels map[string]string
}

// Span returns a sub logger for the trace span.
func (l *Logger) Span(trace, spanID string, labels map[string]string) *Logger {
	return &Logger{
		Formatter: l.Formatter,
		trace:     trace,
		spanID:    spanID,
		labels:    labels,
	}
}

// SpanID returns span id of the logger.
func (l *Logger) SpanID() string { return l.spanID }

// Labels returns labels of the logger.
func (l *Logger) Labels() map[string]string { return l.labels }

func (l *Logger) log(e logging.Entry) {
	format := l.Formatter
	if format == nil {
		format = defaultFormatter
	}
	msg := format(e)
	switch e.Severity {
	case logging.Info:
		glog.InfoDepth(3, msg)
	case logging.Warning:
		glog.WarningDepth(3, msg)
	case logging.Error:
		glog.ErrorDepth(3, msg)
	default:
		glog.InfoDepth(3, fmt.Sprintf("%s %s", e.Severity, msg))
	}
}

func (l *Logger) logf(severity logging.Severity, format string, args ...any) {
	l.log(l.Entry(severity, fmt.Sprintf(format, args...)))
}

// Infof logs at info log level in the manner of fmt.Printf.
func (l *Logger) Infof(format string, args ...any) { l.logf(logging.Info, format, args...) }

// Warningf logs at warning log level in the manner of fmt.Printf.
func (l *Logger) Warningf(format string, args ...any) { l.logf(logging.Warning, format, args...) }

// Errorf logs at error log level in the manner of fmt.Printf.
func (l *Logger) Errorf(format string, args ...any) { l.logf(logging.Error, format, args...) }

// Infof logs at info log level with the logger of ctx.
func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).logf(logging.Info, format, args...)
}

// Warningf logs at warning log level with the logger of ctx.
func Warningf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).logf(logging.Warning, format, args...)
}

// Errorf logs at error log level with the logger of ctx.
func Errorf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).logf(logging.Error, format, args...)
}

// Entry creates a new log entry for the given severity.
func (l *Logger) Entry(severity logging.Severity, payload any) logging.Entry {
	return logging.Entry{
		Timestamp: time.Now(),
		Severity:  severity,
		Payload:   payload,
		Labels:    l.labels,
		Trace:     l.trace,
		SpanID:    l.spanID,
	}
}

// Close closes the logger. it will flush log entries.
func (l *Logger) Close() {
	glog.Flush()
}
