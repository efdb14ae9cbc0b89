// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"fmt"
	"sync"
	"time"
)

// Progress reports progress of translation units.
type Progress struct {
	ui      UI
	started time.Time

	mu      sync.Mutex
	total   int
	done    int
	failed  int
	skipped int
}

// NewProgress creates progress for total translation units on u.
func NewProgress(u UI, total int) *Progress {
	return &Progress{
		ui:      u,
		started: time.Now(),
		total:   total,
	}
}

// Step reports that tu finished. err is error of tu, if any.
// skipped is true if tu was not analyzed.
func (p *Progress) Step(tu string, skipped bool, err error) {
	p.mu.Lock()
	p.done++
	switch {
	case err != nil:
		p.failed++
	case skipped:
		p.skipped++
	}
	msg := fmt.Sprintf("[%d/%d] %s %s", p.done, p.total, FormatDuration(time.Since(p.started)), tu)
	p.mu.Unlock()
	switch {
	case err != nil:
		msg = fmt.Sprintf("%s %s", msg, Render(Red, err.Error()))
		p.ui.PrintLines("\n", msg, "")
	case skipped:
		p.ui.PrintLines(msg + " " + Render(Yellow, "skipped"))
	default:
		p.ui.PrintLines(msg)
	}
}

// Summary returns summary of the progress.
func (p *Progress) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("%d/%d translation units, %d failed, %d skipped in %s", p.done, p.total, p.failed, p.skipped, FormatDuration(time.Since(p.started)))
}
