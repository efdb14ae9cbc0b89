// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rewrite applies merged edit histories to source files.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/infra/build/cxxclean/history"
	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/runtimex"
	"go.chromium.org/infra/build/cxxclean/scandeps"
	"go.chromium.org/infra/build/cxxclean/sync/semaphore"
)

var (
	// ErrWriteFailure is an error when a file could not be rewritten.
	ErrWriteFailure = errors.New("write failure")

	// ErrOverlap is an error when edit operations overlap.
	ErrOverlap = errors.New("overlapping edit operations")
)

// Apply applies ops to buf, and returns the new buffer.
//
// Offsets of ops are in buf. Ops are applied from the highest offset to
// the lowest, so each op sees the original offsets. Inserted line breaks
// follow buf's line ending.
func Apply(buf []byte, ops []history.Op) ([]byte, error) {
	ops = append([]history.Op(nil), ops...)
	for _, op := range ops {
		if op.Start < 0 || op.End < op.Start || op.End > len(buf) {
			return nil, fmt.Errorf("%s: out of range [0,%d)", op, len(buf))
		}
	}
	// highest offset first. at the same offset, range first, then
	// insertions in reverse order.
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Start != ops[j].Start {
			return ops[i].Start > ops[j].Start
		}
		if ops[i].End != ops[j].End {
			return ops[i].End > ops[j].End
		}
		return ops[i].Seq > ops[j].Seq
	})
	eol := scandeps.LineEnding(buf)
	var chunks [][]byte
	pos := len(buf)
	for _, op := range ops {
		if op.End > pos {
			return nil, fmt.Errorf("%s: %w", op, ErrOverlap)
		}
		chunks = append(chunks, buf[op.End:pos])
		text := op.Text
		switch op.Kind {
		case history.Add, history.Forward:
			if eol != "\n" {
				text = strings.ReplaceAll(text, "\n", eol)
			}
			if op.Start > 0 && op.Start == len(buf) && buf[len(buf)-1] != '\n' {
				// no line break at the end of file.
				text = eol + text
			}
		}
		chunks = append(chunks, []byte(text))
		pos = op.Start
	}
	chunks = append(chunks, buf[:pos])
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for i := len(chunks) - 1; i >= 0; i-- {
		out = append(out, chunks[i]...)
	}
	return out, nil
}

// File applies h to the file h.Path, and writes it atomically.
func File(ctx context.Context, h *history.FileHistory) error {
	fi, err := os.Stat(h.Path)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", h.Path, ErrWriteFailure, err)
	}
	buf, err := os.ReadFile(h.Path)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", h.Path, ErrWriteFailure, err)
	}
	out, err := Apply(buf, h.Ops)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", h.Path, ErrWriteFailure, err)
	}
	err = writeFile(h.Path, out, fi.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%s: %w: %w", h.Path, ErrWriteFailure, err)
	}
	if log.V(1) {
		clog.Infof(ctx, "rewrote %s: %d ops", h.Path, len(h.Ops))
	}
	return nil
}

// writeFile writes to a temporary file first before renaming to perform
// an atomic write.
func writeFile(fname string, buf []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(fname), "."+filepath.Base(fname)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, perm)
	}
	if err == nil {
		err = os.Rename(tmp, fname)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Overwrite applies every merged history that has operations.
// It returns result per file path; nil for success.
// A failure of a file doesn't abort the others.
func Overwrite(ctx context.Context, m *history.Merged) map[string]error {
	hs := m.Histories()
	sema := semaphore.New("rewrite", runtimex.NumCPU())
	var mu sync.Mutex
	results := make(map[string]error, len(hs))
	var eg errgroup.Group
	for _, h := range hs {
		eg.Go(func() error {
			err := sema.Do(ctx, func(ctx context.Context) error {
				return File(ctx, h)
			})
			if err != nil && !errors.Is(err, ErrWriteFailure) {
				err = fmt.Errorf("%s: %w: %w", h.Path, ErrWriteFailure, err)
			}
			if err != nil {
				clog.Warningf(ctx, "failed to rewrite %s: %v", h.Path, err)
			}
			mu.Lock()
			results[h.Path] = err
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()
	if log.V(1) {
		clog.Infof(ctx, "%s", sema)
	}
	return results
}
