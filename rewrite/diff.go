// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rewrite

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"go.chromium.org/infra/build/cxxclean/history"
)

// contextLines is the number of unchanged lines around a hunk.
const contextLines = 3

// Diff returns unified diff of applying ops to buf of fname.
// It returns nil if ops change nothing.
func Diff(fname string, buf []byte, ops []history.Op) ([]byte, error) {
	out, err := Apply(buf, ops)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(buf, out) {
		return nil, nil
	}
	a := splitLines(buf)
	b := splitLines(out)
	prefix := 0
	for prefix < len(a) && prefix < len(b) && bytes.Equal(a[prefix], b[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && bytes.Equal(a[len(a)-1-suffix], b[len(b)-1-suffix]) {
		suffix++
	}
	start := max(prefix-contextLines, 0)
	trailer := min(suffix, contextLines)

	var body bytes.Buffer
	for _, l := range a[start:prefix] {
		writeLine(&body, ' ', l)
	}
	for _, l := range a[prefix : len(a)-suffix] {
		writeLine(&body, '-', l)
	}
	for _, l := range b[prefix : len(b)-suffix] {
		writeLine(&body, '+', l)
	}
	for _, l := range a[len(a)-suffix : len(a)-suffix+trailer] {
		writeLine(&body, ' ', l)
	}
	hunk := &godiff.Hunk{
		OrigStartLine: hunkStart(start, len(a)-suffix+trailer-start),
		OrigLines:     int32(len(a) - suffix + trailer - start),
		NewStartLine:  hunkStart(start, len(b)-suffix+trailer-start),
		NewLines:      int32(len(b) - suffix + trailer - start),
		Body:          body.Bytes(),
	}
	name := strings.TrimPrefix(fname, "/")
	return godiff.PrintFileDiff(&godiff.FileDiff{
		OrigName: "a/" + name,
		NewName:  "b/" + name,
		Hunks:    []*godiff.Hunk{hunk},
	})
}

// hunkStart returns 1-based start line of a hunk, or the line before
// the hunk for empty range.
func hunkStart(start, n int) int32 {
	if n == 0 {
		return int32(start)
	}
	return int32(start + 1)
}

func splitLines(buf []byte) [][]byte {
	var lines [][]byte
	for len(buf) > 0 {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			lines = append(lines, buf)
			break
		}
		lines = append(lines, buf[:i+1])
		buf = buf[i+1:]
	}
	return lines
}

func writeLine(w *bytes.Buffer, mark byte, line []byte) {
	w.WriteByte(mark)
	w.Write(line)
	if !bytes.HasSuffix(line, []byte("\n")) {
		w.WriteByte('\n')
	}
}

// DiffFile returns unified diff of applying h to the file h.Path.
func DiffFile(h *history.FileHistory) ([]byte, error) {
	buf, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, err
	}
	d, err := Diff(h.Path, buf, h.Ops)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.Path, err)
	}
	return d, nil
}
