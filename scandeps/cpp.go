// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package scandeps

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
)

// DirectiveKind is a kind of preprocessor directive.
type DirectiveKind int

const (
	Include DirectiveKind = iota
	IncludeNext
	Import
	Define
)

func (k DirectiveKind) String() string {
	switch k {
	case Include:
		return "include"
	case IncludeNext:
		return "include_next"
	case Import:
		return "import"
	case Define:
		return "define"
	}
	return fmt.Sprintf("directive(%d)", int(k))
}

// Directive is a preprocessor directive found in a buffer.
type Directive struct {
	Kind DirectiveKind

	// Spelling is `"path.h"`, `<path.h>` or a macro name for
	// #include, or the macro name for #define.
	Spelling string

	// Value is the macro value for #define.
	Value string

	// Line is 1-based line number.
	Line int

	// Start and End are byte offsets of the line text,
	// excluding line break.
	Start, End int

	// Next is byte offset of the next line, i.e. End plus the line break.
	Next int

	// Depth is nesting depth of conditional directives (#if, #ifdef,
	// #ifndef) at the directive. Include guard counts.
	Depth int
}

// IsInclude reports whether d is #include, #include_next or #import.
func (d Directive) IsInclude() bool {
	return d.Kind != Define
}

// Name returns spelling without delimiters.
func (d Directive) Name() string {
	s := d.Spelling
	if len(s) >= 2 && (s[0] == '"' || s[0] == '<') {
		return s[1 : len(s)-1]
	}
	return s
}

// Angled reports whether the spelling uses <>.
func (d Directive) Angled() bool {
	return strings.HasPrefix(d.Spelling, "<")
}

// ScanDirectives scans #include/#import/#define directives in buf.
//
// It only checks directives that fit in one line and doesn't evaluate
// conditionals, so it reports all directives textually present.
func ScanDirectives(ctx context.Context, fname string, buf []byte) []Directive {
	started := time.Now()
	var dirs []Directive
	lineno := 0
	depth := 0
	for pos := 0; pos < len(buf); {
		lineno++
		start := pos
		end := len(buf)
		next := len(buf)
		if i := bytes.IndexByte(buf[pos:], '\n'); i >= 0 {
			end = pos + i
			next = end + 1
		}
		pos = next
		if end > start && buf[end-1] == '\r' {
			end--
		}
		line := bytes.TrimSpace(buf[start:end])
		if len(line) == 0 || line[0] != '#' {
			continue
		}
		switch cond := bytes.TrimSpace(line[1:]); {
		case bytes.HasPrefix(cond, []byte("if")):
			// #if, #ifdef, #ifndef
			depth++
			continue
		case bytes.HasPrefix(cond, []byte("endif")):
			if depth > 0 {
				depth--
			}
			continue
		}
		d, ok := parseDirective(ctx, fname, line)
		if !ok {
			if log.V(3) {
				clog.Infof(ctx, "%s:%d: skip %q", fname, lineno, line)
			}
			continue
		}
		d.Line = lineno
		d.Start = start
		d.End = end
		d.Next = next
		d.Depth = depth
		dirs = append(dirs, d)
	}
	if dur := time.Since(started); dur > time.Second {
		clog.Infof(ctx, "slow scan %s %s", fname, dur)
	}
	return dirs
}

func parseDirective(ctx context.Context, fname string, line []byte) (Directive, bool) {
	// skip #
	line = bytes.TrimSpace(line[1:])
	var d Directive
	switch {
	case bytes.HasPrefix(line, []byte("include_next")):
		d.Kind = IncludeNext
		line = line[len("include_next"):]
	case bytes.HasPrefix(line, []byte("include")):
		d.Kind = Include
		line = line[len("include"):]
	case bytes.HasPrefix(line, []byte("import")):
		d.Kind = Import
		line = line[len("import"):]
	case bytes.HasPrefix(line, []byte("define")):
		d.Kind = Define
		line = line[len("define"):]
	default:
		return d, false
	}
	if len(line) == 0 {
		return d, false
	}
	switch line[0] {
	case ' ', '\t':
	case '"', '<':
		if d.Kind == Define {
			return d, false
		}
	default:
		// e.g. #includefoo, #defined
		return d, false
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return d, false
	}
	if d.Kind == Define {
		return parseDefine(ctx, fname, d, line)
	}
	spelling, ok := includeSpelling(line)
	if !ok {
		if log.V(1) {
			clog.Infof(ctx, "%s: unclosed include? %q", fname, line)
		}
		return d, false
	}
	d.Spelling = spelling
	return d, true
}

func includeSpelling(line []byte) (string, bool) {
	switch line[0] {
	case '"', '<':
		delim := line[0]
		if delim == '<' {
			delim = '>'
		}
		i := bytes.IndexByte(line[1:], delim)
		if i < 0 {
			return "", false
		}
		return string(line[:i+2]), true
	}
	// #include MACRO
	if line[0] < 'A' || line[0] > 'Z' {
		return "", false
	}
	if i := bytes.IndexAny(line, " \t/"); i >= 0 {
		line = line[:i]
	}
	return string(line), true
}

func parseDefine(ctx context.Context, fname string, d Directive, line []byte) (Directive, bool) {
	i := bytes.IndexAny(line, " \t")
	if i < 0 {
		// just define macro.
		d.Spelling = string(line)
		return d, true
	}
	d.Spelling = string(line[:i])
	if strings.Contains(d.Spelling, "(") {
		if log.V(1) {
			clog.Infof(ctx, "%s: ignore func macro %q", fname, d.Spelling)
		}
		return d, false
	}
	value := bytes.TrimSpace(line[i+1:])
	if len(value) == 0 {
		return d, true
	}
	// only "path.h", <path.h> or other macro name (capital letter token).
	if v, ok := includeSpelling(value); ok {
		d.Value = v
	}
	return d, true
}

// IncludeAt returns #include directive at line, if any.
func IncludeAt(dirs []Directive, line int) (Directive, bool) {
	for _, d := range dirs {
		if d.Line == line && d.IsInclude() {
			return d, true
		}
		if d.Line > line {
			break
		}
	}
	return Directive{}, false
}

// LineEnding returns line break used in buf: "\r\n" or "\n".
func LineEnding(buf []byte) string {
	i := bytes.IndexByte(buf, '\n')
	if i > 0 && buf[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
