// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package scandeps

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
)

// Dir is a header search directory.
type Dir struct {
	// Path is an absolute directory, or *.hmap file.
	Path string

	// System is true for -isystem, sysroot or builtin dirs.
	// Headers found in system dirs are spelled as <path.h>.
	System bool

	// Hmap is header map loaded from Path if Path is *.hmap.
	// header path -> include name.
	hmap map[string]string
}

// SearchPath is a list of header search directories used to spell
// #include of an absolute path.
type SearchPath struct {
	dirs []Dir
}

// NewSearchPath creates SearchPath for dirs.
// Relative dirs are resolved from execRoot.
// *.hmap dirs are loaded.
func NewSearchPath(ctx context.Context, execRoot string, dirs []Dir) *SearchPath {
	sp := &SearchPath{}
	seen := make(map[string]bool)
	for _, d := range dirs {
		p := d.Path
		if !filepath.IsAbs(p) && !path.IsAbs(filepath.ToSlash(p)) {
			p = filepath.Join(execRoot, p)
		}
		d.Path = filepath.ToSlash(filepath.Clean(p))
		if seen[d.Path] {
			continue
		}
		seen[d.Path] = true
		if strings.HasSuffix(d.Path, ".hmap") {
			buf, err := os.ReadFile(d.Path)
			if err != nil {
				clog.Warningf(ctx, "failed to read hmap %s: %v", d.Path, err)
				continue
			}
			m, err := ParseHeaderMap(ctx, buf)
			if err != nil {
				clog.Warningf(ctx, "failed to parse hmap %s: %v", d.Path, err)
				continue
			}
			d.hmap = reverseHeaderMap(path.Dir(d.Path), m)
		}
		sp.dirs = append(sp.dirs, d)
	}
	// most specific dir wins.
	sort.SliceStable(sp.dirs, func(i, j int) bool {
		return len(sp.dirs[i].Path) > len(sp.dirs[j].Path)
	})
	return sp
}

// reverseHeaderMap converts include name -> header path
// to header path -> shortest include name.
func reverseHeaderMap(dir string, m map[string]string) map[string]string {
	r := make(map[string]string)
	for name, p := range m {
		if !path.IsAbs(p) {
			p = path.Join(dir, p)
		}
		p = path.Clean(p)
		if prev, ok := r[p]; ok && (len(prev) < len(name) || (len(prev) == len(name) && prev < name)) {
			continue
		}
		r[p] = name
	}
	return r
}

// Dirs returns search dirs, longest first.
func (sp *SearchPath) Dirs() []Dir {
	return append([]Dir(nil), sp.dirs...)
}

// Spelling returns include spelling (with delimiters) of the header
// abspath to be included from includer.
//
// It uses the longest matching search dir. If no dir matches, it uses
// the path relative to includer's dir.
func (sp *SearchPath) Spelling(ctx context.Context, abspath, includer string) string {
	abspath = filepath.ToSlash(filepath.Clean(abspath))
	if sp != nil {
		for _, d := range sp.dirs {
			if d.hmap != nil {
				if name, ok := d.hmap[abspath]; ok {
					return quote(name, d.System)
				}
				continue
			}
			rel, ok := under(d.Path, abspath)
			if !ok {
				continue
			}
			if log.V(1) {
				clog.Infof(ctx, "spelling %s: dir=%s -> %s", abspath, d.Path, rel)
			}
			return quote(rel, d.System)
		}
	}
	dir := path.Dir(filepath.ToSlash(includer))
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(abspath))
	if err != nil {
		return quote(abspath, false)
	}
	return quote(filepath.ToSlash(rel), false)
}

func under(dir, p string) (string, bool) {
	if dir == "/" {
		return strings.TrimPrefix(p, "/"), p != "/"
	}
	if !strings.HasPrefix(p, dir+"/") {
		return "", false
	}
	return p[len(dir)+1:], true
}

func quote(name string, system bool) string {
	if system {
		return "<" + name + ">"
	}
	return `"` + name + `"`
}
