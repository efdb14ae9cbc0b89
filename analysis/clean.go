// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/history"
	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/scandeps"
)

// Clean generates edit histories of user files from the analysis.
// It analyzes the translation unit if not yet.
func (a *Analysis) Clean(ctx context.Context) ([]*history.FileHistory, error) {
	if !a.analyzed {
		err := a.Analyze(ctx)
		if err != nil {
			return nil, err
		}
	}
	if a.histories != nil {
		return a.histories, nil
	}
	hs := []*history.FileHistory{}
	for _, fkey := range a.solver.order {
		if !a.solver.isUser(fkey) {
			continue
		}
		h, err := a.cleanFile(ctx, fkey)
		if err != nil {
			a.diagf("clean %s: %w", fkey, err)
			clog.Warningf(ctx, "clean %s: %v", fkey, err)
			continue
		}
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Path < hs[j].Path })
	a.histories = hs
	return hs, nil
}

// includeLine is an original #include directive of an include.
type includeLine struct {
	inc *include
	dir scandeps.Directive
}

func (a *Analysis) cleanFile(ctx context.Context, fkey string) (*history.FileHistory, error) {
	r := a.solver.results[fkey]
	node := a.tree.First(fkey)
	h := &history.FileHistory{
		Path: node.Path,
		TU:   a.opts.TU,
	}
	for _, rkey := range sortedKeys(a.records[fkey]) {
		if a.records[fkey][rkey].hard {
			h.Hard = append(h.Hard, rkey)
		}
	}
	buf, err := a.opts.ReadFile(node.Path)
	if err != nil {
		return nil, err
	}
	dirs := scandeps.ScanDirectives(ctx, node.Path, buf)
	lookup := func(inc *include) []includeLine {
		var lines []includeLine
		for _, line := range inc.lines {
			d, ok := scandeps.IncludeAt(dirs, line)
			if !ok {
				a.diagf("%s:%d: no #include for %s", node.Path, line, inc.key)
				continue
			}
			lines = append(lines, includeLine{inc: inc, dir: d})
		}
		return lines
	}

	var all, surviving, removed []scandeps.Directive
	for _, m := range r.members {
		if m.inc == nil {
			continue
		}
		for i, il := range lookup(m.inc) {
			all = append(all, il.dir)
			if i == 0 || m.inc.pinned {
				h.Kept = append(h.Kept, history.Range{Start: il.dir.Start, End: il.dir.End, Line: il.dir.Line})
				surviving = append(surviving, il.dir)
				continue
			}
			// included again.
			removed = append(removed, il.dir)
			h.Ops = append(h.Ops, deleteOp(node.Path, il.dir))
		}
	}

	// a new include reached through a dropped include replaces it.
	replaced := make(map[*include]*need)
	var adds []*need
	var droppedLines [][]includeLine
	for _, inc := range r.dropped {
		droppedLines = append(droppedLines, lookup(inc))
	}
	for _, m := range r.members {
		if m.need == nil {
			continue
		}
		var by *include
		for i, inc := range r.dropped {
			if _, ok := replaced[inc]; ok || len(droppedLines[i]) == 0 {
				continue
			}
			if a.tree.Kids(inc.key)[m.need.key] {
				by = inc
				break
			}
		}
		if by == nil {
			adds = append(adds, m.need)
			continue
		}
		replaced[by] = m.need
	}
	for i, inc := range r.dropped {
		for j, il := range droppedLines[i] {
			all = append(all, il.dir)
			removed = append(removed, il.dir)
			if n, ok := replaced[inc]; ok && j == 0 {
				surviving = append(surviving, il.dir)
				h.Ops = append(h.Ops, history.Op{
					Kind:  history.Replace,
					Path:  node.Path,
					Start: il.dir.Start,
					End:   il.dir.End,
					Line:  il.dir.Line,
					// n is another file, so #include_next and #import of
					// the original don't apply to it.
					Text: "#include " + a.spelling(ctx, n, node.Path),
				})
				continue
			}
			h.Ops = append(h.Ops, deleteOp(node.Path, il.dir))
		}
	}

	fwds := a.fwds[fkey]
	if len(adds) == 0 && len(fwds) == 0 {
		h.Sort()
		return h, nil
	}
	anchor, anchorLine := insertionPoint(all, surviving, removed)
	if len(adds) > 0 {
		var sb strings.Builder
		for _, n := range adds {
			fmt.Fprintf(&sb, "#include %s\n", a.spelling(ctx, n, node.Path))
		}
		h.Ops = append(h.Ops, history.Op{
			Kind:  history.Add,
			Path:  node.Path,
			Start: anchor,
			End:   anchor,
			Line:  anchorLine,
			Text:  sb.String(),
		})
	}
	for i, rec := range fwds {
		h.Ops = append(h.Ops, history.Op{
			Kind:   history.Forward,
			Path:   node.Path,
			Start:  anchor,
			End:    anchor,
			Line:   anchorLine,
			Text:   rec.ForwardText() + "\n",
			Record: rec.Key(),
			Seq:    i + 1,
		})
	}
	h.Sort()
	if log.V(1) {
		for _, op := range h.Ops {
			clog.Infof(ctx, "%s", op)
		}
	}
	return h, nil
}

func deleteOp(fname string, d scandeps.Directive) history.Op {
	return history.Op{
		Kind:  history.Delete,
		Path:  fname,
		Start: d.Start,
		End:   d.Next,
		Line:  d.Line,
	}
}

func (a *Analysis) spelling(ctx context.Context, n *need, includer string) string {
	return a.opts.SearchPath.Spelling(ctx, n.node.Path, includer)
}

// insertionPoint returns byte offset and line to insert new includes and
// forward declarations.
//
// Only includes at the outermost conditional depth are considered.
// It is after the last surviving include preceding the first removed
// line, or after the first surviving include, or at the first original
// include, or at the top of the file.
func insertionPoint(all, surviving, removed []scandeps.Directive) (int, int) {
	if len(all) == 0 {
		return 0, 1
	}
	minDepth := all[0].Depth
	for _, d := range all {
		minDepth = min(minDepth, d.Depth)
	}
	byLine := func(dirs []scandeps.Directive) []scandeps.Directive {
		var r []scandeps.Directive
		for _, d := range dirs {
			if d.Depth == minDepth {
				r = append(r, d)
			}
		}
		sort.Slice(r, func(i, j int) bool { return r[i].Line < r[j].Line })
		return r
	}
	surviving = byLine(surviving)
	firstRemoved := -1
	for _, d := range removed {
		if firstRemoved < 0 || d.Line < firstRemoved {
			firstRemoved = d.Line
		}
	}
	var after *scandeps.Directive
	for i := range surviving {
		if firstRemoved >= 0 && surviving[i].Line >= firstRemoved {
			break
		}
		after = &surviving[i]
	}
	if after == nil && len(surviving) > 0 {
		after = &surviving[0]
	}
	if after != nil {
		return after.Next, after.Line + 1
	}
	first := byLine(all)[0]
	return first.Start, first.Line
}
