// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package facts

import (
	"context"
	"fmt"
	"path"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/analysis"
	"go.chromium.org/infra/build/cxxclean/filetree"
	"go.chromium.org/infra/build/cxxclean/o11y/clog"
)

// Options is options to replay facts.
type Options struct {
	// Forced are forced include paths of the compile command.
	Forced []string

	// PCH are precompiled headers of the compile command.
	PCH []string

	// Skip reports whether the file at path is never edited, nor
	// files included from it.
	Skip func(path string) bool
}

// Replay feeds facts in f to a.
//
// Files included from the main file without #include line are marked
// as default included or precompiled if they match opts.
// If f has a fatal compile error, only compile errors are replayed.
func Replay(ctx context.Context, a *analysis.Analysis, f *File, opts Options) error {
	fatal := false
	for _, e := range f.Errors {
		a.ReportCompileError(e.Message, e.Fatal)
		fatal = fatal || e.Fatal
	}
	if fatal {
		clog.Warningf(ctx, "%s: fatal compile error. skip facts", f.TU)
		return nil
	}
	r := &replayer{
		a:     a,
		opts:  opts,
		nodes: make(map[int]*filetree.FileNode),
	}
	for _, ff := range f.Files {
		err := r.declareFile(f.TU, ff)
		if err != nil {
			return fmt.Errorf("%s: %w", f.TU, err)
		}
	}
	for _, u := range f.Uses {
		from, err := r.loc(u.From)
		if err != nil {
			return fmt.Errorf("%s: use %q: %w", f.TU, u.Name, err)
		}
		to, err := r.loc(u.To)
		if err != nil {
			return fmt.Errorf("%s: use %q: %w", f.TU, u.Name, err)
		}
		err = a.Use(from, to, u.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", f.TU, err)
		}
	}
	for _, rf := range f.Records {
		loc, err := r.loc(rf.Loc)
		if err != nil {
			return fmt.Errorf("%s: record %s: %w", f.TU, rf.Record.Name, err)
		}
		err = a.UseRecord(loc, r.record(rf.Record), rf.Soft)
		if err != nil {
			return fmt.Errorf("%s: %w", f.TU, err)
		}
	}
	for _, df := range f.Decls {
		d, err := r.decl(df.Decl)
		if err != nil {
			return fmt.Errorf("%s: decl %s: %w", f.TU, df.Decl.Name, err)
		}
		loc, err := r.loc(df.Loc)
		if err != nil {
			return fmt.Errorf("%s: decl %s: %w", f.TU, df.Decl.Name, err)
		}
		err = a.UseDecl(loc, d)
		if err != nil {
			return fmt.Errorf("%s: %w", f.TU, err)
		}
	}
	for _, ff := range f.Forwards {
		loc, err := r.loc(ff.Loc)
		if err != nil {
			return fmt.Errorf("%s: forward %s: %w", f.TU, ff.Record.Name, err)
		}
		err = a.DeclareForward(loc, r.record(ff.Record))
		if err != nil {
			return fmt.Errorf("%s: %w", f.TU, err)
		}
	}
	if log.V(1) {
		clog.Infof(ctx, "%s: replayed %d files", f.TU, len(r.nodes))
	}
	return nil
}

type replayer struct {
	a     *analysis.Analysis
	opts  Options
	root  *filetree.FileNode
	nodes map[int]*filetree.FileNode
}

func (r *replayer) declareFile(tu string, ff FileFact) error {
	if _, ok := r.nodes[ff.ID]; ok || ff.ID <= 0 {
		return fmt.Errorf("file %s: invalid id %d", ff.Path, ff.ID)
	}
	p := ff.Path
	if !path.IsAbs(p) {
		p = path.Join(path.Dir(tu), p)
	}
	p = path.Clean(p)
	n := &filetree.FileNode{
		Name:            ff.Name,
		Path:            p,
		IncludeLine:     ff.Line,
		System:          ff.System,
		DefaultIncluded: ff.Forced,
		Precompiled:     ff.PCH,
		Skip:            r.opts.Skip != nil && r.opts.Skip(p),
	}
	var err error
	if ff.Parent == 0 {
		n, err = r.a.BeginFile(n)
		if err != nil {
			return err
		}
		r.root = n
		r.nodes[ff.ID] = n
		return nil
	}
	parent, ok := r.nodes[ff.Parent]
	if !ok {
		return fmt.Errorf("file %s: unknown parent %d", ff.Path, ff.Parent)
	}
	if parent == r.root && ff.Line == 0 {
		n.DefaultIncluded = n.DefaultIncluded || matchPath(n.Path, r.opts.Forced)
		n.Precompiled = n.Precompiled || matchPath(n.Path, r.opts.PCH)
	}
	n, err = r.a.DeclareFile(n, parent)
	if err != nil {
		return err
	}
	r.nodes[ff.ID] = n
	return nil
}

// matchPath reports whether p is one of paths. A precompiled header
// file (*.pch, *.gch) matches its header.
// A path matches by base name as paths may be relative to the
// include search dirs.
func matchPath(p string, paths []string) bool {
	for _, q := range paths {
		q = strings.TrimSuffix(strings.TrimSuffix(q, ".pch"), ".gch")
		if p == path.Clean(q) || path.Base(p) == path.Base(q) {
			return true
		}
	}
	return false
}

func (r *replayer) loc(l Loc) (analysis.Loc, error) {
	n, ok := r.nodes[l.File]
	if !ok {
		return analysis.Loc{}, fmt.Errorf("unknown file %d", l.File)
	}
	return analysis.Loc{File: n.ID, Line: l.Line}, nil
}

// optionalLoc is loc that may be untraceable.
func (r *replayer) optionalLoc(l Loc) analysis.Loc {
	n, ok := r.nodes[l.File]
	if !ok {
		return analysis.Loc{File: filetree.Invalid, Line: l.Line}
	}
	return analysis.Loc{File: n.ID, Line: l.Line}
}

func (r *replayer) record(rec Record) analysis.Record {
	return analysis.Record{
		Name:       rec.Name,
		Tag:        rec.Tag,
		Namespaces: rec.Namespaces,
		Def:        r.optionalLoc(rec.Def),
		Template:   rec.Template,
		Anonymous:  rec.Anonymous,
	}
}

func (r *replayer) decl(d Decl) (analysis.Decl, error) {
	kind, err := analysis.ParseDeclKind(d.Kind)
	if err != nil {
		return analysis.Decl{}, err
	}
	ad := analysis.Decl{
		Kind: kind,
		Name: d.Name,
		Loc:  r.optionalLoc(d.Loc),
		Soft: d.Soft,
	}
	if d.Record != nil {
		rec := r.record(*d.Record)
		ad.Record = &rec
	}
	for _, u := range d.Using {
		ad.Using = append(ad.Using, analysis.UsingRef{
			Name: u.Name,
			Loc:  r.optionalLoc(u.Loc),
		})
	}
	return ad, nil
}
