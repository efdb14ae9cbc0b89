// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package analysis analyzes a translation unit to compute the minimal
// set of #include directives for each user file, synthesizes forward
// declarations, and generates edit histories.
//
// An Analysis is owned by one translation unit pass:
//
//	a := analysis.New(opts)
//	a.BeginFile(main); a.DeclareFile(header, main); ...
//	a.Use(...); a.UseRecord(...); a.UseDecl(...)
//	err := a.Analyze(ctx)
//	histories, err := a.Clean(ctx)
//	a.MergeInto(merged)
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/filetree"
	"go.chromium.org/infra/build/cxxclean/history"
	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/scandeps"
)

var (
	// ErrFatalParse is an error when the translation unit could not
	// be analyzed.
	ErrFatalParse = errors.New("fatal parse error")

	// ErrAmbiguousForwardTarget is a diagnostic when the defining file
	// of a record can not be located. The real include is kept.
	ErrAmbiguousForwardTarget = errors.New("ambiguous forward declaration target")

	// ErrUnresolvableQualifier is a diagnostic when a using-declaration
	// or using-directive can not be traced. The use is treated as hard.
	ErrUnresolvableQualifier = errors.New("unresolvable qualifier")
)

// Options is an option of an analysis.
type Options struct {
	// TU is the name of the translation unit, e.g. main source path.
	TU string

	// Classifier decides user files.
	Classifier filetree.Classifier

	// CaseInsensitive makes file keys case-insensitive.
	// nil means default of the platform.
	CaseInsensitive *bool

	// SearchPath is used to spell new #include.
	SearchPath *scandeps.SearchPath

	// ReadFile reads original buffer of a file.
	// Default is os.ReadFile.
	ReadFile func(fname string) ([]byte, error)
}

// Analysis is the analysis state of one translation unit.
type Analysis struct {
	opts Options
	tree *filetree.Tree

	uses     map[filetree.FileID]map[filetree.FileID]*useEdge
	records  map[string]map[string]*recordUse // file key -> record key -> use
	forwards map[string]map[string]bool       // file key -> declared records

	cerrs history.CompileErrors
	diags []error

	analyzed  bool
	solver    *solver
	cands     map[string]map[string]Record // file key -> record key -> candidate
	fwds      map[string][]Record          // file key -> forward declarations to add
	histories []*history.FileHistory
}

// New begins analysis of a translation unit.
func New(opts Options) *Analysis {
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	return &Analysis{
		opts: opts,
		tree: filetree.New(filetree.Options{
			Classifier:      opts.Classifier,
			CaseInsensitive: opts.CaseInsensitive,
		}),
		uses:     make(map[filetree.FileID]map[filetree.FileID]*useEdge),
		records:  make(map[string]map[string]*recordUse),
		forwards: make(map[string]map[string]bool),
	}
}

// TU returns the name of the translation unit.
func (a *Analysis) TU() string { return a.opts.TU }

// Tree returns the inclusion tree.
func (a *Analysis) Tree() *filetree.Tree { return a.tree }

// BeginFile registers the main file.
func (a *Analysis) BeginFile(n *filetree.FileNode) (*filetree.FileNode, error) {
	return a.tree.BeginFile(n)
}

// DeclareFile registers n as included from parent.
func (a *Analysis) DeclareFile(n, parent *filetree.FileNode) (*filetree.FileNode, error) {
	return a.tree.DeclareFile(n, parent)
}

// CompileErrors returns compile error record of the translation unit.
func (a *Analysis) CompileErrors() history.CompileErrors {
	return a.cerrs
}

// Diagnostics returns diagnostics found during analysis.
// Each wraps ErrAmbiguousForwardTarget, ErrUnresolvableQualifier or
// other error.
func (a *Analysis) Diagnostics() []error {
	return append([]error(nil), a.diags...)
}

func (a *Analysis) diagf(format string, args ...any) {
	a.diags = append(a.diags, fmt.Errorf(format, args...))
}

func (a *Analysis) locString(loc Loc) string {
	n := a.tree.Node(loc.File)
	if n == nil {
		return loc.String()
	}
	return fmt.Sprintf("%s:%d", n.Path, loc.Line)
}

// Analyze computes minimal includes and forward declarations of every
// user file.
func (a *Analysis) Analyze(ctx context.Context) error {
	if a.cerrs.Fatal {
		return fmt.Errorf("analyze %s: %w", a.opts.TU, ErrFatalParse)
	}
	if a.tree.Root() == nil {
		return fmt.Errorf("analyze %s: no main file: %w", a.opts.TU, ErrFatalParse)
	}
	if a.analyzed {
		return nil
	}
	a.solver = newSolver(a.tree)
	a.buildNeeds(ctx)
	for i := 0; ; i++ {
		a.solver.run()
		if !a.generateForwards(ctx) {
			break
		}
		if log.V(1) {
			clog.Infof(ctx, "%s: re-solve %d for forward declarations", a.opts.TU, i+1)
		}
	}
	a.minimizeForwards(ctx)
	a.analyzed = true
	for _, err := range a.diags {
		clog.Warningf(ctx, "%s: %v", a.opts.TU, err)
	}
	return nil
}

// buildNeeds converts use edges to needs of each user file.
func (a *Analysis) buildNeeds(ctx context.Context) {
	froms := make([]filetree.FileID, 0, len(a.uses))
	for id := range a.uses {
		froms = append(froms, id)
	}
	sort.Slice(froms, func(i, j int) bool { return froms[i] < froms[j] })
	for _, id := range froms {
		edges := a.uses[id]
		tos := make([]filetree.FileID, 0, len(edges))
		for to := range edges {
			tos = append(tos, to)
		}
		sort.Slice(tos, func(i, j int) bool { return tos[i] < tos[j] })
		for _, to := range tos {
			e := edges[to]
			best := a.tree.BestAncestor(e.from, e.to)
			if best == nil {
				continue
			}
			a.solver.addNeed(e.from, best, e.symbols)
		}
	}
	// records whose definition can't be located.
	for _, fkey := range sortedKeys(a.records) {
		if !a.solver.isUser(fkey) {
			continue
		}
		for _, rkey := range sortedKeys(a.records[fkey]) {
			ru := a.records[fkey][rkey]
			switch len(ru.defs) {
			case 1:
				continue
			case 0:
				a.diagf("%s: record %s: no definition: %w", fkey, rkey, ErrAmbiguousForwardTarget)
				a.solver.frozen[fkey] = true
			default:
				a.diagf("%s: record %s: defined in %q: %w", fkey, rkey, ru.defKeys(), ErrAmbiguousForwardTarget)
				from := a.tree.First(fkey)
				for _, dk := range ru.defKeys() {
					best := a.tree.BestAncestor(from, ru.defs[dk])
					if best == nil {
						continue
					}
					a.solver.addNeed(from, best, []symbol{{name: rkey}})
				}
			}
		}
	}
}

// MinimalIncludes returns file keys of the minimal include set of the
// physical file path, in include order. It returns nil for files not
// analyzed as user files.
func (a *Analysis) MinimalIncludes(path string) []string {
	if a.solver == nil {
		return nil
	}
	r, ok := a.solver.results[a.tree.KeyOf(path)]
	if !ok || r.outer {
		return nil
	}
	var keys []string
	for _, m := range r.members {
		keys = append(keys, m.key)
	}
	return keys
}

// ForwardDecls returns forward declarations to add to path.
func (a *Analysis) ForwardDecls(path string) []string {
	var decls []string
	for _, rec := range a.fwds[a.tree.KeyOf(path)] {
		decls = append(decls, rec.ForwardText())
	}
	return decls
}

// MergeInto merges histories of the translation unit into m.
// Clean must be called before, unless the translation unit failed.
// It returns false if the translation unit was already merged.
func (a *Analysis) MergeInto(m *history.Merged) bool {
	return m.Merge(a.opts.TU, a.histories, a.cerrs)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
