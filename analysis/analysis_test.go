// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/cxxclean/filetree"
	"go.chromium.org/infra/build/cxxclean/history"
	"go.chromium.org/infra/build/cxxclean/rewrite"
	"go.chromium.org/infra/build/cxxclean/scandeps"
)

// fixture builds a translation unit over in-memory files.
type fixture struct {
	t     *testing.T
	files map[string]string
	a     *Analysis
}

func newFixture(t *testing.T, tu string, files map[string]string) *fixture {
	t.Helper()
	ctx := context.Background()
	caseInsensitive := false
	f := &fixture{t: t, files: files}
	f.a = New(Options{
		TU: tu,
		Classifier: filetree.ClassifierFunc(func(p string) bool {
			return strings.HasPrefix(p, "/src/")
		}),
		CaseInsensitive: &caseInsensitive,
		SearchPath: scandeps.NewSearchPath(ctx, "/src", []scandeps.Dir{
			{Path: "/src"},
			{Path: "/usr/include/c++/v1", System: true},
		}),
		ReadFile: func(fname string) ([]byte, error) {
			buf, ok := f.files[fname]
			if !ok {
				return nil, fmt.Errorf("read %s: %w", fname, fs.ErrNotExist)
			}
			return []byte(buf), nil
		},
	})
	return f
}

func (f *fixture) main(path string) *filetree.FileNode {
	f.t.Helper()
	n, err := f.a.BeginFile(&filetree.FileNode{Name: path, Path: path})
	if err != nil {
		f.t.Fatalf("BeginFile(%q)=%v", path, err)
	}
	return n
}

func (f *fixture) include(parent *filetree.FileNode, line int, path string) *filetree.FileNode {
	f.t.Helper()
	n, err := f.a.DeclareFile(&filetree.FileNode{
		Name:        path,
		Path:        path,
		IncludeLine: line,
		System:      strings.HasPrefix(path, "/usr/"),
	}, parent)
	if err != nil {
		f.t.Fatalf("DeclareFile(%q, %s)=%v", path, parent, err)
	}
	return n
}

func (f *fixture) use(from *filetree.FileNode, line int, to *filetree.FileNode, name string) {
	f.t.Helper()
	err := f.a.Use(Loc{File: from.ID, Line: line}, Loc{File: to.ID, Line: 1}, name)
	if err != nil {
		f.t.Fatalf("Use(%s, %s, %q)=%v", from, to, name, err)
	}
}

func (f *fixture) useRecord(from *filetree.FileNode, line int, rec Record, soft bool) {
	f.t.Helper()
	err := f.a.UseRecord(Loc{File: from.ID, Line: line}, rec, soft)
	if err != nil {
		f.t.Fatalf("UseRecord(%s, %s, %t)=%v", from, rec.Key(), soft, err)
	}
}

func (f *fixture) clean() map[string]*history.FileHistory {
	f.t.Helper()
	ctx := context.Background()
	err := f.a.Analyze(ctx)
	if err != nil {
		f.t.Fatalf("Analyze(ctx)=%v", err)
	}
	hs, err := f.a.Clean(ctx)
	if err != nil {
		f.t.Fatalf("Clean(ctx)=%v", err)
	}
	m := make(map[string]*history.FileHistory)
	for _, h := range hs {
		m[h.Path] = h
	}
	checkProperties(f.t, f.a)
	return m
}

// checkProperties checks sufficiency, non-redundancy and soft-use safety.
func checkProperties(t *testing.T, a *Analysis) {
	t.Helper()
	s := a.solver
	for fkey, needs := range s.needs {
		r := s.results[fkey]
		for nk := range needs {
			if !r.kids[nk] {
				t.Errorf("%s: need %s is not reachable from %v", fkey, nk, a.MinimalIncludes(fkey))
			}
		}
	}
	for fkey, r := range s.results {
		if r.outer {
			continue
		}
		for _, g := range r.members {
			for _, h := range r.members {
				if g.key != h.key && s.results[h.key] != nil && s.results[h.key].kids[g.key] {
					t.Errorf("%s: %s is redundant with %s", fkey, g.key, h.key)
				}
			}
		}
	}
	rootKids := s.results[a.tree.Root().Key].kids
	for fkey, recs := range a.fwds {
		for _, rec := range recs {
			ru := a.records[fkey][rec.Key()]
			if ru.hard {
				t.Errorf("%s: %s is forward declared, but used hard", fkey, rec.Key())
			}
			def := ru.defs[ru.defKeys()[0]]
			if def.Key != a.tree.Root().Key && !rootKids[def.Key] {
				t.Errorf("%s: %s is forward declared, but definition %s is unreachable", fkey, rec.Key(), def.Key)
			}
		}
	}
}

func apply(t *testing.T, files map[string]string, h *history.FileHistory) string {
	t.Helper()
	buf, err := rewrite.Apply([]byte(files[h.Path]), h.Ops)
	if err != nil {
		t.Fatalf("Apply(%s)=%v", h.Path, err)
	}
	return string(buf)
}

// applyAll returns files with histories applied.
func applyAll(t *testing.T, files map[string]string, hs map[string]*history.FileHistory) map[string]string {
	t.Helper()
	cleaned := make(map[string]string)
	for p, buf := range files {
		cleaned[p] = buf
	}
	for p, h := range hs {
		if h.IsEmpty() {
			continue
		}
		cleaned[p] = apply(t, files, h)
	}
	return cleaned
}

// checkNoOps checks f has nothing left to clean.
func checkNoOps(t *testing.T, f *fixture) {
	t.Helper()
	for p, h := range f.clean() {
		if !h.IsEmpty() {
			t.Errorf("history(%s)=%v; want no ops", p, h.Ops)
		}
	}
}

var recC = Record{Name: "C", Namespaces: []string{"namespace n"}}

// a.h includes b.h and c.h; b.h includes c.h.
// a.h uses B by value and C by pointer.
func scenarioForward(t *testing.T) (*fixture, map[string]*history.FileHistory) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n\nint main() { return f(); }\n",
		"/src/a.h":     "#include \"b.h\"\n#include \"c.h\"\n\nB b;\nn::C* c;\n",
		"/src/b.h":     "#include \"c.h\"\n\nstruct B { n::C c; };\n",
		"/src/c.h":     "namespace n { class C {}; }\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	b := f.include(a, 1, "/src/b.h")
	c := f.include(b, 1, "/src/c.h")
	f.include(a, 2, "/src/c.h")

	f.use(main, 3, a, "f")
	f.useRecord(a, 4, Record{Name: "B", Def: Loc{File: b.ID, Line: 3}}, false)
	rec := recC
	rec.Def = Loc{File: c.ID, Line: 1}
	f.useRecord(a, 5, rec, true)
	f.useRecord(b, 3, rec, false)
	return f, f.clean()
}

func TestClean_ForwardDeclaration(t *testing.T) {
	f, got := scenarioForward(t)

	if diff := cmp.Diff([]string{"/src/b.h"}, f.a.MinimalIncludes("/src/a.h")); diff != "" {
		t.Errorf("MinimalIncludes(a.h) diff -want +got:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"namespace n { class C; }"}, f.a.ForwardDecls("/src/a.h")); diff != "" {
		t.Errorf("ForwardDecls(a.h) diff -want +got:\n%s", diff)
	}
	want := &history.FileHistory{
		Path: "/src/a.h",
		TU:   "/src/main.cc",
		Ops: []history.Op{
			{Kind: history.Delete, Path: "/src/a.h", Start: 15, End: 30, Line: 2},
			{Kind: history.Forward, Path: "/src/a.h", Start: 15, End: 15, Line: 2, Text: "namespace n { class C; }\n", Record: "n::C", Seq: 1},
		},
		Kept: []history.Range{{Start: 0, End: 14, Line: 1}},
		Hard: []string{"B"},
	}
	if diff := cmp.Diff(want, got["/src/a.h"]); diff != "" {
		t.Errorf("history(a.h) diff -want +got:\n%s", diff)
	}
	for _, p := range []string{"/src/main.cc", "/src/b.h", "/src/c.h"} {
		if h := got[p]; h == nil || !h.IsEmpty() {
			t.Errorf("history(%s)=%v; want no ops", p, h)
		}
	}
	if diff := cmp.Diff("#include \"b.h\"\nnamespace n { class C; }\n\nB b;\nn::C* c;\n", apply(t, f.files, got["/src/a.h"])); diff != "" {
		t.Errorf("apply(a.h) diff -want +got:\n%s", diff)
	}
}

func TestClean_Idempotent(t *testing.T) {
	f, got := scenarioForward(t)
	cleaned := make(map[string]string)
	for p, buf := range f.files {
		cleaned[p] = buf
	}
	cleaned["/src/a.h"] = apply(t, f.files, got["/src/a.h"])

	// analyze cleaned output again.
	f = newFixture(t, "/src/main.cc", cleaned)
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	b := f.include(a, 1, "/src/b.h")
	c := f.include(b, 1, "/src/c.h")
	f.use(main, 3, a, "f")
	f.useRecord(a, 4, Record{Name: "B", Def: Loc{File: b.ID, Line: 3}}, false)
	rec := recC
	rec.Def = Loc{File: c.ID, Line: 1}
	err := f.a.DeclareForward(Loc{File: a.ID, Line: 2}, rec)
	if err != nil {
		t.Fatalf("DeclareForward=%v", err)
	}
	f.useRecord(a, 5, rec, true)
	f.useRecord(b, 3, rec, false)
	for p, h := range f.clean() {
		if !h.IsEmpty() {
			t.Errorf("history(%s)=%v; want no ops", p, h.Ops)
		}
	}
}

func TestClean_UnusedInclude(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc":  "#include \"unused.h\"\n#include \"used.h\"\n\nint main() { return used(); }\n",
		"/src/unused.h": "int unused();\n",
		"/src/used.h":   "int used();\n",
	})
	main := f.main("/src/main.cc")
	f.include(main, 1, "/src/unused.h")
	used := f.include(main, 2, "/src/used.h")
	f.use(main, 4, used, "used")

	got := f.clean()
	want := []history.Op{
		{Kind: history.Delete, Path: "/src/main.cc", Start: 0, End: 20, Line: 1},
	}
	if diff := cmp.Diff(want, got["/src/main.cc"].Ops); diff != "" {
		t.Errorf("ops(main.cc) diff -want +got:\n%s", diff)
	}
}

func TestClean_ReplaceInclude(t *testing.T) {
	// main.cc uses std::string only, which it got through base/a.h.
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc":  "#include \"base/a.h\"\n#include <vector>\n\nstd::string s;\nstd::vector<int> v;\n",
		"/src/base/a.h": "#include <string>\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/base/a.h")
	str := f.include(a, 1, "/usr/include/c++/v1/string")
	strImpl := f.include(str, 10, "/usr/include/c++/v1/__string/basic_string.h")
	vec := f.include(main, 2, "/usr/include/c++/v1/vector")
	vecImpl := f.include(vec, 20, "/usr/include/c++/v1/__vector/vector.h")
	f.use(main, 4, strImpl, "std::string")
	f.use(main, 5, vecImpl, "std::vector")

	got := f.clean()
	if diff := cmp.Diff([]string{"/usr/include/c++/v1/vector", "/usr/include/c++/v1/string"}, f.a.MinimalIncludes("/src/main.cc")); diff != "" {
		t.Errorf("MinimalIncludes(main.cc) diff -want +got:\n%s", diff)
	}
	want := []history.Op{
		{Kind: history.Replace, Path: "/src/main.cc", Start: 0, End: 19, Line: 1, Text: "#include <string>"},
	}
	if diff := cmp.Diff(want, got["/src/main.cc"].Ops); diff != "" {
		t.Errorf("ops(main.cc) diff -want +got:\n%s", diff)
	}
	// base/a.h uses nothing from <string>.
	wantA := []history.Op{
		{Kind: history.Delete, Path: "/src/base/a.h", Start: 0, End: 18, Line: 1},
	}
	if diff := cmp.Diff(wantA, got["/src/base/a.h"].Ops); diff != "" {
		t.Errorf("ops(base/a.h) diff -want +got:\n%s", diff)
	}

	// analyze cleaned output again.
	cleaned := applyAll(t, f.files, got)
	if diff := cmp.Diff("#include <string>\n#include <vector>\n\nstd::string s;\nstd::vector<int> v;\n", cleaned["/src/main.cc"]); diff != "" {
		t.Errorf("cleaned main.cc diff -want +got:\n%s", diff)
	}
	f = newFixture(t, "/src/main.cc", cleaned)
	main = f.main("/src/main.cc")
	str = f.include(main, 1, "/usr/include/c++/v1/string")
	strImpl = f.include(str, 10, "/usr/include/c++/v1/__string/basic_string.h")
	vec = f.include(main, 2, "/usr/include/c++/v1/vector")
	vecImpl = f.include(vec, 20, "/usr/include/c++/v1/__vector/vector.h")
	f.use(main, 4, strImpl, "std::string")
	f.use(main, 5, vecImpl, "std::vector")
	checkNoOps(t, f)
}

func TestClean_ReplaceIncludeNext(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc":  "#include_next \"base/a.h\"\n\nstd::string s;\n",
		"/src/base/a.h": "#include <string>\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/base/a.h")
	str := f.include(a, 1, "/usr/include/c++/v1/string")
	strImpl := f.include(str, 10, "/usr/include/c++/v1/__string/basic_string.h")
	f.use(main, 3, strImpl, "std::string")

	got := f.clean()
	want := []history.Op{
		{Kind: history.Replace, Path: "/src/main.cc", Start: 0, End: 24, Line: 1, Text: "#include <string>"},
	}
	if diff := cmp.Diff(want, got["/src/main.cc"].Ops); diff != "" {
		t.Errorf("ops(main.cc) diff -want +got:\n%s", diff)
	}
}

func TestClean_AddInclude(t *testing.T) {
	// main.cc uses W from w.h, which it got through z.h,
	// but z.h doesn't use w.h.
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n#include \"z.h\"\n\nZ z;\nW w;\n",
		"/src/a.h":     "int a();\n",
		"/src/z.h":     "#include \"w.h\"\nstruct Z {};\n",
		"/src/w.h":     "struct W {};\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	z := f.include(main, 2, "/src/z.h")
	w := f.include(z, 1, "/src/w.h")
	f.use(main, 1, a, "a")
	f.use(main, 4, z, "Z")
	f.use(main, 5, w, "W")

	got := f.clean()
	want := []history.Op{
		{Kind: history.Add, Path: "/src/main.cc", Start: 30, End: 30, Line: 3, Text: "#include \"w.h\"\n"},
	}
	if diff := cmp.Diff(want, got["/src/main.cc"].Ops); diff != "" {
		t.Errorf("ops(main.cc) diff -want +got:\n%s", diff)
	}
	want = []history.Op{
		{Kind: history.Delete, Path: "/src/z.h", Start: 0, End: 15, Line: 1},
	}
	if diff := cmp.Diff(want, got["/src/z.h"].Ops); diff != "" {
		t.Errorf("ops(z.h) diff -want +got:\n%s", diff)
	}
	if diff := cmp.Diff("#include \"a.h\"\n#include \"z.h\"\n#include \"w.h\"\n\nZ z;\nW w;\n", apply(t, f.files, got["/src/main.cc"])); diff != "" {
		t.Errorf("apply(main.cc) diff -want +got:\n%s", diff)
	}

	// analyze cleaned output again.
	f = newFixture(t, "/src/main.cc", applyAll(t, f.files, got))
	main = f.main("/src/main.cc")
	a = f.include(main, 1, "/src/a.h")
	z = f.include(main, 2, "/src/z.h")
	w = f.include(main, 3, "/src/w.h")
	f.use(main, 1, a, "a")
	f.use(main, 5, z, "Z")
	f.use(main, 6, w, "W")
	checkNoOps(t, f)
}

func TestClean_TransitiveReduction(t *testing.T) {
	// main.cc includes x.h and y.h, y.h includes x.h and uses it.
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"x.h\"\n#include \"y.h\"\n",
		"/src/x.h":     "struct X {};\n",
		"/src/y.h":     "#include \"x.h\"\nstruct Y { X x; };\n",
	})
	main := f.main("/src/main.cc")
	x := f.include(main, 1, "/src/x.h")
	y := f.include(main, 2, "/src/y.h")
	x2 := f.include(y, 1, "/src/x.h")
	f.use(main, 3, x, "X")
	f.use(main, 4, y, "Y")
	f.use(y, 2, x2, "X")

	got := f.clean()
	if diff := cmp.Diff([]string{"/src/y.h"}, f.a.MinimalIncludes("/src/main.cc")); diff != "" {
		t.Errorf("MinimalIncludes(main.cc) diff -want +got:\n%s", diff)
	}
	want := []history.Op{
		{Kind: history.Delete, Path: "/src/main.cc", Start: 0, End: 15, Line: 1},
	}
	if diff := cmp.Diff(want, got["/src/main.cc"].Ops); diff != "" {
		t.Errorf("ops(main.cc) diff -want +got:\n%s", diff)
	}
}

func TestAnalyze_UnreachableDefinitionKeepsInclude(t *testing.T) {
	// a.h uses C only by pointer, but nothing else includes c.h.
	// Forward declaration would leave C undefined in the translation
	// unit, so a.h keeps the include.
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n",
		"/src/a.h":     "#include \"c.h\"\nC* c;\n",
		"/src/c.h":     "class C {};\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	c := f.include(a, 1, "/src/c.h")
	f.use(main, 2, a, "c")
	f.useRecord(a, 2, Record{Name: "C", Def: Loc{File: c.ID, Line: 1}}, true)

	got := f.clean()
	if diff := cmp.Diff([]string{"/src/c.h"}, f.a.MinimalIncludes("/src/a.h")); diff != "" {
		t.Errorf("MinimalIncludes(a.h) diff -want +got:\n%s", diff)
	}
	if decls := f.a.ForwardDecls("/src/a.h"); len(decls) != 0 {
		t.Errorf("ForwardDecls(a.h)=%q; want none", decls)
	}
	if !got["/src/a.h"].IsEmpty() {
		t.Errorf("ops(a.h)=%v; want none", got["/src/a.h"].Ops)
	}
}

func TestAnalyze_ForwardDeclaredInKid(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n#include \"c.h\"\n",
		"/src/a.h":     "#include \"b.h\"\nC* c;\nB b;\n",
		"/src/b.h":     "class C;\nstruct B { C* c; };\n",
		"/src/c.h":     "class C {};\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	b := f.include(a, 1, "/src/b.h")
	c := f.include(main, 2, "/src/c.h")
	rec := Record{Name: "C", Def: Loc{File: c.ID, Line: 1}}
	f.use(main, 3, a, "c")
	f.useRecord(main, 3, rec, false)
	f.useRecord(a, 2, rec, true)
	f.useRecord(a, 3, Record{Name: "B", Def: Loc{File: b.ID, Line: 2}}, false)
	if err := f.a.DeclareForward(Loc{File: b.ID, Line: 1}, rec); err != nil {
		t.Fatal(err)
	}
	f.useRecord(b, 2, rec, true)

	got := f.clean()
	if decls := f.a.ForwardDecls("/src/a.h"); len(decls) != 0 {
		t.Errorf("ForwardDecls(a.h)=%q; want none", decls)
	}
	for _, p := range []string{"/src/main.cc", "/src/a.h", "/src/b.h"} {
		if !got[p].IsEmpty() {
			t.Errorf("ops(%s)=%v; want none", p, got[p].Ops)
		}
	}
}

func TestUseDecl_UnresolvableQualifier(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n",
		"/src/a.h":     "#include \"c.h\"\nusing n::C;\nC* c;\n",
		"/src/c.h":     "namespace n { class C {}; }\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	c := f.include(a, 1, "/src/c.h")
	f.use(main, 2, a, "c")
	rec := recC
	rec.Def = Loc{File: c.ID, Line: 1}
	err := f.a.UseDecl(Loc{File: a.ID, Line: 3}, Decl{
		Kind:   DeclRecord,
		Name:   "C",
		Record: &rec,
		Soft:   true,
		Using:  []UsingRef{{Name: "n::C"}},
	})
	if err != nil {
		t.Fatalf("UseDecl=%v", err)
	}
	got := f.clean()
	if decls := f.a.ForwardDecls("/src/a.h"); len(decls) != 0 {
		t.Errorf("ForwardDecls(a.h)=%q; want none", decls)
	}
	if !got["/src/a.h"].IsEmpty() {
		t.Errorf("ops(a.h)=%v; want none", got["/src/a.h"].Ops)
	}
	if diff := cmp.Diff([]string{"n::C"}, got["/src/a.h"].Hard); diff != "" {
		t.Errorf("hard(a.h) diff -want +got:\n%s", diff)
	}
	if !hasDiag(f.a, ErrUnresolvableQualifier) {
		t.Errorf("Diagnostics()=%v; want %v", f.a.Diagnostics(), ErrUnresolvableQualifier)
	}
}

func TestUseDecl_Kinds(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"ns.h\"\n#include \"fn.h\"\n#include \"m.h\"\n#include \"u.h\"\n",
		"/src/ns.h":    "namespace n {}\n",
		"/src/fn.h":    "namespace n { int f(); }\n",
		"/src/m.h":     "#define M 1\n",
		"/src/u.h":     "namespace n { using ::g; }\n",
		"/src/g.h":     "int g();\n",
	})
	main := f.main("/src/main.cc")
	ns := f.include(main, 1, "/src/ns.h")
	fn := f.include(main, 2, "/src/fn.h")
	m := f.include(main, 3, "/src/m.h")
	u := f.include(main, 4, "/src/u.h")
	g := f.include(u, 1, "/src/g.h")
	for _, d := range []Decl{
		{Kind: DeclNamespace, Name: "n", Loc: Loc{File: ns.ID, Line: 1}},
		{Kind: DeclFunction, Name: "n::f", Loc: Loc{File: fn.ID, Line: 1}},
		{Kind: DeclMacro, Name: "M", Loc: Loc{File: m.ID, Line: 1}},
		{Kind: DeclFunction, Name: "n::g", Loc: Loc{File: g.ID, Line: 1}, Using: []UsingRef{{Name: "::g", Loc: Loc{File: u.ID, Line: 1}}}},
	} {
		err := f.a.UseDecl(Loc{File: main.ID, Line: 5}, d)
		if err != nil {
			t.Fatalf("UseDecl(%s %s)=%v", d.Kind, d.Name, err)
		}
	}
	f.use(u, 1, g, "g")
	if err := f.a.UseDecl(Loc{File: main.ID, Line: 5}, Decl{Kind: numDeclKinds}); err == nil {
		t.Errorf("UseDecl(unknown kind)=nil; want error")
	}

	got := f.clean()
	want := []history.Op{
		{Kind: history.Delete, Path: "/src/main.cc", Start: 0, End: 16, Line: 1},
	}
	if diff := cmp.Diff(want, got["/src/main.cc"].Ops); diff != "" {
		t.Errorf("ops(main.cc) diff -want +got:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/src/fn.h", "/src/m.h", "/src/u.h"}, f.a.MinimalIncludes("/src/main.cc")); diff != "" {
		t.Errorf("MinimalIncludes(main.cc) diff -want +got:\n%s", diff)
	}
}

func TestAnalyze_AmbiguousDefinitionKeepsIncludes(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n#include \"b.h\"\n",
		"/src/a.h":     "int a();\n",
		"/src/b.h":     "int b();\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	f.include(main, 2, "/src/b.h")
	f.use(main, 3, a, "a")
	f.useRecord(main, 3, Record{Name: "Unknown"}, true)

	got := f.clean()
	if !got["/src/main.cc"].IsEmpty() {
		t.Errorf("ops(main.cc)=%v; want none", got["/src/main.cc"].Ops)
	}
	if !hasDiag(f.a, ErrAmbiguousForwardTarget) {
		t.Errorf("Diagnostics()=%v; want %v", f.a.Diagnostics(), ErrAmbiguousForwardTarget)
	}
}

func TestAnalyze_DefaultIncluded(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc":        "#include \"a.h\"\n",
		"/src/build/config.h": "#define CONFIG 1\n",
		"/src/a.h":            "int a();\n",
	})
	main := f.main("/src/main.cc")
	cfg, err := f.a.DeclareFile(&filetree.FileNode{Name: "build/config.h", Path: "/src/build/config.h", DefaultIncluded: true}, main)
	if err != nil {
		t.Fatal(err)
	}
	a := f.include(main, 1, "/src/a.h")
	f.use(main, 2, cfg, "CONFIG")
	f.use(main, 2, a, "a")
	f.use(a, 1, cfg, "CONFIG")

	got := f.clean()
	if _, ok := got["/src/build/config.h"]; ok {
		t.Errorf("history of default included file: %v", got["/src/build/config.h"])
	}
	for _, p := range []string{"/src/main.cc", "/src/a.h"} {
		if !got[p].IsEmpty() {
			t.Errorf("ops(%s)=%v; want none", p, got[p].Ops)
		}
	}
}

func TestAnalyze_IncludeCycle(t *testing.T) {
	f := newFixture(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n",
		"/src/a.h":     "#include \"b.h\"\nstruct A {};\n",
		"/src/b.h":     "#include \"a.h\"\nstruct B { A* a; };\n",
	})
	main := f.main("/src/main.cc")
	a := f.include(main, 1, "/src/a.h")
	b := f.include(a, 1, "/src/b.h")
	a2 := f.include(b, 1, "/src/a.h")
	f.use(main, 2, a, "A")
	f.use(a, 2, b, "B")
	f.use(b, 2, a2, "A")

	got := f.clean()
	if diff := cmp.Diff([]string{"/src/b.h"}, f.a.MinimalIncludes("/src/a.h")); diff != "" {
		t.Errorf("MinimalIncludes(a.h) diff -want +got:\n%s", diff)
	}
	// b.h keeps its own #include of a.h for other includers.
	for _, p := range []string{"/src/a.h", "/src/b.h"} {
		if !got[p].IsEmpty() {
			t.Errorf("ops(%s)=%v; want none", p, got[p].Ops)
		}
	}
}

func TestAnalyze_FatalParse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "/src/bad.cc", map[string]string{
		"/src/bad.cc": "#include \"a.h\"\n",
	})
	main := f.main("/src/bad.cc")
	f.include(main, 1, "/src/a.h")
	f.a.ReportCompileError("bad.cc:2: error: expected ';'", true)

	err := f.a.Analyze(ctx)
	if !errors.Is(err, ErrFatalParse) {
		t.Errorf("Analyze(ctx)=%v; want %v", err, ErrFatalParse)
	}
	_, err = f.a.Clean(ctx)
	if !errors.Is(err, ErrFatalParse) {
		t.Errorf("Clean(ctx)=%v; want %v", err, ErrFatalParse)
	}
	m := history.NewMerged()
	if !f.a.MergeInto(m) {
		t.Errorf("MergeInto=false; want true")
	}
	if len(m.Paths()) != 0 {
		t.Errorf("merged paths=%q; want none", m.Paths())
	}
	cerrs, ok := m.CompileErrors("/src/bad.cc")
	if !ok || !cerrs.Fatal {
		t.Errorf("CompileErrors=%v, %t; want fatal", cerrs, ok)
	}
}

// h.h includes x.h. TU1 uses X by value in h.h, TU2 only by pointer.
func TestMergeInto_HardUseWins(t *testing.T) {
	files := map[string]string{
		"/src/main1.cc": "#include \"h.h\"\n",
		"/src/main2.cc": "#include \"h.h\"\n",
		"/src/h.h":      "#include \"x.h\"\nstruct H { X* x; };\n",
		"/src/x.h":      "struct X {};\n",
	}
	tu := func(name string, hard bool) *fixture {
		f := newFixture(t, name, files)
		main := f.main(name)
		h := f.include(main, 1, "/src/h.h")
		x := f.include(h, 1, "/src/x.h")
		f.use(main, 2, h, "H")
		rec := Record{Name: "X", Tag: "struct", Def: Loc{File: x.ID, Line: 1}}
		f.useRecord(h, 2, rec, !hard)
		// main uses X by value, so X is defined in the translation unit.
		f.useRecord(main, 2, rec, false)
		f.clean()
		return f
	}
	for _, order := range [][]bool{{true, false}, {false, true}} {
		m := history.NewMerged()
		for i, hard := range order {
			f := tu(fmt.Sprintf("/src/main%d.cc", i+1), hard)
			if !hard {
				if diff := cmp.Diff([]string{"struct X;"}, f.a.ForwardDecls("/src/h.h")); diff != "" {
					t.Errorf("ForwardDecls(h.h) diff -want +got:\n%s", diff)
				}
			}
			f.a.MergeInto(m)
		}
		h := m.File("/src/h.h")
		if len(h.Ops) != 0 {
			t.Errorf("order %v: ops(h.h)=%v; want none", order, h.Ops)
		}
		if diff := cmp.Diff([]string{"X"}, h.Hard); diff != "" {
			t.Errorf("order %v: hard(h.h) diff -want +got:\n%s", order, diff)
		}
	}
}

func TestRecord(t *testing.T) {
	for _, tc := range []struct {
		rec      Record
		wantKey  string
		wantText string
	}{
		{
			rec:      Record{Name: "C"},
			wantKey:  "C",
			wantText: "class C;",
		},
		{
			rec:      Record{Name: "S", Tag: "struct", Namespaces: []string{"namespace a", "inline namespace v1"}},
			wantKey:  "a::v1::S",
			wantText: "namespace a { inline namespace v1 { struct S; } }",
		},
		{
			rec:      Record{Name: "U", Tag: "union", Namespaces: []string{"b"}},
			wantKey:  "b::U",
			wantText: "namespace b { union U; }",
		},
	} {
		if got := tc.rec.Key(); got != tc.wantKey {
			t.Errorf("%v.Key()=%q; want %q", tc.rec, got, tc.wantKey)
		}
		if got := tc.rec.ForwardText(); got != tc.wantText {
			t.Errorf("%v.ForwardText()=%q; want %q", tc.rec, got, tc.wantText)
		}
	}
}

func TestInsertionPoint(t *testing.T) {
	ctx := context.Background()
	buf := []byte(`#ifndef A_H
#define A_H
#include "a.h"
#include "b.h"
#if defined(X)
#include "x.h"
#endif
#include "c.h"
#endif
`)
	dirs := scandeps.ScanDirectives(ctx, "t.h", buf)
	at := func(line int) scandeps.Directive {
		d, ok := scandeps.IncludeAt(dirs, line)
		if !ok {
			t.Fatalf("no include at %d", line)
		}
		return d
	}
	all := []scandeps.Directive{at(3), at(4), at(6), at(8)}
	for _, tc := range []struct {
		name      string
		surviving []scandeps.Directive
		removed   []scandeps.Directive
		wantLine  int
	}{
		{
			name:      "after-last-before-removed",
			surviving: []scandeps.Directive{at(3), at(6), at(8)},
			removed:   []scandeps.Directive{at(4)},
			wantLine:  4,
		},
		{
			name:      "skip-conditional",
			surviving: []scandeps.Directive{at(3), at(4), at(6)},
			removed:   []scandeps.Directive{at(8)},
			wantLine:  5,
		},
		{
			name:      "first-surviving",
			surviving: []scandeps.Directive{at(8)},
			removed:   []scandeps.Directive{at(3), at(4)},
			wantLine:  9,
		},
		{
			name:     "none-surviving",
			removed:  all,
			wantLine: 3,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			off, line := insertionPoint(all, tc.surviving, tc.removed)
			if line != tc.wantLine {
				t.Errorf("insertionPoint line=%d; want %d", line, tc.wantLine)
			}
			want := 0
			for i := 0; i < tc.wantLine-1; i++ {
				want += strings.IndexByte(string(buf[want:]), '\n') + 1
			}
			if off != want {
				t.Errorf("insertionPoint offset=%d; want %d", off, want)
			}
		})
	}
	if off, line := insertionPoint(nil, nil, nil); off != 0 || line != 1 {
		t.Errorf("insertionPoint(nil)=%d, %d; want 0, 1", off, line)
	}
}

func hasDiag(a *Analysis, target error) bool {
	for _, err := range a.Diagnostics() {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
