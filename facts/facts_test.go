// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/zstd"

	"go.chromium.org/infra/build/cxxclean/analysis"
	"go.chromium.org/infra/build/cxxclean/filetree"
	"go.chromium.org/infra/build/cxxclean/history"
	"go.chromium.org/infra/build/cxxclean/scandeps"
)

func newAnalysis(t *testing.T, tu string, files map[string]string) *analysis.Analysis {
	t.Helper()
	caseInsensitive := false
	return analysis.New(analysis.Options{
		TU: tu,
		Classifier: filetree.ClassifierFunc(func(p string) bool {
			return strings.HasPrefix(p, "/src/")
		}),
		CaseInsensitive: &caseInsensitive,
		SearchPath:      scandeps.NewSearchPath(context.Background(), "/src", []scandeps.Dir{{Path: "/src"}}),
		ReadFile: func(fname string) ([]byte, error) {
			buf, ok := files[fname]
			if !ok {
				return nil, fmt.Errorf("read %s: %w", fname, fs.ErrNotExist)
			}
			return []byte(buf), nil
		},
	})
}

func parse(t *testing.T, data string) *File {
	t.Helper()
	f := &File{}
	err := json.Unmarshal([]byte(data), f)
	if err != nil {
		t.Fatalf("json.Unmarshal=%v", err)
	}
	return f
}

func TestReplay_ForwardDeclaration(t *testing.T) {
	ctx := context.Background()
	a := newAnalysis(t, "/src/main.cc", map[string]string{
		"/src/main.cc": "#include \"a.h\"\n\nint main() { return f(); }\n",
		"/src/a.h":     "#include \"b.h\"\n#include \"c.h\"\n\nB b;\nn::C* c;\n",
		"/src/b.h":     "#include \"c.h\"\n\nstruct B { n::C c; };\n",
		"/src/c.h":     "namespace n { class C {}; }\n",
	})
	f := parse(t, `{
  "tu": "/src/main.cc",
  "files": [
    {"id": 1, "name": "../../main.cc", "path": "/src/main.cc"},
    {"id": 2, "name": "a.h", "path": "/src/a.h", "parent": 1, "line": 1},
    {"id": 3, "name": "b.h", "path": "/src/b.h", "parent": 2, "line": 1},
    {"id": 4, "name": "c.h", "path": "/src/c.h", "parent": 3, "line": 1},
    {"id": 5, "name": "c.h", "path": "/src/c.h", "parent": 2, "line": 2}
  ],
  "decls": [
    {"loc": {"file": 1, "line": 3}, "decl": {"kind": "function", "name": "f", "loc": {"file": 2, "line": 4}}}
  ],
  "records": [
    {"loc": {"file": 2, "line": 4}, "record": {"name": "B", "tag": "struct", "def": {"file": 3, "line": 3}}},
    {"loc": {"file": 2, "line": 5}, "record": {"name": "C", "namespaces": ["namespace n"], "def": {"file": 4, "line": 1}}, "soft": true},
    {"loc": {"file": 3, "line": 3}, "record": {"name": "C", "namespaces": ["namespace n"], "def": {"file": 4, "line": 1}}}
  ]
}`)
	err := Replay(ctx, a, f, Options{})
	if err != nil {
		t.Fatalf("Replay(ctx, a, f, opts)=%v; want nil err", err)
	}
	err = a.Analyze(ctx)
	if err != nil {
		t.Fatalf("Analyze(ctx)=%v; want nil err", err)
	}
	hs, err := a.Clean(ctx)
	if err != nil {
		t.Fatalf("Clean(ctx)=%v; want nil err", err)
	}
	var got *history.FileHistory
	for _, h := range hs {
		if h.Path == "/src/a.h" {
			got = h
			continue
		}
		if !h.IsEmpty() {
			t.Errorf("history(%s)=%v; want no ops", h.Path, h.Ops)
		}
	}
	if got == nil {
		t.Fatalf("no history for /src/a.h")
	}
	want := []history.Op{
		{Kind: history.Delete, Path: "/src/a.h", Start: 15, End: 30, Line: 2},
		{Kind: history.Forward, Path: "/src/a.h", Start: 15, End: 15, Line: 2, Text: "namespace n { class C; }\n", Record: "n::C", Seq: 1},
	}
	if diff := cmp.Diff(want, got.Ops); diff != "" {
		t.Errorf("ops(a.h) diff -want +got:\n%s", diff)
	}
}

func TestReplay_ForcedInclude(t *testing.T) {
	ctx := context.Background()
	a := newAnalysis(t, "/src/main.cc", nil)
	f := parse(t, `{
  "tu": "/src/main.cc",
  "files": [
    {"id": 1, "name": "main.cc", "path": "/src/main.cc"},
    {"id": 2, "name": "../../build/prefix.h", "path": "/src/build/prefix.h", "parent": 1},
    {"id": 3, "name": "config.h", "path": "/src/build/config.h", "parent": 2, "line": 1},
    {"id": 4, "name": "pch.h", "path": "/src/build/pch.h", "parent": 1},
    {"id": 5, "name": "a.h", "path": "/src/a.h", "parent": 1, "line": 1},
    {"id": 6, "name": "gen/skip.h", "path": "/src/gen/skip.h", "parent": 5, "line": 1},
    {"id": 7, "name": "b.h", "path": "/src/b.h", "parent": 6, "line": 1}
  ]
}`)
	err := Replay(ctx, a, f, Options{
		Forced: []string{"/src/out/build/prefix.h"},
		PCH:    []string{"/src/out/obj/pch.h.pch"},
		Skip: func(p string) bool {
			return strings.HasPrefix(p, "/src/gen/")
		},
	})
	if err != nil {
		t.Fatalf("Replay(ctx, a, f, opts)=%v; want nil err", err)
	}
	type flags struct {
		User, DefaultIncluded, Precompiled, Skip bool
	}
	got := make(map[string]flags)
	for _, n := range a.Tree().Nodes() {
		got[n.Path] = flags{User: n.User, DefaultIncluded: n.DefaultIncluded, Precompiled: n.Precompiled, Skip: n.Skip}
	}
	want := map[string]flags{
		"/src/main.cc":        {User: true},
		"/src/build/prefix.h": {DefaultIncluded: true},
		"/src/build/config.h": {DefaultIncluded: true},
		"/src/build/pch.h":    {Precompiled: true},
		"/src/a.h":            {User: true},
		"/src/gen/skip.h":     {Skip: true},
		"/src/b.h":            {Skip: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flags diff -want +got:\n%s", diff)
	}
}

func TestReplay_Fatal(t *testing.T) {
	ctx := context.Background()
	a := newAnalysis(t, "/src/main.cc", nil)
	f := parse(t, `{
  "tu": "/src/main.cc",
  "files": [{"id": 1, "name": "main.cc", "path": "/src/main.cc"}],
  "errors": [
    {"message": "main.cc:1: warning: unused"},
    {"message": "main.cc:3: error: unknown type name 'Foo'", "fatal": true}
  ]
}`)
	err := Replay(ctx, a, f, Options{})
	if err != nil {
		t.Fatalf("Replay(ctx, a, f, opts)=%v; want nil err", err)
	}
	want := history.CompileErrors{
		Messages: []string{"main.cc:1: warning: unused", "main.cc:3: error: unknown type name 'Foo'"},
		Fatal:    true,
	}
	if diff := cmp.Diff(want, a.CompileErrors()); diff != "" {
		t.Errorf("CompileErrors diff -want +got:\n%s", diff)
	}
	if n := a.Tree().Len(); n != 0 {
		t.Errorf("tree len=%d; want 0", n)
	}
	err = a.Analyze(ctx)
	if !errors.Is(err, analysis.ErrFatalParse) {
		t.Errorf("Analyze(ctx)=%v; want %v", err, analysis.ErrFatalParse)
	}
}

func TestReplay_Error(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		data string
	}{
		{
			name: "unknown-parent",
			data: `{"tu": "/src/main.cc", "files": [
  {"id": 1, "path": "/src/main.cc"},
  {"id": 2, "path": "/src/a.h", "parent": 3, "line": 1}]}`,
		},
		{
			name: "duplicate-id",
			data: `{"tu": "/src/main.cc", "files": [
  {"id": 1, "path": "/src/main.cc"},
  {"id": 1, "path": "/src/a.h", "parent": 1, "line": 1}]}`,
		},
		{
			name: "unknown-use-file",
			data: `{"tu": "/src/main.cc", "files": [{"id": 1, "path": "/src/main.cc"}],
  "uses": [{"from": {"file": 1, "line": 1}, "to": {"file": 2, "line": 1}, "name": "f"}]}`,
		},
		{
			name: "unknown-decl-kind",
			data: `{"tu": "/src/main.cc", "files": [{"id": 1, "path": "/src/main.cc"}],
  "decls": [{"loc": {"file": 1, "line": 1}, "decl": {"kind": "concept", "name": "C"}}]}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := newAnalysis(t, "/src/main.cc", nil)
			err := Replay(ctx, a, parse(t, tc.data), Options{})
			if err == nil {
				t.Errorf("Replay(ctx, a, f, opts)=nil; want err")
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for name, data := range map[string]string{
		"a.json":   `{"tu": "/src/a.cc", "files": [{"id": 1, "path": "/src/a.cc"}]}`,
		"b.json":   `{"tu": "/src/./b.cc", "files": [{"id": 1, "path": "/src/b.cc"}]}`,
		"note.txt": `not a fact file`,
	} {
		err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}
	m, err := LoadDir(ctx, dir)
	if err != nil {
		t.Fatalf("LoadDir(ctx, %q)=_, %v; want nil err", dir, err)
	}
	var got []string
	for k := range m {
		got = append(got, k)
	}
	if diff := cmp.Diff([]string{"/src/a.cc", "/src/b.cc"}, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("LoadDir(ctx, %q) keys diff -want +got:\n%s", dir, diff)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	data := enc.EncodeAll([]byte(`{"tu": "/src/c.cc", "files": [{"id": 1, "path": "/src/c.cc"}]}`), nil)
	enc.Close()
	err = os.WriteFile(filepath.Join(dir, "c.json.zst"), data, 0644)
	if err != nil {
		t.Fatal(err)
	}
	m, err = LoadDir(ctx, dir)
	if err != nil {
		t.Fatalf("LoadDir(ctx, %q)=_, %v; want nil err", dir, err)
	}
	if f, ok := m["/src/c.cc"]; !ok || len(f.Files) != 1 {
		t.Errorf("LoadDir(ctx, %q)[%q]=%v, %t; want 1 file, true", dir, "/src/c.cc", f, ok)
	}

	err = os.WriteFile(filepath.Join(dir, "d.json"), []byte(`{"tu": "/src/a.cc"}`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDir(ctx, dir); err == nil {
		t.Errorf("LoadDir(ctx, %q) with duplicate tu=_, nil; want err", dir)
	}
}
