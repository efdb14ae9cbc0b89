// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/filetree"
)

// Loc is a source location, translated by the fact producer to the
// inclusion instance that owns it.
type Loc struct {
	File filetree.FileID
	Line int
}

func (l Loc) String() string {
	return fmt.Sprintf("#%d:%d", l.File, l.Line)
}

// Record is a class, struct or union.
type Record struct {
	// Name is the unqualified name.
	Name string

	// Tag is "class", "struct" or "union". Empty means "class".
	Tag string

	// Namespaces are enclosing namespace heads, outermost first,
	// e.g. {"namespace a", "inline namespace v1"}.
	// A bare name is treated as "namespace name".
	Namespaces []string

	// Def is the location of the definition.
	// Def.File is filetree.Invalid if unknown.
	Def Loc

	Template  bool
	Anonymous bool
}

// Key returns the qualified name of the record, e.g. "a::v1::C".
func (r Record) Key() string {
	var sb strings.Builder
	for _, ns := range r.Namespaces {
		name := namespaceName(ns)
		if name == "" {
			name = "(anonymous)"
		}
		sb.WriteString(name)
		sb.WriteString("::")
	}
	sb.WriteString(r.Name)
	return sb.String()
}

func namespaceName(head string) string {
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return ""
	}
	name := fields[len(fields)-1]
	if name == "namespace" {
		return ""
	}
	return name
}

// inAnonymousNamespace reports whether r is declared in an unnamed
// namespace.
func (r Record) inAnonymousNamespace() bool {
	for _, ns := range r.Namespaces {
		if namespaceName(ns) == "" {
			return true
		}
	}
	return false
}

// ForwardText returns forward declaration of r with its namespace nesting,
// e.g. "namespace a { namespace b { class C; } }".
func (r Record) ForwardText() string {
	tag := r.Tag
	if tag == "" {
		tag = "class"
	}
	var sb strings.Builder
	for _, ns := range r.Namespaces {
		if !strings.Contains(ns, "namespace") {
			ns = "namespace " + ns
		}
		sb.WriteString(ns)
		sb.WriteString(" { ")
	}
	fmt.Fprintf(&sb, "%s %s;", tag, r.Name)
	for range r.Namespaces {
		sb.WriteString(" }")
	}
	return sb.String()
}

// symbol is a used name and the line of use, for diagnostics.
type symbol struct {
	name string
	line int
}

// useEdge is a use from one inclusion instance to another.
// Multiple uses of the same pair collapse to one edge.
type useEdge struct {
	from, to *filetree.FileNode
	symbols  []symbol
}

// recordUse is uses of a record in a physical file.
type recordUse struct {
	rec Record

	// defs is defining files seen for the record, keyed by file key.
	defs map[string]*filetree.FileNode

	soft  bool
	hard  bool
	lines []int
}

func (ru *recordUse) defKeys() []string {
	keys := make([]string, 0, len(ru.defs))
	for k := range ru.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Analysis) node(loc Loc) (*filetree.FileNode, error) {
	n := a.tree.Node(loc.File)
	if n == nil {
		return nil, fmt.Errorf("unknown file in location %s", loc)
	}
	return n, nil
}

// Use records that the file at from uses a declaration at to.
// name is the used symbol name, only for diagnostics.
func (a *Analysis) Use(from, to Loc, name string) error {
	fn, err := a.node(from)
	if err != nil {
		return fmt.Errorf("use %q: %w", name, err)
	}
	tn, err := a.node(to)
	if err != nil {
		return fmt.Errorf("use %q: %w", name, err)
	}
	if fn == tn {
		return nil
	}
	m, ok := a.uses[fn.ID]
	if !ok {
		m = make(map[filetree.FileID]*useEdge)
		a.uses[fn.ID] = m
	}
	e, ok := m[tn.ID]
	if !ok {
		e = &useEdge{from: fn, to: tn}
		m[tn.ID] = e
	}
	if name != "" {
		e.symbols = append(e.symbols, symbol{name: name, line: from.Line})
	}
	if log.V(3) {
		log.Infof("use %s:%d -> %s %s", fn.Path, from.Line, tn.Path, name)
	}
	return nil
}

// UseRecord records a use of rec at loc.
// soft is true if the use needs only the name of the record, e.g.
// pointer or reference.
// Templates and anonymous records are always used hard.
func (a *Analysis) UseRecord(loc Loc, rec Record, soft bool) error {
	fn, err := a.node(loc)
	if err != nil {
		return fmt.Errorf("use record %s: %w", rec.Key(), err)
	}
	if rec.Template || rec.Anonymous || rec.inAnonymousNamespace() {
		soft = false
	}
	byRec, ok := a.records[fn.Key]
	if !ok {
		byRec = make(map[string]*recordUse)
		a.records[fn.Key] = byRec
	}
	k := rec.Key()
	ru, ok := byRec[k]
	if !ok {
		ru = &recordUse{
			rec:  rec,
			defs: make(map[string]*filetree.FileNode),
		}
		byRec[k] = ru
	}
	if dn := a.tree.Node(rec.Def.File); dn != nil {
		ru.defs[dn.Key] = dn
	}
	ru.lines = append(ru.lines, loc.Line)
	if soft {
		ru.soft = true
		return nil
	}
	ru.hard = true
	if rec.Def.File == filetree.Invalid {
		return nil
	}
	return a.Use(loc, rec.Def, k)
}

// DeclareForward records that the file at loc already has a forward
// declaration of rec.
func (a *Analysis) DeclareForward(loc Loc, rec Record) error {
	fn, err := a.node(loc)
	if err != nil {
		return fmt.Errorf("forward declaration %s: %w", rec.Key(), err)
	}
	m, ok := a.forwards[fn.Key]
	if !ok {
		m = make(map[string]bool)
		a.forwards[fn.Key] = m
	}
	m[rec.Key()] = true
	return nil
}

// ReportCompileError records a compile error of the translation unit.
// fatal is true if the translation unit could not be analyzed.
func (a *Analysis) ReportCompileError(msg string, fatal bool) {
	a.cerrs.Messages = append(a.cerrs.Messages, msg)
	a.cerrs.Fatal = a.cerrs.Fatal || fatal
}
