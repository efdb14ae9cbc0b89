// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analysis

import (
	"fmt"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/filetree"
)

// DeclKind is a kind of declaration referenced from source.
type DeclKind int

const (
	DeclRecord DeclKind = iota
	DeclFunction
	DeclVar
	DeclValue // enum constant, or other value declaration.
	DeclEnum
	DeclTypedef
	DeclTemplate
	DeclMacro
	DeclNamespace
	DeclNamespaceAlias
	DeclUsingDecl
	DeclUsingDirective
	numDeclKinds
)

var declKindNames = [numDeclKinds]string{
	DeclRecord:         "record",
	DeclFunction:       "function",
	DeclVar:            "var",
	DeclValue:          "value",
	DeclEnum:           "enum",
	DeclTypedef:        "typedef",
	DeclTemplate:       "template",
	DeclMacro:          "macro",
	DeclNamespace:      "namespace",
	DeclNamespaceAlias: "namespace_alias",
	DeclUsingDecl:      "using_decl",
	DeclUsingDirective: "using_directive",
}

func (k DeclKind) String() string {
	if k < 0 || k >= numDeclKinds {
		return fmt.Sprintf("decl(%d)", int(k))
	}
	return declKindNames[k]
}

// ParseDeclKind parses name of DeclKind.
func ParseDeclKind(s string) (DeclKind, error) {
	for k, name := range declKindNames {
		if name == s {
			return DeclKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown decl kind %q", s)
}

// UsingRef is a using-declaration or using-directive a reference relied
// on. Loc.File is filetree.Invalid if it could not be traced.
type UsingRef struct {
	Name string
	Loc  Loc
}

// Decl is a declaration referenced from source, narrowed to its kind by
// the fact producer.
type Decl struct {
	Kind DeclKind
	Name string

	// Loc is the location of the declaration (for a macro, the
	// location of #define).
	Loc Loc

	// Record is set for DeclRecord.
	Record *Record
	// Soft is true if a record is used only by name.
	Soft bool

	// Using is using-declarations/directives the reference was
	// resolved through.
	Using []UsingRef
}

type declHandler func(a *Analysis, loc Loc, d Decl, resolved bool) error

var declHandlers [numDeclKinds]declHandler

func init() {
	declHandlers = [numDeclKinds]declHandler{
		DeclRecord:         useRecordDecl,
		DeclFunction:       useDecl,
		DeclVar:            useDecl,
		DeclValue:          useDecl,
		DeclEnum:           useDecl,
		DeclTypedef:        useDecl,
		DeclTemplate:       useDecl,
		DeclMacro:          useDecl,
		DeclNamespace:      useNamespace,
		DeclNamespaceAlias: useDecl,
		DeclUsingDecl:      useDecl,
		DeclUsingDirective: useDecl,
	}
}

// UseDecl records a reference at loc to declaration d.
//
// Each using-declaration/directive d relied on is used as well.
// If one of them can not be traced, the reference is treated as hard.
func (a *Analysis) UseDecl(loc Loc, d Decl) error {
	if d.Kind < 0 || d.Kind >= numDeclKinds {
		return fmt.Errorf("use %q: unknown decl kind %d", d.Name, int(d.Kind))
	}
	resolved := true
	for _, u := range d.Using {
		if u.Loc.File == filetree.Invalid {
			resolved = false
			a.diagf("%s: %s %s via %q: %w", a.locString(loc), d.Kind, d.Name, u.Name, ErrUnresolvableQualifier)
			continue
		}
		err := a.Use(loc, u.Loc, u.Name)
		if err != nil {
			return err
		}
	}
	return declHandlers[d.Kind](a, loc, d, resolved)
}

func useDecl(a *Analysis, loc Loc, d Decl, resolved bool) error {
	if d.Loc.File == filetree.Invalid {
		if log.V(1) {
			log.Infof("%s: %s %s without location", a.locString(loc), d.Kind, d.Name)
		}
		return nil
	}
	return a.Use(loc, d.Loc, d.Name)
}

func useRecordDecl(a *Analysis, loc Loc, d Decl, resolved bool) error {
	if d.Record == nil {
		return fmt.Errorf("use record %q: no record", d.Name)
	}
	rec := *d.Record
	if rec.Def.File == filetree.Invalid {
		rec.Def = d.Loc
	}
	return a.UseRecord(loc, rec, d.Soft && resolved)
}

// useNamespace doesn't make dependency. Namespaces are open and can be
// reopened anywhere, so a file doesn't need the file that first declared
// the namespace.
func useNamespace(a *Analysis, loc Loc, d Decl, resolved bool) error {
	if log.V(2) {
		log.Infof("%s: namespace %s", a.locString(loc), d.Name)
	}
	return nil
}
