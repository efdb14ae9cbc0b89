// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package filetree models the inclusion tree of one translation unit.
//
// Every time a physical file is included, a new FileNode is created.
// Nodes of the same physical file share a key (normalized absolute path)
// but have their own parent and depth.
package filetree

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// FileID identifies a FileNode within a tree.
// IDs are assigned in registration order, starting from 1.
type FileID int

// Invalid is FileID for no file.
const Invalid FileID = 0

// FileNode is one inclusion instance of a physical file.
type FileNode struct {
	ID FileID

	// Name is the name as given by the front end, e.g. "./a.h".
	Name string

	// Path is the absolute, cleaned, slash-separated path.
	Path string

	// Key identifies the physical file. Same as Path, but
	// lower-cased on case-insensitive filesystems.
	Key string

	Parent *FileNode
	Depth  int

	// IncludeLine is 1-based line number of the #include directive in
	// Parent. 0 if unknown.
	IncludeLine int

	System          bool
	User            bool
	Outer           bool
	DefaultIncluded bool
	Precompiled     bool
	Skip            bool

	children []*FileNode
}

func (n *FileNode) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d", n.Path, n.ID)
}

// Children returns nodes included directly by n, in inclusion order.
func (n *FileNode) Children() []*FileNode {
	return n.children
}

// Classifier decides whether a physical file may be edited.
type Classifier interface {
	IsUser(path string) bool
}

// ClassifierFunc is a func that implements Classifier.
type ClassifierFunc func(path string) bool

// IsUser implements Classifier.
func (f ClassifierFunc) IsUser(path string) bool { return f(path) }

// Options is an option of tree.
type Options struct {
	// Classifier decides user files. nil means every non-system
	// file is a user file.
	Classifier Classifier

	// CaseInsensitive makes keys lower-cased.
	// nil means default of the platform.
	CaseInsensitive *bool
}

// Tree is an inclusion tree of a translation unit.
type Tree struct {
	classifier      Classifier
	caseInsensitive bool

	nodes []*FileNode // nodes[0] is nil for Invalid.
	root  *FileNode

	// key -> nodes of the same physical file, in registration order.
	sameFiles map[string][]*FileNode

	// outer node -> its outermost outer ancestor directly included
	// from user code.
	outerAncestors map[*FileNode]*FileNode
}

// New creates new empty tree.
func New(opts Options) *Tree {
	ci := runtime.GOOS == "windows" || runtime.GOOS == "darwin"
	if opts.CaseInsensitive != nil {
		ci = *opts.CaseInsensitive
	}
	return &Tree{
		classifier:      opts.Classifier,
		caseInsensitive: ci,
		nodes:           []*FileNode{nil},
		sameFiles:       make(map[string][]*FileNode),
	}
}

// KeyOf returns physical file key for path.
func (t *Tree) KeyOf(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	if t.caseInsensitive {
		return strings.ToLower(p)
	}
	return p
}

// BeginFile registers the root (main file) of the translation unit.
func (t *Tree) BeginFile(n *FileNode) (*FileNode, error) {
	if t.root != nil {
		return nil, fmt.Errorf("root already registered: %s", t.root)
	}
	t.root = n
	return t.add(n, nil)
}

// DeclareFile registers n as included by parent.
func (t *Tree) DeclareFile(n *FileNode, parent *FileNode) (*FileNode, error) {
	if parent == nil {
		return t.BeginFile(n)
	}
	if t.root == nil {
		return nil, fmt.Errorf("declare %s before root", n.Path)
	}
	if parent.ID <= Invalid || int(parent.ID) >= len(t.nodes) || t.nodes[parent.ID] != parent {
		return nil, fmt.Errorf("declare %s: unknown parent %s", n.Path, parent)
	}
	return t.add(n, parent)
}

func (t *Tree) add(n *FileNode, parent *FileNode) (*FileNode, error) {
	if n.Path == "" {
		return nil, fmt.Errorf("no path for %q", n.Name)
	}
	n.ID = FileID(len(t.nodes))
	n.Path = filepath.ToSlash(filepath.Clean(n.Path))
	n.Key = t.KeyOf(n.Path)
	n.Parent = parent
	n.children = nil
	if parent != nil {
		n.Depth = parent.Depth + 1
		parent.children = append(parent.children, n)
		if parent.DefaultIncluded || parent.Precompiled || parent.Skip {
			// everything under them is owned by them.
			n.DefaultIncluded = n.DefaultIncluded || parent.DefaultIncluded
			n.Precompiled = n.Precompiled || parent.Precompiled
			n.Skip = n.Skip || parent.Skip
		}
	}
	n.User = !n.System && !n.DefaultIncluded && !n.Precompiled && !n.Skip
	if n.User && t.classifier != nil {
		n.User = t.classifier.IsUser(n.Path)
	}
	n.Outer = !n.User
	t.nodes = append(t.nodes, n)
	t.sameFiles[n.Key] = append(t.sameFiles[n.Key], n)
	t.outerAncestors = nil
	return n, nil
}

// Root returns the main file.
func (t *Tree) Root() *FileNode { return t.root }

// Node returns node for id, or nil.
func (t *Tree) Node(id FileID) *FileNode {
	if id <= Invalid || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Nodes returns all nodes in registration order.
func (t *Tree) Nodes() []*FileNode { return t.nodes[1:] }

// Len returns number of nodes.
func (t *Tree) Len() int { return len(t.nodes) - 1 }

// SameFile reports whether a and b are the same physical file.
func (t *Tree) SameFile(a, b *FileNode) bool {
	return a != nil && b != nil && a.Key == b.Key
}

// SameFiles returns all nodes of the physical file key.
func (t *Tree) SameFiles(key string) []*FileNode {
	return t.sameFiles[key]
}

// First returns the first inclusion instance of key, or nil.
func (t *Tree) First(key string) *FileNode {
	nodes := t.sameFiles[key]
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Keys returns all physical file keys, sorted.
func (t *Tree) Keys() []string {
	keys := make([]string, 0, len(t.sameFiles))
	for k := range t.sameFiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsAncestor reports whether old is a proper ancestor of young.
func (t *Tree) IsAncestor(young, old *FileNode) bool {
	if young == nil || old == nil {
		return false
	}
	for p := young.Parent; p != nil; p = p.Parent {
		if p == old {
			return true
		}
	}
	return false
}

// IsAncestorByName reports whether any instance of old's physical file is
// an ancestor of any instance of young's physical file.
func (t *Tree) IsAncestorByName(young, old string) bool {
	for _, y := range t.sameFiles[young] {
		for p := y.Parent; p != nil; p = p.Parent {
			if p.Key == old {
				return true
			}
		}
	}
	return false
}

// Depth returns depth of n. root is 0.
func (t *Tree) Depth(n *FileNode) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// SecondAncestor returns the ancestor of child (or child itself) whose
// parent is top. It returns nil if top is not an ancestor of child.
func (t *Tree) SecondAncestor(top, child *FileNode) *FileNode {
	for n := child; n != nil; n = n.Parent {
		if n.Parent == top {
			return n
		}
	}
	return nil
}

// OuterAncestor returns the outermost library ancestor of n that is
// directly included from a user file (or from the root).
// It returns n itself for user files.
func (t *Tree) OuterAncestor(n *FileNode) *FileNode {
	if n == nil || n.User {
		return n
	}
	if t.outerAncestors == nil {
		t.generateOuterAncestors()
	}
	if a, ok := t.outerAncestors[n]; ok {
		return a
	}
	return n
}

func (t *Tree) generateOuterAncestors() {
	t.outerAncestors = make(map[*FileNode]*FileNode)
	for _, n := range t.Nodes() {
		if n.User {
			continue
		}
		top := n
		for p := n.Parent; p != nil && p != t.root && !p.User; p = p.Parent {
			top = p
		}
		t.outerAncestors[n] = top
	}
}

// BestAncestor returns the node that a should depend on when file a uses
// file b: b itself if b is a user file or directly addressable, otherwise
// b's outer ancestor. It returns nil when the use should be discarded
// (use of the same physical file, or use of the root).
func (t *Tree) BestAncestor(a, b *FileNode) *FileNode {
	if a == nil || b == nil || a.Key == b.Key || b == t.root {
		return nil
	}
	if b.User {
		return b
	}
	if a.Outer && t.IsAncestor(b, a) {
		// inside the same library unit.
		return b
	}
	best := t.OuterAncestor(b)
	if best.Key == a.Key || best == t.root {
		return nil
	}
	return best
}

// Kids returns keys of all transitive descendants of every instance of
// key, excluding key itself unless it includes itself.
func (t *Tree) Kids(key string) map[string]bool {
	kids := make(map[string]bool)
	visited := make(map[*FileNode]bool)
	var walk func(n *FileNode)
	walk = func(n *FileNode) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, c := range n.children {
			kids[c.Key] = true
			walk(c)
		}
	}
	for _, n := range t.sameFiles[key] {
		walk(n)
	}
	return kids
}
