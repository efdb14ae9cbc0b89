// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analysis

import (
	"sort"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/filetree"
)

// include is an original #include of a physical file in its includer.
type include struct {
	key  string
	node *filetree.FileNode // first inclusion instance.

	// lines are include lines in the includer, sorted.
	// The same file may be included more than once.
	lines []int

	// pinned includes are never edited, e.g. precompiled header.
	pinned bool
}

// need is a file a user file depends on.
type need struct {
	key     string
	node    *filetree.FileNode // first inclusion instance.
	symbols []symbol
}

// member is a member of the minimal include set.
// Either inc (original include) or need (new include) is set.
type member struct {
	key  string
	inc  *include
	need *need
}

// minimal is the minimal include result of a physical file.
type minimal struct {
	outer bool

	members []member   // kept and new includes.
	dropped []*include // original includes not kept.

	// kids is the transitive closure of physical files brought in
	// by members.
	kids map[string]bool
}

func (m *minimal) isMember(key string) bool {
	for _, mm := range m.members {
		if mm.key == key {
			return true
		}
	}
	return false
}

// solver computes minimal include set bottom-up over physical files.
type solver struct {
	tree *filetree.Tree

	includes map[string][]*include       // includer key -> includes
	needs    map[string]map[string]*need // user key -> need key -> need
	frozen   map[string]bool             // keep every include
	user     map[string]bool

	results  map[string]*minimal
	visiting map[string]bool

	// order is physical files in post order, i.e. included files
	// before includers.
	order []string
}

func newSolver(tree *filetree.Tree) *solver {
	s := &solver{
		tree:     tree,
		includes: make(map[string][]*include),
		needs:    make(map[string]map[string]*need),
		frozen:   make(map[string]bool),
		user:     make(map[string]bool),
	}
	for _, k := range tree.Keys() {
		user := true
		for _, n := range tree.SameFiles(k) {
			if !n.User {
				user = false
				break
			}
		}
		s.user[k] = user
	}
	// includes per includer physical file, deduplicated by
	// included file.
	for _, n := range tree.Nodes() {
		p := n.Parent
		if p == nil {
			continue
		}
		var inc *include
		for _, i := range s.includes[p.Key] {
			if i.key == n.Key {
				inc = i
				break
			}
		}
		if inc == nil {
			inc = &include{key: n.Key, node: n}
			s.includes[p.Key] = append(s.includes[p.Key], inc)
		}
		if n.DefaultIncluded || n.Precompiled {
			inc.pinned = true
		}
		if n.IncludeLine > 0 && !containsInt(inc.lines, n.IncludeLine) {
			inc.lines = append(inc.lines, n.IncludeLine)
			sort.Ints(inc.lines)
		}
	}
	for _, incs := range s.includes {
		sort.SliceStable(incs, func(i, j int) bool {
			return firstLine(incs[i]) < firstLine(incs[j])
		})
	}
	return s
}

func firstLine(inc *include) int {
	if len(inc.lines) == 0 {
		return 0
	}
	return inc.lines[0]
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func (s *solver) includesKey(includer, key string) bool {
	for _, inc := range s.includes[includer] {
		if inc.key == key {
			return true
		}
	}
	return false
}

func (s *solver) isUser(key string) bool {
	return s.user[key]
}

// addNeed adds target as need of from's physical file.
// Needs satisfied without include are dropped.
func (s *solver) addNeed(from, target *filetree.FileNode, symbols []symbol) bool {
	if !s.user[from.Key] {
		return false
	}
	switch {
	case target.Key == from.Key:
		return false
	case target.DefaultIncluded || target.Precompiled:
		// always available.
		return false
	case s.tree.IsAncestorByName(from.Key, target.Key) && !s.includesKey(from.Key, target.Key):
		// the includer of from. include cycle.
		if log.V(1) {
			log.Infof("%s: ignore use of ancestor %s", from.Path, target.Path)
		}
		return false
	}
	m, ok := s.needs[from.Key]
	if !ok {
		m = make(map[string]*need)
		s.needs[from.Key] = m
	}
	n, ok := m[target.Key]
	if !ok {
		n = &need{key: target.Key, node: s.tree.First(target.Key)}
		m[target.Key] = n
	}
	n.symbols = append(n.symbols, symbols...)
	return !ok
}

// run (re)computes minimal include sets of all files.
func (s *solver) run() {
	s.results = make(map[string]*minimal)
	s.visiting = make(map[string]bool)
	s.order = nil
	if root := s.tree.Root(); root != nil {
		s.visit(root.Key)
	}
	for _, n := range s.tree.Nodes() {
		s.visit(n.Key)
	}
}

// visit returns transitive closure of the minimal include set of key.
// For a file in an include cycle being visited, it returns empty set.
func (s *solver) visit(key string) map[string]bool {
	if r, ok := s.results[key]; ok {
		return r.kids
	}
	if s.visiting[key] {
		return nil
	}
	s.visiting[key] = true
	defer delete(s.visiting, key)

	var r *minimal
	if !s.user[key] {
		// outer files are never edited.
		r = &minimal{outer: true, kids: s.tree.Kids(key)}
		for _, inc := range s.includes[key] {
			s.visit(inc.key)
		}
	} else {
		r = s.solve(key)
	}
	s.results[key] = r
	s.order = append(s.order, key)
	return r.kids
}

// reaches reports whether target is key or in key's minimal closure.
func (s *solver) reaches(key, target string) bool {
	return key == target || s.visit(key)[target]
}

func (s *solver) solve(key string) *minimal {
	r := &minimal{kids: make(map[string]bool)}
	needs := s.needs[key]
	frozen := s.frozen[key]

	// original includes that reach a need.
	var members []member
	for _, inc := range s.includes[key] {
		if inc.pinned || frozen {
			s.visit(inc.key)
			members = append(members, member{key: inc.key, inc: inc})
			continue
		}
		hit := false
		for nk := range needs {
			if s.reaches(inc.key, nk) {
				hit = true
				break
			}
		}
		if !hit {
			r.dropped = append(r.dropped, inc)
			continue
		}
		members = append(members, member{key: inc.key, inc: inc})
	}

	// needs not reached by kept includes become new includes.
	var added []*need
	for nk, n := range needs {
		covered := false
		for _, m := range members {
			if s.reaches(m.key, nk) {
				covered = true
				break
			}
		}
		if !covered {
			added = append(added, n)
		}
	}
	sort.Slice(added, func(i, j int) bool {
		if added[i].node.ID != added[j].node.ID {
			return added[i].node.ID < added[j].node.ID
		}
		return added[i].key < added[j].key
	})
	for _, n := range added {
		members = append(members, member{key: n.key, need: n})
	}

	// transitive reduction: drop a member brought in by another
	// surviving member.
	if !frozen {
		removed := make([]bool, len(members))
		for i, g := range members {
			if g.inc != nil && g.inc.pinned {
				continue
			}
			for j, h := range members {
				if i == j || removed[j] || h.key == g.key {
					continue
				}
				if s.visit(h.key)[g.key] {
					removed[i] = true
					break
				}
			}
		}
		var kept []member
		for i, m := range members {
			if removed[i] {
				if m.inc != nil {
					r.dropped = append(r.dropped, m.inc)
				}
				if log.V(1) {
					log.Infof("%s: %s is redundant", key, m.key)
				}
				continue
			}
			kept = append(kept, m)
		}
		members = kept
	}
	r.members = members
	sort.SliceStable(r.dropped, func(i, j int) bool {
		return firstLine(r.dropped[i]) < firstLine(r.dropped[j])
	})
	for _, m := range members {
		r.kids[m.key] = true
		for k := range s.visit(m.key) {
			r.kids[k] = true
		}
	}
	return r
}
