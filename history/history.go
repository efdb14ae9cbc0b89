// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package history holds edit operations produced by analyzing translation
// units, and merges them into a project-wide history per physical file.
package history

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is a kind of edit operation.
type Kind int

const (
	// Delete deletes an #include line, including its line break.
	Delete Kind = iota
	// Replace replaces the text of an #include line.
	Replace
	// Add inserts new #include lines.
	Add
	// Forward inserts forward declarations.
	Forward
)

func (k Kind) String() string {
	switch k {
	case Delete:
		return "delete"
	case Replace:
		return "replace"
	case Add:
		return "add"
	case Forward:
		return "forward"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Op is an edit operation on a physical file.
// Offsets are in the original, unmodified buffer.
type Op struct {
	Kind Kind
	Path string

	// Start and End are byte offsets of the range [Start, End).
	// Start == End for insertions.
	Start, End int

	// Line is 1-based line of Start, for diagnostics.
	Line int

	// Text is replacement or inserted text.
	// Inserted text consists of whole lines terminated by "\n".
	Text string

	// Record is a qualified record name of a forward declaration.
	Record string

	// Seq orders insertions at the same offset.
	Seq int
}

func (op Op) String() string {
	return fmt.Sprintf("%s %s:%d [%d,%d) %q", op.Kind, op.Path, op.Line, op.Start, op.End, op.Text)
}

// Range is a byte range of a line in the original buffer.
type Range struct {
	Start, End int
	Line       int
}

// FileHistory is edit operations for one physical file produced by
// analyzing one translation unit.
type FileHistory struct {
	Path string
	TU   string
	Ops  []Op

	// Kept is #include lines the translation unit decided to keep.
	Kept []Range

	// Hard is qualified names of records the file uses by value.
	Hard []string
}

// IsEmpty reports whether h has no operation.
func (h *FileHistory) IsEmpty() bool {
	return h == nil || len(h.Ops) == 0
}

// Sort sorts ops by offset, then by Seq.
func (h *FileHistory) Sort() {
	sortOps(h.Ops)
}

func sortOps(ops []Op) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Start != ops[j].Start {
			return ops[i].Start < ops[j].Start
		}
		if ops[i].End != ops[j].End {
			return ops[i].End > ops[j].End
		}
		return ops[i].Seq < ops[j].Seq
	})
}

// CompileErrors is the compile error record of a translation unit.
// It is kept as is.
type CompileErrors struct {
	Messages []string
	Fatal    bool
}

// Conflict is an operation dropped while merging.
//
// It is either a replace dropped by first-seen precedence, or a delete
// or replace of an #include line another translation unit kept
// (KeptLine is true and Kept is empty).
type Conflict struct {
	Path      string
	Line      int
	Kind      Kind // kind of the dropped operation
	KeptLine  bool
	Kept      string
	KeptTU    string
	Dropped   string
	DroppedTU string
}

func (c Conflict) String() string {
	if c.KeptLine {
		return fmt.Sprintf("%s:%d: keep line (%s), drop %s %q (%s)", c.Path, c.Line, c.KeptTU, c.Kind, c.Dropped, c.DroppedTU)
	}
	return fmt.Sprintf("%s:%d: keep %q (%s), drop %q (%s)", c.Path, c.Line, c.Kept, c.KeptTU, c.Dropped, c.DroppedTU)
}

// firstSeen is an operation with the translation unit contributed it.
type firstSeen struct {
	op Op
	tu string
}

type addLines struct {
	line  int
	lines []string
}

// fileState is merged state of a physical file.
type fileState struct {
	path string

	dels map[int]firstSeen // start -> first-seen delete
	reps map[int]firstSeen // start -> first-seen replace
	adds map[int]*addLines // anchor -> #include lines in first-seen order
	fwds map[string]Op     // record -> forward declaration

	kept map[int]string  // start of kept #include line -> first TU kept it
	hard map[string]bool // records used by value
}

func newFileState(path string) *fileState {
	return &fileState{
		path: path,
		dels: make(map[int]firstSeen),
		reps: make(map[int]firstSeen),
		adds: make(map[int]*addLines),
		fwds: make(map[string]Op),
		kept: make(map[int]string),
		hard: make(map[string]bool),
	}
}

// Merged is the project-wide history, keyed by physical file.
//
// It is created empty, grows by Merge after each translation unit
// finishes, and is consumed once at the end.
type Merged struct {
	files         map[string]*fileState
	tus           map[string]bool
	order         []string
	compileErrors map[string]CompileErrors
	conflicts     []Conflict
}

// NewMerged creates an empty merged history.
func NewMerged() *Merged {
	return &Merged{
		files:         make(map[string]*fileState),
		tus:           make(map[string]bool),
		compileErrors: make(map[string]CompileErrors),
	}
}

// Merge merges histories of translation unit tu.
// A translation unit with fatal compile errors contributes only its
// compile error record.
// It returns false if tu was already merged.
func (m *Merged) Merge(tu string, histories []*FileHistory, cerrs CompileErrors) bool {
	if m.tus[tu] {
		return false
	}
	m.tus[tu] = true
	m.order = append(m.order, tu)
	if len(cerrs.Messages) > 0 || cerrs.Fatal {
		m.compileErrors[tu] = cerrs
	}
	if cerrs.Fatal {
		return true
	}
	for _, h := range histories {
		if h == nil {
			continue
		}
		fs, ok := m.files[h.Path]
		if !ok {
			fs = newFileState(h.Path)
			m.files[h.Path] = fs
		}
		m.mergeFile(fs, tu, h)
	}
	return true
}

func (m *Merged) mergeFile(fs *fileState, tu string, h *FileHistory) {
	for _, r := range h.Kept {
		if _, ok := fs.kept[r.Start]; !ok {
			fs.kept[r.Start] = tu
		}
	}
	for _, r := range h.Hard {
		fs.hard[r] = true
	}
	for _, op := range h.Ops {
		switch op.Kind {
		case Delete:
			if _, ok := fs.dels[op.Start]; !ok {
				fs.dels[op.Start] = firstSeen{op: op, tu: tu}
			}
		case Replace:
			prev, ok := fs.reps[op.Start]
			if !ok {
				fs.reps[op.Start] = firstSeen{op: op, tu: tu}
				continue
			}
			if prev.op.Text != op.Text {
				m.conflicts = append(m.conflicts, Conflict{
					Path:      fs.path,
					Line:      op.Line,
					Kind:      Replace,
					Kept:      prev.op.Text,
					KeptTU:    prev.tu,
					Dropped:   op.Text,
					DroppedTU: tu,
				})
			}
		case Add:
			a, ok := fs.adds[op.Start]
			if !ok {
				a = &addLines{line: op.Line}
				fs.adds[op.Start] = a
			}
			for _, line := range splitLines(op.Text) {
				if !contains(a.lines, line) {
					a.lines = append(a.lines, line)
				}
			}
		case Forward:
			k := op.Record
			if k == "" {
				k = op.Text
			}
			// the lowest anchor wins, so the result doesn't depend
			// on merge order.
			prev, ok := fs.fwds[k]
			if !ok || op.Start < prev.Start || (op.Start == prev.Start && op.Text < prev.Text) {
				fs.fwds[k] = op
			}
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		lines = append(lines, line)
	}
	return lines
}

func contains(lines []string, s string) bool {
	for _, l := range lines {
		if l == s {
			return true
		}
	}
	return false
}

// ops returns normalized operations of fs.
func (fs *fileState) ops() []Op {
	var ops []Op
	for start, d := range fs.dels {
		if _, ok := fs.kept[start]; ok {
			continue
		}
		if _, ok := fs.reps[start]; ok {
			continue
		}
		ops = append(ops, d.op)
	}
	for start, r := range fs.reps {
		if _, ok := fs.kept[start]; ok {
			continue
		}
		ops = append(ops, r.op)
	}
	anchors := make([]int, 0, len(fs.adds))
	for start := range fs.adds {
		anchors = append(anchors, start)
	}
	sort.Ints(anchors)
	added := make(map[string]bool)
	for _, start := range anchors {
		a := fs.adds[start]
		var lines []string
		for _, line := range a.lines {
			if added[line] {
				continue
			}
			added[line] = true
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		ops = append(ops, Op{
			Kind:  Add,
			Path:  fs.path,
			Start: start,
			End:   start,
			Line:  a.line,
			Text:  strings.Join(lines, ""),
		})
	}
	var fwds []Op
	for _, op := range fs.fwds {
		if fs.hard[op.Record] {
			continue
		}
		fwds = append(fwds, op)
	}
	sort.Slice(fwds, func(i, j int) bool {
		if fwds[i].Start != fwds[j].Start {
			return fwds[i].Start < fwds[j].Start
		}
		return fwds[i].Text < fwds[j].Text
	})
	for i := range fwds {
		fwds[i].Seq = i + 1
	}
	ops = append(ops, fwds...)
	sortOps(ops)
	return ops
}

// File returns merged history of path, or nil.
func (m *Merged) File(path string) *FileHistory {
	fs, ok := m.files[path]
	if !ok {
		return nil
	}
	h := &FileHistory{
		Path: path,
		Ops:  fs.ops(),
	}
	for start := range fs.kept {
		h.Kept = append(h.Kept, Range{Start: start})
	}
	sort.Slice(h.Kept, func(i, j int) bool { return h.Kept[i].Start < h.Kept[j].Start })
	for r := range fs.hard {
		h.Hard = append(h.Hard, r)
	}
	sort.Strings(h.Hard)
	return h
}

// Paths returns paths of physical files in the merged history, sorted.
func (m *Merged) Paths() []string {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Histories returns merged histories that have operations, sorted by path.
func (m *Merged) Histories() []*FileHistory {
	var hs []*FileHistory
	for _, p := range m.Paths() {
		h := m.File(p)
		if h.IsEmpty() {
			continue
		}
		hs = append(hs, h)
	}
	return hs
}

// TUs returns merged translation units in merge order.
func (m *Merged) TUs() []string {
	return append([]string(nil), m.order...)
}

// CompileErrors returns compile error record of tu.
func (m *Merged) CompileErrors(tu string) (CompileErrors, bool) {
	c, ok := m.compileErrors[tu]
	return c, ok
}

// Conflicts returns replace conflicts resolved by first-seen precedence,
// followed by deletes and replaces dropped because another translation
// unit kept the line, sorted by path and offset.
func (m *Merged) Conflicts() []Conflict {
	conflicts := append([]Conflict(nil), m.conflicts...)
	for _, p := range m.Paths() {
		conflicts = append(conflicts, m.files[p].keptConflicts()...)
	}
	return conflicts
}

// keptConflicts returns operations of fs dropped by kept lines.
func (fs *fileState) keptConflicts() []Conflict {
	starts := make([]int, 0, len(fs.kept))
	for start := range fs.kept {
		starts = append(starts, start)
	}
	sort.Ints(starts)
	var conflicts []Conflict
	for _, start := range starts {
		for _, d := range []firstSeen{fs.dels[start], fs.reps[start]} {
			if d.tu == "" {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Path:      fs.path,
				Line:      d.op.Line,
				Kind:      d.op.Kind,
				KeptLine:  true,
				KeptTU:    fs.kept[start],
				Dropped:   d.op.Text,
				DroppedTU: d.tu,
			})
		}
	}
	return conflicts
}
