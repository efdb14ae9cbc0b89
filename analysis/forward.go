// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analysis

import (
	"context"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
)

// generateForwards computes forward declaration candidates for records
// used only by name in user files.
//
// A candidate whose definition is no longer reachable anywhere in the
// translation unit becomes a need of the real include instead. It
// returns true if such a need was added, and the solver should run again.
func (a *Analysis) generateForwards(ctx context.Context) bool {
	s := a.solver
	root := a.tree.Root()
	rootKids := s.results[root.Key].kids
	a.cands = make(map[string]map[string]Record)
	added := false
	for _, fkey := range s.order {
		if !s.isUser(fkey) || s.frozen[fkey] {
			continue
		}
		r := s.results[fkey]
		from := a.tree.First(fkey)
		for _, rkey := range sortedKeys(a.records[fkey]) {
			ru := a.records[fkey][rkey]
			if ru.hard || !ru.soft || len(ru.defs) != 1 {
				continue
			}
			if a.forwards[fkey][rkey] {
				// already declared.
				continue
			}
			def := ru.defs[ru.defKeys()[0]]
			if def.Key == fkey || def.DefaultIncluded || def.Precompiled {
				continue
			}
			best := a.tree.BestAncestor(from, def)
			if best == nil {
				continue
			}
			if r.isMember(best.Key) {
				// the definition is included directly.
				continue
			}
			if def.Key != root.Key && !rootKids[def.Key] {
				if s.addNeed(from, best, []symbol{{name: rkey}}) {
					if log.V(1) {
						clog.Infof(ctx, "%s: %s: definition %s unreachable. keep include %s", fkey, rkey, def.Path, best.Path)
					}
					added = true
					continue
				}
			}
			m, ok := a.cands[fkey]
			if !ok {
				m = make(map[string]Record)
				a.cands[fkey] = m
			}
			m[rkey] = ru.rec
		}
	}
	return added
}

// minimizeForwards drops candidates that a file gets from its minimal
// include set, i.e. declared in or added to a kept descendant.
func (a *Analysis) minimizeForwards(ctx context.Context) {
	s := a.solver
	a.fwds = make(map[string][]Record)
	declared := make(map[string]map[string]bool)
	for _, fkey := range s.order {
		cands := a.cands[fkey]
		if len(cands) == 0 {
			continue
		}
		kids := s.results[fkey].kids
		for _, rkey := range sortedKeys(cands) {
			if a.declaredIn(kids, declared, rkey) {
				if log.V(1) {
					clog.Infof(ctx, "%s: %s is declared in kids", fkey, rkey)
				}
				continue
			}
			m, ok := declared[fkey]
			if !ok {
				m = make(map[string]bool)
				declared[fkey] = m
			}
			m[rkey] = true
			a.fwds[fkey] = append(a.fwds[fkey], cands[rkey])
		}
	}
}

func (a *Analysis) declaredIn(kids map[string]bool, declared map[string]map[string]bool, rkey string) bool {
	for k := range kids {
		if a.forwards[k][rkey] || declared[k][rkey] {
			return true
		}
	}
	return false
}
