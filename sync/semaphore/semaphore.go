// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package semaphore provides named counting semaphore to bound
// concurrent file operations.
package semaphore

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Semaphore is a counting semaphore.
type Semaphore struct {
	name  string
	slots chan struct{}

	waits atomic.Int64
	reqs  atomic.Int64
}

// New creates a new semaphore with name and capacity.
// Capacity less than 1 is treated as 1.
func New(name string, n int) *Semaphore {
	return &Semaphore{
		name:  name,
		slots: make(chan struct{}, max(n, 1)),
	}
}

// WaitAcquire acquires a slot, and returns func to release it.
func (s *Semaphore) WaitAcquire(ctx context.Context) (func(), error) {
	s.waits.Add(1)
	defer s.waits.Add(-1)
	select {
	case s.slots <- struct{}{}:
		s.reqs.Add(1)
		return func() { <-s.slots }, nil
	case <-ctx.Done():
		return func() {}, context.Cause(ctx)
	}
}

// Do runs f while holding a slot.
func (s *Semaphore) Do(ctx context.Context, f func(ctx context.Context) error) error {
	release, err := s.WaitAcquire(ctx)
	if err != nil {
		return fmt.Errorf("semaphore %s: %w", s.name, err)
	}
	defer release()
	return f(ctx)
}

// Capacity returns capacity of the semaphore.
func (s *Semaphore) Capacity() int { return cap(s.slots) }

// NumServs returns number of currently served.
func (s *Semaphore) NumServs() int { return len(s.slots) }

// NumWaits returns number of waiters.
func (s *Semaphore) NumWaits() int { return int(s.waits.Load()) }

// NumRequests returns total number of served requests.
func (s *Semaphore) NumRequests() int { return int(s.reqs.Load()) }

func (s *Semaphore) String() string {
	return fmt.Sprintf("%s: capacity=%d serving=%d waiting=%d requests=%d", s.name, s.Capacity(), s.NumServs(), s.NumWaits(), s.NumRequests())
}
