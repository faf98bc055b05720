// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"fmt"
	"strings"
)

const noOwner ThreadID = -1

// lockTable holds the ownership and blocking state of every mutex
// in the current branch.
type lockTable struct {
	mutexes []mutexState
}

type mutexState struct {
	owner ThreadID
	// clock is the owner's clock at the last unlock. Acquiring the
	// mutex joins it, which orders every critical section after
	// the previous one.
	clock vclock
	// waiters are the threads that found the mutex held the last
	// time they were considered for scheduling.
	waiters []ThreadID
}

func newLockTable(n int) lockTable {
	lt := lockTable{mutexes: make([]mutexState, n)}
	for i := range lt.mutexes {
		lt.mutexes[i].owner = noOwner
	}
	return lt
}

// tryAcquire reports whether t could acquire m right now. If it
// cannot, t is recorded as blocked on m.
func (lt *lockTable) tryAcquire(m Mutex, t ThreadID) bool {
	ms := &lt.mutexes[m]
	if ms.owner == noOwner {
		return true
	}
	for _, w := range ms.waiters {
		if w == t {
			return false
		}
	}
	ms.waiters = append(ms.waiters, t)
	return false
}

// acquire makes t the owner of m and joins the mutex's release clock
// into c. m must be unowned.
func (lt *lockTable) acquire(m Mutex, t ThreadID, c *vclock) {
	ms := &lt.mutexes[m]
	if ms.owner != noOwner {
		panic(fmt.Sprintf("acquire of mutex %d held by thread %d", m, ms.owner))
	}
	ms.owner = t
	c.join(ms.clock)
}

// release frees m, which must be owned by t, and records c as its
// release clock. Every blocked requester becomes a candidate again.
// It returns false if t does not own m.
func (lt *lockTable) release(m Mutex, t ThreadID, c vclock) bool {
	ms := &lt.mutexes[m]
	if ms.owner != t {
		return false
	}
	ms.owner = noOwner
	ms.clock = c.clone()
	ms.waiters = ms.waiters[:0]
	return true
}

func (lt *lockTable) owner(m Mutex) ThreadID {
	return lt.mutexes[m].owner
}

// held returns the mutexes owned by t.
func (lt *lockTable) held(t ThreadID) []Mutex {
	var out []Mutex
	for i := range lt.mutexes {
		if lt.mutexes[i].owner == t {
			out = append(out, Mutex(i))
		}
	}
	return out
}

// waitCycle follows wait-for edges from start, where waitsFor maps a
// blocked thread to the thread it is waiting on. It returns the
// threads on the cycle reachable from start, in order, or nil if the
// chain ends at a thread that is not waiting.
func waitCycle(start ThreadID, waitsFor map[ThreadID]ThreadID) []ThreadID {
	pos := make(map[ThreadID]int)
	var chain []ThreadID
	for t := start; ; {
		if i, ok := pos[t]; ok {
			return chain[i:]
		}
		pos[t] = len(chain)
		chain = append(chain, t)
		next, ok := waitsFor[t]
		if !ok {
			return nil
		}
		t = next
	}
}

func formatCycle(p *Program, cycle []ThreadID) string {
	names := make([]string, 0, len(cycle)+1)
	for _, t := range cycle {
		names = append(names, p.ThreadName(t))
	}
	names = append(names, p.ThreadName(cycle[0]))
	return strings.Join(names, " -> ")
}
