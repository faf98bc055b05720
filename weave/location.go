// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

// A location is the history of one atomic variable in the current
// branch. stores is the variable's modification order: every write
// to the location, oldest first. stores[0] is the initial value.
//
// The total order over SeqCst operations is the order they execute
// in. It never adds happens-before edges; it only narrows the stores
// a read may observe. lastSC is the index of the latest SeqCst store
// and fenceFloor the index of the newest store that happened before
// some SeqCst fence, or 0 for neither.
type location struct {
	name   string
	stores []*store

	lastSC     int
	fenceFloor int
}

// A store is a single committed write to an atomic location.
type store struct {
	value int64
	at    epoch
	order MemoryOrder
	rmw   bool

	// step is the index of the trace step that performed this
	// write, or -1 for the initial value.
	step int

	// clock is the writer's clock at a SeqCst store, nil for any
	// other order.
	clock vclock

	// rel holds the release clocks an acquiring reader of this
	// store synchronizes with, one per release sequence the store
	// belongs to. It is empty if the store is not part of any
	// release sequence.
	rel []release

	// firstRead[t] is the epoch of thread t's first read of this
	// store, or 0 if t has not read it.
	firstRead vclock
}

// A release is the head of a release sequence: the thread that
// performed the release and its clock at that point.
type release struct {
	head  ThreadID
	clock vclock
}

func newLocation(name string, init int64) *location {
	return &location{
		name:   name,
		stores: []*store{{value: init, step: -1}},
	}
}

// latest returns the last store in modification order.
func (l *location) latest() *store {
	return l.stores[len(l.stores)-1]
}

// recordWrite appends s to the modification order.
func (l *location) recordWrite(s *store) {
	l.stores = append(l.stores, s)
}

// recordSeqCst records s, the latest store in modification order, as
// a SeqCst store written by a thread with clock c.
func (l *location) recordSeqCst(s *store, c vclock) {
	s.clock = c.clone()
	l.lastSC = len(l.stores) - 1
}

// legalReads returns the indexes of the stores a read by a thread
// whose current clock is c may observe, newest first. The read
// observes no store older than index floor.
//
// A read may not observe a store that is older in modification
// order than a store that happens before the read (write-read
// coherence), nor one older than a store that some read happening
// before this read already observed (read-read coherence). Every
// other store, including ones that are not ordered with the read at
// all, is a legal value.
func (l *location) legalReads(c vclock, floor int) []int {
	lo := 0
	for i := len(l.stores) - 1; i > 0; i-- {
		s := l.stores[i]
		if s.at.before(c) || s.readBefore(c) {
			lo = i
			break
		}
	}
	if floor > lo {
		lo = floor
	}
	idx := make([]int, 0, len(l.stores)-lo)
	for i := len(l.stores) - 1; i >= lo; i-- {
		idx = append(idx, i)
	}
	return idx
}

// seqCstReads narrows cands to the stores a SeqCst read may observe:
// the latest SeqCst store, or a store that is not SeqCst and does not
// happen before it. Without a SeqCst store, cands are unchanged. The
// newest candidate always survives.
func (l *location) seqCstReads(cands []int) []int {
	if l.lastSC == 0 {
		return cands
	}
	sc := l.stores[l.lastSC]
	out := cands[:0]
	for _, i := range cands {
		s := l.stores[i]
		if i == l.lastSC || s.clock == nil && !s.at.before(sc.clock) {
			out = append(out, i)
		}
	}
	return out
}

// hbFloor returns the index of the newest store that happens before
// the point described by c, or 0.
func (l *location) hbFloor(c vclock) int {
	for i := len(l.stores) - 1; i > 0; i-- {
		if l.stores[i].at.before(c) {
			return i
		}
	}
	return 0
}

// readBefore reports whether some read of s happens before the
// point described by c.
func (s *store) readBefore(c vclock) bool {
	for t, n := range s.firstRead {
		if n != 0 && n <= c.get(ThreadID(t)) {
			return true
		}
	}
	return false
}

// markRead records that thread t read s at epoch n.
func (s *store) markRead(t ThreadID, n uint32) {
	if s.firstRead.get(t) != 0 {
		return
	}
	if int(t) >= len(s.firstRead) {
		c := make(vclock, t+1)
		copy(c, s.firstRead)
		s.firstRead = c
	}
	s.firstRead[t] = n
}

// addRelease makes s part of the release sequence headed by head.
// Sequences with the same head are merged.
func (s *store) addRelease(head ThreadID, clock vclock) {
	for i := range s.rel {
		if s.rel[i].head == head {
			s.rel[i].clock.join(clock)
			return
		}
	}
	s.rel = append(s.rel, release{head, clock.clone()})
}

// continueFrom extends the release sequences prev belongs to through
// s. An RMW continues every sequence; a plain store continues only
// sequences headed by its own thread, and only in
// ReleaseSequenceSameThread mode.
func (s *store) continueFrom(prev *store, mode ReleaseSequenceMode) {
	for _, r := range prev.rel {
		switch {
		case s.rmw:
			s.addRelease(r.head, r.clock)
		case mode == ReleaseSequenceSameThread && r.head == s.at.tid:
			s.addRelease(r.head, r.clock)
		}
	}
}

// syncInto joins the release clocks of s into c. This is the
// synchronizes-with edge from every release heading a sequence that
// s belongs to.
func (s *store) syncInto(c *vclock) {
	for _, r := range s.rel {
		c.join(r.clock)
	}
}

// synchronizes reports whether acquiring s orders anything.
func (s *store) synchronizes() bool {
	return len(s.rel) > 0
}
