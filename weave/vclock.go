// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

// A vclock is a vector clock indexed by thread ID. Entry t is the
// number of events of thread t known to have happened before the
// point the clock describes. A nil vclock is the zero clock.
type vclock []uint32

// clone returns a copy of c that shares no storage with it.
func (c vclock) clone() vclock {
	if c == nil {
		return nil
	}
	return append(vclock(nil), c...)
}

// join sets c to the element-wise maximum of c and o.
func (c *vclock) join(o vclock) {
	if len(o) > len(*c) {
		n := make(vclock, len(o))
		copy(n, *c)
		*c = n
	}
	for i, x := range o {
		if x > (*c)[i] {
			(*c)[i] = x
		}
	}
}

func (c vclock) get(tid ThreadID) uint32 {
	if int(tid) < len(c) {
		return c[tid]
	}
	return 0
}

// tick advances thread tid's own entry and returns the new epoch.
func (c *vclock) tick(tid ThreadID) uint32 {
	if int(tid) >= len(*c) {
		n := make(vclock, tid+1)
		copy(n, *c)
		*c = n
	}
	(*c)[tid]++
	return (*c)[tid]
}

// An epoch names a single event: the epoch'th event of thread tid.
type epoch struct {
	tid ThreadID
	n   uint32
}

// before reports whether event e happened before (or is) the point
// described by c. The zero epoch of the initial state happens before
// everything.
func (e epoch) before(c vclock) bool {
	return e.n <= c.get(e.tid)
}
