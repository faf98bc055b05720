// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import "fmt"

// cellState is the value and access history of a non-atomic cell.
// Every pair of conflicting accesses must be ordered by
// happens-before; the history keeps just enough to check that.
type cellState struct {
	value int64

	// write is the epoch of the last write and writeStep its
	// trace step, or -1 for the initial value.
	write     epoch
	writeStep int

	// reads[t] is the epoch of thread t's last read since the last
	// write, and readStep[t] its trace step.
	reads    vclock
	readStep map[ThreadID]int
}

func (e *execution) readCell(t *thread, op *Op) {
	c := e.cells[op.cell]
	n := t.clock.tick(t.id)
	step := len(e.trace)
	e.record(t, Step{
		Op:        fmt.Sprintf("%s = read %s", op.reg, e.p.cellName(op.cell)),
		Value:     c.value,
		HasValue:  true,
		ReadsFrom: c.writeStep,
	})
	if !c.write.before(t.clock) {
		e.race(t, op.cell, "read", c.writeStep)
	}
	if int(t.id) >= len(c.reads) {
		c.reads.join(make(vclock, t.id+1))
	}
	c.reads[t.id] = n
	if c.readStep == nil {
		c.readStep = make(map[ThreadID]int)
	}
	c.readStep[t.id] = step
	t.regs[op.reg] = c.value
}

func (e *execution) writeCell(t *thread, op *Op) {
	c := e.cells[op.cell]
	var v int64
	e.user(t, func() { v = op.val(t.regs) })
	n := t.clock.tick(t.id)
	e.record(t, Step{
		Op:        "write " + e.p.cellName(op.cell),
		Value:     v,
		HasValue:  true,
		ReadsFrom: -1,
	})
	if !c.write.before(t.clock) {
		e.race(t, op.cell, "write", c.writeStep)
	}
	for r, rn := range c.reads {
		if rn != 0 && rn > t.clock.get(ThreadID(r)) {
			e.race(t, op.cell, "write", c.readStep[ThreadID(r)])
		}
	}
	c.value = v
	c.write = epoch{t.id, n}
	c.writeStep = len(e.trace) - 1
	c.reads = nil
	c.readStep = nil
}

// race fails the branch with a data race between t's access and the
// earlier access at trace step prev.
func (e *execution) race(t *thread, cell Cell, access string, prev int) {
	other := e.trace[prev]
	e.fail(t, DataRace, fmt.Sprintf("%s of %s races with #%d (T%d %s: %s)",
		access, e.p.cellName(cell), prev, other.Thread, other.ThreadName, other.Op))
}
