// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import "fmt"

type threadStatus uint8

const (
	notStarted threadStatus = iota
	running
	exited
)

// A thread is the execution context of one thread in one branch. It
// is suspended with pc at a shared operation (or at the end of its
// program) whenever control is back in the scheduler.
type thread struct {
	id     ThreadID
	decl   *threadDecl
	pc     int
	regs   Regs
	status threadStatus
	ret    int64

	clock vclock
	// relFence is the clock at the thread's last release fence;
	// relaxed stores after it carry it to acquiring readers.
	relFence vclock
	// acqPending accumulates the release clocks observed by
	// relaxed reads; the next acquire fence joins it.
	acqPending vclock

	// scFloor[l] is the oldest store of location l, by index in
	// modification order, that t's reads may still observe after
	// its SeqCst fences.
	scFloor []int
}

func (t *thread) String() string {
	return fmt.Sprintf("T%d %s", t.id, t.decl.name)
}

// next returns the operation t is suspended at. t must be running.
func (t *thread) next() *Op {
	return &t.decl.ops[t.pc]
}

func (t *thread) atEnd() bool {
	return t.pc >= len(t.decl.ops)
}

// canStep reports whether t's next shared operation can execute now.
// Threads waiting on a held mutex or an unfinished thread cannot.
func (e *execution) canStep(t *thread) bool {
	if t.status != running {
		return false
	}
	op := t.next()
	switch op.kind {
	case opLock:
		return e.locks.tryAcquire(op.mutex, t.id)
	case opJoin:
		return e.threads[op.thread].status == exited
	}
	return true
}

// start begins running t with clock parent as the history it
// inherits, and runs it up to its first shared operation.
func (e *execution) start(t *thread, parent vclock) {
	t.status = running
	t.clock = parent.clone()
	t.clock.tick(t.id)
	e.runLocal(t)
}

// step executes t's next shared operation against the shared state,
// then runs t's local operations until it reaches another shared
// operation or the end of its program.
func (e *execution) step(t *thread) {
	op := t.next()
	switch op.kind {
	case opLoad:
		e.load(t, op)
	case opStore:
		e.store(t, op)
	case opRMW:
		e.rmw(t, op)
	case opFence:
		e.fence(t, op)
	case opLock:
		e.lock(t, op)
	case opUnlock:
		e.unlock(t, op)
	case opSpawn:
		e.spawn(t, op)
	case opJoin:
		e.join(t, op)
	default:
		panic(fmt.Sprintf("step at non-shared op kind %d", op.kind))
	}
	t.pc++
	e.runLocal(t)
}

// runLocal runs t's thread-local operations, stopping at the next
// shared operation. If t reaches the end of its program, it exits.
func (e *execution) runLocal(t *thread) {
	for !t.atEnd() && !t.next().kind.shared() {
		op := t.next()
		t.pc++
		switch op.kind {
		case opRead:
			e.readCell(t, op)
		case opWrite:
			e.writeCell(t, op)
		case opAssert:
			var ok bool
			e.user(t, func() { ok = op.cond(t.regs) })
			e.record(t, Step{Op: "assert " + op.name, ReadsFrom: -1})
			if !ok {
				e.fail(t, AssertionFailed, op.name)
			}
		case opCompute:
			e.user(t, func() { op.fn(t.regs) })
			e.record(t, Step{Op: op.name, ReadsFrom: -1})
		case opReturn:
			e.user(t, func() { t.ret = op.val(t.regs) })
			e.record(t, Step{Op: "return", Value: t.ret, HasValue: true, ReadsFrom: -1})
			t.pc = len(t.decl.ops)
		case opSkip:
			var ok bool
			e.user(t, func() { ok = op.cond(t.regs) })
			if !ok {
				t.pc += op.skip
			}
		default:
			panic(fmt.Sprintf("bad local op kind %d", op.kind))
		}
	}
	if t.atEnd() {
		e.exit(t)
	}
}

// exit finishes t. Exiting while holding a mutex is a misuse: the
// mutex could never be released.
func (e *execution) exit(t *thread) {
	t.status = exited
	t.clock.tick(t.id)
	if held := e.locks.held(t.id); len(held) > 0 {
		e.fail(t, ProtocolMisuse, fmt.Sprintf("thread exited while holding mutex %s", e.p.mutexName(held[0])))
	}
}
