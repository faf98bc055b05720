// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"fmt"
	"strings"

	"github.com/aclements/go-weave/amb"
)

// An execution is a single branch of the search. It owns all of the
// branch's mutable state; nothing in it outlives the branch.
type execution struct {
	p     *Program
	cfg   *Config
	strat amb.Strategy

	threads []*thread
	locs    []*location
	cells   []*cellState
	locks   lockTable

	trace []Step
	depth int
}

// branchFailure is panicked to unwind a branch that reached a
// failure.
type branchFailure struct {
	f *Failure
}

func newExecution(p *Program, cfg *Config, strat amb.Strategy) *execution {
	e := &execution{
		p:     p,
		cfg:   cfg,
		strat: strat,
		locks: newLockTable(len(p.mutexes)),
	}
	for _, v := range p.atomics {
		e.locs = append(e.locs, newLocation(v.name, v.init))
	}
	for _, v := range p.cells {
		e.cells = append(e.cells, &cellState{value: v.init, writeStep: -1})
	}
	for i, decl := range p.threads {
		e.threads = append(e.threads, &thread{id: ThreadID(i), decl: decl, regs: make(Regs), scFloor: make([]int, len(p.atomics))})
	}
	return e
}

// run drives the branch to a terminal state. It returns the branch's
// failure, or nil if every thread completed. If the strategy cuts
// the branch off, it panics with amb.PathTerminated.
func (e *execution) run() (f *Failure) {
	defer func() {
		if err := recover(); err != nil {
			bf, ok := err.(branchFailure)
			if !ok {
				panic(err)
			}
			f = bf.f
		}
	}()

	for _, t := range e.threads {
		if !t.decl.child {
			e.start(t, nil)
		}
	}
	var ready []*thread
	for {
		ready = ready[:0]
		live := false
		for _, t := range e.threads {
			if t.status != running {
				continue
			}
			live = true
			if e.canStep(t) {
				ready = append(ready, t)
			}
		}
		if !live {
			return nil
		}
		if len(ready) == 0 {
			e.deadlock()
		}
		e.step(ready[e.choose(len(ready))])
	}
}

// choose returns a choice in [0, n) from the strategy. Choices with a
// single alternative are not decision points.
func (e *execution) choose(n int) int {
	if n == 1 {
		return 0
	}
	x, ok := e.strat.Amb(n)
	if !ok {
		panic(amb.PathTerminated)
	}
	e.depth++
	return x
}

func (e *execution) record(t *thread, s Step) {
	s.Thread = t.id
	s.ThreadName = t.decl.name
	e.trace = append(e.trace, s)
}

// fail ends the branch with a failure attributed to t, or to no
// single thread if t is nil.
func (e *execution) fail(t *thread, kind FailureKind, msg string) {
	f := &Failure{
		Kind:     kind,
		Thread:   -1,
		Message:  msg,
		Trace:    e.trace,
		Schedule: e.strat.Path(),
	}
	if t != nil {
		f.Thread = t.id
		f.ThreadName = t.decl.name
	}
	panic(branchFailure{f})
}

// user calls a user-supplied function on behalf of t. A panic in it
// fails the branch like a failed assertion.
func (e *execution) user(t *thread, fn func()) {
	panicked := true
	var msg string
	func() {
		defer func() {
			if panicked {
				msg = fmt.Sprintf("panic: %v", recover())
			}
		}()
		fn()
		panicked = false
	}()
	if panicked {
		e.fail(t, AssertionFailed, msg)
	}
}

func (e *execution) load(t *thread, op *Op) {
	loc := e.locs[op.loc]
	n := t.clock.tick(t.id)
	floor := t.scFloor[op.loc]
	if op.order.seqCst() && loc.fenceFloor > floor {
		floor = loc.fenceFloor
	}
	cands := loc.legalReads(t.clock, floor)
	if op.order.seqCst() {
		cands = loc.seqCstReads(cands)
	}
	s := loc.stores[cands[e.choose(len(cands))]]
	s.markRead(t.id, n)
	sync := e.acquire(t, s, op.order)
	t.regs[op.reg] = s.value
	e.record(t, Step{
		Op:           fmt.Sprintf("%s = load %s %v", op.reg, loc.name, op.order),
		Value:        s.value,
		HasValue:     true,
		ReadsFrom:    s.step,
		Synchronized: sync,
	})
}

// acquire applies the synchronization of t reading s with order o.
// An acquiring read synchronizes with every release heading a
// sequence s belongs to; a relaxed read only remembers them for a
// later acquire fence.
func (e *execution) acquire(t *thread, s *store, o MemoryOrder) bool {
	if !s.synchronizes() {
		return false
	}
	if o.acquires() {
		s.syncInto(&t.clock)
		return true
	}
	s.syncInto(&t.acqPending)
	return false
}

// release makes the new store s carry t's release clock: its own if
// the write has release semantics, otherwise that of t's last release
// fence, if any.
func (e *execution) release(t *thread, s *store, o MemoryOrder) {
	switch {
	case o.releases():
		s.addRelease(t.id, t.clock)
	case t.relFence != nil:
		s.addRelease(t.id, t.relFence)
	}
}

func (e *execution) store(t *thread, op *Op) {
	loc := e.locs[op.loc]
	var v int64
	e.user(t, func() { v = op.val(t.regs) })
	n := t.clock.tick(t.id)
	s := &store{value: v, at: epoch{t.id, n}, order: op.order, step: len(e.trace)}
	e.release(t, s, op.order)
	s.continueFrom(loc.latest(), e.cfg.ReleaseSequence)
	loc.recordWrite(s)
	if op.order.seqCst() {
		loc.recordSeqCst(s, t.clock)
	}
	e.record(t, Step{
		Op:        fmt.Sprintf("store %s %v", loc.name, op.order),
		Value:     v,
		HasValue:  true,
		ReadsFrom: -1,
	})
}

// rmw performs a read-modify-write. It always reads the latest store
// in modification order, which is what makes it atomic.
func (e *execution) rmw(t *thread, op *Op) {
	loc := e.locs[op.loc]
	prev := loc.latest()
	var (
		v  int64
		ok bool
	)
	e.user(t, func() { v, ok = op.rmw(prev.value, t.regs) })
	order := op.order
	if !ok {
		order = op.fail
	}
	n := t.clock.tick(t.id)
	prev.markRead(t.id, n)
	sync := e.acquire(t, prev, order)
	step := Step{
		Op:           fmt.Sprintf("%s = %s %s %v", op.reg, op.name, loc.name, order),
		Value:        prev.value,
		HasValue:     true,
		ReadsFrom:    prev.step,
		Synchronized: sync,
	}
	if ok {
		s := &store{value: v, at: epoch{t.id, n}, order: order, rmw: true, step: len(e.trace)}
		e.release(t, s, order)
		s.continueFrom(prev, e.cfg.ReleaseSequence)
		loc.recordWrite(s)
		if order.seqCst() {
			loc.recordSeqCst(s, t.clock)
		}
		step.Op += fmt.Sprintf(" (wrote %d)", v)
	} else {
		step.Op += " (failed)"
	}
	t.regs[op.reg] = prev.value
	e.record(t, step)
}

func (e *execution) fence(t *thread, op *Op) {
	t.clock.tick(t.id)
	if op.order.acquires() {
		t.clock.join(t.acqPending)
	}
	if op.order.seqCst() {
		e.seqCstFence(t)
	}
	if op.order.releases() {
		t.relFence = t.clock.clone()
	}
	e.record(t, Step{Op: fmt.Sprintf("fence %v", op.order), ReadsFrom: -1, Synchronized: op.order.acquires()})
}

// seqCstFence orders t's SeqCst fence in the total order. Every store
// that happens before the fence is published to SeqCst fences and
// loads that follow it. In turn, t's later reads observe nothing older
// than what earlier SeqCst fences published or the latest SeqCst
// store.
func (e *execution) seqCstFence(t *thread) {
	for i, loc := range e.locs {
		if f := loc.hbFloor(t.clock); f > loc.fenceFloor {
			loc.fenceFloor = f
		}
		floor := loc.fenceFloor
		if loc.lastSC > floor {
			floor = loc.lastSC
		}
		if floor > t.scFloor[i] {
			t.scFloor[i] = floor
		}
	}
}

func (e *execution) lock(t *thread, op *Op) {
	t.clock.tick(t.id)
	e.locks.acquire(op.mutex, t.id, &t.clock)
	e.record(t, Step{Op: "lock " + e.p.mutexName(op.mutex), ReadsFrom: -1, Synchronized: true})
}

func (e *execution) unlock(t *thread, op *Op) {
	t.clock.tick(t.id)
	if !e.locks.release(op.mutex, t.id, t.clock) {
		owner := e.locks.owner(op.mutex)
		msg := fmt.Sprintf("unlock of mutex %s, which is not locked", e.p.mutexName(op.mutex))
		if owner != noOwner {
			msg = fmt.Sprintf("unlock of mutex %s, which is held by %s", e.p.mutexName(op.mutex), e.threads[owner])
		}
		e.record(t, Step{Op: "unlock " + e.p.mutexName(op.mutex), ReadsFrom: -1})
		e.fail(t, ProtocolMisuse, msg)
	}
	e.record(t, Step{Op: "unlock " + e.p.mutexName(op.mutex), ReadsFrom: -1})
}

func (e *execution) spawn(t *thread, op *Op) {
	child := e.threads[op.thread]
	t.clock.tick(t.id)
	e.record(t, Step{Op: "spawn " + child.decl.name, ReadsFrom: -1})
	if child.status != notStarted {
		e.fail(t, ProtocolMisuse, fmt.Sprintf("spawn of %v, which was already spawned", child))
	}
	e.start(child, t.clock)
}

func (e *execution) join(t *thread, op *Op) {
	child := e.threads[op.thread]
	t.clock.tick(t.id)
	t.clock.join(child.clock)
	desc := "join " + child.decl.name
	if op.reg != "" {
		t.regs[op.reg] = child.ret
		desc = op.reg + " = " + desc
	}
	e.record(t, Step{Op: desc, Value: child.ret, HasValue: op.reg != "", ReadsFrom: -1, Synchronized: true})
}

// deadlock fails the branch after no running thread could step.
func (e *execution) deadlock() {
	waitsFor := make(map[ThreadID]ThreadID)
	var blocked []string
	for _, t := range e.threads {
		if t.status != running {
			continue
		}
		op := t.next()
		switch op.kind {
		case opLock:
			owner := e.locks.owner(op.mutex)
			waitsFor[t.id] = owner
			blocked = append(blocked, fmt.Sprintf("%v waits for mutex %s held by %v", t, e.p.mutexName(op.mutex), e.threads[owner]))
		case opJoin:
			child := e.threads[op.thread]
			if child.status == notStarted {
				e.fail(t, ProtocolMisuse, fmt.Sprintf("join of %v, which is never spawned", child))
			}
			waitsFor[t.id] = child.id
			blocked = append(blocked, fmt.Sprintf("%v waits to join %v", t, child))
		}
	}
	msg := strings.Join(blocked, "; ")
	for _, t := range e.threads {
		if _, ok := waitsFor[t.id]; !ok {
			continue
		}
		if cycle := waitCycle(t.id, waitsFor); cycle != nil {
			msg += "; cycle " + formatCycle(e.p, cycle)
			break
		}
	}
	e.fail(nil, Deadlock, msg)
}
