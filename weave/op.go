// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"fmt"
	"sort"
	"strings"
)

// Regs holds a thread's local registers. Every operation that
// produces a value stores it into a named register; registers that
// were never written read as 0.
type Regs map[string]int64

// Get returns the value of register name, or 0 if it is unset.
func (r Regs) Get(name string) int64 {
	return r[name]
}

func (r Regs) String() string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, r[name])
	}
	return strings.Join(parts, " ")
}

// An Expr computes a value from a thread's registers.
type Expr func(Regs) int64

// Const returns an Expr that always yields v.
func Const(v int64) Expr {
	return func(Regs) int64 { return v }
}

// Reg returns an Expr that yields the value of register name.
func Reg(name string) Expr {
	return func(r Regs) int64 { return r[name] }
}

type opKind uint8

const (
	// Shared operations. Each one is preceded by a scheduling
	// decision.
	opLoad opKind = iota
	opStore
	opRMW
	opFence
	opLock
	opUnlock
	opSpawn
	opJoin

	// Local operations. These run as part of the step that
	// reaches them and never give up control.
	opRead
	opWrite
	opAssert
	opCompute
	opReturn
	opSkip

	// Structured operations. These only exist while building a
	// Program and are flattened by Program.Thread.
	opIf
	opBlock
)

func (k opKind) shared() bool {
	return k < opRead
}

// An Op is a single operation in a thread's program. Ops are built
// with the constructor functions in this package (Load, Store,
// Lock, Assert, ...); the zero Op is not valid.
type Op struct {
	kind   opKind
	order  MemoryOrder
	fail   MemoryOrder
	loc    Loc
	mutex  Mutex
	cell   Cell
	thread ThreadID
	reg    string
	val    Expr
	rmw    func(old int64, r Regs) (int64, bool)
	name   string
	cond   func(Regs) bool
	fn     func(Regs)
	skip   int
	body   []Op
}

// Load atomically loads loc with order o into register reg.
func Load(reg string, loc Loc, o MemoryOrder) Op {
	return Op{kind: opLoad, reg: reg, loc: loc, order: o, name: "load"}
}

// Store atomically stores v to loc with order o.
func Store(loc Loc, v int64, o MemoryOrder) Op {
	return Op{kind: opStore, loc: loc, val: Const(v), order: o, name: "store"}
}

// StoreExpr atomically stores the value of e to loc with order o.
func StoreExpr(loc Loc, e Expr, o MemoryOrder) Op {
	return Op{kind: opStore, loc: loc, val: e, order: o, name: "store"}
}

// RMW performs an atomic read-modify-write of loc. fn receives the
// current value and the thread's registers and returns the value to
// write and whether to write it at all. If it writes, the operation
// has memory order success; otherwise it is a load with memory order
// failure. The old value is stored into reg.
func RMW(reg string, loc Loc, name string, fn func(old int64, r Regs) (new int64, ok bool), success, failure MemoryOrder) Op {
	return Op{kind: opRMW, reg: reg, loc: loc, rmw: fn, name: name, order: success, fail: failure}
}

// FetchAdd atomically adds delta to loc and stores the old value
// into reg.
func FetchAdd(reg string, loc Loc, delta int64, o MemoryOrder) Op {
	return RMW(reg, loc, fmt.Sprintf("fetch_add %d", delta), func(old int64, _ Regs) (int64, bool) {
		return old + delta, true
	}, o, o.LoadOrder())
}

// Swap atomically replaces loc with v and stores the old value into
// reg.
func Swap(reg string, loc Loc, v int64, o MemoryOrder) Op {
	return RMW(reg, loc, fmt.Sprintf("swap %d", v), func(int64, Regs) (int64, bool) {
		return v, true
	}, o, o.LoadOrder())
}

// CompareAndSwap atomically replaces loc with new if it holds old.
// The value observed is stored into reg, so the swap succeeded iff
// reg == old afterwards.
func CompareAndSwap(reg string, loc Loc, old, new int64, success, failure MemoryOrder) Op {
	return RMW(reg, loc, fmt.Sprintf("cas %d->%d", old, new), func(cur int64, _ Regs) (int64, bool) {
		return new, cur == old
	}, success, failure)
}

// Fence is a memory fence with order o. A Relaxed fence is invalid.
func Fence(o MemoryOrder) Op {
	return Op{kind: opFence, order: o, name: "fence"}
}

// Lock acquires m, blocking while another thread holds it.
func Lock(m Mutex) Op {
	return Op{kind: opLock, mutex: m, name: "lock"}
}

// Unlock releases m. Releasing a mutex the thread does not hold is
// a ProtocolMisuse failure.
func Unlock(m Mutex) Op {
	return Op{kind: opUnlock, mutex: m, name: "unlock"}
}

// WithLock runs ops while holding m. The mutex is released after
// the last op; a failure inside ops ends the branch, so the guard
// never leaks into another branch.
func WithLock(m Mutex, ops ...Op) Op {
	body := make([]Op, 0, len(ops)+2)
	body = append(body, Lock(m))
	body = append(body, ops...)
	body = append(body, Unlock(m))
	return Op{kind: opBlock, body: body}
}

// Read reads non-atomic cell c into register reg.
func Read(reg string, c Cell) Op {
	return Op{kind: opRead, reg: reg, cell: c, name: "read"}
}

// Write writes v to non-atomic cell c.
func Write(c Cell, v int64) Op {
	return Op{kind: opWrite, cell: c, val: Const(v), name: "write"}
}

// WriteExpr writes the value of e to non-atomic cell c.
func WriteExpr(c Cell, e Expr) Op {
	return Op{kind: opWrite, cell: c, val: e, name: "write"}
}

// Assert checks that pred holds for the thread's registers. If it
// does not, the branch fails with AssertionFailed and message desc.
func Assert(desc string, pred func(Regs) bool) Op {
	return Op{kind: opAssert, cond: pred, name: desc}
}

// Compute runs fn on the thread's registers. fn must be
// deterministic and must not touch state outside its registers.
func Compute(desc string, fn func(Regs)) Op {
	return Op{kind: opCompute, fn: fn, name: desc}
}

// If runs ops only if cond holds when it is reached.
func If(cond func(Regs) bool, ops ...Op) Op {
	return Op{kind: opIf, cond: cond, body: ops}
}

// Repeat runs ops n times. This is the only looping construct:
// every thread runs a bounded number of operations.
func Repeat(n int, ops ...Op) Op {
	body := make([]Op, 0, n*len(ops))
	for i := 0; i < n; i++ {
		body = append(body, ops...)
	}
	return Op{kind: opBlock, body: body}
}

// Spawn starts child thread t. t must have been created with
// Program.Child and may be spawned only once.
func Spawn(t ThreadID) Op {
	return Op{kind: opSpawn, thread: t, name: "spawn"}
}

// Join waits for thread t to finish and stores its return value into
// reg. reg may be "" to discard it.
func Join(reg string, t ThreadID) Op {
	return Op{kind: opJoin, reg: reg, thread: t, name: "join"}
}

// Return ends the thread with the value of e as its result.
func Return(e Expr) Op {
	return Op{kind: opReturn, val: e, name: "return"}
}

// flatten expands structured operations into a straight-line
// program. An If becomes an opSkip over its flattened body.
func flatten(ops []Op) []Op {
	var out []Op
	for _, op := range ops {
		switch op.kind {
		case opBlock:
			out = append(out, flatten(op.body)...)
		case opIf:
			body := flatten(op.body)
			out = append(out, Op{kind: opSkip, cond: op.cond, skip: len(body), name: "if"})
			out = append(out, body...)
		default:
			out = append(out, op)
		}
	}
	return out
}
