// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Loc is a handle to an atomic location in a Program.
type Loc int

// Mutex is a handle to an exclusive lock in a Program.
type Mutex int

// Cell is a handle to a non-atomic memory cell in a Program.
// Concurrent unsynchronized accesses to a cell where at least one
// is a write are reported as a DataRace.
type Cell int

// ThreadID identifies a thread in a Program.
type ThreadID int

// ErrInvalidProgram marks errors returned for malformed program
// descriptions. It is attached with cockroachdb/errors.Mark, so match
// it with cockroachdb/errors.Is; the standard library's errors.Is does
// not see marks.
var ErrInvalidProgram = errors.New("invalid program")

// A Program is a finite, fixed set of threads, each running a
// bounded sequence of operations over shared atomic locations,
// mutexes and cells. A Program is only a description; it is never
// mutated by verification and may be verified any number of times.
type Program struct {
	atomics []varDecl
	cells   []varDecl
	mutexes []string
	threads []*threadDecl
}

type varDecl struct {
	name string
	init int64
}

type threadDecl struct {
	name  string
	ops   []Op
	child bool
}

// NewProgram returns an empty Program.
func NewProgram() *Program {
	return &Program{}
}

// Atomic declares an atomic location with initial value init.
func (p *Program) Atomic(name string, init int64) Loc {
	p.atomics = append(p.atomics, varDecl{name, init})
	return Loc(len(p.atomics) - 1)
}

// Cell declares a non-atomic cell with initial value init.
func (p *Program) Cell(name string, init int64) Cell {
	p.cells = append(p.cells, varDecl{name, init})
	return Cell(len(p.cells) - 1)
}

// Mutex declares an exclusive lock, initially unlocked.
func (p *Program) Mutex(name string) Mutex {
	p.mutexes = append(p.mutexes, name)
	return Mutex(len(p.mutexes) - 1)
}

// Thread declares a thread that starts when the program starts.
func (p *Program) Thread(name string, ops ...Op) ThreadID {
	return p.addThread(name, ops, false)
}

// Child declares a thread that starts when another thread Spawns it.
// The child inherits everything that happened before the spawn.
func (p *Program) Child(name string, ops ...Op) ThreadID {
	return p.addThread(name, ops, true)
}

func (p *Program) addThread(name string, ops []Op, child bool) ThreadID {
	p.threads = append(p.threads, &threadDecl{name: name, ops: flatten(ops), child: child})
	return ThreadID(len(p.threads) - 1)
}

// NumThreads returns the number of declared threads.
func (p *Program) NumThreads() int {
	return len(p.threads)
}

// ThreadName returns the name thread t was declared with.
func (p *Program) ThreadName(t ThreadID) string {
	if int(t) < 0 || int(t) >= len(p.threads) {
		return fmt.Sprintf("thread(%d)", int(t))
	}
	return p.threads[t].name
}

func (p *Program) threadByName(name string) (ThreadID, bool) {
	for i, t := range p.threads {
		if t.name == name {
			return ThreadID(i), true
		}
	}
	return 0, false
}

func (p *Program) locName(l Loc) string {
	if int(l) < 0 || int(l) >= len(p.atomics) {
		return fmt.Sprintf("loc(%d)", int(l))
	}
	return p.atomics[l].name
}

func (p *Program) cellName(c Cell) string {
	if int(c) < 0 || int(c) >= len(p.cells) {
		return fmt.Sprintf("cell(%d)", int(c))
	}
	return p.cells[c].name
}

func (p *Program) mutexName(m Mutex) string {
	if int(m) < 0 || int(m) >= len(p.mutexes) {
		return fmt.Sprintf("mutex(%d)", int(m))
	}
	return p.mutexes[m]
}

// Validate checks that every operation refers to declared objects,
// uses a memory order that is meaningful for it, and that every
// child thread is spawned exactly once. The returned error is marked
// with ErrInvalidProgram.
func (p *Program) Validate() error {
	var err error
	bad := func(t *threadDecl, i int, format string, args ...interface{}) {
		e := errors.Newf("thread %s op %d: %s", t.name, i, fmt.Sprintf(format, args...))
		err = errors.CombineErrors(err, e)
	}

	if len(p.threads) == 0 {
		err = errors.New("program has no threads")
	}
	spawns := make([]int, len(p.threads))
	for tid, t := range p.threads {
		for i, op := range t.ops {
			switch op.kind {
			case opLoad, opStore, opRMW:
				if int(op.loc) < 0 || int(op.loc) >= len(p.atomics) {
					bad(t, i, "undeclared atomic location %d", op.loc)
				}
			case opRead, opWrite:
				if int(op.cell) < 0 || int(op.cell) >= len(p.cells) {
					bad(t, i, "undeclared cell %d", op.cell)
				}
			case opLock, opUnlock:
				if int(op.mutex) < 0 || int(op.mutex) >= len(p.mutexes) {
					bad(t, i, "undeclared mutex %d", op.mutex)
				}
			case opSpawn, opJoin:
				if int(op.thread) < 0 || int(op.thread) >= len(p.threads) {
					bad(t, i, "undeclared thread %d", op.thread)
					continue
				}
				if op.thread == ThreadID(tid) {
					bad(t, i, "%s of the running thread", op.name)
				}
				if op.kind == opSpawn {
					if !p.threads[op.thread].child {
						bad(t, i, "spawn of %s, which starts with the program", p.threads[op.thread].name)
					}
					spawns[op.thread]++
				}
			}

			if !op.order.Valid() || !op.fail.Valid() {
				bad(t, i, "invalid memory order")
				continue
			}
			switch op.kind {
			case opLoad:
				if op.order == Release || op.order == AcqRel {
					bad(t, i, "load cannot have order %v", op.order)
				}
			case opStore:
				if op.order == Acquire || op.order == AcqRel {
					bad(t, i, "store cannot have order %v", op.order)
				}
			case opRMW:
				if op.fail == Release || op.fail == AcqRel {
					bad(t, i, "failure order cannot be %v", op.fail)
				}
				if op.rmw == nil {
					bad(t, i, "read-modify-write without a function")
				}
			case opFence:
				if op.order == Relaxed {
					bad(t, i, "relaxed fence")
				}
			}
			switch op.kind {
			case opStore, opWrite, opReturn:
				if op.val == nil {
					bad(t, i, "%s without a value", op.name)
				}
			case opAssert, opSkip:
				if op.cond == nil {
					bad(t, i, "%s without a condition", op.name)
				}
			case opCompute:
				if op.fn == nil {
					bad(t, i, "compute without a function")
				}
			}
		}
	}
	for tid, t := range p.threads {
		if t.child && spawns[tid] != 1 {
			err = errors.CombineErrors(err, errors.Newf("child thread %s is spawned %d times, want 1", t.name, spawns[tid]))
		}
	}
	if err != nil {
		return errors.Mark(err, ErrInvalidProgram)
	}
	return nil
}
