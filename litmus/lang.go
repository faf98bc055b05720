// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package litmus

import (
	"strconv"
	"strings"

	"github.com/aclements/go-weave/weave"
	"github.com/cockroachdb/errors"
)

// A compiler translates thread code into weave operations. It
// resolves names against the objects declared by the test.
type compiler struct {
	opts    Options
	atomics map[string]weave.Loc
	cells   map[string]weave.Cell
	mutexes map[string]weave.Mutex
	threads map[string]weave.ThreadID
}

// A block is an "if" or "repeat" whose "end" has not been reached.
type block struct {
	line int
	kind string
	cond func(weave.Regs) bool
	n    int
	ops  []weave.Op
}

// compile translates the code of one thread. Each line is one
// statement; "#" starts a comment.
func (c *compiler) compile(code string) ([]weave.Op, error) {
	stack := []*block{{kind: "thread"}}
	for i, line := range strings.Split(code, "\n") {
		lineno := i + 1
		if j := strings.IndexByte(line, '#'); j >= 0 {
			line = line[:j]
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		top := stack[len(stack)-1]
		switch f[0] {
		case "if":
			cond, err := parseCond(strings.Join(f[1:], " "))
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineno)
			}
			stack = append(stack, &block{line: lineno, kind: "if", cond: cond})
			continue
		case "repeat":
			if len(f) != 2 {
				return nil, errors.Newf("line %d: want repeat N", lineno)
			}
			n, err := strconv.Atoi(f[1])
			if err != nil || n < 0 {
				return nil, errors.Newf("line %d: bad repeat count %q", lineno, f[1])
			}
			stack = append(stack, &block{line: lineno, kind: "repeat", n: n})
			continue
		case "end":
			if len(f) != 1 || len(stack) == 1 {
				return nil, errors.Newf("line %d: unexpected end", lineno)
			}
			stack = stack[:len(stack)-1]
			parent := stack[len(stack)-1]
			if top.kind == "if" {
				parent.ops = append(parent.ops, weave.If(top.cond, top.ops...))
			} else {
				parent.ops = append(parent.ops, weave.Repeat(top.n, top.ops...))
			}
			continue
		}
		op, err := c.statement(f)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineno)
		}
		top.ops = append(top.ops, op)
	}
	if len(stack) > 1 {
		top := stack[len(stack)-1]
		return nil, errors.Newf("line %d: %s without end", top.line, top.kind)
	}
	return stack[0].ops, nil
}

// statement translates one statement, already split into fields.
func (c *compiler) statement(f []string) (weave.Op, error) {
	if len(f) >= 3 && f[1] == "=" {
		reg := f[0]
		if !isIdent(reg) {
			return weave.Op{}, errors.Newf("bad register name %q", reg)
		}
		return c.assignment(reg, f[2:])
	}

	switch f[0] {
	case "store":
		// store LOC EXPR ORDER
		if len(f) < 4 {
			return weave.Op{}, errors.New("want store LOC VALUE ORDER")
		}
		loc, err := c.atomic(f[1])
		if err != nil {
			return weave.Op{}, err
		}
		val, err := parseExpr(strings.Join(f[2:len(f)-1], " "))
		if err != nil {
			return weave.Op{}, err
		}
		o, err := c.order(f[len(f)-1])
		if err != nil {
			return weave.Op{}, err
		}
		return weave.StoreExpr(loc, val, o), nil

	case "fence":
		if len(f) != 2 {
			return weave.Op{}, errors.New("want fence ORDER")
		}
		o, err := c.order(f[1])
		if err != nil {
			return weave.Op{}, err
		}
		return weave.Fence(o), nil

	case "lock", "unlock":
		if len(f) != 2 {
			return weave.Op{}, errors.Newf("want %s MUTEX", f[0])
		}
		m, ok := c.mutexes[f[1]]
		if !ok {
			return weave.Op{}, errors.Newf("undeclared mutex %q", f[1])
		}
		if f[0] == "lock" {
			return weave.Lock(m), nil
		}
		return weave.Unlock(m), nil

	case "write":
		// write CELL EXPR
		if len(f) < 3 {
			return weave.Op{}, errors.New("want write CELL VALUE")
		}
		cell, ok := c.cells[f[1]]
		if !ok {
			return weave.Op{}, errors.Newf("undeclared cell %q", f[1])
		}
		val, err := parseExpr(strings.Join(f[2:], " "))
		if err != nil {
			return weave.Op{}, err
		}
		return weave.WriteExpr(cell, val), nil

	case "assert":
		desc := strings.Join(f[1:], " ")
		cond, err := parseCond(desc)
		if err != nil {
			return weave.Op{}, err
		}
		return weave.Assert(desc, cond), nil

	case "spawn":
		if len(f) != 2 {
			return weave.Op{}, errors.New("want spawn THREAD")
		}
		t, err := c.thread(f[1])
		if err != nil {
			return weave.Op{}, err
		}
		return weave.Spawn(t), nil

	case "join":
		if len(f) != 2 {
			return weave.Op{}, errors.New("want join THREAD")
		}
		t, err := c.thread(f[1])
		if err != nil {
			return weave.Op{}, err
		}
		return weave.Join("", t), nil

	case "return":
		val, err := parseExpr(strings.Join(f[1:], " "))
		if err != nil {
			return weave.Op{}, err
		}
		return weave.Return(val), nil
	}
	return weave.Op{}, errors.Newf("unknown statement %q", strings.Join(f, " "))
}

// assignment translates "reg = ...".
func (c *compiler) assignment(reg string, rhs []string) (weave.Op, error) {
	switch rhs[0] {
	case "load":
		// reg = load LOC ORDER
		if len(rhs) != 3 {
			return weave.Op{}, errors.New("want REG = load LOC ORDER")
		}
		loc, err := c.atomic(rhs[1])
		if err != nil {
			return weave.Op{}, err
		}
		o, err := c.order(rhs[2])
		if err != nil {
			return weave.Op{}, err
		}
		return weave.Load(reg, loc, o), nil

	case "fetch_add", "fetch_sub", "swap":
		// reg = fetch_add LOC EXPR ORDER
		if len(rhs) < 4 {
			return weave.Op{}, errors.Newf("want REG = %s LOC VALUE ORDER", rhs[0])
		}
		loc, err := c.atomic(rhs[1])
		if err != nil {
			return weave.Op{}, err
		}
		src := strings.Join(rhs[2:len(rhs)-1], " ")
		val, err := parseExpr(src)
		if err != nil {
			return weave.Op{}, err
		}
		o, err := c.order(rhs[len(rhs)-1])
		if err != nil {
			return weave.Op{}, err
		}
		kind := rhs[0]
		return weave.RMW(reg, loc, kind+" "+src, func(old int64, r weave.Regs) (int64, bool) {
			switch kind {
			case "fetch_add":
				return old + val(r), true
			case "fetch_sub":
				return old - val(r), true
			}
			return val(r), true
		}, o, o.LoadOrder()), nil

	case "cas":
		// reg = cas LOC OLD NEW SUCCESS [FAILURE]
		if len(rhs) != 5 && len(rhs) != 6 {
			return weave.Op{}, errors.New("want REG = cas LOC OLD NEW SUCCESS [FAILURE]")
		}
		loc, err := c.atomic(rhs[1])
		if err != nil {
			return weave.Op{}, err
		}
		expect, err := parseExpr(rhs[2])
		if err != nil {
			return weave.Op{}, err
		}
		desired, err := parseExpr(rhs[3])
		if err != nil {
			return weave.Op{}, err
		}
		success, err := c.order(rhs[4])
		if err != nil {
			return weave.Op{}, err
		}
		failure := success.LoadOrder()
		if len(rhs) == 6 {
			if failure, err = c.order(rhs[5]); err != nil {
				return weave.Op{}, err
			}
		}
		return weave.RMW(reg, loc, "cas "+rhs[2]+"->"+rhs[3], func(cur int64, r weave.Regs) (int64, bool) {
			return desired(r), cur == expect(r)
		}, success, failure), nil

	case "read":
		if len(rhs) != 2 {
			return weave.Op{}, errors.New("want REG = read CELL")
		}
		cell, ok := c.cells[rhs[1]]
		if !ok {
			return weave.Op{}, errors.Newf("undeclared cell %q", rhs[1])
		}
		return weave.Read(reg, cell), nil

	case "join":
		if len(rhs) != 2 {
			return weave.Op{}, errors.New("want REG = join THREAD")
		}
		t, err := c.thread(rhs[1])
		if err != nil {
			return weave.Op{}, err
		}
		return weave.Join(reg, t), nil
	}

	src := strings.Join(rhs, " ")
	val, err := parseExpr(src)
	if err != nil {
		return weave.Op{}, err
	}
	return weave.Compute(reg+" = "+src, func(r weave.Regs) { r[reg] = val(r) }), nil
}

func (c *compiler) atomic(name string) (weave.Loc, error) {
	loc, ok := c.atomics[name]
	if !ok {
		return 0, errors.Newf("undeclared atomic %q", name)
	}
	return loc, nil
}

func (c *compiler) thread(name string) (weave.ThreadID, error) {
	t, ok := c.threads[name]
	if !ok {
		return 0, errors.Newf("undeclared thread %q", name)
	}
	return t, nil
}

// order parses a memory order. With Options.ForceSeqCst, every valid
// order becomes SeqCst.
func (c *compiler) order(s string) (weave.MemoryOrder, error) {
	o, ok := weave.ParseMemoryOrder(s)
	if !ok {
		return 0, errors.Newf("unknown memory order %q", s)
	}
	if c.opts.ForceSeqCst {
		return weave.SeqCst, nil
	}
	return o, nil
}
