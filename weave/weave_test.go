// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aclements/go-weave/weave"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func eq(reg string, v int64) func(weave.Regs) bool {
	return func(r weave.Regs) bool { return r.Get(reg) == v }
}

func verify(t *testing.T, p *weave.Program, cfg weave.Config) *weave.Result {
	t.Helper()
	res, err := weave.Verify(context.Background(), p, cfg)
	require.NoError(t, err)
	return res
}

func requirePass(t *testing.T, res *weave.Result) {
	t.Helper()
	require.Equal(t, weave.Pass, res.Verdict, "%v", res)
	require.Nil(t, res.Failure)
	require.Equal(t, res.Stats.Paths, res.Stats.Completed)
}

func requireFail(t *testing.T, res *weave.Result, kind weave.FailureKind) *weave.Failure {
	t.Helper()
	require.Equal(t, weave.Fail, res.Verdict, "%v", res)
	require.NotNil(t, res.Failure)
	require.Equal(t, kind, res.Failure.Kind, "%v", res.Failure)
	require.GreaterOrEqual(t, res.Stats.Failed, 1)
	return res.Failure
}

// messagePassing publishes data through flag, storing flag with
// order flagStore and loading it with flagLoad.
func messagePassing(flagStore, flagLoad weave.MemoryOrder) *weave.Program {
	p := weave.NewProgram()
	data := p.Atomic("data", 0)
	flag := p.Atomic("flag", 0)
	p.Thread("producer",
		weave.Store(data, 42, weave.Relaxed),
		weave.Store(flag, 1, flagStore))
	p.Thread("consumer",
		weave.Load("f", flag, flagLoad),
		weave.If(eq("f", 1),
			weave.Load("d", data, weave.Relaxed),
			weave.Assert("data is published", eq("d", 42))))
	return p
}

func TestMessagePassing(t *testing.T) {
	res := verify(t, messagePassing(weave.Release, weave.Acquire), weave.Config{})
	requirePass(t, res)
	require.Greater(t, res.Stats.Paths, 1)

	res = verify(t, messagePassing(weave.SeqCst, weave.SeqCst), weave.Config{})
	requirePass(t, res)
}

func TestMessagePassingRelaxed(t *testing.T) {
	for _, orders := range [][2]weave.MemoryOrder{
		{weave.Relaxed, weave.Acquire},
		{weave.Release, weave.Relaxed},
		{weave.Relaxed, weave.Relaxed},
	} {
		res := verify(t, messagePassing(orders[0], orders[1]), weave.Config{})
		f := requireFail(t, res, weave.AssertionFailed)
		require.Equal(t, "data is published", f.Message)
		require.Equal(t, "consumer", f.ThreadName)
	}
}

func TestMessagePassingMixedOrders(t *testing.T) {
	for _, orders := range [][2]weave.MemoryOrder{
		{weave.SeqCst, weave.Acquire},
		{weave.Release, weave.SeqCst},
	} {
		requirePass(t, verify(t, messagePassing(orders[0], orders[1]), weave.Config{}))
	}
	// SeqCst on one side does not stand in for the missing
	// release or acquire on the other.
	for _, orders := range [][2]weave.MemoryOrder{
		{weave.SeqCst, weave.Relaxed},
		{weave.Relaxed, weave.SeqCst},
	} {
		res := verify(t, messagePassing(orders[0], orders[1]), weave.Config{})
		f := requireFail(t, res, weave.AssertionFailed)
		require.Equal(t, "data is published", f.Message)
	}
}

func TestFenceMessagePassing(t *testing.T) {
	build := func(fences bool) *weave.Program {
		p := weave.NewProgram()
		data := p.Atomic("data", 0)
		flag := p.Atomic("flag", 0)
		rel := []weave.Op{weave.Store(data, 42, weave.Relaxed)}
		if fences {
			rel = append(rel, weave.Fence(weave.Release))
		}
		rel = append(rel, weave.Store(flag, 1, weave.Relaxed))
		p.Thread("producer", rel...)
		acq := []weave.Op{}
		if fences {
			acq = append(acq, weave.Fence(weave.Acquire))
		}
		acq = append(acq,
			weave.Load("d", data, weave.Relaxed),
			weave.Assert("data is published", eq("d", 42)))
		p.Thread("consumer",
			weave.Load("f", flag, weave.Relaxed),
			weave.If(eq("f", 1), acq...))
		return p
	}
	requirePass(t, verify(t, build(true), weave.Config{}))
	requireFail(t, verify(t, build(false), weave.Config{}), weave.AssertionFailed)
}

// releaseSequence is A: store(data,1,Relaxed); store(flag,1,Release);
// store(flag,1,Relaxed) and B: if load(flag,Acquire) { assert
// load(data,Relaxed)==1 }.
func releaseSequence() *weave.Program {
	p := weave.NewProgram()
	data := p.Atomic("data", 0)
	flag := p.Atomic("flag", 0)
	p.Thread("A",
		weave.Store(data, 1, weave.Relaxed),
		weave.Store(flag, 1, weave.Release),
		weave.Store(flag, 1, weave.Relaxed))
	p.Thread("B",
		weave.Load("f", flag, weave.Acquire),
		weave.If(eq("f", 1),
			weave.Load("d", data, weave.Relaxed),
			weave.Assert("data is visible", eq("d", 1))))
	return p
}

func TestReleaseSequenceWeakening(t *testing.T) {
	res := verify(t, releaseSequence(), weave.Config{})
	f := requireFail(t, res, weave.AssertionFailed)
	require.Equal(t, "B", f.ThreadName)

	// The failing trace reads flag from the relaxed store, which
	// does not synchronize.
	var sawUnsyncFlag bool
	for _, s := range f.Trace {
		if s.ThreadName == "B" && s.Op == "f = load flag Acquire" {
			require.False(t, s.Synchronized)
			require.GreaterOrEqual(t, s.ReadsFrom, 0)
			require.Equal(t, "store flag Relaxed", f.Trace[s.ReadsFrom].Op)
			sawUnsyncFlag = true
		}
	}
	require.True(t, sawUnsyncFlag)
}

func TestReleaseSequenceSameThread(t *testing.T) {
	res := verify(t, releaseSequence(), weave.Config{ReleaseSequence: weave.ReleaseSequenceSameThread})
	requirePass(t, res)
}

func TestReleaseSequenceRMW(t *testing.T) {
	p := weave.NewProgram()
	data := p.Atomic("data", 0)
	flag := p.Atomic("flag", 0)
	p.Thread("A",
		weave.Store(data, 1, weave.Relaxed),
		weave.Store(flag, 1, weave.Release))
	p.Thread("C", weave.FetchAdd("old", flag, 1, weave.Relaxed))
	p.Thread("B",
		weave.Load("f", flag, weave.Acquire),
		weave.If(eq("f", 2),
			weave.Load("d", data, weave.Relaxed),
			weave.Assert("data is visible", eq("d", 1))))
	requirePass(t, verify(t, p, weave.Config{}))
}

func storeBuffering(o weave.MemoryOrder) *weave.Program {
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	y := p.Atomic("y", 0)
	p.Thread("T0", weave.Store(x, 1, o), weave.Load("a", y, o))
	p.Thread("T1", weave.Store(y, 1, o), weave.Load("b", x, o))
	return p
}

func TestStoreBuffering(t *testing.T) {
	ctx := context.Background()
	regs := []string{"T0.a", "T1.b"}

	rlx, res, err := weave.Outcomes(ctx, storeBuffering(weave.Relaxed), weave.Config{}, regs...)
	require.NoError(t, err)
	requirePass(t, res)
	require.True(t, rlx.Has(weave.Outcome{0, 0}))
	require.Equal(t, 4, rlx.Len())

	sc, res, err := weave.Outcomes(ctx, storeBuffering(weave.SeqCst), weave.Config{}, regs...)
	require.NoError(t, err)
	requirePass(t, res)
	require.False(t, sc.Has(weave.Outcome{0, 0}))
	require.Equal(t, 3, sc.Len())
	require.True(t, rlx.Contains(sc))
	require.False(t, sc.Contains(rlx))
}

func TestStoreBufferingAssertion(t *testing.T) {
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	y := p.Atomic("y", 0)
	t1 := p.Child("T1", weave.Store(y, 1, weave.Relaxed), weave.Load("b", x, weave.Relaxed), weave.Return(weave.Reg("b")))
	p.Thread("T0",
		weave.Spawn(t1),
		weave.Store(x, 1, weave.Relaxed),
		weave.Load("a", y, weave.Relaxed),
		weave.Join("b", t1),
		weave.Assert("not both zero", func(r weave.Regs) bool { return r.Get("a") != 0 || r.Get("b") != 0 }))
	f := requireFail(t, verify(t, p, weave.Config{}), weave.AssertionFailed)
	require.Equal(t, "not both zero", f.Message)
}

// mixedStoreBuffering is store buffering with separate orders for
// the stores and the loads. A fence order other than Relaxed puts a
// fence between each thread's store and load.
func mixedStoreBuffering(store, load, fence weave.MemoryOrder) *weave.Program {
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	y := p.Atomic("y", 0)
	thread := func(name string, mine, theirs weave.Loc, reg string) {
		ops := []weave.Op{weave.Store(mine, 1, store)}
		if fence != weave.Relaxed {
			ops = append(ops, weave.Fence(fence))
		}
		ops = append(ops, weave.Load(reg, theirs, load))
		p.Thread(name, ops...)
	}
	thread("T0", x, y, "a")
	thread("T1", y, x, "b")
	return p
}

func TestStoreBufferingMixedOrders(t *testing.T) {
	ctx := context.Background()
	regs := []string{"T0.a", "T1.b"}
	all := []weave.Outcome{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	for _, tc := range []struct {
		store, load, fence weave.MemoryOrder
		want               []weave.Outcome
	}{
		// A SeqCst access only orders against other SeqCst
		// accesses, so one relaxed side lets both loads miss.
		{weave.SeqCst, weave.Relaxed, weave.Relaxed, all},
		{weave.Relaxed, weave.SeqCst, weave.Relaxed, all},
		{weave.SeqCst, weave.Acquire, weave.Relaxed, all},
		{weave.Release, weave.SeqCst, weave.Relaxed, all},
		{weave.Release, weave.Acquire, weave.AcqRel, all},
		{weave.SeqCst, weave.SeqCst, weave.Relaxed, all[1:]},
		{weave.Relaxed, weave.Relaxed, weave.SeqCst, all[1:]},
		{weave.Release, weave.Acquire, weave.SeqCst, all[1:]},
	} {
		name := fmt.Sprintf("store=%v/load=%v/fence=%v", tc.store, tc.load, tc.fence)
		t.Run(name, func(t *testing.T) {
			set, res, err := weave.Outcomes(ctx, mixedStoreBuffering(tc.store, tc.load, tc.fence), weave.Config{}, regs...)
			require.NoError(t, err)
			requirePass(t, res)
			require.Equal(t, tc.want, set.Outcomes(), "outcomes:\n%v", set)
		})
	}
}

func TestStoreBufferingMixedAssertion(t *testing.T) {
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	y := p.Atomic("y", 0)
	t1 := p.Child("T1", weave.Store(y, 1, weave.SeqCst), weave.Load("b", x, weave.Relaxed), weave.Return(weave.Reg("b")))
	p.Thread("T0",
		weave.Spawn(t1),
		weave.Store(x, 1, weave.SeqCst),
		weave.Load("a", y, weave.Relaxed),
		weave.Join("b", t1),
		weave.Assert("not both zero", func(r weave.Regs) bool { return r.Get("a") != 0 || r.Get("b") != 0 }))
	f := requireFail(t, verify(t, p, weave.Config{}), weave.AssertionFailed)
	require.Equal(t, "not both zero", f.Message)
}

func iriw(o weave.MemoryOrder) *weave.Program {
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	y := p.Atomic("y", 0)
	store, load := o, o
	if o == weave.AcqRel {
		store, load = weave.Release, weave.Acquire
	}
	p.Thread("W0", weave.Store(x, 1, store))
	p.Thread("W1", weave.Store(y, 1, store))
	p.Thread("R0", weave.Load("a", x, load), weave.Load("b", y, load))
	p.Thread("R1", weave.Load("c", y, load), weave.Load("d", x, load))
	return p
}

func TestIRIW(t *testing.T) {
	ctx := context.Background()
	regs := []string{"R0.a", "R0.b", "R1.c", "R1.d"}
	disagree := weave.Outcome{1, 0, 1, 0}

	set, res, err := weave.Outcomes(ctx, iriw(weave.AcqRel), weave.Config{}, regs...)
	require.NoError(t, err)
	requirePass(t, res)
	require.True(t, set.Has(disagree), "outcomes:\n%v", set)

	set, res, err = weave.Outcomes(ctx, iriw(weave.SeqCst), weave.Config{}, regs...)
	require.NoError(t, err)
	requirePass(t, res)
	require.False(t, set.Has(disagree), "outcomes:\n%v", set)
	require.True(t, set.Has(weave.Outcome{1, 1, 1, 1}))
}

func TestIRIWMixedOrders(t *testing.T) {
	ctx := context.Background()
	regs := []string{"R0.a", "R0.b", "R1.c", "R1.d"}
	disagree := weave.Outcome{1, 0, 1, 0}
	for _, tc := range []struct {
		store, load weave.MemoryOrder
		allowed     bool
	}{
		{weave.SeqCst, weave.Acquire, true},
		{weave.Release, weave.SeqCst, true},
		{weave.Relaxed, weave.SeqCst, true},
		{weave.SeqCst, weave.SeqCst, false},
	} {
		p := weave.NewProgram()
		x := p.Atomic("x", 0)
		y := p.Atomic("y", 0)
		p.Thread("W0", weave.Store(x, 1, tc.store))
		p.Thread("W1", weave.Store(y, 1, tc.store))
		p.Thread("R0", weave.Load("a", x, tc.load), weave.Load("b", y, tc.load))
		p.Thread("R1", weave.Load("c", y, tc.load), weave.Load("d", x, tc.load))
		set, res, err := weave.Outcomes(ctx, p, weave.Config{}, regs...)
		require.NoError(t, err)
		requirePass(t, res)
		require.Equal(t, tc.allowed, set.Has(disagree), "store %v load %v outcomes:\n%v", tc.store, tc.load, set)
		require.True(t, set.Has(weave.Outcome{1, 1, 1, 1}))
		require.True(t, set.Has(weave.Outcome{0, 0, 0, 0}))
	}
}

func TestOutcomesUnknownRegister(t *testing.T) {
	_, _, err := weave.Outcomes(context.Background(), storeBuffering(weave.Relaxed), weave.Config{}, "T9.a", "nodot")
	require.Error(t, err)
	require.True(t, errors.Is(err, weave.ErrInvalidProgram), "%v", err)
}

func TestDeadlock(t *testing.T) {
	p := weave.NewProgram()
	a := p.Mutex("a")
	b := p.Mutex("b")
	p.Thread("T0", weave.Lock(a), weave.Lock(b), weave.Unlock(b), weave.Unlock(a))
	p.Thread("T1", weave.Lock(b), weave.Lock(a), weave.Unlock(a), weave.Unlock(b))
	f := requireFail(t, verify(t, p, weave.Config{}), weave.Deadlock)
	require.Equal(t, weave.ThreadID(-1), f.Thread)
	require.Contains(t, f.Message, "cycle")

	// Acquiring in the same order cannot deadlock.
	p = weave.NewProgram()
	a = p.Mutex("a")
	b = p.Mutex("b")
	p.Thread("T0", weave.WithLock(a, weave.WithLock(b)))
	p.Thread("T1", weave.WithLock(a, weave.WithLock(b)))
	requirePass(t, verify(t, p, weave.Config{}))
}

func TestMutualExclusion(t *testing.T) {
	p := weave.NewProgram()
	m := p.Mutex("m")
	inside := p.Atomic("inside", 0)
	body := weave.WithLock(m,
		weave.FetchAdd("n", inside, 1, weave.Relaxed),
		weave.Assert("alone in critical section", eq("n", 0)),
		weave.FetchAdd("", inside, -1, weave.Relaxed))
	for _, name := range []string{"T0", "T1", "T2"} {
		p.Thread(name, body)
	}
	requirePass(t, verify(t, p, weave.Config{}))
}

// counter increments a shared counter from two spawned threads and
// checks the total after joining them.
func counter(inc func(x weave.Loc) []weave.Op) *weave.Program {
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	c0 := p.Child("inc0", inc(x)...)
	c1 := p.Child("inc1", inc(x)...)
	p.Thread("main",
		weave.Spawn(c0),
		weave.Spawn(c1),
		weave.Join("", c0),
		weave.Join("", c1),
		weave.Load("x", x, weave.Relaxed),
		weave.Assert("x == 2", eq("x", 2)))
	return p
}

func TestRacyIncrement(t *testing.T) {
	p := counter(func(x weave.Loc) []weave.Op {
		return []weave.Op{
			weave.Load("v", x, weave.SeqCst),
			weave.StoreExpr(x, func(r weave.Regs) int64 { return r.Get("v") + 1 }, weave.SeqCst),
		}
	})
	f := requireFail(t, verify(t, p, weave.Config{}), weave.AssertionFailed)
	require.Equal(t, "main", f.ThreadName)
}

func TestFetchAddIncrement(t *testing.T) {
	p := counter(func(x weave.Loc) []weave.Op {
		return []weave.Op{weave.FetchAdd("v", x, 1, weave.Relaxed)}
	})
	requirePass(t, verify(t, p, weave.Config{}))
}

func TestCompareAndSwapLoop(t *testing.T) {
	p := counter(func(x weave.Loc) []weave.Op {
		attempt := []weave.Op{
			weave.Load("v", x, weave.Relaxed),
			weave.RMW("old", x, "cas v->v+1", func(old int64, r weave.Regs) (int64, bool) {
				return r.Get("v") + 1, old == r.Get("v")
			}, weave.AcqRel, weave.Relaxed),
			weave.Compute("done = old == v", func(r weave.Regs) {
				if r.Get("old") == r.Get("v") {
					r["done"] = 1
				}
			}),
		}
		// Two attempts suffice: the only competing increment
		// can make the first one fail at most once.
		return append(attempt, weave.If(eq("done", 0), attempt...))
	})
	requirePass(t, verify(t, p, weave.Config{}))
}

func TestCompareAndSwapFailure(t *testing.T) {
	p := weave.NewProgram()
	x := p.Atomic("x", 5)
	p.Thread("T0",
		weave.CompareAndSwap("old", x, 0, 1, weave.SeqCst, weave.Relaxed),
		weave.Assert("cas observed 5", eq("old", 5)),
		weave.Load("now", x, weave.Relaxed),
		weave.Assert("failed cas wrote nothing", eq("now", 5)))
	requirePass(t, verify(t, p, weave.Config{}))
}

func TestMutexProtectedCell(t *testing.T) {
	p := weave.NewProgram()
	m := p.Mutex("m")
	c := p.Cell("count", 0)
	inc := weave.WithLock(m,
		weave.Read("v", c),
		weave.WriteExpr(c, func(r weave.Regs) int64 { return r.Get("v") + 1 }))
	c0 := p.Child("inc0", inc)
	c1 := p.Child("inc1", inc)
	p.Thread("main",
		weave.Spawn(c0),
		weave.Spawn(c1),
		weave.Join("", c0),
		weave.Join("", c1),
		weave.Read("n", c),
		weave.Assert("count == 2", eq("n", 2)))
	requirePass(t, verify(t, p, weave.Config{}))
}

func TestDataRace(t *testing.T) {
	p := weave.NewProgram()
	c := p.Cell("c", 0)
	p.Thread("T0", weave.Write(c, 1))
	p.Thread("T1", weave.Read("v", c))
	f := requireFail(t, verify(t, p, weave.Config{}), weave.DataRace)
	require.Contains(t, f.Message, "races with")

	// Publishing the cell through a release/acquire pair orders
	// the accesses.
	p = weave.NewProgram()
	c = p.Cell("c", 0)
	flag := p.Atomic("flag", 0)
	p.Thread("T0", weave.Write(c, 1), weave.Store(flag, 1, weave.Release))
	p.Thread("T1",
		weave.Load("f", flag, weave.Acquire),
		weave.If(eq("f", 1), weave.Read("v", c), weave.Assert("v == 1", eq("v", 1))))
	requirePass(t, verify(t, p, weave.Config{}))
}

func TestProtocolMisuse(t *testing.T) {
	t.Run("unlock not held", func(t *testing.T) {
		p := weave.NewProgram()
		m := p.Mutex("m")
		p.Thread("T0", weave.Unlock(m))
		f := requireFail(t, verify(t, p, weave.Config{}), weave.ProtocolMisuse)
		require.Contains(t, f.Message, "not locked")
	})
	t.Run("unlock held by another", func(t *testing.T) {
		p := weave.NewProgram()
		m := p.Mutex("m")
		flag := p.Atomic("flag", 0)
		p.Thread("T0", weave.WithLock(m,
			weave.Store(flag, 1, weave.Release),
			weave.Load("x", flag, weave.Relaxed)))
		p.Thread("T1", weave.Load("f", flag, weave.Acquire), weave.If(eq("f", 1), weave.Unlock(m)))
		f := requireFail(t, verify(t, p, weave.Config{}), weave.ProtocolMisuse)
		require.Equal(t, "T1", f.ThreadName)
		require.Contains(t, f.Message, "held by")
	})
	t.Run("exit holding lock", func(t *testing.T) {
		p := weave.NewProgram()
		m := p.Mutex("m")
		p.Thread("T0", weave.Lock(m))
		f := requireFail(t, verify(t, p, weave.Config{}), weave.ProtocolMisuse)
		require.Contains(t, f.Message, "holding mutex m")
	})
	t.Run("join never spawned", func(t *testing.T) {
		p := weave.NewProgram()
		x := p.Atomic("x", 0)
		child := p.Child("child")
		p.Thread("main",
			weave.Load("r", x, weave.Relaxed),
			weave.If(eq("r", 1), weave.Spawn(child)),
			weave.Join("", child))
		f := requireFail(t, verify(t, p, weave.Config{}), weave.ProtocolMisuse)
		require.Contains(t, f.Message, "never spawned")
	})
}

func TestUserPanic(t *testing.T) {
	p := weave.NewProgram()
	p.Thread("T0", weave.Compute("boom", func(weave.Regs) { panic("boom") }))
	f := requireFail(t, verify(t, p, weave.Config{}), weave.AssertionFailed)
	require.Contains(t, f.Message, "boom")
}

func TestValidate(t *testing.T) {
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	orphan := p.Child("orphan")
	p.Thread("T0",
		weave.Load("r", x, weave.Release),
		weave.Store(x, 1, weave.Acquire),
		weave.Fence(weave.Relaxed),
		weave.Load("r", weave.Loc(7), weave.Relaxed),
		weave.Join("", orphan))
	_, err := weave.Verify(context.Background(), p, weave.Config{})
	require.Error(t, err)
	require.True(t, errors.Is(err, weave.ErrInvalidProgram), "%v", err)
	require.Contains(t, err.Error(), "load cannot have order Release")
	// The mark survives wrapping by callers.
	require.True(t, errors.Is(errors.Wrap(err, "loading model"), weave.ErrInvalidProgram))

	_, err = weave.Verify(context.Background(), weave.NewProgram(), weave.Config{})
	require.True(t, errors.Is(err, weave.ErrInvalidProgram), "%v", err)
}

func TestBudgets(t *testing.T) {
	res := verify(t, storeBuffering(weave.Relaxed), weave.Config{MaxPaths: 1})
	require.Equal(t, weave.Inconclusive, res.Verdict)
	require.Contains(t, res.Reason, "path budget")
	require.Equal(t, 1, res.Stats.Paths)

	res = verify(t, storeBuffering(weave.Relaxed), weave.Config{MaxDepth: 1})
	require.Equal(t, weave.Inconclusive, res.Verdict)
	require.Greater(t, res.Stats.Truncated, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := weave.Verify(ctx, storeBuffering(weave.Relaxed), weave.Config{})
	require.NoError(t, err)
	require.Equal(t, weave.Inconclusive, res.Verdict)
	require.Contains(t, res.Reason, "canceled")

	// A failure outweighs an incomplete search.
	res = verify(t, releaseSequence(), weave.Config{MaxPaths: 1 << 10, MaxDepth: 1})
	require.NotEqual(t, weave.Pass, res.Verdict)
}

func TestDepthStats(t *testing.T) {
	// T0 first: the load then picks between two stores, depth 2 on
	// both branches. T1 first: the load sees only the initial value,
	// depth 1.
	p := weave.NewProgram()
	x := p.Atomic("x", 0)
	p.Thread("T0", weave.Store(x, 1, weave.Relaxed))
	p.Thread("T1", weave.Load("a", x, weave.Relaxed))
	res := verify(t, p, weave.Config{})
	requirePass(t, res)
	require.Equal(t, 3, res.Stats.Paths)
	require.Equal(t, 2, res.Stats.MaxDepth)
	require.InDelta(t, 5.0/3, res.Stats.MeanDepth, 1e-9)

	// A lone thread never chooses.
	p = weave.NewProgram()
	p.Thread("T0", weave.Store(p.Atomic("x", 0), 1, weave.Relaxed))
	res = verify(t, p, weave.Config{})
	requirePass(t, res)
	require.Equal(t, 1, res.Stats.Paths)
	require.Equal(t, 0, res.Stats.MaxDepth)
	require.Zero(t, res.Stats.MeanDepth)
}

func TestRandom(t *testing.T) {
	res := verify(t, messagePassing(weave.Release, weave.Acquire), weave.Config{Random: true, MaxPaths: 50, Seed: 1})
	require.Equal(t, weave.Inconclusive, res.Verdict)
	require.Equal(t, 50, res.Stats.Paths)

	res = verify(t, messagePassing(weave.Relaxed, weave.Relaxed), weave.Config{Random: true, MaxPaths: 1000, Seed: 1, FailFast: true})
	requireFail(t, res, weave.AssertionFailed)
}

func TestFailFast(t *testing.T) {
	p := counter(func(x weave.Loc) []weave.Op {
		return []weave.Op{
			weave.Load("v", x, weave.Relaxed),
			weave.StoreExpr(x, func(r weave.Regs) int64 { return r.Get("v") + 1 }, weave.Relaxed),
		}
	})
	res := verify(t, p, weave.Config{FailFast: true})
	requireFail(t, res, weave.AssertionFailed)
	require.Equal(t, 1, res.Stats.Failed)

	all := verify(t, p, weave.Config{})
	requireFail(t, all, weave.AssertionFailed)
	require.Greater(t, all.Stats.Failed, 1)
	require.Greater(t, all.Stats.Paths, res.Stats.Paths)
	require.LessOrEqual(t, len(all.Failure.Trace), len(res.Failure.Trace))
}

func TestDeterministicReplay(t *testing.T) {
	ctx := context.Background()
	p := releaseSequence()
	first := verify(t, p, weave.Config{})
	second := verify(t, p, weave.Config{})
	require.Equal(t, first.Verdict, second.Verdict)
	require.Equal(t, first.Failure.Trace, second.Failure.Trace)
	require.Equal(t, first.Failure.Schedule, second.Failure.Schedule)

	f, err := weave.Replay(ctx, p, weave.Config{}, first.Failure.Schedule)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, first.Failure.Kind, f.Kind)
	require.Equal(t, first.Failure.Message, f.Message)
	require.Equal(t, first.Failure.Trace, f.Trace)

	// A schedule that does not fit the program is a misuse.
	f, err = weave.Replay(ctx, p, weave.Config{}, []int{99})
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, weave.ProtocolMisuse, f.Kind)
}
