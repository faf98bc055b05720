// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"fmt"
	"time"
)

// Verdict is the overall outcome of a verification.
type Verdict uint8

const (
	// Pass means every branch of the bounded state space was
	// explored and completed without a failure.
	Pass Verdict = iota
	// Fail means at least one branch failed.
	Fail
	// Inconclusive means no failure was found but the search
	// stopped before covering the whole state space.
	Inconclusive
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Inconclusive:
		return "inconclusive"
	}
	return fmt.Sprintf("Verdict(%d)", uint8(v))
}

// FailureKind classifies a failing branch.
type FailureKind uint8

const (
	// AssertionFailed means an Assert evaluated false or a
	// user-supplied function panicked.
	AssertionFailed FailureKind = iota
	// Deadlock means no thread could make progress while some
	// thread had not finished.
	Deadlock
	// DataRace means two unsynchronized accesses to a Cell
	// conflicted.
	DataRace
	// ProtocolMisuse means the program used a primitive
	// incorrectly, such as unlocking a mutex it does not hold.
	ProtocolMisuse
)

func (k FailureKind) String() string {
	switch k {
	case AssertionFailed:
		return "assertion failed"
	case Deadlock:
		return "deadlock"
	case DataRace:
		return "data race"
	case ProtocolMisuse:
		return "protocol misuse"
	}
	return fmt.Sprintf("FailureKind(%d)", uint8(k))
}

// A Step is one operation executed in a branch.
type Step struct {
	Thread     ThreadID
	ThreadName string
	// Op describes the operation, e.g. "r = load flag Acquire".
	Op string
	// Value is the value loaded or stored, if HasValue.
	Value    int64
	HasValue bool
	// ReadsFrom is the index of the step whose write this step
	// observed, or -1 if it observed an initial value or did not
	// read an atomic location.
	ReadsFrom int
	// Synchronized reports whether this step acquired a release
	// (through an atomic, a mutex, a spawn or a join).
	Synchronized bool
}

// A Failure describes a failing branch.
type Failure struct {
	Kind FailureKind
	// Thread is the thread that failed, or -1 if the failure
	// involves several threads (a deadlock).
	Thread     ThreadID
	ThreadName string
	Message    string
	// Trace lists every operation of the branch up to the failure.
	Trace []Step
	// Schedule is the sequence of choices that leads to this
	// branch. Passing it to Replay reproduces the failure.
	Schedule []int
}

// Stats summarizes a search.
type Stats struct {
	// Paths is the number of branches explored.
	Paths     int
	Completed int
	Failed    int
	// Truncated is the number of branches cut off by the depth
	// budget.
	Truncated int
	// MaxDepth and MeanDepth describe the number of decision
	// points per branch.
	MaxDepth  int
	MeanDepth float64
	Elapsed   time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("%d paths (%d completed, %d failed, %d truncated), depth mean %.1f max %d, %v",
		s.Paths, s.Completed, s.Failed, s.Truncated, s.MeanDepth, s.MaxDepth, s.Elapsed.Round(time.Millisecond))
}

// Result is the outcome of Verify.
type Result struct {
	Verdict Verdict
	// Failure is the failing branch with the shortest trace, if
	// Verdict is Fail.
	Failure *Failure
	// Reason explains an Inconclusive verdict.
	Reason string
	Stats  Stats
}

func (r *Result) String() string {
	switch r.Verdict {
	case Fail:
		return fmt.Sprintf("%v: %v: %s", r.Verdict, r.Failure.Kind, r.Failure.Message)
	case Inconclusive:
		return fmt.Sprintf("%v: %s", r.Verdict, r.Reason)
	}
	return r.Verdict.String()
}
