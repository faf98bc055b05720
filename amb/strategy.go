// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package amb enumerates spaces of ambiguous values.
//
// A client computation calls Amb at each point where it must make a
// choice among n alternatives. A Strategy decides which alternative
// is taken on the current path and, when the path ends, which path
// is explored next. Together the Amb calls of a computation form a
// tree; deterministic strategies such as StrategyDFS walk every leaf
// of that tree exactly once.
package amb

import "errors"

// A Strategy describes how to explore a space of ambiguous values.
// Such a space can be viewed as a tree, where a call to Amb
// introduces a node with fan-out n and a call to Next terminates a
// path.
type Strategy interface {
	// Amb returns an "ambiguous" value in the range [0, n). If
	// the current path cannot be continued (for example, it's
	// reached a maximum depth), it returns 0, false.
	//
	// The first call to Amb after constructing a Strategy or
	// calling Next always starts at the root of the tree.
	//
	// Amb may panic with ErrNondeterminism if it detects that the
	// application is behaving non-deterministically (for example,
	// when replaying a previously explored path, the value of n
	// is different from when Amb was called during a previous
	// exploration of this path). This is best-effort and some
	// strategies may not be able to detect this.
	Amb(n int) (int, bool)

	// Next terminates the current path. If there are no more
	// paths to explore, Next returns false. A Strategy is not
	// required to ever return false (for example, a randomized
	// strategy may not know that it's explored the entire space).
	Next() bool

	// Reset resets the state of this Strategy to the point where
	// no paths have been explored.
	Reset()

	// Path returns the choices made so far on the current path.
	// Feeding them to StrategyReplay reproduces the path.
	Path() []int

	// Exhaustive reports whether Next returning false means
	// that every path in the tree has been visited.
	Exhaustive() bool
}

// DefaultMaxDepth is the default maximum tree depth if it is
// unspecified.
var DefaultMaxDepth = 1000

// PathTerminated is returned by callers that abandon a path because
// the Strategy refused to extend it.
var PathTerminated = errors.New("path terminated")

// ErrNondeterminism is the error used by deterministic strategies to
// indicate that the strategy detected that the application behaved
// non-deterministically.
type ErrNondeterminism struct {
	Detail string
}

func (e *ErrNondeterminism) Error() string {
	return "non-determinism detected: " + e.Detail
}
