// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amb

import "fmt"

// StrategyReplay follows a single, previously recorded path, such as
// one returned by another Strategy's Path method. Choices past the
// end of the recorded path are 0.
type StrategyReplay struct {
	Choices []int

	step int
}

func (s *StrategyReplay) Reset() {
	s.step = 0
}

func (s *StrategyReplay) Amb(n int) (int, bool) {
	x := 0
	if s.step < len(s.Choices) {
		x = s.Choices[s.step]
		if x < 0 || x >= n {
			panic(&ErrNondeterminism{fmt.Sprintf("replayed choice %d at step %d is outside Amb(%d)", x, s.step, n)})
		}
	}
	s.step++
	return x, true
}

func (s *StrategyReplay) Next() bool {
	s.step = 0
	return false
}

func (s *StrategyReplay) Path() []int {
	path := make([]int, s.step)
	copy(path, s.Choices)
	return path
}

func (s *StrategyReplay) Exhaustive() bool {
	return false
}

// Consumed reports whether every recorded choice was used by the
// current path.
func (s *StrategyReplay) Consumed() bool {
	return s.step >= len(s.Choices)
}
