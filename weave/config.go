// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"io"
	"log/slog"

	"github.com/aclements/go-weave/amb"
)

// DefaultMaxPaths is the default branch budget of a verification.
const DefaultMaxPaths = 1 << 20

// progressInterval is the number of branches between calls to
// Config.Progress.
const progressInterval = 1024

// Config controls a verification. The zero Config performs an
// exhaustive depth-first search with the default budgets.
type Config struct {
	// MaxPaths bounds the number of branches explored. If this
	// is 0, it defaults to DefaultMaxPaths. Running out of
	// branches before the search is complete makes the verdict
	// Inconclusive.
	MaxPaths int

	// MaxDepth bounds the number of decision points on a single
	// branch. If this is 0, it defaults to amb.DefaultMaxDepth.
	// Branches cut off by this bound make the verdict
	// Inconclusive.
	MaxDepth int

	// FailFast stops the search at the first failing branch.
	// Otherwise the whole space is searched and the failure
	// with the shortest trace is reported.
	FailFast bool

	// ReleaseSequence selects which writes continue a release
	// sequence.
	ReleaseSequence ReleaseSequenceMode

	// Random explores branches in random order using Seed
	// instead of depth-first. A random search can find failures
	// but never yields Pass.
	Random bool
	Seed   int64

	// Logger receives debug and summary logging. If nil,
	// nothing is logged.
	Logger *slog.Logger

	// Progress, if non-nil, is called periodically during the
	// search with the statistics so far.
	Progress func(Stats)
}

func (c *Config) maxPaths() int {
	if c.MaxPaths <= 0 {
		return DefaultMaxPaths
	}
	return c.MaxPaths
}

func (c *Config) strategy() amb.Strategy {
	if c.Random {
		return &amb.StrategyRandom{MaxDepth: c.MaxDepth, Seed: c.Seed}
	}
	return &amb.StrategyDFS{MaxDepth: c.MaxDepth}
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}
