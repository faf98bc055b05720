// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aclements/go-moremath/stats"
	"github.com/aclements/go-weave/amb"
	"github.com/cockroachdb/errors"
)

// Verify explores every branch of p within cfg's budgets and returns
// the verdict. The returned error is non-nil only if p is not a
// valid program; failures found in p are reported in the Result.
//
// Every branch is rebuilt from the Program, so nothing observed on
// one branch can leak into another. Verify is single-threaded and
// deterministic: the same p and cfg always explore the same branches
// in the same order.
func Verify(ctx context.Context, p *Program, cfg Config) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	x := newExplorer(p, &cfg, cfg.strategy())
	return x.explore(ctx), nil
}

// Replay re-runs the single branch of p selected by schedule, as
// recorded in Failure.Schedule. It returns the branch's failure, or
// nil if the branch completes. If schedule does not describe a
// branch of p, the failure is a ProtocolMisuse.
func Replay(ctx context.Context, p *Program, cfg Config, schedule []int) (*Failure, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	strat := &amb.StrategyReplay{Choices: schedule}
	x := newExplorer(p, &cfg, strat)
	e, f, _ := x.runPath()
	if f == nil && !strat.Consumed() {
		f = &Failure{
			Kind:     ProtocolMisuse,
			Thread:   -1,
			Message:  fmt.Sprintf("branch completed after %d of %d scheduled choices", len(strat.Path()), len(schedule)),
			Trace:    e.trace,
			Schedule: strat.Path(),
		}
	}
	return f, nil
}

// Outcomes explores p like Verify and collects the final values of
// regs over every branch that completed. Each register is named
// "thread.reg". Branches that fail contribute no outcome.
func Outcomes(ctx context.Context, p *Program, cfg Config, regs ...string) (*OutcomeSet, *Result, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	type ref struct {
		t   ThreadID
		reg string
	}
	var refs []ref
	var err error
	for _, name := range regs {
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			err = errors.CombineErrors(err, errors.Newf("register %q is not of the form thread.reg", name))
			continue
		}
		t, ok := p.threadByName(name[:i])
		if !ok {
			err = errors.CombineErrors(err, errors.Newf("register %q names unknown thread %q", name, name[:i]))
			continue
		}
		refs = append(refs, ref{t, name[i+1:]})
	}
	if err != nil {
		return nil, nil, errors.Mark(err, ErrInvalidProgram)
	}

	set := NewOutcomeSet(regs)
	x := newExplorer(p, &cfg, cfg.strategy())
	x.onComplete = func(e *execution) {
		o := make(Outcome, len(refs))
		for i, r := range refs {
			o[i] = e.threads[r.t].regs.Get(r.reg)
		}
		set.Add(o)
	}
	return set, x.explore(ctx), nil
}

type explorer struct {
	p     *Program
	cfg   *Config
	log   *slog.Logger
	strat amb.Strategy

	// onComplete, if non-nil, is called with every branch that
	// completes without a failure.
	onComplete func(*execution)

	stats   Stats
	depth   stats.StreamStats
	failure *Failure
}

func newExplorer(p *Program, cfg *Config, strat amb.Strategy) *explorer {
	return &explorer{p: p, cfg: cfg, log: cfg.logger(), strat: strat}
}

// runPath runs one branch to its end under x.strat. It returns the
// branch's execution, its failure if any, and whether the strategy
// cut it off.
func (x *explorer) runPath() (e *execution, f *Failure, truncated bool) {
	e = newExecution(x.p, x.cfg, x.strat)
	func() {
		defer func() {
			err := recover()
			switch err := err.(type) {
			case nil:
			case error:
				var nd *amb.ErrNondeterminism
				switch {
				case errors.Is(err, amb.PathTerminated):
					truncated = true
				case errors.As(err, &nd):
					f = &Failure{
						Kind:     ProtocolMisuse,
						Thread:   -1,
						Message:  nd.Error(),
						Trace:    e.trace,
						Schedule: x.strat.Path(),
					}
				default:
					panic(err)
				}
			default:
				panic(err)
			}
		}()
		f = e.run()
	}()

	x.stats.Paths++
	x.depth.Add(float64(e.depth))
	switch {
	case f != nil:
		x.stats.Failed++
	case truncated:
		x.stats.Truncated++
	default:
		x.stats.Completed++
		if x.onComplete != nil {
			x.onComplete(e)
		}
	}
	return e, f, truncated
}

func (x *explorer) explore(ctx context.Context) *Result {
	start := time.Now()
	maxPaths := x.cfg.maxPaths()
	x.log.Debug("exploring", "threads", len(x.p.threads), "max-paths", maxPaths,
		"release-sequence", x.cfg.ReleaseSequence, "random", x.cfg.Random)

	var reason string
	for {
		_, f, _ := x.runPath()
		if f != nil {
			x.log.Debug("failing branch", "kind", f.Kind, "thread", f.ThreadName,
				"message", f.Message, "steps", len(f.Trace), "schedule", f.Schedule)
			if x.failure == nil || len(f.Trace) < len(x.failure.Trace) {
				x.failure = f
			}
			if x.cfg.FailFast {
				break
			}
		}
		if x.cfg.Progress != nil && x.stats.Paths%progressInterval == 0 {
			x.cfg.Progress(x.summary(start))
		}
		if !x.strat.Next() {
			if !x.strat.Exhaustive() {
				reason = "search strategy is not exhaustive"
			}
			break
		}
		if x.stats.Paths >= maxPaths {
			reason = fmt.Sprintf("path budget of %d exhausted", maxPaths)
			break
		}
		if err := ctx.Err(); err != nil {
			reason = fmt.Sprintf("search stopped: %v", err)
			break
		}
	}

	res := &Result{Stats: x.summary(start)}
	switch {
	case x.failure != nil:
		res.Verdict = Fail
		res.Failure = x.failure
	case reason != "":
		res.Verdict = Inconclusive
		res.Reason = reason
	case x.stats.Truncated > 0:
		res.Verdict = Inconclusive
		res.Reason = fmt.Sprintf("%d branches exceeded the depth budget", x.stats.Truncated)
	default:
		res.Verdict = Pass
	}
	x.log.Info("verified", "verdict", res.Verdict, "paths", res.Stats.Paths,
		"failed", res.Stats.Failed, "truncated", res.Stats.Truncated,
		"elapsed", res.Stats.Elapsed)
	return res
}

func (x *explorer) summary(start time.Time) Stats {
	s := x.stats
	if x.depth.Count > 0 {
		s.MeanDepth = x.depth.Mean()
		s.MaxDepth = int(x.depth.Max)
	}
	s.Elapsed = time.Since(start)
	return s
}
