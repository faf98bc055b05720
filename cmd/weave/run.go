// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aclements/go-weave/litmus"
	"github.com/aclements/go-weave/weave"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// A Runner checks a set of litmus tests in parallel.
type Runner struct {
	// Config is the base search configuration of every test.
	Config weave.Config
	// Options control how tests are built.
	Options litmus.Options
	// Outcomes also collects each test's observed outcomes, both
	// as built and with every atomic promoted to SeqCst.
	Outcomes bool
	// Parallelism is the number of tests checked at once.
	Parallelism int
}

// A TestResult is the result of checking one test.
type TestResult struct {
	Test *litmus.Test
	// Err is set if the test could not be built.
	Err    error
	Result *weave.Result
	// Written and SeqCst are the test's outcomes as built and
	// with SeqCst atomics, if Runner.Outcomes is set and the test
	// observes any registers.
	Written, SeqCst *weave.OutcomeSet
	// Mismatch describes how Result differs from what Test
	// expects, if it does.
	Mismatch error
}

// OK reports whether the test built and produced its expected
// verdict.
func (r *TestResult) OK() bool {
	return r.Err == nil && r.Mismatch == nil
}

// progress tracks the status line across concurrently checked tests.
type progress struct {
	mu    sync.Mutex
	rep   Reporter
	total int
	done  int
	paths map[string]int
}

func (p *progress) update(name string, paths int, finished bool) {
	p.mu.Lock()
	p.paths[name] = paths
	if finished {
		p.done++
	}
	sum := 0
	for _, n := range p.paths {
		sum += n
	}
	msg := fmt.Sprintf("%d/%d tests, %d paths", p.done, p.total, sum)
	p.mu.Unlock()
	p.rep.Status("%s", msg)
}

// Run checks tests and returns their results in the same order.
func (r *Runner) Run(ctx context.Context, tests []*litmus.Test, rep Reporter) []*TestResult {
	results := make([]*TestResult, len(tests))
	prog := &progress{rep: rep, total: len(tests), paths: make(map[string]int)}

	g, gCtx := errgroup.WithContext(ctx)
	if r.Parallelism > 0 {
		g.SetLimit(r.Parallelism)
	}
	for i, test := range tests {
		i, test := i, test
		g.Go(func() error {
			cfg := test.Config(r.Config)
			base := cfg.Logger
			if base == nil {
				base = slog.Default()
			}
			cfg.Logger = base.With("test", test.Name)
			cfg.Progress = func(s weave.Stats) { prog.update(test.Name, s.Paths, false) }
			results[i] = r.check(gCtx, test, cfg)
			paths := 0
			if res := results[i].Result; res != nil {
				paths = res.Stats.Paths
			}
			prog.update(test.Name, paths, true)
			return nil
		})
	}
	// Each test records its own error; nothing is returned here.
	_ = g.Wait()
	return results
}

func (r *Runner) check(ctx context.Context, test *litmus.Test, cfg weave.Config) *TestResult {
	tr := &TestResult{Test: test}
	p, err := test.Build(r.Options)
	if err != nil {
		tr.Err = err
		return tr
	}
	if r.Outcomes && len(test.Observe) > 0 {
		tr.Written, tr.Result, err = weave.Outcomes(ctx, p, cfg, test.Observe...)
		if err == nil {
			var sc *weave.Program
			opts := r.Options
			opts.ForceSeqCst = true
			if sc, err = test.Build(opts); err == nil {
				tr.SeqCst, _, err = weave.Outcomes(ctx, sc, cfg, test.Observe...)
			}
		}
	} else {
		tr.Result, err = weave.Verify(ctx, p, cfg)
	}
	if err != nil {
		tr.Err = errors.Wrapf(err, "%s", test)
		return tr
	}
	tr.Mismatch = test.Check(tr.Result)
	return tr
}

// Print writes r to w: a verdict line, the failure report if the
// test failed, and the outcome table if outcomes were collected.
func (r *TestResult) Print(w io.Writer) error {
	if r.Err != nil {
		_, err := fmt.Fprintf(w, "ERROR %s: %v\n", r.Test, r.Err)
		return err
	}
	mark := "ok   "
	if r.Mismatch != nil {
		mark = "BAD  "
	}
	if _, err := fmt.Fprintf(w, "%s%-32s %v (%d paths)\n", mark, r.Test.Name, r.Result, r.Result.Stats.Paths); err != nil {
		return err
	}
	if r.Mismatch != nil {
		if _, err := fmt.Fprintf(w, "     want %s", r.Test.Expect); err != nil {
			return err
		}
		if r.Test.Failure != "" {
			fmt.Fprintf(w, " (%s)", r.Test.Failure)
		}
		fmt.Fprintln(w)
	}
	if f := r.Result.Failure; f != nil {
		var buf indentWriter
		buf.w = w
		if err := f.Report(&buf); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	if r.Written != nil && r.SeqCst != nil {
		return weave.PrintOutcomeTable(&indentWriter{w: w}, []string{"written", "sc"}, []*weave.OutcomeSet{r.Written, r.SeqCst})
	}
	return nil
}

// indentWriter indents every line written to w.
type indentWriter struct {
	w       io.Writer
	midLine bool
}

func (iw *indentWriter) Write(data []byte) (int, error) {
	n := 0
	for len(data) > 0 {
		if !iw.midLine {
			if _, err := io.WriteString(iw.w, "     "); err != nil {
				return n, err
			}
			iw.midLine = true
		}
		end := len(data)
		for i, c := range data {
			if c == '\n' {
				end = i + 1
				iw.midLine = false
				break
			}
		}
		m, err := iw.w.Write(data[:end])
		n += m
		if err != nil {
			return n, err
		}
		data = data[end:]
	}
	return n, nil
}
