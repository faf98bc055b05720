// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command weave model checks litmus tests.
//
// weave explores every schedule of a small concurrent program and
// every value each atomic load may observe under a C11-style weak
// memory model, and reports whether the program can fail an
// assertion, deadlock, race on a plain memory cell or misuse a
// mutex.
//
// Each argument is either a YAML litmus test file (see package
// litmus for the format) or the name of a built-in test. With no
// arguments, weave checks every built-in test. weave exits with
// status 1 if any test's verdict differs from the one the test
// expects, and 2 if a test cannot be loaded.
//
//
// Output
//
// For each test, weave prints the verdict and the number of paths
// explored. A failing test is followed by the failure, the ordered
// trace of operations that leads to it and the schedule that
// reproduces it.
//
// With -outcomes, weave also prints the final values of each test's
// observed registers, both for the program as written and with every
// atomic operation promoted to SeqCst. Rows marked with "*" are
// outcomes only the weak memory model allows.
//
// With -dot, weave writes the execution graph of the first failure
// to a file, with program order, reads-from and synchronizes-with
// edges.
//
//
// Environment
//
// WEAVEFLAGS holds flags that are processed before those on the
// command line, quoted as in a shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"github.com/aclements/go-weave/litmus"
	"github.com/aclements/go-weave/weave"
	"github.com/cockroachdb/errors"
	"github.com/kballard/go-shellquote"
	"github.com/lmittmann/tint"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [test.yaml|name...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	var r Runner
	flag.BoolVar(&r.Config.FailFast, "fail-fast", false, "stop each test at its first failure")
	flag.Var(FlagLimit{&r.Config.MaxPaths}, "max-paths", "explore at most `N` paths per test")
	flag.Var(FlagLimit{&r.Config.MaxDepth}, "max-depth", "cut off paths after `N` decisions")
	flag.BoolVar(&r.Config.Random, "random", false, "explore paths in random order (never passes)")
	flag.Int64Var(&r.Config.Seed, "seed", 1, "random search `seed`")
	flag.BoolVar(&r.Options.ForceSeqCst, "sc", false, "make every atomic operation SeqCst")
	flag.BoolVar(&r.Outcomes, "outcomes", false, "print observed outcomes as written and with SeqCst atomics")
	flag.IntVar(&r.Parallelism, "j", runtime.NumCPU(), "check `N` tests in parallel")
	flagDot := flag.String("dot", "", "write the first failure's execution graph to `file`")
	flagList := flag.Bool("list", false, "list the built-in tests and exit")
	flagV := flag.Bool("v", false, "log search details")

	args, err := envFlags("WEAVEFLAGS")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	flag.CommandLine.Parse(append(args, os.Args[1:]...))
	if r.Parallelism <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	rep, isTerm := NewStdoutReporter()
	level := slog.LevelWarn
	if *flagV {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(rep, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    !isTerm,
		}),
	))

	if *flagList {
		tests, err := litmus.Catalog()
		if err != nil {
			slog.Error("loading catalog", "err", err)
			os.Exit(2)
		}
		for _, t := range tests {
			fmt.Printf("%-32s %s\n", t.Name, firstLine(t.Doc))
		}
		return
	}

	tests, err := loadTests(flag.Args())
	if err != nil {
		slog.Error("loading tests", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), exitSignals...)
	defer stop()

	rep.StartStatus()
	results := r.Run(ctx, tests, rep)
	rep.StopStatus()

	status := 0
	var dotDone bool
	for _, res := range results {
		if err := res.Print(rep); err != nil {
			slog.Error("writing results", "err", err)
			os.Exit(2)
		}
		switch {
		case res.Err != nil:
			status = 2
		case !res.OK() && status == 0:
			status = 1
		}
		if *flagDot != "" && !dotDone && res.Result != nil && res.Result.Failure != nil {
			if err := writeDot(*flagDot, res.Result.Failure); err != nil {
				slog.Error("writing execution graph", "err", err)
				status = 2
			}
			dotDone = true
		}
	}
	os.Exit(status)
}

// loadTests resolves command line arguments to tests. An argument
// naming an existing file is loaded from it; anything else must be
// the name of a built-in test.
func loadTests(args []string) ([]*litmus.Test, error) {
	if len(args) == 0 {
		return litmus.Catalog()
	}
	var tests []*litmus.Test
	var err error
	for _, arg := range args {
		var t *litmus.Test
		var err1 error
		if _, statErr := os.Stat(arg); statErr == nil || strings.HasSuffix(arg, ".yaml") {
			t, err1 = litmus.LoadFile(arg)
		} else {
			t, err1 = litmus.Lookup(arg)
		}
		if err1 != nil {
			err = errors.CombineErrors(err, err1)
			continue
		}
		tests = append(tests, t)
	}
	return tests, err
}

func writeDot(path string, f *weave.Failure) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.WriteDot(out); err != nil {
		out.Close()
		return errors.Wrapf(err, "%s", path)
	}
	return out.Close()
}

// envFlags splits the shell-quoted flags in environment variable
// name.
func envFlags(name string) ([]string, error) {
	v := os.Getenv(name)
	if v == "" {
		return nil, nil
	}
	args, err := shellquote.Split(v)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing $%s", name)
	}
	return args, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// FlagLimit is a flag.Value for a positive limit where 0 selects
// the default.
type FlagLimit struct {
	x *int
}

func (f FlagLimit) String() string {
	if f.x == nil || *f.x <= 0 {
		// The flag package uses the zero value of FlagLimit
		// to test the default string.
		return "default"
	}
	return strconv.FormatInt(int64(*f.x), 10)
}

func (f FlagLimit) Set(x string) error {
	if x == "default" {
		*f.x = 0
		return nil
	}
	limit, err := strconv.ParseInt(x, 10, 0)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return errors.New("limit must be > 0")
	}
	*f.x = int(limit)
	return nil
}
