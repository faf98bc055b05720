// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package litmus describes small concurrent programs ("litmus
// tests") in a textual form and builds them into weave programs.
//
// A test is a YAML document:
//
//	name: mp
//	expect: pass
//	atomics: {data: 0, flag: 0}
//	threads:
//	  - name: producer
//	    code: |
//	      store data 42 rlx
//	      store flag 1 rel
//	  - name: consumer
//	    code: |
//	      f = load flag acq
//	      if f == 1
//	        d = load data rlx
//	        assert d == 42
//	      end
//	observe: [consumer.f]
//
// Thread code has one statement per line:
//
//	store LOC EXPR ORDER
//	REG = load LOC ORDER
//	REG = fetch_add LOC EXPR ORDER    (also fetch_sub and swap)
//	REG = cas LOC OLD NEW ORDER [FAILURE-ORDER]
//	fence ORDER
//	lock MUTEX / unlock MUTEX
//	REG = read CELL / write CELL EXPR
//	REG = EXPR
//	assert COND
//	if COND ... end / repeat N ... end
//	spawn THREAD / [REG =] join THREAD
//	return EXPR
//
// ORDER is one of relaxed, release, acquire, acq_rel, seq_cst or
// their short forms rlx, rel, acq, acq_rel, sc. Expressions combine
// registers and integers with + - *; conditions compare expressions
// and combine comparisons with ! && ||.
package litmus

import (
	"fmt"
	"os"
	"sort"

	"github.com/aclements/go-weave/weave"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// A Test is a litmus test: a program and the verdict it is expected
// to produce.
type Test struct {
	Name string `yaml:"name"`
	Doc  string `yaml:"doc,omitempty"`

	// Expect is the expected verdict: pass, fail or
	// inconclusive.
	Expect string `yaml:"expect"`
	// Failure, if set, is the expected kind of failure:
	// assertion, deadlock, data-race or misuse.
	Failure string `yaml:"failure,omitempty"`

	// ReleaseSequence selects the release sequence rule: rmw
	// (the default) or same-thread.
	ReleaseSequence string `yaml:"release-sequence,omitempty"`

	Atomics map[string]int64 `yaml:"atomics,omitempty"`
	Cells   map[string]int64 `yaml:"cells,omitempty"`
	Mutexes []string         `yaml:"mutexes,omitempty"`
	Threads []Thread         `yaml:"threads"`

	// Observe lists the registers, as "thread.reg", whose final
	// values make up the test's outcomes.
	Observe []string `yaml:"observe,omitempty"`

	// Path is the file the test was loaded from, if any.
	Path string `yaml:"-"`
}

// A Thread is one thread of a Test.
type Thread struct {
	Name string `yaml:"name"`
	// Spawned threads do not start with the program; another
	// thread must spawn them.
	Spawned bool   `yaml:"spawned,omitempty"`
	Code    string `yaml:"code"`
}

// Options control how a Test is built.
type Options struct {
	// ForceSeqCst makes every atomic operation and fence SeqCst.
	// Comparing a test's outcomes with and without it shows which
	// outcomes are due to the weak memory model.
	ForceSeqCst bool
}

var verdicts = map[string]weave.Verdict{
	"pass":         weave.Pass,
	"fail":         weave.Fail,
	"inconclusive": weave.Inconclusive,
}

var failureKinds = map[string]weave.FailureKind{
	"assertion": weave.AssertionFailed,
	"deadlock":  weave.Deadlock,
	"data-race": weave.DataRace,
	"misuse":    weave.ProtocolMisuse,
}

var releaseSequences = map[string]weave.ReleaseSequenceMode{
	"":            weave.ReleaseSequenceRMW,
	"rmw":         weave.ReleaseSequenceRMW,
	"same-thread": weave.ReleaseSequenceSameThread,
}

// Parse parses a YAML test description and checks its header. The
// thread code is checked by Build.
func Parse(data []byte) (*Test, error) {
	var t Test
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing litmus test"), weave.ErrInvalidProgram)
	}
	if err := t.check(); err != nil {
		return nil, errors.Mark(err, weave.ErrInvalidProgram)
	}
	return &t, nil
}

// LoadFile reads and parses the test in file path.
func LoadFile(path string) (*Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	t.Path = path
	return t, nil
}

func (t *Test) check() error {
	if t.Name == "" {
		return errors.New("litmus test has no name")
	}
	var err error
	if _, ok := verdicts[t.Expect]; !ok {
		err = errors.CombineErrors(err, errors.Newf("%s: bad expected verdict %q", t.Name, t.Expect))
	}
	if _, ok := failureKinds[t.Failure]; t.Failure != "" && !ok {
		err = errors.CombineErrors(err, errors.Newf("%s: bad failure kind %q", t.Name, t.Failure))
	}
	if t.Failure != "" && t.Expect != "fail" {
		err = errors.CombineErrors(err, errors.Newf("%s: failure kind given for expected verdict %q", t.Name, t.Expect))
	}
	if _, ok := releaseSequences[t.ReleaseSequence]; !ok {
		err = errors.CombineErrors(err, errors.Newf("%s: bad release-sequence %q", t.Name, t.ReleaseSequence))
	}
	if len(t.Threads) == 0 {
		err = errors.CombineErrors(err, errors.Newf("%s: no threads", t.Name))
	}
	seen := make(map[string]bool)
	for _, th := range t.Threads {
		if !isIdent(th.Name) {
			err = errors.CombineErrors(err, errors.Newf("%s: bad thread name %q", t.Name, th.Name))
		}
		if seen[th.Name] {
			err = errors.CombineErrors(err, errors.Newf("%s: duplicate thread %q", t.Name, th.Name))
		}
		seen[th.Name] = true
	}
	return err
}

// Verdict returns the verdict t expects.
func (t *Test) Verdict() weave.Verdict {
	return verdicts[t.Expect]
}

// Config returns base adjusted for t's settings.
func (t *Test) Config(base weave.Config) weave.Config {
	base.ReleaseSequence = releaseSequences[t.ReleaseSequence]
	return base
}

// Build compiles t into a weave program.
func (t *Test) Build(opts Options) (*weave.Program, error) {
	p := weave.NewProgram()
	c := &compiler{
		opts:    opts,
		atomics: make(map[string]weave.Loc),
		cells:   make(map[string]weave.Cell),
		mutexes: make(map[string]weave.Mutex),
		threads: make(map[string]weave.ThreadID),
	}
	for _, name := range sortedKeys(t.Atomics) {
		c.atomics[name] = p.Atomic(name, t.Atomics[name])
	}
	for _, name := range sortedKeys(t.Cells) {
		c.cells[name] = p.Cell(name, t.Cells[name])
	}
	for _, name := range t.Mutexes {
		if _, ok := c.mutexes[name]; ok {
			return nil, errors.Mark(errors.Newf("%s: duplicate mutex %q", t.Name, name), weave.ErrInvalidProgram)
		}
		c.mutexes[name] = p.Mutex(name)
	}
	// Threads are numbered in declaration order, so code can
	// refer to threads declared after it.
	for i, th := range t.Threads {
		c.threads[th.Name] = weave.ThreadID(i)
	}

	for _, th := range t.Threads {
		ops, err := c.compile(th.Code)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "%s: thread %s", t.Name, th.Name), weave.ErrInvalidProgram)
		}
		if th.Spawned {
			p.Child(th.Name, ops...)
		} else {
			p.Thread(th.Name, ops...)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", t.Name)
	}
	return p, nil
}

// Check returns an error describing how res differs from what t
// expects, or nil if it matches.
func (t *Test) Check(res *weave.Result) error {
	if want := t.Verdict(); res.Verdict != want {
		return errors.Newf("%s: got %v, want %v", t.Name, res, want)
	}
	if t.Failure != "" && res.Failure.Kind != failureKinds[t.Failure] {
		return errors.Newf("%s: got %v, want %v", t.Name, res.Failure.Kind, failureKinds[t.Failure])
	}
	return nil
}

func (t *Test) String() string {
	if t.Path != "" {
		return fmt.Sprintf("%s (%s)", t.Name, t.Path)
	}
	return t.Name
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
