// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh/terminal"
)

// A Reporter prints results and, on terminals, a live status line
// below them. Writes to a Reporter clear the status line first.
type Reporter interface {
	io.Writer
	StartStatus()
	Status(format string, a ...interface{})
	StopStatus()
}

// NewStdoutReporter returns a Reporter for standard output and
// whether it is an interactive terminal.
func NewStdoutReporter() (Reporter, bool) {
	if os.Getenv("TERM") == "" || os.Getenv("TERM") == "dumb" || !terminal.IsTerminal(int(os.Stdout.Fd())) {
		return &ReporterDumb{w: os.Stdout}, false
	}
	return &ReporterVT100{w: os.Stdout}, true
}

// ReporterDumb drops status updates. There is no way to overwrite a
// line on a dumb terminal or a file, and a search reports progress
// far more often than is worth logging.
type ReporterDumb struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *ReporterDumb) StartStatus()                           {}
func (r *ReporterDumb) StopStatus()                            {}
func (r *ReporterDumb) Status(format string, a ...interface{}) {}

func (r *ReporterDumb) Write(data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(data)
}

type ReporterVT100 struct {
	w      io.Writer
	stop   chan struct{}
	update chan func() string
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func (r *ReporterVT100) StartStatus() {
	r.stop = make(chan struct{})
	r.update = make(chan func() string)
	r.wg.Add(1)
	go r.run()
}

func (r *ReporterVT100) StopStatus() {
	close(r.stop)
	r.wg.Wait()
}

// Status replaces the status line. It may be called from any
// goroutine, but not after StopStatus.
func (r *ReporterVT100) Status(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	select {
	case r.update <- func() string { return msg }:
	case <-r.stop:
	}
}

// VT100 control sequences
const (
	resetLine = "\r\x1b[2K"
	wrapOff   = "\x1b[?7l"
	moveEOL   = "\x1b[999C"
	wrapOn    = "\x1b[?7h"
)

func (r *ReporterVT100) Write(data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Clear the status line.
	fmt.Fprintf(r.w, "%s%s", resetLine, wrapOn)
	return r.w.Write(data)
}

func (r *ReporterVT100) run() {
	const ticker = "-\\|/"
	// minUpdate is the minimum time between displaying updates.
	const minUpdate = time.Second / 10

	i := 0
	status := func() string { return "" }
	tick := time.NewTicker(time.Second / 2)
	inhibit, pending := false, false
	deinhibit := time.NewTimer(0)
	defer func() {
		tick.Stop()
		deinhibit.Stop()

		// The final results follow, so drop the status line.
		r.mu.Lock()
		fmt.Fprintf(r.w, "%s%s", resetLine, wrapOn)
		r.mu.Unlock()

		r.wg.Done()
	}()

	for {
		r.mu.Lock()
		fmt.Fprintf(r.w, "%s%s%s%s%c", resetLine, wrapOff, status(), moveEOL, ticker[i%len(ticker)])
		r.mu.Unlock()
		pending = false

	ignore:
		select {
		case <-tick.C:
			i++

		case status = <-r.update:
			if inhibit {
				pending = true
				goto ignore
			}
			inhibit = true
			deinhibit.Reset(minUpdate)

		case <-deinhibit.C:
			inhibit = false
			if !pending {
				goto ignore
			}

		case <-r.stop:
			return
		}
	}
}
