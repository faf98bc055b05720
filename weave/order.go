// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import "fmt"

// MemoryOrder is the consistency guarantee attached to an atomic
// operation.
type MemoryOrder uint8

const (
	Relaxed MemoryOrder = iota
	Release
	Acquire
	AcqRel
	SeqCst

	numOrders
)

var orderNames = [...]string{
	Relaxed: "Relaxed",
	Release: "Release",
	Acquire: "Acquire",
	AcqRel:  "AcqRel",
	SeqCst:  "SeqCst",
}

func (o MemoryOrder) String() string {
	if o < numOrders {
		return orderNames[o]
	}
	return fmt.Sprintf("MemoryOrder(%d)", uint8(o))
}

// Valid reports whether o is one of the five defined orders.
func (o MemoryOrder) Valid() bool {
	return o < numOrders
}

// acquires reports whether an operation with order o synchronizes
// with the release it reads from.
func (o MemoryOrder) acquires() bool {
	switch o {
	case Acquire, AcqRel, SeqCst:
		return true
	case Relaxed, Release:
		return false
	}
	panic(fmt.Sprintf("bad memory order %d", uint8(o)))
}

// releases reports whether a write with order o publishes the
// writing thread's history to acquiring readers.
func (o MemoryOrder) releases() bool {
	switch o {
	case Release, AcqRel, SeqCst:
		return true
	case Relaxed, Acquire:
		return false
	}
	panic(fmt.Sprintf("bad memory order %d", uint8(o)))
}

// LoadOrder returns the order of the load half of an operation with
// order o. It is the strongest valid failure order for a
// compare-and-swap whose success order is o.
func (o MemoryOrder) LoadOrder() MemoryOrder {
	switch o {
	case Release:
		return Relaxed
	case AcqRel:
		return Acquire
	}
	return o
}

func (o MemoryOrder) seqCst() bool {
	return o == SeqCst
}

// ParseMemoryOrder parses the long (Go-style) and short (litmus-style)
// spellings of a memory order, such as "Acquire", "acq", "acq_rel"
// and "sc".
func ParseMemoryOrder(s string) (MemoryOrder, bool) {
	switch s {
	case "Relaxed", "relaxed", "rlx":
		return Relaxed, true
	case "Release", "release", "rel":
		return Release, true
	case "Acquire", "acquire", "acq":
		return Acquire, true
	case "AcqRel", "acq_rel", "acqrel":
		return AcqRel, true
	case "SeqCst", "seq_cst", "seqcst", "sc":
		return SeqCst, true
	}
	return 0, false
}

// ReleaseSequenceMode selects which writes continue a release
// sequence after its head.
type ReleaseSequenceMode uint8

const (
	// ReleaseSequenceRMW continues a release sequence only through
	// read-modify-write operations, as in C++20. A plain store,
	// even by the thread that performed the release, ends it.
	ReleaseSequenceRMW ReleaseSequenceMode = iota

	// ReleaseSequenceSameThread additionally continues a release
	// sequence through later stores by the thread that performed
	// the release, as in C++11. This is the mode in which a relaxed
	// store by the releasing thread keeps the sequence going.
	ReleaseSequenceSameThread
)

func (m ReleaseSequenceMode) String() string {
	switch m {
	case ReleaseSequenceRMW:
		return "rmw"
	case ReleaseSequenceSameThread:
		return "same-thread"
	}
	return fmt.Sprintf("ReleaseSequenceMode(%d)", uint8(m))
}
