// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"bytes"
	"fmt"
	"io"
)

func (s Step) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "T%d %s: %s", s.Thread, s.ThreadName, s.Op)
	if s.HasValue {
		fmt.Fprintf(&buf, " = %d", s.Value)
	}
	if s.ReadsFrom >= 0 {
		fmt.Fprintf(&buf, " (from #%d)", s.ReadsFrom)
	}
	if s.Synchronized {
		buf.WriteString(" [sync]")
	}
	return buf.String()
}

func (f *Failure) Error() string {
	var buf bytes.Buffer
	f.Report(&buf)
	return buf.String()
}

// Report writes a human-readable description of f: the failure
// itself, the ordered cross-thread trace that leads to it and the
// schedule that replays it.
func (f *Failure) Report(w io.Writer) error {
	var err error
	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	if f.Thread >= 0 {
		printf("%v in T%d %s: %s\n", f.Kind, f.Thread, f.ThreadName, f.Message)
	} else {
		printf("%v: %s\n", f.Kind, f.Message)
	}
	printf("trace:")
	for i, s := range f.Trace {
		printf("\n  #%-3d %v", i, s)
	}
	printf("\nschedule: %v", f.Schedule)
	return err
}
