// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

type edgeKind uint8

const (
	edgePO edgeKind = iota // program order
	edgeRF                 // reads-from
	edgeSW                 // reads-from that synchronizes
)

var edgeAttrs = [...]string{
	edgePO: "",
	edgeRF: ` [style=dashed,color=red,label="rf"]`,
	edgeSW: ` [style=bold,color=blue,label="sw"]`,
}

// A graph is the execution graph of a branch: one node per step.
type graph struct {
	nodes []*gnode
}

type gnode struct {
	id     int
	thread ThreadID
	label  string
	out    map[int]edgeKind
}

func (g *graph) newNode(thread ThreadID, label string) *gnode {
	node := &gnode{id: len(g.nodes), thread: thread, label: label, out: make(map[int]edgeKind)}
	g.nodes = append(g.nodes, node)
	return node
}

func (g *graph) edge(from, to *gnode, kind edgeKind) {
	if old, ok := from.out[to.id]; ok && old > kind {
		return
	}
	from.out[to.id] = kind
}

func executionGraph(trace []Step) *graph {
	g := new(graph)
	last := make(map[ThreadID]*gnode)
	for i, s := range trace {
		label := fmt.Sprintf("#%d %s", i, s.Op)
		if s.HasValue {
			label += fmt.Sprintf(" = %d", s.Value)
		}
		node := g.newNode(s.Thread, label)
		if prev := last[s.Thread]; prev != nil {
			g.edge(prev, node, edgePO)
		}
		last[s.Thread] = node
		if s.ReadsFrom >= 0 {
			kind := edgeRF
			if s.Synchronized {
				kind = edgeSW
			}
			g.edge(g.nodes[s.ReadsFrom], node, kind)
		}
	}
	return g
}

func (g *graph) toDot(w io.Writer, names map[ThreadID]string) {
	byThread := make(map[ThreadID][]*gnode)
	var threads []ThreadID
	for _, node := range g.nodes {
		if _, ok := byThread[node.thread]; !ok {
			threads = append(threads, node.thread)
		}
		byThread[node.thread] = append(byThread[node.thread], node)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i] < threads[j] })

	for _, t := range threads {
		fmt.Fprintf(w, "  subgraph cluster_%d {\n    label=%q;\n", t, fmt.Sprintf("T%d %s", t, names[t]))
		for _, node := range byThread[t] {
			fmt.Fprintf(w, "    n%d [label=%q];\n", node.id, node.label)
		}
		fmt.Fprintf(w, "  }\n")
	}
	for _, node := range g.nodes {
		outs := make([]int, 0, len(node.out))
		for id := range node.out {
			outs = append(outs, id)
		}
		sort.Ints(outs)
		for _, id := range outs {
			fmt.Fprintf(w, "  n%d -> n%d%s;\n", node.id, id, edgeAttrs[node.out[id]])
		}
	}
}

// WriteDot writes the execution graph of f's branch in Graphviz dot
// format. Each thread's steps form a cluster linked in program
// order; reads are linked to the writes they observed, in bold when
// the read synchronized with the write.
func (f *Failure) WriteDot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	names := make(map[ThreadID]string)
	for _, s := range f.Trace {
		names[s.Thread] = s.ThreadName
	}
	fmt.Fprintf(bw, "digraph execution {\n  label=%q;\n  node [shape=box];\n", fmt.Sprintf("%v: %s", f.Kind, f.Message))
	executionGraph(f.Trace).toDot(bw, names)
	fmt.Fprintf(bw, "}\n")
	return bw.Flush()
}
