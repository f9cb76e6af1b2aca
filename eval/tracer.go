// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package eval

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Tracer defines the interface for tracing evaluation.
type Tracer interface {

	// Enabled returns true if the tracer is enabled.
	Enabled() bool

	// Trace emits a message if the tracer is enabled. Depth is the nesting
	// of predicate calls at the time of the message.
	Trace(depth int, f string, a ...any)
}

// StdoutTracer writes trace messages to stdout.
type StdoutTracer struct{}

// Enabled always returns true.
func (*StdoutTracer) Enabled() bool { return true }

// Trace writes a trace message to stdout.
func (*StdoutTracer) Trace(depth int, f string, a ...any) {
	writeTrace(os.Stdout, depth, f, a...)
}

// BufferTracer collects trace messages in memory.
type BufferTracer []string

// NewBufferTracer returns a new BufferTracer.
func NewBufferTracer() *BufferTracer {
	return &BufferTracer{}
}

// Enabled always returns true.
func (*BufferTracer) Enabled() bool { return true }

// Trace appends the indented message to the buffer.
func (b *BufferTracer) Trace(depth int, f string, a ...any) {
	*b = append(*b, strings.Repeat(" ", depth)+fmt.Sprintf(f, a...))
}

// PrettyTrace writes the buffered messages to w.
func (b *BufferTracer) PrettyTrace(w io.Writer) {
	for _, line := range *b {
		fmt.Fprintln(w, line)
	}
}

func writeTrace(w io.Writer, depth int, f string, a ...any) {
	fmt.Fprintf(w, strings.Repeat(" ", depth)+f+"\n", a...)
}
