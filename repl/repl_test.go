// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package repl

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/eval"
)

const pathProgram = `
edge(a, b). edge(b, c).
path(?X, ?Y) :- edge(?X, ?Y).
path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
`

func TestOneShotFactsRulesQuery(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)
	expectOutput(t, buffer.String(), "")

	mustOneShot(t, repl, "facts")
	mustOneShot(t, repl, "?- path(a, ?Y).")
	expectOutput(t, buffer.String(), "path(a, b).\npath(a, c).\n")
}

func TestOneShotGroundQuery(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)
	mustOneShot(t, repl, "?- path(a, c).")
	mustOneShot(t, repl, "?- path(c, a).")
	expectOutput(t, buffer.String(), "true\nfalse\n")
}

func TestOneShotQueryWithoutAnswers(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)
	mustOneShot(t, repl, "?- path(c, ?Y).")
	expectOutput(t, buffer.String(), "no answers\n")
}

func TestOneShotJSON(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)
	mustOneShot(t, repl, "json")
	mustOneShot(t, repl, "?- edge(?X, c).")

	if !strings.Contains(buffer.String(), `"?X": "b"`) {
		t.Fatalf("Expected JSON bindings but got: %v", buffer.String())
	}
}

func TestShow(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, "edge(b, c). edge(a, b).")
	mustOneShot(t, repl, "path(?X, ?Y) :- edge(?X, ?Y).")
	mustOneShot(t, repl, "show")

	expectOutput(t, buffer.String(), "edge(a, b).\nedge(b, c).\npath(?X, ?Y) :- edge(?X, ?Y).\n")
}

func TestUnset(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)
	mustOneShot(t, repl, "unset path")

	if len(repl.Program().Rules) != 0 {
		t.Fatalf("Expected rules to be removed but got: %v", repl.Program().Rules)
	}
	if len(repl.Program().Facts) != 1 {
		t.Fatalf("Expected facts to be kept but got: %v", repl.Program().Facts)
	}

	mustOneShot(t, repl, "unset edge")
	if len(repl.Program().Facts) != 0 {
		t.Fatalf("Expected facts to be removed but got: %v", repl.Program().Facts)
	}

	mustOneShot(t, repl, "unset q")
	expectOutput(t, buffer.String(), "warning: no matching facts or rules\n")

	err := repl.OneShot(context.Background(), "unset")
	if e, ok := err.(*Error); !ok || e.Code != BadArgsErr {
		t.Fatalf("Expected bad arguments error but got: %v", err)
	}
}

func TestUnsafeRuleRejected(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)

	err := repl.OneShot(context.Background(), "p(?X) :- !edge(?X, a).")
	if !ast.IsError(ast.UnsafeRuleErr, err) {
		t.Fatalf("Expected unsafe rule error but got: %v", err)
	}
	if len(repl.Program().Rules) != 2 {
		t.Fatalf("Expected rejected rule to be dropped but got: %v", repl.Program().Rules)
	}
}

func TestMultiLineBuffering(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, "path(?X, ?Y) :-")
	if repl.getPrompt() != repl.bufferPrompt {
		t.Fatal("Expected buffer prompt")
	}
	mustOneShot(t, repl, "  edge(?X, ?Y).")
	if repl.getPrompt() != repl.initPrompt {
		t.Fatal("Expected initial prompt")
	}
	if len(repl.Program().Rules) != 1 {
		t.Fatalf("Expected buffered rule to be added but got: %v", repl.Program().Rules)
	}

	mustOneShot(t, repl, "p(a")
	if err := repl.OneShot(context.Background(), ""); !ast.IsError(ast.ParseErr, err) {
		t.Fatalf("Expected parse error on empty line but got: %v", err)
	}
	if len(repl.buffer) != 0 {
		t.Fatalf("Expected buffer to be cleared but got: %v", repl.buffer)
	}
}

func TestDisableMultiLineBuffering(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer).DisableMultiLineBuffering(true)

	if err := repl.OneShot(context.Background(), "p(a"); !ast.IsError(ast.ParseErr, err) {
		t.Fatalf("Expected parse error but got: %v", err)
	}
}

func TestMagicToggle(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)
	mustOneShot(t, repl, "magic")
	mustOneShot(t, repl, "facts")
	mustOneShot(t, repl, "?- path(b, ?Y).")
	mustOneShot(t, repl, "magic")

	expectOutput(t, buffer.String(), "magic sets off\npath(b, c).\nmagic sets on\n")
}

func TestExplain(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)
	mustOneShot(t, repl, "explain")
	mustOneShot(t, repl, "?- path(a, c).")

	out := buffer.String()
	if !strings.HasPrefix(out, "explain on\n") || !strings.Contains(out, "Pass 1") || !strings.HasSuffix(out, "true\n") {
		t.Fatalf("Unexpected explain output: %v", out)
	}

	buffer.Reset()
	mustOneShot(t, repl, "explain")
	mustOneShot(t, repl, "?- path(a, c).")
	expectOutput(t, buffer.String(), "explain off\ntrue\n")
}

func TestHelp(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, "help")

	for _, exp := range []string{"Examples", "Commands", "?- path(a, ?Y).", "unset <predicate>"} {
		if !strings.Contains(buffer.String(), exp) {
			t.Fatalf("Expected help to contain %q but got: %v", exp, buffer.String())
		}
	}
}

func TestExit(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	if _, ok := repl.OneShot(context.Background(), "exit").(stop); !ok {
		t.Fatal("Expected stop")
	}
}

func TestComplete(t *testing.T) {
	var buffer bytes.Buffer
	repl := newRepl(&buffer)

	mustOneShot(t, repl, pathProgram)

	tests := []struct {
		note     string
		line     string
		expected []string
	}{
		{"predicate", "pa", []string{"path"}},
		{"command", "sh", []string{"show"}},
		{"inside query", "?- path(a, ?Y), ed", []string{"?- path(a, ?Y), edge"}},
		{"no match", "zz", nil},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			result := repl.complete(tc.line)
			if !reflect.DeepEqual(result, tc.expected) {
				t.Fatalf("Expected %v but got %v", tc.expected, result)
			}
		})
	}
}

func mustOneShot(t *testing.T, repl *REPL, line string) {
	t.Helper()
	if err := repl.OneShot(context.Background(), line); err != nil {
		t.Fatalf("Unexpected error on %q: %v", line, err)
	}
}

func expectOutput(t *testing.T, output string, expected string) {
	t.Helper()
	if output != expected {
		t.Errorf("Repl output: expected %#v but got %#v", expected, output)
	}
}

func newRepl(buffer *bytes.Buffer) *REPL {
	return New(eval.NewEngine(), nil, "", buffer, "", "")
}
