// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package presentation

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/eval"
)

func evalModule(t *testing.T, input string) EvalResult {
	t.Helper()
	p, err := eval.NewProgram(ast.MustParseModule(input))
	require.NoError(t, err)
	answers, err := eval.NewEngine().Evaluate(context.Background(), p)
	require.NoError(t, err)
	return NewEvalResult(answers)
}

const module = `
	edge(a, b). edge(b, c).
	path(?X, ?Y) :- edge(?X, ?Y).
	path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
	?- path(a, ?Y).
	?- path(a, c).
	?- path(c, ?Y).
`

func TestPrintJSON(t *testing.T) {
	result := evalModule(t, module)

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, JSON, result, 0))

	var got struct {
		Answers []AnswerResult `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Answers, 3)
	require.Equal(t, "?- path(a, ?Y).", got.Answers[0].Query)
	require.Equal(t, []string{"?Y"}, got.Answers[0].Vars)
	require.Equal(t, []map[string]string{{"?Y": "b"}, {"?Y": "c"}}, got.Answers[0].Bindings)
	require.Equal(t, []map[string]string{{}}, got.Answers[1].Bindings)
	require.Empty(t, got.Answers[2].Bindings)
}

func TestPrintPretty(t *testing.T) {
	result := evalModule(t, module)
	result.Metrics = map[string]any{"counter_eval_qsq_passes": 3}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, Pretty, result, 0))
	out := buf.String()

	require.Contains(t, out, "?- path(a, ?Y).\n")
	require.Contains(t, out, "| ?Y |")
	require.Contains(t, out, "| b  |")
	require.Contains(t, out, "?- path(a, c).\ntrue\n")
	require.Contains(t, out, "?- path(c, ?Y).\nno answers\n")
	require.Contains(t, out, "counter_eval_qsq_passes")
}

func TestPrintFacts(t *testing.T) {
	result := evalModule(t, module)

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, Facts, result, 0))
	require.Equal(t, "path(a, b).\npath(a, c).\n", buf.String())
}

func TestPrintUnknownFormat(t *testing.T) {
	require.Error(t, Print(&bytes.Buffer{}, "xml", EvalResult{}, 0))
}

func TestCheckStrLimit(t *testing.T) {
	require.Equal(t, "abc...", checkStrLimit("abcdef", 3))
	require.Equal(t, "abcdef", checkStrLimit("abcdef", 0))
	require.True(t, strings.HasPrefix(checkStrLimit(strings.Repeat("x", 10), 5), "xxxxx"))
}
