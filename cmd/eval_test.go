// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-policy-agent/opalog/presentation"
	"github.com/open-policy-agent/opalog/util/test"
)

const pathProgram = `
edge(a, b).
edge(b, c).
path(?X, ?Y) :- edge(?X, ?Y).
path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
?- path(a, ?Y).
`

func TestEvalPrograms(t *testing.T) {
	tests := []struct {
		note     string
		files    map[string]string
		setup    func(*evalCommandParams)
		expected string
		err      string
	}{
		{
			note:     "facts format",
			files:    map[string]string{"/p.dl": pathProgram},
			setup:    func(p *evalCommandParams) { _ = p.format.Set(presentation.Facts) },
			expected: "path(a, b).\npath(a, c).\n",
		},
		{
			note:     "without magic",
			files:    map[string]string{"/p.dl": pathProgram},
			setup:    func(p *evalCommandParams) { _ = p.format.Set(presentation.Facts); p.magic, p.magicSet = false, true },
			expected: "path(a, b).\npath(a, c).\n",
		},
		{
			note: "facts from yaml",
			files: map[string]string{
				"/p.dl":       pathProgram,
				"/facts.yaml": "facts:\n  edge:\n    - [c, d]\n",
			},
			setup:    func(p *evalCommandParams) { _ = p.format.Set(presentation.Facts) },
			expected: "path(a, b).\npath(a, c).\npath(a, d).\n",
		},
		{
			note:  "query flag",
			files: map[string]string{"/p.dl": pathProgram},
			setup: func(p *evalCommandParams) {
				_ = p.format.Set(presentation.Facts)
				p.query = "path(?X, c)"
			},
			expected: "path(a, c).\npath(b, c).\n",
		},
		{
			note:  "ignore",
			files: map[string]string{"/p.dl": pathProgram, "/skip/more.dl": `edge(c, d).`},
			setup: func(p *evalCommandParams) {
				_ = p.format.Set(presentation.Facts)
				p.ignore = []string{"skip"}
			},
			expected: "path(a, b).\npath(a, c).\n",
		},
		{
			note:  "no queries",
			files: map[string]string{"/p.dl": `edge(a, b).`},
			err:   "no queries to evaluate",
		},
		{
			note:  "bad query",
			files: map[string]string{"/p.dl": pathProgram},
			setup: func(p *evalCommandParams) { p.query = "path(" },
			err:   "query",
		},
		{
			note:  "unsafe",
			files: map[string]string{"/p.dl": `p(?X, ?Y) :- q(?X). ?- p(?X, ?Y).`},
			err:   "unsafe_rule_error",
		},
		{
			note:  "bad config",
			files: map[string]string{"/p.dl": pathProgram, "/config.yaml": "max_iterations: -1\n"},
			setup: func(p *evalCommandParams) { p.configFile = "config.yaml" },
			err:   "max_iterations",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			test.WithTempFS(tc.files, func(rootDir string) {
				params := newEvalCommandParams()
				if tc.setup != nil {
					tc.setup(&params)
				}
				if params.configFile != "" {
					params.configFile = filepath.Join(rootDir, params.configFile)
					params.ignore = append(params.ignore, "config.yaml")
				}

				var stdout, stderr bytes.Buffer
				err := evalPrograms(context.Background(), []string{rootDir}, params, &stdout, &stderr)

				if tc.err != "" {
					require.Error(t, err)
					require.Contains(t, err.Error(), tc.err)
					return
				}

				require.NoError(t, err)
				require.Equal(t, tc.expected, stdout.String())
			})
		})
	}
}

func TestEvalProgramsJSONMetrics(t *testing.T) {
	files := map[string]string{"/p.dl": pathProgram}

	test.WithTempFS(files, func(rootDir string) {
		params := newEvalCommandParams()
		_ = params.format.Set(presentation.JSON)
		params.metrics = true

		var stdout, stderr bytes.Buffer
		require.NoError(t, evalPrograms(context.Background(), []string{rootDir}, params, &stdout, &stderr))

		var result struct {
			Answers []presentation.AnswerResult `json:"answers"`
			Metrics map[string]any              `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		require.Len(t, result.Answers, 1)
		require.Len(t, result.Answers[0].Bindings, 2)
		require.Contains(t, result.Metrics, "counter_qsq_passes")
		require.Contains(t, result.Metrics, "timer_load_files_ns")
		require.Contains(t, result.Metrics, "timer_parse_module_ns")
	})
}

func TestEvalProgramsExplain(t *testing.T) {
	files := map[string]string{"/p.dl": pathProgram}

	test.WithTempFS(files, func(rootDir string) {
		params := newEvalCommandParams()
		params.explain = true

		var stdout, stderr bytes.Buffer
		require.NoError(t, evalPrograms(context.Background(), []string{rootDir}, params, &stdout, &stderr))
		require.True(t, strings.HasPrefix(stdout.String(), "Pass 1\n"), stdout.String())
		require.Contains(t, stdout.String(), "?- path(a, ?Y).")
	})
}

func TestEvalProgramsLogging(t *testing.T) {
	files := map[string]string{
		"/p.dl":        pathProgram,
		"/config.yaml": "log_level: debug\nlog_format: json\n",
	}

	test.WithTempFS(files, func(rootDir string) {
		params := newEvalCommandParams()
		params.configFile = filepath.Join(rootDir, "config.yaml")
		params.ignore = []string{"*.yaml"}

		var stdout, stderr bytes.Buffer
		require.NoError(t, evalPrograms(context.Background(), []string{rootDir}, params, &stdout, &stderr))
		require.Contains(t, stderr.String(), `"eval_id"`)
		require.Contains(t, stderr.String(), `"msg":"Query evaluated."`)
	})
}
