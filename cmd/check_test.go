// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-policy-agent/opalog/util/test"
)

func TestCheckPrograms(t *testing.T) {
	tests := []struct {
		note     string
		files    map[string]string
		expected [][]string
		errs     []string
	}{
		{
			note:     "stratified",
			files:    map[string]string{"/p.dl": pathProgram + `unreachable(?X) :- edge(?X, ?Y), !path(a, ?X).`},
			expected: [][]string{{"edge/2", "path/2"}, {"unreachable/1"}},
		},
		{
			note: "unsafe",
			files: map[string]string{
				"/p.dl": `p(?X, ?Y) :- q(?X).`,
			},
			errs: []string{"unsafe_rule_error"},
		},
		{
			note: "not stratified",
			files: map[string]string{
				"/p.dl": `p(?X) :- q(?X), !p(?X).`,
			},
			errs: []string{"stratification_error"},
		},
		{
			note:  "facts files are skipped",
			files: map[string]string{"/p.dl": `p(?X) :- q(?X).`, "/bad.json": `{`},
			expected: [][]string{{"p/1", "q/1"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			test.WithTempFS(tc.files, func(rootDir string) {
				params := newCheckParams()
				_ = params.format.Set(formatJSON)

				compiler, err := checkPrograms(params, []string{rootDir})

				var buf bytes.Buffer
				outputCheck(&buf, params.format.String(), compiler, err)

				var result checkResult
				require.NoError(t, json.Unmarshal(buf.Bytes(), &result))

				if len(tc.errs) > 0 {
					require.Error(t, err)
					require.Len(t, result.Errors, len(tc.errs))
					for i := range tc.errs {
						require.Contains(t, result.Errors[i], tc.errs[i])
					}
					return
				}

				require.NoError(t, err)
				require.Equal(t, tc.expected, result.Strata)
			})
		})
	}
}

func TestCheckProgramsPretty(t *testing.T) {
	files := map[string]string{"/p.dl": pathProgram}

	test.WithTempFS(files, func(rootDir string) {
		params := newCheckParams()
		compiler, err := checkPrograms(params, []string{rootDir})
		require.NoError(t, err)

		var buf bytes.Buffer
		outputCheck(&buf, params.format.String(), compiler, nil)
		require.Contains(t, buf.String(), "STRATUM")
		require.Contains(t, buf.String(), "edge/2, path/2")
	})
}
