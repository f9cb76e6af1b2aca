// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-policy-agent/opalog/util/test"
)

func TestNewREPL(t *testing.T) {
	files := map[string]string{
		"/p.dl":      pathProgram,
		"/more.yaml": "facts:\n  edge:\n    - [c, d]\n",
	}

	test.WithTempFS(files, func(rootDir string) {
		params := newReplParams()
		params.historyPath = filepath.Join(rootDir, "history")
		_ = params.format.Set("facts")

		var stdout, stderr bytes.Buffer
		r, err := newREPL([]string{rootDir}, params, &stdout, &stderr)
		require.NoError(t, err)

		require.NoError(t, r.OneShot(context.Background(), "?- path(b, ?Y)."))
		require.Equal(t, "path(b, c).\npath(b, d).\n", stdout.String())
	})
}

func TestNewREPLWithoutFiles(t *testing.T) {
	params := newReplParams()

	var stdout, stderr bytes.Buffer
	r, err := newREPL(nil, params, &stdout, &stderr)
	require.NoError(t, err)

	require.NoError(t, r.OneShot(context.Background(), "p(a)."))
	require.NoError(t, r.OneShot(context.Background(), "?- p(a)."))
	require.Equal(t, "true\n", stdout.String())
}

func TestNewREPLRejectsUnsafeProgram(t *testing.T) {
	files := map[string]string{
		"/p.dl": `p(?X, ?Y) :- q(?X).`,
	}

	test.WithTempFS(files, func(rootDir string) {
		var stdout, stderr bytes.Buffer
		_, err := newREPL([]string{rootDir}, newReplParams(), &stdout, &stderr)
		require.ErrorContains(t, err, "unsafe_rule_error")
	})
}
