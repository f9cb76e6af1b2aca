// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateCmdOutput(t *testing.T) {
	var stdout bytes.Buffer

	generateCmdOutput(&stdout)

	expectOutputKeys(t, stdout.String(), []string{
		"Version",
		"Build Commit",
		"Build Timestamp",
		"Build Hostname",
		"Go Version",
		"Platform",
	})
}

func expectOutputKeys(t *testing.T, stdOut string, expectedKeys []string) {
	t.Helper()

	lines := strings.Split(strings.Trim(stdOut, "\n"), "\n")
	gotKeys := make([]string, 0, len(lines))

	for _, line := range lines {
		gotKeys = append(gotKeys, strings.Split(line, ":")[0])
	}

	if len(gotKeys) != len(expectedKeys) {
		t.Fatalf("expected %v keys but got %v", len(expectedKeys), len(gotKeys))
	}

	for i := range expectedKeys {
		if gotKeys[i] != expectedKeys[i] {
			t.Fatalf("expected key %q at %d but got %q", expectedKeys[i], i, gotKeys[i])
		}
	}
}
