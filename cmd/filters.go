// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"os"
	"path/filepath"

	"github.com/open-policy-agent/opalog/loader"
)

type loaderFilter struct {
	Ignore      []string
	OnlyDatalog bool
}

func (f loaderFilter) Apply(abspath string, info os.FileInfo, depth int) bool {
	// if set to only load datalog files, skip all other files
	if f.OnlyDatalog && !info.IsDir() && filepath.Ext(info.Name()) != loader.DatalogExt {
		return true
	}
	for _, s := range f.Ignore {
		if loader.GlobExcludeName(s, 1)(abspath, info, depth) {
			return true
		}
	}
	return false
}
