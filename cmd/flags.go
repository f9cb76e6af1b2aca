// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"github.com/spf13/pflag"

	"github.com/open-policy-agent/opalog/presentation"
	"github.com/open-policy-agent/opalog/util"
)

const (
	formatPretty = "pretty"
	formatJSON   = "json"
)

func addIgnoreFlag(fs *pflag.FlagSet, ignoreNames *[]string) {
	fs.StringSliceVarP(ignoreNames, "ignore", "", []string{}, "set file and directory names to ignore during loading (e.g., '.*' excludes hidden files)")
}

func addConfigFileFlag(fs *pflag.FlagSet, file *string) {
	fs.StringVarP(file, "config-file", "c", "", "set path of configuration file")
}

func addQueryFlag(fs *pflag.FlagSet, query *string) {
	fs.StringVarP(query, "query", "q", "", "set query to answer instead of the queries in the loaded files")
}

func addMagicFlag(fs *pflag.FlagSet, magic *bool) {
	fs.BoolVarP(magic, "magic", "", true, "enable magic-set rewriting (overrides the configuration file)")
}

func newFormatFlag(formats ...string) *util.EnumFlag {
	return util.NewEnumFlag(formats[0], formats)
}

func newOutputFormatFlag() *util.EnumFlag {
	return newFormatFlag(presentation.Pretty, presentation.JSON, presentation.Facts)
}

func addFormatFlag(fs *pflag.FlagSet, format *util.EnumFlag) {
	fs.VarP(format, "format", "f", "set output format")
}
