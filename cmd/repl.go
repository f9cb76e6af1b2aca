// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/open-policy-agent/opalog/cmd/internal/env"
	"github.com/open-policy-agent/opalog/eval"
	"github.com/open-policy-agent/opalog/repl"
	"github.com/open-policy-agent/opalog/util"
	"github.com/open-policy-agent/opalog/version"
)

const defaultHistoryFile = ".opalog_history"

type replParams struct {
	configFile  string
	historyPath string
	magic       bool
	magicSet    bool
	format      *util.EnumFlag
	ignore      []string
	prettyLimit int
}

func newReplParams() replParams {
	return replParams{
		format:      newOutputFormatFlag(),
		historyPath: defaultHistoryPath(),
	}
}

func init() {

	params := newReplParams()

	replCommand := &cobra.Command{
		Use:   "repl [path [...]]",
		Short: "Start an interactive shell",
		Long: `Start an interactive shell over a Datalog program.

The files at the given paths are loaded as the initial program. Facts and
rules entered at the prompt are added to it; queries are answered against it:

	> edge(c, d).
	> ?- path(a, ?Y).

Rules are checked for safety and stratification before they are added. Type
"help" for the list of commands.`,

		PreRunE: func(cmd *cobra.Command, _ []string) error {
			params.magicSet = cmd.Flags().Changed("magic")
			return env.CmdFlags.CheckEnvironmentVariables(cmd)
		},

		Run: func(_ *cobra.Command, args []string) {
			r, err := newREPL(args, params, os.Stdout, os.Stderr)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			r.Loop(context.Background())
		},
	}

	addConfigFileFlag(replCommand.Flags(), &params.configFile)
	addMagicFlag(replCommand.Flags(), &params.magic)
	addFormatFlag(replCommand.Flags(), params.format)
	addIgnoreFlag(replCommand.Flags(), &params.ignore)
	replCommand.Flags().StringVarP(&params.historyPath, "history", "H", params.historyPath, "set path of history file")
	replCommand.Flags().IntVarP(&params.prettyLimit, "pretty-limit", "", 80, "set limit after which pretty output gets truncated")
	RootCommand.AddCommand(replCommand)
}

func newREPL(args []string, params replParams, stdout, stderr io.Writer) (*repl.REPL, error) {

	c, err := loadConfig(params.configFile)
	if err != nil {
		return nil, err
	}

	if params.magicSet {
		c.MagicSets = params.magic
	}

	p := &eval.Program{}
	if len(args) > 0 {
		p, err = loadProgram(args, loaderFilter{Ignore: params.ignore}, "")
		if err != nil {
			return nil, err
		}
	}

	logger, err := newLogger(c, stderr)
	if err != nil {
		return nil, err
	}

	engine := eval.NewEngine().
		WithConfig(c).
		WithLogger(logger)

	if _, err := engine.Compile(p.Rules); err != nil {
		return nil, err
	}

	banner := fmt.Sprintf("opalog %v (%v). Run 'help' to see a list of commands.", version.Version, version.Platform)

	return repl.New(engine, p, params.historyPath, stdout, params.format.String(), banner).
		WithPrettyLimit(params.prettyLimit), nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultHistoryFile
	}
	return filepath.Join(home, defaultHistoryFile)
}
