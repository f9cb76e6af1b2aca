// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/open-policy-agent/opalog/cmd/internal/env"
	"github.com/open-policy-agent/opalog/eval"
	"github.com/open-policy-agent/opalog/presentation"
	"github.com/open-policy-agent/opalog/sip"
	"github.com/open-policy-agent/opalog/util"
)

type rewriteParams struct {
	configFile string
	query      string
	adorned    bool
	format     *util.EnumFlag
	ignore     []string
}

func newRewriteParams() rewriteParams {
	return rewriteParams{
		format: newFormatFlag(formatPretty, formatJSON),
	}
}

// rewriteResult is the JSON output of the rewrite command.
type rewriteResult struct {
	Query   string   `json:"query"`
	Rewrite string   `json:"rewrite"`
	Rules   []string `json:"rules"`
}

func init() {
	params := newRewriteParams()

	rewriteCommand := &cobra.Command{
		Use:   "rewrite <path> [path [...]]",
		Short: "Print the magic-set rewrite of Datalog queries",
		Long: `Print the magic-set rewritten program for each query of the loaded files.

With --adorned the adorned program (the rules reachable from the query with
the binding pattern of each predicate) is printed instead.`,

		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("specify at least one file")
			}
			return env.CmdFlags.CheckEnvironmentVariables(cmd)
		},

		Run: func(_ *cobra.Command, args []string) {
			if err := rewritePrograms(args, params, os.Stdout); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}

	addConfigFileFlag(rewriteCommand.Flags(), &params.configFile)
	addQueryFlag(rewriteCommand.Flags(), &params.query)
	addIgnoreFlag(rewriteCommand.Flags(), &params.ignore)
	addFormatFlag(rewriteCommand.Flags(), params.format)
	rewriteCommand.Flags().BoolVarP(&params.adorned, "adorned", "", false, "print the adorned program instead of the rewrite")
	RootCommand.AddCommand(rewriteCommand)
}

func rewritePrograms(args []string, params rewriteParams, w io.Writer) error {

	c, err := loadConfig(params.configFile)
	if err != nil {
		return err
	}

	p, err := loadProgram(args, loaderFilter{Ignore: params.ignore}, params.query)
	if err != nil {
		return err
	}

	if len(p.Queries) == 0 {
		return errors.New("no queries to rewrite: add ?- queries to the loaded files or use --query")
	}

	engine := eval.NewEngine().WithConfig(c)
	if _, err := engine.Compile(p.Rules); err != nil {
		return err
	}

	results := make([]rewriteResult, 0, len(p.Queries))

	for _, q := range p.Queries {
		var text string
		var rules []string

		if params.adorned {
			prog, err := sip.BuildAdornedProgram(p.Rules, q)
			if err != nil {
				return errors.Wrapf(err, "adorn %v", q)
			}
			text = prog.String()
			for _, r := range prog.Rules {
				rules = append(rules, r.String())
			}
		} else {
			res, err := engine.Rewrite(p.Rules, q)
			if err != nil {
				return errors.Wrapf(err, "rewrite %v", q)
			}
			text = res.String()
			for _, r := range res.Rules {
				rules = append(rules, r.String())
			}
		}

		results = append(results, rewriteResult{Query: q.String(), Rewrite: text, Rules: rules})
	}

	if params.format.String() == formatJSON {
		return presentation.PrintJSON(w, results)
	}

	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "# %v\n%v\n", r.Query, r.Rewrite)
	}
	return nil
}
