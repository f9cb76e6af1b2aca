// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/open-policy-agent/opalog/cmd/internal/env"
	"github.com/open-policy-agent/opalog/eval"
	"github.com/open-policy-agent/opalog/metrics"
	"github.com/open-policy-agent/opalog/presentation"
	"github.com/open-policy-agent/opalog/util"
)

type evalCommandParams struct {
	configFile  string
	query       string
	magic       bool
	magicSet    bool
	format      *util.EnumFlag
	metrics     bool
	explain     bool
	ignore      []string
	prettyLimit int
}

func newEvalCommandParams() evalCommandParams {
	return evalCommandParams{
		format: newOutputFormatFlag(),
	}
}

func init() {

	params := newEvalCommandParams()

	evalCommand := &cobra.Command{
		Use:   "eval <path> [path [...]]",
		Short: "Evaluate Datalog queries",
		Long: `Evaluate the queries of Datalog programs.

The files at the given paths are loaded and merged into one program. Files
ending in .dl hold facts, rules and queries:

	edge(a, b). edge(b, c).
	path(?X, ?Y) :- edge(?X, ?Y).
	path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
	?- path(a, ?Y).

JSON and YAML files hold facts under a "facts" key:

	facts:
	  edge:
	    - [c, d]

Every query is answered with Query-Sub-Query evaluation, after a magic-set
rewrite unless --magic=false is given. The --query flag replaces the queries
of the loaded files.`,

		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("specify at least one file")
			}
			if err := env.CmdFlags.CheckEnvironmentVariables(cmd); err != nil {
				return err
			}
			params.magicSet = cmd.Flags().Changed("magic")
			return nil
		},

		Run: func(_ *cobra.Command, args []string) {
			if err := evalPrograms(context.Background(), args, params, os.Stdout, os.Stderr); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}

	addConfigFileFlag(evalCommand.Flags(), &params.configFile)
	addQueryFlag(evalCommand.Flags(), &params.query)
	addMagicFlag(evalCommand.Flags(), &params.magic)
	addFormatFlag(evalCommand.Flags(), params.format)
	addIgnoreFlag(evalCommand.Flags(), &params.ignore)
	evalCommand.Flags().BoolVarP(&params.metrics, "metrics", "", false, "report evaluation metrics")
	evalCommand.Flags().BoolVarP(&params.explain, "explain", "", false, "print a trace of the Query-Sub-Query evaluation")
	evalCommand.Flags().IntVarP(&params.prettyLimit, "pretty-limit", "", 80, "set limit after which pretty output gets truncated")
	RootCommand.AddCommand(evalCommand)
}

func evalPrograms(ctx context.Context, args []string, params evalCommandParams, stdout, stderr io.Writer) error {

	c, err := loadConfig(params.configFile)
	if err != nil {
		return err
	}

	if params.magicSet {
		c.MagicSets = params.magic
	}

	m := metrics.NoOp()
	if params.metrics {
		m = metrics.New()
	}

	p, err := loadProgramWithMetrics(args, loaderFilter{Ignore: params.ignore}, params.query, m)
	if err != nil {
		return err
	}

	if len(p.Queries) == 0 {
		return errors.New("no queries to evaluate: add ?- queries to the loaded files or use --query")
	}

	logger, err := newLogger(c, stderr)
	if err != nil {
		return err
	}

	engine := eval.NewEngine().
		WithConfig(c).
		WithMetrics(m).
		WithLogger(logger)

	var tracer *eval.BufferTracer
	if params.explain {
		tracer = eval.NewBufferTracer()
		engine.WithTracer(tracer)
	}

	answers, err := engine.Evaluate(ctx, p)
	if err != nil {
		return err
	}

	if tracer != nil {
		tracer.PrettyTrace(stdout)
		fmt.Fprintln(stdout)
	}

	result := presentation.NewEvalResult(answers)
	if params.metrics {
		result.Metrics = m.All()
	}

	return presentation.Print(stdout, params.format.String(), result, params.prettyLimit)
}
