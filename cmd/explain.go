// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/open-policy-agent/opalog/algebra"
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/cmd/internal/env"
	"github.com/open-policy-agent/opalog/sip"
)

type explainParams struct {
	ignore []string
	sip    bool
}

func init() {
	var params explainParams

	explainCommand := &cobra.Command{
		Use:   "explain <path> [path [...]]",
		Short: "Print the relational algebra of Datalog rules",
		Long: `Print each rule of the loaded files followed by the relational algebra
expression the naive evaluator uses for it. Rules with builtins or function
symbols are evaluated literal by literal and print their literal order
instead.

With --sip the sideways information passing graph of each rule is printed
as well.`,

		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("specify at least one file")
			}
			return env.CmdFlags.CheckEnvironmentVariables(cmd)
		},

		Run: func(_ *cobra.Command, args []string) {
			if err := explainPrograms(args, params, os.Stdout); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}

	addIgnoreFlag(explainCommand.Flags(), &params.ignore)
	explainCommand.Flags().BoolVarP(&params.sip, "sip", "", false, "print the sideways information passing graph of each rule")
	RootCommand.AddCommand(explainCommand)
}

func explainPrograms(args []string, params explainParams, w io.Writer) error {

	p, err := loadProgram(args, loaderFilter{Ignore: params.ignore, OnlyDatalog: true}, "")
	if err != nil {
		return err
	}

	for i, r := range p.Rules {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, r)

		s := sip.NewSIP(r, ast.VarSet{})

		expr, err := algebra.FromRule(r)
		switch {
		case err == nil:
			fmt.Fprint(w, indent(expr.String()))
		case errors.Cause(err) == algebra.ErrNotExpressible:
			order := s.Ordering()
			buf := make([]string, len(order))
			for j := range order {
				buf[j] = order[j].String()
			}
			fmt.Fprintf(w, "  literal order: %v\n", strings.Join(buf, ", "))
		default:
			return errors.Wrapf(err, "rule %v", r)
		}

		if params.sip {
			if str := s.String(); str != "" {
				fmt.Fprint(w, indent(str+"\n"))
			}
		}
	}

	return nil
}

func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var buf strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		buf.WriteString("  ")
		buf.WriteString(l)
	}
	return buf.String()
}
