// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/open-policy-agent/opalog/analysis"
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/cmd/internal/env"
	"github.com/open-policy-agent/opalog/eval"
	"github.com/open-policy-agent/opalog/presentation"
	"github.com/open-policy-agent/opalog/util"
)

type checkParams struct {
	format     *util.EnumFlag
	configFile string
	ignore     []string
}

func newCheckParams() checkParams {
	return checkParams{
		format: newFormatFlag(formatPretty, formatJSON),
	}
}

// checkResult is the JSON output of the check command.
type checkResult struct {
	Errors []string   `json:"errors,omitempty"`
	Strata [][]string `json:"strata,omitempty"`
}

func checkPrograms(params checkParams, args []string) (*analysis.Compiler, error) {

	c, err := loadConfig(params.configFile)
	if err != nil {
		return nil, err
	}

	p, err := loadProgram(args, loaderFilter{Ignore: params.ignore, OnlyDatalog: true}, "")
	if err != nil {
		return nil, err
	}

	return eval.NewEngine().WithConfig(c).Compile(p.Rules)
}

func outputCheck(w io.Writer, format string, compiler *analysis.Compiler, err error) {
	switch format {
	case formatJSON:
		result := checkResult{}
		if err != nil {
			result.Errors = errorMessages(err)
		} else {
			for _, layer := range compiler.Strata.Layers() {
				result.Strata = append(result.Strata, predicateNames(layer))
			}
		}
		if err := presentation.PrintJSON(w, result); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	default:
		if err != nil {
			fmt.Fprintln(w, err)
			return
		}
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Stratum", "Predicates"})
		table.SetAlignment(tablewriter.ALIGN_CENTER)
		table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})
		for i, layer := range compiler.Strata.Layers() {
			table.Append([]string{strconv.Itoa(i), strings.Join(predicateNames(layer), ", ")})
		}
		if table.NumLines() > 0 {
			table.Render()
		}
	}
}

func errorMessages(err error) []string {
	if errs, ok := errors.Cause(err).(ast.Errors); ok {
		result := make([]string, len(errs))
		for i := range errs {
			result[i] = errs[i].Error()
		}
		return result
	}
	return []string{err.Error()}
}

func predicateNames(ps []ast.Predicate) []string {
	result := make([]string, len(ps))
	for i, p := range ps {
		result[i] = p.String()
	}
	return result
}

func init() {
	checkParams := newCheckParams()

	checkCommand := &cobra.Command{
		Use:   "check <path> [path [...]]",
		Short: "Check Datalog source files",
		Long: `Check Datalog source files for parse, safety and stratification errors.

If the 'check' command succeeds it prints the strata of the program's
predicates. Otherwise it prints the errors and exits with a non-zero exit
code.`,

		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("specify at least one file")
			}
			return env.CmdFlags.CheckEnvironmentVariables(cmd)
		},

		Run: func(_ *cobra.Command, args []string) {
			compiler, err := checkPrograms(checkParams, args)
			if err != nil {
				outputCheck(os.Stderr, checkParams.format.String(), compiler, err)
				os.Exit(1)
			}
			outputCheck(os.Stdout, checkParams.format.String(), compiler, nil)
		},
	}

	addIgnoreFlag(checkCommand.Flags(), &checkParams.ignore)
	addConfigFileFlag(checkCommand.Flags(), &checkParams.configFile)
	checkCommand.Flags().VarP(checkParams.format, "format", "f", "set output format")
	RootCommand.AddCommand(checkCommand)
}
