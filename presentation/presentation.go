// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package presentation prints query answers in json, tabular and fact
// formats.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/eval"
)

// Output formats.
const (
	JSON   = "json"
	Pretty = "pretty"
	Facts  = "facts"
)

// Formats lists the supported output formats.
var Formats = []string{JSON, Pretty, Facts}

// EvalResult holds the answers and metrics of an evaluation.
type EvalResult struct {
	Answers  []AnswerResult `json:"answers"`
	Rewrites []string       `json:"rewrites,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`
	answers  eval.Answers
}

// AnswerResult holds the substitutions answering one query.
type AnswerResult struct {
	Query    string              `json:"query"`
	Vars     []string            `json:"vars"`
	Bindings []map[string]string `json:"bindings"`
}

// NewEvalResult returns the printable form of answers.
func NewEvalResult(answers eval.Answers) EvalResult {
	result := EvalResult{
		Answers: make([]AnswerResult, len(answers)),
		answers: answers,
	}
	for i, a := range answers {
		ar := AnswerResult{
			Query:    a.Query.String(),
			Vars:     make([]string, len(a.Vars)),
			Bindings: []map[string]string{},
		}
		for j, v := range a.Vars {
			ar.Vars[j] = v.String()
		}
		for _, b := range a.Bindings() {
			row := make(map[string]string, len(b))
			for v, t := range b {
				row[v.String()] = t.String()
			}
			ar.Bindings = append(ar.Bindings, row)
		}
		result.Answers[i] = ar
	}
	return result
}

// Print writes result to writer in the given format.
func Print(writer io.Writer, format string, result EvalResult, prettyLimit int) error {
	switch format {
	case JSON:
		return PrintJSON(writer, result)
	case Facts:
		PrintFacts(writer, result)
		return nil
	case Pretty:
		PrintPretty(writer, result, prettyLimit)
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

// PrintJSON prints indented json output.
func PrintJSON(writer io.Writer, x any) error {
	buf, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(writer, string(buf))
	return nil
}

// PrintFacts prints the answers of single-literal queries as facts over the
// queried predicates.
func PrintFacts(writer io.Writer, result EvalResult) {
	byPred := result.answers.ByPredicate()
	for _, p := range result.answers.Predicates() {
		for _, t := range byPred[p].Tuples() {
			fmt.Fprintf(writer, "%v.\n", ast.NewAtom(p, t))
		}
	}
}

// PrintPretty prints each query followed by its bindings in a tabular
// format. Queries without variables print true or false.
func PrintPretty(writer io.Writer, result EvalResult, prettyLimit int) {
	for i, a := range result.Answers {
		if i > 0 {
			fmt.Fprintln(writer)
		}
		fmt.Fprintln(writer, a.Query)
		PrintPrettyBinding(writer, a, prettyLimit)
	}

	if len(result.Rewrites) > 0 {
		fmt.Fprintln(writer)
		for _, r := range result.Rewrites {
			fmt.Fprintln(writer, r)
		}
	}

	PrintPrettyMetrics(writer, result, prettyLimit)
}

// PrintPrettyBinding prints bindings in a tabular format
func PrintPrettyBinding(writer io.Writer, a AnswerResult, prettyLimit int) {
	if len(a.Vars) == 0 {
		fmt.Fprintln(writer, len(a.Bindings) > 0)
		return
	}
	if len(a.Bindings) == 0 {
		fmt.Fprintln(writer, "no answers")
		return
	}
	tableBindings := generateTableBindings(writer, a, prettyLimit)
	if tableBindings.NumLines() > 0 {
		tableBindings.Render()
	}
}

// PrintPrettyMetrics prints metrics in a tabular format
func PrintPrettyMetrics(writer io.Writer, result EvalResult, prettyLimit int) {
	tableMetrics := generateTableMetrics(writer)
	populateTableMetrics(result.Metrics, tableMetrics, prettyLimit)
	if tableMetrics.NumLines() > 0 {
		fmt.Fprintln(writer)
		tableMetrics.Render()
	}
}

func checkStrLimit(input string, limit int) string {
	if limit > 0 && len(input) > limit {
		input = input[:limit] + "..."
		return input
	}
	return input
}

func generateTableBindings(writer io.Writer, a AnswerResult, prettyLimit int) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(a.Vars)
	alignment := make([]int, len(a.Vars))
	for i := range alignment {
		alignment[i] = tablewriter.ALIGN_LEFT
	}
	table.SetColumnAlignment(alignment)

	for _, b := range a.Bindings {
		row := make([]string, len(a.Vars))
		for i, v := range a.Vars {
			row[i] = checkStrLimit(b[v], prettyLimit)
		}
		table.Append(row)
	}
	return table
}

func generateTableMetrics(writer io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetHeader([]string{"Name", "Value"})
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})
	return table
}

func populateTableMetrics(data map[string]any, table *tablewriter.Table, prettyLimit int) {
	lines := [][]string{}
	for varName, varValueInterface := range data {
		val, ok := varValueInterface.(map[string]any)
		if !ok {
			line := []string{}
			varValue := checkStrLimit(fmt.Sprintf("%v", varValueInterface), prettyLimit)
			line = append(line, varName, varValue)
			lines = append(lines, line)
		} else {
			for k, v := range val {
				line := []string{}
				newVarName := fmt.Sprintf("%v_%v", varName, k)
				value := checkStrLimit(fmt.Sprintf("%v", v), prettyLimit)
				line = append(line, newVarName, value)
				lines = append(lines, line)
			}
		}
	}
	sortMetricRows(lines)
	table.AppendBulk(lines)
}

func sortMetricRows(data [][]string) {
	sort.Slice(data, func(i, j int) bool {
		return data[i][0] < data[j][0]
	})
}
