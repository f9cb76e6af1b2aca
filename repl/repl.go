// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package repl implements a Read-Eval-Print-Loop (REPL) for interacting with
// a Datalog program.
//
// Facts and rules entered at the prompt are added to the program; queries
// are answered against it. The REPL is typically used from the command line,
// however, it can also be used as a library.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/eval"
	"github.com/open-policy-agent/opalog/presentation"
)

// REPL represents an instance of the interactive shell.
type REPL struct {
	output  io.Writer
	engine  *eval.Engine
	program *eval.Program

	buffer []string

	outputFormat string
	prettyLimit  int
	explain      bool
	historyPath  string
	initPrompt   string
	bufferPrompt string
	banner       string

	bufferDisabled bool
}

// New returns a new instance of the REPL. Statements are evaluated by engine
// against program, which is modified as facts and rules are entered.
func New(engine *eval.Engine, program *eval.Program, historyPath string, output io.Writer, outputFormat string, banner string) *REPL {

	if program == nil {
		program = &eval.Program{}
	}

	if outputFormat == "" {
		outputFormat = presentation.Pretty
	}

	return &REPL{
		output:       output,
		engine:       engine,
		program:      program,
		outputFormat: outputFormat,
		prettyLimit:  80,
		historyPath:  historyPath,
		initPrompt:   "> ",
		bufferPrompt: "| ",
		banner:       banner,
	}
}

// Loop will run until the user enters "exit", Ctrl+C, Ctrl+D, or an unexpected error occurs.
func (r *REPL) Loop(ctx context.Context) {

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(true)
	r.loadHistory(line)

	if len(r.banner) > 0 {
		fmt.Fprintln(r.output, r.banner)
	}

	line.SetCompleter(r.complete)

	for {

		input, err := line.Prompt(r.getPrompt())

		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Fprintln(r.output, "Exiting")
			break
		}

		if err != nil {
			fmt.Fprintln(r.output, "error (fatal):", err)
			os.Exit(1)
		}

		if err := r.OneShot(ctx, input); err != nil {
			if _, ok := err.(stop); ok {
				fmt.Fprintln(r.output, "Exiting")
				line.AppendHistory(input)
				break
			}
			fmt.Fprintln(r.output, "error:", err)
		}

		line.AppendHistory(input)
	}

	r.saveHistory(line)
}

// OneShot evaluates the line and prints the result. If an error occurs it is
// returned for the caller to display. A statement may span several lines:
// lines are buffered until they read as complete statements or an empty
// line is entered.
func (r *REPL) OneShot(ctx context.Context, line string) error {

	if len(r.buffer) == 0 {
		if cmd := newCommand(line); cmd != nil {
			switch cmd.op {
			case "show":
				return r.cmdShow()
			case "unset":
				return r.cmdUnset(cmd.args)
			case "json":
				return r.cmdFormat(presentation.JSON)
			case "pretty":
				return r.cmdFormat(presentation.Pretty)
			case "facts":
				return r.cmdFormat(presentation.Facts)
			case "magic":
				return r.cmdMagic()
			case "explain":
				return r.cmdExplain()
			case "help":
				return r.cmdHelp()
			case "exit":
				return r.cmdExit()
			}
		}
	}

	r.buffer = append(r.buffer, line)
	input := strings.Join(r.buffer, "\n")

	if len(strings.TrimSpace(input)) == 0 {
		r.buffer = nil
		return nil
	}

	mod, err := ast.ParseModule("", input, nil)
	if err != nil {
		if r.bufferDisabled || len(strings.TrimSpace(line)) == 0 {
			r.buffer = nil
			return err
		}
		return nil
	}

	r.buffer = nil

	return r.evalModule(ctx, mod)
}

// DisableMultiLineBuffering causes the REPL to not buffer lines when a parse
// error occurs. Instead, the error will be returned to the caller.
func (r *REPL) DisableMultiLineBuffering(yes bool) *REPL {
	r.bufferDisabled = yes
	return r
}

// WithPrettyLimit sets the length after which pretty output is truncated.
func (r *REPL) WithPrettyLimit(limit int) *REPL {
	r.prettyLimit = limit
	return r
}

// Program returns the program the REPL evaluates against.
func (r *REPL) Program() *eval.Program {
	return r.program
}

func (r *REPL) evalModule(ctx context.Context, mod *ast.Module) error {

	for _, f := range mod.Facts {
		if err := r.program.AddFact(f); err != nil {
			return err
		}
	}

	if len(mod.Rules) > 0 {
		prev := r.program.Rules
		rules := append(append([]*ast.Rule{}, prev...), mod.Rules...)
		if _, err := r.engine.Compile(rules); err != nil {
			return err
		}
		r.program.Rules = rules
	}

	for _, q := range mod.Queries {
		if err := r.evalQuery(ctx, q); err != nil {
			return err
		}
	}

	return nil
}

func (r *REPL) evalQuery(ctx context.Context, q *ast.Query) error {

	var tracer *eval.BufferTracer
	if r.explain {
		tracer = eval.NewBufferTracer()
		r.engine.WithTracer(tracer)
		defer r.engine.WithTracer(nil)
	}

	answer, err := r.engine.Query(ctx, r.program, q)
	if err != nil {
		return err
	}

	if tracer != nil {
		tracer.PrettyTrace(r.output)
		fmt.Fprintln(r.output)
	}

	result := presentation.NewEvalResult(eval.Answers{answer})

	if r.outputFormat == presentation.Pretty {
		presentation.PrintPrettyBinding(r.output, result.Answers[0], r.prettyLimit)
		return nil
	}

	return presentation.Print(r.output, r.outputFormat, result, r.prettyLimit)
}

func (r *REPL) cmdShow() error {
	for _, p := range sortedPredicates(r.program) {
		for _, t := range r.program.Facts[p].Tuples() {
			fmt.Fprintf(r.output, "%v.\n", ast.NewAtom(p, t))
		}
	}
	for _, rule := range r.program.Rules {
		fmt.Fprintln(r.output, rule)
	}
	return nil
}

func (r *REPL) cmdUnset(args []string) error {

	if len(args) != 1 {
		return newBadArgsErr("unset <predicate>: expects exactly one argument")
	}

	symbol := args[0]
	var found bool

	rules := make([]*ast.Rule, 0, len(r.program.Rules))
	for _, rule := range r.program.Rules {
		if definesSymbol(rule, symbol) {
			found = true
			continue
		}
		rules = append(rules, rule)
	}

	for p := range r.program.Facts {
		if p.Symbol == symbol {
			found = true
			delete(r.program.Facts, p)
		}
	}

	if !found {
		fmt.Fprintln(r.output, "warning: no matching facts or rules")
		return nil
	}

	r.program.Rules = rules
	return nil
}

func (r *REPL) cmdFormat(s string) error {
	r.outputFormat = s
	return nil
}

func (r *REPL) cmdMagic() error {
	yes := !r.engine.Config().MagicSets
	r.engine.WithMagicSets(yes)
	fmt.Fprintln(r.output, "magic sets", onOff(yes))
	return nil
}

func (r *REPL) cmdExplain() error {
	r.explain = !r.explain
	fmt.Fprintln(r.output, "explain", onOff(r.explain))
	return nil
}

func (r *REPL) cmdHelp() error {
	fmt.Fprintln(r.output, "")
	printHelpExamples(r.output, r.initPrompt)
	printHelpCommands(r.output)
	return nil
}

func (r *REPL) cmdExit() error {
	return stop{}
}

// complete returns the predicate symbols and commands starting with the last
// word of line.
func (r *REPL) complete(line string) []string {

	prefix := line
	if i := strings.LastIndexAny(line, " ,(!"); i >= 0 {
		prefix = line[i+1:]
	}
	head := line[:len(line)-len(prefix)]

	seen := map[string]struct{}{}
	var c []string

	add := func(s string) {
		if _, ok := seen[s]; ok || !strings.HasPrefix(s, prefix) {
			return
		}
		seen[s] = struct{}{}
		c = append(c, head+s)
	}

	for _, p := range sortedPredicates(r.program) {
		add(p.Symbol)
	}
	for _, rule := range r.program.Rules {
		for _, h := range rule.Head {
			add(h.Predicate().Symbol)
		}
	}
	if head == "" {
		for _, cmd := range builtin {
			add(cmd.name)
		}
	}

	sort.Strings(c)
	return c
}

func (r *REPL) getPrompt() string {
	if len(r.buffer) > 0 {
		return r.bufferPrompt
	}
	return r.initPrompt
}

func (r *REPL) loadHistory(prompt *liner.State) {
	if r.historyPath == "" {
		return
	}
	if f, err := os.Open(r.historyPath); err == nil {
		prompt.ReadHistory(f)
		f.Close()
	}
}

func (r *REPL) saveHistory(prompt *liner.State) {
	if r.historyPath == "" {
		return
	}
	if f, err := os.Create(r.historyPath); err == nil {
		prompt.WriteHistory(f)
		f.Close()
	}
}

func definesSymbol(rule *ast.Rule, symbol string) bool {
	for _, h := range rule.Head {
		if h.Predicate().Symbol == symbol {
			return true
		}
	}
	return false
}

func sortedPredicates(p *eval.Program) []ast.Predicate {
	ps := make([]ast.Predicate, 0, len(p.Facts))
	for pred := range p.Facts {
		ps = append(ps, pred)
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Symbol != ps[j].Symbol {
			return ps[i].Symbol < ps[j].Symbol
		}
		return ps[i].Arity < ps[j].Arity
	})
	return ps
}

func onOff(yes bool) string {
	if yes {
		return "on"
	}
	return "off"
}

type commandDesc struct {
	name string
	args []string
	help string
}

func (c commandDesc) syntax() string {
	if len(c.args) > 0 {
		return fmt.Sprintf("%v %v", c.name, strings.Join(c.args, " "))
	}
	return c.name
}

type exampleDesc struct {
	example string
	comment string
}

var examples = [...]exampleDesc{
	{"edge(a, b).", "add a fact"},
	{"path(?X, ?Y) :- edge(?X, ?Y).", "add a rule"},
	{"?- path(a, ?Y).", "answer a query"},
}

var extra = [...]commandDesc{
	{"<stmt>", []string{}, "add the facts and rules or answer the query"},
}

var builtin = [...]commandDesc{
	{"show", []string{}, "show the facts and rules of the program"},
	{"unset", []string{"<predicate>"}, "remove the facts and rules of a predicate"},
	{"json", []string{}, "set output format to JSON"},
	{"pretty", []string{}, "set output format to pretty"},
	{"facts", []string{}, "set output format to facts"},
	{"magic", []string{}, "toggle the magic-set rewrite"},
	{"explain", []string{}, "toggle the evaluation trace"},
	{"help", []string{}, "print this message"},
	{"exit", []string{}, "exit back to shell (or ctrl+c, ctrl+d)"},
}

type command struct {
	op   string
	args []string
}

func newCommand(line string) *command {
	p := strings.Fields(strings.TrimSpace(line))
	if len(p) == 0 {
		return nil
	}
	for _, c := range builtin {
		if c.name == strings.ToLower(p[0]) {
			return &command{
				op:   c.name,
				args: p[1:],
			}
		}
	}
	return nil
}

func printHelpExamples(output io.Writer, promptSymbol string) {

	fmt.Fprintln(output, "Examples")
	fmt.Fprintln(output, "========")
	fmt.Fprintln(output, "")

	maxLength := 0
	for _, ex := range examples {
		if len(ex.example) > maxLength {
			maxLength = len(ex.example)
		}
	}

	f := fmt.Sprintf("%v%%-%dv # %%v\n", promptSymbol, maxLength+1)

	for _, ex := range examples {
		fmt.Fprintf(output, f, ex.example, ex.comment)
	}

	fmt.Fprintln(output, "")
}

func printHelpCommands(output io.Writer) {

	fmt.Fprintln(output, "Commands")
	fmt.Fprintln(output, "========")
	fmt.Fprintln(output, "")

	all := extra[:]
	all = append(all, builtin[:]...)

	maxLength := 0

	for _, c := range all {
		length := len(c.syntax())
		if length > maxLength {
			maxLength = length
		}
	}

	f := fmt.Sprintf("%%%dv : %%v\n", maxLength)

	for _, c := range all {
		fmt.Fprintf(output, f, c.syntax(), c.help)
	}

	fmt.Fprintln(output, "")
}
