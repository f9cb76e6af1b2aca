// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/open-policy-agent/opalog/ast/internal/scanner"
	"github.com/open-policy-agent/opalog/ast/internal/tokens"
	"github.com/open-policy-agent/opalog/internal/levenshtein"
)

// Parser reads Datalog source text into a Module.
//
// The accepted syntax is:
//
//	path(?X, ?Y) :- edge(?X, ?Z), path(?Z, ?Y).   % rule
//	edge(a, b).                                  % fact
//	?- path(a, ?Y).                              % query
//
// Variables are written ?X or start with an upper case letter or an
// underscore. Lower case identifiers and quoted text are string constants,
// f(...) is a constructed term. Negation is written with ! or not. The
// comparison builtins may be written infix. Whether a literal refers to a
// builtin is decided by looking up its symbol and arity in the registry.
type Parser struct {
	r        io.Reader
	filename string
	reg      *Registry
	s        *scanner.Scanner
	tok      tokens.Token
	pos      scanner.Position
	lit      string
	errors   Errors
}

// NewParser creates and initializes a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// WithFilename provides the filename for Location details
// on parsed clauses.
func (p *Parser) WithFilename(filename string) *Parser {
	p.filename = filename
	return p
}

// WithReader provides the io.Reader that the parser will
// use as its source.
func (p *Parser) WithReader(r io.Reader) *Parser {
	p.r = r
	return p
}

// WithRegistry sets the builtin registry used to classify literals. The
// default registry is used if none is set.
func (p *Parser) WithRegistry(reg *Registry) *Parser {
	p.reg = reg
	return p
}

// Parse reads all clauses from the reader. Parse continues after errors
// with the next clause so that all errors in the input are reported.
func (p *Parser) Parse() (*Module, Errors) {

	if p.reg == nil {
		p.reg = DefaultRegistry()
	}

	if p.r == nil {
		p.r = bytes.NewReader(nil)
	}

	var err error
	p.s, err = scanner.New(p.r)
	if err != nil {
		return nil, Errors{NewError(ParseErr, nil, "%v", err)}
	}
	p.s = p.s.WithFilename(p.filename)

	p.scan()

	mod := &Module{}

	for p.tok != tokens.EOF {
		if !p.parseClause(mod) {
			p.recover()
		}
	}

	if len(p.errors) > 0 {
		p.errors.Sort()
		return nil, p.errors
	}

	return mod, nil
}

func (p *Parser) parseClause(mod *Module) bool {

	if p.tok == tokens.Query {
		p.scan()
		body := p.parseBody()
		if body == nil || !p.expect(tokens.Dot) {
			return false
		}
		mod.Queries = append(mod.Queries, &Query{Body: body})
		return true
	}

	loc := p.location()

	head := p.parseBody()
	if head == nil {
		return false
	}

	for _, l := range head {
		if !l.Positive {
			p.error(loc, "head literal %v must be positive", l)
			return false
		}
		if l.IsBuiltin() {
			p.error(loc, "head literal %v must not refer to a builtin", l)
			return false
		}
	}

	var body []*Literal

	if p.tok == tokens.Rule {
		p.scan()
		if body = p.parseBody(); body == nil {
			return false
		}
	}

	if !p.expect(tokens.Dot) {
		return false
	}

	if len(body) == 0 && len(head) == 1 && head[0].Atom.IsGround() {
		mod.Facts = append(mod.Facts, head[0].Atom)
		return true
	}

	mod.Rules = append(mod.Rules, &Rule{Head: head, Body: body})
	return true
}

func (p *Parser) parseBody() []*Literal {

	var body []*Literal

	for {
		lit := p.parseLiteral()
		if lit == nil {
			return nil
		}
		body = append(body, lit)
		if p.tok != tokens.Comma {
			return body
		}
		p.scan()
	}
}

func (p *Parser) parseLiteral() *Literal {

	loc := p.location()
	positive := true

	if p.tok == tokens.Bang || p.tok == tokens.Not {
		positive = false
		p.scan()
	}

	term, bare := p.parseTerm()
	if term == nil {
		return nil
	}

	if tokens.IsInfix(p.tok) {
		op := p.tok.String()
		p.scan()
		right, _ := p.parseTerm()
		if right == nil {
			return nil
		}
		b, ok := p.reg.Lookup(op, 2)
		if !ok {
			p.errorCode(ArityErr, loc, "unknown builtin %v/2", op)
			return nil
		}
		return NewLiteral(positive, NewAtom(b.Predicate(), Tuple{term, right}))
	}

	var symbol string
	var args Tuple

	switch t := term.(type) {
	case *Construct:
		symbol, args = t.Symbol, Tuple(t.Args)
	case String:
		if !bare {
			p.error(loc, "expected literal but got %v", t)
			return nil
		}
		symbol = string(t)
	default:
		p.error(loc, "expected literal but got %v", term)
		return nil
	}

	pred := NewPredicate(symbol, len(args))
	if _, ok := p.reg.Lookup(symbol, len(args)); ok {
		pred.Builtin = true
	} else if isBuiltinName(symbol) {
		p.errorCode(ArityErr, loc, "unknown builtin %v/%d%v", symbol, len(args), p.builtinHint(symbol))
		return nil
	}

	return NewLiteral(positive, NewAtom(pred, args))
}

// parseTerm returns the next term. The boolean result is true if the term
// was a bare identifier.
func (p *Parser) parseTerm() (Term, bool) {

	loc := p.location()

	switch p.tok {
	case tokens.Var:
		v := VarTerm(p.lit)
		p.scan()
		return v, false
	case tokens.True, tokens.False:
		b := Boolean(p.tok == tokens.True)
		p.scan()
		return b, false
	case tokens.Number:
		n, err := parseNumber(p.lit)
		if err != nil {
			p.error(loc, "%v", err)
			return nil, false
		}
		p.scan()
		return n, false
	case tokens.String:
		s, err := unquote(p.lit)
		if err != nil {
			p.error(loc, "%v", err)
			return nil, false
		}
		p.scan()
		return String(s), false
	case tokens.Ident:
		name := p.lit
		p.scan()
		if p.tok == tokens.LParen {
			p.scan()
			args := p.parseArgs()
			if args == nil {
				return nil, false
			}
			return &Construct{Symbol: name, Args: args}, false
		}
		if r := rune(name[0]); r == '_' || unicode.IsUpper(r) {
			return Var(name), false
		}
		return String(name), true
	}

	p.illegal("expected term")
	return nil, false
}

func (p *Parser) parseArgs() []Term {

	args := []Term{}

	if p.tok == tokens.RParen {
		p.scan()
		return args
	}

	for {
		t, _ := p.parseTerm()
		if t == nil {
			return nil
		}
		args = append(args, t)
		switch p.tok {
		case tokens.Comma:
			p.scan()
		case tokens.RParen:
			p.scan()
			return args
		default:
			p.illegal("expected , or )")
			return nil
		}
	}
}

func (p *Parser) expect(tok tokens.Token) bool {
	if p.tok != tok {
		p.illegal("expected %v", tok)
		return false
	}
	p.scan()
	return true
}

// recover skips to the end of the current clause.
func (p *Parser) recover() {
	for p.tok != tokens.EOF {
		tok := p.tok
		p.scan()
		if tok == tokens.Dot {
			return
		}
	}
}

func (p *Parser) scan() {
	for {
		var errs []scanner.Error
		p.tok, p.pos, p.lit, errs = p.s.Scan()
		for _, err := range errs {
			p.error(&Location{File: p.filename, Row: err.Pos.Row, Col: err.Pos.Col}, "%v", err.Message)
		}
		if p.tok != tokens.Whitespace && p.tok != tokens.Comment {
			return
		}
	}
}

func (p *Parser) location() *Location {
	return &Location{File: p.filename, Row: p.pos.Row, Col: p.pos.Col}
}

func (p *Parser) illegal(f string, a ...any) {
	found := p.tok.String()
	if p.lit != "" {
		found = strconv.Quote(p.lit)
	}
	p.error(p.location(), "%v but got %v", fmt.Sprintf(f, a...), found)
}

func (p *Parser) error(loc *Location, f string, a ...any) {
	p.errorCode(ParseErr, loc, f, a...)
}

func (p *Parser) errorCode(code ErrCode, loc *Location, f string, a ...any) {
	p.errors = append(p.errors, NewError(code, loc, f, a...))
}

func parseNumber(lit string) (Term, error) {
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return Integer(i), nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, fmt.Errorf("illegal number %v", lit)
	}
	return Double(f), nil
}

func unquote(lit string) (string, error) {
	if len(lit) < 2 || lit[0] != lit[len(lit)-1] {
		return "", fmt.Errorf("illegal string %v", lit)
	}
	var buf strings.Builder
	escaped := false
	for _, r := range lit[1 : len(lit)-1] {
		if !escaped {
			if r == '\\' {
				escaped = true
			} else {
				buf.WriteRune(r)
			}
			continue
		}
		escaped = false
		switch r {
		case 'n':
			buf.WriteByte('\n')
		case 't':
			buf.WriteByte('\t')
		case 'r':
			buf.WriteByte('\r')
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String(), nil
}

// isBuiltinName returns true for symbols spelled like the arithmetic
// builtins: at least two characters, all of them upper case letters or
// underscores.
func isBuiltinName(symbol string) bool {
	if len(symbol) < 2 {
		return false
	}
	for _, r := range symbol {
		if r != '_' && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func (p *Parser) builtinHint(symbol string) string {
	builtins := p.reg.Builtins()
	for _, b := range builtins {
		if b.Name == symbol {
			return fmt.Sprintf(" (%v takes %d arguments)", b.Name, b.Arity)
		}
	}
	names := func(yield func(string) bool) {
		for _, b := range builtins {
			if !yield(b.Name) {
				return
			}
		}
	}
	closest := levenshtein.Closest(2, symbol, names)
	if len(closest) == 0 {
		return ""
	}
	return fmt.Sprintf(" (did you mean %v?)", strings.Join(closest, " or "))
}
