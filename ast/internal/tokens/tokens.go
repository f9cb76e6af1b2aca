// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package tokens

// Token represents a single lexical token.
type Token int

func (t Token) String() string {
	if t < 0 || int(t) >= len(strings) {
		return "unknown"
	}
	return strings[t]
}

// All tokens must be defined here
const (
	Illegal Token = iota
	EOF
	Whitespace
	Ident
	Var
	Number
	String
	Comment

	Not
	True
	False

	LParen
	RParen
	Comma
	Dot
	Rule
	Query
	Bang
	Equal
	Neq
	Lt
	Lte
	Gt
	Gte
)

var strings = [...]string{
	Illegal:    "illegal",
	EOF:        "eof",
	Whitespace: "whitespace",
	Ident:      "identifier",
	Var:        "variable",
	Number:     "number",
	String:     "string",
	Comment:    "comment",
	Not:        "not",
	True:       "true",
	False:      "false",
	LParen:     "(",
	RParen:     ")",
	Comma:      ",",
	Dot:        ".",
	Rule:       ":-",
	Query:      "?-",
	Bang:       "!",
	Equal:      "=",
	Neq:        "!=",
	Lt:         "<",
	Lte:        "<=",
	Gt:         ">",
	Gte:        ">=",
}

var keywords = map[string]Token{
	"not":   Not,
	"true":  True,
	"false": False,
}

// Keyword will return a token for the passed in
// literal value. If the value is a keyword
// the corresponding token will be returned. If not
// it will return the Ident token.
func Keyword(lit string) Token {
	if tok, ok := keywords[lit]; ok {
		return tok
	}
	return Ident
}

// IsInfix returns true if the token is an infix comparison operator.
func IsInfix(tok Token) bool {
	switch tok {
	case Equal, Neq, Lt, Lte, Gt, Gte:
		return true
	}
	return false
}
