// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scanner

import (
	"bytes"
	"testing"

	"github.com/open-policy-agent/opalog/ast/internal/tokens"
)

func TestPositions(t *testing.T) {
	tests := []struct {
		note       string
		input      string
		wantOffset int
		wantEnd    int
	}{
		{
			note:       "symbol",
			input:      "(",
			wantOffset: 0,
			wantEnd:    1,
		},
		{
			note:       "rule",
			input:      ":-",
			wantOffset: 0,
			wantEnd:    2,
		},
		{
			note:       "ident",
			input:      "foo",
			wantOffset: 0,
			wantEnd:    3,
		},
		{
			note:       "var",
			input:      "?Foo",
			wantOffset: 0,
			wantEnd:    4,
		},
		{
			note:       "number",
			input:      "100",
			wantOffset: 0,
			wantEnd:    3,
		},
		{
			note:       "number followed by dot",
			input:      "100.",
			wantOffset: 0,
			wantEnd:    3,
		},
		{
			note:       "string",
			input:      `"foo"`,
			wantOffset: 0,
			wantEnd:    5,
		},
		{
			note:       "string - wide char",
			input:      `"foo÷"`,
			wantOffset: 0,
			wantEnd:    7,
		},
		{
			note:       "comment",
			input:      `% foo`,
			wantOffset: 0,
			wantEnd:    5,
		},
		{
			note:       "newline",
			input:      "foo\n",
			wantOffset: 0,
			wantEnd:    3,
		},
		{
			note:       "invalid number",
			input:      "0xDEADBEEF",
			wantOffset: 0,
			wantEnd:    10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			s, err := New(bytes.NewBufferString(tc.input))
			if err != nil {
				t.Fatal(err)
			}
			_, pos, _, _ := s.Scan()
			if pos.Offset != tc.wantOffset {
				t.Fatalf("want offset %d but got %d", tc.wantOffset, pos.Offset)
			}
			if pos.End != tc.wantEnd {
				t.Fatalf("want end %d but got %d", tc.wantEnd, pos.End)
			}
		})
	}
}

func TestLiterals(t *testing.T) {

	tests := []struct {
		note    string
		input   string
		wantTok tokens.Token
		wantLit string
	}{
		{
			note:    "double quoted",
			input:   `"hello world"`,
			wantTok: tokens.String,
			wantLit: `"hello world"`,
		},
		{
			note:    "single quoted",
			input:   `'¡¡¡foo, bar!!!'`,
			wantTok: tokens.String,
			wantLit: `'¡¡¡foo, bar!!!'`,
		},
		{
			note:    "negative number",
			input:   "-1.5e3",
			wantTok: tokens.Number,
			wantLit: "-1.5e3",
		},
		{
			note:    "keyword",
			input:   "not",
			wantTok: tokens.Not,
		},
		{
			note:    "slash comment",
			input:   "// foo",
			wantTok: tokens.Comment,
			wantLit: "// foo",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			s, err := New(bytes.NewBufferString(tc.input))
			if err != nil {
				t.Fatal(err)
			}
			tok, pos, lit, errs := s.Scan()
			if pos.Row != 1 {
				t.Errorf("Expected row 1 but got %d", pos.Row)
			}
			if tok != tc.wantTok {
				t.Errorf("Expected token %v but got %v", tc.wantTok, tok)
			}
			if tc.wantLit != "" && lit != tc.wantLit {
				t.Errorf("Expected literal %v but got %v", tc.wantLit, lit)
			}
			if len(errs) > 0 {
				t.Fatal("Unexpected error(s):", errs)
			}
		})
	}

}

func TestOperators(t *testing.T) {
	s, err := New(bytes.NewBufferString("?- ! != = < <= > >= , . ( )"))
	if err != nil {
		t.Fatal(err)
	}
	exp := []tokens.Token{
		tokens.Query, tokens.Bang, tokens.Neq, tokens.Equal, tokens.Lt, tokens.Lte,
		tokens.Gt, tokens.Gte, tokens.Comma, tokens.Dot, tokens.LParen, tokens.RParen, tokens.EOF,
	}
	var got []tokens.Token
	for {
		tok, _, _, _ := s.Scan()
		if tok == tokens.Whitespace {
			continue
		}
		got = append(got, tok)
		if tok == tokens.EOF {
			break
		}
	}
	if len(got) != len(exp) {
		t.Fatalf("Expected %v but got %v", exp, got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Fatalf("Expected %v at %d but got %v", exp[i], i, got[i])
		}
	}
}

func TestIllegalTokens(t *testing.T) {

	tests := []struct {
		input   string
		wantErr bool
	}{
		{input: `墳`},
		{input: `0e`, wantErr: true},
		{input: `"foo`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			s, err := New(bytes.NewBufferString(tc.input))
			if err != nil {
				t.Fatal(err)
			}
			tok, _, _, errs := s.Scan()
			if !tc.wantErr && tok != tokens.Illegal {
				t.Fatalf("expected illegal token on %q but got %v", tc.input, tok)
			} else if tc.wantErr && len(errs) == 0 {
				t.Fatalf("expected errors on %q but got %v", tc.input, tok)
			}
		})
	}
}
