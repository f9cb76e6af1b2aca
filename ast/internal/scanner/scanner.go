// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scanner

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/open-policy-agent/opalog/ast/internal/tokens"
)

const bom = 0xFEFF

// Scanner is used to tokenize an input stream of program text.
type Scanner struct {
	offset   int
	row      int
	col      int
	bs       []byte
	curr     rune
	width    int
	errors   []Error
	filename string
}

// Error represents a scanner error.
type Error struct {
	Pos     Position
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%d:%d: %v", e.Pos.Row, e.Pos.Col, e.Message)
}

// Position represents a point in the scanned source code.
type Position struct {
	Offset int // start offset in bytes
	End    int // end offset in bytes
	Row    int // line number computed in bytes
	Col    int // column number computed in bytes
}

// New returns an initialized scanner that will scan
// through the source code provided by the io.Reader.
func New(r io.Reader) (*Scanner, error) {

	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	s := &Scanner{
		offset: 0,
		row:    1,
		col:    0,
		bs:     bs,
		curr:   -1,
		width:  0,
	}

	s.next()

	if s.curr == bom {
		s.next()
	}

	return s, nil
}

// WithFilename sets the name reported with errors.
func (s *Scanner) WithFilename(filename string) *Scanner {
	s.filename = filename
	return s
}

// Filename returns the name of the scanned source.
func (s *Scanner) Filename() string {
	return s.filename
}

// Scan will increment the scanners position in the source
// code until the next token is found. The token, starting position
// of the token, string literal, and any errors encountered are
// returned. A token will always be returned, the caller must check
// for any errors before using the other values.
func (s *Scanner) Scan() (tokens.Token, Position, string, []Error) {

	pos := Position{Offset: s.offset - s.width, Row: s.row, Col: s.col}
	var tok tokens.Token
	var lit string

	if s.isWhitespace() {
		lit = string(s.curr)
		s.next()
		tok = tokens.Whitespace
	} else if isLetter(s.curr) {
		lit = s.scanIdentifier()
		tok = tokens.Keyword(lit)
	} else if isDecimal(s.curr) || (s.curr == '-' && isDecimal(s.peek(0))) {
		lit = s.scanNumber()
		tok = tokens.Number
	} else {
		ch := s.curr
		s.next()
		switch ch {
		case -1:
			tok = tokens.EOF
		case '?':
			if s.curr == '-' {
				s.next()
				tok = tokens.Query
			} else if isLetter(s.curr) {
				lit = "?" + s.scanIdentifier()
				tok = tokens.Var
			} else {
				s.error("illegal variable name")
				tok = tokens.Illegal
			}
		case '"', '\'':
			tok = tokens.String
			lit = s.scanString(ch)
		case '%':
			tok = tokens.Comment
			lit = s.scanComment()
		case '/':
			if s.curr == '/' {
				tok = tokens.Comment
				lit = s.scanComment()
			} else {
				tok = tokens.Illegal
			}
		case '(':
			tok = tokens.LParen
		case ')':
			tok = tokens.RParen
		case ',':
			tok = tokens.Comma
		case '.':
			tok = tokens.Dot
		case ':':
			if s.curr == '-' {
				s.next()
				tok = tokens.Rule
			} else {
				tok = tokens.Illegal
			}
		case '!':
			if s.curr == '=' {
				s.next()
				tok = tokens.Neq
			} else {
				tok = tokens.Bang
			}
		case '=':
			tok = tokens.Equal
		case '<':
			if s.curr == '=' {
				s.next()
				tok = tokens.Lte
			} else {
				tok = tokens.Lt
			}
		case '>':
			if s.curr == '=' {
				s.next()
				tok = tokens.Gte
			} else {
				tok = tokens.Gt
			}
		default:
			tok = tokens.Illegal
		}
	}

	pos.End = s.offset - s.width
	errs := s.errors
	s.errors = nil

	return tok, pos, lit, errs
}

func (s *Scanner) scanIdentifier() string {
	start := s.offset - s.width
	for isLetter(s.curr) || isDigit(s.curr) {
		s.next()
	}
	return string(s.bs[start : s.offset-s.width])
}

func (s *Scanner) scanNumber() string {

	start := s.offset - s.width

	if s.curr == '-' {
		s.next()
	}

	for isDecimal(s.curr) {
		s.next()
	}

	// A dot is only part of the number when a digit follows, otherwise it
	// terminates the clause.
	if s.curr == '.' && isDecimal(s.peek(0)) {
		s.next()
		for isDecimal(s.curr) {
			s.next()
		}
	}

	if s.curr == 'e' || s.curr == 'E' {
		s.next()
		if s.curr == '+' || s.curr == '-' {
			s.next()
		}
		if !isDecimal(s.curr) {
			s.error("exponent has no digits")
		}
		for isDecimal(s.curr) {
			s.next()
		}
	}

	// Scan any digits following the decimals to get the
	// entire invalid number/identifier.
	// Example: 0a2b should be a single invalid number "0a2b"
	// rather than a number "0", followed by identifier "a2b".
	if isLetter(s.curr) {
		s.error("illegal number format")
		for isLetter(s.curr) || isDigit(s.curr) {
			s.next()
		}
	}

	return string(s.bs[start : s.offset-s.width])
}

func (s *Scanner) scanString(quote rune) string {
	start := s.literalStart()
	for {
		ch := s.curr

		if ch == '\n' || ch < 0 {
			s.error("non-terminated string")
			break
		}

		s.next()

		if ch == quote {
			break
		}

		if ch == '\\' {
			switch s.curr {
			case '\\', '"', '\'', 'n', 't', 'r':
				s.next()
			default:
				s.error("illegal escape sequence")
			}
		}
	}
	return string(s.bs[start : s.offset-s.width])
}

func (s *Scanner) scanComment() string {
	start := s.literalStart()
	for s.curr != '\n' && s.curr != -1 {
		s.next()
	}
	end := s.offset - s.width
	// Trim carriage returns that precede the newline
	if end > start && s.bs[end-1] == '\r' {
		end--
	}
	return string(s.bs[start:end])
}

func (s *Scanner) next() {

	if s.offset >= len(s.bs) {
		s.curr = -1
		s.offset = len(s.bs) + 1
		s.width = 1
		return
	}

	s.curr = rune(s.bs[s.offset])
	s.width = 1

	if s.curr == 0 {
		s.error("illegal null character")
	} else if s.curr >= utf8.RuneSelf {
		s.curr, s.width = utf8.DecodeRune(s.bs[s.offset:])
		if s.curr == utf8.RuneError && s.width == 1 {
			s.error("illegal utf-8 character")
		} else if s.curr == bom && s.offset > 0 {
			s.error("illegal byte-order mark")
		}
	}

	s.offset += s.width

	if s.curr == '\n' {
		s.row++
		s.col = 0
	} else {
		s.col++
	}
}

func (s *Scanner) peek(i int) rune {
	if s.offset+i < len(s.bs) {
		return rune(s.bs[s.offset+i])
	}
	return 0
}

func (s *Scanner) literalStart() int {
	// The current offset is at the first character past the literal delimiter (%, ", etc.)
	// Need to subtract width of first character (plus one for the delimiter).
	return s.offset - (s.width + 1)
}

func (s *Scanner) isWhitespace() bool {
	return s.curr == ' ' || s.curr == '\t' || s.curr == '\n' || s.curr == '\r'
}

func (s *Scanner) error(reason string) {
	s.errors = append(s.errors, Error{Pos: Position{
		Offset: s.offset,
		Row:    s.row,
		Col:    s.col,
	}, Message: reason})
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch rune) bool {
	return isDecimal(ch)
}

func isDecimal(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
