// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Term declares the common interface for all terms. Every kind of term in the
// language is represented as a type that implements this interface:
//
// - Var
// - Boolean, Integer, Double, String (constants)
// - Construct (function symbol applied to arguments)
//
// The set of implementations is closed; code switching over terms handles
// exactly these cases.
type Term interface {
	// Equal returns true if this term equals the other term.
	Equal(other Term) bool

	// IsGround returns true if this term is not a variable and contains no
	// variables.
	IsGround() bool

	// Hash returns the hash code of the term.
	Hash() uint64

	// String returns a human readable string representation of the term.
	String() string

	isTerm()
}

// Constant is implemented by the ground scalar terms. Constants are opaque
// to the engine beyond their total order and equality.
type Constant interface {
	Term

	// Value returns the underlying Go value.
	Value() any
}

const (
	varTag byte = iota + 1
	booleanTag
	integerTag
	doubleTag
	stringTag
	constructTag
)

func hashString(tag byte, s string) uint64 {
	d := xxhash.New()
	_, _ = d.Write([]byte{tag})
	_, _ = d.WriteString(s)
	return d.Sum64()
}

// Var represents a variable. Variables are written with a leading question
// mark, e.g., ?X.
type Var string

// VarTerm returns a Var with the given name. A leading "?" is stripped.
func VarTerm(name string) Var {
	return Var(strings.TrimPrefix(name, "?"))
}

func (Var) isTerm() {}

// Equal returns true if the other term is a Var with the same name.
func (v Var) Equal(other Term) bool {
	o, ok := other.(Var)
	return ok && v == o
}

// IsGround always returns false.
func (Var) IsGround() bool {
	return false
}

// Hash returns the hash code for the Var.
func (v Var) Hash() uint64 {
	return hashString(varTag, string(v))
}

func (v Var) String() string {
	return "?" + string(v)
}

// Boolean represents a boolean constant.
type Boolean bool

func (Boolean) isTerm() {}

// Equal returns true if the other term is a Boolean and is equal.
func (b Boolean) Equal(other Term) bool {
	o, ok := other.(Boolean)
	return ok && b == o
}

// IsGround always returns true.
func (Boolean) IsGround() bool {
	return true
}

// Hash returns the hash code for the Boolean.
func (b Boolean) Hash() uint64 {
	if b {
		return hashString(booleanTag, "1")
	}
	return hashString(booleanTag, "0")
}

// Value returns the underlying bool.
func (b Boolean) Value() any {
	return bool(b)
}

func (b Boolean) String() string {
	return strconv.FormatBool(bool(b))
}

// Integer represents an integral numeric constant.
type Integer int64

func (Integer) isTerm() {}

// Equal returns true if the other term is an Integer and is equal.
func (i Integer) Equal(other Term) bool {
	o, ok := other.(Integer)
	return ok && i == o
}

// IsGround always returns true.
func (Integer) IsGround() bool {
	return true
}

// Hash returns the hash code for the Integer.
func (i Integer) Hash() uint64 {
	return hashString(integerTag, strconv.FormatInt(int64(i), 10))
}

// Value returns the underlying int64.
func (i Integer) Value() any {
	return int64(i)
}

func (i Integer) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// Double represents a floating point numeric constant.
type Double float64

func (Double) isTerm() {}

// Equal returns true if the other term is a Double and is equal.
func (d Double) Equal(other Term) bool {
	o, ok := other.(Double)
	return ok && d == o
}

// IsGround always returns true.
func (Double) IsGround() bool {
	return true
}

// Hash returns the hash code for the Double.
func (d Double) Hash() uint64 {
	return hashString(doubleTag, strconv.FormatUint(math.Float64bits(float64(d)), 16))
}

// Value returns the underlying float64.
func (d Double) Value() any {
	return float64(d)
}

func (d Double) String() string {
	s := strconv.FormatFloat(float64(d), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// String represents a string constant.
type String string

func (String) isTerm() {}

// Equal returns true if the other term is a String and is equal.
func (s String) Equal(other Term) bool {
	o, ok := other.(String)
	return ok && s == o
}

// IsGround always returns true.
func (String) IsGround() bool {
	return true
}

// Hash returns the hash code for the String.
func (s String) Hash() uint64 {
	return hashString(stringTag, string(s))
}

// Value returns the underlying string.
func (s String) Value() any {
	return string(s)
}

var identRegexp = regexp.MustCompile("^[[:lower:]][[:alpha:][:digit:]_]*$")

func (s String) String() string {
	str := string(s)
	if identRegexp.MatchString(str) && str != "true" && str != "false" && str != "not" {
		return str
	}
	return "'" + strings.ReplaceAll(str, "'", "\\'") + "'"
}

// Construct represents a function symbol applied to an ordered list of
// arguments, e.g., f(?X, a). The number of arguments is fixed when the
// construct is created.
type Construct struct {
	Symbol string
	Args   []Term
}

// NewConstruct returns a new Construct. The arguments are copied.
func NewConstruct(symbol string, args ...Term) *Construct {
	cpy := make([]Term, len(args))
	copy(cpy, args)
	return &Construct{Symbol: symbol, Args: cpy}
}

func (*Construct) isTerm() {}

// Arity returns the number of arguments of the construct.
func (c *Construct) Arity() int {
	return len(c.Args)
}

// Equal returns true if the other term is a Construct with the same symbol
// and equal arguments.
func (c *Construct) Equal(other Term) bool {
	o, ok := other.(*Construct)
	if !ok {
		return false
	}
	if c == o {
		return true
	}
	return c.Symbol == o.Symbol && termSliceEqual(c.Args, o.Args)
}

// IsGround returns true if all of the arguments are ground.
func (c *Construct) IsGround() bool {
	stack := []*Construct{c}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, a := range x.Args {
			switch a := a.(type) {
			case Var:
				return false
			case *Construct:
				stack = append(stack, a)
			}
		}
	}
	return true
}

// Hash returns the hash code for the Construct.
func (c *Construct) Hash() uint64 {
	h := hashString(constructTag, c.Symbol)
	for _, a := range c.Args {
		h = h*31 + a.Hash()
	}
	return h
}

func (c *Construct) String() string {
	buf := make([]string, len(c.Args))
	for i, a := range c.Args {
		buf[i] = a.String()
	}
	return c.Symbol + "(" + strings.Join(buf, ", ") + ")"
}

// NewConstant converts a Go value into a constant term. Supported inputs are
// bool, signed integers, floats and strings.
func NewConstant(x any) (Constant, error) {
	switch x := x.(type) {
	case bool:
		return Boolean(x), nil
	case int:
		return Integer(x), nil
	case int32:
		return Integer(x), nil
	case int64:
		return Integer(x), nil
	case float32:
		return Double(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Integer(int64(x)), nil
		}
		return Double(x), nil
	case string:
		return String(x), nil
	}
	return nil, fmt.Errorf("illegal constant: %v (%T)", x, x)
}

// TermVars returns the variables contained in t in order of first
// appearance.
func TermVars(t Term) []Var {
	var result []Var
	seen := VarSet{}
	WalkVars(t, func(v Var) {
		if !seen.Contains(v) {
			seen.Add(v)
			result = append(result, v)
		}
	})
	return result
}

// WalkVars calls f for every variable occurrence in t, left to right. Deep
// terms are traversed with an explicit stack.
func WalkVars(t Term, f func(Var)) {
	stack := []Term{t}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch x := x.(type) {
		case Var:
			f(x)
		case *Construct:
			for i := len(x.Args) - 1; i >= 0; i-- {
				stack = append(stack, x.Args[i])
			}
		}
	}
}

// Substitute returns a copy of t with variables replaced according to
// bindings. Unbound variables are left in place.
func Substitute(t Term, bindings map[Var]Term) Term {
	switch x := t.(type) {
	case Var:
		if v, ok := bindings[x]; ok {
			return v
		}
		return x
	case *Construct:
		if x.IsGround() {
			return x
		}
		args := make([]Term, len(x.Args))
		for i := range x.Args {
			args[i] = Substitute(x.Args[i], bindings)
		}
		return &Construct{Symbol: x.Symbol, Args: args}
	default:
		return t
	}
}

func termSliceEqual(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
