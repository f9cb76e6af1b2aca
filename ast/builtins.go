// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"math"
	"sort"
)

// BuiltinKind classifies builtins for safety analysis.
type BuiltinKind int

const (
	// Other builtins require all of their arguments to be limited.
	Other BuiltinKind = iota

	// Equality builtins limit one operand when the other is limited.
	Equality

	// Comparison builtins only test already limited operands.
	Comparison

	// Arithmetic builtins relate three operands. In relaxed mode any operand
	// is limited once the other two are.
	Arithmetic
)

func (k BuiltinKind) String() string {
	switch k {
	case Equality:
		return "equality"
	case Comparison:
		return "comparison"
	case Arithmetic:
		return "arithmetic"
	}
	return "other"
}

// BuiltinFunc evaluates a builtin on an argument tuple. Arguments that are
// not yet bound are passed as variables. On success the function returns the
// tuple with every argument bound. The boolean result is false if the
// arguments do not satisfy the builtin.
type BuiltinFunc func(args Tuple) (Tuple, bool, error)

// Builtin represents a built-in predicate supported by the engine.
type Builtin struct {
	Name  string
	Arity int
	Kind  BuiltinKind
	Eval  BuiltinFunc
}

// Predicate returns the predicate used by literals referring to the builtin.
func (b *Builtin) Predicate() Predicate {
	return Predicate{Symbol: b.Name, Arity: b.Arity, Builtin: true}
}

// Literal returns a positive literal for the builtin applied to args.
func (b *Builtin) Literal(args ...Term) *Literal {
	return NewLiteral(true, NewAtom(b.Predicate(), args))
}

type builtinKey struct {
	name  string
	arity int
}

// Registry holds the builtins known to a reader, analyzer or evaluator. The
// registry is an explicit value: callers construct one and pass it along.
type Registry struct {
	builtins map[builtinKey]*Builtin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: map[builtinKey]*Builtin{}}
}

// DefaultRegistry returns a new registry containing the default builtins:
// equality, inequality, ordering comparisons and arithmetic.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, b := range DefaultBuiltins {
		r.Register(b)
	}
	return r
}

// Register adds b to the registry, replacing any builtin with the same name
// and arity.
func (r *Registry) Register(b *Builtin) {
	r.builtins[builtinKey{b.Name, b.Arity}] = b
}

// Lookup returns the builtin with the given name and arity.
func (r *Registry) Lookup(name string, arity int) (*Builtin, bool) {
	if r == nil {
		return nil, false
	}
	b, ok := r.builtins[builtinKey{name, arity}]
	return b, ok
}

// LookupPredicate returns the builtin for p.
func (r *Registry) LookupPredicate(p Predicate) (*Builtin, bool) {
	if !p.Builtin {
		return nil, false
	}
	return r.Lookup(p.Symbol, p.Arity)
}

// Builtins returns the registered builtins sorted by name and arity.
func (r *Registry) Builtins() []*Builtin {
	result := make([]*Builtin, 0, len(r.builtins))
	for _, b := range r.builtins {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Arity < result[j].Arity
	})
	return result
}

// DefaultBuiltins is the list of builtins included in DefaultRegistry.
var DefaultBuiltins = [...]*Builtin{
	Equal, NotEqual,
	LessThan, LessThanEq, GreaterThan, GreaterThanEq,
	Add, Subtract, Multiply, Divide, Modulus,
}

/**
 * Unification
 */

// Equal represents the "=" operator. Evaluators unify the operands; the
// function below only handles constants and single unbound variables.
var Equal = &Builtin{
	Name:  "=",
	Arity: 2,
	Kind:  Equality,
	Eval: func(args Tuple) (Tuple, bool, error) {
		a, b := args[0], args[1]
		switch {
		case a.IsGround() && b.IsGround():
			return args, a.Equal(b), nil
		case b.IsGround():
			if _, ok := a.(Var); ok {
				return Tuple{b, b}, true, nil
			}
		case a.IsGround():
			if _, ok := b.(Var); ok {
				return Tuple{a, a}, true, nil
			}
		}
		return nil, false, unboundArgsErr("=", args)
	},
}

/**
 * Comparisons
 */

// NotEqual represents the "!=" operator.
var NotEqual = &Builtin{
	Name:  "!=",
	Arity: 2,
	Kind:  Comparison,
	Eval: compareFunc("!=", func(cmp int) bool {
		return cmp != 0
	}),
}

// LessThan represents the "<" operator.
var LessThan = &Builtin{
	Name:  "<",
	Arity: 2,
	Kind:  Comparison,
	Eval: compareFunc("<", func(cmp int) bool {
		return cmp < 0
	}),
}

// LessThanEq represents the "<=" operator.
var LessThanEq = &Builtin{
	Name:  "<=",
	Arity: 2,
	Kind:  Comparison,
	Eval: compareFunc("<=", func(cmp int) bool {
		return cmp <= 0
	}),
}

// GreaterThan represents the ">" operator.
var GreaterThan = &Builtin{
	Name:  ">",
	Arity: 2,
	Kind:  Comparison,
	Eval: compareFunc(">", func(cmp int) bool {
		return cmp > 0
	}),
}

// GreaterThanEq represents the ">=" operator.
var GreaterThanEq = &Builtin{
	Name:  ">=",
	Arity: 2,
	Kind:  Comparison,
	Eval: compareFunc(">=", func(cmp int) bool {
		return cmp >= 0
	}),
}

/**
 * Arithmetic
 */

// Add represents ADD(x, y, z) where x + y = z.
var Add = &Builtin{
	Name:  "ADD",
	Arity: 3,
	Kind:  Arithmetic,
	Eval: arithmeticFunc("ADD",
		func(x, y Term) (Term, error) { return addNumbers(x, y) },
		func(y, z Term) (Term, error) { return subtractNumbers(z, y) },
		func(x, z Term) (Term, error) { return subtractNumbers(z, x) },
	),
}

// Subtract represents SUBTRACT(x, y, z) where x - y = z.
var Subtract = &Builtin{
	Name:  "SUBTRACT",
	Arity: 3,
	Kind:  Arithmetic,
	Eval: arithmeticFunc("SUBTRACT",
		func(x, y Term) (Term, error) { return subtractNumbers(x, y) },
		func(y, z Term) (Term, error) { return addNumbers(z, y) },
		func(x, z Term) (Term, error) { return subtractNumbers(x, z) },
	),
}

// Multiply represents MULTIPLY(x, y, z) where x * y = z.
var Multiply = &Builtin{
	Name:  "MULTIPLY",
	Arity: 3,
	Kind:  Arithmetic,
	Eval: arithmeticFunc("MULTIPLY",
		func(x, y Term) (Term, error) { return multiplyNumbers(x, y) },
		func(y, z Term) (Term, error) { return divideNumbers(z, y) },
		func(x, z Term) (Term, error) { return divideNumbers(z, x) },
	),
}

// Divide represents DIVIDE(x, y, z) where x / y = z.
var Divide = &Builtin{
	Name:  "DIVIDE",
	Arity: 3,
	Kind:  Arithmetic,
	Eval: arithmeticFunc("DIVIDE",
		func(x, y Term) (Term, error) { return divideNumbers(x, y) },
		func(y, z Term) (Term, error) { return multiplyNumbers(z, y) },
		func(x, z Term) (Term, error) { return divideNumbers(x, z) },
	),
}

// Modulus represents MODULUS(x, y, z) where x % y = z. The remainder cannot
// be inverted so x and y must be bound.
var Modulus = &Builtin{
	Name:  "MODULUS",
	Arity: 3,
	Kind:  Arithmetic,
	Eval: arithmeticFunc("MODULUS",
		func(x, y Term) (Term, error) { return modulusNumbers(x, y) },
		nil,
		nil,
	),
}

func compareFunc(name string, test func(int) bool) BuiltinFunc {
	return func(args Tuple) (Tuple, bool, error) {
		if !args.IsGround() {
			return nil, false, unboundArgsErr(name, args)
		}
		return args, test(Compare(args[0], args[1])), nil
	}
}

type binaryOp func(a, b Term) (Term, error)

// arithmeticFunc returns a function for a ternary builtin. forward computes z
// from x and y, solveX computes x from y and z, and solveY computes y from x
// and z. The inverse operations may be nil.
func arithmeticFunc(name string, forward, solveX, solveY binaryOp) BuiltinFunc {
	return func(args Tuple) (Tuple, bool, error) {
		x, y, z := args[0], args[1], args[2]
		var op binaryOp
		var a, b Term
		var target int
		switch {
		case x.IsGround() && y.IsGround():
			op, a, b, target = forward, x, y, 2
		case y.IsGround() && z.IsGround() && solveX != nil:
			op, a, b, target = solveX, y, z, 0
		case x.IsGround() && z.IsGround() && solveY != nil:
			op, a, b, target = solveY, x, z, 1
		default:
			return nil, false, unboundArgsErr(name, args)
		}
		result, err := op(a, b)
		if err != nil {
			return nil, false, NewError(EvalErr, nil, "%v: %v", name, err)
		}
		out := NewTuple(args...)
		if out[target].IsGround() {
			return out, numericEqual(out[target], result), nil
		}
		if _, ok := out[target].(Var); !ok {
			return nil, false, unboundArgsErr(name, args)
		}
		out[target] = result
		return out, true, nil
	}
}

func numericEqual(a, b Term) bool {
	if sortOrder(a) != 2 || sortOrder(b) != 2 {
		return false
	}
	return numberValue(a) == numberValue(b)
}

func unboundArgsErr(name string, args Tuple) error {
	return NewError(EvalErr, nil, "%v: insufficiently bound arguments %v", name, args)
}

func numberOperands(a, b Term) (Integer, Integer, float64, float64, bool, error) {
	var fa, fb float64
	ia, aInt := a.(Integer)
	ib, bInt := b.(Integer)
	switch a := a.(type) {
	case Integer:
		fa = float64(a)
	case Double:
		fa = float64(a)
	default:
		return 0, 0, 0, 0, false, fmt.Errorf("operand %v must be a number", a)
	}
	switch b := b.(type) {
	case Integer:
		fb = float64(b)
	case Double:
		fb = float64(b)
	default:
		return 0, 0, 0, 0, false, fmt.Errorf("operand %v must be a number", b)
	}
	return ia, ib, fa, fb, aInt && bInt, nil
}

func addNumbers(a, b Term) (Term, error) {
	ia, ib, fa, fb, ints, err := numberOperands(a, b)
	if err != nil {
		return nil, err
	}
	if ints {
		return ia + ib, nil
	}
	return Double(fa + fb), nil
}

func subtractNumbers(a, b Term) (Term, error) {
	ia, ib, fa, fb, ints, err := numberOperands(a, b)
	if err != nil {
		return nil, err
	}
	if ints {
		return ia - ib, nil
	}
	return Double(fa - fb), nil
}

func multiplyNumbers(a, b Term) (Term, error) {
	ia, ib, fa, fb, ints, err := numberOperands(a, b)
	if err != nil {
		return nil, err
	}
	if ints {
		return ia * ib, nil
	}
	return Double(fa * fb), nil
}

// divideNumbers returns an Integer when both operands are integers and the
// division is exact.
func divideNumbers(a, b Term) (Term, error) {
	ia, ib, fa, fb, ints, err := numberOperands(a, b)
	if err != nil {
		return nil, err
	}
	if fb == 0 {
		return nil, fmt.Errorf("divide by zero")
	}
	if ints && ia%ib == 0 {
		return ia / ib, nil
	}
	return Double(fa / fb), nil
}

func modulusNumbers(a, b Term) (Term, error) {
	ia, ib, fa, fb, ints, err := numberOperands(a, b)
	if err != nil {
		return nil, err
	}
	if fb == 0 {
		return nil, fmt.Errorf("modulo by zero")
	}
	if ints {
		return ia % ib, nil
	}
	return Double(math.Mod(fa, fb)), nil
}
