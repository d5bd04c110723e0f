// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package formula

import "math"

// value is either a scalar or an array; arr == nil means scalar.
// Broadcasting a scalar against an array yields an array. borrowed marks
// arrays still owned by the caller (bare variable references); they must
// be copied before any in-place pass.
type value struct {
	arr      []float64
	scalar   float64
	borrowed bool
}

func scalarValue(v float64) value {
	return value{scalar: v}
}

// materialize returns the value as an array of length n owned by the
// caller, broadcasting scalars and copying borrowed arrays.
func (v value) materialize(n int) []float64 {
	if v.arr != nil {
		if !v.borrowed {
			return v.arr
		}
		out := make([]float64, len(v.arr))
		copy(out, v.arr)
		return out
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = v.scalar
	}
	return out
}

// eval walks the tree bottom-up. Arithmetic is IEEE float64 throughout;
// only scalar division by exact zero is an error, mirroring how scalar
// and array arithmetic diverge in the formula's source notation.
func eval(n node, bound map[string][]float64) (value, error) {
	switch v := n.(type) {
	case *literalNode:
		return scalarValue(v.val), nil

	case *varNode:
		return value{arr: bound[v.name], borrowed: true}, nil

	case *unaryNode:
		x, err := eval(v.x, bound)
		if err != nil {
			return value{}, err
		}
		return mapUnary(x, func(a float64) float64 { return -a }), nil

	case *binaryNode:
		x, err := eval(v.x, bound)
		if err != nil {
			return value{}, err
		}
		y, err := eval(v.y, bound)
		if err != nil {
			return value{}, err
		}
		return applyBinary(v.op, x, y)

	case *callNode:
		args := make([]value, len(v.args))
		for i, a := range v.args {
			av, err := eval(a, bound)
			if err != nil {
				return value{}, err
			}
			args[i] = av
		}
		return applyCall(v.name, args)

	default:
		return value{}, evalErrorf("nœud d'expression inconnu")
	}
}

// mapUnary applies f element-wise, allocating only for array inputs.
func mapUnary(x value, f func(float64) float64) value {
	if x.arr == nil {
		return scalarValue(f(x.scalar))
	}
	out := make([]float64, len(x.arr))
	for i, a := range x.arr {
		out[i] = f(a)
	}
	return value{arr: out}
}

func applyBinary(op string, x, y value) (value, error) {
	var f func(a, b float64) float64
	switch op {
	case "+":
		f = func(a, b float64) float64 { return a + b }
	case "-":
		f = func(a, b float64) float64 { return a - b }
	case "*":
		f = func(a, b float64) float64 { return a * b }
	case "/":
		if x.arr == nil && y.arr == nil && y.scalar == 0 {
			return value{}, ErrDivisionByZero
		}
		f = func(a, b float64) float64 { return a / b }
	case "//":
		if x.arr == nil && y.arr == nil && y.scalar == 0 {
			return value{}, ErrDivisionByZero
		}
		f = func(a, b float64) float64 { return math.Floor(a / b) }
	case "%":
		if x.arr == nil && y.arr == nil && y.scalar == 0 {
			return value{}, ErrDivisionByZero
		}
		f = pymod
	case "**":
		f = math.Pow
	default:
		return value{}, evalErrorf("opérateur inconnu '%s'", op)
	}
	return broadcast(x, y, f)
}

// pymod matches the remainder semantics of the formula notation: the
// result carries the sign of the divisor.
func pymod(a, b float64) float64 {
	return a - math.Floor(a/b)*b
}

// broadcast combines two values element-wise, expanding scalars.
func broadcast(x, y value, f func(a, b float64) float64) (value, error) {
	switch {
	case x.arr == nil && y.arr == nil:
		return scalarValue(f(x.scalar, y.scalar)), nil

	case x.arr != nil && y.arr == nil:
		out := make([]float64, len(x.arr))
		for i, a := range x.arr {
			out[i] = f(a, y.scalar)
		}
		return value{arr: out}, nil

	case x.arr == nil:
		out := make([]float64, len(y.arr))
		for i, b := range y.arr {
			out[i] = f(x.scalar, b)
		}
		return value{arr: out}, nil

	default:
		if len(x.arr) != len(y.arr) {
			return value{}, evalErrorf("longueurs incompatibles (%d vs %d)", len(x.arr), len(y.arr))
		}
		out := make([]float64, len(x.arr))
		for i := range x.arr {
			out[i] = f(x.arr[i], y.arr[i])
		}
		return value{arr: out}, nil
	}
}

// function describes a built-in callable. round accepts an optional
// decimals argument, everything else has fixed arity.
type function struct {
	minArity int
	maxArity int
	apply    func(args []value) (value, error)
}

func unaryFn(f func(float64) float64) function {
	return function{
		minArity: 1,
		maxArity: 1,
		apply: func(args []value) (value, error) {
			return mapUnary(args[0], f), nil
		},
	}
}

func binaryFn(f func(a, b float64) float64) function {
	return function{
		minArity: 2,
		maxArity: 2,
		apply: func(args []value) (value, error) {
			return broadcast(args[0], args[1], f)
		},
	}
}

var functions map[string]function

func init() {
	functions = map[string]function{
		// Basic math
		"abs":    unaryFn(math.Abs),
		"sqrt":   unaryFn(math.Sqrt),
		"cbrt":   unaryFn(math.Cbrt),
		"square": unaryFn(func(a float64) float64 { return a * a }),
		"exp":    unaryFn(math.Exp),
		"log":    unaryFn(math.Log),
		"log10":  unaryFn(math.Log10),
		"log2":   unaryFn(math.Log2),

		// Trigonometric
		"sin":     unaryFn(math.Sin),
		"cos":     unaryFn(math.Cos),
		"tan":     unaryFn(math.Tan),
		"arcsin":  unaryFn(math.Asin),
		"arccos":  unaryFn(math.Acos),
		"arctan":  unaryFn(math.Atan),
		"arctan2": binaryFn(math.Atan2),
		"sinh":    unaryFn(math.Sinh),
		"cosh":    unaryFn(math.Cosh),
		"tanh":    unaryFn(math.Tanh),
		"deg2rad": unaryFn(func(a float64) float64 { return a * math.Pi / 180 }),
		"rad2deg": unaryFn(func(a float64) float64 { return a * 180 / math.Pi }),

		// Rounding
		"floor": unaryFn(math.Floor),
		"ceil":  unaryFn(math.Ceil),
		"trunc": unaryFn(math.Trunc),
		"round": {
			minArity: 1,
			maxArity: 2,
			apply:    applyRound,
		},

		// Other
		"sign":    unaryFn(sign),
		"minimum": binaryFn(math.Min),
		"maximum": binaryFn(math.Max),
		"min":     binaryFn(math.Min),
		"max":     binaryFn(math.Max),
		"clip": {
			minArity: 3,
			maxArity: 3,
			apply:    applyClip,
		},
	}
}

func applyCall(name string, args []value) (value, error) {
	fn, ok := functions[name]
	if !ok {
		return value{}, evalErrorf("fonction inconnue '%s'", name)
	}
	return fn.apply(args)
}

// applyRound rounds half-to-even, optionally at a decimal position given
// by a scalar second argument.
func applyRound(args []value) (value, error) {
	if len(args) == 1 {
		return mapUnary(args[0], math.RoundToEven), nil
	}
	if args[1].arr != nil {
		return value{}, evalErrorf("le nombre de décimales de round doit être un scalaire")
	}
	scale := math.Pow(10, math.Trunc(args[1].scalar))
	return mapUnary(args[0], func(a float64) float64 {
		return math.RoundToEven(a*scale) / scale
	}), nil
}

// applyClip bounds the first argument below then above, so an inverted
// range collapses to the upper bound.
func applyClip(args []value) (value, error) {
	lowered, err := broadcast(args[0], args[1], math.Max)
	if err != nil {
		return value{}, err
	}
	return broadcast(lowered, args[2], math.Min)
}

// sign matches the usual numeric convention: -1, 0 or +1, NaN for NaN.
func sign(a float64) float64 {
	switch {
	case math.IsNaN(a):
		return math.NaN()
	case a > 0:
		return 1
	case a < 0:
		return -1
	default:
		return 0
	}
}
