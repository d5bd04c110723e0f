// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package formula parses and evaluates the arithmetic expressions behind
// computed variables.
//
// A formula is plain arithmetic over single-letter variables A..Z bound to
// signal arrays, a closed set of numeric functions (abs, sqrt, trig,
// log/exp, minimum/maximum, clip, sign, rounding) and the constants pi
// and e. Formulas are parsed once at create time into an explicit
// expression tree; evaluation broadcasts element-wise over the bound
// arrays. There is no name resolution beyond the built-in table, so no
// formula can reach I/O, attributes or the runtime.
//
// Error messages are user-facing and returned verbatim in API responses.
package formula

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// MaxFormulaLen is the maximum accepted formula length in characters.
const MaxFormulaLen = 500

// Validation and evaluation failures surfaced to users.
var (
	ErrEmpty          = errors.New("La formule ne peut pas être vide")
	ErrTooLong        = errors.New("La formule est trop longue (max 500 caractères)")
	ErrForbidden      = errors.New("Expression non autorisée dans la formule")
	ErrUnbalanced     = errors.New("Parenthèses non équilibrées")
	ErrDivisionByZero = errors.New("Division par zéro dans la formule")
)

// forbiddenIdents are identifier tokens rejected wherever they appear,
// matched case-insensitively. Double-underscore names are rejected by
// shape in checkIdent.
var forbiddenIdents = map[string]struct{}{
	"import":     {},
	"exec":       {},
	"eval":       {},
	"compile":    {},
	"open":       {},
	"file":       {},
	"getattr":    {},
	"setattr":    {},
	"delattr":    {},
	"globals":    {},
	"locals":     {},
	"vars":       {},
	"dir":        {},
	"os":         {},
	"sys":        {},
	"subprocess": {},
	"lambda":     {},
	"class":      {},
	"def":        {},
}

// Expr is a parsed formula ready for repeated evaluation.
type Expr struct {
	src  string
	root node
	vars []string
}

// Parse validates and parses src. The returned Expr is immutable and
// safe for concurrent evaluation.
func Parse(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, ErrEmpty
	}
	if len(trimmed) > MaxFormulaLen {
		return nil, ErrTooLong
	}
	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		return nil, ErrUnbalanced
	}

	toks, err := lex(trimmed)
	if err != nil {
		return nil, err
	}
	for _, t := range toks {
		if t.kind == tokIdent {
			if err := checkIdent(t.text); err != nil {
				return nil, err
			}
		}
	}

	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, evalErrorf("entrée inattendue à la position %d", p.peek().pos+1)
	}

	return &Expr{src: trimmed, root: root, vars: collectVars(root)}, nil
}

// Validate checks src without keeping the parsed tree.
func Validate(src string) error {
	_, err := Parse(src)
	return err
}

// Source returns the formula text as parsed.
func (e *Expr) Source() string {
	return e.src
}

// Variables returns the sorted unique variable letters the formula uses.
func (e *Expr) Variables() []string {
	out := make([]string, len(e.vars))
	copy(out, e.vars)
	return out
}

// checkIdent rejects deny-listed identifiers and any double-underscore
// name.
func checkIdent(name string) error {
	lower := strings.ToLower(name)
	if _, bad := forbiddenIdents[lower]; bad {
		return ErrForbidden
	}
	if strings.HasPrefix(lower, "__") && strings.HasSuffix(lower, "__") && len(lower) > 4 {
		return ErrForbidden
	}
	return nil
}

// collectVars walks the tree and gathers unique variable names, sorted.
func collectVars(n node) []string {
	seen := map[string]struct{}{}
	var walk func(node)
	walk = func(n node) {
		switch v := n.(type) {
		case *varNode:
			seen[v.name] = struct{}{}
		case *unaryNode:
			walk(v.x)
		case *binaryNode:
			walk(v.x)
			walk(v.y)
		case *callNode:
			for _, a := range v.args {
				walk(a)
			}
		}
	}
	walk(n)

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MissingVariables returns the formula variables absent from bound.
func (e *Expr) MissingVariables(bound map[string][]float64) []string {
	var missing []string
	for _, v := range e.vars {
		if _, ok := bound[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}

// Evaluate computes the formula over the bound signal arrays. Every bound
// array must have length refLen; a scalar result (a formula without
// variables) is broadcast to refLen. The result replaces +Inf and -Inf
// with the largest and smallest finite float64; NaN values pass through
// and are handled at view time.
func (e *Expr) Evaluate(bound map[string][]float64, refLen int) ([]float64, error) {
	if missing := e.MissingVariables(bound); len(missing) > 0 {
		return nil, fmt.Errorf("Variables non définies: %s", strings.Join(missing, ", "))
	}
	for v, arr := range bound {
		if len(arr) != refLen {
			return nil, evalErrorf("le signal lié à '%s' a une longueur différente (%d vs %d)", v, len(arr), refLen)
		}
	}

	res, err := eval(e.root, bound)
	if err != nil {
		return nil, err
	}

	out := res.materialize(refLen)
	for i, v := range out {
		if math.IsInf(v, 1) {
			out[i] = math.MaxFloat64
		} else if math.IsInf(v, -1) {
			out[i] = -math.MaxFloat64
		}
	}
	return out, nil
}

// evalErrorf builds the generic evaluation failure message.
func evalErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("Erreur d'évaluation: %s", fmt.Sprintf(format, args...))
}
