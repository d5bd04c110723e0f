// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package formula

import "math"

// Expression tree node kinds: literal, variable, unary, binary, call.
type node interface{ isNode() }

type literalNode struct {
	val float64
}

type varNode struct {
	name string
}

type unaryNode struct {
	op byte // '-' or '+'
	x  node
}

type binaryNode struct {
	op   string // "+", "-", "*", "/", "//", "%", "**"
	x, y node
}

type callNode struct {
	name string
	args []node
}

func (*literalNode) isNode() {}
func (*varNode) isNode()     {}
func (*unaryNode) isNode()   {}
func (*binaryNode) isNode()  {}
func (*callNode) isNode()    {}

// constants usable by name inside formulas.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// parseExpr handles addition and subtraction (lowest precedence).
func (p *parser) parseExpr() (node, error) {
	x, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return x, nil
		}
		p.next()
		y, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{op: t.text, x: x, y: y}
	}
}

// parseTerm handles multiplication, division, floor division and modulo.
func (p *parser) parseTerm() (node, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/" && t.text != "//" && t.text != "%") {
			return x, nil
		}
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{op: t.text, x: x, y: y}
	}
}

// parseUnary handles leading sign. Power binds tighter on its left, so
// -A**2 parses as -(A**2).
func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "+" {
			return x, nil
		}
		return &unaryNode{op: '-', x: x}, nil
	}
	return p.parsePower()
}

// parsePower handles the right-associative ** operator. The exponent may
// itself carry a sign (A**-2).
func (p *parser) parsePower() (node, error) {
	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokOp && t.text == "**" {
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "**", x: x, y: y}, nil
	}
	return x, nil
}

// parseAtom handles literals, variables, constants, calls and grouping.
func (p *parser) parseAtom() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &literalNode{val: t.val}, nil

	case tokLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, evalErrorf("parenthèse fermante attendue à la position %d", closing.pos+1)
		}
		return x, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		if isVarName(t.text) {
			return &varNode{name: t.text}, nil
		}
		if val, ok := constants[t.text]; ok {
			return &literalNode{val: val}, nil
		}
		return nil, evalErrorf("nom inconnu '%s'", t.text)

	default:
		return nil, evalErrorf("expression attendue à la position %d", t.pos+1)
	}
}

// parseCall parses ident '(' args ')' and checks the callee against the
// built-in table, including arity.
func (p *parser) parseCall(ident token) (node, error) {
	fn, ok := functions[ident.text]
	if !ok {
		return nil, evalErrorf("fonction inconnue '%s'", ident.text)
	}

	p.next() // consume '('

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.kind != tokRParen {
		return nil, evalErrorf("parenthèse fermante attendue à la position %d", closing.pos+1)
	}

	if len(args) < fn.minArity || len(args) > fn.maxArity {
		if fn.minArity == fn.maxArity {
			return nil, evalErrorf("la fonction '%s' attend %d argument(s)", ident.text, fn.minArity)
		}
		return nil, evalErrorf("la fonction '%s' attend %d à %d arguments", ident.text, fn.minArity, fn.maxArity)
	}

	return &callNode{name: ident.text, args: args}, nil
}

// isVarName reports whether s is a single uppercase letter A..Z.
func isVarName(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z'
}
