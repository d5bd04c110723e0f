// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mleclerc/courbe/internal/models"
)

// allowedModules is the closed import allow-list. Only the dotted root
// is checked; aliases (`as np`) are free-form.
var allowedModules = map[string]bool{
	"math":       true,
	"statistics": true,
	"datetime":   true,
	"json":       true,
	"re":         true,
	"numpy":      true,
	"pandas":     true,
}

// forbiddenNames are rejected wherever they appear, called or not.
var forbiddenNames = map[string]bool{
	"eval": true, "exec": true, "compile": true, "execfile": true,
	"open": true, "file": true, "input": true, "raw_input": true,
	"reload": true, "__import__": true,
	"globals": true, "locals": true, "vars": true, "dir": true,
	"getattr": true, "setattr": true, "delattr": true, "hasattr": true,
	"memoryview": true, "bytearray": true,
	"classmethod": true, "staticmethod": true, "super": true,
	"type": true, "id": true, "help": true,
	"breakpoint": true, "credits": true, "license": true, "copyright": true,
	"exit": true, "quit": true,
}

// forbiddenKeywords cover statement forms the runtime namespace cannot
// contain safely.
var forbiddenKeywords = map[string]bool{
	"global":   true,
	"nonlocal": true,
	"async":    true,
	"await":    true,
}

// forbiddenAttrs is the introspection surface: attribute access to any
// of these escapes the restricted namespace.
var forbiddenAttrs = map[string]bool{
	"__globals__": true, "__locals__": true, "__builtins__": true,
	"__class__": true, "__bases__": true, "__mro__": true,
	"__subclasses__": true, "__init_subclass__": true,
	"__code__": true, "__closure__": true, "__func__": true,
	"__self__": true, "__module__": true, "__dict__": true,
	"__getattribute__": true, "__reduce__": true, "__reduce_ex__": true,
	"__import__": true, "__loader__": true, "__spec__": true,
	"_getframe": true, "_current_frames": true,
	"gi_frame": true, "gi_code": true,
	"f_globals": true, "f_locals": true, "f_code": true,
	"co_code": true, "func_globals": true, "func_code": true,
}

// systemCallAttrs are method names that reach the OS on some object;
// flagged only when called.
var systemCallAttrs = map[string]bool{
	"system": true, "popen": true, "spawn": true, "call": true,
	"run": true, "Popen": true,
	"listdir": true, "remove": true, "rmdir": true, "unlink": true,
	"makedirs": true,
	"environ":  true, "getenv": true, "putenv": true,
}

// allowedDunders are the double-underscore identifiers user code may
// touch: the module name, arithmetic and container protocol methods,
// and the result slot the harness reads back.
var allowedDunders = map[string]bool{
	"__name__": true, "__doc__": true, "__result__": true,
	"__str__": true, "__repr__": true, "__len__": true,
	"__iter__": true, "__next__": true,
	"__getitem__": true, "__setitem__": true, "__contains__": true,
	"__add__": true, "__sub__": true, "__mul__": true,
	"__truediv__": true, "__floordiv__": true, "__mod__": true,
	"__eq__": true, "__ne__": true,
	"__lt__": true, "__le__": true, "__gt__": true, "__ge__": true,
	"__bool__": true, "__int__": true, "__float__": true, "__hash__": true,
}

// allowedBuiltins mirrors the harness namespace in runner.py; the two
// lists must stay in step. Exposed by the allowed-modules endpoint.
var allowedBuiltins = []string{
	"abs", "all", "any", "ascii", "bin", "bool", "bytes", "callable",
	"chr", "dict", "divmod", "enumerate", "filter", "float", "format",
	"frozenset", "hash", "hex", "int", "isinstance", "issubclass",
	"iter", "len", "list", "map", "max", "min", "next", "object",
	"oct", "ord", "pow", "print", "property", "range", "repr",
	"reversed", "round", "set", "slice", "sorted", "str", "sum",
	"tuple", "zip",
	"Exception", "ArithmeticError", "AttributeError",
	"FloatingPointError", "ImportError", "IndexError", "KeyError",
	"LookupError", "NameError", "OverflowError", "RuntimeError",
	"StopIteration", "TypeError", "ValueError", "ZeroDivisionError",
}

// AllowedModules returns the import allow-list, sorted.
func AllowedModules() []string {
	names := make([]string, 0, len(allowedModules))
	for name := range allowedModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllowedBuiltins returns the builtins available inside a run, sorted.
func AllowedBuiltins() []string {
	names := make([]string, len(allowedBuiltins))
	copy(names, allowedBuiltins)
	sort.Strings(names)
	return names
}

func modulesMessage() string {
	return strings.Join(AllowedModules(), ", ")
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokNumber
	tokPunct
	tokNewline
)

type token struct {
	kind tokKind
	text string
	line int
	// strLen is the rune count of a string literal's content.
	strLen int
}

// lexer tokenizes Python-syntax source just far enough for the static
// checks: identifiers, string literals (f-string expressions re-lexed),
// numbers, single-rune punctuation, and logical line breaks.
type lexer struct {
	src    []rune
	pos    int
	line   int
	depth  int // bracket nesting; newlines inside brackets do not end a line
	tokens []token
	errors []string
	// maxTokens aborts pathological inputs.
	maxTokens int
	truncated bool
}

func (lx *lexer) emit(t token) bool {
	if lx.maxTokens > 0 && len(lx.tokens) >= lx.maxTokens {
		lx.truncated = true
		return false
	}
	lx.tokens = append(lx.tokens, t)
	return true
}

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) at(off int) rune {
	if lx.pos+off >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+off]
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func isStringPrefix(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for _, r := range strings.ToLower(s) {
		if r != 'r' && r != 'b' && r != 'f' && r != 'u' {
			return false
		}
	}
	return true
}

func (lx *lexer) run() {
	for lx.pos < len(lx.src) {
		r := lx.src[lx.pos]
		switch {
		case r == ' ' || r == '\t' || r == '\r':
			lx.pos++
		case r == '\\' && lx.at(1) == '\n':
			lx.pos += 2
			lx.line++
		case r == '\n':
			lx.pos++
			if lx.depth == 0 {
				if !lx.emit(token{kind: tokNewline, line: lx.line}) {
					return
				}
			}
			lx.line++
		case r == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case r == '\'' || r == '"':
			if !lx.lexString("") {
				return
			}
		case isIdentStart(r):
			start := lx.pos
			for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
				lx.pos++
			}
			word := string(lx.src[start:lx.pos])
			if isStringPrefix(word) && (lx.peek() == '\'' || lx.peek() == '"') {
				if !lx.lexString(strings.ToLower(word)) {
					return
				}
				continue
			}
			if !lx.emit(token{kind: tokIdent, text: word, line: lx.line}) {
				return
			}
		case r >= '0' && r <= '9':
			start := lx.pos
			for lx.pos < len(lx.src) && (isIdentPart(lx.src[lx.pos]) || lx.src[lx.pos] == '.') {
				lx.pos++
			}
			if !lx.emit(token{kind: tokNumber, text: string(lx.src[start:lx.pos]), line: lx.line}) {
				return
			}
		default:
			switch r {
			case '(', '[', '{':
				lx.depth++
			case ')', ']', '}':
				if lx.depth > 0 {
					lx.depth--
				}
			}
			lx.pos++
			if !lx.emit(token{kind: tokPunct, text: string(r), line: lx.line}) {
				return
			}
		}
	}
}

// lexString consumes a string literal starting at the opening quote.
// f-string brace expressions are real code and are re-lexed inline so
// the checks see through them.
func (lx *lexer) lexString(prefix string) bool {
	quote := lx.src[lx.pos]
	startLine := lx.line
	triple := lx.at(1) == quote && lx.at(2) == quote
	if triple {
		lx.pos += 3
	} else {
		lx.pos++
	}

	var content []rune
	closed := false
	for lx.pos < len(lx.src) {
		r := lx.src[lx.pos]
		if r == '\\' && lx.pos+1 < len(lx.src) {
			content = append(content, r, lx.src[lx.pos+1])
			if lx.src[lx.pos+1] == '\n' {
				lx.line++
			}
			lx.pos += 2
			continue
		}
		if r == quote {
			if !triple {
				lx.pos++
				closed = true
				break
			}
			if lx.at(1) == quote && lx.at(2) == quote {
				lx.pos += 3
				closed = true
				break
			}
		}
		if r == '\n' {
			if !triple {
				break
			}
			lx.line++
		}
		content = append(content, r)
		lx.pos++
	}
	if !closed {
		lx.errors = append(lx.errors, fmt.Sprintf("Erreur de syntaxe ligne %d: chaîne de caractères non terminée", startLine))
		return false
	}

	if !lx.emit(token{kind: tokString, line: startLine, strLen: len(content)}) {
		return false
	}
	if strings.Contains(prefix, "f") {
		return lx.lexFStringExprs(content, startLine)
	}
	return true
}

// lexFStringExprs extracts top-level {...} groups ({{ escapes skipped)
// and lexes each as source, splicing its tokens into the stream.
func (lx *lexer) lexFStringExprs(content []rune, line int) bool {
	for i := 0; i < len(content); i++ {
		if content[i] != '{' {
			continue
		}
		if i+1 < len(content) && content[i+1] == '{' {
			i++
			continue
		}
		depth := 1
		j := i + 1
		for j < len(content) && depth > 0 {
			switch content[j] {
			case '{':
				depth++
			case '}':
				depth--
			}
			j++
		}
		end := j
		if depth == 0 {
			end = j - 1
		}
		inner := &lexer{src: content[i+1 : end], line: line, maxTokens: lx.maxTokens}
		inner.run()
		lx.errors = append(lx.errors, inner.errors...)
		for _, t := range inner.tokens {
			if t.kind == tokNewline {
				continue
			}
			if !lx.emit(t) {
				return false
			}
		}
		i = end
	}
	return true
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// Validate runs the static stage over code. It never executes anything;
// a rejected script must not reach the runner.
func Validate(code string, cfg Config) models.ValidationResult {
	cfg = cfg.withDefaults()

	if len(code) > cfg.MaxCodeLength {
		return models.ValidationResult{
			Safe:   false,
			Errors: []string{fmt.Sprintf("Code trop long (max %d caractères)", cfg.MaxCodeLength)},
		}
	}

	lx := &lexer{src: []rune(code), line: 1, maxTokens: cfg.MaxNodes}
	lx.run()

	errors := lx.errors
	if lx.truncated {
		errors = append(errors, fmt.Sprintf("Script trop complexe (max %d éléments)", cfg.MaxNodes))
	}

	var imports []string
	seen := map[string]bool{}
	toks := lx.tokens

	next := func(i int) *token {
		if i+1 < len(toks) {
			return &toks[i+1]
		}
		return nil
	}
	prev := func(i int) *token {
		if i > 0 {
			return &toks[i-1]
		}
		return nil
	}
	calledNext := func(i int) bool {
		n := next(i)
		return n != nil && n.kind == tokPunct && n.text == "("
	}

	atLineStart := true
	withLine := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokNewline {
			atLineStart = true
			withLine = false
			continue
		}
		// `;` and `:` open compound-statement positions: `x=1; import os`
		// and `if x: import os` are statement starts too.
		if t.kind == tokPunct && (t.text == ";" || t.text == ":") {
			atLineStart = true
			continue
		}
		lineStart := atLineStart
		atLineStart = false

		switch t.kind {
		case tokString:
			if t.strLen > cfg.MaxStringChars {
				errors = append(errors, fmt.Sprintf("Chaîne de caractères trop longue (max %d caractères)", cfg.MaxStringChars))
			}
			continue
		case tokIdent:
		default:
			continue
		}

		p := prev(i)
		attribute := p != nil && p.kind == tokPunct && p.text == "."

		if !attribute {
			switch t.text {
			case "import":
				if lineStart {
					i = checkImport(toks, i, &errors, seen, &imports)
					continue
				}
			case "from":
				if lineStart {
					i = checkFrom(toks, i, &errors, seen, &imports)
					continue
				}
			case "with":
				withLine = true
				continue
			}
			if forbiddenKeywords[t.text] {
				errors = append(errors, fmt.Sprintf("Mot-clé interdit: '%s'", t.text))
				continue
			}
			if forbiddenNames[t.text] {
				if calledNext(i) {
					errors = append(errors, fmt.Sprintf("Fonction interdite: '%s'", t.text))
				} else {
					errors = append(errors, fmt.Sprintf("Nom interdit: '%s'", t.text))
				}
				if withLine && t.text == "open" && calledNext(i) {
					errors = append(errors, "'open()' est interdit. Utilisez les DataFrames fournis.")
				}
				continue
			}
			if isDunder(t.text) && !allowedDunders[t.text] {
				errors = append(errors, fmt.Sprintf("Dunder interdit: '%s'", t.text))
			}
			continue
		}

		// Attribute access.
		switch {
		case forbiddenAttrs[t.text]:
			errors = append(errors, fmt.Sprintf("Attribut interdit: '.%s'", t.text))
		case systemCallAttrs[t.text] && calledNext(i):
			errors = append(errors, fmt.Sprintf("Appel système interdit: '.%s()'", t.text))
		case isDunder(t.text) && !allowedDunders[t.text]:
			errors = append(errors, fmt.Sprintf("Dunder interdit: '.%s'", t.text))
		}
	}

	sort.Strings(imports)
	return models.ValidationResult{
		Safe:    len(errors) == 0,
		Errors:  errors,
		Imports: imports,
	}
}

// checkImport walks `import a.b as c, d` from the "import" token and
// returns the index of the last consumed token.
func checkImport(toks []token, i int, errors *[]string, seen map[string]bool, imports *[]string) int {
	for {
		name, j := dottedName(toks, i+1)
		if name == "" {
			return i
		}
		i = j
		recordImport(name, "", errors, seen, imports)
		// Skip an optional alias.
		if n := identAt(toks, i+1); n == "as" {
			if alias := identAt(toks, i+2); alias != "" {
				i += 2
				checkAlias(toks, i, errors)
			}
		}
		if punctAt(toks, i+1) != "," {
			return i
		}
		i++
	}
}

// checkFrom validates the module of `from a.b import x`.
func checkFrom(toks []token, i int, errors *[]string, seen map[string]bool, imports *[]string) int {
	name, j := dottedName(toks, i+1)
	if name == "" {
		return i
	}
	recordImport(name, "from ", errors, seen, imports)
	return j
}

func recordImport(dotted, prefix string, errors *[]string, seen map[string]bool, imports *[]string) {
	root := dotted
	if k := strings.IndexByte(root, '.'); k >= 0 {
		root = root[:k]
	}
	if !allowedModules[root] {
		*errors = append(*errors, fmt.Sprintf("Import interdit: '%s%s'. Modules autorisés: %s", prefix, dotted, modulesMessage()))
		return
	}
	if !seen[root] {
		seen[root] = true
		*imports = append(*imports, root)
	}
}

// checkAlias flags `import x as eval` style aliases.
func checkAlias(toks []token, i int, errors *[]string) {
	name := identAt(toks, i)
	if name == "" {
		return
	}
	if forbiddenNames[name] {
		*errors = append(*errors, fmt.Sprintf("Nom interdit: '%s'", name))
	} else if isDunder(name) && !allowedDunders[name] {
		*errors = append(*errors, fmt.Sprintf("Dunder interdit: '%s'", name))
	}
}

// dottedName reads ident ('.' ident)* starting at index i and returns
// the dotted text plus the index of its last token.
func dottedName(toks []token, i int) (string, int) {
	name := identAt(toks, i)
	if name == "" {
		return "", i
	}
	parts := []string{name}
	for punctAt(toks, i+1) == "." {
		part := identAt(toks, i+2)
		if part == "" {
			break
		}
		parts = append(parts, part)
		i += 2
	}
	return strings.Join(parts, "."), i
}

func identAt(toks []token, i int) string {
	if i < len(toks) && toks[i].kind == tokIdent {
		return toks[i].text
	}
	return ""
}

func punctAt(toks []token, i int) string {
	if i < len(toks) && toks[i].kind == tokPunct {
		return toks[i].text
	}
	return ""
}
