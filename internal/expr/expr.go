// Package expr implements the restricted expression grammar used by section
// conditions. The grammar supports field paths, literals, comparisons, and
// boolean combinators; it is parsed into a small AST and interpreted by a
// pure evaluator. Strings are never handed to a general-purpose evaluator.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is an AST node produced by Parse.
type Node interface {
	eval(scope map[string]any) (any, error)
}

type literalNode struct{ value any }

type pathNode struct{ parts []string }

type unaryNode struct {
	op    string
	child Node
}

type binaryNode struct {
	op          string
	left, right Node
}

// Parse compiles an expression string into an AST. An empty expression is
// invalid; callers treating "no condition" as true must check first.
func Parse(input string) (Node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected token %q at end of expression", p.toks[p.pos].text)
	}
	return node, nil
}

// Eval evaluates a parsed expression against a scope map and coerces the
// result to a boolean. Unknown fields evaluate to nil, which is falsy.
func Eval(node Node, scope map[string]any) (bool, error) {
	v, err := node.eval(scope)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// EvalString parses and evaluates in one step.
func EvalString(input string, scope map[string]any) (bool, error) {
	node, err := Parse(input)
	if err != nil {
		return false, err
	}
	return Eval(node, scope)
}

// --- lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'':
			end := strings.IndexByte(input[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("unterminated string literal at offset %d", i)
			}
			toks = append(toks, token{tokString, input[i+1 : i+1+end]})
			i += end + 2
		case isDigit(c) || (c == '-' && i+1 < len(input) && isDigit(input[i+1])):
			j := i + 1
			for j < len(input) && (isDigit(input[j]) || input[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, input[i:j]})
			i = j
		case isIdentStart(c):
			// Dotted field paths lex as a single identifier token.
			j := i + 1
			for j < len(input) && (isIdentPart(input[j]) || input[j] == '.') {
				j++
			}
			toks = append(toks, token{tokIdent, input[i:j]})
			i = j
		default:
			op, n := matchOp(input[i:])
			if n == 0 {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
			toks = append(toks, token{tokOp, op})
			i += n
		}
	}
	return toks, nil
}

var operators = []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!"}

func matchOp(s string) (string, int) {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op, len(op)
		}
	}
	return "", 0
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

// --- parser ---

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) acceptOp(op string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.acceptOp("!") {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "!", child: child}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	t, ok := p.peek()
	if ok && t.kind == tokOp && comparisonOps[t.text] {
		p.pos++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: t.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	switch t.kind {
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		nt, ok := p.peek()
		if !ok || nt.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case tokString:
		p.pos++
		return &literalNode{value: t.text}, nil
	case tokNumber:
		p.pos++
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.text, err)
		}
		return &literalNode{value: f}, nil
	case tokIdent:
		p.pos++
		switch t.text {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null":
			return &literalNode{value: nil}, nil
		}
		return &pathNode{parts: strings.Split(t.text, ".")}, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

// --- evaluation ---

func (n *literalNode) eval(map[string]any) (any, error) { return n.value, nil }

func (n *pathNode) eval(scope map[string]any) (any, error) {
	var current any = scope
	for _, part := range n.parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, nil
		}
		current = m[part]
	}
	return current, nil
}

func (n *unaryNode) eval(scope map[string]any) (any, error) {
	v, err := n.child.eval(scope)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

func (n *binaryNode) eval(scope map[string]any) (any, error) {
	left, err := n.left.eval(scope)
	if err != nil {
		return nil, err
	}

	// Short-circuit boolean combinators.
	switch n.op {
	case "&&":
		if !truthy(left) {
			return false, nil
		}
		right, err := n.right.eval(scope)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case "||":
		if truthy(left) {
			return true, nil
		}
		right, err := n.right.eval(scope)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	right, err := n.right.eval(scope)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if !lok || !rok {
			return nil, fmt.Errorf("ordering comparison requires numeric operands")
		}
		switch n.op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

// truthy follows JSON semantics: nil, false, 0, and "" are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	}
	return 0, false
}
