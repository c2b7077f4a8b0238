package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// forbidden substrings rejected before parsing; the grammar would choke on
// them anyway, but the explicit check produces a clear refusal.
var forbiddenExpr = []string{"__", "import", "exec", "eval", "open"}

// calculatorTool evaluates a restricted arithmetic grammar: numbers,
// + - * / % and parentheses, sqrt/sin/cos/log/pow, and the constants pi, e.
type calculatorTool struct{}

// RegisterCalculator adds the calculator tool.
func RegisterCalculator(r *Registry) { r.Register(&calculatorTool{}) }

func (t *calculatorTool) Name() string { return "calculator" }
func (t *calculatorTool) Description() string {
	return "Evaluate an arithmetic expression (supports sqrt, sin, cos, log, pow, pi, e)"
}
func (t *calculatorTool) Params() []Param {
	return []Param{
		{Name: "expression", Type: "string", Required: true, Description: "Expression to evaluate"},
	}
}

func (t *calculatorTool) Execute(_ context.Context, args map[string]any) *Result {
	expr := args["expression"].(string)
	lower := strings.ToLower(expr)
	for _, bad := range forbiddenExpr {
		if strings.Contains(lower, bad) {
			return Fail("expression contains forbidden token %q", bad)
		}
	}
	val, err := evalExpr(expr)
	if err != nil {
		return Fail("evaluate %q: %v", expr, err)
	}
	return Ok(val)
}

// evalExpr parses and evaluates with a small recursive-descent parser.
func evalExpr(input string) (float64, error) {
	p := &exprParser{src: []rune(input)}
	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("result is not finite")
	}
	return v, nil
}

type exprParser struct {
	src []rune
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *exprParser) peek() rune {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// sum := product (('+' | '-') product)*
func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

// product := unary (('*' | '/' | '%') unary)*
func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

// unary := '-' unary | atom
func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

// atom := number | '(' sum ')' | ident | ident '(' sum (',' sum)* ')'
func (p *exprParser) parseAtom() (float64, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case unicode.IsDigit(c) || c == '.':
		return p.parseNumber()
	case unicode.IsLetter(c):
		return p.parseIdent()
	case c == 0:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q", c)
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	v, err := strconv.ParseFloat(string(p.src[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", string(p.src[start:p.pos]))
	}
	return v, nil
}

func (p *exprParser) parseIdent() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos])) {
		p.pos++
	}
	name := strings.ToLower(string(p.src[start:p.pos]))

	switch name {
	case "pi":
		return math.Pi, nil
	case "e":
		return math.E, nil
	}

	if p.peek() != '(' {
		return 0, fmt.Errorf("unknown identifier %q", name)
	}
	p.pos++
	first, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	args := []float64{first}
	for p.peek() == ',' {
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		args = append(args, v)
	}
	if p.peek() != ')' {
		return 0, fmt.Errorf("missing closing parenthesis after %s", name)
	}
	p.pos++

	switch name {
	case "sqrt":
		if len(args) != 1 || args[0] < 0 {
			return 0, fmt.Errorf("sqrt needs one non-negative argument")
		}
		return math.Sqrt(args[0]), nil
	case "sin":
		if len(args) != 1 {
			return 0, fmt.Errorf("sin needs one argument")
		}
		return math.Sin(args[0]), nil
	case "cos":
		if len(args) != 1 {
			return 0, fmt.Errorf("cos needs one argument")
		}
		return math.Cos(args[0]), nil
	case "log":
		if len(args) != 1 || args[0] <= 0 {
			return 0, fmt.Errorf("log needs one positive argument")
		}
		return math.Log(args[0]), nil
	case "pow":
		if len(args) != 2 {
			return 0, fmt.Errorf("pow needs two arguments")
		}
		return math.Pow(args[0], args[1]), nil
	default:
		return 0, fmt.Errorf("unknown function %q", name)
	}
}
