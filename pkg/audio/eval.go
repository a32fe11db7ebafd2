package audio

import (
	"strconv"

	"github.com/matzehuels/strata/pkg/errors"
)

// maxDepth bounds parenthesis nesting.
const maxDepth = 64

// EvalArithmetic evaluates an expression built only from decimal numbers,
// unary and binary + and -, and parentheses, such as "(-(-3.9)+2)".
// Anything else is rejected with [errors.ErrCodeInvalidExpression].
func EvalArithmetic(expr string) (float64, error) {
	if expr == "" {
		return 0, errors.New(errors.ErrCodeInvalidExpression, "empty expression")
	}
	p := &parser{src: expr}
	v, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.src) {
		return 0, p.fail("unexpected %q", p.src[p.pos])
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidExpression, "%q at offset %d: "+format,
		append([]any{p.src, p.pos}, args...)...)
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

// expr := unary (('+' | '-') unary)*
func (p *parser) expr(depth int) (float64, error) {
	v, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			r, err := p.unary(depth)
			if err != nil {
				return 0, err
			}
			v += r
		case '-':
			p.pos++
			r, err := p.unary(depth)
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

// unary := ('+' | '-') unary | primary
func (p *parser) unary(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, p.fail("nesting deeper than %d", maxDepth)
	}
	switch p.peek() {
	case '+':
		p.pos++
		return p.unary(depth + 1)
	case '-':
		p.pos++
		v, err := p.unary(depth + 1)
		return -v, err
	}
	return p.primary(depth)
}

// primary := number | '(' expr ')'
func (p *parser) primary(depth int) (float64, error) {
	if p.peek() == '(' {
		p.pos++
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, p.fail("expected )")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	dot := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' && !dot {
			dot = true
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" || lit == "." {
		if p.pos < len(p.src) {
			return 0, p.fail("unexpected %q", p.src[p.pos])
		}
		return 0, p.fail("unexpected end of expression")
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, p.fail("bad number %q", lit)
	}
	return v, nil
}
