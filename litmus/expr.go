// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package litmus

import (
	"strconv"

	"github.com/aclements/go-weave/weave"
	"github.com/cockroachdb/errors"
)

// tokenize splits an expression or condition into identifiers,
// integers and operators.
func tokenize(s string) ([]string, error) {
	var toks []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case isIdentByte(c, true) || isDigit(c):
			j := i + 1
			for j < len(s) && isIdentByte(s[j], false) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			if i+1 < len(s) {
				switch two := s[i : i+2]; two {
				case "==", "!=", "<=", ">=", "&&", "||":
					toks = append(toks, two)
					i += 2
					continue
				}
			}
			switch c {
			case '<', '>', '+', '-', '*', '!':
				toks = append(toks, string(c))
				i++
			default:
				return nil, errors.Newf("unexpected character %q in %q", c, s)
			}
		}
	}
	return toks, nil
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isIdentByte(c byte, first bool) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || !first && isDigit(c)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

// An exprParser is a recursive-descent parser over register
// expressions:
//
//	cond   = and { "||" and }
//	and    = not { "&&" not }
//	not    = "!" not | expr cmpop expr
//	expr   = term { ("+" | "-") term }
//	term   = factor { "*" factor }
//	factor = ["-"] (integer | register)
type exprParser struct {
	src  string
	toks []string
	pos  int
}

func newExprParser(s string) (*exprParser, error) {
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, errors.New("empty expression")
	}
	return &exprParser{src: s, toks: toks}, nil
}

func (p *exprParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *exprParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) done() error {
	if p.pos < len(p.toks) {
		return errors.Newf("unexpected %q in %q", p.toks[p.pos], p.src)
	}
	return nil
}

// parseExpr parses s as an integer expression over registers.
func parseExpr(s string) (weave.Expr, error) {
	p, err := newExprParser(s)
	if err != nil {
		return nil, err
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	return e, p.done()
}

// parseCond parses s as a boolean condition over registers.
func parseCond(s string) (func(weave.Regs) bool, error) {
	p, err := newExprParser(s)
	if err != nil {
		return nil, err
	}
	c, err := p.cond()
	if err != nil {
		return nil, err
	}
	return c, p.done()
}

func (p *exprParser) cond() (func(weave.Regs) bool, error) {
	x, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek() == "||" {
		p.next()
		y, err := p.and()
		if err != nil {
			return nil, err
		}
		l := x
		x = func(r weave.Regs) bool { return l(r) || y(r) }
	}
	return x, nil
}

func (p *exprParser) and() (func(weave.Regs) bool, error) {
	x, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.peek() == "&&" {
		p.next()
		y, err := p.not()
		if err != nil {
			return nil, err
		}
		l := x
		x = func(r weave.Regs) bool { return l(r) && y(r) }
	}
	return x, nil
}

func (p *exprParser) not() (func(weave.Regs) bool, error) {
	if p.peek() == "!" {
		p.next()
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return func(r weave.Regs) bool { return !x(r) }, nil
	}
	l, err := p.expr()
	if err != nil {
		return nil, err
	}
	op := p.next()
	r, err := p.expr()
	if err != nil {
		return nil, err
	}
	switch op {
	case "==":
		return func(rs weave.Regs) bool { return l(rs) == r(rs) }, nil
	case "!=":
		return func(rs weave.Regs) bool { return l(rs) != r(rs) }, nil
	case "<":
		return func(rs weave.Regs) bool { return l(rs) < r(rs) }, nil
	case "<=":
		return func(rs weave.Regs) bool { return l(rs) <= r(rs) }, nil
	case ">":
		return func(rs weave.Regs) bool { return l(rs) > r(rs) }, nil
	case ">=":
		return func(rs weave.Regs) bool { return l(rs) >= r(rs) }, nil
	}
	return nil, errors.Newf("expected comparison in %q, found %q", p.src, op)
}

func (p *exprParser) expr() (weave.Expr, error) {
	x, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		op := p.next()
		y, err := p.term()
		if err != nil {
			return nil, err
		}
		l := x
		if op == "+" {
			x = func(r weave.Regs) int64 { return l(r) + y(r) }
		} else {
			x = func(r weave.Regs) int64 { return l(r) - y(r) }
		}
	}
	return x, nil
}

func (p *exprParser) term() (weave.Expr, error) {
	x, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.peek() == "*" {
		p.next()
		y, err := p.factor()
		if err != nil {
			return nil, err
		}
		l := x
		x = func(r weave.Regs) int64 { return l(r) * y(r) }
	}
	return x, nil
}

func (p *exprParser) factor() (weave.Expr, error) {
	if p.peek() == "-" {
		p.next()
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return func(r weave.Regs) int64 { return -x(r) }, nil
	}
	tok := p.next()
	switch {
	case tok == "":
		return nil, errors.Newf("unexpected end of %q", p.src)
	case isDigit(tok[0]):
		v, err := strconv.ParseInt(tok, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "in %q", p.src)
		}
		return weave.Const(v), nil
	case isIdent(tok):
		return weave.Reg(tok), nil
	}
	return nil, errors.Newf("unexpected %q in %q", tok, p.src)
}
