package asm

import (
	"fmt"
	"strconv"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/asm/internal/token"
)

// Parse assembles program text.
//
//	.stack 4096
//	.global counter 0
//	.native wait_ticks
//	.public tick
//	    push.c 3
//	    sysreq wait_ticks 1
//	    retn
//
// Directives: .stack bytes, .global name [init, ...], .array name cells,
// .native name, .public name (exports the current address), .main.
// Labels end with ':'. Operands are numbers, labels (for call and jumps),
// global names or native names (for sysreq.c). The macro "sysreq name n"
// expands to push.c n*4, sysreq.c, stack (n+1)*4.
func Parse(src string) (*amx.Program, error) {
	p := &parser{b: New(), tokens: token.Tokenize(src)}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.b.Build()
}

type parser struct {
	b      *Builder
	tokens []token.Token
	pos    int
}

func (p *parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) expect(typ token.Type) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input")
	}
	if t.Type != typ {
		return nil, fmt.Errorf("line %d: expected %v, got %q", t.Line, typ, t.Value)
	}
	return t, nil
}

// operands collects the rest of the line.
func (p *parser) operands() []token.Token {
	var out []token.Token
	for t := p.next(); t != nil && t.Type != token.Newline; t = p.next() {
		if t.Type != token.Comma {
			out = append(out, *t)
		}
	}
	return out
}

func (p *parser) parse() error {
	for t := p.next(); t != nil; t = p.next() {
		var err error
		switch t.Type {
		case token.Newline:
		case token.Label:
			p.b.Label(t.Value)
		case token.Directive:
			err = p.directive(t)
		case token.Ident:
			err = p.instruction(t)
		default:
			err = fmt.Errorf("line %d: unexpected %v %q", t.Line, t.Type, t.Value)
		}
		if err != nil {
			return err
		}
		if p.b.err != nil {
			return fmt.Errorf("line %d: %w", t.Line, p.b.err)
		}
	}
	return nil
}

func parseNumber(t token.Token) (amx.Cell, error) {
	v, err := strconv.ParseInt(t.Value, 0, 64)
	if err != nil || v < -1<<31 || v > 1<<32-1 {
		return 0, fmt.Errorf("line %d: invalid number %q", t.Line, t.Value)
	}
	return amx.Cell(int32(uint32(v))), nil
}

func (p *parser) directive(t *token.Token) error {
	args := p.operands()
	name := func() (string, error) {
		if len(args) == 0 || args[0].Type != token.Ident {
			return "", fmt.Errorf("line %d: %s expects a name", t.Line, t.Value)
		}
		return args[0].Value, nil
	}
	switch t.Value {
	case ".stack":
		if len(args) != 1 {
			return fmt.Errorf("line %d: .stack expects a size", t.Line)
		}
		v, err := parseNumber(args[0])
		if err != nil {
			return err
		}
		p.b.StackHeap(v)
	case ".global":
		n, err := name()
		if err != nil {
			return err
		}
		var init []amx.Cell
		for _, a := range args[1:] {
			v, err := parseNumber(a)
			if err != nil {
				return err
			}
			init = append(init, v)
		}
		p.b.Global(n, init...)
	case ".array":
		n, err := name()
		if err != nil {
			return err
		}
		if len(args) != 2 {
			return fmt.Errorf("line %d: .array expects a name and a size", t.Line)
		}
		v, err := parseNumber(args[1])
		if err != nil {
			return err
		}
		p.b.Array(n, int(v))
	case ".native":
		n, err := name()
		if err != nil {
			return err
		}
		p.b.Native(n)
	case ".public":
		n, err := name()
		if err != nil {
			return err
		}
		p.b.Public(n)
	case ".main":
		p.b.Main()
	default:
		return fmt.Errorf("line %d: unknown directive %s", t.Line, t.Value)
	}
	return nil
}

func (p *parser) instruction(t *token.Token) error {
	args := p.operands()
	if t.Value == "sysreq" {
		if len(args) != 2 || args[0].Type != token.Ident {
			return fmt.Errorf("line %d: sysreq expects a native name and an argument count", t.Line)
		}
		n, err := parseNumber(args[1])
		if err != nil {
			return err
		}
		p.b.Sysreq(args[0].Value, int(n))
		return nil
	}

	op, ok := amx.LookupOpcode(t.Value)
	if !ok {
		return fmt.Errorf("line %d: unknown instruction %q", t.Line, t.Value)
	}
	if len(args) != op.Operands() {
		return fmt.Errorf("line %d: %s takes %d operand(s), got %d", t.Line, op, op.Operands(), len(args))
	}
	if len(args) == 0 {
		p.b.Op(op)
		return nil
	}

	a := args[0]
	if a.Type == token.Number {
		v, err := parseNumber(a)
		if err != nil {
			return err
		}
		p.b.Op(op, v)
		return nil
	}
	if a.Type != token.Ident {
		return fmt.Errorf("line %d: unexpected operand %q", a.Line, a.Value)
	}
	switch {
	case op.IsJump():
		p.b.Ref(op, a.Value)
	case op == amx.OpSysreqC:
		p.b.Op(op, p.b.Native(a.Value))
	default:
		addr, ok := p.b.GlobalAddr(a.Value)
		if !ok {
			return fmt.Errorf("line %d: unknown symbol %q", a.Line, a.Value)
		}
		p.b.Op(op, addr)
	}
	return nil
}
