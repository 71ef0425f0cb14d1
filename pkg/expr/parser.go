package expr

// parser is a recursive-descent parser with Python operator precedence:
//
//	or < and < not < comparison < + - < * / % < unary - + < call/atom
type parser struct {
	src    string
	tokens []token
	pos    int
}

// Parse builds the expression tree for src.
func Parse(src string) (*Node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}
	if p.peek().kind == tkEOF {
		return nil, p.fail(0, "empty expression")
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tkEOF {
		return nil, p.fail(tok.pos, "unexpected "+describe(tok))
	}
	return n, nil
}

func (p *parser) fail(pos int, msg string) error {
	return &SyntaxError{Expr: p.src, Pos: pos, Msg: msg}
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tkEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isWord(w string) bool {
	tok := p.peek()
	return tok.kind == tkIdent && tok.text == w
}

func (p *parser) isOp(ops map[string]bool) bool {
	tok := p.peek()
	return tok.kind == tkOp && ops[tok.text]
}

func (p *parser) parseOr() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isWord("or") {
		tok := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinaryOp, Pos: tok.pos, Op: "or", Operands: []*Node{left, right}}
	}
	return left, nil
}

func (p *parser) parseAnd() (*Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isWord("and") {
		tok := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinaryOp, Pos: tok.pos, Op: "and", Operands: []*Node{left, right}}
	}
	return left, nil
}

func (p *parser) parseNot() (*Node, error) {
	if p.isWord("not") {
		tok := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindUnaryOp, Pos: tok.pos, Op: "not", Operands: []*Node{operand}}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (*Node, error) {
	first, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if !p.isOp(compareOps) {
		return first, nil
	}
	cmp := &Node{Kind: KindCompare, Pos: p.peek().pos, Operands: []*Node{first}}
	for p.isOp(compareOps) {
		tok := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp.Ops = append(cmp.Ops, tok.text)
		cmp.Operands = append(cmp.Operands, right)
	}
	return cmp, nil
}

var additiveOps = map[string]bool{"+": true, "-": true}
var multiplicativeOps = map[string]bool{"*": true, "/": true, "%": true}

func (p *parser) parseAdditive() (*Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp(additiveOps) {
		tok := p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinaryOp, Pos: tok.pos, Op: tok.text, Operands: []*Node{left, right}}
	}
	return left, nil
}

func (p *parser) parseTerm() (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp(multiplicativeOps) {
		tok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinaryOp, Pos: tok.pos, Op: tok.text, Operands: []*Node{left, right}}
	}
	return left, nil
}

func (p *parser) parseUnary() (*Node, error) {
	if p.isOp(additiveOps) {
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindUnaryOp, Pos: tok.pos, Op: tok.text, Operands: []*Node{operand}}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*Node, error) {
	tok := p.advance()
	switch tok.kind {
	case tkNumber, tkString:
		return &Node{Kind: KindLiteral, Pos: tok.pos, Value: tok.val}, nil
	case tkLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tkRParen {
			return nil, p.fail(p.peek().pos, "expected ')'")
		}
		p.advance()
		return inner, nil
	case tkIdent:
		switch tok.text {
		case "true", "True":
			return &Node{Kind: KindLiteral, Pos: tok.pos, Value: true}, nil
		case "false", "False":
			return &Node{Kind: KindLiteral, Pos: tok.pos, Value: false}, nil
		case "null", "None":
			return &Node{Kind: KindLiteral, Pos: tok.pos, Value: nil}, nil
		case "and", "or", "not":
			return nil, p.fail(tok.pos, "unexpected keyword '"+tok.text+"'")
		}
		if p.peek().kind == tkLParen {
			return p.parseCall(tok)
		}
		return &Node{Kind: KindIdentifier, Pos: tok.pos, Name: tok.text}, nil
	}
	return nil, p.fail(tok.pos, "unexpected "+describe(tok))
}

func (p *parser) parseCall(name token) (*Node, error) {
	p.advance() // (
	call := &Node{Kind: KindCall, Pos: name.pos, Name: name.text}
	if p.peek().kind == tkRParen {
		p.advance()
		return call, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.Operands = append(call.Operands, arg)
		switch p.peek().kind {
		case tkComma:
			p.advance()
		case tkRParen:
			p.advance()
			return call, nil
		default:
			return nil, p.fail(p.peek().pos, "expected ',' or ')' in call to "+name.text)
		}
	}
}

func describe(tok token) string {
	switch tok.kind {
	case tkEOF:
		return "end of expression"
	case tkRParen:
		return "')'"
	case tkComma:
		return "','"
	}
	return "'" + tok.text + "'"
}
