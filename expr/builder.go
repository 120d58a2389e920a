package expr

import "fmt"

// build splits tokens into statements on ';' and converts each to RPN.
// Empty statements are dropped.
func build(tokens []Token) ([][]Token, error) {
	var stmts [][]Token
	start := 0
	for i := 0; i <= len(tokens); i++ {
		if i < len(tokens) && !tokens[i].is(OpSemicolon) {
			continue
		}
		if i > start {
			rpn, err := buildStatement(tokens[start:i])
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, rpn)
		}
		start = i + 1
	}
	return stmts, nil
}

// buildStatement runs operator-precedence reduction over one statement.
func buildStatement(tokens []Token) ([]Token, error) {
	var out, stack []Token
	pop := func() Token {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return t
	}

	for i, tok := range tokens {
		switch {
		case tok.operand():
			out = append(out, tok)

		case tok.Type == TokenCall:
			out = append(out, Token{Type: TokenArgs})
			stack = append(stack, tok)

		case tok.is(OpLParen):
			stack = append(stack, tok)

		case tok.is(OpComma):
			for len(stack) > 0 && !stack[len(stack)-1].is(OpLParen) {
				out = append(out, pop())
			}
			if len(stack) < 2 || stack[len(stack)-2].Type != TokenCall {
				return nil, fmt.Errorf("unexpected ',' outside a call")
			}

		case tok.is(OpRParen):
			for len(stack) > 0 && !stack[len(stack)-1].is(OpLParen) {
				out = append(out, pop())
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("mismatched ')'")
			}
			pop()
			if len(stack) > 0 && stack[len(stack)-1].Type == TokenCall {
				out = append(out, pop())
			}

		case tok.Type == TokenOperator:
			info := opTable[tok.Op]
			if info.unary {
				if i+1 >= len(tokens) {
					return nil, fmt.Errorf("operator %s missing operand", tok.Op)
				}
				stack = append(stack, tok)
				continue
			}
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.Type != TokenOperator || top.is(OpLParen) {
					break
				}
				tp := opTable[top.Op].prec
				if tp > info.prec || (tp == info.prec && !info.rightAssoc) {
					out = append(out, pop())
					continue
				}
				break
			}
			stack = append(stack, tok)
		}
	}
	for len(stack) > 0 {
		t := pop()
		if t.is(OpLParen) || t.Type == TokenCall {
			return nil, fmt.Errorf("mismatched '('")
		}
		out = append(out, t)
	}
	if err := validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// validate simulates the evaluation stack so malformed statements such as
// "1 2" or "* 3" fail at build time.
func validate(rpn []Token) error {
	depth := 0
	var marks []int
	for _, t := range rpn {
		// Operands of an operator must lie above the innermost call mark.
		base := 0
		if len(marks) > 0 {
			base = marks[len(marks)-1]
		}
		switch {
		case t.operand():
			depth++
		case t.Type == TokenArgs:
			marks = append(marks, depth)
		case t.Type == TokenCall:
			if len(marks) == 0 {
				return fmt.Errorf("syntax error near %s", t)
			}
			depth = base + 1
			marks = marks[:len(marks)-1]
		case opTable[t.Op].unary:
			if depth-base < 1 {
				return fmt.Errorf("syntax error near %s", t)
			}
		default:
			if depth-base < 2 {
				return fmt.Errorf("syntax error near %s", t)
			}
			depth--
		}
	}
	if depth != 1 || len(marks) != 0 {
		return fmt.Errorf("syntax error")
	}
	return nil
}
