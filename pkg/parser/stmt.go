package parser

import (
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

// asm-stmt = "asm" ("volatile" | "inline")* "(" string-literal ")"
func (p *Parser) asmStmt() *ast.Node {
	node := ast.NewNode(ast.AsmStmt, p.tok)
	p.advance()

	for p.check("volatile") || p.check("inline") || p.check("__volatile__") {
		p.advance()
	}

	p.expect("(")
	if p.tok.Kind != token.Str || p.tok.Lit != token.LitChar {
		util.Error(p.tok, "expected string literal")
	}
	node.AsmStr = string(p.tok.Str[:len(p.tok.Str)-1])
	p.advance()
	p.expect(")")
	return node
}

// loopLabels installs fresh break and continue targets for node and returns
// a function restoring the enclosing ones.
func (p *Parser) loopLabels(node *ast.Node) func() {
	brk, cont := p.brkLabel, p.contLabel
	node.BrkLabel = p.newUniqueName()
	node.ContLabel = p.newUniqueName()
	p.brkLabel, p.contLabel = node.BrkLabel, node.ContLabel
	return func() { p.brkLabel, p.contLabel = brk, cont }
}

// stmt = "return" expr? ";"
//
//	| "if" "(" expr ")" stmt ("else" stmt)?
//	| "switch" "(" expr ")" stmt
//	| "case" const-expr ("..." const-expr)? ":" stmt
//	| "default" ":" stmt
//	| "for" "(" expr-stmt expr? ";" expr? ")" stmt
//	| "while" "(" expr ")" stmt
//	| "do" stmt "while" "(" expr ")" ";"
//	| "asm" asm-stmt
//	| "goto" (ident | "*" expr) ";"
//	| "break" ";"
//	| "continue" ";"
//	| ident ":" stmt
//	| "{" compound-stmt
//	| expr-stmt
func (p *Parser) stmt() *ast.Node {
	tok := p.tok

	switch {
	case tok.Is("return"):
		node := ast.NewNode(ast.Return, tok)
		p.advance()
		if p.match(";") {
			return node
		}

		exp := p.expr()
		p.expect(";")

		p.tc.AddType(exp)
		if ty := p.currentFn.Ty.ReturnTy; !ty.IsAggregate() {
			exp = p.tc.NewCast(exp, ty)
		}
		node.Lhs = exp
		return node

	case tok.Is("if"):
		node := ast.NewNode(ast.If, tok)
		p.advance()
		p.expect("(")
		node.Cond = p.expr()
		p.expect(")")
		node.Then = p.stmt()
		if p.match("else") {
			node.Els = p.stmt()
		}
		return node

	case tok.Is("switch"):
		node := ast.NewNode(ast.Switch, tok)
		p.advance()
		p.expect("(")
		node.Cond = p.expr()
		p.expect(")")

		sw, brk := p.currentSwitch, p.brkLabel
		p.currentSwitch = node
		node.BrkLabel = p.newUniqueName()
		p.brkLabel = node.BrkLabel

		node.Then = p.stmt()

		p.currentSwitch, p.brkLabel = sw, brk
		return node

	case tok.Is("case"):
		if p.currentSwitch == nil {
			util.Error(tok, "stray case")
		}
		node := ast.NewNode(ast.Case, tok)
		p.advance()
		begin := p.constExpr()
		end := begin

		// [GNU] case 1 ... 5:
		if p.match("...") {
			end = p.constExpr()
			if end < begin {
				util.Error(p.tok, "empty case range specified")
			}
		}
		p.expect(":")

		node.Label = p.newUniqueName()
		node.Begin, node.End = begin, end
		sw := p.currentSwitch
		sw.Cases = append(sw.Cases, node)
		node.Lhs = p.stmt()
		return node

	case tok.Is("default"):
		if p.currentSwitch == nil {
			util.Error(tok, "stray default")
		}
		node := ast.NewNode(ast.Case, tok)
		p.advance()
		p.expect(":")
		node.Label = p.newUniqueName()
		p.currentSwitch.DefaultCase = node
		node.Lhs = p.stmt()
		return node

	case tok.Is("for"):
		node := ast.NewNode(ast.For, tok)
		p.advance()
		p.expect("(")

		p.enterScope()
		restore := p.loopLabels(node)

		if p.isTypename(p.tok) {
			basety := p.declspec(nil)
			node.Init = p.declaration(basety, nil)
		} else {
			node.Init = p.exprStmt()
		}

		if !p.check(";") {
			node.Cond = p.expr()
		}
		p.expect(";")

		if !p.check(")") {
			node.Inc = p.expr()
		}
		p.expect(")")

		node.Then = p.stmt()

		p.leaveScope()
		restore()
		return node

	case tok.Is("while"):
		node := ast.NewNode(ast.For, tok)
		p.advance()
		p.expect("(")
		node.Cond = p.expr()
		p.expect(")")

		restore := p.loopLabels(node)
		node.Then = p.stmt()
		restore()
		return node

	case tok.Is("do"):
		node := ast.NewNode(ast.Do, tok)
		p.advance()

		restore := p.loopLabels(node)
		node.Then = p.stmt()
		restore()

		p.expect("while")
		p.expect("(")
		node.Cond = p.expr()
		p.expect(")")
		p.expect(";")
		return node

	case tok.Is("asm") || tok.Is("__asm__"):
		node := p.asmStmt()
		p.expect(";")
		return node

	case tok.Is("goto"):
		p.advance()
		if p.match("*") {
			// [GNU] goto *ptr jumps to the address in ptr.
			node := ast.NewNode(ast.GotoExpr, tok)
			node.Lhs = p.expr()
			p.expect(";")
			return node
		}

		node := ast.NewNode(ast.Goto, tok)
		node.Label = p.getIdent(p.tok)
		p.gotos = append(p.gotos, node)
		p.advance()
		p.expect(";")
		return node

	case tok.Is("break"):
		if p.brkLabel == "" {
			util.Error(tok, "stray break")
		}
		node := ast.NewNode(ast.Goto, tok)
		node.UniqueLabel = p.brkLabel
		p.advance()
		p.expect(";")
		return node

	case tok.Is("continue"):
		if p.contLabel == "" {
			util.Error(tok, "stray continue")
		}
		node := ast.NewNode(ast.Goto, tok)
		node.UniqueLabel = p.contLabel
		p.advance()
		p.expect(";")
		return node

	case tok.Kind == token.Ident && p.peekIs(":"):
		node := ast.NewNode(ast.Label, tok)
		node.Label = tok.Text
		node.UniqueLabel = p.newUniqueName()
		p.advance()
		p.advance()
		p.labels = append(p.labels, node)
		node.Lhs = p.stmt()
		return node

	case tok.Is("{"):
		p.advance()
		return p.compoundStmt()
	}

	return p.exprStmt()
}

// compound-stmt = (typedef | declaration | stmt)* "}"
//
// The opening brace has already been consumed.
func (p *Parser) compoundStmt() *ast.Node {
	node := ast.NewNode(ast.Block, p.tok)
	p.enterScope()

	for !p.check("}") {
		if p.tok.Kind == token.EOF {
			util.Error(p.tok, "expected '}'")
		}

		var stmt *ast.Node
		if p.isTypename(p.tok) && !p.peekIs(":") {
			var attr varAttr
			basety := p.declspec(&attr)

			if attr.isTypedef {
				p.parseTypedef(basety)
				continue
			}
			if p.isFunction() {
				p.function(basety, &attr)
				continue
			}
			if attr.isExtern {
				p.globalVariable(basety, &attr)
				continue
			}
			stmt = p.declaration(basety, &attr)
		} else {
			stmt = p.stmt()
		}
		p.tc.AddType(stmt)
		node.Body = append(node.Body, stmt)
	}

	p.leaveScope()
	p.advance()
	return node
}

// expr-stmt = expr? ";"
func (p *Parser) exprStmt() *ast.Node {
	if p.check(";") {
		node := ast.NewNode(ast.Block, p.tok)
		p.advance()
		return node
	}

	node := ast.NewNode(ast.ExprStmt, p.tok)
	node.Lhs = p.expr()
	p.expect(";")
	return node
}
