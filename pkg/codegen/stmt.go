package codegen

import (
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/util"
)

func (b *x86Backend) genStmt(node *ast.Node) {
	b.loc(node.Tok)

	switch node.Type {
	case ast.If:
		c := b.nextCount()
		b.genExpr(node.Cond)
		b.cmpZero(node.Cond.Ty)
		b.emit("  je  .L.else.%d", c)
		b.genStmt(node.Then)
		b.emit("  jmp .L.end.%d", c)
		b.emit(".L.else.%d:", c)
		if node.Els != nil {
			b.genStmt(node.Els)
		}
		b.emit(".L.end.%d:", c)
	case ast.For:
		c := b.nextCount()
		if node.Init != nil {
			b.genStmt(node.Init)
		}
		b.emit(".L.begin.%d:", c)
		if node.Cond != nil {
			b.genExpr(node.Cond)
			b.cmpZero(node.Cond.Ty)
			b.emit("  je %s", node.BrkLabel)
		}
		b.genStmt(node.Then)
		b.emit("%s:", node.ContLabel)
		if node.Inc != nil {
			b.genExpr(node.Inc)
		}
		b.emit("  jmp .L.begin.%d", c)
		b.emit("%s:", node.BrkLabel)
	case ast.Do:
		c := b.nextCount()
		b.emit(".L.begin.%d:", c)
		b.genStmt(node.Then)
		b.emit("%s:", node.ContLabel)
		b.genExpr(node.Cond)
		b.cmpZero(node.Cond.Ty)
		b.emit("  jne .L.begin.%d", c)
		b.emit("%s:", node.BrkLabel)
	case ast.Switch:
		b.genSwitch(node)
	case ast.Case:
		b.emit("%s:", node.Label)
		b.genStmt(node.Lhs)
	case ast.Block:
		for _, n := range node.Body {
			b.genStmt(n)
		}
	case ast.Goto:
		b.emit("  jmp %s", node.UniqueLabel)
	case ast.GotoExpr:
		b.genExpr(node.Lhs)
		b.emit("  jmp *%%rax")
	case ast.Label:
		b.emit("%s:", node.UniqueLabel)
		b.genStmt(node.Lhs)
	case ast.Return:
		if node.Lhs != nil {
			b.genExpr(node.Lhs)
			if ty := node.Lhs.Ty; ty.IsAggregate() {
				if ty.Size <= 16 {
					b.copyStructReg()
				} else {
					b.copyStructMem()
				}
			}
		}
		b.emit("  jmp .L.return.%s", b.fn.Name)
	case ast.ExprStmt:
		b.genExpr(node.Lhs)
	case ast.AsmStmt:
		b.emit("  %s", node.AsmStr)
	default:
		util.Error(node.Tok, "invalid statement")
	}
}

// genSwitch compares the controlling value against each case in source
// order. A case range lo...hi matches when value-lo, taken as unsigned, is
// at most hi-lo.
func (b *x86Backend) genSwitch(node *ast.Node) {
	b.genExpr(node.Cond)

	ax, di := "%eax", "%edi"
	if node.Cond.Ty.Size == 8 {
		ax, di = "%rax", "%rdi"
	}

	for _, n := range node.Cases {
		if n.Begin == n.End {
			b.emit("  cmp $%d, %s", n.Begin, ax)
			b.emit("  je %s", n.Label)
			continue
		}
		b.emit("  mov %s, %s", ax, di)
		b.emit("  sub $%d, %s", n.Begin, di)
		b.emit("  cmp $%d, %s", n.End-n.Begin, di)
		b.emit("  jbe %s", n.Label)
	}

	if node.DefaultCase != nil {
		b.emit("  jmp %s", node.DefaultCase.Label)
	}

	b.emit("  jmp %s", node.BrkLabel)
	b.genStmt(node.Then)
	b.emit("%s:", node.BrkLabel)
}
