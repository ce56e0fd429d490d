package parser

import (
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

// symRef receives the symbol a constant expression is relative to. Global
// initializers may be of the form &var + n or &&label + n.
type symRef struct {
	obj   *ast.Obj
	label *ast.Node
}

func (p *Parser) eval(node *ast.Node) int64 {
	return p.eval2(node, nil)
}

// eval2 evaluates a constant expression. A constant expression is a number
// or a symbol address plus a number; the latter is accepted only when ref
// is non-nil, and the symbol is stored in ref.
func (p *Parser) eval2(node *ast.Node, ref *symRef) int64 {
	p.tc.AddType(node)

	if node.Ty.IsFlonum() {
		return int64(p.evalDouble(node))
	}

	switch node.Type {
	case ast.Add:
		return p.eval2(node.Lhs, ref) + p.eval(node.Rhs)
	case ast.Sub:
		return p.eval2(node.Lhs, ref) - p.eval(node.Rhs)
	case ast.Mul:
		return p.eval(node.Lhs) * p.eval(node.Rhs)
	case ast.Div, ast.Mod:
		l, r := p.eval(node.Lhs), p.eval(node.Rhs)
		if r == 0 {
			util.Error(node.Tok, "division by zero")
		}
		if node.Ty.Unsigned {
			if node.Type == ast.Div {
				return int64(uint64(l) / uint64(r))
			}
			return int64(uint64(l) % uint64(r))
		}
		if node.Type == ast.Div {
			return l / r
		}
		return l % r
	case ast.Neg:
		return -p.eval(node.Lhs)
	case ast.BitAnd:
		return p.eval(node.Lhs) & p.eval(node.Rhs)
	case ast.BitOr:
		return p.eval(node.Lhs) | p.eval(node.Rhs)
	case ast.BitXor:
		return p.eval(node.Lhs) ^ p.eval(node.Rhs)
	case ast.Shl:
		return p.eval(node.Lhs) << uint64(p.eval(node.Rhs))
	case ast.Shr:
		if node.Ty.Unsigned && node.Ty.Size == 8 {
			return int64(uint64(p.eval(node.Lhs)) >> uint64(p.eval(node.Rhs)))
		}
		return p.eval(node.Lhs) >> uint64(p.eval(node.Rhs))
	case ast.Eq:
		return b2i(p.eval(node.Lhs) == p.eval(node.Rhs))
	case ast.Ne:
		return b2i(p.eval(node.Lhs) != p.eval(node.Rhs))
	case ast.Lt:
		if node.Lhs.Ty.Unsigned {
			return b2i(uint64(p.eval(node.Lhs)) < uint64(p.eval(node.Rhs)))
		}
		return b2i(p.eval(node.Lhs) < p.eval(node.Rhs))
	case ast.Le:
		if node.Lhs.Ty.Unsigned {
			return b2i(uint64(p.eval(node.Lhs)) <= uint64(p.eval(node.Rhs)))
		}
		return b2i(p.eval(node.Lhs) <= p.eval(node.Rhs))
	case ast.Ternary:
		if p.eval(node.Cond) != 0 {
			return p.eval2(node.Then, ref)
		}
		return p.eval2(node.Els, ref)
	case ast.Comma:
		return p.eval2(node.Rhs, ref)
	case ast.Not:
		return b2i(p.eval(node.Lhs) == 0)
	case ast.BitNot:
		return ^p.eval(node.Lhs)
	case ast.LogAnd:
		return b2i(p.eval(node.Lhs) != 0 && p.eval(node.Rhs) != 0)
	case ast.LogOr:
		return b2i(p.eval(node.Lhs) != 0 || p.eval(node.Rhs) != 0)
	case ast.TypeCast:
		val := p.eval2(node.Lhs, ref)
		if node.Ty.IsInteger() {
			return truncate(val, node.Ty)
		}
		return val
	case ast.AddressOf:
		return p.evalRval(node.Lhs, ref)
	case ast.LabelVal:
		if ref == nil {
			util.Error(node.Tok, "not a compile-time constant")
		}
		ref.label = node
		return 0
	case ast.MemberAccess:
		if ref == nil {
			util.Error(node.Tok, "not a compile-time constant")
		}
		if node.Ty.Kind != ast.TyArray {
			util.Error(node.Tok, "invalid initializer")
		}
		return p.evalRval(node.Lhs, ref) + node.Member.Offset
	case ast.Var:
		if ref == nil {
			util.Error(node.Tok, "not a compile-time constant")
		}
		if node.Var.Ty.Kind != ast.TyArray && node.Var.Ty.Kind != ast.TyFunc {
			util.Error(node.Tok, "invalid initializer")
		}
		if node.Var.IsLocal {
			util.Error(node.Tok, "not a compile-time constant")
		}
		ref.obj = node.Var
		return 0
	case ast.Number:
		return node.Val
	}

	util.Error(node.Tok, "not a compile-time constant")
	return 0
}

// truncate converts val to an integer type of ty's width and signedness.
func truncate(val int64, ty *ast.Type) int64 {
	if ty.Kind == ast.TyBool {
		return b2i(val != 0)
	}
	switch ty.Size {
	case 1:
		if ty.Unsigned {
			return int64(uint8(val))
		}
		return int64(int8(val))
	case 2:
		if ty.Unsigned {
			return int64(uint16(val))
		}
		return int64(int16(val))
	case 4:
		if ty.Unsigned {
			return int64(uint32(val))
		}
		return int64(int32(val))
	}
	return val
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// evalRval evaluates the address of an lvalue.
func (p *Parser) evalRval(node *ast.Node, ref *symRef) int64 {
	switch node.Type {
	case ast.Var:
		if node.Var.IsLocal || ref == nil {
			util.Error(node.Tok, "not a compile-time constant")
		}
		ref.obj = node.Var
		return 0
	case ast.Indirection:
		return p.eval2(node.Lhs, ref)
	case ast.MemberAccess:
		return p.evalRval(node.Lhs, ref) + node.Member.Offset
	}
	util.Error(node.Tok, "invalid initializer")
	return 0
}

// isConstExpr reports whether node is an integer constant expression,
// which decides between an array and a VLA.
func (p *Parser) isConstExpr(node *ast.Node) bool {
	p.tc.AddType(node)

	switch node.Type {
	case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.BitAnd, ast.BitOr, ast.BitXor,
		ast.Shl, ast.Shr, ast.Eq, ast.Ne, ast.Lt, ast.Le, ast.LogAnd, ast.LogOr:
		return p.isConstExpr(node.Lhs) && p.isConstExpr(node.Rhs)
	case ast.Ternary:
		if !p.isConstExpr(node.Cond) {
			return false
		}
		if p.eval(node.Cond) != 0 {
			return p.isConstExpr(node.Then)
		}
		return p.isConstExpr(node.Els)
	case ast.Comma:
		return p.isConstExpr(node.Rhs)
	case ast.Neg, ast.Not, ast.BitNot, ast.TypeCast:
		return p.isConstExpr(node.Lhs)
	case ast.Number:
		return true
	}
	return false
}

func (p *Parser) constExpr() int64 {
	return p.eval(p.conditional())
}

func (p *Parser) evalDouble(node *ast.Node) float64 {
	p.tc.AddType(node)

	if node.Ty.IsInteger() {
		if node.Ty.Unsigned {
			return float64(uint64(p.eval(node)))
		}
		return float64(p.eval(node))
	}

	switch node.Type {
	case ast.Add:
		return p.evalDouble(node.Lhs) + p.evalDouble(node.Rhs)
	case ast.Sub:
		return p.evalDouble(node.Lhs) - p.evalDouble(node.Rhs)
	case ast.Mul:
		return p.evalDouble(node.Lhs) * p.evalDouble(node.Rhs)
	case ast.Div:
		return p.evalDouble(node.Lhs) / p.evalDouble(node.Rhs)
	case ast.Neg:
		return -p.evalDouble(node.Lhs)
	case ast.Ternary:
		if p.evalDouble(node.Cond) != 0 {
			return p.evalDouble(node.Then)
		}
		return p.evalDouble(node.Els)
	case ast.Comma:
		return p.evalDouble(node.Rhs)
	case ast.TypeCast:
		v := p.evalDouble(node.Lhs)
		if node.Ty.Kind == ast.TyFloat {
			return float64(float32(v))
		}
		return v
	case ast.Number:
		return node.FVal
	}

	util.Error(node.Tok, "not a compile-time constant")
	return 0
}

// EvalConstExpr evaluates the integer constant expression at tok, as #if
// does after macro expansion, and returns the value and the first token
// after the expression. Errors panic like every other diagnostic.
func EvalConstExpr(tok *token.Token) (int64, *token.Token) {
	p := NewParser(tok, nil)
	val := p.constExpr()
	return val, p.tok
}
