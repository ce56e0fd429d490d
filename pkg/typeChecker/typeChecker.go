// Package typeChecker assigns types to expression trees as the parser
// builds them, inserting the implicit conversions C requires.
package typeChecker

import (
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/util"
)

type TypeChecker struct {
	cfg *config.Config
}

func NewTypeChecker(cfg *config.Config) *TypeChecker {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &TypeChecker{cfg: cfg}
}

// IsCompatible reports whether two types are compatible in the C sense.
func IsCompatible(t1, t2 *ast.Type) bool {
	if t1 == t2 {
		return true
	}
	if t1.Origin != nil {
		return IsCompatible(t1.Origin, t2)
	}
	if t2.Origin != nil {
		return IsCompatible(t1, t2.Origin)
	}
	if t1.Kind != t2.Kind {
		return false
	}

	switch t1.Kind {
	case ast.TyChar, ast.TyShort, ast.TyInt, ast.TyLong:
		return t1.Unsigned == t2.Unsigned
	case ast.TyFloat, ast.TyDouble, ast.TyLDouble:
		return true
	case ast.TyPtr:
		return IsCompatible(t1.Base, t2.Base)
	case ast.TyFunc:
		if !IsCompatible(t1.ReturnTy, t2.ReturnTy) || t1.Variadic != t2.Variadic {
			return false
		}
		if len(t1.Params) != len(t2.Params) {
			return false
		}
		for i := range t1.Params {
			if !IsCompatible(t1.Params[i], t2.Params[i]) {
				return false
			}
		}
		return true
	case ast.TyArray:
		if !IsCompatible(t1.Base, t2.Base) {
			return false
		}
		return t1.ArrayLen < 0 && t2.ArrayLen < 0 && t1.ArrayLen == t2.ArrayLen
	}
	return false
}

// GetCommonType is the type both operands of an arithmetic operator are
// converted to.
func GetCommonType(ty1, ty2 *ast.Type) *ast.Type {
	if ty1.Base != nil {
		return ast.PointerTo(ty1.Base)
	}
	if ty1.Kind == ast.TyFunc {
		return ast.PointerTo(ty1)
	}
	if ty2.Kind == ast.TyFunc {
		return ast.PointerTo(ty2)
	}

	switch {
	case ty1.Kind == ast.TyLDouble || ty2.Kind == ast.TyLDouble:
		return ast.TypeLDouble
	case ty1.Kind == ast.TyDouble || ty2.Kind == ast.TyDouble:
		return ast.TypeDouble
	case ty1.Kind == ast.TyFloat || ty2.Kind == ast.TyFloat:
		return ast.TypeFloat
	}

	if ty1.Size < 4 {
		ty1 = ast.TypeInt
	}
	if ty2.Size < 4 {
		ty2 = ast.TypeInt
	}
	if ty1.Size != ty2.Size {
		if ty1.Size < ty2.Size {
			return ty2
		}
		return ty1
	}
	if ty2.Unsigned {
		return ty2
	}
	return ty1
}

// NewCast wraps expr in a conversion to ty.
func (tc *TypeChecker) NewCast(expr *ast.Node, ty *ast.Type) *ast.Node {
	tc.AddType(expr)
	return &ast.Node{Type: ast.TypeCast, Tok: expr.Tok, Lhs: expr, Ty: ast.CopyType(ty)}
}

// usualArithConv applies the usual arithmetic conversions: both operands
// are converted to their common type.
func (tc *TypeChecker) usualArithConv(lhs, rhs **ast.Node) {
	tc.checkOperand(*lhs)
	tc.checkOperand(*rhs)
	ty := GetCommonType((*lhs).Ty, (*rhs).Ty)
	*lhs = tc.NewCast(*lhs, ty)
	*rhs = tc.NewCast(*rhs, ty)
}

func (tc *TypeChecker) checkOperand(n *ast.Node) {
	if n.Ty.IsAggregate() || n.Ty.Kind == ast.TyVoid {
		util.Error(n.Tok, "invalid operands")
	}
}

// AddType computes the type of node and of every node below it that has
// none yet.
func (tc *TypeChecker) AddType(node *ast.Node) {
	if node == nil || node.Ty != nil {
		return
	}

	tc.AddType(node.Lhs)
	tc.AddType(node.Rhs)
	tc.AddType(node.Cond)
	tc.AddType(node.Then)
	tc.AddType(node.Els)
	tc.AddType(node.Init)
	tc.AddType(node.Inc)
	for _, n := range node.Body {
		tc.AddType(n)
	}
	for _, n := range node.Args {
		tc.AddType(n)
	}

	switch node.Type {
	case ast.Number:
		node.Ty = ast.TypeInt
	case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.Mod, ast.BitAnd, ast.BitOr, ast.BitXor:
		tc.usualArithConv(&node.Lhs, &node.Rhs)
		node.Ty = node.Lhs.Ty
	case ast.Neg:
		tc.checkOperand(node.Lhs)
		ty := GetCommonType(ast.TypeInt, node.Lhs.Ty)
		node.Lhs = tc.NewCast(node.Lhs, ty)
		node.Ty = ty
	case ast.Assign:
		if node.Lhs.Ty.Kind == ast.TyArray {
			util.Error(node.Lhs.Tok, "not an lvalue")
		}
		if !node.Lhs.Ty.IsAggregate() {
			node.Rhs = tc.NewCast(node.Rhs, node.Lhs.Ty)
		}
		node.Ty = node.Lhs.Ty
	case ast.Eq, ast.Ne, ast.Lt, ast.Le:
		if node.Lhs.Ty.Base != nil && node.Rhs.Ty.IsInteger() && node.Rhs.Type != ast.Number {
			util.Warn(tc.cfg, config.WarnPedantic, node.Tok, "comparison between pointer and integer")
		}
		tc.usualArithConv(&node.Lhs, &node.Rhs)
		node.Ty = ast.TypeInt
	case ast.FuncCall:
		node.Ty = node.FuncTy.ReturnTy
	case ast.Not, ast.LogOr, ast.LogAnd:
		node.Ty = ast.TypeInt
	case ast.BitNot, ast.Shl, ast.Shr:
		node.Ty = node.Lhs.Ty
	case ast.Var, ast.VLAPtr:
		node.Ty = node.Var.Ty
	case ast.Ternary:
		if node.Then.Ty.Kind == ast.TyVoid || node.Els.Ty.Kind == ast.TyVoid {
			node.Ty = ast.TypeVoid
		} else if node.Then.Ty.IsAggregate() || node.Els.Ty.IsAggregate() {
			node.Ty = node.Then.Ty
		} else {
			tc.usualArithConv(&node.Then, &node.Els)
			node.Ty = node.Then.Ty
		}
	case ast.Comma:
		node.Ty = node.Rhs.Ty
	case ast.MemberAccess:
		node.Ty = node.Member.Ty
	case ast.AddressOf:
		ty := node.Lhs.Ty
		if ty.Kind == ast.TyArray {
			node.Ty = ast.PointerTo(ty.Base)
		} else {
			node.Ty = ast.PointerTo(ty)
		}
	case ast.Indirection:
		if node.Lhs.Ty.Base == nil {
			util.Error(node.Tok, "invalid pointer dereference")
		}
		if node.Lhs.Ty.Base.Kind == ast.TyVoid {
			util.Error(node.Tok, "dereferencing a void pointer")
		}
		node.Ty = node.Lhs.Ty.Base
	case ast.StmtExpr:
		if n := len(node.Body); n > 0 && node.Body[n-1].Type == ast.ExprStmt {
			node.Ty = node.Body[n-1].Lhs.Ty
			return
		}
		util.Error(node.Tok, "statement expression returning void is not supported")
	case ast.LabelVal:
		node.Ty = ast.PointerTo(ast.TypeVoid)
	case ast.CAS:
		tc.AddType(node.CasAddr)
		tc.AddType(node.CasOld)
		tc.AddType(node.CasNew)
		node.Ty = ast.TypeBool
		if node.CasAddr.Ty.Kind != ast.TyPtr {
			util.Error(node.CasAddr.Tok, "pointer expected")
		}
		if node.CasOld.Ty.Kind != ast.TyPtr {
			util.Error(node.CasOld.Tok, "pointer expected")
		}
	case ast.Exch:
		if node.Lhs.Ty.Kind != ast.TyPtr {
			util.Error(node.Lhs.Tok, "pointer expected")
		}
		node.Ty = node.Lhs.Ty.Base
	}
}
