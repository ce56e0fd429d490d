package typeChecker

import (
	"testing"

	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
)

var tok = &token.Token{Kind: token.Punct, Text: "+"}

func num(ty *ast.Type) *ast.Node {
	return &ast.Node{Type: ast.Number, Tok: tok, Ty: ty}
}

func TestGetCommonType(t *testing.T) {
	tests := []struct {
		name   string
		t1, t2 *ast.Type
		want   string
	}{
		{"char promotes", ast.TypeChar, ast.TypeShort, "int"},
		{"wider wins", ast.TypeInt, ast.TypeLong, "long"},
		{"unsigned wins at equal size", ast.TypeInt, ast.TypeUInt, "unsigned int"},
		{"signed long over unsigned int", ast.TypeUInt, ast.TypeLong, "long"},
		{"float over integer", ast.TypeLong, ast.TypeFloat, "float"},
		{"double over float", ast.TypeFloat, ast.TypeDouble, "double"},
		{"long double over double", ast.TypeDouble, ast.TypeLDouble, "long double"},
		{"pointer", ast.PointerTo(ast.TypeChar), ast.TypeInt, "*char"},
		{"array decays", ast.ArrayOf(ast.TypeInt, 3), ast.TypeInt, "*int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCommonType(tt.t1, tt.t2).String(); got != tt.want {
				t.Errorf("GetCommonType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCompatible(t *testing.T) {
	fn := func(ret *ast.Type, params ...*ast.Type) *ast.Type {
		ty := ast.FuncType(ret)
		ty.Params = params
		return ty
	}

	tests := []struct {
		name   string
		t1, t2 *ast.Type
		want   bool
	}{
		{"same", ast.TypeInt, ast.TypeInt, true},
		{"signedness", ast.TypeInt, ast.TypeUInt, false},
		{"copy", ast.CopyType(ast.TypeLong), ast.TypeLong, true},
		{"float kinds", ast.TypeFloat, ast.TypeDouble, false},
		{"pointers", ast.PointerTo(ast.TypeChar), ast.PointerTo(ast.TypeChar), true},
		{"pointer bases", ast.PointerTo(ast.TypeChar), ast.PointerTo(ast.TypeInt), false},
		{"functions", fn(ast.TypeInt, ast.TypeInt), fn(ast.TypeInt, ast.TypeInt), true},
		{"function params", fn(ast.TypeInt, ast.TypeInt), fn(ast.TypeInt, ast.TypeLong), false},
		{"distinct structs", ast.StructType(), ast.StructType(), false},
		{"int and enum", ast.TypeInt, ast.EnumType(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCompatible(tt.t1, tt.t2); got != tt.want {
				t.Errorf("IsCompatible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddTypeInsertsConversions(t *testing.T) {
	tc := NewTypeChecker(nil)

	add := ast.NewBinary(ast.Add, num(ast.TypeChar), num(ast.TypeLong), tok)
	tc.AddType(add)
	if add.Ty.Kind != ast.TyLong || add.Ty.Unsigned {
		t.Errorf("char + long has type %s, want long", add.Ty)
	}
	for _, side := range []*ast.Node{add.Lhs, add.Rhs} {
		if side.Type != ast.TypeCast || side.Ty.Kind != ast.TyLong {
			t.Errorf("operand should be cast to long, got %v of %s", side.Type, side.Ty)
		}
	}

	cmp := ast.NewBinary(ast.Lt, num(ast.TypeInt), num(ast.TypeDouble), tok)
	tc.AddType(cmp)
	if cmp.Ty != ast.TypeInt || cmp.Lhs.Ty.Kind != ast.TyDouble {
		t.Errorf("comparison should be int over double operands, got %s over %s", cmp.Ty, cmp.Lhs.Ty)
	}

	v := &ast.Obj{Name: "x", Ty: ast.TypeShort}
	assign := ast.NewBinary(ast.Assign, ast.NewVar(v, tok), num(ast.TypeDouble), tok)
	tc.AddType(assign)
	if assign.Rhs.Type != ast.TypeCast || assign.Rhs.Ty.Kind != ast.TyShort {
		t.Errorf("assigned value should be cast to short")
	}

	neg := ast.NewUnary(ast.Neg, num(ast.TypeUChar), tok)
	tc.AddType(neg)
	if neg.Ty.Kind != ast.TyInt {
		t.Errorf("-uchar has type %s, want int", neg.Ty)
	}

	arr := &ast.Obj{Name: "a", Ty: ast.ArrayOf(ast.TypeInt, 4)}
	addr := ast.NewUnary(ast.AddressOf, ast.NewVar(arr, tok), tok)
	tc.AddType(addr)
	if got := addr.Ty.String(); got != "*int" {
		t.Errorf("&array has type %s, want *int", got)
	}
}

func TestAddTypeErrors(t *testing.T) {
	s := ast.StructType()
	sv := &ast.Obj{Name: "s", Ty: s}
	iv := &ast.Obj{Name: "i", Ty: ast.TypeInt}
	av := &ast.Obj{Name: "a", Ty: ast.ArrayOf(ast.TypeInt, 2)}
	pv := &ast.Obj{Name: "p", Ty: ast.PointerTo(ast.TypeVoid)}

	tests := []struct {
		name string
		node *ast.Node
		want string
	}{
		{"struct operand", ast.NewBinary(ast.Mul, ast.NewVar(sv, tok), num(ast.TypeInt), tok), "invalid operands"},
		{"array assignment", ast.NewBinary(ast.Assign, ast.NewVar(av, tok), num(ast.TypeInt), tok), "not an lvalue"},
		{"dereference int", ast.NewUnary(ast.Indirection, ast.NewVar(iv, tok), tok), "invalid pointer dereference"},
		{"dereference void pointer", ast.NewUnary(ast.Indirection, ast.NewVar(pv, tok), tok), "dereferencing a void pointer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := func() (err error) {
				defer util.Recover(&err)
				NewTypeChecker(nil).AddType(tt.node)
				return nil
			}()
			if err == nil || err.Error() != tt.want {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}
