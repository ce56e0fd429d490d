package ast

import (
	"fmt"
	"strings"

	"github.com/xplshn/chibicc/pkg/token"
)

// TypeKind defines the kind of a Type
type TypeKind int

const (
	TyVoid TypeKind = iota
	TyBool
	TyChar
	TyShort
	TyInt
	TyLong
	TyFloat
	TyDouble
	TyLDouble
	TyEnum
	TyPtr
	TyFunc
	TyArray
	TyVLA
	TyStruct
	TyUnion
)

// Type is a C type. Pointers and arrays share Base so that an array can
// be treated as a pointer to its first element wherever C allows it.
type Type struct {
	Kind     TypeKind
	Size     int64
	Align    int64
	Unsigned bool
	Atomic   bool

	// Origin is the type this one was copied from, for compatibility checks.
	Origin *Type

	Base *Type

	// Declaration
	Name    *token.Token
	NamePos *token.Token

	ArrayLen int64

	// Variable-length array
	VLALen  *Node // number of elements
	VLASize *Obj  // cached sizeof() value

	// Struct or union
	Members  []*Member
	Flexible bool
	Packed   bool

	// Function
	ReturnTy *Type
	Params   []*Type
	Variadic bool
}

// Member is a struct or union field.
type Member struct {
	Ty     *Type
	Tok    *token.Token // for diagnostics
	Name   *token.Token
	Idx    int
	Align  int64
	Offset int64

	IsBitfield bool
	BitOffset  int64
	BitWidth   int64
}

// Pre-defined types
var (
	TypeVoid = &Type{Kind: TyVoid, Size: 1, Align: 1}
	TypeBool = &Type{Kind: TyBool, Size: 1, Align: 1}

	TypeChar  = &Type{Kind: TyChar, Size: 1, Align: 1}
	TypeShort = &Type{Kind: TyShort, Size: 2, Align: 2}
	TypeInt   = &Type{Kind: TyInt, Size: 4, Align: 4}
	TypeLong  = &Type{Kind: TyLong, Size: 8, Align: 8}

	TypeUChar  = &Type{Kind: TyChar, Size: 1, Align: 1, Unsigned: true}
	TypeUShort = &Type{Kind: TyShort, Size: 2, Align: 2, Unsigned: true}
	TypeUInt   = &Type{Kind: TyInt, Size: 4, Align: 4, Unsigned: true}
	TypeULong  = &Type{Kind: TyLong, Size: 8, Align: 8, Unsigned: true}

	TypeFloat   = &Type{Kind: TyFloat, Size: 4, Align: 4}
	TypeDouble  = &Type{Kind: TyDouble, Size: 8, Align: 8}
	TypeLDouble = &Type{Kind: TyLDouble, Size: 16, Align: 16}
)

func newType(kind TypeKind, size, align int64) *Type {
	return &Type{Kind: kind, Size: size, Align: align}
}

func (ty *Type) IsInteger() bool {
	switch ty.Kind {
	case TyBool, TyChar, TyShort, TyInt, TyLong, TyEnum:
		return true
	}
	return false
}

func (ty *Type) IsFlonum() bool {
	return ty.Kind == TyFloat || ty.Kind == TyDouble || ty.Kind == TyLDouble
}

func (ty *Type) IsNumeric() bool { return ty.IsInteger() || ty.IsFlonum() }

func (ty *Type) IsAggregate() bool { return ty.Kind == TyStruct || ty.Kind == TyUnion }

// CopyType returns a distinct copy of ty that remembers ty as its origin.
func CopyType(ty *Type) *Type {
	c := *ty
	c.Origin = ty
	return &c
}

func PointerTo(base *Type) *Type {
	ty := newType(TyPtr, 8, 8)
	ty.Base = base
	ty.Unsigned = true
	return ty
}

// FuncType makes a function type. GCC gives sizeof a function type the
// value 1, and so do we.
func FuncType(returnTy *Type) *Type {
	ty := newType(TyFunc, 1, 1)
	ty.ReturnTy = returnTy
	return ty
}

func ArrayOf(base *Type, n int64) *Type {
	ty := newType(TyArray, base.Size*n, base.Align)
	ty.Base = base
	ty.ArrayLen = n
	return ty
}

func VLAOf(base *Type, n *Node) *Type {
	ty := newType(TyVLA, 8, 8)
	ty.Base = base
	ty.VLALen = n
	return ty
}

func EnumType() *Type { return newType(TyEnum, 4, 4) }

func StructType() *Type { return newType(TyStruct, 0, 1) }

// FindMember looks up a member by name, not descending into anonymous members.
func (ty *Type) FindMember(name string) *Member {
	for _, m := range ty.Members {
		if m.Name != nil && m.Name.Text == name {
			return m
		}
	}
	return nil
}

func (ty *Type) String() string {
	var sb strings.Builder
	ty.format(&sb, 0)
	return sb.String()
}

// Nested structs print as a bare keyword so that self-referential types terminate.
func (ty *Type) format(sb *strings.Builder, depth int) {
	if ty.Unsigned && ty.Kind != TyPtr {
		sb.WriteString("unsigned ")
	}
	switch ty.Kind {
	case TyVoid:
		sb.WriteString("void")
	case TyBool:
		sb.WriteString("_Bool")
	case TyChar:
		sb.WriteString("char")
	case TyShort:
		sb.WriteString("short")
	case TyInt:
		sb.WriteString("int")
	case TyLong:
		sb.WriteString("long")
	case TyFloat:
		sb.WriteString("float")
	case TyDouble:
		sb.WriteString("double")
	case TyLDouble:
		sb.WriteString("long double")
	case TyEnum:
		sb.WriteString("enum")
	case TyPtr:
		sb.WriteString("*")
		ty.Base.format(sb, depth+1)
	case TyArray:
		fmt.Fprintf(sb, "[%d]", ty.ArrayLen)
		ty.Base.format(sb, depth+1)
	case TyVLA:
		sb.WriteString("[*]")
		ty.Base.format(sb, depth+1)
	case TyFunc:
		sb.WriteString("func(")
		for i, p := range ty.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			p.format(sb, depth+1)
		}
		if ty.Variadic {
			if len(ty.Params) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("...")
		}
		sb.WriteString(") ")
		ty.ReturnTy.format(sb, depth+1)
	case TyStruct, TyUnion:
		if ty.Kind == TyStruct {
			sb.WriteString("struct")
		} else {
			sb.WriteString("union")
		}
		if depth > 0 {
			return
		}
		sb.WriteString("{")
		for i, m := range ty.Members {
			if i > 0 {
				sb.WriteString("; ")
			}
			if m.Name != nil {
				sb.WriteString(m.Name.Text)
				sb.WriteByte(' ')
			}
			m.Ty.format(sb, depth+1)
		}
		sb.WriteString("}")
	}
}
