// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
// of a C translation unit: typed expression and statement nodes, and the
// global objects (variables and functions) they belong to.
package ast

import (
	"github.com/xplshn/chibicc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	NullExpr NodeType = iota // does nothing

	// Expressions
	Add
	Sub
	Mul
	Div
	Neg
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	Eq
	Ne
	Lt
	Le
	Assign
	Ternary
	Comma
	MemberAccess
	AddressOf
	Indirection
	Not
	BitNot
	LogAnd
	LogOr
	FuncCall
	StmtExpr
	Var
	VLAPtr
	Number
	TypeCast
	MemZero
	LabelVal // [GNU] &&label
	CAS      // atomic compare-and-swap
	Exch     // atomic exchange

	// Statements
	Return
	If
	For // also "while"
	Do
	Switch
	Case
	Block
	Goto
	GotoExpr // [GNU] goto *ptr
	Label
	ExprStmt
	AsmStmt
)

var nodeNames = [...]string{
	NullExpr: "NullExpr", Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div",
	Neg: "Neg", Mod: "Mod", BitAnd: "BitAnd", BitOr: "BitOr", BitXor: "BitXor",
	Shl: "Shl", Shr: "Shr", Eq: "Eq", Ne: "Ne", Lt: "Lt", Le: "Le",
	Assign: "Assign", Ternary: "Ternary", Comma: "Comma",
	MemberAccess: "MemberAccess", AddressOf: "AddressOf", Indirection: "Indirection",
	Not: "Not", BitNot: "BitNot", LogAnd: "LogAnd", LogOr: "LogOr",
	FuncCall: "FuncCall", StmtExpr: "StmtExpr", Var: "Var", VLAPtr: "VLAPtr",
	Number: "Number", TypeCast: "TypeCast", MemZero: "MemZero", LabelVal: "LabelVal",
	CAS: "CAS", Exch: "Exch", Return: "Return", If: "If", For: "For", Do: "Do",
	Switch: "Switch", Case: "Case", Block: "Block", Goto: "Goto", GotoExpr: "GotoExpr",
	Label: "Label", ExprStmt: "ExprStmt", AsmStmt: "AsmStmt",
}

func (t NodeType) String() string {
	if int(t) < len(nodeNames) && nodeNames[t] != "" {
		return nodeNames[t]
	}
	return "NodeType(?)"
}

// Node represents a node in the Abstract Syntax Tree. Which fields are set
// depends on Type.
type Node struct {
	Type NodeType
	Ty   *Type // set by the type checker
	Tok  *token.Token

	Lhs *Node
	Rhs *Node

	// "if", "for" and the ?: operator
	Cond *Node
	Then *Node
	Els  *Node
	Init *Node
	Inc  *Node

	BrkLabel  string
	ContLabel string

	// Block or statement expression
	Body []*Node

	Member *Member

	// Function call
	FuncTy      *Type
	Args        []*Node
	PassByStack bool
	RetBuffer   *Obj

	// Goto, labeled statement or label address
	Label       string
	UniqueLabel string

	// Switch
	Cases       []*Node
	DefaultCase *Node

	// Case range
	Begin int64
	End   int64

	AsmStr string

	// Compare-and-swap
	CasAddr *Node
	CasOld  *Node
	CasNew  *Node

	Var *Obj

	Val  int64
	FVal float64
}

// Relocation marks a pointer inside an initializer: the bytes at Offset
// hold the address of Target or of Label, plus Addend.
type Relocation struct {
	Offset int64
	Target *Obj
	Label  *Node // [GNU] &&label
	Addend int64
}

// Symbol is the assembler symbol the relocation points at.
func (r *Relocation) Symbol() string {
	if r.Target != nil {
		return r.Target.Label()
	}
	return r.Label.UniqueLabel
}

// Obj is a variable or a function.
type Obj struct {
	Name    string
	AsmName string // overrides Name in the output, from asm("label")
	Ty      *Type
	Tok     *token.Token
	IsLocal bool
	Align   int64

	// Local variable
	Offset int64

	// Global variable or function
	IsFunction   bool
	IsDefinition bool
	IsStatic     bool

	// Global variable
	IsTentative bool
	IsTLS       bool
	InitData    []byte
	Rel         []Relocation

	// Function
	IsInline     bool
	Params       []*Obj
	Body         *Node
	Locals       []*Obj
	VaArea       *Obj
	AllocaBottom *Obj
	StackSize    int64

	// Static inline functions are emitted only when reachable from a root.
	IsLive bool
	IsRoot bool
	Refs   []string

	// Top-level asm statement
	Asm *Node
}

// Label returns the symbol the object is emitted under.
func (o *Obj) Label() string {
	if o.AsmName != "" {
		return o.AsmName
	}
	return o.Name
}

// Program is a parsed translation unit in declaration order. Files lists
// the source files read, for line information in the output.
type Program struct {
	Globals []*Obj
	Files   []*token.File
}

// --- Node Constructors ---

func NewNode(typ NodeType, tok *token.Token) *Node {
	return &Node{Type: typ, Tok: tok}
}

func NewBinary(typ NodeType, lhs, rhs *Node, tok *token.Token) *Node {
	return &Node{Type: typ, Tok: tok, Lhs: lhs, Rhs: rhs}
}

func NewUnary(typ NodeType, expr *Node, tok *token.Token) *Node {
	return &Node{Type: typ, Tok: tok, Lhs: expr}
}

func NewNumber(val int64, tok *token.Token) *Node {
	return &Node{Type: Number, Tok: tok, Val: val}
}

func NewLong(val int64, tok *token.Token) *Node {
	return &Node{Type: Number, Tok: tok, Val: val, Ty: TypeLong}
}

func NewULong(val int64, tok *token.Token) *Node {
	return &Node{Type: Number, Tok: tok, Val: val, Ty: TypeULong}
}

func NewVar(v *Obj, tok *token.Token) *Node {
	return &Node{Type: Var, Tok: tok, Var: v}
}

func NewVLAPtr(v *Obj, tok *token.Token) *Node {
	return &Node{Type: VLAPtr, Tok: tok, Var: v}
}
