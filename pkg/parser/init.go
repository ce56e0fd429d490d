package parser

import (
	"encoding/binary"
	"math"

	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
	"modernc.org/mathutil"
)

// initializer is the tree of values an initializer list assigns to an
// object. children mirror the array elements or struct members of ty; a
// leaf holds an expression or nothing, which means zero.
type initializer struct {
	ty  *ast.Type
	tok *token.Token

	// An array of unknown length, completed by the initializer itself.
	isFlexible bool

	expr     *ast.Node
	children []*initializer

	// The union member being initialized; nil means the first one.
	mem *ast.Member
}

func newInitializer(ty *ast.Type, isFlexible bool) *initializer {
	init := &initializer{ty: ty}

	switch ty.Kind {
	case ast.TyArray:
		if isFlexible && ty.ArrayLen < 0 {
			init.isFlexible = true
			return init
		}
		init.children = make([]*initializer, ty.ArrayLen)
		for i := range init.children {
			init.children[i] = newInitializer(ty.Base, false)
		}
	case ast.TyStruct, ast.TyUnion:
		init.children = make([]*initializer, len(ty.Members))
		for i, mem := range ty.Members {
			if isFlexible && ty.Flexible && i == len(ty.Members)-1 {
				init.children[i] = &initializer{ty: mem.Ty, isFlexible: true}
				continue
			}
			init.children[i] = newInitializer(mem.Ty, false)
		}
	}
	return init
}

// skipExcessElement discards an initializer that has no object to go to.
func (p *Parser) skipExcessElement() {
	if p.match("{") {
		p.skipExcessElement()
		p.expect("}")
		return
	}
	p.assign()
}

// string-initializer = string-literal
func (p *Parser) stringInitializer(init *initializer) {
	tok := p.tok
	sty := strType(tok)
	if init.isFlexible {
		*init = *newInitializer(ast.ArrayOf(init.ty.Base, sty.ArrayLen), false)
	}

	n := min(init.ty.ArrayLen, sty.ArrayLen)
	esz := int(sty.Base.Size)
	for i := 0; i < int(n); i++ {
		b := tok.Str[i*esz:]
		var v int64
		switch esz {
		case 1:
			v = int64(int8(b[0]))
		case 2:
			v = int64(binary.LittleEndian.Uint16(b))
		case 4:
			v = int64(binary.LittleEndian.Uint32(b))
		default:
			util.Unreachable()
		}
		init.children[i].expr = ast.NewNumber(v, tok)
	}
	p.advance()
}

// array-designator = "[" const-expr ("..." const-expr)? "]"
func (p *Parser) arrayDesignator(ty *ast.Type) (begin, end int64) {
	p.expect("[")
	begin = p.constExpr()
	if begin < 0 || begin >= ty.ArrayLen {
		util.Error(p.tok, "array designator index exceeds array bounds")
	}

	end = begin
	if p.match("...") {
		end = p.constExpr()
		if end >= ty.ArrayLen {
			util.Error(p.tok, "array designator index exceeds array bounds")
		}
		if end < begin {
			util.Error(p.tok, "array designator range [%d, %d] is empty", begin, end)
		}
	}
	p.expect("]")
	return begin, end
}

// struct-designator = "." ident
//
// A name found inside an anonymous member yields that member, and the
// cursor is left on the "." so the designator applies again one level down.
func (p *Parser) structDesignator(ty *ast.Type) *ast.Member {
	start := p.tok
	p.expect(".")
	if p.tok.Kind != token.Ident {
		util.Error(p.tok, "expected a field designator")
	}

	for _, mem := range ty.Members {
		if mem.Name == nil {
			if mem.Ty.IsAggregate() && getStructMember(mem.Ty, p.tok) != nil {
				p.tok = start
				return mem
			}
			continue
		}
		if mem.Name.Text == p.tok.Text {
			p.advance()
			return mem
		}
	}
	util.Error(p.tok, "struct has no such member")
	return nil
}

// designation = ("[" const-expr "]" | "." ident)* "="? initializer
func (p *Parser) designation(init *initializer) {
	if p.check("[") {
		if init.ty.Kind != ast.TyArray {
			util.Error(p.tok, "array index in non-array initializer")
		}
		begin, end := p.arrayDesignator(init.ty)

		// A range designator applies the same initializer to each element.
		start := p.tok
		for i := begin; i <= end; i++ {
			p.tok = start
			p.designation(init.children[i])
		}
		p.arrayInitializer2(init, end+1)
		return
	}

	if p.check(".") && init.ty.Kind == ast.TyStruct {
		mem := p.structDesignator(init.ty)
		p.designation(init.children[mem.Idx])
		init.expr = nil
		p.structInitializer2(init, mem.Idx+1, true)
		return
	}

	if p.check(".") && init.ty.Kind == ast.TyUnion {
		mem := p.structDesignator(init.ty)
		init.mem = mem
		p.designation(init.children[mem.Idx])
		return
	}

	if p.check(".") {
		util.Error(p.tok, "field name not in struct or union initializer")
	}

	p.match("=")
	p.initializer2(init)
}

// countArrayInitElements counts the elements of a brace list without
// consuming it, for arrays whose length is given by their initializer.
func (p *Parser) countArrayInitElements(ty *ast.Type) int64 {
	start := p.tok
	defer func() { p.tok = start }()

	dummy := newInitializer(ty.Base, true)
	var i, max int64
	for first := true; !p.consumeEnd(); first = false {
		if !first {
			p.expect(",")
		}

		if p.match("[") {
			i = p.constExpr()
			if p.match("...") {
				i = p.constExpr()
			}
			p.expect("]")
			p.designation(dummy)
		} else {
			p.initializer2(dummy)
		}
		i++
		max = mathutil.MaxInt64(max, i)
	}
	return max
}

// array-initializer1 = "{" initializer ("," initializer)* ","? "}"
func (p *Parser) arrayInitializer1(init *initializer) {
	p.expect("{")

	if init.isFlexible {
		n := p.countArrayInitElements(init.ty)
		*init = *newInitializer(ast.ArrayOf(init.ty.Base, n), false)
	}

	for i, first := int64(0), true; !p.consumeEnd(); i, first = i+1, false {
		if !first {
			p.expect(",")
		}

		if p.check("[") {
			begin, end := p.arrayDesignator(init.ty)
			start := p.tok
			for j := begin; j <= end; j++ {
				p.tok = start
				p.designation(init.children[j])
			}
			i = end
			continue
		}

		if i < init.ty.ArrayLen {
			p.initializer2(init.children[i])
		} else {
			p.skipExcessElement()
		}
	}
}

// array-initializer2 = initializer ("," initializer)*
func (p *Parser) arrayInitializer2(init *initializer, i int64) {
	if init.isFlexible {
		n := p.countArrayInitElements(init.ty)
		*init = *newInitializer(ast.ArrayOf(init.ty.Base, n), false)
	}

	for ; i < init.ty.ArrayLen && !p.isEnd(); i++ {
		start := p.tok
		if i > 0 {
			p.expect(",")
		}
		if p.check("[") || p.check(".") {
			p.tok = start
			return
		}
		p.initializer2(init.children[i])
	}
}

// nextMember returns the index of the first member at or after idx that
// takes an initializer. Unnamed bit-fields are only padding.
func nextMember(ty *ast.Type, idx int) int {
	for idx < len(ty.Members) {
		mem := ty.Members[idx]
		if !(mem.IsBitfield && mem.Name == nil) {
			break
		}
		idx++
	}
	return idx
}

// struct-initializer1 = "{" initializer ("," initializer)* ","? "}"
func (p *Parser) structInitializer1(init *initializer) {
	p.expect("{")

	idx := nextMember(init.ty, 0)
	for first := true; !p.consumeEnd(); first = false {
		if !first {
			p.expect(",")
		}

		if p.check(".") {
			mem := p.structDesignator(init.ty)
			p.designation(init.children[mem.Idx])
			idx = nextMember(init.ty, mem.Idx+1)
			continue
		}

		if idx < len(init.ty.Members) {
			p.initializer2(init.children[idx])
			idx = nextMember(init.ty, idx+1)
		} else {
			p.skipExcessElement()
		}
	}
}

// struct-initializer2 = initializer ("," initializer)*
//
// needComma is set when an element has already been read, as after a
// designation.
func (p *Parser) structInitializer2(init *initializer, idx int, needComma bool) {
	for idx = nextMember(init.ty, idx); idx < len(init.ty.Members) && !p.isEnd(); idx = nextMember(init.ty, idx+1) {
		start := p.tok
		if needComma {
			p.expect(",")
		}
		needComma = true

		if p.check("[") || p.check(".") {
			p.tok = start
			return
		}
		p.initializer2(init.children[idx])
	}
}

// Unlike a struct, a union takes one initializer, which goes to its first
// member unless a designator names another.
func (p *Parser) unionInitializer(init *initializer) {
	if len(init.ty.Members) == 0 {
		util.Error(p.tok, "initializer for an empty union")
	}

	if p.check("{") && p.peekIs(".") {
		p.advance()
		mem := p.structDesignator(init.ty)
		init.mem = mem
		p.designation(init.children[mem.Idx])
		p.match(",")
		p.expect("}")
		return
	}

	init.mem = init.ty.Members[0]

	if p.match("{") {
		p.initializer2(init.children[0])
		p.match(",")
		p.expect("}")
		return
	}
	p.initializer2(init.children[0])
}

// initializer = string-initializer | array-initializer
//
//	| struct-initializer | union-initializer
//	| assign
func (p *Parser) initializer2(init *initializer) {
	init.tok = p.tok

	if init.ty.Kind == ast.TyArray && p.tok.Kind == token.Str {
		p.stringInitializer(init)
		return
	}

	switch init.ty.Kind {
	case ast.TyArray:
		if p.check("{") {
			p.arrayInitializer1(init)
		} else {
			p.arrayInitializer2(init, 0)
		}
		return

	case ast.TyStruct:
		if p.check("{") {
			p.structInitializer1(init)
			return
		}

		// A struct can be initialized with another struct of the same type.
		start := p.tok
		expr := p.assign()
		p.tc.AddType(expr)
		if expr.Ty.Kind == ast.TyStruct {
			init.expr = expr
			return
		}
		p.tok = start
		p.structInitializer2(init, 0, false)
		return

	case ast.TyUnion:
		p.unionInitializer(init)
		return
	}

	// A scalar initializer may be wrapped in braces, as in int x = {3};
	if p.match("{") {
		p.initializer2(init)
		p.match(",")
		p.expect("}")
		return
	}

	init.expr = p.assign()
}

// initializer reads the initializer for an object of type ty and returns
// it together with the object's completed type. Arrays of unknown length
// and flexible array members get their size from the initializer.
func (p *Parser) initializer(ty *ast.Type) (*initializer, *ast.Type) {
	init := newInitializer(ty, true)
	p.initializer2(init)

	if ty.IsAggregate() && ty.Flexible {
		ty = copyStructType(ty)
		last := ty.Members[len(ty.Members)-1]
		last.Ty = init.children[last.Idx].ty
		ty.Size += last.Ty.Size
		return init, ty
	}
	return init, init.ty
}

func copyStructType(ty *ast.Type) *ast.Type {
	ty = ast.CopyType(ty)
	members := make([]*ast.Member, len(ty.Members))
	for i, mem := range ty.Members {
		m := *mem
		members[i] = &m
	}
	ty.Members = members
	return ty
}

// initDesg is the path from a variable to one of its elements or members.
type initDesg struct {
	next   *initDesg
	idx    int64
	member *ast.Member
	v      *ast.Obj
}

func (p *Parser) initDesgExpr(desg *initDesg, tok *token.Token) *ast.Node {
	if desg.v != nil {
		return ast.NewVar(desg.v, tok)
	}

	if desg.member != nil {
		node := ast.NewUnary(ast.MemberAccess, p.initDesgExpr(desg.next, tok), tok)
		node.Member = desg.member
		return node
	}

	lhs := p.initDesgExpr(desg.next, tok)
	rhs := ast.NewNumber(desg.idx, tok)
	return ast.NewUnary(ast.Indirection, p.newAdd(lhs, rhs, tok), tok)
}

func (p *Parser) createLVarInit(init *initializer, ty *ast.Type, desg *initDesg, tok *token.Token) *ast.Node {
	if ty.Kind == ast.TyArray {
		node := ast.NewNode(ast.NullExpr, tok)
		for i := int64(0); i < ty.ArrayLen; i++ {
			desg2 := &initDesg{next: desg, idx: i}
			rhs := p.createLVarInit(init.children[i], ty.Base, desg2, tok)
			node = ast.NewBinary(ast.Comma, node, rhs, tok)
		}
		return node
	}

	if ty.Kind == ast.TyStruct && init.expr == nil {
		node := ast.NewNode(ast.NullExpr, tok)
		for _, mem := range ty.Members {
			if mem.IsBitfield && mem.Name == nil {
				continue
			}
			desg2 := &initDesg{next: desg, member: mem}
			rhs := p.createLVarInit(init.children[mem.Idx], mem.Ty, desg2, tok)
			node = ast.NewBinary(ast.Comma, node, rhs, tok)
		}
		return node
	}

	if ty.Kind == ast.TyUnion {
		if len(ty.Members) == 0 {
			return ast.NewNode(ast.NullExpr, tok)
		}
		mem := init.mem
		if mem == nil {
			mem = ty.Members[0]
		}
		desg2 := &initDesg{next: desg, member: mem}
		return p.createLVarInit(init.children[mem.Idx], mem.Ty, desg2, tok)
	}

	if init.expr == nil {
		return ast.NewNode(ast.NullExpr, tok)
	}

	lhs := p.initDesgExpr(desg, tok)
	return ast.NewBinary(ast.Assign, lhs, init.expr, tok)
}

// lvarInitializer turns an initializer into assignments. The whole object
// is zeroed first, so that elements the initializer leaves out are zero:
//
//	int x[2][2] = {{6, 7}, {8, 9}}
//
// becomes memzero(x), x[0][0] = 6, x[0][1] = 7, x[1][0] = 8, x[1][1] = 9.
func (p *Parser) lvarInitializer(v *ast.Obj) *ast.Node {
	tok := p.tok
	init, ty := p.initializer(v.Ty)
	v.Ty = ty

	lhs := ast.NewNode(ast.MemZero, tok)
	lhs.Var = v

	rhs := p.createLVarInit(init, v.Ty, &initDesg{v: v}, tok)
	return ast.NewBinary(ast.Comma, lhs, rhs, tok)
}

func readBuf(buf []byte, sz int64) uint64 {
	switch sz {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	util.Unreachable()
	return 0
}

func writeBuf(buf []byte, val uint64, sz int64) {
	switch sz {
	case 1:
		buf[0] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(buf, val)
	default:
		util.Unreachable()
	}
}

// writeGVarData serializes init into buf, collecting a relocation for
// every value that is the address of another symbol.
func (p *Parser) writeGVarData(rels []ast.Relocation, init *initializer, ty *ast.Type, buf []byte, offset int64) []ast.Relocation {
	switch ty.Kind {
	case ast.TyArray:
		sz := ty.Base.Size
		for i := int64(0); i < ty.ArrayLen; i++ {
			rels = p.writeGVarData(rels, init.children[i], ty.Base, buf, offset+sz*i)
		}
		return rels

	case ast.TyStruct:
		if init.expr != nil {
			util.Error(init.expr.Tok, "initializer element is not a compile-time constant")
		}
		for _, mem := range ty.Members {
			if !mem.IsBitfield {
				rels = p.writeGVarData(rels, init.children[mem.Idx], mem.Ty, buf, offset+mem.Offset)
				continue
			}
			expr := init.children[mem.Idx].expr
			if expr == nil {
				continue
			}
			loc := buf[offset+mem.Offset:]
			oldval := readBuf(loc, mem.Ty.Size)
			newval := uint64(p.eval(expr))
			mask := uint64(1)<<mem.BitWidth - 1
			writeBuf(loc, oldval|(newval&mask)<<mem.BitOffset, mem.Ty.Size)
		}
		return rels

	case ast.TyUnion:
		if init.mem == nil {
			return rels
		}
		return p.writeGVarData(rels, init.children[init.mem.Idx], init.mem.Ty, buf, offset)
	}

	if init.expr == nil {
		return rels
	}

	switch ty.Kind {
	case ast.TyFloat:
		binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(float32(p.evalDouble(init.expr))))
		return rels
	case ast.TyDouble:
		binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(p.evalDouble(init.expr)))
		return rels
	case ast.TyLDouble:
		util.PutFloat80(buf[offset:], p.evalDouble(init.expr))
		return rels
	}

	var ref symRef
	val := p.eval2(init.expr, &ref)
	if ref.obj == nil && ref.label == nil {
		writeBuf(buf[offset:], uint64(val), ty.Size)
		return rels
	}
	return append(rels, ast.Relocation{Offset: offset, Target: ref.obj, Label: ref.label, Addend: val})
}

// gvarInitializer evaluates the initializer of a global variable at
// compile time into its data image. Non-constant elements are errors.
func (p *Parser) gvarInitializer(v *ast.Obj) {
	init, ty := p.initializer(v.Ty)
	v.Ty = ty
	if ty.Size < 0 {
		util.Error(p.tok, "variable has incomplete type")
	}

	buf := make([]byte, ty.Size)
	v.Rel = p.writeGVarData(nil, init, ty, buf, 0)
	v.InitData = buf
}
