package parser

import (
	"strings"

	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/hashmap"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
	"modernc.org/mathutil"
)

// typeSpec counts the builtin type keywords seen in one declaration
// specifier. The order of the keywords does not matter, so `long unsigned
// int` and `unsigned long` end up with the same counts.
type typeSpec struct {
	Void, Bool, Char, Short, Int, Long, Float, Double int
	Other                                             int // struct, union, enum, typeof or typedef name
	Signed, Unsigned                                  bool
}

// builtinTypes lists every valid combination of builtin type keywords.
var builtinTypes = map[typeSpec]*ast.Type{
	{Void: 1}: ast.TypeVoid,
	{Bool: 1}: ast.TypeBool,

	{Char: 1}:                 ast.TypeChar,
	{Char: 1, Signed: true}:   ast.TypeChar,
	{Char: 1, Unsigned: true}: ast.TypeUChar,

	{Short: 1}:                         ast.TypeShort,
	{Short: 1, Int: 1}:                 ast.TypeShort,
	{Short: 1, Signed: true}:           ast.TypeShort,
	{Short: 1, Int: 1, Signed: true}:   ast.TypeShort,
	{Short: 1, Unsigned: true}:         ast.TypeUShort,
	{Short: 1, Int: 1, Unsigned: true}: ast.TypeUShort,

	{Int: 1}:                 ast.TypeInt,
	{Signed: true}:           ast.TypeInt,
	{Int: 1, Signed: true}:   ast.TypeInt,
	{Unsigned: true}:         ast.TypeUInt,
	{Int: 1, Unsigned: true}: ast.TypeUInt,

	{Long: 1}:                         ast.TypeLong,
	{Long: 1, Int: 1}:                 ast.TypeLong,
	{Long: 2}:                         ast.TypeLong,
	{Long: 2, Int: 1}:                 ast.TypeLong,
	{Long: 1, Signed: true}:           ast.TypeLong,
	{Long: 1, Int: 1, Signed: true}:   ast.TypeLong,
	{Long: 2, Signed: true}:           ast.TypeLong,
	{Long: 2, Int: 1, Signed: true}:   ast.TypeLong,
	{Long: 1, Unsigned: true}:         ast.TypeULong,
	{Long: 1, Int: 1, Unsigned: true}: ast.TypeULong,
	{Long: 2, Unsigned: true}:         ast.TypeULong,
	{Long: 2, Int: 1, Unsigned: true}: ast.TypeULong,

	{Float: 1}:           ast.TypeFloat,
	{Double: 1}:          ast.TypeDouble,
	{Long: 1, Double: 1}: ast.TypeLDouble,
}

var typenameKeywords = func() *hashmap.Map[bool] {
	m := hashmap.New[bool]()
	for _, kw := range []string{
		"void", "_Bool", "char", "short", "int", "long", "struct", "union",
		"typedef", "enum", "static", "extern", "_Alignas", "signed", "unsigned",
		"const", "volatile", "auto", "register", "restrict", "__restrict",
		"__restrict__", "_Noreturn", "float", "double", "typeof", "__typeof__",
		"inline", "_Thread_local", "__thread", "_Atomic",
	} {
		m.Put(kw, true)
	}
	return m
}()

// isTypename reports whether tok starts a type.
func (p *Parser) isTypename(tok *token.Token) bool {
	if tok.Kind == token.Str {
		return false
	}
	return typenameKeywords.Has(tok.Text) || p.findTypedef(tok) != nil
}

func isQualifier(tok *token.Token) bool {
	switch tok.Text {
	case "const", "volatile", "auto", "register", "restrict", "__restrict", "__restrict__", "_Noreturn":
		return tok.Kind != token.Str
	}
	return false
}

// declspec = ("void" | "_Bool" | "char" | "short" | "int" | "long"
//
//	| "typedef" | "static" | "extern" | "inline"
//	| "_Thread_local" | "__thread"
//	| "signed" | "unsigned"
//	| struct-decl | union-decl | typedef-name
//	| enum-specifier | typeof-specifier
//	| "const" | "volatile" | "auto" | "register" | "restrict"
//	| "__restrict" | "__restrict__" | "_Noreturn")+
//
// attr is nil where storage classes are not allowed.
func (p *Parser) declspec(attr *varAttr) *ast.Type {
	ty := ast.TypeInt
	var spec typeSpec
	isAtomic := false

	p.attributeList(nil, attr)

	for p.isTypename(p.tok) {
		tok := p.tok

		switch tok.Text {
		case "typedef", "static", "extern", "inline", "_Thread_local", "__thread":
			if attr == nil {
				util.Error(tok, "storage class specifier is not allowed in this context")
			}
			switch tok.Text {
			case "typedef":
				attr.isTypedef = true
			case "static":
				attr.isStatic = true
			case "extern":
				attr.isExtern = true
			case "inline":
				attr.isInline = true
			default:
				attr.isTLS = true
			}
			if attr.isTypedef && (attr.isStatic || attr.isExtern || attr.isInline || attr.isTLS) {
				util.Error(tok, "typedef may not be used together with static, extern, inline, __thread or _Thread_local")
			}
			p.advance()
			p.attributeList(nil, attr)
			continue
		}

		if isQualifier(tok) {
			p.advance()
			continue
		}

		if tok.Is("_Atomic") {
			p.advance()
			if p.match("(") {
				ty = p.typename()
				p.expect(")")
				spec.Other++
			}
			isAtomic = true
			continue
		}

		if tok.Is("_Alignas") {
			if attr == nil {
				util.Error(tok, "_Alignas is not allowed in this context")
			}
			p.advance()
			p.expect("(")
			if p.isTypename(p.tok) {
				attr.align = p.typename().Align
			} else {
				attr.align = p.constExpr()
			}
			p.expect(")")
			continue
		}

		// User-defined types
		ty2 := p.findTypedef(tok)
		if tok.Is("struct") || tok.Is("union") || tok.Is("enum") || tok.Is("typeof") || tok.Is("__typeof__") || ty2 != nil {
			if spec != (typeSpec{}) {
				break
			}
			p.advance()
			switch tok.Text {
			case "struct":
				ty = p.structDecl()
			case "union":
				ty = p.unionDecl()
			case "enum":
				ty = p.enumSpecifier()
			case "typeof", "__typeof__":
				ty = p.typeofSpecifier()
			default:
				ty = ty2
			}
			spec.Other++
			continue
		}

		// Builtin types
		switch tok.Text {
		case "void":
			spec.Void++
		case "_Bool":
			spec.Bool++
		case "char":
			spec.Char++
		case "short":
			spec.Short++
		case "int":
			spec.Int++
		case "long":
			spec.Long++
		case "float":
			spec.Float++
		case "double":
			spec.Double++
		case "signed":
			spec.Signed = true
		case "unsigned":
			spec.Unsigned = true
		default:
			util.Unreachable()
		}

		t, ok := builtinTypes[spec]
		if !ok {
			util.Error(tok, "invalid type")
		}
		ty = t
		p.advance()
		p.attributeList(nil, attr)
	}

	p.attributeList(nil, attr)

	if isAtomic {
		ty = ast.CopyType(ty)
		ty.Atomic = true
	}
	return ty
}

// attribute = ("__attribute__" "(" "(" attr ("," attr)* ")" ")")*
//
// packed and aligned(N) apply to ty when it is a struct being declared;
// aligned(N) on a declaration sets attr.align. Other attributes are skipped.
func (p *Parser) attributeList(ty *ast.Type, attr *varAttr) {
	for p.check("__attribute__") || p.check("__attribute") {
		p.advance()
		p.expect("(")
		p.expect("(")

		for first := true; !p.match(")"); first = false {
			if !first {
				p.expect(",")
			}
			if p.check(")") {
				continue
			}

			name := p.tok
			p.advance()
			switch strings.Trim(name.Text, "_") {
			case "packed":
				if ty != nil {
					ty.Packed = true
				}
			case "aligned":
				align := int64(16)
				if p.match("(") {
					align = p.constExpr()
					p.expect(")")
				}
				if ty != nil {
					ty.Align = align
				} else if attr != nil {
					attr.align = align
				}
			default:
				if p.check("(") {
					p.skipParens()
				}
			}
		}
		p.expect(")")
	}
}

func (p *Parser) skipParens() {
	depth := 0
	for {
		if p.tok.Kind == token.EOF {
			util.Error(p.tok, "expected ')'")
		}
		if p.check("(") {
			depth++
		} else if p.check(")") {
			depth--
		}
		p.advance()
		if depth == 0 {
			return
		}
	}
}

// declared is the result of reading a declarator. A declarator names the
// object it declares without changing the (possibly shared) type it builds.
type declared struct {
	ty      *ast.Type
	name    *token.Token
	namePos *token.Token
}

// func-params = ("void" | param ("," param)* ("," "...")?)? ")"
// param       = declspec declarator
func (p *Parser) funcParams(ty *ast.Type) *ast.Type {
	if p.check("void") && p.peekIs(")") {
		p.advance()
		p.advance()
		return ast.FuncType(ty)
	}

	var params []*ast.Type
	variadic := false
	for !p.check(")") {
		if len(params) > 0 {
			p.expect(",")
		}
		if p.match("...") {
			variadic = true
			break
		}

		d := p.declarator(p.declspec(nil))

		// Arrays and functions decay to pointers in parameter position,
		// so *argv[] means **argv.
		var pty *ast.Type
		switch d.ty.Kind {
		case ast.TyArray:
			pty = ast.PointerTo(d.ty.Base)
		case ast.TyFunc:
			pty = ast.PointerTo(d.ty)
		default:
			pty = ast.CopyType(d.ty)
		}
		pty.Name, pty.NamePos = d.name, d.namePos
		params = append(params, pty)
	}
	p.expect(")")

	fn := ast.FuncType(ty)
	fn.Params = params
	// An empty list means the parameters are unspecified.
	fn.Variadic = variadic || len(params) == 0
	return fn
}

// array-dimensions = ("static" | "restrict")* const-expr? "]" type-suffix
func (p *Parser) arrayDimensions(ty *ast.Type) *ast.Type {
	for p.check("static") || p.check("restrict") || p.check("const") {
		p.advance()
	}

	if p.match("]") {
		ty = p.typeSuffix(ty)
		return ast.ArrayOf(ty, -1)
	}

	expr := p.conditional()
	p.expect("]")
	ty = p.typeSuffix(ty)

	if ty.Kind == ast.TyVLA || !p.isConstExpr(expr) {
		return ast.VLAOf(ty, expr)
	}
	return ast.ArrayOf(ty, p.eval(expr))
}

// type-suffix = "(" func-params
//
//	| "[" array-dimensions
//	| ε
func (p *Parser) typeSuffix(ty *ast.Type) *ast.Type {
	if p.match("(") {
		return p.funcParams(ty)
	}
	if p.match("[") {
		return p.arrayDimensions(ty)
	}
	return ty
}

// pointers = ("*" ("const" | "volatile" | "restrict")*)*
func (p *Parser) pointers(ty *ast.Type) *ast.Type {
	for p.match("*") {
		ty = ast.PointerTo(ty)
		for p.check("const") || p.check("volatile") || p.check("restrict") ||
			p.check("__restrict") || p.check("__restrict__") || p.check("_Atomic") {
			p.advance()
		}
		p.attributeList(nil, nil)
	}
	return ty
}

// declarator = pointers ("(" ident ")" | "(" declarator ")" | ident) type-suffix
func (p *Parser) declarator(ty *ast.Type) declared {
	p.attributeList(nil, nil)
	ty = p.pointers(ty)

	if p.check("(") {
		// The suffix after the parentheses binds tighter than what is
		// inside them: read past the nested declarator first, then read it
		// again with the completed type.
		start := p.tok
		p.advance()
		p.declarator(&ast.Type{})
		p.expect(")")
		ty = p.typeSuffix(ty)
		rest := p.tok

		p.tok = start.Next
		d := p.declarator(ty)
		p.tok = rest
		return d
	}

	d := declared{namePos: p.tok}
	if p.tok.Kind == token.Ident {
		d.name = p.tok
		p.advance()
	}
	d.ty = p.typeSuffix(ty)
	return d
}

// abstract-declarator = pointers ("(" abstract-declarator ")")? type-suffix
func (p *Parser) abstractDeclarator(ty *ast.Type) *ast.Type {
	ty = p.pointers(ty)

	if p.check("(") && !p.isTypename(p.tok.Next) && !p.peekIs(")") {
		start := p.tok
		p.advance()
		p.abstractDeclarator(&ast.Type{})
		p.expect(")")
		ty = p.typeSuffix(ty)
		rest := p.tok

		p.tok = start.Next
		ty = p.abstractDeclarator(ty)
		p.tok = rest
		return ty
	}
	return p.typeSuffix(ty)
}

// type-name = declspec abstract-declarator
func (p *Parser) typename() *ast.Type {
	return p.abstractDeclarator(p.declspec(nil))
}

// enum-specifier = ident? "{" enum-list? "}"
//
//	| ident ("{" enum-list? "}")?
//
// enum-list      = ident ("=" num)? ("," ident ("=" num)?)* ","?
func (p *Parser) enumSpecifier() *ast.Type {
	ty := ast.EnumType()

	var tag *token.Token
	if p.tok.Kind == token.Ident {
		tag = p.tok
		p.advance()
	}

	if tag != nil && !p.check("{") {
		ty := p.findTag(tag)
		if ty == nil {
			util.Error(tag, "unknown enum type")
		}
		if ty.Kind != ast.TyEnum {
			util.Error(tag, "not an enum tag")
		}
		return ty
	}

	p.expect("{")

	var val int64
	for i := 0; !p.consumeEnd(); i++ {
		if i > 0 {
			p.expect(",")
		}
		name := p.getIdent(p.tok)
		p.advance()
		p.attributeList(nil, nil)

		if p.match("=") {
			val = p.constExpr()
		}
		vs := p.pushScope(name)
		vs.enumTy = ty
		vs.enumVal = val
		val++
	}

	if tag != nil {
		p.pushTagScope(tag, ty)
	}
	return ty
}

// typeof-specifier = "(" (expr | typename) ")"
func (p *Parser) typeofSpecifier() *ast.Type {
	p.expect("(")

	var ty *ast.Type
	if p.isTypename(p.tok) {
		ty = p.typename()
	} else {
		node := p.expr()
		p.tc.AddType(node)
		ty = node.Ty
	}
	p.expect(")")
	return ty
}

// struct-members = (declspec declarator (","  declarator)* ";")*
func (p *Parser) structMembers(ty *ast.Type) {
	var members []*ast.Member

	for !p.check("}") {
		if p.tok.Kind == token.EOF {
			util.Error(p.tok, "expected '}'")
		}
		var attr varAttr
		basety := p.declspec(&attr)

		// Anonymous struct or union member
		if basety.IsAggregate() && p.match(";") {
			members = append(members, &ast.Member{
				Ty:    basety,
				Tok:   p.tok,
				Idx:   len(members),
				Align: alignOr(attr.align, basety.Align),
			})
			continue
		}

		for first := true; !p.match(";"); first = false {
			if !first {
				p.expect(",")
			}

			mem := &ast.Member{Tok: p.tok, Idx: len(members)}
			d := p.declarator(basety)
			mem.Ty, mem.Name = d.ty, d.name

			if p.match(":") {
				mem.IsBitfield = true
				tok := p.tok
				mem.BitWidth = p.constExpr()
				if mem.BitWidth < 0 || mem.BitWidth > mem.Ty.Size*8 || !mem.Ty.IsInteger() {
					util.Error(tok, "invalid bit-field width")
				}
			}
			p.attributeList(nil, &attr)
			mem.Align = alignOr(attr.align, mem.Ty.Align)
			members = append(members, mem)
		}
	}
	p.advance()

	// A trailing array of unknown size is a flexible array member and
	// behaves as a zero-length array.
	if n := len(members); n > 0 {
		last := members[n-1]
		if last.Ty.Kind == ast.TyArray && last.Ty.ArrayLen < 0 {
			last.Ty = ast.ArrayOf(last.Ty.Base, 0)
			ty.Flexible = true
		}
	}
	ty.Members = members
}

func alignOr(align, def int64) int64 {
	if align != 0 {
		return align
	}
	return def
}

// struct-union-decl = attribute? ident? ("{" struct-members)?
//
// defined reports whether a member list was read, so the caller must lay
// the type out.
func (p *Parser) structUnionDecl(kind ast.TypeKind) (ty *ast.Type, defined bool) {
	ty = ast.StructType()
	ty.Kind = kind
	p.attributeList(ty, nil)

	var tag *token.Token
	if p.tok.Kind == token.Ident {
		tag = p.tok
		p.advance()
	}

	if tag != nil && !p.check("{") {
		if ty2 := p.findTag(tag); ty2 != nil {
			return ty2, false
		}
		ty.Size = -1
		p.pushTagScope(tag, ty)
		return ty, false
	}

	p.expect("{")
	p.structMembers(ty)
	p.attributeList(ty, nil)

	if tag != nil {
		// A definition completes an earlier declaration in the same scope.
		if ty2, ok := p.scope.tags.Get(tag.Text); ok {
			*ty2 = *ty
			return ty2, true
		}
		p.pushTagScope(tag, ty)
	}
	return ty, true
}

// struct-decl = struct-union-decl
func (p *Parser) structDecl() *ast.Type {
	ty, defined := p.structUnionDecl(ast.TyStruct)
	if defined {
		layoutStruct(ty)
	}
	return ty
}

// union-decl = struct-union-decl
func (p *Parser) unionDecl() *ast.Type {
	ty, defined := p.structUnionDecl(ast.TyUnion)
	if defined {
		layoutUnion(ty)
	}
	return ty
}

// layoutStruct assigns member offsets. Bit-fields are packed into units of
// their declared type; one that would straddle a unit boundary starts a new
// unit, and a zero-width one only realigns.
func layoutStruct(ty *ast.Type) {
	var bits int64

	for _, mem := range ty.Members {
		switch {
		case mem.IsBitfield && mem.BitWidth == 0:
			bits = util.AlignTo(bits, mem.Ty.Size*8)
		case mem.IsBitfield:
			sz := mem.Ty.Size
			if bits/(sz*8) != (bits+mem.BitWidth-1)/(sz*8) {
				bits = util.AlignTo(bits, sz*8)
			}
			mem.Offset = util.AlignDown(bits/8, sz)
			mem.BitOffset = bits % (sz * 8)
			bits += mem.BitWidth
		default:
			if !ty.Packed {
				bits = util.AlignTo(bits, mem.Align*8)
			}
			mem.Offset = bits / 8
			bits += mem.Ty.Size * 8
		}

		if !ty.Packed {
			ty.Align = mathutil.MaxInt64(ty.Align, mem.Align)
		}
	}
	ty.Size = util.AlignTo(bits, ty.Align*8) / 8
}

// layoutUnion computes size and alignment; every member is at offset 0.
func layoutUnion(ty *ast.Type) {
	for _, mem := range ty.Members {
		ty.Align = mathutil.MaxInt64(ty.Align, mem.Align)
		ty.Size = mathutil.MaxInt64(ty.Size, mem.Ty.Size)
	}
	ty.Size = util.AlignTo(ty.Size, ty.Align)
}

// getStructMember finds a member by name. A member found inside an
// anonymous struct or union yields the anonymous member itself.
func getStructMember(ty *ast.Type, tok *token.Token) *ast.Member {
	for _, mem := range ty.Members {
		if mem.Name == nil {
			if mem.Ty.IsAggregate() && getStructMember(mem.Ty, tok) != nil {
				return mem
			}
			continue
		}
		if mem.Name.Text == tok.Text {
			return mem
		}
	}
	return nil
}

// computeVLASize generates code that stores the byte size of every VLA in
// ty into a hidden local.
func (p *Parser) computeVLASize(ty *ast.Type, tok *token.Token) *ast.Node {
	node := ast.NewNode(ast.NullExpr, tok)
	if ty.Base != nil {
		node = ast.NewBinary(ast.Comma, node, p.computeVLASize(ty.Base, tok), tok)
	}
	if ty.Kind != ast.TyVLA {
		return node
	}

	var baseSz *ast.Node
	if ty.Base.Kind == ast.TyVLA {
		baseSz = ast.NewVar(ty.Base.VLASize, tok)
	} else {
		baseSz = ast.NewNumber(ty.Base.Size, tok)
	}

	ty.VLASize = p.newLVar("", ast.TypeULong)
	expr := ast.NewBinary(ast.Assign, ast.NewVar(ty.VLASize, tok),
		ast.NewBinary(ast.Mul, ty.VLALen, baseSz, tok), tok)
	return ast.NewBinary(ast.Comma, node, expr, tok)
}

func (p *Parser) newAlloca(sz *ast.Node) *ast.Node {
	node := ast.NewUnary(ast.FuncCall, ast.NewVar(p.builtinAlloca, sz.Tok), sz.Tok)
	node.FuncTy = p.builtinAlloca.Ty
	node.Ty = p.builtinAlloca.Ty.ReturnTy
	node.Args = []*ast.Node{sz}
	p.tc.AddType(sz)
	return node
}

// declaration = declspec (declarator ("=" expr)? ("," declarator ("=" expr)?)*)? ";"
func (p *Parser) declaration(basety *ast.Type, attr *varAttr) *ast.Node {
	var body []*ast.Node

	for i := 0; !p.check(";"); i++ {
		if i > 0 {
			p.expect(",")
		}

		d := p.declarator(basety)
		if d.ty.Kind == ast.TyVoid {
			util.Error(p.tok, "variable declared void")
		}
		if d.name == nil {
			util.Error(d.namePos, "declaration variable name omitted")
		}
		p.attributeList(nil, attr)

		if attr != nil && attr.isStatic {
			// static local variable
			v := p.newAnonGVar(d.ty)
			p.pushScope(d.name.Text).v = v
			if attr.align != 0 {
				v.Align = attr.align
			}
			if p.match("=") {
				p.gvarInitializer(v)
			}
			continue
		}

		// Compute VLA sizes even for non-VLA types: ty may be a pointer
		// to a VLA, as in int (*p)[n][m].
		body = append(body, ast.NewUnary(ast.ExprStmt, p.computeVLASize(d.ty, p.tok), p.tok))

		if d.ty.Kind == ast.TyVLA {
			if p.check("=") {
				util.Error(p.tok, "variable-sized object may not be initialized")
			}
			// int x[n+2] becomes tmp = n + 2, x = alloca(tmp).
			v := p.newLVar(d.name.Text, d.ty)
			tok := d.name
			expr := ast.NewBinary(ast.Assign, ast.NewVLAPtr(v, tok),
				p.newAlloca(ast.NewVar(d.ty.VLASize, tok)), tok)
			body = append(body, ast.NewUnary(ast.ExprStmt, expr, tok))
			continue
		}

		v := p.newLVar(d.name.Text, d.ty)
		if attr != nil && attr.align != 0 {
			v.Align = attr.align
		}

		if p.check("=") {
			tok := p.tok
			p.advance()
			body = append(body, ast.NewUnary(ast.ExprStmt, p.lvarInitializer(v), tok))
		}

		if v.Ty.Size < 0 {
			util.Error(d.name, "variable has incomplete type")
		}
		if v.Ty.Kind == ast.TyVoid {
			util.Error(d.name, "variable declared void")
		}
	}

	node := &ast.Node{Type: ast.Block, Tok: p.tok, Body: body}
	p.advance()
	return node
}
