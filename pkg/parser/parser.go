// Package parser turns a preprocessed token list into a typed AST. It is a
// recursive-descent parser with unbounded lookahead: the token list is
// linked, so any production can peek ahead and rewind by saving the cursor.
package parser

import (
	"strconv"

	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/hashmap"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/typeChecker"
	"github.com/xplshn/chibicc/pkg/util"
)

// varScope is what an ordinary identifier is bound to: a variable, a
// typedef or an enum constant.
type varScope struct {
	v       *ast.Obj
	typeDef *ast.Type
	enumTy  *ast.Type
	enumVal int64
}

// C has two block-scoped namespaces, one for variables/typedefs and one for
// struct/union/enum tags.
type scope struct {
	next *scope
	vars *hashmap.Map[*varScope]
	tags *hashmap.Map[*ast.Type]
}

func newScope(next *scope) *scope {
	return &scope{next: next, vars: hashmap.New[*varScope](), tags: hashmap.New[*ast.Type]()}
}

// varAttr holds storage classes and alignment from a declaration specifier.
type varAttr struct {
	isTypedef bool
	isStatic  bool
	isExtern  bool
	isInline  bool
	isTLS     bool
	align     int64
}

// Parser holds the state for the parsing process
type Parser struct {
	cfg *config.Config
	tc  *typeChecker.TypeChecker
	tok *token.Token

	scope       *scope
	globalScope *scope

	globals   []*ast.Obj
	locals    []*ast.Obj
	currentFn *ast.Obj

	// gotos and labels of the current function, resolved after its body
	gotos  []*ast.Node
	labels []*ast.Node

	brkLabel      string
	contLabel     string
	currentSwitch *ast.Node

	builtinAlloca *ast.Obj
	uniqueID      int

	// names of global variables that already carry an initializer
	initialized *hashmap.Map[bool]
}

// NewParser creates and initializes a new Parser over a preprocessed token list
func NewParser(tok *token.Token, cfg *config.Config) *Parser {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	sc := newScope(nil)
	return &Parser{
		cfg:         cfg,
		tc:          typeChecker.NewTypeChecker(cfg),
		tok:         tok,
		scope:       sc,
		globalScope: sc,
		initialized: hashmap.New[bool](),
	}
}

// Parser helpers
func (p *Parser) advance() {
	if p.tok.Next != nil {
		p.tok = p.tok.Next
	}
}

func (p *Parser) check(s string) bool { return p.tok.Is(s) }

func (p *Parser) peekIs(s string) bool { return p.tok.Next != nil && p.tok.Next.Is(s) }

func (p *Parser) match(s string) bool {
	if !p.check(s) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(s string) {
	if !p.match(s) {
		util.Error(p.tok, "expected '%s'", s)
	}
}

func (p *Parser) getIdent(tok *token.Token) string {
	if tok.Kind != token.Ident {
		util.Error(tok, "expected an identifier")
	}
	return tok.Text
}

// isEnd reports whether the cursor is at the end of a brace list, which may
// carry a trailing comma.
func (p *Parser) isEnd() bool {
	return p.check("}") || (p.check(",") && p.peekIs("}"))
}

func (p *Parser) consumeEnd() bool {
	if p.match("}") {
		return true
	}
	if p.check(",") && p.peekIs("}") {
		p.advance()
		p.advance()
		return true
	}
	return false
}

// Scopes

func (p *Parser) enterScope() { p.scope = newScope(p.scope) }

func (p *Parser) leaveScope() { p.scope = p.scope.next }

func (p *Parser) findVar(tok *token.Token) *varScope {
	for sc := p.scope; sc != nil; sc = sc.next {
		if vs, ok := sc.vars.Get(tok.Text); ok {
			return vs
		}
	}
	return nil
}

func (p *Parser) findTag(tok *token.Token) *ast.Type {
	for sc := p.scope; sc != nil; sc = sc.next {
		if ty, ok := sc.tags.Get(tok.Text); ok {
			return ty
		}
	}
	return nil
}

func (p *Parser) findTypedef(tok *token.Token) *ast.Type {
	if tok.Kind != token.Ident {
		return nil
	}
	if vs := p.findVar(tok); vs != nil {
		return vs.typeDef
	}
	return nil
}

func (p *Parser) pushScope(name string) *varScope {
	vs := &varScope{}
	p.scope.vars.Put(name, vs)
	return vs
}

func (p *Parser) pushTagScope(tok *token.Token, ty *ast.Type) {
	p.scope.tags.Put(tok.Text, ty)
}

// Objects

func (p *Parser) newVar(name string, ty *ast.Type) *ast.Obj {
	v := &ast.Obj{Name: name, Ty: ty, Align: ty.Align}
	p.pushScope(name).v = v
	return v
}

func (p *Parser) newLVar(name string, ty *ast.Type) *ast.Obj {
	v := p.newVar(name, ty)
	v.IsLocal = true
	p.locals = append(p.locals, v)
	return v
}

func (p *Parser) newGVar(name string, ty *ast.Type) *ast.Obj {
	v := p.newVar(name, ty)
	v.IsStatic = true
	v.IsDefinition = true
	p.globals = append(p.globals, v)
	return v
}

func (p *Parser) newUniqueName() string {
	name := ".L.." + strconv.Itoa(p.uniqueID)
	p.uniqueID++
	return name
}

func (p *Parser) newAnonGVar(ty *ast.Type) *ast.Obj {
	return p.newGVar(p.newUniqueName(), ty)
}

func (p *Parser) newStringLiteral(data []byte, ty *ast.Type) *ast.Obj {
	v := p.newAnonGVar(ty)
	v.InitData = data
	return v
}

// litType maps the literal type recorded by the tokenizer to a C type.
func litType(lit token.Lit) *ast.Type {
	switch lit {
	case token.LitChar:
		return ast.TypeChar
	case token.LitUShort:
		return ast.TypeUShort
	case token.LitInt:
		return ast.TypeInt
	case token.LitUInt:
		return ast.TypeUInt
	case token.LitLong:
		return ast.TypeLong
	case token.LitULong:
		return ast.TypeULong
	case token.LitFloat:
		return ast.TypeFloat
	case token.LitDouble:
		return ast.TypeDouble
	case token.LitLDouble:
		return ast.TypeLDouble
	}
	util.Unreachable()
	return nil
}

// strType is the array type of a string literal token.
func strType(tok *token.Token) *ast.Type {
	return ast.ArrayOf(litType(tok.Lit), int64(tok.StrLen()))
}

// Top level

// Parse reads a whole translation unit.
// program = (typedef | function-definition | global-variable | asm)*
func (p *Parser) Parse() (prog *ast.Program, err error) {
	defer util.Recover(&err)

	p.declareBuiltinFunctions()

	for p.tok.Kind != token.EOF {
		if p.check("asm") || p.check("__asm__") {
			p.globals = append(p.globals, &ast.Obj{Asm: p.asmStmt()})
			p.match(";")
			continue
		}

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
		p.globalVariable(basety, &attr)
	}

	for _, v := range p.globals {
		if v.IsRoot {
			p.markLive(v)
		}
	}
	p.scanGlobals()

	p.cfg.Infof("parsed %d top-level objects", len(p.globals))
	return &ast.Program{Globals: p.globals}, nil
}

func (p *Parser) declareBuiltinFunctions() {
	ty := ast.FuncType(ast.PointerTo(ast.TypeVoid))
	ty.Params = []*ast.Type{ast.CopyType(ast.TypeInt)}
	p.builtinAlloca = p.newGVar("alloca", ty)
	p.builtinAlloca.IsDefinition = false
}

func (p *Parser) parseTypedef(basety *ast.Type) {
	for first := true; !p.match(";"); first = false {
		if !first {
			p.expect(",")
		}
		d := p.declarator(basety)
		if d.name == nil {
			util.Error(d.namePos, "typedef name omitted")
		}
		p.attributeList(nil, nil)
		p.pushScope(d.name.Text).typeDef = d.ty
	}
}

// isFunction looks ahead to decide whether the declarator at the cursor
// declares a function.
func (p *Parser) isFunction() bool {
	if p.check(";") {
		return false
	}
	start := p.tok
	defer func() { p.tok = start }()

	p.attributeList(nil, nil)
	d := p.declarator(&ast.Type{})
	return d.ty.Kind == ast.TyFunc
}

func (p *Parser) findFunc(name string) *ast.Obj {
	if vs, ok := p.globalScope.vars.Get(name); ok && vs.v != nil && vs.v.IsFunction {
		return vs.v
	}
	return nil
}

// markLive flags fn and everything it references as needing code.
func (p *Parser) markLive(fn *ast.Obj) {
	if !fn.IsFunction || fn.IsLive {
		return
	}
	fn.IsLive = true
	for _, name := range fn.Refs {
		if callee := p.findFunc(name); callee != nil {
			p.markLive(callee)
		}
	}
}

func (p *Parser) function(basety *ast.Type, attr *varAttr) {
	d := p.declarator(basety)
	if d.name == nil {
		util.Error(d.namePos, "function name omitted")
	}
	name := d.name.Text

	// [GNU] int f(void) asm("label");
	var asmName string
	if p.check("asm") || p.check("__asm__") {
		p.advance()
		p.expect("(")
		if p.tok.Kind != token.Str {
			util.Error(p.tok, "expected string literal")
		}
		asmName = string(p.tok.Str[:len(p.tok.Str)-1])
		p.advance()
		p.expect(")")
	}
	p.attributeList(nil, nil)
	isDef := p.check("{")
	if isDef && p.currentFn != nil {
		util.Error(d.name, "function definition is not allowed here")
	}

	if vs, ok := p.globalScope.vars.Get(name); ok && p.scope == p.globalScope {
		if vs.v == nil || (!vs.v.IsFunction && vs.v != p.builtinAlloca) {
			util.Error(d.name, "redeclared as a different kind of symbol")
		}
	}

	fn := p.findFunc(name)
	if fn != nil {
		if fn.IsDefinition && isDef {
			util.Error(p.tok, "redefinition of %s", name)
		}
		if !fn.IsStatic && attr.isStatic {
			util.Error(p.tok, "static declaration follows a non-static declaration")
		}
		fn.IsDefinition = fn.IsDefinition || isDef
		if isDef {
			fn.Ty = d.ty
		}
	} else {
		fn = p.newGVar(name, d.ty)
		fn.IsFunction = true
		fn.IsDefinition = isDef
		fn.IsStatic = attr.isStatic || (attr.isInline && !attr.isExtern)
		fn.IsInline = attr.isInline
	}
	fn.IsRoot = !(fn.IsStatic && fn.IsInline)
	if asmName != "" {
		fn.AsmName = asmName
	}

	if p.match(";") {
		return
	}

	p.currentFn = fn
	p.locals = nil
	p.enterScope()

	ty := d.ty
	for _, param := range ty.Params {
		if param.Name == nil {
			util.Error(param.NamePos, "parameter name omitted")
		}
		p.newLVar(param.Name.Text, param)
	}
	params := p.locals

	// A buffer for a large struct/union return value is passed as a hidden
	// first parameter.
	if rty := ty.ReturnTy; rty.IsAggregate() && rty.Size > 16 {
		params = append([]*ast.Obj{p.newLVar("", ast.PointerTo(rty))}, params...)
	}
	fn.Params = params

	if ty.Variadic {
		fn.VaArea = p.newLVar("__va_area__", ast.ArrayOf(ast.TypeChar, 136))
	}
	fn.AllocaBottom = p.newLVar("__alloca_size__", ast.PointerTo(ast.TypeChar))

	p.expect("{")

	// __func__ and its GNU alias __FUNCTION__ name the current function.
	fname := append([]byte(name), 0)
	p.pushScope("__func__").v = p.newStringLiteral(fname, ast.ArrayOf(ast.TypeChar, int64(len(fname))))
	p.pushScope("__FUNCTION__").v = p.newStringLiteral(fname, ast.ArrayOf(ast.TypeChar, int64(len(fname))))

	fn.Body = p.compoundStmt()
	fn.Locals = p.locals
	p.leaveScope()
	p.resolveGotoLabels()
	p.currentFn = nil
}

// resolveGotoLabels matches gotos and label addresses with the labels of
// the function just parsed. Labels may follow the goto that uses them.
func (p *Parser) resolveGotoLabels() {
	byName := hashmap.New[*ast.Node]()
	for _, l := range p.labels {
		byName.Put(l.Label, l)
	}
	for _, g := range p.gotos {
		l, ok := byName.Get(g.Label)
		if !ok {
			tok := g.Tok
			if tok.Next != nil {
				tok = tok.Next
			}
			util.Error(tok, "use of undeclared label")
		}
		g.UniqueLabel = l.UniqueLabel
	}
	p.gotos, p.labels = nil, nil
}

func (p *Parser) globalVariable(basety *ast.Type, attr *varAttr) {
	for first := true; !p.match(";"); first = false {
		if !first {
			p.expect(",")
		}

		d := p.declarator(basety)
		if d.name == nil {
			util.Error(d.namePos, "global variable name omitted")
		}
		if d.ty.Kind == ast.TyVoid {
			util.Error(d.name, "variable declared void")
		}
		if d.ty.Kind == ast.TyVLA {
			util.Error(d.name, "variable length array declaration not allowed at file scope")
		}
		p.attributeList(nil, attr)
		internal := p.checkRedeclaration(d.name, d.ty, attr)

		v := p.newGVar(d.name.Text, d.ty)
		v.IsDefinition = !attr.isExtern
		v.IsStatic = attr.isStatic || internal
		v.IsTLS = attr.isTLS
		if attr.align != 0 {
			v.Align = attr.align
		}

		if p.match("=") {
			if p.initialized.Has(v.Name) {
				util.Error(d.name, "redefinition of %s", v.Name)
			}
			p.initialized.Put(v.Name, true)
			p.gvarInitializer(v)
		} else if !attr.isExtern && !attr.isTLS {
			v.IsTentative = true
		}
		p.attributeList(nil, nil)
	}
}

// checkRedeclaration rejects a global variable declaration that conflicts
// with an earlier file-scope declaration of the same name. It reports
// whether an extern declaration inherits internal linkage from a prior
// static one.
func (p *Parser) checkRedeclaration(name *token.Token, ty *ast.Type, attr *varAttr) bool {
	vs, ok := p.globalScope.vars.Get(name.Text)
	if !ok {
		return false
	}
	prev := vs.v
	if prev == nil || prev.IsFunction {
		util.Error(name, "redeclared as a different kind of symbol")
	}
	if !sameObjectType(prev.Ty, ty) {
		util.Error(name, "conflicting types for %s", name.Text)
	}
	if attr.isStatic && !prev.IsStatic {
		util.Error(name, "static declaration follows a non-static declaration")
	}
	if !attr.isStatic && !attr.isExtern && prev.IsStatic {
		util.Error(name, "non-static declaration follows a static declaration")
	}
	return attr.isExtern && prev.IsStatic
}

// sameObjectType is type compatibility for redeclarations, where an array
// of unknown size matches a sized array of the same element type.
func sameObjectType(t1, t2 *ast.Type) bool {
	for t1.Origin != nil {
		t1 = t1.Origin
	}
	for t2.Origin != nil {
		t2 = t2.Origin
	}
	if t1.Kind == ast.TyArray && t2.Kind == ast.TyArray {
		if t1.ArrayLen >= 0 && t2.ArrayLen >= 0 && t1.ArrayLen != t2.ArrayLen {
			return false
		}
		return typeChecker.IsCompatible(t1.Base, t2.Base)
	}
	return typeChecker.IsCompatible(t1, t2)
}

// scanGlobals drops tentative definitions made redundant by a real
// definition or by an earlier tentative definition of the same name.
func (p *Parser) scanGlobals() {
	defined := hashmap.New[bool]()
	for _, v := range p.globals {
		if v.IsDefinition && !v.IsTentative && !v.IsFunction && v.Asm == nil {
			defined.Put(v.Name, true)
		}
	}

	out := p.globals[:0]
	for _, v := range p.globals {
		if v.IsTentative {
			if defined.Has(v.Name) {
				continue
			}
			defined.Put(v.Name, true)
		}
		out = append(out, v)
	}
	p.globals = out
}
