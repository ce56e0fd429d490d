package parser

import (
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/typeChecker"
	"github.com/xplshn/chibicc/pkg/util"
)

// expr = assign ("," expr)?
func (p *Parser) expr() *ast.Node {
	node := p.assign()
	if p.check(",") {
		tok := p.tok
		p.advance()
		return ast.NewBinary(ast.Comma, node, p.expr(), tok)
	}
	return node
}

var compoundAssignOps = map[string]ast.NodeType{
	"+=": ast.Add, "-=": ast.Sub, "*=": ast.Mul, "/=": ast.Div, "%=": ast.Mod,
	"&=": ast.BitAnd, "|=": ast.BitOr, "^=": ast.BitXor, "<<=": ast.Shl, ">>=": ast.Shr,
}

// assign    = conditional (assign-op assign)?
// assign-op = "=" | "+=" | "-=" | "*=" | "/=" | "%=" | "&=" | "|=" | "^="
//
//	| "<<=" | ">>="
func (p *Parser) assign() *ast.Node {
	node := p.conditional()
	tok := p.tok

	if tok.Kind != token.Punct {
		return node
	}
	if tok.Is("=") {
		p.advance()
		return ast.NewBinary(ast.Assign, node, p.assign(), tok)
	}
	if op, ok := compoundAssignOps[tok.Text]; ok {
		p.advance()
		rhs := p.assign()
		switch op {
		case ast.Add:
			return p.toAssign(p.newAdd(node, rhs, tok))
		case ast.Sub:
			return p.toAssign(p.newSub(node, rhs, tok))
		}
		return p.toAssign(ast.NewBinary(op, node, rhs, tok))
	}
	return node
}

// toAssign lowers A op= B into plain assignments.
//
// In general it becomes tmp = &A, *tmp = *tmp op B. A member access A.x
// becomes tmp = &A, (*tmp).x = (*tmp).x op B so that bit-fields are written
// back correctly, and an atomic A becomes a compare-and-swap loop.
func (p *Parser) toAssign(binary *ast.Node) *ast.Node {
	p.tc.AddType(binary.Lhs)
	p.tc.AddType(binary.Rhs)
	tok := binary.Tok

	if binary.Lhs.Type == ast.MemberAccess {
		v := p.newLVar("", ast.PointerTo(binary.Lhs.Lhs.Ty))

		expr1 := ast.NewBinary(ast.Assign, ast.NewVar(v, tok),
			ast.NewUnary(ast.AddressOf, binary.Lhs.Lhs, tok), tok)

		member := func() *ast.Node {
			n := ast.NewUnary(ast.MemberAccess, ast.NewUnary(ast.Indirection, ast.NewVar(v, tok), tok), tok)
			n.Member = binary.Lhs.Member
			return n
		}

		expr2 := ast.NewBinary(ast.Assign, member(),
			ast.NewBinary(binary.Type, member(), binary.Rhs, tok), tok)
		return ast.NewBinary(ast.Comma, expr1, expr2, tok)
	}

	// ({ T *addr = &A; T2 val = B; T old = *addr; T new;
	//    do { new = old op val; } while (!cas(addr, &old, new));
	//    new; })
	if binary.Lhs.Ty.Atomic {
		addr := p.newLVar("", ast.PointerTo(binary.Lhs.Ty))
		val := p.newLVar("", binary.Rhs.Ty)
		old := p.newLVar("", binary.Lhs.Ty)
		nw := p.newLVar("", binary.Lhs.Ty)

		exprStmt := func(lhs *ast.Obj, rhs *ast.Node) *ast.Node {
			return ast.NewUnary(ast.ExprStmt, ast.NewBinary(ast.Assign, ast.NewVar(lhs, tok), rhs, tok), tok)
		}

		var body []*ast.Node
		body = append(body, exprStmt(addr, ast.NewUnary(ast.AddressOf, binary.Lhs, tok)))
		body = append(body, exprStmt(val, binary.Rhs))
		body = append(body, exprStmt(old, ast.NewUnary(ast.Indirection, ast.NewVar(addr, tok), tok)))

		loop := ast.NewNode(ast.Do, tok)
		loop.BrkLabel = p.newUniqueName()
		loop.ContLabel = p.newUniqueName()
		loop.Then = &ast.Node{Type: ast.Block, Tok: tok, Body: []*ast.Node{
			exprStmt(nw, ast.NewBinary(binary.Type, ast.NewVar(old, tok), ast.NewVar(val, tok), tok)),
		}}

		cas := ast.NewNode(ast.CAS, tok)
		cas.CasAddr = ast.NewVar(addr, tok)
		cas.CasOld = ast.NewUnary(ast.AddressOf, ast.NewVar(old, tok), tok)
		cas.CasNew = ast.NewVar(nw, tok)
		loop.Cond = ast.NewUnary(ast.Not, cas, tok)

		body = append(body, loop, ast.NewUnary(ast.ExprStmt, ast.NewVar(nw, tok), tok))
		return &ast.Node{Type: ast.StmtExpr, Tok: tok, Body: body}
	}

	v := p.newLVar("", ast.PointerTo(binary.Lhs.Ty))
	expr1 := ast.NewBinary(ast.Assign, ast.NewVar(v, tok),
		ast.NewUnary(ast.AddressOf, binary.Lhs, tok), tok)
	expr2 := ast.NewBinary(ast.Assign,
		ast.NewUnary(ast.Indirection, ast.NewVar(v, tok), tok),
		ast.NewBinary(binary.Type, ast.NewUnary(ast.Indirection, ast.NewVar(v, tok), tok), binary.Rhs, tok),
		tok)
	return ast.NewBinary(ast.Comma, expr1, expr2, tok)
}

// conditional = logor ("?" expr? ":" conditional)?
func (p *Parser) conditional() *ast.Node {
	cond := p.binaryExpr(precLogOr)
	if !p.check("?") {
		return cond
	}
	tok := p.tok
	p.advance()

	if p.match(":") {
		// [GNU] a ?: b is tmp = a, tmp ? tmp : b
		p.tc.AddType(cond)
		v := p.newLVar("", cond.Ty)
		lhs := ast.NewBinary(ast.Assign, ast.NewVar(v, tok), cond, tok)
		rhs := ast.NewNode(ast.Ternary, tok)
		rhs.Cond = ast.NewVar(v, tok)
		rhs.Then = ast.NewVar(v, tok)
		rhs.Els = p.conditional()
		return ast.NewBinary(ast.Comma, lhs, rhs, tok)
	}

	node := ast.NewNode(ast.Ternary, tok)
	node.Cond = cond
	node.Then = p.expr()
	p.expect(":")
	node.Els = p.conditional()
	return node
}

// Binary operator precedence, lowest first. All of them are left
// associative.
const (
	precNone = iota
	precLogOr
	precLogAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdd
	precMul
)

func binaryPrecedence(tok *token.Token) int {
	if tok.Kind != token.Punct {
		return precNone
	}
	switch tok.Text {
	case "*", "/", "%":
		return precMul
	case "+", "-":
		return precAdd
	case "<<", ">>":
		return precShift
	case "<", "<=", ">", ">=":
		return precRelational
	case "==", "!=":
		return precEquality
	case "&":
		return precBitAnd
	case "^":
		return precBitXor
	case "|":
		return precBitOr
	case "&&":
		return precLogAnd
	case "||":
		return precLogOr
	}
	return precNone
}

// binaryExpr parses the binary operators from || down to * by precedence
// climbing; the operands are casts.
func (p *Parser) binaryExpr(minPrec int) *ast.Node {
	node := p.cast()
	for {
		prec := binaryPrecedence(p.tok)
		if prec == precNone || prec < minPrec {
			return node
		}
		tok := p.tok
		p.advance()
		rhs := p.binaryExpr(prec + 1)
		node = p.newBinaryOp(tok, node, rhs)
	}
}

func (p *Parser) newBinaryOp(tok *token.Token, lhs, rhs *ast.Node) *ast.Node {
	switch tok.Text {
	case "+":
		return p.newAdd(lhs, rhs, tok)
	case "-":
		return p.newSub(lhs, rhs, tok)
	case "*":
		return ast.NewBinary(ast.Mul, lhs, rhs, tok)
	case "/":
		return ast.NewBinary(ast.Div, lhs, rhs, tok)
	case "%":
		return ast.NewBinary(ast.Mod, lhs, rhs, tok)
	case "<<":
		return ast.NewBinary(ast.Shl, lhs, rhs, tok)
	case ">>":
		return ast.NewBinary(ast.Shr, lhs, rhs, tok)
	case "<":
		return ast.NewBinary(ast.Lt, lhs, rhs, tok)
	case "<=":
		return ast.NewBinary(ast.Le, lhs, rhs, tok)
	case ">":
		return ast.NewBinary(ast.Lt, rhs, lhs, tok)
	case ">=":
		return ast.NewBinary(ast.Le, rhs, lhs, tok)
	case "==":
		return ast.NewBinary(ast.Eq, lhs, rhs, tok)
	case "!=":
		return ast.NewBinary(ast.Ne, lhs, rhs, tok)
	case "&":
		return ast.NewBinary(ast.BitAnd, lhs, rhs, tok)
	case "^":
		return ast.NewBinary(ast.BitXor, lhs, rhs, tok)
	case "|":
		return ast.NewBinary(ast.BitOr, lhs, rhs, tok)
	case "&&":
		return ast.NewBinary(ast.LogAnd, lhs, rhs, tok)
	case "||":
		return ast.NewBinary(ast.LogOr, lhs, rhs, tok)
	}
	util.Unreachable()
	return nil
}

// newAdd handles pointer arithmetic: p+n adds n times the size of *p.
func (p *Parser) newAdd(lhs, rhs *ast.Node, tok *token.Token) *ast.Node {
	p.tc.AddType(lhs)
	p.tc.AddType(rhs)

	// num + num
	if lhs.Ty.IsNumeric() && rhs.Ty.IsNumeric() {
		return ast.NewBinary(ast.Add, lhs, rhs, tok)
	}
	if lhs.Ty.Base != nil && rhs.Ty.Base != nil {
		util.Error(tok, "invalid operands")
	}

	// num + ptr is ptr + num
	if lhs.Ty.Base == nil && rhs.Ty.Base != nil {
		lhs, rhs = rhs, lhs
	}
	if lhs.Ty.Base == nil || !rhs.Ty.IsInteger() {
		util.Error(tok, "invalid operands")
	}

	// VLA + num
	if lhs.Ty.Base.Kind == ast.TyVLA {
		rhs = ast.NewBinary(ast.Mul, rhs, ast.NewVar(lhs.Ty.Base.VLASize, tok), tok)
		return ast.NewBinary(ast.Add, lhs, rhs, tok)
	}

	rhs = ast.NewBinary(ast.Mul, rhs, ast.NewLong(lhs.Ty.Base.Size, tok), tok)
	return ast.NewBinary(ast.Add, lhs, rhs, tok)
}

// newSub is newAdd for "-"; ptr - ptr counts the elements between them.
func (p *Parser) newSub(lhs, rhs *ast.Node, tok *token.Token) *ast.Node {
	p.tc.AddType(lhs)
	p.tc.AddType(rhs)

	// num - num
	if lhs.Ty.IsNumeric() && rhs.Ty.IsNumeric() {
		return ast.NewBinary(ast.Sub, lhs, rhs, tok)
	}
	if lhs.Ty.Base == nil {
		util.Error(tok, "invalid operands")
	}

	// VLA - num
	if lhs.Ty.Base.Kind == ast.TyVLA && rhs.Ty.IsInteger() {
		rhs = ast.NewBinary(ast.Mul, rhs, ast.NewVar(lhs.Ty.Base.VLASize, tok), tok)
		p.tc.AddType(rhs)
		node := ast.NewBinary(ast.Sub, lhs, rhs, tok)
		node.Ty = lhs.Ty
		return node
	}

	// ptr - num
	if rhs.Ty.IsInteger() {
		rhs = ast.NewBinary(ast.Mul, rhs, ast.NewLong(lhs.Ty.Base.Size, tok), tok)
		p.tc.AddType(rhs)
		node := ast.NewBinary(ast.Sub, lhs, rhs, tok)
		node.Ty = lhs.Ty
		return node
	}

	// ptr - ptr
	if rhs.Ty.Base != nil {
		node := ast.NewBinary(ast.Sub, lhs, rhs, tok)
		node.Ty = ast.TypeLong
		return ast.NewBinary(ast.Div, node, ast.NewNumber(lhs.Ty.Base.Size, tok), tok)
	}

	util.Error(tok, "invalid operands")
	return nil
}

// cast = "(" type-name ")" cast | unary
func (p *Parser) cast() *ast.Node {
	if p.check("(") && p.isTypename(p.tok.Next) {
		start := p.tok
		p.advance()
		ty := p.typename()
		p.expect(")")

		// compound literal
		if p.check("{") {
			p.tok = start
			return p.unary()
		}

		node := p.tc.NewCast(p.cast(), ty)
		node.Tok = start
		return node
	}
	return p.unary()
}

// unary = ("+" | "-" | "*" | "&" | "!" | "~") cast
//
//	| ("++" | "--") unary
//	| "&&" ident
//	| postfix
func (p *Parser) unary() *ast.Node {
	tok := p.tok
	if tok.Kind != token.Punct {
		return p.postfix()
	}

	switch tok.Text {
	case "+":
		p.advance()
		return p.cast()
	case "-":
		p.advance()
		return ast.NewUnary(ast.Neg, p.cast(), tok)
	case "&":
		p.advance()
		lhs := p.cast()
		p.tc.AddType(lhs)
		if lhs.Type == ast.MemberAccess && lhs.Member.IsBitfield {
			util.Error(tok, "cannot take address of bitfield")
		}
		return ast.NewUnary(ast.AddressOf, lhs, tok)
	case "*":
		// Dereferencing a function is a no-op, so *f, **f and f are the same.
		p.advance()
		node := p.cast()
		p.tc.AddType(node)
		if node.Ty.Kind == ast.TyFunc {
			return node
		}
		return ast.NewUnary(ast.Indirection, node, tok)
	case "!":
		p.advance()
		return ast.NewUnary(ast.Not, p.cast(), tok)
	case "~":
		p.advance()
		return ast.NewUnary(ast.BitNot, p.cast(), tok)
	case "++":
		// ++i is i+=1
		p.advance()
		return p.toAssign(p.newAdd(p.unary(), ast.NewNumber(1, tok), tok))
	case "--":
		p.advance()
		return p.toAssign(p.newSub(p.unary(), ast.NewNumber(1, tok), tok))
	case "&&":
		// [GNU] labels as values
		p.advance()
		node := ast.NewNode(ast.LabelVal, tok)
		node.Label = p.getIdent(p.tok)
		p.gotos = append(p.gotos, node)
		p.advance()
		return node
	}
	return p.postfix()
}

// structRef builds node.name. Members of anonymous structs and unions are
// reached through the anonymous member, one access per level.
func (p *Parser) structRef(node *ast.Node, tok *token.Token) *ast.Node {
	p.tc.AddType(node)
	if !node.Ty.IsAggregate() {
		util.Error(node.Tok, "not a struct nor a union")
	}
	if node.Ty.Size < 0 {
		util.Error(node.Tok, "incomplete type")
	}

	ty := node.Ty
	for {
		mem := getStructMember(ty, tok)
		if mem == nil {
			util.Error(tok, "no such member")
		}
		node = ast.NewUnary(ast.MemberAccess, node, tok)
		node.Member = mem
		if mem.Name != nil {
			return node
		}
		ty = mem.Ty
	}
}

// newIncDec turns A++ into (typeof A)((A += 1) - 1).
func (p *Parser) newIncDec(node *ast.Node, tok *token.Token, addend int64) *ast.Node {
	p.tc.AddType(node)
	return p.tc.NewCast(
		p.newAdd(p.toAssign(p.newAdd(node, ast.NewNumber(addend, tok), tok)), ast.NewNumber(-addend, tok), tok),
		node.Ty)
}

// postfix = "(" type-name ")" "{" initializer-list "}"
//
//	| primary postfix-tail*
//
// postfix-tail = "[" expr "]"
//
//	| "(" func-args ")"
//	| "." ident
//	| "->" ident
//	| "++"
//	| "--"
func (p *Parser) postfix() *ast.Node {
	if p.check("(") && p.isTypename(p.tok.Next) {
		// compound literal
		start := p.tok
		p.advance()
		ty := p.typename()
		p.expect(")")

		if p.scope == p.globalScope {
			v := p.newAnonGVar(ty)
			p.gvarInitializer(v)
			return ast.NewVar(v, start)
		}

		v := p.newLVar("", ty)
		tok := p.tok
		lhs := p.lvarInitializer(v)
		return ast.NewBinary(ast.Comma, lhs, ast.NewVar(v, tok), start)
	}

	node := p.primary()

	for {
		tok := p.tok
		switch {
		case p.match("("):
			node = p.funcall(node)
		case p.match("["):
			// x[y] is *(x+y)
			idx := p.expr()
			p.expect("]")
			node = ast.NewUnary(ast.Indirection, p.newAdd(node, idx, tok), tok)
		case p.match("."):
			node = p.structRef(node, p.tok)
			p.advance()
		case p.match("->"):
			// x->y is (*x).y
			node = ast.NewUnary(ast.Indirection, node, tok)
			node = p.structRef(node, p.tok)
			p.advance()
		case p.match("++"):
			node = p.newIncDec(node, tok, 1)
		case p.match("--"):
			node = p.newIncDec(node, tok, -1)
		default:
			return node
		}
	}
}

// funcall = (assign ("," assign)*)? ")"
//
// The opening parenthesis has been consumed.
func (p *Parser) funcall(fn *ast.Node) *ast.Node {
	p.tc.AddType(fn)

	if fn.Ty.Kind != ast.TyFunc && (fn.Ty.Kind != ast.TyPtr || fn.Ty.Base.Kind != ast.TyFunc) {
		util.Error(fn.Tok, "not a function")
	}

	ty := fn.Ty
	if ty.Kind != ast.TyFunc {
		ty = ty.Base
	}

	var args []*ast.Node
	for !p.check(")") {
		if len(args) > 0 {
			p.expect(",")
		}
		arg := p.assign()
		p.tc.AddType(arg)

		i := len(args)
		switch {
		case i < len(ty.Params):
			if pty := ty.Params[i]; !pty.IsAggregate() {
				arg = p.tc.NewCast(arg, pty)
			}
		case !ty.Variadic:
			util.Error(p.tok, "too many arguments")
		case arg.Ty.Kind == ast.TyFloat:
			// Arguments without a parameter type are promoted.
			arg = p.tc.NewCast(arg, ast.TypeDouble)
		}
		args = append(args, arg)
	}

	if len(args) < len(ty.Params) {
		util.Error(p.tok, "too few arguments")
	}

	tok := p.tok
	p.expect(")")

	node := ast.NewUnary(ast.FuncCall, fn, tok)
	node.FuncTy = ty
	node.Ty = ty.ReturnTy
	node.Args = args

	// The caller allocates the space for a returned struct or union.
	if node.Ty.IsAggregate() {
		node.RetBuffer = p.newLVar("", node.Ty)
	}
	return node
}

// generic-selection = "(" assign "," generic-assoc ("," generic-assoc)* ")"
//
// generic-assoc = type-name ":" assign
//
//	| "default" ":" assign
func (p *Parser) genericSelection() *ast.Node {
	start := p.tok
	p.expect("(")

	ctrl := p.assign()
	p.tc.AddType(ctrl)

	t1 := ctrl.Ty
	switch t1.Kind {
	case ast.TyFunc:
		t1 = ast.PointerTo(t1)
	case ast.TyArray:
		t1 = ast.PointerTo(t1.Base)
	}

	var ret *ast.Node
	for !p.match(")") {
		p.expect(",")

		if p.match("default") {
			p.expect(":")
			node := p.assign()
			if ret == nil {
				ret = node
			}
			continue
		}

		t2 := p.typename()
		p.expect(":")
		node := p.assign()
		if typeChecker.IsCompatible(t1, t2) {
			ret = node
		}
	}

	if ret == nil {
		util.Error(start, "controlling expression type not compatible with any generic association type")
	}
	return ret
}

// typenameArg reads "(" type-name ")" when the cursor is on such a
// parenthesized type, as after sizeof and _Alignof.
func (p *Parser) typenameArg() *ast.Type {
	if !p.check("(") || !p.isTypename(p.tok.Next) {
		return nil
	}
	p.advance()
	ty := p.typename()
	p.expect(")")
	return ty
}

// primary = "(" "{" stmt+ "}" ")"
//
//	| "(" expr ")"
//	| "sizeof" "(" type-name ")"
//	| "sizeof" unary
//	| "_Alignof" "(" type-name ")"
//	| "_Alignof" unary
//	| "_Generic" generic-selection
//	| "__builtin_types_compatible_p" "(" type-name, type-name, ")"
//	| "__builtin_reg_class" "(" type-name ")"
//	| "__builtin_compare_and_swap" "(" assign "," assign "," assign ")"
//	| "__builtin_atomic_exchange" "(" assign "," assign ")"
//	| ident
//	| str
//	| num
func (p *Parser) primary() *ast.Node {
	start := p.tok

	switch {
	case p.check("(") && p.peekIs("{"):
		// [GNU] statement expression
		node := ast.NewNode(ast.StmtExpr, start)
		p.advance()
		p.advance()
		node.Body = p.compoundStmt().Body
		p.expect(")")
		return node

	case p.check("("):
		p.advance()
		node := p.expr()
		p.expect(")")
		return node

	case p.check("sizeof"):
		p.advance()
		if ty := p.typenameArg(); ty != nil {
			if ty.Kind == ast.TyVLA {
				if ty.VLASize != nil {
					return ast.NewVar(ty.VLASize, start)
				}
				lhs := p.computeVLASize(ty, start)
				return ast.NewBinary(ast.Comma, lhs, ast.NewVar(ty.VLASize, start), start)
			}
			return ast.NewULong(ty.Size, start)
		}
		node := p.unary()
		p.tc.AddType(node)
		if node.Ty.Kind == ast.TyVLA {
			return ast.NewVar(node.Ty.VLASize, start)
		}
		return ast.NewULong(node.Ty.Size, start)

	case p.check("_Alignof") || p.check("__alignof__"):
		p.advance()
		if ty := p.typenameArg(); ty != nil {
			return ast.NewULong(ty.Align, start)
		}
		node := p.unary()
		p.tc.AddType(node)
		return ast.NewULong(node.Ty.Align, start)

	case p.check("_Generic"):
		p.advance()
		return p.genericSelection()

	case p.check("__builtin_types_compatible_p"):
		p.advance()
		p.expect("(")
		t1 := p.typename()
		p.expect(",")
		t2 := p.typename()
		p.expect(")")
		if typeChecker.IsCompatible(t1, t2) {
			return ast.NewNumber(1, start)
		}
		return ast.NewNumber(0, start)

	case p.check("__builtin_reg_class"):
		p.advance()
		p.expect("(")
		ty := p.typename()
		p.expect(")")
		switch {
		case ty.IsInteger() || ty.Kind == ast.TyPtr:
			return ast.NewNumber(0, start)
		case ty.IsFlonum():
			return ast.NewNumber(1, start)
		}
		return ast.NewNumber(2, start)

	case p.check("__builtin_compare_and_swap"):
		node := ast.NewNode(ast.CAS, start)
		p.advance()
		p.expect("(")
		node.CasAddr = p.assign()
		p.expect(",")
		node.CasOld = p.assign()
		p.expect(",")
		node.CasNew = p.assign()
		p.expect(")")
		return node

	case p.check("__builtin_atomic_exchange"):
		node := ast.NewNode(ast.Exch, start)
		p.advance()
		p.expect("(")
		node.Lhs = p.assign()
		p.expect(",")
		node.Rhs = p.assign()
		p.expect(")")
		return node
	}

	switch start.Kind {
	case token.Ident:
		// variable or enum constant
		vs := p.findVar(start)
		p.advance()

		// A static inline function is emitted only if something live
		// refers to it.
		if vs != nil && vs.v != nil && vs.v.IsFunction {
			if p.currentFn != nil {
				p.currentFn.Refs = append(p.currentFn.Refs, vs.v.Name)
			} else {
				vs.v.IsRoot = true
			}
		}

		if vs != nil {
			if vs.v != nil {
				return ast.NewVar(vs.v, start)
			}
			if vs.enumTy != nil {
				return ast.NewNumber(vs.enumVal, start)
			}
		}

		if p.check("(") {
			util.Error(start, "implicit declaration of a function")
		}
		util.Error(start, "undefined variable")

	case token.Str:
		v := p.newStringLiteral(start.Str, strType(start))
		p.advance()
		return ast.NewVar(v, start)

	case token.Num:
		node := ast.NewNode(ast.Number, start)
		if start.Lit.IsFloat() {
			node.FVal = start.FVal
		} else {
			node.Val = start.Val
		}
		node.Ty = litType(start.Lit)
		p.advance()
		return node
	}

	util.Error(start, "expected an expression")
	return nil
}
