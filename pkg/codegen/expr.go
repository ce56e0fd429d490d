package codegen

import (
	"encoding/binary"
	"math"

	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/util"
)

func regDX(sz int64) string {
	switch sz {
	case 1:
		return "%dl"
	case 2:
		return "%dx"
	case 4:
		return "%edx"
	case 8:
		return "%rdx"
	}
	util.Unreachable()
	return ""
}

func regAX(sz int64) string {
	switch sz {
	case 1:
		return "%al"
	case 2:
		return "%ax"
	case 4:
		return "%eax"
	case 8:
		return "%rax"
	}
	util.Unreachable()
	return ""
}

// genAddr computes the address of an lvalue into %rax.
func (b *x86Backend) genAddr(node *ast.Node) {
	switch node.Type {
	case ast.Var:
		v := node.Var
		// A VLA variable holds a pointer to its storage.
		if v.Ty.Kind == ast.TyVLA {
			b.emit("  mov %d(%%rbp), %%rax", v.Offset)
			return
		}
		if v.IsLocal {
			b.emit("  lea %d(%%rbp), %%rax", v.Offset)
			return
		}

		name := v.Label()
		if b.cfg.IsFeatureEnabled(config.FeatPIC) {
			if v.IsTLS {
				b.emit("  data16 lea %s@tlsgd(%%rip), %%rdi", name)
				b.emit("  .value 0x6666")
				b.emit("  rex64")
				b.emit("  call __tls_get_addr@PLT")
				return
			}
			b.emit("  mov %s@GOTPCREL(%%rip), %%rax", name)
			return
		}

		if v.IsTLS {
			b.emit("  mov %%fs:0, %%rax")
			b.emit("  add $%s@tpoff, %%rax", name)
			return
		}

		// A function defined elsewhere may live in a shared object, so its
		// address comes from the GOT.
		if node.Ty.Kind == ast.TyFunc {
			if v.IsDefinition {
				b.emit("  lea %s(%%rip), %%rax", name)
			} else {
				b.emit("  mov %s@GOTPCREL(%%rip), %%rax", name)
			}
			return
		}

		b.emit("  lea %s(%%rip), %%rax", name)
		return
	case ast.Indirection:
		b.genExpr(node.Lhs)
		return
	case ast.Comma:
		b.genExpr(node.Lhs)
		b.genAddr(node.Rhs)
		return
	case ast.MemberAccess:
		b.genAddr(node.Lhs)
		b.emit("  add $%d, %%rax", node.Member.Offset)
		return
	case ast.FuncCall:
		if node.RetBuffer != nil {
			b.genExpr(node)
			return
		}
	case ast.Assign, ast.Ternary:
		if node.Ty.IsAggregate() {
			b.genExpr(node)
			return
		}
	case ast.VLAPtr:
		b.emit("  lea %d(%%rbp), %%rax", node.Var.Offset)
		return
	}

	util.Error(node.Tok, "not an lvalue")
}

// load replaces the address in %rax with the value it points at. Arrays,
// structs and functions stay addresses: that is where an array decays to
// a pointer. Small integers are extended to 32 bits so the low half of
// %rax always holds a valid int.
func (b *x86Backend) load(ty *ast.Type) {
	switch ty.Kind {
	case ast.TyArray, ast.TyStruct, ast.TyUnion, ast.TyFunc, ast.TyVLA:
		return
	case ast.TyFloat:
		b.emit("  movss (%%rax), %%xmm0")
		return
	case ast.TyDouble:
		b.emit("  movsd (%%rax), %%xmm0")
		return
	case ast.TyLDouble:
		b.emit("  fldt (%%rax)")
		return
	}

	insn := "movs"
	if ty.Unsigned {
		insn = "movz"
	}

	switch ty.Size {
	case 1:
		b.emit("  %sbl (%%rax), %%eax", insn)
	case 2:
		b.emit("  %swl (%%rax), %%eax", insn)
	case 4:
		b.emit("  movsxd (%%rax), %%rax")
	default:
		b.emit("  mov (%%rax), %%rax")
	}
}

// store writes the value in %rax to the address on top of the stack.
func (b *x86Backend) store(ty *ast.Type) {
	b.pop("%rdi")

	switch ty.Kind {
	case ast.TyStruct, ast.TyUnion:
		for i := int64(0); i < ty.Size; i++ {
			b.emit("  mov %d(%%rax), %%r8b", i)
			b.emit("  mov %%r8b, %d(%%rdi)", i)
		}
		return
	case ast.TyFloat:
		b.emit("  movss %%xmm0, (%%rdi)")
		return
	case ast.TyDouble:
		b.emit("  movsd %%xmm0, (%%rdi)")
		return
	case ast.TyLDouble:
		b.emit("  fstpt (%%rdi)")
		return
	}

	switch ty.Size {
	case 1:
		b.emit("  mov %%al, (%%rdi)")
	case 2:
		b.emit("  mov %%ax, (%%rdi)")
	case 4:
		b.emit("  mov %%eax, (%%rdi)")
	default:
		b.emit("  mov %%rax, (%%rdi)")
	}
}

func (b *x86Backend) cmpZero(ty *ast.Type) {
	switch ty.Kind {
	case ast.TyFloat:
		b.emit("  xorps %%xmm1, %%xmm1")
		b.emit("  ucomiss %%xmm1, %%xmm0")
		return
	case ast.TyDouble:
		b.emit("  xorpd %%xmm1, %%xmm1")
		b.emit("  ucomisd %%xmm1, %%xmm0")
		return
	case ast.TyLDouble:
		b.emit("  fldz")
		b.emit("  fucomip")
		b.emit("  fstp %%st(0)")
		return
	}

	if ty.IsInteger() && ty.Size <= 4 {
		b.emit("  cmp $0, %%eax")
	} else {
		b.emit("  cmp $0, %%rax")
	}
}

func (b *x86Backend) genNumber(node *ast.Node) {
	switch node.Ty.Kind {
	case ast.TyFloat:
		b.emit("  mov $%d, %%eax  # float %g", math.Float32bits(float32(node.FVal)), node.FVal)
		b.emit("  movq %%rax, %%xmm0")
		return
	case ast.TyDouble:
		b.emit("  mov $%d, %%rax  # double %g", math.Float64bits(node.FVal), node.FVal)
		b.emit("  movq %%rax, %%xmm0")
		return
	case ast.TyLDouble:
		var buf [16]byte
		util.PutFloat80(buf[:], node.FVal)
		b.emit("  mov $%d, %%rax  # long double %g", binary.LittleEndian.Uint64(buf[:8]), node.FVal)
		b.emit("  mov %%rax, -16(%%rsp)")
		b.emit("  mov $%d, %%rax", binary.LittleEndian.Uint64(buf[8:]))
		b.emit("  mov %%rax, -8(%%rsp)")
		b.emit("  fldt -16(%%rsp)")
		return
	}
	b.emit("  mov $%d, %%rax", node.Val)
}

// genExpr evaluates an expression into %rax, %xmm0 or st(0).
func (b *x86Backend) genExpr(node *ast.Node) {
	b.loc(node.Tok)

	switch node.Type {
	case ast.NullExpr:
		return
	case ast.Number:
		b.genNumber(node)
		return
	case ast.Neg:
		b.genExpr(node.Lhs)
		switch node.Ty.Kind {
		case ast.TyFloat:
			b.emit("  mov $1, %%rax")
			b.emit("  shl $31, %%rax")
			b.emit("  movq %%rax, %%xmm1")
			b.emit("  xorps %%xmm1, %%xmm0")
		case ast.TyDouble:
			b.emit("  mov $1, %%rax")
			b.emit("  shl $63, %%rax")
			b.emit("  movq %%rax, %%xmm1")
			b.emit("  xorpd %%xmm1, %%xmm0")
		case ast.TyLDouble:
			b.emit("  fchs")
		default:
			b.emit("  neg %%rax")
		}
		return
	case ast.Var:
		b.genAddr(node)
		b.load(node.Ty)
		return
	case ast.MemberAccess:
		b.genAddr(node)
		b.load(node.Ty)

		mem := node.Member
		if mem.IsBitfield {
			b.emit("  shl $%d, %%rax", 64-mem.BitWidth-mem.BitOffset)
			if mem.Ty.Unsigned {
				b.emit("  shr $%d, %%rax", 64-mem.BitWidth)
			} else {
				b.emit("  sar $%d, %%rax", 64-mem.BitWidth)
			}
		}
		return
	case ast.Indirection:
		b.genExpr(node.Lhs)
		b.load(node.Ty)
		return
	case ast.AddressOf:
		b.genAddr(node.Lhs)
		return
	case ast.Assign:
		b.genAddr(node.Lhs)
		b.push()
		b.genExpr(node.Rhs)

		if node.Lhs.Type == ast.MemberAccess && node.Lhs.Member.IsBitfield {
			// Merge the new value into the word holding the bit-field.
			mem := node.Lhs.Member
			b.emit("  mov %%rax, %%r8")
			b.emit("  mov %%rax, %%rdi")
			b.emit("  movabs $%d, %%r9", int64(1)<<mem.BitWidth-1)
			b.emit("  and %%r9, %%rdi")
			b.emit("  shl $%d, %%rdi", mem.BitOffset)

			b.emit("  mov (%%rsp), %%rax")
			b.load(mem.Ty)

			mask := (int64(1)<<mem.BitWidth - 1) << mem.BitOffset
			b.emit("  mov $%d, %%r9", ^mask)
			b.emit("  and %%r9, %%rax")
			b.emit("  or %%rdi, %%rax")
			b.store(node.Ty)
			b.emit("  mov %%r8, %%rax")
			return
		}

		b.store(node.Ty)
		return
	case ast.StmtExpr:
		for _, n := range node.Body {
			b.genStmt(n)
		}
		return
	case ast.Comma:
		b.genExpr(node.Lhs)
		b.genExpr(node.Rhs)
		return
	case ast.TypeCast:
		b.genExpr(node.Lhs)
		b.castNumber(node.Lhs.Ty, node.Ty)
		return
	case ast.MemZero:
		// rep stosb is memset(%rdi, %al, %rcx).
		b.emit("  mov $%d, %%rcx", node.Var.Ty.Size)
		b.emit("  lea %d(%%rbp), %%rdi", node.Var.Offset)
		b.emit("  mov $0, %%al")
		b.emit("  rep stosb")
		return
	case ast.Ternary:
		c := b.nextCount()
		b.genExpr(node.Cond)
		b.cmpZero(node.Cond.Ty)
		b.emit("  je .L.else.%d", c)
		b.genExpr(node.Then)
		b.emit("  jmp .L.end.%d", c)
		b.emit(".L.else.%d:", c)
		b.genExpr(node.Els)
		b.emit(".L.end.%d:", c)
		return
	case ast.Not:
		b.genExpr(node.Lhs)
		b.cmpZero(node.Lhs.Ty)
		b.emit("  sete %%al")
		b.emit("  movzx %%al, %%rax")
		return
	case ast.BitNot:
		b.genExpr(node.Lhs)
		b.emit("  not %%rax")
		return
	case ast.LogAnd:
		c := b.nextCount()
		b.genExpr(node.Lhs)
		b.cmpZero(node.Lhs.Ty)
		b.emit("  je .L.false.%d", c)
		b.genExpr(node.Rhs)
		b.cmpZero(node.Rhs.Ty)
		b.emit("  je .L.false.%d", c)
		b.emit("  mov $1, %%rax")
		b.emit("  jmp .L.end.%d", c)
		b.emit(".L.false.%d:", c)
		b.emit("  mov $0, %%rax")
		b.emit(".L.end.%d:", c)
		return
	case ast.LogOr:
		c := b.nextCount()
		b.genExpr(node.Lhs)
		b.cmpZero(node.Lhs.Ty)
		b.emit("  jne .L.true.%d", c)
		b.genExpr(node.Rhs)
		b.cmpZero(node.Rhs.Ty)
		b.emit("  jne .L.true.%d", c)
		b.emit("  mov $0, %%rax")
		b.emit("  jmp .L.end.%d", c)
		b.emit(".L.true.%d:", c)
		b.emit("  mov $1, %%rax")
		b.emit(".L.end.%d:", c)
		return
	case ast.FuncCall:
		b.genCall(node)
		return
	case ast.LabelVal:
		b.emit("  lea %s(%%rip), %%rax", node.UniqueLabel)
		return
	case ast.CAS:
		b.genExpr(node.CasAddr)
		b.push()
		b.genExpr(node.CasNew)
		sz := node.CasAddr.Ty.Base.Size
		if node.CasNew.Ty.IsFlonum() {
			// cmpxchg compares bit patterns in integer registers.
			b.emit("  movq %%xmm0, %%rax")
		}
		b.push()
		b.genExpr(node.CasOld)
		b.emit("  mov %%rax, %%r8")
		if node.CasOld.Ty.Base.IsFlonum() {
			b.emit("  mov (%%rax), %s", regAX(sz))
		} else {
			b.load(node.CasOld.Ty.Base)
		}
		b.pop("%rdx") // new
		b.pop("%rdi") // addr

		b.emit("  lock cmpxchg %s, (%%rdi)", regDX(sz))
		b.emit("  sete %%cl")
		b.emit("  je 1f")
		b.emit("  mov %s, (%%r8)", regAX(sz))
		b.emit("1:")
		b.emit("  movzbl %%cl, %%eax")
		return
	case ast.Exch:
		b.genExpr(node.Lhs)
		b.push()
		b.genExpr(node.Rhs)
		b.pop("%rdi")
		b.emit("  xchg %s, (%%rdi)", regAX(node.Lhs.Ty.Base.Size))
		return
	}

	switch node.Lhs.Ty.Kind {
	case ast.TyFloat, ast.TyDouble:
		b.genFloatBinary(node)
		return
	case ast.TyLDouble:
		b.genLDoubleBinary(node)
		return
	}

	b.genExpr(node.Rhs)
	b.push()
	b.genExpr(node.Lhs)
	b.pop("%rdi")

	ax, di, dx := "%eax", "%edi", "%edx"
	if node.Lhs.Ty.Kind == ast.TyLong || node.Lhs.Ty.Base != nil {
		ax, di, dx = "%rax", "%rdi", "%rdx"
	}

	switch node.Type {
	case ast.Add:
		b.emit("  add %s, %s", di, ax)
	case ast.Sub:
		b.emit("  sub %s, %s", di, ax)
	case ast.Mul:
		b.emit("  imul %s, %s", di, ax)
	case ast.Div, ast.Mod:
		if node.Ty.Unsigned {
			b.emit("  mov $0, %s", dx)
			b.emit("  div %s", di)
		} else {
			if node.Lhs.Ty.Size == 8 {
				b.emit("  cqo")
			} else {
				b.emit("  cdq")
			}
			b.emit("  idiv %s", di)
		}
		if node.Type == ast.Mod {
			b.emit("  mov %%rdx, %%rax")
		}
	case ast.BitAnd:
		b.emit("  and %s, %s", di, ax)
	case ast.BitOr:
		b.emit("  or %s, %s", di, ax)
	case ast.BitXor:
		b.emit("  xor %s, %s", di, ax)
	case ast.Eq, ast.Ne, ast.Lt, ast.Le:
		b.emit("  cmp %s, %s", di, ax)
		switch {
		case node.Type == ast.Eq:
			b.emit("  sete %%al")
		case node.Type == ast.Ne:
			b.emit("  setne %%al")
		case node.Type == ast.Lt && node.Lhs.Ty.Unsigned:
			b.emit("  setb %%al")
		case node.Type == ast.Lt:
			b.emit("  setl %%al")
		case node.Lhs.Ty.Unsigned:
			b.emit("  setbe %%al")
		default:
			b.emit("  setle %%al")
		}
		b.emit("  movzb %%al, %%rax")
	case ast.Shl:
		b.emit("  mov %%rdi, %%rcx")
		b.emit("  shl %%cl, %s", ax)
	case ast.Shr:
		b.emit("  mov %%rdi, %%rcx")
		if node.Lhs.Ty.Unsigned {
			b.emit("  shr %%cl, %s", ax)
		} else {
			b.emit("  sar %%cl, %s", ax)
		}
	default:
		util.Error(node.Tok, "invalid expression")
	}
}

// genFloatBinary evaluates a binary operator on float or double operands
// with SSE instructions. The comparisons are written with the operands
// swapped so that an unordered result (NaN) reads as false.
func (b *x86Backend) genFloatBinary(node *ast.Node) {
	b.genExpr(node.Rhs)
	b.pushf()
	b.genExpr(node.Lhs)
	b.popf(1)

	sz := "sd"
	if node.Lhs.Ty.Kind == ast.TyFloat {
		sz = "ss"
	}

	switch node.Type {
	case ast.Add:
		b.emit("  add%s %%xmm1, %%xmm0", sz)
	case ast.Sub:
		b.emit("  sub%s %%xmm1, %%xmm0", sz)
	case ast.Mul:
		b.emit("  mul%s %%xmm1, %%xmm0", sz)
	case ast.Div:
		b.emit("  div%s %%xmm1, %%xmm0", sz)
	case ast.Eq, ast.Ne, ast.Lt, ast.Le:
		b.emit("  ucomi%s %%xmm0, %%xmm1", sz)
		switch node.Type {
		case ast.Eq:
			b.emit("  sete %%al")
			b.emit("  setnp %%dl")
			b.emit("  and %%dl, %%al")
		case ast.Ne:
			b.emit("  setne %%al")
			b.emit("  setp %%dl")
			b.emit("  or %%dl, %%al")
		case ast.Lt:
			b.emit("  seta %%al")
		default:
			b.emit("  setae %%al")
		}
		b.emit("  and $1, %%al")
		b.emit("  movzb %%al, %%rax")
	default:
		util.Error(node.Tok, "invalid expression")
	}
}

func (b *x86Backend) genLDoubleBinary(node *ast.Node) {
	b.genExpr(node.Lhs)
	b.genExpr(node.Rhs)

	switch node.Type {
	case ast.Add:
		b.emit("  faddp")
	case ast.Sub:
		b.emit("  fsubrp")
	case ast.Mul:
		b.emit("  fmulp")
	case ast.Div:
		b.emit("  fdivrp")
	case ast.Eq, ast.Ne, ast.Lt, ast.Le:
		b.emit("  fcomip")
		b.emit("  fstp %%st(0)")
		switch node.Type {
		case ast.Eq:
			b.emit("  sete %%al")
		case ast.Ne:
			b.emit("  setne %%al")
		case ast.Lt:
			b.emit("  seta %%al")
		default:
			b.emit("  setae %%al")
		}
		b.emit("  movzb %%al, %%rax")
	default:
		util.Error(node.Tok, "invalid expression")
	}
}

func (b *x86Backend) genCall(node *ast.Node) {
	if node.Lhs.Type == ast.Var && node.Lhs.Var.Name == "alloca" {
		b.genExpr(node.Args[0])
		b.emit("  mov %%rax, %%rdi")
		b.builtinAlloca()
		return
	}

	stackArgs := b.pushArgs(node)
	b.genExpr(node.Lhs)

	gp, fp := 0, 0

	if node.RetBuffer != nil && node.Ty.Size > 16 {
		b.pop(argReg64[gp])
		gp++
	}

	for _, arg := range node.Args {
		ty := arg.Ty
		switch ty.Kind {
		case ast.TyStruct, ast.TyUnion:
			if ty.Size > 16 {
				continue
			}
			fp1, fp2 := hasFlonum1(ty), hasFlonum2(ty)
			if fp+b2i(fp1)+b2i(fp2) >= fpMax || gp+b2i(!fp1)+b2i(!fp2) >= gpMax {
				continue
			}
			if fp1 {
				b.popf(fp)
				fp++
			} else {
				b.pop(argReg64[gp])
				gp++
			}
			if ty.Size > 8 {
				if fp2 {
					b.popf(fp)
					fp++
				} else {
					b.pop(argReg64[gp])
					gp++
				}
			}
		case ast.TyFloat, ast.TyDouble:
			if fp < fpMax {
				b.popf(fp)
				fp++
			}
		case ast.TyLDouble:
		default:
			if gp < gpMax {
				b.pop(argReg64[gp])
				gp++
			}
		}
	}

	// %al carries the number of vector registers used, for variadic callees.
	b.emit("  mov %%rax, %%r10")
	b.emit("  mov $%d, %%rax", fp)
	b.emit("  call *%%r10")
	b.emit("  add $%d, %%rsp", stackArgs*8)

	b.depth -= stackArgs

	// The upper bits of %rax are unspecified for narrow return types.
	switch node.Ty.Kind {
	case ast.TyBool:
		b.emit("  movzx %%al, %%eax")
		return
	case ast.TyChar:
		if node.Ty.Unsigned {
			b.emit("  movzbl %%al, %%eax")
		} else {
			b.emit("  movsbl %%al, %%eax")
		}
		return
	case ast.TyShort:
		if node.Ty.Unsigned {
			b.emit("  movzwl %%ax, %%eax")
		} else {
			b.emit("  movswl %%ax, %%eax")
		}
		return
	}

	// A small struct comes back in registers and is stored to the buffer.
	if node.RetBuffer != nil && node.Ty.Size <= 16 {
		b.copyRetBuffer(node.RetBuffer)
		b.emit("  lea %d(%%rbp), %%rax", node.RetBuffer.Offset)
	}
}
