package codegen

import (
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/util"
	"modernc.org/mathutil"
)

// Structs and unions of up to 16 bytes travel in up to two registers, one
// per eightbyte. An eightbyte made only of float or double members goes in
// an XMM register, anything else in a general-purpose register.
//
// hasFlonum reports whether every scalar of ty that falls in the byte range
// [lo, hi) is a float or a double.
func hasFlonum(ty *ast.Type, lo, hi, offset int64) bool {
	switch ty.Kind {
	case ast.TyStruct, ast.TyUnion:
		for _, m := range ty.Members {
			if !hasFlonum(m.Ty, lo, hi, offset+m.Offset) {
				return false
			}
		}
		return true
	case ast.TyArray:
		for i := int64(0); i < ty.ArrayLen; i++ {
			if !hasFlonum(ty.Base, lo, hi, offset+ty.Base.Size*i) {
				return false
			}
		}
		return true
	}
	return offset < lo || hi <= offset || ty.Kind == ast.TyFloat || ty.Kind == ast.TyDouble
}

func hasFlonum1(ty *ast.Type) bool { return hasFlonum(ty, 0, 8, 0) }
func hasFlonum2(ty *ast.Type) bool { return hasFlonum(ty, 8, 16, 0) }

func (b *x86Backend) push() {
	b.emit("  push %%rax")
	b.depth++
}

func (b *x86Backend) pop(reg string) {
	b.emit("  pop %s", reg)
	b.depth--
}

func (b *x86Backend) pushf() {
	b.emit("  sub $8, %%rsp")
	b.emit("  movsd %%xmm0, (%%rsp)")
	b.depth++
}

func (b *x86Backend) popf(reg int) {
	b.emit("  movsd (%%rsp), %%xmm%d", reg)
	b.emit("  add $8, %%rsp")
	b.depth--
}

func (b *x86Backend) pushStruct(ty *ast.Type) {
	sz := util.AlignTo(ty.Size, 8)
	b.emit("  sub $%d, %%rsp", sz)
	b.depth += int(sz / 8)

	for i := int64(0); i < ty.Size; i++ {
		b.emit("  mov %d(%%rax), %%r10b", i)
		b.emit("  mov %%r10b, %d(%%rsp)", i)
	}
}

// pushArgs2 pushes arguments right to left. The first pass handles the
// arguments that go on the stack so that they end up below the ones that
// are popped into registers.
func (b *x86Backend) pushArgs2(args []*ast.Node, firstPass bool) {
	for i := len(args) - 1; i >= 0; i-- {
		arg := args[i]
		if firstPass != arg.PassByStack {
			continue
		}

		b.genExpr(arg)

		switch arg.Ty.Kind {
		case ast.TyStruct, ast.TyUnion:
			b.pushStruct(arg.Ty)
		case ast.TyFloat, ast.TyDouble:
			b.pushf()
		case ast.TyLDouble:
			b.emit("  sub $16, %%rsp")
			b.emit("  fstpt (%%rsp)")
			b.depth += 2
		default:
			b.push()
		}
	}
}

// pushArgs evaluates the arguments of a call onto the stack and returns
// how many eightbytes stay there for the callee. Up to six integer
// arguments go in RDI, RSI, RDX, RCX, R8 and R9, and up to eight floating
// point ones in XMM0 to XMM7. The stack part must end 16-byte aligned.
func (b *x86Backend) pushArgs(node *ast.Node) int {
	stack, gp, fp := 0, 0, 0

	// A large struct return value is written through a hidden pointer,
	// passed as if it were the first argument.
	if node.RetBuffer != nil && node.Ty.Size > 16 {
		gp++
	}

	for _, arg := range node.Args {
		ty := arg.Ty
		switch ty.Kind {
		case ast.TyStruct, ast.TyUnion:
			if ty.Size > 16 {
				arg.PassByStack = true
				stack += int(util.AlignTo(ty.Size, 8) / 8)
				continue
			}
			fp1, fp2 := hasFlonum1(ty), hasFlonum2(ty)
			if fp+b2i(fp1)+b2i(fp2) < fpMax && gp+b2i(!fp1)+b2i(!fp2) < gpMax {
				fp += b2i(fp1) + b2i(fp2)
				gp += b2i(!fp1) + b2i(!fp2)
			} else {
				arg.PassByStack = true
				stack += int(util.AlignTo(ty.Size, 8) / 8)
			}
		case ast.TyFloat, ast.TyDouble:
			if fp >= fpMax {
				arg.PassByStack = true
				stack++
			}
			fp++
		case ast.TyLDouble:
			arg.PassByStack = true
			stack += 2
		default:
			if gp >= gpMax {
				arg.PassByStack = true
				stack++
			}
			gp++
		}
	}

	if (b.depth+stack)%2 == 1 {
		b.emit("  sub $8, %%rsp")
		b.depth++
		stack++
	}

	b.pushArgs2(node.Args, true)
	b.pushArgs2(node.Args, false)

	if node.RetBuffer != nil && node.Ty.Size > 16 {
		b.emit("  lea %d(%%rbp), %%rax", node.RetBuffer.Offset)
		b.push()
	}
	return stack
}

// copyRetBuffer stores a small struct returned in registers into the
// caller's buffer.
func (b *x86Backend) copyRetBuffer(v *ast.Obj) {
	ty := v.Ty
	gp, fp := 0, 0

	if hasFlonum1(ty) {
		if ty.Size == 4 {
			b.emit("  movss %%xmm0, %d(%%rbp)", v.Offset)
		} else {
			b.emit("  movsd %%xmm0, %d(%%rbp)", v.Offset)
		}
		fp++
	} else {
		for i := int64(0); i < mathutil.MinInt64(8, ty.Size); i++ {
			b.emit("  mov %%al, %d(%%rbp)", v.Offset+i)
			b.emit("  shr $8, %%rax")
		}
		gp++
	}

	if ty.Size <= 8 {
		return
	}
	if hasFlonum2(ty) {
		if ty.Size == 12 {
			b.emit("  movss %%xmm%d, %d(%%rbp)", fp, v.Offset+8)
		} else {
			b.emit("  movsd %%xmm%d, %d(%%rbp)", fp, v.Offset+8)
		}
		return
	}
	reg8, reg64 := "%al", "%rax"
	if gp > 0 {
		reg8, reg64 = "%dl", "%rdx"
	}
	for i := int64(8); i < mathutil.MinInt64(16, ty.Size); i++ {
		b.emit("  mov %s, %d(%%rbp)", reg8, v.Offset+i)
		b.emit("  shr $8, %s", reg64)
	}
}

// copyStructReg loads the struct %rax points at into the return registers.
func (b *x86Backend) copyStructReg() {
	ty := b.fn.Ty.ReturnTy
	gp, fp := 0, 0

	b.emit("  mov %%rax, %%rdi")

	if hasFlonum1(ty) {
		if ty.Size == 4 {
			b.emit("  movss (%%rdi), %%xmm0")
		} else {
			b.emit("  movsd (%%rdi), %%xmm0")
		}
		fp++
	} else {
		b.emit("  mov $0, %%rax")
		for i := mathutil.MinInt64(8, ty.Size) - 1; i >= 0; i-- {
			b.emit("  shl $8, %%rax")
			b.emit("  mov %d(%%rdi), %%al", i)
		}
		gp++
	}

	if ty.Size <= 8 {
		return
	}
	if hasFlonum2(ty) {
		if ty.Size == 12 {
			b.emit("  movss 8(%%rdi), %%xmm%d", fp)
		} else {
			b.emit("  movsd 8(%%rdi), %%xmm%d", fp)
		}
		return
	}
	reg8, reg64 := "%al", "%rax"
	if gp > 0 {
		reg8, reg64 = "%dl", "%rdx"
	}
	b.emit("  mov $0, %s", reg64)
	for i := mathutil.MinInt64(16, ty.Size) - 1; i >= 8; i-- {
		b.emit("  shl $8, %s", reg64)
		b.emit("  mov %d(%%rdi), %s", i, reg8)
	}
}

// copyStructMem copies the struct %rax points at into the buffer the
// caller passed as the hidden first parameter.
func (b *x86Backend) copyStructMem() {
	ty := b.fn.Ty.ReturnTy
	v := b.fn.Params[0]

	b.emit("  mov %d(%%rbp), %%rdi", v.Offset)
	for i := int64(0); i < ty.Size; i++ {
		b.emit("  mov %d(%%rax), %%dl", i)
		b.emit("  mov %%dl, %d(%%rdi)", i)
	}
}

// builtinAlloca grows the frame by %rdi bytes rounded up to 16. Values
// pushed since the last allocation sit below the old bottom, so they are
// moved down first.
func (b *x86Backend) builtinAlloca() {
	bottom := b.fn.AllocaBottom.Offset

	b.emit("  add $15, %%rdi")
	b.emit("  and $0xfffffff0, %%edi")

	b.emit("  mov %d(%%rbp), %%rcx", bottom)
	b.emit("  sub %%rsp, %%rcx")
	b.emit("  mov %%rsp, %%rax")
	b.emit("  sub %%rdi, %%rsp")
	b.emit("  mov %%rsp, %%rdx")
	b.emit("1:")
	b.emit("  cmp $0, %%rcx")
	b.emit("  je 2f")
	b.emit("  mov (%%rax), %%r8b")
	b.emit("  mov %%r8b, (%%rdx)")
	b.emit("  inc %%rdx")
	b.emit("  inc %%rax")
	b.emit("  dec %%rcx")
	b.emit("  jmp 1b")
	b.emit("2:")

	b.emit("  mov %d(%%rbp), %%rax", bottom)
	b.emit("  sub %%rdi, %%rax")
	b.emit("  mov %%rax, %d(%%rbp)", bottom)
}
