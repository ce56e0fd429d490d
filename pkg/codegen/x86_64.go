package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/token"
	"github.com/xplshn/chibicc/pkg/util"
	"modernc.org/mathutil"
)

const (
	gpMax = 6
	fpMax = 8
)

var (
	argReg8  = [gpMax]string{"%dil", "%sil", "%dl", "%cl", "%r8b", "%r9b"}
	argReg16 = [gpMax]string{"%di", "%si", "%dx", "%cx", "%r8w", "%r9w"}
	argReg32 = [gpMax]string{"%edi", "%esi", "%edx", "%ecx", "%r8d", "%r9d"}
	argReg64 = [gpMax]string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}
)

// x86Backend emits AT&T syntax assembly for x86-64 System V. Expressions
// are evaluated into %rax, %xmm0 or the x87 stack top; intermediate values
// live on the machine stack.
type x86Backend struct {
	out *bytes.Buffer
	cfg *config.Config
	fn  *ast.Obj

	// depth counts eightbytes pushed, to keep calls 16-byte aligned.
	depth int
	count int
}

func NewX86Backend() Backend { return &x86Backend{} }

func (b *x86Backend) Generate(prog *ast.Program, cfg *config.Config) (buf *bytes.Buffer, err error) {
	defer util.Recover(&err)

	if cfg == nil {
		cfg = config.NewConfig()
	}
	b.out, b.cfg = &bytes.Buffer{}, cfg
	b.depth, b.count = 0, 0

	for _, f := range prog.Files {
		b.emit("  .file %d %q", f.FileNo, f.Name)
	}

	b.assignLVarOffsets(prog)
	b.emitData(prog)
	b.emitText(prog)
	return b.out, nil
}

func (b *x86Backend) emit(format string, args ...any) {
	fmt.Fprintf(b.out, format, args...)
	b.out.WriteByte('\n')
}

func (b *x86Backend) nextCount() int {
	b.count++
	return b.count
}

func (b *x86Backend) loc(tok *token.Token) {
	if tok == nil || tok.File == nil {
		return
	}
	b.emit("  .loc %d %d", tok.File.FileNo, tok.LineNo)
}

// varAlign is the alignment of a variable in memory. The psABI requires an
// array of 16 bytes or more to be aligned to at least 16 bytes.
func varAlign(v *ast.Obj) int64 {
	if v.Ty.Kind == ast.TyArray && v.Ty.Size >= 16 {
		return mathutil.MaxInt64(16, v.Align)
	}
	return v.Align
}

// assignLVarOffsets lays out every function's frame. Parameters passed on
// the stack sit above the return address starting at 16(%rbp); everything
// else is placed below %rbp.
func (b *x86Backend) assignLVarOffsets(prog *ast.Program) {
	for _, fn := range prog.Globals {
		if !fn.IsFunction {
			continue
		}

		top, bottom := int64(16), int64(0)
		gp, fp := 0, 0

		for _, v := range fn.Params {
			ty := v.Ty
			switch ty.Kind {
			case ast.TyStruct, ast.TyUnion:
				if ty.Size <= 16 {
					fp1, fp2 := hasFlonum1(ty), hasFlonum2(ty)
					if fp+b2i(fp1)+b2i(fp2) < fpMax && gp+b2i(!fp1)+b2i(!fp2) < gpMax {
						fp += b2i(fp1) + b2i(fp2)
						gp += b2i(!fp1) + b2i(!fp2)
						continue
					}
				}
			case ast.TyFloat, ast.TyDouble:
				fp++
				if fp <= fpMax {
					continue
				}
			case ast.TyLDouble:
			default:
				gp++
				if gp <= gpMax {
					continue
				}
			}

			top = util.AlignTo(top, 8)
			v.Offset = top
			top += ty.Size
		}

		for _, v := range fn.Locals {
			if v.Offset != 0 {
				continue
			}
			bottom += v.Ty.Size
			bottom = util.AlignTo(bottom, varAlign(v))
			v.Offset = -bottom
		}

		fn.StackSize = util.AlignTo(bottom, 16)
	}
}

func (b *x86Backend) emitData(prog *ast.Program) {
	for _, v := range prog.Globals {
		if v.Asm != nil || v.IsFunction || !v.IsDefinition {
			continue
		}

		name := v.Label()
		if v.IsStatic {
			b.emit("  .local %s", name)
		} else {
			b.emit("  .globl %s", name)
		}

		align := varAlign(v)

		if b.cfg.IsFeatureEnabled(config.FeatCommon) && v.IsTentative && !v.IsTLS {
			b.emit("  .comm %s, %d, %d", name, v.Ty.Size, align)
			continue
		}

		if v.InitData != nil {
			if v.IsTLS {
				b.emit("  .section .tdata,\"awT\",@progbits")
			} else {
				b.emit("  .data")
			}
			b.emit("  .type %s, @object", name)
			b.emit("  .size %s, %d", name, v.Ty.Size)
			b.emit("  .align %d", align)
			b.emit("%s:", name)

			rels := v.Rel
			for pos := int64(0); pos < v.Ty.Size; {
				if len(rels) > 0 && rels[0].Offset == pos {
					b.emit("  .quad %s%+d", rels[0].Symbol(), rels[0].Addend)
					rels = rels[1:]
					pos += 8
					continue
				}
				b.emit("  .byte %d", int8(v.InitData[pos]))
				pos++
			}
			continue
		}

		if v.IsTLS {
			b.emit("  .section .tbss,\"awT\",@nobits")
		} else {
			b.emit("  .bss")
		}
		b.emit("  .align %d", align)
		b.emit("%s:", name)
		b.emit("  .zero %d", v.Ty.Size)
	}
}

func (b *x86Backend) storeFP(r int, offset, sz int64) {
	switch sz {
	case 4:
		b.emit("  movss %%xmm%d, %d(%%rbp)", r, offset)
	case 8:
		b.emit("  movsd %%xmm%d, %d(%%rbp)", r, offset)
	default:
		util.Unreachable()
	}
}

func (b *x86Backend) storeGP(r int, offset, sz int64) {
	switch sz {
	case 1:
		b.emit("  mov %s, %d(%%rbp)", argReg8[r], offset)
	case 2:
		b.emit("  mov %s, %d(%%rbp)", argReg16[r], offset)
	case 4:
		b.emit("  mov %s, %d(%%rbp)", argReg32[r], offset)
	case 8:
		b.emit("  mov %s, %d(%%rbp)", argReg64[r], offset)
	default:
		for i := int64(0); i < sz; i++ {
			b.emit("  mov %s, %d(%%rbp)", argReg8[r], offset+i)
			b.emit("  shr $8, %s", argReg64[r])
		}
	}
}

func (b *x86Backend) emitText(prog *ast.Program) {
	for _, fn := range prog.Globals {
		if fn.Asm != nil {
			b.emit("  %s", fn.Asm.AsmStr)
			continue
		}
		// Unreferenced static inline functions are not emitted.
		if !fn.IsFunction || !fn.IsDefinition || !fn.IsLive {
			continue
		}

		name := fn.Label()
		if fn.IsStatic {
			b.emit("  .local %s", name)
		} else {
			b.emit("  .globl %s", name)
		}
		b.emit("  .text")
		b.emit("  .type %s, @function", name)
		b.emit("%s:", name)
		b.fn = fn

		// Prologue
		b.emit("  push %%rbp")
		b.emit("  mov %%rsp, %%rbp")
		b.emit("  sub $%d, %%rsp", fn.StackSize)
		b.emit("  mov %%rsp, %d(%%rbp)", fn.AllocaBottom.Offset)

		if fn.VaArea != nil {
			b.saveVaRegs(fn)
		}

		// Spill register parameters to their stack slots.
		gp, fp := 0, 0
		for _, v := range fn.Params {
			if v.Offset > 0 {
				continue
			}
			ty := v.Ty
			switch ty.Kind {
			case ast.TyStruct, ast.TyUnion:
				if hasFlonum1(ty) {
					b.storeFP(fp, v.Offset, mathutil.MinInt64(8, ty.Size))
					fp++
				} else {
					b.storeGP(gp, v.Offset, mathutil.MinInt64(8, ty.Size))
					gp++
				}
				if ty.Size > 8 {
					if hasFlonum2(ty) {
						b.storeFP(fp, v.Offset+8, ty.Size-8)
						fp++
					} else {
						b.storeGP(gp, v.Offset+8, ty.Size-8)
						gp++
					}
				}
			case ast.TyFloat, ast.TyDouble:
				b.storeFP(fp, v.Offset, ty.Size)
				fp++
			default:
				b.storeGP(gp, v.Offset, ty.Size)
				gp++
			}
		}

		b.genStmt(fn.Body)
		if b.depth != 0 {
			util.Fatalf("%s: unbalanced stack depth %d", fn.Name, b.depth)
		}

		// Reaching the end of main returns 0.
		if fn.Name == "main" {
			b.emit("  mov $0, %%rax")
		}

		// Epilogue
		b.emit(".L.return.%s:", fn.Name)
		b.emit("  mov %%rbp, %%rsp")
		b.emit("  pop %%rbp")
		b.emit("  ret")
	}
}

// saveVaRegs fills in the va_list element and the register save area of a
// variadic function, so va_arg can find arguments passed in registers.
func (b *x86Backend) saveVaRegs(fn *ast.Obj) {
	gp, fp := 0, 0
	for _, v := range fn.Params {
		if v.Ty.IsFlonum() {
			fp++
		} else {
			gp++
		}
	}

	off := fn.VaArea.Offset

	// va_elem: gp_offset, fp_offset, overflow_arg_area, reg_save_area
	b.emit("  movl $%d, %d(%%rbp)", gp*8, off)
	b.emit("  movl $%d, %d(%%rbp)", fp*8+48, off+4)
	b.emit("  movq %%rbp, %d(%%rbp)", off+8)
	b.emit("  addq $16, %d(%%rbp)", off+8)
	b.emit("  movq %%rbp, %d(%%rbp)", off+16)
	b.emit("  addq $%d, %d(%%rbp)", off+24, off+16)

	for i, r := range argReg64 {
		b.emit("  movq %s, %d(%%rbp)", r, off+24+int64(i)*8)
	}
	for i := 0; i < fpMax; i++ {
		b.emit("  movsd %%xmm%d, %d(%%rbp)", i, off+72+int64(i)*8)
	}
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}
