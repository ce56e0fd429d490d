package codegen

import (
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/util"
)

// typeID indexes the conversion table.
type typeID int

const (
	i8 typeID = iota
	i16
	i32
	i64
	u8
	u16
	u32
	u64
	f32
	f64
	f80
	numTypeIDs
)

func getTypeID(ty *ast.Type) typeID {
	switch ty.Kind {
	case ast.TyChar:
		if ty.Unsigned {
			return u8
		}
		return i8
	case ast.TyShort:
		if ty.Unsigned {
			return u16
		}
		return i16
	case ast.TyInt:
		if ty.Unsigned {
			return u32
		}
		return i32
	case ast.TyLong:
		if ty.Unsigned {
			return u64
		}
		return i64
	case ast.TyFloat:
		return f32
	case ast.TyDouble:
		return f64
	case ast.TyLDouble:
		return f80
	}
	return u64
}

// castOp names one conversion sequence. Values are held in %rax, %xmm0 or
// the x87 stack top depending on the type.
type castOp int

const (
	castNone castOp = iota
	castI32I8
	castI32U8
	castI32I16
	castI32U16
	castI32F32
	castI32I64
	castI32F64
	castI32F80
	castU32F32
	castU32I64
	castU32F64
	castU32F80
	castI64F32
	castI64F64
	castI64F80
	castU64F32
	castU64F64
	castU64F80
	castF32I8
	castF32U8
	castF32I16
	castF32U16
	castF32I32
	castF32U32
	castF32I64
	castF32U64
	castF32F64
	castF32F80
	castF64I8
	castF64U8
	castF64I16
	castF64U16
	castF64I32
	castF64U32
	castF64I64
	castF64U64
	castF64F32
	castF64F80
	castF80I8
	castF80U8
	castF80I16
	castF80U16
	castF80I32
	castF80U32
	castF80I64
	castF80U64
	castF80F32
	castF80F64
)

// castStep is one primitive of a conversion sequence. Integer steps work
// on %rax, float steps on %xmm0 and long double steps on the x87 stack.
type castStep int

const (
	sextByte castStep = iota
	zextByte
	sextWord
	zextWord
	sextLong
	zextLong
	cvtI32F32
	cvtI32F64
	cvtI64F32
	cvtI64F64
	cvtU64F32
	cvtU64F64
	cvtF32I32
	cvtF32I64
	cvtF64I32
	cvtF64I64
	cvtF32F64
	cvtF64F32
	fildLong
	fildQuad
	fixU64 // adds 2^64 to a negative fildQuad result
	fldF32
	fldF64
	fstpF32
	fstpF64
	fistpWord // truncating stores to -24(%rsp)
	fistpLong
	fistpQuad
	ldSByte // reloads of a truncated store
	ldZByte
	ldSWord
	ldZWord
	ldLong
	ldQuad
)

var castSteps = [...][]castStep{
	castI32I8:  {sextByte},
	castI32U8:  {zextByte},
	castI32I16: {sextWord},
	castI32U16: {zextWord},
	castI32F32: {cvtI32F32},
	castI32I64: {sextLong},
	castI32F64: {cvtI32F64},
	castI32F80: {fildLong},

	castU32F32: {zextLong, cvtI64F32},
	castU32I64: {zextLong},
	castU32F64: {zextLong, cvtI64F64},
	castU32F80: {zextLong, fildQuad},

	castI64F32: {cvtI64F32},
	castI64F64: {cvtI64F64},
	castI64F80: {fildQuad},

	castU64F32: {cvtU64F32},
	castU64F64: {cvtU64F64},
	castU64F80: {fildQuad, fixU64},

	castF32I8:  {cvtF32I32, sextByte},
	castF32U8:  {cvtF32I32, zextByte},
	castF32I16: {cvtF32I32, sextWord},
	castF32U16: {cvtF32I32, zextWord},
	castF32I32: {cvtF32I32},
	castF32U32: {cvtF32I64},
	castF32I64: {cvtF32I64},
	castF32U64: {cvtF32I64},
	castF32F64: {cvtF32F64},
	castF32F80: {fldF32},

	castF64I8:  {cvtF64I32, sextByte},
	castF64U8:  {cvtF64I32, zextByte},
	castF64I16: {cvtF64I32, sextWord},
	castF64U16: {cvtF64I32, zextWord},
	castF64I32: {cvtF64I32},
	castF64U32: {cvtF64I64},
	castF64I64: {cvtF64I64},
	castF64U64: {cvtF64I64},
	castF64F32: {cvtF64F32},
	castF64F80: {fldF64},

	castF80I8:  {fistpWord, ldSByte},
	castF80U8:  {fistpWord, ldZByte},
	castF80I16: {fistpWord, ldSWord},
	castF80U16: {fistpLong, ldZWord},
	castF80I32: {fistpLong, ldLong},
	castF80U32: {fistpQuad, ldLong},
	castF80I64: {fistpQuad, ldQuad},
	castF80U64: {fistpQuad, ldQuad},
	castF80F32: {fstpF32},
	castF80F64: {fstpF64},
}

// castTable[from][to] is the sequence converting between two arithmetic
// types. Integer conversions that keep the low bits valid need nothing.
var castTable = [numTypeIDs][numTypeIDs]castOp{
	//     i8          i16         i32         i64         u8          u16         u32         u64         f32         f64         f80
	i8:  {castNone, castNone, castNone, castI32I64, castI32U8, castI32U16, castNone, castI32I64, castI32F32, castI32F64, castI32F80},
	i16: {castI32I8, castNone, castNone, castI32I64, castI32U8, castI32U16, castNone, castI32I64, castI32F32, castI32F64, castI32F80},
	i32: {castI32I8, castI32I16, castNone, castI32I64, castI32U8, castI32U16, castNone, castI32I64, castI32F32, castI32F64, castI32F80},
	i64: {castI32I8, castI32I16, castNone, castNone, castI32U8, castI32U16, castNone, castNone, castI64F32, castI64F64, castI64F80},

	u8:  {castI32I8, castNone, castNone, castI32I64, castNone, castNone, castNone, castI32I64, castI32F32, castI32F64, castI32F80},
	u16: {castI32I8, castI32I16, castNone, castI32I64, castI32U8, castNone, castNone, castI32I64, castI32F32, castI32F64, castI32F80},
	u32: {castI32I8, castI32I16, castNone, castU32I64, castI32U8, castI32U16, castNone, castU32I64, castU32F32, castU32F64, castU32F80},
	u64: {castI32I8, castI32I16, castNone, castNone, castI32U8, castI32U16, castNone, castNone, castU64F32, castU64F64, castU64F80},

	f32: {castF32I8, castF32I16, castF32I32, castF32I64, castF32U8, castF32U16, castF32U32, castF32U64, castNone, castF32F64, castF32F80},
	f64: {castF64I8, castF64I16, castF64I32, castF64I64, castF64U8, castF64U16, castF64U32, castF64U64, castF64F32, castNone, castF64F80},
	f80: {castF80I8, castF80I16, castF80I32, castF80I64, castF80U8, castF80U16, castF80U32, castF80U64, castF80F32, castF80F64, castNone},
}

func (b *x86Backend) castNumber(from, to *ast.Type) {
	if to.Kind == ast.TyVoid {
		return
	}

	if to.Kind == ast.TyBool {
		b.cmpZero(from)
		b.emit("  setne %%al")
		b.emit("  movzx %%al, %%eax")
		return
	}

	for _, step := range castSteps[castTable[getTypeID(from)][getTypeID(to)]] {
		b.emitCastStep(step)
	}
}

func (b *x86Backend) emitCastStep(s castStep) {
	switch s {
	case sextByte:
		b.emit("  movsbl %%al, %%eax")
	case zextByte:
		b.emit("  movzbl %%al, %%eax")
	case sextWord:
		b.emit("  movswl %%ax, %%eax")
	case zextWord:
		b.emit("  movzwl %%ax, %%eax")
	case sextLong:
		b.emit("  movsxd %%eax, %%rax")
	case zextLong:
		b.emit("  mov %%eax, %%eax")
	case cvtI32F32:
		b.emit("  cvtsi2ssl %%eax, %%xmm0")
	case cvtI32F64:
		b.emit("  cvtsi2sdl %%eax, %%xmm0")
	case cvtI64F32:
		b.emit("  cvtsi2ssq %%rax, %%xmm0")
	case cvtI64F64:
		b.emit("  cvtsi2sdq %%rax, %%xmm0")
	case cvtU64F32, cvtU64F64:
		// With the top bit set the value is halved, keeping the low bit
		// for rounding, converted and doubled.
		cvt, add := "cvtsi2ssq", "addss"
		if s == cvtU64F64 {
			cvt, add = "cvtsi2sdq", "addsd"
		}
		b.emit("  test %%rax, %%rax")
		b.emit("  js 1f")
		b.emit("  pxor %%xmm0, %%xmm0")
		b.emit("  %s %%rax, %%xmm0", cvt)
		b.emit("  jmp 2f")
		b.emit("1:")
		b.emit("  mov %%rax, %%rdi")
		b.emit("  and $1, %%eax")
		b.emit("  pxor %%xmm0, %%xmm0")
		b.emit("  shr %%rdi")
		b.emit("  or %%rax, %%rdi")
		b.emit("  %s %%rdi, %%xmm0", cvt)
		b.emit("  %s %%xmm0, %%xmm0", add)
		b.emit("2:")
	case cvtF32I32:
		b.emit("  cvttss2sil %%xmm0, %%eax")
	case cvtF32I64:
		b.emit("  cvttss2siq %%xmm0, %%rax")
	case cvtF64I32:
		b.emit("  cvttsd2sil %%xmm0, %%eax")
	case cvtF64I64:
		b.emit("  cvttsd2siq %%xmm0, %%rax")
	case cvtF32F64:
		b.emit("  cvtss2sd %%xmm0, %%xmm0")
	case cvtF64F32:
		b.emit("  cvtsd2ss %%xmm0, %%xmm0")
	case fildLong:
		b.emit("  mov %%eax, -4(%%rsp)")
		b.emit("  fildl -4(%%rsp)")
	case fildQuad:
		b.emit("  mov %%rax, -8(%%rsp)")
		b.emit("  fildll -8(%%rsp)")
	case fixU64:
		b.emit("  test %%rax, %%rax")
		b.emit("  jns 1f")
		b.emit("  mov $1602224128, %%eax") // 2^64 as a float
		b.emit("  mov %%eax, -4(%%rsp)")
		b.emit("  fadds -4(%%rsp)")
		b.emit("1:")
	case fldF32:
		b.emit("  movss %%xmm0, -4(%%rsp)")
		b.emit("  flds -4(%%rsp)")
	case fldF64:
		b.emit("  movsd %%xmm0, -8(%%rsp)")
		b.emit("  fldl -8(%%rsp)")
	case fstpF32:
		b.emit("  fstps -8(%%rsp)")
		b.emit("  movss -8(%%rsp), %%xmm0")
	case fstpF64:
		b.emit("  fstpl -8(%%rsp)")
		b.emit("  movsd -8(%%rsp), %%xmm0")
	case fistpWord, fistpLong, fistpQuad:
		// Switch the x87 control word to round-toward-zero around the store.
		store := "fistpq"
		switch s {
		case fistpWord:
			store = "fistps"
		case fistpLong:
			store = "fistpl"
		}
		b.emit("  fnstcw -10(%%rsp)")
		b.emit("  movzwl -10(%%rsp), %%eax")
		b.emit("  or $12, %%ah")
		b.emit("  mov %%ax, -12(%%rsp)")
		b.emit("  fldcw -12(%%rsp)")
		b.emit("  %s -24(%%rsp)", store)
		b.emit("  fldcw -10(%%rsp)")
	case ldSByte:
		b.emit("  movsbl -24(%%rsp), %%eax")
	case ldZByte:
		b.emit("  movzbl -24(%%rsp), %%eax")
	case ldSWord:
		b.emit("  movswl -24(%%rsp), %%eax")
	case ldZWord:
		b.emit("  movzwl -24(%%rsp), %%eax")
	case ldLong:
		b.emit("  mov -24(%%rsp), %%eax")
	case ldQuad:
		b.emit("  mov -24(%%rsp), %%rax")
	default:
		util.Unreachable()
	}
}
