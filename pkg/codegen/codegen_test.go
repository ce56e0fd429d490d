package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/config"
	"github.com/xplshn/chibicc/pkg/parser"
	"github.com/xplshn/chibicc/pkg/preprocessor"
)

func compile(t *testing.T, cfg *config.Config, src string) (string, *ast.Program) {
	t.Helper()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	pp := preprocessor.New(cfg)
	tok, err := pp.Run(pp.TokenizeString("test.c", []byte(src)))
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	prog, err := parser.NewParser(tok, cfg).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	prog.Files = pp.Files()

	backend, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := backend.Generate(prog, cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return buf.String(), prog
}

// hasLines reports whether want appears in asm as a subsequence of lines.
func hasLines(t *testing.T, asm string, want ...string) {
	t.Helper()
	i := 0
	for _, line := range strings.Split(asm, "\n") {
		if i < len(want) && line == want[i] {
			i++
		}
	}
	if i < len(want) {
		t.Errorf("missing line %q in output:\n%s", want[i], asm)
	}
}

func lacksLine(t *testing.T, asm, line string) {
	t.Helper()
	for _, l := range strings.Split(asm, "\n") {
		if l == line {
			t.Errorf("unexpected line %q in output:\n%s", line, asm)
			return
		}
	}
}

func TestFunctionSkeleton(t *testing.T) {
	asm, _ := compile(t, nil, "int main() {\n  return 42;\n}\n")
	hasLines(t, asm,
		`  .file 1 "test.c"`,
		"  .globl main",
		"  .text",
		"  .type main, @function",
		"main:",
		"  push %rbp",
		"  mov %rsp, %rbp",
		"  .loc 1 2",
		"  mov $42, %rax",
		"  jmp .L.return.main",
		"  mov $0, %rax",
		".L.return.main:",
		"  mov %rbp, %rsp",
		"  pop %rbp",
		"  ret",
	)
}

func TestFrameLayout(t *testing.T) {
	src := `
int f(int a, int b, int c, int d, int e, int g, long h, double x) {
	char buf[20];
	int i;
	return a + h + i + buf[0] + x;
}`
	_, prog := compile(t, nil, src)

	var fn *ast.Obj
	for _, g := range prog.Globals {
		if g.Name == "f" {
			fn = g
		}
	}

	offsets := map[string]int64{}
	for _, v := range fn.Params {
		offsets[v.Name] = v.Offset
	}
	if offsets["h"] != 16 {
		t.Errorf("seventh integer parameter at %d(%%rbp), want 16", offsets["h"])
	}
	for _, name := range []string{"a", "g", "x"} {
		if offsets[name] >= 0 {
			t.Errorf("register parameter %s at %d(%%rbp), want a negative offset", name, offsets[name])
		}
	}
	for _, v := range fn.Locals {
		if v.Name == "buf" && v.Offset%16 != 0 {
			t.Errorf("20-byte array at %d(%%rbp), want 16-byte alignment", v.Offset)
		}
	}
	if fn.StackSize%16 != 0 {
		t.Errorf("stack size %d is not a multiple of 16", fn.StackSize)
	}
}

func TestGlobalData(t *testing.T) {
	src := `
int x = 3;
int *p = &x + 1;
int y;
static char s[] = "hi";
_Thread_local int t = 1;
_Thread_local int u;
`
	asm, _ := compile(t, nil, src)
	hasLines(t, asm,
		"  .globl x",
		"  .data",
		"  .type x, @object",
		"  .size x, 4",
		"  .align 4",
		"x:",
		"  .byte 3",
		"  .byte 0",
		"  .byte 0",
		"  .byte 0",
	)
	hasLines(t, asm, "p:", "  .quad x+4")
	hasLines(t, asm, "  .globl y", "  .comm y, 4, 4")
	hasLines(t, asm, "  .local s", "  .data", "s:", "  .byte 104", "  .byte 105", "  .byte 0")
	hasLines(t, asm, `  .section .tdata,"awT",@progbits`, "t:")
	hasLines(t, asm, `  .section .tbss,"awT",@nobits`, "  .align 4", "u:", "  .zero 4")

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatCommon, false)
	asm, _ = compile(t, cfg, "int y;\n")
	hasLines(t, asm, "  .globl y", "  .bss", "  .align 4", "y:", "  .zero 4")
	lacksLine(t, asm, "  .comm y, 4, 4")
}

func TestGlobalAddressing(t *testing.T) {
	src := `
extern int ext(void);
_Thread_local int t;
int g;
int main() { return t + g + ext(); }
`
	asm, _ := compile(t, nil, src)
	hasLines(t, asm, "  mov %fs:0, %rax", "  add $t@tpoff, %rax")
	hasLines(t, asm, "  lea g(%rip), %rax")
	hasLines(t, asm, "  mov ext@GOTPCREL(%rip), %rax", "  call *%r10")

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatPIC, true)
	asm, _ = compile(t, cfg, src)
	hasLines(t, asm, "  data16 lea t@tlsgd(%rip), %rdi", "  .value 0x6666", "  rex64", "  call __tls_get_addr@PLT")
	hasLines(t, asm, "  mov g@GOTPCREL(%rip), %rax")
}

func TestStaticInlineLiveness(t *testing.T) {
	src := `
static inline int unused(void) { return 1; }
static inline int used(void) { return 2; }
int main() { return used(); }
`
	asm, _ := compile(t, nil, src)
	hasLines(t, asm, "  .local used", "used:")
	lacksLine(t, asm, "unused:")
}

func TestCallAlignment(t *testing.T) {
	src := `
int g(int a, int b, int c, int d, int e, int f, int h);
int main() { return g(1, 2, 3, 4, 5, 6, 7); }
`
	asm, _ := compile(t, nil, src)
	hasLines(t, asm,
		"  sub $8, %rsp",
		"  pop %rdi",
		"  pop %r9",
		"  mov %rax, %r10",
		"  mov $0, %rax",
		"  call *%r10",
		"  add $16, %rsp",
	)
}

func TestSwitchLowering(t *testing.T) {
	src := `
int f(int x) {
	switch (x) {
	case 5: return 1;
	case 1 ... 3: return 2;
	default: return 3;
	}
}`
	asm, _ := compile(t, nil, src)
	hasLines(t, asm,
		"  cmp $5, %eax",
		"  mov %eax, %edi",
		"  sub $1, %edi",
		"  cmp $2, %edi",
	)
}

func TestVariadicPrologue(t *testing.T) {
	asm, _ := compile(t, nil, "int f(int n, ...) { return n; }\n")
	if !strings.Contains(asm, "  movl $8, ") {
		t.Errorf("gp_offset should skip one named register argument:\n%s", asm)
	}
	if !strings.Contains(asm, "  movl $48, ") {
		t.Errorf("fp_offset should start after the six general-purpose slots:\n%s", asm)
	}
	if !strings.Contains(asm, "  movsd %xmm7, ") {
		t.Errorf("all vector argument registers should be saved:\n%s", asm)
	}
}

func TestHasFlonum(t *testing.T) {
	tests := []struct {
		src    string
		lo, hi bool
	}{
		{"struct { float a, b; } v;", true, true},
		{"struct { double a; long b; } v;", true, false},
		{"struct { int a; float b; } v;", false, true},
		{"struct { float a[2]; double d; } v;", true, true},
		{"union { double d; long l; } v;", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, prog := compile(t, nil, tt.src)
			var ty *ast.Type
			for _, g := range prog.Globals {
				if g.Name == "v" {
					ty = g.Ty
				}
			}
			got := [2]bool{hasFlonum1(ty), hasFlonum2(ty)}
			if diff := cmp.Diff([2]bool{tt.lo, tt.hi}, got); diff != "" {
				t.Errorf("classification mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCastTable(t *testing.T) {
	for from := typeID(0); from < numTypeIDs; from++ {
		if op := castTable[from][from]; op != castNone {
			t.Errorf("identity conversion %d has sequence %d", from, op)
		}
		for to := typeID(0); to < numTypeIDs; to++ {
			if op := castTable[from][to]; op != castNone && len(castSteps[op]) == 0 {
				t.Errorf("conversion %d -> %d has no instructions", from, to)
			}
		}
	}

	asm, _ := compile(t, nil, "short f(long double x) { return x; }\n")
	hasLines(t, asm, "  fistps -24(%rsp)", "  fldcw -10(%rsp)", "  movswl -24(%rsp), %eax")

	asm, _ = compile(t, nil, "float f(unsigned long x) { return x; }\n")
	hasLines(t, asm, "  js 1f", "  cvtsi2ssq %rdi, %xmm0", "  addss %xmm0, %xmm0", "2:")

	asm, _ = compile(t, nil, "_Bool f(double x) { return x; }\n")
	hasLines(t, asm, "  ucomisd %xmm1, %xmm0", "  setne %al", "  movzx %al, %eax")
}

func TestStructReturn(t *testing.T) {
	src := `
struct small { long a; double b; };
struct big { long a, b, c; };
struct small s(void) { struct small v = {1, 2}; return v; }
struct big b(void) { struct big v = {1, 2, 3}; return v; }
int main() { return s().a + b().c; }
`
	asm, _ := compile(t, nil, src)
	hasLines(t, asm, "s:", "  movsd 8(%rdi), %xmm0", "  jmp .L.return.s")
	hasLines(t, asm, "b:", "  mov -8(%rbp), %rdi", "  mov %dl, 23(%rdi)", "  jmp .L.return.b")
	for _, want := range []string{"  mov %al, -", "  movsd %xmm0, -"} {
		if !strings.Contains(asm, want) {
			t.Errorf("small struct result should be copied to its buffer with %q:\n%s", want, asm)
		}
	}
}

func TestFloatStructReturn(t *testing.T) {
	src := `
struct v3 { float x, y, z; };
struct v3 mk(void) { struct v3 v = {1, 2, 3}; return v; }
float use(void) { return mk().z; }
`
	asm, _ := compile(t, nil, src)
	hasLines(t, asm, "mk:", "  movsd (%rdi), %xmm0", "  movss 8(%rdi), %xmm1", "  jmp .L.return.mk")
	if !strings.Contains(asm, "  movss %xmm1, -") {
		t.Errorf("the caller should spill the second vector register:\n%s", asm)
	}
	lacksLine(t, asm, "  mov %dl, 8(%rdi)")
}

func TestAtomicCompoundAssign(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "double",
			src:  "_Atomic double ad = 1.5;\nvoid f(void) { ad += 1; }\n",
			want: []string{"  movq %xmm0, %rax", "  mov %rax, %r8", "  mov (%rax), %rax", "  lock cmpxchg %rdx, (%rdi)", "  mov %rax, (%r8)"},
		},
		{
			name: "float",
			src:  "_Atomic float af;\nvoid f(void) { af *= 2; }\n",
			want: []string{"  movq %xmm0, %rax", "  mov %rax, %r8", "  mov (%rax), %eax", "  lock cmpxchg %edx, (%rdi)", "  mov %eax, (%r8)"},
		},
		{
			name: "int",
			src:  "_Atomic int ai;\nvoid f(void) { ai -= 3; }\n",
			want: []string{"  mov %rax, %r8", "  movsxd (%rax), %rax", "  lock cmpxchg %edx, (%rdi)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm, _ := compile(t, nil, tt.src)
			hasLines(t, asm, tt.want...)
		})
	}
}

func TestWideBitfieldStore(t *testing.T) {
	src := "struct { long long lo : 24; long long wide : 40; } s;\nvoid f(void) { s.wide = 1; }\n"
	asm, _ := compile(t, nil, src)
	hasLines(t, asm, "  movabs $1099511627775, %r9", "  and %r9, %rdi", "  shl $24, %rdi", "  or %rdi, %rax")
	lacksLine(t, asm, "  and $1099511627775, %rdi")
}
