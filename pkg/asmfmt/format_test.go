package asmfmt

import (
	"testing"

	"github.com/cpuview/cpuview/pkg/settings"
)

func cfg(mod func(s *settings.Settings)) settings.Settings {
	s := settings.Default()
	s.SwapArguments = false
	if mod != nil {
		mod(&s)
	}
	return s
}

func TestFormatSwapPercentUpper(t *testing.T) {
	s := cfg(func(s *settings.Settings) {
		s.SwapArguments = true
		s.RegisterNaming = settings.NamingPercent
		s.ListingCase = settings.CaseUpper
	})
	got := Format("mov %eax, %ebx # comment", s)
	want := Formatted{Mnemonic: "MOV", Operands: "%EBX,%EAX", Comment: "comment"}
	if got != want {
		t.Fatalf("got %#v, want %#v", got, want)
	}
	if got.Text() != "MOV %EBX,%EAX" {
		t.Fatalf("Text() = %q", got.Text())
	}
}

func TestFormatNumbers(t *testing.T) {
	lower := func(nf settings.NumberFormat, neg settings.NegativeFormat, width int) settings.Settings {
		return cfg(func(s *settings.Settings) {
			s.ListingCase = settings.CaseLower
			s.NumberFormat = nf
			s.NegativeFormat = neg
			s.NegativeWidth = width
		})
	}
	upper := func(nf settings.NumberFormat) settings.Settings {
		return cfg(func(s *settings.Settings) { s.NumberFormat = nf })
	}

	tests := []struct {
		raw  string
		s    settings.Settings
		want string
	}{
		{"push $0x10", lower(settings.NumberDecimal, settings.NegativeSigned, 64), "16"},
		{"push $0x10", lower(settings.NumberAuto, settings.NegativeSigned, 64), "$0x10"},
		{"push $0x10", lower(settings.NumberHexClean, settings.NegativeSigned, 64), "0x10"},
		{"push $0x1f", upper(settings.NumberAuto), "$0x1F"},
		{"push $0x1f", upper(settings.NumberHexAsm), "1FH"},
		{"push $0xa", upper(settings.NumberHexAsm), "0AH"},
		{"push $0xa", lower(settings.NumberHexAsm, settings.NegativeSigned, 64), "0ah"},

		{"push $-0x5", lower(settings.NumberAuto, settings.NegativeSigned, 64), "$-0x5"},
		{"push $-0x5", lower(settings.NumberHexClean, settings.NegativeSigned, 64), "-0x5"},
		{"push $-0x5", lower(settings.NumberDecimal, settings.NegativeSigned, 64), "-5"},
		{"push -0x5", lower(settings.NumberHexClean, settings.NegativeUnsigned, 8), "0xfb"},
		{"push -0x5", lower(settings.NumberHexClean, settings.NegativeUnsigned, 16), "0xfffb"},
		{"push -0x5", lower(settings.NumberHexClean, settings.NegativeUnsigned, 32), "0xfffffffb"},
		{"push -0x5", lower(settings.NumberHexClean, settings.NegativeUnsigned, 64), "0xfffffffffffffffb"},
		{"push -0x5", lower(settings.NumberDecimal, settings.NegativeUnsigned, 8), "251"},

		// tokens produced by the rewrite are never scanned again
		{"mov 0x10(%rax,%rbx,0x8),%ecx", lower(settings.NumberDecimal, settings.NegativeSigned, 64), "16(rax,rbx,8),ecx"},
		{"lea -0x8(%rbp),%rax", lower(settings.NumberAuto, settings.NegativeSigned, 64), "-0x8(rbp),rax"},

		// identifiers that contain a hex-looking suffix are left alone
		{"call foo0x10", lower(settings.NumberDecimal, settings.NegativeSigned, 64), "foo0x10"},
		// too wide for 64 bits
		{"movabs $0x10000000000000000,%rax", lower(settings.NumberDecimal, settings.NegativeSigned, 64), "$0x10000000000000000,rax"},
		{"movabs $0x1ffffffffffffffff,%rax", upper(settings.NumberAuto), "$0x1FFFFFFFFFFFFFFFF,RAX"},
		{"movabs $-0x1ffffffffffffffff,%rax", upper(settings.NumberHexClean), "$-0x1FFFFFFFFFFFFFFFF,RAX"},
	}
	for _, tc := range tests {
		got := Format(tc.raw, tc.s)
		if got.Operands != tc.want {
			t.Errorf("Format(%q) [%s/%s/%d] operands = %q, want %q", tc.raw, tc.s.NumberFormat, tc.s.NegativeFormat, tc.s.NegativeWidth, got.Operands, tc.want)
		}
	}
}

func TestFormatRegisterSigils(t *testing.T) {
	plain := cfg(func(s *settings.Settings) { s.ListingCase = settings.CaseLower })
	percent := cfg(func(s *settings.Settings) {
		s.ListingCase = settings.CaseLower
		s.RegisterNaming = settings.NamingPercent
	})
	tests := []struct {
		raw  string
		s    settings.Settings
		want string
	}{
		{"mov %eax,%ebx", plain, "eax,ebx"},
		{"mov %eax,%ebx", percent, "%eax,%ebx"},
		{"mov eax,ebx", percent, "%eax,%ebx"},
		{"mov %r10d,(%r11)", percent, "%r10d,(%r11)"},
		{"call main", percent, "main"},
		{"movaps %xmm0,0x10(%rsp)", percent, "%xmm0,0x10(%rsp)"},
		{"mov %fs:0x28,%rax", percent, "%fs:0x28,%rax"},
	}
	for _, tc := range tests {
		got := Format(tc.raw, tc.s)
		if got.Operands != tc.want {
			t.Errorf("Format(%q, %s) operands = %q, want %q", tc.raw, tc.s.RegisterNaming, got.Operands, tc.want)
		}
	}
}

func TestFormatSwap(t *testing.T) {
	s := cfg(func(s *settings.Settings) {
		s.SwapArguments = true
		s.ListingCase = settings.CaseLower
	})
	tests := []struct{ raw, want string }{
		{"mov %eax,%ebx", "ebx,eax"},
		{"mov 0x10(%rax,%rbx,4),%ecx", "ecx,0x10(rax,rbx,4)"},
		{"mov qword ptr [rax+rbx*8],rcx", "rcx,qword ptr [rax+rbx*8]"},
		{"imul $0x10,%eax,%ebx", "eax, ebx,$0x10"},
		{"push %rbp", "rbp"},
		{"ret", ""},
	}
	for _, tc := range tests {
		if got := Format(tc.raw, s).Operands; got != tc.want {
			t.Errorf("Format(%q) operands = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestFormatJumpTarget(t *testing.T) {
	lower := cfg(func(s *settings.Settings) { s.ListingCase = settings.CaseLower })
	asm := cfg(func(s *settings.Settings) { s.NumberFormat = settings.NumberHexAsm })
	dec := cfg(func(s *settings.Settings) {
		s.ListingCase = settings.CaseLower
		s.NumberFormat = settings.NumberDecimal
	})
	tests := []struct {
		raw  string
		s    settings.Settings
		want string
	}{
		{"call -0x1b # 0x401005 <foo>", lower, "0x401005"},
		{"jne 0x1b # 0x401030", asm, "0x401030"},
		{"jmp 0x10 # 0x401020", dec, "0x401020"},
		{"jmp *%rax # 0x401020", lower, "*rax"},
		{"mov 0x10,%eax # 0x401000", lower, "0x10,eax"},
		{"jmp 0x10", lower, "0x10"},
	}
	for _, tc := range tests {
		if got := Format(tc.raw, tc.s).Operands; got != tc.want {
			t.Errorf("Format(%q) operands = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestSplitComment(t *testing.T) {
	code, comment := SplitComment("  nop  ")
	if code != "nop" || comment != "" {
		t.Fatalf("got %q %q", code, comment)
	}
	code, comment = SplitComment("lea 0x2edf(%rip),%rdi   # 0x404010 <msg>")
	if code != "lea 0x2edf(%rip),%rdi" || comment != "0x404010 <msg>" {
		t.Fatalf("got %q %q", code, comment)
	}
}

func TestIsRegister(t *testing.T) {
	for _, r := range []string{"rax", "EAX", "r15b", "Xmm7", "sil", "st0"} {
		if !IsRegister(r) {
			t.Errorf("%s should be a register", r)
		}
	}
	for _, r := range []string{"main", "r16", "xmm16", "raxx", ""} {
		if IsRegister(r) {
			t.Errorf("%s should not be a register", r)
		}
	}
}
