package asmfmt

import (
	"sort"
	"strconv"
	"strings"
)

var registers = func() map[string]bool {
	m := make(map[string]bool)
	add := func(names ...string) {
		for _, n := range names {
			m[n] = true
		}
	}
	add("rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp", "rip")
	add("eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp", "eip")
	add("ax", "bx", "cx", "dx", "si", "di", "bp", "sp", "ip")
	add("al", "ah", "bl", "bh", "cl", "ch", "dl", "dh", "sil", "dil", "bpl", "spl")
	add("cs", "ds", "es", "fs", "gs", "ss")
	add("rflags", "eflags", "st")
	for i := 8; i <= 15; i++ {
		n := "r" + strconv.Itoa(i)
		add(n, n+"d", n+"w", n+"b")
	}
	for i := 0; i <= 15; i++ {
		add("xmm" + strconv.Itoa(i))
	}
	for i := 0; i <= 7; i++ {
		add("st" + strconv.Itoa(i))
	}
	return m
}()

// IsRegister reports whether name is an x86 register, ignoring case.
func IsRegister(name string) bool {
	return registers[strings.ToLower(name)]
}

// Registers returns the register vocabulary in sorted order.
func Registers() []string {
	r := make([]string, 0, len(registers))
	for n := range registers {
		r = append(r, n)
	}
	sort.Strings(r)
	return r
}
