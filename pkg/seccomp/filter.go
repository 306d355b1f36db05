// Package seccomp provides a generated filter format for seccomp filter
package seccomp

import (
	"encoding/binary"
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/net/bpf"
)

// MaxInstructions is the kernel limit on a BPF program (BPF_MAXINSNS)
const MaxInstructions = 4096

// MaxFilterSize is MaxInstructions in bytes, 8 bytes per sock_filter
const MaxFilterSize = MaxInstructions * 8

// Filter is the BPF seccomp filter value
type Filter []byte

// SockFprog converts Filter to SockFprog for seccomp syscall
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []byte(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b) / 8),
		Filter: (*syscall.SockFilter)(unsafe.Pointer(&b[0])),
	}
}

// Len returns the number of instructions
func (f Filter) Len() int {
	return len(f) / 8
}

// Disassemble decodes the filter into BPF instructions
func (f Filter) Disassemble() ([]bpf.Instruction, error) {
	if len(f)%8 != 0 {
		return nil, fmt.Errorf("seccomp: filter of %d bytes is not a BPF program", len(f))
	}
	raw := make([]bpf.RawInstruction, 0, f.Len())
	for i := 0; i+8 <= len(f); i += 8 {
		raw = append(raw, bpf.RawInstruction{
			Op: binary.NativeEndian.Uint16(f[i:]),
			Jt: f[i+2],
			Jf: f[i+3],
			K:  binary.NativeEndian.Uint32(f[i+4:]),
		})
	}
	inst, _ := bpf.Disassemble(raw)
	return inst, nil
}

func (f Filter) String() string {
	inst, err := f.Disassemble()
	if err != nil {
		return err.Error()
	}
	var sb strings.Builder
	for i, in := range inst {
		fmt.Fprintf(&sb, "%04d: %v\n", i, in)
	}
	return sb.String()
}
