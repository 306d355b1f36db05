package seccomp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"
)

func assemble(t *testing.T, inst []bpf.Instruction) Filter {
	t.Helper()
	raw, err := bpf.Assemble(inst)
	require.NoError(t, err)
	f := make(Filter, 0, len(raw)*8)
	for _, r := range raw {
		var b [8]byte
		binary.NativeEndian.PutUint16(b[0:], r.Op)
		b[2], b[3] = r.Jt, r.Jf
		binary.NativeEndian.PutUint32(b[4:], r.K)
		f = append(f, b[:]...)
	}
	return f
}

func TestFilter_Disassemble(t *testing.T) {
	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: 0, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 16, SkipTrue: 1},
		bpf.RetConstant{Val: 0x7fff0000},
		bpf.RetConstant{Val: 0x00050001},
	}
	f := assemble(t, prog)
	assert.Equal(t, 4, f.Len())

	got, err := f.Disassemble()
	require.NoError(t, err)
	assert.Equal(t, prog, got)

	fprog := f.SockFprog()
	assert.Equal(t, uint16(4), fprog.Len)
	assert.Contains(t, f.String(), "0003:")
}

func TestFilter_DisassembleInvalid(t *testing.T) {
	_, err := Filter{1, 2, 3}.Disassemble()
	assert.Error(t, err)
}

func TestAction(t *testing.T) {
	a := ActionErrno.WithReturnCode(1)
	assert.Equal(t, ActionErrno, a.Action())
	assert.Equal(t, int16(1), a.ReturnCode())
	assert.Equal(t, "errno", a.String())
	assert.Equal(t, "invalid", Action(0).String())
}
