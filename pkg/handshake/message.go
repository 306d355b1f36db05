// Package handshake implements the synchronous parent <-> child handshake transport
// used while a container is being set up.
//
// The transport is a SOCK_SEQPACKET socket pair created before the process split.
// Every message is a single fixed-size datagram so the forked child can write it
// with one raw write syscall and no allocation.
package handshake

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"
)

// Kind identifies a handshake message
type Kind uint32

// Message kinds
const (
	// KindNamespaceCreated is sent by the child once it tried to create a user
	// namespace. Flag is 1 when the namespace exists.
	KindNamespaceCreated Kind = iota + 1

	// KindNegotiationAck is sent by the parent after the id maps are written.
	// Flag is 1 when the parent failed.
	KindNegotiationAck

	// KindChildFailed is sent by the child right before it exits on a setup failure.
	KindChildFailed
)

func (k Kind) String() string {
	switch k {
	case KindNamespaceCreated:
		return "namespace_created"
	case KindNegotiationAck:
		return "negotiation_ack"
	case KindChildFailed:
		return "child_failed"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Message is the wire format of the handshake. The layout is shared with the
// raw child in pkg/forkexec, do not reorder.
type Message struct {
	Kind Kind
	// Flag is the boolean payload, or the step index for KindChildFailed
	Flag     uint32
	Location uint32
	Errno    uint32
}

// Size is the encoded size of a Message
const Size = int(unsafe.Sizeof(Message{}))

// NamespaceCreated reports whether the child created its user namespace
func NamespaceCreated(created bool) Message {
	return Message{Kind: KindNamespaceCreated, Flag: boolToFlag(created)}
}

// NegotiationAck reports whether the parent failed to map the child's ids
func NegotiationAck(failed bool) Message {
	return Message{Kind: KindNegotiationAck, Flag: boolToFlag(failed)}
}

// ChildFailed reports a child setup failure at location (and step index)
func ChildFailed(location, index uint32, errno syscall.Errno) Message {
	return Message{Kind: KindChildFailed, Flag: index, Location: location, Errno: uint32(errno)}
}

// Bool returns the boolean payload
func (m Message) Bool() bool {
	return m.Flag != 0
}

func (m Message) String() string {
	if m.Kind == KindChildFailed {
		return fmt.Sprintf("%v[loc=%d,idx=%d,errno=%v]", m.Kind, m.Location, m.Flag, syscall.Errno(m.Errno))
	}
	return fmt.Sprintf("%v(%v)", m.Kind, m.Bool())
}

// MarshalBinary encodes m in native byte order
func (m Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, Size)
	binary.NativeEndian.PutUint32(b[0:], uint32(m.Kind))
	binary.NativeEndian.PutUint32(b[4:], m.Flag)
	binary.NativeEndian.PutUint32(b[8:], m.Location)
	binary.NativeEndian.PutUint32(b[12:], m.Errno)
	return b, nil
}

// UnmarshalBinary decodes a message written by MarshalBinary or by the raw child
func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) != Size {
		return fmt.Errorf("handshake: message of %d bytes, want %d", len(b), Size)
	}
	m.Kind = Kind(binary.NativeEndian.Uint32(b[0:]))
	m.Flag = binary.NativeEndian.Uint32(b[4:])
	m.Location = binary.NativeEndian.Uint32(b[8:])
	m.Errno = binary.NativeEndian.Uint32(b[12:])
	if m.Kind < KindNamespaceCreated || m.Kind > KindChildFailed {
		return fmt.Errorf("handshake: unknown message %v", m.Kind)
	}
	return nil
}

func boolToFlag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
