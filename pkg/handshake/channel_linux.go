package handshake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/curnrt/curn/pkg/unixsocket"
)

var (
	// ErrClosed is returned when an endpoint is used or closed after Close
	ErrClosed = errors.New("handshake: endpoint already closed")

	// ErrPeerClosed is returned by Receive when the peer closed its endpoint.
	// The child endpoint is close-on-exec, so after the final ack this means
	// the child reached execve.
	ErrPeerClosed = errors.New("handshake: peer closed")

	// ErrTimeout is returned by Receive when the deadline passed
	ErrTimeout = errors.New("handshake: receive timed out")
)

// FailedError carries a KindChildFailed message received from the child
type FailedError struct {
	Message Message
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("handshake: child reported failure %v", e.Message)
}

// ForeignPeerError is returned when a datagram arrives from an unexpected process
type ForeignPeerError struct {
	Want, Got int32
}

func (e *ForeignPeerError) Error() string {
	return fmt.Sprintf("handshake: message from pid %d, expected %d", e.Got, e.Want)
}

// Channel is the parent endpoint of the handshake
type Channel struct {
	sock   *unixsocket.Socket
	fd     int
	peer   int32
	buf    []byte
	closed bool
}

// Pair is the connected socket pair. The parent keeps Parent, the child inherits
// ChildFD across clone.
type Pair struct {
	Parent *Channel

	childFD     int
	childClosed bool
}

// NewPair creates the handshake socket pair. Both descriptors are close-on-exec.
func NewPair() (*Pair, error) {
	fd, err := unixsocket.SocketPair()
	if err != nil {
		return nil, err
	}
	sock, err := unixsocket.NewSocket(fd[0])
	if err != nil {
		syscall.Close(fd[0])
		syscall.Close(fd[1])
		return nil, err
	}
	// kernel attaches the sender pid to each datagram
	if err := sock.SetPassCred(1); err != nil {
		sock.Close()
		syscall.Close(fd[1])
		return nil, err
	}
	ch, err := newChannel(sock)
	if err != nil {
		sock.Close()
		syscall.Close(fd[1])
		return nil, err
	}
	return &Pair{
		Parent:  ch,
		childFD: fd[1],
	}, nil
}

func newChannel(sock *unixsocket.Socket) (*Channel, error) {
	c := &Channel{
		sock: sock,
		fd:   -1,
		// one spare byte detects oversized datagrams
		buf: make([]byte, Size+1),
	}
	sysconn, err := sock.SyscallConn()
	if err != nil {
		return nil, err
	}
	if err := sysconn.Control(func(fd uintptr) { c.fd = int(fd) }); err != nil {
		return nil, err
	}
	return c, nil
}

// FD returns the descriptor backing the parent endpoint. The forked child
// closes its inherited copy so that it observes the parent closing.
func (c *Channel) FD() int {
	return c.fd
}

// ChildFD returns the raw child endpoint, valid until CloseChild
func (p *Pair) ChildFD() int {
	if p.childClosed {
		return -1
	}
	return p.childFD
}

// CloseChild closes the parent's copy of the child endpoint. The launcher's
// child keeps its own copy until execve.
func (p *Pair) CloseChild() error {
	if p.childClosed {
		return ErrClosed
	}
	p.childClosed = true
	return syscall.Close(p.childFD)
}

// ChildClosed reports whether CloseChild was called
func (p *Pair) ChildClosed() bool {
	return p.childClosed
}

// SetPeer restricts Receive to datagrams sent by pid (as seen from this pid
// namespace). Zero accepts any sender.
func (c *Channel) SetPeer(pid int) {
	c.peer = int32(pid)
}

// Send writes one message
func (c *Channel) Send(m Message) error {
	if c.closed {
		return ErrClosed
	}
	b, _ := m.MarshalBinary()
	if err := c.sock.SendMsg(b, nil); err != nil {
		return fmt.Errorf("handshake: send %v: %w", m, err)
	}
	return nil
}

// Receive blocks for one message until deadline (zero deadline blocks forever).
// A KindChildFailed message is returned as *FailedError.
func (c *Channel) Receive(deadline time.Time) (Message, error) {
	var m Message
	if c.closed {
		return m, ErrClosed
	}
	n, cred, err := c.sock.RecvMsg(c.buf, deadline)
	switch {
	case os.IsTimeout(err):
		return m, ErrTimeout
	case errors.Is(err, io.EOF):
		return m, ErrPeerClosed
	case err != nil:
		return m, fmt.Errorf("handshake: receive: %w", err)
	case n == 0:
		return m, ErrPeerClosed
	}
	if c.peer != 0 && cred != nil && cred.Pid != c.peer {
		return m, &ForeignPeerError{Want: c.peer, Got: cred.Pid}
	}
	if err := m.UnmarshalBinary(c.buf[:n]); err != nil {
		return m, err
	}
	if m.Kind == KindChildFailed {
		return m, &FailedError{Message: m}
	}
	return m, nil
}

// Close closes the parent endpoint
func (c *Channel) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return c.sock.Close()
}
