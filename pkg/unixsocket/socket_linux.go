// Package unixsocket provides a wrapper for Linux SOCK_SEQPACKET unix sockets that
// sends and receives whole datagrams with an optional sender credential and a
// receive deadline.
package unixsocket

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// oob size, enough for a single SCM_CREDENTIALS message
const oobSize = 1 << 10

// Socket wrappers a unix socket connection
type Socket struct {
	*net.UnixConn
	sendBuff []byte
	recvBuff []byte
}

func newSocket(conn *net.UnixConn) *Socket {
	return &Socket{
		UnixConn: conn,
		sendBuff: make([]byte, oobSize),
		recvBuff: make([]byte, oobSize),
	}
}

// NewSocket creates Socket conn struct using existing unix socket fd
// created by socketpair and marks it as close_on_exec (avoid fd leak).
// The fd is owned by the returned Socket (the original is closed after dup).
// Only the wrapped copy is non-blocking, so a raw peer fd of the same pair
// stays blocking.
func NewSocket(fd int) (*Socket, error) {
	if fd < 0 {
		return nil, fmt.Errorf("NewSocket: %d is not a valid fd", fd)
	}
	syscall.SetNonblock(fd, true)
	syscall.CloseOnExec(fd)

	file := os.NewFile(uintptr(fd), "unix-socket")
	if file == nil {
		return nil, fmt.Errorf("NewSocket: %d is not a valid fd", fd)
	}
	defer file.Close()

	conn, err := net.FileConn(file)
	if err != nil {
		return nil, err
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("NewSocket: %d is not a valid unix socket connection", fd)
	}
	return newSocket(unixConn), nil
}

// SocketPair creates a raw connected SOCK_SEQPACKET pair with close_on_exec set
// on both ends. Callers decide which end becomes a Socket.
func SocketPair() ([2]int, error) {
	fd, err := unix.Socketpair(unix.AF_LOCAL, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fd, fmt.Errorf("SocketPair: failed to call socketpair %v", err)
	}
	return fd, nil
}

// NewSocketPair creates connected unix socketpair using SOCK_SEQPACKET
func NewSocketPair() (*Socket, *Socket, error) {
	fd, err := SocketPair()
	if err != nil {
		return nil, nil, err
	}

	ins, err := NewSocket(fd[0])
	if err != nil {
		syscall.Close(fd[0])
		syscall.Close(fd[1])
		return nil, nil, fmt.Errorf("NewSocketPair: failed to call NewSocket on sender %v", err)
	}

	outs, err := NewSocket(fd[1])
	if err != nil {
		ins.Close()
		syscall.Close(fd[1])
		return nil, nil, fmt.Errorf("NewSocketPair: failed to call NewSocket receiver %v", err)
	}

	return ins, outs, nil
}

// SetPassCred set sockopt for pass cred for unix socket
func (s *Socket) SetPassCred(option int) error {
	sysconn, err := s.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := sysconn.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_PASSCRED, option)
	}); err != nil {
		return err
	}
	return serr
}

// SendMsg writes a single datagram, attaching cred when not nil. When cred is nil
// and the receiver enabled SO_PASSCRED, the kernel fills in the sender's identity.
func (s *Socket) SendMsg(b []byte, cred *syscall.Ucred) error {
	oob := bytes.NewBuffer(s.sendBuff[:0])
	if cred != nil {
		oob.Write(syscall.UnixCredentials(cred))
	}
	_, _, err := s.WriteMsgUnix(b, oob.Bytes(), nil)
	return err
}

// RecvMsg reads a single datagram into b. A zero deadline blocks until the peer
// sends or closes; otherwise a read past the deadline fails with an error
// satisfying os.IsTimeout. A closed peer reads as (0, nil, nil).
func (s *Socket) RecvMsg(b []byte, deadline time.Time) (int, *syscall.Ucred, error) {
	if err := s.SetReadDeadline(deadline); err != nil {
		return 0, nil, err
	}
	n, oobn, _, _, err := s.ReadMsgUnix(b, s.recvBuff)
	// the runtime reports a zero length read on a packet socket as io.EOF
	if errors.Is(err, io.EOF) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	msgs, err := syscall.ParseSocketControlMessage(s.recvBuff[:oobn])
	if err != nil {
		return 0, nil, err
	}
	cred, err := parseCred(msgs)
	if err != nil {
		return 0, nil, err
	}
	return n, cred, nil
}

func parseCred(msgs []syscall.SocketControlMessage) (*syscall.Ucred, error) {
	var cred *syscall.Ucred
	for i := range msgs {
		m := &msgs[i]
		if m.Header.Level != syscall.SOL_SOCKET {
			continue
		}
		switch m.Header.Type {
		case syscall.SCM_CREDENTIALS:
			c, err := syscall.ParseUnixCredentials(m)
			if err != nil {
				return nil, err
			}
			cred = c

		case syscall.SCM_RIGHTS:
			// nobody sends descriptors over this socket, do not leak them
			if fds, err := syscall.ParseUnixRights(m); err == nil {
				for _, fd := range fds {
					syscall.Close(fd)
				}
			}
		}
	}
	return cred, nil
}
