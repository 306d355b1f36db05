package handshake

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRaw(t *testing.T, fd int, m Message) {
	t.Helper()
	b, err := m.MarshalBinary()
	require.NoError(t, err)
	n, err := syscall.Write(fd, b)
	require.NoError(t, err)
	require.Equal(t, Size, n)
}

func readRaw(t *testing.T, fd int) Message {
	t.Helper()
	b := make([]byte, Size)
	n, err := syscall.Read(fd, b)
	require.NoError(t, err)
	var m Message
	require.NoError(t, m.UnmarshalBinary(b[:n]))
	return m
}

func newTestPair(t *testing.T) *Pair {
	t.Helper()
	p, err := NewPair()
	require.NoError(t, err)
	t.Cleanup(func() {
		if !p.ChildClosed() {
			p.CloseChild()
		}
		p.Parent.Close()
	})
	return p
}

func TestChannel_RoundTrip(t *testing.T) {
	p := newTestPair(t)

	writeRaw(t, p.ChildFD(), NamespaceCreated(true))
	m, err := p.Parent.Receive(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, KindNamespaceCreated, m.Kind)
	assert.True(t, m.Bool())

	require.NoError(t, p.Parent.Send(NegotiationAck(false)))
	m = readRaw(t, p.ChildFD())
	assert.Equal(t, KindNegotiationAck, m.Kind)
	assert.False(t, m.Bool())
}

func TestChannel_ChildFailed(t *testing.T) {
	p := newTestPair(t)

	writeRaw(t, p.ChildFD(), ChildFailed(7, 2, syscall.ENOENT))
	_, err := p.Parent.Receive(time.Now().Add(time.Second))

	var fe *FailedError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, uint32(7), fe.Message.Location)
	assert.Equal(t, uint32(2), fe.Message.Flag)
	assert.Equal(t, uint32(syscall.ENOENT), fe.Message.Errno)
}

func TestChannel_Timeout(t *testing.T) {
	p := newTestPair(t)

	_, err := p.Parent.Receive(time.Now().Add(20 * time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestChannel_PeerClosed(t *testing.T) {
	p := newTestPair(t)

	require.NoError(t, p.CloseChild())
	_, err := p.Parent.Receive(time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrPeerClosed)
}

func TestChannel_AckThenExec(t *testing.T) {
	p := newTestPair(t)

	writeRaw(t, p.ChildFD(), NamespaceCreated(true))
	require.NoError(t, p.CloseChild())

	m, err := p.Parent.Receive(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, KindNamespaceCreated, m.Kind)

	_, err = p.Parent.Receive(time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrPeerClosed)
}

func TestChannel_SetPeer(t *testing.T) {
	p := newTestPair(t)

	p.Parent.SetPeer(os.Getpid())
	writeRaw(t, p.ChildFD(), NamespaceCreated(false))
	_, err := p.Parent.Receive(time.Now().Add(time.Second))
	require.NoError(t, err)

	p.Parent.SetPeer(os.Getpid() + 1)
	writeRaw(t, p.ChildFD(), NamespaceCreated(false))
	_, err = p.Parent.Receive(time.Now().Add(time.Second))
	var fp *ForeignPeerError
	assert.True(t, errors.As(err, &fp), "got %v", err)
}

func TestChannel_CloseTwice(t *testing.T) {
	p, err := NewPair()
	require.NoError(t, err)

	require.NoError(t, p.CloseChild())
	assert.ErrorIs(t, p.CloseChild(), ErrClosed)
	assert.Equal(t, -1, p.ChildFD())

	require.NoError(t, p.Parent.Close())
	assert.ErrorIs(t, p.Parent.Close(), ErrClosed)
	assert.ErrorIs(t, p.Parent.Send(NegotiationAck(false)), ErrClosed)
	_, err = p.Parent.Receive(time.Time{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMessage_UnmarshalRejects(t *testing.T) {
	var m Message
	assert.Error(t, m.UnmarshalBinary([]byte{1, 2, 3}))

	b, _ := Message{Kind: 42}.MarshalBinary()
	assert.Error(t, m.UnmarshalBinary(b))
}
