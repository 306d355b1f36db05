// Package userns implements the parent half of the user namespace negotiation.
//
// The child tries unshare(CLONE_NEWUSER) and reports the outcome. When it
// succeeded, the parent maps container ids [0, Count) to host ids starting at
// Offset, then acknowledges. The child never switches credentials before the
// acknowledgement.
package userns

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/curnrt/curn/pkg/handshake"
)

// Id map of every container
const (
	Offset = 10000
	Count  = 2000
)

// Stage identifies the failing step of the negotiation
type Stage int

// Negotiation failure stages
const (
	StageReceive Stage = iota + 1
	StageWriteUIDMap
	StageOpenUIDMap
	StageWriteGIDMap
	StageOpenGIDMap
	StageSend
)

func (s Stage) String() string {
	switch s {
	case StageReceive:
		return "receive"
	case StageWriteUIDMap:
		return "write uid_map"
	case StageOpenUIDMap:
		return "open uid_map"
	case StageWriteGIDMap:
		return "write gid_map"
	case StageOpenGIDMap:
		return "open gid_map"
	case StageSend:
		return "send"
	default:
		return "unknown"
	}
}

// Error is a failed negotiation
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("userns: %v: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Channel is the parent endpoint of the handshake
type Channel interface {
	Send(handshake.Message) error
	Receive(deadline time.Time) (handshake.Message, error)
}

// MapWriter opens and writes /proc/<pid>/{uid,gid}_map
type MapWriter interface {
	Open(path string) (MapFile, error)
}

// MapFile is an opened id map file
type MapFile interface {
	Write([]byte) (int, error)
	Close() error
}

// Negotiator runs the parent half
type Negotiator struct {
	Channel Channel
	// Writer defaults to the proc filesystem
	Writer MapWriter
	// Logger defaults to the standard logrus logger
	Logger logrus.FieldLogger
}

// Result of a successful negotiation
type Result struct {
	// Created reports whether the child runs in its own user namespace
	Created bool
}

// MapLine is the content written to both id map files
func MapLine() []byte {
	return []byte("0 " + strconv.Itoa(Offset) + " " + strconv.Itoa(Count))
}

// Negotiate waits for the child's namespace report until deadline, writes the
// id maps when required and acknowledges. Map writes never precede the report.
func (n *Negotiator) Negotiate(pid int, deadline time.Time) (Result, error) {
	log := n.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	w := n.Writer
	if w == nil {
		w = ProcWriter{}
	}

	m, err := n.Channel.Receive(deadline)
	if err != nil {
		return Result{}, &Error{Stage: StageReceive, Err: err}
	}
	if m.Kind != handshake.KindNamespaceCreated {
		return Result{}, &Error{Stage: StageReceive, Err: errors.Errorf("unexpected %v", m)}
	}
	created := m.Bool()

	if created {
		base := "/proc/" + strconv.Itoa(pid)
		if err := writeMap(w, base+"/uid_map", StageOpenUIDMap, StageWriteUIDMap); err != nil {
			n.reject(log)
			return Result{}, err
		}
		if err := writeMap(w, base+"/gid_map", StageOpenGIDMap, StageWriteGIDMap); err != nil {
			n.reject(log)
			return Result{}, err
		}
		log.WithField("pid", pid).Info("user namespace mapped")
	} else {
		log.Info("no user namespace set up by the child, continuing")
	}

	log.Debug("id maps done, acknowledging child")
	if err := n.Channel.Send(handshake.NegotiationAck(false)); err != nil {
		return Result{}, &Error{Stage: StageSend, Err: err}
	}
	return Result{Created: created}, nil
}

// reject tells the child to give up, the child treats a true ack as fatal
func (n *Negotiator) reject(log logrus.FieldLogger) {
	if err := n.Channel.Send(handshake.NegotiationAck(true)); err != nil {
		log.WithError(err).Debug("failed to reject negotiation")
	}
}

func writeMap(w MapWriter, path string, openStage, writeStage Stage) error {
	f, err := w.Open(path)
	if err != nil {
		return &Error{Stage: openStage, Err: err}
	}
	if _, err := f.Write(MapLine()); err != nil {
		f.Close()
		return &Error{Stage: writeStage, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Stage: writeStage, Err: err}
	}
	return nil
}

// ProcWriter writes the maps through the proc filesystem
type ProcWriter struct{}

// Open opens path for writing
func (ProcWriter) Open(path string) (MapFile, error) {
	f, err := os.OpenFile(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}
