// Package pipe collects at most a bounded number of bytes written to the
// write end of an os pipe, e.g. by a C library exporting to a descriptor.
package pipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Buffer is the read side of a pipe copied into memory up to Max bytes.
// Bytes beyond Max are drained and dropped so the writer never blocks.
type Buffer struct {
	W      *os.File
	Max    int64
	Buffer *bytes.Buffer
	Done   <-chan struct{}
}

// NewBuffer creates the pipe and starts the copying goroutine. The caller
// closes W once writing finished, Done is closed after the read side saw EOF.
func NewBuffer(max int64) (*Buffer, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	buffer := new(bytes.Buffer)
	done := make(chan struct{})
	go func() {
		defer r.Close()
		// one extra byte detects the overflow
		io.CopyN(buffer, r, max+1)
		io.Copy(io.Discard, r)
		close(done)
	}()
	return &Buffer{
		W:      w,
		Max:    max,
		Buffer: buffer,
		Done:   done,
	}, nil
}

// Wait blocks until the read side finished, W must have been closed
func (b *Buffer) Wait() []byte {
	<-b.Done
	if b.Overflowed() {
		return b.Buffer.Bytes()[:b.Max]
	}
	return b.Buffer.Bytes()
}

// Overflowed reports whether more than Max bytes were written, valid after Done
func (b *Buffer) Overflowed() bool {
	return int64(b.Buffer.Len()) > b.Max
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[%d/%d]", b.Buffer.Len(), b.Max)
}
