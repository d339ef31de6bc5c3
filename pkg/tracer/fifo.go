/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fifo.go
Description: FIFO transport for the coverage stream. The engine creates the pipe
before spawning the target, holds a write-side keepalive so the read side only sees
end-of-file when the engine releases it, and removes the pipe at trial end.
*/

package tracer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kleascm/choronzon/pkg/interfaces"
)

// Pipe is one trial's coverage FIFO. The keepalive write end prevents a
// premature EOF between tracer startup and the first flush.
type Pipe struct {
	Path      string
	reader    *os.File
	keepalive *os.File
}

// CreatePipe makes a fresh FIFO at the path and opens both ends. The read
// end is handed to the wire parser; the keepalive end is closed by the
// engine once the target has exited.
func CreatePipe(path string) (*Pipe, error) {
	_ = os.Remove(path)
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return nil, fmt.Errorf("%w: mkfifo %s: %v", interfaces.ErrIO, path, err)
	}

	// Open the read side nonblocking first so the write side can attach,
	// then restore blocking reads for the parser.
	rfd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: open read end: %v", interfaces.ErrIO, err)
	}
	if err := unix.SetNonblock(rfd, false); err != nil {
		_ = unix.Close(rfd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: clear O_NONBLOCK: %v", interfaces.ErrIO, err)
	}
	reader := os.NewFile(uintptr(rfd), path)

	keepalive, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		_ = reader.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: open keepalive end: %v", interfaces.ErrIO, err)
	}

	return &Pipe{Path: path, reader: reader, keepalive: keepalive}, nil
}

// Reader returns the blocking read end of the pipe.
func (p *Pipe) Reader() *os.File {
	return p.reader
}

// Release closes the keepalive write end; once the target's write end is
// also closed the parser sees end-of-file.
func (p *Pipe) Release() {
	if p.keepalive != nil {
		_ = p.keepalive.Close()
		p.keepalive = nil
	}
}

// Close releases the keepalive, closes the read end and removes the FIFO.
func (p *Pipe) Close() error {
	p.Release()
	var err error
	if p.reader != nil {
		err = p.reader.Close()
		p.reader = nil
	}
	_ = os.Remove(p.Path)
	return err
}
