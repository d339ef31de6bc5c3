/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: wire.go
Description: Coverage wire protocol ingest for the Choronzon fuzzer. Reads the
tracer's framed stream: a one-time header carrying the image table, then fixed-size
basic block hit records until a termination sentinel or end-of-stream. All integers
are little-endian.

The stream layout is:

	[image count,         1 byte ]
	per image:
	  [name length,       2 bytes]
	  [name,       name_len bytes]
	per hit:
	  [image index,       8 bytes]
	  [block offset,      8 bytes]

An image index of 0xFFFFFFFFFFFFFFFF marks the termination sentinel; its offset
field carries the fatal code (signal number, or an exception code with the top
two bits of 0xC0000000 set), or 0xC for a timeout flush.
*/

package tracer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/kleascm/choronzon/pkg/interfaces"
)

const (
	// SentinelImage is the image index of the termination sentinel.
	SentinelImage = 0xFFFFFFFFFFFFFFFF

	// TimeoutCode is the sentinel code the tracer flushes when the engine
	// commands a timeout.
	TimeoutCode = 0x0C

	// ExceptionMask marks fatal exception codes on the non-POSIX platform.
	ExceptionMask = 0xC0000000

	recordSize = 16
)

// Trace is the outcome of ingesting one coverage stream.
type Trace struct {
	Images      []string                // Image table from the header, index = position
	Coverage    interfaces.CoverageSet  // Distinct basic blocks hit
	Termination interfaces.Termination  // How the stream ended
	LastHit     interfaces.BasicBlock   // Most recent hit, the fault site on a fatal sentinel
}

// Read ingests a coverage stream until the sentinel or end-of-stream. A
// clean end-of-stream on a record boundary without a sentinel is a normal
// termination; a stream truncated mid-header or mid-record yields a tracer
// error (the caller downgrades it to a timeout when it raised one).
func Read(r io.Reader) (*Trace, error) {
	t := &Trace{Coverage: interfaces.NewCoverageSet()}

	if err := t.readHeader(r); err != nil {
		t.Termination = interfaces.Termination{Reason: interfaces.TermTracerError}
		return t, err
	}

	var rec [recordSize]byte
	for {
		_, err := io.ReadFull(r, rec[:])
		if errors.Is(err, io.EOF) {
			t.Termination = interfaces.Termination{Reason: interfaces.TermNormal}
			return t, nil
		}
		if err != nil {
			t.Termination = interfaces.Termination{Reason: interfaces.TermTracerError}
			return t, fmt.Errorf("%w: stream truncated mid-record", interfaces.ErrTracer)
		}

		image := binary.LittleEndian.Uint64(rec[:8])
		value := binary.LittleEndian.Uint64(rec[8:])

		if image == SentinelImage {
			t.Termination = classify(value)
			return t, nil
		}
		if image >= uint64(len(t.Images)) {
			t.Termination = interfaces.Termination{Reason: interfaces.TermTracerError}
			return t, fmt.Errorf("%w: unknown image index %d", interfaces.ErrTracer, image)
		}

		hit := interfaces.BasicBlock{Image: uint16(image), Offset: value}
		t.Coverage.Add(hit)
		t.LastHit = hit
	}
}

// readHeader parses the one-time image table.
func (t *Trace) readHeader(r io.Reader) error {
	var count [1]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return fmt.Errorf("%w: missing header", interfaces.ErrTracer)
	}
	for i := 0; i < int(count[0]); i++ {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return fmt.Errorf("%w: truncated image table", interfaces.ErrTracer)
		}
		name := make([]byte, binary.LittleEndian.Uint16(lenBuf[:]))
		if _, err := io.ReadFull(r, name); err != nil {
			return fmt.Errorf("%w: truncated image name", interfaces.ErrTracer)
		}
		t.Images = append(t.Images, filepath.Base(string(name)))
	}
	return nil
}

// classify maps a sentinel code to a termination.
func classify(code uint64) interfaces.Termination {
	switch {
	case code == TimeoutCode:
		return interfaces.Termination{Reason: interfaces.TermTimeout}
	case code&ExceptionMask == ExceptionMask:
		return interfaces.Termination{Reason: interfaces.TermFatalSignal, Code: code}
	case code != 0:
		return interfaces.Termination{Reason: interfaces.TermFatalSignal, Code: code}
	}
	return interfaces.Termination{Reason: interfaces.TermNormal}
}
