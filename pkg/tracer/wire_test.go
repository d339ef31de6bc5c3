/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: wire_test.go
Description: Tests for the coverage wire protocol ingest. Covers the image table
header, hit records, the termination sentinel taxonomy, clean end-of-stream and
truncated streams.
*/

package tracer

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/choronzon/pkg/interfaces"
)

// header builds an image table header for the given names.
func header(names ...string) []byte {
	out := []byte{byte(len(names))}
	for _, name := range names {
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(name)))
		out = append(out, l[:]...)
		out = append(out, name...)
	}
	return out
}

// record builds one 16-byte hit record.
func record(image, value uint64) []byte {
	var rec [16]byte
	binary.LittleEndian.PutUint64(rec[:8], image)
	binary.LittleEndian.PutUint64(rec[8:], value)
	return rec[:]
}

// TestIngestFatalSignal tests the fatal sentinel: one image "libx", one hit
// at offset 16, then a SIGSEGV sentinel
func TestIngestFatalSignal(t *testing.T) {
	stream := header("libx")
	stream = append(stream, record(0, 16)...)
	stream = append(stream, record(SentinelImage, 11)...)

	trace, err := Read(bytes.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, []string{"libx"}, trace.Images)
	assert.Len(t, trace.Coverage, 1)
	assert.True(t, trace.Coverage.Contains(interfaces.BasicBlock{Image: 0, Offset: 16}))
	assert.Equal(t, interfaces.TermFatalSignal, trace.Termination.Reason)
	assert.Equal(t, uint64(11), trace.Termination.Code)
	assert.Equal(t, interfaces.BasicBlock{Image: 0, Offset: 16}, trace.LastHit)
}

// TestIngestTimeoutSentinel tests the 0xC timeout flush
func TestIngestTimeoutSentinel(t *testing.T) {
	stream := header("libx")
	stream = append(stream, record(0, 0x40)...)
	stream = append(stream, record(SentinelImage, TimeoutCode)...)

	trace, err := Read(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, interfaces.TermTimeout, trace.Termination.Reason)
	assert.Len(t, trace.Coverage, 1)
}

// TestIngestExceptionCode tests the masked exception classification
func TestIngestExceptionCode(t *testing.T) {
	stream := header("target.exe")
	stream = append(stream, record(SentinelImage, 0xC0000005)...)

	trace, err := Read(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, interfaces.TermFatalSignal, trace.Termination.Reason)
	assert.Equal(t, uint64(0xC0000005), trace.Termination.Code)
	assert.True(t, trace.Termination.Fatal())
}

// TestIngestCleanEOF tests that a stream ending on a record boundary is a
// normal termination
func TestIngestCleanEOF(t *testing.T) {
	stream := header("libx", "liby")
	stream = append(stream, record(0, 0x10)...)
	stream = append(stream, record(1, 0x20)...)
	stream = append(stream, record(0, 0x10)...) // duplicate hit

	trace, err := Read(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, interfaces.TermNormal, trace.Termination.Reason)
	assert.Len(t, trace.Coverage, 2)
}

// TestIngestTruncatedRecord tests that a stream cut mid-record is a tracer error
func TestIngestTruncatedRecord(t *testing.T) {
	stream := header("libx")
	stream = append(stream, record(0, 0x10)...)
	stream = append(stream, 0xAA, 0xBB, 0xCC) // partial record

	trace, err := Read(bytes.NewReader(stream))
	assert.ErrorIs(t, err, interfaces.ErrTracer)
	assert.Equal(t, interfaces.TermTracerError, trace.Termination.Reason)
	// Hits collected before the truncation survive.
	assert.Len(t, trace.Coverage, 1)
}

// TestIngestTruncatedHeader tests header validation
func TestIngestTruncatedHeader(t *testing.T) {
	trace, err := Read(bytes.NewReader([]byte{0x02, 0x04, 0x00, 'l'}))
	assert.ErrorIs(t, err, interfaces.ErrTracer)
	assert.Equal(t, interfaces.TermTracerError, trace.Termination.Reason)

	trace, err = Read(bytes.NewReader(nil))
	assert.ErrorIs(t, err, interfaces.ErrTracer)
	assert.Equal(t, interfaces.TermTracerError, trace.Termination.Reason)
}

// TestIngestUnknownImage tests rejection of out-of-table image indices
func TestIngestUnknownImage(t *testing.T) {
	stream := header("libx")
	stream = append(stream, record(7, 0x10)...)

	trace, err := Read(bytes.NewReader(stream))
	assert.ErrorIs(t, err, interfaces.ErrTracer)
	assert.Equal(t, interfaces.TermTracerError, trace.Termination.Reason)
}

// TestIngestImageBasenames tests that image names are reduced to basenames
func TestIngestImageBasenames(t *testing.T) {
	trace, err := Read(bytes.NewReader(header("/usr/lib/libx.so")))
	require.NoError(t, err)
	assert.Equal(t, []string{"libx.so"}, trace.Images)
}
