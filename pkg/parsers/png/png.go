/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: png.go
Description: Reference PNG format plug-in for the Choronzon fuzzer. Parses a PNG file
into a gene tree with one gene per chunk, and serializes a gene tree back into a PNG
file, recomputing chunk lengths and CRCs. Chunk data is carried raw so that a
deserialize/serialize round trip of a well-formed file is byte identical.
*/

package png

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/kleascm/choronzon/pkg/chromosome"
	"github.com/kleascm/choronzon/pkg/interfaces"
)

// Signature is the 8-byte PNG file signature.
var Signature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Gene kinds used by this plug-in. The root is KindRoot; its first child is
// always KindSignature; every further child is a chunk gene whose kind is
// the four-character ASCII chunk tag.
const (
	KindRoot      = "PNG"
	KindSignature = "SIG"
)

// Format implements the PNG plug-in.
type Format struct{}

// New creates the PNG format plug-in.
func New() *Format {
	return &Format{}
}

// Name returns the plug-in name used in configuration.
func (f *Format) Name() string {
	return "png"
}

// chunkFlags returns the gene flags for a chunk tag. All chunks are
// structural leaves; IHDR and IEND must additionally survive removal.
func chunkFlags(tag string) chromosome.Flag {
	flags := chromosome.FlagStructural | chromosome.FlagLeaf
	if tag == "IHDR" || tag == "IEND" {
		flags |= chromosome.FlagEssential
	}
	return flags
}

// Deserialize parses the bytes of a PNG file into a gene tree.
func (f *Format) Deserialize(data []byte) (*chromosome.Tree, error) {
	if len(data) < len(Signature) {
		return nil, fmt.Errorf("%w: file shorter than PNG signature", interfaces.ErrParse)
	}
	for i, b := range Signature {
		if data[i] != b {
			return nil, fmt.Errorf("%w: bad PNG signature", interfaces.ErrParse)
		}
	}

	t := chromosome.New(KindRoot, nil, 0)
	t.Add(0, KindSignature, Signature, chromosome.FlagEssential|chromosome.FlagLeaf)

	off := len(Signature)
	for off < len(data) {
		if len(data)-off < 12 {
			return nil, fmt.Errorf("%w: truncated chunk at offset %d", interfaces.ErrParse, off)
		}
		length := binary.BigEndian.Uint32(data[off:])
		tag := string(data[off+4 : off+8])
		if len(data)-off < 12+int(length) {
			return nil, fmt.Errorf("%w: chunk %q overruns file at offset %d", interfaces.ErrParse, tag, off)
		}
		payload := data[off+8 : off+8+int(length)]
		t.Add(0, tag, payload, chunkFlags(tag))
		off += 12 + int(length)
	}

	return t, nil
}

// Serialize emits the PNG bytes of a gene tree. Chunk length and CRC are
// recomputed; the signature gene must be present (it is essential) and is
// written verbatim.
func (f *Format) Serialize(t *chromosome.Tree) ([]byte, error) {
	root := t.Root()
	if root.Kind != KindRoot {
		return nil, fmt.Errorf("%w: root gene is %q, want %q", interfaces.ErrSerialization, root.Kind, KindRoot)
	}

	var out []byte
	sawSignature := false
	var serr error

	t.Walk(func(p chromosome.Path, g *chromosome.Gene) bool {
		if len(p) == 0 {
			return true
		}
		if g.Kind == KindSignature {
			sawSignature = true
			out = append(out, g.Payload...)
			return true
		}
		if len(g.Kind) != 4 {
			serr = fmt.Errorf("%w: chunk tag %q is not 4 bytes", interfaces.ErrSerialization, g.Kind)
			return false
		}
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[:4], uint32(len(g.Payload)))
		copy(hdr[4:], g.Kind)
		out = append(out, hdr[:]...)
		out = append(out, g.Payload...)

		crc := crc32.NewIEEE()
		crc.Write(hdr[4:])
		crc.Write(g.Payload)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], crc.Sum32())
		out = append(out, sum[:]...)
		return true
	})

	if serr != nil {
		return nil, serr
	}
	if !sawSignature {
		return nil, fmt.Errorf("%w: signature gene missing", interfaces.ErrSerialization)
	}
	return out, nil
}

// Admissible reports whether a child kind may appear under a parent kind at
// the given position. The signature belongs only at position 0 of the root;
// chunks take any later position; chunk genes accept no children.
func (f *Format) Admissible(parentKind, childKind string, position int) bool {
	if parentKind != KindRoot {
		return false
	}
	if childKind == KindSignature {
		return position == 0
	}
	return len(childKind) == 4 && position >= 1
}
