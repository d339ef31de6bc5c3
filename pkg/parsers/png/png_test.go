/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: png_test.go
Description: Tests for the PNG format plug-in. Covers deserialization of a minimal
PNG into signature and chunk genes, the byte-for-byte round trip, CRC fixup and the
admissibility predicate.
*/

package png

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/choronzon/pkg/chromosome"
)

// chunk builds one well-formed PNG chunk.
func chunk(tag string, data []byte) []byte {
	out := make([]byte, 8, 12+len(data))
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:], tag)
	out = append(out, data...)

	crc := crc32.NewIEEE()
	crc.Write([]byte(tag))
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	return append(out, sum[:]...)
}

// minimalPNG builds a signature plus IHDR/IDAT/IEND file.
func minimalPNG() []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[:4], 1)  // width
	binary.BigEndian.PutUint32(ihdr[4:8], 1) // height
	ihdr[8] = 8                              // bit depth

	out := append([]byte(nil), Signature...)
	out = append(out, chunk("IHDR", ihdr)...)
	out = append(out, chunk("IDAT", []byte{0x78, 0x9C, 0x62, 0x00, 0x00})...)
	out = append(out, chunk("IEND", nil)...)
	return out
}

// TestDeserializeMinimal tests parsing the minimal PNG into genes
func TestDeserializeMinimal(t *testing.T) {
	format := New()
	tree, err := format.Deserialize(minimalPNG())
	require.NoError(t, err)

	root := tree.Root()
	assert.Equal(t, KindRoot, root.Kind)
	require.Equal(t, 4, root.ChildCount())

	var kinds []string
	tree.Walk(func(p chromosome.Path, g *chromosome.Gene) bool {
		if len(p) == 1 {
			kinds = append(kinds, g.Kind)
		}
		return true
	})
	assert.Equal(t, []string{KindSignature, "IHDR", "IDAT", "IEND"}, kinds)

	// The signature is essential and a leaf, not structural.
	sig, err := tree.At(chromosome.Path{0})
	require.NoError(t, err)
	assert.True(t, sig.Essential())
	assert.True(t, sig.Leaf())
	assert.False(t, sig.Structural())

	// IHDR and IEND must survive removal; IDAT is plain structural.
	ihdr, err := tree.At(chromosome.Path{1})
	require.NoError(t, err)
	assert.True(t, ihdr.Essential())
	assert.True(t, ihdr.Structural())

	idat, err := tree.At(chromosome.Path{2})
	require.NoError(t, err)
	assert.False(t, idat.Essential())
	assert.True(t, idat.Structural())
}

// TestRoundTrip tests that serialize(deserialize(s)) reproduces the input
func TestRoundTrip(t *testing.T) {
	format := New()
	input := minimalPNG()

	tree, err := format.Deserialize(input)
	require.NoError(t, err)
	output, err := format.Serialize(tree)
	require.NoError(t, err)
	assert.Equal(t, input, output)

	// A second round trip yields a structurally equal tree.
	tree2, err := format.Deserialize(output)
	require.NoError(t, err)
	assert.True(t, tree.Equal(tree2))
}

// TestSerializeFixesCRC tests that chunk CRCs are recomputed from payloads
func TestSerializeFixesCRC(t *testing.T) {
	format := New()
	tree, err := format.Deserialize(minimalPNG())
	require.NoError(t, err)

	// Corrupt the IDAT payload; serialization must emit a matching CRC.
	mutated, err := tree.SetPayloadAt(chromosome.Path{2}, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	out, err := format.Serialize(mutated)
	require.NoError(t, err)

	// The IDAT chunk follows the signature and the 25-byte IHDR chunk; its
	// emitted CRC must match the new payload.
	idatStart := len(Signature) + 12 + 13
	assert.Equal(t, chunk("IDAT", []byte{0xDE, 0xAD, 0xBE, 0xEF}), out[idatStart:idatStart+16])

	reparsed, err := format.Deserialize(out)
	require.NoError(t, err)
	idat, err := reparsed.At(chromosome.Path{2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, idat.Payload)
}

// TestDeserializeRejectsMalformed tests parse error reporting
func TestDeserializeRejectsMalformed(t *testing.T) {
	format := New()

	_, err := format.Deserialize([]byte("short"))
	assert.Error(t, err)

	_, err = format.Deserialize([]byte("notapngfile!"))
	assert.Error(t, err)

	// Signature followed by a truncated chunk.
	truncated := append(append([]byte(nil), Signature...), 0x00, 0x00)
	_, err = format.Deserialize(truncated)
	assert.Error(t, err)
}

// TestAdmissible tests the structural predicate
func TestAdmissible(t *testing.T) {
	format := New()

	assert.True(t, format.Admissible(KindRoot, KindSignature, 0))
	assert.False(t, format.Admissible(KindRoot, KindSignature, 1))
	assert.True(t, format.Admissible(KindRoot, "IDAT", 1))
	assert.True(t, format.Admissible(KindRoot, "tEXt", 3))
	assert.False(t, format.Admissible(KindRoot, "IDAT", 0))
	assert.False(t, format.Admissible("IDAT", "IDAT", 0))
}
