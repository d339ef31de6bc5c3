/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mutators.go
Description: Byte-level mutation operators for the Choronzon fuzzer. Each mutator
acts on one gene payload and returns a fuzzed copy; inputs are never modified.
Multi-edit mutators take their budget as a fraction of the payload size, clamped
to [1, len(payload)]; byte_insert clamps to len(payload)+1 and byte_delete to
len(payload)-1.
*/

package strategies

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/kleascm/choronzon/pkg/chromosome"
	"github.com/kleascm/choronzon/pkg/interfaces"
)

// budget converts a fraction of the payload size into an edit count,
// clamped to [1, n].
func budget(fraction float64, n int) int {
	k := int(fraction * float64(n))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// dup returns an independent copy of a payload.
func dup(payload []byte) []byte {
	return append([]byte(nil), payload...)
}

// BitFlipMutator flips random bits in the payload.
type BitFlipMutator struct {
	fraction float64 // Fraction of the payload size spent as bit flips
}

// NewBitFlipMutator creates a new bit flip mutator.
func NewBitFlipMutator(fraction float64) *BitFlipMutator {
	return &BitFlipMutator{fraction: fraction}
}

// Mutate flips n random bits in a copy of the payload.
func (m *BitFlipMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	fuzzed := dup(payload)
	n := budget(m.fraction, len(fuzzed))
	for i := 0; i < n; i++ {
		bit := rng.IntN(len(fuzzed) * 8)
		fuzzed[bit/8] ^= 1 << (bit % 8)
	}
	return fuzzed
}

func (m *BitFlipMutator) Name() string { return "bit_flip" }

func (m *BitFlipMutator) Description() string {
	return "Flips random bits in one gene payload"
}

// ByteFlipMutator XORs random bytes with random nonzero masks.
type ByteFlipMutator struct {
	fraction float64
}

// NewByteFlipMutator creates a new byte flip mutator.
func NewByteFlipMutator(fraction float64) *ByteFlipMutator {
	return &ByteFlipMutator{fraction: fraction}
}

// Mutate XORs n random bytes with random nonzero masks.
func (m *ByteFlipMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	fuzzed := dup(payload)
	n := budget(m.fraction, len(fuzzed))
	for i := 0; i < n; i++ {
		mask := byte(1 + rng.IntN(255))
		fuzzed[rng.IntN(len(fuzzed))] ^= mask
	}
	return fuzzed
}

func (m *ByteFlipMutator) Name() string { return "byte_flip" }

func (m *ByteFlipMutator) Description() string {
	return "XORs random payload bytes with random nonzero masks"
}

// SetHighBitMutator sets the high bit of one byte.
type SetHighBitMutator struct{}

// NewSetHighBitMutator creates a new high-bit set mutator.
func NewSetHighBitMutator() *SetHighBitMutator { return &SetHighBitMutator{} }

// Mutate sets the high bit of one random byte.
func (m *SetHighBitMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	fuzzed := dup(payload)
	fuzzed[rng.IntN(len(fuzzed))] |= 0x80
	return fuzzed
}

func (m *SetHighBitMutator) Name() string { return "byte_set_high_bit" }

func (m *SetHighBitMutator) Description() string {
	return "Sets the high bit of one random payload byte"
}

// ClearHighBitMutator clears the high bit of one byte.
type ClearHighBitMutator struct{}

// NewClearHighBitMutator creates a new high-bit clear mutator.
func NewClearHighBitMutator() *ClearHighBitMutator { return &ClearHighBitMutator{} }

// Mutate clears the high bit of one random byte.
func (m *ClearHighBitMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	fuzzed := dup(payload)
	fuzzed[rng.IntN(len(fuzzed))] &^= 0x80
	return fuzzed
}

func (m *ClearHighBitMutator) Name() string { return "byte_clear_high_bit" }

func (m *ClearHighBitMutator) Description() string {
	return "Clears the high bit of one random payload byte"
}

// RandomByteMutator overwrites one byte with a uniformly random value.
type RandomByteMutator struct{}

// NewRandomByteMutator creates a new random byte mutator.
func NewRandomByteMutator() *RandomByteMutator { return &RandomByteMutator{} }

// Mutate overwrites one random byte with a uniformly random value.
func (m *RandomByteMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	fuzzed := dup(payload)
	fuzzed[rng.IntN(len(fuzzed))] = byte(rng.IntN(256))
	return fuzzed
}

func (m *RandomByteMutator) Name() string { return "random_byte" }

func (m *RandomByteMutator) Description() string {
	return "Overwrites one payload byte with a uniformly random value"
}

// ByteSwapMutator swaps two random byte positions.
type ByteSwapMutator struct{}

// NewByteSwapMutator creates a new byte swap mutator.
func NewByteSwapMutator() *ByteSwapMutator { return &ByteSwapMutator{} }

// Mutate swaps two random byte positions in a copy of the payload.
func (m *ByteSwapMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	fuzzed := dup(payload)
	if len(fuzzed) < 2 {
		return fuzzed
	}
	i := rng.IntN(len(fuzzed))
	j := rng.IntN(len(fuzzed))
	fuzzed[i], fuzzed[j] = fuzzed[j], fuzzed[i]
	return fuzzed
}

func (m *ByteSwapMutator) Name() string { return "byte_swap" }

func (m *ByteSwapMutator) Description() string {
	return "Swaps two random byte positions in one payload"
}

// ByteInsertMutator inserts random bytes at a random position.
type ByteInsertMutator struct {
	fraction float64
}

// NewByteInsertMutator creates a new byte insert mutator.
func NewByteInsertMutator(fraction float64) *ByteInsertMutator {
	return &ByteInsertMutator{fraction: fraction}
}

// Mutate inserts k random bytes at a random position.
func (m *ByteInsertMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	k := budget(m.fraction, len(payload)+1)
	extra := make([]byte, k)
	for i := range extra {
		extra[i] = byte(rng.IntN(256))
	}
	pos := rng.IntN(len(payload) + 1)
	fuzzed := make([]byte, 0, len(payload)+k)
	fuzzed = append(fuzzed, payload[:pos]...)
	fuzzed = append(fuzzed, extra...)
	fuzzed = append(fuzzed, payload[pos:]...)
	return fuzzed
}

func (m *ByteInsertMutator) Name() string { return "byte_insert" }

func (m *ByteInsertMutator) Description() string {
	return "Inserts random bytes at a random payload position"
}

// ByteDeleteMutator removes consecutive bytes at a random position. The
// result always keeps at least one byte so leaf genes never lose their
// payload entirely.
type ByteDeleteMutator struct {
	fraction float64
}

// NewByteDeleteMutator creates a new byte delete mutator.
func NewByteDeleteMutator(fraction float64) *ByteDeleteMutator {
	return &ByteDeleteMutator{fraction: fraction}
}

// Mutate removes up to k consecutive bytes at a random position.
func (m *ByteDeleteMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) < 2 {
		return dup(payload)
	}
	k := budget(m.fraction, len(payload)-1)
	pos := rng.IntN(len(payload) - k + 1)
	fuzzed := make([]byte, 0, len(payload)-k)
	fuzzed = append(fuzzed, payload[:pos]...)
	fuzzed = append(fuzzed, payload[pos+k:]...)
	return fuzzed
}

func (m *ByteDeleteMutator) Name() string { return "byte_delete" }

func (m *ByteDeleteMutator) Description() string {
	return "Removes consecutive bytes at a random payload position"
}

// BoundaryValueMutator replaces an aligned 1/2/4/8-byte window with a
// boundary value.
type BoundaryValueMutator struct{}

// NewBoundaryValueMutator creates a new boundary value mutator.
func NewBoundaryValueMutator() *BoundaryValueMutator { return &BoundaryValueMutator{} }

// windowSizes are the windows a boundary value may be written into.
var windowSizes = []int{1, 2, 4, 8}

// boundaryValues returns the boundary set for a window of the given size.
func boundaryValues(size int) []uint64 {
	allOnes := ^uint64(0) >> (64 - 8*size)
	signedMin := uint64(1) << (8*size - 1)
	return []uint64{
		0, 1, allOnes, allOnes, signedMin,
		0x7F, 0x80, 0xFF, 0xFFFF, 0x7FFFFFFF, 0x80000000,
	}
}

// Mutate writes a boundary value into a random aligned window.
func (m *BoundaryValueMutator) Mutate(rng *rand.Rand, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	fuzzed := dup(payload)

	var feasible []int
	for _, s := range windowSizes {
		if s <= len(fuzzed) {
			feasible = append(feasible, s)
		}
	}
	size := feasible[rng.IntN(len(feasible))]
	pos := rng.IntN(len(fuzzed)/size) * size

	values := boundaryValues(size)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], values[rng.IntN(len(values))])
	copy(fuzzed[pos:pos+size], buf[:size])
	return fuzzed
}

func (m *BoundaryValueMutator) Name() string { return "boundary_value" }

func (m *BoundaryValueMutator) Description() string {
	return "Replaces an aligned window with a boundary value"
}

// DefaultMutators returns the full mutator set with default budgets.
func DefaultMutators() []interfaces.Mutator {
	return []interfaces.Mutator{
		NewBitFlipMutator(0.05),
		NewByteFlipMutator(0.05),
		NewSetHighBitMutator(),
		NewClearHighBitMutator(),
		NewRandomByteMutator(),
		NewByteSwapMutator(),
		NewByteInsertMutator(0.05),
		NewByteDeleteMutator(0.05),
		NewBoundaryValueMutator(),
	}
}

// ApplyMutator applies a byte-level mutator to one randomly chosen
// non-empty payload of the tree. Returns the new tree, or the parent
// unchanged with noop=true when the tree has no fuzzable payload.
func ApplyMutator(rng *rand.Rand, m interfaces.Mutator, t *chromosome.Tree) (*chromosome.Tree, bool) {
	var targets []chromosome.Path
	t.Walk(func(p chromosome.Path, g *chromosome.Gene) bool {
		if len(g.Payload) > 0 {
			targets = append(targets, p)
		}
		return true
	})
	if len(targets) == 0 {
		return t, true
	}

	path := targets[rng.IntN(len(targets))]
	g, err := t.At(path)
	if err != nil {
		return t, true
	}
	out, err := t.SetPayloadAt(path, m.Mutate(rng, g.Payload))
	if err != nil {
		return t, true
	}
	return out, false
}
