/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: recombinators_test.go
Description: Tests for the tree-structural variation operators. Uses the PNG
plug-in's admissibility predicate and verifies that operators never modify their
parents, never drop essential genes and keep the tree admissible.
*/

package strategies

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/choronzon/pkg/chromosome"
	"github.com/kleascm/choronzon/pkg/interfaces"
	"github.com/kleascm/choronzon/pkg/parsers/png"
)

// pngChunk builds one well-formed PNG chunk.
func pngChunk(tag string, data []byte) []byte {
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

// samplePNGTree deserializes a minimal PNG with two IDAT chunks.
func samplePNGTree(t *testing.T) *chromosome.Tree {
	t.Helper()
	data := append([]byte(nil), png.Signature...)
	data = append(data, pngChunk("IHDR", make([]byte, 13))...)
	data = append(data, pngChunk("IDAT", []byte{1, 2, 3})...)
	data = append(data, pngChunk("IDAT", []byte{4, 5, 6})...)
	data = append(data, pngChunk("IEND", nil)...)

	tree, err := png.New().Deserialize(data)
	require.NoError(t, err)
	return tree
}

// admissibleTree checks every parent/child edge against the predicate.
func admissibleTree(t *testing.T, adm interfaces.Admissibility, tree *chromosome.Tree) {
	t.Helper()
	tree.Walk(func(p chromosome.Path, g *chromosome.Gene) bool {
		for i := 0; i < g.ChildCount(); i++ {
			child, err := tree.At(append(p.Clone(), i))
			require.NoError(t, err)
			assert.True(t, adm.Admissible(g.Kind, child.Kind, i),
				"child %s at position %d under %s", child.Kind, i, g.Kind)
		}
		return true
	})
}

// TestRecombinatorsPreserveParents tests that no operator modifies its input trees
func TestRecombinatorsPreserveParents(t *testing.T) {
	format := png.New()
	a := samplePNGTree(t)
	b := samplePNGTree(t)
	pristineA := a.Clone()
	pristineB := b.Clone()

	for _, r := range DefaultRecombinators() {
		rng := newRNG(11)
		for i := 0; i < 20; i++ {
			var second *chromosome.Tree
			if r.Arity() == 2 {
				second = b
			}
			r.Recombine(rng, format, a, second)
		}
		assert.True(t, a.Equal(pristineA), "recombinator %s modified parent A", r.Name())
		assert.True(t, b.Equal(pristineB), "recombinator %s modified parent B", r.Name())
	}
}

// TestRecombinatorsKeepAdmissibility tests structural validity of every child
func TestRecombinatorsKeepAdmissibility(t *testing.T) {
	format := png.New()
	a := samplePNGTree(t)
	b := samplePNGTree(t)

	for _, r := range DefaultRecombinators() {
		rng := newRNG(13)
		for i := 0; i < 20; i++ {
			var second *chromosome.Tree
			if r.Arity() == 2 {
				second = b
			}
			child, noop := r.Recombine(rng, format, a, second)
			if noop {
				assert.True(t, child.Equal(a), "no-op of %s must return the parent unchanged", r.Name())
				continue
			}
			admissibleTree(t, format, child)
		}
	}
}

// TestGeneShuffleKeepsSignatureFirst tests that shuffling never moves the signature
func TestGeneShuffleKeepsSignatureFirst(t *testing.T) {
	format := png.New()
	tree := samplePNGTree(t)
	shuffle := NewGeneShuffleRecombinator()

	shuffled := false
	for seed := uint64(1); seed < 16; seed++ {
		child, noop := shuffle.Recombine(newRNG(seed), format, tree, nil)
		if noop {
			continue
		}
		shuffled = true

		sig, err := child.At(chromosome.Path{0})
		require.NoError(t, err)
		assert.Equal(t, png.KindSignature, sig.Kind)

		data, err := format.Serialize(child)
		require.NoError(t, err)
		assert.Equal(t, []byte(png.Signature), data[:8])
	}
	assert.True(t, shuffled, "shuffle never found a permutation")
}

// TestGeneRemoveKeepsEssentialGenes tests that IHDR and IEND always survive
func TestGeneRemoveKeepsEssentialGenes(t *testing.T) {
	format := png.New()
	tree := samplePNGTree(t)
	remove := NewGeneRemoveRecombinator()

	for seed := uint64(1); seed < 32; seed++ {
		child, noop := remove.Recombine(newRNG(seed), format, tree, nil)
		if noop {
			continue
		}
		assert.Equal(t, tree.Root().ChildCount()-1, child.Root().ChildCount())

		kinds := map[string]int{}
		child.Walk(func(p chromosome.Path, g *chromosome.Gene) bool {
			kinds[g.Kind]++
			return true
		})
		assert.Equal(t, 1, kinds["IHDR"])
		assert.Equal(t, 1, kinds["IEND"])
		assert.Equal(t, 1, kinds[png.KindSignature])
	}
}

// TestGeneDuplicate tests that duplication grows the tree by one subtree
func TestGeneDuplicate(t *testing.T) {
	format := png.New()
	tree := samplePNGTree(t)

	child, noop := NewGeneDuplicateRecombinator().Recombine(newRNG(2), format, tree, nil)
	require.False(t, noop)
	assert.Equal(t, tree.Root().ChildCount()+1, child.Root().ChildCount())
	admissibleTree(t, format, child)
}

// TestCrossOverAndSplice test the two-parent operators
func TestCrossOverAndSplice(t *testing.T) {
	format := png.New()
	a := samplePNGTree(t)
	b := samplePNGTree(t)

	crossedOnce := false
	for seed := uint64(1); seed < 16; seed++ {
		crossed, noop := NewCrossOverRecombinator().Recombine(newRNG(seed), format, a, b)
		if noop {
			continue
		}
		crossedOnce = true
		assert.Equal(t, a.Root().ChildCount(), crossed.Root().ChildCount())
		admissibleTree(t, format, crossed)
	}
	assert.True(t, crossedOnce, "cross_over never found an admissible graft")

	splicedOnce := false
	for seed := uint64(1); seed < 16; seed++ {
		spliced, noop := NewGeneSpliceRecombinator().Recombine(newRNG(seed), format, a, b)
		if noop {
			continue
		}
		splicedOnce = true
		assert.Equal(t, a.Root().ChildCount()+1, spliced.Root().ChildCount())
		admissibleTree(t, format, spliced)
	}
	assert.True(t, splicedOnce, "gene_splice never found an admissible insertion")

	// Two-parent operators without a second parent are no-ops.
	_, noop := NewCrossOverRecombinator().Recombine(newRNG(4), format, a, nil)
	assert.True(t, noop)
	_, noop = NewGeneSpliceRecombinator().Recombine(newRNG(4), format, a, nil)
	assert.True(t, noop)
}

// TestWeightedSelector tests the multiplicative weight updates
func TestWeightedSelector(t *testing.T) {
	sel := NewWeightedSelector([]string{"a", "b", "c"}, nil, 0.1, 0.01)

	total := sel.Weight("a") + sel.Weight("b") + sel.Weight("c")
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.InDelta(t, sel.Weight("a"), sel.Weight("b"), 1e-9)

	before := sel.Weight("a")
	sel.Reward("a")
	assert.Greater(t, sel.Weight("a"), before)

	// Weights stay normalized after updates.
	total = sel.Weight("a") + sel.Weight("b") + sel.Weight("c")
	assert.InDelta(t, 1.0, total, 1e-9)

	// Repeated penalties leave a weight near the floor, never near zero; the
	// floor is applied before renormalization, so it can settle just below.
	for i := 0; i < 200; i++ {
		sel.Penalize("b")
	}
	assert.GreaterOrEqual(t, sel.Weight("b"), 0.01/3)

	// Selection is deterministic under a fixed seed.
	a := NewWeightedSelector([]string{"a", "b", "c"}, nil, 0.1, 0.01)
	var seqA, seqB []string
	rngA, rngB := newRNG(21), newRNG(21)
	for i := 0; i < 10; i++ {
		seqA = append(seqA, a.Pick(rngA))
		seqB = append(seqB, a.Pick(rngB))
	}
	assert.Equal(t, seqA, seqB)
}
