/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: gene.go
Description: Gene and tree model for the Choronzon fuzzer. A gene is one elementary
structural unit of a file format (e.g. a PNG chunk); a chromosome tree is an arena of
genes with child references stored as indices, which makes clones cheap and guarantees
an acyclic structure by construction.
*/

package chromosome

import "bytes"

// Flag describes the structural properties of a gene.
type Flag uint8

const (
	// FlagStructural marks genes that recombinators may reorder,
	// duplicate or remove.
	FlagStructural Flag = 1 << iota

	// FlagEssential marks genes that must remain present for
	// serialization to succeed.
	FlagEssential

	// FlagLeaf marks genes that may not carry children.
	FlagLeaf
)

// Gene is a single node in a chromosome tree. The Payload is owned by the
// gene; Children holds arena indices into the owning Tree.
type Gene struct {
	Kind    string `json:"kind"`    // Format-defined discriminator (e.g. chunk tag)
	Payload []byte `json:"payload"` // Fuzzable byte sequence owned by this gene
	Flags   Flag   `json:"flags"`   // Structural metadata

	children []int // Arena indices of child genes, in order
}

// Structural reports whether recombinators may move this gene.
func (g *Gene) Structural() bool {
	return g.Flags&FlagStructural != 0
}

// Essential reports whether this gene must survive every structural edit.
func (g *Gene) Essential() bool {
	return g.Flags&FlagEssential != 0
}

// Leaf reports whether this gene refuses children.
func (g *Gene) Leaf() bool {
	return g.Flags&FlagLeaf != 0
}

// ChildCount returns the number of direct children of this gene.
func (g *Gene) ChildCount() int {
	return len(g.children)
}

// equalGene compares kind and payload only; child comparison is done by the
// tree since children are arena indices.
func equalGene(a, b *Gene) bool {
	return a.Kind == b.Kind && bytes.Equal(a.Payload, b.Payload)
}

// Tree is an arena of genes forming one chromosome tree. Index 0 is always
// the root. Trees are treated as immutable once built: every edit operation
// returns a new, independently owned tree.
type Tree struct {
	nodes []Gene
}

// New creates a tree containing a single root gene.
func New(kind string, payload []byte, flags Flag) *Tree {
	t := &Tree{nodes: make([]Gene, 0, 8)}
	t.nodes = append(t.nodes, Gene{
		Kind:    kind,
		Payload: append([]byte(nil), payload...),
		Flags:   flags,
	})
	return t
}

// Add appends a new gene as the last child of the gene at index parent and
// returns the index of the new gene. Used by deserializers while building a
// tree; it is the only mutating construction primitive and must not be used
// on a tree that has been shared.
func (t *Tree) Add(parent int, kind string, payload []byte, flags Flag) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, Gene{
		Kind:    kind,
		Payload: append([]byte(nil), payload...),
		Flags:   flags,
	})
	t.nodes[parent].children = append(t.nodes[parent].children, idx)
	return idx
}

// Root returns the root gene of the tree.
func (t *Tree) Root() *Gene {
	return &t.nodes[0]
}

// Len returns the total number of genes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// gene returns the gene at an arena index.
func (t *Tree) gene(idx int) *Gene {
	return &t.nodes[idx]
}
