/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: tree.go
Description: Tree walking and edit primitives for chromosome trees. All edit
operations return a new root; the original tree is never modified, so variation
operators are trivially restartable and safe under concurrent enumeration.
*/

package chromosome

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPath is returned when a path does not resolve to a gene.
	ErrInvalidPath = errors.New("chromosome: invalid gene path")

	// ErrLeafGene is returned when a child is inserted under a leaf gene.
	ErrLeafGene = errors.New("chromosome: leaf gene cannot take children")

	// ErrNestedPaths is returned when an operation requires two disjoint
	// subtrees but one path is an ancestor of the other.
	ErrNestedPaths = errors.New("chromosome: paths are nested")
)

// Path addresses a gene in a tree as a sequence of child positions starting
// from the root. The empty path addresses the root itself.
type Path []int

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	return append(Path(nil), p...)
}

// String renders the path in the form "/0/3/1".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, i := range p {
		sb.WriteByte('/')
		sb.WriteString(strconv.Itoa(i))
	}
	return sb.String()
}

// isPrefixOf reports whether p is an ancestor path of (or equal to) q.
func (p Path) isPrefixOf(q Path) bool {
	if len(p) > len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// resolve maps a path to an arena index.
func (t *Tree) resolve(p Path) (int, error) {
	idx := 0
	for _, pos := range p {
		kids := t.nodes[idx].children
		if pos < 0 || pos >= len(kids) {
			return 0, fmt.Errorf("%w: %s", ErrInvalidPath, p)
		}
		idx = kids[pos]
	}
	return idx, nil
}

// At returns the gene addressed by the path.
func (t *Tree) At(p Path) (*Gene, error) {
	idx, err := t.resolve(p)
	if err != nil {
		return nil, err
	}
	return t.gene(idx), nil
}

// Walk traverses the tree in pre-order, calling fn with the path and gene of
// every node. Traversal is lazy: returning false from fn stops the walk.
func (t *Tree) Walk(fn func(p Path, g *Gene) bool) {
	t.walk(0, Path{}, fn)
}

func (t *Tree) walk(idx int, p Path, fn func(Path, *Gene) bool) bool {
	if !fn(p.Clone(), t.gene(idx)) {
		return false
	}
	for pos, child := range t.nodes[idx].children {
		if !t.walk(child, append(p, pos), fn) {
			return false
		}
	}
	return true
}

// Paths collects the path of every gene in pre-order, root included.
func (t *Tree) Paths() []Path {
	var out []Path
	t.Walk(func(p Path, _ *Gene) bool {
		out = append(out, p)
		return true
	})
	return out
}

// lnode is the linked working form used internally by edit operations.
// Packing a linked tree back into an arena guarantees the result is acyclic.
type lnode struct {
	g    Gene
	kids []*lnode
}

// unpack copies the subtree rooted at idx into linked form.
func (t *Tree) unpack(idx int) *lnode {
	src := t.gene(idx)
	n := &lnode{g: Gene{
		Kind:    src.Kind,
		Payload: append([]byte(nil), src.Payload...),
		Flags:   src.Flags,
	}}
	for _, child := range src.children {
		n.kids = append(n.kids, t.unpack(child))
	}
	return n
}

// pack flattens a linked tree into a fresh arena.
func pack(root *lnode) *Tree {
	t := &Tree{nodes: make([]Gene, 0, 8)}
	t.packInto(root)
	return t
}

func (t *Tree) packInto(n *lnode) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, Gene{
		Kind:    n.g.Kind,
		Payload: n.g.Payload,
		Flags:   n.g.Flags,
	})
	for _, kid := range n.kids {
		child := t.packInto(kid)
		t.nodes[idx].children = append(t.nodes[idx].children, child)
	}
	return idx
}

// navigate walks a linked tree along a path.
func navigate(root *lnode, p Path) (*lnode, error) {
	n := root
	for _, pos := range p {
		if pos < 0 || pos >= len(n.kids) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPath, p)
		}
		n = n.kids[pos]
	}
	return n, nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	return pack(t.unpack(0))
}

// SubtreeAt returns a deep copy of the subtree rooted at the path.
func (t *Tree) SubtreeAt(p Path) (*Tree, error) {
	idx, err := t.resolve(p)
	if err != nil {
		return nil, err
	}
	return pack(t.unpack(idx)), nil
}

// SetPayloadAt returns a new tree in which the gene at the path carries the
// given payload.
func (t *Tree) SetPayloadAt(p Path, payload []byte) (*Tree, error) {
	root := t.unpack(0)
	n, err := navigate(root, p)
	if err != nil {
		return nil, err
	}
	n.g.Payload = append([]byte(nil), payload...)
	return pack(root), nil
}

// ReplaceAt returns a new tree in which the subtree at the path is replaced
// by a copy of sub. Replacing the root yields a copy of sub.
func (t *Tree) ReplaceAt(p Path, sub *Tree) (*Tree, error) {
	if len(p) == 0 {
		return sub.Clone(), nil
	}
	root := t.unpack(0)
	parent, err := navigate(root, p[:len(p)-1])
	if err != nil {
		return nil, err
	}
	pos := p[len(p)-1]
	if pos < 0 || pos >= len(parent.kids) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	parent.kids[pos] = sub.unpack(0)
	return pack(root), nil
}

// InsertAt returns a new tree in which a copy of sub has been inserted as
// child number index of the gene at the path. An index beyond the current
// child count appends.
func (t *Tree) InsertAt(p Path, index int, sub *Tree) (*Tree, error) {
	root := t.unpack(0)
	n, err := navigate(root, p)
	if err != nil {
		return nil, err
	}
	if n.g.Flags&FlagLeaf != 0 {
		return nil, ErrLeafGene
	}
	if index < 0 {
		index = 0
	}
	if index > len(n.kids) {
		index = len(n.kids)
	}
	graft := sub.unpack(0)
	n.kids = append(n.kids, nil)
	copy(n.kids[index+1:], n.kids[index:])
	n.kids[index] = graft
	return pack(root), nil
}

// RemoveAt returns a new tree without the subtree at the path. The root
// cannot be removed.
func (t *Tree) RemoveAt(p Path) (*Tree, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: cannot remove root", ErrInvalidPath)
	}
	root := t.unpack(0)
	parent, err := navigate(root, p[:len(p)-1])
	if err != nil {
		return nil, err
	}
	pos := p[len(p)-1]
	if pos < 0 || pos >= len(parent.kids) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	parent.kids = append(parent.kids[:pos], parent.kids[pos+1:]...)
	return pack(root), nil
}

// Swap returns a new tree in which the subtrees at the two paths have been
// exchanged. The paths must address disjoint subtrees.
func (t *Tree) Swap(a, b Path) (*Tree, error) {
	if a.isPrefixOf(b) || b.isPrefixOf(a) {
		return nil, ErrNestedPaths
	}
	subA, err := t.SubtreeAt(a)
	if err != nil {
		return nil, err
	}
	subB, err := t.SubtreeAt(b)
	if err != nil {
		return nil, err
	}
	out, err := t.ReplaceAt(a, subB)
	if err != nil {
		return nil, err
	}
	return out.ReplaceAt(b, subA)
}

// Equal reports structural equality: same kind, same payload bytes and
// recursively equal children in order.
func (t *Tree) Equal(o *Tree) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.equalAt(0, o, 0)
}

func (t *Tree) equalAt(ti int, o *Tree, oi int) bool {
	a, b := t.gene(ti), o.gene(oi)
	if !equalGene(a, b) || len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !t.equalAt(a.children[i], o, b.children[i]) {
			return false
		}
	}
	return true
}
