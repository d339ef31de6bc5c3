/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: recombinators.go
Description: Tree-structural variation operators for the Choronzon fuzzer.
Recombinators move whole genes around instead of mutating bytes: they swap,
duplicate, remove, reorder, cross over and splice structural subtrees, consulting
the format plug-in's admissibility predicate so the result stays a sensible tree.
*/

package strategies

import (
	"math/rand/v2"

	"github.com/kleascm/choronzon/pkg/chromosome"
	"github.com/kleascm/choronzon/pkg/interfaces"
)

// maxTries bounds the random probing an operator does before giving up and
// reporting a no-op.
const maxTries = 8

// site describes one structural gene: where it lives, what it is and what
// its parent is.
type site struct {
	path       chromosome.Path // Path of the gene itself
	parentPath chromosome.Path // Path of its parent
	parentKind string
	pos        int // Child position under the parent
	kind       string
	essential  bool // Subtree contains an essential gene
}

// structuralSites collects every structural, non-root gene of the tree.
func structuralSites(t *chromosome.Tree) []site {
	var sites []site
	t.Walk(func(p chromosome.Path, g *chromosome.Gene) bool {
		if len(p) == 0 || !g.Structural() {
			return true
		}
		parentPath := p[:len(p)-1].Clone()
		parent, err := t.At(parentPath)
		if err != nil {
			return true
		}
		sites = append(sites, site{
			path:       p,
			parentPath: parentPath,
			parentKind: parent.Kind,
			pos:        p[len(p)-1],
			kind:       g.Kind,
			essential:  subtreeHasEssential(t, p),
		})
		return true
	})
	return sites
}

// subtreeHasEssential reports whether any gene under the path (inclusive)
// carries the essential flag.
func subtreeHasEssential(t *chromosome.Tree, p chromosome.Path) bool {
	sub, err := t.SubtreeAt(p)
	if err != nil {
		return true
	}
	found := false
	sub.Walk(func(_ chromosome.Path, g *chromosome.Gene) bool {
		if g.Essential() {
			found = true
			return false
		}
		return true
	})
	return found
}

// structuralChildren returns the positions of the structural children of
// the gene at the path.
func structuralChildren(t *chromosome.Tree, p chromosome.Path) []int {
	g, err := t.At(p)
	if err != nil {
		return nil
	}
	var out []int
	for i := 0; i < g.ChildCount(); i++ {
		child, err := t.At(append(p.Clone(), i))
		if err != nil {
			continue
		}
		if child.Structural() {
			out = append(out, i)
		}
	}
	return out
}

// internalPaths returns the paths of every gene that can carry children.
func internalPaths(t *chromosome.Tree) []chromosome.Path {
	var out []chromosome.Path
	t.Walk(func(p chromosome.Path, g *chromosome.Gene) bool {
		if !g.Leaf() {
			out = append(out, p)
		}
		return true
	})
	return out
}

// kindAt returns the kind of the gene at the path.
func kindAt(t *chromosome.Tree, p chromosome.Path) string {
	g, err := t.At(p)
	if err != nil {
		return ""
	}
	return g.Kind
}

// GeneSwapRecombinator exchanges two structural children that share a
// parent, within one tree.
type GeneSwapRecombinator struct{}

// NewGeneSwapRecombinator creates a new gene swap recombinator.
func NewGeneSwapRecombinator() *GeneSwapRecombinator { return &GeneSwapRecombinator{} }

// Recombine swaps two random structural siblings whose kinds are admissible
// at each other's positions.
func (r *GeneSwapRecombinator) Recombine(rng *rand.Rand, adm interfaces.Admissibility, a, b *chromosome.Tree) (*chromosome.Tree, bool) {
	parents := internalPaths(a)
	for try := 0; try < maxTries; try++ {
		p := parents[rng.IntN(len(parents))]
		kids := structuralChildren(a, p)
		if len(kids) < 2 {
			continue
		}
		i := kids[rng.IntN(len(kids))]
		j := kids[rng.IntN(len(kids))]
		if i == j {
			continue
		}
		parentKind := kindAt(a, p)
		kindI := kindAt(a, append(p.Clone(), i))
		kindJ := kindAt(a, append(p.Clone(), j))
		if !adm.Admissible(parentKind, kindJ, i) || !adm.Admissible(parentKind, kindI, j) {
			continue
		}
		out, err := a.Swap(append(p.Clone(), i), append(p.Clone(), j))
		if err != nil {
			continue
		}
		return out, false
	}
	return a, true
}

func (r *GeneSwapRecombinator) Arity() int   { return 1 }
func (r *GeneSwapRecombinator) Name() string { return "gene_swap" }

func (r *GeneSwapRecombinator) Description() string {
	return "Exchanges two structural siblings within one tree"
}

// GeneDuplicateRecombinator appends a clone of a structural gene to its own
// parent.
type GeneDuplicateRecombinator struct{}

// NewGeneDuplicateRecombinator creates a new gene duplicate recombinator.
func NewGeneDuplicateRecombinator() *GeneDuplicateRecombinator { return &GeneDuplicateRecombinator{} }

// Recombine clones a random structural gene and appends it to the same
// parent, if admissibility permits.
func (r *GeneDuplicateRecombinator) Recombine(rng *rand.Rand, adm interfaces.Admissibility, a, b *chromosome.Tree) (*chromosome.Tree, bool) {
	sites := structuralSites(a)
	if len(sites) == 0 {
		return a, true
	}
	for try := 0; try < maxTries; try++ {
		s := sites[rng.IntN(len(sites))]
		parent, err := a.At(s.parentPath)
		if err != nil {
			continue
		}
		if !adm.Admissible(s.parentKind, s.kind, parent.ChildCount()) {
			continue
		}
		sub, err := a.SubtreeAt(s.path)
		if err != nil {
			continue
		}
		out, err := a.InsertAt(s.parentPath, parent.ChildCount(), sub)
		if err != nil {
			continue
		}
		return out, false
	}
	return a, true
}

func (r *GeneDuplicateRecombinator) Arity() int   { return 1 }
func (r *GeneDuplicateRecombinator) Name() string { return "gene_duplicate" }

func (r *GeneDuplicateRecombinator) Description() string {
	return "Appends a clone of a structural gene to its parent"
}

// GeneRemoveRecombinator deletes a structural gene, keeping every essential
// gene present and the remaining siblings admissible.
type GeneRemoveRecombinator struct{}

// NewGeneRemoveRecombinator creates a new gene remove recombinator.
func NewGeneRemoveRecombinator() *GeneRemoveRecombinator { return &GeneRemoveRecombinator{} }

// Recombine removes a random structural gene whose subtree holds no
// essential gene.
func (r *GeneRemoveRecombinator) Recombine(rng *rand.Rand, adm interfaces.Admissibility, a, b *chromosome.Tree) (*chromosome.Tree, bool) {
	sites := structuralSites(a)
	if len(sites) == 0 {
		return a, true
	}
	for try := 0; try < maxTries; try++ {
		s := sites[rng.IntN(len(sites))]
		if s.essential {
			continue
		}
		if !r.shiftAdmissible(a, adm, s) {
			continue
		}
		out, err := a.RemoveAt(s.path)
		if err != nil {
			continue
		}
		return out, false
	}
	return a, true
}

// shiftAdmissible verifies that the siblings after the removed position
// remain admissible once they shift left.
func (r *GeneRemoveRecombinator) shiftAdmissible(t *chromosome.Tree, adm interfaces.Admissibility, s site) bool {
	parent, err := t.At(s.parentPath)
	if err != nil {
		return false
	}
	for i := s.pos + 1; i < parent.ChildCount(); i++ {
		kind := kindAt(t, append(s.parentPath.Clone(), i))
		if !adm.Admissible(s.parentKind, kind, i-1) {
			return false
		}
	}
	return true
}

func (r *GeneRemoveRecombinator) Arity() int   { return 1 }
func (r *GeneRemoveRecombinator) Name() string { return "gene_remove" }

func (r *GeneRemoveRecombinator) Description() string {
	return "Deletes a structural gene while keeping essential genes present"
}

// GeneShuffleRecombinator reorders the structural children of one internal
// node; non-structural children keep their positions.
type GeneShuffleRecombinator struct{}

// NewGeneShuffleRecombinator creates a new gene shuffle recombinator.
func NewGeneShuffleRecombinator() *GeneShuffleRecombinator { return &GeneShuffleRecombinator{} }

// Recombine permutes the structural children of one randomly chosen
// internal node.
func (r *GeneShuffleRecombinator) Recombine(rng *rand.Rand, adm interfaces.Admissibility, a, b *chromosome.Tree) (*chromosome.Tree, bool) {
	parents := internalPaths(a)
	for try := 0; try < maxTries; try++ {
		p := parents[rng.IntN(len(parents))]
		kids := structuralChildren(a, p)
		if len(kids) < 2 {
			continue
		}
		perm := rng.Perm(len(kids))
		parentKind := kindAt(a, p)

		// The occupant of kids[perm[i]] moves to position kids[i].
		ok := true
		moved := false
		for i := range kids {
			if perm[i] != i {
				moved = true
			}
			kind := kindAt(a, append(p.Clone(), kids[perm[i]]))
			if !adm.Admissible(parentKind, kind, kids[i]) {
				ok = false
				break
			}
		}
		if !ok || !moved {
			continue
		}

		subs := make([]*chromosome.Tree, len(kids))
		for i := range kids {
			sub, err := a.SubtreeAt(append(p.Clone(), kids[perm[i]]))
			if err != nil {
				ok = false
				break
			}
			subs[i] = sub
		}
		if !ok {
			continue
		}

		out := a
		var err error
		for i := range kids {
			out, err = out.ReplaceAt(append(p.Clone(), kids[i]), subs[i])
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		return out, false
	}
	return a, true
}

func (r *GeneShuffleRecombinator) Arity() int   { return 1 }
func (r *GeneShuffleRecombinator) Name() string { return "gene_shuffle" }

func (r *GeneShuffleRecombinator) Description() string {
	return "Reorders the structural children of one internal node"
}

// CrossOverRecombinator replaces a structural subtree of one parent with a
// structural subtree drawn from a second parent.
type CrossOverRecombinator struct{}

// NewCrossOverRecombinator creates a new cross-over recombinator.
func NewCrossOverRecombinator() *CrossOverRecombinator { return &CrossOverRecombinator{} }

// Recombine grafts a random structural subtree of b over a random
// structural subtree of a, when the donor kind is admissible at the target
// position.
func (r *CrossOverRecombinator) Recombine(rng *rand.Rand, adm interfaces.Admissibility, a, b *chromosome.Tree) (*chromosome.Tree, bool) {
	if b == nil {
		return a, true
	}
	targets := structuralSites(a)
	donors := structuralSites(b)
	if len(targets) == 0 || len(donors) == 0 {
		return a, true
	}
	for try := 0; try < maxTries; try++ {
		target := targets[rng.IntN(len(targets))]
		donor := donors[rng.IntN(len(donors))]
		if target.essential && target.kind != donor.kind {
			continue
		}
		if !adm.Admissible(target.parentKind, donor.kind, target.pos) {
			continue
		}
		sub, err := b.SubtreeAt(donor.path)
		if err != nil {
			continue
		}
		out, err := a.ReplaceAt(target.path, sub)
		if err != nil {
			continue
		}
		return out, false
	}
	return a, true
}

func (r *CrossOverRecombinator) Arity() int   { return 2 }
func (r *CrossOverRecombinator) Name() string { return "cross_over" }

func (r *CrossOverRecombinator) Description() string {
	return "Replaces a structural subtree with one drawn from a second parent"
}

// GeneSpliceRecombinator inserts a structural subtree from a second parent
// at an admissible insertion point.
type GeneSpliceRecombinator struct{}

// NewGeneSpliceRecombinator creates a new gene splice recombinator.
func NewGeneSpliceRecombinator() *GeneSpliceRecombinator { return &GeneSpliceRecombinator{} }

// Recombine inserts a random structural subtree of b into a at an
// admissible position.
func (r *GeneSpliceRecombinator) Recombine(rng *rand.Rand, adm interfaces.Admissibility, a, b *chromosome.Tree) (*chromosome.Tree, bool) {
	if b == nil {
		return a, true
	}
	donors := structuralSites(b)
	parents := internalPaths(a)
	if len(donors) == 0 || len(parents) == 0 {
		return a, true
	}
	for try := 0; try < maxTries; try++ {
		donor := donors[rng.IntN(len(donors))]
		p := parents[rng.IntN(len(parents))]
		parent, err := a.At(p)
		if err != nil {
			continue
		}
		pos := rng.IntN(parent.ChildCount() + 1)
		if !adm.Admissible(parent.Kind, donor.kind, pos) {
			continue
		}
		if !r.shiftAdmissible(a, adm, p, parent.Kind, pos) {
			continue
		}
		sub, err := b.SubtreeAt(donor.path)
		if err != nil {
			continue
		}
		out, err := a.InsertAt(p, pos, sub)
		if err != nil {
			continue
		}
		return out, false
	}
	return a, true
}

// shiftAdmissible verifies that the siblings at and after the insertion
// position remain admissible once they shift right.
func (r *GeneSpliceRecombinator) shiftAdmissible(t *chromosome.Tree, adm interfaces.Admissibility, p chromosome.Path, parentKind string, pos int) bool {
	parent, err := t.At(p)
	if err != nil {
		return false
	}
	for i := pos; i < parent.ChildCount(); i++ {
		kind := kindAt(t, append(p.Clone(), i))
		if !adm.Admissible(parentKind, kind, i+1) {
			return false
		}
	}
	return true
}

func (r *GeneSpliceRecombinator) Arity() int   { return 2 }
func (r *GeneSpliceRecombinator) Name() string { return "gene_splice" }

func (r *GeneSpliceRecombinator) Description() string {
	return "Inserts a subtree from a second parent at an admissible position"
}

// DefaultRecombinators returns the full recombinator set.
func DefaultRecombinators() []interfaces.Recombinator {
	return []interfaces.Recombinator{
		NewGeneSwapRecombinator(),
		NewGeneDuplicateRecombinator(),
		NewGeneRemoveRecombinator(),
		NewGeneShuffleRecombinator(),
		NewCrossOverRecombinator(),
		NewGeneSpliceRecombinator(),
	}
}
