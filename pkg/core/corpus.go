/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: corpus.go
Description: Corpus management for the Choronzon fuzzer. Keeps the population
ordered by fitness descending with older members winning ties, rejects byte-level
duplicates, evicts the weakest and oldest member when the cap is exceeded, and
preserves every crashing chromosome in a separate set that is never evicted.
*/

package core

import (
	"crypto/sha256"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/kleascm/choronzon/pkg/interfaces"
)

// HashBytes returns the corpus duplicate-detection hash of serialized
// chromosome bytes.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// Corpus is the ordered population of chromosomes, capped at a configured
// size.
type Corpus struct {
	mu sync.RWMutex

	members []*interfaces.Chromosome // Sorted: fitness descending, then Seq ascending
	hashes  map[string]string        // Serialized-bytes hash -> member ID
	crashes map[interfaces.BasicBlock]*interfaces.Chromosome
	crashID map[string]bool // IDs present in the crashes set

	maxSize int
	nextSeq uint64
}

// NewCorpus creates a corpus with the given member cap.
func NewCorpus(maxSize int) *Corpus {
	return &Corpus{
		hashes:  make(map[string]string),
		crashes: make(map[interfaces.BasicBlock]*interfaces.Chromosome),
		crashID: make(map[string]bool),
		maxSize: maxSize,
	}
}

// Size returns the current number of members.
func (c *Corpus) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Contains reports whether a member with identical serialized bytes is
// already present.
func (c *Corpus) Contains(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.hashes[hash]
	return ok
}

// MinFitness returns the lowest fitness among members. An empty corpus
// admits anything, so it reports negative infinity semantics via ok=false.
func (c *Corpus) MinFitness() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.members) == 0 {
		return 0, false
	}
	return c.members[len(c.members)-1].Fitness, true
}

// Top returns the highest-ranked member, or nil when empty.
func (c *Corpus) Top() *interfaces.Chromosome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.members) == 0 {
		return nil
	}
	return c.members[0]
}

// Members returns the members in rank order.
func (c *Corpus) Members() []*interfaces.Chromosome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*interfaces.Chromosome(nil), c.members...)
}

// Get returns the member with the given ID, or nil.
func (c *Corpus) Get(id string) *interfaces.Chromosome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Insert admits a chromosome, assigns its sequence number and evicts the
// weakest member if the cap is exceeded. Returns the evicted member, if
// any. The caller has already applied the admission rules.
func (c *Corpus) Insert(chromo *interfaces.Chromosome) *interfaces.Chromosome {
	c.mu.Lock()
	defer c.mu.Unlock()

	chromo.Seq = c.nextSeq
	c.nextSeq++

	pos := sort.Search(len(c.members), func(i int) bool {
		m := c.members[i]
		if m.Fitness != chromo.Fitness {
			return m.Fitness < chromo.Fitness
		}
		return m.Seq > chromo.Seq
	})
	c.members = append(c.members, nil)
	copy(c.members[pos+1:], c.members[pos:])
	c.members[pos] = chromo
	c.hashes[chromo.Hash] = chromo.ID

	if len(c.members) <= c.maxSize {
		return nil
	}
	return c.evict()
}

// evict drops the member with the lowest fitness, oldest first among ties.
// Members of the crashes set are skipped. Callers hold the lock.
func (c *Corpus) evict() *interfaces.Chromosome {
	victim := -1
	for i := len(c.members) - 1; i >= 0; i-- {
		m := c.members[i]
		if c.crashID[m.ID] {
			continue
		}
		if victim == -1 {
			victim = i
			continue
		}
		v := c.members[victim]
		if m.Fitness < v.Fitness || (m.Fitness == v.Fitness && m.Seq < v.Seq) {
			victim = i
		}
		if m.Fitness > v.Fitness {
			// Members are fitness-ordered; everything above ranks
			// higher than the current victim.
			break
		}
	}
	if victim == -1 {
		return nil
	}
	evicted := c.members[victim]
	c.members = append(c.members[:victim], c.members[victim+1:]...)
	delete(c.hashes, evicted.Hash)
	return evicted
}

// Tournament selects a parent by tournament-of-k: k members drawn
// uniformly, the fittest kept. Returns nil when the corpus is empty.
func (c *Corpus) Tournament(rng *rand.Rand, k int) *interfaces.Chromosome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.members) == 0 {
		return nil
	}
	best := c.members[rng.IntN(len(c.members))]
	for i := 1; i < k; i++ {
		challenger := c.members[rng.IntN(len(c.members))]
		if challenger.Fitness > best.Fitness {
			best = challenger
		}
	}
	return best
}

// restoreMember re-inserts a checkpointed member, keeping its recorded
// sequence number.
func (c *Corpus) restoreMember(chromo *interfaces.Chromosome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos := sort.Search(len(c.members), func(i int) bool {
		m := c.members[i]
		if m.Fitness != chromo.Fitness {
			return m.Fitness < chromo.Fitness
		}
		return m.Seq > chromo.Seq
	})
	c.members = append(c.members, nil)
	copy(c.members[pos+1:], c.members[pos:])
	c.members[pos] = chromo
	c.hashes[chromo.Hash] = chromo.ID
	if chromo.Seq >= c.nextSeq {
		c.nextSeq = chromo.Seq + 1
	}
}

// AddCrash records a crashing chromosome under its faulting block. Only
// the first representative per crash site is kept; crash members are exempt
// from eviction.
func (c *Corpus) AddCrash(site interfaces.BasicBlock, chromo *interfaces.Chromosome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.crashes[site]; seen {
		return false
	}
	c.crashes[site] = chromo
	c.crashID[chromo.ID] = true
	return true
}

// Crashes returns the crash set keyed by faulting block.
func (c *Corpus) Crashes() map[interfaces.BasicBlock]*interfaces.Chromosome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[interfaces.BasicBlock]*interfaces.Chromosome, len(c.crashes))
	for site, chromo := range c.crashes {
		out[site] = chromo
	}
	return out
}

// restoreCrash re-registers a crash entry from a checkpoint.
func (c *Corpus) restoreCrash(site interfaces.BasicBlock, chromo *interfaces.Chromosome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crashes[site] = chromo
	c.crashID[chromo.ID] = true
}
