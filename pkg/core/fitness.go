/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fitness.go
Description: Global coverage map and fitness computation for the Choronzon fuzzer.
The map counts how many admitted corpus members have ever hit each basic block;
fitness weights rare blocks higher, so an input that reaches fresh code scores far
above one that retreads common paths.
*/

package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/kleascm/choronzon/pkg/interfaces"
)

// CoverageMap is the campaign-wide basic block counter G.
type CoverageMap struct {
	counts map[interfaces.BasicBlock]uint64
}

// NewCoverageMap creates an empty global coverage map.
func NewCoverageMap() *CoverageMap {
	return &CoverageMap{counts: make(map[interfaces.BasicBlock]uint64)}
}

// Count returns the number of admitted members that have hit the block.
func (g *CoverageMap) Count(b interfaces.BasicBlock) uint64 {
	return g.counts[b]
}

// Len returns the number of distinct blocks ever counted.
func (g *CoverageMap) Len() int {
	return len(g.counts)
}

// Fitness scores a coverage set against the map:
//
//	fitness(C) = sum over e in C of 1 / (1 + G[e])
//
// A block never seen before contributes 1.0; a very common block
// contributes almost nothing.
func (g *CoverageMap) Fitness(c interfaces.CoverageSet) float64 {
	fitness := 0.0
	for b := range c {
		fitness += 1.0 / (1.0 + float64(g.counts[b]))
	}
	return fitness
}

// HasNovel reports whether the set contains a block with a zero count.
func (g *CoverageMap) HasNovel(c interfaces.CoverageSet) bool {
	for b := range c {
		if g.counts[b] == 0 {
			return true
		}
	}
	return false
}

// Credit counts an admitted chromosome's coverage into the map. Only
// blocks not already credited to the chromosome's lineage are counted,
// which prevents double-counting on re-evaluation; the credited set is
// extended in place. Returns the number of newly credited blocks.
func (g *CoverageMap) Credit(c, credited interfaces.CoverageSet) int {
	n := 0
	for b := range c {
		if credited.Contains(b) {
			continue
		}
		g.counts[b]++
		credited.Add(b)
		n++
	}
	return n
}

// WriteTo persists the map as little-endian (image, offset, count) u64
// triples, sorted for a stable on-disk form.
func (g *CoverageMap) WriteTo(w io.Writer) (int64, error) {
	blocks := make([]interfaces.BasicBlock, 0, len(g.counts))
	for b := range g.counts {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Image != blocks[j].Image {
			return blocks[i].Image < blocks[j].Image
		}
		return blocks[i].Offset < blocks[j].Offset
	})

	var written int64
	var rec [24]byte
	for _, b := range blocks {
		binary.LittleEndian.PutUint64(rec[:8], uint64(b.Image))
		binary.LittleEndian.PutUint64(rec[8:16], b.Offset)
		binary.LittleEndian.PutUint64(rec[16:], g.counts[b])
		n, err := w.Write(rec[:])
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("%w: write coverage map: %v", interfaces.ErrIO, err)
		}
	}
	return written, nil
}

// ReadFrom restores a map previously persisted with WriteTo.
func (g *CoverageMap) ReadFrom(r io.Reader) (int64, error) {
	var read int64
	var rec [24]byte
	for {
		n, err := io.ReadFull(r, rec[:])
		read += int64(n)
		if err == io.EOF {
			return read, nil
		}
		if err != nil {
			return read, fmt.Errorf("%w: truncated coverage map", interfaces.ErrIO)
		}
		b := interfaces.BasicBlock{
			Image:  uint16(binary.LittleEndian.Uint64(rec[:8])),
			Offset: binary.LittleEndian.Uint64(rec[8:16]),
		}
		g.counts[b] = binary.LittleEndian.Uint64(rec[16:])
	}
}
