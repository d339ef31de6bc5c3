/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Shared interfaces and data types for the Choronzon fuzzer. Defines the
format plug-in contract, the variation operator contracts, coverage types and the
trial result types used across all packages to break import cycles.
*/

package interfaces

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kleascm/choronzon/pkg/chromosome"
)

// Error kinds. Wrapped with %w throughout so call sites can classify
// failures with errors.Is.
var (
	ErrConfig        = errors.New("configuration error")
	ErrParse         = errors.New("parse error")
	ErrSerialization = errors.New("serialization error")
	ErrTracer        = errors.New("tracer error")
	ErrTargetSpawn   = errors.New("target spawn error")
	ErrTimeout       = errors.New("trial timeout")
	ErrIO            = errors.New("i/o error")
	ErrInterrupted   = errors.New("interrupted")
)

// TerminationReason classifies how a trial ended.
type TerminationReason int

const (
	TermNormal TerminationReason = iota
	TermFatalSignal
	TermTimeout
	TermTracerError
)

// Termination is the termination reason of one trial plus the fatal code
// carried by the tracer sentinel, if any.
type Termination struct {
	Reason TerminationReason `json:"reason"`
	Code   uint64            `json:"code"` // Signal number or exception code for TermFatalSignal
}

// Fatal reports whether the target died on a signal or exception.
func (t Termination) Fatal() bool {
	return t.Reason == TermFatalSignal
}

func (t Termination) String() string {
	switch t.Reason {
	case TermNormal:
		return "normal"
	case TermFatalSignal:
		return fmt.Sprintf("fatal_signal(%d)", t.Code)
	case TermTimeout:
		return "timeout"
	case TermTracerError:
		return "tracer_error"
	}
	return "unknown"
}

// BasicBlock identifies one basic block as (image index, offset from the
// image's load base). Offsets are reloc-independent; image indices are the
// stable 16-bit indices assigned by the tracer at startup.
type BasicBlock struct {
	Image  uint16 `json:"image"`
	Offset uint64 `json:"offset"`
}

func (b BasicBlock) String() string {
	return fmt.Sprintf("%d_%x", b.Image, b.Offset)
}

// CoverageSet is the set of distinct basic blocks observed during one trial.
type CoverageSet map[BasicBlock]struct{}

// NewCoverageSet creates an empty coverage set.
func NewCoverageSet() CoverageSet {
	return make(CoverageSet)
}

// Add inserts a basic block into the set.
func (c CoverageSet) Add(b BasicBlock) {
	c[b] = struct{}{}
}

// Contains reports whether the set holds the given basic block.
func (c CoverageSet) Contains(b BasicBlock) bool {
	_, ok := c[b]
	return ok
}

// Clone returns an independent copy of the set.
func (c CoverageSet) Clone() CoverageSet {
	out := make(CoverageSet, len(c))
	for b := range c {
		out[b] = struct{}{}
	}
	return out
}

// Merge adds every block of other into the set.
func (c CoverageSet) Merge(other CoverageSet) {
	for b := range other {
		c[b] = struct{}{}
	}
}

// Chromosome is a candidate input: a gene tree plus evolutionary metadata.
type Chromosome struct {
	ID         string    `json:"id"`         // Opaque unique identifier
	ParentIDs  []string  `json:"parent_ids"` // Identifiers of the parent(s) that produced this one
	Generation int       `json:"generation"` // Generation number (0 = seed)
	Operators  []string  `json:"operators"`  // Variation operator chain, no-ops marked with ":noop"
	Fitness    float64   `json:"fitness"`    // Last-known fitness score
	Executed   bool      `json:"executed"`   // Whether this chromosome has been run
	CreatedAt  time.Time `json:"created_at"` // When this chromosome was created
	Seq        uint64    `json:"seq"`        // Admission sequence number, used for recency tie-breaks

	Tree *chromosome.Tree `json:"-"` // The gene tree
	Data []byte           `json:"-"` // Serialized bytes of the tree
	Hash string           `json:"-"` // SHA-256 of Data, for duplicate detection

	Coverage    CoverageSet `json:"-"` // Coverage set of the last execution
	Credited    CoverageSet `json:"-"` // Lineage edges already counted in the global map
	Termination Termination `json:"-"` // How the last execution ended
}

// Admissibility is the structural predicate a format plug-in exposes to
// recombinators: whether a child kind may appear under a parent kind at a
// given position.
type Admissibility interface {
	Admissible(parentKind, childKind string, position int) bool
}

// Format is the contract a format plug-in must satisfy. Deserialize must
// accept any valid file of the format; Serialize must always produce bytes
// and may fix up auto-computable fields (lengths, checksums) while
// preserving the tree's logical content.
type Format interface {
	Admissibility

	// Name returns the plug-in name used in configuration.
	Name() string

	// Deserialize parses file bytes into a gene tree.
	Deserialize(data []byte) (*chromosome.Tree, error)

	// Serialize emits the file bytes of a gene tree.
	Serialize(t *chromosome.Tree) ([]byte, error)
}

// Mutator is a single-parent byte-level variation operator. It acts on one
// gene payload and returns the mutated bytes; the input slice is never
// modified.
type Mutator interface {
	// Mutate returns a fuzzed copy of the payload.
	Mutate(rng *rand.Rand, payload []byte) []byte

	// Name returns the canonical operator name.
	Name() string

	// Description returns a description of this mutator.
	Description() string
}

// Recombinator is a one- or two-parent tree-structural variation operator.
// The returned tree is always independently owned; noop is true when no
// admissible edit could be found and the parent is returned unchanged.
type Recombinator interface {
	// Recombine produces a child tree from one or two parents. b is nil
	// for single-parent operators.
	Recombine(rng *rand.Rand, adm Admissibility, a, b *chromosome.Tree) (child *chromosome.Tree, noop bool)

	// Arity returns 1 or 2.
	Arity() int

	// Name returns the canonical operator name.
	Name() string

	// Description returns a description of this recombinator.
	Description() string
}

// TrialResult is what one execution of the target yields.
type TrialResult struct {
	Coverage    CoverageSet   // Distinct basic blocks hit
	Termination Termination   // How the run ended
	FaultSite   BasicBlock    // Last block hit before a fatal sentinel
	Duration    time.Duration // Wall-clock time of the trial
}

// Executor runs the target under the coverage tracer for one trial.
type Executor interface {
	// Initialize prepares the executor for use.
	Initialize(config *Config) error

	// Execute writes the input bytes, runs the target and ingests the
	// coverage stream.
	Execute(data []byte) (*TrialResult, error)

	// Cleanup performs any necessary cleanup.
	Cleanup() error
}
