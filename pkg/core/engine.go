/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Generation scheduler for the Choronzon fuzzer. Drives the evolutionary
loop: tournament parent selection, weighted variation, serialization, execution
under the tracer, fitness scoring and corpus admission. A generation is a fixed
number of trials terminated by a checkpoint; the run loop finishes the current
trial, flushes state and exits on interrupt.
*/

package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kleascm/choronzon/pkg/chromosome"
	"github.com/kleascm/choronzon/pkg/interfaces"
	"github.com/kleascm/choronzon/pkg/strategies"
	"github.com/kleascm/choronzon/pkg/utils"
)

// maxNoopRetries bounds how many operators a trial tries before giving up
// on finding an applicable edit.
const maxNoopRetries = 4

// spawnFailureLimit is how many consecutive spawn failures are tolerated
// before the target is considered persistently broken.
const spawnFailureLimit = 3

// Engine owns the corpus, the global coverage map, the operator weights and
// the PRNG, and mutates them only between trials.
type Engine struct {
	config   *interfaces.Config
	logger   *logrus.Logger
	format   interfaces.Format
	executor interfaces.Executor

	corpus *Corpus
	gmap   *CoverageMap
	stats  *Stats

	mutators        map[string]interfaces.Mutator
	recombinators   map[string]interfaces.Recombinator
	mutatorSel      *strategies.WeightedSelector
	recombinatorSel *strategies.WeightedSelector

	pcg *rand.PCG
	rng *rand.Rand

	epoch          int
	trials         int64
	tracerFailures int
	spawnFailures  int
}

// NewEngine wires an engine from its collaborators.
func NewEngine(config *interfaces.Config, logger *logrus.Logger, format interfaces.Format, executor interfaces.Executor) *Engine {
	e := &Engine{
		config:        config,
		logger:        logger,
		format:        format,
		executor:      executor,
		corpus:        NewCorpus(config.CorpusSize),
		gmap:          NewCoverageMap(),
		stats:         &Stats{StartTime: time.Now()},
		mutators:      make(map[string]interfaces.Mutator),
		recombinators: make(map[string]interfaces.Recombinator),
	}

	var mutatorNames []string
	for _, m := range strategies.DefaultMutators() {
		e.mutators[m.Name()] = m
		mutatorNames = append(mutatorNames, m.Name())
	}
	var recombinatorNames []string
	for _, r := range strategies.DefaultRecombinators() {
		e.recombinators[r.Name()] = r
		recombinatorNames = append(recombinatorNames, r.Name())
	}
	e.mutatorSel = strategies.NewWeightedSelector(mutatorNames, config.MutatorWeights, config.Alpha, config.WeightFloor)
	e.recombinatorSel = strategies.NewWeightedSelector(recombinatorNames, config.RecombinatorWeights, config.Alpha, config.WeightFloor)

	e.pcg = rand.NewPCG(config.Seed, config.Seed^0x9E3779B97F4A7C15)
	e.rng = rand.New(e.pcg)
	return e
}

// Stats returns the campaign counters.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Corpus returns the corpus managed by the engine.
func (e *Engine) Corpus() *Corpus {
	return e.corpus
}

// rngReader adapts the engine PRNG to io.Reader so chromosome identifiers
// stay deterministic under a fixed seed.
type rngReader struct {
	rng *rand.Rand
}

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint64())
	}
	return len(p), nil
}

// newID derives a fresh chromosome identifier from the engine PRNG.
func (e *Engine) newID() string {
	id, err := uuid.NewRandomFromReader(rngReader{e.rng})
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Bootstrap builds generation zero: every seed file is parsed, executed
// under the tracer, scored and admitted through the normal rules. A seed
// that fails to parse is logged and skipped; a campaign with no valid seed
// is fatal.
func (e *Engine) Bootstrap(ctx context.Context) error {
	entries, err := os.ReadDir(e.config.SeedDir)
	if err != nil {
		return fmt.Errorf("%w: seed directory: %v", interfaces.ErrConfig, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return interfaces.ErrInterrupted
		}
		path := filepath.Join(e.config.SeedDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			e.logger.Warnf("Failed to read seed %s: %v", path, err)
			continue
		}
		tree, err := e.format.Deserialize(data)
		if err != nil {
			e.logger.Warnf("Failed to parse seed %s: %v", path, err)
			continue
		}
		serialized, err := e.format.Serialize(tree)
		if err != nil {
			e.logger.Warnf("Failed to reserialize seed %s: %v", path, err)
			continue
		}
		hash := HashBytes(serialized)
		if e.corpus.Contains(hash) {
			e.logger.Debugf("Seed %s duplicates an earlier seed", path)
			loaded++
			continue
		}

		seed := &interfaces.Chromosome{
			ID:        e.newID(),
			CreatedAt: time.Now(),
			Tree:      tree,
			Data:      serialized,
			Hash:      hash,
			Credited:  interfaces.NewCoverageSet(),
		}
		loaded++

		if err := e.evaluate(seed); err != nil {
			return err
		}
	}

	if loaded == 0 {
		return fmt.Errorf("%w: no valid seed in %s", interfaces.ErrParse, e.config.SeedDir)
	}
	if e.corpus.Size() == 0 {
		return fmt.Errorf("%w: no seed produced an admissible chromosome", interfaces.ErrParse)
	}
	e.logger.Infof("Bootstrap complete: %d corpus members from %d seeds", e.corpus.Size(), loaded)
	return nil
}

// Run executes the evolutionary loop until the generation cap is reached or
// the context is cancelled. The checkpoint written at the last generation
// boundary is the resumable state of record.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if cap := e.config.GenerationCap; cap > 0 && e.epoch >= cap {
			break
		}
		for i := 0; i < e.config.GenerationTrials; i++ {
			if ctx.Err() != nil {
				e.flush()
				return interfaces.ErrInterrupted
			}
			if err := e.runTrial(); err != nil {
				e.flush()
				return err
			}
		}
		e.epoch++
		e.flush()
		if e.config.KeepGenerations {
			if err := WriteGenerationDump(e.config.RunDir, e.epoch, e.corpus); err != nil {
				e.logger.Warnf("Generation dump failed: %v", err)
			}
		}
		e.logGeneration()
	}
	e.flush()
	return nil
}

// runTrial performs one select -> vary -> serialize -> execute -> score ->
// admit cycle.
func (e *Engine) runTrial() error {
	e.trials++
	e.stats.IncrementTrials()

	child, opName := e.vary()
	if child == nil {
		e.stats.IncrementDiscarded()
		e.logger.WithFields(logrus.Fields{
			"trial":  e.trials,
			"reason": "no_applicable_operator",
		}).Info("trial discarded")
		return nil
	}

	data, err := e.format.Serialize(child.Tree)
	if err != nil {
		e.penalize(opName)
		e.discard(child, "serialization_error", err)
		return nil
	}
	child.Data = data
	child.Hash = HashBytes(data)

	if e.corpus.Contains(child.Hash) {
		e.discard(child, "duplicate_bytes", nil)
		return nil
	}

	result, err := e.executor.Execute(data)
	if err != nil {
		if errors.Is(err, interfaces.ErrTargetSpawn) {
			e.spawnFailures++
			if e.spawnFailures >= spawnFailureLimit {
				return fmt.Errorf("%w: %d consecutive spawn failures", interfaces.ErrTargetSpawn, e.spawnFailures)
			}
		}
		e.discard(child, "execution_error", err)
		return nil
	}
	e.spawnFailures = 0

	child.Executed = true
	child.Coverage = result.Coverage
	child.Termination = result.Termination

	if result.Termination.Reason == interfaces.TermTracerError {
		e.stats.IncrementTracerErrors()
		e.tracerFailures++
		if e.tracerFailures > e.config.TracerErrorBudget {
			return fmt.Errorf("%w: %d consecutive tracer failures", interfaces.ErrTracer, e.tracerFailures)
		}
		e.discard(child, "tracer_error", nil)
		return nil
	}
	e.tracerFailures = 0

	switch result.Termination.Reason {
	case interfaces.TermTimeout:
		e.stats.IncrementTimeouts()
	case interfaces.TermFatalSignal:
		e.stats.IncrementCrashes()
	}

	child.Fitness = e.gmap.Fitness(result.Coverage)

	admitted, rule := e.admitRule(child, result)
	if !admitted {
		e.discard(child, rule, nil)
		return nil
	}

	e.gmap.Credit(result.Coverage, child.Credited)
	evicted := e.corpus.Insert(child)
	e.reward(opName)
	e.stats.IncrementAdmitted()

	fields := logrus.Fields{
		"trial":   e.trials,
		"id":      child.ID,
		"rule":    rule,
		"fitness": child.Fitness,
		"blocks":  len(result.Coverage),
	}
	if evicted != nil {
		fields["evicted"] = evicted.ID
	}
	e.logger.WithFields(fields).Info("chromosome admitted")
	return nil
}

// vary produces one child from the corpus: tournament parents, a weighted
// operator choice and up to maxNoopRetries attempts with different
// operators when an edit cannot be found. Returns nil when every attempt
// was a no-op.
func (e *Engine) vary() (*interfaces.Chromosome, string) {
	parent := e.corpus.Tournament(e.rng, e.config.KTournament)
	if parent == nil {
		return nil, ""
	}

	useRecomb := e.rng.Float64() < e.config.PRecomb
	var ops []string
	var lastName string

	for attempt := 0; attempt < maxNoopRetries; attempt++ {
		var tree *chromosome.Tree
		var noop bool
		var name string
		parentIDs := []string{parent.ID}
		credited := parent.Credited.Clone()

		if useRecomb {
			if attempt == 0 {
				name = e.recombinatorSel.Pick(e.rng)
			} else {
				name = e.recombinatorSel.PickOther(e.rng, lastName)
			}
			r := e.recombinators[name]
			var second *chromosome.Tree
			if r.Arity() == 2 {
				other := e.corpus.Tournament(e.rng, e.config.KTournament)
				if other != nil {
					second = other.Tree
					parentIDs = append(parentIDs, other.ID)
					credited.Merge(other.Credited)
				}
			}
			tree, noop = r.Recombine(e.rng, e.format, parent.Tree, second)
		} else {
			if attempt == 0 {
				name = e.mutatorSel.Pick(e.rng)
			} else {
				name = e.mutatorSel.PickOther(e.rng, lastName)
			}
			tree, noop = strategies.ApplyMutator(e.rng, e.mutators[name], parent.Tree)
		}
		lastName = name

		if noop {
			ops = append(ops, name+":noop")
			e.stats.IncrementNoOps()
			continue
		}

		ops = append(ops, name)
		return &interfaces.Chromosome{
			ID:         e.newID(),
			ParentIDs:  parentIDs,
			Generation: parent.Generation + 1,
			Operators:  ops,
			CreatedAt:  time.Now(),
			Tree:       tree,
			Credited:   credited,
		}, name
	}
	return nil, lastName
}

// admitRule applies the admission rules in order. Duplicate rejection has
// already happened before execution.
func (e *Engine) admitRule(child *interfaces.Chromosome, result *interfaces.TrialResult) (bool, string) {
	if result.Termination.Fatal() {
		if e.corpus.AddCrash(result.FaultSite, child) {
			if err := WriteCrashFile(e.config.RunDir, result.FaultSite, child.Data); err != nil {
				e.logger.Warnf("Failed to save crash file: %v", err)
			}
			e.logger.Warnf("Crash at %s: %s", result.FaultSite, result.Termination)
		}
		return true, "fatal_signal"
	}
	if e.gmap.HasNovel(result.Coverage) {
		return true, "novel_coverage"
	}
	if result.Termination.Reason == interfaces.TermTimeout {
		// A slow input earns its place only through a crash or novelty.
		return false, "timeout_without_novelty"
	}
	min, ok := e.corpus.MinFitness()
	if !ok || child.Fitness > min {
		return true, "fitness"
	}
	return false, "low_fitness"
}

// evaluate runs a seed chromosome that is not yet in the corpus and admits
// it through the normal rules.
func (e *Engine) evaluate(chromo *interfaces.Chromosome) error {
	result, err := e.executor.Execute(chromo.Data)
	if err != nil {
		if errors.Is(err, interfaces.ErrTargetSpawn) {
			return err
		}
		e.logger.Warnf("Seed %s failed to execute: %v", chromo.ID, err)
		return nil
	}

	chromo.Executed = true
	chromo.Coverage = result.Coverage
	chromo.Termination = result.Termination

	if result.Termination.Reason == interfaces.TermTracerError {
		e.tracerFailures++
		if e.tracerFailures > e.config.TracerErrorBudget {
			return fmt.Errorf("%w: %d consecutive tracer failures", interfaces.ErrTracer, e.tracerFailures)
		}
		e.logger.Warnf("Seed %s lost to a tracer error", chromo.ID)
		return nil
	}
	e.tracerFailures = 0

	chromo.Fitness = e.gmap.Fitness(result.Coverage)
	admitted, rule := e.admitRule(chromo, result)
	if !admitted {
		e.discard(chromo, rule, nil)
		return nil
	}
	e.gmap.Credit(result.Coverage, chromo.Credited)
	e.corpus.Insert(chromo)
	e.stats.IncrementAdmitted()
	return nil
}

// reward feeds an admitted child back into its operator family's weights.
func (e *Engine) reward(name string) {
	if _, ok := e.mutators[name]; ok {
		e.mutatorSel.Reward(name)
		return
	}
	if _, ok := e.recombinators[name]; ok {
		e.recombinatorSel.Reward(name)
	}
}

// penalize reduces the weight of an operator that produced an
// unserializable child.
func (e *Engine) penalize(name string) {
	if _, ok := e.mutators[name]; ok {
		e.mutatorSel.Penalize(name)
		return
	}
	if _, ok := e.recombinators[name]; ok {
		e.recombinatorSel.Penalize(name)
	}
}

// discard logs one structured line for a discarded trial.
func (e *Engine) discard(chromo *interfaces.Chromosome, reason string, err error) {
	e.stats.IncrementDiscarded()
	fields := logrus.Fields{
		"trial":     e.trials,
		"id":        chromo.ID,
		"operators": strings.Join(chromo.Operators, ","),
		"reason":    reason,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	e.logger.WithFields(fields).Info("trial discarded")
}

// flush writes the checkpoint that resume picks up.
func (e *Engine) flush() {
	state, err := e.pcg.MarshalBinary()
	if err != nil {
		e.logger.Warnf("Failed to marshal PRNG state: %v", err)
	}
	if err := SaveCheckpoint(e.config.RunDir, e.epoch, e.trials, e.corpus, e.gmap, state); err != nil {
		e.logger.Errorf("Checkpoint failed: %v", err)
	}
}

// logGeneration emits the per-generation summary.
func (e *Engine) logGeneration() {
	top := e.corpus.Top()
	fields := logrus.Fields{
		"generation": e.epoch,
		"trials":     e.trials,
		"corpus":     e.corpus.Size(),
		"blocks":     e.gmap.Len(),
		"crashes":    len(e.corpus.Crashes()),
	}
	if top != nil {
		fields["best_fitness"] = top.Fitness
	}
	e.logger.WithFields(fields).Info("generation complete")

	if _, err := utils.WriteStatsSnapshot(e.config.RunDir, e.epoch, e.stats); err != nil {
		e.logger.Debugf("Stats snapshot failed: %v", err)
	}
}

// Resume restores the engine from the latest checkpoint in the run
// directory.
func (e *Engine) Resume() error {
	state, err := LoadCheckpoint(e.config.RunDir, e.config.CorpusSize, e.format)
	if err != nil {
		return err
	}
	e.corpus = state.Corpus
	e.gmap = state.Coverage
	e.epoch = state.Epoch
	e.trials = state.Trials
	if len(state.PRNGState) > 0 {
		if err := e.pcg.UnmarshalBinary(state.PRNGState); err != nil {
			return fmt.Errorf("%w: corrupt prng state: %v", interfaces.ErrIO, err)
		}
	}
	e.logger.Infof("Resumed at generation %d with %d corpus members", e.epoch, e.corpus.Size())
	return nil
}

// Replay deterministically re-executes a corpus member and returns its
// trial result.
func (e *Engine) Replay(id string) (*interfaces.TrialResult, error) {
	path := filepath.Join(e.config.RunDir, corpusDirName, id+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: no corpus member %s: %v", interfaces.ErrIO, id, err)
	}
	result, err := e.executor.Execute(data)
	if err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"id":          id,
		"blocks":      len(result.Coverage),
		"termination": result.Termination.String(),
	}).Info("replay complete")
	return result, nil
}
