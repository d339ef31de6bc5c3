/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine_test.go
Description: Tests for the generation scheduler. Uses a deterministic fake
executor to cover the admission rules, the timeout policy, the tracer error
budget and campaign determinism under a fixed seed.
*/

package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/choronzon/pkg/interfaces"
	"github.com/kleascm/choronzon/pkg/parsers/png"
)

// fakeExecutor derives a deterministic coverage set from the input bytes, so
// two runs with the same PRNG seed see identical tracer behavior.
type fakeExecutor struct {
	termination func(data []byte) interfaces.Termination
	calls       int
}

func (f *fakeExecutor) Initialize(config *interfaces.Config) error { return nil }
func (f *fakeExecutor) Cleanup() error                             { return nil }

func (f *fakeExecutor) Execute(data []byte) (*interfaces.TrialResult, error) {
	f.calls++
	sum := sha256.Sum256(data)
	coverage := interfaces.NewCoverageSet()
	var last interfaces.BasicBlock
	for i := 0; i < 4; i++ {
		last = interfaces.BasicBlock{Image: 0, Offset: uint64(sum[i])}
		coverage.Add(last)
	}
	term := interfaces.Termination{Reason: interfaces.TermNormal}
	if f.termination != nil {
		term = f.termination(data)
	}
	return &interfaces.TrialResult{
		Coverage:    coverage,
		Termination: term,
		FaultSite:   last,
	}, nil
}

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

// writeSeed writes a minimal PNG seed file into the directory.
func writeSeed(t *testing.T, dir, name string, filler byte) {
	t.Helper()
	data := append([]byte(nil), png.Signature...)
	data = append(data, pngChunk("IHDR", make([]byte, 13))...)
	data = append(data, pngChunk("IDAT", []byte{filler, filler + 1, filler + 2, filler + 3})...)
	data = append(data, pngChunk("IEND", nil)...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

// testConfig builds a small campaign configuration over temp directories.
func testConfig(t *testing.T, seed uint64) *interfaces.Config {
	t.Helper()
	base := t.TempDir()
	seedDir := filepath.Join(base, "seeds")
	require.NoError(t, os.MkdirAll(seedDir, 0o755))
	writeSeed(t, seedDir, "a.png", 0x10)
	writeSeed(t, seedDir, "b.png", 0x80)

	config := &interfaces.Config{
		Target:           "/bin/true",
		Parser:           "png",
		SeedDir:          seedDir,
		RunDir:           filepath.Join(base, "run"),
		CorpusSize:       16,
		GenerationTrials: 25,
		GenerationCap:    1,
		Seed:             seed,
	}
	config.ApplyDefaults()
	return config
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestEngine builds an engine over the fake executor.
func newTestEngine(t *testing.T, config *interfaces.Config, exec interfaces.Executor) *Engine {
	t.Helper()
	if exec == nil {
		exec = &fakeExecutor{}
	}
	return NewEngine(config, quietLogger(), png.New(), exec)
}

// memberIDsBySeq returns corpus member IDs in admission order.
func memberIDsBySeq(e *Engine) []string {
	members := e.Corpus().Members()
	bySeq := make(map[uint64]string, len(members))
	var seqs []uint64
	for _, m := range members {
		bySeq[m.Seq] = m.ID
		seqs = append(seqs, m.Seq)
	}
	for i := range seqs {
		for j := i + 1; j < len(seqs); j++ {
			if seqs[j] < seqs[i] {
				seqs[i], seqs[j] = seqs[j], seqs[i]
			}
		}
	}
	out := make([]string, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, bySeq[s])
	}
	return out
}

// TestBootstrapAdmitsSeeds tests generation zero
func TestBootstrapAdmitsSeeds(t *testing.T) {
	engine := newTestEngine(t, testConfig(t, 1), nil)
	require.NoError(t, engine.Bootstrap(context.Background()))

	assert.Equal(t, 2, engine.Corpus().Size())
	top := engine.Corpus().Top()
	require.NotNil(t, top)
	assert.True(t, top.Executed, "the top corpus member must be executed")
	assert.Greater(t, top.Fitness, 0.0)
}

// TestBootstrapRequiresValidSeed tests that an empty seed dir is fatal
func TestBootstrapRequiresValidSeed(t *testing.T) {
	config := testConfig(t, 1)
	emptyDir := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(emptyDir, 0o755))
	config.SeedDir = emptyDir

	engine := newTestEngine(t, config, nil)
	err := engine.Bootstrap(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrParse)
}

// TestCampaignDeterminism tests that a fixed seed reproduces the same
// sequence of admitted chromosome IDs
func TestCampaignDeterminism(t *testing.T) {
	run := func() ([]string, int64) {
		engine := newTestEngine(t, testConfig(t, 99), &fakeExecutor{})
		require.NoError(t, engine.Bootstrap(context.Background()))
		require.NoError(t, engine.Run(context.Background()))
		return memberIDsBySeq(engine), engine.Stats().Admitted
	}

	idsA, admittedA := run()
	idsB, admittedB := run()
	assert.Equal(t, idsA, idsB)
	assert.Equal(t, admittedA, admittedB)
}

// TestCorpusCapHolds tests that the corpus never exceeds N during a run
func TestCorpusCapHolds(t *testing.T) {
	config := testConfig(t, 7)
	config.CorpusSize = 4
	config.GenerationTrials = 60

	engine := newTestEngine(t, config, nil)
	require.NoError(t, engine.Bootstrap(context.Background()))
	require.NoError(t, engine.Run(context.Background()))

	assert.LessOrEqual(t, engine.Corpus().Size(), 4)
	assert.True(t, engine.Corpus().Top().Executed)
}

// TestAdmissionByNovelty tests admission rule 2
func TestAdmissionByNovelty(t *testing.T) {
	engine := newTestEngine(t, testConfig(t, 1), nil)

	child := &interfaces.Chromosome{
		ID:       "child",
		Data:     []byte("child"),
		Hash:     HashBytes([]byte("child")),
		Credited: interfaces.NewCoverageSet(),
	}
	result := &interfaces.TrialResult{
		Coverage: coverageOf(
			interfaces.BasicBlock{Image: 0, Offset: 16},
			interfaces.BasicBlock{Image: 0, Offset: 32},
		),
		Termination: interfaces.Termination{Reason: interfaces.TermNormal},
	}
	child.Fitness = engine.gmap.Fitness(result.Coverage)
	assert.InDelta(t, 2.0, child.Fitness, 1e-9)

	admitted, rule := engine.admitRule(child, result)
	assert.True(t, admitted)
	assert.Equal(t, "novel_coverage", rule)
}

// TestAdmissionByFitness tests admission rule 3 and its rejection branch
func TestAdmissionByFitness(t *testing.T) {
	engine := newTestEngine(t, testConfig(t, 1), nil)

	known := coverageOf(interfaces.BasicBlock{Image: 0, Offset: 1})
	engine.gmap.Credit(known, interfaces.NewCoverageSet())

	strong := member("strong", 0.0)
	strong.Fitness = 0.5
	engine.corpus.Insert(member("resident", 0.4))

	result := &interfaces.TrialResult{
		Coverage:    known.Clone(),
		Termination: interfaces.Termination{Reason: interfaces.TermNormal},
	}
	admitted, rule := engine.admitRule(strong, result)
	assert.True(t, admitted)
	assert.Equal(t, "fitness", rule)

	weak := member("weak", 0.0)
	weak.Fitness = 0.1
	admitted, rule = engine.admitRule(weak, result)
	assert.False(t, admitted)
	assert.Equal(t, "low_fitness", rule)
}

// TestTimeoutAdmissionPolicy tests that timeouts never admit by fitness alone
func TestTimeoutAdmissionPolicy(t *testing.T) {
	engine := newTestEngine(t, testConfig(t, 1), nil)

	known := coverageOf(interfaces.BasicBlock{Image: 0, Offset: 1})
	engine.gmap.Credit(known, interfaces.NewCoverageSet())
	engine.corpus.Insert(member("resident", 0.1))

	slow := member("slow", 0.0)
	slow.Fitness = 99.0
	result := &interfaces.TrialResult{
		Coverage:    known.Clone(),
		Termination: interfaces.Termination{Reason: interfaces.TermTimeout},
	}
	admitted, rule := engine.admitRule(slow, result)
	assert.False(t, admitted)
	assert.Equal(t, "timeout_without_novelty", rule)

	// Novel coverage still admits a slow input.
	novel := &interfaces.TrialResult{
		Coverage:    coverageOf(interfaces.BasicBlock{Image: 0, Offset: 0xFFFF}),
		Termination: interfaces.Termination{Reason: interfaces.TermTimeout},
	}
	admitted, rule = engine.admitRule(slow, novel)
	assert.True(t, admitted)
	assert.Equal(t, "novel_coverage", rule)
}

// TestCrashAdmission tests admission rule 1 and crash recording
func TestCrashAdmission(t *testing.T) {
	config := testConfig(t, 1)
	engine := newTestEngine(t, config, nil)

	site := interfaces.BasicBlock{Image: 0, Offset: 0x41}
	crasher := member("crasher", 0.0)
	result := &interfaces.TrialResult{
		Coverage:    coverageOf(site),
		Termination: interfaces.Termination{Reason: interfaces.TermFatalSignal, Code: 11},
		FaultSite:   site,
	}

	admitted, rule := engine.admitRule(crasher, result)
	assert.True(t, admitted)
	assert.Equal(t, "fatal_signal", rule)

	crashes := engine.Corpus().Crashes()
	require.Len(t, crashes, 1)
	assert.Equal(t, "crasher", crashes[site].ID)

	// The representative input is persisted under crashes/.
	path := filepath.Join(config.RunDir, "crashes", site.String()+".bin")
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, crasher.Data, saved)
}

// TestTracerErrorBudget tests that repeated tracer failures abort the run
func TestTracerErrorBudget(t *testing.T) {
	config := testConfig(t, 3)
	config.TracerErrorBudget = 2
	config.GenerationTrials = 50

	broken := &fakeExecutor{termination: func(data []byte) interfaces.Termination {
		return interfaces.Termination{Reason: interfaces.TermTracerError}
	}}
	engine := newTestEngine(t, config, broken)

	// Seed the corpus directly; bootstrap would lose every seed to a tracer
	// error and admit none.
	seedBytes := append([]byte(nil), png.Signature...)
	seedBytes = append(seedBytes, pngChunk("IHDR", make([]byte, 13))...)
	seedBytes = append(seedBytes, pngChunk("IDAT", []byte{1, 2, 3, 4})...)
	seedBytes = append(seedBytes, pngChunk("IEND", nil)...)
	tree, err := png.New().Deserialize(seedBytes)
	require.NoError(t, err)
	seedling := member("seedling", 1.0)
	seedling.Tree = tree
	seedling.Data = seedBytes
	seedling.Hash = HashBytes(seedBytes)
	engine.corpus.Insert(seedling)

	err = engine.Run(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrTracer)
}

// TestInterruptFlushesCheckpoint tests orderly shutdown
func TestInterruptFlushesCheckpoint(t *testing.T) {
	config := testConfig(t, 5)
	engine := newTestEngine(t, config, nil)
	require.NoError(t, engine.Bootstrap(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := engine.Run(ctx)
	assert.ErrorIs(t, err, interfaces.ErrInterrupted)

	_, err = os.Stat(filepath.Join(config.RunDir, "corpus", "index.json"))
	assert.NoError(t, err)
}
