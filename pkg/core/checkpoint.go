/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: checkpoint.go
Description: Checkpoint persistence for the Choronzon fuzzer. At every generation
boundary the engine writes the serialized corpus, the corpus index, the global
coverage map and the PRNG state to the run directory; resume rebuilds the corpus,
the coverage map and the PRNG from the latest checkpoint. Operator weights and
campaign statistics are not persisted.
*/

package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kleascm/choronzon/pkg/interfaces"
)

const (
	corpusDirName   = "corpus"
	crashesDirName  = "crashes"
	indexFileName   = "index.json"
	coverageMapName = "coverage.map"
	prngStateName   = "prng.state"
)

// indexEntry is the persisted metadata of one corpus member.
type indexEntry struct {
	ID         string                  `json:"id"`
	ParentIDs  []string                `json:"parent_ids"`
	Generation int                     `json:"generation"`
	Operators  []string                `json:"operators"`
	Fitness    float64                 `json:"fitness"`
	Executed   bool                    `json:"executed"`
	Seq        uint64                  `json:"seq"`
	CreatedAt  time.Time               `json:"created_at"`
	Credited   []interfaces.BasicBlock `json:"credited"`
}

// crashEntry is the persisted record of one unique crash site.
type crashEntry struct {
	Site interfaces.BasicBlock `json:"site"`
	ID   string                `json:"id"`
}

// checkpointIndex is the top-level persisted index.
type checkpointIndex struct {
	Epoch   int          `json:"epoch"`
	Trials  int64        `json:"trials"`
	Members []indexEntry `json:"members"`
	Crashes []crashEntry `json:"crashes"`
}

// InitRunDir prepares an empty run directory layout.
func InitRunDir(runDir string) error {
	for _, dir := range []string{runDir, filepath.Join(runDir, corpusDirName), filepath.Join(runDir, crashesDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", interfaces.ErrIO, dir, err)
		}
	}
	return nil
}

// SaveCheckpoint writes the resumable state of record: every member's
// serialized bytes, the corpus index, the coverage map and the PRNG state.
func SaveCheckpoint(runDir string, epoch int, trials int64, corpus *Corpus, gmap *CoverageMap, prngState []byte) error {
	if err := InitRunDir(runDir); err != nil {
		return err
	}

	index := checkpointIndex{Epoch: epoch, Trials: trials}
	for _, m := range corpus.Members() {
		path := filepath.Join(runDir, corpusDirName, m.ID+".bin")
		if err := os.WriteFile(path, m.Data, 0o644); err != nil {
			return fmt.Errorf("%w: write %s: %v", interfaces.ErrIO, path, err)
		}
		entry := indexEntry{
			ID:         m.ID,
			ParentIDs:  m.ParentIDs,
			Generation: m.Generation,
			Operators:  m.Operators,
			Fitness:    m.Fitness,
			Executed:   m.Executed,
			Seq:        m.Seq,
			CreatedAt:  m.CreatedAt,
		}
		for b := range m.Credited {
			entry.Credited = append(entry.Credited, b)
		}
		index.Members = append(index.Members, entry)
	}
	for site, chromo := range corpus.Crashes() {
		index.Crashes = append(index.Crashes, crashEntry{Site: site, ID: chromo.ID})
	}

	data, err := json.MarshalIndent(&index, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal index: %v", interfaces.ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(runDir, corpusDirName, indexFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: write index: %v", interfaces.ErrIO, err)
	}

	mapFile, err := os.Create(filepath.Join(runDir, coverageMapName))
	if err != nil {
		return fmt.Errorf("%w: create coverage map: %v", interfaces.ErrIO, err)
	}
	defer mapFile.Close()
	if _, err := gmap.WriteTo(mapFile); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(runDir, prngStateName), prngState, 0o644); err != nil {
		return fmt.Errorf("%w: write prng state: %v", interfaces.ErrIO, err)
	}
	return nil
}

// CheckpointState is a checkpoint loaded back into memory.
type CheckpointState struct {
	Epoch     int
	Trials    int64
	Corpus    *Corpus
	Coverage  *CoverageMap
	PRNGState []byte
}

// LoadCheckpoint restores the latest checkpoint from a run directory. The
// format plug-in rebuilds each member's gene tree from its serialized
// bytes.
func LoadCheckpoint(runDir string, maxSize int, format interfaces.Format) (*CheckpointState, error) {
	data, err := os.ReadFile(filepath.Join(runDir, corpusDirName, indexFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: no checkpoint in %s: %v", interfaces.ErrIO, runDir, err)
	}
	var index checkpointIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: corrupt index: %v", interfaces.ErrIO, err)
	}

	state := &CheckpointState{
		Epoch:    index.Epoch,
		Trials:   index.Trials,
		Corpus:   NewCorpus(maxSize),
		Coverage: NewCoverageMap(),
	}

	byID := make(map[string]*interfaces.Chromosome)
	for _, entry := range index.Members {
		path := filepath.Join(runDir, corpusDirName, entry.ID+".bin")
		bytes, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", interfaces.ErrIO, path, err)
		}
		tree, err := format.Deserialize(bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: member %s: %v", interfaces.ErrParse, entry.ID, err)
		}
		chromo := &interfaces.Chromosome{
			ID:         entry.ID,
			ParentIDs:  entry.ParentIDs,
			Generation: entry.Generation,
			Operators:  entry.Operators,
			Fitness:    entry.Fitness,
			Executed:   entry.Executed,
			Seq:        entry.Seq,
			CreatedAt:  entry.CreatedAt,
			Tree:       tree,
			Data:       bytes,
			Hash:       HashBytes(bytes),
			Credited:   interfaces.NewCoverageSet(),
		}
		for _, b := range entry.Credited {
			chromo.Credited.Add(b)
		}
		state.Corpus.restoreMember(chromo)
		byID[chromo.ID] = chromo
	}

	for _, entry := range index.Crashes {
		chromo := byID[entry.ID]
		if chromo == nil {
			// The crash representative lives only in crashes/.
			path := filepath.Join(runDir, crashesDirName, entry.Site.String()+".bin")
			bytes, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("%w: read crash %s: %v", interfaces.ErrIO, path, err)
			}
			chromo = &interfaces.Chromosome{
				ID:   entry.ID,
				Data: bytes,
				Hash: HashBytes(bytes),
			}
		}
		state.Corpus.restoreCrash(entry.Site, chromo)
	}

	mapFile, err := os.Open(filepath.Join(runDir, coverageMapName))
	if err == nil {
		_, err = state.Coverage.ReadFrom(mapFile)
		mapFile.Close()
		if err != nil {
			return nil, err
		}
	}

	state.PRNGState, _ = os.ReadFile(filepath.Join(runDir, prngStateName))
	return state, nil
}

// WriteCrashFile writes the representative input of a crash site.
func WriteCrashFile(runDir string, site interfaces.BasicBlock, data []byte) error {
	dir := filepath.Join(runDir, crashesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create crash directory: %v", interfaces.ErrIO, err)
	}
	path := filepath.Join(dir, site.String()+".bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write crash file: %v", interfaces.ErrIO, err)
	}
	return nil
}

// WriteGenerationDump writes every member's serialized bytes under
// generations/<epoch>/, the optional per-epoch record of the population.
func WriteGenerationDump(runDir string, epoch int, corpus *Corpus) error {
	dir := filepath.Join(runDir, "generations", fmt.Sprintf("%d", epoch))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create generation dump: %v", interfaces.ErrIO, err)
	}
	for _, m := range corpus.Members() {
		if err := os.WriteFile(filepath.Join(dir, m.ID+".bin"), m.Data, 0o644); err != nil {
			return fmt.Errorf("%w: write generation member: %v", interfaces.ErrIO, err)
		}
	}
	return nil
}
