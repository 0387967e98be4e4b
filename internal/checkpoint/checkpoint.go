// Package checkpoint persists pipeline state and per-phase artifacts under a
// working directory so a halted run can resume. The state document is
// versioned; a checkpoint written by one pipeline version is refused by
// another rather than misread.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litpipe/internal/model"
)

// Version is the checkpoint schema version.
const Version = 1

const (
	stateFile   = "state.json"
	artifactDir = "artifacts"
)

// PhaseState tracks one phase's progress inside the checkpoint.
type PhaseState struct {
	Status model.PhaseStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
	// Fingerprint is the sha256 over the phase's inputs at the time it
	// succeeded; resume re-runs the phase when it no longer matches.
	Fingerprint string    `json:"fingerprint,omitempty"`
	Artifact    string    `json:"artifact,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// State is the persisted pipeline state document.
type State struct {
	Version   int                    `json:"version"`
	RunID     string                 `json:"run_id"`
	Status    model.RunStatus        `json:"status"`
	Cancelled bool                   `json:"cancelled,omitempty"`
	Phases    map[string]*PhaseState `json:"phases"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Phase returns the state entry for name, creating it as pending if absent.
func (s *State) Phase(name string) *PhaseState {
	if s.Phases == nil {
		s.Phases = map[string]*PhaseState{}
	}
	ps, ok := s.Phases[name]
	if !ok {
		ps = &PhaseState{Status: model.PhaseStatusPending}
		s.Phases[name] = ps
	}
	return ps
}

// Store reads and writes checkpoints under one working directory.
type Store struct {
	dir string
}

// New creates the working directory (and its artifact subdirectory) if
// needed and returns a Store for it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, artifactDir), 0o755); err != nil {
		return nil, eris.Wrap(err, "checkpoint: create work dir")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the working directory.
func (s *Store) Dir() string { return s.dir }

// NewState returns a fresh state document for a run.
func NewState(runID string) *State {
	now := time.Now().UTC()
	return &State{
		Version:   Version,
		RunID:     runID,
		Status:    model.RunStatusQueued,
		Phases:    map[string]*PhaseState{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Load reads the persisted state. Returns (nil, nil) when no checkpoint
// exists; errors on unreadable files or version mismatch.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: read state")
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrap(err, "checkpoint: decode state")
	}
	if st.Version != Version {
		return nil, eris.Errorf("checkpoint: version mismatch: have %d, want %d", st.Version, Version)
	}
	return &st, nil
}

// Save persists the state atomically (write-temp-then-rename) so a crash
// mid-write never leaves a corrupt checkpoint.
func (s *Store) Save(st *State) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: encode state")
	}
	return s.writeAtomic(filepath.Join(s.dir, stateFile), data)
}

// ArtifactPath returns the on-disk path for a named phase artifact.
func (s *Store) ArtifactPath(name string) string {
	return filepath.Join(s.dir, artifactDir, name+".json")
}

// SaveArtifact persists a phase output as JSON and returns its path.
func (s *Store) SaveArtifact(name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrapf(err, "checkpoint: encode artifact %s", name)
	}
	path := s.ArtifactPath(name)
	if err := s.writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// LoadArtifact reads a phase artifact into v.
func (s *Store) LoadArtifact(name string, v any) error {
	data, err := os.ReadFile(s.ArtifactPath(name))
	if err != nil {
		return eris.Wrapf(err, "checkpoint: read artifact %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "checkpoint: decode artifact %s", name)
	}
	return nil
}

// HasArtifact reports whether a phase artifact exists on disk.
func (s *Store) HasArtifact(name string) bool {
	_, err := os.Stat(s.ArtifactPath(name))
	return err == nil
}

// ArtifactDigest returns the sha256 hex digest of a phase artifact, or ""
// when the artifact does not exist.
func (s *Store) ArtifactDigest(name string) (string, error) {
	f, err := os.Open(s.ArtifactPath(name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "checkpoint: open artifact %s", name)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "checkpoint: digest artifact %s", name)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "checkpoint: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "checkpoint: rename %s", path)
	}
	return nil
}
