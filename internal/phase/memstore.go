package phase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

// projectState bundles everything the store tracks for one project
type projectState struct {
	Project          *Project          `json:"project"`
	Artifacts        []Artifact        `json:"artifacts,omitempty"`
	Versions         []VersionRecord   `json:"versions,omitempty"`
	ExecutionRecords []ExecutionRecord `json:"execution_records,omitempty"`
	Gates            []ApprovalGate    `json:"gates,omitempty"`
	ValidationRuns   []ValidationRun   `json:"validation_runs,omitempty"`
	RemedyRuns       []RemedyRun       `json:"remedy_runs,omitempty"`
	Snapshots        []Snapshot        `json:"snapshots,omitempty"`
}

// MemStore is an in-memory Store for tests and embedding
type MemStore struct {
	mu       sync.RWMutex
	projects map[string]*projectState

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		projects: make(map[string]*projectState),
		locks:    make(map[string]*sync.Mutex),
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) state(projectID string) (*projectState, error) {
	state, ok := s.projects[projectID]
	if !ok {
		return nil, errors.New(errors.ErrCodeProjectNotFound,
			fmt.Sprintf("project %q not found", projectID))
	}
	return state, nil
}

// CreateProject stores a new project, assigning an id when empty
func (s *MemStore) CreateProject(p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.projects[p.ID]; exists {
		return errors.New(errors.ErrCodeProjectExists,
			fmt.Sprintf("project %q already exists", p.ID))
	}
	if p.CurrentPhase == "" {
		p.CurrentPhase = TagIntake
	}
	if p.WorkflowVersion == "" {
		p.WorkflowVersion = "1.0"
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.projects[p.ID] = &projectState{Project: cloneProject(p)}
	return nil
}

// GetProject returns a copy of the project
func (s *MemStore) GetProject(id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(id)
	if err != nil {
		return nil, err
	}
	return cloneProject(state.Project), nil
}

// UpdateProject replaces the stored project
func (s *MemStore) UpdateProject(p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(p.ID)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	state.Project = cloneProject(p)
	return nil
}

// ListProjects returns copies of every project
func (s *MemStore) ListProjects() ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Project, 0, len(s.projects))
	for _, state := range s.projects {
		out = append(out, cloneProject(state.Project))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveArtifact persists content as the next monotonic version
func (s *MemStore) SaveArtifact(projectID string, phase Tag, filename, content, reason string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}

	version := 0
	for _, a := range state.Artifacts {
		if a.Phase == phase && a.Filename == filename && a.Version > version {
			version = a.Version
		}
	}

	artifact := Artifact{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Phase:       phase,
		Filename:    filename,
		Version:     version + 1,
		Content:     content,
		ContentHash: HashContent(content),
		CreatedAt:   time.Now(),
	}
	state.Artifacts = append(state.Artifacts, artifact)
	state.Versions = append(state.Versions, VersionRecord{
		ArtifactID:         artifact.ID,
		ProjectID:          projectID,
		Filename:           filename,
		Version:            artifact.Version,
		ContentHash:        artifact.ContentHash,
		RegenerationReason: reason,
		CreatedAt:          artifact.CreatedAt,
	})

	return &artifact, nil
}

// RemoveArtifact writes a removal tombstone as the next version. The
// filename disappears from ArtifactsForPhase; every prior version stays in
// the history.
func (s *MemStore) RemoveArtifact(projectID string, phase Tag, filename, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(projectID)
	if err != nil {
		return err
	}

	version := 0
	for _, a := range state.Artifacts {
		if a.Phase == phase && a.Filename == filename && a.Version > version {
			version = a.Version
		}
	}

	artifact := Artifact{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Phase:     phase,
		Filename:  filename,
		Version:   version + 1,
		Removed:   true,
		CreatedAt: time.Now(),
	}
	state.Artifacts = append(state.Artifacts, artifact)
	state.Versions = append(state.Versions, VersionRecord{
		ArtifactID:         artifact.ID,
		ProjectID:          projectID,
		Filename:           filename,
		Version:            artifact.Version,
		RegenerationReason: reason,
		CreatedAt:          artifact.CreatedAt,
	})

	return nil
}

// ArtifactsForPhase returns the latest version per filename, sorted by
// filename. Filenames whose latest version is a removal tombstone are
// excluded.
func (s *MemStore) ArtifactsForPhase(projectID string, phase Tag) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]Artifact)
	for _, a := range state.Artifacts {
		if a.Phase != phase {
			continue
		}
		if current, ok := latest[a.Filename]; !ok || a.Version > current.Version {
			latest[a.Filename] = a
		}
	}

	out := make([]Artifact, 0, len(latest))
	for _, a := range latest {
		if a.Removed {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// VersionRecords returns the append-only version history
func (s *MemStore) VersionRecords(projectID string) ([]VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	return append([]VersionRecord(nil), state.Versions...), nil
}

// CreateExecutionRecord appends a new execution record
func (s *MemStore) CreateExecutionRecord(rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(rec.ProjectID)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	state.ExecutionRecords = append(state.ExecutionRecords, *rec)
	return nil
}

// UpdateExecutionRecord closes a previously created record
func (s *MemStore) UpdateExecutionRecord(rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(rec.ProjectID)
	if err != nil {
		return err
	}
	for i, existing := range state.ExecutionRecords {
		if existing.ID == rec.ID {
			state.ExecutionRecords[i] = *rec
			return nil
		}
	}
	return errors.New(errors.ErrCodeRecordNotFound,
		fmt.Sprintf("execution record %q not found", rec.ID))
}

// ExecutionRecords returns the append-only execution log
func (s *MemStore) ExecutionRecords(projectID string) ([]ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	return append([]ExecutionRecord(nil), state.ExecutionRecords...), nil
}

// GetGate returns the gate bound to (name, phase), creating it pending and
// blocking when it does not exist yet
func (s *MemStore) GetGate(projectID, gateName string, phase Tag) (*ApprovalGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	for _, g := range state.Gates {
		if g.GateName == gateName && g.Phase == phase {
			gate := g
			return &gate, nil
		}
	}

	gate := ApprovalGate{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		GateName:  gateName,
		Phase:     phase,
		Status:    GatePending,
		Blocking:  true,
		UpdatedAt: time.Now(),
	}
	state.Gates = append(state.Gates, gate)
	return &gate, nil
}

// SaveGate updates an existing gate
func (s *MemStore) SaveGate(gate *ApprovalGate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(gate.ProjectID)
	if err != nil {
		return err
	}
	gate.UpdatedAt = time.Now()
	for i, existing := range state.Gates {
		if existing.ID == gate.ID {
			state.Gates[i] = *gate
			return nil
		}
	}
	return errors.New(errors.ErrCodeGateNotFound,
		fmt.Sprintf("gate %q not found", gate.GateName))
}

// GatesForPhase returns every gate bound to one phase
func (s *MemStore) GatesForPhase(projectID string, phase Tag) ([]ApprovalGate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	var out []ApprovalGate
	for _, g := range state.Gates {
		if g.Phase == phase {
			out = append(out, g)
		}
	}
	return out, nil
}

// CreateValidationRun appends a validation run
func (s *MemStore) CreateValidationRun(run *ValidationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(run.ProjectID)
	if err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = time.Now()
	state.ValidationRuns = append(state.ValidationRuns, *run)
	return nil
}

// ValidationRuns returns all validation runs for one phase, oldest first
func (s *MemStore) ValidationRuns(projectID string, phase Tag) ([]ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	var out []ValidationRun
	for _, r := range state.ValidationRuns {
		if r.Phase == phase {
			out = append(out, r)
		}
	}
	return out, nil
}

// CreateRemedyRun appends a remedy run
func (s *MemStore) CreateRemedyRun(run *RemedyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(run.ProjectID)
	if err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	state.RemedyRuns = append(state.RemedyRuns, *run)
	return nil
}

// UpdateRemedyRun closes a previously created remedy run
func (s *MemStore) UpdateRemedyRun(run *RemedyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(run.ProjectID)
	if err != nil {
		return err
	}
	for i, existing := range state.RemedyRuns {
		if existing.ID == run.ID {
			state.RemedyRuns[i] = *run
			return nil
		}
	}
	return errors.New(errors.ErrCodeRecordNotFound,
		fmt.Sprintf("remedy run %q not found", run.ID))
}

// RemedyRuns returns every remedy run for a project, oldest first
func (s *MemStore) RemedyRuns(projectID string) ([]RemedyRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	return append([]RemedyRun(nil), state.RemedyRuns...), nil
}

// CreateSnapshot assigns the next monotonic number per phase and persists
func (s *MemStore) CreateSnapshot(snap *Snapshot) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(snap.ProjectID)
	if err != nil {
		return nil, err
	}

	number := 0
	for _, existing := range state.Snapshots {
		if existing.PhaseName == snap.PhaseName && existing.SnapshotNumber > number {
			number = existing.SnapshotNumber
		}
	}

	stored := *snap
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.SnapshotNumber = number + 1
	stored.CreatedAt = time.Now()
	stored.Artifacts = append([]Artifact(nil), snap.Artifacts...)
	stored.ValidationResults = append([]ValidationRun(nil), snap.ValidationResults...)

	state.Snapshots = append(state.Snapshots, stored)
	result := stored
	return &result, nil
}

// GetSnapshot returns one snapshot by phase and number
func (s *MemStore) GetSnapshot(projectID string, phase Tag, number int) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	for _, snap := range state.Snapshots {
		if snap.PhaseName == phase && snap.SnapshotNumber == number {
			result := snap
			result.Artifacts = append([]Artifact(nil), snap.Artifacts...)
			return &result, nil
		}
	}
	return nil, errors.New(errors.ErrCodeSnapshotNotFound,
		fmt.Sprintf("snapshot %d for phase %q not found", number, phase))
}

// ListSnapshots returns every snapshot for one phase, oldest first
func (s *MemStore) ListSnapshots(projectID string, phase Tag) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	var out []Snapshot
	for _, snap := range state.Snapshots {
		if snap.PhaseName == phase {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotNumber < out[j].SnapshotNumber })
	return out, nil
}

// Lock takes the per-project advisory lock
func (s *MemStore) Lock(projectID string) (func(), error) {
	s.lockMu.Lock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}

// exportState returns a copy of one project's full state for persistence
func (s *MemStore) exportState(projectID string) (*projectState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.state(projectID)
	if err != nil {
		return nil, err
	}
	out := &projectState{
		Project:          cloneProject(state.Project),
		Artifacts:        append([]Artifact(nil), state.Artifacts...),
		Versions:         append([]VersionRecord(nil), state.Versions...),
		ExecutionRecords: append([]ExecutionRecord(nil), state.ExecutionRecords...),
		Gates:            append([]ApprovalGate(nil), state.Gates...),
		ValidationRuns:   append([]ValidationRun(nil), state.ValidationRuns...),
		RemedyRuns:       append([]RemedyRun(nil), state.RemedyRuns...),
		Snapshots:        append([]Snapshot(nil), state.Snapshots...),
	}
	return out, nil
}

// importState loads one project's full state, replacing any existing entry
func (s *MemStore) importState(state *projectState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[state.Project.ID] = state
}

func cloneProject(p *Project) *Project {
	clone := *p
	clone.CompletedPhases = append([]Tag(nil), p.CompletedPhases...)
	if p.ApprovalFlags != nil {
		clone.ApprovalFlags = make(map[string]bool, len(p.ApprovalFlags))
		for k, v := range p.ApprovalFlags {
			clone.ApprovalFlags[k] = v
		}
	}
	return &clone
}
