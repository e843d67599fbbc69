package phase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

// FileStore is a Store persisted as one JSON state file per project. It
// keeps the working copy in a MemStore and writes the affected project
// after every mutation.
type FileStore struct {
	mem *MemStore
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at dir, loading every
// existing project state file
func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{
		mem: NewMemStore(),
		dir: dir,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "reading state directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "reading project state", err)
		}
		var state projectState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, errors.NewFileUnmarshalError(path, "json", err)
		}
		if state.Project == nil || state.Project.ID == "" {
			return nil, errors.New(errors.ErrCodeFileUnmarshal,
				fmt.Sprintf("project state file %s has no project", path))
		}
		s.mem.importState(&state)
	}

	return s, nil
}

// persist writes one project's state file
func (s *FileStore) persist(projectID string) error {
	state, err := s.mem.exportState(projectID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "creating state directory", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "marshaling project state", err)
	}

	path := filepath.Join(s.dir, projectID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "writing project state", err)
	}
	return nil
}

func (s *FileStore) CreateProject(p *Project) error {
	if err := s.mem.CreateProject(p); err != nil {
		return err
	}
	return s.persist(p.ID)
}

func (s *FileStore) GetProject(id string) (*Project, error) {
	return s.mem.GetProject(id)
}

func (s *FileStore) UpdateProject(p *Project) error {
	if err := s.mem.UpdateProject(p); err != nil {
		return err
	}
	return s.persist(p.ID)
}

func (s *FileStore) ListProjects() ([]*Project, error) {
	return s.mem.ListProjects()
}

func (s *FileStore) SaveArtifact(projectID string, phase Tag, filename, content, reason string) (*Artifact, error) {
	artifact, err := s.mem.SaveArtifact(projectID, phase, filename, content, reason)
	if err != nil {
		return nil, err
	}
	if err := s.persist(projectID); err != nil {
		return nil, err
	}
	return artifact, nil
}

func (s *FileStore) RemoveArtifact(projectID string, phase Tag, filename, reason string) error {
	if err := s.mem.RemoveArtifact(projectID, phase, filename, reason); err != nil {
		return err
	}
	return s.persist(projectID)
}

func (s *FileStore) ArtifactsForPhase(projectID string, phase Tag) ([]Artifact, error) {
	return s.mem.ArtifactsForPhase(projectID, phase)
}

func (s *FileStore) VersionRecords(projectID string) ([]VersionRecord, error) {
	return s.mem.VersionRecords(projectID)
}

func (s *FileStore) CreateExecutionRecord(rec *ExecutionRecord) error {
	if err := s.mem.CreateExecutionRecord(rec); err != nil {
		return err
	}
	return s.persist(rec.ProjectID)
}

func (s *FileStore) UpdateExecutionRecord(rec *ExecutionRecord) error {
	if err := s.mem.UpdateExecutionRecord(rec); err != nil {
		return err
	}
	return s.persist(rec.ProjectID)
}

func (s *FileStore) ExecutionRecords(projectID string) ([]ExecutionRecord, error) {
	return s.mem.ExecutionRecords(projectID)
}

func (s *FileStore) GetGate(projectID, gateName string, phase Tag) (*ApprovalGate, error) {
	gate, err := s.mem.GetGate(projectID, gateName, phase)
	if err != nil {
		return nil, err
	}
	// GetGate creates missing gates, so the state may have changed
	if err := s.persist(projectID); err != nil {
		return nil, err
	}
	return gate, nil
}

func (s *FileStore) SaveGate(gate *ApprovalGate) error {
	if err := s.mem.SaveGate(gate); err != nil {
		return err
	}
	return s.persist(gate.ProjectID)
}

func (s *FileStore) GatesForPhase(projectID string, phase Tag) ([]ApprovalGate, error) {
	return s.mem.GatesForPhase(projectID, phase)
}

func (s *FileStore) CreateValidationRun(run *ValidationRun) error {
	if err := s.mem.CreateValidationRun(run); err != nil {
		return err
	}
	return s.persist(run.ProjectID)
}

func (s *FileStore) ValidationRuns(projectID string, phase Tag) ([]ValidationRun, error) {
	return s.mem.ValidationRuns(projectID, phase)
}

func (s *FileStore) CreateRemedyRun(run *RemedyRun) error {
	if err := s.mem.CreateRemedyRun(run); err != nil {
		return err
	}
	return s.persist(run.ProjectID)
}

func (s *FileStore) UpdateRemedyRun(run *RemedyRun) error {
	if err := s.mem.UpdateRemedyRun(run); err != nil {
		return err
	}
	return s.persist(run.ProjectID)
}

func (s *FileStore) RemedyRuns(projectID string) ([]RemedyRun, error) {
	return s.mem.RemedyRuns(projectID)
}

func (s *FileStore) CreateSnapshot(snap *Snapshot) (*Snapshot, error) {
	stored, err := s.mem.CreateSnapshot(snap)
	if err != nil {
		return nil, err
	}
	if err := s.persist(snap.ProjectID); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *FileStore) GetSnapshot(projectID string, phase Tag, number int) (*Snapshot, error) {
	return s.mem.GetSnapshot(projectID, phase, number)
}

func (s *FileStore) ListSnapshots(projectID string, phase Tag) ([]Snapshot, error) {
	return s.mem.ListSnapshots(projectID, phase)
}

func (s *FileStore) Lock(projectID string) (func(), error) {
	return s.mem.Lock(projectID)
}
