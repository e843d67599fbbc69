package phase

// Store is the persistence collaborator. Implementations enforce monotonic
// artifact versioning, monotonic snapshot numbering per phase, and the
// per-project advisory lock that keeps phase advances serialized.
type Store interface {
	CreateProject(p *Project) error
	GetProject(id string) (*Project, error)
	UpdateProject(p *Project) error
	ListProjects() ([]*Project, error)

	// SaveArtifact persists content as the next version of
	// (project, phase, filename), computing the content hash and appending
	// a version record with the given regeneration reason
	SaveArtifact(projectID string, phase Tag, filename, content, reason string) (*Artifact, error)

	// RemoveArtifact writes a removal tombstone as the next version so the
	// filename no longer appears in ArtifactsForPhase. History is kept.
	RemoveArtifact(projectID string, phase Tag, filename, reason string) error

	// ArtifactsForPhase returns the latest version of every artifact in
	// one phase
	ArtifactsForPhase(projectID string, phase Tag) ([]Artifact, error)

	// VersionRecords returns the append-only version history for a project
	VersionRecords(projectID string) ([]VersionRecord, error)

	CreateExecutionRecord(rec *ExecutionRecord) error
	UpdateExecutionRecord(rec *ExecutionRecord) error
	ExecutionRecords(projectID string) ([]ExecutionRecord, error)

	// GetGate returns the gate bound to (name, phase), creating it pending
	// and blocking when it does not exist yet
	GetGate(projectID, gateName string, phase Tag) (*ApprovalGate, error)
	SaveGate(gate *ApprovalGate) error
	GatesForPhase(projectID string, phase Tag) ([]ApprovalGate, error)

	CreateValidationRun(run *ValidationRun) error
	ValidationRuns(projectID string, phase Tag) ([]ValidationRun, error)

	CreateRemedyRun(run *RemedyRun) error
	UpdateRemedyRun(run *RemedyRun) error
	RemedyRuns(projectID string) ([]RemedyRun, error)

	// CreateSnapshot assigns the next monotonic snapshot number for the
	// snapshot's phase and persists it. Snapshots are never mutated or
	// pruned.
	CreateSnapshot(snap *Snapshot) (*Snapshot, error)
	GetSnapshot(projectID string, phase Tag, number int) (*Snapshot, error)
	ListSnapshots(projectID string, phase Tag) ([]Snapshot, error)

	// Lock takes the per-project advisory lock; the returned func releases
	// it. Phase advances for one project must never run concurrently.
	Lock(projectID string) (func(), error)
}
