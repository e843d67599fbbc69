// Package phase implements the top-level workflow controller: the fixed
// forward-only phase sequence, approval gates, the validation/auto-remedy
// loop, and snapshot/rollback.
package phase

import "time"

// Tag identifies one phase of the fixed project workflow
type Tag string

const (
	TagIntake             Tag = "intake"
	TagStackSelection     Tag = "stack-selection"
	TagSpecification      Tag = "specification"
	TagDependencyApproval Tag = "dependency-approval"
	TagSolutioning        Tag = "solutioning"
	TagValidation         Tag = "validation"
	TagDone               Tag = "done"
)

// Phases is the fixed forward-only phase order
var Phases = []Tag{
	TagIntake,
	TagStackSelection,
	TagSpecification,
	TagDependencyApproval,
	TagSolutioning,
	TagValidation,
	TagDone,
}

// Next returns the phase after t. ok is false for the terminal phase and
// for unknown tags.
func Next(t Tag) (Tag, bool) {
	for i, p := range Phases {
		if p == t && i+1 < len(Phases) {
			return Phases[i+1], true
		}
	}
	return "", false
}

// IsTerminal reports whether t is the final phase
func IsTerminal(t Tag) bool {
	return t == TagDone
}

// Known reports whether t is a configured phase tag
func Known(t Tag) bool {
	for _, p := range Phases {
		if p == t {
			return true
		}
	}
	return false
}

// Execution record statuses
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Approval gate statuses
const (
	GatePending      = "pending"
	GateApproved     = "approved"
	GateRejected     = "rejected"
	GateAutoApproved = "auto_approved"
)

// Project is the single-owner workflow state. It is mutated only by the
// Engine, under the store's advisory lock.
type Project struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Brief           string          `json:"brief,omitempty"`
	CurrentPhase    Tag             `json:"current_phase"`
	CompletedPhases []Tag           `json:"completed_phases,omitempty"`
	ApprovalFlags   map[string]bool `json:"approval_flags,omitempty"`
	WorkflowVersion string          `json:"workflow_version"`

	// Rework marks the current phase as returned by a gate rejection.
	// Prior artifacts are retained.
	Rework bool `json:"rework,omitempty"`

	// RemedyAttempts counts still-failing auto-remedy rounds for the
	// current phase; it resets on phase advance
	RemedyAttempts  int    `json:"remedy_attempts,omitempty"`
	LastRemedyRunID string `json:"last_remedy_run_id,omitempty"`

	// Blocked is set when RemedyAttempts exceeds the configured maximum;
	// clearing it requires manual intervention
	Blocked       bool   `json:"blocked,omitempty"`
	BlockedReason string `json:"blocked_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionRecord is the append-only log of one phase entry. One open
// record per entry, closed on exit.
type ExecutionRecord struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	Phase       Tag           `json:"phase"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Artifact is a named, versioned unit of generated content. Versions are
// strictly increasing per (project, phase, filename); old versions are
// retained.
type Artifact struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Phase       Tag       `json:"phase"`
	Filename    string    `json:"filename"`
	Version     int       `json:"version"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Removed     bool      `json:"removed,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// VersionRecord tracks one artifact version for change detection without
// reading full content
type VersionRecord struct {
	ArtifactID         string    `json:"artifact_id"`
	ProjectID          string    `json:"project_id"`
	Filename           string    `json:"filename"`
	Version            int       `json:"version"`
	ContentHash        string    `json:"content_hash"`
	RegenerationReason string    `json:"regeneration_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// ApprovalGate is one named human-approval gate. One per gate name per
// project; a rejected gate resets to pending on resubmission.
type ApprovalGate struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	GateName        string    `json:"gate_name"`
	Phase           Tag       `json:"phase"`
	Status          string    `json:"status"`
	Blocking        bool      `json:"blocking"`
	Approver        string    `json:"approver,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	Score           float64   `json:"score,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Approved reports whether the gate no longer blocks phase advancement
func (g *ApprovalGate) Approved() bool {
	return g.Status == GateApproved || g.Status == GateAutoApproved
}

// ValidationRun records one validation attempt over a phase's artifacts
type ValidationRun struct {
	ID             string        `json:"id"`
	ProjectID      string        `json:"project_id"`
	Phase          Tag           `json:"phase"`
	Passed         bool          `json:"passed"`
	FailureReasons []string      `json:"failure_reasons,omitempty"`
	WarningCount   int           `json:"warning_count,omitempty"`
	Duration       time.Duration `json:"duration"`
	CreatedAt      time.Time     `json:"created_at"`
}

// RemedyRun records one auto-remedy attempt, 1:1 with the failing
// validation run that spawned it
type RemedyRun struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	ValidationRunID string    `json:"validation_run_id"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
	Successful      bool      `json:"successful"`
	ChangesApplied  []string  `json:"changes_applied,omitempty"`
}

// Snapshot captures a phase's full artifact set before remediation or
// destructive regeneration. Immutable once created; never pruned.
type Snapshot struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"project_id"`
	PhaseName         Tag               `json:"phase_name"`
	SnapshotNumber    int               `json:"snapshot_number"`
	Artifacts         []Artifact        `json:"artifacts"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	UserInputs        map[string]string `json:"user_inputs,omitempty"`
	ValidationResults []ValidationRun   `json:"validation_results,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}
