package phase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/genclient"
	"github.com/felixgeelhaar/specflow/internal/log"
	"github.com/felixgeelhaar/specflow/internal/metrics"
)

// DefaultMaxRemedyAttempts bounds still-failing auto-remedy rounds per
// project before the phase is marked blocked
const DefaultMaxRemedyAttempts = 3

// approvalGates names the default blocking gate per human-approval phase
var approvalGates = map[Tag]string{
	TagDependencyApproval: "dependency-approval",
}

// Validator inspects one artifact and returns failure reasons and
// warnings. Reasons are plain text; the engine prefixes them with the
// artifact filename so the remedy loop can target regeneration.
type Validator func(a Artifact) (failures, warnings []string)

// ExecuteResult is the outcome of one phase execution attempt
type ExecuteResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Engine is the phase state machine: strictly forward transitions,
// approval gating, validation/auto-remedy, and snapshot/rollback
type Engine struct {
	store             Store
	handlers          *Registry
	client            Generator
	logger            *log.Logger
	metrics           *metrics.Metrics
	maxRemedyAttempts int
	validators        []Validator
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the engine metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxRemedyAttempts overrides the auto-remedy ceiling
func WithMaxRemedyAttempts(n int) Option {
	return func(e *Engine) { e.maxRemedyAttempts = n }
}

// WithValidator appends an artifact validator
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validators = append(e.validators, v) }
}

// NewEngine creates a phase engine. client is used by the auto-remedy
// loop to regenerate implicated artifacts.
func NewEngine(store Store, handlers *Registry, client Generator, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		handlers:          handlers,
		client:            client,
		logger:            log.Default(),
		metrics:           metrics.Nop(),
		maxRemedyAttempts: DefaultMaxRemedyAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.validators) == 0 {
		e.validators = []Validator{ValidateNonEmpty, ValidateNoPlaceholders}
	}
	return e
}

// ExecutePhase runs the project's current phase. Advancing past the
// terminal phase fails without writing an execution record; a blocking
// gate not yet approved blocks without writing one either.
func (e *Engine) ExecutePhase(ctx context.Context, projectID string) (*ExecuteResult, error) {
	unlock, err := e.store.Lock(projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := e.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	current := project.CurrentPhase
	if IsTerminal(current) {
		return &ExecuteResult{
			Success: false,
			Message: fmt.Sprintf("project %s is already in the final phase", projectID),
		}, nil
	}
	if project.Blocked {
		return &ExecuteResult{
			Success: false,
			Message: fmt.Sprintf("phase %s is blocked: %s", current, project.BlockedReason),
		}, nil
	}

	gates, err := e.phaseGates(project)
	if err != nil {
		return nil, err
	}
	for _, gate := range gates {
		if gate.Blocking && !gate.Approved() {
			return &ExecuteResult{
				Success: false,
				Message: fmt.Sprintf("blocked by approval gate %q (%s)", gate.GateName, gate.Status),
			}, nil
		}
	}

	handler, err := e.handlers.HandlerFor(current)
	if err != nil {
		return nil, err
	}

	contextDocs, err := e.gatherContext(project)
	if err != nil {
		return nil, err
	}

	record := &ExecutionRecord{
		ProjectID: projectID,
		Phase:     current,
		Status:    StatusInProgress,
		StartedAt: time.Now(),
	}
	if err := e.store.CreateExecutionRecord(record); err != nil {
		return nil, err
	}

	e.logger.Info("executing phase", "project", projectID, "phase", string(current))

	output, execErr := e.runHandler(ctx, handler, &Input{
		Project: project,
		Phase:   current,
		Context: contextDocs,
		Gates:   gates,
	})

	record.CompletedAt = time.Now()
	record.Duration = record.CompletedAt.Sub(record.StartedAt)
	e.metrics.PhaseDuration.WithLabelValues(string(current)).Observe(record.Duration.Seconds())

	if execErr != nil {
		record.Status = StatusFailed
		record.Error = execErr.Error()
		if err := e.store.UpdateExecutionRecord(record); err != nil {
			return nil, err
		}
		e.metrics.PhaseExecutions.WithLabelValues(string(current), "failed").Inc()
		e.logger.WithError(execErr).Error("phase execution failed",
			"project", projectID, "phase", string(current))
		return &ExecuteResult{Success: false, Message: execErr.Error()}, nil
	}

	saved := make([]Artifact, 0, len(output.Artifacts))
	for _, ga := range output.Artifacts {
		artifact, err := e.store.SaveArtifact(projectID, current, ga.Filename, ga.Content, ga.Reason)
		if err != nil {
			return nil, err
		}
		saved = append(saved, *artifact)
	}

	record.Status = StatusCompleted
	if err := e.store.UpdateExecutionRecord(record); err != nil {
		return nil, err
	}

	next, _ := Next(current)
	project.CompletedPhases = append(project.CompletedPhases, current)
	project.CurrentPhase = next
	project.Rework = false
	project.RemedyAttempts = 0
	project.LastRemedyRunID = ""
	if err := e.store.UpdateProject(project); err != nil {
		return nil, err
	}

	e.metrics.PhaseExecutions.WithLabelValues(string(current), "completed").Inc()
	e.logger.Info("phase completed",
		"project", projectID, "phase", string(current), "artifacts", len(saved))

	message := output.Message
	if message == "" {
		message = fmt.Sprintf("phase %s completed", current)
	}
	return &ExecuteResult{Success: true, Message: message, Artifacts: saved}, nil
}

// phaseGates returns the gates bound to the current phase, creating the
// default gate for human-approval phases and resetting rejected gates to
// pending when the phase is re-entered for rework
func (e *Engine) phaseGates(project *Project) ([]ApprovalGate, error) {
	if name, ok := approvalGates[project.CurrentPhase]; ok {
		if _, err := e.store.GetGate(project.ID, name, project.CurrentPhase); err != nil {
			return nil, err
		}
	}

	gates, err := e.store.GatesForPhase(project.ID, project.CurrentPhase)
	if err != nil {
		return nil, err
	}

	if project.Rework {
		for i := range gates {
			if gates[i].Status == GateRejected {
				gates[i].Status = GatePending
				gates[i].RejectionReason = ""
				if err := e.store.SaveGate(&gates[i]); err != nil {
					return nil, err
				}
			}
		}
	}

	return gates, nil
}

// gatherContext collects all completed-phase artifacts as read-only
// context documents; intake additionally seeds the project brief
func (e *Engine) gatherContext(project *Project) ([]genclient.ContextDoc, error) {
	var docs []genclient.ContextDoc

	if project.CurrentPhase == TagIntake && project.Brief != "" {
		docs = append(docs, genclient.ContextDoc{Name: "brief.md", Content: project.Brief})
	}

	for _, phase := range project.CompletedPhases {
		artifacts, err := e.store.ArtifactsForPhase(project.ID, phase)
		if err != nil {
			return nil, err
		}
		for _, a := range artifacts {
			docs = append(docs, genclient.ContextDoc{Name: a.Filename, Content: a.Content})
		}
	}

	return docs, nil
}

// runHandler executes a handler, converting panics at the phase boundary
// into a failed-execution error
func (e *Engine) runHandler(ctx context.Context, h Handler, in *Input) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodePhaseExecFailed,
				fmt.Sprintf("phase %s panicked: %v", in.Phase, r))
		}
	}()
	return h.Execute(ctx, in)
}

// ApproveGate decides a named gate. Deciding a gate outside its phase is
// rejected synchronously with no side effects; a rejection returns the
// phase to rework without discarding artifacts.
func (e *Engine) ApproveGate(ctx context.Context, projectID, gateName, decision, approver, notes string) (*ApprovalGate, error) {
	unlock, err := e.store.Lock(projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := e.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	if decision != "approve" && decision != "reject" {
		return nil, errors.New(errors.ErrCodeGateDecision,
			fmt.Sprintf("unknown gate decision %q (want approve or reject)", decision))
	}

	// Deciding never creates a gate: only phase entry opens gates, so a
	// decision ahead of the gate's phase cannot seed a pre-approved gate.
	gates, err := e.store.GatesForPhase(projectID, project.CurrentPhase)
	if err != nil {
		return nil, err
	}
	var gate *ApprovalGate
	for i := range gates {
		if gates[i].GateName == gateName {
			gate = &gates[i]
			break
		}
	}
	if gate == nil {
		return nil, errors.NewGateWrongPhaseError(gateName, string(project.CurrentPhase))
	}

	switch decision {
	case "approve":
		gate.Status = GateApproved
		gate.Approver = approver
		gate.RejectionReason = ""
		if project.ApprovalFlags == nil {
			project.ApprovalFlags = make(map[string]bool)
		}
		project.ApprovalFlags[gateName] = true
	case "reject":
		gate.Status = GateRejected
		gate.Approver = approver
		gate.RejectionReason = notes
		project.Rework = true
		if project.ApprovalFlags != nil {
			delete(project.ApprovalFlags, gateName)
		}
	}

	if err := e.store.SaveGate(gate); err != nil {
		return nil, err
	}
	if err := e.store.UpdateProject(project); err != nil {
		return nil, err
	}

	e.logger.Info("gate decided",
		"project", projectID, "gate", gateName, "decision", decision)
	return gate, nil
}

// ValidatePhase validates the current phase's artifacts. On failure it
// launches one bounded auto-remedy round: snapshot, regenerate only the
// implicated artifacts, re-validate. A still-failing re-validation
// increments the remedy-attempt counter; exceeding the maximum marks the
// phase blocked.
func (e *Engine) ValidatePhase(ctx context.Context, projectID string) (*ValidationRun, error) {
	unlock, err := e.store.Lock(projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := e.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	phase := project.CurrentPhase

	artifacts, err := e.store.ArtifactsForPhase(projectID, phase)
	if err != nil {
		return nil, err
	}

	run := e.runValidation(projectID, phase, artifacts)
	if err := e.store.CreateValidationRun(run); err != nil {
		return nil, err
	}
	e.metrics.ValidationRuns.WithLabelValues(string(phase), validationResult(run)).Inc()

	if run.Passed {
		return run, nil
	}
	if project.RemedyAttempts >= e.maxRemedyAttempts {
		project.Blocked = true
		project.BlockedReason = fmt.Sprintf("auto-remedy ceiling reached (%d attempts)", project.RemedyAttempts)
		if err := e.store.UpdateProject(project); err != nil {
			return nil, err
		}
		e.logger.Warn("phase blocked, manual intervention required",
			"project", projectID, "phase", string(phase), "attempts", project.RemedyAttempts)
		return run, nil
	}

	// Snapshot before any destructive regeneration
	if _, err := e.takeSnapshot(project, phase, "auto-remedy"); err != nil {
		return nil, err
	}

	remedy := &RemedyRun{
		ProjectID:       projectID,
		ValidationRunID: run.ID,
		StartedAt:       time.Now(),
	}
	if err := e.store.CreateRemedyRun(remedy); err != nil {
		return nil, err
	}

	changed, remedyErr := e.remediate(ctx, project, phase, run.FailureReasons)
	remedy.ChangesApplied = changed
	remedy.CompletedAt = time.Now()

	if remedyErr != nil {
		remedy.Successful = false
		if err := e.store.UpdateRemedyRun(remedy); err != nil {
			return nil, err
		}
		e.metrics.RemedyRuns.WithLabelValues(string(phase), "error").Inc()
		return run, errors.Wrap(errors.ErrCodePhaseRemedyFailed,
			fmt.Sprintf("auto-remedy failed for phase %s", phase), remedyErr)
	}

	artifacts, err = e.store.ArtifactsForPhase(projectID, phase)
	if err != nil {
		return nil, err
	}
	recheck := e.runValidation(projectID, phase, artifacts)
	if err := e.store.CreateValidationRun(recheck); err != nil {
		return nil, err
	}
	e.metrics.ValidationRuns.WithLabelValues(string(phase), validationResult(recheck)).Inc()

	remedy.Successful = recheck.Passed
	if err := e.store.UpdateRemedyRun(remedy); err != nil {
		return nil, err
	}
	e.metrics.RemedyRuns.WithLabelValues(string(phase), remedyResult(remedy)).Inc()

	project.LastRemedyRunID = remedy.ID
	if !recheck.Passed {
		project.RemedyAttempts++
		if project.RemedyAttempts >= e.maxRemedyAttempts {
			project.Blocked = true
			project.BlockedReason = fmt.Sprintf("auto-remedy ceiling reached (%d attempts)", project.RemedyAttempts)
		}
	}
	if err := e.store.UpdateProject(project); err != nil {
		return nil, err
	}

	return recheck, nil
}

var implicatedRe = regexp.MustCompile(`^artifact "([^"]+)":`)

// remediate regenerates only the artifacts implicated by the failure
// reasons, never the whole phase
func (e *Engine) remediate(ctx context.Context, project *Project, phase Tag, reasons []string) ([]string, error) {
	byFile := make(map[string][]string)
	var order []string
	for _, reason := range reasons {
		m := implicatedRe.FindStringSubmatch(reason)
		if m == nil {
			continue
		}
		if _, seen := byFile[m[1]]; !seen {
			order = append(order, m[1])
		}
		byFile[m[1]] = append(byFile[m[1]], strings.TrimPrefix(reason, m[0]+" "))
	}

	artifacts, err := e.store.ArtifactsForPhase(project.ID, phase)
	if err != nil {
		return nil, err
	}
	current := make(map[string]Artifact, len(artifacts))
	for _, a := range artifacts {
		current[a.Filename] = a
	}

	var changed []string
	for _, filename := range order {
		artifact, ok := current[filename]
		if !ok {
			continue
		}

		result, err := e.client.Generate(ctx, genclient.Input{
			Prompt: fmt.Sprintf("Regenerate this artifact fixing exactly these issues:\n- %s\n\nReturn only the corrected content.",
				strings.Join(byFile[filename], "\n- ")),
			ContextDocs: []genclient.ContextDoc{{Name: filename, Content: artifact.Content}},
			PhaseTag:    string(phase),
		})
		if err != nil {
			return changed, err
		}

		if _, err := e.store.SaveArtifact(project.ID, phase, filename, result.Content, "auto-remedy"); err != nil {
			return changed, err
		}
		changed = append(changed, filename)
		e.logger.Info("artifact regenerated by auto-remedy",
			"project", project.ID, "artifact", filename)
	}

	return changed, nil
}

// RollbackPhase restores exactly one named snapshot as the current
// artifact set. Later snapshots are never deleted; restoration writes new
// artifact versions.
func (e *Engine) RollbackPhase(ctx context.Context, projectID string, phase Tag, snapshotNumber int) ([]Artifact, error) {
	unlock, err := e.store.Lock(projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := e.store.GetSnapshot(projectID, phase, snapshotNumber)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("rollback to snapshot %d", snapshotNumber)

	// Files created after the snapshot are removed so the restored set is
	// exactly the snapshot's set
	inSnapshot := make(map[string]bool, len(snap.Artifacts))
	for _, a := range snap.Artifacts {
		inSnapshot[a.Filename] = true
	}
	current, err := e.store.ArtifactsForPhase(projectID, phase)
	if err != nil {
		return nil, err
	}
	for _, a := range current {
		if !inSnapshot[a.Filename] {
			if err := e.store.RemoveArtifact(projectID, phase, a.Filename, reason); err != nil {
				return nil, err
			}
		}
	}

	restored := make([]Artifact, 0, len(snap.Artifacts))
	for _, a := range snap.Artifacts {
		saved, err := e.store.SaveArtifact(projectID, phase, a.Filename, a.Content, reason)
		if err != nil {
			return nil, err
		}
		restored = append(restored, *saved)
	}

	e.logger.Info("phase rolled back",
		"project", projectID, "phase", string(phase), "snapshot", snapshotNumber)
	return restored, nil
}

// Snapshot captures the current artifact set of one phase on demand
func (e *Engine) Snapshot(projectID string, phase Tag, reason string) (*Snapshot, error) {
	unlock, err := e.store.Lock(projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := e.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	return e.takeSnapshot(project, phase, reason)
}

func (e *Engine) takeSnapshot(project *Project, phase Tag, reason string) (*Snapshot, error) {
	artifacts, err := e.store.ArtifactsForPhase(project.ID, phase)
	if err != nil {
		return nil, err
	}
	runs, err := e.store.ValidationRuns(project.ID, phase)
	if err != nil {
		return nil, err
	}

	snap, err := e.store.CreateSnapshot(&Snapshot{
		ProjectID:         project.ID,
		PhaseName:         phase,
		Artifacts:         artifacts,
		ValidationResults: runs,
		Metadata: map[string]string{
			"reason":           reason,
			"workflow_version": project.WorkflowVersion,
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSnapshotCreate,
			fmt.Sprintf("snapshotting phase %s", phase), err)
	}

	e.metrics.SnapshotsTaken.Inc()
	return snap, nil
}

// runValidation applies every validator to every artifact
func (e *Engine) runValidation(projectID string, phase Tag, artifacts []Artifact) *ValidationRun {
	start := time.Now()
	run := &ValidationRun{
		ProjectID: projectID,
		Phase:     phase,
	}

	if len(artifacts) == 0 {
		run.FailureReasons = append(run.FailureReasons,
			fmt.Sprintf("phase %s has no artifacts to validate", phase))
	}

	for _, a := range artifacts {
		for _, validate := range e.validators {
			failures, warnings := validate(a)
			for _, f := range failures {
				run.FailureReasons = append(run.FailureReasons,
					fmt.Sprintf("artifact %q: %s", a.Filename, f))
			}
			run.WarningCount += len(warnings)
		}
	}

	run.Passed = len(run.FailureReasons) == 0
	run.Duration = time.Since(start)
	return run
}

// ValidateNonEmpty fails artifacts with empty content
func ValidateNonEmpty(a Artifact) ([]string, []string) {
	if strings.TrimSpace(a.Content) == "" {
		return []string{"content is empty"}, nil
	}
	if len(a.Content) < 20 {
		return nil, []string{"content is suspiciously short"}
	}
	return nil, nil
}

// ValidateNoPlaceholders fails artifacts that still carry placeholder
// markers
func ValidateNoPlaceholders(a Artifact) ([]string, []string) {
	var failures []string
	lowered := strings.ToLower(a.Content)
	for _, marker := range []string{"todo", "fixme", "placeholder", "tbd"} {
		if strings.Contains(lowered, marker) {
			failures = append(failures, fmt.Sprintf("unresolved placeholder marker %q", marker))
		}
	}
	return failures, nil
}

func validationResult(run *ValidationRun) string {
	if run.Passed {
		return "passed"
	}
	return "failed"
}

func remedyResult(run *RemedyRun) string {
	if run.Successful {
		return "successful"
	}
	return "failed"
}
