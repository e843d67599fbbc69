package phase

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/genclient"
)

// stubClient returns fixed content for every generation call
type stubClient struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (c *stubClient) Generate(ctx context.Context, in genclient.Input) (*genclient.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &genclient.Result{Content: c.content, FinishReason: "stop"}, nil
}

// panicHandler panics on execution
type panicHandler struct{ tag Tag }

func (h *panicHandler) CanHandle(tag Tag) bool { return tag == h.tag }
func (h *panicHandler) Execute(ctx context.Context, in *Input) (*Output, error) {
	panic("handler exploded")
}

func newTestEngine(t *testing.T, client Generator, opts ...Option) (*Engine, *MemStore) {
	t.Helper()
	store := NewMemStore()
	registry := NewRegistry()
	registry.Register(NewGenerateHandler(TagIntake, client, OutputSpec{
		Filename:    "charter.md",
		Instruction: "Write the project charter.",
	}))
	registry.Register(NewApprovalHandler(TagDependencyApproval))
	return NewEngine(store, registry, client, opts...), store
}

func TestExecutePhaseIntake(t *testing.T) {
	client := &stubClient{content: "# Charter\n\nA complete project charter."}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "charter.md", result.Artifacts[0].Filename)
	assert.Equal(t, 1, result.Artifacts[0].Version)

	loaded, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, TagStackSelection, loaded.CurrentPhase)
	assert.Equal(t, []Tag{TagIntake}, loaded.CompletedPhases)

	records, err := store.ExecutionRecords(p.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusCompleted, records[0].Status)
	assert.Equal(t, TagIntake, records[0].Phase)
}

func TestExecutePhaseTerminal(t *testing.T) {
	client := &stubClient{content: "ok"}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	p.CurrentPhase = TagDone
	require.NoError(t, store.UpdateProject(p))

	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "final phase")

	records, err := store.ExecutionRecords(p.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "terminal-phase advance must write no record")
}

func TestExecutePhaseHandlerFailure(t *testing.T) {
	client := &stubClient{err: errors.New(errors.ErrCodeProviderAPI, "backend down")}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "backend down")

	loaded, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, TagIntake, loaded.CurrentPhase, "failed phase must not advance")

	records, err := store.ExecutionRecords(p.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.NotEmpty(t, records[0].Error)
}

func TestExecutePhasePanicRecovered(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry()
	registry.Register(&panicHandler{tag: TagIntake})
	engine := NewEngine(store, registry, &stubClient{})
	p := newTestProject(t, store)

	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "panicked")

	records, err := store.ExecutionRecords(p.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusFailed, records[0].Status)
}

func TestApprovalPhaseBlocksUntilApproved(t *testing.T) {
	client := &stubClient{content: "ok"}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	p.CurrentPhase = TagDependencyApproval
	require.NoError(t, store.UpdateProject(p))

	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "approval gate")

	records, err := store.ExecutionRecords(p.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "gate-blocked entry writes no record")

	gate, err := engine.ApproveGate(context.Background(), p.ID, "dependency-approval", "approve", "alex", "")
	require.NoError(t, err)
	assert.Equal(t, GateApproved, gate.Status)
	assert.Equal(t, "alex", gate.Approver)

	result, err = engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	loaded, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, TagSolutioning, loaded.CurrentPhase)
}

func TestRejectionTriggersRework(t *testing.T) {
	client := &stubClient{content: "ok"}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	p.CurrentPhase = TagDependencyApproval
	require.NoError(t, store.UpdateProject(p))

	// Create the gate, then reject it
	_, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)
	gate, err := engine.ApproveGate(context.Background(), p.ID, "dependency-approval", "reject", "alex", "wrong dependencies")
	require.NoError(t, err)
	assert.Equal(t, GateRejected, gate.Status)
	assert.Equal(t, "wrong dependencies", gate.RejectionReason)

	loaded, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Rework)

	// Resubmission resets the rejected gate to pending
	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	gates, err := store.GatesForPhase(p.ID, TagDependencyApproval)
	require.NoError(t, err)
	require.Len(t, gates, 1)
	assert.Equal(t, GatePending, gates[0].Status)
}

func TestApproveGateWrongPhase(t *testing.T) {
	client := &stubClient{content: "ok"}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	// Gate belongs to dependency-approval but project is still in intake
	_, err := store.GetGate(p.ID, "dependency-approval", TagDependencyApproval)
	require.NoError(t, err)

	_, err = engine.ApproveGate(context.Background(), p.ID, "dependency-approval", "approve", "alex", "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeGateWrongPhase))

	gates, err := store.GatesForPhase(p.ID, TagDependencyApproval)
	require.NoError(t, err)
	assert.Equal(t, GatePending, gates[0].Status, "wrong-phase decision has no side effects")
}

func TestApproveGateBeforePhaseCreatesNothing(t *testing.T) {
	client := &stubClient{content: "ok"}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	// The gate does not exist yet; approving it from intake must fail
	// without creating or approving anything
	_, err := engine.ApproveGate(context.Background(), p.ID, "dependency-approval", "approve", "alex", "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeGateWrongPhase))

	for _, tag := range Phases {
		gates, err := store.GatesForPhase(p.ID, tag)
		require.NoError(t, err)
		assert.Empty(t, gates, "premature approval must not seed a gate in %s", tag)
	}

	p.CurrentPhase = TagDependencyApproval
	require.NoError(t, store.UpdateProject(p))

	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, result.Success, "phase entry must still block on a pending gate")
	assert.Contains(t, result.Message, "approval gate")

	gates, err := store.GatesForPhase(p.ID, TagDependencyApproval)
	require.NoError(t, err)
	require.Len(t, gates, 1)
	assert.Equal(t, GatePending, gates[0].Status)
}

func TestApproveGateUnknownDecision(t *testing.T) {
	client := &stubClient{content: "ok"}
	engine, store := newTestEngine(t, client)
	p := newTestProject(t, store)

	p.CurrentPhase = TagDependencyApproval
	require.NoError(t, store.UpdateProject(p))

	_, err := engine.ApproveGate(context.Background(), p.ID, "dependency-approval", "maybe", "alex", "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeGateDecision))
}

func seedValidationPhase(t *testing.T, store Store, content string) *Project {
	t.Helper()
	p := &Project{Name: "demo", Brief: "brief"}
	require.NoError(t, store.CreateProject(p))
	p.CurrentPhase = TagValidation
	require.NoError(t, store.UpdateProject(p))
	_, err := store.SaveArtifact(p.ID, TagValidation, "validation-report.md", content, "phase generation")
	require.NoError(t, err)
	return p
}

func TestValidatePhasePasses(t *testing.T) {
	engine, store := newTestEngine(t, &stubClient{content: "clean"})
	p := seedValidationPhase(t, store, "A thorough validation report with no issues found.")

	run, err := engine.ValidatePhase(context.Background(), p.ID)
	require.NoError(t, err)

	assert.True(t, run.Passed)
	assert.Empty(t, run.FailureReasons)

	remedies, err := store.RemedyRuns(p.ID)
	require.NoError(t, err)
	assert.Empty(t, remedies, "passing validation spawns no remedy")
}

func TestValidateFailureSpawnsOneRemedyAndIncrementsCounter(t *testing.T) {
	// Remedy output still carries a placeholder, so re-validation fails too
	client := &stubClient{content: "Still broken: TODO later."}
	engine, store := newTestEngine(t, client)
	p := seedValidationPhase(t, store, "Report draft. TODO: fill in findings.")

	run, err := engine.ValidatePhase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, run.Passed)

	remedies, err := store.RemedyRuns(p.ID)
	require.NoError(t, err)
	require.Len(t, remedies, 1, "exactly one remedy run per failing validation")
	assert.False(t, remedies[0].Successful)
	assert.Equal(t, []string{"validation-report.md"}, remedies[0].ChangesApplied)

	runs, err := store.ValidationRuns(p.ID, TagValidation)
	require.NoError(t, err)
	require.Len(t, runs, 2, "initial validation plus re-validation")
	assert.Equal(t, runs[0].ID, remedies[0].ValidationRunID, "remedy links to the failing run")

	loaded, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.RemedyAttempts, "still-failing re-validation increments by exactly 1")
	assert.Equal(t, remedies[0].ID, loaded.LastRemedyRunID)
}

func TestValidateFailureRemedySucceeds(t *testing.T) {
	client := &stubClient{content: "All findings resolved; the report is complete."}
	engine, store := newTestEngine(t, client)
	p := seedValidationPhase(t, store, "Report draft. TODO: fill in findings.")

	run, err := engine.ValidatePhase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, run.Passed, "re-validation after a successful remedy passes")

	remedies, err := store.RemedyRuns(p.ID)
	require.NoError(t, err)
	require.Len(t, remedies, 1)
	assert.True(t, remedies[0].Successful)

	loaded, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.RemedyAttempts, "successful remedy does not increment the counter")
	assert.False(t, loaded.Blocked)
}

func TestValidateExceedingRemedyCeilingBlocksPhase(t *testing.T) {
	client := &stubClient{content: "Still broken: TODO later."}
	engine, store := newTestEngine(t, client, WithMaxRemedyAttempts(1))
	p := seedValidationPhase(t, store, "Report draft. TODO: fill in findings.")

	_, err := engine.ValidatePhase(context.Background(), p.ID)
	require.NoError(t, err)

	loaded, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.RemedyAttempts)
	assert.True(t, loaded.Blocked)
	assert.Contains(t, loaded.BlockedReason, "ceiling")

	// Blocked phases refuse execution until manual intervention
	result, err := engine.ExecutePhase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "blocked")

	// Further validation stays bounded: no new remedy runs
	_, err = engine.ValidatePhase(context.Background(), p.ID)
	require.NoError(t, err)
	remedies, err := store.RemedyRuns(p.ID)
	require.NoError(t, err)
	assert.Len(t, remedies, 1)
}

func TestValidateSnapshotTakenBeforeRemedy(t *testing.T) {
	client := &stubClient{content: "Still broken: TODO later."}
	engine, store := newTestEngine(t, client)
	p := seedValidationPhase(t, store, "Report draft. TODO: fill in findings.")

	_, err := engine.ValidatePhase(context.Background(), p.ID)
	require.NoError(t, err)

	snaps, err := store.ListSnapshots(p.ID, TagValidation)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Artifacts, 1)
	assert.Equal(t, HashContent("Report draft. TODO: fill in findings."), snaps[0].Artifacts[0].ContentHash,
		"snapshot captures the pre-remedy content")
}

func TestSnapshotRollbackRoundTrip(t *testing.T) {
	engine, store := newTestEngine(t, &stubClient{content: "ok"})
	p := newTestProject(t, store)

	original := "# Specification v1\n\nThe original, complete content."
	_, err := store.SaveArtifact(p.ID, TagSpecification, "specification.md", original, "phase generation")
	require.NoError(t, err)

	snap, err := engine.Snapshot(p.ID, TagSpecification, "before regeneration")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SnapshotNumber)

	// Intervening regeneration changes the content
	_, err = store.SaveArtifact(p.ID, TagSpecification, "specification.md", "overwritten by a bad regen", "regen")
	require.NoError(t, err)

	restored, err := engine.RollbackPhase(context.Background(), p.ID, TagSpecification, 1)
	require.NoError(t, err)
	require.Len(t, restored, 1)

	latest, err := store.ArtifactsForPhase(p.ID, TagSpecification)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, snap.Artifacts[0].ContentHash, latest[0].ContentHash,
		"restored artifact set is content-hash-equal to the snapshot")
	assert.Equal(t, 3, latest[0].Version, "rollback writes a new version, history is retained")

	// Later snapshots survive rollback
	snaps, err := store.ListSnapshots(p.ID, TagSpecification)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestRollbackRemovesArtifactsAddedAfterSnapshot(t *testing.T) {
	engine, store := newTestEngine(t, &stubClient{content: "ok"})
	p := newTestProject(t, store)

	original := "# Specification v1\n\nThe original, complete content."
	_, err := store.SaveArtifact(p.ID, TagSpecification, "specification.md", original, "phase generation")
	require.NoError(t, err)

	snap, err := engine.Snapshot(p.ID, TagSpecification, "before regeneration")
	require.NoError(t, err)

	// A regeneration adds a file the snapshot never saw
	_, err = store.SaveArtifact(p.ID, TagSpecification, "extra.md", "added after the snapshot", "regen")
	require.NoError(t, err)

	restored, err := engine.RollbackPhase(context.Background(), p.ID, TagSpecification, snap.SnapshotNumber)
	require.NoError(t, err)
	require.Len(t, restored, 1)

	latest, err := store.ArtifactsForPhase(p.ID, TagSpecification)
	require.NoError(t, err)
	require.Len(t, latest, 1, "restored set is exactly the snapshot's set")
	assert.Equal(t, "specification.md", latest[0].Filename)
	assert.Equal(t, snap.Artifacts[0].ContentHash, latest[0].ContentHash)

	// The removed file's history survives as a tombstone version
	versions, err := store.VersionRecords(p.ID)
	require.NoError(t, err)
	tombstoned := false
	for _, v := range versions {
		if v.Filename == "extra.md" && strings.Contains(v.RegenerationReason, "rollback") {
			tombstoned = true
		}
	}
	assert.True(t, tombstoned, "removal is recorded in the version history")
}

func TestRollbackUnknownSnapshot(t *testing.T) {
	engine, store := newTestEngine(t, &stubClient{content: "ok"})
	p := newTestProject(t, store)

	_, err := engine.RollbackPhase(context.Background(), p.ID, TagSpecification, 9)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSnapshotNotFound))
}

func TestValidateNoPlaceholdersReasons(t *testing.T) {
	failures, _ := ValidateNoPlaceholders(Artifact{
		Filename: "spec.md",
		Content:  "TODO: write this. FIXME too.",
	})
	require.Len(t, failures, 2)
	assert.True(t, strings.Contains(failures[0], "placeholder"))
}
