package phase

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	p := &Project{Name: "demo", Brief: "build a todo app"}
	require.NoError(t, store.CreateProject(p))

	_, err = store.SaveArtifact(p.ID, TagIntake, "charter.md", "charter content", "phase generation")
	require.NoError(t, err)
	_, err = store.GetGate(p.ID, "dependency-approval", TagDependencyApproval)
	require.NoError(t, err)
	_, err = store.CreateSnapshot(&Snapshot{ProjectID: p.ID, PhaseName: TagIntake})
	require.NoError(t, err)

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	loaded, err := reopened.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", loaded.Name)

	artifacts, err := reopened.ArtifactsForPhase(p.ID, TagIntake)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, HashContent("charter content"), artifacts[0].ContentHash)

	gates, err := reopened.GatesForPhase(p.ID, TagDependencyApproval)
	require.NoError(t, err)
	assert.Len(t, gates, 1)

	snaps, err := reopened.ListSnapshots(p.ID, TagIntake)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestFileStoreEmptyDir(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	projects, err := store.ListProjects()
	require.NoError(t, err)
	assert.Empty(t, projects)
}
