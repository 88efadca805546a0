package workspace_test

import (
	"testing"
	"time"

	"github.com/ignatij/ingestctl/pkg/graph"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/ignatij/ingestctl/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(id, name string) models.Job {
	return models.Job{ID: id, Name: name, Category: models.S3Category, Status: models.PendingJobStatus}
}

func twoJobs(t *testing.T) workspace.Snapshot {
	t.Helper()
	snap := workspace.Empty()
	var err error
	snap, err = snap.AddJob(job("J1", "Accounts"))
	require.NoError(t, err)
	snap, err = snap.AddJob(job("J2", "Orders"))
	require.NoError(t, err)
	return snap
}

func chain(t *testing.T, snap workspace.Snapshot, name string, ids ...string) (workspace.Snapshot, models.Pipeline) {
	t.Helper()
	b := graph.NewBuilder(snap.JobIDs())
	for _, id := range ids {
		require.NoError(t, b.AddJob(id, nil))
	}
	for i := 1; i < len(ids); i++ {
		require.NoError(t, b.Connect(ids[i-1], ids[i]))
	}
	next, p, err := snap.CreatePipeline(name, b.Jobs(), b.Nodes(), b.Edges(), nil, time.Now())
	require.NoError(t, err)
	return next, p
}

// assertConsistent checks that derived connectivity matches the pipeline collection.
func assertConsistent(t *testing.T, snap workspace.Snapshot) {
	t.Helper()
	assert.NoError(t, snap.Check())
	live := map[string]struct{}{}
	for _, p := range snap.Pipelines {
		live[p.ID] = struct{}{}
	}
	for _, v := range snap.Views() {
		count := 0
		for _, p := range snap.Pipelines {
			if p.HasJob(v.ID) {
				count++
			}
		}
		assert.Equal(t, count > 0, v.IsConnected, "job %s", v.ID)
		assert.Len(t, v.Pipelines, count, "job %s", v.ID)
		for _, ref := range v.Pipelines {
			_, ok := live[ref.ID]
			assert.True(t, ok, "job %s references dead pipeline %s", v.ID, ref.ID)
		}
	}
}

func TestPipelineMembership(t *testing.T) {
	snap := twoJobs(t)
	snap, p1 := chain(t, snap, "P1", "J1", "J2")
	require.Len(t, p1.Edges, 1)
	assertConsistent(t, snap)

	for _, id := range []string{"J1", "J2"} {
		v, ok := snap.View(id)
		require.True(t, ok)
		assert.True(t, v.IsConnected)
		assert.Equal(t, []models.PipelineRef{{ID: p1.ID, Name: "P1"}}, v.Pipelines)
	}

	deleted, err := snap.DeletePipeline(p1.ID)
	require.NoError(t, err)
	assertConsistent(t, deleted)
	assert.Empty(t, deleted.Pipelines)
	for _, id := range []string{"J1", "J2"} {
		v, _ := deleted.View(id)
		assert.False(t, v.IsConnected)
		assert.Empty(t, v.Pipelines)
	}

	// the earlier snapshot is untouched
	assert.Len(t, snap.Pipelines, 1)
}

func TestJobInManyPipelines(t *testing.T) {
	snap := twoJobs(t)
	snap, p1 := chain(t, snap, "P1", "J1", "J2")
	snap, p2 := chain(t, snap, "P2", "J1")
	assertConsistent(t, snap)

	v, _ := snap.View("J1")
	assert.Len(t, v.Pipelines, 2)

	snap, _, err := snap.UpdatePipeline(p1.ID, "P1", []string{"J2"}, graph.AutoLayout([]string{"J2"}), nil)
	require.NoError(t, err)
	assertConsistent(t, snap)
	v, _ = snap.View("J1")
	assert.Equal(t, []models.PipelineRef{{ID: p2.ID, Name: "P2"}}, v.Pipelines)
}

func TestPipelineRejectsUnknownJobs(t *testing.T) {
	snap := twoJobs(t)
	_, _, err := snap.CreatePipeline("P", []string{"J1", "J404"}, nil, nil, nil, time.Now())
	assert.ErrorIs(t, err, workspace.ErrJobNotFound)

	_, err = snap.DeletePipeline("missing")
	assert.ErrorIs(t, err, workspace.ErrPipelineNotFound)
}

func TestDeleteJobDetachesFromPipelines(t *testing.T) {
	snap := twoJobs(t)
	snap, err := snap.AddJob(job("J3", "Invoices"))
	require.NoError(t, err)
	snap, p := chain(t, snap, "P", "J1", "J2", "J3")

	snap, err = snap.DeleteJob("J2")
	require.NoError(t, err)
	assertConsistent(t, snap)

	updated, ok := snap.Pipeline(p.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"J1", "J3"}, updated.Jobs)
	assert.Len(t, updated.Nodes, 2)
	assert.Empty(t, updated.Edges)
}

func TestJobIdentity(t *testing.T) {
	snap := twoJobs(t)
	_, err := snap.AddJob(job("J1", "Again"))
	assert.ErrorIs(t, err, workspace.ErrDuplicateJob)

	_, err = snap.UpdateJob(job("J9", "Nope"))
	assert.ErrorIs(t, err, workspace.ErrJobNotFound)
}

func TestStageTransitions(t *testing.T) {
	snap := twoJobs(t)
	snap, st, err := snap.AddStage("J1", models.StageInput{Type: models.ExtractionStageType, Name: "Extract"}, nil)
	require.NoError(t, err)
	snap, _, err = snap.AddStage("J1", models.StageInput{Type: models.LoadingStageType, Name: "Load"}, nil)
	require.NoError(t, err)

	snap, err = snap.ReorderStages("J1", 1, 0)
	require.NoError(t, err)
	j, _ := snap.Job("J1")
	assert.Equal(t, "Load", j.Stages[0].Name)

	same, err := snap.ReorderStages("J1", 0, 5)
	assert.ErrorIs(t, err, models.ErrIndexOutOfRange)
	assert.Equal(t, snap, same)

	snap, err = snap.RemoveStage("J1", st.ID)
	require.NoError(t, err)
	j, _ = snap.Job("J1")
	assert.Len(t, j.Stages, 1)

	_, err = snap.RemoveStage("J404", st.ID)
	assert.ErrorIs(t, err, workspace.ErrJobNotFound)
}

func TestMergeJobs(t *testing.T) {
	snap := twoJobs(t)
	snap, _, err := snap.AddStage("J1", models.StageInput{Type: models.ExtractionStageType, Name: "Extract"}, nil)
	require.NoError(t, err)

	remote := job("J1", "Accounts (remote)")
	remote.Status = models.RunningJobStatus
	snap, err = snap.MergeJobs([]models.Job{remote, job("J7", "New")})
	require.NoError(t, err)

	j, _ := snap.Job("J1")
	assert.Equal(t, "Accounts (remote)", j.Name)
	assert.Len(t, j.Stages, 1)
	assert.Len(t, snap.Jobs, 3)
}

func TestLoadSave(t *testing.T) {
	store := storage.NewMemoryStore()

	empty, err := workspace.Load(store)
	require.NoError(t, err)
	assert.Empty(t, empty.Jobs)
	assert.Equal(t, workspace.CurrentVersion, empty.Version)

	snap := twoJobs(t)
	snap, p := chain(t, snap, "P1", "J1", "J2")
	require.NoError(t, workspace.Save(store, snap))

	loaded, err := workspace.Load(store)
	require.NoError(t, err)
	assert.Len(t, loaded.Jobs, 2)
	lp, ok := loaded.Pipeline(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.Edges, lp.Edges)
	assert.True(t, p.CreatedAt.Equal(lp.CreatedAt))

	require.NoError(t, store.Set(storage.AppDataKey, `{"version": 99}`))
	_, err = workspace.Load(store)
	assert.Error(t, err)

	require.NoError(t, store.Set(storage.AppDataKey, `not json`))
	_, err = workspace.Load(store)
	assert.Error(t, err)
}
