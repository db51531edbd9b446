package diagnostics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/lesproj/multigrid"
	"github.com/notargets/lesproj/pressure"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListSolves(t *testing.T) {
	var (
		store = openTempStore(t)
		ctx   = context.Background()
		now   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)
	recs := []pressure.SolveRecord{
		{Run: "point", Seq: 1, Start: now, Duration: 3 * time.Millisecond, Ranks: 27,
			Itot: 12, Jtot: 36, Ktot: 12, Status: multigrid.Converged, Cycles: 3,
			InitialResidual: 1, Residual: 1e-9, History: []float64{1e-2, 1e-5, 1e-9}},
		{Run: "point", Seq: 2, Start: now.Add(time.Second), Ranks: 27,
			Itot: 12, Jtot: 36, Ktot: 12, Status: multigrid.Converged, Residual: 1e-9},
		{Run: "other", Seq: 1, Start: now, Ranks: 1, Itot: 8, Jtot: 8, Ktot: 8,
			Status: multigrid.IterationLimitReached, Cycles: 1, InitialResidual: 2,
			Residual: 0.5, History: []float64{0.5}},
	}
	for _, rec := range recs {
		require.NoError(t, store.RecordSolve(ctx, rec))
	}
	{ // One run
		got, err := store.ListSolves(ctx, "point")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, recs[0].Seq, got[0].Seq)
		assert.Equal(t, recs[0].History, got[0].History)
		assert.Equal(t, recs[0].Duration, got[0].Duration)
		assert.True(t, recs[0].Start.Equal(got[0].Start))
		assert.Equal(t, multigrid.Converged, got[0].Status)
		assert.Equal(t, 36, got[0].Jtot)
		assert.Empty(t, got[1].History)
	}
	{ // Every run
		got, err := store.ListSolves(ctx, "")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "other", got[0].Run)
		assert.Equal(t, multigrid.IterationLimitReached, got[0].Status)
		assert.Equal(t, []float64{0.5}, got[0].History)
	}
}

func TestRecordSolveValidation(t *testing.T) {
	store := openTempStore(t)
	assert.Error(t, store.RecordSolve(context.Background(), pressure.SolveRecord{}))
	_, err := Open(" ")
	assert.Error(t, err)
	var closed *Store
	assert.NoError(t, closed.Close())
}
