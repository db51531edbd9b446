package cmd

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/lesproj/InputParameters"
	"github.com/notargets/lesproj/diagnostics"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/multigrid"
)

func TestRunPressure(t *testing.T) {
	fileInput := []byte(`
Title: Test Case
Itot: 8
Jtot: 8
Ktot: 8
Xsize: 8.
Ysize: 8.
Zsize: 8.
Npx: 2
Npy: 2
BCs:
  Bottom:
    Dirichlet: 0
Source: [3, 4, 2]
Steps: 2
`)
	ip := &InputParameters.InputParametersLES{}
	require.NoError(t, ip.Parse(fileInput))
	db := filepath.Join(t.TempDir(), "history.db")
	summary, err := RunPressure(context.Background(), &PressureRun{HistoryDB: db}, ip)
	require.NoError(t, err)
	require.Len(t, summary.Records, 2)
	for _, rec := range summary.Records {
		assert.Equal(t, multigrid.Converged, rec.Status)
		assert.Equal(t, 4, rec.Ranks)
	}
	// The second source is twice the first, the warm start still needs cycles
	assert.Greater(t, summary.Records[1].Cycles, 0)

	store, err := diagnostics.Open(db)
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.ListSolves(context.Background(), "Test Case")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, summary.Records[0].History, recs[0].History)

	var buf bytes.Buffer
	PrintHistory(&buf, recs, true)
	assert.Contains(t, buf.String(), "Test Case")
	assert.Contains(t, buf.String(), "8x8x8")
	assert.Contains(t, buf.String(), "cycle   1:")

	{ // Source outside of the grid
		ip.Source = [3]int{0, 8, 0}
		_, err = RunPressure(context.Background(), &PressureRun{}, ip)
		assert.True(t, errors.Is(err, grid.ErrConfig))
	}
}

func TestRunMMS(t *testing.T) {
	ip := &InputParameters.InputParametersLES{
		Title: "mms", Itot: 8, Jtot: 8, Ktot: 8, Xsize: 1, Ysize: 1, Zsize: 1,
		Npx: 2, Npy: 2, Tolerance: 1e-10,
	}
	levels, err := RunMMS(context.Background(), ip, 3, false)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	for n := 1; n < len(levels); n++ {
		assert.Equal(t, 2*levels[n-1].Itot, levels[n].Itot)
		order := math.Log2(levels[n-1].RMS / levels[n].RMS)
		assert.InDelta(t, 2, order, 0.2)
		assert.LessOrEqual(t, levels[n].RMS, levels[n].Max)
	}
	csvFile := filepath.Join(t.TempDir(), "mms.csv")
	assert.NoError(t, writeMMS(csvFile, ip.Title, levels))
}

func TestRunCheck(t *testing.T) {
	fileInput := []byte(`
Title: check
Itot: 8
Jtot: 8
Ktot: 8
Xsize: 1.
Ysize: 1.
Zsize: 1.
Npx: 2
Npy: 2
BCs:
  Bottom:
    Dirichlet: 1
  Top:
    Neumann: 0.5
`)
	ip := &InputParameters.InputParametersLES{}
	require.NoError(t, ip.Parse(fileInput))
	rep, err := RunCheck(context.Background(), ip)
	require.NoError(t, err)
	require.Len(t, rep.Layout, 4)
	assert.Contains(t, rep.Layout[3], "nprocs:  3,  1,  1,  2,  2,  1,  1,  4")
	assert.Contains(t, rep.Boundary, "bottom Dirichlet 1, top Neumann 0.5")
	assert.Contains(t, rep.Transpose, "ok")
	var buf bytes.Buffer
	PrintCheck(&buf, rep)
	assert.Contains(t, buf.String(), "transpose: ok")
	{ // Ktot does not split over Npx, only the transposes are skipped
		ip := &InputParameters.InputParametersLES{
			Itot: 8, Jtot: 6, Ktot: 6, Xsize: 1, Ysize: 1, Zsize: 1, Npx: 4, Npy: 1,
		}
		rep, err := RunCheck(context.Background(), ip)
		require.NoError(t, err)
		assert.Len(t, rep.Layout, 4)
		assert.Contains(t, rep.Boundary, "ok")
		assert.Contains(t, rep.Transpose, "skipped")
	}
	{ // A grid that does not split over the ranks is refused
		ip := &InputParameters.InputParametersLES{
			Itot: 9, Jtot: 8, Ktot: 8, Xsize: 1, Ysize: 1, Zsize: 1, Npx: 2, Npy: 1,
		}
		_, err := RunCheck(context.Background(), ip)
		assert.True(t, errors.Is(err, grid.ErrConfig))
	}
}
