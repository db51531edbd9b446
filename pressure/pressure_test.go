package pressure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/multigrid"
	"github.com/notargets/lesproj/utils"
)

func onRanks(t *testing.T, cfg grid.Config, fn func(ctx context.Context, c comm.Comm, g *grid.Grid) error) {
	t.Helper()
	err := comm.Run(context.Background(), cfg.Npx*cfg.Npy, func(ctx context.Context, c comm.Comm) error {
		topo, err := grid.NewTopology(cfg.Npx, cfg.Npy, c.Rank())
		if err != nil {
			return err
		}
		g, err := grid.New(cfg, topo)
		if err != nil {
			return err
		}
		return fn(ctx, c, g)
	})
	require.NoError(t, err)
}

// gatherGlobal assembles the owned cells of every rank into one global array,
// i fastest, identical on every rank
func gatherGlobal(ctx context.Context, c comm.Comm, f *field.Field3D) (glob []float64, err error) {
	g := f.Grid()
	all := make([]float64, g.NInterior()*c.Size())
	if err = comm.AllGather(ctx, c, f.PackInterior(nil), all); err != nil {
		return
	}
	glob = make([]float64, g.NTotal())
	var p int
	for r := 0; r < c.Size(); r++ {
		cx, cy := g.Topo.Coords(r)
		for k := 0; k < g.Kmax; k++ {
			for j := 0; j < g.Jmax; j++ {
				for i := 0; i < g.Imax; i++ {
					ig, jg := cx*g.Imax+i, cy*g.Jmax+j
					glob[ig+jg*g.Itot+k*g.Itot*g.Jtot] = all[p]
					p++
				}
			}
		}
	}
	return
}

func pointSource(t *testing.T, cfg grid.Config, coarse multigrid.CoarseSolver) {
	const ig0, jg0, kg0 = 5, 7, 6
	onRanks(t, cfg, func(ctx context.Context, c comm.Comm, g *grid.Grid) error {
		pc := DefaultConfig()
		pc.BC = field.BotTopBC{
			Bot: field.Side{Type: utils.BCDirichlet},
			Top: field.Side{Type: utils.BCDirichlet},
		}
		pc.Multigrid.Tolerance = 1e-8
		s, err := New(g, c, pc)
		if err != nil {
			return err
		}
		if s.Multigrid().CoarseKind() != coarse {
			return fmt.Errorf("coarse solver is %s, want %s", s.Multigrid().CoarseKind(), coarse)
		}
		div := s.NewField("div")
		i, j := ig0-g.IOffset()+g.Istart, jg0-g.JOffset()+g.Jstart
		if i >= g.Istart && i < g.Iend && j >= g.Jstart && j < g.Jend {
			div.Set(i, j, kg0+g.Kstart, 1)
		}
		res, err := s.Solve(ctx, div)
		if err != nil {
			return err
		}
		if !res.Converged || res.Residual >= 1e-6 {
			return fmt.Errorf("status %s, residual %g after %d cycles", res.Status, res.Residual, res.Cycles)
		}
		p, err := gatherGlobal(ctx, c, res.Pressure)
		if err != nil {
			return err
		}
		var (
			nx, ny = g.Itot, g.Jtot
			at     = func(ig, jg, kg int) float64 {
				ig, jg = ((ig%nx)+nx)%nx, ((jg%ny)+ny)%ny
				return p[ig+jg*nx+kg*nx*ny]
			}
			src = at(ig0, jg0, kg0)
		)
		if src >= 0 {
			return fmt.Errorf("pressure at a unit source is %g, expected a negative minimum", src)
		}
		for kg := 0; kg < g.Ktot; kg++ {
			for d := 0; d < ny; d++ {
				for e := 0; e < nx; e++ {
					val := at(ig0+e, jg0+d, kg)
					if math.Abs(val-at(ig0-e, jg0+d, kg)) > 1e-4 || math.Abs(val-at(ig0+e, jg0-d, kg)) > 1e-4 {
						return fmt.Errorf("asymmetric pressure at offset (%d,%d,%d)", e, d, kg)
					}
					if val < src {
						return fmt.Errorf("pressure %g at offset (%d,%d,%d) below the source value %g", val, e, d, kg, src)
					}
				}
			}
		}
		// Localized: far from the source the perturbation has decayed
		if far := at(ig0+nx/2, jg0+ny/2, 0); math.Abs(far) > 0.1*math.Abs(src) {
			return fmt.Errorf("pressure far from the source %g, at the source %g", far, src)
		}
		return nil
	})
}

func TestPointSource(t *testing.T) {
	{ // 3x3 ranks, the coarsest level admits the transposes
		pointSource(t, grid.Config{Itot: 12, Jtot: 12, Ktot: 12, Xsize: 12, Ysize: 12, Zsize: 12,
			Npx: 3, Npy: 3, Igc: 1, Jgc: 1, Kgc: 1}, multigrid.CoarseFFT)
	}
	{ // 27 ranks
		pointSource(t, grid.Config{Itot: 12, Jtot: 36, Ktot: 12, Xsize: 12, Ysize: 36, Zsize: 12,
			Npx: 3, Npy: 9, Igc: 2, Jgc: 2, Kgc: 1}, multigrid.CoarseDirect)
	}
}

func TestStep(t *testing.T) {
	cfg := grid.Config{Itot: 8, Jtot: 8, Ktot: 8, Xsize: 1, Ysize: 1, Zsize: 1,
		Npx: 2, Npy: 2, Igc: 1, Jgc: 1, Kgc: 1}
	onRanks(t, cfg, func(ctx context.Context, c comm.Comm, g *grid.Grid) error {
		pc := DefaultConfig()
		pc.Multigrid.Tolerance = 1e-9
		pc.Multigrid.MaxCycles = 100
		s, err := New(g, c, pc)
		if err != nil {
			return err
		}
		rnd := rand.New(rand.NewSource(int64(c.Rank())))
		u, v, w := s.NewField("u"), s.NewField("v"), s.NewField("w")
		for _, f := range []*field.Field3D{u, v, w} {
			f.FillInterior(func(i, j, k int) float64 { return rnd.Float64() - 0.5 })
		}
		const dt = 0.1
		div := s.NewField("div")
		if err = s.Divergence(ctx, u, v, w, dt, div); err != nil {
			return err
		}
		before, err := comm.AllReduceScalar(ctx, c, comm.Max, div.InteriorMaxAbs())
		if err != nil {
			return err
		}
		res, err := s.Step(ctx, u, v, w, dt)
		if err != nil {
			return err
		}
		if !res.Converged {
			return fmt.Errorf("pressure did not converge, residual %g", res.Residual)
		}
		if err = s.Divergence(ctx, u, v, w, dt, div); err != nil {
			return err
		}
		after, err := comm.AllReduceScalar(ctx, c, comm.Max, div.InteriorMaxAbs())
		if err != nil {
			return err
		}
		if before < 1 || after > 1e-7 {
			return fmt.Errorf("divergence %g before and %g after projection", before, after)
		}
		return nil
	})
	{ // Fixed value pressure walls cannot project
		onRanks(t, grid.Config{Itot: 4, Jtot: 4, Ktot: 4, Xsize: 1, Ysize: 1, Zsize: 1,
			Npx: 1, Npy: 1, Igc: 1, Jgc: 1, Kgc: 1}, func(ctx context.Context, c comm.Comm, g *grid.Grid) error {
			pc := DefaultConfig()
			pc.BC.Top = field.Side{Type: utils.BCDirichlet}
			s, err := New(g, c, pc)
			if err != nil {
				return err
			}
			_, err = s.Step(ctx, s.NewField("u"), s.NewField("v"), s.NewField("w"), 1)
			assert.True(t, errors.Is(err, grid.ErrConfig))
			return nil
		})
	}
}

type memRecorder struct {
	mu   sync.Mutex
	recs []SolveRecord
}

func (m *memRecorder) RecordSolve(ctx context.Context, rec SolveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func TestHistory(t *testing.T) {
	rec := &memRecorder{}
	onRanks(t, grid.Config{Itot: 8, Jtot: 8, Ktot: 8, Xsize: 1, Ysize: 1, Zsize: 1,
		Npx: 2, Npy: 1, Igc: 1, Jgc: 1, Kgc: 1}, func(ctx context.Context, c comm.Comm, g *grid.Grid) error {
		pc := DefaultConfig()
		pc.BC.Bot = field.Side{Type: utils.BCDirichlet, Value: 1}
		s, err := New(g, c, pc, WithRecorder(rec), WithRun("history"))
		if err != nil {
			return err
		}
		div := s.NewField("div")
		div.FillInterior(func(i, j, k int) float64 { return math.Sin(g.XCenter(i) * 2 * math.Pi) })
		first, err := s.Solve(ctx, div)
		if err != nil {
			return err
		}
		// Warm started from the converged pressure there is nothing left to do
		second, err := s.Solve(ctx, div)
		if err != nil {
			return err
		}
		hist := s.History()
		assert.Len(t, hist, 2)
		assert.True(t, first.Converged)
		assert.Greater(t, first.Cycles, 0)
		assert.Equal(t, 0, second.Cycles)
		assert.Equal(t, multigrid.Converged, hist[1].Status)
		assert.Equal(t, first.History, hist[0].History)
		assert.Equal(t, 2, hist[0].Ranks)
		return nil
	})
	require.Len(t, rec.recs, 2)
	assert.Equal(t, "history", rec.recs[0].Run)
	assert.Equal(t, 2, rec.recs[1].Seq)
}

func TestResultPressureIsSession(t *testing.T) {
	onRanks(t, grid.Config{Itot: 8, Jtot: 8, Ktot: 8, Xsize: 1, Ysize: 1, Zsize: 1,
		Npx: 2, Npy: 1, Igc: 1, Jgc: 1, Kgc: 1}, func(ctx context.Context, c comm.Comm, g *grid.Grid) error {
		pc := DefaultConfig()
		pc.BC.Bot = field.Side{Type: utils.BCDirichlet}
		s, err := New(g, c, pc)
		if err != nil {
			return err
		}
		div := s.NewField("div")
		div.FillInterior(func(i, j, k int) float64 { return math.Sin(g.XCenter(i) * 2 * math.Pi) })
		first, err := s.Solve(ctx, div)
		if err != nil {
			return err
		}
		assert.Same(t, s.Pressure(), first.Pressure)
		kept := s.NewField("kept")
		require.NoError(t, kept.CopyFrom(first.Pressure))
		div.ScaleInterior(2)
		second, err := s.Solve(ctx, div)
		if err != nil {
			return err
		}
		assert.Same(t, first.Pressure, second.Pressure)
		// The copy still holds the first pressure, the result field moved on
		i, j, k := g.Istart, g.Jstart, g.Kstart
		assert.NotZero(t, kept.At(i, j, k))
		assert.InDelta(t, 2*kept.At(i, j, k), first.Pressure.At(i, j, k), 1e-6)
		return nil
	})
}

func TestIterationLimit(t *testing.T) {
	onRanks(t, grid.Config{Itot: 8, Jtot: 8, Ktot: 8, Xsize: 1, Ysize: 1, Zsize: 1,
		Npx: 1, Npy: 1, Igc: 1, Jgc: 1, Kgc: 1}, func(ctx context.Context, c comm.Comm, g *grid.Grid) error {
		pc := DefaultConfig()
		pc.Multigrid.MaxCycles = 1
		pc.Multigrid.Tolerance = 1e-14
		pc.Multigrid.CoarseSolver = multigrid.CoarseSmooth
		pc.Multigrid.CoarseSweeps = 1
		s, err := New(g, c, pc)
		if err != nil {
			return err
		}
		div := s.NewField("div")
		div.FillInterior(func(i, j, k int) float64 { return float64((i + j + k) % 3) })
		res, err := s.Solve(ctx, div)
		if err != nil {
			return err
		}
		assert.False(t, res.Converged)
		assert.Equal(t, multigrid.IterationLimitReached, res.Status)
		assert.Less(t, res.Residual, res.InitialResidual)
		return nil
	})
}
