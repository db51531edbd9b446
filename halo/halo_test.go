package halo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/utils"
)

func globalValue(ig, jg, k int) float64 {
	return float64(ig + 100*jg + 10000*k)
}

func wrap(n, size int) int { return ((n % size) + size) % size }

// checkCyclic verifies every cell of the owned k range, halo included, against
// the global pattern with periodic wrap
func checkCyclic(g *grid.Grid, f *field.Field3D) error {
	for k := g.Kstart; k < g.Kend; k++ {
		for j := 0; j < g.Jcells; j++ {
			for i := 0; i < g.Icells; i++ {
				ig := wrap(g.IOffset()+i-g.Istart, g.Itot)
				jg := wrap(g.JOffset()+j-g.Jstart, g.Jtot)
				want := globalValue(ig, jg, k-g.Kstart)
				if got := f.At(i, j, k); got != want {
					return fmt.Errorf("rank %d cell (%d,%d,%d): got %g want %g",
						g.Topo.Rank, i, j, k, got, want)
				}
			}
		}
	}
	return nil
}

func runCyclic(t *testing.T, cfg grid.Config) {
	err := comm.Run(context.Background(), cfg.Npx*cfg.Npy, func(ctx context.Context, c comm.Comm) error {
		topo, err := grid.NewTopology(cfg.Npx, cfg.Npy, c.Rank())
		if err != nil {
			return err
		}
		g, err := grid.New(cfg, topo)
		if err != nil {
			return err
		}
		ex, err := NewExchanger(g, c)
		if err != nil {
			return err
		}
		f := field.New(g, "s")
		f.Fill(-1)
		f.FillInterior(func(i, j, k int) float64 {
			return globalValue(g.IOffset()+i-g.Istart, g.JOffset()+j-g.Jstart, k-g.Kstart)
		})
		// Twice, staging buffers are reused
		for n := 0; n < 2; n++ {
			if err = ex.Exchange(ctx, f, Cyclic); err != nil {
				return err
			}
		}
		return checkCyclic(g, f)
	})
	assert.NoError(t, err)
}

func TestCyclic(t *testing.T) {
	{ // Single rank, the neighbour is self
		runCyclic(t, grid.Config{Itot: 5, Jtot: 4, Ktot: 3, Xsize: 1, Ysize: 1, Zsize: 1,
			Npx: 1, Npy: 1, Igc: 2, Jgc: 1, Kgc: 1})
	}
	{ // Two ranks along x are both east and west of each other
		runCyclic(t, grid.Config{Itot: 8, Jtot: 3, Ktot: 2, Xsize: 1, Ysize: 1, Zsize: 1,
			Npx: 2, Npy: 1, Igc: 2, Jgc: 2, Kgc: 1})
	}
	{ // 3x3 process grid, corners come from the diagonal neighbour
		runCyclic(t, grid.Config{Itot: 9, Jtot: 12, Ktot: 4, Xsize: 1, Ysize: 1, Zsize: 1,
			Npx: 3, Npy: 3, Igc: 2, Jgc: 3, Kgc: 2})
	}
	{ // Decomposed along y only
		runCyclic(t, grid.Config{Itot: 6, Jtot: 8, Ktot: 2, Xsize: 1, Ysize: 1, Zsize: 1,
			Npx: 1, Npy: 4, Igc: 1, Jgc: 2, Kgc: 1})
	}
}

func TestBotTop(t *testing.T) {
	topo, _ := grid.NewTopology(1, 1, 0)
	g, err := grid.New(grid.Config{Itot: 2, Jtot: 2, Ktot: 4, Xsize: 1, Ysize: 1, Zsize: 2,
		Npx: 1, Npy: 1, Igc: 1, Jgc: 1, Kgc: 2}, topo)
	require.NoError(t, err)
	ex, err := NewExchanger(g, comm.NewWorld(1).Comm(0))
	require.NoError(t, err)
	ctx := context.Background()
	dz := g.Dz
	{ // Dirichlet walls: the mirror pairs average to the wall value
		f := field.New(g, "d")
		f.BC = field.BotTopBC{
			Bot: field.Side{Type: utils.BCDirichlet, Value: 1},
			Top: field.Side{Type: utils.BCDirichlet, Value: -2},
		}
		f.FillInterior(func(i, j, k int) float64 { return float64(k * k) })
		require.NoError(t, ex.Exchange(ctx, f, All))
		for _, ij := range [][2]int{{1, 1}, {0, 0}, {3, 2}} {
			i, j := ij[0], ij[1]
			for n := 1; n <= g.Kgc; n++ {
				assert.InDelta(t, 1., 0.5*(f.At(i, j, g.Kstart-n)+f.At(i, j, g.Kstart+n-1)), 1e-14)
				assert.InDelta(t, -2., 0.5*(f.At(i, j, g.Kend-1+n)+f.At(i, j, g.Kend-n)), 1e-14)
			}
		}
	}
	{ // Neumann walls: the mirror pairs reproduce the wall gradient
		f := field.New(g, "n")
		f.BC = field.BotTopBC{
			Bot: field.Side{Type: utils.BCNeumann, Value: 3},
			Top: field.Side{Type: utils.BCNeumann, Value: 0.5},
		}
		f.FillInterior(func(i, j, k int) float64 { return float64(i + j + k) })
		require.NoError(t, ex.Exchange(ctx, f, All))
		i, j := 1, 2
		for n := 1; n <= g.Kgc; n++ {
			span := float64(2*n-1) * dz
			assert.InDelta(t, 3., (f.At(i, j, g.Kstart+n-1)-f.At(i, j, g.Kstart-n))/span, 1e-12)
			assert.InDelta(t, 0.5, (f.At(i, j, g.Kend-1+n)-f.At(i, j, g.Kend-n))/span, 1e-12)
		}
	}
	{ // The horizontal halo is filled before the walls are mirrored
		f := field.New(g, "c")
		f.BC = field.BotTopBC{
			Bot: field.Side{Type: utils.BCDirichlet},
			Top: field.Side{Type: utils.BCNeumann},
		}
		f.FillInterior(func(i, j, k int) float64 { return float64(10*i + j) })
		require.NoError(t, ex.Exchange(ctx, f, All))
		assert.Equal(t, -f.At(g.Iend-1, g.Jend-1, g.Kstart), f.At(0, 0, g.Kstart-1))
		assert.Equal(t, f.At(g.Istart, g.Jstart, g.Kend-1), f.At(g.Iend, g.Jend, g.Kend))
	}
}

func TestConfigErrors(t *testing.T) {
	topo, _ := grid.NewTopology(2, 1, 0)
	g, err := grid.New(grid.Config{Itot: 4, Jtot: 2, Ktot: 2, Xsize: 1, Ysize: 1, Zsize: 1,
		Npx: 2, Npy: 1, Igc: 1, Jgc: 1, Kgc: 1}, topo)
	require.NoError(t, err)
	{ // Communicator does not match the topology
		_, err = NewExchanger(g, comm.NewWorld(3).Comm(0))
		assert.True(t, errors.Is(err, grid.ErrConfig))
	}
	{ // Field from a different grid
		ex, err := NewExchanger(g, comm.NewWorld(2).Comm(0))
		require.NoError(t, err)
		topo1, _ := grid.NewTopology(1, 1, 0)
		other, err := grid.New(grid.Config{Itot: 3, Jtot: 2, Ktot: 2, Xsize: 1, Ysize: 1, Zsize: 1,
			Npx: 1, Npy: 1, Igc: 1, Jgc: 1, Kgc: 1}, topo1)
		require.NoError(t, err)
		err = ex.Exchange(context.Background(), field.New(other, "x"), BotTop)
		assert.True(t, errors.Is(err, grid.ErrConfig))
	}
}
