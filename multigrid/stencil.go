package multigrid

import (
	"context"
	"math"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/halo"
)

// smooth runs red-black Gauss-Seidel sweeps on X. Every colour pass starts
// with a cyclic exchange so the opposite colour in the halo is current.
func (lev *Level) smooth(ctx context.Context, sweeps int) (err error) {
	for n := 0; n < sweeps; n++ {
		for color := 0; color < 2; color++ {
			if err = lev.exchange(ctx, lev.X, halo.Cyclic); err != nil {
				return
			}
			lev.relaxColor(color)
		}
	}
	return
}

// relaxColor updates every owned cell of one colour from its neighbours,
// which all have the other colour
func (lev *Level) relaxColor(color int) {
	var (
		g      = lev.Grid
		x, b   = lev.X.Data, lev.B.Data
		jj, kk = g.Icells, g.Ijcells
		idx2   = lev.idx2
		idy2   = lev.idy2
		idz2   = lev.idz2
	)
	lev.pm.ParallelFor(g.Kstart, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var (
				invD, wall = lev.kCoeff(k)
				lower      = k > g.Kstart
				upper      = k < g.Kend-1
			)
			for j := g.Jstart; j < g.Jend; j++ {
				i0 := g.Istart
				if lev.parity(i0, j, k) != color {
					i0++
				}
				for i := i0; i < g.Iend; i += 2 {
					ijk := g.Index(i, j, k)
					sum := idx2*(x[ijk-1]+x[ijk+1]) + idy2*(x[ijk-jj]+x[ijk+jj])
					if lower {
						sum += idz2 * x[ijk-kk]
					}
					if upper {
						sum += idz2 * x[ijk+kk]
					}
					x[ijk] = (b[ijk] - sum - wall) * invD
				}
			}
		}
	})
}

// residual computes R = B - A X on the owned cells
func (lev *Level) residual(ctx context.Context) (err error) {
	if err = lev.exchange(ctx, lev.X, halo.Cyclic); err != nil {
		return
	}
	var (
		g       = lev.Grid
		x, b, r = lev.X.Data, lev.B.Data, lev.R.Data
		jj, kk  = g.Icells, g.Ijcells
		idx2    = lev.idx2
		idy2    = lev.idy2
		idz2    = lev.idz2
	)
	lev.pm.ParallelFor(g.Kstart, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var (
				invD, wall = lev.kCoeff(k)
				d          float64
				lower      = k > g.Kstart
				upper      = k < g.Kend-1
			)
			if invD != 0 {
				d = 1 / invD
			}
			for j := g.Jstart; j < g.Jend; j++ {
				for i := g.Istart; i < g.Iend; i++ {
					ijk := g.Index(i, j, k)
					ax := idx2*(x[ijk-1]+x[ijk+1]) + idy2*(x[ijk-jj]+x[ijk+jj]) + d*x[ijk] + wall
					if lower {
						ax += idz2 * x[ijk-kk]
					}
					if upper {
						ax += idz2 * x[ijk+kk]
					}
					r[ijk] = b[ijk] - ax
				}
			}
		}
	})
	return
}

// residualNorm is the L2 norm of R over every rank, identical on all of them
func (lev *Level) residualNorm(ctx context.Context, c comm.Comm) (norm float64, err error) {
	var sum float64
	if sum, err = comm.AllReduceScalar(ctx, c, comm.Sum, lev.R.InteriorSumSquares()); err != nil {
		return
	}
	norm = math.Sqrt(sum)
	return
}
