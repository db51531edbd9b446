package multigrid

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/grid"
)

/*
directSolver gathers the coarsest right hand side on every rank and solves
the global system with an LU factorization computed once at setup. All ranks
factorize the same matrix and solve the same system, so the owned parts they
copy back agree at the rank boundaries.
*/
type directSolver struct {
	c        comm.Comm
	n        int
	lu       mat.LU
	order    []int // Gathered position -> global unknown
	local    []float64
	gathered []float64
	xg, bg   *mat.VecDense
	pinned   bool
}

func (ds *directSolver) kind() CoarseSolver { return CoarseDirect }

func newDirectSolver(lev *Level, c comm.Comm) (ds *directSolver, err error) {
	var (
		g      = lev.Grid
		n      = g.NTotal()
		nl     = g.NInterior()
		nx, ny = g.Itot, g.Jtot
		idx    = func(i, j, k int) int { return i + j*nx + k*nx*ny }
		wrap   = func(a, size int) int { return ((a % size) + size) % size }
	)
	ds = &directSolver{
		c:        c,
		n:        n,
		order:    make([]int, nl*c.Size()),
		local:    make([]float64, nl),
		gathered: make([]float64, nl*c.Size()),
		xg:       mat.NewVecDense(n, nil),
		bg:       mat.NewVecDense(n, nil),
		pinned:   lev.BC.Singular(),
	}
	for r := 0; r < c.Size(); r++ {
		cx, cy := g.Topo.Coords(r)
		var p int
		for k := 0; k < g.Kmax; k++ {
			for j := 0; j < g.Jmax; j++ {
				for i := 0; i < g.Imax; i++ {
					ds.order[r*nl+p] = idx(cx*g.Imax+i, cy*g.Jmax+j, k)
					p++
				}
			}
		}
	}
	dok := sparse.NewDOK(n, n)
	add := func(row, col int, val float64) {
		if val != 0 {
			dok.Set(row, col, dok.At(row, col)+val)
		}
	}
	for k := 0; k < g.Ktot; k++ {
		lower, zdiag, upper := lev.homogeneousZ(k + g.Kstart)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				row := idx(i, j, k)
				add(row, row, zdiag-2*(lev.idx2+lev.idy2))
				add(row, idx(wrap(i-1, nx), j, k), lev.idx2)
				add(row, idx(wrap(i+1, nx), j, k), lev.idx2)
				add(row, idx(i, wrap(j-1, ny), k), lev.idy2)
				add(row, idx(i, wrap(j+1, ny), k), lev.idy2)
				if k > 0 {
					add(row, idx(i, j, k-1), lower)
				}
				if k < g.Ktot-1 {
					add(row, idx(i, j, k+1), upper)
				}
			}
		}
	}
	a := mat.DenseCopyOf(dok.ToCSR())
	if ds.pinned {
		// Neumann walls leave the level undetermined, fix the first unknown
		for col := 0; col < n; col++ {
			a.Set(0, col, 0)
		}
		a.Set(0, 0, 1)
	}
	ds.lu.Factorize(a)
	if logDet, _ := ds.lu.LogDet(); math.IsInf(logDet, -1) || math.IsNaN(logDet) {
		err = fmt.Errorf("%w: coarse operator on %dx%dx%d is singular", grid.ErrConfig, nx, ny, g.Ktot)
	}
	return
}

func (ds *directSolver) solve(ctx context.Context, lev *Level) (err error) {
	lev.wallRHS(ds.local)
	if err = comm.AllGather(ctx, ds.c, ds.local, ds.gathered); err != nil {
		return
	}
	for p, row := range ds.order {
		ds.bg.SetVec(row, ds.gathered[p])
	}
	if ds.pinned {
		ds.bg.SetVec(0, 0)
	}
	if err = ds.lu.SolveVecTo(ds.xg, false, ds.bg); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return
		}
		err = nil
	}
	var (
		g    = lev.Grid
		mine = ds.order[ds.c.Rank()*len(ds.local):]
		p    int
	)
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			for i := g.Istart; i < g.Iend; i++ {
				lev.X.Data[g.Index(i, j, k)] = ds.xg.AtVec(mine[p])
				p++
			}
		}
	}
	return
}
