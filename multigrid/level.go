package multigrid

import (
	"context"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/halo"
	"github.com/notargets/lesproj/utils"
)

/*
Level is one grid of the hierarchy with its solution, right hand side and
residual. The finest level carries the caller's wall conditions, every coarser
level solves for a correction and carries the homogeneous ones.

	The operator is the cell centred 7 point Laplacian,
		(A x)_ijk = idx2*(x_i-1 - 2x + x_i+1) + idy2*(...) + idz2*(...)
	with the ghost below (above) the first (last) owned plane replaced by
		ghost = alpha*x + beta
	so the wall folds into the diagonal and a constant.
*/
type Level struct {
	Grid    *grid.Grid
	X, B, R *field.Field3D
	BC      field.BotTopBC

	ex                *halo.Exchanger
	pm                *utils.PartitionMap
	idx2, idy2, idz2  float64
	alphaBot, betaBot float64
	alphaTop, betaTop float64
}

func newLevel(g *grid.Grid, c comm.Comm, bc field.BotTopBC, parallelDegree int) (lev *Level, err error) {
	lev = &Level{
		Grid: g,
		X:    field.New(g, "x"),
		B:    field.New(g, "b"),
		R:    field.New(g, "r"),
		BC:   bc,
		pm:   utils.NewPartitionMap(min(parallelDegree, g.Kmax), g.Kmax),
	}
	if lev.ex, err = halo.NewExchanger(g, c); err != nil {
		return
	}
	lev.X.BC = bc
	lev.B.BC = bc
	// The residual is extended by zero gradient across the walls for restriction
	lev.R.BC = field.DefaultBC()
	if g.Itot > 1 {
		lev.idx2 = 1 / (g.Dx * g.Dx)
	}
	if g.Jtot > 1 {
		lev.idy2 = 1 / (g.Dy * g.Dy)
	}
	lev.idz2 = 1 / (g.Dz * g.Dz)
	lev.alphaBot, lev.betaBot = bc.Bot.Ghost(false, g.Dz)
	lev.alphaTop, lev.betaTop = bc.Top.Ghost(true, g.Dz)
	return
}

// kCoeff returns the inverse diagonal and the wall constant of plane k
func (lev *Level) kCoeff(k int) (invD, wall float64) {
	g := lev.Grid
	d := -2 * (lev.idx2 + lev.idy2 + lev.idz2)
	if k == g.Kstart {
		d += lev.alphaBot * lev.idz2
		wall += lev.betaBot * lev.idz2
	}
	if k == g.Kend-1 {
		d += lev.alphaTop * lev.idz2
		wall += lev.betaTop * lev.idz2
	}
	if d != 0 {
		invD = 1 / d
	}
	return
}

func (lev *Level) exchange(ctx context.Context, f *field.Field3D, kind halo.Kind) error {
	return lev.ex.Exchange(ctx, f, kind)
}

// parity of local cell (i, j, k) in the global red-black colouring
func (lev *Level) parity(i, j, k int) int {
	g := lev.Grid
	return (g.IOffset() + i - g.Istart + g.JOffset() + j - g.Jstart + k - g.Kstart) % 2
}

// wallRHS packs the owned right hand side into buf with the wall constants
// moved over, leaving a problem with homogeneous walls
func (lev *Level) wallRHS(buf []float64) {
	g := lev.Grid
	var n int
	for k := g.Kstart; k < g.Kend; k++ {
		_, wall := lev.kCoeff(k)
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			for i := 0; i < g.Imax; i++ {
				buf[n] = lev.B.Data[ijk+i] - wall
				n++
			}
		}
	}
}

// homogeneousZ returns the z couplings of plane k with the wall constants
// dropped, for the coarse solvers that move them to the right hand side
func (lev *Level) homogeneousZ(k int) (lower, diag, upper float64) {
	g := lev.Grid
	lower, upper = lev.idz2, lev.idz2
	diag = -2 * lev.idz2
	if k == g.Kstart {
		lower = 0
		diag += lev.alphaBot * lev.idz2
	}
	if k == g.Kend-1 {
		upper = 0
		diag += lev.alphaTop * lev.idz2
	}
	return
}

// globalMean is the mean of the owned cells of f over every rank
func globalMean(ctx context.Context, c comm.Comm, f *field.Field3D) (mean float64, err error) {
	var sum float64
	if sum, err = comm.AllReduceScalar(ctx, c, comm.Sum, f.InteriorSum()); err != nil {
		return
	}
	mean = sum / float64(f.Grid().NTotal())
	return
}
