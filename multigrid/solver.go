package multigrid

import (
	"context"
	"fmt"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/halo"
)

// Result reports one call to Solve. A solve that runs out of cycles is not an
// error, X still holds the best solution found.
type Result struct {
	Status          Status
	Cycles          int
	InitialResidual float64
	Residual        float64
	History         []float64 // Residual after every cycle
}

func (r Result) Converged() bool { return r.Status == Converged }

/*
Solver runs V-cycles of geometric multigrid on a hierarchy built once from the
finest grid. Each level halves every axis of its parent until a local extent
is odd, the coarsest level is handed to a coarse solver.

	V-cycle on level l:
		smooth -> residual -> restrict -> (V-cycle on l+1 | coarse solve)
		-> prolong and correct -> smooth
*/
type Solver struct {
	// OnStage, when set, is called at the start of every stage of every cycle
	OnStage func(level int, st Status)

	cfg    Config
	c      comm.Comm
	levels []*Level
	coarse coarseSolver
}

// NewSolver builds the hierarchy for g. The wall conditions bc apply to the
// solution on the finest grid.
func NewSolver(g *grid.Grid, c comm.Comm, cfg Config, bc field.BotTopBC) (s *Solver, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	if err = bc.Validate(); err != nil {
		return
	}
	s = &Solver{cfg: cfg, c: c}
	var lev *Level
	if lev, err = newLevel(g, c, bc, cfg.ParallelDegree); err != nil {
		return nil, err
	}
	s.levels = append(s.levels, lev)
	for g.CanCoarsen() && (cfg.MaxLevels == 0 || len(s.levels) < cfg.MaxLevels) {
		if g, err = g.Coarsen(); err != nil {
			return nil, err
		}
		if lev, err = newLevel(g, c, bc.Homogeneous(), cfg.ParallelDegree); err != nil {
			return nil, err
		}
		s.levels = append(s.levels, lev)
	}
	if s.coarse, err = newCoarseSolver(s.levels[len(s.levels)-1], c, cfg); err != nil {
		return nil, err
	}
	return
}

func (s *Solver) Levels() []*Level { return s.levels }

func (s *Solver) Config() Config { return s.cfg }

// CoarseKind is the coarse solver chosen for the coarsest level
func (s *Solver) CoarseKind() CoarseSolver { return s.coarse.kind() }

func (s *Solver) BC() field.BotTopBC { return s.levels[0].BC }

func (s *Solver) stage(level int, st Status) {
	if s.OnStage != nil {
		s.OnStage(level, st)
	}
}

// Solve iterates V-cycles on A x = b until the global residual norm is at or
// below the tolerance or the cycle limit is hit. x is the initial guess and is
// overwritten with the solution, halo included. Every rank must call Solve;
// all of them take the same number of cycles.
func (s *Solver) Solve(ctx context.Context, x, b *field.Field3D) (res Result, err error) {
	var (
		fine = s.levels[0]
		g    = fine.Grid
	)
	for _, f := range []*field.Field3D{x, b} {
		if len(f.Data) != g.Ncells || !f.Grid().SameGlobal(g) {
			err = fmt.Errorf("%w: field %s is not on the solver grid (%s)", grid.ErrConfig, f.Name, g)
			return
		}
	}
	if err = fine.X.CopyFrom(x); err != nil {
		return
	}
	if err = fine.B.CopyFrom(b); err != nil {
		return
	}
	singular := fine.BC.Singular()
	if singular {
		if err = s.makeCompatible(ctx); err != nil {
			return
		}
	}
	if err = fine.residual(ctx); err != nil {
		return
	}
	if res.InitialResidual, err = fine.residualNorm(ctx, s.c); err != nil {
		return
	}
	res.Residual = res.InitialResidual
	res.Status = IterationLimitReached
	if res.Residual <= s.cfg.Tolerance {
		res.Status = Converged
	}
	for res.Status != Converged && res.Cycles < s.cfg.MaxCycles {
		if err = ctx.Err(); err != nil {
			return
		}
		if err = s.cycle(ctx, 0); err != nil {
			return
		}
		if singular {
			if err = s.removeMean(ctx, fine.X); err != nil {
				return
			}
		}
		if err = fine.residual(ctx); err != nil {
			return
		}
		if res.Residual, err = fine.residualNorm(ctx, s.c); err != nil {
			return
		}
		res.Cycles++
		res.History = append(res.History, res.Residual)
		if res.Residual <= s.cfg.Tolerance {
			res.Status = Converged
		}
	}
	copy(x.Data, fine.X.Data)
	x.BC = fine.BC
	err = fine.exchange(ctx, x, halo.All)
	return
}

func (s *Solver) cycle(ctx context.Context, l int) (err error) {
	lev := s.levels[l]
	if l == len(s.levels)-1 {
		s.stage(l, CoarseSolve)
		return s.coarse.solve(ctx, lev)
	}
	next := s.levels[l+1]
	s.stage(l, Smoothing)
	if err = lev.smooth(ctx, s.cfg.PreSmooth); err != nil {
		return
	}
	s.stage(l, Restricting)
	if err = lev.residual(ctx); err != nil {
		return
	}
	if err = restrict(ctx, lev, next, s.cfg.Restriction); err != nil {
		return
	}
	if next.BC.Singular() {
		if err = s.removeMean(ctx, next.B); err != nil {
			return
		}
	}
	next.X.Fill(0)
	if err = s.cycle(ctx, l+1); err != nil {
		return
	}
	s.stage(l, Prolonging)
	if err = prolong(ctx, lev, next); err != nil {
		return
	}
	s.stage(l, Smoothing)
	return lev.smooth(ctx, s.cfg.PostSmooth)
}

// makeCompatible shifts the finest right hand side so that, together with the
// fluxes through the Neumann walls, it sums to zero
func (s *Solver) makeCompatible(ctx context.Context) (err error) {
	var (
		fine = s.levels[0]
		g    = fine.Grid
		sum  float64
	)
	for k := g.Kstart; k < g.Kend; k++ {
		_, wall := fine.kCoeff(k)
		for j := g.Jstart; j < g.Jend; j++ {
			for i := g.Istart; i < g.Iend; i++ {
				sum += fine.B.Data[g.Index(i, j, k)] - wall
			}
		}
	}
	if sum, err = comm.AllReduceScalar(ctx, s.c, comm.Sum, sum); err != nil {
		return
	}
	fine.B.AddInterior(-sum / float64(g.NTotal()))
	return
}

func (s *Solver) removeMean(ctx context.Context, f *field.Field3D) (err error) {
	var mean float64
	if mean, err = globalMean(ctx, s.c, f); err != nil {
		return
	}
	f.AddInterior(-mean)
	return
}
