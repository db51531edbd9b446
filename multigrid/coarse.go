package multigrid

import (
	"context"
	"fmt"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/transpose"
)

// coarseSolver solves A X = B on the coarsest level
type coarseSolver interface {
	solve(ctx context.Context, lev *Level) error
	kind() CoarseSolver
}

type sweepSolver struct {
	sweeps int
}

func (s *sweepSolver) solve(ctx context.Context, lev *Level) error {
	return lev.smooth(ctx, s.sweeps)
}

func (s *sweepSolver) kind() CoarseSolver { return CoarseSmooth }

func newCoarseSolver(lev *Level, c comm.Comm, cfg Config) (cs coarseSolver, err error) {
	var (
		g      = lev.Grid
		choice = cfg.CoarseSolver
	)
	if choice == CoarseAuto {
		switch {
		case transpose.CanTranspose(g):
			choice = CoarseFFT
		case g.NTotal() <= cfg.MaxDirectUnknowns:
			choice = CoarseDirect
		default:
			choice = CoarseSmooth
		}
	}
	switch choice {
	case CoarseSmooth:
		cs = &sweepSolver{sweeps: cfg.CoarseSweeps}
	case CoarseDirect:
		if g.NTotal() > cfg.MaxDirectUnknowns {
			err = fmt.Errorf("%w: coarsest grid has %d unknowns, direct solve is limited to %d",
				grid.ErrConfig, g.NTotal(), cfg.MaxDirectUnknowns)
			return
		}
		cs, err = newDirectSolver(lev, c)
	case CoarseFFT:
		cs, err = newFFTSolver(lev, c)
	}
	return
}
