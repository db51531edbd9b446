package multigrid

import (
	"fmt"
	"strings"

	"github.com/notargets/lesproj/grid"
)

// Restriction selects the fine to coarse weighting of the residual
type Restriction uint8

const (
	FullWeighting Restriction = iota
	HalfWeighting
	Injection
)

func (r Restriction) String() string {
	switch r {
	case FullWeighting:
		return "full-weighting"
	case HalfWeighting:
		return "half-weighting"
	case Injection:
		return "injection"
	}
	return "unknown"
}

func ParseRestriction(name string) (r Restriction, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "full", "full-weighting", "full_weighting", "fullweighting":
		r = FullWeighting
	case "half", "half-weighting", "half_weighting", "halfweighting":
		r = HalfWeighting
	case "injection", "inject":
		r = Injection
	default:
		err = fmt.Errorf("%w: unknown restriction %q", grid.ErrConfig, name)
	}
	return
}

// CoarseSolver selects how the coarsest level is solved
type CoarseSolver uint8

const (
	// CoarseAuto picks CoarseFFT when the coarsest grid admits every pencil
	// transpose, else CoarseDirect when it is small enough, else CoarseSmooth
	CoarseAuto CoarseSolver = iota
	// CoarseSmooth runs CoarseSweeps red-black sweeps
	CoarseSmooth
	// CoarseDirect factorizes the gathered coarse operator once on every rank
	CoarseDirect
	// CoarseFFT diagonalizes x and y with real FFTs and solves z tridiagonals
	CoarseFFT
)

func (cs CoarseSolver) String() string {
	switch cs {
	case CoarseAuto:
		return "auto"
	case CoarseSmooth:
		return "smooth"
	case CoarseDirect:
		return "direct"
	case CoarseFFT:
		return "fft"
	}
	return "unknown"
}

func ParseCoarseSolver(name string) (cs CoarseSolver, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		cs = CoarseAuto
	case "smooth", "sweeps", "gs":
		cs = CoarseSmooth
	case "direct", "lu":
		cs = CoarseDirect
	case "fft", "spectral":
		cs = CoarseFFT
	default:
		err = fmt.Errorf("%w: unknown coarse solver %q", grid.ErrConfig, name)
	}
	return
}

type Config struct {
	Restriction       Restriction
	PreSmooth         int     // Red-black sweeps before restriction
	PostSmooth        int     // Red-black sweeps after prolongation
	Tolerance         float64 // On the global L2 norm of the residual
	MaxCycles         int
	MaxLevels         int // Zero coarsens as far as the decomposition allows
	CoarseSolver      CoarseSolver
	CoarseSweeps      int
	MaxDirectUnknowns int
	ParallelDegree    int // Goroutines per rank for the stencil kernels
}

func DefaultConfig() Config {
	return Config{
		Restriction:       FullWeighting,
		PreSmooth:         2,
		PostSmooth:        2,
		Tolerance:         1e-8,
		MaxCycles:         50,
		CoarseSolver:      CoarseAuto,
		CoarseSweeps:      50,
		MaxDirectUnknowns: 1000,
		ParallelDegree:    1,
	}
}

func (cfg Config) Validate() (err error) {
	switch {
	case cfg.Restriction > Injection:
		err = fmt.Errorf("%w: unknown restriction %d", grid.ErrConfig, cfg.Restriction)
	case cfg.CoarseSolver > CoarseFFT:
		err = fmt.Errorf("%w: unknown coarse solver %d", grid.ErrConfig, cfg.CoarseSolver)
	case cfg.PreSmooth < 0 || cfg.PostSmooth < 0 || cfg.PreSmooth+cfg.PostSmooth == 0:
		err = fmt.Errorf("%w: need at least one smoothing sweep per level, have %d pre and %d post",
			grid.ErrConfig, cfg.PreSmooth, cfg.PostSmooth)
	case cfg.Tolerance < 0:
		err = fmt.Errorf("%w: negative tolerance %g", grid.ErrConfig, cfg.Tolerance)
	case cfg.MaxCycles < 1:
		err = fmt.Errorf("%w: max cycles must be at least 1, have %d", grid.ErrConfig, cfg.MaxCycles)
	case cfg.MaxLevels < 0:
		err = fmt.Errorf("%w: negative level count %d", grid.ErrConfig, cfg.MaxLevels)
	case cfg.CoarseSweeps < 1:
		err = fmt.Errorf("%w: coarse sweeps must be at least 1, have %d", grid.ErrConfig, cfg.CoarseSweeps)
	case cfg.ParallelDegree < 1:
		err = fmt.Errorf("%w: parallel degree must be at least 1, have %d", grid.ErrConfig, cfg.ParallelDegree)
	}
	return
}

// Status is the state of a solve, the first four name the V-cycle stages
type Status uint8

const (
	Smoothing Status = iota
	Restricting
	CoarseSolve
	Prolonging
	Converged
	IterationLimitReached
)

func (s Status) String() string {
	switch s {
	case Smoothing:
		return "Smoothing"
	case Restricting:
		return "Restricting"
	case CoarseSolve:
		return "CoarseSolve"
	case Prolonging:
		return "Prolonging"
	case Converged:
		return "Converged"
	case IterationLimitReached:
		return "IterationLimitReached"
	}
	return "Unknown"
}
