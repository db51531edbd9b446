package pressure

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/halo"
	"github.com/notargets/lesproj/multigrid"
)

const tracerName = "github.com/notargets/lesproj/pressure"

type Config struct {
	Multigrid multigrid.Config
	BC        field.BotTopBC // Wall conditions of the pressure
	RHSScale  float64        // Applied to the divergence to form the right hand side
	WarmStart bool           // Start each solve from the previous pressure
}

func DefaultConfig() Config {
	return Config{
		Multigrid: multigrid.DefaultConfig(),
		BC:        field.DefaultBC(),
		RHSScale:  1,
		WarmStart: true,
	}
}

// SolveRecord summarizes one pressure solve of a session
type SolveRecord struct {
	Run              string
	Seq              int
	Start            time.Time
	Duration         time.Duration
	Ranks            int
	Itot, Jtot, Ktot int
	Status           multigrid.Status
	Cycles           int
	InitialResidual  float64
	Residual         float64
	History          []float64
}

// Recorder receives the record of every solve, on the root rank only
type Recorder interface {
	RecordSolve(ctx context.Context, rec SolveRecord) error
}

type Option func(s *Solver)

func WithRecorder(r Recorder) Option {
	return func(s *Solver) { s.recorder = r }
}

func WithVerbose(verbose bool) Option {
	return func(s *Solver) { s.verbose = verbose }
}

// WithRun names the session in the solve records
func WithRun(name string) Option {
	return func(s *Solver) { s.run = name }
}

// Result is the outcome of one pressure solve. When Converged is false the
// pressure is the best available, not a solution to tolerance.
type Result struct {
	// Pressure is the session's own field, the same one Pressure returns. The
	// next Solve starts from it and overwrites it, keep a copy to retain it.
	Pressure        *field.Field3D
	Converged       bool
	Status          multigrid.Status
	Cycles          int
	InitialResidual float64
	Residual        float64
	History         []float64
}

/*
Solver owns the pressure of one rank for a whole session. Collaborators get
fields from NewField, keep their halos current with Exchange and hand a
divergence to Solve, nothing else of the hierarchy is visible to them.
*/
type Solver struct {
	g        *grid.Grid
	c        comm.Comm
	cfg      Config
	ex       *halo.Exchanger
	mg       *multigrid.Solver
	pressure *field.Field3D
	rhs      *field.Field3D
	history  []SolveRecord
	recorder Recorder
	verbose  bool
	run      string
	tracer   trace.Tracer
}

func New(g *grid.Grid, c comm.Comm, cfg Config, opts ...Option) (s *Solver, err error) {
	if cfg.RHSScale == 0 {
		err = fmt.Errorf("%w: rhs scale must be non zero", grid.ErrConfig)
		return
	}
	s = &Solver{
		g:      g,
		c:      c,
		cfg:    cfg,
		run:    "default",
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ex, err = halo.NewExchanger(g, c); err != nil {
		return nil, err
	}
	if s.mg, err = multigrid.NewSolver(g, c, cfg.Multigrid, cfg.BC); err != nil {
		return nil, err
	}
	s.pressure = s.NewField("p")
	s.pressure.BC = cfg.BC
	s.rhs = s.NewField("rhs")
	if s.verbose {
		levels := s.mg.Levels()
		comm.Printf(c, "pressure: %d levels, coarsest %dx%dx%d solved by %s\n", len(levels),
			levels[len(levels)-1].Grid.Itot, levels[len(levels)-1].Grid.Jtot, levels[len(levels)-1].Grid.Ktot,
			s.mg.CoarseKind())
	}
	return
}

func (s *Solver) Grid() *grid.Grid { return s.g }

func (s *Solver) Multigrid() *multigrid.Solver { return s.mg }

// NewField returns a zeroed field on the session grid with zero gradient walls
func (s *Solver) NewField(name string) *field.Field3D {
	return field.New(s.g, name)
}

// Exchange fills the halo of a collaborator's field
func (s *Solver) Exchange(ctx context.Context, f *field.Field3D, kind halo.Kind) error {
	return s.ex.Exchange(ctx, f, kind)
}

// Pressure is the most recent solution, halo included
func (s *Solver) Pressure() *field.Field3D { return s.pressure }

// History returns the records of every solve of this session
func (s *Solver) History() []SolveRecord {
	out := make([]SolveRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Solve computes the pressure whose Laplacian is RHSScale times div. Running
// out of cycles is reported on the result and as a warning, not as an error.
func (s *Solver) Solve(ctx context.Context, div *field.Field3D) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "pressure.Solve", trace.WithAttributes(
		attribute.Int("rank", s.c.Rank()),
		attribute.Int("seq", len(s.history)+1),
	))
	defer span.End()

	start := time.Now()
	if err = s.rhs.CopyFrom(div); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	s.rhs.ScaleInterior(s.cfg.RHSScale)
	if !s.cfg.WarmStart {
		s.pressure.Fill(0)
	}
	var mres multigrid.Result
	if mres, err = s.mg.Solve(ctx, s.pressure, s.rhs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	res = &Result{
		Pressure:        s.pressure,
		Converged:       mres.Converged(),
		Status:          mres.Status,
		Cycles:          mres.Cycles,
		InitialResidual: mres.InitialResidual,
		Residual:        mres.Residual,
		History:         mres.History,
	}
	rec := SolveRecord{
		Run:             s.run,
		Seq:             len(s.history) + 1,
		Start:           start,
		Duration:        time.Since(start),
		Ranks:           s.c.Size(),
		Itot:            s.g.Itot,
		Jtot:            s.g.Jtot,
		Ktot:            s.g.Ktot,
		Status:          mres.Status,
		Cycles:          mres.Cycles,
		InitialResidual: mres.InitialResidual,
		Residual:        mres.Residual,
		History:         append([]float64(nil), mres.History...),
	}
	s.history = append(s.history, rec)
	span.SetAttributes(
		attribute.String("status", mres.Status.String()),
		attribute.Int("cycles", mres.Cycles),
		attribute.Float64("residual", mres.Residual),
	)
	if !res.Converged {
		span.SetStatus(codes.Error, "iteration limit reached")
		comm.Printf(s.c, "warning: pressure solve %d did not converge in %d cycles, residual %.3e\n",
			rec.Seq, mres.Cycles, mres.Residual)
	} else if s.verbose {
		comm.Printf(s.c, "pressure solve %d: %d cycles, residual %.3e -> %.3e in %v\n",
			rec.Seq, mres.Cycles, mres.InitialResidual, mres.Residual, rec.Duration)
	}
	if s.recorder != nil && s.c.Rank() == comm.Root {
		if err = s.recorder.RecordSolve(ctx, rec); err != nil {
			err = fmt.Errorf("recording pressure solve %d: %w", rec.Seq, err)
			span.RecordError(err)
		}
	}
	return
}
