package pressure

import (
	"context"
	"fmt"

	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/halo"
	"github.com/notargets/lesproj/utils"
)

/*
The velocity lives on a staggered C-grid: u[i,j,k] sits on the west face of
cell (i,j,k), v on the south face and w on the bottom face. The walls are
impermeable, w is zero on the bottom face of the first owned plane and on the
top face of the last one (the bottom face of the first ghost plane above).
*/

func (s *Solver) checkVelocity(fs ...*field.Field3D) (err error) {
	for _, f := range fs {
		if len(f.Data) != s.g.Ncells || !f.Grid().SameGlobal(s.g) {
			return fmt.Errorf("%w: velocity %s is not on the pressure grid", grid.ErrConfig, f.Name)
		}
	}
	return
}

// Divergence writes div(u, v, w)/dt into the owned cells of out
func (s *Solver) Divergence(ctx context.Context, u, v, w *field.Field3D, dt float64, out *field.Field3D) (err error) {
	if dt <= 0 {
		return fmt.Errorf("%w: time step must be positive, have %g", grid.ErrConfig, dt)
	}
	if err = s.checkVelocity(u, v, w, out); err != nil {
		return
	}
	if err = s.ex.Exchange(ctx, u, halo.Cyclic); err != nil {
		return
	}
	if err = s.ex.Exchange(ctx, v, halo.Cyclic); err != nil {
		return
	}
	var (
		g      = s.g
		jj, kk = g.Icells, g.Ijcells
		dxi    = 1 / (g.Dx * dt)
		dyi    = 1 / (g.Dy * dt)
		dzi    = 1 / (g.Dz * dt)
	)
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			for i := g.Istart; i < g.Iend; i++ {
				ijk := g.Index(i, j, k)
				var wb, wt float64
				if k > g.Kstart {
					wb = w.Data[ijk]
				}
				if k < g.Kend-1 {
					wt = w.Data[ijk+kk]
				}
				out.Data[ijk] = (u.Data[ijk+1]-u.Data[ijk])*dxi +
					(v.Data[ijk+jj]-v.Data[ijk])*dyi +
					(wt-wb)*dzi
			}
		}
	}
	return
}

// Project subtracts dt*grad(p) from the velocity on every interior face, the
// wall faces keep w = 0
func (s *Solver) Project(ctx context.Context, u, v, w, p *field.Field3D, dt float64) (err error) {
	if err = s.checkProjectable(); err != nil {
		return
	}
	if err = s.checkVelocity(u, v, w, p); err != nil {
		return
	}
	if err = s.ex.Exchange(ctx, p, halo.Cyclic); err != nil {
		return
	}
	var (
		g      = s.g
		jj, kk = g.Icells, g.Ijcells
		dxi    = dt / g.Dx
		dyi    = dt / g.Dy
		dzi    = dt / g.Dz
	)
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			for i := g.Istart; i < g.Iend; i++ {
				ijk := g.Index(i, j, k)
				u.Data[ijk] -= (p.Data[ijk] - p.Data[ijk-1]) * dxi
				v.Data[ijk] -= (p.Data[ijk] - p.Data[ijk-jj]) * dyi
				if k > g.Kstart {
					w.Data[ijk] -= (p.Data[ijk] - p.Data[ijk-kk]) * dzi
				} else {
					w.Data[ijk] = 0
				}
			}
		}
	}
	for j := g.Jstart; j < g.Jend; j++ {
		for i := g.Istart; i < g.Iend; i++ {
			w.Data[g.Index(i, j, g.Kend)] = 0
		}
	}
	return
}

// Step makes the velocity divergence free: the pressure solves
// lap(p) = div(u)/dt and the velocity is corrected by -dt*grad(p)
func (s *Solver) Step(ctx context.Context, u, v, w *field.Field3D, dt float64) (res *Result, err error) {
	if err = s.checkProjectable(); err != nil {
		return
	}
	div := s.NewField("div")
	if err = s.Divergence(ctx, u, v, w, dt, div); err != nil {
		return
	}
	if res, err = s.Solve(ctx, div); err != nil {
		return
	}
	err = s.Project(ctx, u, v, w, res.Pressure, dt)
	return
}

// The discrete divergence of the corrected velocity vanishes only when the
// pressure has zero gradient at the walls and the right hand side is unscaled
func (s *Solver) checkProjectable() error {
	bc := s.cfg.BC
	if bc.Bot.Type != utils.BCNeumann || bc.Top.Type != utils.BCNeumann ||
		bc.Bot.Value != 0 || bc.Top.Value != 0 || s.cfg.RHSScale != 1 {
		return fmt.Errorf("%w: projection needs zero gradient pressure walls and unit rhs scale", grid.ErrConfig)
	}
	return nil
}
