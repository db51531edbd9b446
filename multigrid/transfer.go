package multigrid

import (
	"context"

	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/halo"
)

type tap struct {
	off int
	w   float64
}

/*
Restriction stencils along one axis for coarse cell I, offsets relative to the
first of its two fine children 2I:

	half weighting  c = (f[2I] + f[2I+1]) / 2
	full weighting  c = (f[2I-1] + 3f[2I] + 3f[2I+1] + f[2I+2]) / 8

The 3D weights are tensor products, each stencil sums to one so constants
are reproduced exactly. Injection is not a tensor product and returns nil,
see injectTaps.
*/
func restrictTaps(r Restriction) []tap {
	switch r {
	case Injection:
		return nil
	case HalfWeighting:
		return []tap{{0, 0.5}, {1, 0.5}}
	default:
		return []tap{{-1, 0.125}, {0, 0.375}, {1, 0.375}, {2, 0.125}}
	}
}

/*
injectTaps samples the two diagonal children of a coarse cell,

	c = (f[2I,2J,2K] + f[2I+1,2J+1,2K+1]) / 2

A single child would always lie on the same red-black colour, and after a
sweep the residual vanishes on the colour updated last. The diagonal pair
holds one cell of each colour.
*/
func injectTaps(fg *grid.Grid) [2]tap {
	return [2]tap{{0, 0.5}, {fg.Index(1, 1, 1) - fg.Index(0, 0, 0), 0.5}}
}

// restrict maps the residual of fine onto the right hand side of coarse. The
// residual halo is filled first, across the walls by zero gradient.
func restrict(ctx context.Context, fine, coarse *Level, r Restriction) (err error) {
	if err = fine.exchange(ctx, fine.R, halo.All); err != nil {
		return
	}
	var (
		fg, cg = fine.Grid, coarse.Grid
		taps   = restrictTaps(r)
		diag   = injectTaps(fg)
		rd, bd = fine.R.Data, coarse.B.Data
	)
	coarse.pm.ParallelFor(cg.Kstart, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			fk := fg.Kstart + 2*(k-cg.Kstart)
			for j := cg.Jstart; j < cg.Jend; j++ {
				fj := fg.Jstart + 2*(j-cg.Jstart)
				for i := cg.Istart; i < cg.Iend; i++ {
					fi := fg.Istart + 2*(i-cg.Istart)
					var sum float64
					if taps == nil {
						base := fg.Index(fi, fj, fk)
						bd[cg.Index(i, j, k)] = diag[0].w*rd[base+diag[0].off] + diag[1].w*rd[base+diag[1].off]
						continue
					}
					for _, tk := range taps {
						for _, tj := range taps {
							wjk := tj.w * tk.w
							base := fg.Index(fi, fj+tj.off, fk+tk.off)
							for _, ti := range taps {
								sum += ti.w * wjk * rd[base+ti.off]
							}
						}
					}
					bd[cg.Index(i, j, k)] = sum
				}
			}
		}
	})
	return
}

/*
prolong interpolates the coarse correction trilinearly and adds it to the
fine solution. Along each axis fine child a of coarse cell I takes

	3/4 c[I] + 1/4 c[I-1]   (a = 0)
	3/4 c[I] + 1/4 c[I+1]   (a = 1)

The coarse halo is filled first, across the walls with the homogeneous
conditions of the correction.
*/
func prolong(ctx context.Context, fine, coarse *Level) (err error) {
	if err = coarse.exchange(ctx, coarse.X, halo.All); err != nil {
		return
	}
	var (
		fg, cg = fine.Grid, coarse.Grid
		xd, cd = fine.X.Data, coarse.X.Data
		side   = [2]int{-1, 1}
	)
	fine.pm.ParallelFor(fg.Kstart, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var (
				ck = cg.Kstart + (k-fg.Kstart)/2
				dk = side[(k-fg.Kstart)%2] * cg.Ijcells
			)
			for j := fg.Jstart; j < fg.Jend; j++ {
				var (
					cj = cg.Jstart + (j-fg.Jstart)/2
					dj = side[(j-fg.Jstart)%2] * cg.Icells
				)
				for i := fg.Istart; i < fg.Iend; i++ {
					var (
						ci  = cg.Istart + (i-fg.Istart)/2
						di  = side[(i-fg.Istart)%2]
						c0  = cg.Index(ci, cj, ck)
						val float64
					)
					val = 27*cd[c0] +
						9*(cd[c0+di]+cd[c0+dj]+cd[c0+dk]) +
						3*(cd[c0+di+dj]+cd[c0+di+dk]+cd[c0+dj+dk]) +
						cd[c0+di+dj+dk]
					xd[fg.Index(i, j, k)] += val / 64
				}
			}
		}
	})
	return
}
