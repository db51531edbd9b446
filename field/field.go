package field

import (
	"fmt"

	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/utils"
)

// Side is the physical boundary condition on one vertical wall. For Dirichlet
// the Value is the field value at the wall face, for Neumann it is dp/dz at
// the wall face (positive upward on both walls).
type Side struct {
	Type  utils.BCType
	Value float64
}

// BotTopBC holds the vertical boundary conditions, horizontal edges are
// always cyclic
type BotTopBC struct {
	Bot, Top Side
}

// DefaultBC is zero gradient at both walls
func DefaultBC() BotTopBC {
	return BotTopBC{
		Bot: Side{Type: utils.BCNeumann},
		Top: Side{Type: utils.BCNeumann},
	}
}

func (bc BotTopBC) Validate() (err error) {
	for _, s := range []struct {
		name string
		side Side
	}{{"bottom", bc.Bot}, {"top", bc.Top}} {
		if s.side.Type != utils.BCDirichlet && s.side.Type != utils.BCNeumann {
			err = fmt.Errorf("%w: %s boundary must be Dirichlet or Neumann, have %s",
				grid.ErrConfig, s.name, s.side.Type)
			return
		}
	}
	return
}

// Homogeneous returns the same boundary types with zero values, which is
// what an error or correction field obeys
func (bc BotTopBC) Homogeneous() BotTopBC {
	return BotTopBC{
		Bot: Side{Type: bc.Bot.Type},
		Top: Side{Type: bc.Top.Type},
	}
}

// Singular is true when no wall fixes the level of the solution
func (bc BotTopBC) Singular() bool {
	return bc.Bot.Type == utils.BCNeumann && bc.Top.Type == utils.BCNeumann
}

/*
Ghost returns the coefficients of the first ghost layer across this wall as
a function of the adjacent interior value:

	ghost = alpha*interior + beta

	Dirichlet v:  ghost = 2v - interior          (wall value is the average)
	Neumann g:    ghost = interior -/+ g*dz      (bottom / top)
*/
func (s Side) Ghost(top bool, dz float64) (alpha, beta float64) {
	switch s.Type {
	case utils.BCDirichlet:
		alpha, beta = -1, 2*s.Value
	default:
		alpha, beta = 1, -s.Value*dz
		if top {
			beta = s.Value * dz
		}
	}
	return
}

// Field3D is a named scalar buffer over a Grid, including the halo. The Grid
// is borrowed and must outlive the field.
type Field3D struct {
	Data []float64
	Name string
	BC   BotTopBC
	grid *grid.Grid
}

func New(g *grid.Grid, name string) *Field3D {
	return &Field3D{
		Data: make([]float64, g.Ncells),
		Name: name,
		BC:   DefaultBC(),
		grid: g,
	}
}

func (f *Field3D) Grid() *grid.Grid { return f.grid }

func (f *Field3D) Index(i, j, k int) int { return f.grid.Index(i, j, k) }

func (f *Field3D) At(i, j, k int) float64 { return f.Data[f.grid.Index(i, j, k)] }

func (f *Field3D) Set(i, j, k int, val float64) { f.Data[f.grid.Index(i, j, k)] = val }

func (f *Field3D) Fill(val float64) {
	for n := range f.Data {
		f.Data[n] = val
	}
}

// FillInterior sets every owned cell from a function of the local index
func (f *Field3D) FillInterior(fn func(i, j, k int) float64) {
	g := f.grid
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			for i := g.Istart; i < g.Iend; i++ {
				f.Data[g.Index(i, j, k)] = fn(i, j, k)
			}
		}
	}
}

// CopyFrom copies the full buffer, including the halo, from a field on a grid
// of identical shape
func (f *Field3D) CopyFrom(src *Field3D) (err error) {
	if len(src.Data) != len(f.Data) || !f.grid.SameGlobal(src.grid) {
		err = fmt.Errorf("%w: cannot copy %s (%d cells) into %s (%d cells)",
			grid.ErrConfig, src.Name, len(src.Data), f.Name, len(f.Data))
		return
	}
	copy(f.Data, src.Data)
	return
}

// PackInterior copies the owned cells into buf, i fastest, and returns the
// number of values written. A nil buf is allocated.
func (f *Field3D) PackInterior(buf []float64) []float64 {
	g := f.grid
	if buf == nil {
		buf = make([]float64, g.NInterior())
	}
	var n int
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			n += copy(buf[n:n+g.Imax], f.Data[ijk:ijk+g.Imax])
		}
	}
	return buf
}

// UnpackInterior is the inverse of PackInterior
func (f *Field3D) UnpackInterior(buf []float64) {
	g := f.grid
	var n int
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			n += copy(f.Data[ijk:ijk+g.Imax], buf[n:n+g.Imax])
		}
	}
}

// InteriorSum is the local (this rank only) sum over owned cells
func (f *Field3D) InteriorSum() (sum float64) {
	g := f.grid
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			for _, val := range f.Data[ijk : ijk+g.Imax] {
				sum += val
			}
		}
	}
	return
}

func (f *Field3D) InteriorSumSquares() (sum float64) {
	g := f.grid
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			for _, val := range f.Data[ijk : ijk+g.Imax] {
				sum += val * val
			}
		}
	}
	return
}

// InteriorMaxAbs is the local max norm over owned cells
func (f *Field3D) InteriorMaxAbs() (mx float64) {
	g := f.grid
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			for _, val := range f.Data[ijk : ijk+g.Imax] {
				if val < 0 {
					val = -val
				}
				if val > mx {
					mx = val
				}
			}
		}
	}
	return
}

// AddInterior adds a constant to every owned cell
func (f *Field3D) AddInterior(val float64) {
	g := f.grid
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			for n := ijk; n < ijk+g.Imax; n++ {
				f.Data[n] += val
			}
		}
	}
}

func (f *Field3D) ScaleInterior(val float64) {
	g := f.grid
	for k := g.Kstart; k < g.Kend; k++ {
		for j := g.Jstart; j < g.Jend; j++ {
			ijk := g.Index(g.Istart, j, k)
			for n := ijk; n < ijk+g.Imax; n++ {
				f.Data[n] *= val
			}
		}
	}
}

func (f *Field3D) String() string {
	return fmt.Sprintf("%s [%s] bot %s %g, top %s %g", f.Name, f.grid,
		f.BC.Bot.Type, f.BC.Bot.Value, f.BC.Top.Type, f.BC.Top.Value)
}
