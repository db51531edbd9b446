package grid

import (
	"errors"
	"fmt"
)

// ErrConfig marks every setup-time inconsistency (extents, halos, process
// grid). It is fatal: nothing downstream can run on a bad decomposition.
var ErrConfig = errors.New("configuration error")

// StencilHalfWidth is the widest reach of any operator in this package set
// (second order, 7 point Laplacian and its transfer operators)
const StencilHalfWidth = 1

// Config holds the global description of the domain and its decomposition
type Config struct {
	Itot, Jtot, Ktot    int     // Global number of cells
	Xsize, Ysize, Zsize float64 // Physical domain size
	Npx, Npy            int     // Process grid dimensions
	Igc, Jgc, Kgc       int     // Ghost cells on each side of every axis
}

/*
Grid describes the block of cells owned by one rank plus its halo.

	Data for a field on this grid is laid out i fastest, then j, then k:
		ijk = i + j*Icells + k*Ijcells
	Owned cells are [Istart,Iend) x [Jstart,Jend) x [Kstart,Kend), everything
	else is halo. The vertical axis is never decomposed.
*/
type Grid struct {
	Itot, Jtot, Ktot       int
	Imax, Jmax, Kmax       int
	Igc, Jgc, Kgc          int
	Icells, Jcells, Kcells int
	Ijcells, Ncells        int
	Istart, Iend           int
	Jstart, Jend           int
	Kstart, Kend           int
	Xsize, Ysize, Zsize    float64
	Dx, Dy, Dz             float64
	Level                  int // 0 for the finest grid, incremented by Coarsen
	Topo                   Topology
}

func New(cfg Config, topo Topology) (g *Grid, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	if topo.Npx != cfg.Npx || topo.Npy != cfg.Npy {
		err = fmt.Errorf("%w: topology is %dx%d, configuration asks for %dx%d",
			ErrConfig, topo.Npx, topo.Npy, cfg.Npx, cfg.Npy)
		return
	}
	g = &Grid{
		Itot:  cfg.Itot,
		Jtot:  cfg.Jtot,
		Ktot:  cfg.Ktot,
		Imax:  cfg.Itot / cfg.Npx,
		Jmax:  cfg.Jtot / cfg.Npy,
		Kmax:  cfg.Ktot,
		Igc:   cfg.Igc,
		Jgc:   cfg.Jgc,
		Kgc:   cfg.Kgc,
		Xsize: cfg.Xsize,
		Ysize: cfg.Ysize,
		Zsize: cfg.Zsize,
		Topo:  topo,
	}
	g.Icells = g.Imax + 2*g.Igc
	g.Jcells = g.Jmax + 2*g.Jgc
	g.Kcells = g.Kmax + 2*g.Kgc
	g.Ijcells = g.Icells * g.Jcells
	g.Ncells = g.Ijcells * g.Kcells
	g.Istart, g.Iend = g.Igc, g.Igc+g.Imax
	g.Jstart, g.Jend = g.Jgc, g.Jgc+g.Jmax
	g.Kstart, g.Kend = g.Kgc, g.Kgc+g.Kmax
	g.Dx = g.Xsize / float64(g.Itot)
	g.Dy = g.Ysize / float64(g.Jtot)
	g.Dz = g.Zsize / float64(g.Ktot)
	if g.Imax < g.Igc || g.Jmax < g.Jgc || g.Kmax < g.Kgc {
		err = fmt.Errorf("%w: local block %dx%dx%d is thinner than its halo %dx%dx%d",
			ErrConfig, g.Imax, g.Jmax, g.Kmax, g.Igc, g.Jgc, g.Kgc)
		g = nil
	}
	return
}

// Validate checks the global configuration independent of any rank
func (cfg Config) Validate() (err error) {
	switch {
	case cfg.Itot < 1 || cfg.Jtot < 1 || cfg.Ktot < 1:
		err = fmt.Errorf("%w: grid extents must be positive, have %dx%dx%d",
			ErrConfig, cfg.Itot, cfg.Jtot, cfg.Ktot)
	case cfg.Npx < 1 || cfg.Npy < 1:
		err = fmt.Errorf("%w: process grid must be at least 1x1, have %dx%d",
			ErrConfig, cfg.Npx, cfg.Npy)
	case cfg.Itot%cfg.Npx != 0:
		err = fmt.Errorf("%w: itot = %d is not divisible by npx = %d", ErrConfig, cfg.Itot, cfg.Npx)
	case cfg.Jtot%cfg.Npy != 0:
		err = fmt.Errorf("%w: jtot = %d is not divisible by npy = %d", ErrConfig, cfg.Jtot, cfg.Npy)
	case cfg.Igc < StencilHalfWidth || cfg.Jgc < StencilHalfWidth || cfg.Kgc < StencilHalfWidth:
		err = fmt.Errorf("%w: halo %dx%dx%d is smaller than the stencil half width %d",
			ErrConfig, cfg.Igc, cfg.Jgc, cfg.Kgc, StencilHalfWidth)
	case cfg.Xsize <= 0 || cfg.Ysize <= 0 || cfg.Zsize <= 0:
		err = fmt.Errorf("%w: domain size must be positive, have %g x %g x %g",
			ErrConfig, cfg.Xsize, cfg.Ysize, cfg.Zsize)
	}
	return
}

// Config reconstructs the global configuration this grid was built from
func (g *Grid) Config() Config {
	return Config{
		Itot: g.Itot, Jtot: g.Jtot, Ktot: g.Ktot,
		Xsize: g.Xsize, Ysize: g.Ysize, Zsize: g.Zsize,
		Npx: g.Topo.Npx, Npy: g.Topo.Npy,
		Igc: g.Igc, Jgc: g.Jgc, Kgc: g.Kgc,
	}
}

func (g *Grid) Index(i, j, k int) int {
	return i + j*g.Icells + k*g.Ijcells
}

// Strides returns the flat index increments along i, j and k
func (g *Grid) Strides() (ii, jj, kk int) {
	return 1, g.Icells, g.Ijcells
}

// IOffset and JOffset are the global indices of the first owned cell
func (g *Grid) IOffset() int { return g.Topo.CoordX * g.Imax }
func (g *Grid) JOffset() int { return g.Topo.CoordY * g.Jmax }

// NInterior is the number of owned cells on this rank
func (g *Grid) NInterior() int { return g.Imax * g.Jmax * g.Kmax }

// NTotal is the number of owned cells summed over all ranks
func (g *Grid) NTotal() int { return g.Itot * g.Jtot * g.Ktot }

// XCenter returns the x coordinate of the centre of local cell i (halo included)
func (g *Grid) XCenter(i int) float64 {
	return (float64(g.IOffset()+i-g.Istart) + 0.5) * g.Dx
}

func (g *Grid) YCenter(j int) float64 {
	return (float64(g.JOffset()+j-g.Jstart) + 0.5) * g.Dy
}

func (g *Grid) ZCenter(k int) float64 {
	return (float64(k-g.Kstart) + 0.5) * g.Dz
}

// SameGlobal reports whether two grids describe the same global problem on
// the same process grid, regardless of halo width
func (g *Grid) SameGlobal(o *Grid) bool {
	return g.Itot == o.Itot && g.Jtot == o.Jtot && g.Ktot == o.Ktot &&
		g.Topo.Npx == o.Topo.Npx && g.Topo.Npy == o.Topo.Npy
}

// CanCoarsen is true when every local extent can be halved and still leave at
// least one owned cell per axis
func (g *Grid) CanCoarsen() bool {
	return g.Imax%2 == 0 && g.Jmax%2 == 0 && g.Kmax%2 == 0
}

// Coarsen returns a new grid with half the cells along every axis, a halo of
// one cell and the same topology. The receiver is not modified.
func (g *Grid) Coarsen() (c *Grid, err error) {
	if !g.CanCoarsen() {
		err = fmt.Errorf("%w: level %d local block %dx%dx%d cannot be halved",
			ErrConfig, g.Level, g.Imax, g.Jmax, g.Kmax)
		return
	}
	cfg := g.Config()
	cfg.Itot, cfg.Jtot, cfg.Ktot = g.Itot/2, g.Jtot/2, g.Ktot/2
	cfg.Igc, cfg.Jgc, cfg.Kgc = StencilHalfWidth, StencilHalfWidth, StencilHalfWidth
	if c, err = New(cfg, g.Topo); err != nil {
		return
	}
	c.Level = g.Level + 1
	return
}

func (g *Grid) String() string {
	return fmt.Sprintf("level %d: global %dx%dx%d, local %dx%dx%d, halo %dx%dx%d, rank %d of %d",
		g.Level, g.Itot, g.Jtot, g.Ktot, g.Imax, g.Jmax, g.Kmax, g.Igc, g.Jgc, g.Kgc,
		g.Topo.Rank, g.Topo.Nprocs)
}
