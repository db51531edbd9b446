package halo

import (
	"context"
	"fmt"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
	"github.com/notargets/lesproj/utils"
)

// Kind selects which ghost cells an exchange fills
type Kind uint8

const (
	// Cyclic fills the horizontal ghost cells from the neighbours, or by
	// periodic wrap when an axis is not decomposed
	Cyclic Kind = iota
	// BotTop fills the vertical ghost cells from the field's wall conditions
	BotTop
	// All is Cyclic followed by BotTop
	All
)

func (k Kind) String() string {
	switch k {
	case Cyclic:
		return "Cyclic"
	case BotTop:
		return "BotTop"
	case All:
		return "All"
	}
	return "Unknown"
}

const (
	tagToWest = iota + 1
	tagToEast
	tagToSouth
	tagToNorth
)

type box struct {
	i0, i1, j0, j1, k0, k1 int
}

func (b box) size() int { return (b.i1 - b.i0) * (b.j1 - b.j0) * (b.k1 - b.k0) }

/*
Exchanger fills the halo of fields on one grid. The staging buffers are sized
for that grid once and reused by every exchange.

	x slabs span the owned j range and every k, the y slabs that follow span
	every i, so the horizontal corners are filled by the second pass.
*/
type Exchanger struct {
	g    *grid.Grid
	c    comm.Comm
	xbuf [4][]float64 // send west, send east, recv from east, recv from west
	ybuf [4][]float64 // send south, send north, recv from north, recv from south

	westIn, eastIn, westGhost, eastGhost    box
	southIn, northIn, southGhost, northGhost box
}

func NewExchanger(g *grid.Grid, c comm.Comm) (e *Exchanger, err error) {
	if c.Size() != g.Topo.Nprocs || c.Rank() != g.Topo.Rank {
		err = fmt.Errorf("%w: communicator is rank %d of %d, grid topology is rank %d of %d",
			grid.ErrConfig, c.Rank(), c.Size(), g.Topo.Rank, g.Topo.Nprocs)
		return
	}
	if g.Igc < 1 || g.Jgc < 1 {
		err = fmt.Errorf("%w: cyclic exchange needs a halo of at least one cell, have igc = %d, jgc = %d",
			grid.ErrConfig, g.Igc, g.Jgc)
		return
	}
	if g.Kgc < 1 {
		err = fmt.Errorf("%w: wall conditions need a halo of at least one cell, have kgc = %d",
			grid.ErrConfig, g.Kgc)
		return
	}
	e = &Exchanger{g: g, c: c}
	e.westIn = box{g.Istart, g.Istart + g.Igc, g.Jstart, g.Jend, 0, g.Kcells}
	e.eastIn = box{g.Iend - g.Igc, g.Iend, g.Jstart, g.Jend, 0, g.Kcells}
	e.westGhost = box{0, g.Istart, g.Jstart, g.Jend, 0, g.Kcells}
	e.eastGhost = box{g.Iend, g.Icells, g.Jstart, g.Jend, 0, g.Kcells}
	e.southIn = box{0, g.Icells, g.Jstart, g.Jstart + g.Jgc, 0, g.Kcells}
	e.northIn = box{0, g.Icells, g.Jend - g.Jgc, g.Jend, 0, g.Kcells}
	e.southGhost = box{0, g.Icells, 0, g.Jstart, 0, g.Kcells}
	e.northGhost = box{0, g.Icells, g.Jend, g.Jcells, 0, g.Kcells}
	for n := range e.xbuf {
		e.xbuf[n] = make([]float64, e.westIn.size())
		e.ybuf[n] = make([]float64, e.southIn.size())
	}
	return
}

func (e *Exchanger) Grid() *grid.Grid { return e.g }

// Exchange fills the ghost cells of f selected by kind. Every rank holding a
// piece of the field must call it, it returns once this rank's halo is current.
func (e *Exchanger) Exchange(ctx context.Context, f *field.Field3D, kind Kind) (err error) {
	if fg := f.Grid(); fg != e.g && (len(f.Data) != e.g.Ncells || !fg.SameGlobal(e.g)) {
		return fmt.Errorf("%w: field %s is not on the exchanger's grid (%s)", grid.ErrConfig, f.Name, e.g)
	}
	switch kind {
	case Cyclic:
		err = e.cyclic(ctx, f.Data)
	case BotTop:
		err = e.botTop(f)
	case All:
		if err = e.cyclic(ctx, f.Data); err != nil {
			return
		}
		err = e.botTop(f)
	default:
		err = fmt.Errorf("%w: unknown exchange kind %d", grid.ErrConfig, kind)
	}
	return
}

func (e *Exchanger) cyclic(ctx context.Context, data []float64) (err error) {
	topo := e.g.Topo
	if topo.Npx == 1 {
		e.copyBox(data, e.eastIn, e.westGhost)
		e.copyBox(data, e.westIn, e.eastGhost)
	} else {
		e.pack(data, e.xbuf[0], e.westIn)
		e.pack(data, e.xbuf[1], e.eastIn)
		if err = e.c.Send(ctx, e.xbuf[0], topo.West, tagToWest); err != nil {
			return
		}
		if err = e.c.Send(ctx, e.xbuf[1], topo.East, tagToEast); err != nil {
			return
		}
		if err = e.c.Recv(ctx, e.xbuf[2], topo.East, tagToWest); err != nil {
			return
		}
		if err = e.c.Recv(ctx, e.xbuf[3], topo.West, tagToEast); err != nil {
			return
		}
		e.unpack(data, e.xbuf[2], e.eastGhost)
		e.unpack(data, e.xbuf[3], e.westGhost)
	}
	if topo.Npy == 1 {
		e.copyBox(data, e.northIn, e.southGhost)
		e.copyBox(data, e.southIn, e.northGhost)
		return
	}
	e.pack(data, e.ybuf[0], e.southIn)
	e.pack(data, e.ybuf[1], e.northIn)
	if err = e.c.Send(ctx, e.ybuf[0], topo.South, tagToSouth); err != nil {
		return
	}
	if err = e.c.Send(ctx, e.ybuf[1], topo.North, tagToNorth); err != nil {
		return
	}
	if err = e.c.Recv(ctx, e.ybuf[2], topo.North, tagToSouth); err != nil {
		return
	}
	if err = e.c.Recv(ctx, e.ybuf[3], topo.South, tagToNorth); err != nil {
		return
	}
	e.unpack(data, e.ybuf[2], e.northGhost)
	e.unpack(data, e.ybuf[3], e.southGhost)
	return
}

/*
botTop mirrors the owned cells across each wall. For ghost layer n (n = 1 is
next to the wall) and its mirror image m inside the domain:

	Dirichlet v:  ghost = 2v - f[m]
	Neumann g:    ghost = f[m] -/+ (2n-1)*g*dz   (bottom / top)

so the wall value, or the wall gradient, is reproduced to second order by
every ghost/mirror pair.
*/
func (e *Exchanger) botTop(f *field.Field3D) (err error) {
	if err = f.BC.Validate(); err != nil {
		return
	}
	var (
		g    = e.g
		data = f.Data
		bot  = f.BC.Bot
		top  = f.BC.Top
	)
	for n := 1; n <= g.Kgc; n++ {
		var (
			kbg, kbm = g.Kstart - n, g.Kstart + n - 1
			ktg, ktm = g.Kend - 1 + n, g.Kend - n
			span     = float64(2*n-1) * g.Dz
		)
		for ij := 0; ij < g.Ijcells; ij++ {
			mb := data[ij+kbm*g.Ijcells]
			mt := data[ij+ktm*g.Ijcells]
			switch bot.Type {
			case utils.BCDirichlet:
				data[ij+kbg*g.Ijcells] = 2*bot.Value - mb
			case utils.BCNeumann:
				data[ij+kbg*g.Ijcells] = mb - span*bot.Value
			}
			switch top.Type {
			case utils.BCDirichlet:
				data[ij+ktg*g.Ijcells] = 2*top.Value - mt
			case utils.BCNeumann:
				data[ij+ktg*g.Ijcells] = mt + span*top.Value
			}
		}
	}
	return
}

func (e *Exchanger) pack(data, buf []float64, b box) {
	g := e.g
	var n int
	for k := b.k0; k < b.k1; k++ {
		for j := b.j0; j < b.j1; j++ {
			ijk := g.Index(b.i0, j, k)
			n += copy(buf[n:], data[ijk:ijk+b.i1-b.i0])
		}
	}
}

func (e *Exchanger) unpack(data, buf []float64, b box) {
	g := e.g
	var n int
	for k := b.k0; k < b.k1; k++ {
		for j := b.j0; j < b.j1; j++ {
			ijk := g.Index(b.i0, j, k)
			n += copy(data[ijk:ijk+b.i1-b.i0], buf[n:])
		}
	}
}

// copyBox is the single rank periodic wrap, src and dst have the same shape
func (e *Exchanger) copyBox(data []float64, src, dst box) {
	g := e.g
	ni := src.i1 - src.i0
	for k := src.k0; k < src.k1; k++ {
		for j := src.j0; j < src.j1; j++ {
			s := g.Index(src.i0, j, k)
			d := g.Index(dst.i0, dst.j0+j-src.j0, dst.k0+k-src.k0)
			copy(data[d:d+ni], data[s:s+ni])
		}
	}
}
