package transpose

import (
	"context"
	"fmt"

	"github.com/notargets/lesproj/comm"
	"github.com/notargets/lesproj/field"
	"github.com/notargets/lesproj/grid"
)

// Layout names the axis along which a pencil is contiguous on every rank
type Layout uint8

const (
	// ZPencil is the native decomposition: split in x and y, whole columns in z
	ZPencil Layout = iota
	// XPencil holds whole x lines, split in y and z
	XPencil
	// YPencil holds whole y lines, split in x and z
	YPencil
)

func (l Layout) String() string {
	switch l {
	case ZPencil:
		return "ZPencil"
	case XPencil:
		return "XPencil"
	case YPencil:
		return "YPencil"
	}
	return "Unknown"
}

const tagBase = 10

// Pencil is the owned data of one rank in a given layout, no halo, i fastest
type Pencil struct {
	Layout Layout
	Grid   *grid.Grid
	Data   []float64
}

// box is a half open index range in global coordinates
type box struct {
	i0, i1, j0, j1, k0, k1 int
}

func (b box) empty() bool {
	return b.i0 >= b.i1 || b.j0 >= b.j1 || b.k0 >= b.k1
}

func (b box) size() int {
	if b.empty() {
		return 0
	}
	return (b.i1 - b.i0) * (b.j1 - b.j0) * (b.k1 - b.k0)
}

func (b box) intersect(o box) box {
	return box{
		max(b.i0, o.i0), min(b.i1, o.i1),
		max(b.j0, o.j0), min(b.j1, o.j1),
		max(b.k0, o.k0), min(b.k1, o.k1),
	}
}

type transfer struct {
	rank int
	gb   box
	buf  []float64
}

type plan struct {
	tag          int
	sends, recvs []transfer
	self         *box
}

/*
Transposer redistributes the owned data of a field between pencil layouts.

	ZPencil  Imax      x Jmax      x Ktot          offsets (cx*Imax, cy*Jmax, 0)
	XPencil  Itot      x Jmax      x Ktot/Npx      offsets (0, cy*Jmax, cx*kblock)
	YPencil  Itot/Npy  x Jtot      x Ktot/Npx      offsets (cy*iblock, 0, cx*kblock)

Every rank sends each partner the intersection of its source block with the
partner's destination block, in global k, j, i order. Z<->X only involves the
ranks of one process row, X<->Y the ranks of one process column. The staging
buffers for every pair of layouts are allocated once.
*/
type Transposer struct {
	g     *grid.Grid
	c     comm.Comm
	plans map[[2]Layout]*plan
}

func New(g *grid.Grid, c comm.Comm) (t *Transposer, err error) {
	topo := g.Topo
	if c.Size() != topo.Nprocs || c.Rank() != topo.Rank {
		err = fmt.Errorf("%w: communicator is rank %d of %d, grid topology is rank %d of %d",
			grid.ErrConfig, c.Rank(), c.Size(), topo.Rank, topo.Nprocs)
		return
	}
	if g.Ktot%topo.Npx != 0 {
		err = fmt.Errorf("%w: transpose needs ktot = %d divisible by npx = %d", grid.ErrConfig, g.Ktot, topo.Npx)
		return
	}
	if g.Itot%topo.Npy != 0 {
		err = fmt.Errorf("%w: transpose needs itot = %d divisible by npy = %d", grid.ErrConfig, g.Itot, topo.Npy)
		return
	}
	t = &Transposer{g: g, c: c, plans: make(map[[2]Layout]*plan)}
	layouts := []Layout{ZPencil, XPencil, YPencil}
	for _, from := range layouts {
		for _, to := range layouts {
			if from != to {
				t.plans[[2]Layout{from, to}] = t.newPlan(from, to)
			}
		}
	}
	return
}

// CanTranspose reports whether a grid admits every pencil layout
func CanTranspose(g *grid.Grid) bool {
	return g.Ktot%g.Topo.Npx == 0 && g.Itot%g.Topo.Npy == 0
}

func (t *Transposer) newPlan(from, to Layout) (p *plan) {
	var (
		me   = t.c.Rank()
		mine = t.ownedBox(from, me)
		dest = t.ownedBox(to, me)
	)
	p = &plan{tag: tagBase + 3*int(from) + int(to)}
	for r := 0; r < t.c.Size(); r++ {
		out := mine.intersect(t.ownedBox(to, r))
		in := t.ownedBox(from, r).intersect(dest)
		if r == me {
			if !out.empty() {
				p.self = &out
			}
			continue
		}
		if !out.empty() {
			p.sends = append(p.sends, transfer{rank: r, gb: out, buf: make([]float64, out.size())})
		}
		if !in.empty() {
			p.recvs = append(p.recvs, transfer{rank: r, gb: in, buf: make([]float64, in.size())})
		}
	}
	return
}

// Dims returns the local extents of a layout on this rank
func (t *Transposer) Dims(l Layout) (ni, nj, nk int) {
	b := t.ownedBox(l, t.c.Rank())
	return b.i1 - b.i0, b.j1 - b.j0, b.k1 - b.k0
}

// Offsets returns the global index of the first owned cell of a layout on
// this rank
func (t *Transposer) Offsets(l Layout) (i0, j0, k0 int) {
	b := t.ownedBox(l, t.c.Rank())
	return b.i0, b.j0, b.k0
}

func (t *Transposer) ownedBox(l Layout, rank int) (b box) {
	var (
		g      = t.g
		cx, cy = g.Topo.Coords(rank)
		kb     = g.Ktot / g.Topo.Npx
		ib     = g.Itot / g.Topo.Npy
	)
	switch l {
	case ZPencil:
		b = box{cx * g.Imax, (cx + 1) * g.Imax, cy * g.Jmax, (cy + 1) * g.Jmax, 0, g.Ktot}
	case XPencil:
		b = box{0, g.Itot, cy * g.Jmax, (cy + 1) * g.Jmax, cx * kb, (cx + 1) * kb}
	case YPencil:
		b = box{cy * ib, (cy + 1) * ib, 0, g.Jtot, cx * kb, (cx + 1) * kb}
	default:
		panic(fmt.Errorf("unknown layout %d", l))
	}
	return
}

func (t *Transposer) NewPencil(l Layout) *Pencil {
	ni, nj, nk := t.Dims(l)
	return &Pencil{Layout: l, Grid: t.g, Data: make([]float64, ni*nj*nk)}
}

// Transpose fills dst with the data of src in dst's layout. Every rank of the
// world must call it with the same pair of layouts.
func (t *Transposer) Transpose(ctx context.Context, dst, src *Pencil) (err error) {
	if !src.Grid.SameGlobal(t.g) || !dst.Grid.SameGlobal(t.g) {
		return fmt.Errorf("%w: pencils on %dx%dx%d and %dx%dx%d, transposer on %dx%dx%d", grid.ErrConfig,
			src.Grid.Itot, src.Grid.Jtot, src.Grid.Ktot, dst.Grid.Itot, dst.Grid.Jtot, dst.Grid.Ktot,
			t.g.Itot, t.g.Jtot, t.g.Ktot)
	}
	p, ok := t.plans[[2]Layout{src.Layout, dst.Layout}]
	if !ok {
		return fmt.Errorf("%w: no transpose from %s to %s", grid.ErrConfig, src.Layout, dst.Layout)
	}
	for _, pc := range []*Pencil{src, dst} {
		ni, nj, nk := t.Dims(pc.Layout)
		if len(pc.Data) != ni*nj*nk {
			return fmt.Errorf("%w: %s pencil holds %d values, layout needs %d",
				comm.ErrBufferMismatch, pc.Layout, len(pc.Data), ni*nj*nk)
		}
	}
	var (
		sb = t.ownedBox(src.Layout, t.c.Rank())
		db = t.ownedBox(dst.Layout, t.c.Rank())
	)
	for _, tr := range p.sends {
		copyBox(tr.gb, src.Data, sb, tr.buf, true)
		if err = t.c.Send(ctx, tr.buf, tr.rank, p.tag); err != nil {
			return
		}
	}
	if p.self != nil {
		moveBox(*p.self, src.Data, sb, dst.Data, db)
	}
	for _, tr := range p.recvs {
		if err = t.c.Recv(ctx, tr.buf, tr.rank, p.tag); err != nil {
			return
		}
		copyBox(tr.gb, dst.Data, db, tr.buf, false)
	}
	return
}

// ToXPencil moves a ZPencil into an XPencil
func (t *Transposer) ToXPencil(ctx context.Context, dst, src *Pencil) error {
	return t.named(ctx, dst, src, ZPencil, XPencil)
}

// ToZPencil moves an XPencil into a ZPencil
func (t *Transposer) ToZPencil(ctx context.Context, dst, src *Pencil) error {
	return t.named(ctx, dst, src, XPencil, ZPencil)
}

// ToYPencil moves an XPencil into a YPencil
func (t *Transposer) ToYPencil(ctx context.Context, dst, src *Pencil) error {
	return t.named(ctx, dst, src, XPencil, YPencil)
}

// FromYPencil moves a YPencil back into an XPencil
func (t *Transposer) FromYPencil(ctx context.Context, dst, src *Pencil) error {
	return t.named(ctx, dst, src, YPencil, XPencil)
}

func (t *Transposer) named(ctx context.Context, dst, src *Pencil, from, to Layout) error {
	if src.Layout != from || dst.Layout != to {
		return fmt.Errorf("%w: expected %s -> %s, have %s -> %s",
			grid.ErrConfig, from, to, src.Layout, dst.Layout)
	}
	return t.Transpose(ctx, dst, src)
}

// copyBox moves the global box gb between a pencil whose owned block is pb
// and a contiguous buffer, in k, j, i order
func copyBox(gb box, data []float64, pb box, buf []float64, pack bool) {
	var (
		ni, nj = pb.i1 - pb.i0, pb.j1 - pb.j0
		width  = gb.i1 - gb.i0
		n      int
	)
	for k := gb.k0; k < gb.k1; k++ {
		for j := gb.j0; j < gb.j1; j++ {
			ijk := (gb.i0 - pb.i0) + (j-pb.j0)*ni + (k-pb.k0)*ni*nj
			if pack {
				copy(buf[n:n+width], data[ijk:ijk+width])
			} else {
				copy(data[ijk:ijk+width], buf[n:n+width])
			}
			n += width
		}
	}
}

func moveBox(gb box, src []float64, sb box, dst []float64, db box) {
	var (
		sni, snj = sb.i1 - sb.i0, sb.j1 - sb.j0
		dni, dnj = db.i1 - db.i0, db.j1 - db.j0
		width    = gb.i1 - gb.i0
	)
	for k := gb.k0; k < gb.k1; k++ {
		for j := gb.j0; j < gb.j1; j++ {
			s := (gb.i0 - sb.i0) + (j-sb.j0)*sni + (k-sb.k0)*sni*snj
			d := (gb.i0 - db.i0) + (j-db.j0)*dni + (k-db.k0)*dni*dnj
			copy(dst[d:d+width], src[s:s+width])
		}
	}
}

// PackField copies the owned cells of f into a ZPencil
func PackField(p *Pencil, f *field.Field3D) (err error) {
	if p.Layout != ZPencil || len(p.Data) != f.Grid().NInterior() {
		return fmt.Errorf("%w: field %s needs a ZPencil of %d values, have %s of %d",
			comm.ErrBufferMismatch, f.Name, f.Grid().NInterior(), p.Layout, len(p.Data))
	}
	f.PackInterior(p.Data)
	return
}

// UnpackField copies a ZPencil into the owned cells of f
func UnpackField(f *field.Field3D, p *Pencil) (err error) {
	if p.Layout != ZPencil || len(p.Data) != f.Grid().NInterior() {
		return fmt.Errorf("%w: field %s needs a ZPencil of %d values, have %s of %d",
			comm.ErrBufferMismatch, f.Name, f.Grid().NInterior(), p.Layout, len(p.Data))
	}
	f.UnpackInterior(p.Data)
	return
}
