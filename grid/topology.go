package grid

import "fmt"

// Topology places one rank in the 2D Cartesian process grid. Ranks are laid
// out x fastest: Rank = CoordX + CoordY*Npx. Neighbours wrap periodically, so
// on an axis with a single rank a rank is its own east/west (or north/south)
// neighbour.
type Topology struct {
	Rank, Nprocs             int
	Npx, Npy                 int
	CoordX, CoordY           int
	East, West, North, South int
}

func NewTopology(npx, npy, rank int) (topo Topology, err error) {
	if npx < 1 || npy < 1 {
		err = fmt.Errorf("%w: process grid must be at least 1x1, have %dx%d", ErrConfig, npx, npy)
		return
	}
	if rank < 0 || rank >= npx*npy {
		err = fmt.Errorf("%w: rank %d outside process grid of %d ranks", ErrConfig, rank, npx*npy)
		return
	}
	topo = Topology{
		Rank:   rank,
		Nprocs: npx * npy,
		Npx:    npx,
		Npy:    npy,
		CoordX: rank % npx,
		CoordY: rank / npx,
	}
	topo.East = topo.RankOf(topo.CoordX+1, topo.CoordY)
	topo.West = topo.RankOf(topo.CoordX-1, topo.CoordY)
	topo.North = topo.RankOf(topo.CoordX, topo.CoordY+1)
	topo.South = topo.RankOf(topo.CoordX, topo.CoordY-1)
	return
}

// RankOf returns the rank at process coordinates (cx, cy), wrapping both
// coordinates periodically
func (t Topology) RankOf(cx, cy int) int {
	cx = ((cx % t.Npx) + t.Npx) % t.Npx
	cy = ((cy % t.Npy) + t.Npy) % t.Npy
	return cx + cy*t.Npx
}

// Coords is the inverse of RankOf
func (t Topology) Coords(rank int) (cx, cy int) {
	return rank % t.Npx, rank / t.Npx
}

func (t Topology) String() string {
	return fmt.Sprintf("id, coordx, coordy, east, west, north, south, nprocs: %2d, %2d, %2d, %2d, %2d, %2d, %2d, %2d",
		t.Rank, t.CoordX, t.CoordY, t.East, t.West, t.North, t.South, t.Nprocs)
}
