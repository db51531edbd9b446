package comm

import (
	"context"
	"fmt"
	"math"
)

// Op is a reduction operator
type Op int

const (
	Sum Op = iota
	Max
	Min
)

func (op Op) String() string {
	switch op {
	case Sum:
		return "Sum"
	case Max:
		return "Max"
	case Min:
		return "Min"
	}
	return "Unknown"
}

func (op Op) combine(acc, val []float64) {
	switch op {
	case Sum:
		for n := range acc {
			acc[n] += val[n]
		}
	case Max:
		for n := range acc {
			acc[n] = math.Max(acc[n], val[n])
		}
	case Min:
		for n := range acc {
			acc[n] = math.Min(acc[n], val[n])
		}
	default:
		panic(fmt.Errorf("unknown reduction operator %d", op))
	}
}

const (
	tagReduce = TagReserved + iota
	tagBcast
	tagGather
)

/*
AllReduce combines data across every rank in place. The root combines the
contributions in rank order and broadcasts the result, so every rank holds
bitwise identical values regardless of message arrival order.
*/
func AllReduce(ctx context.Context, c Comm, op Op, data []float64) (err error) {
	if c.Size() == 1 {
		return
	}
	if c.Rank() != Root {
		if err = c.Send(ctx, data, Root, tagReduce); err != nil {
			return
		}
	} else {
		tmp := make([]float64, len(data))
		for r := 0; r < c.Size(); r++ {
			if r == Root {
				continue
			}
			if err = c.Recv(ctx, tmp, r, tagReduce); err != nil {
				return
			}
			op.combine(data, tmp)
		}
	}
	return Bcast(ctx, c, Root, data)
}

func AllReduceScalar(ctx context.Context, c Comm, op Op, val float64) (res float64, err error) {
	buf := []float64{val}
	if err = AllReduce(ctx, c, op, buf); err != nil {
		return
	}
	res = buf[0]
	return
}

// Bcast copies data on root into data on every other rank
func Bcast(ctx context.Context, c Comm, root int, data []float64) (err error) {
	if c.Rank() == root {
		for r := 0; r < c.Size(); r++ {
			if r == root {
				continue
			}
			if err = c.Send(ctx, data, r, tagBcast); err != nil {
				return
			}
		}
		return
	}
	return c.Recv(ctx, data, root, tagBcast)
}

// AllGather concatenates the local slices of every rank, in rank order, into
// out. Every rank must contribute the same length and len(out) must be
// Size()*len(local).
func AllGather(ctx context.Context, c Comm, local, out []float64) (err error) {
	nl := len(local)
	if len(out) != nl*c.Size() {
		return fmt.Errorf("%w: gather of %d values from %d ranks into %d",
			ErrBufferMismatch, nl, c.Size(), len(out))
	}
	if c.Rank() != Root {
		if err = c.Send(ctx, local, Root, tagGather); err != nil {
			return
		}
	} else {
		copy(out[Root*nl:(Root+1)*nl], local)
		for r := 0; r < c.Size(); r++ {
			if r == Root {
				continue
			}
			if err = c.Recv(ctx, out[r*nl:(r+1)*nl], r, tagGather); err != nil {
				return
			}
		}
	}
	return Bcast(ctx, c, Root, out)
}

// Barrier returns once every rank has entered it
func Barrier(ctx context.Context, c Comm) (err error) {
	_, err = AllReduceScalar(ctx, c, Sum, 0)
	return
}
