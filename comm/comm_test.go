package comm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointToPoint(t *testing.T) {
	ctx := context.Background()
	{ // Ring shift, messages from the same source and tag stay ordered
		err := Run(ctx, 5, func(ctx context.Context, c Comm) error {
			next := (c.Rank() + 1) % c.Size()
			prev := (c.Rank() + c.Size() - 1) % c.Size()
			for n := 0; n < 3; n++ {
				if err := c.Send(ctx, []float64{float64(c.Rank()), float64(n)}, next, 7); err != nil {
					return err
				}
			}
			buf := make([]float64, 2)
			for n := 0; n < 3; n++ {
				if err := c.Recv(ctx, buf, prev, 7); err != nil {
					return err
				}
				if buf[0] != float64(prev) || buf[1] != float64(n) {
					return errors.New("out of order delivery")
				}
			}
			return nil
		})
		assert.NoError(t, err)
	}
	{ // Send copies, later writes to the source do not leak
		w := NewWorld(2)
		c0, c1 := w.Comm(0), w.Comm(1)
		data := []float64{1, 2}
		require.NoError(t, c0.Send(ctx, data, 1, 3))
		data[0] = 99
		buf := make([]float64, 2)
		require.NoError(t, c1.Recv(ctx, buf, 0, 3))
		assert.Equal(t, []float64{1, 2}, buf)
	}
	{ // Received payloads are recycled by the next send of the same length
		w := NewWorld(2)
		c0, c1 := w.Comm(0), w.Comm(1)
		buf := make([]float64, 4)
		require.NoError(t, c0.Send(ctx, []float64{1, 2, 3, 4}, 1, 5))
		first := &w.boxes[1].queue[0].data[0]
		require.NoError(t, c1.Recv(ctx, buf, 0, 5))
		for n := 0; n < 3; n++ {
			require.NoError(t, c0.Send(ctx, []float64{5, 6, 7, float64(n)}, 1, 5))
			assert.Same(t, first, &w.boxes[1].queue[0].data[0])
			require.NoError(t, c1.Recv(ctx, buf, 0, 5))
			assert.Equal(t, []float64{5, 6, 7, float64(n)}, buf)
		}
		assert.Len(t, w.pool.free[4], 1)
	}
	{ // Length mismatch
		w := NewWorld(2)
		require.NoError(t, w.Comm(0).Send(ctx, []float64{1, 2, 3}, 1, 0))
		err := w.Comm(1).Recv(ctx, make([]float64, 2), 0, 0)
		assert.True(t, errors.Is(err, ErrBufferMismatch))
	}
	{ // A partner that never sends is reported, not waited on forever
		w := NewWorld(2)
		w.Timeout = 20 * time.Millisecond
		err := w.Comm(1).Recv(ctx, make([]float64, 1), 0, 0)
		assert.True(t, errors.Is(err, ErrUnreachable))
		assert.True(t, errors.Is(w.Comm(0).Send(ctx, nil, 2, 0), ErrRank))
	}
	{ // One failing rank cancels the ranks blocked on it
		boom := errors.New("boom")
		err := Run(ctx, 3, func(ctx context.Context, c Comm) error {
			if c.Rank() == 2 {
				return boom
			}
			return c.Recv(ctx, make([]float64, 1), 2, 0)
		})
		assert.True(t, errors.Is(err, boom))
	}
}

func TestCollectives(t *testing.T) {
	ctx := context.Background()
	err := Run(ctx, 6, func(ctx context.Context, c Comm) error {
		r := float64(c.Rank())
		sum, err := AllReduceScalar(ctx, c, Sum, r)
		if err != nil {
			return err
		}
		mx, err := AllReduceScalar(ctx, c, Max, r)
		if err != nil {
			return err
		}
		mn, err := AllReduceScalar(ctx, c, Min, r+1)
		if err != nil {
			return err
		}
		vec := []float64{r, 2 * r}
		if err = AllReduce(ctx, c, Sum, vec); err != nil {
			return err
		}
		out := make([]float64, 2*c.Size())
		if err = AllGather(ctx, c, []float64{r, -r}, out); err != nil {
			return err
		}
		bc := []float64{0}
		if c.Rank() == 3 {
			bc[0] = 42
		}
		if err = Bcast(ctx, c, 3, bc); err != nil {
			return err
		}
		if err = Barrier(ctx, c); err != nil {
			return err
		}
		assert.Equal(t, 15., sum)
		assert.Equal(t, 5., mx)
		assert.Equal(t, 1., mn)
		assert.Equal(t, []float64{15, 30}, vec)
		assert.Equal(t, []float64{0, 0, 1, -1, 2, -2, 3, -3, 4, -4, 5, -5}, out)
		assert.Equal(t, 42., bc[0])
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "Max", Max.String())
}
