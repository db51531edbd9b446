package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrUnreachable is returned when a partner rank does not deliver a
	// message before the context ends or the world timeout expires
	ErrUnreachable = errors.New("rank unreachable")
	// ErrBufferMismatch is returned when a received message does not have the
	// length the receiver expects
	ErrBufferMismatch = errors.New("buffer size mismatch")
	ErrRank           = errors.New("rank out of range")
)

// TagReserved is the first tag used by the collectives, point to point users
// should stay below it
const TagReserved = 1 << 20

// Root is the rank that combines and broadcasts in the collectives
const Root = 0

// Comm is the point to point interface of one rank. Send never blocks and
// copies its data. Recv blocks until a message from src with the given tag
// arrives; messages between a pair of ranks with the same tag are delivered
// in the order they were sent.
type Comm interface {
	Rank() int
	Size() int
	Send(ctx context.Context, data []float64, dest, tag int) error
	Recv(ctx context.Context, data []float64, src, tag int) error
}

type message struct {
	src, tag int
	data     []float64
}

type mailbox struct {
	mu     sync.Mutex
	queue  []message
	signal chan struct{} // closed and replaced on every delivery
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{})}
}

func (mb *mailbox) put(msg message) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, msg)
	close(mb.signal)
	mb.signal = make(chan struct{})
	mb.mu.Unlock()
}

// take removes the oldest message matching (src, tag). When there is none it
// returns the channel that will be closed on the next delivery.
func (mb *mailbox) take(src, tag int) (msg message, ok bool, wait <-chan struct{}) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for n, m := range mb.queue {
		if m.src == src && m.tag == tag {
			msg, ok = m, true
			mb.queue = append(mb.queue[:n], mb.queue[n+1:]...)
			return
		}
	}
	wait = mb.signal
	return
}

// buffers recycles message payloads by length. Send takes one, the matching
// Recv returns it after copying out.
type buffers struct {
	mu   sync.Mutex
	free map[int][][]float64
}

func (bp *buffers) get(n int) (buf []float64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if l := len(bp.free[n]); l > 0 {
		buf = bp.free[n][l-1]
		bp.free[n] = bp.free[n][:l-1]
		return
	}
	return make([]float64, n)
}

func (bp *buffers) put(buf []float64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.free == nil {
		bp.free = make(map[int][][]float64)
	}
	bp.free[len(buf)] = append(bp.free[len(buf)], buf)
}

// World is an in-process set of ranks connected through mailboxes, one per
// rank. Each rank is driven by its own goroutine.
type World struct {
	// Timeout bounds every receive, zero waits until the context ends
	Timeout time.Duration
	boxes   []*mailbox
	pool    buffers
}

func NewWorld(size int) *World {
	w := &World{boxes: make([]*mailbox, size)}
	for n := range w.boxes {
		w.boxes[n] = newMailbox()
	}
	return w
}

func (w *World) Size() int { return len(w.boxes) }

// Comm returns the endpoint of one rank
func (w *World) Comm(rank int) Comm {
	return &endpoint{world: w, rank: rank}
}

type endpoint struct {
	world *World
	rank  int
}

func (ep *endpoint) Rank() int { return ep.rank }
func (ep *endpoint) Size() int { return len(ep.world.boxes) }

func (ep *endpoint) checkRank(r int) error {
	if r < 0 || r >= len(ep.world.boxes) {
		return fmt.Errorf("%w: rank %d in world of %d", ErrRank, r, len(ep.world.boxes))
	}
	return nil
}

func (ep *endpoint) Send(ctx context.Context, data []float64, dest, tag int) (err error) {
	if err = ep.checkRank(dest); err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return fmt.Errorf("%w: rank %d sending to %d, tag %d: %v", ErrUnreachable, ep.rank, dest, tag, err)
	}
	buf := ep.world.pool.get(len(data))
	copy(buf, data)
	ep.world.boxes[dest].put(message{src: ep.rank, tag: tag, data: buf})
	return
}

func (ep *endpoint) Recv(ctx context.Context, data []float64, src, tag int) (err error) {
	if err = ep.checkRank(src); err != nil {
		return
	}
	var timeout <-chan time.Time
	if ep.world.Timeout > 0 {
		timer := time.NewTimer(ep.world.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	box := ep.world.boxes[ep.rank]
	for {
		msg, ok, wait := box.take(src, tag)
		if ok {
			defer ep.world.pool.put(msg.data)
			if len(msg.data) != len(data) {
				return fmt.Errorf("%w: rank %d expected %d values from rank %d, tag %d, received %d",
					ErrBufferMismatch, ep.rank, len(data), src, tag, len(msg.data))
			}
			copy(data, msg.data)
			return
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return fmt.Errorf("%w: rank %d waiting for rank %d, tag %d: %v",
				ErrUnreachable, ep.rank, src, tag, ctx.Err())
		case <-timeout:
			return fmt.Errorf("%w: rank %d waiting for rank %d, tag %d: timed out after %v",
				ErrUnreachable, ep.rank, src, tag, ep.world.Timeout)
		}
	}
}
