package transport

import (
	"fmt"
	"sync"
)

// ChannelGroup connects n ranks living in one process. Sends and
// receives rendezvous through a shared matcher keyed by (source,
// destination, tag); payloads are copied at the match point, so a send
// request is complete as soon as its data has been captured. This is
// the in-process stand-in for the network path: the exchange engine
// cannot tell the two apart, which is exactly the property the
// loop-back/network equivalence tests rely on.
type ChannelGroup struct {
	mu      sync.Mutex
	size    int
	pending map[matchKey]*pendingOp
}

type matchKey struct {
	src, dst, tag int
}

type pendingOp struct {
	sends [][]float64 // captured payloads in send order (sends arrived first)
	recv  *chanRequest
}

// ChannelEndpoint is one rank's view of a ChannelGroup
type ChannelEndpoint struct {
	g    *ChannelGroup
	rank int
}

// NewChannelGroup returns the transports of an n-rank in-process world
func NewChannelGroup(n int) []Transport {
	g := &ChannelGroup{
		size:    n,
		pending: make(map[matchKey]*pendingOp),
	}
	eps := make([]Transport, n)
	for r := 0; r < n; r++ {
		eps[r] = &ChannelEndpoint{g: g, rank: r}
	}
	return eps
}

func (e *ChannelEndpoint) Rank() int { return e.rank }
func (e *ChannelEndpoint) Size() int { return e.g.size }

func (e *ChannelEndpoint) Isend(rank, tag int, data []float64) (Request, error) {
	if rank < 0 || rank >= e.g.size {
		return nil, fmt.Errorf("channel transport: no rank %d in %d-rank group", rank, e.g.size)
	}
	key := matchKey{src: e.rank, dst: rank, tag: tag}
	payload := make([]float64, len(data))
	copy(payload, data)

	g := e.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if op, ok := g.pending[key]; ok && op.recv != nil {
		op.recv.complete(payload)
		delete(g.pending, key)
	} else if ok {
		// a sender may run a cycle ahead of the receiver re-posting,
		// so park repeats in send order
		op.sends = append(op.sends, payload)
	} else {
		g.pending[key] = &pendingOp{sends: [][]float64{payload}}
	}
	return completedRequest{}, nil
}

func (e *ChannelEndpoint) Irecv(rank, tag int, buf []float64) (Request, error) {
	if rank < 0 || rank >= e.g.size {
		return nil, fmt.Errorf("channel transport: no rank %d in %d-rank group", rank, e.g.size)
	}
	key := matchKey{src: rank, dst: e.rank, tag: tag}
	req := &chanRequest{buf: buf, done: make(chan struct{})}

	g := e.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if op, ok := g.pending[key]; ok && len(op.sends) > 0 {
		req.complete(op.sends[0])
		op.sends = op.sends[1:]
		if len(op.sends) == 0 {
			delete(g.pending, key)
		}
	} else if ok {
		return nil, fmt.Errorf("channel transport: duplicate recv for tag %d from rank %d", tag, rank)
	} else {
		g.pending[key] = &pendingOp{recv: req}
	}
	return req, nil
}

// completedRequest is a request that finished at post time
type completedRequest struct{}

func (completedRequest) Test() (bool, error) { return true, nil }
func (completedRequest) Wait() error         { return nil }

type chanRequest struct {
	buf  []float64
	done chan struct{}
	err  error
}

// complete copies the payload into the posted buffer and releases
// waiters. Callers hold the group lock.
func (r *chanRequest) complete(payload []float64) {
	if len(payload) != len(r.buf) {
		r.err = fmt.Errorf("channel transport: payload size %d does not match posted buffer %d",
			len(payload), len(r.buf))
	} else {
		copy(r.buf, payload)
	}
	close(r.done)
}

func (r *chanRequest) Test() (bool, error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}

func (r *chanRequest) Wait() error {
	<-r.done
	return r.err
}
