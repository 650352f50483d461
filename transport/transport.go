// Package transport supplies the non-blocking point-to-point primitives
// used by the flux-correction exchange: post a send or receive against a
// (peer rank, tag) pair, then test or wait for its completion. Message
// order between a pair is unspecified; tags are what demultiplex the
// many-to-one buffer topology, so a tag must be used at most once per
// (peer, direction) within one exchange cycle.
package transport

import "fmt"

// Request is the handle of one outstanding non-blocking operation.
type Request interface {
	// Test reports without blocking whether the operation has
	// completed. A completion error is returned once complete.
	Test() (bool, error)

	// Wait blocks until the operation completes
	Wait() error
}

// Transport is a fixed-size world of ranks exchanging float64 payloads.
type Transport interface {
	Rank() int
	Size() int

	// Isend enqueues data for delivery to rank with the given tag. The
	// caller must keep data unchanged until the request completes. An
	// error here is a dispatch failure (enqueue-level), fatal to the
	// exchange cycle.
	Isend(rank, tag int, data []float64) (Request, error)

	// Irecv posts buf to receive a payload from rank with the given
	// tag. The payload length must equal len(buf) exactly; a mismatch
	// completes the request with an error rather than truncating.
	Irecv(rank, tag int, buf []float64) (Request, error)
}

// SingleRank is the one-process world: every neighbor is local, so any
// attempt to reach a remote rank is a dispatch failure.
type SingleRank struct{}

func NewSingleRank() SingleRank { return SingleRank{} }

func (SingleRank) Rank() int { return 0 }
func (SingleRank) Size() int { return 1 }

func (SingleRank) Isend(rank, tag int, data []float64) (Request, error) {
	return nil, fmt.Errorf("single-rank transport: no route to rank %d", rank)
}

func (SingleRank) Irecv(rank, tag int, buf []float64) (Request, error) {
	return nil, fmt.Errorf("single-rank transport: no route to rank %d", rank)
}
