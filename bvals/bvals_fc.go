package bvals

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/transport"
	"github.com/notargets/goamr/utils"
)

// Status is the result an operation reports to the external scheduler.
type Status int

const (
	StatusComplete Status = iota
	// StatusIncomplete is not an error: the scheduler retries the
	// operation on a later slot
	StatusIncomplete
	// StatusFail is a transport dispatch failure, fatal to the cycle
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusIncomplete:
		return "incomplete"
	case StatusFail:
		return "fail"
	}
	return "unknown"
}

// CreateTag builds the deterministic message tag from the receiving
// block's local index and the destination slot, so the receiver can
// demultiplex without relying on message order.
func CreateTag(lid, slot int) int {
	return lid<<6 | slot
}

// route is the delivery decision for one (block, slot) pair, resolved
// once when the topology snapshot is bound: either a direct copy into
// the local receive buffer or a tagged network send. Resolving here
// keeps the rank-equality branch out of the hot pack loop.
type route struct {
	local bool
	dm    int // destination block local index (local path)
	dn    int // destination slot on the neighbor
	rank  int // destination rank (remote path)
	lid   int // destination block local index on its rank (remote path)
}

// BoundaryValuesFC exchanges edge-located flux corrections at
// fine/coarse boundaries for one work unit. One exchange cycle is
// InitFluxRecv -> PackAndSendFlux -> (poll) RecvAndUnpackFlux ->
// ClearFluxRecv + ClearFluxSend; an aborted cycle leaves the buffers
// unsafe to reuse.
type BoundaryValuesFC struct {
	topo *mesh.Topology
	x    mesh.MeshIndcs
	tp   transport.Transport
	log  zerolog.Logger

	sendBuf [mesh.NumSlots]*FluxBuffer
	recvBuf [mesh.NumSlots]*FluxBuffer
	routes  [][]route

	np int
	pm *utils.PartitionMap

	// unpack parallelism is per block: sibling quadrant footprints on
	// one face share the middle edge, so slots of one block must
	// scatter serially
	npu int
	upm *utils.PartitionMap
}

// NewBoundaryValuesFC allocates the buffer store for the work unit
// described by topo and x. cov selects the fine-neighbor coverage model
// for the receive footprints. np is the worker count of the pack and
// unpack parallel loops.
func NewBoundaryValuesFC(topo *mesh.Topology, x mesh.MeshIndcs, cov mesh.Coverage,
	tp transport.Transport, log zerolog.Logger, np int) (*BoundaryValuesFC, error) {
	if topo.Rank != tp.Rank() {
		return nil, fmt.Errorf("topology rank %d does not match transport rank %d",
			topo.Rank, tp.Rank())
	}
	if np < 1 {
		np = 1
	}
	league := 3 * topo.NMb * mesh.NumSlots
	if np > league {
		np = league
	}
	npu := np
	if npu > topo.NMb {
		npu = topo.NMb
	}
	bv := &BoundaryValuesFC{
		topo: topo,
		x:    x,
		tp:   tp,
		log:  log.With().Str("module", "bvals").Int("rank", topo.Rank).Logger(),
		np:   np,
		pm:   utils.NewPartitionMap(np, league),
		npu:  npu,
		upm:  utils.NewPartitionMap(npu, topo.NMb),
	}
	for n := 0; n < mesh.NumSlots; n++ {
		bv.sendBuf[n] = newSendBuffer(n, topo.NMb, x)
		bv.recvBuf[n] = newRecvBuffer(n, topo.NMb, x, cov)
	}
	bv.routes = make([][]route, topo.NMb)
	for m := 0; m < topo.NMb; m++ {
		bv.routes[m] = make([]route, mesh.NumSlots)
		for n := 0; n < mesh.NumSlots; n++ {
			nb := topo.Neighbors[m][n]
			if nb.GID < 0 {
				continue
			}
			if nb.Rank == topo.Rank {
				bv.routes[m][n] = route{
					local: true,
					dm:    topo.LocalID(nb.GID),
					dn:    nb.Dest,
				}
			} else {
				bv.routes[m][n] = route{
					dn:   nb.Dest,
					rank: nb.Rank,
					lid:  topo.RemoteLocalID(nb.GID, nb.Rank),
				}
			}
		}
	}
	return bv, nil
}

// SendBuffer and RecvBuffer expose slot buffers for inspection in tests
// and diagnostics.
func (bv *BoundaryValuesFC) SendBuffer(n int) *FluxBuffer { return bv.sendBuf[n] }
func (bv *BoundaryValuesFC) RecvBuffer(n int) *FluxBuffer { return bv.recvBuf[n] }

// InitFluxRecv resets the receive status of every slot expecting data
// from a finer neighbor and posts the cross-rank non-blocking receives,
// sized to exactly the 3*Ndat region of the receiving block and tagged
// with this block's local index and slot. Must run before any
// PackAndSendFlux targeting these buffers.
func (bv *BoundaryValuesFC) InitFluxRecv() (Status, error) {
	var firstErr error
	nposted := 0
	for m := 0; m < bv.topo.NMb; m++ {
		for n := 0; n < mesh.NumSlots; n++ {
			nb := bv.topo.Neighbors[m][n]
			if nb.GID < 0 || nb.Level <= bv.topo.Levels[m] {
				continue
			}
			if nb.Rank != bv.topo.Rank {
				req, err := bv.tp.Irecv(nb.Rank, CreateTag(m, n), bv.recvBuf[n].Slice(m))
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				bv.recvBuf[n].Req[m] = req
				nposted++
			}
			bv.recvBuf[n].Stat[m] = CommWaiting
		}
	}
	if firstErr != nil {
		return StatusFail, fmt.Errorf("init flux recv: %w", firstErr)
	}
	bv.log.Debug().Int("posted", nposted).Msg("flux receives posted")
	return StatusComplete, nil
}

// PackAndSendFlux restricts the fine-side flux samples of every slot
// whose neighbor is coarser onto the coarse index space and delivers
// them: direct copy into the local receive buffer for same-rank
// neighbors, tagged non-blocking send otherwise. The restriction
// stencil follows the dimensionality rule of the topology class; the
// outer (block x slot x orientation) loop runs across the worker team.
func (bv *BoundaryValuesFC) PackAndSendFlux(flx *EdgeField) (Status, error) {
	nmb := bv.topo.NMb

	var eg errgroup.Group
	for w := 0; w < bv.np; w++ {
		lo, hi := bv.pm.GetBucketRange(w)
		eg.Go(func() error {
			for t := lo; t < hi; t++ {
				m := t / (3 * mesh.NumSlots)
				n := (t - m*3*mesh.NumSlots) / 3
				v := t % 3
				bv.packOne(flx, m, n, v)
			}
			return nil
		})
	}
	// worker join is the barrier before the delivery phase
	_ = eg.Wait()

	// delivery phase: local copies were already deposited by the
	// workers, so flag them received; remote regions go out as one
	// non-blocking send per (block, slot)
	var firstErr error
	nsent := 0
	for m := 0; m < nmb; m++ {
		for n := 0; n < mesh.NumSlots; n++ {
			nb := bv.topo.Neighbors[m][n]
			if nb.GID < 0 || nb.Level >= bv.topo.Levels[m] {
				continue
			}
			rt := bv.routes[m][n]
			if rt.local {
				bv.recvBuf[rt.dn].Stat[rt.dm] = CommReceived
				continue
			}
			req, err := bv.tp.Isend(rt.rank, CreateTag(rt.lid, rt.dn), bv.sendBuf[n].Slice(m))
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			bv.sendBuf[n].Req[m] = req
			nsent++
		}
	}
	if firstErr != nil {
		return StatusFail, fmt.Errorf("pack and send flux: %w", firstErr)
	}
	bv.log.Debug().Int("sent", nsent).Msg("flux corrections dispatched")
	return StatusComplete, nil
}

// packOne restricts one (block, slot, orientation) footprint into its
// destination buffer. Each triple owns a disjoint offset range, so the
// workers write without locks.
func (bv *BoundaryValuesFC) packOne(flx *EdgeField, m, n, v int) {
	nb := bv.topo.Neighbors[m][n]
	if nb.GID < 0 || nb.Level >= bv.topo.Levels[m] {
		return
	}
	g := mesh.Geometry(n)
	if !g.Carries(v) {
		return
	}
	var (
		r    = bv.sendBuf[n].Indcs[v]
		ndat = bv.sendBuf[n].Ndat
		st   = g.Stencil(v, bv.x)
		e    = flx.Comp(v)
		rt   = bv.routes[m][n]
		dst  []float64
	)
	if rt.local {
		dst = bv.recvBuf[rt.dn].Slice(rt.dm)
	} else {
		dst = bv.sendBuf[n].Slice(m)
	}
	for k := r.Bks; k <= r.Bke; k++ {
		fk := mesh.FineIndex(k, bv.x.Cks)
		for j := r.Bjs; j <= r.Bje; j++ {
			fj := mesh.FineIndex(j, bv.x.Cjs)
			for i := r.Bis; i <= r.Bie; i++ {
				fi := mesh.FineIndex(i, bv.x.Cis)
				var rflx float64
				switch st {
				case mesh.StencilCopy:
					rflx = e.At(m, fk, fj, fi)
				case mesh.StencilAvgI:
					rflx = 0.5 * (e.At(m, fk, fj, fi) + e.At(m, fk, fj, fi+1))
				case mesh.StencilAvgJ:
					rflx = 0.5 * (e.At(m, fk, fj, fi) + e.At(m, fk, fj+1, fi))
				case mesh.StencilAvgK:
					rflx = 0.5 * (e.At(m, fk, fj, fi) + e.At(m, fk+1, fj, fi))
				}
				dst[v*ndat+r.Offset(i, j, k)] = rflx
			}
		}
	}
}

// RecvAndUnpackFlux checks, without blocking, that every buffer slot
// expecting data from a finer neighbor has been filled, then scatters
// the buffered values onto the exact face/edge locations of the
// destination field. An edge entry shared by two sibling quadrant
// footprints takes the value of the higher slot. If any slot is still
// in flight it returns
// StatusIncomplete and touches nothing; the scheduler re-invokes it on
// a later slot.
func (bv *BoundaryValuesFC) RecvAndUnpackFlux(flx *EdgeField) (Status, error) {
	nmb := bv.topo.NMb

	// STEP 1: completion check
	incomplete := false
	for m := 0; m < nmb; m++ {
		for n := 0; n < mesh.NumSlots; n++ {
			nb := bv.topo.Neighbors[m][n]
			if nb.GID < 0 || nb.Level <= bv.topo.Levels[m] {
				continue
			}
			if nb.Rank == bv.topo.Rank {
				if bv.recvBuf[n].Stat[m] == CommWaiting {
					incomplete = true
				}
				continue
			}
			if bv.recvBuf[n].Stat[m] == CommReceived {
				continue
			}
			req := bv.recvBuf[n].Req[m]
			if req == nil {
				return StatusFail, fmt.Errorf(
					"recv flux: no posted receive for block %d slot %d (missing InitFluxRecv?)", m, n)
			}
			done, err := req.Test()
			if err != nil {
				return StatusFail, fmt.Errorf("recv flux: block %d slot %d: %w", m, n, err)
			}
			if done {
				bv.recvBuf[n].Stat[m] = CommReceived
			} else {
				incomplete = true
			}
		}
	}
	if incomplete {
		return StatusIncomplete, nil
	}

	// STEP 2: all buffers complete, scatter. The values were already
	// restricted by the sender; this is a straight substitution.
	// Workers split over blocks, and slots of one block scatter in
	// ascending slot order: sibling quadrant footprints overlap at the
	// shared middle edge, so running them concurrently would race and
	// any other order would not be deterministic.
	var eg errgroup.Group
	for w := 0; w < bv.npu; w++ {
		lo, hi := bv.upm.GetBucketRange(w)
		eg.Go(func() error {
			for m := lo; m < hi; m++ {
				for n := 0; n < mesh.NumSlots; n++ {
					for v := 0; v < 3; v++ {
						bv.unpackOne(flx, m, n, v)
					}
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
	return StatusComplete, nil
}

func (bv *BoundaryValuesFC) unpackOne(flx *EdgeField, m, n, v int) {
	nb := bv.topo.Neighbors[m][n]
	if nb.GID < 0 || nb.Level <= bv.topo.Levels[m] {
		return
	}
	g := mesh.Geometry(n)
	if !g.Carries(v) {
		return
	}
	var (
		r    = bv.recvBuf[n].Indcs[v]
		ndat = bv.recvBuf[n].Ndat
		e    = flx.Comp(v)
		src  = bv.recvBuf[n].Slice(m)
	)
	for k := r.Bks; k <= r.Bke; k++ {
		for j := r.Bjs; j <= r.Bje; j++ {
			for i := r.Bis; i <= r.Bie; i++ {
				e.Set(m, k, j, i, src[v*ndat+r.Offset(i, j, k)])
			}
		}
	}
}

// ClearFluxRecv blocks until every outstanding cross-rank receive has
// completed, making the receive buffers safe to reuse or tear down.
func (bv *BoundaryValuesFC) ClearFluxRecv() (Status, error) {
	return bv.clear(&bv.recvBuf)
}

// ClearFluxSend blocks until every outstanding cross-rank send has
// completed. Must not run while a PackAndSendFlux for the same cycle is
// still in flight.
func (bv *BoundaryValuesFC) ClearFluxSend() (Status, error) {
	return bv.clear(&bv.sendBuf)
}

func (bv *BoundaryValuesFC) clear(bufs *[mesh.NumSlots]*FluxBuffer) (Status, error) {
	var firstErr error
	for m := 0; m < bv.topo.NMb; m++ {
		for n := 0; n < mesh.NumSlots; n++ {
			nb := bv.topo.Neighbors[m][n]
			if nb.GID < 0 || nb.Rank == bv.topo.Rank {
				continue
			}
			req := bufs[n].Req[m]
			if req == nil {
				continue
			}
			if err := req.Wait(); err != nil && firstErr == nil {
				firstErr = err
			}
			bufs[n].Req[m] = nil
		}
	}
	if firstErr != nil {
		return StatusFail, fmt.Errorf("clear flux: %w", firstErr)
	}
	return StatusComplete, nil
}
