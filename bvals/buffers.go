package bvals

import (
	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/transport"
)

// CommStatus tracks one block's slice of a receive buffer through the
// exchange cycle. Data is valid only between the transition to
// CommReceived and the next InitFluxRecv resetting it to CommWaiting.
type CommStatus int

const (
	CommUndef CommStatus = iota
	CommWaiting
	CommReceived
)

// FluxBuffer is the send or receive buffer of one directional slot,
// shared by every block in the work unit. The geometric metadata
// (per-component footprints and the derived stride Ndat) is fixed at
// setup; only Data, Stat, and Req change during an exchange. Send
// buffers carry coarse-mesh footprints, receive buffers regular-mesh
// footprints.
type FluxBuffer struct {
	Indcs [3]mesh.IndcsRange
	Ndat  int

	Data []float64           // nmb x 3*Ndat, component v at offset v*Ndat
	Stat []CommStatus        // per block, receive side only
	Req  []transport.Request // per block, cross-rank only
}

func newSendBuffer(n, nmb int, x mesh.MeshIndcs) *FluxBuffer {
	b := &FluxBuffer{Ndat: mesh.SendNdat(n, x)}
	g := mesh.Geometry(n)
	for v := 0; v < 3; v++ {
		if g.Carries(v) {
			b.Indcs[v] = g.SendRange(n, v, x)
		}
	}
	b.alloc(nmb)
	return b
}

func newRecvBuffer(n, nmb int, x mesh.MeshIndcs, cov mesh.Coverage) *FluxBuffer {
	b := &FluxBuffer{Ndat: mesh.RecvNdat(n, x, cov)}
	g := mesh.Geometry(n)
	for v := 0; v < 3; v++ {
		if g.Carries(v) {
			b.Indcs[v] = g.RecvRange(n, v, x, cov)
		}
	}
	b.alloc(nmb)
	return b
}

func (b *FluxBuffer) alloc(nmb int) {
	b.Data = make([]float64, nmb*3*b.Ndat)
	b.Stat = make([]CommStatus, nmb)
	b.Req = make([]transport.Request, nmb)
}

// Slice is block m's full 3-component region, the unit sent over the
// wire (exactly 3*Ndat values)
func (b *FluxBuffer) Slice(m int) []float64 {
	return b.Data[m*3*b.Ndat : (m+1)*3*b.Ndat]
}
