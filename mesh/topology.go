package mesh

import "fmt"

const (
	// NumSlots is the number of directional neighbor slots per block:
	// six topology classes, eight slots each.
	NumSlots = 48

	// ClassWidth is the slot range width of one topology class
	ClassWidth = 8
)

// NeighborBlock is one entry of the neighbor topology table. GID of -1
// marks an empty slot. Dest is the slot index on the neighbor's side
// that receives this block's outgoing data.
type NeighborBlock struct {
	GID   int
	Level int
	Rank  int
	Dest  int
}

// NoNeighbor is the empty-slot sentinel
var NoNeighbor = NeighborBlock{GID: -1}

// Topology is an immutable snapshot of the neighbor relationships for
// one work unit (the blocks owned by one rank). It is supplied by the
// mesh tree and consumed, never mutated, by the exchange engine.
//
// Block global IDs are assigned contiguously per rank, so the local
// index of a same-rank gid is gid-GIDStart, and the local index of a
// remote gid on rank r is gid-RankGIDStart[r].
type Topology struct {
	NMb          int
	Rank         int
	GIDStart     int
	RankGIDStart []int
	Levels       []int
	Neighbors    [][]NeighborBlock
}

// NewTopology allocates an all-empty topology for nmb blocks
func NewTopology(nmb, rank int, gidStart int, rankGIDStart []int) *Topology {
	t := &Topology{
		NMb:          nmb,
		Rank:         rank,
		GIDStart:     gidStart,
		RankGIDStart: rankGIDStart,
		Levels:       make([]int, nmb),
		Neighbors:    make([][]NeighborBlock, nmb),
	}
	for m := 0; m < nmb; m++ {
		t.Neighbors[m] = make([]NeighborBlock, NumSlots)
		for n := 0; n < NumSlots; n++ {
			t.Neighbors[m][n] = NoNeighbor
		}
	}
	return t
}

// LocalID returns the local block index of gid within this work unit
func (t *Topology) LocalID(gid int) int {
	return gid - t.GIDStart
}

// RemoteLocalID returns the local block index of gid on its owning rank
func (t *Topology) RemoteLocalID(gid, rank int) int {
	return gid - t.RankGIDStart[rank]
}

// FaceSlot encodes a face-class slot from side f (0 = lower along the
// face normal, 1 = upper) and fine-quadrant coordinates f1,f2 along the
// two transverse axes (in cyclic order: FaceX1 -> x2,x3; FaceX2 ->
// x1,x3; FaceX3 -> x1,x2).
func FaceSlot(tc TopologyClass, f, f1, f2 int) int {
	return tc.Base() + 4*f + 2*f2 + f1
}

// EdgeSlot encodes an edge-class slot from the sides s1,s2 along the
// edge's two fixed axes (in the order named by the class) and the fine
// segment g along the free axis.
func EdgeSlot(tc TopologyClass, s1, s2, g int) int {
	return tc.Base() + 2*(2*s2+s1) + g
}

// DecodeFaceSlot returns (side, f1, f2) for a face-class slot
func DecodeFaceSlot(n int) (f, f1, f2 int) {
	w := n % ClassWidth
	return w / 4, w % 2, (w / 2) % 2
}

// DecodeEdgeSlot returns (s1, s2, seg) for an edge-class slot
func DecodeEdgeSlot(n int) (s1, s2, g int) {
	w := n % ClassWidth
	e := w / 2
	return e % 2, e / 2, w % 2
}

// SetPair installs a symmetric fine/coarse neighbor pair: the coarse
// block sees the fine block at slot n, the fine block sees the coarse
// block at the mirror slot (opposite side, quadrant/segment zero). Both
// Dest fields are set so destination-slot symmetry holds. fm/cm are the
// local block indices within their owning topologies; ct and ft may be
// the same snapshot when both blocks share a rank.
func SetPair(ct *Topology, cm, n int, ft *Topology, fm int) error {
	tc := ClassOf(n)
	var mirror int
	switch {
	case tc.IsFace():
		f, _, _ := DecodeFaceSlot(n)
		mirror = FaceSlot(tc, 1-f, 0, 0)
	case tc.IsEdge():
		s1, s2, _ := DecodeEdgeSlot(n)
		mirror = EdgeSlot(tc, 1-s1, 1-s2, 0)
	default:
		return fmt.Errorf("slot %d outside the %d-slot table", n, NumSlots)
	}
	ct.Neighbors[cm][n] = NeighborBlock{
		GID:   ft.GIDStart + fm,
		Level: ft.Levels[fm],
		Rank:  ft.Rank,
		Dest:  mirror,
	}
	ft.Neighbors[fm][mirror] = NeighborBlock{
		GID:   ct.GIDStart + cm,
		Level: ct.Levels[cm],
		Rank:  ct.Rank,
		Dest:  n,
	}
	return nil
}
