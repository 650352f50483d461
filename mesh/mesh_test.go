package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshIndcs_3D(t *testing.T) {
	x := NewMeshIndcs(8, 8, 8, 2)
	assert.Equal(t, 2, x.Is)
	assert.Equal(t, 9, x.Ie)
	assert.Equal(t, 2, x.Cis)
	assert.Equal(t, 5, x.Cie)
	assert.True(t, x.ThreeD)
	assert.False(t, x.TwoD)

	// fine = 2*coarse - cstart maps the coarse face indices onto the
	// regular-mesh face indices
	assert.Equal(t, x.Is, FineIndex(x.Cis, x.Cis))
	assert.Equal(t, x.Ie+1, FineIndex(x.Cie+1, x.Cis))
}

func TestMeshIndcs_Collapsed(t *testing.T) {
	x2 := NewMeshIndcs(8, 8, 1, 2)
	assert.True(t, x2.TwoD)
	assert.Equal(t, 0, x2.Ks)
	assert.Equal(t, 0, x2.Ke)
	assert.Equal(t, 0, x2.Cke)

	x1 := NewMeshIndcs(8, 1, 1, 2)
	assert.True(t, x1.OneD)
	assert.Equal(t, 0, x1.Js)
	assert.Equal(t, 0, x1.Cje)
}

func TestSlotEncodeDecodeRoundTrip(t *testing.T) {
	for _, tc := range []TopologyClass{FaceX1, FaceX2, FaceX3} {
		for f := 0; f < 2; f++ {
			for f1 := 0; f1 < 2; f1++ {
				for f2 := 0; f2 < 2; f2++ {
					n := FaceSlot(tc, f, f1, f2)
					require.Equal(t, tc, ClassOf(n))
					gf, g1, g2 := DecodeFaceSlot(n)
					assert.Equal(t, f, gf)
					assert.Equal(t, f1, g1)
					assert.Equal(t, f2, g2)
				}
			}
		}
	}
	for _, tc := range []TopologyClass{EdgeX1X2, EdgeX3X1, EdgeX2X3} {
		for s1 := 0; s1 < 2; s1++ {
			for s2 := 0; s2 < 2; s2++ {
				for g := 0; g < 2; g++ {
					n := EdgeSlot(tc, s1, s2, g)
					require.Equal(t, tc, ClassOf(n))
					h1, h2, hg := DecodeEdgeSlot(n)
					assert.Equal(t, s1, h1)
					assert.Equal(t, s2, h2)
					assert.Equal(t, g, hg)
				}
			}
		}
	}
}

func TestSlotClassPartition(t *testing.T) {
	// the six classes cover slots 0..47 in the documented order
	assert.Equal(t, FaceX1, ClassOf(0))
	assert.Equal(t, FaceX1, ClassOf(7))
	assert.Equal(t, FaceX2, ClassOf(8))
	assert.Equal(t, EdgeX1X2, ClassOf(16))
	assert.Equal(t, FaceX3, ClassOf(24))
	assert.Equal(t, EdgeX3X1, ClassOf(32))
	assert.Equal(t, EdgeX2X3, ClassOf(40))
	assert.Equal(t, EdgeX2X3, ClassOf(NumSlots-1))
}

func TestClassOrientations(t *testing.T) {
	carried := func(tc TopologyClass) (vs []int) {
		g := classTable[tc]
		for v := 0; v < 3; v++ {
			if g.Carries(v) {
				vs = append(vs, v)
			}
		}
		return
	}
	assert.Equal(t, []int{X2E, X3E}, carried(FaceX1))
	assert.Equal(t, []int{X1E, X3E}, carried(FaceX2))
	assert.Equal(t, []int{X1E, X2E}, carried(FaceX3))
	assert.Equal(t, []int{X3E}, carried(EdgeX1X2))
	assert.Equal(t, []int{X2E}, carried(EdgeX3X1))
	assert.Equal(t, []int{X1E}, carried(EdgeX2X3))
}

// Buffer sizing invariant: for every populated pairing the sender's
// coarse-mesh footprint and the receiver's regular-mesh footprint must
// carry the same sample counts per component, so 3*ndat agrees on both
// ends of the wire.
func TestBufferSizingSymmetry_Quadrant(t *testing.T) {
	x := NewMeshIndcs(8, 8, 8, 2)
	for n := 0; n < NumSlots; n++ {
		g := Geometry(n)
		for v := 0; v < 3; v++ {
			if !g.Carries(v) {
				continue
			}
			s := g.SendRange(n, v, x)
			r := g.RecvRange(n, v, x, QuadrantCoverage)
			assert.Equal(t, s.Count(), r.Count(),
				"slot %d (%s) v=%d", n, ClassOf(n), v)
		}
		assert.Equal(t, SendNdat(n, x), RecvNdat(n, x, QuadrantCoverage),
			"slot %d ndat", n)
	}
}

func TestBufferSizingSymmetry_FullFace(t *testing.T) {
	// bisection pairing: fine block carries twice the cells per axis
	coarse := NewMeshIndcs(4, 4, 4, 2)
	fine := NewMeshIndcs(8, 8, 8, 2)
	for n := 0; n < NumSlots; n++ {
		g := Geometry(n)
		for v := 0; v < 3; v++ {
			if !g.Carries(v) {
				continue
			}
			s := g.SendRange(n, v, fine)
			r := g.RecvRange(n, v, coarse, FullFaceCoverage)
			assert.Equal(t, s.Count(), r.Count(),
				"slot %d (%s) v=%d", n, ClassOf(n), v)
		}
		assert.Equal(t, SendNdat(n, fine), RecvNdat(n, coarse, FullFaceCoverage),
			"slot %d ndat", n)
	}
}

func TestBufferSizingSymmetry_2D(t *testing.T) {
	x := NewMeshIndcs(8, 8, 1, 2)
	for _, n := range []int{
		FaceSlot(FaceX1, 0, 0, 0), FaceSlot(FaceX1, 1, 1, 0),
		FaceSlot(FaceX2, 0, 1, 0), FaceSlot(FaceX2, 1, 0, 0),
		EdgeSlot(EdgeX1X2, 0, 0, 0), EdgeSlot(EdgeX1X2, 1, 1, 0),
	} {
		g := Geometry(n)
		for v := 0; v < 3; v++ {
			if !g.Carries(v) {
				continue
			}
			s := g.SendRange(n, v, x)
			r := g.RecvRange(n, v, x, QuadrantCoverage)
			assert.Equal(t, s.Count(), r.Count(), "slot %d v=%d", n, v)
		}
	}
}

func TestSendRange_FaceX1(t *testing.T) {
	x := NewMeshIndcs(8, 8, 8, 2)
	n := FaceSlot(FaceX1, 1, 0, 0) // upper x1 face
	g := Geometry(n)

	r := g.SendRange(n, X2E, x)
	assert.Equal(t, x.Cie+1, r.Bis)
	assert.Equal(t, x.Cie+1, r.Bie)
	assert.Equal(t, x.Cjs, r.Bjs)
	assert.Equal(t, x.Cje, r.Bje)
	assert.Equal(t, x.Cks, r.Bks)
	assert.Equal(t, x.Cke+1, r.Bke)

	r = g.SendRange(n, X3E, x)
	assert.Equal(t, x.Cje+1, r.Bje)
	assert.Equal(t, x.Cke, r.Bke)
}

func TestRecvRange_Quadrants(t *testing.T) {
	x := NewMeshIndcs(8, 8, 8, 2)
	g := Geometry(FaceSlot(FaceX1, 1, 0, 0))

	lo := g.RecvRange(FaceSlot(FaceX1, 1, 0, 0), X2E, x, QuadrantCoverage)
	hi := g.RecvRange(FaceSlot(FaceX1, 1, 1, 1), X2E, x, QuadrantCoverage)

	// quadrants tile the regular-mesh face
	assert.Equal(t, x.Js, lo.Bjs)
	assert.Equal(t, x.Js+3, lo.Bje)
	assert.Equal(t, x.Js+4, hi.Bjs)
	assert.Equal(t, x.Je, hi.Bje)

	// edge-extended axis overlaps by exactly the shared middle edge
	assert.Equal(t, x.Ks, lo.Bks)
	assert.Equal(t, x.Ks+4, lo.Bke)
	assert.Equal(t, x.Ks+4, hi.Bks)
	assert.Equal(t, x.Ke+1, hi.Bke)
}

func TestStencilDimensionality(t *testing.T) {
	d1 := NewMeshIndcs(8, 1, 1, 2)
	d2 := NewMeshIndcs(8, 8, 1, 2)
	d3 := NewMeshIndcs(8, 8, 8, 2)
	fx1 := classTable[FaceX1]

	assert.Equal(t, StencilCopy, fx1.Stencil(X2E, d1))
	assert.Equal(t, StencilCopy, fx1.Stencil(X3E, d1))
	assert.Equal(t, StencilAvgJ, fx1.Stencil(X2E, d2))
	assert.Equal(t, StencilCopy, fx1.Stencil(X3E, d2))
	assert.Equal(t, StencilAvgJ, fx1.Stencil(X2E, d3))
	assert.Equal(t, StencilAvgK, fx1.Stencil(X3E, d3))

	fx2 := classTable[FaceX2]
	assert.Equal(t, StencilAvgI, fx2.Stencil(X1E, d2))
	assert.Equal(t, StencilCopy, fx2.Stencil(X3E, d2))
	assert.Equal(t, StencilAvgK, fx2.Stencil(X3E, d3))

	assert.Equal(t, StencilCopy, classTable[EdgeX1X2].Stencil(X3E, d2))
	assert.Equal(t, StencilAvgK, classTable[EdgeX1X2].Stencil(X3E, d3))
	assert.Equal(t, StencilAvgJ, classTable[EdgeX3X1].Stencil(X2E, d3))
	assert.Equal(t, StencilAvgI, classTable[EdgeX2X3].Stencil(X1E, d3))
}

func TestOffsetFlattening(t *testing.T) {
	r := IndcsRange{Bis: 4, Bie: 4, Bjs: 2, Bje: 5, Bks: 1, Bke: 3}
	assert.Equal(t, 12, r.Count())
	assert.Equal(t, 0, r.Offset(4, 2, 1))
	assert.Equal(t, 1, r.Offset(4, 3, 1))
	assert.Equal(t, 4, r.Offset(4, 2, 2))
	assert.Equal(t, 11, r.Offset(4, 5, 3))
}

func TestSetPairSymmetry(t *testing.T) {
	// two blocks on one rank: block 0 coarse, block 1 fine on the +x1
	// face, quadrant (0,0)
	topo := NewTopology(2, 0, 0, []int{0})
	topo.Levels[0] = 1
	topo.Levels[1] = 2

	n := FaceSlot(FaceX1, 1, 0, 0)
	require.NoError(t, SetPair(topo, 0, n, topo, 1))

	nb := topo.Neighbors[0][n]
	assert.Equal(t, 1, nb.GID)
	assert.Equal(t, 2, nb.Level)

	back := topo.Neighbors[1][nb.Dest]
	require.GreaterOrEqual(t, back.GID, 0, "destination-slot symmetry")
	assert.Equal(t, 0, back.GID)
	assert.Equal(t, n, back.Dest)
	// the fine block sees the coarse neighbor on the opposite side
	f, _, _ := DecodeFaceSlot(nb.Dest)
	assert.Equal(t, 0, f)
}

func TestSetPairSymmetry_Edge(t *testing.T) {
	topo := NewTopology(2, 0, 0, []int{0})
	topo.Levels[0] = 1
	topo.Levels[1] = 2

	n := EdgeSlot(EdgeX3X1, 1, 0, 1)
	require.NoError(t, SetPair(topo, 0, n, topo, 1))
	nb := topo.Neighbors[0][n]
	s1, s2, _ := DecodeEdgeSlot(nb.Dest)
	assert.Equal(t, 0, s1)
	assert.Equal(t, 1, s2)
	assert.Equal(t, n, topo.Neighbors[1][nb.Dest].Dest)
}
