package mesh

// TopologyClass identifies one of the six neighbor-adjacency categories.
// The slot table is partitioned into six contiguous ranges of width
// ClassWidth in this order.
type TopologyClass int

const (
	FaceX1 TopologyClass = iota
	FaceX2
	EdgeX1X2
	FaceX3
	EdgeX3X1
	EdgeX2X3
)

// Field orientation indices into the edge-flux triple
const (
	X1E = 0
	X2E = 1
	X3E = 2
)

// Coverage selects how much of the shared face/edge a finer neighbor
// occupies on the receiving side. QuadrantCoverage is the uniform
// block-size model: every block has the same cell counts, so a finer
// neighbor spans half the face per transverse axis and the slot's
// quadrant bits select which half. FullFaceCoverage is the bisection
// model: the finer block carries twice the cells per axis and spans the
// whole shared face.
type Coverage int

const (
	QuadrantCoverage Coverage = iota
	FullFaceCoverage
)

// StencilOp is the restriction stencil for one (class, orientation,
// dimensionality) combination: either a direct copy of the single
// aligned fine sample, or the arithmetic mean of the two fine samples
// adjacent along one axis.
type StencilOp int

const (
	StencilCopy StencilOp = iota
	StencilAvgI
	StencilAvgJ
	StencilAvgK
)

func ClassOf(n int) TopologyClass { return TopologyClass(n / ClassWidth) }

func (tc TopologyClass) Base() int { return int(tc) * ClassWidth }

func (tc TopologyClass) IsFace() bool {
	return tc == FaceX1 || tc == FaceX2 || tc == FaceX3
}

func (tc TopologyClass) IsEdge() bool {
	return tc == EdgeX1X2 || tc == EdgeX3X1 || tc == EdgeX2X3
}

func (tc TopologyClass) String() string {
	switch tc {
	case FaceX1:
		return "face-x1"
	case FaceX2:
		return "face-x2"
	case EdgeX1X2:
		return "edge-x1x2"
	case FaceX3:
		return "face-x3"
	case EdgeX3X1:
		return "edge-x3x1"
	case EdgeX2X3:
		return "edge-x2x3"
	}
	return "unknown"
}

// ClassGeometry resolves the refinement-level-dependent index geometry
// of one topology class. Faces carry the two edge orientations
// transverse to the face normal, edges carry the single orientation
// along their free axis. One implementation per class keeps the index
// arithmetic in one place instead of duplicating range checks at every
// call site.
type ClassGeometry interface {
	// Carries reports whether orientation v is exchanged by this class
	Carries(v int) bool

	// SendRange is the coarse-mesh footprint packed by a fine block
	// whose slot n names a coarser neighbor
	SendRange(n, v int, x MeshIndcs) IndcsRange

	// RecvRange is the regular-mesh footprint on a coarse block whose
	// slot n names a finer neighbor
	RecvRange(n, v int, x MeshIndcs, cov Coverage) IndcsRange

	// Stencil is the restriction rule for orientation v at the work
	// unit's dimensionality
	Stencil(v int, x MeshIndcs) StencilOp
}

var classTable = [6]ClassGeometry{
	FaceX1:   faceX1Geom{},
	FaceX2:   faceX2Geom{},
	EdgeX1X2: edgeX1X2Geom{},
	FaceX3:   faceX3Geom{},
	EdgeX3X1: edgeX3X1Geom{},
	EdgeX2X3: edgeX2X3Geom{},
}

// Geometry returns the resolver for the class owning slot n
func Geometry(n int) ClassGeometry { return classTable[ClassOf(n)] }

// SendNdat is the per-component stride of the send buffer for slot n:
// the largest component footprint, so all three components fit at
// offsets v*ndat.
func SendNdat(n int, x MeshIndcs) int {
	g := Geometry(n)
	ndat := 1
	for v := 0; v < 3; v++ {
		if !g.Carries(v) {
			continue
		}
		if c := g.SendRange(n, v, x).Count(); c > ndat {
			ndat = c
		}
	}
	return ndat
}

// RecvNdat is the per-component stride of the receive buffer for slot
// n. For a well-formed pairing it equals the sender's SendNdat, which
// is what makes the 3*ndat payload sizes agree on both ends.
func RecvNdat(n int, x MeshIndcs, cov Coverage) int {
	g := Geometry(n)
	ndat := 1
	for v := 0; v < 3; v++ {
		if !g.Carries(v) {
			continue
		}
		if c := g.RecvRange(n, v, x, cov).Count(); c > ndat {
			ndat = c
		}
	}
	return ndat
}

// half-range helpers for the receiving side. cellHalf selects the h-th
// half of a cell-centered extent, edgeHalf the h-th half of the
// edge-centered extent (one longer, the shared middle edge belongs to
// both halves). Collapsed dimensions pass through unchanged.
func cellHalf(s, e, h int) (int, int) {
	nx := e - s + 1
	if nx <= 1 {
		return s, e
	}
	if h == 0 {
		return s, s + nx/2 - 1
	}
	return s + nx/2, e
}

func edgeHalf(s, e, h int) (int, int) {
	nx := e - s + 1
	if nx <= 1 {
		return s, e
	}
	if h == 0 {
		return s, s + nx/2
	}
	return s + nx/2, e + 1
}

func cellFull(s, e int) (int, int) { return s, e }

func edgeFull(s, e int) (int, int) {
	if e-s+1 <= 1 {
		return s, e
	}
	return s, e + 1
}

// faceFixed returns the regular-mesh face index for side f
func faceFixed(s, e, f int) int {
	if f == 0 {
		return s
	}
	return e + 1
}

//----------------------------------------------------------------------
// x1 faces: carry x2e and x3e, i-index fixed

type faceX1Geom struct{}

func (faceX1Geom) Carries(v int) bool { return v == X2E || v == X3E }

func (faceX1Geom) SendRange(n, v int, x MeshIndcs) IndcsRange {
	f, _, _ := DecodeFaceSlot(n)
	r := IndcsRange{}
	r.Bis = faceFixed(x.Cis, x.Cie, f)
	r.Bie = r.Bis
	switch v {
	case X2E:
		r.Bjs, r.Bje = cellFull(x.Cjs, x.Cje)
		r.Bks, r.Bke = edgeFull(x.Cks, x.Cke)
	case X3E:
		r.Bjs, r.Bje = edgeFull(x.Cjs, x.Cje)
		r.Bks, r.Bke = cellFull(x.Cks, x.Cke)
	}
	return r
}

func (faceX1Geom) RecvRange(n, v int, x MeshIndcs, cov Coverage) IndcsRange {
	f, f1, f2 := DecodeFaceSlot(n)
	r := IndcsRange{}
	r.Bis = faceFixed(x.Is, x.Ie, f)
	r.Bie = r.Bis
	if cov == FullFaceCoverage {
		switch v {
		case X2E:
			r.Bjs, r.Bje = cellFull(x.Js, x.Je)
			r.Bks, r.Bke = edgeFull(x.Ks, x.Ke)
		case X3E:
			r.Bjs, r.Bje = edgeFull(x.Js, x.Je)
			r.Bks, r.Bke = cellFull(x.Ks, x.Ke)
		}
		return r
	}
	switch v {
	case X2E:
		r.Bjs, r.Bje = cellHalf(x.Js, x.Je, f1)
		r.Bks, r.Bke = edgeHalf(x.Ks, x.Ke, f2)
	case X3E:
		r.Bjs, r.Bje = edgeHalf(x.Js, x.Je, f1)
		r.Bks, r.Bke = cellHalf(x.Ks, x.Ke, f2)
	}
	return r
}

func (faceX1Geom) Stencil(v int, x MeshIndcs) StencilOp {
	if x.OneD {
		return StencilCopy
	}
	switch v {
	case X2E:
		return StencilAvgJ
	case X3E:
		if x.TwoD {
			return StencilCopy
		}
		return StencilAvgK
	}
	return StencilCopy
}

//----------------------------------------------------------------------
// x2 faces: carry x1e and x3e, j-index fixed

type faceX2Geom struct{}

func (faceX2Geom) Carries(v int) bool { return v == X1E || v == X3E }

func (faceX2Geom) SendRange(n, v int, x MeshIndcs) IndcsRange {
	f, _, _ := DecodeFaceSlot(n)
	r := IndcsRange{}
	r.Bjs = faceFixed(x.Cjs, x.Cje, f)
	r.Bje = r.Bjs
	switch v {
	case X1E:
		r.Bis, r.Bie = cellFull(x.Cis, x.Cie)
		r.Bks, r.Bke = edgeFull(x.Cks, x.Cke)
	case X3E:
		r.Bis, r.Bie = edgeFull(x.Cis, x.Cie)
		r.Bks, r.Bke = cellFull(x.Cks, x.Cke)
	}
	return r
}

func (faceX2Geom) RecvRange(n, v int, x MeshIndcs, cov Coverage) IndcsRange {
	f, f1, f2 := DecodeFaceSlot(n)
	r := IndcsRange{}
	r.Bjs = faceFixed(x.Js, x.Je, f)
	r.Bje = r.Bjs
	if cov == FullFaceCoverage {
		switch v {
		case X1E:
			r.Bis, r.Bie = cellFull(x.Is, x.Ie)
			r.Bks, r.Bke = edgeFull(x.Ks, x.Ke)
		case X3E:
			r.Bis, r.Bie = edgeFull(x.Is, x.Ie)
			r.Bks, r.Bke = cellFull(x.Ks, x.Ke)
		}
		return r
	}
	switch v {
	case X1E:
		r.Bis, r.Bie = cellHalf(x.Is, x.Ie, f1)
		r.Bks, r.Bke = edgeHalf(x.Ks, x.Ke, f2)
	case X3E:
		r.Bis, r.Bie = edgeHalf(x.Is, x.Ie, f1)
		r.Bks, r.Bke = cellHalf(x.Ks, x.Ke, f2)
	}
	return r
}

func (faceX2Geom) Stencil(v int, x MeshIndcs) StencilOp {
	switch v {
	case X1E:
		return StencilAvgI
	case X3E:
		if x.TwoD {
			return StencilCopy
		}
		return StencilAvgK
	}
	return StencilCopy
}

//----------------------------------------------------------------------
// x3 faces: carry x1e and x2e, k-index fixed (3D only)

type faceX3Geom struct{}

func (faceX3Geom) Carries(v int) bool { return v == X1E || v == X2E }

func (faceX3Geom) SendRange(n, v int, x MeshIndcs) IndcsRange {
	f, _, _ := DecodeFaceSlot(n)
	r := IndcsRange{}
	r.Bks = faceFixed(x.Cks, x.Cke, f)
	r.Bke = r.Bks
	switch v {
	case X1E:
		r.Bis, r.Bie = cellFull(x.Cis, x.Cie)
		r.Bjs, r.Bje = edgeFull(x.Cjs, x.Cje)
	case X2E:
		r.Bis, r.Bie = edgeFull(x.Cis, x.Cie)
		r.Bjs, r.Bje = cellFull(x.Cjs, x.Cje)
	}
	return r
}

func (faceX3Geom) RecvRange(n, v int, x MeshIndcs, cov Coverage) IndcsRange {
	f, f1, f2 := DecodeFaceSlot(n)
	r := IndcsRange{}
	r.Bks = faceFixed(x.Ks, x.Ke, f)
	r.Bke = r.Bks
	if cov == FullFaceCoverage {
		switch v {
		case X1E:
			r.Bis, r.Bie = cellFull(x.Is, x.Ie)
			r.Bjs, r.Bje = edgeFull(x.Js, x.Je)
		case X2E:
			r.Bis, r.Bie = edgeFull(x.Is, x.Ie)
			r.Bjs, r.Bje = cellFull(x.Js, x.Je)
		}
		return r
	}
	switch v {
	case X1E:
		r.Bis, r.Bie = cellHalf(x.Is, x.Ie, f1)
		r.Bjs, r.Bje = edgeHalf(x.Js, x.Je, f2)
	case X2E:
		r.Bis, r.Bie = edgeHalf(x.Is, x.Ie, f1)
		r.Bjs, r.Bje = cellHalf(x.Js, x.Je, f2)
	}
	return r
}

func (faceX3Geom) Stencil(v int, x MeshIndcs) StencilOp {
	switch v {
	case X1E:
		return StencilAvgI
	case X2E:
		return StencilAvgJ
	}
	return StencilCopy
}

//----------------------------------------------------------------------
// x1x2 edges: carry x3e only, i- and j-index fixed, free axis x3

type edgeX1X2Geom struct{}

func (edgeX1X2Geom) Carries(v int) bool { return v == X3E }

func (edgeX1X2Geom) SendRange(n, v int, x MeshIndcs) IndcsRange {
	s1, s2, _ := DecodeEdgeSlot(n)
	r := IndcsRange{}
	r.Bis = faceFixed(x.Cis, x.Cie, s1)
	r.Bie = r.Bis
	r.Bjs = faceFixed(x.Cjs, x.Cje, s2)
	r.Bje = r.Bjs
	r.Bks, r.Bke = cellFull(x.Cks, x.Cke)
	return r
}

func (edgeX1X2Geom) RecvRange(n, v int, x MeshIndcs, cov Coverage) IndcsRange {
	s1, s2, g := DecodeEdgeSlot(n)
	r := IndcsRange{}
	r.Bis = faceFixed(x.Is, x.Ie, s1)
	r.Bie = r.Bis
	r.Bjs = faceFixed(x.Js, x.Je, s2)
	r.Bje = r.Bjs
	if cov == FullFaceCoverage {
		r.Bks, r.Bke = cellFull(x.Ks, x.Ke)
	} else {
		r.Bks, r.Bke = cellHalf(x.Ks, x.Ke, g)
	}
	return r
}

func (edgeX1X2Geom) Stencil(v int, x MeshIndcs) StencilOp {
	if x.TwoD || x.OneD {
		return StencilCopy
	}
	return StencilAvgK
}

//----------------------------------------------------------------------
// x3x1 edges: carry x2e only, k- and i-index fixed, free axis x2

type edgeX3X1Geom struct{}

func (edgeX3X1Geom) Carries(v int) bool { return v == X2E }

func (edgeX3X1Geom) SendRange(n, v int, x MeshIndcs) IndcsRange {
	s1, s2, _ := DecodeEdgeSlot(n)
	r := IndcsRange{}
	r.Bks = faceFixed(x.Cks, x.Cke, s1)
	r.Bke = r.Bks
	r.Bis = faceFixed(x.Cis, x.Cie, s2)
	r.Bie = r.Bis
	r.Bjs, r.Bje = cellFull(x.Cjs, x.Cje)
	return r
}

func (edgeX3X1Geom) RecvRange(n, v int, x MeshIndcs, cov Coverage) IndcsRange {
	s1, s2, g := DecodeEdgeSlot(n)
	r := IndcsRange{}
	r.Bks = faceFixed(x.Ks, x.Ke, s1)
	r.Bke = r.Bks
	r.Bis = faceFixed(x.Is, x.Ie, s2)
	r.Bie = r.Bis
	if cov == FullFaceCoverage {
		r.Bjs, r.Bje = cellFull(x.Js, x.Je)
	} else {
		r.Bjs, r.Bje = cellHalf(x.Js, x.Je, g)
	}
	return r
}

func (edgeX3X1Geom) Stencil(v int, x MeshIndcs) StencilOp {
	return StencilAvgJ
}

//----------------------------------------------------------------------
// x2x3 edges: carry x1e only, j- and k-index fixed, free axis x1

type edgeX2X3Geom struct{}

func (edgeX2X3Geom) Carries(v int) bool { return v == X1E }

func (edgeX2X3Geom) SendRange(n, v int, x MeshIndcs) IndcsRange {
	s1, s2, _ := DecodeEdgeSlot(n)
	r := IndcsRange{}
	r.Bjs = faceFixed(x.Cjs, x.Cje, s1)
	r.Bje = r.Bjs
	r.Bks = faceFixed(x.Cks, x.Cke, s2)
	r.Bke = r.Bks
	r.Bis, r.Bie = cellFull(x.Cis, x.Cie)
	return r
}

func (edgeX2X3Geom) RecvRange(n, v int, x MeshIndcs, cov Coverage) IndcsRange {
	s1, s2, g := DecodeEdgeSlot(n)
	r := IndcsRange{}
	r.Bjs = faceFixed(x.Js, x.Je, s1)
	r.Bje = r.Bjs
	r.Bks = faceFixed(x.Ks, x.Ke, s2)
	r.Bke = r.Bks
	if cov == FullFaceCoverage {
		r.Bis, r.Bie = cellFull(x.Is, x.Ie)
	} else {
		r.Bis, r.Bie = cellHalf(x.Is, x.Ie, g)
	}
	return r
}

func (edgeX2X3Geom) Stencil(v int, x MeshIndcs) StencilOp {
	return StencilAvgI
}
