// Package bvals implements the flux-correction boundary exchange for
// edge-located flux fields at fine/coarse block boundaries: fine-side
// fluxes are conservatively restricted onto the coarse index space and
// substituted for the coarse-side values, over a dual local/remote
// delivery path driven by an external task scheduler.
package bvals

import "github.com/notargets/goamr/mesh"

// EdgeArray is one edge-located flux orientation for every block in the
// work unit: a flat 4-index tensor addressed (block, k, j, i). Flat
// storage keeps the hot loops kernel-compatible.
type EdgeArray struct {
	NMb, Nk, Nj, Ni int
	Data            []float64
}

func NewEdgeArray(nmb, nk, nj, ni int) *EdgeArray {
	return &EdgeArray{
		NMb: nmb, Nk: nk, Nj: nj, Ni: ni,
		Data: make([]float64, nmb*nk*nj*ni),
	}
}

func (e *EdgeArray) idx(m, k, j, i int) int {
	return ((m*e.Nk+k)*e.Nj+j)*e.Ni + i
}

func (e *EdgeArray) At(m, k, j, i int) float64 {
	return e.Data[e.idx(m, k, j, i)]
}

func (e *EdgeArray) Set(m, k, j, i int, val float64) {
	e.Data[e.idx(m, k, j, i)] = val
}

func (e *EdgeArray) Fill(val float64) {
	for i := range e.Data {
		e.Data[i] = val
	}
}

// FillBlock assigns val at every sample of block m
func (e *EdgeArray) FillBlock(m int, val float64) {
	base := e.idx(m, 0, 0, 0)
	for i := 0; i < e.Nk*e.Nj*e.Ni; i++ {
		e.Data[base+i] = val
	}
}

// SetFunc assigns val(k,j,i) at every sample of every block
func (e *EdgeArray) SetFunc(f func(k, j, i int) float64) {
	for m := 0; m < e.NMb; m++ {
		for k := 0; k < e.Nk; k++ {
			for j := 0; j < e.Nj; j++ {
				for i := 0; i < e.Ni; i++ {
					e.Set(m, k, j, i, f(k, j, i))
				}
			}
		}
	}
}

// EdgeField is the triple of edge-located flux orientations (EMFs for
// face-centered fields). X1e lies along x1, X2e along x2, X3e along x3.
type EdgeField struct {
	X1e, X2e, X3e *EdgeArray
}

// NewEdgeField sizes the three orientations for nmb blocks with bounds
// x. Edge-located data needs one extra sample past the last cell along
// every non-collapsed axis; collapsed axes hold a single plane.
func NewEdgeField(nmb int, x mesh.MeshIndcs) *EdgeField {
	ni := x.Nx1 + 2*x.Ng + 1
	nj := 1
	if x.Nx2 > 1 {
		nj = x.Nx2 + 2*x.Ng + 1
	}
	nk := 1
	if x.Nx3 > 1 {
		nk = x.Nx3 + 2*x.Ng + 1
	}
	return &EdgeField{
		X1e: NewEdgeArray(nmb, nk, nj, ni),
		X2e: NewEdgeArray(nmb, nk, nj, ni),
		X3e: NewEdgeArray(nmb, nk, nj, ni),
	}
}

// Comp returns the orientation for component index v (mesh.X1E..X3E)
func (f *EdgeField) Comp(v int) *EdgeArray {
	switch v {
	case mesh.X1E:
		return f.X1e
	case mesh.X2E:
		return f.X2e
	}
	return f.X3e
}
