package mesh

// MeshIndcs holds the cell index bounds shared by every block in a work
// unit. The regular-mesh bounds (Is..Ke) address the block's own cells,
// the coarse bounds (Cis..Cke) address the same region restricted one
// level, used when exchanging with a coarser neighbor. Collapsed
// dimensions carry the bounds [0,0].
type MeshIndcs struct {
	Ng            int // ghost zones per side
	Nx1, Nx2, Nx3 int // active cells per block

	Is, Ie int
	Js, Je int
	Ks, Ke int

	Cis, Cie int
	Cjs, Cje int
	Cks, Cke int

	OneD, TwoD, ThreeD bool
}

func NewMeshIndcs(nx1, nx2, nx3, ng int) MeshIndcs {
	x := MeshIndcs{
		Ng:  ng,
		Nx1: nx1, Nx2: nx2, Nx3: nx3,
	}
	x.Is = ng
	x.Ie = ng + nx1 - 1
	x.Cis = ng
	x.Cie = ng + cnx(nx1) - 1
	if nx2 > 1 {
		x.Js = ng
		x.Je = ng + nx2 - 1
		x.Cjs = ng
		x.Cje = ng + cnx(nx2) - 1
	}
	if nx3 > 1 {
		x.Ks = ng
		x.Ke = ng + nx3 - 1
		x.Cks = ng
		x.Cke = ng + cnx(nx3) - 1
	}
	x.OneD = nx2 == 1
	x.TwoD = nx2 > 1 && nx3 == 1
	x.ThreeD = nx3 > 1
	return x
}

// cnx is the coarse cell count of a dimension (collapsed dims stay 1)
func cnx(nx int) int {
	if nx > 1 {
		return nx / 2
	}
	return 1
}

// FineIndex maps a coarse-mesh index to the corresponding fine-mesh
// index: fine = 2*coarse - cstart, where cstart is the coarse starting
// index along that axis.
func FineIndex(coarse, cstart int) int {
	return 2*coarse - cstart
}

// IndcsRange is the inclusive index footprint of one buffer component
// along the three logical axes. Fixed axes have Bis==Bie etc.
type IndcsRange struct {
	Bis, Bie int
	Bjs, Bje int
	Bks, Bke int
}

func (r IndcsRange) Ni() int { return r.Bie - r.Bis + 1 }
func (r IndcsRange) Nj() int { return r.Bje - r.Bjs + 1 }
func (r IndcsRange) Nk() int { return r.Bke - r.Bks + 1 }

// Count is the number of samples in the footprint (0 for an empty range)
func (r IndcsRange) Count() int {
	if r.Ni() <= 0 || r.Nj() <= 0 || r.Nk() <= 0 {
		return 0
	}
	return r.Ni() * r.Nj() * r.Nk()
}

// Offset flattens (i,j,k) within the footprint into a single index. The
// same flattening is used by sender and receiver, which is what makes
// the packed buffer layout agree on both ends.
func (r IndcsRange) Offset(i, j, k int) int {
	return (i - r.Bis) + r.Ni()*((j-r.Bjs)+r.Nj()*(k-r.Bks))
}
