package accumulator

import (
	"bytes"
	"errors"
	"sort"

	"golang.org/x/crypto/sha3"
)

// Domain separation tags for Merkle leaf vs internal node hashing. Mandatory
// per the design: without them, a leaf value that happens to equal the
// concatenation of two other leaves' hashes would collide with an internal
// node hash (see the S6 scenario).
var (
	merkleLeafTag = byte(0x00)
	merkleNodeTag = byte(0x01)
)

func merkleHashLeaf(x []byte) []byte {
	h := sha3.New256()
	h.Write([]byte{merkleLeafTag})
	h.Write(x)
	return h.Sum(nil)
}

func merkleHashNode(l, r []byte) []byte {
	h := sha3.New256()
	h.Write([]byte{merkleNodeTag})
	h.Write(l)
	h.Write(r)
	return h.Sum(nil)
}

// MerkleDirection indicates which side a sibling sits on in a proof step.
type MerkleDirection string

const (
	DirLeft  MerkleDirection = "L"
	DirRight MerkleDirection = "R"
)

// MerkleProofStep is one (direction, sibling) pair, leaf to root.
type MerkleProofStep struct {
	Direction MerkleDirection
	Sibling   []byte
}

// MerkleWitness is the membership witness for the Merkle accumulator: the
// path of sibling hashes from the leaf to the root.
type MerkleWitness struct {
	Index int
	Path  []MerkleProofStep
}

// MerkleAccumulator builds a fresh binary Merkle tree over a zero-padded
// (to the next power of two) data set on every Accumulate call.
type MerkleAccumulator struct {
	layers [][][]byte // layers[0] = leaf hashes, ... layers[last] = [root]
	n      int         // number of real (unpadded) data elements
	root   []byte
}

// NewMerkleAccumulator returns an empty Merkle accumulator.
func NewMerkleAccumulator() *MerkleAccumulator {
	return &MerkleAccumulator{}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Accumulate builds the tree over x, zero-padding to the next power of two.
func (m *MerkleAccumulator) Accumulate(x [][]byte) error {
	if len(x) == 0 {
		return ErrEmptyData
	}
	size := nextPow2(len(x))

	leaves := make([][]byte, size)
	for i := 0; i < size; i++ {
		if i < len(x) {
			leaves[i] = merkleHashLeaf(x[i])
		} else {
			leaves[i] = merkleHashLeaf(nil)
		}
	}

	layers := [][][]byte{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([][]byte, len(cur)/2)
		for i := 0; i < len(next); i++ {
			next[i] = merkleHashNode(cur[2*i], cur[2*i+1])
		}
		layers = append(layers, next)
		cur = next
	}

	m.layers = layers
	m.n = len(x)
	m.root = cur[0]
	return nil
}

// Witgen returns the membership proof for x[i].
func (m *MerkleAccumulator) Witgen(x [][]byte, i int) (Witness, error) {
	if m.root == nil {
		return nil, ErrNotAccumulated
	}
	if i < 0 || i >= m.n {
		return nil, ErrIndexRange
	}

	idx := i
	path := make([]MerkleProofStep, 0, len(m.layers)-1)
	for level := 0; level < len(m.layers)-1; level++ {
		layer := m.layers[level]
		if idx%2 == 0 {
			path = append(path, MerkleProofStep{Direction: DirRight, Sibling: layer[idx+1]})
		} else {
			path = append(path, MerkleProofStep{Direction: DirLeft, Sibling: layer[idx-1]})
		}
		idx /= 2
	}
	return MerkleWitness{Index: i, Path: path}, nil
}

// BatchWitgen returns membership proofs for every element of x.
func (m *MerkleAccumulator) BatchWitgen(x [][]byte) ([]Witness, error) {
	if m.root == nil {
		return nil, ErrNotAccumulated
	}
	out := make([]Witness, len(x))
	for i := range x {
		w, err := m.Witgen(x, i)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// Verify recomputes the root from leaf xi and the witness path, comparing
// against accval.
func (m *MerkleAccumulator) Verify(accval []byte, w Witness, xi []byte) bool {
	mw, ok := w.(MerkleWitness)
	if !ok {
		return false
	}
	cur := merkleHashLeaf(xi)
	for _, step := range mw.Path {
		switch step.Direction {
		case DirLeft:
			cur = merkleHashNode(step.Sibling, cur)
		case DirRight:
			cur = merkleHashNode(cur, step.Sibling)
		default:
			return false
		}
	}
	return bytes.Equal(cur, accval)
}

// GetAccVal returns the current Merkle root.
func (m *MerkleAccumulator) GetAccVal() []byte {
	return m.root
}

// ToBytes serialises the accumulator value (the root is already canonical
// bytes).
func (m *MerkleAccumulator) ToBytes() []byte {
	return m.root
}

// --- Sorted Merkle (universal, supports non-membership) ---

// SortedMerkleWitness extends MerkleWitness with the leaf value actually
// committed at that index, needed because the sorted tree's indexing does
// not match the caller's original ordering.
type SortedMerkleWitness struct {
	MerkleWitness
	Leaf []byte
}

// SortedMerkleNonMemWitness proves x is absent: the membership witnesses of
// its immediate predecessor and successor in sorted order.
type SortedMerkleNonMemWitness struct {
	Pred SortedMerkleWitness
	Succ SortedMerkleWitness
}

// SortedMerkleAccumulator sorts the data lexicographically before building
// the tree, keeping a permutation map back to original indices so Witgen
// can still be addressed by the caller's original index.
type SortedMerkleAccumulator struct {
	base       *MerkleAccumulator
	sorted     [][]byte
	origToSort map[int]int
}

// NewSortedMerkleAccumulator returns an empty sorted-leaves Merkle
// accumulator.
func NewSortedMerkleAccumulator() *SortedMerkleAccumulator {
	return &SortedMerkleAccumulator{base: NewMerkleAccumulator()}
}

func (s *SortedMerkleAccumulator) Accumulate(x [][]byte) error {
	if len(x) == 0 {
		return ErrEmptyData
	}
	type indexed struct {
		val []byte
		idx int
	}
	tmp := make([]indexed, len(x))
	for i, v := range x {
		tmp[i] = indexed{val: v, idx: i}
	}
	sort.Slice(tmp, func(i, j int) bool { return bytes.Compare(tmp[i].val, tmp[j].val) < 0 })

	sorted := make([][]byte, len(tmp))
	origToSort := make(map[int]int, len(tmp))
	for i, e := range tmp {
		sorted[i] = e.val
		origToSort[e.idx] = i
	}

	s.sorted = sorted
	s.origToSort = origToSort
	return s.base.Accumulate(sorted)
}

func (s *SortedMerkleAccumulator) Witgen(x [][]byte, i int) (Witness, error) {
	if s.sorted == nil {
		return nil, ErrNotAccumulated
	}
	si, ok := s.origToSort[i]
	if !ok {
		return nil, ErrIndexRange
	}
	w, err := s.base.Witgen(s.sorted, si)
	if err != nil {
		return nil, err
	}
	return SortedMerkleWitness{MerkleWitness: w.(MerkleWitness), Leaf: s.sorted[si]}, nil
}

func (s *SortedMerkleAccumulator) BatchWitgen(x [][]byte) ([]Witness, error) {
	out := make([]Witness, len(x))
	for i := range x {
		w, err := s.Witgen(x, i)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func (s *SortedMerkleAccumulator) Verify(accval []byte, w Witness, xi []byte) bool {
	smw, ok := w.(SortedMerkleWitness)
	if !ok {
		return false
	}
	if !bytes.Equal(smw.Leaf, xi) {
		return false
	}
	return s.base.Verify(accval, smw.MerkleWitness, xi)
}

func (s *SortedMerkleAccumulator) GetAccVal() []byte { return s.base.GetAccVal() }
func (s *SortedMerkleAccumulator) ToBytes() []byte   { return s.base.ToBytes() }

// NonMemVerify reports false instead of an error for any malformed witness,
// matching the design's "verification returns a boolean" propagation policy.

// NonMemWitgen returns a non-membership witness for elem: the membership
// witnesses of its bracketing predecessor and successor in sorted order.
// elem must not already be present in x.
func (s *SortedMerkleAccumulator) NonMemWitgen(x [][]byte, elem []byte) (Witness, error) {
	if s.sorted == nil {
		return nil, ErrNotAccumulated
	}
	pos := sort.Search(len(s.sorted), func(i int) bool { return bytes.Compare(s.sorted[i], elem) >= 0 })
	if pos < len(s.sorted) && bytes.Equal(s.sorted[pos], elem) {
		return nil, errors.New("accumulator: element is a member")
	}

	var predW, succW MerkleWitness
	var predLeaf, succLeaf []byte
	if pos > 0 {
		w, err := s.base.Witgen(s.sorted, pos-1)
		if err != nil {
			return nil, err
		}
		predW = w.(MerkleWitness)
		predLeaf = s.sorted[pos-1]
	}
	if pos < len(s.sorted) {
		w, err := s.base.Witgen(s.sorted, pos)
		if err != nil {
			return nil, err
		}
		succW = w.(MerkleWitness)
		succLeaf = s.sorted[pos]
	}

	return SortedMerkleNonMemWitness{
		Pred: SortedMerkleWitness{MerkleWitness: predW, Leaf: predLeaf},
		Succ: SortedMerkleWitness{MerkleWitness: succW, Leaf: succLeaf},
	}, nil
}

// NonMemVerify re-derives the predecessor/successor indices from each
// witness's direction bits, checks they are adjacent, and checks elem is
// lexicographically bracketed by them (or that one side is the tree
// boundary).
func (s *SortedMerkleAccumulator) NonMemVerify(accval []byte, w Witness, elem []byte) bool {
	nmw, ok := w.(SortedMerkleNonMemWitness)
	if !ok {
		return false
	}

	havePred := nmw.Pred.Leaf != nil
	haveSucc := nmw.Succ.Leaf != nil
	if !havePred && !haveSucc {
		return false
	}

	if havePred {
		if bytes.Compare(nmw.Pred.Leaf, elem) >= 0 {
			return false
		}
		if !s.base.Verify(accval, nmw.Pred.MerkleWitness, nmw.Pred.Leaf) {
			return false
		}
	}
	if haveSucc {
		if bytes.Compare(nmw.Succ.Leaf, elem) <= 0 {
			return false
		}
		if !s.base.Verify(accval, nmw.Succ.MerkleWitness, nmw.Succ.Leaf) {
			return false
		}
	}
	if havePred && haveSucc {
		predIdx := merkleLeafIndex(nmw.Pred.MerkleWitness)
		succIdx := merkleLeafIndex(nmw.Succ.MerkleWitness)
		if succIdx != predIdx+1 {
			return false
		}
	}
	return true
}

// merkleLeafIndex reconstructs the leaf's original sorted-tree index from
// its proof's direction bits (bit i of the index is 0 for DirRight, 1 for
// DirLeft, read from the leaf level up).
func merkleLeafIndex(w MerkleWitness) int {
	idx := 0
	for level := len(w.Path) - 1; level >= 0; level-- {
		idx <<= 1
		if w.Path[level].Direction == DirLeft {
			idx |= 1
		}
	}
	return idx
}
