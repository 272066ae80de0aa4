package pcs

import (
	"bytes"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensys/zkvm/transcript"
)

func testSRS(t *testing.T, size uint64) *kzg.SRS {
	t.Helper()
	srs, err := NewSRS(size, big.NewInt(42))
	require.NoError(t, err)
	return srs
}

func mlOf(vs ...uint64) polynomial.MultiLin {
	res := make(polynomial.MultiLin, len(vs))
	for i, v := range vs {
		res[i].SetUint64(v)
	}
	return res
}

func randomPoint(n int, seed uint64) []fr.Element {
	res := make([]fr.Element, n)
	var s fr.Element
	s.SetUint64(seed)
	for i := range res {
		s.Square(&s)
		s.Add(&s, &s)
		res[i].Set(&s)
	}
	return res
}

// buildGroups returns matching prover and verifier views of two claim
// groups: a three-variable group with two polynomials and a two-variable
// group with one.
func buildGroups(t *testing.T, pk kzg.ProvingKey) ([]Group, []Group) {
	t.Helper()

	p1 := mlOf(3, 1, 4, 1, 5, 9, 2, 6)
	p2 := mlOf(2, 7, 1, 8, 2, 8, 1, 8)
	p3 := mlOf(11, 13, 17, 19)

	pt1 := randomPoint(3, 5)
	pt2 := randomPoint(2, 7)

	d1, err := Commit(p1, pk)
	require.NoError(t, err)
	d2, err := Commit(p2, pk)
	require.NoError(t, err)
	d3, err := Commit(p3, pk)
	require.NoError(t, err)

	v1 := p1.Evaluate(pt1, nil)
	v2 := p2.Evaluate(pt1, nil)
	v3 := p3.Evaluate(pt2, nil)

	prover := []Group{
		{
			Point:         pt1,
			Polynomials:   [][]fr.Element{p1, p2},
			Digests:       []kzg.Digest{d1, d2},
			ClaimedValues: []fr.Element{v1, v2},
		},
		{
			Point:         pt2,
			Polynomials:   [][]fr.Element{p3},
			Digests:       []kzg.Digest{d3},
			ClaimedValues: []fr.Element{v3},
		},
	}
	verifier := []Group{
		{Point: pt1, Digests: []kzg.Digest{d1, d2}, ClaimedValues: []fr.Element{v1, v2}},
		{Point: pt2, Digests: []kzg.Digest{d3}, ClaimedValues: []fr.Element{v3}},
	}
	return prover, verifier
}

func TestBatchOpenVerify(t *testing.T) {
	srs := testSRS(t, 16)
	prover, verifier := buildGroups(t, srs.Pk)

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)

	err = BatchVerify(verifier, proof, srs.Vk, transcript.New(sha256.New))
	assert.NoError(t, err)
}

func TestRejectsTamperedValue(t *testing.T) {
	srs := testSRS(t, 16)
	prover, verifier := buildGroups(t, srs.Pk)

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)

	var one fr.Element
	one.SetOne()
	verifier[0].ClaimedValues[1].Add(&verifier[0].ClaimedValues[1], &one)
	err = BatchVerify(verifier, proof, srs.Vk, transcript.New(sha256.New))
	assert.Error(t, err)
}

func TestRejectsTamperedFoldedDigest(t *testing.T) {
	srs := testSRS(t, 16)
	prover, verifier := buildGroups(t, srs.Pk)

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)

	proof.Groups[0].FoldedDigests[0] = proof.Groups[0].FoldedDigests[1]
	err = BatchVerify(verifier, proof, srs.Vk, transcript.New(sha256.New))
	assert.Error(t, err)
}

func TestRejectsGroupCountMismatch(t *testing.T) {
	srs := testSRS(t, 16)
	prover, verifier := buildGroups(t, srs.Pk)

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)

	err = BatchVerify(verifier[:1], proof, srs.Vk, transcript.New(sha256.New))
	assert.ErrorIs(t, err, ErrGroupShape)
}

func TestSingleVariableGroup(t *testing.T) {
	// n = 1 has no folded layers, only the base openings
	srs := testSRS(t, 4)
	p := mlOf(21, 34)
	pt := randomPoint(1, 9)
	d, err := Commit(p, srs.Pk)
	require.NoError(t, err)
	v := p.Evaluate(pt, nil)

	prover := []Group{{
		Point:         pt,
		Polynomials:   [][]fr.Element{p},
		Digests:       []kzg.Digest{d},
		ClaimedValues: []fr.Element{v},
	}}
	verifier := []Group{{Point: pt, Digests: []kzg.Digest{d}, ClaimedValues: []fr.Element{v}}}

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)
	assert.Empty(t, proof.Groups[0].FoldedDigests)

	err = BatchVerify(verifier, proof, srs.Vk, transcript.New(sha256.New))
	assert.NoError(t, err)
}

func TestZeroVariableGroup(t *testing.T) {
	// n = 0 is a constant polynomial: the digest pins the value, there is
	// nothing to fold and nothing to open
	srs := testSRS(t, 4)
	p := mlOf(42)
	d, err := Commit(p, srs.Pk)
	require.NoError(t, err)

	prover := []Group{{
		Point:         []fr.Element{},
		Polynomials:   [][]fr.Element{p},
		Digests:       []kzg.Digest{d},
		ClaimedValues: []fr.Element{p[0]},
	}}
	verifier := []Group{{Point: []fr.Element{}, Digests: []kzg.Digest{d}, ClaimedValues: []fr.Element{p[0]}}}

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)
	assert.Empty(t, proof.Groups[0].FoldedDigests)

	err = BatchVerify(verifier, proof, srs.Vk, transcript.New(sha256.New))
	assert.NoError(t, err)

	var one fr.Element
	one.SetOne()
	verifier[0].ClaimedValues[0].Add(&verifier[0].ClaimedValues[0], &one)
	err = BatchVerify(verifier, proof, srs.Vk, transcript.New(sha256.New))
	assert.ErrorIs(t, err, ErrFoldMismatch)
}

func TestShorterPolynomialInGroup(t *testing.T) {
	// a polynomial shorter than the group size commits to the same value
	// zero-padded; its claim is the multilinear evaluation of the padded
	// vector
	srs := testSRS(t, 16)
	p1 := mlOf(3, 1, 4, 1, 5, 9, 2, 6)
	p2 := mlOf(2, 7, 1, 8, 0, 0, 0, 0)
	pt := randomPoint(3, 11)

	d1, err := Commit(p1, srs.Pk)
	require.NoError(t, err)
	d2, err := Commit(p2[:4], srs.Pk)
	require.NoError(t, err)

	v1 := p1.Evaluate(pt, nil)
	v2 := p2.Evaluate(pt, nil)

	prover := []Group{{
		Point:         pt,
		Polynomials:   [][]fr.Element{p1, p2[:4]},
		Digests:       []kzg.Digest{d1, d2},
		ClaimedValues: []fr.Element{v1, v2},
	}}
	verifier := []Group{{Point: pt, Digests: []kzg.Digest{d1, d2}, ClaimedValues: []fr.Element{v1, v2}}}

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)
	err = BatchVerify(verifier, proof, srs.Vk, transcript.New(sha256.New))
	assert.NoError(t, err)
}

func TestProofSerializationRoundTrip(t *testing.T) {
	srs := testSRS(t, 16)
	prover, verifier := buildGroups(t, srs.Pk)

	proof, err := BatchOpen(prover, srs.Pk, transcript.New(sha256.New), 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = proof.WriteTo(&buf)
	require.NoError(t, err)

	var decoded BatchedOpeningProof
	_, err = decoded.ReadFrom(&buf)
	require.NoError(t, err)

	err = BatchVerify(verifier, &decoded, srs.Vk, transcript.New(sha256.New))
	assert.NoError(t, err)
}
