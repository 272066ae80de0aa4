// Package pcs implements the engine's polynomial commitment layer: a
// multilinear scheme built on gnark-crypto's univariate KZG.
//
// A multilinear polynomial is committed through its evaluation vector over
// the Boolean hypercube, read as univariate coefficients. An opening at a
// point (r₀, ..., rₙ₋₁) is reduced to univariate claims by the split-and-fold
// identity: writing h₀ for the committed polynomial and
//
//	hᵢ₊₁(Y) = (1-ρᵢ)·evenᵢ(Y) + ρᵢ·oddᵢ(Y),  hᵢ(X) = evenᵢ(X²) + X·oddᵢ(X²)
//
// with ρᵢ the point coordinate binding the least significant remaining
// index bit, the final constant hₙ is the claimed evaluation. The prover
// commits to the intermediate hᵢ and the verifier checks the fold relation
// at a random β via three batched KZG openings (at β, -β and β²).
//
// Claims at the same point are first merged by a random linear combination,
// homomorphically on the commitment side.
package pcs

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/consensys/zkvm/internal/parallel"
	"github.com/consensys/zkvm/transcript"
)

var (
	// ErrFoldMismatch signals that a fold-consistency check failed.
	ErrFoldMismatch = errors.New("pcs: fold consistency check failed")
	// ErrGroupShape signals inconsistent claim-group dimensions.
	ErrGroupShape = errors.New("pcs: inconsistent claim group")
)

// NewSRS generates a structured reference string large enough to commit to
// vectors of the given size. Test setups may pass a fixed tau.
func NewSRS(size uint64, tau *big.Int) (*kzg.SRS, error) {
	if size < 2 {
		size = 2
	}
	return kzg.NewSRS(size, tau)
}

// Commit commits to the evaluation vector of a multilinear polynomial.
func Commit(v []fr.Element, pk kzg.ProvingKey, nbTasks ...int) (kzg.Digest, error) {
	return kzg.Commit(v, pk, nbTasks...)
}

// Group is a set of opening claims sharing one opening point. The verifier
// leaves Polynomials nil.
type Group struct {
	Point         []fr.Element
	Polynomials   [][]fr.Element
	Digests       []kzg.Digest
	ClaimedValues []fr.Element
}

// GroupProof proves all claims of one group.
type GroupProof struct {
	// FoldedDigests commits to h₁ ... hₙ₋₁.
	FoldedDigests []kzg.Digest
	// Openings of h₀ ... hₙ₋₁ at β and -β, and of h₁ ... hₙ₋₁ at β².
	AtBeta       kzg.BatchOpeningProof
	AtNegBeta    kzg.BatchOpeningProof
	AtBetaSquare kzg.BatchOpeningProof
}

// BatchedOpeningProof proves a batch of claim groups. It is produced and
// checked by exactly one BatchOpen / BatchVerify call per session.
type BatchedOpeningProof struct {
	Groups []GroupProof
}

func groupChallengeNames(nbGroups int) []string {
	names := make([]string, 0, 2*nbGroups)
	for g := 0; g < nbGroups; g++ {
		names = append(names, fmt.Sprintf("pcs.%d.rho", g), fmt.Sprintf("pcs.%d.beta", g))
	}
	return names
}

// BatchOpen opens all groups in one batched call.
func BatchOpen(groups []Group, pk kzg.ProvingKey, tr *transcript.Transcript, nbTasks int) (*BatchedOpeningProof, error) {
	phase, err := tr.Phase(groupChallengeNames(len(groups))...)
	if err != nil {
		return nil, err
	}

	res := &BatchedOpeningProof{Groups: make([]GroupProof, len(groups))}
	for g := range groups {
		if err := openGroup(&groups[g], &res.Groups[g], pk, phase, nbTasks); err != nil {
			return nil, fmt.Errorf("group %d: %w", g, err)
		}
	}
	return res, nil
}

func openGroup(group *Group, proof *GroupProof, pk kzg.ProvingKey, phase *transcript.Phase, nbTasks int) error {
	n := len(group.Point)
	size := 1 << n
	if len(group.Polynomials) != len(group.ClaimedValues) || len(group.Polynomials) != len(group.Digests) {
		return ErrGroupShape
	}

	rho, err := deriveGroupRLC(group, phase)
	if err != nil {
		return err
	}

	// zero-variable group: the polynomials are constants and their digests
	// already pin the claimed values, no fold layers or openings to emit;
	// β is drawn anyway to stay aligned with the verifier
	if n == 0 {
		_, err := phase.Challenge()
		return err
	}

	// combined = ∑ ρⁱ·polyᵢ
	combined := make([]fr.Element, size)
	parallel.Execute(size, func(start, end int) {
		var c, tmp fr.Element
		c.SetOne()
		for _, p := range group.Polynomials {
			for j := start; j < end; j++ {
				if j < len(p) {
					tmp.Mul(&p[j], &c)
					combined[j].Add(&combined[j], &tmp)
				}
			}
			c.Mul(&c, &rho)
		}
	}, nbTasks)

	// fold layers h₀ ... hₙ₋₁; the fold binds the least significant index
	// bit, i.e. the last point coordinate first
	layers := make([][]fr.Element, n)
	layers[0] = combined
	for i := 1; i < n; i++ {
		prev := layers[i-1]
		rhoI := group.Point[n-i]
		next := make([]fr.Element, len(prev)/2)
		var d fr.Element
		for j := range next {
			// (1-ρ)·even + ρ·odd
			d.Sub(&prev[2*j+1], &prev[2*j])
			d.Mul(&d, &rhoI)
			next[j].Add(&prev[2*j], &d)
		}
		layers[i] = next
	}

	proof.FoldedDigests = make([]kzg.Digest, n-1)
	for i := 1; i < n; i++ {
		if proof.FoldedDigests[i-1], err = kzg.Commit(layers[i], pk, nbTasks); err != nil {
			return err
		}
	}
	for i := range proof.FoldedDigests {
		if err = phase.Bind(proof.FoldedDigests[i].Marshal()); err != nil {
			return err
		}
	}

	beta, err := phase.Challenge()
	if err != nil {
		return err
	}
	var negBeta, betaSquare fr.Element
	negBeta.Neg(&beta)
	betaSquare.Square(&beta)

	digests := append([]kzg.Digest{digestRLC(group.Digests, &rho)}, proof.FoldedDigests...)
	if proof.AtBeta, err = kzg.BatchOpenSinglePoint(layers, digests, beta, sha256.New(), pk); err != nil {
		return err
	}
	if proof.AtNegBeta, err = kzg.BatchOpenSinglePoint(layers, digests, negBeta, sha256.New(), pk); err != nil {
		return err
	}
	if n > 1 {
		if proof.AtBetaSquare, err = kzg.BatchOpenSinglePoint(layers[1:], digests[1:], betaSquare, sha256.New(), pk); err != nil {
			return err
		}
	}
	return nil
}

// BatchVerify checks a batched opening proof. Groups carry digests, points
// and claimed values only.
func BatchVerify(groups []Group, proof *BatchedOpeningProof, vk kzg.VerifyingKey, tr *transcript.Transcript) error {
	if len(proof.Groups) != len(groups) {
		return ErrGroupShape
	}
	phase, err := tr.Phase(groupChallengeNames(len(groups))...)
	if err != nil {
		return err
	}
	for g := range groups {
		if err := verifyGroup(&groups[g], &proof.Groups[g], vk, phase); err != nil {
			return fmt.Errorf("group %d: %w", g, err)
		}
	}
	return nil
}

func verifyGroup(group *Group, proof *GroupProof, vk kzg.VerifyingKey, phase *transcript.Phase) error {
	n := len(group.Point)
	if len(group.Digests) != len(group.ClaimedValues) {
		return ErrGroupShape
	}
	if n == 0 {
		return verifyConstantGroup(group, proof, vk, phase)
	}
	if len(proof.FoldedDigests) != n-1 {
		return ErrGroupShape
	}

	rho, err := deriveGroupRLC(group, phase)
	if err != nil {
		return err
	}

	// combined claimed value ∑ ρⁱ·vᵢ
	var value, c, tmp fr.Element
	c.SetOne()
	for i := range group.ClaimedValues {
		tmp.Mul(&group.ClaimedValues[i], &c)
		value.Add(&value, &tmp)
		c.Mul(&c, &rho)
	}

	for i := range proof.FoldedDigests {
		if err = phase.Bind(proof.FoldedDigests[i].Marshal()); err != nil {
			return err
		}
	}
	beta, err := phase.Challenge()
	if err != nil {
		return err
	}
	var negBeta, betaSquare fr.Element
	negBeta.Neg(&beta)
	betaSquare.Square(&beta)

	digests := append([]kzg.Digest{digestRLC(group.Digests, &rho)}, proof.FoldedDigests...)
	if err = kzg.BatchVerifySinglePoint(digests, &proof.AtBeta, beta, sha256.New(), vk); err != nil {
		return err
	}
	if err = kzg.BatchVerifySinglePoint(digests, &proof.AtNegBeta, negBeta, sha256.New(), vk); err != nil {
		return err
	}
	if n > 1 {
		if err = kzg.BatchVerifySinglePoint(digests[1:], &proof.AtBetaSquare, betaSquare, sha256.New(), vk); err != nil {
			return err
		}
	}
	if len(proof.AtBeta.ClaimedValues) != n || len(proof.AtNegBeta.ClaimedValues) != n {
		return ErrGroupShape
	}
	if n > 1 && len(proof.AtBetaSquare.ClaimedValues) != n-1 {
		return ErrGroupShape
	}

	// fold relation: hᵢ₊₁(β²) = (1-ρᵢ)·(hᵢ(β)+hᵢ(-β))/2 + ρᵢ·(hᵢ(β)-hᵢ(-β))/(2β)
	var twoInv, twoBetaInv fr.Element
	twoInv.SetUint64(2)
	twoBetaInv.Double(&beta)
	twoBetaInv.Inverse(&twoBetaInv)
	twoInv.Inverse(&twoInv)

	var even, odd, lhs, rhs fr.Element
	for i := 0; i < n; i++ {
		rhoI := group.Point[n-1-i]
		even.Add(&proof.AtBeta.ClaimedValues[i], &proof.AtNegBeta.ClaimedValues[i])
		even.Mul(&even, &twoInv)
		odd.Sub(&proof.AtBeta.ClaimedValues[i], &proof.AtNegBeta.ClaimedValues[i])
		odd.Mul(&odd, &twoBetaInv)
		lhs.Sub(&odd, &even)
		lhs.Mul(&lhs, &rhoI)
		lhs.Add(&lhs, &even)
		if i == n-1 {
			rhs = value
		} else {
			rhs = proof.AtBetaSquare.ClaimedValues[i]
		}
		if !lhs.Equal(&rhs) {
			return ErrFoldMismatch
		}
	}
	return nil
}

// verifyConstantGroup checks a zero-variable group: a constant polynomial
// of value v commits to v·[1]₁, so the combined digest is compared to the
// combined claimed value directly.
func verifyConstantGroup(group *Group, proof *GroupProof, vk kzg.VerifyingKey, phase *transcript.Phase) error {
	if len(proof.FoldedDigests) != 0 {
		return ErrGroupShape
	}
	rho, err := deriveGroupRLC(group, phase)
	if err != nil {
		return err
	}
	if _, err = phase.Challenge(); err != nil {
		return err
	}

	var value, c, tmp fr.Element
	c.SetOne()
	for i := range group.ClaimedValues {
		tmp.Mul(&group.ClaimedValues[i], &c)
		value.Add(&value, &tmp)
		c.Mul(&c, &rho)
	}

	var b big.Int
	var expected bn254.G1Affine
	expected.ScalarMultiplication(&vk.G1, value.BigInt(&b))
	combined := digestRLC(group.Digests, &rho)
	if !expected.Equal(&combined) {
		return ErrFoldMismatch
	}
	return nil
}

// deriveGroupRLC binds the group's public data and draws the combination
// challenge.
func deriveGroupRLC(group *Group, phase *transcript.Phase) (fr.Element, error) {
	var zero fr.Element
	for i := range group.Digests {
		if err := phase.Bind(group.Digests[i].Marshal()); err != nil {
			return zero, err
		}
	}
	if err := phase.BindElements(group.Point); err != nil {
		return zero, err
	}
	if err := phase.BindElements(group.ClaimedValues); err != nil {
		return zero, err
	}
	return phase.Challenge()
}

func digestRLC(digests []kzg.Digest, rho *fr.Element) kzg.Digest {
	var res bn254.G1Affine
	if len(digests) == 1 {
		res.Set(&digests[0])
		return res
	}
	// ∑ ρⁱ·Dᵢ
	if _, err := res.Fold(digests, *rho, ecc.MultiExpConfig{}); err != nil {
		// Fold only errors on empty input, which ErrGroupShape rules out
		panic(err)
	}
	return res
}
