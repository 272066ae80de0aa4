// Package opening accumulates the evaluation claims emitted by the proof
// pipeline's stages and settles them against the commitment layer in a
// single batched call.
package opening

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/consensys/zkvm/pcs"
	"github.com/consensys/zkvm/transcript"
)

var (
	// ErrClaimConflict signals two claims for the same polynomial at the
	// same point with different values.
	ErrClaimConflict = errors.New("opening: conflicting claims for one polynomial")
	// ErrFinalized signals a second Finalize call or an append after
	// finalization.
	ErrFinalized = errors.New("opening: accumulator already finalized")
	// ErrUnknownPolynomial signals a claim against an unregistered
	// polynomial.
	ErrUnknownPolynomial = errors.New("opening: unknown polynomial")
)

// Claim asserts that the committed polynomial Label evaluates to Value at
// Point. Stage records the pipeline stage that produced it.
type Claim struct {
	Stage string
	Label string
	Point []fr.Element
	Value fr.Element
}

func samePoint(a, b []fr.Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(&b[i]) {
			return false
		}
	}
	return true
}

// accumulator is the role-independent part: ordered claims, grouped by
// opening point, deduplicated on (label, point).
type accumulator struct {
	claims    []Claim
	finalized bool
}

// append merges the claim into the list. A duplicate (label, point) with a
// matching value is dropped; a mismatch is reported.
func (a *accumulator) append(c Claim) error {
	if a.finalized {
		return ErrFinalized
	}
	for i := range a.claims {
		if a.claims[i].Label == c.Label && samePoint(a.claims[i].Point, c.Point) {
			if !a.claims[i].Value.Equal(&c.Value) {
				return fmt.Errorf("%w: %s at stages %s/%s", ErrClaimConflict, c.Label, a.claims[i].Stage, c.Stage)
			}
			return nil
		}
	}
	a.claims = append(a.claims, c)
	return nil
}

// groups splits the claims by opening point, preserving first-appearance
// order on both groups and members.
func (a *accumulator) groups() [][]int {
	var res [][]int
	var points [][]fr.Element
	for i := range a.claims {
		found := false
		for g := range points {
			if samePoint(points[g], a.claims[i].Point) {
				res[g] = append(res[g], i)
				found = true
				break
			}
		}
		if !found {
			points = append(points, a.claims[i].Point)
			res = append(res, []int{i})
		}
	}
	return res
}

// Claims returns the accumulated claims in append order.
func (a *accumulator) Claims() []Claim {
	return a.claims
}

// ProverAccumulator records claims during proving, together with the dense
// polynomial data needed to answer the final opening call without
// recomputation from the trace.
type ProverAccumulator struct {
	accumulator
	polys   map[string][]fr.Element
	digests map[string]kzg.Digest
}

// NewProver returns an empty prover-side accumulator.
func NewProver() *ProverAccumulator {
	return &ProverAccumulator{
		polys:   make(map[string][]fr.Element),
		digests: make(map[string]kzg.Digest),
	}
}

// RegisterPolynomial retains the committed polynomial's evaluation vector
// and digest under the given label.
func (a *ProverAccumulator) RegisterPolynomial(label string, values []fr.Element, digest kzg.Digest) {
	a.polys[label] = values
	a.digests[label] = digest
}

// Values returns the registered evaluation vector for label.
func (a *ProverAccumulator) Values(label string) ([]fr.Element, bool) {
	v, ok := a.polys[label]
	return v, ok
}

// Append records a claim produced by a stage. A conflicting duplicate is an
// internal invariant violation on the prover side, hence a panic.
func (a *ProverAccumulator) Append(stage, label string, point []fr.Element, value fr.Element) {
	if _, ok := a.polys[label]; !ok {
		panic(fmt.Sprintf("opening: claim for unregistered polynomial %q", label))
	}
	if err := a.append(Claim{Stage: stage, Label: label, Point: point, Value: value}); err != nil {
		panic(err)
	}
}

// Finalize settles every accumulated claim through one batched commitment
// opening. It may be called once.
func (a *ProverAccumulator) Finalize(pk kzg.ProvingKey, tr *transcript.Transcript, nbTasks int) (*pcs.BatchedOpeningProof, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	a.finalized = true

	groups := make([]pcs.Group, 0)
	for _, members := range a.groups() {
		g := pcs.Group{Point: a.claims[members[0]].Point}
		for _, i := range members {
			c := &a.claims[i]
			g.Polynomials = append(g.Polynomials, a.polys[c.Label])
			g.Digests = append(g.Digests, a.digests[c.Label])
			g.ClaimedValues = append(g.ClaimedValues, c.Value)
		}
		groups = append(groups, g)
	}
	return pcs.BatchOpen(groups, pk, tr, nbTasks)
}

// VerifierAccumulator records the claims the verifier reconstructs while
// replaying the stages, checks duplicates for consistency and settles the
// batch against the commitment layer.
type VerifierAccumulator struct {
	accumulator
	digests map[string]kzg.Digest
}

// NewVerifier returns an empty verifier-side accumulator.
func NewVerifier() *VerifierAccumulator {
	return &VerifierAccumulator{digests: make(map[string]kzg.Digest)}
}

// RegisterCommitment records the commitment for label, as read from the
// proof or the preprocessing.
func (a *VerifierAccumulator) RegisterCommitment(label string, digest kzg.Digest) {
	a.digests[label] = digest
}

// Append records a claim. Conflicting duplicates reject the proof.
func (a *VerifierAccumulator) Append(stage, label string, point []fr.Element, value fr.Element) error {
	if _, ok := a.digests[label]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolynomial, label)
	}
	return a.append(Claim{Stage: stage, Label: label, Point: point, Value: value})
}

// Value returns the accumulated claim value for (label, point).
func (a *VerifierAccumulator) Value(label string, point []fr.Element) (fr.Element, bool) {
	for i := range a.claims {
		if a.claims[i].Label == label && samePoint(a.claims[i].Point, point) {
			return a.claims[i].Value, true
		}
	}
	var zero fr.Element
	return zero, false
}

// Finalize checks the batched opening proof against every accumulated
// claim. It may be called once.
func (a *VerifierAccumulator) Finalize(proof *pcs.BatchedOpeningProof, vk kzg.VerifyingKey, tr *transcript.Transcript) error {
	if a.finalized {
		return ErrFinalized
	}
	a.finalized = true

	groups := make([]pcs.Group, 0)
	for _, members := range a.groups() {
		g := pcs.Group{Point: a.claims[members[0]].Point}
		for _, i := range members {
			c := &a.claims[i]
			g.Digests = append(g.Digests, a.digests[c.Label])
			g.ClaimedValues = append(g.ClaimedValues, c.Value)
		}
		groups = append(groups, g)
	}
	return pcs.BatchVerify(groups, proof, vk, tr)
}
