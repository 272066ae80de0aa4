// Package sumcheck implements the engine's batched interactive sumcheck.
//
// An Instance is one claim of the form ∑_{x∈{0,1}ⁿ} P(x) = c. A batch of
// instances runs through a single interleaved interactive protocol: one
// batching coefficient per instance is drawn from the transcript, each
// round every instance contributes its univariate round message, the
// coefficient-combined polynomial is absorbed, and one shared challenge
// binds a variable of every instance. Instances with fewer rounds than the
// batch are padded in front with variables their polynomial does not
// depend on, so their claims scale by a power of two and their opening
// point is a suffix of the batch challenges.
package sumcheck

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/poly"
)

var (
	// ErrDegreeBound signals a round polynomial exceeding the declared
	// degree bound.
	ErrDegreeBound = errors.New("sumcheck: round polynomial degree bound exceeded")
	// ErrFinalCheck signals a mismatch between the final combined claim
	// and the instances' final evaluations.
	ErrFinalCheck = errors.New("sumcheck: final evaluation check failed")
	// ErrRoundCount signals a proof with the wrong number of rounds.
	ErrRoundCount = errors.New("sumcheck: wrong number of round polynomials")
)

// Instance is the role-independent face of one sumcheck claim.
type Instance interface {
	// NbRounds is the number of variables of the summed polynomial.
	NbRounds() int
	// Degree bounds the degree of P in each variable.
	Degree() int
	// InitialClaim is the claimed sum over the hypercube.
	InitialClaim() fr.Element
}

// ProverInstance produces round messages and, once fully bound, opening
// claims. Bind reduces the internal representation by one variable; the
// instance is stateful across rounds.
type ProverInstance interface {
	Instance
	// RoundMessage is the current round's univariate
	// X ↦ ∑_{x} P(r₁, ..., X, x), as evaluations on 0..Degree().
	RoundMessage() poly.Univariate
	// Bind fixes the current variable to r.
	Bind(r *fr.Element)
	// FinalClaims appends this instance's opening claims at the bound
	// point to the accumulator.
	FinalClaims(acc *opening.ProverAccumulator, point []fr.Element)
}

// VerifierInstance resolves the expected final evaluation of one claim.
type VerifierInstance interface {
	Instance
	// FinalEvaluation returns the expected evaluation of P at the bound
	// point, appending or querying opening claims as needed.
	FinalEvaluation(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error)
}

// Proof is the ordered sequence of combined round polynomials in
// compressed form: evaluations on 1..degree, the value at 0 being implied
// by the previous round's claim.
type Proof struct {
	RoundPolynomials []poly.Univariate
}

// LazyInstance is a generic verifier-side instance resolving its final
// evaluation through a callback.
type LazyInstance struct {
	Rounds      int
	DegreeBound int
	Claim       fr.Element
	Resolve     func(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error)
}

func (l *LazyInstance) NbRounds() int            { return l.Rounds }
func (l *LazyInstance) Degree() int              { return l.DegreeBound }
func (l *LazyInstance) InitialClaim() fr.Element { return l.Claim }

func (l *LazyInstance) FinalEvaluation(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error) {
	return l.Resolve(acc, point)
}

func maxRounds[I Instance](instances []I) int {
	res := 0
	for _, inst := range instances {
		if n := inst.NbRounds(); n > res {
			res = n
		}
	}
	return res
}

func maxDegree[I Instance](instances []I) int {
	res := 0
	for _, inst := range instances {
		if d := inst.Degree(); d > res {
			res = d
		}
	}
	return res
}

// extend evaluates at points len(m)..deg the polynomial given by its
// evaluations on 0..len(m)-1, returning evaluations on 0..deg.
func extend(m poly.Univariate, deg int) poly.Univariate {
	if len(m) == deg+1 {
		return m
	}
	res := make(poly.Univariate, deg+1)
	copy(res, m)
	var u fr.Element
	for i := len(m); i <= deg; i++ {
		u.SetUint64(uint64(i))
		res[i] = poly.InterpolateOnRange(m, &u)
	}
	return res
}

var twoInv = func() fr.Element {
	var two, res fr.Element
	two.SetUint64(2)
	res.Inverse(&two)
	return res
}()

// paddedClaim returns 2^pad · claim.
func paddedClaim(claim fr.Element, pad int) fr.Element {
	var res fr.Element
	res.Set(&claim)
	for i := 0; i < pad; i++ {
		res.Double(&res)
	}
	return res
}
