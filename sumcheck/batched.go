package sumcheck

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/zkvm/debug"
	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/poly"
	"github.com/consensys/zkvm/transcript"
)

// ChallengeNames lists, in derivation order, the challenges one batched run
// consumes: one batching coefficient per instance when there are at least
// two, then one challenge per round.
func ChallengeNames(prefix string, nbInstances, nbRounds int) []string {
	var names []string
	if nbInstances >= 2 {
		for i := 0; i < nbInstances; i++ {
			names = append(names, fmt.Sprintf("%s.comb%d", prefix, i))
		}
	}
	for i := 0; i < nbRounds; i++ {
		names = append(names, fmt.Sprintf("%s.r%d", prefix, i))
	}
	return names
}

// deriveCoefficients binds every instance's shape and claim, then draws one
// batching coefficient per instance in declared order. A single-instance
// run uses the unit coefficient and draws nothing.
func deriveCoefficients[I Instance](instances []I, phase *transcript.Phase) ([]fr.Element, error) {
	coeffs := make([]fr.Element, len(instances))
	if len(instances) < 2 {
		coeffs[0].SetOne()
		return coeffs, nil
	}
	for _, inst := range instances {
		if err := phase.BindElements([]fr.Element{inst.InitialClaim()}); err != nil {
			return nil, err
		}
	}
	for i := range instances {
		var err error
		if coeffs[i], err = phase.Challenge(); err != nil {
			return nil, err
		}
	}
	return coeffs, nil
}

// combinedInitialClaim is ∑ᵢ coeffᵢ · 2^{padᵢ} · claimᵢ.
func combinedInitialClaim[I Instance](instances []I, coeffs []fr.Element, nbRounds int) fr.Element {
	var res, tmp fr.Element
	for i, inst := range instances {
		c := paddedClaim(inst.InitialClaim(), nbRounds-inst.NbRounds())
		tmp.Mul(&coeffs[i], &c)
		res.Add(&res, &tmp)
	}
	return res
}

// Prove runs one batched sumcheck over the instances, drawing challenges
// from the phase. It returns the proof and the shared challenge vector;
// each instance's opening claims are appended to the accumulator at the
// suffix of the challenges matching its round count.
func Prove(instances []ProverInstance, phase *transcript.Phase, acc *opening.ProverAccumulator) (Proof, []fr.Element, error) {
	nbRounds := maxRounds(instances)
	deg := maxDegree(instances)

	coeffs, err := deriveCoefficients(instances, phase)
	if err != nil {
		return Proof{}, nil, err
	}

	// running claims of not-yet-active (front-padded) instances
	padClaims := make([]fr.Element, len(instances))
	for i, inst := range instances {
		padClaims[i] = paddedClaim(inst.InitialClaim(), nbRounds-inst.NbRounds())
	}

	claim := combinedInitialClaim(instances, coeffs, nbRounds)
	proof := Proof{RoundPolynomials: make([]poly.Univariate, 0, nbRounds)}
	challenges := make([]fr.Element, nbRounds)

	var tmp fr.Element
	for round := 0; round < nbRounds; round++ {
		combined := make(poly.Univariate, deg+1)
		for i, inst := range instances {
			pad := nbRounds - inst.NbRounds()
			if round < pad {
				// inactive: the round polynomial is the constant
				// halving its running claim
				tmp.Mul(&padClaims[i], &twoInv)
				tmp.Mul(&tmp, &coeffs[i])
				for j := range combined {
					combined[j].Add(&combined[j], &tmp)
				}
				continue
			}
			m := extend(inst.RoundMessage(), deg)
			for j := range combined {
				tmp.Mul(&m[j], &coeffs[i])
				combined[j].Add(&combined[j], &tmp)
			}
		}

		if debug.Debug {
			var sum fr.Element
			sum.Add(&combined[0], &combined[1])
			if !sum.Equal(&claim) {
				panic("sumcheck: prover round polynomial inconsistent with running claim")
			}
		}

		compressed := combined[1:].Clone()
		if err := phase.BindElements(compressed); err != nil {
			return Proof{}, nil, err
		}
		r, err := phase.Challenge()
		if err != nil {
			return Proof{}, nil, err
		}
		challenges[round] = r
		proof.RoundPolynomials = append(proof.RoundPolynomials, compressed)

		for i, inst := range instances {
			if round < nbRounds-inst.NbRounds() {
				padClaims[i].Mul(&padClaims[i], &twoInv)
				continue
			}
			inst.Bind(&r)
		}
		claim = poly.InterpolateOnRange(combined, &r)
	}

	for _, inst := range instances {
		inst.FinalClaims(acc, challenges[nbRounds-inst.NbRounds():])
	}
	return proof, challenges, nil
}

// Verify replays one batched sumcheck run against the proof, mirroring the
// prover's challenge derivation, and checks the final combined claim
// against the instances' expected final evaluations.
func Verify(instances []VerifierInstance, proof Proof, phase *transcript.Phase, acc *opening.VerifierAccumulator) ([]fr.Element, error) {
	nbRounds := maxRounds(instances)
	deg := maxDegree(instances)

	coeffs, err := deriveCoefficients(instances, phase)
	if err != nil {
		return nil, err
	}
	claim := combinedInitialClaim(instances, coeffs, nbRounds)

	if len(proof.RoundPolynomials) != nbRounds {
		return nil, ErrRoundCount
	}

	challenges := make([]fr.Element, nbRounds)
	full := make(poly.Univariate, deg+1)
	for round := 0; round < nbRounds; round++ {
		compressed := proof.RoundPolynomials[round]
		if len(compressed) != deg {
			return nil, ErrDegreeBound
		}
		// g(0) = claim - g(1): the round consistency check is enforced
		// structurally by the compressed encoding
		full[0].Sub(&claim, &compressed[0])
		copy(full[1:], compressed)

		if err := phase.BindElements(compressed); err != nil {
			return nil, err
		}
		r, err := phase.Challenge()
		if err != nil {
			return nil, err
		}
		challenges[round] = r
		claim = poly.InterpolateOnRange(full, &r)
	}

	var expected, tmp fr.Element
	for i, inst := range instances {
		ev, err := inst.FinalEvaluation(acc, challenges[nbRounds-inst.NbRounds():])
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		tmp.Mul(&ev, &coeffs[i])
		expected.Add(&expected, &tmp)
	}
	if !expected.Equal(&claim) {
		return nil, ErrFinalCheck
	}
	return challenges, nil
}
