package memchk

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/poly"
	"github.com/consensys/zkvm/sumcheck"
)

// ReadCheckClaims carries the claimed evaluations a read-check instance
// contributes to the proof.
type ReadCheckClaims struct {
	Rv fr.Element // r̃v(rStep), the instance's initial claim
	Ra fr.Element // r̃a at the bound point
	// Val is the deferred value claim; unused for read-only memories.
	Val fr.Element
}

// VerifyReadCheck builds the verifier instance mirroring a writable-memory
// read check. The deferred Val claim is checked by the value-evaluation
// instance, so Resolve takes it at face value here.
func VerifyReadCheck(stage string, labels Labels, k, tau int, rStep []fr.Element, claims ReadCheckClaims) *sumcheck.LazyInstance {
	return &sumcheck.LazyInstance{
		Rounds:      k + tau,
		DegreeBound: 3,
		Claim:       claims.Rv,
		Resolve: func(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error) {
			if err := acc.Append(stage, labels.Rv, rStep, claims.Rv); err != nil {
				return fr.Element{}, err
			}
			if err := acc.Append(stage, labels.Ra, point, claims.Ra); err != nil {
				return fr.Element{}, err
			}
			eq := poly.EvalEq(rStep, point[k:])
			var res fr.Element
			res.Mul(&eq, &claims.Ra)
			res.Mul(&res, &claims.Val)
			return res, nil
		},
	}
}

// VerifyReadOnlyCheck builds the verifier instance for a read check
// against a public table; the verifier evaluates the table itself.
func VerifyReadOnlyCheck(stage string, labels Labels, table []fr.Element, tau int, rStep []fr.Element, claims ReadCheckClaims) *sumcheck.LazyInstance {
	k := log2(len(table))
	return &sumcheck.LazyInstance{
		Rounds:      k + tau,
		DegreeBound: 2,
		Claim:       claims.Rv,
		Resolve: func(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error) {
			if err := acc.Append(stage, labels.Rv, rStep, claims.Rv); err != nil {
				return fr.Element{}, err
			}
			if err := acc.Append(stage, labels.Ra, point, claims.Ra); err != nil {
				return fr.Element{}, err
			}
			tableEval := polynomial.MultiLin(table).Evaluate(point[:k], nil)
			eq := poly.EvalEq(rStep, point[k:])
			var res fr.Element
			res.Mul(&eq, &claims.Ra)
			res.Mul(&res, &tableEval)
			return res, nil
		},
	}
}

// ValueClaims carries the claimed evaluations of a value-evolution stage.
type ValueClaims struct {
	Wa    fr.Element // w̃a at r_a ++ point
	Inc   fr.Element // ĩnc at point
	Final fr.Element // F̃inal(r_a), final-value instance only
}

// VerifyValueEvaluation mirrors NewValueEvaluation. init is the public
// initial-state table; valClaim and valPoint identify the deferred claim
// being resolved.
func VerifyValueEvaluation(stage string, labels Labels, init []fr.Element, tau int, valClaim fr.Element, valPoint []fr.Element, claims ValueClaims) *sumcheck.LazyInstance {
	k := log2(len(init))
	rA := valPoint[:k]
	rTPrev := valPoint[k:]
	initEval := polynomial.MultiLin(init).Evaluate(rA, nil)
	var claim fr.Element
	claim.Sub(&valClaim, &initEval)
	return &sumcheck.LazyInstance{
		Rounds:      tau,
		DegreeBound: 3,
		Claim:       claim,
		Resolve: func(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error) {
			waPoint := make([]fr.Element, 0, len(rA)+len(point))
			waPoint = append(waPoint, rA...)
			waPoint = append(waPoint, point...)
			if err := acc.Append(stage, labels.Wa, waPoint, claims.Wa); err != nil {
				return fr.Element{}, err
			}
			if err := acc.Append(stage, labels.Inc, point, claims.Inc); err != nil {
				return fr.Element{}, err
			}
			lt := poly.EvalLessThan(point, rTPrev)
			var res fr.Element
			res.Mul(&lt, &claims.Wa)
			res.Mul(&res, &claims.Inc)
			return res, nil
		},
	}
}

// VerifyFinalValue mirrors NewFinalValue.
func VerifyFinalValue(stage string, labels Labels, init []fr.Element, tau int, rA []fr.Element, claims ValueClaims) *sumcheck.LazyInstance {
	initEval := polynomial.MultiLin(init).Evaluate(rA, nil)
	var claim fr.Element
	claim.Sub(&claims.Final, &initEval)
	return &sumcheck.LazyInstance{
		Rounds:      tau,
		DegreeBound: 2,
		Claim:       claim,
		Resolve: func(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error) {
			waPoint := make([]fr.Element, 0, len(rA)+len(point))
			waPoint = append(waPoint, rA...)
			waPoint = append(waPoint, point...)
			if err := acc.Append(stage, labels.Wa, waPoint, claims.Wa); err != nil {
				return fr.Element{}, err
			}
			if err := acc.Append(stage, labels.Inc, point, claims.Inc); err != nil {
				return fr.Element{}, err
			}
			if err := acc.Append(stage, labels.Final, rA, claims.Final); err != nil {
				return fr.Element{}, err
			}
			var res fr.Element
			res.Mul(&claims.Wa, &claims.Inc)
			return res, nil
		},
	}
}
