package memchk

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/poly"
	"github.com/consensys/zkvm/sumcheck"
)

// NewValueEvaluation resolves a deferred Val claim left by a read check.
// It proves Ṽal(r_a, r_t') - Ĩnit(r_a) = ∑_t L̃T(t, r_t')·wa(r_a, t)·inc(t),
// a cubic product over the step variables. valPoint is the full point of
// the deferred claim, address variables first.
func NewValueEvaluation(stage string, labels Labels, acc *Accesses, valClaim fr.Element, valPoint []fr.Element, cfg Config) *sumcheck.Product {
	k := log2(acc.K)
	rA := valPoint[:k]
	rTPrev := valPoint[k:]

	ltT := polynomial.MultiLin(poly.LessThanTable(rTPrev))
	waT := polynomial.MultiLin(WriteAddressTable(acc.WriteAddrs, rA))
	incT := make(polynomial.MultiLin, len(acc.Incs))
	copy(incT, acc.Incs)

	initML := polynomial.MultiLin(acc.Init)
	initEval := initML.Evaluate(rA, nil)
	var claim fr.Element
	claim.Sub(&valClaim, &initEval)

	finalize := func(pa *opening.ProverAccumulator, point []fr.Element, factorValues []fr.Element) {
		waPoint := make([]fr.Element, 0, len(rA)+len(point))
		waPoint = append(waPoint, rA...)
		waPoint = append(waPoint, point...)
		pa.Append(stage, labels.Wa, waPoint, factorValues[1])
		pa.Append(stage, labels.Inc, point, factorValues[2])
	}
	return sumcheck.NewProduct(claim, []polynomial.MultiLin{ltT, waT, incT}, finalize, cfg.NbTasks)
}

// NewFinalValue proves F̃inal(r_a) - Ĩnit(r_a) = ∑_t wa(r_a, t)·inc(t), a
// quadratic product over the step variables, and appends the final-state
// opening claim at r_a. It returns the claimed F̃inal(r_a), which travels
// in the proof.
func NewFinalValue(stage string, labels Labels, acc *Accesses, rA []fr.Element, cfg Config) (*sumcheck.Product, fr.Element) {
	waT := polynomial.MultiLin(WriteAddressTable(acc.WriteAddrs, rA))
	incT := make(polynomial.MultiLin, len(acc.Incs))
	copy(incT, acc.Incs)

	finalML := polynomial.MultiLin(acc.Final)
	finalEval := finalML.Evaluate(rA, nil)
	initML := polynomial.MultiLin(acc.Init)
	initEval := initML.Evaluate(rA, nil)
	var claim fr.Element
	claim.Sub(&finalEval, &initEval)

	finalize := func(pa *opening.ProverAccumulator, point []fr.Element, factorValues []fr.Element) {
		waPoint := make([]fr.Element, 0, len(rA)+len(point))
		waPoint = append(waPoint, rA...)
		waPoint = append(waPoint, point...)
		pa.Append(stage, labels.Wa, waPoint, factorValues[0])
		pa.Append(stage, labels.Inc, point, factorValues[1])
		pa.Append(stage, labels.Final, rA, finalEval)
	}
	p := sumcheck.NewProduct(claim, []polynomial.MultiLin{waT, incT}, finalize, cfg.NbTasks)
	return p, finalEval
}
