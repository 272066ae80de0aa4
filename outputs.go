package zkvm

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/sumcheck"
	"github.com/consensys/zkvm/vm"
)

// outputCheck proves ∑_a sel(a)·(Final(a) - Out(a)) = 0 over the RAM
// address variables, pinning the committed final state to the claimed
// public output. sel and Out are public tables.
type outputCheck struct {
	product *sumcheck.Product
	// FinalRAM's evaluation at the bound point, captured at finalize; it
	// travels in the proof.
	finalAtPoint fr.Element
}

func newOutputCheck(pp *vm.Preprocessing, pub vm.PublicIO, finalRAM []fr.Element, nbTasks int) *outputCheck {
	sel := polynomial.MultiLin(pub.OutputSelector(pp.RAMSize))
	out := pub.OutputTable(pp.RAMSize)
	diff := make(polynomial.MultiLin, pp.RAMSize)
	for i := range diff {
		diff[i].Sub(&finalRAM[i], &out[i])
	}

	oc := new(outputCheck)
	finalize := func(acc *opening.ProverAccumulator, point []fr.Element, factorValues []fr.Element) {
		outEval := polynomial.MultiLin(out).Evaluate(point, nil)
		oc.finalAtPoint.Add(&factorValues[1], &outEval)
		acc.Append(stageValue, ramLabels.Final, point, oc.finalAtPoint)
	}
	oc.product = sumcheck.NewProduct(fr.Element{}, []polynomial.MultiLin{sel, diff}, finalize, nbTasks)
	return oc
}

func verifyOutputCheck(pp *vm.Preprocessing, pub vm.PublicIO, claimedFinal fr.Element) *sumcheck.LazyInstance {
	return &sumcheck.LazyInstance{
		Rounds:      log2(pp.RAMSize),
		DegreeBound: 2,
		Claim:       fr.Element{},
		Resolve: func(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error) {
			if err := acc.Append(stageValue, ramLabels.Final, point, claimedFinal); err != nil {
				return fr.Element{}, err
			}
			selEval := polynomial.MultiLin(pub.OutputSelector(pp.RAMSize)).Evaluate(point, nil)
			outEval := polynomial.MultiLin(pub.OutputTable(pp.RAMSize)).Evaluate(point, nil)
			var res fr.Element
			res.Sub(&claimedFinal, &outEval)
			res.Mul(&res, &selEval)
			return res, nil
		},
	}
}
