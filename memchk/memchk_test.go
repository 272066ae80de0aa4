package memchk

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/pcs"
	"github.com/consensys/zkvm/poly"
	"github.com/consensys/zkvm/sumcheck"
	"github.com/consensys/zkvm/transcript"
)

func frOf(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

func pointOf(vs ...uint64) []fr.Element {
	res := make([]fr.Element, len(vs))
	for i, v := range vs {
		res[i].SetUint64(v)
	}
	return res
}

var testLabels = Labels{
	Ra:    "m.ra",
	Rv:    "m.rv",
	Wa:    "m.wa",
	Inc:   "m.inc",
	Final: "m.final",
}

// testAccesses builds a single-port memory with K=4 addresses over T=8
// steps, replaying the writes to fill read values and the final state.
func testAccesses() *Accesses {
	acc := &Accesses{
		K:          4,
		T:          8,
		Init:       []fr.Element{frOf(10), frOf(20), frOf(30), frOf(40)},
		ReadAddrs:  [][]int{{0, 1, 2, 3, 1, 0, 2, 1}},
		WriteAddrs: []int{1, 0, 3, 1, 0, 2, 0, 1},
		Incs: []fr.Element{
			frOf(5), frOf(0), frOf(7), frOf(1),
			frOf(2), frOf(0), frOf(3), frOf(4),
		},
	}
	state := make([]fr.Element, acc.K)
	copy(state, acc.Init)
	rv := make([]fr.Element, acc.T)
	for t := 0; t < acc.T; t++ {
		rv[t].Set(&state[acc.ReadAddrs[0][t]])
		state[acc.WriteAddrs[t]].Add(&state[acc.WriteAddrs[t]], &acc.Incs[t])
	}
	acc.ReadValues = [][]fr.Element{rv}
	acc.Final = state
	return acc
}

// valueGrid materializes Val(a, t), the value held by a before step t, on
// the committed grid layout (address bits high).
func valueGrid(acc *Accesses) polynomial.MultiLin {
	res := make(polynomial.MultiLin, acc.K*acc.T)
	state := make([]fr.Element, acc.K)
	copy(state, acc.Init)
	for t := 0; t < acc.T; t++ {
		for a := 0; a < acc.K; a++ {
			res[a*acc.T+t].Set(&state[a])
		}
		state[acc.WriteAddrs[t]].Add(&state[acc.WriteAddrs[t]], &acc.Incs[t])
	}
	return res
}

// eqGrid replicates eq(rStep, ·) across all addresses.
func eqGrid(eqStep []fr.Element, k int) polynomial.MultiLin {
	res := make(polynomial.MultiLin, (1<<k)*len(eqStep))
	for a := 0; a < 1<<k; a++ {
		copy(res[a*len(eqStep):], eqStep)
	}
	return res
}

func rvEval(acc *Accesses, port int, rStep []fr.Element) fr.Element {
	rv := make(polynomial.MultiLin, acc.T)
	copy(rv, acc.ReadValues[port])
	return rv.Evaluate(rStep, nil)
}

// TestStreamingMatchesDenseGrid drives the streaming read check and the
// naive dense product over the full (K·T) grid with the same challenges,
// comparing round messages round by round.
func TestStreamingMatchesDenseGrid(t *testing.T) {
	acc := testAccesses()
	rStep := pointOf(3, 5, 7)
	claim := rvEval(acc, 0, rStep)

	cfg := Config{ChunkSize: 2, NbTasks: 1, Strategy: StrategyLocal}
	rc, err := NewReadCheck("s", testLabels, acc, 0, rStep, claim, cfg)
	require.NoError(t, err)

	eqG := eqGrid(poly.EqTable(rStep), 2)
	raG := polynomial.MultiLin(IndicatorGrid(acc.ReadAddrs[0], 2, acc.T))
	valG := valueGrid(acc)
	naive := sumcheck.NewProduct(claim, []polynomial.MultiLin{eqG, raG, valG}, nil, 1)

	require.Equal(t, naive.NbRounds(), rc.NbRounds())
	require.Equal(t, naive.Degree(), rc.Degree())

	prev := claim
	for round := 0; round < rc.NbRounds(); round++ {
		mRC := rc.RoundMessage()
		mNaive := naive.RoundMessage()
		require.Len(t, mRC, len(mNaive), "round %d", round)
		for u := range mRC {
			assert.True(t, mRC[u].Equal(&mNaive[u]), "round %d eval %d", round, u)
		}

		// g(0) + g(1) must carry the running claim
		var sum fr.Element
		sum.Add(&mRC[0], &mRC[1])
		assert.True(t, sum.Equal(&prev), "round %d claim", round)

		r := frOf(uint64(13 + 17*round))
		rc.Bind(&r)
		naive.Bind(&r)
		prev = poly.InterpolateOnRange(mRC, &r)
	}

	vRC := rc.inner.FactorValues()
	vNaive := naive.FactorValues()
	assert.True(t, vRC[1].Equal(&vNaive[1]), "ra evaluation")
	assert.True(t, vRC[2].Equal(&vNaive[2]), "val evaluation")
}

// TestChunkSizeIndependence checks that the checkpoint interval does not
// leak into round messages.
func TestChunkSizeIndependence(t *testing.T) {
	acc := testAccesses()
	rStep := pointOf(11, 13, 17)
	claim := rvEval(acc, 0, rStep)

	build := func(chunk, tasks int) *ReadCheck {
		rc, err := NewReadCheck("s", testLabels, acc, 0, rStep, claim,
			Config{ChunkSize: chunk, NbTasks: tasks, Strategy: StrategyLocal})
		require.NoError(t, err)
		return rc
	}
	a := build(2, 1)
	b := build(8, 4)

	for round := 0; round < a.NbRounds(); round++ {
		mA := a.RoundMessage()
		mB := b.RoundMessage()
		require.Len(t, mA, len(mB))
		for u := range mA {
			assert.True(t, mA[u].Equal(&mB[u]), "round %d eval %d", round, u)
		}
		r := frOf(uint64(23 + round))
		a.Bind(&r)
		b.Bind(&r)
	}
}

// TestReadOnlyMatchesDenseGrid compares the read-only variant, which is
// quadratic, against the dense cubic product on the shared evaluations.
func TestReadOnlyMatchesDenseGrid(t *testing.T) {
	table := []fr.Element{frOf(100), frOf(200), frOf(300), frOf(400)}
	readAddrs := []int{2, 0, 3, 3, 1, 0, 2, 1}
	rStep := pointOf(5, 9, 2)

	rv := make(polynomial.MultiLin, len(readAddrs))
	for t0, a := range readAddrs {
		rv[t0].Set(&table[a])
	}
	claim := rv.Evaluate(rStep, nil)

	rc, err := NewReadOnlyCheck("s", testLabels, table, readAddrs, rStep, claim,
		Config{ChunkSize: 4, NbTasks: 1, Strategy: StrategyLocal})
	require.NoError(t, err)
	require.Equal(t, 2, rc.Degree())

	eqG := eqGrid(poly.EqTable(rStep), 2)
	raG := polynomial.MultiLin(IndicatorGrid(readAddrs, 2, len(readAddrs)))
	valG := make(polynomial.MultiLin, 4*len(readAddrs))
	for a := range table {
		for t0 := range readAddrs {
			valG[a*len(readAddrs)+t0].Set(&table[a])
		}
	}
	naive := sumcheck.NewProduct(claim, []polynomial.MultiLin{eqG, raG, valG}, nil, 1)

	for round := 0; round < rc.NbRounds(); round++ {
		mRC := rc.RoundMessage()
		mNaive := naive.RoundMessage()
		// the dense product reports one extra evaluation of the same
		// quadratic polynomial
		require.Len(t, mRC, 3)
		for u := range mRC {
			assert.True(t, mRC[u].Equal(&mNaive[u]), "round %d eval %d", round, u)
		}
		r := frOf(uint64(31 + round))
		rc.Bind(&r)
		naive.Bind(&r)
	}
}

func TestRejectsAlternativeStrategy(t *testing.T) {
	acc := testAccesses()
	rStep := pointOf(1, 2, 3)
	cfg := Config{ChunkSize: 2, NbTasks: 1, Strategy: StrategyAlternative}

	_, err := NewReadCheck("s", testLabels, acc, 0, rStep, fr.Element{}, cfg)
	assert.ErrorIs(t, err, ErrUnsupportedStrategy)

	_, err = NewReadOnlyCheck("s", testLabels, acc.Init, acc.ReadAddrs[0], rStep, fr.Element{}, cfg)
	assert.ErrorIs(t, err, ErrUnsupportedStrategy)
}

func TestWriteAddressTableMatchesGrid(t *testing.T) {
	acc := testAccesses()
	rA := pointOf(7, 3)
	waG := polynomial.MultiLin(IndicatorGrid(acc.WriteAddrs, 2, acc.T))
	waT := WriteAddressTable(acc.WriteAddrs, rA)

	rT := pointOf(2, 9, 4)
	full := append(append([]fr.Element{}, rA...), rT...)
	want := waG.Evaluate(full, nil)
	got := waT.Evaluate(rT, nil)
	assert.True(t, got.Equal(&want))
}

// TestPipelineRoundTrip runs the full protocol for one writable memory:
// read check, deferred value evaluation, final value, and the batched
// commitment opening.
func TestPipelineRoundTrip(t *testing.T) {
	acc := testAccesses()
	cfg := Config{ChunkSize: 2, NbTasks: 1, Strategy: StrategyLocal}
	rStep := pointOf(6, 10, 15)
	claim := rvEval(acc, 0, rStep)

	srs, err := pcs.NewSRS(uint64(acc.K*acc.T)+3, big.NewInt(42))
	require.NoError(t, err)

	rvCol := append([]fr.Element{}, acc.ReadValues[0]...)
	raG := IndicatorGrid(acc.ReadAddrs[0], 2, acc.T)
	waG := IndicatorGrid(acc.WriteAddrs, 2, acc.T)
	incCol := append([]fr.Element{}, acc.Incs...)
	finalCol := append([]fr.Element{}, acc.Final...)

	accP := opening.NewProver()
	accV := opening.NewVerifier()
	commit := func(label string, v []fr.Element) {
		d, err := pcs.Commit(v, srs.Pk)
		require.NoError(t, err)
		accP.RegisterPolynomial(label, v, d)
		accV.RegisterCommitment(label, d)
	}
	commit(testLabels.Rv, rvCol)
	commit(testLabels.Ra, raG)
	commit(testLabels.Wa, waG)
	commit(testLabels.Inc, incCol)
	commit(testLabels.Final, finalCol)

	trP := transcript.New(sha256.New)
	trV := transcript.New(sha256.New)

	// stage 2: the read check
	rc, err := NewReadCheck("read", testLabels, acc, 0, rStep, claim, cfg)
	require.NoError(t, err)
	namesRead := sumcheck.ChallengeNames("read", 1, rc.NbRounds())
	phP, err := trP.Phase(namesRead...)
	require.NoError(t, err)
	proofRead, point2, err := sumcheck.Prove([]sumcheck.ProverInstance{rc}, phP, accP)
	require.NoError(t, err)

	valClaim, valPoint, ok := rc.ValClaim()
	require.True(t, ok)

	// stage 3: value evaluation and final value at the read check's
	// address point
	rA := valPoint[:2]
	ve := NewValueEvaluation("value", testLabels, acc, valClaim, valPoint, cfg)
	fv, finalEval := NewFinalValue("value", testLabels, acc, rA, cfg)
	namesVal := sumcheck.ChallengeNames("value", 2, 3)
	phP, err = trP.Phase(namesVal...)
	require.NoError(t, err)
	proofVal, point3, err := sumcheck.Prove([]sumcheck.ProverInstance{ve, fv}, phP, accP)
	require.NoError(t, err)

	openingProof, err := accP.Finalize(srs.Pk, trP, 1)
	require.NoError(t, err)

	// verifier replay with claims reconstructed from the committed data
	raEval := polynomial.MultiLin(raG).Evaluate(point2, nil)
	rcV := VerifyReadCheck("read", testLabels, 2, 3, rStep, ReadCheckClaims{
		Rv: claim, Ra: raEval, Val: valClaim,
	})
	phV, err := trV.Phase(namesRead...)
	require.NoError(t, err)
	point2V, err := sumcheck.Verify([]sumcheck.VerifierInstance{rcV}, proofRead, phV, accV)
	require.NoError(t, err)
	require.Equal(t, point2, point2V)

	waFull := append(append([]fr.Element{}, rA...), point3...)
	waEval := polynomial.MultiLin(waG).Evaluate(waFull, nil)
	incEval := polynomial.MultiLin(incCol).Evaluate(point3, nil)
	veV := VerifyValueEvaluation("value", testLabels, acc.Init, 3, valClaim, valPoint, ValueClaims{
		Wa: waEval, Inc: incEval,
	})
	fvV := VerifyFinalValue("value", testLabels, acc.Init, 3, rA, ValueClaims{
		Wa: waEval, Inc: incEval, Final: finalEval,
	})
	phV, err = trV.Phase(namesVal...)
	require.NoError(t, err)
	_, err = sumcheck.Verify([]sumcheck.VerifierInstance{veV, fvV}, proofVal, phV, accV)
	require.NoError(t, err)

	assert.NoError(t, accV.Finalize(openingProof, srs.Vk, trV))
}
