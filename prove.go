package zkvm

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/consensys/zkvm/logger"
	"github.com/consensys/zkvm/memchk"
	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/pcs"
	"github.com/consensys/zkvm/sumcheck"
	"github.com/consensys/zkvm/transcript"
	"github.com/consensys/zkvm/vm"
)

// Prove produces an execution proof for the trace against the program and
// the public input/output.
func Prove(pp *vm.Preprocessing, trace *vm.ExecutionTrace, pub vm.PublicIO, opts ...Option) (*Proof, *DebugInfo, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, nil, err
	}
	if cfg.srs == nil {
		return nil, nil, ErrMissingSRS
	}
	t := trace.T()
	if t < 2 || t&(t-1) != 0 {
		return nil, nil, ErrTraceShape
	}
	if len(pub.Input) > pp.RAMSize || len(pub.Output) > pp.RAMSize {
		return nil, nil, vm.ErrPublicIOShape
	}
	if srsSize(pp, t) > uint64(len(cfg.srs.Pk.G1)) {
		return nil, nil, ErrSRSTooSmall
	}

	touched, err := trace.Validate(pp)
	if err != nil {
		return nil, nil, fmt.Errorf("zkvm: invalid trace: %w", err)
	}

	log := logger.Logger().With().Str("backend", "zkvm").Int("T", t).Logger()
	log.Debug().Int("ram_touched", touched).Msg("trace validated")
	dbg := new(DebugInfo)
	start := time.Now()

	cols, err := trace.Columns()
	if err != nil {
		return nil, nil, err
	}
	regAcc := trace.RegisterAccesses(cols)
	ramAcc := trace.RAMAccesses(pp, pub, cols)

	labels := committedLabels()
	values := committedValues(pp, trace, cols, regAcc, ramAcc)

	commitStart := time.Now()
	digests := make([]kzg.Digest, len(values))
	for i := range values {
		if digests[i], err = pcs.Commit(values[i], cfg.srs.Pk, cfg.nbTasks); err != nil {
			return nil, nil, fmt.Errorf("commit %s: %w", labels[i], err)
		}
	}
	dbg.CommitMs = time.Since(commitStart).Milliseconds()
	log.Debug().Int64("took", dbg.CommitMs).Msg("witness committed")

	acc := opening.NewProver()
	for i := range labels {
		acc.RegisterPolynomial(labels[i], values[i], digests[i])
	}

	tr := transcript.New(sha256.New)
	absorbPreamble(tr, pp, pub, uint64(t), digests)

	tauVars := log2(t)
	kReg := log2(vm.NbRegisters)
	kRAM := log2(pp.RAMSize)
	kBc := log2(len(pp.Bytecode))
	kLk := log2(len(pp.LookupTable))

	proof := &Proof{
		T:           uint64(t),
		SwitchIdx:   []uint64{uint64(kReg), uint64(kReg), uint64(kReg), uint64(kRAM), uint64(kBc), uint64(kLk)},
		Commitments: digests,
	}

	// stage 1: constraint satisfaction over the cycle variables
	stageStart := time.Now()
	ph, err := tr.Phase(outerChallengeNames(tauVars)...)
	if err != nil {
		return nil, nil, err
	}
	tau, err := ph.Challenges(tauVars)
	if err != nil {
		return nil, nil, err
	}
	gamma, err := ph.Challenge()
	if err != nil {
		return nil, nil, err
	}
	outer := newConstraintProver(cols, tau, gamma, cfg.nbTasks)
	if proof.Outer, _, err = sumcheck.Prove([]sumcheck.ProverInstance{outer}, ph, acc); err != nil {
		return nil, nil, fmt.Errorf("outer stage: %w", err)
	}
	proof.ColumnEvals = outer.ColumnEvals()
	tr.AbsorbElements(proof.ColumnEvals...)
	dbg.OuterMs = time.Since(stageStart).Milliseconds()

	// stage 2: read consistency, all memories batched
	stageStart = time.Now()
	rounds2 := maxInt(kReg, kRAM, kBc, kLk) + tauVars
	ph, err = tr.Phase(readChallengeNames(tauVars, rounds2)...)
	if err != nil {
		return nil, nil, err
	}
	rStep, err := ph.Challenges(tauVars)
	if err != nil {
		return nil, nil, err
	}

	rvEval := func(c vm.ColumnID) fr.Element {
		return polynomial.MultiLin(cols[c]).Evaluate(rStep, nil)
	}
	proof.ReadRv = []fr.Element{
		rvEval(vm.ColRs1V), rvEval(vm.ColRs2V), rvEval(vm.ColRdOldV),
		rvEval(vm.ColRamRv), rvEval(vm.ColBcVal), rvEval(vm.ColLkOut),
	}

	mcfg := cfg.memchk()
	rcRs1, err := memchk.NewReadCheck(stageRead, regLabelsRs1, regAcc, 0, rStep, proof.ReadRv[0], mcfg)
	if err != nil {
		return nil, nil, err
	}
	rcRs2, err := memchk.NewReadCheck(stageRead, regLabelsRs2, regAcc, 1, rStep, proof.ReadRv[1], mcfg)
	if err != nil {
		return nil, nil, err
	}
	rcRd, err := memchk.NewReadCheck(stageRead, regLabelsRd, regAcc, 2, rStep, proof.ReadRv[2], mcfg)
	if err != nil {
		return nil, nil, err
	}
	rcRAM, err := memchk.NewReadCheck(stageRead, ramLabels, ramAcc, 0, rStep, proof.ReadRv[3], mcfg)
	if err != nil {
		return nil, nil, err
	}
	rcBc, err := memchk.NewReadOnlyCheck(stageRead, bcLabels, pp.BytecodeTable(), trace.BytecodeReads(), rStep, proof.ReadRv[4], mcfg)
	if err != nil {
		return nil, nil, err
	}
	rcLk, err := memchk.NewReadOnlyCheck(stageRead, lkLabels, pp.LookupTable, trace.LookupReads(), rStep, proof.ReadRv[5], mcfg)
	if err != nil {
		return nil, nil, err
	}

	readInstances := []sumcheck.ProverInstance{rcRs1, rcRs2, rcRd, rcRAM, rcBc, rcLk}
	if proof.Read, _, err = sumcheck.Prove(readInstances, ph, acc); err != nil {
		return nil, nil, fmt.Errorf("read stage: %w", err)
	}

	valReg, valPointReg, _ := rcRs1.ValClaim()
	valRam, valPointRam, _ := rcRAM.ValClaim()
	proof.ValReg, proof.ValRam = valReg, valRam
	tr.AbsorbElements(valReg, valRam)
	readRa := func(label string) fr.Element { return claimValue(acc, stageRead, label) }
	proof.ReadRa = []fr.Element{
		readRa(regLabelsRs1.Ra), readRa(regLabelsRs2.Ra), readRa(regLabelsRd.Ra),
		readRa(ramLabels.Ra), readRa(bcLabels.Ra), readRa(lkLabels.Ra),
	}
	dbg.ReadMs = time.Since(stageStart).Milliseconds()

	// stage 3: value evolution and the public output check
	stageStart = time.Now()
	veReg := memchk.NewValueEvaluation(stageValue, regLabelsRs1, regAcc, valReg, valPointReg, mcfg)
	veRam := memchk.NewValueEvaluation(stageValue, ramLabels, ramAcc, valRam, valPointRam, mcfg)
	fvReg, finalRegE := memchk.NewFinalValue(stageValue, regLabelsRs1, regAcc, valPointReg[:kReg], mcfg)
	fvRam, finalRamE := memchk.NewFinalValue(stageValue, ramLabels, ramAcc, valPointRam[:kRAM], mcfg)
	oc := newOutputCheck(pp, pub, ramAcc.Final, cfg.nbTasks)
	proof.FinalRegE, proof.FinalRamE = finalRegE, finalRamE

	rounds3 := maxInt(tauVars, kRAM)
	ph, err = tr.Phase(sumcheck.ChallengeNames(stageValue, 5, rounds3)...)
	if err != nil {
		return nil, nil, err
	}
	valueInstances := []sumcheck.ProverInstance{veReg, veRam, fvReg, fvRam, oc.product}
	if proof.Value, _, err = sumcheck.Prove(valueInstances, ph, acc); err != nil {
		return nil, nil, fmt.Errorf("value stage: %w", err)
	}
	proof.WaReg = claimValue(acc, stageValue, regLabelsRs1.Wa)
	proof.IncRegE = claimValue(acc, stageValue, regLabelsRs1.Inc)
	proof.WaRam = claimValue(acc, stageValue, ramLabels.Wa)
	proof.IncRamE = claimValue(acc, stageValue, ramLabels.Inc)
	proof.FinalRamOut = oc.finalAtPoint
	dbg.ValueMs = time.Since(stageStart).Milliseconds()

	// finalize: one batched commitment opening
	stageStart = time.Now()
	if proof.Opening, err = acc.Finalize(cfg.srs.Pk, tr, cfg.nbTasks); err != nil {
		return nil, nil, fmt.Errorf("opening: %w", err)
	}
	dbg.OpeningMs = time.Since(stageStart).Milliseconds()

	log.Info().Int64("took", time.Since(start).Milliseconds()).Msg("proof generated")
	return proof, dbg, nil
}

func outerChallengeNames(tauVars int) []string {
	names := make([]string, 0, 2*tauVars+1)
	for i := 0; i < tauVars; i++ {
		names = append(names, fmt.Sprintf("outer.tau%d", i))
	}
	names = append(names, "outer.gamma")
	return append(names, sumcheck.ChallengeNames(stageOuter, 1, tauVars)...)
}

func readChallengeNames(tauVars, rounds int) []string {
	names := make([]string, 0, tauVars+nbReadInstances+rounds)
	for i := 0; i < tauVars; i++ {
		names = append(names, fmt.Sprintf("read.step%d", i))
	}
	return append(names, sumcheck.ChallengeNames(stageRead, nbReadInstances, rounds)...)
}

func absorbPreamble(tr *transcript.Transcript, pp *vm.Preprocessing, pub vm.PublicIO, t uint64, digests []kzg.Digest) {
	d := pp.Digest()
	tr.Absorb(d[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], t)
	tr.Absorb(buf[:])
	for _, vs := range [][]uint64{pub.Input, pub.Output} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(vs)))
		tr.Absorb(buf[:])
		for _, v := range vs {
			binary.BigEndian.PutUint64(buf[:], v)
			tr.Absorb(buf[:])
		}
	}
	for i := range digests {
		b := digests[i].Bytes()
		tr.Absorb(b[:])
	}
}

// claimValue retrieves a stage's claimed evaluation from the accumulator;
// the pair is unique within a stage for the labels it is used with.
func claimValue(acc *opening.ProverAccumulator, stage, label string) fr.Element {
	for _, c := range acc.Claims() {
		if c.Stage == stage && c.Label == label {
			return c.Value
		}
	}
	panic(fmt.Sprintf("zkvm: no claim for %s/%s", stage, label))
}

func maxInt(vs ...int) int {
	res := vs[0]
	for _, v := range vs[1:] {
		if v > res {
			res = v
		}
	}
	return res
}
