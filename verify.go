package zkvm

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/zkvm/memchk"
	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/sumcheck"
	"github.com/consensys/zkvm/transcript"
	"github.com/consensys/zkvm/vm"
)

// ErrProofShape rejects a structurally malformed proof before any
// cryptographic work.
var ErrProofShape = errors.New("zkvm: malformed proof")

// VerificationError reports which stage rejected the proof.
type VerificationError struct {
	Stage string
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("zkvm: verification failed at %s stage: %v", e.Stage, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func reject(stage string, err error) error {
	return &VerificationError{Stage: stage, Err: err}
}

// Verify checks an execution proof against the program and the public
// input/output.
func Verify(pp *vm.Preprocessing, proof *Proof, pub vm.PublicIO, opts ...Option) error {
	cfg, err := newConfig(opts...)
	if err != nil {
		return err
	}
	if cfg.srs == nil {
		return ErrMissingSRS
	}

	t := int(proof.T)
	tauVars := log2(t)
	kReg := log2(vm.NbRegisters)
	kRAM := log2(pp.RAMSize)
	kBc := log2(len(pp.Bytecode))
	kLk := log2(len(pp.LookupTable))

	if err := checkShape(pp, proof, pub, t); err != nil {
		return reject("structural", err)
	}

	labels := committedLabels()
	acc := opening.NewVerifier()
	for i := range labels {
		acc.RegisterCommitment(labels[i], proof.Commitments[i])
	}

	tr := transcript.New(sha256.New)
	absorbPreamble(tr, pp, pub, proof.T, proof.Commitments)

	// stage 1
	ph, err := tr.Phase(outerChallengeNames(tauVars)...)
	if err != nil {
		return err
	}
	tau, err := ph.Challenges(tauVars)
	if err != nil {
		return err
	}
	gamma, err := ph.Challenge()
	if err != nil {
		return err
	}
	outer := newConstraintVerifier(tau, gamma, proof.ColumnEvals)
	if _, err := sumcheck.Verify([]sumcheck.VerifierInstance{outer}, proof.Outer, ph, acc); err != nil {
		return reject(stageOuter, err)
	}
	tr.AbsorbElements(proof.ColumnEvals...)

	// stage 2
	rounds2 := maxInt(kReg, kRAM, kBc, kLk) + tauVars
	ph, err = tr.Phase(readChallengeNames(tauVars, rounds2)...)
	if err != nil {
		return err
	}
	rStep, err := ph.Challenges(tauVars)
	if err != nil {
		return err
	}

	rcClaims := func(i int, val fr.Element) memchk.ReadCheckClaims {
		return memchk.ReadCheckClaims{Rv: proof.ReadRv[i], Ra: proof.ReadRa[i], Val: val}
	}
	readInstances := []sumcheck.VerifierInstance{
		memchk.VerifyReadCheck(stageRead, regLabelsRs1, kReg, tauVars, rStep, rcClaims(0, proof.ValReg)),
		memchk.VerifyReadCheck(stageRead, regLabelsRs2, kReg, tauVars, rStep, rcClaims(1, proof.ValReg)),
		memchk.VerifyReadCheck(stageRead, regLabelsRd, kReg, tauVars, rStep, rcClaims(2, proof.ValReg)),
		memchk.VerifyReadCheck(stageRead, ramLabels, kRAM, tauVars, rStep, rcClaims(3, proof.ValRam)),
		memchk.VerifyReadOnlyCheck(stageRead, bcLabels, pp.BytecodeTable(), tauVars, rStep, rcClaims(4, fr.Element{})),
		memchk.VerifyReadOnlyCheck(stageRead, lkLabels, pp.LookupTable, tauVars, rStep, rcClaims(5, fr.Element{})),
	}
	readChallenges, err := sumcheck.Verify(readInstances, proof.Read, ph, acc)
	if err != nil {
		return reject(stageRead, err)
	}
	valPointReg := readChallenges[rounds2-(kReg+tauVars):]
	valPointRam := readChallenges[rounds2-(kRAM+tauVars):]
	tr.AbsorbElements(proof.ValReg, proof.ValRam)

	// stage 3
	regInit := make([]fr.Element, vm.NbRegisters)
	ramInit := pp.RAMInit(pub)
	regClaims := memchk.ValueClaims{Wa: proof.WaReg, Inc: proof.IncRegE, Final: proof.FinalRegE}
	ramClaims := memchk.ValueClaims{Wa: proof.WaRam, Inc: proof.IncRamE, Final: proof.FinalRamE}
	valueInstances := []sumcheck.VerifierInstance{
		memchk.VerifyValueEvaluation(stageValue, regLabelsRs1, regInit, tauVars, proof.ValReg, valPointReg, regClaims),
		memchk.VerifyValueEvaluation(stageValue, ramLabels, ramInit, tauVars, proof.ValRam, valPointRam, ramClaims),
		memchk.VerifyFinalValue(stageValue, regLabelsRs1, regInit, tauVars, valPointReg[:kReg], regClaims),
		memchk.VerifyFinalValue(stageValue, ramLabels, ramInit, tauVars, valPointRam[:kRAM], ramClaims),
		verifyOutputCheck(pp, pub, proof.FinalRamOut),
	}
	rounds3 := maxInt(tauVars, kRAM)
	ph, err = tr.Phase(sumcheck.ChallengeNames(stageValue, 5, rounds3)...)
	if err != nil {
		return err
	}
	if _, err := sumcheck.Verify(valueInstances, proof.Value, ph, acc); err != nil {
		return reject(stageValue, err)
	}

	// finalize
	if err := acc.Finalize(proof.Opening, cfg.srs.Vk, tr); err != nil {
		return reject("opening", err)
	}
	return nil
}

func checkShape(pp *vm.Preprocessing, proof *Proof, pub vm.PublicIO, t int) error {
	if t < 2 || t&(t-1) != 0 {
		return fmt.Errorf("%w: bad trace length %d", ErrProofShape, t)
	}
	if len(pub.Input) > pp.RAMSize || len(pub.Output) > pp.RAMSize {
		return vm.ErrPublicIOShape
	}
	if len(proof.Commitments) != len(committedLabels()) ||
		len(proof.ColumnEvals) != int(vm.NbColumns) ||
		len(proof.ReadRv) != nbReadInstances ||
		len(proof.ReadRa) != nbReadInstances ||
		len(proof.SwitchIdx) != nbReadInstances ||
		proof.Opening == nil {
		return ErrProofShape
	}
	kReg := log2(vm.NbRegisters)
	expected := []uint64{
		uint64(kReg), uint64(kReg), uint64(kReg),
		uint64(log2(pp.RAMSize)), uint64(log2(len(pp.Bytecode))), uint64(log2(len(pp.LookupTable))),
	}
	for i, s := range proof.SwitchIdx {
		if s != expected[i] {
			return fmt.Errorf("%w: switch index %d", ErrProofShape, i)
		}
	}
	return nil
}
