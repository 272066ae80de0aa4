package zkvm

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/consensys/zkvm/pcs"
	"github.com/consensys/zkvm/poly"
	"github.com/consensys/zkvm/sumcheck"
)

const proofVersion = 1

// ErrProofVersion rejects proofs from an incompatible encoding.
var ErrProofVersion = errors.New("zkvm: unsupported proof version")

// nbReadInstances fixes the stage-2 instance order shared by prover and
// verifier: register ports rs1, rs2, rd, then RAM, bytecode, lookup.
const nbReadInstances = 6

// Proof is a complete execution proof.
type Proof struct {
	T           uint64
	SwitchIdx   []uint64 // per stage-2 instance, address/step phase boundary
	Commitments []kzg.Digest

	Outer       sumcheck.Proof
	ColumnEvals []fr.Element // committed columns at the outer point

	Read           sumcheck.Proof
	ReadRv, ReadRa []fr.Element // per stage-2 instance
	ValReg, ValRam fr.Element   // deferred Val claims

	Value                          sumcheck.Proof
	WaReg, IncRegE, WaRam, IncRamE fr.Element
	FinalRegE, FinalRamE           fr.Element
	FinalRamOut                    fr.Element // RAM final state at the output-check point

	Opening *pcs.BatchedOpeningProof
}

// WriteTo writes the proof to w.
func (p *Proof) WriteTo(w io.Writer) (int64, error) {
	var written int64

	header := []uint32{
		proofVersion,
		uint32(len(p.Commitments)),
		uint32(len(p.Outer.RoundPolynomials)),
		uint32(len(p.Read.RoundPolynomials)),
		uint32(len(p.Value.RoundPolynomials)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return written, err
		}
		written += 4
	}
	if err := binary.Write(w, binary.BigEndian, p.T); err != nil {
		return written, err
	}
	written += 8
	for _, s := range p.SwitchIdx {
		if err := binary.Write(w, binary.BigEndian, s); err != nil {
			return written, err
		}
		written += 8
	}

	enc := bn254.NewEncoder(w)
	toEncode := []interface{}{p.Commitments}
	for _, sp := range []*sumcheck.Proof{&p.Outer, &p.Read, &p.Value} {
		for _, rp := range sp.RoundPolynomials {
			toEncode = append(toEncode, []fr.Element(rp))
		}
	}
	toEncode = append(toEncode,
		p.ColumnEvals, p.ReadRv, p.ReadRa,
		&p.ValReg, &p.ValRam,
		&p.WaReg, &p.IncRegE, &p.WaRam, &p.IncRamE,
		&p.FinalRegE, &p.FinalRamE, &p.FinalRamOut,
	)
	for _, v := range toEncode {
		if err := enc.Encode(v); err != nil {
			return written + enc.BytesWritten(), err
		}
	}
	written += enc.BytesWritten()

	n, err := p.Opening.WriteTo(w)
	return written + n, err
}

// ReadFrom reads a proof written by WriteTo.
func (p *Proof) ReadFrom(r io.Reader) (int64, error) {
	var read int64

	var header [5]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return read, err
		}
		read += 4
	}
	if header[0] != proofVersion {
		return read, ErrProofVersion
	}
	if err := binary.Read(r, binary.BigEndian, &p.T); err != nil {
		return read, err
	}
	read += 8
	p.SwitchIdx = make([]uint64, nbReadInstances)
	for i := range p.SwitchIdx {
		if err := binary.Read(r, binary.BigEndian, &p.SwitchIdx[i]); err != nil {
			return read, err
		}
		read += 8
	}

	dec := bn254.NewDecoder(r)
	p.Commitments = make([]kzg.Digest, header[1])
	if err := dec.Decode(&p.Commitments); err != nil {
		return read + dec.BytesRead(), err
	}
	for i, sp := range []*sumcheck.Proof{&p.Outer, &p.Read, &p.Value} {
		sp.RoundPolynomials = make([]poly.Univariate, header[2+i])
		for j := range sp.RoundPolynomials {
			var rp []fr.Element
			if err := dec.Decode(&rp); err != nil {
				return read + dec.BytesRead(), err
			}
			sp.RoundPolynomials[j] = rp
		}
	}
	toDecode := []interface{}{
		&p.ColumnEvals, &p.ReadRv, &p.ReadRa,
		&p.ValReg, &p.ValRam,
		&p.WaReg, &p.IncRegE, &p.WaRam, &p.IncRamE,
		&p.FinalRegE, &p.FinalRamE, &p.FinalRamOut,
	}
	for _, v := range toDecode {
		if err := dec.Decode(v); err != nil {
			return read + dec.BytesRead(), err
		}
	}
	read += dec.BytesRead()

	p.Opening = new(pcs.BatchedOpeningProof)
	n, err := p.Opening.ReadFrom(r)
	return read + n, err
}
