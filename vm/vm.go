// Package vm defines the machine model the proof engine argues about: a
// minimal register machine with a word-addressed RAM, a lookup-table ALU
// and a flat bytecode. Preprocessing holds the public program material,
// ExecutionTrace the prover-only witness.
package vm

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Opcodes. Halt is the zero value so that zero-padded bytecode reads as
// halt instructions.
const (
	OpHalt uint8 = iota
	OpAdd
	OpLoad
	OpStore
)

// NbRegisters is the register-file size.
const NbRegisters = 32

var (
	ErrNoHalt        = errors.New("vm: program did not halt")
	ErrLookupRange   = errors.New("vm: lookup index out of table range")
	ErrAddrRange     = errors.New("vm: memory address out of range")
	ErrInvalidShape  = errors.New("vm: sizes must be powers of two")
	ErrPublicIOShape = errors.New("vm: public input/output larger than RAM")
)

// Instruction is one bytecode word.
//
//   - Add rd, rs1, rs2: rd <- lookup[rs1 + rs2]
//   - Load rd, imm:     rd <- ram[imm]
//   - Store rs2, imm:   ram[imm] <- rs2
//   - Halt:             stop; the program counter freezes here
type Instruction struct {
	Opcode       uint8
	Rd, Rs1, Rs2 uint8
	Imm          uint32
}

// Encode packs the instruction into a single field element, the value the
// bytecode read port returns.
func (ins Instruction) Encode() fr.Element {
	v := uint64(ins.Opcode) |
		uint64(ins.Rd)<<8 |
		uint64(ins.Rs1)<<16 |
		uint64(ins.Rs2)<<24 |
		uint64(ins.Imm)<<32
	var res fr.Element
	res.SetUint64(v)
	return res
}

// Preprocessing is the public program material. It is immutable once
// built; the verifier evaluates its tables directly and never needs
// commitments to them.
type Preprocessing struct {
	Bytecode    []Instruction // power-of-two length, halt-padded
	LookupTable []fr.Element  // power-of-two length
	RAMSize     int           // power of two; RAM starts zeroed under public input
	digest      [32]byte
}

// IdentityLookupTable returns the table lookup[i] = i, the fixture ALU.
func IdentityLookupTable(size int) []fr.Element {
	res := make([]fr.Element, size)
	for i := range res {
		res[i].SetUint64(uint64(i))
	}
	return res
}

// NewPreprocessing pads the program to a power of two, checks shapes and
// computes the program digest.
func NewPreprocessing(program []Instruction, lookup []fr.Element, ramSize int) (*Preprocessing, error) {
	if len(program) == 0 {
		return nil, fmt.Errorf("%w: empty program", ErrInvalidShape)
	}
	if !isPowerOfTwo(len(lookup)) || !isPowerOfTwo(ramSize) {
		return nil, ErrInvalidShape
	}
	n := nextPowerOfTwo(len(program))
	bytecode := make([]Instruction, n)
	copy(bytecode, program)
	pp := &Preprocessing{
		Bytecode:    bytecode,
		LookupTable: lookup,
		RAMSize:     ramSize,
	}
	d, err := pp.computeDigest()
	if err != nil {
		return nil, err
	}
	pp.digest = d
	return pp, nil
}

// Digest is the blake2b-256 hash binding the program, the lookup table
// and the machine shape; it opens the proof transcript.
func (pp *Preprocessing) Digest() [32]byte { return pp.digest }

func (pp *Preprocessing) computeDigest() ([32]byte, error) {
	var res [32]byte
	h, err := blake2b.New256(nil)
	if err != nil {
		return res, err
	}
	enc, err := pp.MarshalBinary()
	if err != nil {
		return res, err
	}
	h.Write(enc)
	copy(res[:], h.Sum(nil))
	return res, nil
}

// BytecodeTable is the packed-instruction table the bytecode read port
// reads from.
func (pp *Preprocessing) BytecodeTable() []fr.Element {
	res := make([]fr.Element, len(pp.Bytecode))
	for i, ins := range pp.Bytecode {
		res[i] = ins.Encode()
	}
	return res
}

// RAMInit lays the public input over the zeroed RAM.
func (pp *Preprocessing) RAMInit(pub PublicIO) []fr.Element {
	res := make([]fr.Element, pp.RAMSize)
	for i, v := range pub.Input {
		res[i].SetUint64(v)
	}
	return res
}

type serializedPreprocessing struct {
	Bytecode    []Instruction `cbor:"1,keyasint"`
	LookupTable [][]byte      `cbor:"2,keyasint"`
	RAMSize     int           `cbor:"3,keyasint"`
}

// MarshalBinary encodes the preprocessing in canonical CBOR; the digest
// is recomputed on decode, never trusted from the wire.
func (pp *Preprocessing) MarshalBinary() ([]byte, error) {
	s := serializedPreprocessing{
		Bytecode:    pp.Bytecode,
		LookupTable: make([][]byte, len(pp.LookupTable)),
		RAMSize:     pp.RAMSize,
	}
	for i := range pp.LookupTable {
		b := pp.LookupTable[i].Bytes()
		s.LookupTable[i] = b[:]
	}
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(&s)
}

func (pp *Preprocessing) UnmarshalBinary(data []byte) error {
	var s serializedPreprocessing
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	if !isPowerOfTwo(len(s.Bytecode)) || !isPowerOfTwo(len(s.LookupTable)) || !isPowerOfTwo(s.RAMSize) {
		return ErrInvalidShape
	}
	pp.Bytecode = s.Bytecode
	pp.RAMSize = s.RAMSize
	pp.LookupTable = make([]fr.Element, len(s.LookupTable))
	for i := range s.LookupTable {
		pp.LookupTable[i].SetBytes(s.LookupTable[i])
	}
	d, err := pp.computeDigest()
	if err != nil {
		return err
	}
	pp.digest = d
	return nil
}

// PublicIO is the statement: the input laid over RAM[0:len(Input)] before
// execution, and the claimed final RAM values at [0:len(Output)].
type PublicIO struct {
	Input  []uint64
	Output []uint64
}

// OutputTable is the claimed output as a dense table over the RAM address
// space, zero outside the output region.
func (pub PublicIO) OutputTable(ramSize int) []fr.Element {
	res := make([]fr.Element, ramSize)
	for i, v := range pub.Output {
		res[i].SetUint64(v)
	}
	return res
}

// OutputSelector is the 0/1 indicator of the output region.
func (pub PublicIO) OutputSelector(ramSize int) []fr.Element {
	res := make([]fr.Element, ramSize)
	for i := range pub.Output {
		res[i].SetOne()
	}
	return res
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

func nextPowerOfTwo(n int) int {
	if isPowerOfTwo(n) {
		return n
	}
	return 1 << bits.Len(uint(n))
}
