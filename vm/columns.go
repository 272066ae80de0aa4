package vm

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/sync/errgroup"

	"github.com/consensys/zkvm/memchk"
)

// ColumnID indexes the committed trace columns. The read-value columns
// double as the memory checkers' rv polynomials.
type ColumnID int

const (
	ColOp ColumnID = iota
	ColRd
	ColRs1
	ColRs2
	ColImm
	ColBcVal // packed instruction read from the bytecode
	ColRs1V
	ColRs2V
	ColRdOldV
	ColWv // register write value
	ColRamRv
	ColIncReg
	ColIncRam
	ColLkIdx
	ColLkOut
	ColFALU
	ColFLoad
	ColFStore
	ColFNoop
	ColPC
	ColPCNext

	NbColumns
)

// ColumnNames label the committed columns in the opening accumulator and
// the transcript.
var ColumnNames = [NbColumns]string{
	"op", "rd", "rs1", "rs2", "imm", "bcval",
	"rs1v", "rs2v", "rdoldv", "wv", "ramrv",
	"increg", "incram", "lkidx", "lkout",
	"falu", "fload", "fstore", "fnoop", "pc", "pcnext",
}

func flags(op uint8) (alu, load, store, noop bool) {
	switch op {
	case OpAdd:
		return true, false, false, false
	case OpLoad:
		return false, true, false, false
	case OpStore:
		return false, false, true, false
	default:
		return false, false, false, true
	}
}

// Columns extracts the committed column tables from the trace, one
// goroutine per column family.
func (tr *ExecutionTrace) Columns() ([][]fr.Element, error) {
	t := tr.T()
	cols := make([][]fr.Element, NbColumns)
	for i := range cols {
		cols[i] = make([]fr.Element, t)
	}

	var g errgroup.Group
	g.Go(func() error { // decoded instruction fields
		for i, c := range tr.Cycles {
			cols[ColOp][i].SetUint64(uint64(c.Instr.Opcode))
			cols[ColRd][i].SetUint64(uint64(c.Instr.Rd))
			cols[ColRs1][i].SetUint64(uint64(c.Instr.Rs1))
			cols[ColRs2][i].SetUint64(uint64(c.Instr.Rs2))
			cols[ColImm][i].SetUint64(uint64(c.Instr.Imm))
			cols[ColBcVal][i] = c.Instr.Encode()
		}
		return nil
	})
	g.Go(func() error { // register and RAM values
		var old fr.Element
		for i, c := range tr.Cycles {
			cols[ColRs1V][i].SetUint64(c.Rs1Value)
			cols[ColRs2V][i].SetUint64(c.Rs2Value)
			cols[ColRdOldV][i].SetUint64(c.RdOldValue)
			cols[ColWv][i].SetUint64(c.WriteValue)
			cols[ColRamRv][i].SetUint64(c.RAMValue)
			if c.Instr.Opcode == OpAdd || c.Instr.Opcode == OpLoad {
				old.SetUint64(c.RdOldValue)
				cols[ColIncReg][i].SetUint64(c.WriteValue)
				cols[ColIncReg][i].Sub(&cols[ColIncReg][i], &old)
			}
			if c.Instr.Opcode == OpStore {
				old.SetUint64(c.RAMValue)
				cols[ColIncRam][i].SetUint64(c.Rs2Value)
				cols[ColIncRam][i].Sub(&cols[ColIncRam][i], &old)
			}
		}
		return nil
	})
	g.Go(func() error { // lookup, flags, program counter
		for i, c := range tr.Cycles {
			cols[ColLkIdx][i].SetUint64(uint64(c.LookupIndex))
			cols[ColLkOut][i].SetUint64(c.LookupOutput)
			alu, load, store, noop := flags(c.Instr.Opcode)
			setBool(&cols[ColFALU][i], alu)
			setBool(&cols[ColFLoad][i], load)
			setBool(&cols[ColFStore][i], store)
			setBool(&cols[ColFNoop][i], noop)
			cols[ColPC][i].SetUint64(uint64(c.PC))
			if i+1 < t {
				cols[ColPCNext][i].SetUint64(uint64(tr.Cycles[i+1].PC))
			} else {
				cols[ColPCNext][i].SetUint64(uint64(c.PC))
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cols, nil
}

// RegisterAccesses views the trace as the register file's access streams:
// three read ports (rs1, rs2, rd-before-write) and one write stream.
func (tr *ExecutionTrace) RegisterAccesses(cols [][]fr.Element) *memchk.Accesses {
	t := tr.T()
	acc := &memchk.Accesses{
		K:          NbRegisters,
		T:          t,
		Init:       make([]fr.Element, NbRegisters),
		ReadAddrs:  make([][]int, 3),
		ReadValues: [][]fr.Element{cols[ColRs1V], cols[ColRs2V], cols[ColRdOldV]},
		WriteAddrs: make([]int, t),
		Incs:       cols[ColIncReg],
		Final:      make([]fr.Element, NbRegisters),
	}
	for p := range acc.ReadAddrs {
		acc.ReadAddrs[p] = make([]int, t)
	}
	for i, c := range tr.Cycles {
		acc.ReadAddrs[0][i] = int(c.Instr.Rs1)
		acc.ReadAddrs[1][i] = int(c.Instr.Rs2)
		acc.ReadAddrs[2][i] = int(c.Instr.Rd)
		if c.Instr.Opcode == OpAdd || c.Instr.Opcode == OpLoad {
			acc.WriteAddrs[i] = int(c.Instr.Rd)
		}
	}
	for i, v := range tr.FinalRegs {
		acc.Final[i].SetUint64(v)
	}
	return acc
}

// RAMAccesses views the trace as the RAM's access streams: one read port
// and one write stream. Cycles that touch no RAM read address 0.
func (tr *ExecutionTrace) RAMAccesses(pp *Preprocessing, pub PublicIO, cols [][]fr.Element) *memchk.Accesses {
	t := tr.T()
	acc := &memchk.Accesses{
		K:          pp.RAMSize,
		T:          t,
		Init:       pp.RAMInit(pub),
		ReadAddrs:  [][]int{make([]int, t)},
		ReadValues: [][]fr.Element{cols[ColRamRv]},
		WriteAddrs: make([]int, t),
		Incs:       cols[ColIncRam],
		Final:      make([]fr.Element, pp.RAMSize),
	}
	for i, c := range tr.Cycles {
		acc.ReadAddrs[0][i] = c.RAMAddr
		if c.Instr.Opcode == OpStore {
			acc.WriteAddrs[i] = c.RAMAddr
		}
	}
	for i, v := range tr.FinalRAM {
		acc.Final[i].SetUint64(v)
	}
	return acc
}

// BytecodeReads is the bytecode port's access stream: address pc, value
// the packed instruction.
func (tr *ExecutionTrace) BytecodeReads() []int {
	res := make([]int, tr.T())
	for i, c := range tr.Cycles {
		res[i] = c.PC
	}
	return res
}

// LookupReads is the lookup port's access stream.
func (tr *ExecutionTrace) LookupReads() []int {
	res := make([]int, tr.T())
	for i, c := range tr.Cycles {
		res[i] = c.LookupIndex
	}
	return res
}

func setBool(e *fr.Element, b bool) {
	if b {
		e.SetOne()
	}
}
