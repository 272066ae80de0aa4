package vm

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Cycle is one executed step. Values are the machine's raw words; column
// extraction lifts them to field elements.
type Cycle struct {
	PC    int
	Instr Instruction

	Rs1Value, Rs2Value uint64
	RdOldValue         uint64 // rd's value before the write
	WriteValue         uint64 // value written to rd; 0 when no register write

	RAMAddr  int    // accessed RAM address; 0 when the cycle touches no RAM
	RAMValue uint64 // RAM[RAMAddr] before the step

	LookupIndex  int
	LookupOutput uint64
}

// ExecutionTrace is the prover-only witness: the executed cycles padded
// to a power-of-two length with halt cycles, plus the machine's final
// state.
type ExecutionTrace struct {
	Cycles    []Cycle
	FinalRegs []uint64
	FinalRAM  []uint64
}

// T is the padded trace length.
func (tr *ExecutionTrace) T() int { return len(tr.Cycles) }

// Validate checks every access in the trace against the machine shape. It
// returns the number of distinct RAM addresses the trace touches.
func (tr *ExecutionTrace) Validate(pp *Preprocessing) (int, error) {
	touched := bitset.New(uint(pp.RAMSize))
	for i, c := range tr.Cycles {
		if c.PC < 0 || c.PC >= len(pp.Bytecode) {
			return 0, fmt.Errorf("cycle %d: %w: pc %d", i, ErrAddrRange, c.PC)
		}
		if c.RAMAddr < 0 || c.RAMAddr >= pp.RAMSize {
			return 0, fmt.Errorf("cycle %d: %w: ram address %d", i, ErrAddrRange, c.RAMAddr)
		}
		if c.LookupIndex < 0 || c.LookupIndex >= len(pp.LookupTable) {
			return 0, fmt.Errorf("cycle %d: %w: index %d", i, ErrLookupRange, c.LookupIndex)
		}
		touched.Set(uint(c.RAMAddr))
	}
	if len(tr.FinalRegs) != NbRegisters || len(tr.FinalRAM) != pp.RAMSize {
		return 0, fmt.Errorf("%w: final state", ErrInvalidShape)
	}
	return int(touched.Count()), nil
}

// Emulate runs the program on the public input and returns the padded
// trace. maxCycles bounds execution; a program still running past it
// fails with ErrNoHalt.
func Emulate(pp *Preprocessing, pub PublicIO, maxCycles int) (*ExecutionTrace, error) {
	if len(pub.Input) > pp.RAMSize || len(pub.Output) > pp.RAMSize {
		return nil, ErrPublicIOShape
	}
	regs := make([]uint64, NbRegisters)
	ram := make([]uint64, pp.RAMSize)
	for i, v := range pub.Input {
		ram[i] = v
	}

	var cycles []Cycle
	pc := 0
	halted := false
	for step := 0; step < maxCycles && !halted; step++ {
		ins := pp.Bytecode[pc]
		c := Cycle{
			PC:         pc,
			Instr:      ins,
			Rs1Value:   regs[ins.Rs1],
			Rs2Value:   regs[ins.Rs2],
			RdOldValue: regs[ins.Rd],
			RAMValue:   ram[0],
		}
		switch ins.Opcode {
		case OpAdd:
			idx := regs[ins.Rs1] + regs[ins.Rs2]
			if idx >= uint64(len(pp.LookupTable)) {
				return nil, fmt.Errorf("%w: index %d at pc %d", ErrLookupRange, idx, pc)
			}
			c.LookupIndex = int(idx)
			c.LookupOutput = idx
			c.RdOldValue = regs[ins.Rd]
			c.WriteValue = idx
			regs[ins.Rd] = idx
			pc++
		case OpLoad:
			if int(ins.Imm) >= pp.RAMSize {
				return nil, fmt.Errorf("%w: address %d at pc %d", ErrAddrRange, ins.Imm, pc)
			}
			c.RAMAddr = int(ins.Imm)
			c.RAMValue = ram[ins.Imm]
			c.RdOldValue = regs[ins.Rd]
			c.WriteValue = ram[ins.Imm]
			regs[ins.Rd] = ram[ins.Imm]
			pc++
		case OpStore:
			if int(ins.Imm) >= pp.RAMSize {
				return nil, fmt.Errorf("%w: address %d at pc %d", ErrAddrRange, ins.Imm, pc)
			}
			c.RAMAddr = int(ins.Imm)
			c.RAMValue = ram[ins.Imm]
			ram[ins.Imm] = regs[ins.Rs2]
			pc++
		case OpHalt:
			halted = true
		default:
			return nil, fmt.Errorf("vm: unknown opcode %d at pc %d", ins.Opcode, pc)
		}
		cycles = append(cycles, c)
	}
	if !halted {
		return nil, ErrNoHalt
	}

	// pad with halt cycles at the frozen pc
	haltPC := cycles[len(cycles)-1].PC
	target := nextPowerOfTwo(len(cycles))
	if target < 2 {
		target = 2
	}
	for len(cycles) < target {
		halt := pp.Bytecode[haltPC]
		cycles = append(cycles, Cycle{
			PC:         haltPC,
			Instr:      halt,
			Rs1Value:   regs[halt.Rs1],
			Rs2Value:   regs[halt.Rs2],
			RdOldValue: regs[halt.Rd],
			RAMValue:   ram[0],
		})
	}

	return &ExecutionTrace{Cycles: cycles, FinalRegs: regs, FinalRAM: ram}, nil
}
