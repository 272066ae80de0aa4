package vm

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureProgram loads the two inputs, adds them through the lookup table
// and stores the sum at RAM[2].
func fixtureProgram() []Instruction {
	return []Instruction{
		{Opcode: OpLoad, Rd: 1, Imm: 0},
		{Opcode: OpLoad, Rd: 2, Imm: 1},
		{Opcode: OpAdd, Rd: 3, Rs1: 1, Rs2: 2},
		{Opcode: OpStore, Rs2: 3, Imm: 2},
		{Opcode: OpHalt},
	}
}

func fixturePreprocessing(t *testing.T) *Preprocessing {
	t.Helper()
	pp, err := NewPreprocessing(fixtureProgram(), IdentityLookupTable(32), 8)
	require.NoError(t, err)
	return pp
}

func TestEmulateFixtureProgram(t *testing.T) {
	pp := fixturePreprocessing(t)
	pub := PublicIO{Input: []uint64{3, 4}, Output: []uint64{3, 4, 7}}

	trace, err := Emulate(pp, pub, 1024)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), trace.FinalRegs[3])
	assert.Equal(t, uint64(7), trace.FinalRAM[2])
	assert.Equal(t, uint64(3), trace.FinalRAM[0])
	assert.Equal(t, uint64(4), trace.FinalRAM[1])

	// 5 executed cycles padded to 8 with halts at the frozen pc
	require.Equal(t, 8, trace.T())
	for i := 5; i < 8; i++ {
		assert.Equal(t, 4, trace.Cycles[i].PC)
		assert.Equal(t, OpHalt, trace.Cycles[i].Instr.Opcode)
	}

	touched, err := trace.Validate(pp)
	require.NoError(t, err)
	assert.Equal(t, 3, touched) // addresses 0, 1, 2

	// the store cycle reads the address's old value
	assert.Equal(t, uint64(0), trace.Cycles[3].RAMValue)
	assert.Equal(t, 2, trace.Cycles[3].RAMAddr)
}

func TestEmulateHonorsMaxCycles(t *testing.T) {
	program := []Instruction{
		{Opcode: OpAdd, Rd: 1},
		{Opcode: OpAdd, Rd: 1},
		{Opcode: OpAdd, Rd: 1},
		{Opcode: OpAdd, Rd: 1},
	}
	pp, err := NewPreprocessing(program, IdentityLookupTable(32), 8)
	require.NoError(t, err)

	_, err = Emulate(pp, PublicIO{}, 2)
	assert.ErrorIs(t, err, ErrNoHalt)
}

func TestEmulateRejectsLookupOverflow(t *testing.T) {
	program := []Instruction{
		{Opcode: OpLoad, Rd: 1, Imm: 0},
		{Opcode: OpAdd, Rd: 2, Rs1: 1, Rs2: 1},
		{Opcode: OpHalt},
	}
	pp, err := NewPreprocessing(program, IdentityLookupTable(32), 8)
	require.NoError(t, err)

	_, err = Emulate(pp, PublicIO{Input: []uint64{100}}, 1024)
	assert.ErrorIs(t, err, ErrLookupRange)
}

func TestEmulateRejectsOversizedPublicIO(t *testing.T) {
	pp := fixturePreprocessing(t)
	_, err := Emulate(pp, PublicIO{Input: make([]uint64, 9)}, 1024)
	assert.ErrorIs(t, err, ErrPublicIOShape)
}

func TestInstructionEncoding(t *testing.T) {
	ins := Instruction{Opcode: OpStore, Rd: 1, Rs1: 2, Rs2: 3, Imm: 7}
	want := uint64(OpStore) | 1<<8 | 2<<16 | 3<<24 | 7<<32
	var e fr.Element
	e.SetUint64(want)
	got := ins.Encode()
	assert.True(t, got.Equal(&e))
}

func TestPreprocessingShapeChecks(t *testing.T) {
	_, err := NewPreprocessing(nil, IdentityLookupTable(32), 8)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = NewPreprocessing(fixtureProgram(), IdentityLookupTable(31), 8)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = NewPreprocessing(fixtureProgram(), IdentityLookupTable(32), 6)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestPreprocessingPadsBytecode(t *testing.T) {
	pp := fixturePreprocessing(t)
	require.Len(t, pp.Bytecode, 8)
	for i := 5; i < 8; i++ {
		assert.Equal(t, OpHalt, pp.Bytecode[i].Opcode)
	}
}

func TestPreprocessingSerializationRoundTrip(t *testing.T) {
	pp := fixturePreprocessing(t)
	data, err := pp.MarshalBinary()
	require.NoError(t, err)

	var decoded Preprocessing
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Empty(t, cmp.Diff(pp, &decoded, cmp.AllowUnexported(Preprocessing{})))
	assert.Equal(t, pp.Digest(), decoded.Digest())
}

func TestDigestBindsShape(t *testing.T) {
	a := fixturePreprocessing(t)
	b, err := NewPreprocessing(fixtureProgram(), IdentityLookupTable(32), 16)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), b.Digest())

	program := fixtureProgram()
	program[2].Rd = 4
	c, err := NewPreprocessing(program, IdentityLookupTable(32), 8)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	pp := fixturePreprocessing(t)
	trace, err := Emulate(pp, PublicIO{Input: []uint64{3, 4}}, 1024)
	require.NoError(t, err)

	bad := *trace
	bad.Cycles = append([]Cycle{}, trace.Cycles...)
	bad.Cycles[0].PC = len(pp.Bytecode)
	_, err = bad.Validate(pp)
	assert.ErrorIs(t, err, ErrAddrRange)

	bad.Cycles[0].PC = 0
	bad.Cycles[1].RAMAddr = pp.RAMSize
	_, err = bad.Validate(pp)
	assert.ErrorIs(t, err, ErrAddrRange)

	bad.Cycles[1].RAMAddr = 0
	bad.Cycles[2].LookupIndex = len(pp.LookupTable)
	_, err = bad.Validate(pp)
	assert.ErrorIs(t, err, ErrLookupRange)

	short := *trace
	short.FinalRegs = trace.FinalRegs[:1]
	_, err = short.Validate(pp)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

// replay applies an access stream's writes to its initial state and
// compares against the recorded final state.
func replay(t *testing.T, init []fr.Element, writeAddrs []int, incs, final []fr.Element) {
	t.Helper()
	state := make([]fr.Element, len(init))
	copy(state, init)
	for i, a := range writeAddrs {
		state[a].Add(&state[a], &incs[i])
	}
	for i := range state {
		assert.True(t, state[i].Equal(&final[i]), "address %d", i)
	}
}

func TestAccessStreamsReplayToFinalState(t *testing.T) {
	pp := fixturePreprocessing(t)
	pub := PublicIO{Input: []uint64{3, 4}}
	trace, err := Emulate(pp, pub, 1024)
	require.NoError(t, err)

	cols, err := trace.Columns()
	require.NoError(t, err)

	regAcc := trace.RegisterAccesses(cols)
	replay(t, regAcc.Init, regAcc.WriteAddrs, regAcc.Incs, regAcc.Final)

	ramAcc := trace.RAMAccesses(pp, pub, cols)
	replay(t, ramAcc.Init, ramAcc.WriteAddrs, ramAcc.Incs, ramAcc.Final)
}

func TestColumnsConsistency(t *testing.T) {
	pp := fixturePreprocessing(t)
	pub := PublicIO{Input: []uint64{3, 4}}
	trace, err := Emulate(pp, pub, 1024)
	require.NoError(t, err)

	cols, err := trace.Columns()
	require.NoError(t, err)
	require.Len(t, cols, int(NbColumns))
	for id, col := range cols {
		assert.Len(t, col, trace.T(), "column %s", ColumnNames[id])
	}

	var one fr.Element
	one.SetOne()
	for i := range trace.Cycles {
		// exactly one flag per cycle
		var sum fr.Element
		sum.Add(&cols[ColFALU][i], &cols[ColFLoad][i])
		sum.Add(&sum, &cols[ColFStore][i])
		sum.Add(&sum, &cols[ColFNoop][i])
		assert.True(t, sum.Equal(&one), "cycle %d", i)

		// pcnext chains to the next cycle's pc
		if i+1 < trace.T() {
			assert.True(t, cols[ColPCNext][i].Equal(&cols[ColPC][i+1]), "cycle %d", i)
		}
	}
}
