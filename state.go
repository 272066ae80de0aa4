package zkvm

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/zkvm/memchk"
	"github.com/consensys/zkvm/vm"
)

// Stage names, used for accumulator bookkeeping and challenge prefixes.
const (
	stageOuter = "outer"
	stageRead  = "read"
	stageValue = "value"
)

// Memory labels. Read-value and increment columns are trace columns, so
// those labels alias ColumnNames and their opening claims merge with the
// outer stage's.
var (
	regLabelsRs1 = memchk.Labels{Ra: "reg.ra.rs1", Rv: vm.ColumnNames[vm.ColRs1V], Wa: "reg.wa", Inc: vm.ColumnNames[vm.ColIncReg], Final: "reg.final"}
	regLabelsRs2 = memchk.Labels{Ra: "reg.ra.rs2", Rv: vm.ColumnNames[vm.ColRs2V], Wa: "reg.wa", Inc: vm.ColumnNames[vm.ColIncReg], Final: "reg.final"}
	regLabelsRd  = memchk.Labels{Ra: "reg.ra.rd", Rv: vm.ColumnNames[vm.ColRdOldV], Wa: "reg.wa", Inc: vm.ColumnNames[vm.ColIncReg], Final: "reg.final"}
	ramLabels    = memchk.Labels{Ra: "ram.ra", Rv: vm.ColumnNames[vm.ColRamRv], Wa: "ram.wa", Inc: vm.ColumnNames[vm.ColIncRam], Final: "ram.final"}
	bcLabels     = memchk.Labels{Ra: "bc.ra", Rv: vm.ColumnNames[vm.ColBcVal]}
	lkLabels     = memchk.Labels{Ra: "lk.ra", Rv: vm.ColumnNames[vm.ColLkOut]}
)

// committedLabels is the canonical commitment order: trace columns first,
// then the memory checkers' indicator grids and final-state tables.
func committedLabels() []string {
	labels := make([]string, 0, int(vm.NbColumns)+10)
	for c := 0; c < int(vm.NbColumns); c++ {
		labels = append(labels, vm.ColumnNames[c])
	}
	return append(labels,
		regLabelsRs1.Ra, regLabelsRs2.Ra, regLabelsRd.Ra,
		regLabelsRs1.Wa, regLabelsRs1.Final,
		ramLabels.Ra, ramLabels.Wa, ramLabels.Final,
		bcLabels.Ra, lkLabels.Ra,
	)
}

// committedValues lays out the committed evaluation vectors in the
// committedLabels order.
func committedValues(pp *vm.Preprocessing, trace *vm.ExecutionTrace, cols [][]fr.Element,
	regAcc, ramAcc *memchk.Accesses) [][]fr.Element {

	t := trace.T()
	kReg := log2(vm.NbRegisters)
	kRAM := log2(pp.RAMSize)
	kBc := log2(len(pp.Bytecode))
	kLk := log2(len(pp.LookupTable))

	values := make([][]fr.Element, 0, int(vm.NbColumns)+10)
	values = append(values, cols...)
	return append(values,
		memchk.IndicatorGrid(regAcc.ReadAddrs[0], kReg, t),
		memchk.IndicatorGrid(regAcc.ReadAddrs[1], kReg, t),
		memchk.IndicatorGrid(regAcc.ReadAddrs[2], kReg, t),
		memchk.IndicatorGrid(regAcc.WriteAddrs, kReg, t),
		regAcc.Final,
		memchk.IndicatorGrid(ramAcc.ReadAddrs[0], kRAM, t),
		memchk.IndicatorGrid(ramAcc.WriteAddrs, kRAM, t),
		ramAcc.Final,
		memchk.IndicatorGrid(trace.BytecodeReads(), kBc, t),
		memchk.IndicatorGrid(trace.LookupReads(), kLk, t),
	)
}
