// Package memchk implements the generic read/write consistency-checking
// protocol the engine reuses for the register file, main memory, bytecode
// and lookup-table validity.
//
// A memory has K addresses (power of two) and lives through T steps
// (power of two). Every step reads one address per read port and applies
// one increment to one written address (a zero increment to address 0 when
// the step writes nothing). Consistency is proved through three sumcheck
// claims per memory:
//
//   - read-check (one per port): r̃v(r_t) = ∑_{a,t} eq(r_t,t)·ra(a,t)·Val(a,t),
//     where Val(a,t) is the value held by a before step t. The prover runs
//     this as a streaming instance: address variables are bound first while
//     steps stay explicit, driven by per-chunk checkpoint tables, then the
//     binding switches to step variables over dense tables. The switch
//     index is part of the proof.
//   - value-evaluation: resolves the Val claim left by the read-check,
//     Ṽal(r_a, r_t') - ĩnit(r_a) = ∑_t LT̃(t, r_t')·wa(r_a,t)·inc(t).
//   - final-value: f̃inal(r_a) - ĩnit(r_a) = ∑_t wa(r_a,t)·inc(t).
//
// Read-only memories (a static table) only need the read-check, with
// Val = table evaluated directly by the verifier.
package memchk

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
)

// BindingStrategy selects the variable-binding order of the read-check
// instance.
type BindingStrategy uint8

const (
	// StrategyLocal binds address variables first, processing steps in
	// chunks against checkpointed baselines.
	StrategyLocal BindingStrategy = iota
	// StrategyAlternative is reserved; its binding order is not part of
	// this implementation.
	StrategyAlternative
)

// ErrUnsupportedStrategy is returned when a session is configured with a
// binding strategy this implementation does not provide.
var ErrUnsupportedStrategy = errors.New("memchk: unsupported binding strategy")

// Config tunes the prover side of the protocol. Proof contents and the
// verifier's decision are independent of ChunkSize and NbTasks.
type Config struct {
	// ChunkSize is the checkpoint interval C; a power of two dividing T.
	ChunkSize int
	// NbTasks bounds the worker pool width.
	NbTasks int
	Strategy BindingStrategy
}

// Labels names a memory's committed polynomials in the opening
// accumulator.
type Labels struct {
	Ra    string // read-address indicator, one polynomial per port
	Rv    string // read-value column
	Wa    string // write-address indicator
	Inc   string // per-step increment column
	Final string // final value per address
}

// Accesses is a memory's access streams over T steps, extracted from the
// execution trace. ReadAddrs and ReadValues hold one stream per port.
type Accesses struct {
	K, T       int
	Init       []fr.Element // len K; public baseline
	ReadAddrs  [][]int      // per port, len T
	ReadValues [][]fr.Element
	WriteAddrs []int // len T; 0 with a zero increment when no write
	Incs       []fr.Element
	Final      []fr.Element // len K
}

// chi returns r if bit is set, 1-r otherwise.
func chi(r *fr.Element, bit int) fr.Element {
	var res fr.Element
	if bit != 0 {
		res.Set(r)
		return res
	}
	res.SetOne()
	res.Sub(&res, r)
	return res
}

// IndicatorGrid expands the one-hot address indicator of an access stream
// into the dense (K·T)-sized evaluation vector committed to the PCS.
// Index layout: address bits high, step bits low.
func IndicatorGrid(addrs []int, k int, t int) []fr.Element {
	res := make([]fr.Element, (1<<k)*t)
	for step, a := range addrs {
		res[a*t+step].SetOne()
	}
	return res
}

// WriteAddressTable folds the one-hot write indicator's address variables
// at rA, leaving a dense per-step table wa(rA, ·).
func WriteAddressTable(addrs []int, rA []fr.Element) polynomial.MultiLin {
	k := len(rA)
	res := make(polynomial.MultiLin, len(addrs))
	var w, c fr.Element
	for t, a := range addrs {
		w.SetOne()
		for j := 0; j < k; j++ {
			bit := (a >> (k - 1 - j)) & 1
			c = chi(&rA[j], bit)
			w.Mul(&w, &c)
		}
		res[t].Set(&w)
	}
	return res
}
