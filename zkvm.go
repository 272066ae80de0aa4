// Package zkvm proves and verifies the correct execution of a program on
// the vm machine model.
//
// A proof is produced by a fixed pipeline of batched sumcheck stages:
// constraint satisfaction over the cycle variables, then read consistency
// for the register file, the RAM, the bytecode and the lookup table, then
// value evolution for the writable memories together with the public
// output check. Every stage deposits its polynomial opening claims in a
// shared accumulator, settled by a single batched commitment opening.
package zkvm

import (
	"crypto/rand"
	"errors"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/consensys/zkvm/memchk"
	"github.com/consensys/zkvm/pcs"
	"github.com/consensys/zkvm/vm"
)

var (
	ErrMissingSRS  = errors.New("zkvm: no SRS configured, use WithSRS")
	ErrSRSTooSmall = errors.New("zkvm: SRS too small for the committed polynomials")
	ErrTraceShape  = errors.New("zkvm: trace length must be a power of two, at least 2")
)

type config struct {
	chunkSize int
	nbTasks   int
	strategy  memchk.BindingStrategy
	srs       *kzg.SRS
}

// Option configures a Prove or Verify call.
type Option func(*config) error

// WithChunkSize sets the memory checker's checkpoint interval. It affects
// prover memory and parallelism only, never the proof.
func WithChunkSize(c int) Option {
	return func(cfg *config) error {
		if c < 1 || c&(c-1) != 0 {
			return errors.New("zkvm: chunk size must be a power of two")
		}
		cfg.chunkSize = c
		return nil
	}
}

// WithNbTasks bounds the worker pool width.
func WithNbTasks(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return errors.New("zkvm: nbTasks must be at least 1")
		}
		cfg.nbTasks = n
		return nil
	}
}

// WithBindingStrategy selects the memory checker's variable binding order.
func WithBindingStrategy(s memchk.BindingStrategy) Option {
	return func(cfg *config) error {
		cfg.strategy = s
		return nil
	}
}

// WithSRS sets the KZG structured reference string. Required by both
// Prove and Verify.
func WithSRS(srs *kzg.SRS) Option {
	return func(cfg *config) error {
		cfg.srs = srs
		return nil
	}
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		chunkSize: 64,
		nbTasks:   runtime.NumCPU(),
		strategy:  memchk.StrategyLocal,
	}
	for _, o := range opts {
		if err := o(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (cfg *config) memchk() memchk.Config {
	return memchk.Config{ChunkSize: cfg.chunkSize, NbTasks: cfg.nbTasks, Strategy: cfg.strategy}
}

// srsSize is the largest committed polynomial for traces up to maxT
// cycles: the densest address-by-step indicator grid.
func srsSize(pp *vm.Preprocessing, maxT int) uint64 {
	m := vm.NbRegisters
	if pp.RAMSize > m {
		m = pp.RAMSize
	}
	if len(pp.Bytecode) > m {
		m = len(pp.Bytecode)
	}
	if len(pp.LookupTable) > m {
		m = len(pp.LookupTable)
	}
	return uint64(m * maxT)
}

// Setup draws a fresh SRS large enough for traces up to maxT cycles. The
// trapdoor is sampled and discarded; meant for tests and development, a
// production deployment consumes a ceremony transcript instead.
func Setup(pp *vm.Preprocessing, maxT int) (*kzg.SRS, error) {
	tau, err := rand.Int(rand.Reader, fr.Modulus())
	if err != nil {
		return nil, err
	}
	return pcs.NewSRS(srsSize(pp, maxT)+3, tau)
}

// DebugInfo reports where proving time went.
type DebugInfo struct {
	CommitMs  int64
	OuterMs   int64
	ReadMs    int64
	ValueMs   int64
	OpeningMs int64
}

func log2(n int) int {
	res := 0
	for 1<<res < n {
		res++
	}
	return res
}
