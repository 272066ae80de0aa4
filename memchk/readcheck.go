package memchk

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/zkvm/internal/parallel"
	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/poly"
	"github.com/consensys/zkvm/sumcheck"
)

// evaluation points 0..3 and their complements, shared by the phase-1
// message loops
var uElems, oneMinusU = func() ([4]fr.Element, [4]fr.Element) {
	var u, m [4]fr.Element
	var one fr.Element
	one.SetOne()
	for i := 0; i < 4; i++ {
		u[i].SetUint64(uint64(i))
		m[i].Sub(&one, &u[i])
	}
	return u, m
}()

// ReadCheck is the streaming sumcheck instance proving one read port's
// consistency. It binds the k address variables first (phase 1, chunked
// over steps against checkpoint tables), then the τ step variables over
// dense tables (phase 2). SwitchIndex reports the phase boundary recorded
// in the proof.
type ReadCheck struct {
	stage  string
	labels Labels
	k, tau int
	claim  fr.Element
	rStep  []fr.Element

	readAddrs  []int
	writeAddrs []int // nil for a read-only memory
	incs       []fr.Element
	chunkSize  int
	nbTasks    int

	round  int
	readW  []fr.Element
	writeW []fr.Element
	cps    []polynomial.MultiLin // per-chunk checkpoint tables, folded as rounds progress
	table  polynomial.MultiLin   // read-only: the static table, folded
	eqStep polynomial.MultiLin

	inner *sumcheck.Product

	valValue fr.Element
	valPoint []fr.Element
	hasVal   bool
}

// NewReadCheck builds the read-check instance for one read port of a
// writable memory. claim is r̃v(rStep) for that port.
func NewReadCheck(stage string, labels Labels, acc *Accesses, port int, rStep []fr.Element, claim fr.Element, cfg Config) (*ReadCheck, error) {
	if cfg.Strategy != StrategyLocal {
		return nil, ErrUnsupportedStrategy
	}
	rc := &ReadCheck{
		stage:      stage,
		labels:     labels,
		k:          log2(acc.K),
		tau:        log2(acc.T),
		claim:      claim,
		rStep:      rStep,
		readAddrs:  acc.ReadAddrs[port],
		writeAddrs: acc.WriteAddrs,
		incs:       acc.Incs,
		chunkSize:  cfg.ChunkSize,
		nbTasks:    cfg.NbTasks,
	}
	if rc.chunkSize > acc.T {
		rc.chunkSize = acc.T
	}
	rc.init(acc.Init)
	if rc.k == 0 {
		rc.buildPhase2()
	}
	return rc, nil
}

// NewReadOnlyCheck builds the read-check instance for a static table.
func NewReadOnlyCheck(stage string, labels Labels, table []fr.Element, readAddrs []int, rStep []fr.Element, claim fr.Element, cfg Config) (*ReadCheck, error) {
	if cfg.Strategy != StrategyLocal {
		return nil, ErrUnsupportedStrategy
	}
	rc := &ReadCheck{
		stage:     stage,
		labels:    labels,
		k:         log2(len(table)),
		tau:       log2(len(readAddrs)),
		claim:     claim,
		rStep:     rStep,
		readAddrs: readAddrs,
		chunkSize: cfg.ChunkSize,
		nbTasks:   cfg.NbTasks,
	}
	if rc.chunkSize > len(readAddrs) {
		rc.chunkSize = len(readAddrs)
	}
	rc.table = make(polynomial.MultiLin, len(table))
	copy(rc.table, table)
	rc.readW = ones(len(readAddrs))
	rc.eqStep = poly.EqTable(rStep)
	if rc.k == 0 {
		rc.buildPhase2()
	}
	return rc, nil
}

func (rc *ReadCheck) init(initVals []fr.Element) {
	t := len(rc.readAddrs)
	rc.readW = ones(t)
	rc.writeW = ones(t)
	rc.eqStep = poly.EqTable(rc.rStep)

	// checkpoint the value table at every chunk boundary
	nbChunks := t / rc.chunkSize
	rc.cps = make([]polynomial.MultiLin, nbChunks)
	state := make(polynomial.MultiLin, len(initVals))
	copy(state, initVals)
	for c := 0; c < nbChunks; c++ {
		rc.cps[c] = state.Clone()
		for step := c * rc.chunkSize; step < (c+1)*rc.chunkSize; step++ {
			state[rc.writeAddrs[step]].Add(&state[rc.writeAddrs[step]], &rc.incs[step])
		}
	}
}

func (rc *ReadCheck) readOnly() bool { return rc.writeAddrs == nil }

func (rc *ReadCheck) NbRounds() int { return rc.k + rc.tau }

func (rc *ReadCheck) Degree() int {
	if rc.readOnly() {
		return 2
	}
	return 3
}

func (rc *ReadCheck) InitialClaim() fr.Element { return rc.claim }

// SwitchIndex is the round at which the instance switches from address to
// step binding; it is recorded in the proof so the verifier replays the
// same phase structure.
func (rc *ReadCheck) SwitchIndex() int { return rc.k }

func (rc *ReadCheck) RoundMessage() poly.Univariate {
	if rc.round >= rc.k {
		return rc.inner.RoundMessage()
	}
	if rc.readOnly() {
		return rc.phase1MessageReadOnly()
	}
	return rc.phase1Message()
}

func (rc *ReadCheck) phase1Message() poly.Univariate {
	deg := rc.Degree()
	rem := rc.k - rc.round
	mid := 1 << (rem - 1)
	mask := (1 << rem) - 1

	partials := make([]poly.Univariate, len(rc.cps))
	parallel.Execute(len(rc.cps), func(start, end int) {
		var base, pair, chiU, contrib fr.Element
		for c := start; c < end; c++ {
			fv := rc.cps[c].Clone()
			sum := make(poly.Univariate, deg+1)
			for step := c * rc.chunkSize; step < (c+1)*rc.chunkSize; step++ {
				a := rc.readAddrs[step]
				idx := a & mask
				b := idx >> (rem - 1)
				rest := idx & (mid - 1)
				base.Mul(&rc.eqStep[step], &rc.readW[step])
				for u := 0; u <= deg; u++ {
					// χ(u, b) · ((1-u)·fv₀ + u·fv₁)
					pair.Mul(&oneMinusU[u], &fv[rest])
					contrib.Mul(&uElems[u], &fv[mid+rest])
					pair.Add(&pair, &contrib)
					if b == 1 {
						chiU.Set(&uElems[u])
					} else {
						chiU.Set(&oneMinusU[u])
					}
					contrib.Mul(&base, &chiU)
					contrib.Mul(&contrib, &pair)
					sum[u].Add(&sum[u], &contrib)
				}
				// the step's write lands after its read
				wIdx := rc.writeAddrs[step] & mask
				contrib.Mul(&rc.writeW[step], &rc.incs[step])
				fv[wIdx].Add(&fv[wIdx], &contrib)
			}
			partials[c] = sum
		}
	}, rc.nbTasks)

	return reduce(partials, deg)
}

func (rc *ReadCheck) phase1MessageReadOnly() poly.Univariate {
	deg := rc.Degree()
	rem := rc.k - rc.round
	mid := 1 << (rem - 1)
	mask := (1 << rem) - 1
	t := len(rc.readAddrs)

	nbChunks := t / rc.chunkSize
	partials := make([]poly.Univariate, nbChunks)
	parallel.Execute(nbChunks, func(start, end int) {
		var base, pair, chiU, contrib fr.Element
		for c := start; c < end; c++ {
			sum := make(poly.Univariate, deg+1)
			for step := c * rc.chunkSize; step < (c+1)*rc.chunkSize; step++ {
				a := rc.readAddrs[step]
				idx := a & mask
				b := idx >> (rem - 1)
				rest := idx & (mid - 1)
				base.Mul(&rc.eqStep[step], &rc.readW[step])
				for u := 0; u <= deg; u++ {
					pair.Mul(&oneMinusU[u], &rc.table[rest])
					contrib.Mul(&uElems[u], &rc.table[mid+rest])
					pair.Add(&pair, &contrib)
					if b == 1 {
						chiU.Set(&uElems[u])
					} else {
						chiU.Set(&oneMinusU[u])
					}
					contrib.Mul(&base, &chiU)
					contrib.Mul(&contrib, &pair)
					sum[u].Add(&sum[u], &contrib)
				}
			}
			partials[c] = sum
		}
	}, rc.nbTasks)

	return reduce(partials, deg)
}

func (rc *ReadCheck) Bind(r *fr.Element) {
	if rc.round >= rc.k {
		rc.inner.Bind(r)
		rc.round++
		return
	}
	j := rc.round
	shift := rc.k - 1 - j

	parallel.Execute(len(rc.readAddrs), func(start, end int) {
		var c fr.Element
		for step := start; step < end; step++ {
			c = chi(r, (rc.readAddrs[step]>>shift)&1)
			rc.readW[step].Mul(&rc.readW[step], &c)
			if rc.writeAddrs != nil {
				c = chi(r, (rc.writeAddrs[step]>>shift)&1)
				rc.writeW[step].Mul(&rc.writeW[step], &c)
			}
		}
	}, rc.nbTasks)

	if rc.readOnly() {
		rc.table.Fold(*r)
	} else {
		parallel.Execute(len(rc.cps), func(start, end int) {
			for c := start; c < end; c++ {
				rc.cps[c].Fold(*r)
			}
		}, rc.nbTasks)
	}

	rc.round++
	if rc.round == rc.k {
		rc.buildPhase2()
	}
}

// buildPhase2 materializes the dense step tables once every address
// variable is bound.
func (rc *ReadCheck) buildPhase2() {
	t := len(rc.readAddrs)
	raT := make(polynomial.MultiLin, t)
	copy(raT, rc.readW)

	var zero fr.Element
	if rc.readOnly() {
		// Val(·, t) is the constant T̃able(r_a); scale it into the eq factor
		c := rc.table[0]
		for i := range rc.eqStep {
			rc.eqStep[i].Mul(&rc.eqStep[i], &c)
		}
		rc.inner = sumcheck.NewProduct(zero, []polynomial.MultiLin{rc.eqStep, raT}, nil, rc.nbTasks)
		return
	}

	valT := make(polynomial.MultiLin, t)
	var s, d fr.Element
	for c := range rc.cps {
		s.Set(&rc.cps[c][0])
		for step := c * rc.chunkSize; step < (c+1)*rc.chunkSize; step++ {
			valT[step].Set(&s)
			d.Mul(&rc.writeW[step], &rc.incs[step])
			s.Add(&s, &d)
		}
	}
	rc.inner = sumcheck.NewProduct(zero, []polynomial.MultiLin{rc.eqStep, raT, valT}, nil, rc.nbTasks)
}

// FinalClaims appends the rv and ra opening claims; for a writable memory
// it also retains the Val claim resolved by the value-evaluation stage.
func (rc *ReadCheck) FinalClaims(acc *opening.ProverAccumulator, point []fr.Element) {
	vals := rc.inner.FactorValues()
	acc.Append(rc.stage, rc.labels.Rv, rc.rStep, rc.claim)
	acc.Append(rc.stage, rc.labels.Ra, point, vals[1])
	if !rc.readOnly() {
		rc.valValue = vals[2]
		rc.valPoint = point
		rc.hasVal = true
	}
}

// ValClaim returns the deferred Val evaluation claim left by FinalClaims.
func (rc *ReadCheck) ValClaim() (value fr.Element, point []fr.Element, ok bool) {
	return rc.valValue, rc.valPoint, rc.hasVal
}

func ones(n int) []fr.Element {
	res := make([]fr.Element, n)
	for i := range res {
		res[i].SetOne()
	}
	return res
}

func reduce(partials []poly.Univariate, deg int) poly.Univariate {
	res := make(poly.Univariate, deg+1)
	for _, p := range partials {
		for u := range res {
			res[u].Add(&res[u], &p[u])
		}
	}
	return res
}

func log2(n int) int {
	res := 0
	for 1<<res < n {
		res++
	}
	return res
}
