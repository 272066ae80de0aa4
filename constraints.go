package zkvm

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/zkvm/internal/parallel"
	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/poly"
	"github.com/consensys/zkvm/sumcheck"
	"github.com/consensys/zkvm/vm"
)

// colFirst is a virtual column: the indicator of the first cycle. It is
// never committed; the verifier evaluates its MLE directly.
const colFirst = int(vm.NbColumns)

const nbTables = colFirst + 1

type term struct {
	col   int
	coeff int64
}

// lincomb is an affine combination of columns with small integer
// coefficients.
type lincomb struct {
	terms []term
	k     int64
}

// row is one R1CS-shaped constraint a·b - c, enforced to vanish on every
// cycle.
type row struct {
	a, b, c lincomb
}

func one() lincomb                  { return lincomb{k: 1} }
func col(c vm.ColumnID) lincomb     { return lincomb{terms: []term{{int(c), 1}}} }
func virtual(c int) lincomb         { return lincomb{terms: []term{{c, 1}}} }
func (l lincomb) minus(c vm.ColumnID) lincomb {
	l.terms = append(l.terms, term{int(c), -1})
	return l
}
func (l lincomb) plus(c vm.ColumnID) lincomb {
	l.terms = append(l.terms, term{int(c), 1})
	return l
}
func (l lincomb) addConst(k int64) lincomb {
	l.k += k
	return l
}
func (l lincomb) addScaled(c vm.ColumnID, coeff int64) lincomb {
	l.terms = append(l.terms, term{int(c), coeff})
	return l
}

// constraintRows is the machine's transition relation over the committed
// columns. Booleanity and exclusivity pin the opcode class flags; the
// write-increment rows tie the memory checkers' inc columns to the
// semantic write values; the pc rows enforce sequential control flow with
// a freeze on halt.
func constraintRows() []row {
	zero := lincomb{}
	rows := []row{
		// semantics per opcode class
		{a: col(vm.ColFALU), b: col(vm.ColWv).minus(vm.ColLkOut), c: zero},
		{a: col(vm.ColFLoad), b: col(vm.ColWv).minus(vm.ColRamRv), c: zero},
		{a: col(vm.ColFStore), b: col(vm.ColIncRam).minus(vm.ColRs2V).plus(vm.ColRamRv), c: zero},
		{a: one().minus(vm.ColFStore), b: col(vm.ColIncRam), c: zero},
		{a: col(vm.ColFALU).plus(vm.ColFLoad), b: col(vm.ColIncReg).minus(vm.ColWv).plus(vm.ColRdOldV), c: zero},
		{a: one().minus(vm.ColFALU).minus(vm.ColFLoad), b: col(vm.ColIncReg), c: zero},
		// control flow
		{a: one(), b: col(vm.ColPCNext).minus(vm.ColPC).addConst(-1).plus(vm.ColFNoop), c: zero},
		{a: virtual(colFirst), b: col(vm.ColPC), c: zero},
		// instruction decoding
		{a: one(), b: col(vm.ColBcVal).minus(vm.ColOp).
			addScaled(vm.ColRd, -1<<8).
			addScaled(vm.ColRs1, -1<<16).
			addScaled(vm.ColRs2, -1<<24).
			addScaled(vm.ColImm, -1<<32), c: zero},
		// lookup index linkage
		{a: col(vm.ColFALU), b: col(vm.ColLkIdx).minus(vm.ColRs1V).minus(vm.ColRs2V), c: zero},
		{a: one().minus(vm.ColFALU), b: col(vm.ColLkIdx), c: zero},
		// flag booleanity and exclusivity
		{a: col(vm.ColFALU), b: col(vm.ColFALU).addConst(-1), c: zero},
		{a: col(vm.ColFLoad), b: col(vm.ColFLoad).addConst(-1), c: zero},
		{a: col(vm.ColFStore), b: col(vm.ColFStore).addConst(-1), c: zero},
		{a: col(vm.ColFNoop), b: col(vm.ColFNoop).addConst(-1), c: zero},
		{a: one(), b: col(vm.ColFALU).plus(vm.ColFLoad).plus(vm.ColFStore).plus(vm.ColFNoop).addConst(-1), c: zero},
		// flag-opcode linkage
		{a: col(vm.ColFALU), b: col(vm.ColOp).addConst(-int64(vm.OpAdd)), c: zero},
		{a: col(vm.ColFLoad), b: col(vm.ColOp).addConst(-int64(vm.OpLoad)), c: zero},
		{a: col(vm.ColFStore), b: col(vm.ColOp).addConst(-int64(vm.OpStore)), c: zero},
		{a: col(vm.ColFNoop), b: col(vm.ColOp), c: zero},
	}
	return rows
}

func (l *lincomb) eval(vals []fr.Element) fr.Element {
	var res, tmp, c fr.Element
	if l.k != 0 {
		res.SetInt64(l.k)
	}
	for _, t := range l.terms {
		if t.coeff == 1 {
			res.Add(&res, &vals[t.col])
			continue
		}
		c.SetInt64(t.coeff)
		tmp.Mul(&c, &vals[t.col])
		res.Add(&res, &tmp)
	}
	return res
}

// evalRows is ∑ⱼ γʲ·(aⱼ·bⱼ - cⱼ) over the given column values.
func evalRows(rows []row, gammas []fr.Element, vals []fr.Element) fr.Element {
	var res, tmp, a, b, c fr.Element
	for j := range rows {
		a = rows[j].a.eval(vals)
		b = rows[j].b.eval(vals)
		c = rows[j].c.eval(vals)
		tmp.Mul(&a, &b)
		tmp.Sub(&tmp, &c)
		tmp.Mul(&tmp, &gammas[j])
		res.Add(&res, &tmp)
	}
	return res
}

// constraintProver proves ∑_t eq(τ,t)·∑ⱼ γʲ·(aⱼ·bⱼ-cⱼ)(t) = 0. The eq
// factor is carried outside the sum: each round evaluates the inner
// quadratic at 0..2 and extends it, so the degree-3 message costs a
// quadratic's work.
type constraintProver struct {
	tables  []polynomial.MultiLin
	rows    []row
	gammas  []fr.Element
	tau     []fr.Element
	eqAcc   fr.Element
	round   int
	nbTasks int
}

func newConstraintProver(cols [][]fr.Element, tau []fr.Element, gamma fr.Element, nbTasks int) *constraintProver {
	t := len(cols[0])
	tables := make([]polynomial.MultiLin, nbTables)
	for c := range cols {
		tables[c] = make(polynomial.MultiLin, t)
		copy(tables[c], cols[c])
	}
	tables[colFirst] = make(polynomial.MultiLin, t)
	tables[colFirst][0].SetOne()

	rows := constraintRows()
	gammas := make([]fr.Element, len(rows))
	gammas[0].SetOne()
	for j := 1; j < len(gammas); j++ {
		gammas[j].Mul(&gammas[j-1], &gamma)
	}

	p := &constraintProver{tables: tables, rows: rows, gammas: gammas, tau: tau, nbTasks: nbTasks}
	p.eqAcc.SetOne()
	return p
}

func (p *constraintProver) NbRounds() int            { return len(p.tau) }
func (p *constraintProver) Degree() int              { return 3 }
func (p *constraintProver) InitialClaim() fr.Element { return fr.Element{} }

func (p *constraintProver) RoundMessage() poly.Univariate {
	j := p.round
	mid := len(p.tables[0]) / 2
	eqSuf := poly.EqTable(p.tau[j+1:])

	nbChunks := p.nbTasks
	if nbChunks < 1 {
		nbChunks = 1
	}
	if nbChunks > mid {
		nbChunks = mid
	}
	chunkSize := (mid + nbChunks - 1) / nbChunks
	partials := make([][3]fr.Element, nbChunks)

	parallel.Execute(nbChunks, func(cStart, cEnd int) {
		vals := make([]fr.Element, nbTables)
		deltas := make([]fr.Element, nbTables)
		var f, tmp fr.Element
		for c := cStart; c < cEnd; c++ {
			start, end := c*chunkSize, (c+1)*chunkSize
			if end > mid {
				end = mid
			}
			var sum [3]fr.Element
			for i := start; i < end; i++ {
				for k := range p.tables {
					vals[k] = p.tables[k][i]
					deltas[k].Sub(&p.tables[k][mid+i], &p.tables[k][i])
				}
				for u := 0; u < 3; u++ {
					if u > 0 {
						for k := range vals {
							vals[k].Add(&vals[k], &deltas[k])
						}
					}
					f = evalRows(p.rows, p.gammas, vals)
					tmp.Mul(&eqSuf[i], &f)
					sum[u].Add(&sum[u], &tmp)
				}
			}
			partials[c] = sum
		}
	}, p.nbTasks)

	var s [4]fr.Element
	for _, part := range partials {
		for u := 0; u < 3; u++ {
			s[u].Add(&s[u], &part[u])
		}
	}
	// cubic-free extension of the inner quadratic: s₃ = s₀ - 3s₁ + 3s₂
	var three fr.Element
	three.SetUint64(3)
	var t1, t2 fr.Element
	t1.Mul(&three, &s[1])
	t2.Mul(&three, &s[2])
	s[3].Sub(&s[0], &t1)
	s[3].Add(&s[3], &t2)

	// reattach the current eq factor: e(u) = (1-τⱼ)(1-u) + τⱼ·u
	res := make(poly.Univariate, 4)
	var e, u fr.Element
	for i := range res {
		u.SetUint64(uint64(i))
		e = poly.EvalEq([]fr.Element{p.tau[j]}, []fr.Element{u})
		res[i].Mul(&p.eqAcc, &e)
		res[i].Mul(&res[i], &s[i])
	}
	return res
}

func (p *constraintProver) Bind(r *fr.Element) {
	parallel.Execute(nbTables, func(start, end int) {
		for k := start; k < end; k++ {
			p.tables[k].Fold(*r)
		}
	}, p.nbTasks)
	e := poly.EvalEq([]fr.Element{p.tau[p.round]}, []fr.Element{*r})
	p.eqAcc.Mul(&p.eqAcc, &e)
	p.round++
}

// ColumnEvals returns the committed columns' evaluations at the bound
// point; they travel in the proof.
func (p *constraintProver) ColumnEvals() []fr.Element {
	res := make([]fr.Element, vm.NbColumns)
	for c := range res {
		res[c] = p.tables[c][0]
	}
	return res
}

func (p *constraintProver) FinalClaims(acc *opening.ProverAccumulator, point []fr.Element) {
	for c := 0; c < int(vm.NbColumns); c++ {
		acc.Append(stageOuter, vm.ColumnNames[c], point, p.tables[c][0])
	}
}

// newConstraintVerifier mirrors constraintProver: the expected final value
// is eq(τ, r)·∑ⱼ γʲ·(aⱼ·bⱼ-cⱼ) over the claimed column evaluations.
func newConstraintVerifier(tau []fr.Element, gamma fr.Element, colEvals []fr.Element) *sumcheck.LazyInstance {
	rows := constraintRows()
	gammas := make([]fr.Element, len(rows))
	gammas[0].SetOne()
	for j := 1; j < len(gammas); j++ {
		gammas[j].Mul(&gammas[j-1], &gamma)
	}
	return &sumcheck.LazyInstance{
		Rounds:      len(tau),
		DegreeBound: 3,
		Claim:       fr.Element{},
		Resolve: func(acc *opening.VerifierAccumulator, point []fr.Element) (fr.Element, error) {
			vals := make([]fr.Element, nbTables)
			copy(vals, colEvals)
			for c := 0; c < int(vm.NbColumns); c++ {
				if err := acc.Append(stageOuter, vm.ColumnNames[c], point, colEvals[c]); err != nil {
					return fr.Element{}, err
				}
			}
			// virtual first-cycle indicator: ∏ᵢ (1-rᵢ)
			vals[colFirst].SetOne()
			var tmp, one fr.Element
			one.SetOne()
			for i := range point {
				tmp.Sub(&one, &point[i])
				vals[colFirst].Mul(&vals[colFirst], &tmp)
			}
			f := evalRows(rows, gammas, vals)
			eq := poly.EvalEq(tau, point)
			var res fr.Element
			res.Mul(&eq, &f)
			return res, nil
		},
	}
}
