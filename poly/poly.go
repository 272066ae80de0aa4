// Package poly provides the small polynomial utilities the proof engine
// needs on top of gnark-crypto's multilinear type: round-polynomial
// interpolation, eq tables and the less-than table used by the
// consistency-checking protocol.
package poly

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"
)

// Univariate is a low-degree univariate polynomial represented by its
// evaluations on 0, 1, ..., deg.
type Univariate []fr.Element

// Degree returns the degree bound of p.
func (p Univariate) Degree() int {
	return len(p) - 1
}

// Eval evaluates p at r by Lagrange interpolation on the range 0..deg.
func (p Univariate) Eval(r *fr.Element) fr.Element {
	return InterpolateOnRange(p, r)
}

// Clone returns a deep copy of p.
func (p Univariate) Clone() Univariate {
	res := make(Univariate, len(p))
	copy(res, p)
	return res
}

// InterpolateOnRange evaluates at r the unique polynomial of degree
// < len(values) taking values[i] at i.
func InterpolateOnRange(values []fr.Element, r *fr.Element) fr.Element {
	n := len(values)

	// if r is in the range, no interpolation needed
	var ri fr.Element
	for i := 0; i < n; i++ {
		ri.SetUint64(uint64(i))
		if ri.Equal(r) {
			return values[i]
		}
	}

	// prefix[i] = ∏_{j<i} (r-j), suffix[i] = ∏_{j>i} (r-j)
	prefix := make([]fr.Element, n)
	suffix := make([]fr.Element, n)
	var tmp fr.Element
	prefix[0].SetOne()
	for i := 1; i < n; i++ {
		tmp.SetUint64(uint64(i - 1))
		tmp.Sub(r, &tmp)
		prefix[i].Mul(&prefix[i-1], &tmp)
	}
	suffix[n-1].SetOne()
	for i := n - 2; i >= 0; i-- {
		tmp.SetUint64(uint64(i + 1))
		tmp.Sub(r, &tmp)
		suffix[i].Mul(&suffix[i+1], &tmp)
	}

	// denom_i = i! · (n-1-i)! · (-1)^{n-1-i}
	fact := make([]fr.Element, n)
	fact[0].SetOne()
	for i := 1; i < n; i++ {
		tmp.SetUint64(uint64(i))
		fact[i].Mul(&fact[i-1], &tmp)
	}

	var res, term, denom fr.Element
	for i := 0; i < n; i++ {
		denom.Mul(&fact[i], &fact[n-1-i])
		if (n-1-i)%2 == 1 {
			denom.Neg(&denom)
		}
		denom.Inverse(&denom)
		term.Mul(&prefix[i], &suffix[i])
		term.Mul(&term, &denom)
		term.Mul(&term, &values[i])
		res.Add(&res, &term)
	}
	return res
}

// EqTable expands eq(r, ·) over the Boolean hypercube. The returned table
// has length 2^len(r); index bits follow the multilinear convention of
// gnark-crypto (variable 0 is the most significant index bit, i.e. the
// first one bound by MultiLin.Fold).
func EqTable(r []fr.Element) polynomial.MultiLin {
	res := make(polynomial.MultiLin, 1<<len(r))
	res[0].SetOne()
	for i, ri := range r {
		prevSize := 1 << i
		var oneMinus fr.Element
		oneMinus.SetOne()
		oneMinus.Sub(&oneMinus, &ri)
		for j := prevSize - 1; j >= 0; j-- {
			res[2*j+1].Mul(&ri, &res[j])
			res[2*j].Mul(&oneMinus, &res[j])
		}
	}
	return res
}

// EvalEq returns ∏ᵢ (xᵢyᵢ + (1-xᵢ)(1-yᵢ)). It assumes len(x) == len(y).
func EvalEq(x, y []fr.Element) fr.Element {
	var res, term, one fr.Element
	res.SetOne()
	one.SetOne()
	for i := range x {
		// 1 + 2 xᵢyᵢ - xᵢ - yᵢ
		term.Mul(&x[i], &y[i])
		term.Double(&term)
		term.Add(&term, &one)
		term.Sub(&term, &x[i])
		term.Sub(&term, &y[i])
		res.Mul(&res, &term)
	}
	return res
}

// LessThanTable returns the table g(t) = LT̃(t, r) for Boolean t, where LT̃
// is the multilinear extension of the strict less-than indicator on pairs
// of len(r)-bit integers. For Boolean t it equals ∑_{y>t} eq(y, r), so the
// table is a suffix sum of the eq table.
func LessThanTable(r []fr.Element) polynomial.MultiLin {
	eq := EqTable(r)
	res := make(polynomial.MultiLin, len(eq))
	var acc fr.Element
	for t := len(eq) - 1; t >= 0; t-- {
		res[t].Set(&acc)
		acc.Add(&acc, &eq[t])
	}
	return res
}

// EvalLessThan evaluates the multilinear extension of the strict less-than
// indicator at (x, y): ∑ᵢ (∏_{j<i} eq(xⱼ,yⱼ))·(1-xᵢ)·yᵢ, bit 0 most
// significant. It assumes len(x) == len(y).
func EvalLessThan(x, y []fr.Element) fr.Element {
	var res, pre, term, eq, one fr.Element
	pre.SetOne()
	one.SetOne()
	for i := range x {
		// (1-xᵢ)·yᵢ
		term.Sub(&one, &x[i])
		term.Mul(&term, &y[i])
		term.Mul(&term, &pre)
		res.Add(&res, &term)
		// eq(xᵢ, yᵢ) = 1 + 2xᵢyᵢ - xᵢ - yᵢ
		eq.Mul(&x[i], &y[i])
		eq.Double(&eq)
		eq.Add(&eq, &one)
		eq.Sub(&eq, &x[i])
		eq.Sub(&eq, &y[i])
		pre.Mul(&pre, &eq)
	}
	return res
}

// ScaleAndAdd sets dst[i] += c·src[i] for all i. The slices must have equal
// length.
func ScaleAndAdd(dst, src []fr.Element, c *fr.Element) {
	var tmp fr.Element
	for i := range dst {
		tmp.Mul(&src[i], c)
		dst[i].Add(&dst[i], &tmp)
	}
}
