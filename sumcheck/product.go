package sumcheck

import (
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/polynomial"

	"github.com/consensys/zkvm/internal/parallel"
	"github.com/consensys/zkvm/opening"
	"github.com/consensys/zkvm/poly"
)

// Product proves ∑_x ∏ₖ fₖ(x) over the Boolean hypercube. Two factors give
// the quadratic form, three the cubic form. The factor tables are bound in
// place, so the caller passes dedicated copies.
type Product struct {
	factors  []polynomial.MultiLin
	rounds   int
	claim    fr.Element
	finalize func(acc *opening.ProverAccumulator, point []fr.Element, factorValues []fr.Element)
	nbTasks  int
}

// NewProduct builds a product instance. finalize receives the bound point
// and the factors' final evaluations; it appends whatever opening claims
// the factors stand for. All factors must have the same power-of-two
// length.
func NewProduct(claim fr.Element, factors []polynomial.MultiLin,
	finalize func(acc *opening.ProverAccumulator, point []fr.Element, factorValues []fr.Element),
	nbTasks int) *Product {
	for _, f := range factors {
		if len(f) != len(factors[0]) {
			panic("sumcheck: product factors of unequal size")
		}
	}
	return &Product{
		factors:  factors,
		rounds:   bits.TrailingZeros(uint(len(factors[0]))),
		claim:    claim,
		finalize: finalize,
		nbTasks:  nbTasks,
	}
}

// NbRounds is fixed at construction; Bind folds the factor tables in
// place, so their live length is not a valid round count.
func (p *Product) NbRounds() int            { return p.rounds }
func (p *Product) Degree() int              { return len(p.factors) }
func (p *Product) InitialClaim() fr.Element { return p.claim }

func (p *Product) RoundMessage() poly.Univariate {
	deg := p.Degree()
	mid := len(p.factors[0]) / 2

	nbChunks := p.nbTasks
	if nbChunks < 1 {
		nbChunks = 1
	}
	if nbChunks > mid {
		nbChunks = mid
	}
	chunkSize := (mid + nbChunks - 1) / nbChunks
	partials := make([]poly.Univariate, nbChunks)

	parallel.Execute(nbChunks, func(start, end int) {
		vals := make([]fr.Element, len(p.factors))
		deltas := make([]fr.Element, len(p.factors))
		var prod fr.Element
		for c := start; c < end; c++ {
			sum := make(poly.Univariate, deg+1)
			lo, hi := c*chunkSize, (c+1)*chunkSize
			if hi > mid {
				hi = mid
			}
			for i := lo; i < hi; i++ {
				for k, f := range p.factors {
					vals[k].Set(&f[i])
					deltas[k].Sub(&f[mid+i], &f[i])
				}
				for u := 0; u <= deg; u++ {
					prod.Set(&vals[0])
					for k := 1; k < len(vals); k++ {
						prod.Mul(&prod, &vals[k])
					}
					sum[u].Add(&sum[u], &prod)
					if u < deg {
						for k := range vals {
							vals[k].Add(&vals[k], &deltas[k])
						}
					}
				}
			}
			partials[c] = sum
		}
	}, p.nbTasks)

	res := make(poly.Univariate, deg+1)
	for _, part := range partials {
		for u := range res {
			res[u].Add(&res[u], &part[u])
		}
	}
	return res
}

func (p *Product) Bind(r *fr.Element) {
	for k := range p.factors {
		p.factors[k].Fold(*r)
	}
}

func (p *Product) FinalClaims(acc *opening.ProverAccumulator, point []fr.Element) {
	if p.finalize == nil {
		return
	}
	p.finalize(acc, point, p.FactorValues())
}

// FactorValues returns the factors' leading entries; once every variable
// is bound they are the factors' evaluations at the bound point.
func (p *Product) FactorValues() []fr.Element {
	values := make([]fr.Element, len(p.factors))
	for k := range p.factors {
		values[k].Set(&p.factors[k][0])
	}
	return values
}
