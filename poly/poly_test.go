package poly

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func elem(v int64) fr.Element {
	var e fr.Element
	e.SetInt64(v)
	return e
}

// bitsOf returns the n-bit Boolean point for index i, most significant
// variable first.
func bitsOf(i, n int) []fr.Element {
	res := make([]fr.Element, n)
	for j := 0; j < n; j++ {
		if i>>(n-1-j)&1 == 1 {
			res[j].SetOne()
		}
	}
	return res
}

func TestInterpolateOnRange(t *testing.T) {
	// p(x) = 3x² + 2x + 7
	p := func(x int64) fr.Element {
		return elem(3*x*x + 2*x + 7)
	}
	values := []fr.Element{p(0), p(1), p(2)}

	for _, x := range []int64{0, 1, 2} {
		r := elem(x)
		got := InterpolateOnRange(values, &r)
		want := p(x)
		assert.True(t, got.Equal(&want), "interpolation must reproduce the samples")
	}

	r := elem(11)
	got := InterpolateOnRange(values, &r)
	want := p(11)
	assert.True(t, got.Equal(&want))
}

func TestUnivariateEval(t *testing.T) {
	p := Univariate{elem(7), elem(12), elem(23)} // 3x² + 2x + 7 at 0,1,2
	require.Equal(t, 2, p.Degree())
	r := elem(5)
	got := p.Eval(&r)
	want := elem(3*25 + 2*5 + 7)
	assert.True(t, got.Equal(&want))
}

func TestEqTable(t *testing.T) {
	r := []fr.Element{elem(3), elem(5), elem(9)}
	table := EqTable(r)
	require.Len(t, table, 8)

	// the table rows are eq(r, ·) at Boolean points
	for i := range table {
		want := EvalEq(r, bitsOf(i, 3))
		assert.True(t, table[i].Equal(&want), "index %d", i)
	}

	// partitions of unity
	var sum fr.Element
	for i := range table {
		sum.Add(&sum, &table[i])
	}
	one := elem(1)
	assert.True(t, sum.Equal(&one))
}

func TestEqTableEmpty(t *testing.T) {
	table := EqTable(nil)
	require.Len(t, table, 1)
	one := elem(1)
	assert.True(t, table[0].Equal(&one))
}

func TestLessThanTableBoolean(t *testing.T) {
	// y = 2 = (1,0): strict less-than indicator over 2-bit integers
	y := bitsOf(2, 2)
	table := LessThanTable(y)
	require.Len(t, table, 4)
	for i := range table {
		want := elem(0)
		if i < 2 {
			want = elem(1)
		}
		assert.True(t, table[i].Equal(&want), "index %d", i)
	}
}

func TestEvalLessThanMatchesTable(t *testing.T) {
	y := []fr.Element{elem(4), elem(17), elem(2)}
	table := LessThanTable(y)
	for i := range table {
		want := EvalLessThan(bitsOf(i, 3), y)
		assert.True(t, table[i].Equal(&want), "index %d", i)
	}
}

func TestScaleAndAdd(t *testing.T) {
	dst := []fr.Element{elem(1), elem(2)}
	src := []fr.Element{elem(10), elem(20)}
	c := elem(3)
	ScaleAndAdd(dst, src, &c)
	want0, want1 := elem(31), elem(62)
	assert.True(t, dst[0].Equal(&want0))
	assert.True(t, dst[1].Equal(&want1))
}
