// Package transcript derives the engine's verifier challenges.
//
// One proving (or verifying) session is a chain of phases, one per protocol
// stage. Each phase opens a fresh gnark-crypto Fiat-Shamir transcript whose
// first challenge is seeded with the data absorbed since the previous phase
// and with the previous phase's final challenge, so every challenge depends
// on the full session history. Prover and verifier replay the same phase
// structure and obtain identical challenges.
package transcript

import (
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	fiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"
)

// Transcript is the session-wide challenge chain.
type Transcript struct {
	h    func() hash.Hash
	seed [][]byte // pending data, bound into the next phase's first challenge
}

// New returns a session transcript deriving challenges with the given hash.
func New(h func() hash.Hash) *Transcript {
	return &Transcript{h: h}
}

// Absorb appends raw data to the pending seed.
func (t *Transcript) Absorb(data ...[]byte) {
	t.seed = append(t.seed, data...)
}

// AbsorbElements appends field elements to the pending seed.
func (t *Transcript) AbsorbElements(es ...fr.Element) {
	for i := range es {
		b := es[i].Bytes()
		t.seed = append(t.seed, b[:])
	}
}

// Phase opens a new phase with the given ordered challenge names. The
// pending seed is bound to the first challenge and cleared.
func (t *Transcript) Phase(names ...string) (*Phase, error) {
	fs := fiatshamir.NewTranscript(t.h(), names...)
	p := &Phase{parent: t, fs: fs, names: names}
	for _, s := range t.seed {
		if err := fs.Bind(names[0], s); err != nil {
			return nil, err
		}
	}
	t.seed = t.seed[:0]
	return p, nil
}

// Phase is one stage's transcript cursor. Challenges are computed in name
// order; data bound between two challenges contributes to the next one.
type Phase struct {
	parent *Transcript
	fs     *fiatshamir.Transcript
	names  []string
	next   int
}

// Bind absorbs data into the upcoming challenge.
func (p *Phase) Bind(data []byte) error {
	return p.fs.Bind(p.names[p.next], data)
}

// BindElements absorbs field elements into the upcoming challenge.
func (p *Phase) BindElements(es []fr.Element) error {
	for i := range es {
		b := es[i].Bytes()
		if err := p.fs.Bind(p.names[p.next], b[:]); err != nil {
			return err
		}
	}
	return nil
}

// Challenge computes the next challenge in name order. The challenge bytes
// replace the parent's pending seed, chaining this phase into the next.
func (p *Phase) Challenge() (fr.Element, error) {
	var res fr.Element
	b, err := p.fs.ComputeChallenge(p.names[p.next])
	if err != nil {
		return res, err
	}
	p.next++
	res.SetBytes(b)
	p.parent.seed = append(p.parent.seed[:0], b)
	return res, nil
}

// Challenges computes the n next challenges.
func (p *Phase) Challenges(n int) ([]fr.Element, error) {
	res := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		var err error
		if res[i], err = p.Challenge(); err != nil {
			return nil, err
		}
	}
	return res, nil
}
