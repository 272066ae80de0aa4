package pcs

import (
	"encoding/binary"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// WriteTo writes the proof to w: group count, then per group the folded
// digests and the three batched KZG openings.
func (p *BatchedOpeningProof) WriteTo(w io.Writer) (int64, error) {
	var written int64
	if err := binary.Write(w, binary.BigEndian, uint32(len(p.Groups))); err != nil {
		return written, err
	}
	written += 4

	enc := bn254.NewEncoder(w)
	for i := range p.Groups {
		g := &p.Groups[i]
		toEncode := []interface{}{
			g.FoldedDigests,
			&g.AtBeta.H, g.AtBeta.ClaimedValues,
			&g.AtNegBeta.H, g.AtNegBeta.ClaimedValues,
			&g.AtBetaSquare.H, g.AtBetaSquare.ClaimedValues,
		}
		for _, v := range toEncode {
			if err := enc.Encode(v); err != nil {
				return written + enc.BytesWritten(), err
			}
		}
	}
	return written + enc.BytesWritten(), nil
}

// ReadFrom reads a proof written by WriteTo.
func (p *BatchedOpeningProof) ReadFrom(r io.Reader) (int64, error) {
	var read int64
	var nbGroups uint32
	if err := binary.Read(r, binary.BigEndian, &nbGroups); err != nil {
		return read, err
	}
	read += 4

	dec := bn254.NewDecoder(r)
	p.Groups = make([]GroupProof, nbGroups)
	for i := range p.Groups {
		g := &p.Groups[i]
		toDecode := []interface{}{
			&g.FoldedDigests,
			&g.AtBeta.H, &g.AtBeta.ClaimedValues,
			&g.AtNegBeta.H, &g.AtNegBeta.ClaimedValues,
			&g.AtBetaSquare.H, &g.AtBetaSquare.ClaimedValues,
		}
		for _, v := range toDecode {
			if err := dec.Decode(v); err != nil {
				return read + dec.BytesRead(), err
			}
		}
	}
	return read + dec.BytesRead(), nil
}
