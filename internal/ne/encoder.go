package ne

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// encoder wraps the concrete Reed-Solomon implementation used to turn N
// data parts into E parity parts, and to reconstruct missing parts from
// any N surviving ones. spec.md §4.2 describes this as "the erasure
// coefficient table (generated from a Vandermonde/Cauchy matrix,
// multiplied by each data part)" — klauspost/reedsolomon is the
// corpus-grounded black-box that implements exactly that matrix algebra
// (see other_examples/…VaultS3__internal-erasure-engine.go.go, and the
// go.mod manifests under other_examples/manifests/*-aistore and
// eniz1806-VaultS3, all of which pull in this module for EC).
type encoder struct {
	n, e int
	rs   reedsolomon.Encoder
}

func newEncoder(n, e int) (*encoder, error) {
	if n <= 0 || e < 0 {
		return nil, fmt.Errorf("ne: invalid stripe shape N=%d E=%d", n, e)
	}
	if e == 0 {
		return &encoder{n: n, e: e}, nil
	}
	rs, err := reedsolomon.New(n, e)
	if err != nil {
		return nil, fmt.Errorf("ne: construct reed-solomon encoder: %w", err)
	}
	return &encoder{n: n, e: e, rs: rs}, nil
}

// encode fills shards[n:n+e] (parity) from shards[0:n] (data). Every
// shard must be the same length.
func (enc *encoder) encode(shards [][]byte) error {
	if enc.e == 0 {
		return nil
	}
	if err := enc.rs.Encode(shards); err != nil {
		return fmt.Errorf("ne: encode stripe: %w", err)
	}
	return nil
}

// reconstruct fills in any nil entries of shards using the surviving
// ones. Returns an error if more than e shards are missing.
func (enc *encoder) reconstruct(shards [][]byte) error {
	missing := 0
	for _, s := range shards {
		if s == nil {
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	if missing > enc.e {
		return fmt.Errorf("ne: %d missing shards exceeds parity count %d", missing, enc.e)
	}
	if err := enc.rs.Reconstruct(shards); err != nil {
		return fmt.Errorf("ne: reconstruct stripe: %w", err)
	}
	return nil
}

// verify reports whether the parity shards are consistent with the data
// shards, used by RDALL mode to validate every block regardless of
// whether a read error already occurred.
func (enc *encoder) verify(shards [][]byte) (bool, error) {
	if enc.e == 0 {
		return true, nil
	}
	ok, err := enc.rs.Verify(shards)
	if err != nil {
		return false, fmt.Errorf("ne: verify stripe: %w", err)
	}
	return ok, nil
}
