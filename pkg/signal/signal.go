// Package signal defines the slice-based tensor shapes shared across the
// losses, filterbank and model packages, together with their shape-contract
// validation.
//
// A Batch is a (batch, time) matrix; a SourceBatch adds a source axis
// in between: (batch, n_src, time). Source order inside a batch element
// carries no meaning, which is exactly why the PIT machinery in pkg/losses
// exists. The same SourceBatch shape doubles as a spectral batch
// (batch, bins, frames) where documented.
package signal

import (
	"errors"
	"fmt"
)

// ErrShape is wrapped by every shape-contract violation reported by this
// package. Callers can match it with errors.Is.
var ErrShape = errors.New("shape mismatch")

func shapeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShape, fmt.Sprintf(format, args...))
}

// Batch is a (batch, time) signal: one 1-D vector per batch element.
type Batch = [][]float64

// SourceBatch is a (batch, n_src, time) signal: n_src 1-D vectors per
// batch element.
type SourceBatch = [][][]float64

// CheckBatch verifies that b is a well-formed (batch, time) batch:
// non-empty, no empty rows, all rows of equal length.
func CheckBatch(b Batch) error {
	if len(b) == 0 {
		return shapeErrorf("batch dimension is missing or empty")
	}
	want := len(b[0])
	if want == 0 {
		return shapeErrorf("time dimension is empty")
	}
	for i, row := range b {
		if len(row) != want {
			return shapeErrorf("ragged batch: element 0 has %d samples, element %d has %d", want, i, len(row))
		}
	}
	return nil
}

// CheckSourceBatch verifies that b is a well-formed (batch, n_src, time)
// batch: non-empty, a consistent number of sources per element and a
// consistent sample count per source.
func CheckSourceBatch(b SourceBatch) error {
	if len(b) == 0 {
		return shapeErrorf("batch dimension is missing or empty")
	}
	nSrc := len(b[0])
	if nSrc == 0 {
		return shapeErrorf("source dimension is missing or empty")
	}
	var nSamples = -1
	for i, elem := range b {
		if len(elem) != nSrc {
			return shapeErrorf("ragged source axis: element 0 has %d sources, element %d has %d", nSrc, i, len(elem))
		}
		for j, src := range elem {
			if nSamples < 0 {
				nSamples = len(src)
				if nSamples == 0 {
					return shapeErrorf("time dimension is empty")
				}
			}
			if len(src) != nSamples {
				return shapeErrorf("ragged time axis: expected %d samples, source (%d,%d) has %d", nSamples, i, j, len(src))
			}
		}
	}
	return nil
}

// CheckSameBatch verifies that est and ref are both valid batches of
// identical shape.
func CheckSameBatch(est, ref Batch) error {
	if err := CheckBatch(est); err != nil {
		return fmt.Errorf("estimates: %w", err)
	}
	if err := CheckBatch(ref); err != nil {
		return fmt.Errorf("references: %w", err)
	}
	if len(est) != len(ref) {
		return shapeErrorf("batch sizes differ: %d estimates vs %d references", len(est), len(ref))
	}
	if len(est[0]) != len(ref[0]) {
		return shapeErrorf("sample counts differ: %d vs %d", len(est[0]), len(ref[0]))
	}
	return nil
}

// CheckSameSourceBatch verifies that est and ref are both valid source
// batches of identical shape.
func CheckSameSourceBatch(est, ref SourceBatch) error {
	if err := CheckSourceBatch(est); err != nil {
		return fmt.Errorf("estimates: %w", err)
	}
	if err := CheckSourceBatch(ref); err != nil {
		return fmt.Errorf("references: %w", err)
	}
	if len(est) != len(ref) {
		return shapeErrorf("batch sizes differ: %d estimates vs %d references", len(est), len(ref))
	}
	if len(est[0]) != len(ref[0]) {
		return shapeErrorf("source counts differ: %d vs %d", len(est[0]), len(ref[0]))
	}
	if len(est[0][0]) != len(ref[0][0]) {
		return shapeErrorf("sample counts differ: %d vs %d", len(est[0][0]), len(ref[0][0]))
	}
	return nil
}

// PadToMatch trims or zero-pads x so that its length equals n. A copy is
// returned in either case; x is never mutated.
func PadToMatch(x []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, x)
	return out
}

// Transpose returns the transpose of a (rows, cols) matrix. Used by the
// spectral losses to accept either (bins, frames) or (frames, bins) input.
func Transpose(m [][]float64) [][]float64 {
	if len(m) == 0 || len(m[0]) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for i := range out {
		out[i] = make([]float64, len(m))
		for j := range m {
			out[i][j] = m[j][i]
		}
	}
	return out
}
