package filterbank

import (
	"fmt"
	"math"

	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// The transforms below operate on representations whose rows stack the
// real parts of the positive-frequency bins on top of the imaginary
// parts, as produced by the stft filterbank.

// TakeMag folds a re/im-stacked representation into per-bin magnitudes,
// halving the row count.
func TakeMag(rep *mat.Dense) (*mat.Dense, error) {
	rows, frames := rep.Dims()
	if rows%2 != 0 {
		return nil, fmt.Errorf("%w: re/im representation needs an even row count, got %d", signal.ErrShape, rows)
	}
	bins := rows / 2
	out := mat.NewDense(bins, frames, nil)
	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			out.Set(f, t, math.Hypot(rep.At(f, t), rep.At(bins+f, t)))
		}
	}
	return out, nil
}

// TakeCat stacks magnitudes on top of the raw re/im representation,
// growing the row count to 3/2 of the input.
func TakeCat(rep *mat.Dense) (*mat.Dense, error) {
	magnitude, err := TakeMag(rep)
	if err != nil {
		return nil, err
	}
	bins, frames := magnitude.Dims()
	rows, _ := rep.Dims()
	out := mat.NewDense(bins+rows, frames, nil)
	for t := 0; t < frames; t++ {
		for f := 0; f < bins; f++ {
			out.Set(f, t, magnitude.At(f, t))
		}
		for f := 0; f < rows; f++ {
			out.Set(bins+f, t, rep.At(f, t))
		}
	}
	return out, nil
}

// ApplyMagMask multiplies both the real and imaginary halves of rep by a
// magnitude mask with half the rows of rep.
func ApplyMagMask(rep, mask *mat.Dense) (*mat.Dense, error) {
	rows, frames := rep.Dims()
	mRows, mFrames := mask.Dims()
	if rows != 2*mRows || frames != mFrames {
		return nil, fmt.Errorf("%w: mask is %dx%d, want %dx%d for a %dx%d representation",
			signal.ErrShape, mRows, mFrames, rows/2, frames, rows, frames)
	}
	out := mat.NewDense(rows, frames, nil)
	for f := 0; f < mRows; f++ {
		for t := 0; t < frames; t++ {
			out.Set(f, t, rep.At(f, t)*mask.At(f, t))
			out.Set(mRows+f, t, rep.At(mRows+f, t)*mask.At(f, t))
		}
	}
	return out, nil
}

// ApplyReImMask multiplies rep elementwise by a full-resolution mask.
func ApplyReImMask(rep, mask *mat.Dense) (*mat.Dense, error) {
	rows, frames := rep.Dims()
	mRows, mFrames := mask.Dims()
	if rows != mRows || frames != mFrames {
		return nil, fmt.Errorf("%w: mask is %dx%d, want %dx%d", signal.ErrShape, mRows, mFrames, rows, frames)
	}
	out := mat.NewDense(rows, frames, nil)
	out.MulElem(rep, mask)
	return out, nil
}
