package losses

import (
	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// PairwiseMSE computes the (batch, n_src, n_src) matrix of mean squared
// errors, entry (i, j) scoring estimate j against reference i.
func PairwiseMSE(est, ref signal.SourceBatch) ([]*mat.Dense, error) {
	if err := signal.CheckSameSourceBatch(est, ref); err != nil {
		return nil, err
	}
	nSrc := len(ref[0])
	out := make([]*mat.Dense, len(ref))
	for b := range ref {
		cost := mat.NewDense(nSrc, nSrc, nil)
		for i := 0; i < nSrc; i++ {
			for j := 0; j < nSrc; j++ {
				cost.Set(i, j, mse(est[b][j], ref[b][i]))
			}
		}
		out[b] = cost
	}
	return out, nil
}

// SingleSrcMSE computes mean squared error per batch element for inputs
// without a source axis.
func SingleSrcMSE(est, ref signal.Batch) ([]float64, error) {
	if err := signal.CheckSameBatch(est, ref); err != nil {
		return nil, err
	}
	out := make([]float64, len(ref))
	for b := range ref {
		out[b] = mse(est[b], ref[b])
	}
	return out, nil
}

// MultiSrcMSE averages the mean squared error over sources in the order
// given, without permutation optimization.
func MultiSrcMSE(est, ref signal.SourceBatch) ([]float64, error) {
	if err := signal.CheckSameSourceBatch(est, ref); err != nil {
		return nil, err
	}
	nSrc := len(ref[0])
	out := make([]float64, len(ref))
	for b := range ref {
		var sum float64
		for s := 0; s < nSrc; s++ {
			sum += mse(est[b][s], ref[b][s])
		}
		out[b] = sum / float64(nSrc)
	}
	return out, nil
}

func mse(est, ref []float64) float64 {
	var sum float64
	for t := range ref {
		d := est[t] - ref[t]
		sum += d * d
	}
	return sum / float64(len(ref))
}
