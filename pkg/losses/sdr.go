package losses

import (
	"math"

	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// sdrKind selects the member of the SDR family.
//
// All three members are computed from the same projection: the estimate is
// decomposed against the reference and the energy ratio is mapped to a
// negated decibel scale, so that a better separation yields a lower loss.
type sdrKind int

const (
	// sdrSISDR scales the reference to the projection of the estimate and
	// measures the residual against that scaled reference.
	sdrSISDR sdrKind = iota
	// sdrSDSDR keeps the scaled-reference numerator of SI-SDR but measures
	// the residual against the unscaled reference.
	sdrSDSDR
	// sdrSNR uses the unscaled reference on both sides.
	sdrSNR
)

// PairwiseNegSISDR computes the (batch, n_src, n_src) matrix of negative
// scale-invariant SDR values, entry (i, j) scoring estimate j against
// reference i.
func PairwiseNegSISDR(est, ref signal.SourceBatch) ([]*mat.Dense, error) {
	return pairwiseNegSDR(est, ref, sdrSISDR)
}

// PairwiseNegSDSDR is PairwiseNegSISDR with the scale-dependent residual.
func PairwiseNegSDSDR(est, ref signal.SourceBatch) ([]*mat.Dense, error) {
	return pairwiseNegSDR(est, ref, sdrSDSDR)
}

// PairwiseNegSNR computes the pairwise negative SNR matrix.
func PairwiseNegSNR(est, ref signal.SourceBatch) ([]*mat.Dense, error) {
	return pairwiseNegSDR(est, ref, sdrSNR)
}

// SingleSrcNegSISDR computes negative SI-SDR per batch element for inputs
// without a source axis.
func SingleSrcNegSISDR(est, ref signal.Batch) ([]float64, error) {
	return singleSrcNegSDR(est, ref, sdrSISDR)
}

// SingleSrcNegSDSDR computes negative SD-SDR per batch element.
func SingleSrcNegSDSDR(est, ref signal.Batch) ([]float64, error) {
	return singleSrcNegSDR(est, ref, sdrSDSDR)
}

// SingleSrcNegSNR computes negative SNR per batch element.
func SingleSrcNegSNR(est, ref signal.Batch) ([]float64, error) {
	return singleSrcNegSDR(est, ref, sdrSNR)
}

// MultiSrcNegSISDR averages negative SI-SDR over sources in the order
// given, without permutation optimization.
func MultiSrcNegSISDR(est, ref signal.SourceBatch) ([]float64, error) {
	return multiSrcNegSDR(est, ref, sdrSISDR)
}

// MultiSrcNegSDSDR averages negative SD-SDR over sources in the order given.
func MultiSrcNegSDSDR(est, ref signal.SourceBatch) ([]float64, error) {
	return multiSrcNegSDR(est, ref, sdrSDSDR)
}

// MultiSrcNegSNR averages negative SNR over sources in the order given.
func MultiSrcNegSNR(est, ref signal.SourceBatch) ([]float64, error) {
	return multiSrcNegSDR(est, ref, sdrSNR)
}

func pairwiseNegSDR(est, ref signal.SourceBatch, kind sdrKind) ([]*mat.Dense, error) {
	if err := signal.CheckSameSourceBatch(est, ref); err != nil {
		return nil, err
	}
	nSrc := len(ref[0])
	out := make([]*mat.Dense, len(ref))
	for b := range ref {
		ests := zeroMeanAll(est[b])
		refs := zeroMeanAll(ref[b])
		cost := mat.NewDense(nSrc, nSrc, nil)
		for i := 0; i < nSrc; i++ {
			for j := 0; j < nSrc; j++ {
				cost.Set(i, j, negSDR(ests[j], refs[i], kind))
			}
		}
		out[b] = cost
	}
	return out, nil
}

func singleSrcNegSDR(est, ref signal.Batch, kind sdrKind) ([]float64, error) {
	if err := signal.CheckSameBatch(est, ref); err != nil {
		return nil, err
	}
	out := make([]float64, len(ref))
	for b := range ref {
		out[b] = negSDR(zeroMean(est[b]), zeroMean(ref[b]), kind)
	}
	return out, nil
}

func multiSrcNegSDR(est, ref signal.SourceBatch, kind sdrKind) ([]float64, error) {
	if err := signal.CheckSameSourceBatch(est, ref); err != nil {
		return nil, err
	}
	nSrc := len(ref[0])
	out := make([]float64, len(ref))
	for b := range ref {
		var sum float64
		for s := 0; s < nSrc; s++ {
			sum += negSDR(zeroMean(est[b][s]), zeroMean(ref[b][s]), kind)
		}
		out[b] = sum / float64(nSrc)
	}
	return out, nil
}

// negSDR computes a single negated decibel-scale distortion ratio between
// an estimate and a reference, both already zero-mean.
func negSDR(est, ref []float64, kind sdrKind) float64 {
	var dot, refEnergy float64
	for t := range ref {
		dot += est[t] * ref[t]
		refEnergy += ref[t] * ref[t]
	}
	scale := 1.0
	if kind == sdrSISDR || kind == sdrSDSDR {
		scale = dot / (refEnergy + eps)
	}

	var targetEnergy, noiseEnergy float64
	for t := range ref {
		scaled := scale * ref[t]
		targetEnergy += scaled * scaled
		var noise float64
		if kind == sdrSISDR {
			noise = est[t] - scaled
		} else {
			noise = est[t] - ref[t]
		}
		noiseEnergy += noise * noise
	}
	ratio := targetEnergy / (noiseEnergy + eps)
	return -10 * math.Log10(ratio+eps)
}

func zeroMean(x []float64) []float64 {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	out := make([]float64, len(x))
	for t, v := range x {
		out[t] = v - mean
	}
	return out
}

func zeroMeanAll(xs [][]float64) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[i] = zeroMean(x)
	}
	return out
}
