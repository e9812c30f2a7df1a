package losses

import (
	"fmt"

	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// DeepClusteringLoss measures how well a batch of time-frequency embeddings
// separates sources labelled by labels. embedding has shape
// (batch, bins, embedDim) and labels assigns each bin an integer source
// index starting at zero; bins is typically frames*freqs flattened.
//
// For each batch element with embedding matrix V and one-hot label matrix Y
// the loss is
//
//	(||VᵀV||² + ||YᵀY||² − 2·||VᵀY||²) / bins
//
// with Frobenius norms, returned per batch element without reduction.
func DeepClusteringLoss(embedding [][][]float64, labels [][]int) ([]float64, error) {
	if err := checkEmbedding(embedding, labels); err != nil {
		return nil, err
	}
	nSrc := 0
	for _, row := range labels {
		for _, lbl := range row {
			if lbl < 0 {
				return nil, fmt.Errorf("source label must be non-negative, got %d", lbl)
			}
			if lbl+1 > nSrc {
				nSrc = lbl + 1
			}
		}
	}

	out := make([]float64, len(embedding))
	for b := range embedding {
		bins := len(embedding[b])
		dim := len(embedding[b][0])

		flat := make([]float64, 0, bins*dim)
		for _, v := range embedding[b] {
			flat = append(flat, v...)
		}
		v := mat.NewDense(bins, dim, flat)

		var estProj mat.Dense
		estProj.Mul(v.T(), v)
		estNorm := mat.Norm(&estProj, 2)

		// Y is one-hot, so YᵀY is diagonal with per-source bin counts
		// and VᵀY holds per-source embedding sums.
		counts := make([]float64, nSrc)
		sums := make([]float64, nSrc*dim)
		for n, lbl := range labels[b] {
			counts[lbl]++
			row := sums[lbl*dim : (lbl+1)*dim]
			for k, val := range embedding[b][n] {
				row[k] += val
			}
		}
		var trueNormSq, crossNormSq float64
		for _, c := range counts {
			trueNormSq += c * c
		}
		for _, s := range sums {
			crossNormSq += s * s
		}

		out[b] = (estNorm*estNorm + trueNormSq - 2*crossNormSq) / float64(bins)
	}
	return out, nil
}

func checkEmbedding(embedding [][][]float64, labels [][]int) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: batch dimension is missing or empty", signal.ErrShape)
	}
	if len(labels) != len(embedding) {
		return fmt.Errorf("%w: embedding batch is %d but labels batch is %d",
			signal.ErrShape, len(embedding), len(labels))
	}
	bins := len(embedding[0])
	if bins == 0 {
		return fmt.Errorf("%w: bin dimension is empty", signal.ErrShape)
	}
	dim := len(embedding[0][0])
	if dim == 0 {
		return fmt.Errorf("%w: embedding dimension is empty", signal.ErrShape)
	}
	for b := range embedding {
		if len(embedding[b]) != bins {
			return fmt.Errorf("%w: ragged batch: element 0 has %d bins, element %d has %d",
				signal.ErrShape, bins, b, len(embedding[b]))
		}
		if len(labels[b]) != bins {
			return fmt.Errorf("%w: element %d has %d bins but %d labels",
				signal.ErrShape, b, bins, len(labels[b]))
		}
		for n := range embedding[b] {
			if len(embedding[b][n]) != dim {
				return fmt.Errorf("%w: ragged embedding: expected dimension %d, element (%d,%d) has %d",
					signal.ErrShape, dim, b, n, len(embedding[b][n]))
			}
		}
	}
	return nil
}
