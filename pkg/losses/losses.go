// Package losses implements the loss functions used to train and evaluate
// source-separation and speech-enhancement models: the SI-SDR/SNR and MSE
// metric families in pairwise, single-source and multi-source calling
// conventions, a permutation solver, the permutation-invariant (PIT) loss
// wrapper orchestrating them, and a set of perceptual single-source losses
// (multi-scale spectral, PMSQE, STOI) pluggable into the same wrapper.
//
// All loss functions are pure: they never mutate their inputs, hold no
// state between calls and are safe to call concurrently on distinct
// tensors.
package losses

import (
	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// eps guards divisions and logarithms against near-zero energies.
const eps = 1e-8

// Pairwise computes, for every batch element, the full n_src × n_src cost
// matrix with entry (i, j) holding the loss between reference source i and
// estimated source j. Inputs are (batch, n_src, time).
type Pairwise func(est, ref signal.SourceBatch) ([]*mat.Dense, error)

// SingleSrc computes a per-batch-element loss between one estimated and
// one reference signal. Inputs are (batch, time); no source axis.
type SingleSrc func(est, ref signal.Batch) ([]float64, error)

// MultiSrc computes a per-batch-element loss over all sources in the
// order given, i.e. source i of the estimate is scored against source i
// of the reference. Inputs are (batch, n_src, time), output is (batch,).
type MultiSrc func(est, ref signal.SourceBatch) ([]float64, error)
