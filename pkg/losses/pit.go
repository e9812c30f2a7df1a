package losses

import (
	"fmt"

	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// pitMode tags the calling convention a PITLossWrapper was built around.
// It is resolved once at construction, never re-dispatched per call.
type pitMode int

const (
	pitPairwise  pitMode = iota // metric returns the cost matrix directly
	pitSingleSrc                // metric scores one (reference, estimate) pair
	pitPermAvg                  // metric averages over a given source order
)

func (m pitMode) String() string {
	switch m {
	case pitPairwise:
		return "pairwise"
	case pitSingleSrc:
		return "single-source"
	case pitPermAvg:
		return "permutation-average"
	}
	return fmt.Sprintf("pitMode(%d)", int(m))
}

// PITLossWrapper turns a loss function of any of the three calling
// conventions into a permutation-invariant loss: the loss reported for a
// batch element is the one under the source-to-estimate assignment that
// minimizes it.
//
// Wrappers built from equivalent metrics in different conventions produce
// identical losses and reorderings up to floating-point error. The cost
// of the optimization is O(n_src!) per batch element, so callers should
// keep the source count small (see Solver for the large-n strategy).
type PITLossWrapper struct {
	mode   pitMode
	pw     Pairwise
	pt     SingleSrc
	ms     MultiSrc
	solver Solver
}

// PITOption configures a PITLossWrapper at construction.
type PITOption func(*PITLossWrapper)

// WithSolver swaps the assignment strategy used for the pairwise and
// single-source conventions. Ignored by the permutation-average
// convention, which never builds a cost matrix.
func WithSolver(s Solver) PITOption {
	return func(w *PITLossWrapper) { w.solver = s }
}

// NewPITPairwise wraps a metric that computes the full cost matrix in one
// vectorized pass.
func NewPITPairwise(pw Pairwise, opts ...PITOption) *PITLossWrapper {
	w := &PITLossWrapper{mode: pitPairwise, pw: pw}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewPITSingleSrc wraps a single-source metric. The cost matrix is built
// by evaluating the metric on every (reference, estimate) pair, batched
// into one call by flattening the cross product into the batch axis.
func NewPITSingleSrc(pt SingleSrc, opts ...PITOption) *PITLossWrapper {
	w := &PITLossWrapper{mode: pitSingleSrc, pt: pt}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewPITPermAvg wraps a metric that already averages over a given source
// order. No cost matrix is built and no solver runs: the wrapper scores
// every permutation of the estimate sources directly and keeps the best.
func NewPITPermAvg(ms MultiSrc, opts ...PITOption) *PITLossWrapper {
	w := &PITLossWrapper{mode: pitPermAvg, ms: ms}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Loss returns the batch mean of the permutation-optimized loss.
func (w *PITLossWrapper) Loss(est, ref signal.SourceBatch) (float64, error) {
	perBatch, err := w.LossPerBatch(est, ref)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range perBatch {
		sum += v
	}
	return sum / float64(len(perBatch)), nil
}

// LossPerBatch returns the permutation-optimized loss of each batch
// element without reduction.
func (w *PITLossWrapper) LossPerBatch(est, ref signal.SourceBatch) ([]float64, error) {
	perBatch, _, err := w.evaluate(est, ref)
	return perBatch, err
}

// LossAndReorder returns the batch-mean loss together with a copy of the
// estimates whose source axis is reordered by each batch element's own
// winning permutation, so that estimate i lines up with reference i.
func (w *PITLossWrapper) LossAndReorder(est, ref signal.SourceBatch) (float64, signal.SourceBatch, error) {
	perBatch, perms, err := w.evaluate(est, ref)
	if err != nil {
		return 0, nil, err
	}
	var sum float64
	for _, v := range perBatch {
		sum += v
	}
	reordered := make(signal.SourceBatch, len(est))
	for b := range est {
		reordered[b] = make([][]float64, len(perms[b]))
		for i, j := range perms[b] {
			row := make([]float64, len(est[b][j]))
			copy(row, est[b][j])
			reordered[b][i] = row
		}
	}
	return sum / float64(len(perBatch)), reordered, nil
}

func (w *PITLossWrapper) evaluate(est, ref signal.SourceBatch) ([]float64, [][]int, error) {
	if err := signal.CheckSameSourceBatch(est, ref); err != nil {
		return nil, nil, err
	}
	if w.mode == pitPermAvg {
		return w.evaluatePermAvg(est, ref)
	}

	var costs []*mat.Dense
	var err error
	switch w.mode {
	case pitPairwise:
		costs, err = w.pw(est, ref)
		if err != nil {
			return nil, nil, err
		}
		if err := checkCosts(costs, len(est), len(est[0])); err != nil {
			return nil, nil, err
		}
	case pitSingleSrc:
		costs, err = w.buildCostsFromSingleSrc(est, ref)
		if err != nil {
			return nil, nil, err
		}
	}

	perms, totals, err := BestPermutations(costs, w.solver)
	if err != nil {
		return nil, nil, err
	}
	return totals, perms, nil
}

// buildCostsFromSingleSrc evaluates the wrapped single-source metric on
// all n_src² (reference, estimate) pairs of every batch element through a
// single flattened call.
func (w *PITLossWrapper) buildCostsFromSingleSrc(est, ref signal.SourceBatch) ([]*mat.Dense, error) {
	batch := len(ref)
	nSrc := len(ref[0])
	flatEst := make(signal.Batch, 0, batch*nSrc*nSrc)
	flatRef := make(signal.Batch, 0, batch*nSrc*nSrc)
	for i := 0; i < nSrc; i++ {
		for j := 0; j < nSrc; j++ {
			for b := 0; b < batch; b++ {
				flatRef = append(flatRef, ref[b][i])
				flatEst = append(flatEst, est[b][j])
			}
		}
	}
	vals, err := w.pt(flatEst, flatRef)
	if err != nil {
		return nil, err
	}
	if len(vals) != batch*nSrc*nSrc {
		return nil, fmt.Errorf("%s metric violated its contract: got %d losses for %d pairs",
			w.mode, len(vals), batch*nSrc*nSrc)
	}
	costs := make([]*mat.Dense, batch)
	for b := range costs {
		costs[b] = mat.NewDense(nSrc, nSrc, nil)
	}
	for i := 0; i < nSrc; i++ {
		for j := 0; j < nSrc; j++ {
			for b := 0; b < batch; b++ {
				costs[b].Set(i, j, vals[(i*nSrc+j)*batch+b])
			}
		}
	}
	return costs, nil
}

// evaluatePermAvg scores every permutation of the estimate sources with
// the wrapped metric, all permutations flattened into one call, and keeps
// the first minimum per batch element in enumeration order.
func (w *PITLossWrapper) evaluatePermAvg(est, ref signal.SourceBatch) ([]float64, [][]int, error) {
	batch := len(ref)
	nSrc := len(ref[0])
	allPerms := enumeratePermutations(nSrc)

	flatEst := make(signal.SourceBatch, 0, len(allPerms)*batch)
	flatRef := make(signal.SourceBatch, 0, len(allPerms)*batch)
	for _, perm := range allPerms {
		for b := 0; b < batch; b++ {
			permuted := make([][]float64, nSrc)
			for i, j := range perm {
				permuted[i] = est[b][j]
			}
			flatEst = append(flatEst, permuted)
			flatRef = append(flatRef, ref[b])
		}
	}
	vals, err := w.ms(flatEst, flatRef)
	if err != nil {
		return nil, nil, err
	}
	if len(vals) != len(allPerms)*batch {
		return nil, nil, fmt.Errorf("%s metric violated its contract: got %d losses for %d permuted batches",
			w.mode, len(vals), len(allPerms)*batch)
	}

	best := make([]float64, batch)
	perms := make([][]int, batch)
	for b := 0; b < batch; b++ {
		best[b] = vals[b]
		perms[b] = allPerms[0]
	}
	for p := 1; p < len(allPerms); p++ {
		for b := 0; b < batch; b++ {
			if v := vals[p*batch+b]; v < best[b] {
				best[b] = v
				perms[b] = allPerms[p]
			}
		}
	}
	return best, perms, nil
}

func checkCosts(costs []*mat.Dense, batch, nSrc int) error {
	if len(costs) != batch {
		return fmt.Errorf("pairwise metric violated its contract: got %d cost matrices for batch size %d",
			len(costs), batch)
	}
	for b, cost := range costs {
		r, c := cost.Dims()
		if r != nSrc || c != nSrc {
			return fmt.Errorf("pairwise metric violated its contract: batch element %d has %dx%d cost matrix, want %dx%d",
				b, r, c, nSrc, nSrc)
		}
	}
	return nil
}

// enumeratePermutations lists the permutations of [0, n) in lexicographic
// order, matching the tie-break of ExhaustiveSolver.
func enumeratePermutations(n int) [][]int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	out := [][]int{append([]int(nil), perm...)}
	for nextPermutation(perm) {
		out = append(out, append([]int(nil), perm...))
	}
	return out
}
