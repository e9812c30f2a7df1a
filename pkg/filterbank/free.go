package filterbank

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// freeFB holds fully free analysis and synthesis filter matrices, the
// untrained counterpart of a learnable filterbank. Filters are seeded
// random, unit-norm rows.
type freeFB struct {
	cfg       Config
	analysis  *mat.Dense // (n_filters, kernel)
	synthesis *mat.Dense
}

func newFreeFB(cfg Config) (Filterbank, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &freeFB{
		cfg:       cfg,
		analysis:  randomFilters(rng, cfg.NFilters, cfg.KernelSize),
		synthesis: randomFilters(rng, cfg.NFilters, cfg.KernelSize),
	}, nil
}

func (f *freeFB) Name() string    { return "free" }
func (f *freeFB) KernelSize() int { return f.cfg.KernelSize }
func (f *freeFB) Stride() int     { return f.cfg.Stride }
func (f *freeFB) NFeatsOut() int  { return f.cfg.NFilters }

func (f *freeFB) Analyze(frame []float64) []float64 {
	return applyFilters(f.analysis, frame, f.cfg.NFilters)
}

func (f *freeFB) Synthesize(feats []float64) []float64 {
	// Transposed application: each filter contributes its waveform
	// weighted by the corresponding feature.
	out := make([]float64, f.cfg.KernelSize)
	for i, w := range feats {
		for k := 0; k < f.cfg.KernelSize; k++ {
			out[k] += w * f.synthesis.At(i, k)
		}
	}
	return out
}

func randomFilters(rng *rand.Rand, n, kernel int) *mat.Dense {
	filters := mat.NewDense(n, kernel, nil)
	for i := 0; i < n; i++ {
		var norm float64
		row := make([]float64, kernel)
		for k := range row {
			row[k] = rng.NormFloat64()
			norm += row[k] * row[k]
		}
		norm = math.Sqrt(norm)
		for k := range row {
			row[k] /= norm
		}
		filters.SetRow(i, row)
	}
	return filters
}

func applyFilters(filters *mat.Dense, frame []float64, n int) []float64 {
	out := mat.NewVecDense(n, nil)
	out.MulVec(filters, mat.NewVecDense(len(frame), frame))
	return out.RawVector().Data
}
