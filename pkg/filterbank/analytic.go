package filterbank

import (
	"fmt"
	"math/rand"

	"github.com/brettbuddin/fourier"
	"gonum.org/v1/gonum/mat"
)

// analyticFreeFB pairs each free filter with its quadrature (Hilbert
// transformed) counterpart, so the feature pairs carry instantaneous
// magnitude and phase. n_filters must be even: half the filters are
// free, the other half are derived.
type analyticFreeFB struct {
	freeFB
}

func newAnalyticFreeFB(cfg Config) (Filterbank, error) {
	if cfg.NFilters%2 != 0 {
		return nil, fmt.Errorf("analytic_free filterbank needs an even n_filters, got %d", cfg.NFilters)
	}
	cutoff := cfg.NFilters / 2
	rng := rand.New(rand.NewSource(cfg.Seed))
	base := randomFilters(rng, cutoff, cfg.KernelSize)

	analysis := mat.NewDense(cfg.NFilters, cfg.KernelSize, nil)
	for i := 0; i < cutoff; i++ {
		row := base.RawRowView(i)
		quad, err := hilbert(row)
		if err != nil {
			return nil, fmt.Errorf("analytic_free filterbank: %w", err)
		}
		analysis.SetRow(i, row)
		analysis.SetRow(cutoff+i, quad)
	}
	return &analyticFreeFB{freeFB{
		cfg:       cfg,
		analysis:  analysis,
		synthesis: analysis,
	}}, nil
}

func (a *analyticFreeFB) Name() string { return "analytic_free" }

// hilbert returns the quadrature pair of h via the analytic signal: the
// spectrum is forced one-sided and transformed back. The radix-2
// transform requires a power-of-two length, so h is zero-padded and the
// result truncated.
func hilbert(h []float64) ([]float64, error) {
	n := 1
	for n < len(h) {
		n <<= 1
	}
	buf := make([]complex128, n)
	for i, v := range h {
		buf[i] = complex(v, 0)
	}
	if err := fourier.Forward(buf); err != nil {
		return nil, err
	}
	for i := 1; i < n/2; i++ {
		buf[i] *= 2
	}
	for i := n/2 + 1; i < n; i++ {
		buf[i] = 0
	}
	if err := fourier.Inverse(buf); err != nil {
		return nil, err
	}
	out := make([]float64, len(h))
	for i := range out {
		out[i] = imag(buf[i])
	}
	return out, nil
}
