package filterbank

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// stftFB computes windowed real DFT features: the first half of the
// output vector carries the real parts of the positive-frequency bins,
// the second half the imaginary parts. NFeatsOut is therefore
// n_filters + 2 for an even n_filters (the DFT size).
type stftFB struct {
	cfg    Config
	bins   int
	window []float64
}

func newSTFTFB(cfg Config) (Filterbank, error) {
	if cfg.NFilters%2 != 0 {
		return nil, fmt.Errorf("stft filterbank needs an even n_filters, got %d", cfg.NFilters)
	}
	if cfg.KernelSize > cfg.NFilters {
		return nil, fmt.Errorf("stft filterbank needs kernel_size <= n_filters, got %d > %d",
			cfg.KernelSize, cfg.NFilters)
	}
	return &stftFB{
		cfg:    cfg,
		bins:   cfg.NFilters/2 + 1,
		window: sqrtHann(cfg.KernelSize),
	}, nil
}

func (s *stftFB) Name() string    { return "stft" }
func (s *stftFB) KernelSize() int { return s.cfg.KernelSize }
func (s *stftFB) Stride() int     { return s.cfg.Stride }
func (s *stftFB) NFeatsOut() int  { return 2 * s.bins }

func (s *stftFB) Analyze(frame []float64) []float64 {
	buf := make([]float64, s.cfg.NFilters)
	for k, v := range frame {
		buf[k] = v * s.window[k]
	}
	spectrum := fft.FFTReal(buf)
	out := make([]float64, 2*s.bins)
	for f := 0; f < s.bins; f++ {
		out[f] = real(spectrum[f])
		out[s.bins+f] = imag(spectrum[f])
	}
	return out
}

func (s *stftFB) Synthesize(feats []float64) []float64 {
	n := s.cfg.NFilters
	spectrum := make([]complex128, n)
	for f := 0; f < s.bins; f++ {
		spectrum[f] = complex(feats[f], feats[s.bins+f])
	}
	// Mirror the positive bins so the inverse transform stays real.
	for f := 1; f < s.bins-1; f++ {
		spectrum[n-f] = complex(feats[f], -feats[s.bins+f])
	}
	wav := fft.IFFT(spectrum)

	// Square-root Hann on both sides overlap-adds to a constant when
	// the stride divides the kernel, up to the hop compensation factor.
	scale := 2 * float64(s.cfg.Stride) / float64(s.cfg.KernelSize)
	out := make([]float64, s.cfg.KernelSize)
	for k := range out {
		out[k] = real(wav[k]) * s.window[k] * scale
	}
	return out
}

// sqrtHann is the periodic square-root Hann window.
func sqrtHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Sqrt(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n))))
	}
	return w
}
