package losses

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/dsp/fourier"
)

// pmsqeBands is the number of Bark-spaced bands the spectrum is folded
// into before the disturbance is measured.
const pmsqeBands = 24

// PMSQE is a perceptual-quality single-source loss in the PESQ family:
// magnitude spectra are folded into Bark-spaced bands, mapped to a
// power-law loudness scale, and the per-band loudness disturbance is
// accumulated with an extra asymmetry penalty on additive noise, which
// the ear tolerates less than attenuation.
//
// It consumes magnitude spectrograms shaped (batch, bins, frames) or the
// (batch, frames, bins) transpose; the orientation is detected from the
// configured bin count and both yield identical results.
type PMSQE struct {
	sampleRate int
	fftSize    int
	bins       int
	bandOfBin  []int // bin index -> Bark band
	fft        *fourier.FFT
	window     []float64
}

// NewPMSQE builds the loss for the given sample rate. Only 8000 and
// 16000 Hz are supported, using 256- and 512-point analysis windows
// respectively.
func NewPMSQE(sampleRate int) (*PMSQE, error) {
	var fftSize int
	switch sampleRate {
	case 8000:
		fftSize = 256
	case 16000:
		fftSize = 512
	default:
		return nil, fmt.Errorf("unsupported sample rate %d: choose 8000 or 16000", sampleRate)
	}
	bins := fftSize/2 + 1

	p := &PMSQE{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		bins:       bins,
		fft:        fourier.NewFFT(fftSize),
		window:     hannWindow(fftSize),
	}

	// Equal-width bands on the Bark axis, one membership per bin.
	maxBark := hzToBark(float64(sampleRate) / 2)
	p.bandOfBin = make([]int, bins)
	for k := 0; k < bins; k++ {
		f := float64(k) * float64(sampleRate) / float64(fftSize)
		band := int(hzToBark(f) / maxBark * pmsqeBands)
		if band >= pmsqeBands {
			band = pmsqeBands - 1
		}
		p.bandOfBin[k] = band
	}
	return p, nil
}

// Bins returns the expected number of frequency bins of a spectral input.
func (p *PMSQE) Bins() int { return p.bins }

// LossSpec scores estimated against reference magnitude spectrograms,
// returning one value per batch element.
func (p *PMSQE) LossSpec(est, ref signal.SourceBatch) ([]float64, error) {
	if err := signal.CheckSameSourceBatch(est, ref); err != nil {
		return nil, err
	}
	out := make([]float64, len(ref))
	for b := range ref {
		specE, err := orientSpectrogram(est[b], p.bins)
		if err != nil {
			return nil, fmt.Errorf("estimates, batch element %d: %w", b, err)
		}
		specR, err := orientSpectrogram(ref[b], p.bins)
		if err != nil {
			return nil, fmt.Errorf("references, batch element %d: %w", b, err)
		}
		out[b] = p.disturbance(specE, specR)
	}
	return out, nil
}

// SingleSrc adapts the loss to waveform inputs by applying its own
// short-time transform, so it fits the single-source PIT convention.
func (p *PMSQE) SingleSrc() SingleSrc {
	return func(est, ref signal.Batch) ([]float64, error) {
		if err := signal.CheckSameBatch(est, ref); err != nil {
			return nil, err
		}
		out := make([]float64, len(ref))
		for b := range ref {
			specE := p.stft(est[b])
			specR := p.stft(ref[b])
			out[b] = p.disturbance(specE, specR)
		}
		return out, nil
	}
}

// disturbance accumulates the per-frame loudness disturbance between two
// (bins, frames) spectrograms.
func (p *PMSQE) disturbance(specE, specR [][]float64) float64 {
	frames := len(specE[0])
	var total float64
	for t := 0; t < frames; t++ {
		bandE := p.bandPowers(specE, t)
		bandR := p.bandPowers(specR, t)
		var frame float64
		for q := 0; q < pmsqeBands; q++ {
			le := math.Pow(bandE[q]+eps, 0.23)
			lr := math.Pow(bandR[q]+eps, 0.23)
			d := math.Abs(le - lr)
			// Additive noise weighs more than attenuation.
			asym := math.Pow((bandE[q]+50)/(bandR[q]+50), 1.2)
			if asym > 12 {
				asym = 12
			}
			if asym < 1 {
				asym = 0
			}
			frame += d + 0.1*d*asym
		}
		total += frame / pmsqeBands
	}
	return total / float64(frames)
}

func (p *PMSQE) bandPowers(spec [][]float64, frame int) []float64 {
	powers := make([]float64, pmsqeBands)
	for k := 0; k < p.bins; k++ {
		m := spec[k][frame]
		powers[p.bandOfBin[k]] += m * m
	}
	return powers
}

// stft returns the (bins, frames) magnitude spectrogram of x with the
// configured window and half-window hop.
func (p *PMSQE) stft(x []float64) [][]float64 {
	hop := p.fftSize / 2
	frames := 1
	if len(x) > p.fftSize {
		frames += (len(x) - p.fftSize) / hop
	}
	spec := make([][]float64, p.bins)
	for k := range spec {
		spec[k] = make([]float64, frames)
	}
	buf := make([]float64, p.fftSize)
	for t := 0; t < frames; t++ {
		start := t * hop
		for k := range buf {
			if start+k < len(x) {
				buf[k] = x[start+k] * p.window[k]
			} else {
				buf[k] = 0
			}
		}
		coeffs := p.fft.Coefficients(nil, buf)
		for k, c := range coeffs {
			spec[k][t] = cmplx.Abs(c)
		}
	}
	return spec
}

// orientSpectrogram normalizes a single spectrogram to (bins, frames),
// transposing when the trailing axis carries the frequency bins.
func orientSpectrogram(spec [][]float64, bins int) ([][]float64, error) {
	switch {
	case len(spec) == bins:
		return spec, nil
	case len(spec) > 0 && len(spec[0]) == bins:
		return signal.Transpose(spec), nil
	default:
		cols := 0
		if len(spec) > 0 {
			cols = len(spec[0])
		}
		return nil, fmt.Errorf("%w: neither axis of %dx%d input matches %d frequency bins",
			signal.ErrShape, len(spec), cols, bins)
	}
}

// hzToBark maps a frequency to the Bark scale.
func hzToBark(f float64) float64 {
	return 13*math.Atan(0.00076*f) + 3.5*math.Atan(math.Pow(f/7500, 2))
}
