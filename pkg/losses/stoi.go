package losses

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	stoiFFTSize    = 512
	stoiHop        = 256
	stoiNumBands   = 15  // one-third octave bands
	stoiLowestBand = 150 // Hz, center of the first band
	stoiSegment    = 30  // frames per intelligibility segment
	stoiClipDB     = 15  // signal-to-distortion clip in the standard variant
	stoiVADRange   = 40  // dB below the loudest frame kept by the VAD
)

// NegSTOI is a single-source intelligibility loss: the negated short-time
// objective intelligibility measure. Band envelopes over one-third octave
// bands are compared segment by segment through a correlation
// coefficient; higher intelligibility means a lower (more negative)
// loss.
type NegSTOI struct {
	sampleRate int
	bins       int
	useVAD     bool
	extended   bool
	bandLo     []int // first bin of each band
	bandHi     []int // one past the last bin
	fft        *fourier.FFT
	window     []float64
}

// NewNegSTOI builds the loss. useVAD removes frames more than 40 dB
// below the loudest reference frame before scoring; extended switches to
// the normalized-envelope variant without clipping.
func NewNegSTOI(sampleRate int, useVAD, extended bool) (*NegSTOI, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	n := &NegSTOI{
		sampleRate: sampleRate,
		bins:       stoiFFTSize/2 + 1,
		useVAD:     useVAD,
		extended:   extended,
		fft:        fourier.NewFFT(stoiFFTSize),
		window:     hannWindow(stoiFFTSize),
	}

	binHz := float64(sampleRate) / stoiFFTSize
	for q := 0; q < stoiNumBands; q++ {
		center := stoiLowestBand * math.Pow(2, float64(q)/3)
		lo := int(math.Ceil(center / math.Pow(2, 1.0/6) / binHz))
		hi := int(math.Floor(center * math.Pow(2, 1.0/6) / binHz))
		if hi >= n.bins {
			hi = n.bins - 1
		}
		if lo < 1 {
			lo = 1
		}
		if lo > hi {
			// Band falls outside the spectrum at this sample rate.
			continue
		}
		n.bandLo = append(n.bandLo, lo)
		n.bandHi = append(n.bandHi, hi+1)
	}
	if len(n.bandLo) == 0 {
		return nil, fmt.Errorf("sample rate %d leaves no usable one-third octave band", sampleRate)
	}
	return n, nil
}

// Bins returns the expected number of frequency bins of a spectral input.
func (n *NegSTOI) Bins() int { return n.bins }

// Loss scores estimated against reference waveforms, (batch, time) in,
// (batch,) out.
func (n *NegSTOI) Loss(est, ref signal.Batch) ([]float64, error) {
	if err := signal.CheckSameBatch(est, ref); err != nil {
		return nil, err
	}
	out := make([]float64, len(ref))
	for b := range ref {
		v, err := n.negSTOI(n.stft(est[b]), n.stft(ref[b]))
		if err != nil {
			return nil, fmt.Errorf("batch element %d: %w", b, err)
		}
		out[b] = v
	}
	return out, nil
}

// LossSpec scores precomputed magnitude spectrograms, (batch, bins,
// frames) or the (batch, frames, bins) transpose.
func (n *NegSTOI) LossSpec(est, ref signal.SourceBatch) ([]float64, error) {
	if err := signal.CheckSameSourceBatch(est, ref); err != nil {
		return nil, err
	}
	out := make([]float64, len(ref))
	for b := range ref {
		specE, err := orientSpectrogram(est[b], n.bins)
		if err != nil {
			return nil, fmt.Errorf("estimates, batch element %d: %w", b, err)
		}
		specR, err := orientSpectrogram(ref[b], n.bins)
		if err != nil {
			return nil, fmt.Errorf("references, batch element %d: %w", b, err)
		}
		v, err := n.negSTOI(specE, specR)
		if err != nil {
			return nil, fmt.Errorf("batch element %d: %w", b, err)
		}
		out[b] = v
	}
	return out, nil
}

// SingleSrc adapts the loss to the single-source PIT convention.
func (n *NegSTOI) SingleSrc() SingleSrc {
	return n.Loss
}

func (n *NegSTOI) negSTOI(specE, specR [][]float64) (float64, error) {
	if n.useVAD {
		specE, specR = n.dropSilentFrames(specE, specR)
	}
	frames := len(specR[0])
	if frames < 2 {
		return 0, fmt.Errorf("only %d analysis frames left, need at least 2", frames)
	}

	envE := n.bandEnvelopes(specE)
	envR := n.bandEnvelopes(specR)

	segLen := stoiSegment
	if frames < segLen {
		segLen = frames
	}

	var sum float64
	var count int
	for end := segLen; end <= frames; end++ {
		start := end - segLen
		for q := range envR {
			x := envR[q][start:end]
			y := envE[q][start:end]
			if n.extended {
				// The extended variant compares raw envelopes, no clipping.
				sum += correlation(x, y)
			} else {
				sum += correlation(x, clipEnvelope(x, y))
			}
			count++
		}
	}
	return -sum / float64(count), nil
}

// bandEnvelopes folds a (bins, frames) magnitude spectrogram into
// one-third octave band envelopes, (bands, frames).
func (n *NegSTOI) bandEnvelopes(spec [][]float64) [][]float64 {
	frames := len(spec[0])
	env := make([][]float64, len(n.bandLo))
	for q := range n.bandLo {
		env[q] = make([]float64, frames)
		for t := 0; t < frames; t++ {
			var power float64
			for k := n.bandLo[q]; k < n.bandHi[q]; k++ {
				power += spec[k][t] * spec[k][t]
			}
			env[q][t] = math.Sqrt(power)
		}
	}
	return env
}

// dropSilentFrames removes frames whose reference energy falls more than
// stoiVADRange dB below the loudest reference frame, from both signals.
func (n *NegSTOI) dropSilentFrames(specE, specR [][]float64) ([][]float64, [][]float64) {
	frames := len(specR[0])
	energy := make([]float64, frames)
	var maxE float64
	for t := 0; t < frames; t++ {
		for k := range specR {
			energy[t] += specR[k][t] * specR[k][t]
		}
		if energy[t] > maxE {
			maxE = energy[t]
		}
	}
	threshold := maxE * math.Pow(10, -stoiVADRange/10.0)
	keep := make([]int, 0, frames)
	for t := 0; t < frames; t++ {
		if energy[t] >= threshold {
			keep = append(keep, t)
		}
	}
	if len(keep) == frames {
		return specE, specR
	}
	pick := func(spec [][]float64) [][]float64 {
		out := make([][]float64, len(spec))
		for k := range spec {
			out[k] = make([]float64, len(keep))
			for i, t := range keep {
				out[k][i] = spec[k][t]
			}
		}
		return out
	}
	return pick(specE), pick(specR)
}

// clipEnvelope rescales y to the energy of x and clips it so it cannot
// exceed x by more than the configured signal-to-distortion bound.
func clipEnvelope(x, y []float64) []float64 {
	var ex, ey float64
	for i := range x {
		ex += x[i] * x[i]
		ey += y[i] * y[i]
	}
	scale := math.Sqrt(ex / (ey + eps))
	bound := 1 + math.Pow(10, -stoiClipDB/20.0)
	out := make([]float64, len(y))
	for i := range y {
		v := y[i] * scale
		if limit := x[i] * bound; v > limit {
			v = limit
		}
		out[i] = v
	}
	return out
}

// correlation is the Pearson correlation coefficient of two segments.
func correlation(x, y []float64) float64 {
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(len(x))
	my /= float64(len(y))
	var num, dx, dy float64
	for i := range x {
		num += (x[i] - mx) * (y[i] - my)
		dx += (x[i] - mx) * (x[i] - mx)
		dy += (y[i] - my) * (y[i] - my)
	}
	return num / (math.Sqrt(dx*dy) + eps)
}

// stft returns the (bins, frames) magnitude spectrogram of x.
func (n *NegSTOI) stft(x []float64) [][]float64 {
	frames := 1
	if len(x) > stoiFFTSize {
		frames += (len(x) - stoiFFTSize) / stoiHop
	}
	spec := make([][]float64, n.bins)
	for k := range spec {
		spec[k] = make([]float64, frames)
	}
	buf := make([]float64, stoiFFTSize)
	for t := 0; t < frames; t++ {
		start := t * stoiHop
		for k := range buf {
			if start+k < len(x) {
				buf[k] = x[start+k] * n.window[k]
			} else {
				buf[k] = 0
			}
		}
		coeffs := n.fft.Coefficients(nil, buf)
		for k, c := range coeffs {
			spec[k][t] = cmplx.Abs(c)
		}
	}
	return spec
}
