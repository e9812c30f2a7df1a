// Package filterbank provides the analysis/synthesis transform pairs that
// turn waveforms into time-frequency representations and back: an STFT
// filterbank, a free (randomly initialized, learnable-shaped) filterbank
// and its analytic variant. Filterbanks are chosen by name through a
// closed registry.
package filterbank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// Filterbank transforms one analysis frame into a feature vector and
// back. Framing, striding and overlap-add are handled by Encoder and
// Decoder.
type Filterbank interface {
	Name() string
	// KernelSize is the analysis frame length in samples.
	KernelSize() int
	// Stride is the hop between consecutive frames in samples.
	Stride() int
	// NFeatsOut is the feature dimension produced per frame.
	NFeatsOut() int
	// Analyze transforms one frame of KernelSize samples into NFeatsOut
	// features.
	Analyze(frame []float64) []float64
	// Synthesize transforms NFeatsOut features back into KernelSize
	// samples.
	Synthesize(feats []float64) []float64
}

// Config carries the construction parameters shared by all filterbanks.
type Config struct {
	NFilters   int
	KernelSize int
	Stride     int
	SampleRate float64
	// Seed drives the random filters of the free filterbanks.
	Seed int64
}

func (c Config) validate() error {
	if c.NFilters <= 0 {
		return fmt.Errorf("n_filters must be positive, got %d", c.NFilters)
	}
	if c.KernelSize <= 0 {
		return fmt.Errorf("kernel_size must be positive, got %d", c.KernelSize)
	}
	if c.Stride <= 0 {
		return fmt.Errorf("stride must be positive, got %d", c.Stride)
	}
	return nil
}

type builder func(Config) (Filterbank, error)

// builders is the closed registry of filterbank constructors. Lookups of
// unknown names fail eagerly at construction time.
var builders = map[string]builder{
	"stft":          newSTFTFB,
	"free":          newFreeFB,
	"analytic_free": newAnalyticFreeFB,
}

// Names lists the registered filterbank names, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named filterbank.
func New(name string, cfg Config) (Filterbank, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown filterbank %q: valid choices are %s",
			name, strings.Join(Names(), ", "))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("filterbank %q: %w", name, err)
	}
	return build(cfg)
}

// Encoder applies a filterbank to a strided framing of a waveform,
// producing an (NFeatsOut, frames) representation.
type Encoder struct {
	FB Filterbank
}

// NewEncoder wraps a filterbank for analysis.
func NewEncoder(fb Filterbank) *Encoder {
	return &Encoder{FB: fb}
}

// Encode transforms one waveform. Waveforms shorter than one frame are
// zero-padded to a single frame.
func (e *Encoder) Encode(wav []float64) *mat.Dense {
	kernel := e.FB.KernelSize()
	stride := e.FB.Stride()
	frames := 1
	if len(wav) > kernel {
		frames += (len(wav) - kernel) / stride
	}
	rep := mat.NewDense(e.FB.NFeatsOut(), frames, nil)
	frame := make([]float64, kernel)
	for t := 0; t < frames; t++ {
		start := t * stride
		for k := range frame {
			if start+k < len(wav) {
				frame[k] = wav[start+k]
			} else {
				frame[k] = 0
			}
		}
		feats := e.FB.Analyze(frame)
		for f, v := range feats {
			rep.Set(f, t, v)
		}
	}
	return rep
}

// EncodeBatch transforms every waveform of a batch independently.
func (e *Encoder) EncodeBatch(wavs signal.Batch) []*mat.Dense {
	out := make([]*mat.Dense, len(wavs))
	for b, wav := range wavs {
		out[b] = e.Encode(wav)
	}
	return out
}

// Decoder inverts an Encoder by synthesizing each frame and overlap-
// adding the results. The raw output length is (frames-1)*stride+kernel;
// callers align it to a reference length with signal.PadToMatch.
type Decoder struct {
	FB Filterbank
}

// NewDecoder wraps a filterbank for synthesis.
func NewDecoder(fb Filterbank) *Decoder {
	return &Decoder{FB: fb}
}

// Decode synthesizes a waveform from an (NFeatsOut, frames)
// representation.
func (d *Decoder) Decode(rep *mat.Dense) ([]float64, error) {
	rows, frames := rep.Dims()
	if rows != d.FB.NFeatsOut() {
		return nil, fmt.Errorf("%w: representation has %d features, filterbank %q expects %d",
			signal.ErrShape, rows, d.FB.Name(), d.FB.NFeatsOut())
	}
	kernel := d.FB.KernelSize()
	stride := d.FB.Stride()
	out := make([]float64, (frames-1)*stride+kernel)
	feats := make([]float64, rows)
	for t := 0; t < frames; t++ {
		for f := range feats {
			feats[f] = rep.At(f, t)
		}
		frame := d.FB.Synthesize(feats)
		start := t * stride
		for k, v := range frame {
			out[start+k] += v
		}
	}
	return out, nil
}
