// Package models assembles the enhancement models built from the
// filterbank and masknn packages.
package models

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/pzelasko/asteroid/pkg/filterbank"
	"github.com/pzelasko/asteroid/pkg/masknn"
	"github.com/pzelasko/asteroid/pkg/signal"
	"gonum.org/v1/gonum/mat"
)

// DeMaskConfig carries every parameter needed to reconstruct an
// identically configured DeMask.
type DeMaskConfig struct {
	// InputType selects the masker features: "mag" for magnitudes,
	// "reim" for stacked real/imaginary parts, "cat" for both.
	InputType string
	// OutputType selects what the masker predicts: a "mag" mask applied
	// to both halves of the representation, or a full "reim" mask.
	OutputType string
	HiddenDims []int
	Dropout    float64
	Activation string
	// MaskActivation shapes the mask output, typically "relu" or
	// "sigmoid".
	MaskActivation string
	NormType       string
	FBType         string
	NFilters       int
	Stride         int
	KernelSize     int
	SampleRate     float64
	Seed           int64
}

// DefaultDeMaskConfig mirrors the reference configuration: magnitude
// masking on a 512-point STFT at 16 kHz with one 1024-wide hidden layer.
func DefaultDeMaskConfig() DeMaskConfig {
	return DeMaskConfig{
		InputType:      "mag",
		OutputType:     "mag",
		HiddenDims:     []int{1024},
		Dropout:        0,
		Activation:     "relu",
		MaskActivation: "relu",
		NormType:       "gLN",
		FBType:         "stft",
		NFilters:       512,
		Stride:         256,
		KernelSize:     512,
		SampleRate:     16000,
	}
}

// DeMask is a transformed-domain masking model for single-source speech
// enhancement: encoder, MLP mask estimator, decoder.
type DeMask struct {
	cfg     DeMaskConfig
	fb      filterbank.Filterbank
	encoder *filterbank.Encoder
	decoder *filterbank.Decoder
	masker  masknn.Sequential
}

// NewDeMask validates the configuration and builds the model. Input
// type, norm, activations and filterbank name are all checked here; the
// output type is checked while the mask head is sized, which still
// happens before the constructor returns.
func NewDeMask(cfg DeMaskConfig) (*DeMask, error) {
	fb, err := filterbank.New(cfg.FBType, filterbank.Config{
		NFilters:   cfg.NFilters,
		KernelSize: cfg.KernelSize,
		Stride:     cfg.Stride,
		SampleRate: cfg.SampleRate,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	m := &DeMask{
		cfg:     cfg,
		fb:      fb,
		encoder: filterbank.NewEncoder(fb),
		decoder: filterbank.NewDecoder(fb),
	}
	if m.masker, err = m.buildMasker(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DeMask) buildMasker() (masknn.Sequential, error) {
	featsIn, err := m.maskerInputSize()
	if err != nil {
		return nil, err
	}
	makeNorm, err := masknn.GetNorm(m.cfg.NormType)
	if err != nil {
		return nil, err
	}
	makeActivation, err := masknn.GetActivation(m.cfg.Activation)
	if err != nil {
		return nil, err
	}
	makeMaskActivation, err := masknn.GetActivation(m.cfg.MaskActivation)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	net := masknn.Sequential{makeNorm(featsIn)}
	in := featsIn
	for _, hidden := range m.cfg.HiddenDims {
		net = append(net,
			masknn.NewConv1x1(in, hidden, rng),
			makeNorm(hidden),
			makeActivation(),
			masknn.Dropout{Rate: m.cfg.Dropout},
		)
		in = hidden
	}
	featsOut, err := m.maskerOutputSize()
	if err != nil {
		return nil, err
	}
	net = append(net, masknn.NewConv1x1(in, featsOut, rng), makeMaskActivation())
	return net, nil
}

func (m *DeMask) maskerInputSize() (int, error) {
	switch m.cfg.InputType {
	case "reim":
		return m.fb.NFeatsOut(), nil
	case "mag":
		return m.fb.NFeatsOut() / 2, nil
	case "cat":
		return m.fb.NFeatsOut()/2 + m.fb.NFeatsOut(), nil
	default:
		return 0, fmt.Errorf("unknown input type %q: valid choices are cat, mag, reim", m.cfg.InputType)
	}
}

func (m *DeMask) maskerOutputSize() (int, error) {
	switch m.cfg.OutputType {
	case "mag":
		return m.fb.NFeatsOut() / 2, nil
	case "reim":
		return m.fb.NFeatsOut(), nil
	default:
		return 0, fmt.Errorf("unknown output type %q: valid choices are mag, reim", m.cfg.OutputType)
	}
}

// Enhance processes a single waveform and returns an enhanced waveform
// of the same length.
func (m *DeMask) Enhance(ctx context.Context, wav []float64) ([]float64, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("%w: empty waveform", signal.ErrShape)
	}
	return m.forwardOne(ctx, wav)
}

// EnhanceBatch processes a (batch, time) batch of waveforms.
func (m *DeMask) EnhanceBatch(ctx context.Context, wavs signal.Batch) (signal.Batch, error) {
	if err := signal.CheckBatch(wavs); err != nil {
		return nil, err
	}
	out := make(signal.Batch, len(wavs))
	for b, wav := range wavs {
		enhanced, err := m.forwardOne(ctx, wav)
		if err != nil {
			return nil, fmt.Errorf("batch element %d: %w", b, err)
		}
		out[b] = enhanced
	}
	return out, nil
}

// EnhanceChannels processes a (batch, channels, time) batch, enhancing
// each channel independently and preserving the shape.
func (m *DeMask) EnhanceChannels(ctx context.Context, wavs signal.SourceBatch) (signal.SourceBatch, error) {
	if err := signal.CheckSourceBatch(wavs); err != nil {
		return nil, err
	}
	out := make(signal.SourceBatch, len(wavs))
	for b := range wavs {
		out[b] = make([][]float64, len(wavs[b]))
		for c, wav := range wavs[b] {
			enhanced, err := m.forwardOne(ctx, wav)
			if err != nil {
				return nil, fmt.Errorf("batch element %d, channel %d: %w", b, c, err)
			}
			out[b][c] = enhanced
		}
	}
	return out, nil
}

func (m *DeMask) forwardOne(ctx context.Context, wav []float64) ([]float64, error) {
	rep := m.encoder.Encode(wav)

	maskIn, err := m.maskerInput(rep)
	if err != nil {
		return nil, err
	}
	mask := m.masker.Forward(maskIn)

	var masked *mat.Dense
	switch m.cfg.OutputType {
	case "mag":
		masked, err = filterbank.ApplyMagMask(rep, mask)
	default:
		masked, err = filterbank.ApplyReImMask(rep, mask)
	}
	if err != nil {
		return nil, err
	}

	decoded, err := m.decoder.Decode(masked)
	if err != nil {
		return nil, err
	}
	_, frames := rep.Dims()
	logger.Debugf(ctx, "enhanced %d samples through %d frames of %q features", len(wav), frames, m.cfg.FBType)
	return signal.PadToMatch(decoded, len(wav)), nil
}

func (m *DeMask) maskerInput(rep *mat.Dense) (*mat.Dense, error) {
	switch m.cfg.InputType {
	case "mag":
		return filterbank.TakeMag(rep)
	case "cat":
		return filterbank.TakeCat(rep)
	default: // input type was validated at construction
		return rep, nil
	}
}

// SampleRate returns the sampling rate the model was configured for.
func (m *DeMask) SampleRate() float64 { return m.cfg.SampleRate }

// Config returns the configuration of the model.
func (m *DeMask) Config() DeMaskConfig { return m.cfg }

// ModelArgs returns the exact keyword arguments needed to reconstruct an
// identically configured (but not identically weighted) instance.
func (m *DeMask) ModelArgs() map[string]any {
	return map[string]any{
		"input_type":  m.cfg.InputType,
		"output_type": m.cfg.OutputType,
		"hidden_dims": append([]int(nil), m.cfg.HiddenDims...),
		"dropout":     m.cfg.Dropout,
		"activation":  m.cfg.Activation,
		"mask_act":    m.cfg.MaskActivation,
		"norm_type":   m.cfg.NormType,
		"fb_type":     m.cfg.FBType,
		"n_filters":   m.cfg.NFilters,
		"stride":      m.cfg.Stride,
		"kernel_size": m.cfg.KernelSize,
		"sample_rate": m.cfg.SampleRate,
	}
}
