package models

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pzelasko/asteroid/pkg/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomWave(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func TestDeMaskForwardLengths(t *testing.T) {
	model, err := NewDeMask(DefaultDeMaskConfig())
	require.NoError(t, err)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{1000, 8000, 8001, 16000} {
		t.Run(fmt.Sprintf("1d-len-%d", n), func(t *testing.T) {
			out, err := model.Enhance(ctx, randomWave(rng, n))
			require.NoError(t, err)
			assert.Len(t, out, n)
		})
	}

	t.Run("2d batch", func(t *testing.T) {
		batch := signal.Batch{randomWave(rng, 4000), randomWave(rng, 4000)}
		out, err := model.EnhanceBatch(ctx, batch)
		require.NoError(t, err)
		require.Len(t, out, 2)
		for _, wav := range out {
			assert.Len(t, wav, 4000)
		}
	})

	t.Run("3d channels", func(t *testing.T) {
		wavs := signal.SourceBatch{{randomWave(rng, 3000)}, {randomWave(rng, 3000)}}
		out, err := model.EnhanceChannels(ctx, wavs)
		require.NoError(t, err)
		require.Len(t, out, 2)
		require.Len(t, out[0], 1)
		assert.Len(t, out[0][0], 3000)
	})
}

func TestDeMaskLengthIndependentOfFilterbank(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(2))
	wav := randomWave(rng, 7777)

	for _, tc := range []struct {
		fbType     string
		nFilters   int
		kernelSize int
		stride     int
	}{
		{"stft", 512, 512, 256},
		{"stft", 256, 256, 128},
		{"free", 128, 64, 32},
		{"analytic_free", 128, 64, 16},
	} {
		t.Run(fmt.Sprintf("%s-%d-%d-%d", tc.fbType, tc.nFilters, tc.kernelSize, tc.stride), func(t *testing.T) {
			cfg := DefaultDeMaskConfig()
			cfg.HiddenDims = []int{64}
			cfg.FBType = tc.fbType
			cfg.NFilters = tc.nFilters
			cfg.KernelSize = tc.kernelSize
			cfg.Stride = tc.stride

			model, err := NewDeMask(cfg)
			require.NoError(t, err)
			out, err := model.Enhance(ctx, wav)
			require.NoError(t, err)
			assert.Len(t, out, len(wav))
			for _, v := range out {
				require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}
		})
	}
}

func TestDeMaskInputOutputTypes(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(3))
	wav := randomWave(rng, 4000)

	for _, inputType := range []string{"mag", "reim", "cat"} {
		for _, outputType := range []string{"mag", "reim"} {
			t.Run(inputType+"-"+outputType, func(t *testing.T) {
				cfg := DefaultDeMaskConfig()
				cfg.HiddenDims = []int{32}
				cfg.InputType = inputType
				cfg.OutputType = outputType

				model, err := NewDeMask(cfg)
				require.NoError(t, err)
				out, err := model.Enhance(ctx, wav)
				require.NoError(t, err)
				assert.Len(t, out, len(wav))
			})
		}
	}
}

func TestDeMaskConfigValidation(t *testing.T) {
	base := func() DeMaskConfig {
		cfg := DefaultDeMaskConfig()
		cfg.HiddenDims = []int{16}
		return cfg
	}

	t.Run("unknown input type", func(t *testing.T) {
		cfg := base()
		cfg.InputType = "phase"
		_, err := NewDeMask(cfg)
		assert.ErrorContains(t, err, `unknown input type "phase"`)
	})

	t.Run("unknown output type", func(t *testing.T) {
		cfg := base()
		cfg.OutputType = "phase"
		_, err := NewDeMask(cfg)
		assert.ErrorContains(t, err, `unknown output type "phase"`)
	})

	t.Run("unknown norm", func(t *testing.T) {
		cfg := base()
		cfg.NormType = "iLN"
		_, err := NewDeMask(cfg)
		assert.ErrorContains(t, err, "unknown norm")
	})

	t.Run("unknown activation", func(t *testing.T) {
		cfg := base()
		cfg.Activation = "swish"
		_, err := NewDeMask(cfg)
		assert.ErrorContains(t, err, "unknown activation")
	})

	t.Run("unknown mask activation", func(t *testing.T) {
		cfg := base()
		cfg.MaskActivation = "swish"
		_, err := NewDeMask(cfg)
		assert.ErrorContains(t, err, "unknown activation")
	})

	t.Run("unknown filterbank", func(t *testing.T) {
		cfg := base()
		cfg.FBType = "gammatone"
		_, err := NewDeMask(cfg)
		assert.ErrorContains(t, err, "unknown filterbank")
	})

	t.Run("empty waveform", func(t *testing.T) {
		model, err := NewDeMask(base())
		require.NoError(t, err)
		_, err = model.Enhance(context.Background(), nil)
		assert.ErrorIs(t, err, signal.ErrShape)
	})
}

func TestDeMaskModelArgs(t *testing.T) {
	cfg := DefaultDeMaskConfig()
	cfg.HiddenDims = []int{256, 128}
	cfg.Dropout = 0.1
	model, err := NewDeMask(cfg)
	require.NoError(t, err)

	args := model.ModelArgs()
	assert.Equal(t, "mag", args["input_type"])
	assert.Equal(t, "mag", args["output_type"])
	assert.Equal(t, []int{256, 128}, args["hidden_dims"])
	assert.Equal(t, 0.1, args["dropout"])
	assert.Equal(t, "relu", args["activation"])
	assert.Equal(t, "relu", args["mask_act"])
	assert.Equal(t, "gLN", args["norm_type"])
	assert.Equal(t, "stft", args["fb_type"])
	assert.Equal(t, 512, args["n_filters"])
	assert.Equal(t, 256, args["stride"])
	assert.Equal(t, 512, args["kernel_size"])
	assert.Equal(t, 16000.0, args["sample_rate"])

	// The args must be enough to build an identically configured model.
	rebuilt, err := NewDeMask(model.Config())
	require.NoError(t, err)
	assert.Equal(t, model.ModelArgs(), rebuilt.ModelArgs())
}

func TestDeMaskSampleRate(t *testing.T) {
	model, err := NewDeMask(DefaultDeMaskConfig())
	require.NoError(t, err)
	assert.Equal(t, 16000.0, model.SampleRate())
}
