package filterbank

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	return Config{NFilters: 512, KernelSize: 512, Stride: 256, SampleRate: 16000}
}

func TestRegistry(t *testing.T) {
	t.Run("lists all names", func(t *testing.T) {
		assert.Equal(t, []string{"analytic_free", "free", "stft"}, Names())
	})

	t.Run("unknown name lists valid choices", func(t *testing.T) {
		_, err := New("wavelet", defaultConfig())
		require.Error(t, err)
		assert.ErrorContains(t, err, `unknown filterbank "wavelet"`)
		assert.ErrorContains(t, err, "analytic_free, free, stft")
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Stride = 0
		_, err := New("stft", cfg)
		assert.ErrorContains(t, err, "stride")
	})

	t.Run("stft wants even filters", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.NFilters = 511
		cfg.KernelSize = 511
		_, err := New("stft", cfg)
		assert.ErrorContains(t, err, "even")
	})

	t.Run("analytic_free wants even filters", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.NFilters = 511
		_, err := New("analytic_free", cfg)
		assert.ErrorContains(t, err, "even")
	})
}

func TestFeatureDimensions(t *testing.T) {
	cfg := defaultConfig()
	for name, want := range map[string]int{
		"stft":          cfg.NFilters + 2,
		"free":          cfg.NFilters,
		"analytic_free": cfg.NFilters,
	} {
		t.Run(name, func(t *testing.T) {
			fb, err := New(name, cfg)
			require.NoError(t, err)
			assert.Equal(t, want, fb.NFeatsOut())
		})
	}
}

func TestEncodeDecodeLengths(t *testing.T) {
	for _, name := range Names() {
		for _, stride := range []int{128, 256} {
			t.Run(fmt.Sprintf("%s-stride-%d", name, stride), func(t *testing.T) {
				cfg := defaultConfig()
				cfg.Stride = stride
				fb, err := New(name, cfg)
				require.NoError(t, err)

				wav := make([]float64, 8000)
				for i := range wav {
					wav[i] = math.Sin(float64(i) * 0.02)
				}
				rep := NewEncoder(fb).Encode(wav)
				rows, frames := rep.Dims()
				assert.Equal(t, fb.NFeatsOut(), rows)
				assert.Equal(t, 1+(len(wav)-cfg.KernelSize)/stride, frames)

				out, err := NewDecoder(fb).Decode(rep)
				require.NoError(t, err)
				assert.Equal(t, (frames-1)*stride+cfg.KernelSize, len(out))
			})
		}
	}
}

func TestEncodeShortInput(t *testing.T) {
	fb, err := New("stft", defaultConfig())
	require.NoError(t, err)
	// Shorter than one kernel: a single zero-padded frame.
	rep := NewEncoder(fb).Encode(make([]float64, 100))
	_, frames := rep.Dims()
	assert.Equal(t, 1, frames)
}

func TestDecoderShapeCheck(t *testing.T) {
	fb, err := New("stft", defaultConfig())
	require.NoError(t, err)
	bad := NewEncoder(fb).Encode(make([]float64, 1000))
	wrong, err := New("free", defaultConfig())
	require.NoError(t, err)
	_, err = NewDecoder(wrong).Decode(bad)
	assert.Error(t, err)
}

func TestSTFTRoundTripTone(t *testing.T) {
	cfg := defaultConfig()
	fb, err := New("stft", cfg)
	require.NoError(t, err)

	wav := make([]float64, 8000)
	freq := 2 * math.Pi * 50 / float64(cfg.NFilters)
	for i := range wav {
		wav[i] = math.Sin(freq * float64(i))
	}
	rep := NewEncoder(fb).Encode(wav)
	out, err := NewDecoder(fb).Decode(rep)
	require.NoError(t, err)

	// Away from the frame edges the windowed overlap-add reconstruction
	// must track the input closely.
	var num, den float64
	for i := cfg.KernelSize; i < len(wav)-cfg.KernelSize; i++ {
		d := out[i] - wav[i]
		num += d * d
		den += wav[i] * wav[i]
	}
	assert.Less(t, num/den, 0.01)
}
