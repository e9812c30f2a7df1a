package losses

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pzelasko/asteroid/pkg/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpectralScales() []SpectralScale {
	var scales []SpectralScale
	for _, n := range []int{512, 256, 32} {
		scales = append(scales, SpectralScale{FFTSize: n, WindowSize: n, HopSize: n})
	}
	return scales
}

func TestMultiScaleSpectralShape(t *testing.T) {
	loss, err := NewMultiScaleSpectral(testSpectralScales(), 0.5)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	for _, batch := range []int{1, 2} {
		t.Run(fmt.Sprintf("batch-%d", batch), func(t *testing.T) {
			est := randomSourceBatch(rng, batch, 1, 8000)
			ref := randomSourceBatch(rng, batch, 1, 8000)
			flatE := make(signal.Batch, batch)
			flatR := make(signal.Batch, batch)
			for b := 0; b < batch; b++ {
				flatE[b] = est[b][0]
				flatR[b] = ref[b][0]
			}
			out, err := loss.Loss(flatE, flatR)
			require.NoError(t, err)
			assert.Len(t, out, batch)
			for _, v := range out {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}
		})
	}
}

func TestMultiScaleSpectralPIT(t *testing.T) {
	loss, err := NewMultiScaleSpectral(testSpectralScales(), 0.5)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(4))
	for _, nSrc := range []int{2, 3} {
		t.Run(fmt.Sprintf("nsrc-%d", nSrc), func(t *testing.T) {
			est := randomSourceBatch(rng, 2, nSrc, 8000)
			ref := randomSourceBatch(rng, 2, nSrc, 8000)
			v, err := NewPITSingleSrc(loss.SingleSrc()).Loss(est, ref)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		})
	}
}

func TestMultiScaleSpectralIdenticalSignals(t *testing.T) {
	loss, err := NewMultiScaleSpectral(nil, 0.5)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(6))
	x := randomSourceBatch(rng, 1, 1, 4000)[0]
	out, err := loss.Loss(x, x)
	require.NoError(t, err)
	assert.Zero(t, out[0])
}

func TestMultiScaleSpectralConfigValidation(t *testing.T) {
	t.Run("negative alpha and bad scale reported together", func(t *testing.T) {
		_, err := NewMultiScaleSpectral([]SpectralScale{
			{FFTSize: 0, WindowSize: 0, HopSize: 0},
		}, -1)
		require.Error(t, err)
		assert.ErrorContains(t, err, "alpha")
		assert.ErrorContains(t, err, "scale 0")
	})

	t.Run("window larger than FFT", func(t *testing.T) {
		_, err := NewMultiScaleSpectral([]SpectralScale{
			{FFTSize: 128, WindowSize: 256, HopSize: 64},
		}, 0.5)
		assert.ErrorContains(t, err, "exceeds FFT size")
	})

	t.Run("shape mismatch", func(t *testing.T) {
		loss, err := NewMultiScaleSpectral(testSpectralScales(), 0.5)
		require.NoError(t, err)
		_, err = loss.Loss(signal.Batch{make([]float64, 100)}, signal.Batch{make([]float64, 200)})
		assert.ErrorIs(t, err, signal.ErrShape)
	})
}
