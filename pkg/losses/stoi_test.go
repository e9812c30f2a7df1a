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

func TestNegSTOI(t *testing.T) {
	for _, sampleRate := range []int{8000, 16000} {
		for _, useVAD := range []bool{false, true} {
			for _, extended := range []bool{false, true} {
				t.Run(fmt.Sprintf("rate-%d-vad-%v-ext-%v", sampleRate, useVAD, extended), func(t *testing.T) {
					loss, err := NewNegSTOI(sampleRate, useVAD, extended)
					require.NoError(t, err)

					rng := rand.New(rand.NewSource(14))
					est := randomSourceBatch(rng, 2, 1, 8000)
					ref := randomSourceBatch(rng, 2, 1, 8000)
					flatE := signal.Batch{est[0][0], est[1][0]}
					flatR := signal.Batch{ref[0][0], ref[1][0]}

					out, err := loss.Loss(flatE, flatR)
					require.NoError(t, err)
					require.Len(t, out, 2)
					for _, v := range out {
						assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
						// Correlations live in [-1, 1], so the negated
						// average does too.
						assert.GreaterOrEqual(t, v, -1.0)
						assert.LessOrEqual(t, v, 1.0)
					}
				})
			}
		}
	}
}

func TestNegSTOIIdenticalSignals(t *testing.T) {
	loss, err := NewNegSTOI(16000, false, false)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(16))
	x := signal.Batch{randomSourceBatch(rng, 1, 1, 8000)[0][0]}
	out, err := loss.Loss(x, x)
	require.NoError(t, err)
	// A signal is perfectly intelligible against itself.
	assert.InDelta(t, -1, out[0], 1e-6)
}

func TestNegSTOITransposedSpectrograms(t *testing.T) {
	loss, err := NewNegSTOI(16000, false, false)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(18))
	est := randomSpectrograms(rng, 2, loss.Bins(), 40)
	ref := randomSpectrograms(rng, 2, loss.Bins(), 40)

	out, err := loss.LossSpec(est, ref)
	require.NoError(t, err)
	transposed, err := loss.LossSpec(transposeBatch(est), transposeBatch(ref))
	require.NoError(t, err)
	assert.Equal(t, out, transposed)
}

func TestNegSTOIPIT(t *testing.T) {
	for _, nSrc := range []int{2, 3} {
		t.Run(fmt.Sprintf("nsrc-%d", nSrc), func(t *testing.T) {
			loss, err := NewNegSTOI(16000, true, true)
			require.NoError(t, err)

			rng := rand.New(rand.NewSource(20))
			est := randomSourceBatch(rng, 2, nSrc, 8000)
			ref := randomSourceBatch(rng, 2, nSrc, 8000)

			v, err := NewPITSingleSrc(loss.SingleSrc()).Loss(est, ref)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		})
	}
}

func TestNegSTOITooShort(t *testing.T) {
	loss, err := NewNegSTOI(16000, false, false)
	require.NoError(t, err)

	// A signal shorter than one hop yields a single analysis frame,
	// which is not enough for a correlation.
	_, err = loss.Loss(signal.Batch{make([]float64, 100)}, signal.Batch{make([]float64, 100)})
	assert.ErrorContains(t, err, "analysis frames")
}
