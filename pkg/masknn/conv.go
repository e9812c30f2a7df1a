package masknn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Conv1x1 is a pointwise convolution over feature maps: a dense
// (outChannels, inChannels) matrix applied to every frame, plus a bias.
type Conv1x1 struct {
	weight *mat.Dense
	bias   []float64
}

// NewConv1x1 builds a pointwise convolution with seeded uniform
// initialization scaled by the fan-in.
func NewConv1x1(inChannels, outChannels int, rng *rand.Rand) *Conv1x1 {
	bound := 1 / math.Sqrt(float64(inChannels))
	weight := mat.NewDense(outChannels, inChannels, nil)
	for o := 0; o < outChannels; o++ {
		for i := 0; i < inChannels; i++ {
			weight.Set(o, i, (rng.Float64()*2-1)*bound)
		}
	}
	bias := make([]float64, outChannels)
	for o := range bias {
		bias[o] = (rng.Float64()*2 - 1) * bound
	}
	return &Conv1x1{weight: weight, bias: bias}
}

func (c *Conv1x1) Forward(x *mat.Dense) *mat.Dense {
	outChannels, _ := c.weight.Dims()
	_, frames := x.Dims()
	out := mat.NewDense(outChannels, frames, nil)
	out.Mul(c.weight, x)
	for o := 0; o < outChannels; o++ {
		for t := 0; t < frames; t++ {
			out.Set(o, t, out.At(o, t)+c.bias[o])
		}
	}
	return out
}

// Dropout is the inference form of dropout: an identity that remembers
// its rate for serialization.
type Dropout struct {
	Rate float64
}

func (Dropout) Forward(x *mat.Dense) *mat.Dense { return x }
