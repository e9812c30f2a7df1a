package masknn

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const normEps = 1e-8

// normBuilders is the closed registry of normalization layers, keyed the
// way model configurations spell them.
var normBuilders = map[string]func(numChannels int) Layer{
	"gLN": newGlobalLayerNorm,
	"cLN": newChannelwiseLayerNorm,
	"bN":  newBatchNorm,
}

// NormNames lists the registered normalization names, sorted.
func NormNames() []string {
	names := make([]string, 0, len(normBuilders))
	for name := range normBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetNorm resolves a normalization constructor by name, failing eagerly
// on unknown keys.
func GetNorm(name string) (func(numChannels int) Layer, error) {
	build, ok := normBuilders[name]
	if !ok {
		return nil, fmt.Errorf("unknown norm %q: valid choices are %s", name, strings.Join(NormNames(), ", "))
	}
	return build, nil
}

// affine holds the per-channel scale and shift every norm ends with,
// initialized to the identity.
type affine struct {
	gamma []float64
	beta  []float64
}

func newAffine(numChannels int) affine {
	a := affine{
		gamma: make([]float64, numChannels),
		beta:  make([]float64, numChannels),
	}
	for i := range a.gamma {
		a.gamma[i] = 1
	}
	return a
}

// globalLayerNorm normalizes over channels and frames jointly.
type globalLayerNorm struct {
	affine
}

func newGlobalLayerNorm(numChannels int) Layer {
	return &globalLayerNorm{newAffine(numChannels)}
}

func (g *globalLayerNorm) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	var mean float64
	for f := 0; f < rows; f++ {
		for t := 0; t < cols; t++ {
			mean += x.At(f, t)
		}
	}
	mean /= float64(rows * cols)
	var variance float64
	for f := 0; f < rows; f++ {
		for t := 0; t < cols; t++ {
			d := x.At(f, t) - mean
			variance += d * d
		}
	}
	variance /= float64(rows * cols)
	inv := 1 / math.Sqrt(variance+normEps)

	out := mat.NewDense(rows, cols, nil)
	for f := 0; f < rows; f++ {
		for t := 0; t < cols; t++ {
			out.Set(f, t, g.gamma[f]*(x.At(f, t)-mean)*inv+g.beta[f])
		}
	}
	return out
}

// channelwiseLayerNorm normalizes each frame over its channels.
type channelwiseLayerNorm struct {
	affine
}

func newChannelwiseLayerNorm(numChannels int) Layer {
	return &channelwiseLayerNorm{newAffine(numChannels)}
}

func (c *channelwiseLayerNorm) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for t := 0; t < cols; t++ {
		var mean float64
		for f := 0; f < rows; f++ {
			mean += x.At(f, t)
		}
		mean /= float64(rows)
		var variance float64
		for f := 0; f < rows; f++ {
			d := x.At(f, t) - mean
			variance += d * d
		}
		variance /= float64(rows)
		inv := 1 / math.Sqrt(variance+normEps)
		for f := 0; f < rows; f++ {
			out.Set(f, t, c.gamma[f]*(x.At(f, t)-mean)*inv+c.beta[f])
		}
	}
	return out
}

// batchNorm is the inference form of batch normalization: running mean
// and variance frozen at their initial values, leaving the per-channel
// affine transform.
type batchNorm struct {
	affine
	runningMean []float64
	runningVar  []float64
}

func newBatchNorm(numChannels int) Layer {
	b := &batchNorm{
		affine:      newAffine(numChannels),
		runningMean: make([]float64, numChannels),
		runningVar:  make([]float64, numChannels),
	}
	for i := range b.runningVar {
		b.runningVar[i] = 1
	}
	return b
}

func (b *batchNorm) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for f := 0; f < rows; f++ {
		inv := 1 / math.Sqrt(b.runningVar[f]+normEps)
		for t := 0; t < cols; t++ {
			out.Set(f, t, b.gamma[f]*(x.At(f, t)-b.runningMean[f])*inv+b.beta[f])
		}
	}
	return out
}
