package masknn

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// activationBuilders is the closed registry of activation functions.
var activationBuilders = map[string]func() Layer{
	"relu":    func() Layer { return elementwise(relu) },
	"sigmoid": func() Layer { return elementwise(sigmoid) },
	"tanh":    func() Layer { return elementwise(math.Tanh) },
	"linear":  func() Layer { return elementwise(func(v float64) float64 { return v }) },
	"softmax": func() Layer { return softmaxLayer{} },
}

// ActivationNames lists the registered activation names, sorted.
func ActivationNames() []string {
	names := make([]string, 0, len(activationBuilders))
	for name := range activationBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetActivation resolves an activation by name, failing eagerly on
// unknown keys.
func GetActivation(name string) (func() Layer, error) {
	build, ok := activationBuilders[name]
	if !ok {
		return nil, fmt.Errorf("unknown activation %q: valid choices are %s",
			name, strings.Join(ActivationNames(), ", "))
	}
	return build, nil
}

// elementwise lifts a scalar function into a Layer.
type elementwise func(float64) float64

func (fn elementwise) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for f := 0; f < rows; f++ {
		for t := 0; t < cols; t++ {
			out.Set(f, t, fn(x.At(f, t)))
		}
	}
	return out
}

func relu(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// softmaxLayer normalizes each frame over its channels.
type softmaxLayer struct{}

func (softmaxLayer) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for t := 0; t < cols; t++ {
		maxV := math.Inf(-1)
		for f := 0; f < rows; f++ {
			if v := x.At(f, t); v > maxV {
				maxV = v
			}
		}
		var sum float64
		for f := 0; f < rows; f++ {
			e := math.Exp(x.At(f, t) - maxV)
			out.Set(f, t, e)
			sum += e
		}
		for f := 0; f < rows; f++ {
			out.Set(f, t, out.At(f, t)/sum)
		}
	}
	return out
}
