// Package masknn provides the building blocks of mask-estimation
// networks: normalization layers and activation functions behind closed
// string-keyed registries, and the pointwise convolution used between
// them. Feature maps are (channels, frames) matrices, one per batch
// element.
package masknn

import (
	"gonum.org/v1/gonum/mat"
)

// Layer transforms one feature map into another without mutating its
// input.
type Layer interface {
	Forward(x *mat.Dense) *mat.Dense
}

// Sequential chains layers in order.
type Sequential []Layer

func (s Sequential) Forward(x *mat.Dense) *mat.Dense {
	for _, layer := range s {
		x = layer.Forward(x)
	}
	return x
}
