// Package model defines the convolutional classifier trained by the
// learning-rate search.
package model

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// CIFARNet is a LeNet-5 style CNN for 3x32x32 color images.
//
// Architecture:
//
//	Input: [batch, 3, 32, 32]
//	Conv1: 3 -> 16 channels, 5x5 kernel -> [batch, 16, 28, 28]
//	ReLU
//	MaxPool: 2x2 -> [batch, 16, 14, 14]
//	Conv2: 16 -> 32 channels, 5x5 kernel -> [batch, 32, 10, 10]
//	ReLU
//	MaxPool: 2x2 -> [batch, 32, 5, 5]
//	Flatten -> [batch, 800]
//	FC1: 800 -> 128
//	ReLU
//	FC2: 128 -> classes
type CIFARNet[B tensor.Backend] struct {
	conv1 *nn.Conv2D[B]
	relu1 *nn.ReLU[B]
	pool1 *nn.MaxPool2D[B]
	conv2 *nn.Conv2D[B]
	relu2 *nn.ReLU[B]
	pool2 *nn.MaxPool2D[B]
	fc1   *nn.Linear[B]
	relu3 *nn.ReLU[B]
	fc2   *nn.Linear[B]

	classes int
}

const flatFeatures = 32 * 5 * 5

// NewCIFARNet creates the network with Xavier-initialized weights.
//
// Parameters:
//   - classes: Number of output logits (10 for CIFAR-10)
//   - backend: Backend the parameters live on; pass an autodiff backend to train
//
// Returns a network whose Parameters are ready for an optimizer.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net := model.NewCIFARNet(10, backend)
//	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
func NewCIFARNet[B tensor.Backend](classes int, backend B) *CIFARNet[B] {
	return &CIFARNet[B]{
		conv1: nn.NewConv2D(3, 16, 5, 5, 1, 0, true, backend),
		relu1: nn.NewReLU[B](),
		pool1: nn.NewMaxPool2D(2, 2, backend),
		conv2: nn.NewConv2D(16, 32, 5, 5, 1, 0, true, backend),
		relu2: nn.NewReLU[B](),
		pool2: nn.NewMaxPool2D(2, 2, backend),
		fc1:   nn.NewLinear[B](flatFeatures, 128, backend),
		relu3: nn.NewReLU[B](),
		fc2:   nn.NewLinear[B](128, classes, backend),

		classes: classes,
	}
}

// Forward performs the forward pass.
//
// Parameters:
//   - input: Batch of images with shape [batch_size, 3, 32, 32]
//
// Returns:
//   - logits: Unnormalized class scores with shape [batch_size, classes]
//
// Note: Returns raw logits (no softmax). Cross-entropy applies softmax.
// Panics on any other input geometry.
func (m *CIFARNet[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != 3 || shape[2] != 32 || shape[3] != 32 {
		panic(fmt.Sprintf("cifarnet: expected [batch, 3, 32, 32] input, got %v", shape))
	}

	x := m.conv1.Forward(input)
	x = m.relu1.Forward(x)
	x = m.pool1.Forward(x)

	x = m.conv2.Forward(x)
	x = m.relu2.Forward(x)
	x = m.pool2.Forward(x)

	x = x.Reshape(x.Shape()[0], flatFeatures)

	x = m.fc1.Forward(x)
	x = m.relu3.Forward(x)
	return m.fc2.Forward(x)
}

// Parameters returns all trainable parameters in layer order.
func (m *CIFARNet[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 8)
	params = append(params, m.conv1.Parameters()...)
	params = append(params, m.conv2.Parameters()...)
	params = append(params, m.fc1.Parameters()...)
	params = append(params, m.fc2.Parameters()...)
	return params
}

// NamedParameters returns the parameters keyed by a stable "layer.param" name.
func (m *CIFARNet[B]) NamedParameters() []Named[B] {
	var out []Named[B]
	add := func(layer string, params []*nn.Parameter[B]) {
		for i, p := range params {
			name := p.Name()
			if name == "" {
				name = fmt.Sprintf("p%d", i)
			}
			out = append(out, Named[B]{Name: layer + "." + name, Param: p})
		}
	}
	add("conv1", m.conv1.Parameters())
	add("conv2", m.conv2.Parameters())
	add("fc1", m.fc1.Parameters())
	add("fc2", m.fc2.Parameters())
	return out
}

// Classes returns the number of output classes.
func (m *CIFARNet[B]) Classes() int {
	return m.classes
}

// String returns a string representation of the model architecture.
func (m *CIFARNet[B]) String() string {
	return fmt.Sprintf(`CIFARNet(
  %s
  ReLU()
  %s
  %s
  ReLU()
  %s
  Linear(in=%d, out=128)
  ReLU()
  Linear(in=128, out=%d)
)`,
		m.conv1.String(),
		m.pool1.String(),
		m.conv2.String(),
		m.pool2.String(),
		flatFeatures,
		m.classes,
	)
}

// CountParameters returns the number of trainable scalars.
func CountParameters[B tensor.Backend](params []*nn.Parameter[B]) int {
	total := 0
	for _, p := range params {
		count := 1
		for _, dim := range p.Tensor().Shape() {
			count *= dim
		}
		total += count
	}
	return total
}
