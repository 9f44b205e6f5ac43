// Package feedforward implements a stack of fully-connected layers with
// rectified-linear activations between the hidden layers.
package feedforward

import (
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
)

var (
	_ nn.Model     = &Model{}
	_ nn.Processor = &Processor{}
)

type Model struct {
	Layers []*linear.Model
}

// New builds a feed-forward network mapping inputSize to outputSize through
// the given hidden layer sizes. The final projection carries no activation.
func New(inputSize int, hiddenSizes []int, outputSize int) *Model {
	sizes := make([]int, 0, len(hiddenSizes)+2)
	sizes = append(sizes, inputSize)
	sizes = append(sizes, hiddenSizes...)
	sizes = append(sizes, outputSize)

	layers := make([]*linear.Model, len(sizes)-1)
	for i := range layers {
		layers[i] = linear.New(sizes[i], sizes[i+1])
	}
	return &Model{Layers: layers}
}

func (m *Model) Init(generator *rand.LockedRand) {
	gain := initializers.Gain(ag.OpReLU)
	for _, layer := range m.Layers {
		initializers.XavierUniform(layer.W.Value(), gain, generator)
	}
}

type Processor struct {
	nn.BaseProcessor
	layerProcessors []nn.Processor
}

func (m *Model) NewProc(g *ag.Graph) nn.Processor {
	layerProcessors := make([]nn.Processor, len(m.Layers))
	for i := range layerProcessors {
		layerProcessors[i] = m.Layers[i].NewProc(g)
	}
	return &Processor{
		BaseProcessor: nn.BaseProcessor{
			Model:             m,
			Mode:              nn.Training,
			Graph:             g,
			FullSeqProcessing: false,
		},
		layerProcessors: layerProcessors,
	}
}

func (p *Processor) SetMode(mode nn.ProcessingMode) {
	p.Mode = mode
	nn.SetProcessingMode(mode, p.layerProcessors...)
}

func (p *Processor) Forward(xs ...ag.Node) []ag.Node {
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		ys[i] = p.forward(x)
	}
	return ys
}

func (p *Processor) forward(x ag.Node) ag.Node {
	g := p.Graph
	last := len(p.layerProcessors) - 1
	for i, layer := range p.layerProcessors {
		x = layer.Forward(x)[0]
		if i < last {
			x = g.ReLU(x)
		}
	}
	return x
}
