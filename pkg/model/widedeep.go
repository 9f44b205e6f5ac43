package model

import (
	"errors"
	"fmt"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"

	"widedeep/pkg/model/feedforward"
)

var (
	_ nn.Model     = &WideAndDeep{}
	_ nn.Processor = &Processor{}
)

// ErrInvalidModelType is returned when the model type tag is none of
// ModelTypeWide, ModelTypeDeep or ModelTypeWideAndDeep.
var ErrInvalidModelType = errors.New("unsupported model type")

type ModelType string

const (
	ModelTypeWide        ModelType = "wide"
	ModelTypeDeep        ModelType = "deep"
	ModelTypeWideAndDeep ModelType = "wide_n_deep"
)

func (t ModelType) hasWide() bool {
	return t == ModelTypeWide || t == ModelTypeWideAndDeep
}

func (t ModelType) hasDeep() bool {
	return t == ModelTypeDeep || t == ModelTypeWideAndDeep
}

var DefaultHiddenLayerSizes = []int{40, 20, 10}

type Config struct {
	ModelType  ModelType
	NumClasses int
	Columns    *ColumnFeatureInfo

	// HiddenLayerSizes are the widths of the deep branch's hidden layers.
	// Defaults to DefaultHiddenLayerSizes.
	HiddenLayerSizes []int
}

// WideAndDeep is an implementation of:
// "Wide & Deep Learning for Recommender Systems" - https://arxiv.org/abs/1606.07792
//
// The wide branch is a linear layer over the multi-hot slice of sparse base
// and cross features; zero-initialized, it behaves as a summed per-class
// sparse lookup with a learned per-class bias. The deep branch concatenates
// the indicator slice, one embedding lookup per embed column and the
// continuous slice, and feeds the result through a feed-forward stack.
// Branch class scores are summed and passed through log-softmax.
type WideAndDeep struct {
	Config
	Wide       *linear.Model
	Embeddings []*linear.Model
	Deep       *feedforward.Model
}

// New validates the configuration and assembles the network. Only the
// branches required by the model type are allocated.
func New(config Config) (*WideAndDeep, error) {
	if config.Columns == nil {
		return nil, fmt.Errorf("missing column feature info")
	}
	if err := config.Columns.Validate(); err != nil {
		return nil, err
	}
	if !config.ModelType.hasWide() && !config.ModelType.hasDeep() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModelType, config.ModelType)
	}
	if config.HiddenLayerSizes == nil {
		config.HiddenLayerSizes = DefaultHiddenLayerSizes
	}

	m := &WideAndDeep{Config: config}
	cols := config.Columns

	if config.ModelType.hasWide() {
		if cols.WideDim() == 0 {
			return nil, fmt.Errorf("model type %q requires at least one wide base or cross column", config.ModelType)
		}
		m.Wide = linear.New(cols.WideDim(), config.NumClasses)
	}

	if config.ModelType.hasDeep() {
		if cols.DeepInputDim() == 0 {
			return nil, fmt.Errorf("model type %q requires at least one indicator, embed or continuous column", config.ModelType)
		}
		m.Embeddings = make([]*linear.Model, len(cols.EmbedCols))
		for i := range m.Embeddings {
			m.Embeddings[i] = linear.New(cols.EmbedInDims[i], cols.EmbedOutDims[i], linear.BiasGrad(false))
		}
		m.Deep = feedforward.New(cols.DeepInputDim(), config.HiddenLayerSizes, config.NumClasses)
	}

	return m, nil
}

// Init randomizes the trainable weights of the deep branch. Embedding tables
// are drawn from a zero-mean normal distribution with standard deviation 0.1;
// the wide branch keeps its zero initialization.
func (m *WideAndDeep) Init(generator *rand.LockedRand) {
	for _, embedding := range m.Embeddings {
		initializers.Normal(embedding.W.Value(), 0.0, 0.1, generator)
	}
	if m.Deep != nil {
		m.Deep.Init(generator)
	}
}

// Layers returns every linear layer of the network in a fixed order: wide,
// embeddings, then the deep stack. Weights-only persistence relies on this
// order.
func (m *WideAndDeep) Layers() []*linear.Model {
	var layers []*linear.Model
	if m.Wide != nil {
		layers = append(layers, m.Wide)
	}
	layers = append(layers, m.Embeddings...)
	if m.Deep != nil {
		layers = append(layers, m.Deep.Layers...)
	}
	return layers
}

// SetLayers replaces the network's linear layers with separately persisted
// ones, in the order of Layers.
func (m *WideAndDeep) SetLayers(layers []*linear.Model) error {
	if len(layers) != len(m.Layers()) {
		return fmt.Errorf("weights hold %d layers, network has %d", len(layers), len(m.Layers()))
	}
	next := 0
	if m.Wide != nil {
		m.Wide = layers[next]
		next++
	}
	for i := range m.Embeddings {
		m.Embeddings[i] = layers[next]
		next++
	}
	if m.Deep != nil {
		for i := range m.Deep.Layers {
			m.Deep.Layers[i] = layers[next]
			next++
		}
	}
	return nil
}

type Processor struct {
	nn.BaseProcessor
	model               *WideAndDeep
	wideProcessor       nn.Processor
	embeddingProcessors []nn.Processor
	deepProcessor       nn.Processor

	// Logits holds the pre-softmax class scores of the last Forward call,
	// one node per input vector.
	Logits []ag.Node
}

func (m *WideAndDeep) NewProc(g *ag.Graph) nn.Processor {
	p := &Processor{
		BaseProcessor: nn.BaseProcessor{
			Model:             m,
			Mode:              nn.Training,
			Graph:             g,
			FullSeqProcessing: false,
		},
		model: m,
	}
	if m.Wide != nil {
		p.wideProcessor = m.Wide.NewProc(g)
	}
	if m.Deep != nil {
		p.embeddingProcessors = make([]nn.Processor, len(m.Embeddings))
		for i := range p.embeddingProcessors {
			p.embeddingProcessors[i] = m.Embeddings[i].NewProc(g)
		}
		p.deepProcessor = m.Deep.NewProc(g)
	}
	return p
}

func (p *Processor) SetMode(mode nn.ProcessingMode) {
	p.Mode = mode
	if p.wideProcessor != nil {
		p.wideProcessor.SetMode(mode)
	}
	nn.SetProcessingMode(mode, p.embeddingProcessors...)
	if p.deepProcessor != nil {
		p.deepProcessor.SetMode(mode)
	}
}

// Forward maps each input vector to a NumClasses-long vector of class
// log-probabilities.
func (p *Processor) Forward(xs ...ag.Node) []ag.Node {
	g := p.Graph
	p.Logits = make([]ag.Node, len(xs))
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		logits := p.forward(x)
		p.Logits[i] = logits
		ys[i] = g.Log(g.Softmax(logits))
	}
	return ys
}

func (p *Processor) forward(x ag.Node) ag.Node {
	switch p.model.ModelType {
	case ModelTypeWide:
		return p.forwardWide(x)
	case ModelTypeDeep:
		return p.forwardDeep(x)
	default: // ModelTypeWideAndDeep, anything else is rejected by New
		return p.Graph.Add(p.forwardWide(x), p.forwardDeep(x))
	}
}

func (p *Processor) forwardWide(x ag.Node) ag.Node {
	cols := p.model.Columns
	wideSlice := p.Graph.View(x, 0, 0, cols.WideDim(), 1)
	return p.wideProcessor.Forward(wideSlice)[0]
}

func (p *Processor) forwardDeep(x ag.Node) ag.Node {
	g := p.Graph
	cols := p.model.Columns

	parts := make([]ag.Node, 0, len(cols.EmbedCols)+2)
	if cols.IndicatorDim() > 0 {
		parts = append(parts, g.View(x, cols.WideDim(), 0, cols.IndicatorDim(), 1))
	}
	for i, embedding := range p.embeddingProcessors {
		oneHot := g.View(x, cols.EmbedOffset(i), 0, cols.EmbedInDims[i], 1)
		parts = append(parts, embedding.Forward(oneHot)[0])
	}
	if cols.ContinuousDim() > 0 {
		parts = append(parts, g.View(x, cols.ContinuousOffset(), 0, cols.ContinuousDim(), 1))
	}

	deepInput := parts[0]
	if len(parts) > 1 {
		deepInput = g.Concat(parts...)
	}
	return p.deepProcessor.Forward(deepInput)[0]
}
