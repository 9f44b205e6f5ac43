package model

import (
	"errors"
	"math"
	"testing"

	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/stretchr/testify/require"
)

func testColumns() *ColumnFeatureInfo {
	return &ColumnFeatureInfo{
		WideBaseCols: []string{"a"}, WideBaseDims: []int{10},
		IndicatorCols: []string{"g"}, IndicatorDims: []int{3},
		EmbedCols: []string{"b"}, EmbedInDims: []int{5}, EmbedOutDims: []int{4},
		ContinuousCols: []string{"c"},
		LabelCol:       "label",
	}
}

func TestNewRejectsMismatchedColumns(t *testing.T) {
	columns := testColumns()
	columns.EmbedCols = []string{"b", "d"} // dims still hold a single entry

	m, err := New(Config{ModelType: ModelTypeWideAndDeep, NumClasses: 2, Columns: columns})
	require.Nil(t, m)
	require.True(t, errors.Is(err, ErrColumnMismatch))
}

func TestNewRejectsUnknownModelType(t *testing.T) {
	m, err := New(Config{ModelType: "deep_n_wide", NumClasses: 2, Columns: testColumns()})
	require.Nil(t, m)
	require.True(t, errors.Is(err, ErrInvalidModelType))
}

func TestNewRejectsEmptyBranches(t *testing.T) {
	wideOnly := &ColumnFeatureInfo{
		WideBaseCols: []string{"a"}, WideBaseDims: []int{10},
	}
	_, err := New(Config{ModelType: ModelTypeDeep, NumClasses: 2, Columns: wideOnly})
	require.Error(t, err)

	deepOnly := &ColumnFeatureInfo{ContinuousCols: []string{"c"}}
	_, err = New(Config{ModelType: ModelTypeWide, NumClasses: 2, Columns: deepOnly})
	require.Error(t, err)
}

func TestNewAllocatesOnlyRequestedBranches(t *testing.T) {
	columns := testColumns()

	wide, err := New(Config{ModelType: ModelTypeWide, NumClasses: 2, Columns: columns})
	require.NoError(t, err)
	require.NotNil(t, wide.Wide)
	require.Nil(t, wide.Deep)
	require.Empty(t, wide.Embeddings)
	require.Equal(t, 1, len(wide.Layers()))

	deep, err := New(Config{ModelType: ModelTypeDeep, NumClasses: 2, Columns: columns})
	require.NoError(t, err)
	require.Nil(t, deep.Wide)
	require.NotNil(t, deep.Deep)
	require.Equal(t, 1, len(deep.Embeddings))

	both, err := New(Config{ModelType: ModelTypeWideAndDeep, NumClasses: 2, Columns: columns})
	require.NoError(t, err)
	require.NotNil(t, both.Wide)
	require.NotNil(t, both.Deep)
}

func TestDefaultHiddenLayers(t *testing.T) {
	m, err := New(Config{ModelType: ModelTypeWideAndDeep, NumClasses: 2, Columns: testColumns()})
	require.NoError(t, err)
	// three hidden layers plus the final projection
	require.Equal(t, 4, len(m.Deep.Layers))
	require.Equal(t, DefaultHiddenLayerSizes[0], m.Deep.Layers[0].W.Value().Rows())
	require.Equal(t, m.Columns.DeepInputDim(), m.Deep.Layers[0].W.Value().Columns())
	require.Equal(t, 2, m.Deep.Layers[3].W.Value().Rows())
}

func TestWideLayerStartsAtZero(t *testing.T) {
	m, err := New(Config{ModelType: ModelTypeWideAndDeep, NumClasses: 2, Columns: testColumns()})
	require.NoError(t, err)
	m.Init(rand.NewLockedRand(42))

	for _, v := range m.Wide.W.Value().Data() {
		require.Equal(t, 0.0, v)
	}
	for _, v := range m.Wide.B.Value().Data() {
		require.Equal(t, 0.0, v)
	}
}

func TestEmbeddingInitializationDistribution(t *testing.T) {
	columns := &ColumnFeatureInfo{
		EmbedCols: []string{"b"}, EmbedInDims: []int{100}, EmbedOutDims: []int{50},
	}
	m, err := New(Config{ModelType: ModelTypeDeep, NumClasses: 2, Columns: columns})
	require.NoError(t, err)
	m.Init(rand.NewLockedRand(42))

	samples := m.Embeddings[0].W.Value().Data()
	require.Equal(t, 5000, len(samples))

	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, v := range samples {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(samples)))

	require.InDelta(t, 0.0, mean, 0.01)
	require.InDelta(t, 0.1, std, 0.01)
}

func TestForwardShapes(t *testing.T) {
	for _, modelType := range []ModelType{ModelTypeWide, ModelTypeDeep, ModelTypeWideAndDeep} {
		m, err := New(Config{ModelType: modelType, NumClasses: 3, Columns: testColumns()})
		require.NoError(t, err)
		m.Init(rand.NewLockedRand(42))

		g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
		inputs := make([]ag.Node, 4)
		for i := range inputs {
			inputs[i] = g.NewVariable(testInputVector(m.Columns, i), false)
		}

		outputs := m.NewProc(g).Forward(inputs...)
		require.Equal(t, len(inputs), len(outputs))
		for _, out := range outputs {
			require.Equal(t, 3, out.Value().Rows())
			require.Equal(t, 1, out.Value().Columns())

			// log-softmax output: probabilities sum to one
			total := 0.0
			for _, v := range out.Value().Data() {
				total += math.Exp(v)
			}
			require.InDelta(t, 1.0, total, 1e-6)
		}
	}
}

func TestForwardExposesLogits(t *testing.T) {
	m, err := New(Config{ModelType: ModelTypeWideAndDeep, NumClasses: 2, Columns: testColumns()})
	require.NoError(t, err)
	m.Init(rand.NewLockedRand(42))

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	proc := m.NewProc(g).(*Processor)
	proc.Forward(g.NewVariable(testInputVector(m.Columns, 0), false))

	require.Equal(t, 1, len(proc.Logits))
	require.Equal(t, 2, proc.Logits[0].Value().Rows())
}

func TestSetLayersChecksCount(t *testing.T) {
	m, err := New(Config{ModelType: ModelTypeWideAndDeep, NumClasses: 2, Columns: testColumns()})
	require.NoError(t, err)

	layers := m.Layers()
	require.Equal(t, 6, len(layers)) // wide + embedding + 4 deep layers

	require.NoError(t, m.SetLayers(layers))
	require.Error(t, m.SetLayers(layers[1:]))
}

// testInputVector builds a valid input: one active wide value, one indicator
// value, one embedding id and one continuous value.
func testInputVector(columns *ColumnFeatureInfo, seed int) *mat.Dense {
	v := mat.NewEmptyVecDense(columns.InputSize())
	v.Set(columns.WideBaseOffset(0)+seed%columns.WideBaseDims[0], 0, 1.0)
	v.Set(columns.IndicatorOffset(0)+seed%columns.IndicatorDims[0], 0, 1.0)
	v.Set(columns.EmbedOffset(0)+seed%columns.EmbedInDims[0], 0, 1.0)
	v.Set(columns.ContinuousOffset(), 0, 0.5+float64(seed))
	return v
}
