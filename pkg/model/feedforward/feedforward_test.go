package feedforward

import (
	"testing"

	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/stretchr/testify/require"
)

func TestNewLayerSizes(t *testing.T) {
	m := New(5, []int{4, 3}, 2)
	require.Equal(t, 3, len(m.Layers))

	require.Equal(t, 4, m.Layers[0].W.Value().Rows())
	require.Equal(t, 5, m.Layers[0].W.Value().Columns())
	require.Equal(t, 3, m.Layers[1].W.Value().Rows())
	require.Equal(t, 2, m.Layers[2].W.Value().Rows())
}

func TestInitRandomizesWeights(t *testing.T) {
	m := New(5, []int{4}, 2)
	m.Init(rand.NewLockedRand(42))

	nonZero := 0
	for _, layer := range m.Layers {
		for _, v := range layer.W.Value().Data() {
			if v != 0.0 {
				nonZero++
			}
		}
	}
	require.True(t, nonZero > 0)
}

func TestForwardOutputShape(t *testing.T) {
	m := New(5, []int{4, 3}, 2)
	m.Init(rand.NewLockedRand(42))

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	x := g.NewVariable(mat.NewInitVecDense(5, 1.0), false)

	ys := m.NewProc(g).Forward(x)
	require.Equal(t, 1, len(ys))
	require.Equal(t, 2, ys[0].Value().Rows())
	require.Equal(t, 1, ys[0].Value().Columns())
}
