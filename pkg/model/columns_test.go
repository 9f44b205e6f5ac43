package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnFeatureInfoValidate(t *testing.T) {
	tests := []struct {
		name string
		info ColumnFeatureInfo
		ok   bool
	}{
		{
			name: "valid",
			info: ColumnFeatureInfo{
				WideBaseCols: []string{"a"}, WideBaseDims: []int{10},
				EmbedCols: []string{"b"}, EmbedInDims: []int{5}, EmbedOutDims: []int{4},
				ContinuousCols: []string{"c"},
			},
			ok: true,
		},
		{
			name: "wide base mismatch",
			info: ColumnFeatureInfo{WideBaseCols: []string{"a", "b"}, WideBaseDims: []int{10}},
		},
		{
			name: "wide cross mismatch",
			info: ColumnFeatureInfo{WideCrossCols: []string{"a:b"}, WideCrossDims: nil},
		},
		{
			name: "indicator mismatch",
			info: ColumnFeatureInfo{IndicatorCols: []string{"a"}, IndicatorDims: []int{2, 3}},
		},
		{
			name: "embed output mismatch",
			info: ColumnFeatureInfo{
				EmbedCols: []string{"b", "d"}, EmbedInDims: []int{5, 7}, EmbedOutDims: []int{4},
			},
		},
		{
			name: "embed input mismatch",
			info: ColumnFeatureInfo{
				EmbedCols: []string{"b"}, EmbedInDims: nil, EmbedOutDims: []int{4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrColumnMismatch))
		})
	}
}

func TestColumnFeatureInfoLayout(t *testing.T) {
	info := ColumnFeatureInfo{
		WideBaseCols: []string{"a"}, WideBaseDims: []int{10},
		WideCrossCols: []string{"a:b"}, WideCrossDims: []int{6},
		IndicatorCols: []string{"g"}, IndicatorDims: []int{3},
		EmbedCols: []string{"b", "d"}, EmbedInDims: []int{5, 7}, EmbedOutDims: []int{4, 2},
		ContinuousCols: []string{"c"},
	}

	require.Equal(t, 16, info.WideDim())
	require.Equal(t, 3, info.IndicatorDim())
	require.Equal(t, 12, info.EmbedInputDim())
	require.Equal(t, 1, info.ContinuousDim())
	require.Equal(t, 32, info.InputSize())
	require.Equal(t, 10, info.DeepInputDim()) // 3 indicator + 4 + 2 embed + 1 continuous

	require.Equal(t, 0, info.WideBaseOffset(0))
	require.Equal(t, 10, info.WideCrossOffset(0))
	require.Equal(t, 16, info.IndicatorOffset(0))
	require.Equal(t, 19, info.EmbedOffset(0))
	require.Equal(t, 24, info.EmbedOffset(1))
	require.Equal(t, 31, info.ContinuousOffset())
}

func TestColumnFeatureInfoSpecExample(t *testing.T) {
	info := ColumnFeatureInfo{
		WideBaseCols: []string{"a"}, WideBaseDims: []int{10},
		EmbedCols: []string{"b"}, EmbedInDims: []int{5}, EmbedOutDims: []int{4},
		ContinuousCols: []string{"c"},
	}
	require.NoError(t, info.Validate())
	// no indicator columns, one 4-wide embedding, one continuous value
	require.Equal(t, 5, info.DeepInputDim())
}
