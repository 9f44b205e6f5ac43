package model

import (
	"errors"
	"fmt"
)

// ErrColumnMismatch is returned when a column-name list and its paired
// dimension list disagree in length.
var ErrColumnMismatch = errors.New("column/dimension count mismatch")

const DefaultLabelColumn = "label"

// ColumnFeatureInfo groups the feature columns of a dataset by the role they
// play in the network. The input vector of the network is laid out in this
// fixed order:
//
//	[ wide multi-hot | indicator multi-hot | one one-hot block per embed column | continuous ]
//
// Dimensions are cardinalities: the number of distinct values of a wide,
// cross or indicator column, or the input/output sizes of an embedding table.
type ColumnFeatureInfo struct {
	WideBaseCols   []string
	WideBaseDims   []int
	WideCrossCols  []string
	WideCrossDims  []int
	IndicatorCols  []string
	IndicatorDims  []int
	EmbedCols      []string
	EmbedInDims    []int
	EmbedOutDims   []int
	ContinuousCols []string
	LabelCol       string
}

func (c *ColumnFeatureInfo) Validate() error {
	if len(c.WideBaseCols) != len(c.WideBaseDims) {
		return fmt.Errorf("%w: %d wide base columns but %d dimensions",
			ErrColumnMismatch, len(c.WideBaseCols), len(c.WideBaseDims))
	}
	if len(c.WideCrossCols) != len(c.WideCrossDims) {
		return fmt.Errorf("%w: %d wide cross columns but %d dimensions",
			ErrColumnMismatch, len(c.WideCrossCols), len(c.WideCrossDims))
	}
	if len(c.IndicatorCols) != len(c.IndicatorDims) {
		return fmt.Errorf("%w: %d indicator columns but %d dimensions",
			ErrColumnMismatch, len(c.IndicatorCols), len(c.IndicatorDims))
	}
	if len(c.EmbedCols) != len(c.EmbedInDims) || len(c.EmbedCols) != len(c.EmbedOutDims) {
		return fmt.Errorf("%w: %d embed columns but %d input and %d output dimensions",
			ErrColumnMismatch, len(c.EmbedCols), len(c.EmbedInDims), len(c.EmbedOutDims))
	}
	return nil
}

// WideDim is the combined cardinality of the wide base and cross columns.
func (c *ColumnFeatureInfo) WideDim() int {
	return sum(c.WideBaseDims) + sum(c.WideCrossDims)
}

func (c *ColumnFeatureInfo) IndicatorDim() int {
	return sum(c.IndicatorDims)
}

func (c *ColumnFeatureInfo) EmbedInputDim() int {
	return sum(c.EmbedInDims)
}

func (c *ColumnFeatureInfo) ContinuousDim() int {
	return len(c.ContinuousCols)
}

// InputSize is the width of the single input vector consumed by the network.
func (c *ColumnFeatureInfo) InputSize() int {
	return c.WideDim() + c.IndicatorDim() + c.EmbedInputDim() + c.ContinuousDim()
}

// DeepInputDim is the width of the concatenated deep-branch input:
// indicator slice, embedding outputs and continuous slice.
func (c *ColumnFeatureInfo) DeepInputDim() int {
	return c.IndicatorDim() + sum(c.EmbedOutDims) + c.ContinuousDim()
}

// WideBaseOffset returns the start of the i-th wide base column's section
// within the wide multi-hot slice.
func (c *ColumnFeatureInfo) WideBaseOffset(i int) int {
	return sum(c.WideBaseDims[:i])
}

func (c *ColumnFeatureInfo) WideCrossOffset(i int) int {
	return sum(c.WideBaseDims) + sum(c.WideCrossDims[:i])
}

func (c *ColumnFeatureInfo) IndicatorOffset(i int) int {
	return c.WideDim() + sum(c.IndicatorDims[:i])
}

// EmbedOffset returns the start of the i-th embed column's one-hot block in
// the input vector.
func (c *ColumnFeatureInfo) EmbedOffset(i int) int {
	return c.WideDim() + c.IndicatorDim() + sum(c.EmbedInDims[:i])
}

func (c *ColumnFeatureInfo) ContinuousOffset() int {
	return c.WideDim() + c.IndicatorDim() + c.EmbedInputDim()
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
