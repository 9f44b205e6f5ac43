package io

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataSetBatching(t *testing.T) {
	records := make([]*DataRecord, 5)
	for i := range records {
		records[i] = &DataRecord{Target: float64(i)}
	}

	ds := NewDataSet(records, 2)
	require.Equal(t, 5, ds.Size())
	require.Equal(t, 3, ds.NumBatches())

	require.Equal(t, 2, len(ds.Next()))
	require.Equal(t, 2, len(ds.Next()))
	require.Equal(t, 1, len(ds.Next()))
	require.Empty(t, ds.Next())
}

func TestDataSetRandomOrderCoversAllRecords(t *testing.T) {
	records := make([]*DataRecord, 7)
	for i := range records {
		records[i] = &DataRecord{Target: float64(i)}
	}

	ds := NewDataSet(records, 3)
	ds.Rand = rand.New(rand.NewSource(42))
	ds.ResetOrder(RandomOrder)

	seen := map[float64]bool{}
	for {
		batch := ds.Next()
		if len(batch) == 0 {
			break
		}
		for _, r := range batch {
			seen[r.Target] = true
		}
	}
	require.Equal(t, len(records), len(seen))
}
