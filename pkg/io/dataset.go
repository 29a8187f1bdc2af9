package io

import (
	"math/rand"
)

// DataBatch is a view over at most BatchSize records of a DataSet.
type DataBatch []*DataRecord

type DataSet struct {
	Data         []*DataRecord
	BatchSize    int
	Rand         *rand.Rand
	dataIndices  []int
	currentOrder []int
	currentIndex int
}

type DataSetOrder int

const (
	OriginalOrder DataSetOrder = iota
	RandomOrder
)

func NewDataSet(data []*DataRecord, batchSize int) *DataSet {
	dataIndices := make([]int, len(data))
	for i := range dataIndices {
		dataIndices[i] = i
	}
	ds := &DataSet{Data: data, BatchSize: batchSize, dataIndices: dataIndices}
	ds.ResetOrder(OriginalOrder)
	return ds
}

func newDataSetSplit(data []*DataRecord, batchSize int, indices []int) *DataSet {
	ds := &DataSet{Data: data, BatchSize: batchSize, dataIndices: indices}
	ds.ResetOrder(OriginalOrder)
	return ds
}

// ResetOrder rewinds the dataset and establishes the iteration order of the
// next pass. RandomOrder requires Rand to be set.
func (d *DataSet) ResetOrder(order DataSetOrder) {
	if d.currentOrder == nil {
		d.currentOrder = make([]int, len(d.dataIndices))
	}
	switch order {
	case OriginalOrder:
		copy(d.currentOrder, d.dataIndices)
	case RandomOrder:
		ind := d.Rand.Perm(len(d.currentOrder))
		for i := range ind {
			d.currentOrder[i] = d.dataIndices[ind[i]]
		}
	}
	d.currentIndex = 0
}

// Next returns the next batch of the current pass, empty when exhausted.
func (d *DataSet) Next() DataBatch {
	batch := make(DataBatch, 0, d.BatchSize)
	for ; d.currentIndex < len(d.currentOrder) && len(batch) < d.BatchSize; d.currentIndex++ {
		batch = append(batch, d.Data[d.currentOrder[d.currentIndex]])
	}
	return batch
}

func (d *DataSet) Size() int {
	return len(d.dataIndices)
}

// RandomSplit partitions the dataset into disjoint subsets of the given
// sizes, sharing the underlying records.
func (d *DataSet) RandomSplit(sizes ...int) []*DataSet {
	indices := make([]int, len(d.dataIndices))
	copy(indices, d.dataIndices)
	d.Rand.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	splits := make([]*DataSet, len(sizes))
	idx := 0
	for i := range sizes {
		splitIndices := make([]int, sizes[i])
		for j := range splitIndices {
			splitIndices[j] = indices[idx]
			idx++
		}
		splits[i] = newDataSetSplit(d.Data, d.BatchSize, splitIndices)
		splits[i].Rand = d.Rand
	}
	return splits
}
