package pkg

import (
	"math"
	"testing"

	"github.com/nlpodyssey/spago/pkg/ml/stats"
	"github.com/stretchr/testify/require"
)

func classCounts(truePos, falsePos, falseNeg int) *stats.ClassMetrics {
	m := stats.NewMetricCounter()
	m.TruePos = truePos
	m.FalsePos = falsePos
	m.FalseNeg = falseNeg
	return m
}

func TestComputeOverallF1(t *testing.T) {
	// Per-class F1 scores are 0.9 and 0.25, so the macro average is 0.575
	// while the pooled counts (TP=10, FP=4, FN=4) give a micro F1 of 10/14.
	metrics := map[string]*stats.ClassMetrics{
		"O":     classCounts(9, 1, 1),
		"B-PER": classCounts(1, 3, 3),
	}
	macroF1, microF1 := computeOverallF1(metrics)
	require.InDelta(t, 0.575, macroF1, 1e-4)
	require.InDelta(t, 10.0/14.0, microF1, 1e-4)
}

func TestComputeOverallF1WithEmptyClass(t *testing.T) {
	// A class with no counts has an undefined F1, which poisons the macro
	// average but leaves the micro average untouched.
	metrics := map[string]*stats.ClassMetrics{
		"O":     classCounts(1, 1, 1),
		"B-PER": classCounts(0, 0, 0),
	}
	macroF1, microF1 := computeOverallF1(metrics)
	require.True(t, math.IsNaN(macroF1))
	require.InDelta(t, 0.5, microF1, 1e-4)
}
