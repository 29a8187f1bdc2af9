package pkg

import (
	"fmt"
	gio "io"
	"os"
	"sort"

	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/stats"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"seqtag/pkg/io"
	"seqtag/pkg/model"
)

type NoopWriter struct{}

func (x NoopWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// Evaluate runs the model on a labeled dataset, optionally writes the
// predicted label lines, and logs token-level metrics.
func Evaluate(modelFileName, featuresFileName, labelsFileName, outputFileName string) error {
	modelFile, err := os.Open(modelFileName)
	if err != nil {
		return fmt.Errorf("error opening model file %s: %w", modelFileName, err)
	}
	defer modelFile.Close()

	m, err := io.LoadModel(modelFile)
	if err != nil {
		return fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}

	records, dataErrors, err := io.LoadSequences(featuresFileName, labelsFileName, m.Tagger.Labels)
	if err != nil {
		return fmt.Errorf("error loading data from %s: %w", featuresFileName, err)
	}
	printDataErrors(dataErrors)
	if len(records) == 0 {
		return fmt.Errorf("no data to evaluate")
	}
	return evaluateInternal(m, io.NewDataSet(records, 1), outputFileName)
}

// tokenEvaluator accumulates token-level classification metrics keyed by
// label string, in decoded rather than padded space.
type tokenEvaluator struct {
	metrics            map[string]*stats.ClassMetrics
	sentenceAccuracies []float64
	correct            int
	total              int
}

func newTokenEvaluator() *tokenEvaluator {
	return &tokenEvaluator{metrics: map[string]*stats.ClassMetrics{}}
}

func (e *tokenEvaluator) evaluate(record *io.DataRecord, prediction *model.Prediction, labels *model.Vocabulary) {
	length := prediction.Length
	if len(record.Labels) < length {
		length = len(record.Labels)
	}
	sentenceCorrect := 0
	for i := 0; i < length; i++ {
		goldLabel := labels.Item(record.Labels[i])
		predictedLabel := prediction.Labels[i]

		goldMetrics, ok := e.metrics[goldLabel]
		if !ok {
			goldMetrics = stats.NewMetricCounter()
			e.metrics[goldLabel] = goldMetrics
		}
		predictedMetrics, ok := e.metrics[predictedLabel]
		if !ok {
			predictedMetrics = stats.NewMetricCounter()
			e.metrics[predictedLabel] = predictedMetrics
		}

		if goldLabel == predictedLabel {
			goldMetrics.IncTruePos()
			sentenceCorrect++
		} else {
			goldMetrics.IncFalseNeg()
			predictedMetrics.IncFalsePos()
		}
	}
	e.correct += sentenceCorrect
	e.total += length
	if length > 0 {
		e.sentenceAccuracies = append(e.sentenceAccuracies, float64(sentenceCorrect)/float64(length))
	}
}

func (e *tokenEvaluator) logMetrics() {
	for _, label := range sortLabels(e.metrics) {
		result := e.metrics[label]
		log.Info().Str("Label", label).
			Int("TP", result.TruePos).
			Int("FP", result.FalsePos).
			Int("FN", result.FalseNeg).
			Float64("Precision", float64(result.Precision())).
			Float64("Recall", float64(result.Recall())).
			Float64("F1", float64(result.F1Score())).
			Msg("")
	}

	macroF1, microF1 := computeOverallF1(e.metrics)
	accuracy := 0.0
	if e.total > 0 {
		accuracy = float64(e.correct) / float64(e.total)
	}
	log.Info().
		Float64("TokenAccuracy", accuracy).
		Float64("MacroF1", macroF1).
		Float64("MicroF1", microF1).
		Float64("SentenceAccuracyMean", stat.Mean(e.sentenceAccuracies, nil)).
		Float64("SentenceAccuracyStdDev", stat.StdDev(e.sentenceAccuracies, nil)).
		Msg("")
}

func evaluateInternal(m *model.Model, data *io.DataSet, outputFileName string) error {
	var outputWriter gio.Writer
	if outputFileName != "" {
		outputFile, err := os.Create(outputFileName)
		if err != nil {
			return fmt.Errorf("error opening output file %s: %w", outputFileName, err)
		}
		defer outputFile.Close()
		outputWriter = outputFile
	} else {
		outputWriter = NoopWriter{}
	}

	evaluator := newTokenEvaluator()

	data.ResetOrder(io.OriginalOrder)
	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		for _, record := range batch {
			g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
			tagger := nn.Reify(nn.Context{Graph: g, Mode: nn.Inference}, m.Tagger).(*model.Tagger)
			output := tagger.Forward(record.Tokens)
			tagger.PrintPrediction(output.Prediction, outputWriter)
			evaluator.evaluate(record, output.Prediction, m.Tagger.Labels)
			g.Clear()
		}
	}
	evaluator.logMetrics()
	return nil
}

// computeOverallF1 returns the macro-averaged F1 (mean of per-class scores)
// followed by the micro-averaged F1 (computed from the pooled counts).
func computeOverallF1(metrics map[string]*stats.ClassMetrics) (float64, float64) {
	macroF1 := 0.0
	for _, metric := range metrics {
		macroF1 += float64(metric.F1Score())
	}
	macroF1 /= float64(len(metrics))

	micro := stats.NewMetricCounter()
	for _, result := range metrics {
		micro.TruePos += result.TruePos
		micro.FalsePos += result.FalsePos
		micro.FalseNeg += result.FalseNeg
		micro.TrueNeg += result.TrueNeg
	}
	return macroF1, float64(micro.F1Score())
}

func sortLabels(metrics map[string]*stats.ClassMetrics) []string {
	result := make([]string, 0, len(metrics))
	for label := range metrics {
		result = append(result, label)
	}
	sort.Strings(result)
	return result
}
