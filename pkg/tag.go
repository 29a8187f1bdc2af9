package pkg

import (
	"fmt"
	gio "io"
	"os"

	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/sourcegraph/conc/pool"

	"seqtag/pkg/io"
	"seqtag/pkg/model"
)

// Tag reads whitespace-tokenized sentences from a file (or stdin) and writes
// one space-joined label line per input line, in input order. Sentences are
// decoded concurrently, one graph per sentence.
func Tag(modelFileName, inputFileName, outputFileName string, parallelism int) error {
	modelFile, err := os.Open(modelFileName)
	if err != nil {
		return fmt.Errorf("error opening model file %s: %w", modelFileName, err)
	}
	defer modelFile.Close()

	m, err := io.LoadModel(modelFile)
	if err != nil {
		return fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}

	var inputReader gio.Reader = os.Stdin
	if inputFileName != "" {
		inputFile, err := os.Open(inputFileName)
		if err != nil {
			return fmt.Errorf("error opening input file %s: %w", inputFileName, err)
		}
		defer inputFile.Close()
		inputReader = inputFile
	}

	var outputWriter gio.Writer = os.Stdout
	if outputFileName != "" {
		outputFile, err := os.Create(outputFileName)
		if err != nil {
			return fmt.Errorf("error opening output file %s: %w", outputFileName, err)
		}
		defer outputFile.Close()
		outputWriter = outputFile
	}

	records, err := io.LoadTokens(inputReader)
	if err != nil {
		return err
	}

	if parallelism < 1 {
		parallelism = 1
	}
	predictions := make([]*model.Prediction, len(records))
	workers := pool.New().WithMaxGoroutines(parallelism)
	for i, record := range records {
		i, record := i, record
		if len(record.Tokens) == 0 {
			predictions[i] = &model.Prediction{}
			continue
		}
		workers.Go(func() {
			g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
			defer g.Clear()
			tagger := nn.Reify(nn.Context{Graph: g, Mode: nn.Inference}, m.Tagger).(*model.Tagger)
			predictions[i] = tagger.Forward(record.Tokens).Prediction
		})
	}
	workers.Wait()

	for _, prediction := range predictions {
		m.Tagger.PrintPrediction(prediction, outputWriter)
	}
	return nil
}
