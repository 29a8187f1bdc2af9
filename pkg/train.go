package pkg

import (
	"fmt"
	mrand "math/rand"
	"os"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd/adam"
	"github.com/rs/zerolog/log"

	"seqtag/pkg/io"
	"seqtag/pkg/model"
	"seqtag/pkg/model/encoder"
	"seqtag/pkg/model/inputter"
)

type TrainingParameters struct {
	BatchSize             int
	NumEpochs             int
	LearningRate          float64
	GradientClipThreshold float64
	ReportInterval        int
	RndSeed               uint64
	ValidationSplit       float64
}

type ModelParameters struct {
	Encoder            string
	EmbeddingDimension int
	HiddenSize         int
	Dropout            float64
	CRFDecoding        bool
	PretrainedVectors  string
}

type Trainer struct {
	params    TrainingParameters
	optimizer *gd.GradientDescent
	model     *model.Tagger
}

// Train builds a tagger from the data configuration, trains it on the given
// features/labels files and saves the result. When no validation files are
// given, a random fraction of the training data is held out instead.
func Train(dataConfigFile, trainFeaturesFile, trainLabelsFile, validFeaturesFile, validLabelsFile,
	outputFileName string, modelParams ModelParameters, trainingParams TrainingParameters) error {

	t := &Trainer{params: trainingParams}
	rndGen := rand.NewLockedRand(trainingParams.RndSeed)

	metaData, err := LoadMetadata(dataConfigFile)
	if err != nil {
		return err
	}

	tagger, err := buildTagger(metaData, modelParams)
	if err != nil {
		return err
	}
	tagger.InitParameters(rndGen)
	t.model = tagger

	records, dataErrors, err := io.LoadSequences(trainFeaturesFile, trainLabelsFile, tagger.Labels)
	if err != nil {
		return fmt.Errorf("error reading training data: %w", err)
	}
	printDataErrors(dataErrors)
	if len(records) == 0 {
		return fmt.Errorf("no data to train")
	}

	trainSet := io.NewDataSet(records, trainingParams.BatchSize)
	trainSet.Rand = mrand.New(mrand.NewSource(int64(trainingParams.RndSeed)))

	var validSet *io.DataSet
	if validFeaturesFile != "" {
		validRecords, validErrors, err := io.LoadSequences(validFeaturesFile, validLabelsFile, tagger.Labels)
		if err != nil {
			return fmt.Errorf("error reading validation data: %w", err)
		}
		printDataErrors(validErrors)
		validSet = io.NewDataSet(validRecords, trainingParams.BatchSize)
	} else if holdOut := int(float64(trainSet.Size()) * trainingParams.ValidationSplit); holdOut > 0 {
		splits := trainSet.RandomSplit(trainSet.Size()-holdOut, holdOut)
		trainSet, validSet = splits[0], splits[1]
	}

	updaterConfig := adam.NewDefaultConfig()
	updaterConfig.StepSize = mat.Float(trainingParams.LearningRate)
	updater := adam.New(updaterConfig)
	t.optimizer = gd.NewOptimizer(updater, nn.NewDefaultParamsIterator(t.model),
		gd.ClipGradByValue(mat.Float(trainingParams.GradientClipThreshold)))

	for epoch := 0; epoch < trainingParams.NumEpochs; epoch++ {
		t.optimizer.IncEpoch()
		trainSet.ResetOrder(io.RandomOrder)
		batchIndex := 0
		for batch := trainSet.Next(); len(batch) > 0; batch = trainSet.Next() {
			loss := t.trainBatch(batch)
			t.optimizer.Optimize()
			if batchIndex%t.params.ReportInterval == 0 {
				log.Info().Int("epoch", epoch).Int("batch", batchIndex).Float64("loss", loss).Msg("")
			}
			batchIndex++
		}
	}

	m := model.Model{
		MetaData: metaData,
		Tagger:   t.model,
	}

	outputFile, err := os.Create(outputFileName)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", outputFileName, err)
	}
	defer outputFile.Close()

	if err := io.SaveModel(&m, outputFile); err != nil {
		return fmt.Errorf("error saving model to %s: %w", outputFileName, err)
	}

	if validSet != nil && validSet.Size() > 0 {
		return evaluateInternal(&m, validSet, "")
	}
	return nil
}

func buildTagger(metaData *model.Metadata, params ModelParameters) (*model.Tagger, error) {
	embedder := inputter.NewWordEmbeddings(WordsVocabularyKey, params.EmbeddingDimension, params.Dropout)

	var enc model.Encoder
	switch params.Encoder {
	case "bilstm":
		enc = encoder.NewBiLSTM(embedder.Size(), params.HiddenSize)
	case "lstm":
		enc = encoder.NewLSTM(embedder.Size(), params.HiddenSize)
	default:
		return nil, fmt.Errorf("unknown encoder type %s", params.Encoder)
	}

	tagger := model.NewTagger(model.TaggerConfig{
		LabelsVocabularyKey: LabelsVocabularyKey,
		CRFDecoding:         params.CRFDecoding,
	}, embedder, enc)

	if err := tagger.Initialize(metaData); err != nil {
		return nil, err
	}

	if params.PretrainedVectors != "" {
		loaded, err := embedder.LoadPretrained(params.PretrainedVectors)
		if err != nil {
			return nil, err
		}
		log.Info().Int("vectors", loaded).Msg("loaded pretrained embeddings")
	}
	return tagger, nil
}

func (t *Trainer) trainBatch(batch io.DataBatch) float64 {
	t.optimizer.IncBatch()

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(t.params.RndSeed)))
	defer g.Clear()
	ctx := nn.Context{Graph: g, Mode: nn.Training}
	tagger := nn.Reify(ctx, t.model).(*model.Tagger)

	var loss ag.Node
	for _, record := range batch {
		output := tagger.Forward(record.Tokens)
		loss = g.Add(loss, tagger.Loss(output, record.Labels))
	}
	loss = g.Div(loss, g.NewScalar(mat.Float(len(batch))))
	g.Backward(loss)
	return float64(loss.ScalarValue())
}

func printDataErrors(errors []io.DataError) {
	for _, err := range errors {
		log.Error().Msgf("Error parsing data at line %d: %s", err.Line, err.Error)
	}
}
