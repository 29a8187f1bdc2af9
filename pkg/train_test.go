package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/stretchr/testify/require"

	"seqtag/pkg/io"
	"seqtag/pkg/model"
)

func writeCorpus(t *testing.T) (dataConfigFile, featuresFile, labelsFile string) {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	wordsVocab := write("words.vocab", "john\nmary\nruns\nsleeps\nfast\n")
	labelsVocab := write("labels.vocab", "O\nB-PER\n")
	dataConfigFile = write("data.yaml",
		"data:\n  words_vocabulary: "+wordsVocab+"\n  labels_vocabulary: "+labelsVocab+"\n")
	featuresFile = write("train.features", "john runs\nmary sleeps\njohn sleeps fast\nmary runs\n")
	labelsFile = write("train.labels", "B-PER O\nB-PER O\nB-PER O O\nB-PER O\n")
	return dataConfigFile, featuresFile, labelsFile
}

func testTrainingParameters() TrainingParameters {
	return TrainingParameters{
		BatchSize:             2,
		NumEpochs:             2,
		LearningRate:          0.01,
		GradientClipThreshold: 5.0,
		ReportInterval:        1,
		RndSeed:               42,
	}
}

func TestTrainProducesLoadableModel(t *testing.T) {
	dataConfigFile, featuresFile, labelsFile := writeCorpus(t)
	modelFile := filepath.Join(t.TempDir(), "toy.model")

	err := Train(dataConfigFile, featuresFile, labelsFile, "", "", modelFile,
		ModelParameters{
			Encoder:            "bilstm",
			EmbeddingDimension: 8,
			HiddenSize:         8,
		}, testTrainingParameters())
	require.NoError(t, err)

	file, err := os.Open(modelFile)
	require.NoError(t, err)
	defer file.Close()

	m, err := io.LoadModel(file)
	require.NoError(t, err)
	require.Equal(t, 2, m.Tagger.NumLabels)
	require.Nil(t, m.Tagger.CRF)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	tagger := nn.Reify(nn.Context{Graph: g, Mode: nn.Inference}, m.Tagger).(*model.Tagger)
	output := tagger.Forward([]string{"john", "runs"})
	require.NotNil(t, output.Prediction)
	require.Equal(t, 2, output.Prediction.Length)
	require.Equal(t, 2, len(output.Prediction.Labels))
}

func TestTrainWithCRFAndValidationSplit(t *testing.T) {
	dataConfigFile, featuresFile, labelsFile := writeCorpus(t)
	modelFile := filepath.Join(t.TempDir(), "toy-crf.model")

	params := testTrainingParameters()
	params.ValidationSplit = 0.25

	err := Train(dataConfigFile, featuresFile, labelsFile, "", "", modelFile,
		ModelParameters{
			Encoder:            "lstm",
			EmbeddingDimension: 8,
			HiddenSize:         8,
			CRFDecoding:        true,
		}, params)
	require.NoError(t, err)

	file, err := os.Open(modelFile)
	require.NoError(t, err)
	defer file.Close()

	m, err := io.LoadModel(file)
	require.NoError(t, err)
	require.NotNil(t, m.Tagger.CRF)
}

func TestTrainRejectsUnknownEncoder(t *testing.T) {
	dataConfigFile, featuresFile, labelsFile := writeCorpus(t)

	err := Train(dataConfigFile, featuresFile, labelsFile, "", "",
		filepath.Join(t.TempDir(), "toy.model"),
		ModelParameters{Encoder: "transformer", EmbeddingDimension: 8, HiddenSize: 8},
		testTrainingParameters())
	require.Error(t, err)
}
