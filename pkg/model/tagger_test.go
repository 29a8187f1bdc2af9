package model

import (
	"bytes"
	"math"
	"testing"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// fakeInputter emits a fixed vector per token so that tests exercise the
// tagger composition without a trained embedding table.
type fakeInputter struct {
	nn.BaseModel
}

func (f *fakeInputter) Initialize(metaData *Metadata) error { return nil }
func (f *fakeInputter) InitParameters(gen *rand.LockedRand) {}
func (f *fakeInputter) Length(tokens []string) int          { return len(tokens) }
func (f *fakeInputter) Size() int                           { return testDim }

func (f *fakeInputter) Transform(tokens []string) []ag.Node {
	g := f.Graph()
	xs := make([]ag.Node, len(tokens))
	for i := range tokens {
		xs[i] = g.NewVariable(mat.NewInitVecDense(testDim, mat.Float(i+1)), false)
	}
	return xs
}

// fakeEncoder passes its inputs through unchanged.
type fakeEncoder struct {
	nn.BaseModel
}

func (f *fakeEncoder) InitParameters(gen *rand.LockedRand) {}
func (f *fakeEncoder) Size() int                           { return testDim }
func (f *fakeEncoder) Encode(xs []ag.Node, length int) ([]ag.Node, int) {
	return xs, length
}

func newTestTagger(t *testing.T, crfDecoding bool) *Tagger {
	t.Helper()
	labelsFile := writeTempFile(t, "labels.vocab", "O\nB-PER\nI-PER\n")
	metaData := NewMetadata(map[string]string{"labels_vocabulary": labelsFile})

	tagger := NewTagger(TaggerConfig{
		LabelsVocabularyKey: "labels_vocabulary",
		CRFDecoding:         crfDecoding,
	}, &fakeInputter{}, &fakeEncoder{})

	require.NoError(t, tagger.Initialize(metaData))
	tagger.InitParameters(rand.NewLockedRand(42))
	return tagger
}

func reifyTagger(tagger *Tagger, g *ag.Graph, mode nn.ProcessingMode) *Tagger {
	return nn.Reify(nn.Context{Graph: g, Mode: mode}, tagger).(*Tagger)
}

func TestTaggerInitialize(t *testing.T) {
	tagger := newTestTagger(t, false)
	require.Equal(t, 3, tagger.NumLabels)
	require.Equal(t, 3, tagger.Labels.Size())
	require.NotNil(t, tagger.Projection)
	require.Nil(t, tagger.CRF)

	require.Error(t, tagger.Initialize(NewMetadata(nil)))

	withCRF := newTestTagger(t, true)
	require.NotNil(t, withCRF.CRF)
}

func TestTaggerInitializeMissingKey(t *testing.T) {
	tagger := NewTagger(TaggerConfig{LabelsVocabularyKey: "labels_vocabulary"},
		&fakeInputter{}, &fakeEncoder{})
	err := tagger.Initialize(NewMetadata(map[string]string{}))
	require.Error(t, err)
}

func TestGreedyDecode(t *testing.T) {
	tagger := newTestTagger(t, false)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	reified := reifyTagger(tagger, g, nn.Inference)

	logits := []ag.Node{
		g.NewVariable(mat.NewVecDense([]mat.Float{0.1, 3.0, 0.2}), false),
		g.NewVariable(mat.NewVecDense([]mat.Float{2.0, 0.1, 0.3}), false),
	}
	prediction := reified.Decode(logits, len(logits))
	require.Equal(t, 2, prediction.Length)
	require.Equal(t, []string{"B-PER", "O"}, prediction.Labels)
}

func TestForwardTrainingProducesNoPrediction(t *testing.T) {
	tagger := newTestTagger(t, false)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	reified := reifyTagger(tagger, g, nn.Training)

	output := reified.Forward([]string{"john", "runs"})
	require.Equal(t, 2, output.Length)
	require.Equal(t, 2, len(output.Logits))
	require.Nil(t, output.Prediction)
}

func TestForwardInferenceProducesPrediction(t *testing.T) {
	tagger := newTestTagger(t, false)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	reified := reifyTagger(tagger, g, nn.Inference)

	output := reified.Forward([]string{"john", "runs", "fast"})
	require.NotNil(t, output.Prediction)
	require.Equal(t, 3, output.Prediction.Length)
	require.Equal(t, 3, len(output.Prediction.Labels))
	for _, label := range output.Prediction.Labels {
		require.Contains(t, tagger.Labels.Items, label)
	}
}

func TestMaskedLossAveragesOverValidPositions(t *testing.T) {
	tagger := newTestTagger(t, false)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	reified := reifyTagger(tagger, g, nn.Training)

	// Uniform logits: the cross entropy of every valid position is log(3),
	// so the masked mean is log(3) no matter how many trailing labels are
	// ignored.
	output := &Output{
		Logits: []ag.Node{
			g.NewVariable(mat.NewEmptyVecDense(3), false),
			g.NewVariable(mat.NewEmptyVecDense(3), false),
		},
		Length: 2,
	}
	loss := reified.Loss(output, []int{0, 1, 2, 1})
	require.InDelta(t, math.Log(3), float64(loss.ScalarValue()), 1e-4)
}

func TestLossWithoutValidPositionsIsZero(t *testing.T) {
	for _, crfDecoding := range []bool{false, true} {
		tagger := newTestTagger(t, crfDecoding)

		g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
		reified := reifyTagger(tagger, g, nn.Training)

		output := reified.Forward([]string{"john", "runs"})
		loss := reified.Loss(output, nil)
		require.InDelta(t, 0.0, float64(loss.ScalarValue()), 1e-6)
		g.Clear()
	}
}

func TestCRFLossMatchesPrimitive(t *testing.T) {
	tagger := newTestTagger(t, true)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	reified := reifyTagger(tagger, g, nn.Training)

	logits := []ag.Node{
		g.NewVariable(mat.NewVecDense([]mat.Float{0.5, 1.5, -0.5}), false),
		g.NewVariable(mat.NewVecDense([]mat.Float{1.0, -1.0, 0.2}), false),
		g.NewVariable(mat.NewVecDense([]mat.Float{0.1, 0.4, 2.0}), false),
	}
	labels := []int{1, 0, 2}

	loss := reified.Loss(&Output{Logits: logits, Length: 3}, labels)
	direct := reified.CRF.NegativeLogLoss(logits, labels)
	require.InDelta(t, float64(direct.ScalarValue()), float64(loss.ScalarValue()), 1e-5)
}

func TestPrintPredictionTruncatesToLength(t *testing.T) {
	tagger := newTestTagger(t, false)

	var buffer bytes.Buffer
	tagger.PrintPrediction(&Prediction{
		Length: 2,
		Labels: []string{"B-PER", "I-PER", "O"},
	}, &buffer)
	require.Equal(t, "B-PER I-PER\n", buffer.String())
}
