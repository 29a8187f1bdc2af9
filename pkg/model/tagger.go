package model

import (
	"fmt"
	"io"
	"strings"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/losses"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/crf"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
)

var _ nn.Model = &Tagger{}

// Inputter translates raw tokens into vectors consumable by the encoder.
type Inputter interface {
	nn.Model

	// Initialize resolves the inputter's own configuration keys against the
	// metadata. It is called exactly once, before any Transform call.
	Initialize(metaData *Metadata) error
	InitParameters(generator *rand.LockedRand)

	// Length reports the sequence length of the given tokens.
	Length(tokens []string) int

	// Transform maps tokens to one vector node per timestep.
	Transform(tokens []string) []ag.Node

	// Size is the dimension of each transformed vector.
	Size() int
}

// Encoder maps input vectors to per-timestep contextual representations.
// The returned length may differ from the input length for encoders that
// change the time resolution.
type Encoder interface {
	nn.Model

	InitParameters(generator *rand.LockedRand)
	Encode(xs []ag.Node, length int) ([]ag.Node, int)

	// Size is the dimension of each encoded vector.
	Size() int
}

// TaggerConfig is immutable after construction.
type TaggerConfig struct {
	// LabelsVocabularyKey is the data configuration key of the labels
	// vocabulary file containing one label per line.
	LabelsVocabularyKey string

	// CRFDecoding adds a CRF layer after the projection.
	CRFDecoding bool
}

// Tagger assigns one label per input token. It composes an inputter, an
// encoder and a label projection, optionally followed by CRF decoding.
type Tagger struct {
	nn.BaseModel
	TaggerConfig
	Inputter   Inputter
	Encoder    Encoder
	Projection *linear.Model
	CRF        *crf.Model
	Labels     *Vocabulary
	NumLabels  int
}

// Prediction holds the decoded sequence length and the decoded label
// strings. It is only produced outside of training mode.
type Prediction struct {
	Length int
	Labels []string
}

// Output is the result of a forward pass. Prediction is nil in training
// mode.
type Output struct {
	Logits     []ag.Node
	Length     int
	Prediction *Prediction
}

func NewTagger(config TaggerConfig, inputter Inputter, encoder Encoder) *Tagger {
	return &Tagger{
		TaggerConfig: config,
		Inputter:     inputter,
		Encoder:      encoder,
	}
}

// Initialize resolves the labels vocabulary file through the configured key
// and creates the projection and transition parameters. It runs exactly once
// before any Forward or Loss call; a second call is an error.
//
// The projection output size, the transition matrix dimensions and the
// reverse label lookup all derive from the same label count.
func (t *Tagger) Initialize(metaData *Metadata) error {
	if t.Labels != nil {
		return fmt.Errorf("tagger is already initialized")
	}
	if err := t.Inputter.Initialize(metaData); err != nil {
		return err
	}
	labelsFile, err := metaData.Resolve(t.LabelsVocabularyKey)
	if err != nil {
		return err
	}
	numLabels, err := CountLines(labelsFile)
	if err != nil {
		return fmt.Errorf("error counting labels in %s: %w", labelsFile, err)
	}
	labels, err := LoadVocabulary(labelsFile)
	if err != nil {
		return err
	}
	t.Labels = labels
	t.NumLabels = numLabels
	t.Projection = linear.New(t.Encoder.Size(), numLabels)
	if t.CRFDecoding {
		t.CRF = crf.New(numLabels)
	}
	return nil
}

func (t *Tagger) InitParameters(generator *rand.LockedRand) {
	t.Inputter.InitParameters(generator)
	t.Encoder.InitParameters(generator)
	gain := initializers.Gain(ag.OpIdentity)
	initializers.XavierUniform(t.Projection.W.Value(), gain, generator)
	if t.CRF != nil {
		initializers.XavierUniform(t.CRF.TransitionScores.Value(), gain, generator)
	}
}

// Forward derives the sequence length, transforms and encodes the tokens and
// projects the encoded representations to per-label logits. Outside of
// training mode it also decodes the logits into a prediction.
func (t *Tagger) Forward(tokens []string) *Output {
	length := t.Inputter.Length(tokens)
	inputs := t.Inputter.Transform(tokens)
	encoded, length := t.Encoder.Encode(inputs, length)
	logits := t.Projection.Forward(encoded...)
	output := &Output{Logits: logits, Length: length}
	if t.Mode() != nn.Training {
		output.Prediction = t.Decode(logits, length)
	}
	return output
}

// Decode produces the most likely label sequence for the given logits: a
// Viterbi decode over the transition matrix when CRF decoding is enabled,
// the per-timestep arg-max of a softmax otherwise.
func (t *Tagger) Decode(logits []ag.Node, length int) *Prediction {
	var ids []int
	if t.CRF != nil {
		ids = t.CRF.Decode(logits[:length])
	} else {
		g := t.Graph()
		ids = make([]int, length)
		for i := 0; i < length; i++ {
			ids[i], _ = argmax(g.Softmax(logits[i]).Value().Data())
		}
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = t.Labels.Item(id)
	}
	return &Prediction{Length: length, Labels: labels}
}

// Loss computes the training loss of a single sequence from the logits of
// the given forward output. With CRF decoding it is the negative
// log-likelihood under the transition matrix; otherwise it is a token-level
// cross entropy averaged only over valid positions. A sequence with no
// valid positions has zero loss.
func (t *Tagger) Loss(output *Output, labels []int) ag.Node {
	g := t.Graph()
	length := output.Length
	if len(labels) < length {
		length = len(labels)
	}
	if length == 0 {
		return g.NewScalar(0)
	}
	if t.CRF != nil {
		return t.CRF.NegativeLogLoss(output.Logits[:length], labels[:length])
	}
	var sum ag.Node
	for i := 0; i < length; i++ {
		sum = g.Add(sum, losses.CrossEntropy(g, output.Logits[i], labels[i]))
	}
	return g.Div(sum, g.NewScalar(mat.Float(length)))
}

// PrintPrediction writes the decoded labels, truncated to the decoded
// length, as a single space-joined line.
func (t *Tagger) PrintPrediction(prediction *Prediction, writer io.Writer) {
	labels := prediction.Labels
	if prediction.Length < len(labels) {
		labels = labels[:prediction.Length]
	}
	fmt.Fprintln(writer, strings.Join(labels, " "))
}

func argmax(data []mat.Float) (int, mat.Float) {
	maxInd := 0
	for i := range data {
		if data[i] > data[maxInd] {
			maxInd = i
		}
	}
	return maxInd, data[maxInd]
}
