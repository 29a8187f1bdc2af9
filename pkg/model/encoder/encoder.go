package encoder

import (
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/birnn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/recurrent/lstm"

	"seqtag/pkg/model"
)

var (
	_ model.Encoder = &BiLSTM{}
	_ model.Encoder = &LSTM{}
)

// BiLSTM encodes a sequence with forward and backward LSTM passes whose
// states are concatenated per timestep.
type BiLSTM struct {
	nn.BaseModel
	InputSize  int
	HiddenSize int
	BiRNN      *birnn.Model
}

func NewBiLSTM(inputSize, hiddenSize int) *BiLSTM {
	return &BiLSTM{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		BiRNN: birnn.New(
			lstm.New(inputSize, hiddenSize),
			lstm.New(inputSize, hiddenSize),
			birnn.Concat,
		),
	}
}

func (m *BiLSTM) InitParameters(generator *rand.LockedRand) {
	initRecurrentParameters(m, generator)
}

func (m *BiLSTM) Encode(xs []ag.Node, length int) ([]ag.Node, int) {
	return m.BiRNN.Forward(xs...), length
}

func (m *BiLSTM) Size() int {
	return 2 * m.HiddenSize
}

// LSTM is a unidirectional variant of BiLSTM.
type LSTM struct {
	nn.BaseModel
	InputSize  int
	HiddenSize int
	RNN        *lstm.Model
}

func NewLSTM(inputSize, hiddenSize int) *LSTM {
	return &LSTM{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		RNN:        lstm.New(inputSize, hiddenSize),
	}
}

func (m *LSTM) InitParameters(generator *rand.LockedRand) {
	initRecurrentParameters(m, generator)
}

func (m *LSTM) Encode(xs []ag.Node, length int) ([]ag.Node, int) {
	return m.RNN.Forward(xs...), length
}

func (m *LSTM) Size() int {
	return m.HiddenSize
}

// initRecurrentParameters initializes the weight matrices of all nested
// recurrent cells, leaving bias vectors at zero.
func initRecurrentParameters(m nn.Model, generator *rand.LockedRand) {
	gain := initializers.Gain(ag.OpSigmoid)
	nn.ForEachParam(m, func(param nn.Param) {
		if param.Value().Columns() > 1 {
			initializers.XavierUniform(param.Value(), gain, generator)
		}
	})
}
