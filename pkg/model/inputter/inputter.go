package inputter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"

	"seqtag/pkg/model"
)

var _ model.Inputter = &WordEmbeddings{}

// WordEmbeddings looks up a trainable vector for every token of a sequence.
// Tokens missing from the words vocabulary share a single out-of-vocabulary
// vector stored after the in-vocabulary ones.
type WordEmbeddings struct {
	nn.BaseModel

	// WordsVocabularyKey is the data configuration key of the words
	// vocabulary file containing one token per line.
	WordsVocabularyKey string

	// Dim is the size of each embedding vector.
	Dim int

	// Dropout is applied to the looked-up vectors in training mode only.
	Dropout float64

	Vocab   *model.Vocabulary
	Vectors []nn.Param
}

func NewWordEmbeddings(wordsVocabularyKey string, dim int, dropout float64) *WordEmbeddings {
	return &WordEmbeddings{
		WordsVocabularyKey: wordsVocabularyKey,
		Dim:                dim,
		Dropout:            dropout,
	}
}

// Initialize resolves the words vocabulary file and creates one vector per
// vocabulary entry plus the trailing out-of-vocabulary vector.
func (m *WordEmbeddings) Initialize(metaData *model.Metadata) error {
	if m.Vocab != nil {
		return fmt.Errorf("word embeddings are already initialized")
	}
	vocabFile, err := metaData.Resolve(m.WordsVocabularyKey)
	if err != nil {
		return err
	}
	vocab, err := model.LoadVocabulary(vocabFile)
	if err != nil {
		return err
	}
	m.Vocab = vocab
	m.Vectors = make([]nn.Param, vocab.Size()+1)
	for i := range m.Vectors {
		m.Vectors[i] = nn.NewParam(mat.NewEmptyVecDense(m.Dim))
	}
	return nil
}

func (m *WordEmbeddings) InitParameters(generator *rand.LockedRand) {
	for _, vector := range m.Vectors {
		initializers.Uniform(vector.Value(), -0.05, 0.05, generator)
	}
}

func (m *WordEmbeddings) Length(tokens []string) int {
	return len(tokens)
}

// Transform maps every token to its embedding node, falling back to the
// out-of-vocabulary vector for unknown tokens.
func (m *WordEmbeddings) Transform(tokens []string) []ag.Node {
	g := m.Graph()
	xs := make([]ag.Node, len(tokens))
	for i, token := range tokens {
		id, ok := m.Vocab.ID(token)
		if !ok {
			id = len(m.Vectors) - 1
		}
		var x ag.Node = m.Vectors[id]
		if m.Mode() == nn.Training && m.Dropout > 0 {
			x = g.Dropout(x, mat.Float(m.Dropout))
		}
		xs[i] = x
	}
	return xs
}

func (m *WordEmbeddings) Size() int {
	return m.Dim
}

// LoadPretrained overwrites the vectors of vocabulary tokens found in a text
// vectors file (token followed by its space-separated values, one entry per
// line). Tokens absent from the vocabulary are ignored. Must be called after
// Initialize and before training.
func (m *WordEmbeddings) LoadPretrained(fileName string) (int, error) {
	if m.Vocab == nil {
		return 0, fmt.Errorf("word embeddings are not initialized")
	}
	file, err := os.Open(fileName)
	if err != nil {
		return 0, fmt.Errorf("error opening vectors file %s: %w", fileName, err)
	}
	defer file.Close()

	loaded := 0
	lineNumber := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lineNumber++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		id, ok := m.Vocab.ID(fields[0])
		if !ok {
			continue
		}
		if len(fields)-1 != m.Dim {
			return loaded, fmt.Errorf("line %d of %s has %d values, expected %d",
				lineNumber, fileName, len(fields)-1, m.Dim)
		}
		values := make([]mat.Float, m.Dim)
		for i, field := range fields[1:] {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return loaded, fmt.Errorf("error parsing value on line %d of %s: %w", lineNumber, fileName, err)
			}
			values[i] = mat.Float(value)
		}
		m.Vectors[id].Value().SetData(values)
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("error reading vectors file %s: %w", fileName, err)
	}
	return loaded, nil
}
