package inputter

import (
	"os"
	"path/filepath"
	"testing"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/stretchr/testify/require"

	"seqtag/pkg/model"
)

func newTestEmbeddings(t *testing.T) *WordEmbeddings {
	t.Helper()
	vocabFile := filepath.Join(t.TempDir(), "words.vocab")
	require.NoError(t, os.WriteFile(vocabFile, []byte("john\nmary\nruns\n"), 0o600))

	embeddings := NewWordEmbeddings("words_vocabulary", 4, 0)
	metaData := model.NewMetadata(map[string]string{"words_vocabulary": vocabFile})
	require.NoError(t, embeddings.Initialize(metaData))
	return embeddings
}

func TestInitializeCreatesOOVBucket(t *testing.T) {
	embeddings := newTestEmbeddings(t)
	require.Equal(t, 3, embeddings.Vocab.Size())
	require.Equal(t, 4, len(embeddings.Vectors)) // one extra out-of-vocabulary vector

	require.Error(t, embeddings.Initialize(model.NewMetadata(nil)))
}

func TestTransformUsesOOVVector(t *testing.T) {
	embeddings := newTestEmbeddings(t)
	embeddings.Vectors[3].Value().SetData([]mat.Float{9, 9, 9, 9})

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	reified := nn.Reify(nn.Context{Graph: g, Mode: nn.Inference}, embeddings).(*WordEmbeddings)

	xs := reified.Transform([]string{"john", "unseen"})
	require.Equal(t, 2, len(xs))
	require.Equal(t, []mat.Float{9, 9, 9, 9}, xs[1].Value().Data())
}

func TestLoadPretrained(t *testing.T) {
	embeddings := newTestEmbeddings(t)

	vectorsFile := filepath.Join(t.TempDir(), "vectors.txt")
	content := "john 1 2 3 4\nabsent 5 6 7 8\n"
	require.NoError(t, os.WriteFile(vectorsFile, []byte(content), 0o600))

	loaded, err := embeddings.LoadPretrained(vectorsFile)
	require.NoError(t, err)
	require.Equal(t, 1, loaded)
	require.Equal(t, []mat.Float{1, 2, 3, 4}, embeddings.Vectors[0].Value().Data())
}

func TestLoadPretrainedDimensionMismatch(t *testing.T) {
	embeddings := newTestEmbeddings(t)

	vectorsFile := filepath.Join(t.TempDir(), "vectors.txt")
	require.NoError(t, os.WriteFile(vectorsFile, []byte("john 1 2\n"), 0o600))

	_, err := embeddings.LoadPretrained(vectorsFile)
	require.Error(t, err)
}
