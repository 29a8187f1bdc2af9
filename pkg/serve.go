package pkg

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"seqtag/pkg/io"
	"seqtag/pkg/model"
)

const maxBodyBytes int64 = 1 << 20

// Service defines the methods required by the HTTP layer.
type Service interface {
	TagTokens(tokens []string) (*model.Prediction, error)
	Ready() bool
}

type taggerService struct {
	model *model.Model
}

func (s *taggerService) TagTokens(tokens []string) (*model.Prediction, error) {
	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	tagger := nn.Reify(nn.Context{Graph: g, Mode: nn.Inference}, s.model.Tagger).(*model.Tagger)
	return tagger.Forward(tokens).Prediction, nil
}

func (s *taggerService) Ready() bool {
	return s.model != nil
}

type TagRequest struct {
	Tokens []string `json:"tokens"`
	Text   string   `json:"text"`
}

type TagResponse struct {
	Length int      `json:"length"`
	Labels []string `json:"labels"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the HTTP API: POST /v1/tag, GET /healthz, GET /metrics.
func NewRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !svc.Ready() {
			writeJSONError(w, http.StatusServiceUnavailable, "model not loaded")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/tag", func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
		var tagReq TagRequest
		if err := json.NewDecoder(req.Body).Decode(&tagReq); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		tokens := tagReq.Tokens
		if len(tokens) == 0 {
			tokens = strings.Fields(tagReq.Text)
		}
		if len(tokens) == 0 {
			writeJSONError(w, http.StatusBadRequest, "no tokens to tag")
			return
		}
		prediction, err := svc.TagTokens(tokens)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TagResponse{
			Length: prediction.Length,
			Labels: prediction.Labels,
		})
	})

	return r
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// Serve loads a model and blocks serving the tagging API on addr.
func Serve(modelFileName, addr string) error {
	modelFile, err := os.Open(modelFileName)
	if err != nil {
		return fmt.Errorf("error opening model file %s: %w", modelFileName, err)
	}

	m, err := io.LoadModel(modelFile)
	modelFile.Close()
	if err != nil {
		return fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}

	log.Info().Str("addr", addr).Msg("serving tagging API")
	return http.ListenAndServe(addr, NewRouter(&taggerService{model: m}))
}
