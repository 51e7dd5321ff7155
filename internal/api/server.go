package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/empath/internal/classifier"
	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/fusion"
	"github.com/MikeSquared-Agency/empath/internal/pipeline"
	"github.com/MikeSquared-Agency/empath/internal/present"
	"github.com/MikeSquared-Agency/empath/internal/slots"
	"github.com/MikeSquared-Agency/empath/internal/store"
)

// Prompt is the question shown next to the audio and text inputs.
const Prompt = "How are you feeling today?"

// Pipeline is the modality side of the service.
type Pipeline interface {
	SubmitFace(img []byte) (*pipeline.Task, error)
	SubmitAudio(wav []byte) (*pipeline.Task, error)
	SubmitText(text string) (*pipeline.Task, error)
	Snapshot() slots.Snapshot
	Recording() bool
	Models() pipeline.Classifiers
}

// History persists fusion results and serves the prediction log. Optional.
type History interface {
	WriteFusionResult(ctx context.Context, id uuid.UUID, r *fusion.Result, snap slots.Snapshot, at time.Time) error
	ListFusionResults(ctx context.Context, limit int) ([]store.FusionRecord, error)
	GetFusionResult(ctx context.Context, id uuid.UUID) (*store.FusionRecord, error)
	ListPredictions(ctx context.Context, m emotion.Modality, limit int) ([]store.PredictionRecord, error)
	Ping(ctx context.Context) error
}

// Publisher fans events out to the swarm. Optional.
type Publisher interface {
	Publish(subject string, data any) error
	Connected() bool
}

type Deps struct {
	Port      int
	APIToken  string
	Pipeline  Pipeline
	Engine    *fusion.Engine
	Adapter   *present.Adapter
	History   History
	Publisher Publisher
	Hub       *Hub
	Logger    *slog.Logger
}

type Server struct {
	router    *chi.Mux
	port      int
	pipeline  Pipeline
	engine    *fusion.Engine
	adapter   *present.Adapter
	history   History
	publisher Publisher
	hub       *Hub
	logger    *slog.Logger
	now       func() time.Time
	http      *http.Server
}

func NewServer(d Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	if d.Adapter == nil {
		d.Adapter = present.NewAdapter(nil)
	}
	if d.Hub == nil {
		d.Hub = NewHub(d.Logger)
	}

	s := &Server{
		router:    router,
		port:      d.Port,
		pipeline:  d.Pipeline,
		engine:    d.Engine,
		adapter:   d.Adapter,
		history:   d.History,
		publisher: d.Publisher,
		hub:       d.Hub,
		logger:    d.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/empath/status", s.status)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/modalities", s.listModalities)
		r.Get("/modalities/{modality}/history", s.modalityHistory)
		r.Get("/prompts", s.prompts)
		r.Get("/aggregates", s.listAggregates)
		r.Get("/aggregates/{id}", s.getAggregate)
		r.Get("/stream", s.stream)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(d.APIToken))
			r.Post("/modalities/face", s.submitFace)
			r.Post("/modalities/audio", s.submitAudio)
			r.Post("/modalities/text", s.submitText)
			r.Post("/aggregate", s.aggregate)
		})
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	models := s.pipeline.Models()
	available := make(map[emotion.Modality]bool, len(emotion.Modalities))
	for _, m := range emotion.Modalities {
		c := models.For(m)
		available[m] = c != nil && !classifier.IsUnavailable(c)
	}

	database := "disabled"
	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		database = "ok"
		if err := s.history.Ping(ctx); err != nil {
			s.logger.Warn("database ping failed", "error", err)
			database = "unreachable"
		}
		cancel()
	}
	nats := "disabled"
	if s.publisher != nil {
		nats = "disconnected"
		if s.publisher.Connected() {
			nats = "connected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent":     "empath",
		"status":    "ready",
		"models":    available,
		"recording": s.pipeline.Recording(),
		"complete":  slots.IsComplete(s.pipeline.Snapshot()),
		"weights":   s.engine.Weights().Percent(),
		"database":  database,
		"nats":      nats,
		"streams":   s.hub.Clients(),
	})
}

func (s *Server) prompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"audio": Prompt,
		"text":  Prompt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
