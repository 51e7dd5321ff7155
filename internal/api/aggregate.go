package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/empath/internal/fusion"
	"github.com/MikeSquared-Agency/empath/internal/hermes"
	"github.com/MikeSquared-Agency/empath/internal/present"
	"github.com/MikeSquared-Agency/empath/internal/store"
)

// MissingDataMessage is shown when aggregation is requested too early.
const MissingDataMessage = "Please complete all three emotion predictions first."

type aggregateResponse struct {
	ID        uuid.UUID      `json:"id"`
	Result    *fusion.Result `json:"result"`
	View      present.View   `json:"view"`
	Detail    string         `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) {
	snap := s.pipeline.Snapshot()
	res, err := s.engine.Fuse(snap)
	if err != nil {
		s.refuse(w, err)
		return
	}

	resp := aggregateResponse{
		ID:        uuid.New(),
		Result:    res,
		View:      s.adapter.FromResult(res),
		Detail:    s.adapter.Detail(res),
		CreatedAt: s.now(),
	}
	s.logger.Info("fusion complete", "id", resp.ID, "dominant", res.Dominant(), "confidence", res.Confidence())

	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		if err := s.history.WriteFusionResult(ctx, resp.ID, res, snap, resp.CreatedAt); err != nil {
			s.logger.Error("failed to persist fusion result", "id", resp.ID, "error", err)
		}
		cancel()
	}
	s.publish(hermes.SubjectFusionCompleted, hermes.NewFusionCompleted(resp.ID.String(), res, resp.CreatedAt))
	s.hub.Broadcast(StreamMessage{
		Type:   MessageAggregate,
		View:   resp.View,
		Detail: resp.Detail,
		At:     resp.CreatedAt,
	})

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refuse(w http.ResponseWriter, err error) {
	if ev, ok := hermes.NewFusionRefused(err, s.now()); ok {
		s.publish(hermes.SubjectFusionRefused, ev)
	}

	var inc *fusion.IncompleteInputError
	var bad *fusion.MalformedDistributionError
	switch {
	case errors.As(err, &inc):
		s.logger.Info("fusion refused", "missing", inc.Missing)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "complete all three modalities first",
			"message": MissingDataMessage,
			"missing": inc.Missing,
		})
	case errors.As(err, &bad):
		s.logger.Error("malformed distribution in slot", "modality", bad.Modality, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"modality": bad.Modality,
		})
	default:
		s.logger.Error("fusion failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) listAggregates(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.history.ListFusionResults(r.Context(), limit)
	if err != nil {
		s.logger.Error("list fusion results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list aggregates")
		return
	}
	if recs == nil {
		recs = []store.FusionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"aggregates": recs, "count": len(recs)})
}

func (s *Server) getAggregate(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rec, err := s.history.GetFusionResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "aggregate not found")
		return
	}
	if err != nil {
		s.logger.Error("get fusion result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load aggregate")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// queryLimit reads ?limit=, defaulting to 20 and capped at 100.
func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 20, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("invalid limit")
	}
	return min(n, 100), nil
}

func (s *Server) publish(subject string, ev any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(subject, ev); err != nil {
		s.logger.Warn("failed to publish", "subject", subject, "error", err)
	}
}
