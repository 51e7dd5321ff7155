package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/empath/internal/capture"
	"github.com/MikeSquared-Agency/empath/internal/classifier"
	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/hermes"
	"github.com/MikeSquared-Agency/empath/internal/pipeline"
	"github.com/MikeSquared-Agency/empath/internal/present"
	"github.com/MikeSquared-Agency/empath/internal/slots"
	"github.com/MikeSquared-Agency/empath/internal/store"
)

const (
	maxFaceBody  = 1 << 20
	maxAudioBody = 32 << 20
	maxTextBody  = 64 << 10
)

// SlotView pairs a slot with its rendering.
type SlotView struct {
	Slot slots.Slot   `json:"slot"`
	View present.View `json:"view"`
}

type slotResponse struct {
	SlotView
	Error string `json:"error,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) listModalities(w http.ResponseWriter, r *http.Request) {
	snap := s.pipeline.Snapshot()
	views := make(map[emotion.Modality]SlotView, len(emotion.Modalities))
	for _, m := range emotion.Modalities {
		views[m] = s.slotView(snap.Slot(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"complete":  slots.IsComplete(snap),
		"missing":   nonNil(slots.Missing(snap)),
		"slots":     views,
		"recording": s.pipeline.Recording(),
		"taken_at":  snap.TakenAt,
	})
}

func (s *Server) modalityHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	m, err := emotion.ParseModality(chi.URLParam(r, "modality"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.history.ListPredictions(r.Context(), m, limit)
	if err != nil {
		s.logger.Error("list predictions", "modality", m, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}
	if recs == nil {
		recs = []store.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"modality": m, "predictions": recs, "count": len(recs)})
}

func (s *Server) submitFace(w http.ResponseWriter, r *http.Request) {
	img, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFaceBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "face frame too large")
		return
	}
	task, err := s.pipeline.SubmitFace(img)
	s.respondTask(w, r, emotion.Face, task, err)
}

func (s *Server) submitAudio(w http.ResponseWriter, r *http.Request) {
	wav, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "recording too large")
		return
	}
	task, err := s.pipeline.SubmitAudio(wav)
	s.respondTask(w, r, emotion.Audio, task, err)
}

func (s *Server) submitText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	task, err := s.pipeline.SubmitText(req.Text)
	s.respondTask(w, r, emotion.Text, task, err)
}

// respondTask waits for the slot write and reports it. Sentinel outcomes are
// still written slots; the status code tells the caller which kind.
func (s *Server) respondTask(w http.ResponseWriter, r *http.Request, m emotion.Modality, task *pipeline.Task, err error) {
	if err != nil {
		status := submitStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("submission failed", "modality", m, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	out, err := task.Wait(r.Context())
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, "prediction still running")
		return
	}

	resp := slotResponse{SlotView: s.slotView(out.Slot)}
	status := http.StatusOK
	if out.Err != nil {
		resp.Error = out.Err.Error()
		status = http.StatusBadGateway
		if errors.Is(out.Err, classifier.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, capture.ErrRecordingInFlight):
		return http.StatusConflict
	case errors.Is(err, capture.ErrRecordingTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrEmptyText),
		errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, capture.ErrEmptyRecording),
		errors.Is(err, capture.ErrNotWAV):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotRunning):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) slotView(slot slots.Slot) SlotView {
	vocab := s.engine.Registry().Vocabulary(slot.Modality)
	return SlotView{Slot: slot, View: s.adapter.FromSlot(vocab, slot)}
}

// ModalityUpdated streams a slot write to dashboards. It runs on the
// coordinator goroutine and only enqueues.
func (s *Server) ModalityUpdated(out pipeline.Outcome) {
	s.hub.Broadcast(StreamMessage{
		Type:     MessageModality,
		Modality: out.Slot.Modality,
		Slot:     &out.Slot,
		View:     s.slotView(out.Slot).View,
		At:       s.now(),
	})
}

// HandleTextSubmitted feeds text arriving over NATS into the text pipeline.
func (s *Server) HandleTextSubmitted(subject string, data []byte) {
	ev, err := hermes.DecodeTextSubmitted(data)
	if err != nil {
		s.logger.Warn("ignoring text submission", "subject", subject, "error", err)
		return
	}
	if _, err := s.pipeline.SubmitText(ev.Text); err != nil {
		s.logger.Warn("text submission refused", "source", ev.Source, "error", err)
		return
	}
	s.logger.Info("text submitted over hermes", "source", ev.Source)
}

func nonNil(ms []emotion.Modality) []emotion.Modality {
	if ms == nil {
		return []emotion.Modality{}
	}
	return ms
}
