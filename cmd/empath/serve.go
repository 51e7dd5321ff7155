package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/empath/internal/api"
	"github.com/MikeSquared-Agency/empath/internal/capture"
	"github.com/MikeSquared-Agency/empath/internal/classifier"
	"github.com/MikeSquared-Agency/empath/internal/config"
	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/hermes"
	"github.com/MikeSquared-Agency/empath/internal/pipeline"
	"github.com/MikeSquared-Agency/empath/internal/slots"
	"github.com/MikeSquared-Agency/empath/internal/store"
	"github.com/MikeSquared-Agency/empath/internal/transcribe"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, modality pipeline and hermes bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd)
		},
	}
}

func serve(cmd *cobra.Command) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default()

	slog.Info("empath starting", "port", cfg.Port, "version", version)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	engine, adapter, err := loadFusion(cmd, cfg.ProfilePath)
	if err != nil {
		return err
	}
	slog.Info("fusion engine ready", "weights", engine.Weights().Percent())
	for _, m := range emotion.Modalities {
		if missing := engine.Registry().Unreachable(m); len(missing) > 0 {
			slog.Info("canonical labels unreachable", "modality", m, "labels", missing)
		}
	}

	// Models load once; an unreachable model leaves its modality unavailable.
	reg := engine.Registry()
	models := pipeline.Classifiers{
		Face:  classifier.Load(ctx, emotion.Face, cfg.FaceModelURL, reg.Vocabulary(emotion.Face), logger),
		Audio: classifier.Load(ctx, emotion.Audio, cfg.AudioModelURL, reg.Vocabulary(emotion.Audio), logger),
		Text:  classifier.Load(ctx, emotion.Text, cfg.TextModelURL, reg.Vocabulary(emotion.Text), logger),
	}
	transcriber := transcribe.NewClient(cfg.TranscribeURL, logger)
	recorder := capture.NewRecorder(cfg.AudioDir, cfg.RecordLimit)
	coord := pipeline.New(slots.New(), models, transcriber, recorder, cfg.FaceInterval, logger)

	deps := api.Deps{
		Port:     cfg.Port,
		APIToken: cfg.APIToken,
		Pipeline: coord,
		Engine:   engine,
		Adapter:  adapter,
		Logger:   logger,
	}

	// Database (optional, enables aggregate history)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database, running without history", "error", err)
		} else {
			defer db.Close()
			deps.History = db
			slog.Info("database connected")
		}
	} else {
		slog.Warn("DATABASE_URL not set, running without history")
	}

	// NATS/Hermes (optional)
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
	if err != nil {
		slog.Warn("failed to connect to NATS, running without events", "error", err)
	} else {
		defer hermesClient.Close()
		deps.Publisher = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	srv := api.NewServer(deps)
	coord.OnUpdate(srv.ModalityUpdated)
	if hermesClient != nil {
		coord.OnUpdate(func(out pipeline.Outcome) {
			if err := hermesClient.Publish(hermes.SubjectModalityUpdated, hermes.NewModalityUpdated(out.Slot, out.Err)); err != nil {
				slog.Warn("failed to publish modality update", "modality", out.Slot.Modality, "error", err)
			}
		})
	}
	if db != nil {
		coord.OnUpdate(func(out pipeline.Outcome) {
			// the amended write carries the whole slot
			if out.Pending {
				return
			}
			go func() {
				wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer wcancel()
				if _, err := db.WritePrediction(wctx, out.Slot); err != nil {
					slog.Warn("failed to persist prediction", "modality", out.Slot.Modality, "error", err)
				}
			}()
		})
	}
	coord.Start(ctx)

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectTextSubmitted, srv.HandleTextSubmitted); err != nil {
			slog.Warn("failed to subscribe to text submissions", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if hermesClient != nil {
		if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"models":    availability(models),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("empath ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server error", "error", err)
			return err
		}
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	cancel()
	slog.Info("empath stopped")
	return nil
}

func availability(models pipeline.Classifiers) map[emotion.Modality]bool {
	out := make(map[emotion.Modality]bool, len(emotion.Modalities))
	for _, m := range emotion.Modalities {
		c := models.For(m)
		out[m] = c != nil && !classifier.IsUnavailable(c)
	}
	return out
}
