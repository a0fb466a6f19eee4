// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	internal_chat "github.com/fridayai/api/voice-api/internal/chat"
	internal_engine "github.com/fridayai/api/voice-api/internal/engine"
	internal_media "github.com/fridayai/api/voice-api/internal/media"
	internal_session "github.com/fridayai/api/voice-api/internal/session"
	internal_signaling "github.com/fridayai/api/voice-api/internal/signaling"
	internal_transformer_gateway "github.com/fridayai/api/voice-api/internal/transformer/gateway"
	internal_transformer_piper "github.com/fridayai/api/voice-api/internal/transformer/piper"
	internal_transformer_whisper "github.com/fridayai/api/voice-api/internal/transformer/whisper"
	internal_turn "github.com/fridayai/api/voice-api/internal/turn"
	internal_usage "github.com/fridayai/api/voice-api/internal/usage"
	voice_routers "github.com/fridayai/api/voice-api/router"
	"github.com/fridayai/config"
	"github.com/fridayai/pkg/commons"
)

const shutdownTimeout = 10 * time.Second

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to read configuration: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	loggerOpts := []commons.LoggerOption{commons.WithLevel(cfg.LogLevel)}
	if cfg.LogFile != "" {
		loggerOpts = append(loggerOpts, commons.WithFileOutput(cfg.LogFile))
	}
	logger, err := commons.NewApplicationLogger(loggerOpts...)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Infow("starting", "service", cfg.Name, "version", cfg.Version)

	gateway := internal_transformer_gateway.NewGateway(logger, cfg.GatewayURL, cfg.GatewayToken, cfg.SessionKey)
	collaborators := internal_turn.Collaborators{
		Llm:     gateway.LanguageModel(cfg.LlmModel),
		Decoder: internal_media.NewFfmpegDecoder(logger, cfg.FfmpegBinary),
	}
	if cfg.SttBinary != "" {
		collaborators.SttPrimary = internal_transformer_whisper.NewWhisperSpeechToText(logger, cfg.SttBinary, cfg.SttModelFile)
	}
	if cfg.TtsBinary != "" {
		collaborators.TtsPrimary = internal_transformer_piper.NewPiperTextToSpeech(logger, cfg.TtsBinary)
	}
	if gateway.Configured() {
		collaborators.SttRemote = gateway.SpeechToText(cfg.SttModels)
		collaborators.TtsRemote = gateway.TextToSpeech(cfg.TtsModel, cfg.TtsVoice, cfg.TtsFormat)
	}

	// The media runtime is resolved once at startup; offers arriving
	// without it are answered with a wrtc_unavailable system event.
	var engine internal_engine.Engine
	if eng, err := internal_engine.NewPionEngine(logger, nil); err != nil {
		logger.Errorw("webrtc engine unavailable, refusing offers", "error", err)
	} else {
		engine = eng
	}

	hub := internal_signaling.NewHub(logger)
	chatLog := internal_chat.NewLog()
	manager := internal_session.NewManager(logger, hub, chatLog, engine, collaborators,
		internal_session.ToolConfig{
			SttBinary:         cfg.SttBinary,
			TtsBinary:         cfg.TtsBinary,
			FfmpegBinary:      cfg.FfmpegBinary,
			GatewayConfigured: gateway.Configured(),
		})
	hub.SetBotDispatcher(manager.HandleSignal)
	hub.SetSessionCloser(manager.CloseSession)

	var ledger *internal_usage.Ledger
	if cfg.UsageLedgerPath != "" {
		if l, err := internal_usage.NewLedger(logger, cfg.UsageLedgerPath); err != nil {
			logger.Warnw("usage ledger unavailable", "path", cfg.UsageLedgerPath, "error", err)
		} else {
			ledger = l
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))
	voice_routers.VoiceApiRoute(cfg, ginEngine, logger, hub, chatLog, collaborators, ledger)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: ginEngine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Infow("shutting down")
		manager.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorw("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Infow("bye")
}
