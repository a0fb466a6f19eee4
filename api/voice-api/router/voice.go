// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package voice_routers

import (
	"github.com/gin-gonic/gin"

	voiceApi "github.com/fridayai/api/voice-api/api"
	internal_chat "github.com/fridayai/api/voice-api/internal/chat"
	internal_signaling "github.com/fridayai/api/voice-api/internal/signaling"
	internal_turn "github.com/fridayai/api/voice-api/internal/turn"
	internal_usage "github.com/fridayai/api/voice-api/internal/usage"
	"github.com/fridayai/config"
	"github.com/fridayai/pkg/commons"
)

func VoiceApiRoute(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	hub *internal_signaling.Hub,
	chatLog *internal_chat.Log,
	collaborators internal_turn.Collaborators,
	ledger *internal_usage.Ledger,
) {
	vApi := voiceApi.NewVoiceApi(cfg, logger, hub, chatLog, collaborators, ledger)

	apiWebrtc := engine.Group("api/webrtc")
	{
		apiWebrtc.GET("/events", vApi.Events)
		apiWebrtc.POST("/signal", vApi.Signal)
		apiWebrtc.GET("/chat", vApi.ChatHistory)
		apiWebrtc.POST("/chat", vApi.ChatAppend)
		apiWebrtc.POST("/assistant", vApi.Assistant)
	}

	apiUsage := engine.Group("api/usage")
	{
		apiUsage.GET("/summary", vApi.UsageSummary)
	}

	engine.GET("/healthz", vApi.Healthz)
}
