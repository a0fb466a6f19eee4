// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_transformer_gateway provides the remote STT/TTS/LLM
// collaborators over an OpenAI-compatible HTTP gateway. The gateway
// authenticates with a bearer token and an opaque session header.
package internal_transformer_gateway

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	internal_type "github.com/fridayai/api/voice-api/internal/type"
	"github.com/fridayai/pkg/commons"
)

const (
	TranscribeTimeout = 30 * time.Second
	SynthesizeTimeout = 30 * time.Second
	CompleteTimeout   = 30 * time.Second

	sessionHeader = "X-Session-Key"
)

// Gateway is the shared HTTP client for all remote collaborators.
type Gateway struct {
	logger     commons.Logger
	client     *resty.Client
	configured bool
}

func NewGateway(logger commons.Logger, baseURL, token, sessionKey string) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token)
	if sessionKey != "" {
		client.SetHeader(sessionHeader, sessionKey)
	}
	return &Gateway{
		logger:     logger,
		client:     client,
		configured: baseURL != "" && token != "",
	}
}

// Configured reports whether the gateway has an API key; without one the
// remote chain is skipped and missing local binaries are reported to the
// client.
func (g *Gateway) Configured() bool { return g.configured }

// ============================================================================
// Speech to text
// ============================================================================

type transcriptionResponse struct {
	Text string `json:"text"`
}

type gatewaySpeechToText struct {
	gateway *Gateway
	models  []string
}

// SpeechToText returns the remote transcription collaborator, trying each
// model in turn until one yields non-empty text.
func (g *Gateway) SpeechToText(models []string) internal_type.SpeechToText {
	return &gatewaySpeechToText{gateway: g, models: models}
}

func (s *gatewaySpeechToText) Name() string { return "gateway-stt" }

func (s *gatewaySpeechToText) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if !s.gateway.configured {
		return "", fmt.Errorf("gateway-stt: no api key configured")
	}

	var lastErr error
	for _, model := range s.models {
		text, err := s.transcribeWithModel(ctx, model, wav)
		if err != nil {
			s.gateway.logger.Warnw("gateway-stt: model failed, trying next", "model", model, "error", err)
			lastErr = err
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("gateway-stt: all models failed: %w", lastErr)
	}
	return "", nil
}

func (s *gatewaySpeechToText) transcribeWithModel(ctx context.Context, model string, wav []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, TranscribeTimeout)
	defer cancel()

	var out transcriptionResponse
	resp, err := s.gateway.client.R().
		SetContext(callCtx).
		SetFileReader("file", "audio.wav", bytes.NewReader(wav)).
		SetFormData(map[string]string{"model": model}).
		SetResult(&out).
		Post("/audio/transcriptions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Text, nil
}

// ============================================================================
// Text to speech
// ============================================================================

type gatewayTextToSpeech struct {
	gateway *Gateway
	model   string
	voice   string
	format  string
}

// TextToSpeech returns the remote synthesis collaborator.
func (g *Gateway) TextToSpeech(model, voice, format string) internal_type.TextToSpeech {
	if format == "" {
		format = "ogg"
	}
	return &gatewayTextToSpeech{gateway: g, model: model, voice: voice, format: format}
}

func (t *gatewayTextToSpeech) Name() string { return "gateway-tts" }

func (t *gatewayTextToSpeech) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if !t.gateway.configured {
		return nil, "", fmt.Errorf("gateway-tts: no api key configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, SynthesizeTimeout)
	defer cancel()

	resp, err := t.gateway.client.R().
		SetContext(callCtx).
		SetBody(map[string]interface{}{
			"model":           t.model,
			"voice":           t.voice,
			"input":           text,
			"response_format": t.format,
		}).
		Post("/audio/speech")
	if err != nil {
		return nil, "", fmt.Errorf("gateway-tts: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("gateway-tts: status %d: %s", resp.StatusCode(), resp.String())
	}
	audio := resp.Body()
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("gateway-tts: empty synthesis response")
	}
	return audio, t.format, nil
}

// ============================================================================
// Language model
// ============================================================================

type responsesResponse struct {
	Output []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

type gatewayLanguageModel struct {
	gateway *Gateway
	model   string
}

// LanguageModel returns the remote reply collaborator.
func (g *Gateway) LanguageModel(model string) internal_type.LanguageModel {
	return &gatewayLanguageModel{gateway: g, model: model}
}

func (l *gatewayLanguageModel) Name() string { return "gateway-llm" }

func (l *gatewayLanguageModel) Complete(ctx context.Context, input string) (string, error) {
	if !l.gateway.configured {
		return "", fmt.Errorf("gateway-llm: no api key configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, CompleteTimeout)
	defer cancel()

	var out responsesResponse
	resp, err := l.gateway.client.R().
		SetContext(callCtx).
		SetBody(map[string]interface{}{"model": l.model, "input": input}).
		SetResult(&out).
		Post("/responses")
	if err != nil {
		return "", fmt.Errorf("gateway-llm: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gateway-llm: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Output) == 0 || len(out.Output[0].Content) == 0 {
		return "", fmt.Errorf("gateway-llm: empty response")
	}
	return out.Output[0].Content[0].Text, nil
}
