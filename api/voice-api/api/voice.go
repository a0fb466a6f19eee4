// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package voice_api is the HTTP/SSE surface of the voice bridge: the event
// stream, the signal inbox, the room chat log, the text-mode assistant
// endpoint and the usage summary.
package voice_api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	internal_chat "github.com/fridayai/api/voice-api/internal/chat"
	internal_signaling "github.com/fridayai/api/voice-api/internal/signaling"
	internal_turn "github.com/fridayai/api/voice-api/internal/turn"
	internal_usage "github.com/fridayai/api/voice-api/internal/usage"
	"github.com/fridayai/config"
	"github.com/fridayai/pkg/commons"
)

type VoiceApi struct {
	cfg           *config.AppConfig
	logger        commons.Logger
	hub           *internal_signaling.Hub
	chatLog       *internal_chat.Log
	collaborators internal_turn.Collaborators
	ledger        *internal_usage.Ledger // nil when the ledger failed to open
}

func NewVoiceApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	hub *internal_signaling.Hub,
	chatLog *internal_chat.Log,
	collaborators internal_turn.Collaborators,
	ledger *internal_usage.Ledger,
) *VoiceApi {
	return &VoiceApi{
		cfg:           cfg,
		logger:        logger,
		hub:           hub,
		chatLog:       chatLog,
		collaborators: collaborators,
		ledger:        ledger,
	}
}

// Events opens the SSE stream for (roomId, peerId). The hub pre-queues the
// `ready` frame and a `signaling_connected` system event; everything after
// that is relayed signals.
//
// @Router /api/webrtc/events [get]
func (vApi *VoiceApi) Events(c *gin.Context) {
	peerID := c.Query("peerId")
	if peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peerId is required"})
		return
	}
	roomID := c.Query("roomId")
	if roomID == "" {
		roomID = internal_signaling.DefaultRoomID
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sub := vApi.hub.Subscribe(peerID, roomID)
	defer vApi.hub.Unsubscribe(sub)

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-sub.Events():
			if !ok {
				return false
			}
			w.Write(frame)
			return true
		case <-clientGone:
			return false
		}
	})
}

type signalRequest struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// Signal accepts one signaling event and hands it to the hub's relay
// policy. Payload stays opaque here; shape checks happen at the consumer.
//
// @Router /api/webrtc/signal [post]
func (vApi *VoiceApi) Signal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed signal body"})
		return
	}
	switch req.Type {
	case internal_signaling.EventOffer, internal_signaling.EventAnswer,
		internal_signaling.EventCandidate, internal_signaling.EventBye:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unsupported signal type"})
		return
	}
	if req.From == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "from is required"})
		return
	}
	if req.RoomID == "" {
		req.RoomID = internal_signaling.DefaultRoomID
	}

	var payload interface{}
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	vApi.hub.Relay(internal_signaling.NewEvent(req.Type, req.From, req.To, req.RoomID, payload))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ChatHistory returns the room's chat log, oldest first.
//
// @Router /api/webrtc/chat [get]
func (vApi *VoiceApi) ChatHistory(c *gin.Context) {
	roomID := c.Query("roomId")
	if roomID == "" {
		roomID = internal_signaling.DefaultRoomID
	}
	c.JSON(http.StatusOK, gin.H{"history": vApi.chatLog.History(roomID)})
}

type chatAppendRequest struct {
	RoomID  string `json:"roomId"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

// ChatAppend appends one entry to the room log and mirrors it to the
// room's open event streams so the far side sees typed chat live.
//
// @Router /api/webrtc/chat [post]
func (vApi *VoiceApi) ChatAppend(c *gin.Context) {
	var req chatAppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed chat body"})
		return
	}
	if !internal_chat.ValidRole(internal_chat.Role(req.Role)) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "role must be user, assistant or system"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "message must be non-empty"})
		return
	}
	if req.RoomID == "" {
		req.RoomID = internal_signaling.DefaultRoomID
	}

	entry := internal_chat.NewEntry(internal_chat.Role(req.Role), req.Message)
	vApi.chatLog.Add(req.RoomID, entry)
	vApi.hub.Broadcast(internal_signaling.NewEvent(
		internal_signaling.EventChat, "", "", req.RoomID, entry))
	c.JSON(http.StatusOK, gin.H{"ok": true, "entry": entry})
}

type assistantRequest struct {
	RoomID             string `json:"roomId"`
	Transcript         string `json:"transcript"`
	FallbackTranscript string `json:"fallbackTranscript"`
	InputAudioBase64   string `json:"inputAudioBase64"`
	InputAudioMimeType string `json:"inputAudioMimeType"`
}

// Assistant is the text-mode entry into the turn pipeline's collaborator
// chain: optional STT on posted audio, then LLM, then TTS. Unlike the
// media-track path, synthesised audio rides back inline as base64.
//
// @Router /api/webrtc/assistant [post]
func (vApi *VoiceApi) Assistant(c *gin.Context) {
	var req assistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed assistant body"})
		return
	}
	if req.RoomID == "" {
		req.RoomID = internal_signaling.DefaultRoomID
	}
	ctx := c.Request.Context()

	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" && req.InputAudioBase64 != "" {
		transcript = vApi.transcribeUpload(c, req.InputAudioBase64, req.InputAudioMimeType)
	}
	if transcript == "" {
		transcript = strings.TrimSpace(req.FallbackTranscript)
	}
	if transcript == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no usable transcript"})
		return
	}

	userEntry := internal_chat.NewEntry(internal_chat.RoleUser, transcript)
	vApi.chatLog.Add(req.RoomID, userEntry)

	reply, err := vApi.collaborators.Llm.Complete(ctx, transcript)
	if err != nil || reply == "" {
		if err != nil {
			vApi.logger.Errorw("assistant: language model failed, using fallback reply", "error", err)
		}
		reply = internal_turn.LlmFallbackReply
	}
	replyEntry := internal_chat.NewEntry(internal_chat.RoleAssistant, reply)
	vApi.chatLog.Add(req.RoomID, replyEntry)

	var audioBase64, audioMimeType *string
	if audio, format, err := vApi.synthesize(c, reply); err != nil {
		vApi.logger.Warnw("assistant: synthesis failed, replying text-only", "error", err)
	} else {
		encoded := base64.StdEncoding.EncodeToString(audio)
		mime := mimeFromFormat(format)
		audioBase64 = &encoded
		audioMimeType = &mime
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"transcript":    transcript,
		"reply":         replyEntry,
		"audioBase64":   audioBase64,
		"audioMimeType": audioMimeType,
	})
}

// transcribeUpload decodes posted audio to playback PCM, re-wraps it as WAV
// and runs the STT chain. Any failure degrades to an empty transcript so
// the fallback transcript can take over.
func (vApi *VoiceApi) transcribeUpload(c *gin.Context, audioBase64, mimeType string) string {
	ctx := c.Request.Context()
	blob, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		vApi.logger.Warnw("assistant: invalid base64 audio", "error", err)
		return ""
	}
	pcm, err := vApi.collaborators.Decoder.DecodePCM(ctx, blob, formatFromMime(mimeType))
	if err != nil {
		vApi.logger.Warnw("assistant: failed to decode posted audio", "error", err)
		return ""
	}
	wav := internal_audio.EncodeWAV(pcm, internal_audio.PlaybackSampleRate)

	if stt := vApi.collaborators.SttPrimary; stt != nil {
		if text, err := stt.Transcribe(ctx, wav); err == nil && text != "" {
			return text
		} else if err != nil {
			vApi.logger.Warnw("assistant: primary stt failed, falling back", "error", err)
		}
	}
	if stt := vApi.collaborators.SttRemote; stt != nil {
		if text, err := stt.Transcribe(ctx, wav); err == nil {
			return text
		} else {
			vApi.logger.Warnw("assistant: remote stt failed", "error", err)
		}
	}
	return ""
}

func (vApi *VoiceApi) synthesize(c *gin.Context, text string) ([]byte, string, error) {
	ctx := c.Request.Context()
	var lastErr error
	if tts := vApi.collaborators.TtsPrimary; tts != nil {
		audio, format, err := tts.Synthesize(ctx, text)
		if err == nil {
			return audio, format, nil
		}
		lastErr = err
	}
	if tts := vApi.collaborators.TtsRemote; tts != nil {
		audio, format, err := tts.Synthesize(ctx, text)
		if err == nil {
			return audio, format, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errNoTts
	}
	return nil, "", lastErr
}

// UsageSummary serves the 24 h rolling ledger summary.
//
// @Router /api/usage/summary [get]
func (vApi *VoiceApi) UsageSummary(c *gin.Context) {
	if vApi.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "usage ledger unavailable"})
		return
	}
	summary, err := vApi.ledger.Summarize(c.Request.Context())
	if err != nil {
		vApi.logger.Errorw("usage: summary query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read usage ledger"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Healthz reports liveness.
//
// @Router /healthz [get]
func (vApi *VoiceApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": vApi.cfg.Name,
		"version": vApi.cfg.Version,
	})
}

var errNoTts = &noTtsError{}

type noTtsError struct{}

func (*noTtsError) Error() string { return "no tts provider available" }

// mimeFromFormat maps a synthesis format tag to a response MIME type.
func mimeFromFormat(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg", "opus":
		return "audio/ogg"
	default:
		return "audio/" + format
	}
}

// formatFromMime maps an upload MIME type to an ffmpeg container tag.
func formatFromMime(mime string) string {
	mime = strings.TrimSpace(strings.Split(mime, ";")[0])
	switch mime {
	case "audio/mpeg":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/webm", "video/webm":
		return "webm"
	case "":
		return "webm"
	default:
		return strings.TrimPrefix(mime, "audio/")
	}
}
