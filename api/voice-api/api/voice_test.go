// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package voice_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_chat "github.com/fridayai/api/voice-api/internal/chat"
	internal_signaling "github.com/fridayai/api/voice-api/internal/signaling"
	internal_turn "github.com/fridayai/api/voice-api/internal/turn"
	"github.com/fridayai/config"
	"github.com/fridayai/pkg/commons"
)

// ============================================================================
// Fakes and harness
// ============================================================================

type fakeLlm struct {
	reply string
	err   error
}

func (f *fakeLlm) Name() string { return "fake-llm" }

func (f *fakeLlm) Complete(ctx context.Context, input string) (string, error) {
	return f.reply, f.err
}

type fakeTts struct {
	audio []byte
	err   error
}

func (f *fakeTts) Name() string { return "fake-tts" }

func (f *fakeTts) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	return f.audio, "ogg", f.err
}

type harness struct {
	router  *gin.Engine
	hub     *internal_signaling.Hub
	chatLog *internal_chat.Log
}

func newHarness(t *testing.T, collaborators internal_turn.Collaborators) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err)

	hub := internal_signaling.NewHub(logger)
	chatLog := internal_chat.NewLog()
	cfg := &config.AppConfig{Name: "friday-voice-bridge", Version: "test"}
	vApi := NewVoiceApi(cfg, logger, hub, chatLog, collaborators, nil)

	router := gin.New()
	router.GET("/api/webrtc/events", vApi.Events)
	router.POST("/api/webrtc/signal", vApi.Signal)
	router.GET("/api/webrtc/chat", vApi.ChatHistory)
	router.POST("/api/webrtc/chat", vApi.ChatAppend)
	router.POST("/api/webrtc/assistant", vApi.Assistant)
	router.GET("/api/usage/summary", vApi.UsageSummary)
	router.GET("/healthz", vApi.Healthz)
	return &harness{router: router, hub: hub, chatLog: chatLog}
}

func (h *harness) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// Events
// ============================================================================

func TestEvents_RequiresPeerId(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})
	w := h.get(t, "/api/webrtc/events")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// closeNotifyRecorder implements http.CloseNotifier, which gin's Stream
// requires and httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func TestEvents_StreamsReadyFrame(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/webrtc/events?peerId=peer-a", nil).WithContext(ctx)
	w := &closeNotifyRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event: ready\n")
	assert.Contains(t, body, internal_signaling.SystemSignalingConnected)
}

// ============================================================================
// Signal
// ============================================================================

func TestSignal_AcceptsCandidateToAbsentPeer(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})

	w := h.postJSON(t, "/api/webrtc/signal", map[string]interface{}{
		"type": "candidate",
		"from": "peer-a",
		"to":   "peer-ghost",
		"payload": map[string]interface{}{
			"candidate": "candidate:1 1 udp 1 10.0.0.1 3478 typ host",
		},
	})

	assert.Equal(t, http.StatusOK, w.Code, "relaying into the void is fine")
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestSignal_RejectsUnsupportedType(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})
	w := h.postJSON(t, "/api/webrtc/signal", map[string]string{"type": "chat", "from": "peer-a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)
}

func TestSignal_RequiresFrom(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})
	w := h.postJSON(t, "/api/webrtc/signal", map[string]string{"type": "bye"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignal_DefaultsRoom(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})

	sub := h.hub.Subscribe("peer-b", internal_signaling.DefaultRoomID)
	defer h.hub.Unsubscribe(sub)
	// Drop the two pre-queued frames.
	<-sub.Events()
	<-sub.Events()

	w := h.postJSON(t, "/api/webrtc/signal", map[string]interface{}{
		"type":    "bye",
		"from":    "peer-a",
		"to":      "peer-b",
		"payload": nil,
	})
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case frame := <-sub.Events():
		assert.Contains(t, string(frame), `"type":"bye"`)
		assert.Contains(t, string(frame), internal_signaling.DefaultRoomID)
	case <-time.After(time.Second):
		t.Fatal("bye was not relayed to the default room")
	}
}

// ============================================================================
// Chat
// ============================================================================

func TestChat_AppendAndHistory(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})

	w := h.postJSON(t, "/api/webrtc/chat", map[string]string{
		"roomId": "room-1", "role": "user", "message": "hello there",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.get(t, "/api/webrtc/chat?roomId=room-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		History []internal_chat.Entry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.History, 1)
	assert.Equal(t, "hello there", resp.History[0].Message)
}

func TestChat_RejectsBadRoleAndEmptyMessage(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})

	w := h.postJSON(t, "/api/webrtc/chat", map[string]string{"role": "narrator", "message": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.postJSON(t, "/api/webrtc/chat", map[string]string{"role": "user", "message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_PostMirrorsToRoomStreams(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})

	sub := h.hub.Subscribe("peer-b", "room-1")
	defer h.hub.Unsubscribe(sub)
	<-sub.Events()
	<-sub.Events()

	w := h.postJSON(t, "/api/webrtc/chat", map[string]string{
		"roomId": "room-1", "role": "user", "message": "typed hello",
	})
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case frame := <-sub.Events():
		assert.Contains(t, string(frame), `"type":"chat"`)
		assert.Contains(t, string(frame), "typed hello")
	case <-time.After(time.Second):
		t.Fatal("chat entry was not mirrored to the room stream")
	}
}

// ============================================================================
// Assistant
// ============================================================================

func TestAssistant_TranscriptToReplyWithAudio(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{
		Llm:        &fakeLlm{reply: "hi from the assistant"},
		TtsPrimary: &fakeTts{audio: []byte("fake-ogg")},
	})

	w := h.postJSON(t, "/api/webrtc/assistant", map[string]string{
		"roomId": "room-1", "transcript": "hello",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Ok            bool                `json:"ok"`
		Transcript    string              `json:"transcript"`
		Reply         internal_chat.Entry `json:"reply"`
		AudioBase64   *string             `json:"audioBase64"`
		AudioMimeType *string             `json:"audioMimeType"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, "hello", resp.Transcript)
	assert.Equal(t, "hi from the assistant", resp.Reply.Message)
	require.NotNil(t, resp.AudioBase64, "the HTTP path returns audio inline")
	assert.Equal(t, "audio/ogg", *resp.AudioMimeType)

	history := h.chatLog.History("room-1")
	require.Len(t, history, 2)
	assert.Equal(t, internal_chat.RoleAssistant, history[1].Role)
}

func TestAssistant_FallbackTranscript(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{
		Llm:        &fakeLlm{reply: "ok"},
		TtsPrimary: &fakeTts{err: fmt.Errorf("no model")},
	})

	w := h.postJSON(t, "/api/webrtc/assistant", map[string]string{
		"fallbackTranscript": "typed instead",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transcript":"typed instead"`)
	assert.Contains(t, w.Body.String(), `"audioBase64":null`, "synthesis failure degrades to text-only")
}

func TestAssistant_NoUsableTranscript(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{Llm: &fakeLlm{reply: "ok"}})
	w := h.postJSON(t, "/api/webrtc/assistant", map[string]string{"roomId": "room-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssistant_LlmFailureUsesFallbackReply(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{
		Llm: &fakeLlm{err: fmt.Errorf("gateway down")},
	})

	w := h.postJSON(t, "/api/webrtc/assistant", map[string]string{"transcript": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), internal_turn.LlmFallbackReply)
}

// ============================================================================
// Usage and health
// ============================================================================

func TestUsageSummary_UnavailableWithoutLedger(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})
	w := h.get(t, "/api/usage/summary")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, internal_turn.Collaborators{})
	w := h.get(t, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
