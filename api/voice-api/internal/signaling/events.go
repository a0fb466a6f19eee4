// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package internal_signaling

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types carried on the signaling bus.
const (
	EventOffer     = "offer"
	EventAnswer    = "answer"
	EventCandidate = "candidate"
	EventBye       = "bye"
	EventChat      = "chat"
	EventSystem    = "system"
	EventAssistant = "assistant"
)

// System event codes (payload {"message": <code>}).
const (
	SystemSignalingConnected     = "signaling_connected"
	SystemConnectionDisconnected = "connection_disconnected"
	SystemInvalidOfferPayload    = "invalid_offer_payload"
	SystemOfferHandlingFailed    = "offer_handling_failed"
	SystemWrtcUnavailable        = "wrtc_unavailable"
	SystemSttBinaryMissing       = "stt_binary_missing"
	SystemTtsBinaryMissing       = "tts_binary_missing"
	SystemFfmpegMissing          = "ffmpeg_missing"
	SystemVoiceTurnDetected      = "voice_turn_detected"
	SystemTranscriptionEmpty     = "transcription_empty"
)

// BotPeerPrefix marks synthetic server-side peers: signals addressed to a
// peer with this prefix are dispatched to the in-process session manager
// instead of being relayed to another client.
const BotPeerPrefix = "friday-voice-bot-"

// DefaultRoomID is used when a client omits roomId.
const DefaultRoomID = "friday-default-room"

// Event is one message on the signaling bus. Payload stays opaque until a
// shape check validates it against a fixed schema.
type Event struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	To      string          `json:"to,omitempty"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      string          `json:"at"`
}

// NewEvent builds a stamped event; payload marshal failures degrade to a
// null payload rather than blocking the signal.
func NewEvent(eventType, from, to, roomID string, payload interface{}) Event {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	return Event{
		Type:    eventType,
		From:    from,
		To:      to,
		RoomID:  roomID,
		Payload: raw,
		At:      time.Now().UTC().Format(time.RFC3339),
	}
}

// SystemPayload is the fixed shape of `system` event payloads.
type SystemPayload struct {
	Message string `json:"message"`
}

// NewSystemEvent addresses a system code from a server peer to a client peer.
func NewSystemEvent(from, to, roomID, code string) Event {
	return NewEvent(EventSystem, from, to, roomID, SystemPayload{Message: code})
}

// IsBotPeer reports whether the peer id names an in-process server bot.
func IsBotPeer(peerID string) bool {
	return strings.HasPrefix(peerID, BotPeerPrefix)
}

// SessionDescription is the validated shape of offer/answer payloads.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ParseSessionDescription shape-checks an opaque payload into a
// SessionDescription. Anything without a known type and a non-empty sdp
// string is rejected.
func ParseSessionDescription(raw json.RawMessage) (*SessionDescription, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var sd SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, false
	}
	switch sd.Type {
	case "offer", "answer", "pranswer":
	default:
		return nil, false
	}
	if sd.SDP == "" {
		return nil, false
	}
	return &sd, true
}

// IceCandidate is the validated shape of candidate payloads.
type IceCandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ParseIceCandidate shape-checks an opaque payload into an IceCandidate.
func ParseIceCandidate(raw json.RawMessage) (*IceCandidate, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var ic IceCandidate
	if err := json.Unmarshal(raw, &ic); err != nil {
		return nil, false
	}
	if ic.Candidate == "" {
		return nil, false
	}
	return &ic, true
}
