// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_engine abstracts the WebRTC runtime behind a capability
// interface. The session manager programs against Engine/PeerConnection
// only; the concrete pion-backed implementation is resolved once at
// startup, and a resolution failure downgrades every offer to a
// `wrtc_unavailable` notice instead of crashing signaling.
package internal_engine

import (
	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
)

// SessionDescription mirrors the SDP payload exchanged over signaling.
type SessionDescription struct {
	Type string // "offer", "answer" or "pranswer"
	SDP  string
}

// IceCandidate mirrors the ICE candidate payload exchanged over signaling.
type IceCandidate struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

// ConnectionState is the reduced peer-connection state the session manager
// reacts to.
type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// SinkHandler receives one decoded inbound audio frame. It runs on the
// engine's capture goroutine and must hand off rather than block; the
// frame's sample buffer may be re-used by the engine after it returns.
type SinkHandler func(frame internal_audio.Frame)

// PeerConnection is one negotiated call leg. Implementations own the
// outbound audio track and the inbound track read loop.
type PeerConnection interface {
	// SetRemoteDescription applies the client's offer.
	SetRemoteDescription(sd SessionDescription) error
	// CreateAnswer creates the answer, installs it as the local
	// description and returns it.
	CreateAnswer() (SessionDescription, error)
	// AddICECandidate applies one remote candidate.
	AddICECandidate(c IceCandidate) error

	// OnICECandidate registers the local-candidate callback.
	OnICECandidate(func(IceCandidate))
	// OnConnectionStateChange registers the state callback.
	OnConnectionStateChange(func(ConnectionState))
	// OnInboundFrame attaches the audio sink invoked for every decoded
	// frame of the remote audio track. The sink detaches itself when the
	// track ends or the connection closes.
	OnInboundFrame(handler SinkHandler)

	// WriteFrame pushes one 10ms playback frame
	// (internal_audio.PlaybackFrameSamples PCM-16 mono samples at 48kHz)
	// onto the outbound track.
	WriteFrame(samples []int16) error

	// Close releases the track, the read loop and the underlying
	// connection. Idempotent and best-effort.
	Close() error
}

// Engine creates peer connections.
type Engine interface {
	Name() string
	NewPeerConnection() (PeerConnection, error)
}
