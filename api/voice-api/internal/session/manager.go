// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_session owns the per-(room, user) call sessions behind
// the server-bot peers: peer connection lifecycle, VAD wiring, the turn
// pipeline and the playback pacer. All other components operate on a
// borrowed reference for the duration of a single call into the manager.
package internal_session

import (
	"context"
	"sync"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	internal_chat "github.com/fridayai/api/voice-api/internal/chat"
	internal_engine "github.com/fridayai/api/voice-api/internal/engine"
	internal_playback "github.com/fridayai/api/voice-api/internal/playback"
	internal_signaling "github.com/fridayai/api/voice-api/internal/signaling"
	internal_turn "github.com/fridayai/api/voice-api/internal/turn"
	internal_vad "github.com/fridayai/api/voice-api/internal/vad"
	"github.com/fridayai/pkg/commons"
	"github.com/fridayai/pkg/utils"
)

// PendingCandidateLimit bounds ICE candidates buffered for a (room, user)
// before its offer arrives; the oldest is evicted.
const PendingCandidateLimit = 80

// ToolConfig names the external binaries probed per session and whether the
// remote gateway can stand in for them.
type ToolConfig struct {
	SttBinary         string
	TtsBinary         string
	FfmpegBinary      string
	GatewayConfigured bool
}

type sessionKey struct {
	roomID string
	peerID string
}

// Option configures a Manager.
type Option func(*Manager)

// WithBinaryProbe replaces the `which` probe for tests.
func WithBinaryProbe(probe func(ctx context.Context, binary string) bool) Option {
	return func(m *Manager) {
		m.probe = probe
	}
}

// Manager is the server-bot signal handler and session registry.
type Manager struct {
	logger        commons.Logger
	publisher     internal_turn.Publisher
	chatLog       *internal_chat.Log
	engine        internal_engine.Engine // nil when the runtime failed to resolve
	collaborators internal_turn.Collaborators
	tools         ToolConfig
	probe         func(ctx context.Context, binary string) bool

	mu       sync.Mutex
	sessions map[sessionKey]*Session
	pending  map[sessionKey][]internal_signaling.IceCandidate
}

func NewManager(
	logger commons.Logger,
	publisher internal_turn.Publisher,
	chatLog *internal_chat.Log,
	engine internal_engine.Engine,
	collaborators internal_turn.Collaborators,
	tools ToolConfig,
	opts ...Option,
) *Manager {
	m := &Manager{
		logger:        logger,
		publisher:     publisher,
		chatLog:       chatLog,
		engine:        engine,
		collaborators: collaborators,
		tools:         tools,
		probe:         utils.BinaryAvailable,
		sessions:      make(map[sessionKey]*Session),
		pending:       make(map[sessionKey][]internal_signaling.IceCandidate),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// HandleSignal processes one signal addressed to a server-bot peer.
func (m *Manager) HandleSignal(ev internal_signaling.Event) {
	switch ev.Type {
	case internal_signaling.EventOffer:
		m.handleOffer(ev)
	case internal_signaling.EventCandidate:
		m.handleCandidate(ev)
	case internal_signaling.EventBye:
		m.CloseSession(ev.RoomID, ev.From)
	default:
		// Answers and chat addressed to the bot have no meaning here.
		m.logger.Debugw("session: ignoring signal for bot peer", "type", ev.Type)
	}
}

// handleOffer implements the offer path: validate, restart, create,
// negotiate, answer. Any failure after session creation tears it down and
// leaves recovery to the client's next offer.
func (m *Manager) handleOffer(ev internal_signaling.Event) {
	sd, ok := internal_signaling.ParseSessionDescription(ev.Payload)
	if !ok || sd.Type != "offer" {
		m.emitSystem(ev, internal_signaling.SystemInvalidOfferPayload)
		return
	}

	// A fresh offer always replaces any live session for this (room, user).
	m.CloseSession(ev.RoomID, ev.From)

	if m.engine == nil {
		m.emitSystem(ev, internal_signaling.SystemWrtcUnavailable)
		return
	}
	pc, err := m.engine.NewPeerConnection()
	if err != nil {
		m.logger.Errorw("session: peer connection creation failed", "error", err)
		m.emitSystem(ev, internal_signaling.SystemWrtcUnavailable)
		return
	}

	sess := m.newSession(ev.RoomID, ev.From, ev.To, pc)
	key := sessionKey{roomID: ev.RoomID, peerID: ev.From}
	m.mu.Lock()
	m.sessions[key] = sess
	m.mu.Unlock()

	// Tool availability is advisory; never block signaling on it.
	go m.probeTools(sess)

	if err := pc.SetRemoteDescription(internal_engine.SessionDescription{Type: sd.Type, SDP: sd.SDP}); err != nil {
		m.logger.Errorw("session: failed to set remote description", "error", err)
		m.emitSystem(ev, internal_signaling.SystemOfferHandlingFailed)
		m.CloseSession(ev.RoomID, ev.From)
		return
	}

	m.drainPendingCandidates(key, sess)

	answer, err := pc.CreateAnswer()
	if err != nil {
		m.logger.Errorw("session: failed to create answer", "error", err)
		m.emitSystem(ev, internal_signaling.SystemOfferHandlingFailed)
		m.CloseSession(ev.RoomID, ev.From)
		return
	}

	sess.emit(internal_signaling.NewEvent(
		internal_signaling.EventAnswer,
		sess.botPeerID,
		sess.userPeerID,
		sess.roomID,
		internal_signaling.SessionDescription{Type: answer.Type, SDP: answer.SDP},
	))
}

// handleCandidate applies a candidate to the live session, or buffers it
// (bounded) until the offer arrives. Per-candidate failures are logged,
// never fatal.
func (m *Manager) handleCandidate(ev internal_signaling.Event) {
	ic, ok := internal_signaling.ParseIceCandidate(ev.Payload)
	if !ok {
		m.logger.Debugw("session: dropping malformed candidate payload",
			"room", ev.RoomID, "peer", ev.From)
		return
	}
	cand := internal_engine.IceCandidate{
		Candidate:     ic.Candidate,
		SDPMid:        ic.SDPMid,
		SDPMLineIndex: ic.SDPMLineIndex,
	}

	key := sessionKey{roomID: ev.RoomID, peerID: ev.From}
	m.mu.Lock()
	sess := m.sessions[key]
	if sess == nil {
		buf := append(m.pending[key], internal_signaling.IceCandidate{
			Candidate:     ic.Candidate,
			SDPMid:        ic.SDPMid,
			SDPMLineIndex: ic.SDPMLineIndex,
		})
		if len(buf) > PendingCandidateLimit {
			buf = buf[1:]
		}
		m.pending[key] = buf
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := sess.pc.AddICECandidate(cand); err != nil {
		m.logger.Warnw("session: failed to add ICE candidate", "error", err)
	}
}

// drainPendingCandidates applies candidates buffered before the offer,
// swallowing per-candidate errors, then deletes the buffer.
func (m *Manager) drainPendingCandidates(key sessionKey, sess *Session) {
	m.mu.Lock()
	buffered := m.pending[key]
	delete(m.pending, key)
	m.mu.Unlock()

	for _, ic := range buffered {
		cand := internal_engine.IceCandidate{
			Candidate:     ic.Candidate,
			SDPMid:        ic.SDPMid,
			SDPMLineIndex: ic.SDPMLineIndex,
		}
		if err := sess.pc.AddICECandidate(cand); err != nil {
			m.logger.Debugw("session: buffered candidate rejected", "error", err)
		}
	}
}

// CloseSession tears down the session for (roomID, peerID), if any.
// Idempotent; pending candidates for the key are forgotten.
func (m *Manager) CloseSession(roomID, peerID string) {
	key := sessionKey{roomID: roomID, peerID: peerID}
	m.mu.Lock()
	sess := m.sessions[key]
	delete(m.sessions, key)
	delete(m.pending, key)
	m.mu.Unlock()

	if sess != nil {
		sess.close()
	}
}

// SessionCount reports the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// PendingCandidateCount reports the buffered candidates for (room, user).
func (m *Manager) PendingCandidateCount(roomID, peerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[sessionKey{roomID: roomID, peerID: peerID}])
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[sessionKey]*Session)
	m.pending = make(map[sessionKey][]internal_signaling.IceCandidate)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// probeTools verifies per session that the local binaries exist; a missing
// binary without a gateway key means the pipeline cannot serve this user,
// which the client should surface.
func (m *Manager) probeTools(sess *Session) {
	if m.tools.GatewayConfigured {
		return
	}
	checks := []struct {
		binary string
		code   string
	}{
		{m.tools.SttBinary, internal_signaling.SystemSttBinaryMissing},
		{m.tools.TtsBinary, internal_signaling.SystemTtsBinaryMissing},
		{m.tools.FfmpegBinary, internal_signaling.SystemFfmpegMissing},
	}
	for _, check := range checks {
		if !m.probe(sess.ctx, check.binary) {
			sess.emit(internal_signaling.NewSystemEvent(
				sess.botPeerID, sess.userPeerID, sess.roomID, check.code))
		}
	}
}

// emitSystem notifies the offering peer of a failure code.
func (m *Manager) emitSystem(ev internal_signaling.Event, code string) {
	m.publisher.Deliver(internal_signaling.NewSystemEvent(ev.To, ev.From, ev.RoomID, code))
}

// ============================================================================
// Session
// ============================================================================

// Session is one live call between a user peer and a server bot.
type Session struct {
	manager *Manager
	logger  commons.Logger

	roomID     string
	userPeerID string
	botPeerID  string

	ctx    context.Context
	cancel context.CancelFunc

	pc       internal_engine.PeerConnection
	vad      *internal_vad.Segmenter
	pacer    *internal_playback.Pacer
	pipeline *internal_turn.Pipeline

	mu     sync.Mutex
	closed bool
}

// newSession assembles the media plumbing for one call: sink frames feed
// the VAD, finalised turns feed the pipeline, and the pipeline's decoded
// audio is paced onto the outbound track.
func (m *Manager) newSession(roomID, userPeerID, botPeerID string, pc internal_engine.PeerConnection) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		manager:    m,
		logger:     m.logger,
		roomID:     roomID,
		userPeerID: userPeerID,
		botPeerID:  botPeerID,
		ctx:        ctx,
		cancel:     cancel,
		pc:         pc,
	}

	sess.pacer = internal_playback.NewPacer(m.logger, pc)
	sess.pipeline = internal_turn.NewPipeline(
		ctx, m.logger, m.collaborators, m.chatLog, m.publisher, sess.pacer,
		roomID, userPeerID, botPeerID,
	)
	sess.vad = internal_vad.NewSegmenter(m.logger, func(turn internal_vad.Turn) {
		sess.emit(internal_signaling.NewSystemEvent(
			botPeerID, userPeerID, roomID, internal_signaling.SystemVoiceTurnDetected))
		sess.pipeline.Enqueue(turn)
	})

	pc.OnInboundFrame(func(frame internal_audio.Frame) {
		sess.vad.Process(frame)
	})

	pc.OnICECandidate(func(cand internal_engine.IceCandidate) {
		sess.emit(internal_signaling.NewEvent(
			internal_signaling.EventCandidate,
			botPeerID,
			userPeerID,
			roomID,
			internal_signaling.IceCandidate{
				Candidate:     cand.Candidate,
				SDPMid:        cand.SDPMid,
				SDPMLineIndex: cand.SDPMLineIndex,
			},
		))
	})

	pc.OnConnectionStateChange(func(state internal_engine.ConnectionState) {
		switch state {
		case internal_engine.StateFailed, internal_engine.StateClosed:
			// Close on a fresh goroutine: the callback may run on the
			// engine's signalling thread during pc.Close itself.
			go m.CloseSession(roomID, userPeerID)
		case internal_engine.StateDisconnected:
			// Transient: keep the session, recovery is the client's job.
			sess.emit(internal_signaling.NewSystemEvent(
				botPeerID, userPeerID, roomID, internal_signaling.SystemConnectionDisconnected))
		}
	})

	return sess
}

// emit delivers an event on behalf of this session. After close, the
// session never emits again.
func (s *Session) emit(ev internal_signaling.Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.manager.publisher.Deliver(ev)
}

// close releases every session resource. Each step is independent and
// best-effort so a partial teardown cannot prevent later steps.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.pipeline.Close()
	s.pacer.Stop()
	s.vad.Reset()
	if err := s.pc.Close(); err != nil {
		s.logger.Debugw("session: peer connection close failed", "error", err)
	}
	s.cancel()
	s.logger.Infow("session: closed", "room", s.roomID, "peer", s.userPeerID)
}
