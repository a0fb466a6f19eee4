// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_turn runs the per-session STT → LLM → TTS pipeline. One
// serial worker per session drains the bounded turn queue; utterances
// arriving while a turn is in flight are picked up by the same loop.
package internal_turn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	internal_chat "github.com/fridayai/api/voice-api/internal/chat"
	internal_playback "github.com/fridayai/api/voice-api/internal/playback"
	internal_signaling "github.com/fridayai/api/voice-api/internal/signaling"
	internal_type "github.com/fridayai/api/voice-api/internal/type"
	internal_vad "github.com/fridayai/api/voice-api/internal/vad"
	"github.com/fridayai/pkg/commons"
)

const (
	// TurnQueueLimit bounds utterances waiting for the pipeline; the
	// oldest is evicted when the client talks faster than we process.
	TurnQueueLimit = 3

	// DedupeWindowMs drops a turn whose transcript repeats the previous
	// one within this window (echo of our own playback, double VAD fire).
	DedupeWindowMs = 2500
)

// LlmFallbackReply is spoken when the language model is unreachable.
const LlmFallbackReply = "Comms degraded. Retry in a moment."

// Collaborators are the pluggable providers the pipeline drives. Primary
// entries may be nil when no local binary is configured.
type Collaborators struct {
	SttPrimary internal_type.SpeechToText
	SttRemote  internal_type.SpeechToText
	Llm        internal_type.LanguageModel
	TtsPrimary internal_type.TextToSpeech
	TtsRemote  internal_type.TextToSpeech
	Decoder    internal_type.MediaDecoder
}

// Publisher delivers events to the user's open event streams.
type Publisher interface {
	Deliver(ev internal_signaling.Event)
}

// AssistantPayload is the metadata published with each completed turn.
// Audio rides the media track; the base64 fields stay null on the bus.
type AssistantPayload struct {
	TurnID        string              `json:"turnId"`
	UserEntry     internal_chat.Entry `json:"userEntry"`
	Reply         internal_chat.Entry `json:"reply"`
	AudioBase64   *string             `json:"audioBase64"`
	AudioMimeType *string             `json:"audioMimeType"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock injects a deterministic time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// Pipeline is the per-session turn worker.
type Pipeline struct {
	logger        commons.Logger
	ctx           context.Context
	collaborators Collaborators
	chatLog       *internal_chat.Log
	publisher     Publisher
	pacer         *internal_playback.Pacer
	clock         func() time.Time

	roomID     string
	userPeerID string
	botPeerID  string

	mu               sync.Mutex
	queue            []internal_vad.Turn
	processing       bool
	closed           bool
	lastTranscript   string
	lastTranscriptAt time.Time
}

func NewPipeline(
	ctx context.Context,
	logger commons.Logger,
	collaborators Collaborators,
	chatLog *internal_chat.Log,
	publisher Publisher,
	pacer *internal_playback.Pacer,
	roomID, userPeerID, botPeerID string,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		logger:        logger,
		ctx:           ctx,
		collaborators: collaborators,
		chatLog:       chatLog,
		publisher:     publisher,
		pacer:         pacer,
		clock:         time.Now,
		roomID:        roomID,
		userPeerID:    userPeerID,
		botPeerID:     botPeerID,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Enqueue adds a finalised utterance to the turn queue (bound
// TurnQueueLimit, oldest evicted) and starts the worker if idle.
func (p *Pipeline) Enqueue(turn internal_vad.Turn) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, turn)
	if len(p.queue) > TurnQueueLimit {
		p.queue = p.queue[1:]
		p.logger.Warnw("turn: queue full, evicting oldest utterance",
			"room", p.roomID, "peer", p.userPeerID)
	}
	start := !p.processing
	if start {
		p.processing = true
	}
	p.mu.Unlock()

	if start {
		go p.run()
	}
}

// QueueLen reports the number of queued, unprocessed turns.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops the worker after the in-flight turn and drops queued turns.
// No event is published on behalf of this session afterwards.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.queue = nil
	p.mu.Unlock()
}

// run drains the queue serially. The processing flag is the reentrancy
// guard: exactly one run loop exists per pipeline at any time.
func (p *Pipeline) run() {
	for {
		p.mu.Lock()
		if p.closed || len(p.queue) == 0 {
			p.processing = false
			p.mu.Unlock()
			return
		}
		turn := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.processTurn(turn)
	}
}

func (p *Pipeline) processTurn(turn internal_vad.Turn) {
	wav := internal_audio.EncodeWAV(turn.Samples, turn.SampleRate)

	transcript := p.transcribe(wav)
	if transcript == "" {
		p.publishSystem(internal_signaling.SystemTranscriptionEmpty)
		return
	}

	// De-duplication: the same transcript twice in quick succession is an
	// artefact, not a new request.
	now := p.clock()
	p.mu.Lock()
	if transcript == p.lastTranscript &&
		now.Sub(p.lastTranscriptAt) < DedupeWindowMs*time.Millisecond {
		p.mu.Unlock()
		p.logger.Debugw("turn: dropping duplicate transcript", "transcript", transcript)
		return
	}
	p.lastTranscript = transcript
	p.lastTranscriptAt = now
	p.mu.Unlock()

	userEntry := internal_chat.NewEntry(internal_chat.RoleUser, transcript)
	p.chatLog.Add(p.roomID, userEntry)

	reply, err := p.collaborators.Llm.Complete(p.ctx, transcript)
	if err != nil || reply == "" {
		if err != nil {
			p.logger.Errorw("turn: language model failed, using fallback reply", "error", err)
		}
		reply = LlmFallbackReply
	}
	assistantEntry := internal_chat.NewEntry(internal_chat.RoleAssistant, reply)
	p.chatLog.Add(p.roomID, assistantEntry)

	// Synthesis and decode failures skip playback but never the transcript.
	if audio, format, err := p.synthesize(reply); err != nil {
		p.logger.Errorw("turn: synthesis failed, skipping playback", "error", err)
	} else if pcm, err := p.collaborators.Decoder.DecodePCM(p.ctx, audio, format); err != nil {
		p.logger.Errorw("turn: decode failed, skipping playback", "error", err)
	} else {
		p.pacer.Enqueue(pcm)
	}

	p.publish(internal_signaling.NewEvent(
		internal_signaling.EventAssistant,
		p.botPeerID,
		p.userPeerID,
		p.roomID,
		AssistantPayload{
			TurnID:    uuid.New().String(),
			UserEntry: userEntry,
			Reply:     assistantEntry,
		},
	))
}

// transcribe runs the STT chain: local binary first, then the remote
// service. Failures and empty results both advance the chain.
func (p *Pipeline) transcribe(wav []byte) string {
	if stt := p.collaborators.SttPrimary; stt != nil {
		text, err := stt.Transcribe(p.ctx, wav)
		if err != nil {
			p.logger.Warnw("turn: primary stt failed, falling back", "provider", stt.Name(), "error", err)
		} else if text != "" {
			return text
		}
	}
	if stt := p.collaborators.SttRemote; stt != nil {
		text, err := stt.Transcribe(p.ctx, wav)
		if err != nil {
			p.logger.Warnw("turn: remote stt failed", "provider", stt.Name(), "error", err)
		} else {
			return text
		}
	}
	return ""
}

// synthesize runs the TTS chain: local binary first, then the remote
// service.
func (p *Pipeline) synthesize(text string) ([]byte, string, error) {
	var lastErr error
	if tts := p.collaborators.TtsPrimary; tts != nil {
		audio, format, err := tts.Synthesize(p.ctx, text)
		if err == nil {
			return audio, format, nil
		}
		p.logger.Warnw("turn: primary tts failed, falling back", "provider", tts.Name(), "error", err)
		lastErr = err
	}
	if tts := p.collaborators.TtsRemote; tts != nil {
		audio, format, err := tts.Synthesize(p.ctx, text)
		if err == nil {
			return audio, format, nil
		}
		p.logger.Warnw("turn: remote tts failed", "provider", tts.Name(), "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("turn: no tts provider available")
	}
	return nil, "", lastErr
}

func (p *Pipeline) publishSystem(code string) {
	p.publish(internal_signaling.NewSystemEvent(p.botPeerID, p.userPeerID, p.roomID, code))
}

// publish delivers an event unless the pipeline has been closed; a closed
// session must never emit again.
func (p *Pipeline) publish(ev internal_signaling.Event) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.publisher.Deliver(ev)
}
