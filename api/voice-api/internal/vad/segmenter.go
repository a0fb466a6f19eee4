// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_vad segments one session's inbound PCM stream into
// utterances. Detection is dual-threshold RMS with a silence hangover: the
// start threshold is higher than the hold threshold so brief dips inside a
// word do not end the utterance, and a pre-roll ring keeps the frames just
// before the trigger so word onsets are not clipped.
package internal_vad

import (
	"sync"
	"time"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	"github.com/fridayai/pkg/commons"
)

const (
	StartThresholdRMS = 0.015
	HoldThresholdRMS  = 0.008

	SilenceHangoverMs = 2000
	MinUtteranceMs    = 500
	MaxUtteranceMs    = 18000

	// PreRollFrames is counted in engine frames. The engine delivers 10ms
	// frames, so 22 frames is ~220ms of onset context.
	PreRollFrames = 22
)

// Turn is one finalised utterance: contiguous PCM-16 mono samples at the
// rate the utterance was captured at.
type Turn struct {
	Samples    []int16
	SampleRate int
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithClock injects a deterministic time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Segmenter) {
		s.clock = clock
	}
}

// Segmenter consumes inbound frames from the audio sink callback and emits
// finalised turns. Safe for concurrent use; the sink thread and the
// teardown path may race Process against Reset.
type Segmenter struct {
	logger commons.Logger
	onTurn func(Turn)
	clock  func() time.Time

	mu                 sync.Mutex
	inSpeech           bool
	lastVoiceAt        time.Time
	utteranceStartedAt time.Time
	sampleRate         int
	voicedSamples      int
	frames             [][]int16
	lastVoiceFrame     int
	preRoll            [][]int16
}

// NewSegmenter builds a segmenter that calls onTurn for every finalised
// utterance. onTurn runs on the caller's goroutine (the audio sink thread)
// and must hand off rather than block.
func NewSegmenter(logger commons.Logger, onTurn func(Turn), opts ...Option) *Segmenter {
	s := &Segmenter{
		logger: logger,
		onTurn: onTurn,
		clock:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Process consumes one inbound frame. Frames with a sample rate outside
// [8000, 96000] Hz or without samples are rejected.
func (s *Segmenter) Process(frame internal_audio.Frame) {
	if frame.SampleRate < internal_audio.MinSampleRate ||
		frame.SampleRate > internal_audio.MaxSampleRate ||
		len(frame.Samples) == 0 {
		return
	}

	channels := frame.Channels
	if channels < 1 {
		channels = 1
	}
	mixed := internal_audio.DownmixToMono(frame.Samples, channels)

	// Copy before buffering: the audio sink re-uses its PCM buffers, so a
	// retained reference would be overwritten by the next frame.
	mono := make([]int16, len(mixed))
	copy(mono, mixed)

	now := s.clock()
	rms := internal_audio.RMS(mono)

	var finalised *Turn

	s.mu.Lock()
	s.preRoll = append(s.preRoll, mono)
	if len(s.preRoll) > PreRollFrames {
		s.preRoll = s.preRoll[1:]
	}

	if !s.inSpeech {
		if rms >= StartThresholdRMS {
			// Seed the utterance with the pre-roll (which already includes
			// the triggering frame, appended above). Only the triggering
			// frame counts as voiced; pre-roll context never pushes a
			// too-short burst past the minimum-utterance gate.
			s.inSpeech = true
			s.sampleRate = frame.SampleRate
			s.utteranceStartedAt = now
			s.lastVoiceAt = now
			s.frames = make([][]int16, len(s.preRoll))
			copy(s.frames, s.preRoll)
			s.lastVoiceFrame = len(s.frames)
			s.voicedSamples = len(mono)
		}
	} else {
		s.frames = append(s.frames, mono)
		if rms >= HoldThresholdRMS {
			s.lastVoiceAt = now
			s.lastVoiceFrame = len(s.frames)
			s.voicedSamples += len(mono)
		}
		finalised = s.evaluateLocked(now)
	}
	s.mu.Unlock()

	if finalised != nil {
		s.onTurn(*finalised)
	}
}

// evaluateLocked decides whether the in-flight utterance ends now. Called
// with s.mu held; returns a turn to emit, or nil. The minimum and maximum
// gates run against voiced samples so buffered hangover silence cannot
// promote a sub-minimum burst into a turn.
func (s *Segmenter) evaluateLocked(now time.Time) *Turn {
	utteranceMs := internal_audio.DurationMs(s.voicedSamples, s.sampleRate)
	silenceMs := float64(now.Sub(s.lastVoiceAt).Milliseconds())

	if utteranceMs < MaxUtteranceMs && silenceMs < SilenceHangoverMs {
		return nil
	}

	// Frames buffered after the last voiced frame are hangover silence;
	// the emitted turn ends where the voice did.
	frames := s.frames
	if s.lastVoiceFrame <= len(frames) {
		frames = frames[:s.lastVoiceFrame]
	}
	samples := internal_audio.Concat(frames)
	sampleRate := s.sampleRate
	s.resetLocked()

	// Too short to be a real turn: drop, back to idle.
	if utteranceMs < MinUtteranceMs {
		s.logger.Debugw("vad: dropping short utterance", "voicedMs", utteranceMs)
		return nil
	}
	return &Turn{Samples: samples, SampleRate: sampleRate}
}

// Reset returns the segmenter to idle and clears all buffered audio.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.preRoll = nil
}

func (s *Segmenter) resetLocked() {
	s.inSpeech = false
	s.frames = nil
	s.lastVoiceFrame = 0
	s.voicedSamples = 0
	s.sampleRate = 0
}

// InSpeech reports whether an utterance is currently open.
func (s *Segmenter) InSpeech() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inSpeech
}
