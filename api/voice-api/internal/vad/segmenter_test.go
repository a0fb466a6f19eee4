// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package internal_vad

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	"github.com/fridayai/pkg/commons"
)

// ============================================================================
// Test helpers
// ============================================================================

const (
	testRate     = 48000
	frameSamples = 480 // 10ms at 48kHz
)

// manualClock advances only when told to, one frame interval per Process.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSegmenter(t *testing.T) (*Segmenter, *manualClock, *[]Turn) {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err)

	clock := newManualClock()
	var mu sync.Mutex
	turns := &[]Turn{}
	seg := NewSegmenter(logger, func(turn Turn) {
		mu.Lock()
		*turns = append(*turns, turn)
		mu.Unlock()
	}, WithClock(clock.Now))
	return seg, clock, turns
}

// frameAtRMS builds a 10ms mono frame of constant amplitude whose RMS (on
// the normalised [0,1] scale) approximates the requested level.
func frameAtRMS(rms float64) internal_audio.Frame {
	amplitude := int16(rms * 32768.0)
	samples := make([]int16, frameSamples)
	for i := range samples {
		samples[i] = amplitude
	}
	return internal_audio.Frame{Samples: samples, SampleRate: testRate, Channels: 1}
}

// feed pushes n frames at the given RMS, advancing the clock one frame
// interval before each delivery.
func feed(seg *Segmenter, clock *manualClock, n int, rms float64) {
	frame := frameAtRMS(rms)
	for i := 0; i < n; i++ {
		clock.Advance(10 * time.Millisecond)
		seg.Process(frame)
	}
}

// ============================================================================
// Frame validation
// ============================================================================

func TestProcess_RejectsInvalidFrames(t *testing.T) {
	seg, _, turns := newTestSegmenter(t)

	seg.Process(internal_audio.Frame{Samples: make([]int16, 480), SampleRate: 4000, Channels: 1})
	seg.Process(internal_audio.Frame{Samples: make([]int16, 480), SampleRate: 192000, Channels: 1})
	seg.Process(internal_audio.Frame{Samples: nil, SampleRate: testRate, Channels: 1})

	assert.False(t, seg.InSpeech(), "invalid frames must not open an utterance")
	assert.Empty(t, *turns)
}

// ============================================================================
// Minimum utterance gate
// ============================================================================

func TestProcess_ShortBurstEmitsNoTurn(t *testing.T) {
	seg, clock, turns := newTestSegmenter(t)

	// 400ms of speech, then 3s of silence: below the 500ms minimum.
	feed(seg, clock, 40, 0.020)
	feed(seg, clock, 300, 0.0)

	assert.Empty(t, *turns, "sub-minimum burst must be dropped")
	assert.False(t, seg.InSpeech(), "segmenter must return to idle")
}

func TestProcess_HangoverSilenceDoesNotCountTowardMinimum(t *testing.T) {
	seg, clock, turns := newTestSegmenter(t)

	// 400ms of speech plus 2s of buffered hangover would pass the minimum
	// if silence counted; it must not.
	feed(seg, clock, 40, 0.020)
	feed(seg, clock, 250, 0.001)

	assert.Empty(t, *turns)
}

// ============================================================================
// Silence finalisation
// ============================================================================

func TestProcess_SilenceFinalisesTurn(t *testing.T) {
	seg, clock, turns := newTestSegmenter(t)

	// Leading silence fills the pre-roll ring, then 800ms of speech, then
	// low-level noise until the 2s hangover expires.
	feed(seg, clock, 30, 0.0)
	feed(seg, clock, 80, 0.020)
	assert.True(t, seg.InSpeech())
	feed(seg, clock, 210, 0.001)

	require.Len(t, *turns, 1, "exactly one turn after the hangover")
	turn := (*turns)[0]
	assert.Equal(t, testRate, turn.SampleRate)

	// 80 voiced frames plus the 21 pre-roll frames before the trigger;
	// trailing hangover noise is trimmed.
	wantSamples := (PreRollFrames - 1 + 80) * frameSamples
	assert.Equal(t, wantSamples, len(turn.Samples),
		"turn is the voiced audio plus pre-roll, without hangover tail")
	assert.False(t, seg.InSpeech())
}

func TestProcess_DipsBelowHoldStayInsideUtterance(t *testing.T) {
	seg, clock, turns := newTestSegmenter(t)

	// A brief dip below the hold threshold must not end the utterance.
	feed(seg, clock, 40, 0.020)
	feed(seg, clock, 10, 0.001)
	feed(seg, clock, 40, 0.020)
	assert.True(t, seg.InSpeech(), "dip shorter than the hangover keeps the utterance open")
	feed(seg, clock, 210, 0.0)

	require.Len(t, *turns, 1)
}

// ============================================================================
// Hard cap
// ============================================================================

func TestProcess_HardCapFinalisesAtMaxUtterance(t *testing.T) {
	seg, clock, turns := newTestSegmenter(t)

	// 18.5s of continuous speech: one turn at the cap, then a fresh
	// utterance opens on the ongoing audio.
	feed(seg, clock, 1850, 0.020)

	require.Len(t, *turns, 1, "cap emits exactly one turn")
	turn := (*turns)[0]
	voicedMs := internal_audio.DurationMs(len(turn.Samples), turn.SampleRate)
	assert.LessOrEqual(t, voicedMs, float64(MaxUtteranceMs), "turn never exceeds the cap")
	assert.True(t, seg.InSpeech(), "continued speech opens a new utterance")
}

// ============================================================================
// Reset
// ============================================================================

func TestReset_ClearsBufferedAudio(t *testing.T) {
	seg, clock, turns := newTestSegmenter(t)

	feed(seg, clock, 100, 0.020)
	require.True(t, seg.InSpeech())

	seg.Reset()
	assert.False(t, seg.InSpeech())

	// Silence after reset must not flush the discarded utterance.
	feed(seg, clock, 250, 0.0)
	assert.Empty(t, *turns)
}
