// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package internal_audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// WAV round-trip
// ============================================================================

func TestEncodeWAV_RoundTrip(t *testing.T) {
	samples := make([]int16, 4800)
	for i := range samples {
		samples[i] = int16(math.Sin(float64(i)/50.0) * 12000)
	}

	wav := EncodeWAV(samples, PlaybackSampleRate)
	decoded, rate, err := DecodeWAV(wav)
	require.NoError(t, err)

	assert.Equal(t, PlaybackSampleRate, rate)
	assert.Equal(t, samples, decoded, "samples must survive the round trip byte-identically")
}

func TestEncodeWAV_EmptyInput(t *testing.T) {
	wav := EncodeWAV(nil, PlaybackSampleRate)
	decoded, rate, err := DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, PlaybackSampleRate, rate)
	assert.Empty(t, decoded)
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	_, _, err := DecodeWAV([]byte("definitely not a riff container"))
	assert.Error(t, err)

	_, _, err = DecodeWAV(nil)
	assert.Error(t, err)
}

// ============================================================================
// PCM byte packing
// ============================================================================

func TestPCM16Bytes_RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 255, -256}
	assert.Equal(t, samples, BytesToPCM16(PCM16ToBytes(samples)))
}

func TestBytesToPCM16_TruncatesOddTail(t *testing.T) {
	raw := PCM16ToBytes([]int16{100, 200})
	raw = append(raw, 0x7f)
	assert.Equal(t, []int16{100, 200}, BytesToPCM16(raw), "dangling byte is dropped")
}

// ============================================================================
// Downmix
// ============================================================================

func TestDownmixToMono_Stereo(t *testing.T) {
	// Interleaved L/R pairs; mono is the per-frame mean.
	stereo := []int16{100, 300, -200, -400, 1000, 1000}
	assert.Equal(t, []int16{200, -300, 1000}, DownmixToMono(stereo, 2))
}

func TestDownmixToMono_MonoPassThrough(t *testing.T) {
	mono := []int16{1, 2, 3}
	assert.Equal(t, mono, DownmixToMono(mono, 1))
}

// ============================================================================
// RMS
// ============================================================================

func TestRMS_SilenceIsZero(t *testing.T) {
	assert.Zero(t, RMS(make([]int16, 480)))
	assert.Zero(t, RMS(nil))
}

func TestRMS_ConstantAmplitude(t *testing.T) {
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = 3277 // ~0.1 full scale
	}
	assert.InDelta(t, 0.1, RMS(samples), 0.001)
}

// ============================================================================
// Concat / duration
// ============================================================================

func TestConcat_PreservesOrder(t *testing.T) {
	frames := [][]int16{{1, 2}, {3}, nil, {4, 5}}
	assert.Equal(t, []int16{1, 2, 3, 4, 5}, Concat(frames))
}

func TestDurationMs(t *testing.T) {
	assert.Equal(t, 10.0, DurationMs(480, 48000))
	assert.Equal(t, 1000.0, DurationMs(48000, 48000))
	assert.Zero(t, DurationMs(480, 0), "zero rate must not divide by zero")
}
