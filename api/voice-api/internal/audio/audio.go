// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_audio holds the PCM-16 format helpers shared by the VAD,
// the turn pipeline and the playback pacer: WAV packaging, channel downmix,
// frame concatenation and RMS level computation.
package internal_audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	AudioBytesPerSample = 2  // LINEAR16 → 2 bytes per sample
	AudioBitsPerSample  = 16 // LINEAR16 → 16 bits per sample
	AudioPCMFormat      = 1  // WAV PCM format tag

	// Playback constants. The WebRTC engine delivers and consumes 10ms
	// frames, so one playback frame is 480 samples at 48kHz.
	PlaybackSampleRate   = 48000
	PlaybackFrameMs      = 10
	PlaybackFrameSamples = PlaybackSampleRate / 1000 * PlaybackFrameMs

	// Inbound frames outside this sample-rate window are rejected.
	MinSampleRate = 8000
	MaxSampleRate = 96000
)

// Frame is one block of captured or synthesised audio. Samples are
// interleaved when Channels > 1.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// DownmixToMono averages interleaved multi-channel PCM into a mono buffer.
// Values are clipped to the int16 range. Mono input is returned as-is.
func DownmixToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		v := sum / channels
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		mono[i] = int16(v)
	}
	return mono
}

// RMS computes the root-mean-square level of a PCM-16 frame, normalised to
// [0, 1] by dividing each sample by 32768 before squaring.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Concat joins frames into one contiguous PCM buffer.
func Concat(frames [][]int16) []int16 {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	out := make([]int16, 0, total)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// PCM16ToBytes serialises samples as signed 16-bit little-endian.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*AudioBytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 parses signed 16-bit little-endian audio. A trailing odd
// byte is dropped.
func BytesToPCM16(data []byte) []int16 {
	n := len(data) / AudioBytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// EncodeWAV packages PCM-16 mono samples as a standard little-endian
// RIFF/WAVE file at the given sample rate.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	pcm := PCM16ToBytes(samples)
	bps := sampleRate * AudioBytesPerSample // mono

	var buf bytes.Buffer
	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // channels
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBitsPerSample))

	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV parses a PCM-16 mono RIFF/WAVE file produced by EncodeWAV and
// returns the samples and sample rate.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a RIFF/WAVE file")
	}
	var sampleRate int
	// Walk chunks after the RIFF header; "fmt " must precede "data".
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, 0, fmt.Errorf("audio: truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("audio: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body:])
			channels := binary.LittleEndian.Uint16(data[body+2:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != AudioPCMFormat || channels != 1 || bits != AudioBitsPerSample {
				return nil, 0, fmt.Errorf("audio: unsupported WAV format (pcm16 mono only)")
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
		case "data":
			if sampleRate == 0 {
				return nil, 0, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			return BytesToPCM16(data[body : body+size]), sampleRate, nil
		}
		// Chunks are word-aligned.
		off = body + size + (size & 1)
	}
	return nil, 0, fmt.Errorf("audio: no data chunk")
}

// DurationMs reports the wall-clock duration of a sample count at a rate.
func DurationMs(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate) * 1000.0
}
