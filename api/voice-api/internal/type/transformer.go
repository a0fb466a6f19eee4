// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_type declares the collaborator interfaces the turn
// pipeline is built against. Concrete speech-to-text, text-to-speech,
// language-model and media-decoder providers live under
// internal/transformer and internal/media.
package internal_type

import "context"

// SpeechToText turns a WAV container (PCM-16 mono) into a transcript.
// An empty transcript with a nil error means "nothing recognised" and
// triggers the next provider in the chain.
type SpeechToText interface {
	Name() string
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// TextToSpeech synthesises spoken audio for a reply. The result is a
// compressed audio blob plus its container format tag (e.g. "ogg", "mp3").
type TextToSpeech interface {
	Name() string
	Synthesize(ctx context.Context, text string) (audio []byte, format string, err error)
}

// LanguageModel produces the assistant reply for a user transcript.
type LanguageModel interface {
	Name() string
	Complete(ctx context.Context, input string) (string, error)
}

// MediaDecoder decodes a compressed audio blob into PCM-16 mono samples at
// the playback sample rate (48kHz).
type MediaDecoder interface {
	Name() string
	DecodePCM(ctx context.Context, blob []byte, format string) ([]int16, error)
}
