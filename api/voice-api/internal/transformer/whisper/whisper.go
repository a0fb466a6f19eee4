// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_transformer_whisper runs a local whisper.cpp style
// binary as the primary speech-to-text collaborator.
package internal_transformer_whisper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	internal_type "github.com/fridayai/api/voice-api/internal/type"
	"github.com/fridayai/pkg/commons"
	"github.com/fridayai/pkg/utils"
)

const TranscribeTimeout = 30 * time.Second

type whisperSpeechToText struct {
	logger    commons.Logger
	binary    string
	modelFile string
}

// NewWhisperSpeechToText wraps the local STT binary. The binary is invoked
// with the WAV path and prints the transcript on stdout.
func NewWhisperSpeechToText(logger commons.Logger, binary, modelFile string) internal_type.SpeechToText {
	return &whisperSpeechToText{logger: logger, binary: binary, modelFile: modelFile}
}

func (w *whisperSpeechToText) Name() string { return "whisper-stt" }

func (w *whisperSpeechToText) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if w.binary == "" {
		return "", fmt.Errorf("whisper-stt: no binary configured")
	}

	path, cleanup, err := utils.WriteTemp("friday-stt-*.wav", wav)
	if err != nil {
		return "", fmt.Errorf("whisper-stt: failed to stage audio: %w", err)
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, TranscribeTimeout)
	defer cancel()

	args := []string{"--no-timestamps"}
	if w.modelFile != "" {
		args = append(args, "-m", w.modelFile)
	}
	args = append(args, path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, w.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper-stt: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
