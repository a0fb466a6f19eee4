// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_transformer_piper runs a local piper-style binary as the
// primary text-to-speech collaborator.
package internal_transformer_piper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	internal_type "github.com/fridayai/api/voice-api/internal/type"
	"github.com/fridayai/pkg/commons"
	"github.com/fridayai/pkg/utils"
)

const SynthesizeTimeout = 30 * time.Second

// OutputFormat is the container the local binary writes.
const OutputFormat = "ogg"

type piperTextToSpeech struct {
	logger commons.Logger
	binary string
}

// NewPiperTextToSpeech wraps the local TTS binary. The binary is invoked
// with the reply text and an output path and writes a container file there.
func NewPiperTextToSpeech(logger commons.Logger, binary string) internal_type.TextToSpeech {
	return &piperTextToSpeech{logger: logger, binary: binary}
}

func (p *piperTextToSpeech) Name() string { return "piper-tts" }

func (p *piperTextToSpeech) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if p.binary == "" {
		return nil, "", fmt.Errorf("piper-tts: no binary configured")
	}

	outPath, cleanup, err := utils.TempPath("friday-tts-*." + OutputFormat)
	if err != nil {
		return nil, "", fmt.Errorf("piper-tts: failed to reserve output path: %w", err)
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, SynthesizeTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, p.binary, "--text", text, "--output", outPath)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("piper-tts: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, "", fmt.Errorf("piper-tts: failed to read output: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("piper-tts: empty synthesis output")
	}
	return audio, OutputFormat, nil
}
