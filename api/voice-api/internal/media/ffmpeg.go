// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_media decodes compressed audio containers into the
// playback PCM format via a local ffmpeg binary.
package internal_media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	internal_type "github.com/fridayai/api/voice-api/internal/type"
	"github.com/fridayai/pkg/commons"
	"github.com/fridayai/pkg/utils"
)

const DecodeTimeout = 25 * time.Second

type ffmpegDecoder struct {
	logger commons.Logger
	binary string
}

// NewFfmpegDecoder wraps the local ffmpeg binary as the media-decoder
// collaborator: container in, raw signed-16-bit little-endian mono at the
// playback rate out.
func NewFfmpegDecoder(logger commons.Logger, binary string) internal_type.MediaDecoder {
	return &ffmpegDecoder{logger: logger, binary: binary}
}

func (f *ffmpegDecoder) Name() string { return "ffmpeg" }

func (f *ffmpegDecoder) DecodePCM(ctx context.Context, blob []byte, format string) ([]int16, error) {
	if f.binary == "" {
		return nil, fmt.Errorf("ffmpeg: no binary configured")
	}
	if format == "" {
		format = "ogg"
	}

	inPath, cleanupIn, err := utils.WriteTemp("friday-decode-in-*."+format, blob)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to stage input: %w", err)
	}
	defer cleanupIn()

	outPath, cleanupOut, err := utils.TempPath("friday-decode-out-*.pcm")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to reserve output path: %w", err)
	}
	defer cleanupOut()

	runCtx, cancel := context.WithTimeout(ctx, DecodeTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, f.binary,
		"-y",
		"-i", inPath,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(internal_audio.PlaybackSampleRate),
		outPath,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to read decoded output: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("ffmpeg: empty decode output")
	}
	return internal_audio.BytesToPCM16(raw), nil
}
