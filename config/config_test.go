// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetApplicationConfig_Defaults(t *testing.T) {
	v, err := InitConfig()
	require.NoError(t, err)

	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "friday-voice-bridge", cfg.Name)
	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, "whisper-cli", cfg.SttBinary)
	assert.Equal(t, "piper", cfg.TtsBinary)
	assert.Equal(t, "ffmpeg", cfg.FfmpegBinary)
	assert.Equal(t, "https://api.openai.com/v1", cfg.GatewayURL)
	assert.Empty(t, cfg.GatewayToken, "no api key out of the box")
	assert.NotEmpty(t, cfg.SttModels)
	assert.Equal(t, "ogg", cfg.TtsFormat)
}

func TestGetApplicationConfig_EnvOverride(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("STT_BINARY", "")

	v, err := InitConfig()
	require.NoError(t, err)

	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Empty(t, cfg.SttBinary, "an empty binary disables the local collaborator")
}
