// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package utils

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryAvailable(t *testing.T) {
	ctx := context.Background()

	assert.False(t, BinaryAvailable(ctx, ""))
	assert.False(t, BinaryAvailable(ctx, "definitely-not-a-real-binary-xyz"))

	// An existing absolute path counts as available without a PATH lookup.
	path, cleanup, err := WriteTemp("probe-*.bin", []byte{0x00})
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, BinaryAvailable(ctx, path))
}

func TestWriteTemp_RoundTripAndCleanup(t *testing.T) {
	path, cleanup, err := WriteTemp("audio-*.wav", []byte("RIFF....WAVE"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF....WAVE"), data)

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "cleanup must unlink the file")

	// Cleanup is safe to call twice.
	cleanup()
}

func TestTempPath_ReservesWithoutCreating(t *testing.T) {
	path, cleanup, err := TempPath("tts-*.ogg")
	require.NoError(t, err)
	defer cleanup()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "the reserved path must not exist yet")

	require.NoError(t, os.WriteFile(path, []byte("ogg"), 0o600))
	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
