// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package utils

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// BinaryProbeTimeout bounds the `which` lookup used to verify that an
// external tool is installed.
const BinaryProbeTimeout = 3 * time.Second

// BinaryAvailable reports whether the named binary resolves on PATH (or is
// an existing absolute path). The probe is best-effort: any error counts as
// "not available".
func BinaryAvailable(ctx context.Context, binary string) bool {
	if binary == "" {
		return false
	}
	if _, err := os.Stat(binary); err == nil {
		return true
	}
	probeCtx, cancel := context.WithTimeout(ctx, BinaryProbeTimeout)
	defer cancel()
	return exec.CommandContext(probeCtx, "which", binary).Run() == nil
}

// WriteTemp writes data to a fresh file under the OS temp directory and
// returns its path together with a cleanup func that unlinks it. Cleanup is
// safe to call on every return path, including after errors.
func WriteTemp(pattern string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", func() {}, err
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return path, cleanup, nil
}

// TempPath reserves a fresh unique file name under the OS temp directory
// without leaving the file behind, for tools that insist on creating their
// own output file.
func TempPath(pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", func() {}, err
	}
	path := f.Name()
	f.Close()
	os.Remove(path)
	return path, func() { os.Remove(path) }, nil
}
