// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_playback meters synthesised PCM into the outbound WebRTC
// audio source at a steady real-time cadence, so TTS bursts are smoothed to
// playback rate rather than flooding the client.
package internal_playback

import (
	"sync"
	"time"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	"github.com/fridayai/pkg/commons"
)

// AudioSource consumes exactly one playback frame
// (internal_audio.PlaybackFrameSamples samples) per call.
type AudioSource interface {
	WriteFrame(samples []int16) error
}

type item struct {
	samples []int16
	cursor  int
}

// Pacer is the per-session outbound queue. It auto-starts on the first
// enqueue of non-empty audio and auto-stops when the queue drains. Safe for
// concurrent use by the turn worker and the teardown path.
type Pacer struct {
	logger commons.Logger
	source AudioSource

	mu      sync.Mutex
	queue   []*item
	running bool
	stopCh  chan struct{}
}

func NewPacer(logger commons.Logger, source AudioSource) *Pacer {
	return &Pacer{logger: logger, source: source}
}

// Enqueue appends decoded 48kHz PCM to the playback queue and starts the
// pacer if idle. Empty buffers are ignored.
func (p *Pacer) Enqueue(samples []int16) {
	if len(samples) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, &item{samples: samples})
	if !p.running {
		p.running = true
		p.stopCh = make(chan struct{})
		go p.run(p.stopCh)
	}
	p.mu.Unlock()
}

// Stop halts the pacer and discards all queued audio. Idempotent.
func (p *Pacer) Stop() {
	p.mu.Lock()
	p.queue = nil
	if p.running {
		p.running = false
		close(p.stopCh)
		p.stopCh = nil
	}
	p.mu.Unlock()
}

// QueuedItems reports the number of undrained queue items.
func (p *Pacer) QueuedItems() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// run emits one frame per tick until the queue drains or the pacer is
// stopped. The source write happens off the lock.
func (p *Pacer) run(stopCh chan struct{}) {
	ticker := time.NewTicker(internal_audio.PlaybackFrameMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, ok := p.nextFrame(stopCh)
			if !ok {
				return
			}
			if err := p.source.WriteFrame(frame); err != nil {
				p.logger.Errorw("playback: audio source rejected frame, stopping", "error", err)
				p.Stop()
				return
			}
		}
	}
}

// nextFrame takes the next playback frame off the queue, zero-padding short
// tails to a full frame. Returns ok=false after marking the pacer stopped
// when the queue is empty (or this run has been superseded).
func (p *Pacer) nextFrame(stopCh chan struct{}) ([]int16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopCh != stopCh {
		return nil, false
	}
	if len(p.queue) == 0 {
		p.running = false
		p.stopCh = nil
		return nil, false
	}

	head := p.queue[0]
	frame := make([]int16, internal_audio.PlaybackFrameSamples)
	n := copy(frame, head.samples[head.cursor:])
	head.cursor += n
	if head.cursor >= len(head.samples) {
		p.queue = p.queue[1:]
	}
	return frame, true
}
