// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package internal_engine

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	internal_audio "github.com/fridayai/api/voice-api/internal/audio"
	"github.com/fridayai/pkg/commons"
)

// Opus over RTP constants. Opus RTP always signals 2 encoding channels
// (opus/48000/2) per RFC 7587, even for mono voice.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusPayloadType = 111
	opusSDPFmtpLine = "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0"

	rtpBufferSize        = 1500 // max RTP packet size (MTU)
	maxConsecutiveErrors = 50   // max read errors before stopping the sink
)

// pionEngine implements Engine on pion/webrtc with Opus media tracks.
type pionEngine struct {
	logger commons.Logger
	api    *pionwebrtc.API
	config pionwebrtc.Configuration
}

// NewPionEngine resolves the pion-backed WebRTC engine: registers the Opus
// codec and the default interceptors (NACK recovery for audio) and prepares
// the shared API object.
func NewPionEngine(logger commons.Logger, stunServers []string) (Engine, error) {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:    pionwebrtc.MimeTypeOpus,
			ClockRate:   opusSampleRate,
			Channels:    opusChannels,
			SDPFmtpLine: opusSDPFmtpLine,
		},
		PayloadType: opusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("engine: failed to register Opus codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("engine: failed to register interceptors: %w", err)
	}

	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}
	}
	return &pionEngine{
		logger: logger,
		api: pionwebrtc.NewAPI(
			pionwebrtc.WithMediaEngine(mediaEngine),
			pionwebrtc.WithInterceptorRegistry(registry),
		),
		config: pionwebrtc.Configuration{
			ICEServers: []pionwebrtc.ICEServer{{URLs: stunServers}},
		},
	}, nil
}

func (e *pionEngine) Name() string { return "pion" }

func (e *pionEngine) NewPeerConnection() (PeerConnection, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to create peer connection: %w", err)
	}

	track, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypeOpus,
			ClockRate: opusSampleRate,
			Channels:  opusChannels,
		},
		"audio",
		"friday-voice-bot",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("engine: failed to create local audio track: %w", err)
	}
	if _, err := pc.AddTransceiverFromTrack(track, pionwebrtc.RTPTransceiverInit{
		Direction: pionwebrtc.RTPTransceiverDirectionSendonly,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("engine: failed to add sendonly transceiver: %w", err)
	}

	encoder, err := opus.NewEncoder(opusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("engine: failed to create Opus encoder: %w", err)
	}

	conn := &pionPeerConnection{
		logger:     e.logger,
		pc:         pc,
		localTrack: track,
		encoder:    encoder,
		closedCh:   make(chan struct{}),
	}
	conn.install()
	return conn, nil
}

type pionPeerConnection struct {
	logger commons.Logger

	mu          sync.Mutex
	pc          *pionwebrtc.PeerConnection
	localTrack  *pionwebrtc.TrackLocalStaticSample
	encoder     *opus.Encoder
	encodeBuf   [4000]byte
	sink        SinkHandler
	onCandidate func(IceCandidate)
	onState     func(ConnectionState)
	closed      bool
	closedCh    chan struct{}
}

// install wires the pion callbacks once, delegating to the handlers the
// session manager registers later.
func (c *pionPeerConnection) install() {
	c.pc.OnICECandidate(func(cand *pionwebrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		handler := c.onCandidate
		c.mu.Unlock()
		if handler == nil {
			return
		}
		j := cand.ToJSON()
		handler(IceCandidate{
			Candidate:     j.Candidate,
			SDPMid:        j.SDPMid,
			SDPMLineIndex: j.SDPMLineIndex,
		})
	})

	c.pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		c.mu.Lock()
		handler := c.onState
		c.mu.Unlock()
		if handler != nil {
			handler(mapConnectionState(state))
		}
	})

	c.pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		if track.Kind() != pionwebrtc.RTPCodecTypeAudio {
			return
		}
		c.logger.Infow("engine: remote audio track received", "codec", track.Codec().MimeType)
		go c.readRemoteAudio(track)
	})
}

func mapConnectionState(state pionwebrtc.PeerConnectionState) ConnectionState {
	switch state {
	case pionwebrtc.PeerConnectionStateNew:
		return StateNew
	case pionwebrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case pionwebrtc.PeerConnectionStateConnected:
		return StateConnected
	case pionwebrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case pionwebrtc.PeerConnectionStateFailed:
		return StateFailed
	default:
		return StateClosed
	}
}

func (c *pionPeerConnection) SetRemoteDescription(sd SessionDescription) error {
	var sdpType pionwebrtc.SDPType
	switch sd.Type {
	case "offer":
		sdpType = pionwebrtc.SDPTypeOffer
	case "answer":
		sdpType = pionwebrtc.SDPTypeAnswer
	case "pranswer":
		sdpType = pionwebrtc.SDPTypePranswer
	default:
		return fmt.Errorf("engine: unsupported sdp type %q", sd.Type)
	}
	return c.pc.SetRemoteDescription(pionwebrtc.SessionDescription{Type: sdpType, SDP: sd.SDP})
}

func (c *pionPeerConnection) CreateAnswer() (SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("engine: failed to create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return SessionDescription{}, fmt.Errorf("engine: failed to set local description: %w", err)
	}
	// Trickle ICE: candidates follow over signaling, no need to wait for
	// gathering to complete.
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *pionPeerConnection) AddICECandidate(cand IceCandidate) error {
	return c.pc.AddICECandidate(pionwebrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (c *pionPeerConnection) OnICECandidate(handler func(IceCandidate)) {
	c.mu.Lock()
	c.onCandidate = handler
	c.mu.Unlock()
}

func (c *pionPeerConnection) OnConnectionStateChange(handler func(ConnectionState)) {
	c.mu.Lock()
	c.onState = handler
	c.mu.Unlock()
}

func (c *pionPeerConnection) OnInboundFrame(handler SinkHandler) {
	c.mu.Lock()
	c.sink = handler
	c.mu.Unlock()
}

// readRemoteAudio is the sink loop: RTP depacketise, Opus-decode to 48kHz
// mono PCM and hand each frame to the registered sink. The decode buffer is
// re-used between frames; handlers must copy what they keep.
func (c *pionPeerConnection) readRemoteAudio(track *pionwebrtc.TrackRemote) {
	decoder, err := opus.NewDecoder(opusSampleRate, 1)
	if err != nil {
		c.logger.Errorw("engine: failed to create Opus decoder", "error", err)
		return
	}

	buf := make([]byte, rtpBufferSize)
	pcm := make([]int16, opusSampleRate/1000*120) // up to 120ms per Opus packet
	consecutiveErrors := 0

	for {
		select {
		case <-c.closedCh:
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				c.logger.Errorw("engine: too many consecutive track read errors, stopping sink", "lastError", err)
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			c.logger.Debugw("engine: failed to unmarshal RTP packet", "error", err)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		samples, err := decoder.Decode(pkt.Payload, pcm)
		if err != nil {
			c.logger.Debugw("engine: Opus decode failed", "error", err, "payloadSize", len(pkt.Payload))
			continue
		}

		c.mu.Lock()
		sink := c.sink
		c.mu.Unlock()
		if sink != nil {
			sink(internal_audio.Frame{
				Samples:    pcm[:samples],
				SampleRate: opusSampleRate,
				Channels:   1,
			})
		}
	}
}

func (c *pionPeerConnection) WriteFrame(samples []int16) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("engine: connection closed")
	}
	n, err := c.encoder.Encode(samples, c.encodeBuf[:])
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("engine: Opus encode failed: %w", err)
	}
	track := c.localTrack
	data := make([]byte, n)
	copy(data, c.encodeBuf[:n])
	c.mu.Unlock()

	return track.WriteSample(media.Sample{
		Data:     data,
		Duration: internal_audio.PlaybackFrameMs * time.Millisecond,
	})
}

func (c *pionPeerConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closedCh)
	c.sink = nil
	c.mu.Unlock()
	return c.pc.Close()
}
