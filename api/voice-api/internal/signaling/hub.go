// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_signaling is the server-sent-events fan-out keyed by
// (room, peer). It relays offers/answers/ICE/chat/assistant/system events
// between peers and hands server-bot signals to the session manager.
package internal_signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fridayai/pkg/commons"
)

// Subscriber buffer: ~a few seconds of signaling burst. A full buffer means
// the client stopped reading; events for it are dropped, never siblings'.
const subscriberBufferSize = 64

type subscriberKey struct {
	roomID string
	peerID string
}

// Subscriber is one live event stream handle. The hub owns it; peers never
// hold each other's handles.
type Subscriber struct {
	roomID string
	peerID string

	ch        chan []byte
	closeOnce sync.Once
}

// Events yields pre-framed SSE byte chunks ready to write to the wire. The
// channel is closed when the subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// enqueue drops the frame when the subscriber buffer is full. Returns false
// so the hub can log dead subscribers without killing siblings.
func (s *Subscriber) enqueue(frame []byte) bool {
	select {
	case s.ch <- frame:
		return true
	default:
		return false
	}
}

// BotDispatcher receives every signal addressed to a server-bot peer.
type BotDispatcher func(ev Event)

// SessionCloser tears down the call session for (roomID, peerID), if any.
type SessionCloser func(roomID, peerID string)

// Hub is the signaling fan-out. It is constructed once and shared by the
// HTTP surface and the session manager.
type Hub struct {
	logger commons.Logger

	mu          sync.Mutex
	subscribers map[subscriberKey]map[*Subscriber]struct{}

	// Wired after construction to avoid a dependency loop with the
	// session manager.
	dispatchBot  BotDispatcher
	closeSession SessionCloser
}

func NewHub(logger commons.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[subscriberKey]map[*Subscriber]struct{}),
	}
}

// SetBotDispatcher wires the server-bot signal handler.
func (h *Hub) SetBotDispatcher(d BotDispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatchBot = d
}

// SetSessionCloser wires the bye → session teardown hook.
func (h *Hub) SetSessionCloser(c SessionCloser) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeSession = c
}

// Subscribe registers a stream under (roomID, peerID) and pre-queues the
// `ready` event plus a synthetic system `signaling_connected` event.
func (h *Hub) Subscribe(peerID, roomID string) *Subscriber {
	sub := &Subscriber{
		roomID: roomID,
		peerID: peerID,
		ch:     make(chan []byte, subscriberBufferSize),
	}

	key := subscriberKey{roomID: roomID, peerID: peerID}
	h.mu.Lock()
	set, ok := h.subscribers[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subscribers[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	sub.enqueue(FrameReady(peerID, roomID))
	sub.enqueue(FrameData(NewSystemEvent("", peerID, roomID, SystemSignalingConnected)))
	return sub
}

// Unsubscribe deregisters the stream and prunes empty sets.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	key := subscriberKey{roomID: sub.roomID, peerID: sub.peerID}
	h.mu.Lock()
	if set, ok := h.subscribers[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subscribers, key)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// SubscriberCount reports the number of live streams for (roomID, peerID).
func (h *Hub) SubscriberCount(roomID, peerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[subscriberKey{roomID: roomID, peerID: peerID}])
}

// Relay applies the routing policy to one inbound event:
//
//   - bye: close the sender's session (and the addressee's, when set),
//     then fall through so the remote side still observes the bye
//   - server-bot addressee: dispatch to the session manager, no fan-out
//   - addressed events: fan out to every stream under (room, to)
//   - unaddressed events: dropped (no broadcast)
func (h *Hub) Relay(ev Event) {
	h.mu.Lock()
	dispatchBot := h.dispatchBot
	closeSession := h.closeSession
	h.mu.Unlock()

	if ev.Type == EventBye && closeSession != nil {
		closeSession(ev.RoomID, ev.From)
		if ev.To != "" {
			closeSession(ev.RoomID, ev.To)
		}
	}

	if IsBotPeer(ev.To) {
		if dispatchBot != nil {
			dispatchBot(ev)
		}
		return
	}

	if ev.To == "" {
		return
	}
	h.Deliver(ev)
}

// Deliver fans an event out to every subscriber registered under
// (ev.RoomID, ev.To). Dead subscribers are skipped silently.
func (h *Hub) Deliver(ev Event) {
	frame := FrameData(ev)

	h.mu.Lock()
	set := h.subscribers[subscriberKey{roomID: ev.RoomID, peerID: ev.To}]
	subs := make([]*Subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if !sub.enqueue(frame) {
			h.logger.Debugw("signaling: dropping event for slow subscriber",
				"room", ev.RoomID, "peer", ev.To, "type", ev.Type)
		}
	}
}

// Broadcast fans an event out to every subscriber in its room, regardless
// of peer. Used for room-scoped chat mirroring; addressed events go
// through Deliver.
func (h *Hub) Broadcast(ev Event) {
	frame := FrameData(ev)

	h.mu.Lock()
	var subs []*Subscriber
	for key, set := range h.subscribers {
		if key.roomID != ev.RoomID {
			continue
		}
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if !sub.enqueue(frame) {
			h.logger.Debugw("signaling: dropping broadcast for slow subscriber",
				"room", ev.RoomID, "type", ev.Type)
		}
	}
}

// FrameData formats an event as a data-only SSE frame.
func FrameData(ev Event) []byte {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("data: %s\n\n", b))
}

// FrameReady formats the initial named `ready` SSE event.
func FrameReady(peerID, roomID string) []byte {
	b, _ := json.Marshal(map[string]string{"peerId": peerID, "roomId": roomID})
	return []byte(fmt.Sprintf("event: ready\ndata: %s\n\n", b))
}
