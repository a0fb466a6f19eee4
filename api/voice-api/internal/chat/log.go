// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

// Package internal_chat keeps a bounded in-memory append log of chat
// entries per room.
package internal_chat

import (
	"sync"
	"time"
)

// MaxEntriesPerRoom bounds each room log; older entries are evicted FIFO.
const MaxEntriesPerRoom = 250

// Role identifies the author of a chat entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ValidRole reports whether r is one of the accepted chat roles.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Entry is one line of room transcript.
type Entry struct {
	Role      Role   `json:"role"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewEntry stamps an entry with the current UTC time in ISO-8601.
func NewEntry(role Role, message string) Entry {
	return Entry{
		Role:      role,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Log is the process-wide room → transcript mapping. Safe for concurrent
// use; the mutex is held only for map access, never across I/O.
type Log struct {
	mu    sync.Mutex
	rooms map[string][]Entry
}

func NewLog() *Log {
	return &Log{rooms: make(map[string][]Entry)}
}

// Add appends an entry to a room log, evicting the oldest entries beyond
// MaxEntriesPerRoom.
func (l *Log) Add(roomID string, entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := append(l.rooms[roomID], entry)
	if len(entries) > MaxEntriesPerRoom {
		entries = entries[len(entries)-MaxEntriesPerRoom:]
	}
	l.rooms[roomID] = entries
}

// History returns a snapshot of the room log. Callers own the returned
// slice and may not observe later appends.
func (l *Log) History(roomID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.rooms[roomID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
