// Package memory keeps an agent's short-term conversation inside a token
// budget and its long-term notes and tool statistics in durable storage.
package memory

import (
	"sort"
	"sync"
)

// Note is a long-term topic/text entry. Notes are never evicted.
type Note struct {
	Topic string `json:"topic" db:"topic"`
	Text  string `json:"text" db:"text"`
}

// ToolStat counts tool invocations for one agent.
type ToolStat struct {
	Tool     string `json:"tool" db:"tool"`
	Calls    int    `json:"calls" db:"calls"`
	Failures int    `json:"failures" db:"failures"`
}

// NotesStore persists long-term notes and tool statistics keyed by agent identity.
type NotesStore interface {
	Notes(agentID string) ([]Note, error)
	PutNote(agentID, topic, text string) error
	DeleteNote(agentID, topic string) error
	RecordToolUse(agentID, tool string, ok bool) error
	TopTools(agentID string, n int) ([]ToolStat, error)
	Close() error
}

// MemStore is an in-process NotesStore.
type MemStore struct {
	mu    sync.RWMutex
	notes map[string]map[string]string
	stats map[string]map[string]*ToolStat
}

func NewMemStore() *MemStore {
	return &MemStore{
		notes: make(map[string]map[string]string),
		stats: make(map[string]map[string]*ToolStat),
	}
}

func (s *MemStore) Notes(agentID string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, 0, len(s.notes[agentID]))
	for topic, text := range s.notes[agentID] {
		out = append(out, Note{Topic: topic, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (s *MemStore) PutNote(agentID, topic, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notes[agentID] == nil {
		s.notes[agentID] = make(map[string]string)
	}
	s.notes[agentID][topic] = text
	return nil
}

func (s *MemStore) DeleteNote(agentID, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes[agentID], topic)
	return nil
}

func (s *MemStore) RecordToolUse(agentID, tool string, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats[agentID] == nil {
		s.stats[agentID] = make(map[string]*ToolStat)
	}
	st := s.stats[agentID][tool]
	if st == nil {
		st = &ToolStat{Tool: tool}
		s.stats[agentID][tool] = st
	}
	st.Calls++
	if !ok {
		st.Failures++
	}
	return nil
}

func (s *MemStore) TopTools(agentID string, n int) ([]ToolStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ToolStat, 0, len(s.stats[agentID]))
	for _, st := range s.stats[agentID] {
		out = append(out, *st)
	}
	sortToolStats(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }

func sortToolStats(stats []ToolStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Calls != stats[j].Calls {
			return stats[i].Calls > stats[j].Calls
		}
		return stats[i].Tool < stats[j].Tool
	})
}
