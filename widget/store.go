package widget

import (
	"sync"
	"time"
)

// StateStore is the client-local state consulted by the recurrence gate.
// Markers are session-scoped and disappear when the browsing session ends;
// histories are durable timestamp lists. The server never reads either, the
// visitor may wipe both at any time.
type StateStore interface {
	Marker(surveyID int) bool
	SetMarker(surveyID int)
	History(surveyID int) []time.Time
	SetHistory(surveyID int, stamps []time.Time)
}

// MemoryStore keeps both scopes in process memory. It stands in for the
// browser's session and local storage in previews and tests.
type MemoryStore struct {
	mu      sync.Mutex
	markers map[int]bool
	history map[int][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markers: map[int]bool{},
		history: map[int][]time.Time{},
	}
}

func (s *MemoryStore) Marker(surveyID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[surveyID]
}

func (s *MemoryStore) SetMarker(surveyID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[surveyID] = true
}

func (s *MemoryStore) History(surveyID int) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamps := s.history[surveyID]
	out := make([]time.Time, len(stamps))
	copy(out, stamps)
	return out
}

func (s *MemoryStore) SetHistory(surveyID int, stamps []time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[surveyID] = stamps
}

// ResetSession drops all session-scoped markers, as a browser does when the
// session ends. Histories survive.
func (s *MemoryStore) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = map[int]bool{}
}
