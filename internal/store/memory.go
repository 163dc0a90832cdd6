package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voithos/swiftcode/internal/models"
)

// Memory is an in-process Store. It is the default backend and the one tests
// run against.
type Memory struct {
	mu      sync.RWMutex
	matches map[uuid.UUID]models.Match
	players map[string]models.Player
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		matches: make(map[uuid.UUID]models.Match),
		players: make(map[string]models.Player),
	}
}

func (s *Memory) LoadMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (s *Memory) SaveMatch(ctx context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *Memory) ResetOpenMatches(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for id, m := range s.matches {
		if m.State == models.MatchStateComplete {
			continue
		}
		m.State = models.MatchStateComplete
		m.IsJoinable = false
		m.IsViewable = false
		m.NumPlayers = 0
		m.Players = nil
		m.PlayerNames = nil
		m.WasReset = true
		m.UpdatedAt = now
		s.matches[id] = m
		n++
	}
	return n, nil
}

func (s *Memory) LoadPlayer(ctx context.Context, id string) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := p
	return &c, nil
}

func (s *Memory) SavePlayer(ctx context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = *p
	return nil
}
