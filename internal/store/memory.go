package store

import (
	"context"
	"sync"

	"github.com/dkeye/charge/internal/domain"
)

// Memory is an in-process Store for tests and db-less dev runs.
type Memory struct {
	mu      sync.RWMutex
	games   map[domain.GameID]domain.Game
	rosters map[domain.GameID][]domain.Membership

	// FailWrites makes every write return domain.ErrStore; tests use it to
	// exercise commit-failure paths.
	FailWrites bool
}

func NewMemory() *Memory {
	return &Memory{
		games:   make(map[domain.GameID]domain.Game),
		rosters: make(map[domain.GameID][]domain.Membership),
	}
}

func (s *Memory) Read(_ context.Context, id domain.GameID) (domain.Game, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return domain.Game{}, false, nil
	}
	return g.Clone(), true, nil
}

func (s *Memory) Write(_ context.Context, g domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return domain.ErrStore
	}
	s.games[g.ID] = g.Clone()
	return nil
}

func (s *Memory) ReadMembership(_ context.Context, id domain.GameID) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneRoster(s.rosters[id]), nil
}

func (s *Memory) WriteMembership(_ context.Context, id domain.GameID, roster []domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return domain.ErrStore
	}
	s.rosters[id] = domain.CloneRoster(roster)
	return nil
}

func (s *Memory) Delete(_ context.Context, id domain.GameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return domain.ErrStore
	}
	delete(s.games, id)
	delete(s.rosters, id)
	return nil
}

func (s *Memory) List(_ context.Context) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g.Clone())
	}
	return out, nil
}
