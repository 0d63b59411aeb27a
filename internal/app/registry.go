package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/charge/internal/domain"
)

// State is one registry entry: the authoritative in-memory copy of a game
// and its roster.
type State struct {
	Game   domain.Game
	Roster []domain.Membership
}

func (s State) clone() State {
	return State{Game: s.Game.Clone(), Roster: domain.CloneRoster(s.Roster)}
}

// Registry is the process-lifetime cache of active games. Entries appear
// lazily on first access and leave only through an explicit Delete. Values
// are stored and returned as copies; the coordinator is the only writer.
type Registry struct {
	mu    sync.RWMutex
	games map[domain.GameID]State
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[domain.GameID]State)}
}

func (r *Registry) Get(id domain.GameID) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.games[id]
	if !ok {
		return State{}, false
	}
	return st.clone(), true
}

func (r *Registry) Put(id domain.GameID, st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[id] = st.clone()
	log.Debug().Str("module", "app.registry").Str("game", string(id)).Int("players", len(st.Roster)).Msg("cached game state")
}

func (r *Registry) Delete(id domain.GameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, id)
	log.Info().Str("module", "app.registry").Str("game", string(id)).Msg("evicted game")
}

func (r *Registry) ListAll() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]State, 0, len(r.games))
	for _, st := range r.games {
		out = append(out, st.clone())
	}
	return out
}
