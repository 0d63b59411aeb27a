package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/charge/internal/domain"
)

// Frame is a marshaled outbound event.
type Frame []byte

// Conn is the transport endpoint the fanout delivers to. TrySend must never
// block; the adapter owns the connection and must Close() it itself.
type Conn interface {
	TrySend(Frame) error
}

// Fanout tracks which live connections watch which games and pushes
// snapshots to them after each committed mutation. Delivery is fire and
// forget: a slow or dead subscriber is logged and skipped, never waited on.
type Fanout struct {
	mu     sync.RWMutex
	all    map[Conn]struct{}
	byGame map[domain.GameID]map[Conn]struct{}
	byConn map[Conn]map[domain.GameID]struct{}
}

func NewFanout() *Fanout {
	return &Fanout{
		all:    make(map[Conn]struct{}),
		byGame: make(map[domain.GameID]map[Conn]struct{}),
		byConn: make(map[Conn]map[domain.GameID]struct{}),
	}
}

// SubscribeAll registers a connection for lobby-list events and for every
// game's change events.
func (f *Fanout) SubscribeAll(c Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all[c] = struct{}{}
}

// Subscribe registers a connection for one game's change events.
func (f *Fanout) Subscribe(c Conn, id domain.GameID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byGame[id] == nil {
		f.byGame[id] = make(map[Conn]struct{})
	}
	f.byGame[id][c] = struct{}{}
	if f.byConn[c] == nil {
		f.byConn[c] = make(map[domain.GameID]struct{})
	}
	f.byConn[c][id] = struct{}{}
}

// Unsubscribe removes a connection from every subscription set. The push
// adapter calls this when the connection closes.
func (f *Fanout) Unsubscribe(c Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.all, c)
	for id := range f.byConn[c] {
		delete(f.byGame[id], c)
		if len(f.byGame[id]) == 0 {
			delete(f.byGame, id)
		}
	}
	delete(f.byConn, c)
}

type gameEvent struct {
	Type string          `json:"type"`
	Game domain.Snapshot `json:"game"`
}

type listEvent struct {
	Type  string            `json:"type"`
	Games []domain.Snapshot `json:"games"`
}

// PublishSessionChanged delivers a committed snapshot to every connection
// watching that game, including "all games" watchers, each at most once.
func (f *Fanout) PublishSessionChanged(snap domain.Snapshot) {
	frame, err := json.Marshal(gameEvent{Type: "game_updated", Game: snap})
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("marshal game event")
		return
	}

	f.mu.RLock()
	targets := make([]Conn, 0, len(f.all)+len(f.byGame[snap.ID]))
	for c := range f.all {
		targets = append(targets, c)
	}
	for c := range f.byGame[snap.ID] {
		if _, both := f.all[c]; !both {
			targets = append(targets, c)
		}
	}
	f.mu.RUnlock()

	f.deliver(targets, frame, "game_updated")
}

// PublishListChanged delivers the full lobby list to "all games" watchers.
func (f *Fanout) PublishListChanged(snaps []domain.Snapshot) {
	frame, err := json.Marshal(listEvent{Type: "games_updated", Games: snaps})
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("marshal list event")
		return
	}

	f.mu.RLock()
	targets := make([]Conn, 0, len(f.all))
	for c := range f.all {
		targets = append(targets, c)
	}
	f.mu.RUnlock()

	f.deliver(targets, frame, "games_updated")
}

func (f *Fanout) deliver(targets []Conn, frame Frame, kind string) {
	dropped := 0
	for _, c := range targets {
		if err := c.TrySend(frame); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().Str("module", "app.fanout").Str("event", kind).Int("sent", len(targets)-dropped).Int("dropped", dropped).Msg("partial delivery")
	}
}
