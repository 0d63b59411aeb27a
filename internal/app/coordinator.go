package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/charge/internal/domain"
	"github.com/dkeye/charge/internal/store"
)

// Coordinator serializes every mutation of a given game behind a per-game
// slot: validate, apply, durable write, registry update and broadcast all
// happen while the slot is held, so no two mutations of one game interleave
// and snapshots reach subscribers in commit order. Different games mutate in
// parallel.
type Coordinator struct {
	store  store.Store
	reg    *Registry
	fanout *Fanout

	mu    sync.RWMutex
	slots map[domain.GameID]*sync.Mutex
}

func NewCoordinator(st store.Store, reg *Registry, fanout *Fanout) *Coordinator {
	return &Coordinator{
		store:  st,
		reg:    reg,
		fanout: fanout,
		slots:  make(map[domain.GameID]*sync.Mutex),
	}
}

func (c *Coordinator) slot(id domain.GameID) *sync.Mutex {
	c.mu.RLock()
	mu, ok := c.slots[id]
	c.mu.RUnlock()
	if ok {
		return mu
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if mu, ok = c.slots[id]; ok {
		return mu
	}
	mu = &sync.Mutex{}
	c.slots[id] = mu
	return mu
}

// load returns the current state of a game, filling the registry from the
// store on a miss. Callers must hold the game's slot.
func (c *Coordinator) load(ctx context.Context, id domain.GameID) (State, error) {
	if st, ok := c.reg.Get(id); ok {
		return st, nil
	}
	g, ok, err := c.store.Read(ctx, id)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{}, domain.ErrNotFound
	}
	roster, err := c.store.ReadMembership(ctx, id)
	if err != nil {
		return State{}, err
	}
	st := State{Game: g, Roster: roster}
	c.reg.Put(id, st)
	return st, nil
}

// commit writes the new state durably, then makes it visible: registry first,
// then the snapshot to subscribers. A store failure leaves the registry and
// the subscribers exactly as they were.
func (c *Coordinator) commit(ctx context.Context, st State) (domain.Snapshot, error) {
	if err := c.store.WriteMembership(ctx, st.Game.ID, st.Roster); err != nil {
		return domain.Snapshot{}, err
	}
	if err := c.store.Write(ctx, st.Game); err != nil {
		return domain.Snapshot{}, err
	}
	c.reg.Put(st.Game.ID, st)
	snap := domain.MakeSnapshot(st.Game, st.Roster)
	c.fanout.PublishSessionChanged(snap)
	return snap, nil
}

// Create registers a new game with an empty roster.
func (c *Coordinator) Create(ctx context.Context, host domain.PlayerID, status domain.Status, roomID string, rules domain.RuleSet, historical, modded bool, plannedTime *time.Time) (domain.Snapshot, error) {
	ctx = context.WithoutCancel(ctx)
	g := domain.NewGame(host, status, roomID, rules, historical, modded, plannedTime)

	mu := c.slot(g.ID)
	mu.Lock()
	snap, err := c.commit(ctx, State{Game: g})
	mu.Unlock()
	if err != nil {
		return domain.Snapshot{}, err
	}
	log.Info().Str("module", "app.coordinator").Str("game", string(g.ID)).Str("host", string(host)).Msg("game created")
	c.publishList(ctx)
	return snap, nil
}

// Join admits a player. A player id already on the roster is rejected with
// ErrAlreadyMember and changes nothing.
func (c *Coordinator) Join(ctx context.Context, id domain.GameID, playerID domain.PlayerID, username string) (domain.Snapshot, error) {
	ctx = context.WithoutCancel(ctx)
	m, err := domain.NewMembership(id, playerID, username)
	if err != nil {
		return domain.Snapshot{}, err
	}

	mu := c.slot(id)
	mu.Lock()
	defer mu.Unlock()

	st, err := c.load(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if slices.ContainsFunc(st.Roster, func(e domain.Membership) bool { return e.PlayerID == playerID }) {
		return domain.Snapshot{}, domain.ErrAlreadyMember
	}
	st.Roster = append(st.Roster, m)
	st.Game.PlayerCount = len(st.Roster)

	snap, err := c.commit(ctx, st)
	if err != nil {
		return domain.Snapshot{}, err
	}
	log.Info().Str("module", "app.coordinator").Str("game", string(id)).Str("player", string(playerID)).Msg("player joined")
	return snap, nil
}

// Leave removes a player's own membership.
func (c *Coordinator) Leave(ctx context.Context, id domain.GameID, playerID domain.PlayerID) (domain.Snapshot, error) {
	ctx = context.WithoutCancel(ctx)

	mu := c.slot(id)
	mu.Lock()
	defer mu.Unlock()

	snap, err := c.remove(ctx, id, playerID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	log.Info().Str("module", "app.coordinator").Str("game", string(id)).Str("player", string(playerID)).Msg("player left")
	return snap, nil
}

// Kick removes another player on the host's authority. Only the recorded
// host may kick, and not themself.
func (c *Coordinator) Kick(ctx context.Context, id domain.GameID, hostID, targetID domain.PlayerID) (domain.Snapshot, error) {
	ctx = context.WithoutCancel(ctx)

	mu := c.slot(id)
	mu.Lock()
	defer mu.Unlock()

	st, err := c.load(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if st.Game.Host != hostID {
		return domain.Snapshot{}, domain.ErrNotHost
	}
	if hostID == targetID {
		return domain.Snapshot{}, domain.ErrSelfKick
	}
	snap, err := c.remove(ctx, id, targetID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	log.Info().Str("module", "app.coordinator").Str("game", string(id)).Str("player", string(targetID)).Str("host", string(hostID)).Msg("player kicked")
	return snap, nil
}

// remove drops one membership entry. Callers must hold the game's slot.
func (c *Coordinator) remove(ctx context.Context, id domain.GameID, playerID domain.PlayerID) (domain.Snapshot, error) {
	st, err := c.load(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	i := slices.IndexFunc(st.Roster, func(e domain.Membership) bool { return e.PlayerID == playerID })
	if i < 0 {
		return domain.Snapshot{}, domain.ErrNotMember
	}
	st.Roster = slices.Delete(st.Roster, i, i+1)
	st.Game.PlayerCount = len(st.Roster)
	return c.commit(ctx, st)
}

// UpdateRules replaces the non-membership fields of a game. Roster and
// player count are untouched.
func (c *Coordinator) UpdateRules(ctx context.Context, id domain.GameID, rules domain.RuleSet, plannedTime *time.Time, historical, modded bool) (domain.Snapshot, error) {
	ctx = context.WithoutCancel(ctx)

	mu := c.slot(id)
	mu.Lock()
	defer mu.Unlock()

	st, err := c.load(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	st.Game.Rules = rules.Normalize().Clone()
	st.Game.PlannedTime = plannedTime
	st.Game.IsHistorical = historical
	st.Game.IsModded = modded

	snap, err := c.commit(ctx, st)
	if err != nil {
		return domain.Snapshot{}, err
	}
	log.Info().Str("module", "app.coordinator").Str("game", string(id)).Msg("rules updated")
	return snap, nil
}

// Delete removes a game and its roster. Deleting an absent game succeeds
// silently and broadcasts nothing.
func (c *Coordinator) Delete(ctx context.Context, id domain.GameID) error {
	ctx = context.WithoutCancel(ctx)

	mu := c.slot(id)
	mu.Lock()
	_, ok := c.reg.Get(id)
	if !ok {
		_, found, err := c.store.Read(ctx, id)
		if err != nil {
			mu.Unlock()
			return err
		}
		ok = found
	}
	if !ok {
		mu.Unlock()
		return nil
	}
	if err := c.store.Delete(ctx, id); err != nil {
		mu.Unlock()
		return err
	}
	c.reg.Delete(id)
	mu.Unlock()

	log.Info().Str("module", "app.coordinator").Str("game", string(id)).Msg("game deleted")
	c.publishList(ctx)
	return nil
}

// Get returns the current snapshot of one game.
func (c *Coordinator) Get(ctx context.Context, id domain.GameID) (domain.Snapshot, error) {
	mu := c.slot(id)
	mu.Lock()
	defer mu.Unlock()

	st, err := c.load(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.MakeSnapshot(st.Game, st.Roster), nil
}

// List returns snapshots of every stored game. Registry entries override the
// stored rows; they are what the coordinator has already committed.
func (c *Coordinator) List(ctx context.Context) ([]domain.Snapshot, error) {
	games, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	cached := make(map[domain.GameID]State)
	for _, st := range c.reg.ListAll() {
		cached[st.Game.ID] = st
	}
	out := make([]domain.Snapshot, 0, len(games))
	for _, g := range games {
		if st, ok := cached[g.ID]; ok {
			out = append(out, domain.MakeSnapshot(st.Game, st.Roster))
			continue
		}
		roster, err := c.store.ReadMembership(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.MakeSnapshot(g, roster))
	}
	return out, nil
}

// publishList pushes the full lobby list to "all games" subscribers after a
// list-level change. The mutation is already committed; a failed list read
// only costs the broadcast.
func (c *Coordinator) publishList(ctx context.Context) {
	snaps, err := c.List(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("skipping list broadcast")
		return
	}
	c.fanout.PublishListChanged(snaps)
}
