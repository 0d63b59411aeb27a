package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/charge/internal/domain"
	"github.com/dkeye/charge/internal/store"
)

// captureConn records every frame it is handed.
type captureConn struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *captureConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *captureConn) events(t *testing.T) []capturedEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]capturedEvent, 0, len(c.frames))
	for _, f := range c.frames {
		var ev capturedEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

type capturedEvent struct {
	Type  string            `json:"type"`
	Game  domain.Snapshot   `json:"game"`
	Games []domain.Snapshot `json:"games"`
}

func newTestCoordinator() (*Coordinator, *store.Memory, *Fanout) {
	mem := store.NewMemory()
	fanout := NewFanout()
	return NewCoordinator(mem, NewRegistry(), fanout), mem, fanout
}

func TestCreateJoinKickScenario(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusPlanned, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PlayerCount)
	assert.Empty(t, snap.Players)

	snap, err = coord.Join(ctx, snap.ID, "bob-id", "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PlayerCount)
	assert.Equal(t, []string{"bob"}, snap.Players)

	_, err = coord.Join(ctx, snap.ID, "bob-id", "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	got, err := coord.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PlayerCount)

	snap, err = coord.Kick(ctx, snap.ID, "alice", "bob-id")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PlayerCount)
	assert.Empty(t, snap.Players)

	_, err = coord.Kick(ctx, snap.ID, "alice", "bob-id")
	assert.ErrorIs(t, err, domain.ErrNotMember)
}

func TestLeaveTwiceNeverGoesNegative(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)

	snap, err = coord.Join(ctx, snap.ID, "carol-id", "carol")
	require.NoError(t, err)
	require.Equal(t, 1, snap.PlayerCount)

	snap, err = coord.Leave(ctx, snap.ID, "carol-id")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PlayerCount)

	_, err = coord.Leave(ctx, snap.ID, "carol-id")
	assert.ErrorIs(t, err, domain.ErrNotMember)

	got, err := coord.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.PlayerCount)
}

func TestKickAuthority(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)
	_, err = coord.Join(ctx, snap.ID, "bob-id", "bob")
	require.NoError(t, err)

	_, err = coord.Kick(ctx, snap.ID, "mallory", "bob-id")
	assert.ErrorIs(t, err, domain.ErrNotHost)

	_, err = coord.Kick(ctx, snap.ID, "alice", "alice")
	assert.ErrorIs(t, err, domain.ErrSelfKick)

	got, err := coord.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PlayerCount)
	assert.Equal(t, []string{"bob"}, got.Players)
}

func TestConcurrentDuplicateJoin(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)

	const attempts = 16
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Join(ctx, snap.ID, "bob-id", "bob")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, domain.ErrAlreadyMember)
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)

	got, err := coord.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PlayerCount)
	assert.Len(t, got.Players, 1)
}

func TestConcurrentDistinctJoinsKeepCountConsistent(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)

	const players = 24
	var wg sync.WaitGroup
	for i := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := domain.PlayerID(fmt.Sprintf("p-%02d", i))
			_, err := coord.Join(ctx, snap.ID, id, "player-"+string(id))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := coord.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, players, got.PlayerCount)
	assert.Len(t, got.Players, players)
}

func TestStoreFailureLeavesNoTrace(t *testing.T) {
	coord, mem, fanout := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)

	watcher := &captureConn{}
	fanout.Subscribe(watcher, snap.ID)

	mem.FailWrites = true
	_, err = coord.Join(ctx, snap.ID, "bob-id", "bob")
	assert.ErrorIs(t, err, domain.ErrStore)

	mem.FailWrites = false
	got, err := coord.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.PlayerCount)
	assert.Empty(t, got.Players)
	assert.Empty(t, watcher.events(t))
}

func TestMutationsBroadcastInCommitOrder(t *testing.T) {
	coord, _, fanout := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)

	watcher := &captureConn{}
	fanout.Subscribe(watcher, snap.ID)

	_, err = coord.Join(ctx, snap.ID, "bob-id", "bob")
	require.NoError(t, err)
	_, err = coord.Join(ctx, snap.ID, "carol-id", "carol")
	require.NoError(t, err)
	_, err = coord.Leave(ctx, snap.ID, "bob-id")
	require.NoError(t, err)

	events := watcher.events(t)
	require.Len(t, events, 3)
	counts := []int{events[0].Game.PlayerCount, events[1].Game.PlayerCount, events[2].Game.PlayerCount}
	assert.Equal(t, []int{1, 2, 1}, counts)
	for _, ev := range events {
		assert.Equal(t, "game_updated", ev.Type)
		assert.Len(t, ev.Game.Players, ev.Game.PlayerCount)
	}
}

func TestDeleteIsIdempotentAndQuiet(t *testing.T) {
	coord, _, fanout := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)

	watcher := &captureConn{}
	fanout.SubscribeAll(watcher)

	require.NoError(t, coord.Delete(ctx, snap.ID))
	first := len(watcher.events(t))
	require.Positive(t, first)

	require.NoError(t, coord.Delete(ctx, snap.ID))
	assert.Equal(t, first, len(watcher.events(t)), "second delete must broadcast nothing")

	_, err = coord.Get(ctx, snap.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadThroughFromStore(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	g := domain.NewGame("alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	g.PlayerCount = 1
	require.NoError(t, mem.Write(ctx, g))
	require.NoError(t, mem.WriteMembership(ctx, g.ID, []domain.Membership{
		{GameID: g.ID, PlayerID: "bob-id", Username: "bob"},
	}))

	// Fresh registry: first access must fill it from the store.
	coord := NewCoordinator(mem, NewRegistry(), NewFanout())
	snap, err := coord.Join(ctx, g.ID, "carol-id", "carol")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.PlayerCount)
	assert.Equal(t, []string{"bob", "carol"}, snap.Players)
}

func TestUpdateRulesDoesNotTouchRoster(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	ctx := context.Background()

	snap, err := coord.Create(ctx, "alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)
	_, err = coord.Join(ctx, snap.ID, "bob-id", "bob")
	require.NoError(t, err)

	rules := domain.RuleSet{
		General:         []string{"no world conquest"},
		CountrySpecific: map[string][]string{"Austria": {"defensive only"}},
	}
	snap, err = coord.UpdateRules(ctx, snap.ID, rules, nil, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PlayerCount)
	assert.Equal(t, []string{"bob"}, snap.Players)
	assert.Equal(t, rules.General, snap.Rules.General)
	assert.True(t, snap.IsHistorical)
}

func TestJoinUnknownGame(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	_, err := coord.Join(context.Background(), "no-such-game", "bob-id", "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListIncludesUncachedGames(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	g := domain.NewGame("alice", domain.StatusPlanned, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, mem.Write(ctx, g))

	coord := NewCoordinator(mem, NewRegistry(), NewFanout())
	snap, err := coord.Create(ctx, "dave", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, err)

	snaps, err := coord.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	ids := []domain.GameID{snaps[0].ID, snaps[1].ID}
	assert.Contains(t, ids, g.ID)
	assert.Contains(t, ids, snap.ID)
}
