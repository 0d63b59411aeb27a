package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/charge/internal/domain"
)

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewRegistry()
	g := domain.NewGame("alice", domain.StatusHosted, "", domain.RuleSet{General: []string{"a"}}, false, false, nil)
	r.Put(g.ID, State{Game: g, Roster: []domain.Membership{{GameID: g.ID, PlayerID: "p1", Username: "bob"}}})

	st, ok := r.Get(g.ID)
	require.True(t, ok)
	st.Game.Rules.General[0] = "mutated"
	st.Roster[0].Username = "mutated"

	again, ok := r.Get(g.ID)
	require.True(t, ok)
	assert.Equal(t, "a", again.Game.Rules.General[0])
	assert.Equal(t, "bob", again.Roster[0].Username)
}

func TestRegistryMissAndDelete(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nope")
	assert.False(t, ok)

	g := domain.NewGame("alice", domain.StatusPlanned, "", domain.RuleSet{}, false, false, nil)
	r.Put(g.ID, State{Game: g})
	r.Delete(g.ID)
	_, ok = r.Get(g.ID)
	assert.False(t, ok)
}

func TestRegistryListAll(t *testing.T) {
	r := NewRegistry()
	g1 := domain.NewGame("alice", domain.StatusPlanned, "", domain.RuleSet{}, false, false, nil)
	g2 := domain.NewGame("bob", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	r.Put(g1.ID, State{Game: g1})
	r.Put(g2.ID, State{Game: g2})

	all := r.ListAll()
	assert.Len(t, all, 2)
}
