package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/charge/internal/domain"
)

func TestMemoryRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	g := domain.NewGame("alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	require.NoError(t, s.Write(ctx, g))

	got, ok, err := s.Read(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, g.Host, got.Host)

	// Mutating the returned copy must not leak into the store.
	got.Host = "mallory"
	again, _, err := s.Read(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerID("alice"), again.Host)
}

func TestMemoryFailWrites(t *testing.T) {
	s := NewMemory()
	s.FailWrites = true
	ctx := context.Background()

	g := domain.NewGame("alice", domain.StatusHosted, "", domain.RuleSet{}, false, false, nil)
	assert.ErrorIs(t, s.Write(ctx, g), domain.ErrStore)
	assert.ErrorIs(t, s.WriteMembership(ctx, g.ID, nil), domain.ErrStore)
	assert.ErrorIs(t, s.Delete(ctx, g.ID), domain.ErrStore)
}
