package domain

import "errors"

// Lobby error taxonomy. The first five are domain-invariant violations:
// terminal for the single operation, never a state change. ErrStore marks a
// durable-storage failure; the caller may retry, the lobby will not.
var (
	ErrNotFound      = errors.New("game not found")
	ErrAlreadyMember = errors.New("player already joined this game")
	ErrNotMember     = errors.New("player is not in this game")
	ErrNotHost       = errors.New("only the host can do that")
	ErrSelfKick      = errors.New("host cannot kick themself")
	ErrStore         = errors.New("store failure")
)
