package domain

// Membership is a player's admission record to one game. Entries are created
// by join and removed by leave/kick, never mutated; a rejoin is a new entry.
type Membership struct {
	GameID   GameID   `json:"game_id"`
	PlayerID PlayerID `json:"player_id"`
	Username string   `json:"username"`
}

// NewMembership validates the display name and keeps construction obvious.
func NewMembership(gameID GameID, playerID PlayerID, username string) (Membership, error) {
	if len(username) == 0 {
		return Membership{}, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return Membership{}, ErrUsernameTooLong
	}
	return Membership{GameID: gameID, PlayerID: playerID, Username: username}, nil
}

// CloneRoster deep-copies a membership list so cached rosters cannot be
// mutated through a returned reference.
func CloneRoster(roster []Membership) []Membership {
	out := make([]Membership, len(roster))
	copy(out, roster)
	return out
}
