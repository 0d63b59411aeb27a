package domain

import "time"

// Snapshot is an immutable projection of a game plus its resolved roster,
// used for read responses and broadcasts. Every committed mutation produces
// a new Snapshot value; a Snapshot is never edited in place.
type Snapshot struct {
	ID           GameID     `json:"id"`
	Host         PlayerID   `json:"host"`
	Status       Status     `json:"status"`
	PlayerCount  int        `json:"player_count"`
	RoomID       string     `json:"room_id,omitempty"`
	Rules        RuleSet    `json:"rules"`
	IsHistorical bool       `json:"is_historical"`
	IsModded     bool       `json:"is_modded"`
	PlannedTime  *time.Time `json:"planned_time,omitempty"`
	Players      []string   `json:"players"`
}

// MakeSnapshot projects a game and roster into a detached Snapshot.
func MakeSnapshot(g Game, roster []Membership) Snapshot {
	g = g.Clone()
	players := make([]string, 0, len(roster))
	for _, m := range roster {
		players = append(players, m.Username)
	}
	return Snapshot{
		ID:           g.ID,
		Host:         g.Host,
		Status:       g.Status,
		PlayerCount:  g.PlayerCount,
		RoomID:       g.RoomID,
		Rules:        g.Rules,
		IsHistorical: g.IsHistorical,
		IsModded:     g.IsModded,
		PlannedTime:  g.PlannedTime,
		Players:      players,
	}
}
