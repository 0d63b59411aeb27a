// Package domain contains lobby entities without transport or storage logic.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxUsernameLen = 36

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
	ErrBadStatus       = errors.New("unknown game status")
)

type (
	GameID   string
	PlayerID string
)

// Status of a lobby entry. A planned game has a start time in the future;
// a hosted game is open right now.
type Status string

const (
	StatusPlanned Status = "planned"
	StatusHosted  Status = "hosted"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPlanned, StatusHosted:
		return Status(s), nil
	case "":
		return StatusPlanned, nil
	}
	return "", ErrBadStatus
}

// RuleSet is the house-rule tree attached to a game: general rules that apply
// to everyone, plus per-country rule lists keyed by country name.
type RuleSet struct {
	General         []string            `json:"general"`
	CountrySpecific map[string][]string `json:"countrySpecific"`
}

// Normalize replaces nil slices/maps so a RuleSet is never null on the wire.
func (rs RuleSet) Normalize() RuleSet {
	if rs.General == nil {
		rs.General = []string{}
	}
	if rs.CountrySpecific == nil {
		rs.CountrySpecific = map[string][]string{}
	}
	return rs
}

func (rs RuleSet) Clone() RuleSet {
	out := RuleSet{
		General:         make([]string, len(rs.General)),
		CountrySpecific: make(map[string][]string, len(rs.CountrySpecific)),
	}
	copy(out.General, rs.General)
	for country, rules := range rs.CountrySpecific {
		cp := make([]string, len(rules))
		copy(cp, rules)
		out.CountrySpecific[country] = cp
	}
	return out
}

// Game is the authoritative lobby record. PlayerCount is derived state and
// must equal the roster size whenever the game is observable.
type Game struct {
	ID           GameID     `json:"id"`
	Host         PlayerID   `json:"host"`
	Status       Status     `json:"status"`
	PlayerCount  int        `json:"player_count"`
	RoomID       string     `json:"room_id,omitempty"`
	Rules        RuleSet    `json:"rules"`
	IsHistorical bool       `json:"is_historical"`
	IsModded     bool       `json:"is_modded"`
	PlannedTime  *time.Time `json:"planned_time,omitempty"`
}

// NewGame builds a fresh lobby entry with an empty roster.
func NewGame(host PlayerID, status Status, roomID string, rules RuleSet, historical, modded bool, plannedTime *time.Time) Game {
	return Game{
		ID:           GameID(uuid.NewString()),
		Host:         host,
		Status:       status,
		PlayerCount:  0,
		RoomID:       roomID,
		Rules:        rules.Normalize().Clone(),
		IsHistorical: historical,
		IsModded:     modded,
		PlannedTime:  plannedTime,
	}
}

func (g Game) Clone() Game {
	g.Rules = g.Rules.Clone()
	if g.PlannedTime != nil {
		t := *g.PlannedTime
		g.PlannedTime = &t
	}
	return g
}
