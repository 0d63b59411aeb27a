package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dkeye/charge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id            TEXT PRIMARY KEY,
	host          TEXT NOT NULL,
	status        TEXT NOT NULL,
	player_count  INTEGER NOT NULL,
	room_id       TEXT NOT NULL DEFAULT '',
	rules         TEXT NOT NULL,
	is_historical INTEGER NOT NULL DEFAULT 0,
	is_modded     INTEGER NOT NULL DEFAULT 0,
	planned_time  INTEGER
);
CREATE TABLE IF NOT EXISTS game_players (
	game_id   TEXT NOT NULL,
	player_id TEXT NOT NULL,
	username  TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	PRIMARY KEY (game_id, player_id)
);`

// SQLite persists lobby state in a single database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the lobby database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStore, path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStore, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: schema: %v", domain.ErrStore, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Read(ctx context.Context, id domain.GameID) (domain.Game, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, host, status, player_count, room_id, rules, is_historical, is_modded, planned_time
		 FROM games WHERE id = ?`, string(id))
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return domain.Game{}, false, nil
	}
	if err != nil {
		return domain.Game{}, false, fmt.Errorf("%w: read game: %v", domain.ErrStore, err)
	}
	return g, true, nil
}

func (s *SQLite) Write(ctx context.Context, g domain.Game) error {
	rules, err := json.Marshal(g.Rules.Normalize())
	if err != nil {
		return fmt.Errorf("%w: encode rules: %v", domain.ErrStore, err)
	}
	var planned any
	if g.PlannedTime != nil {
		planned = g.PlannedTime.UTC().UnixMilli()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (id, host, status, player_count, room_id, rules, is_historical, is_modded, planned_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			host = excluded.host, status = excluded.status, player_count = excluded.player_count,
			room_id = excluded.room_id, rules = excluded.rules, is_historical = excluded.is_historical,
			is_modded = excluded.is_modded, planned_time = excluded.planned_time`,
		string(g.ID), string(g.Host), string(g.Status), g.PlayerCount, g.RoomID,
		string(rules), g.IsHistorical, g.IsModded, planned)
	if err != nil {
		return fmt.Errorf("%w: write game: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *SQLite) ReadMembership(ctx context.Context, id domain.GameID) ([]domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, username FROM game_players WHERE game_id = ? ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: read membership: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	roster := []domain.Membership{}
	for rows.Next() {
		m := domain.Membership{GameID: id}
		if err := rows.Scan(&m.PlayerID, &m.Username); err != nil {
			return nil, fmt.Errorf("%w: scan membership: %v", domain.ErrStore, err)
		}
		roster = append(roster, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read membership: %v", domain.ErrStore, err)
	}
	return roster, nil
}

// WriteMembership replaces the whole roster in one transaction. Join order is
// preserved through the seq column.
func (s *SQLite) WriteMembership(ctx context.Context, id domain.GameID, roster []domain.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM game_players WHERE game_id = ?`, string(id)); err != nil {
		return fmt.Errorf("%w: clear membership: %v", domain.ErrStore, err)
	}
	for i, m := range roster {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO game_players (game_id, player_id, username, seq) VALUES (?, ?, ?, ?)`,
			string(id), string(m.PlayerID), m.Username, i); err != nil {
			return fmt.Errorf("%w: insert membership: %v", domain.ErrStore, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit membership: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id domain.GameID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStore, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM game_players WHERE game_id = ?`, string(id)); err != nil {
		return fmt.Errorf("%w: delete membership: %v", domain.ErrStore, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("%w: delete game: %v", domain.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]domain.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, host, status, player_count, room_id, rules, is_historical, is_modded, planned_time
		 FROM games ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list games: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	games := []domain.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan game: %v", domain.ErrStore, err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list games: %v", domain.ErrStore, err)
	}
	return games, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (domain.Game, error) {
	var (
		g       domain.Game
		rules   string
		planned sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.Host, &g.Status, &g.PlayerCount, &g.RoomID,
		&rules, &g.IsHistorical, &g.IsModded, &planned)
	if err != nil {
		return domain.Game{}, err
	}
	if err := json.Unmarshal([]byte(rules), &g.Rules); err != nil {
		return domain.Game{}, err
	}
	g.Rules = g.Rules.Normalize()
	if planned.Valid {
		t := time.UnixMilli(planned.Int64).UTC()
		g.PlannedTime = &t
	}
	return g, nil
}
