package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voithos/swiftcode/internal/models"
)

// Postgres is the pgx-backed Store.
//
// Expected schema:
//
//	CREATE TABLE matches (
//	    id               UUID PRIMARY KEY,
//	    lang             TEXT NOT NULL,
//	    lang_name        TEXT NOT NULL,
//	    exercise_id      TEXT NOT NULL,
//	    state            TEXT NOT NULL,
//	    max_players      INT NOT NULL,
//	    num_players      INT NOT NULL,
//	    is_single_player BOOLEAN NOT NULL,
//	    is_joinable      BOOLEAN NOT NULL,
//	    is_viewable      BOOLEAN NOT NULL,
//	    start_time       TIMESTAMPTZ,
//	    players          JSONB NOT NULL DEFAULT '[]',
//	    player_names     JSONB NOT NULL DEFAULT '[]',
//	    starting_players JSONB NOT NULL DEFAULT '[]',
//	    winner           TEXT NOT NULL DEFAULT '',
//	    winner_time_ms   BIGINT NOT NULL DEFAULT 0,
//	    winner_speed     DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    was_reset        BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE players (
//	    id            TEXT PRIMARY KEY,
//	    name          TEXT NOT NULL,
//	    best_time_ms  BIGINT NOT NULL DEFAULT 0,
//	    avg_time_ms   BIGINT NOT NULL DEFAULT 0,
//	    best_speed    DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    avg_speed     DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    total_matches INT NOT NULL DEFAULT 0,
//	    wins          INT NOT NULL DEFAULT 0
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool to the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) LoadMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, lang, lang_name, exercise_id, state, max_players, num_players,
               is_single_player, is_joinable, is_viewable, start_time,
               players, player_names, starting_players,
               winner, winner_time_ms, winner_speed, was_reset,
               created_at, updated_at
        FROM matches WHERE id = $1`, id)

	var (
		m            models.Match
		state        string
		playersJSON  []byte
		namesJSON    []byte
		startingJSON []byte
		winnerTimeMS int64
	)
	err := row.Scan(&m.ID, &m.Lang, &m.LangName, &m.ExerciseID, &state,
		&m.MaxPlayers, &m.NumPlayers, &m.IsSinglePlayer, &m.IsJoinable,
		&m.IsViewable, &m.StartTime, &playersJSON, &namesJSON, &startingJSON,
		&m.Winner, &winnerTimeMS, &m.WinnerSpeed, &m.WasReset,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}

	m.State = models.MatchState(state)
	m.WinnerTime = time.Duration(winnerTimeMS) * time.Millisecond
	for _, pair := range []struct {
		raw []byte
		dst *[]string
	}{
		{playersJSON, &m.Players},
		{namesJSON, &m.PlayerNames},
		{startingJSON, &m.StartingPlayers},
	} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, fmt.Errorf("failed to decode roster: %w", err)
		}
	}
	return &m, nil
}

func (s *Postgres) SaveMatch(ctx context.Context, m *models.Match) error {
	playersJSON, err := json.Marshal(emptyIfNil(m.Players))
	if err != nil {
		return fmt.Errorf("failed to encode roster: %w", err)
	}
	namesJSON, err := json.Marshal(emptyIfNil(m.PlayerNames))
	if err != nil {
		return fmt.Errorf("failed to encode player names: %w", err)
	}
	startingJSON, err := json.Marshal(emptyIfNil(m.StartingPlayers))
	if err != nil {
		return fmt.Errorf("failed to encode starting roster: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
        INSERT INTO matches (
            id, lang, lang_name, exercise_id, state, max_players, num_players,
            is_single_player, is_joinable, is_viewable, start_time,
            players, player_names, starting_players,
            winner, winner_time_ms, winner_speed, was_reset,
            created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
        ON CONFLICT (id) DO UPDATE SET
            state            = EXCLUDED.state,
            num_players      = EXCLUDED.num_players,
            is_joinable      = EXCLUDED.is_joinable,
            is_viewable      = EXCLUDED.is_viewable,
            start_time       = EXCLUDED.start_time,
            players          = EXCLUDED.players,
            player_names     = EXCLUDED.player_names,
            starting_players = EXCLUDED.starting_players,
            winner           = EXCLUDED.winner,
            winner_time_ms   = EXCLUDED.winner_time_ms,
            winner_speed     = EXCLUDED.winner_speed,
            was_reset        = EXCLUDED.was_reset,
            updated_at       = EXCLUDED.updated_at`,
		m.ID, m.Lang, m.LangName, m.ExerciseID, string(m.State),
		m.MaxPlayers, m.NumPlayers, m.IsSinglePlayer, m.IsJoinable,
		m.IsViewable, m.StartTime, playersJSON, namesJSON, startingJSON,
		m.Winner, m.WinnerTime.Milliseconds(), m.WinnerSpeed, m.WasReset,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

func (s *Postgres) ResetOpenMatches(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE matches SET
            state        = $1,
            num_players  = 0,
            players      = '[]',
            player_names = '[]',
            is_joinable  = FALSE,
            is_viewable  = FALSE,
            was_reset    = TRUE,
            updated_at   = NOW()
        WHERE state <> $1`, string(models.MatchStateComplete))
	if err != nil {
		return 0, fmt.Errorf("failed to reset open matches: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) LoadPlayer(ctx context.Context, id string) (*models.Player, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, name, best_time_ms, avg_time_ms, best_speed, avg_speed,
               total_matches, wins
        FROM players WHERE id = $1`, id)

	var (
		p          models.Player
		bestTimeMS int64
		avgTimeMS  int64
	)
	err := row.Scan(&p.ID, &p.Name, &bestTimeMS, &avgTimeMS,
		&p.BestSpeed, &p.AverageSpeed, &p.TotalMatches, &p.Wins)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	p.BestTime = time.Duration(bestTimeMS) * time.Millisecond
	p.AverageTime = time.Duration(avgTimeMS) * time.Millisecond
	return &p, nil
}

func (s *Postgres) SavePlayer(ctx context.Context, p *models.Player) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO players (
            id, name, best_time_ms, avg_time_ms, best_speed, avg_speed,
            total_matches, wins
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET
            name          = EXCLUDED.name,
            best_time_ms  = EXCLUDED.best_time_ms,
            avg_time_ms   = EXCLUDED.avg_time_ms,
            best_speed    = EXCLUDED.best_speed,
            avg_speed     = EXCLUDED.avg_speed,
            total_matches = EXCLUDED.total_matches,
            wins          = EXCLUDED.wins`,
		p.ID, p.Name, p.BestTime.Milliseconds(), p.AverageTime.Milliseconds(),
		p.BestSpeed, p.AverageSpeed, p.TotalMatches, p.Wins)
	if err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
