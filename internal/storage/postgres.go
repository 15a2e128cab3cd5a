package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and applies the embedded schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	schema, err := LoadSchema(PostgresSchemaName)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn conversation.Turn) (conversation.Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialises appends for the key across replicas.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, turn.Key().String()); err != nil {
			return err
		}

		var last *time.Time
		err := tx.QueryRow(ctx,
			`SELECT max(created_at) FROM conversation_turns WHERE channel = $1 AND contact_id = $2`,
			string(turn.Channel), turn.ContactID,
		).Scan(&last)
		if err != nil {
			return err
		}
		if last != nil && turn.CreatedAt.Before(*last) {
			turn.CreatedAt = *last
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_turns (id, contact_id, channel, role, text, kind, mode, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			turn.ID, turn.ContactID, string(turn.Channel), string(turn.Role), turn.Text,
			string(turn.Kind), string(turn.Mode), turn.CreatedAt,
		)
		return err
	})
	if err != nil {
		return conversation.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, key conversation.Key, n int) ([]conversation.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, contact_id, channel, role, text, kind, mode, created_at FROM (
		     SELECT * FROM conversation_turns
		     WHERE channel = $1 AND contact_id = $2
		     ORDER BY created_at DESC
		     LIMIT $3
		 ) recent ORDER BY created_at ASC`,
		string(key.Channel), key.ContactID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var turns []conversation.Turn
	for rows.Next() {
		var (
			turn                         conversation.Turn
			channel, role, kind, modeStr string
		)
		if err := rows.Scan(&turn.ID, &turn.ContactID, &channel, &role, &turn.Text, &kind, &modeStr, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Channel = conversation.Channel(channel)
		turn.Role = conversation.Role(role)
		turn.Kind = conversation.ContentKind(kind)
		turn.Mode = conversation.Mode(modeStr)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		     count(*) FILTER (WHERE role = 'user'),
		     count(DISTINCT (channel, contact_id))
		 FROM conversation_turns WHERE created_at >= $1`,
		since,
	).Scan(&stats.Messages, &stats.Conversations)
	if err != nil {
		return Stats{}, fmt.Errorf("count turns: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) GetState(ctx context.Context, key conversation.Key) (conversation.State, error) {
	state := conversation.State{Key: key}
	var modeStr string
	err := s.pool.QueryRow(ctx,
		`SELECT mode, version, reason, updated_at FROM conversation_state WHERE channel = $1 AND contact_id = $2`,
		string(key.Channel), key.ContactID,
	).Scan(&modeStr, &state.Version, &state.Reason, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.State{}, ErrNotFound
		}
		return conversation.State{}, fmt.Errorf("get state: %w", err)
	}
	state.Mode = conversation.Mode(modeStr)
	return state, nil
}

func (s *PostgresStore) CompareAndSetMode(ctx context.Context, key conversation.Key, expected int64, mode conversation.Mode, reason string) (conversation.State, error) {
	next := conversation.State{
		Key:       key,
		Mode:      mode,
		Version:   expected + 1,
		Reason:    reason,
		UpdatedAt: time.Now(),
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			tag pgconn.CommandTag
			err error
		)
		if expected == 0 {
			tag, err = tx.Exec(ctx,
				`INSERT INTO conversation_state (contact_id, channel, mode, version, reason, updated_at)
				 VALUES ($1, $2, $3, 1, $4, $5)
				 ON CONFLICT (channel, contact_id) DO NOTHING`,
				key.ContactID, string(key.Channel), string(mode), reason, next.UpdatedAt,
			)
		} else {
			tag, err = tx.Exec(ctx,
				`UPDATE conversation_state
				 SET mode = $3, version = version + 1, reason = $4, updated_at = $5
				 WHERE channel = $1 AND contact_id = $2 AND version = $6`,
				string(key.Channel), key.ContactID, string(mode), reason, next.UpdatedAt, expected,
			)
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		if mode != conversation.ModeHuman {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE conversation_turns SET mode = $3 WHERE channel = $1 AND contact_id = $2`,
			string(key.Channel), key.ContactID, string(mode),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return conversation.State{}, ErrVersionConflict
		}
		return conversation.State{}, fmt.Errorf("set mode: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) LoadFlags(ctx context.Context) (Flags, error) {
	flags := DefaultFlags()

	var botEnabled bool
	err := s.pool.QueryRow(ctx, `SELECT bot_enabled FROM bot_config WHERE id = 1`).Scan(&botEnabled)
	switch {
	case err == nil:
		flags.BotEnabled = botEnabled
	case !errors.Is(err, pgx.ErrNoRows):
		return Flags{}, fmt.Errorf("load bot config: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT channel, enabled FROM channel_config`)
	if err != nil {
		return Flags{}, fmt.Errorf("load channel config: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			channel string
			enabled bool
		)
		if err := rows.Scan(&channel, &enabled); err != nil {
			return Flags{}, fmt.Errorf("scan channel config: %w", err)
		}
		flags.Channels[conversation.Channel(channel)] = enabled
	}
	return flags, rows.Err()
}

func (s *PostgresStore) SetBotEnabled(ctx context.Context, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_config (id, bot_enabled, updated_at) VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET bot_enabled = EXCLUDED.bot_enabled, updated_at = EXCLUDED.updated_at`,
		enabled,
	)
	if err != nil {
		return fmt.Errorf("set bot enabled: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetChannelEnabled(ctx context.Context, ch conversation.Channel, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_config (channel, enabled, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (channel) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		string(ch), enabled,
	)
	if err != nil {
		return fmt.Errorf("set channel enabled: %w", err)
	}
	return nil
}

// Load returns the stored profile, or the seed profile when none was saved yet.
func (s *PostgresStore) Load(ctx context.Context) (persona.Persona, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM bot_persona WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return persona.Seed(), nil
		}
		return persona.Persona{}, fmt.Errorf("load persona: %w", err)
	}

	var p persona.Persona
	if err := json.Unmarshal(raw, &p); err != nil {
		return persona.Persona{}, fmt.Errorf("decode persona: %w", err)
	}
	return p, nil
}

var _ Store = (*PostgresStore)(nil)
