package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openclaw/imposter-server-go/internal/database"
	"github.com/openclaw/imposter-server-go/internal/model"
)

type postgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) SessionStore {
	return &postgresStore{db: db}
}

var readSnapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

func (r *postgresStore) Get(ctx context.Context, id string) (*model.Session, error) {
	var found *model.Session
	err := r.db.WithTxOptions(ctx, readSnapshot, func(tx *sqlx.Tx) error {
		var session model.Session
		s, err := HandleNotFound(&session, tx.GetContext(ctx, &session, `
			SELECT * FROM game_sessions WHERE id = $1
		`, id))
		if err != nil || s == nil {
			return err
		}

		if err := tx.SelectContext(ctx, &s.Participants, `
			SELECT * FROM game_players WHERE session_id = $1 ORDER BY joined_at, player_id
		`, id); err != nil {
			return err
		}
		orderByRoster(s)
		found = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return found, nil
}

func (r *postgresStore) Insert(ctx context.Context, s *model.Session) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		s.Version = 1
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO game_sessions (
				id, creator_id, category, player_topic, imposter_topic, max_players,
				status, phase, phase_deadline, roster, imposter_id, ballots, last_result,
				round, discussion_seconds, voting_seconds, version,
				created_at, updated_at, started_at, ended_at
			) VALUES (
				:id, :creator_id, :category, :player_topic, :imposter_topic, :max_players,
				:status, :phase, :phase_deadline, :roster, :imposter_id, :ballots, :last_result,
				:round, :discussion_seconds, :voting_seconds, :version,
				:created_at, :updated_at, :started_at, :ended_at
			)
			ON CONFLICT (id) DO NOTHING
		`, s)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrAlreadyExists
		}
		return upsertParticipants(ctx, tx, s)
	})
}

func (r *postgresStore) Update(ctx context.Context, s *model.Session) error {
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE game_sessions SET
				creator_id = :creator_id,
				player_topic = :player_topic,
				imposter_topic = :imposter_topic,
				status = :status,
				phase = :phase,
				phase_deadline = :phase_deadline,
				roster = :roster,
				imposter_id = :imposter_id,
				ballots = :ballots,
				last_result = :last_result,
				round = :round,
				version = version + 1,
				updated_at = :updated_at,
				started_at = :started_at,
				ended_at = :ended_at
			WHERE id = :id AND version = :version
		`, s)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return missingOrConflict(ctx, tx, s.ID)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM game_players WHERE session_id = $1 AND player_id <> ALL($2)
		`, s.ID, pq.Array([]string(s.Roster))); err != nil {
			return err
		}
		return upsertParticipants(ctx, tx, s)
	})
	if err != nil {
		return err
	}
	s.Version++
	return nil
}

func (r *postgresStore) Delete(ctx context.Context, id string, version int64) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM game_sessions WHERE id = $1 AND version = $2
		`, id, version)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return missingOrConflict(ctx, tx, id)
		}
		return nil
	})
}

func (r *postgresStore) List(ctx context.Context, filter ListFilter) ([]model.Session, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}

	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM game_sessions
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		ORDER BY created_at DESC
	`, pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *postgresStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func upsertParticipants(ctx context.Context, tx database.DBTX, s *model.Session) error {
	for i := range s.Participants {
		p := s.Participants[i]
		p.SessionID = s.ID
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO game_players (
				session_id, player_id, display_name, is_imposter, votes_received, joined_at, last_heartbeat_at
			) VALUES (
				:session_id, :player_id, :display_name, :is_imposter, :votes_received, :joined_at, :last_heartbeat_at
			)
			ON CONFLICT (session_id, player_id) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				is_imposter = EXCLUDED.is_imposter,
				votes_received = EXCLUDED.votes_received,
				last_heartbeat_at = EXCLUDED.last_heartbeat_at
		`, p); err != nil {
			return fmt.Errorf("upsert player %s: %w", p.PlayerID, err)
		}
	}
	return nil
}

func missingOrConflict(ctx context.Context, tx database.DBTX, id string) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM game_sessions WHERE id = $1)
	`, id); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

