package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/imposter-server-go/internal/model"
	"github.com/openclaw/imposter-server-go/internal/redis"
)

// redisStore keeps each session as a JSON document with its participants in
// a companion hash. Writes run inside WATCH on the session key so a
// concurrent writer aborts the transaction.
type redisStore struct {
	client *goredis.Client
}

func NewRedisStore(client *goredis.Client) SessionStore {
	return &redisStore{client: client}
}

func (r *redisStore) Get(ctx context.Context, id string) (*model.Session, error) {
	var docCmd *goredis.StringCmd
	var playersCmd *goredis.MapStringStringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		docCmd = pipe.Get(ctx, redis.SessionKey(id))
		playersCmd = pipe.HGetAll(ctx, redis.PlayersKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	s, err := decodeSession(docCmd)
	if err != nil || s == nil {
		return nil, err
	}

	for playerID, raw := range playersCmd.Val() {
		var p model.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", playerID, err)
		}
		s.Participants = append(s.Participants, p)
	}
	orderByRoster(s)
	return s, nil
}

func (r *redisStore) Insert(ctx context.Context, s *model.Session) error {
	key := redis.SessionKey(s.ID)
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}

		doc := s.Clone()
		doc.Version = 1
		return r.write(ctx, tx, doc, true)
	}, key)
	if err != nil {
		return r.mapTxErr(err)
	}
	s.Version = 1
	return nil
}

func (r *redisStore) Update(ctx context.Context, s *model.Session) error {
	key := redis.SessionKey(s.ID)
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		if err := checkVersion(ctx, tx, key, s.Version); err != nil {
			return err
		}
		doc := s.Clone()
		doc.Version = s.Version + 1
		return r.write(ctx, tx, doc, false)
	}, key)
	if err != nil {
		return r.mapTxErr(err)
	}
	s.Version++
	return nil
}

func (r *redisStore) Delete(ctx context.Context, id string, version int64) error {
	key := redis.SessionKey(id)
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		if err := checkVersion(ctx, tx, key, version); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key, redis.PlayersKey(id))
			pipe.SRem(ctx, redis.SessionIndexKey, id)
			return nil
		})
		return err
	}, key)
	return r.mapTxErr(err)
}

func (r *redisStore) List(ctx context.Context, filter ListFilter) ([]model.Session, error) {
	ids, err := r.client.SMembers(ctx, redis.SessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	if len(ids) == 0 {
		return []model.Session{}, nil
	}

	cmds := make([]*goredis.StringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Get(ctx, redis.SessionKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]model.Session, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		s, err := decodeSession(cmd)
		if err != nil {
			return nil, err
		}
		if s == nil {
			stale = append(stale, ids[i])
			continue
		}
		if filter.matches(s) {
			out = append(out, *s)
		}
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, redis.SessionIndexKey, stale...).Err(); err != nil {
			log.Warn().Err(err).Int("count", len(stale)).Msg("failed to prune session index")
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *redisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// write queues the session document and a full replacement of its player hash.
func (r *redisStore) write(ctx context.Context, tx *goredis.Tx, doc *model.Session, insert bool) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	players := make(map[string]any, len(doc.Participants))
	for _, p := range doc.Participants {
		if !doc.InRoster(p.PlayerID) {
			continue
		}
		p.SessionID = doc.ID
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode player %s: %w", p.PlayerID, err)
		}
		players[p.PlayerID] = raw
	}

	_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, redis.SessionKey(doc.ID), body, 0)
		pipe.Del(ctx, redis.PlayersKey(doc.ID))
		if len(players) > 0 {
			pipe.HSet(ctx, redis.PlayersKey(doc.ID), players)
		}
		if insert {
			pipe.SAdd(ctx, redis.SessionIndexKey, doc.ID)
		}
		return nil
	})
	return err
}

func (r *redisStore) mapTxErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.TxFailedErr):
		return ErrVersionConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict), errors.Is(err, ErrAlreadyExists):
		return err
	default:
		return fmt.Errorf("redis session store: %w", err)
	}
}

func checkVersion(ctx context.Context, tx *goredis.Tx, key string, version int64) error {
	current, err := decodeSession(tx.Get(ctx, key))
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}
	if current.Version != version {
		return ErrVersionConflict
	}
	return nil
}

func decodeSession(cmd *goredis.StringCmd) (*model.Session, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
