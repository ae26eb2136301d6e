// Package redisstore persists request queues in Redis. Every mutation is a
// single Lua script, which Redis runs atomically.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
)

// Store implements queue.Store and the artist repository on Redis.
type Store struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// New wraps an existing client. The caller owns the client's lifecycle.
func New(redisClient *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "requestr"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ queue.Store = (*Store)(nil)

const artistTxAttempts = 3

func unavailable(err error, op string) error {
	return model.Wrap(model.KindStoreUnavailable, err, "failed to "+op)
}

func stamp(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func (s *Store) Insert(ctx context.Context, r *model.Request) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ok, err := insertScript.Run(ctx, s.redis, nil,
		s.prefix, r.ID, doc, r.OwnerKey, string(r.Status), r.Position, stamp(r.UpdatedAt),
	).Int()
	if err != nil {
		return unavailable(err, "insert request")
	}
	if ok == 0 {
		return model.E(model.KindConflict, "request already exists")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Request, error) {
	vals, err := getScript.Run(ctx, s.redis, nil, s.prefix, id).Slice()
	if err != nil {
		return nil, unavailable(err, "get request")
	}
	if len(vals) != 4 || vals[0] == nil {
		return nil, model.E(model.KindNotFound, "request not found")
	}
	return decode(vals)
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := deleteScript.Run(ctx, s.redis, nil, s.prefix, id).Int()
	if err != nil {
		return false, unavailable(err, "delete request")
	}
	return n == 1, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch model.Patch) (bool, error) {
	status, position := "", ""
	if patch.Status != nil {
		status = string(*patch.Status)
	}
	if patch.Position != nil {
		position = strconv.Itoa(*patch.Position)
	}

	n, err := updateScript.Run(ctx, s.redis, nil,
		s.prefix, id, status, position, stamp(s.now()),
	).Int()
	if err != nil {
		return false, unavailable(err, "update request")
	}
	return n == 1, nil
}

func (s *Store) ShiftPositions(ctx context.Context, sh queue.Shift) (int, error) {
	max := "+inf"
	if sh.To > 0 {
		max = strconv.Itoa(sh.To)
	}

	n, err := shiftScript.Run(ctx, s.redis, nil,
		s.prefix, sh.Owner, string(sh.Status), strconv.Itoa(sh.From), max, sh.Delta, stamp(s.now()),
	).Int()
	if err != nil {
		return 0, unavailable(err, "shift positions")
	}
	return n, nil
}

func (s *Store) SetPositions(ctx context.Context, owner string, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 3+2*len(positions))
	args = append(args, s.prefix, owner, stamp(s.now()))
	for id, p := range positions {
		args = append(args, id, p)
	}

	n, err := setPositionsScript.Run(ctx, s.redis, nil, args...).Int()
	if err != nil {
		return unavailable(err, "set positions")
	}
	if n < 0 {
		return model.E(model.KindNotFound, "request not found in queue")
	}
	return nil
}

func (s *Store) ListOrdered(ctx context.Context, owner string, status model.Status) ([]*model.Request, error) {
	vals, err := listScript.Run(ctx, s.redis, nil, s.prefix, owner, string(status)).Slice()
	if err != nil {
		return nil, unavailable(err, "list requests")
	}

	out := make([]*model.Request, 0, len(vals)/4)
	for i := 0; i+3 < len(vals); i += 4 {
		r, err := decode(vals[i : i+4])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	model.SortByPosition(out)
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context, owner string, status model.Status) (int, error) {
	n, err := s.redis.ZCard(ctx, fmt.Sprintf("%s:q:%s:%s", s.prefix, owner, status)).Result()
	if err != nil {
		return 0, unavailable(err, "count requests")
	}
	return int(n), nil
}

// decode rebuilds a request from doc, status, position, updated. The hash
// fields win over the JSON document, which only holds immutable data
// reliably.
func decode(vals []interface{}) (*model.Request, error) {
	doc, _ := vals[0].(string)
	status, _ := vals[1].(string)
	position, _ := vals[2].(string)
	updated, _ := vals[3].(string)

	var r model.Request
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	r.Status = model.Status(status)
	if p, err := strconv.Atoi(position); err == nil {
		r.Position = p
	}
	if ns, err := strconv.ParseInt(updated, 10, 64); err == nil {
		r.UpdatedAt = time.Unix(0, ns).UTC()
	}
	return &r, nil
}

// CreateArtist stores a new artist; username and email must both be unused.
func (s *Store) CreateArtist(ctx context.Context, a *model.Artist) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artist: %w", err)
	}

	code, err := createArtistScript.Run(ctx, s.redis, nil,
		s.prefix, a.Username, strings.ToLower(a.Email), data,
	).Int()
	if err != nil {
		return unavailable(err, "create artist")
	}
	switch code {
	case 1:
		return model.E(model.KindConflict, "Username already registered")
	case 2:
		return model.E(model.KindConflict, "Email already registered")
	}
	return nil
}

func (s *Store) GetArtist(ctx context.Context, username string) (*model.Artist, error) {
	data, err := s.redis.Get(ctx, s.artistKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.E(model.KindNotFound, "artist not found")
		}
		return nil, unavailable(err, "get artist")
	}

	var a model.Artist
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artist: %w", err)
	}
	return &a, nil
}

// SetArtistActive toggles an artist's active flag. A write racing the
// read-modify-write is retried; after artistTxAttempts the call fails with
// KindConflict.
func (s *Store) SetArtistActive(ctx context.Context, username string, active bool) error {
	for attempt := 0; attempt < artistTxAttempts; attempt++ {
		err := s.setArtistActive(ctx, username, active)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return model.E(model.KindConflict, "artist was modified concurrently, try again")
}

func (s *Store) setArtistActive(ctx context.Context, username string, active bool) error {
	key := s.artistKey(username)
	return s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.E(model.KindNotFound, "artist not found")
			}
			return unavailable(err, "get artist")
		}
		var a model.Artist
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("failed to unmarshal artist: %w", err)
		}
		a.IsActive = active
		a.UpdatedAt = s.now()
		updated, err := json.Marshal(&a)
		if err != nil {
			return fmt.Errorf("failed to marshal artist: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, updated, 0)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err != nil {
			return unavailable(err, "update artist")
		}
		return nil
	}, key)
}

func (s *Store) artistKey(username string) string {
	return fmt.Sprintf("%s:artist:%s", s.prefix, username)
}
