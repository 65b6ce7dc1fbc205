// Package redisstore implements the ephemeral join-request store on redis.
// Every entry self-expires; absence of any key is a safe, recoverable state.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
)

const (
	requestKeyPrefix = "join_request:"
	pendingKeyPrefix = "session_pending:"
	userKeyPrefix    = "user_active_request:"
	lockKeyPrefix    = "join_request_lock:"
)

// delIfEquals deletes KEYS[1] only while it still points at ARGV[1], so a
// newer request that reused the user pointer survives deletion of an older
// one.
var delIfEquals = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Store implements storage.RequestStore on a redis client.
type Store struct {
	rdb *redis.Client
}

// New creates a request store.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func requestKey(id string) string        { return requestKeyPrefix + id }
func pendingKey(sessionID string) string { return pendingKeyPrefix + sessionID }
func userKey(userID string) string       { return userKeyPrefix + userID }
func lockKey(requestID string) string    { return lockKeyPrefix + requestID }

// Put writes the primary record first, then both indexes. If an index write
// fails, the writes that did land are compensated away so no index outlives
// the primary beyond its own TTL.
func (s *Store) Put(ctx context.Context, req *model.JoinRequest, ttl time.Duration) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}
	if err := s.rdb.Set(ctx, requestKey(req.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store join request: %w", err)
	}
	if err := s.indexRequest(ctx, req, ttl); err != nil {
		s.compensate(ctx, req)
		return err
	}
	return nil
}

func (s *Store) indexRequest(ctx context.Context, req *model.JoinRequest, ttl time.Duration) error {
	pKey := pendingKey(req.SessionID)
	if err := s.rdb.SAdd(ctx, pKey, req.ID).Err(); err != nil {
		return fmt.Errorf("index pending set: %w", err)
	}
	// Extend the set's life to the newest member's TTL.
	if err := s.rdb.Expire(ctx, pKey, ttl).Err(); err != nil {
		return fmt.Errorf("expire pending set: %w", err)
	}
	if err := s.rdb.Set(ctx, userKey(req.UserID), req.ID, ttl).Err(); err != nil {
		return fmt.Errorf("index user pointer: %w", err)
	}
	return nil
}

func (s *Store) compensate(ctx context.Context, req *model.JoinRequest) {
	s.rdb.Del(ctx, requestKey(req.ID))
	s.rdb.SRem(ctx, pendingKey(req.SessionID), req.ID)
	delIfEquals.Run(ctx, s.rdb, []string{userKey(req.UserID)}, req.ID)
}

// Get loads a request by id.
func (s *Store) Get(ctx context.Context, id string) (*model.JoinRequest, error) {
	raw, err := s.rdb.Get(ctx, requestKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var req model.JoinRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("unmarshal join request %s: %w", id, err)
	}
	return &req, nil
}

// Delete removes the primary and both indexes. Idempotent: deleting an
// already-gone request succeeds.
func (s *Store) Delete(ctx context.Context, req *model.JoinRequest) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, requestKey(req.ID))
	pipe.SRem(ctx, pendingKey(req.SessionID), req.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return delIfEquals.Run(ctx, s.rdb, []string{userKey(req.UserID)}, req.ID).Err()
}

// PendingIDs lists request ids in the session's pending set.
func (s *Store) PendingIDs(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, pendingKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

// RemovePending drops a single dangling id from the session's pending set.
func (s *Store) RemovePending(ctx context.Context, sessionID, requestID string) error {
	return s.rdb.SRem(ctx, pendingKey(sessionID), requestID).Err()
}

// ActiveRequestID returns the user's live request id, "" when none.
func (s *Store) ActiveRequestID(ctx context.Context, userID string) (string, error) {
	id, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// AcquireLock takes the processing lock with SET NX. False means another
// caller is already inside the approve/reject critical section.
func (s *Store) AcquireLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, lockKey(requestID), "1", ttl).Result()
}

// ReleaseLock frees the processing lock.
func (s *Store) ReleaseLock(ctx context.Context, requestID string) error {
	return s.rdb.Del(ctx, lockKey(requestID)).Err()
}

// SweepExpired removes requests past their expiry and prunes pending-set
// members whose primary record is gone. Redis TTL already reclaims primaries;
// the sweep exists for the indexes and for requests whose payload expiry
// passed ahead of the key TTL.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.rdb.Scan(ctx, 0, requestKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(requestKeyPrefix):]
		req, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return removed, err
		}
		if req.Expired(now) {
			if err := s.Delete(ctx, req); err != nil {
				return removed, err
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}

	setIter := s.rdb.Scan(ctx, 0, pendingKeyPrefix+"*", 100).Iterator()
	for setIter.Next(ctx) {
		pKey := setIter.Val()
		ids, err := s.rdb.SMembers(ctx, pKey).Result()
		if err != nil {
			return removed, err
		}
		for _, id := range ids {
			exists, err := s.rdb.Exists(ctx, requestKey(id)).Result()
			if err != nil {
				return removed, err
			}
			if exists == 0 {
				if err := s.rdb.SRem(ctx, pKey, id).Err(); err != nil {
					return removed, err
				}
			}
		}
	}
	return removed, setIter.Err()
}
