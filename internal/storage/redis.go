package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uebergang/gateway/internal/models"
)

// RedisStateStore keeps sessions, ceremonies and signin requests in redis so
// multiple gateway instances share authentication state. Ceremony and
// signin-request records outlive their logical expiry by a grace period
// (expiry is checked in Go against the stored timestamp) so expired and
// unknown records stay distinguishable.

const expiryGrace = time.Hour

// consumeScript atomically consumes a ceremony: the payload key is deleted
// and a tombstone is left so a replay reports "consumed", not "missing".
// KEYS[1] payload, KEYS[2] tombstone, ARGV[1] tombstone TTL in ms.
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {'consumed', ''}
end
local v = redis.call('GETDEL', KEYS[1])
if not v then
  return {'missing', ''}
end
redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
return {'ok', v}
`)

// confirmScript performs the single-winner pending-to-confirmed transition.
// KEYS[1] request payload, KEYS[2] confirmation marker holding the cookie,
// ARGV[1] cookie, ARGV[2] marker TTL in ms.
var confirmScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'missing'
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 'confirmed'
end
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
return 'ok'
`)

type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func sessionKey(id string) string        { return fmt.Sprintf("sess:%s", id) }
func ceremonyKey(token string) string    { return fmt.Sprintf("cer:%s", token) }
func ceremonyTombKey(token string) string { return fmt.Sprintf("cer:%s:consumed", token) }
func signinKey(id string) string         { return fmt.Sprintf("sreq:%s", id) }
func signinConfirmKey(id string) string  { return fmt.Sprintf("sreq:%s:confirmed", id) }
func pinKey(pin string) string           { return fmt.Sprintf("pin:%s", pin) }

func (r *RedisStateStore) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStateStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisStateStore) DeleteSession(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisStateStore) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	keys, err := r.client.Keys(ctx, "sess:*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session keys: %w", err)
	}

	var sessions []*models.Session
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // deleted between KEYS and GET
		}
		if err != nil {
			continue
		}

		var session models.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			continue
		}
		if session.UserID == userID {
			sessions = append(sessions, &session)
		}
	}
	return sessions, nil
}

func (r *RedisStateStore) DeleteUserSessions(ctx context.Context, userID string) error {
	sessions, err := r.ListSessions(ctx, userID)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := r.DeleteSession(ctx, session.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStateStore) PutCeremony(ctx context.Context, ceremony *models.Ceremony) error {
	data, err := json.Marshal(ceremony)
	if err != nil {
		return fmt.Errorf("failed to marshal ceremony: %w", err)
	}

	ttl := time.Until(ceremony.ExpiresAt) + expiryGrace
	if err := r.client.Set(ctx, ceremonyKey(ceremony.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save ceremony: %w", err)
	}
	return nil
}

func (r *RedisStateStore) ConsumeCeremony(ctx context.Context, token string) (*models.Ceremony, error) {
	res, err := consumeScript.Run(ctx, r.client,
		[]string{ceremonyKey(token), ceremonyTombKey(token)},
		ConsumedTombstoneTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to consume ceremony: %w", err)
	}

	switch res[0] {
	case "consumed":
		return nil, ErrAlreadyConsumed
	case "missing":
		return nil, ErrNotFound
	}

	var ceremony models.Ceremony
	if err := json.Unmarshal([]byte(res[1].(string)), &ceremony); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ceremony: %w", err)
	}
	if time.Now().After(ceremony.ExpiresAt) {
		return nil, ErrExpired
	}
	ceremony.Consumed = true
	return &ceremony, nil
}

func (r *RedisStateStore) PutSigninRequest(ctx context.Context, req *models.SigninRequest) error {
	ttl := time.Until(req.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}

	if req.Pin != "" {
		ok, err := r.client.SetNX(ctx, pinKey(req.Pin), req.ID, ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to reserve pin: %w", err)
		}
		if !ok {
			return ErrPinInUse
		}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal signin request: %w", err)
	}
	if err := r.client.Set(ctx, signinKey(req.ID), data, ttl+expiryGrace).Err(); err != nil {
		return fmt.Errorf("failed to save signin request: %w", err)
	}
	return nil
}

func (r *RedisStateStore) GetSigninRequest(ctx context.Context, id string) (*models.SigninRequest, error) {
	data, err := r.client.Get(ctx, signinKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signin request: %w", err)
	}

	var req models.SigninRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signin request: %w", err)
	}

	// The confirmation marker is authoritative for the confirmed state.
	cookie, err := r.client.Get(ctx, signinConfirmKey(id)).Result()
	if err == nil {
		req.Confirmed = true
		req.Cookie = cookie
	} else if err != redis.Nil {
		return nil, fmt.Errorf("failed to get confirmation marker: %w", err)
	}
	return &req, nil
}

func (r *RedisStateStore) GetSigninRequestByPin(ctx context.Context, pin string) (*models.SigninRequest, error) {
	id, err := r.client.Get(ctx, pinKey(pin)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pin: %w", err)
	}

	req, err := r.GetSigninRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return req, nil
}

func (r *RedisStateStore) ConfirmSigninRequest(ctx context.Context, id, cookie string) error {
	req, err := r.GetSigninRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.Expired(time.Now()) {
		return ErrExpired
	}

	ttl := time.Until(req.ExpiresAt) + expiryGrace
	res, err := confirmScript.Run(ctx, r.client,
		[]string{signinKey(id), signinConfirmKey(id)},
		cookie, ttl.Milliseconds(),
	).Text()
	if err != nil {
		return fmt.Errorf("failed to confirm signin request: %w", err)
	}

	switch res {
	case "missing":
		return ErrNotFound
	case "confirmed":
		return ErrAlreadyConfirmed
	}
	return nil
}

func (r *RedisStateStore) AttachSigninCookie(ctx context.Context, id, cookie string) error {
	req, err := r.GetSigninRequest(ctx, id)
	if err != nil {
		return err
	}
	if !req.Confirmed {
		return ErrNotFound
	}

	ttl := time.Until(req.ExpiresAt) + expiryGrace
	ok, err := r.client.SetNX(ctx, signinConfirmKey(id), cookie, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to attach cookie: %w", err)
	}
	if !ok {
		return ErrAlreadyConfirmed
	}
	return nil
}

func (r *RedisStateStore) DeleteSigninRequest(ctx context.Context, id string) error {
	req, err := r.GetSigninRequest(ctx, id)
	if err == nil && req.Pin != "" {
		r.client.Del(ctx, pinKey(req.Pin))
	}
	return r.client.Del(ctx, signinKey(id), signinConfirmKey(id)).Err()
}
