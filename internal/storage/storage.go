package storage

import (
	"context"
	"errors"
	"time"

	"github.com/uebergang/gateway/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when a record is past its expiry; expiry is
	// enforced at read/consume time regardless of sweeper timing.
	ErrExpired = errors.New("expired")

	// ErrAlreadyConsumed is returned for a second consume of the same
	// ceremony token. Concurrent consumers get exactly one success.
	ErrAlreadyConsumed = errors.New("already consumed")

	// ErrAlreadyConfirmed is returned to confirm attempts that lose the
	// pending-to-confirmed race.
	ErrAlreadyConfirmed = errors.New("already confirmed")

	// ErrPinInUse is returned when a signin request's PIN collides with
	// another currently-pending request; the caller regenerates and retries.
	ErrPinInUse = errors.New("pin in use")
)

// Directory persists the admin directory: users (with embedded
// credentials), proxy backends and MQTT profiles/clients. Update methods
// take a mutation function applied under the record's lock so concurrent
// mutations cannot clobber each other; returning nil from the function
// deletes the record.
type Directory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, id string, fn func(old *models.User) (*models.User, error)) error
	DeleteUser(ctx context.Context, id string) error

	GetBackend(ctx context.Context, fqdn string) (*models.Backend, error)
	ListBackends(ctx context.Context) ([]*models.Backend, error)
	UpdateBackend(ctx context.Context, fqdn string, fn func(old *models.Backend) (*models.Backend, error)) error
	DeleteBackend(ctx context.Context, fqdn string) error

	GetMqttProfile(ctx context.Context, id string) (*models.MqttProfile, error)
	ListMqttProfiles(ctx context.Context) ([]*models.MqttProfile, error)
	UpdateMqttProfile(ctx context.Context, id string, fn func(old *models.MqttProfile) (*models.MqttProfile, error)) error
	DeleteMqttProfile(ctx context.Context, id string) error

	GetMqttClient(ctx context.Context, id string) (*models.MqttClient, error)
	ListMqttClients(ctx context.Context) ([]*models.MqttClient, error)
	UpdateMqttClient(ctx context.Context, id string, fn func(old *models.MqttClient) (*models.MqttClient, error)) error
	DeleteMqttClient(ctx context.Context, id string) error
}

// StateStore persists the volatile authentication state: sessions, in-flight
// ceremonies and signin requests. Ceremony consumption and signin-request
// confirmation are linearizable per record.
type StateStore interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// DeleteSession is idempotent: deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, userID string) ([]*models.Session, error)
	DeleteUserSessions(ctx context.Context, userID string) error

	PutCeremony(ctx context.Context, ceremony *models.Ceremony) error
	// ConsumeCeremony atomically marks the ceremony consumed and returns it.
	// Exactly one concurrent consumer succeeds; the rest get
	// ErrAlreadyConsumed. Expired ceremonies fail with ErrExpired.
	ConsumeCeremony(ctx context.Context, token string) (*models.Ceremony, error)

	// PutSigninRequest stores a new request, reserving its PIN among
	// currently-pending requests (ErrPinInUse on collision).
	PutSigninRequest(ctx context.Context, req *models.SigninRequest) error
	GetSigninRequest(ctx context.Context, id string) (*models.SigninRequest, error)
	GetSigninRequestByPin(ctx context.Context, pin string) (*models.SigninRequest, error)
	// ConfirmSigninRequest atomically transitions the request out of pending
	// and attaches the cookie value. The first confirmer wins; later calls
	// get ErrAlreadyConfirmed.
	ConfirmSigninRequest(ctx context.Context, id, cookie string) error
	// AttachSigninCookie sets the cookie on an already-confirmed request
	// (first successful poll of a recovery request).
	AttachSigninCookie(ctx context.Context, id, cookie string) error
	DeleteSigninRequest(ctx context.Context, id string) error
}

// ConsumedTombstoneTTL is how long a consumed ceremony is retained so a
// replay can be told apart from an unknown token.
const ConsumedTombstoneTTL = time.Hour
