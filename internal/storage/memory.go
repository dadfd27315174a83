package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uebergang/gateway/internal/models"
)

// MemoryStateStore keeps sessions, ceremonies and signin requests in
// process memory. Suitable for single-instance deployments and tests; the
// redis store carries the same guarantees across processes.
type MemoryStateStore struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	ceremonies map[string]*models.Ceremony
	requests   map[string]*models.SigninRequest
	pins       map[string]string // pin -> pending request id
}

func NewMemoryStateStore() *MemoryStateStore {
	s := &MemoryStateStore{
		sessions:   make(map[string]*models.Session),
		ceremonies: make(map[string]*models.Ceremony),
		requests:   make(map[string]*models.SigninRequest),
		pins:       make(map[string]string),
	}

	go s.sweepRoutine()

	return s
}

func (s *MemoryStateStore) SaveSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStateStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemoryStateStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStateStore) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []*models.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			cp := *session
			sessions = append(sessions, &cp)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *MemoryStateStore) DeleteUserSessions(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *MemoryStateStore) PutCeremony(ctx context.Context, ceremony *models.Ceremony) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ceremony
	s.ceremonies[ceremony.Token] = &cp
	return nil
}

func (s *MemoryStateStore) ConsumeCeremony(ctx context.Context, token string) (*models.Ceremony, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ceremony, ok := s.ceremonies[token]
	if !ok {
		return nil, ErrNotFound
	}
	if ceremony.Consumed {
		return nil, ErrAlreadyConsumed
	}
	if time.Now().After(ceremony.ExpiresAt) {
		delete(s.ceremonies, token)
		return nil, ErrExpired
	}

	// Tombstone: the record stays, consumed, until the sweeper drops it, so
	// a replay reports ErrAlreadyConsumed rather than ErrNotFound.
	ceremony.Consumed = true
	cp := *ceremony
	return &cp, nil
}

func (s *MemoryStateStore) PutSigninRequest(ctx context.Context, req *models.SigninRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Pin != "" {
		if otherID, taken := s.pins[req.Pin]; taken {
			if other, ok := s.requests[otherID]; ok && !other.Expired(time.Now()) {
				return ErrPinInUse
			}
		}
		s.pins[req.Pin] = req.ID
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *MemoryStateStore) GetSigninRequest(ctx context.Context, id string) (*models.SigninRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryStateStore) GetSigninRequestByPin(ctx context.Context, pin string) (*models.SigninRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pins[pin]
	if !ok {
		return nil, ErrNotFound
	}
	req, ok := s.requests[id]
	if !ok || req.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryStateStore) ConfirmSigninRequest(ctx context.Context, id, cookie string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Expired(time.Now()) {
		return ErrExpired
	}
	if req.Confirmed {
		return ErrAlreadyConfirmed
	}

	req.Confirmed = true
	req.Cookie = cookie
	return nil
}

func (s *MemoryStateStore) AttachSigninCookie(ctx context.Context, id, cookie string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok || !req.Confirmed {
		return ErrNotFound
	}
	if req.Cookie != "" {
		return ErrAlreadyConfirmed
	}

	req.Cookie = cookie
	return nil
}

func (s *MemoryStateStore) DeleteSigninRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req, ok := s.requests[id]; ok {
		if s.pins[req.Pin] == id {
			delete(s.pins, req.Pin)
		}
		delete(s.requests, id)
	}
	return nil
}

// sweepRoutine reaps expired ceremonies and signin requests once a minute.
// Expiry is enforced at consume/read time regardless; the sweep only bounds
// memory.
func (s *MemoryStateStore) sweepRoutine() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.sweep(time.Now())
	}
}

func (s *MemoryStateStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, ceremony := range s.ceremonies {
		cutoff := ceremony.ExpiresAt
		if ceremony.Consumed {
			cutoff = cutoff.Add(ConsumedTombstoneTTL)
		}
		if now.After(cutoff) {
			delete(s.ceremonies, token)
		}
	}

	for id, req := range s.requests {
		if req.Expired(now) {
			if s.pins[req.Pin] == id {
				delete(s.pins, req.Pin)
			}
			delete(s.requests, id)
		}
	}
}

// MemoryDirectory is an in-memory Directory, used in memory mode and tests.
type MemoryDirectory struct {
	mu       sync.Mutex
	users    map[string]*models.User
	backends map[string]*models.Backend
	profiles map[string]*models.MqttProfile
	clients  map[string]*models.MqttClient
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:    make(map[string]*models.User),
		backends: make(map[string]*models.Backend),
		profiles: make(map[string]*models.MqttProfile),
		clients:  make(map[string]*models.MqttClient),
	}
}

func (d *MemoryDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (d *MemoryDirectory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, user := range d.users {
		if strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (d *MemoryDirectory) ListUsers(ctx context.Context) ([]*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	users := make([]*models.User, 0, len(d.users))
	for _, user := range d.users {
		cp := *user
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (d *MemoryDirectory) UpdateUser(ctx context.Context, id string, fn func(old *models.User) (*models.User, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var old *models.User
	if existing, ok := d.users[id]; ok {
		cp := *existing
		old = &cp
	}
	updated, err := fn(old)
	if err != nil {
		return err
	}
	if updated == nil {
		delete(d.users, id)
		return nil
	}
	cp := *updated
	d.users[id] = &cp
	return nil
}

func (d *MemoryDirectory) DeleteUser(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.users, id)
	return nil
}

func (d *MemoryDirectory) GetBackend(ctx context.Context, fqdn string) (*models.Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	backend, ok := d.backends[fqdn]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *backend
	return &cp, nil
}

func (d *MemoryDirectory) ListBackends(ctx context.Context) ([]*models.Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	backends := make([]*models.Backend, 0, len(d.backends))
	for _, backend := range d.backends {
		cp := *backend
		backends = append(backends, &cp)
	}
	sort.Slice(backends, func(i, j int) bool { return backends[i].Fqdn < backends[j].Fqdn })
	return backends, nil
}

func (d *MemoryDirectory) UpdateBackend(ctx context.Context, fqdn string, fn func(old *models.Backend) (*models.Backend, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var old *models.Backend
	if existing, ok := d.backends[fqdn]; ok {
		cp := *existing
		old = &cp
	}
	updated, err := fn(old)
	if err != nil {
		return err
	}
	if updated == nil {
		delete(d.backends, fqdn)
		return nil
	}
	cp := *updated
	d.backends[fqdn] = &cp
	return nil
}

func (d *MemoryDirectory) DeleteBackend(ctx context.Context, fqdn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.backends, fqdn)
	return nil
}

func (d *MemoryDirectory) GetMqttProfile(ctx context.Context, id string) (*models.MqttProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	profile, ok := d.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *profile
	return &cp, nil
}

func (d *MemoryDirectory) ListMqttProfiles(ctx context.Context) ([]*models.MqttProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	profiles := make([]*models.MqttProfile, 0, len(d.profiles))
	for _, profile := range d.profiles {
		cp := *profile
		profiles = append(profiles, &cp)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}

func (d *MemoryDirectory) UpdateMqttProfile(ctx context.Context, id string, fn func(old *models.MqttProfile) (*models.MqttProfile, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var old *models.MqttProfile
	if existing, ok := d.profiles[id]; ok {
		cp := *existing
		old = &cp
	}
	updated, err := fn(old)
	if err != nil {
		return err
	}
	if updated == nil {
		delete(d.profiles, id)
		return nil
	}
	cp := *updated
	d.profiles[id] = &cp
	return nil
}

func (d *MemoryDirectory) DeleteMqttProfile(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.profiles, id)
	return nil
}

func (d *MemoryDirectory) GetMqttClient(ctx context.Context, id string) (*models.MqttClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	client, ok := d.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *client
	return &cp, nil
}

func (d *MemoryDirectory) ListMqttClients(ctx context.Context) ([]*models.MqttClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	clients := make([]*models.MqttClient, 0, len(d.clients))
	for _, client := range d.clients {
		cp := *client
		clients = append(clients, &cp)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

func (d *MemoryDirectory) UpdateMqttClient(ctx context.Context, id string, fn func(old *models.MqttClient) (*models.MqttClient, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var old *models.MqttClient
	if existing, ok := d.clients[id]; ok {
		cp := *existing
		old = &cp
	}
	updated, err := fn(old)
	if err != nil {
		return err
	}
	if updated == nil {
		delete(d.clients, id)
		return nil
	}
	cp := *updated
	d.clients[id] = &cp
	return nil
}

func (d *MemoryDirectory) DeleteMqttClient(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.clients, id)
	return nil
}
