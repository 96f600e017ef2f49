// Package memory provides an in-process implementation of the storage ports.
// It backs local runs (STORE_DRIVER=memory) and concurrency tests.
package memory

import (
	"context"
	"maps"
	"sync"

	"eventadmission/internal/domain"
)

type requestRow struct {
	req domain.ParticipationRequest
	seq int64
}

type data struct {
	events   map[string]domain.Event
	requests map[string]requestRow
	seq      int64
}

func (d *data) clone() *data {
	return &data{
		events:   maps.Clone(d.events),
		requests: maps.Clone(d.requests),
		seq:      d.seq,
	}
}

// Store holds events and participation requests in memory.
// WithinTx serializes units of work on a single mutex and applies a cloned
// snapshot only when the work succeeds.
type Store struct {
	mu   sync.Mutex
	data *data

	usersMu sync.RWMutex
	users   map[string]domain.User
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		data: &data{
			events:   make(map[string]domain.Event),
			requests: make(map[string]requestRow),
		},
		users: make(map[string]domain.User),
	}
}

// Events returns an EventRepository whose calls are individually atomic.
func (s *Store) Events() domain.EventRepository {
	return &eventRepository{store: s}
}

// Requests returns a ParticipationRequestRepository whose calls are individually atomic.
func (s *Store) Requests() domain.ParticipationRequestRepository {
	return &requestRepository{store: s}
}

// WithinTx implements domain.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, stores domain.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	stores := domain.Stores{
		Events:   &eventRepository{store: s, tx: snapshot},
		Requests: &requestRepository{store: s, tx: snapshot},
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// view runs fn against the tx snapshot when bound to one, otherwise against the
// live data under the store mutex.
func (s *Store) view(tx *data, fn func(d *data) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// AddUser registers a user for existence checks and notification lookups.
func (s *Store) AddUser(u domain.User) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	s.users[u.ID] = u
}

// Users returns a UserRepository backed by the registered users.
func (s *Store) Users() domain.UserRepository {
	return &userRepository{store: s}
}

type userRepository struct {
	store *Store
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.store.usersMu.RLock()
	defer r.store.usersMu.RUnlock()
	u, ok := r.store.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}
