package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"eventadmission/internal/domain"
)

type eventRepository struct {
	store *Store
	tx    *data
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	return r.store.view(r.tx, func(d *data) error {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		d.events[e.ID] = *e
		return nil
	})
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var out *domain.Event
	err := r.store.view(r.tx, func(d *data) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

// GetForUpdate is GetByID: units of work already hold the store mutex.
func (r *eventRepository) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return r.GetByID(ctx, id)
}

func (r *eventRepository) GetByIDAndInitiator(ctx context.Context, id, initiatorID string) (*domain.Event, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.InitiatorID != initiatorID {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (r *eventRepository) ListByInitiator(ctx context.Context, initiatorID string, params domain.PaginationParams) ([]*domain.Event, int, error) {
	var all []*domain.Event
	err := r.store.view(r.tx, func(d *data) error {
		for _, e := range d.events {
			if e.InitiatorID == initiatorID {
				all = append(all, &e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedOn.Equal(all[j].CreatedOn) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedOn.After(all[j].CreatedOn)
	})
	start, end := params.Window(len(all))
	return all[start:end], len(all), nil
}

func (r *eventRepository) Update(ctx context.Context, e *domain.Event, expected domain.EventState) error {
	return r.store.view(r.tx, func(d *data) error {
		stored, ok := d.events[e.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if stored.State != expected {
			return fmt.Errorf("%w: event is %s, expected %s", domain.ErrConflict, stored.State, expected)
		}
		if e.ParticipantLimit > 0 && stored.ConfirmedRequests > e.ParticipantLimit {
			return fmt.Errorf("%w: participant limit is below confirmed requests", domain.ErrConflict)
		}
		next := *e
		next.ConfirmedRequests = stored.ConfirmedRequests
		next.Views = 0
		d.events[e.ID] = next
		e.ConfirmedRequests = stored.ConfirmedRequests
		return nil
	})
}

func (r *eventRepository) CompareAndSetConfirmed(ctx context.Context, id string, expected, next int) (bool, error) {
	var swapped bool
	err := r.store.view(r.tx, func(d *data) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrNotFound
		}
		if e.ConfirmedRequests != expected {
			return nil
		}
		if next > e.ConfirmedRequests && e.ParticipantLimit > 0 && next > e.ParticipantLimit {
			return nil
		}
		e.ConfirmedRequests = next
		d.events[id] = e
		swapped = true
		return nil
	})
	return swapped, err
}
