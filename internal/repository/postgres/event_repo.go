package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eventadmission/internal/domain"
)

const eventColumns = `id, title, annotation, description, category_id, initiator_id, location_lat, location_lon,
		paid, participant_limit, request_moderation, confirmed_requests, state, event_date, created_on, published_on`

type eventRepository struct {
	DB dbtx
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var state string
	var publishedNull sql.NullTime
	err := row.Scan(
		&e.ID, &e.Title, &e.Annotation, &e.Description, &e.CategoryID, &e.InitiatorID,
		&e.Location.Lat, &e.Location.Lon, &e.Paid, &e.ParticipantLimit, &e.RequestModeration,
		&e.ConfirmedRequests, &state, &e.EventDate, &e.CreatedOn, &publishedNull,
	)
	if err != nil {
		return nil, err
	}
	e.State = domain.EventState(state)
	if publishedNull.Valid {
		e.PublishedOn = &publishedNull.Time
	}
	return e, nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	query := `
		INSERT INTO events (title, annotation, description, category_id, initiator_id, location_lat, location_lon,
			paid, participant_limit, request_moderation, confirmed_requests, state, event_date, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12, $13)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		e.Title, e.Annotation, e.Description, e.CategoryID, e.InitiatorID, e.Location.Lat, e.Location.Lon,
		e.Paid, e.ParticipantLimit, e.RequestModeration, string(e.State), e.EventDate, e.CreatedOn,
	).Scan(&e.ID)
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

// GetForUpdate takes a row lock held until commit, so every admission and edit
// on the same event runs one after another.
func (r *eventRepository) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE id = $1
		FOR UPDATE
	`
	return r.getOne(ctx, query, id)
}

func (r *eventRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Event, error) {
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *eventRepository) GetByIDAndInitiator(ctx context.Context, id, initiatorID string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE id = $1 AND initiator_id = $2
	`
	return r.getOne(ctx, query, id, initiatorID)
}

func (r *eventRepository) ListByInitiator(ctx context.Context, initiatorID string, params domain.PaginationParams) ([]*domain.Event, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE initiator_id = $1`, initiatorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE initiator_id = $1
		ORDER BY created_on DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.QueryContext(ctx, query, initiatorID, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Update writes every mutable column except confirmed_requests, provided the row is
// still in the expected state. A participant limit below the stored confirmed count
// or a state changed by another writer is refused with ErrConflict.
func (r *eventRepository) Update(ctx context.Context, e *domain.Event, expected domain.EventState) error {
	query := `
		UPDATE events SET
			title = $2, annotation = $3, description = $4, category_id = $5, location_lat = $6, location_lon = $7,
			paid = $8, participant_limit = $9, request_moderation = $10, state = $11, event_date = $12, published_on = $13
		WHERE id = $1 AND state = $14 AND ($9 = 0 OR confirmed_requests <= $9)
		RETURNING confirmed_requests
	`
	var published sql.NullTime
	if e.PublishedOn != nil {
		published = sql.NullTime{Time: *e.PublishedOn, Valid: true}
	}
	err := r.DB.QueryRowContext(ctx, query,
		e.ID, e.Title, e.Annotation, e.Description, e.CategoryID, e.Location.Lat, e.Location.Lon,
		e.Paid, e.ParticipantLimit, e.RequestModeration, string(e.State), e.EventDate, published,
		string(expected),
	).Scan(&e.ConfirmedRequests)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			exists, existsErr := r.exists(ctx, e.ID)
			if existsErr != nil {
				return existsErr
			}
			if exists {
				return fmt.Errorf("%w: event changed concurrently or participant limit is below confirmed requests", domain.ErrConflict)
			}
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *eventRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *eventRepository) CompareAndSetConfirmed(ctx context.Context, id string, expected, next int) (bool, error) {
	query := `
		UPDATE events SET confirmed_requests = $3
		WHERE id = $1
			AND confirmed_requests = $2
			AND ($3 <= $2 OR participant_limit = 0 OR $3 <= participant_limit)
	`
	result, err := r.DB.ExecContext(ctx, query, id, expected, next)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish a lost race from a missing row.
	exists, err := r.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}
