package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"eventadmission/internal/domain"
)

type participationRequestRepository struct {
	DB dbtx
}

func NewParticipationRequestRepository(db *sql.DB) domain.ParticipationRequestRepository {
	return &participationRequestRepository{
		DB: db,
	}
}

func (r *participationRequestRepository) Create(ctx context.Context, req *domain.ParticipationRequest) error {
	query := `
		INSERT INTO participation_requests (event_id, requester_id, status, created)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query, req.EventID, req.RequesterID, string(req.Status), req.Created).Scan(&req.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: request already exists", domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *participationRequestRepository) GetByID(ctx context.Context, id string) (*domain.ParticipationRequest, error) {
	query := `
		SELECT id, event_id, requester_id, status, created
		FROM participation_requests
		WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

func (r *participationRequestRepository) GetByEventAndRequester(ctx context.Context, eventID, requesterID string) (*domain.ParticipationRequest, error) {
	query := `
		SELECT id, event_id, requester_id, status, created
		FROM participation_requests
		WHERE event_id = $1 AND requester_id = $2
	`
	return r.getOne(ctx, query, eventID, requesterID)
}

func (r *participationRequestRepository) getOne(ctx context.Context, query string, args ...any) (*domain.ParticipationRequest, error) {
	req := &domain.ParticipationRequest{}
	var status string
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&req.ID, &req.EventID, &req.RequesterID, &status, &req.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	return req, nil
}

func (r *participationRequestRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.ParticipationRequest, error) {
	query := `
		SELECT id, event_id, requester_id, status, created
		FROM participation_requests
		WHERE id = ANY($1)
	`
	return r.list(ctx, query, pq.Array(ids))
}

func (r *participationRequestRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.ParticipationRequest, error) {
	query := `
		SELECT id, event_id, requester_id, status, created
		FROM participation_requests
		WHERE event_id = $1
		ORDER BY created, id
	`
	return r.list(ctx, query, eventID)
}

func (r *participationRequestRepository) ListPendingByEvent(ctx context.Context, eventID string) ([]*domain.ParticipationRequest, error) {
	query := `
		SELECT id, event_id, requester_id, status, created
		FROM participation_requests
		WHERE event_id = $1 AND status = 'PENDING'
		ORDER BY created, id
	`
	return r.list(ctx, query, eventID)
}

func (r *participationRequestRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.ParticipationRequest, error) {
	query := `
		SELECT id, event_id, requester_id, status, created
		FROM participation_requests
		WHERE requester_id = $1
		ORDER BY created DESC, id
	`
	return r.list(ctx, query, requesterID)
}

func (r *participationRequestRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ParticipationRequest, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := make([]*domain.ParticipationRequest, 0)
	for rows.Next() {
		req := &domain.ParticipationRequest{}
		var status string
		if err := rows.Scan(&req.ID, &req.EventID, &req.RequesterID, &status, &req.Created); err != nil {
			return nil, err
		}
		req.Status = domain.RequestStatus(status)
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *participationRequestRepository) UpdateStatus(ctx context.Context, id string, from, to domain.RequestStatus) error {
	result, err := r.DB.ExecContext(ctx,
		`UPDATE participation_requests SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: request %s is no longer %s", domain.ErrConflict, id, from)
	}
	return nil
}

func (r *participationRequestRepository) BulkSetStatus(ctx context.Context, ids []string, status domain.RequestStatus) error {
	if len(ids) == 0 {
		return nil
	}
	result, err := r.DB.ExecContext(ctx,
		`UPDATE participation_requests SET status = $1 WHERE id = ANY($2) AND status = 'PENDING'`,
		string(status), pq.Array(ids),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows != int64(len(ids)) {
		return fmt.Errorf("%w: %d of %d requests were still pending", domain.ErrConflict, rows, len(ids))
	}
	return nil
}
