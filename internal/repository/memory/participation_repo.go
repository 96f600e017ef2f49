package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"eventadmission/internal/domain"
)

type requestRepository struct {
	store *Store
	tx    *data
}

func (r *requestRepository) Create(ctx context.Context, req *domain.ParticipationRequest) error {
	return r.store.view(r.tx, func(d *data) error {
		for _, row := range d.requests {
			if row.req.EventID == req.EventID && row.req.RequesterID == req.RequesterID {
				return domain.ErrConflict
			}
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		d.seq++
		d.requests[req.ID] = requestRow{req: *req, seq: d.seq}
		return nil
	})
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.ParticipationRequest, error) {
	var out *domain.ParticipationRequest
	err := r.store.view(r.tx, func(d *data) error {
		row, ok := d.requests[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &row.req
		return nil
	})
	return out, err
}

func (r *requestRepository) GetByEventAndRequester(ctx context.Context, eventID, requesterID string) (*domain.ParticipationRequest, error) {
	found := r.filter(func(p domain.ParticipationRequest) bool {
		return p.EventID == eventID && p.RequesterID == requesterID
	})
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	return found[0], nil
}

func (r *requestRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.ParticipationRequest, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.filter(func(p domain.ParticipationRequest) bool {
		_, ok := want[p.ID]
		return ok
	}), nil
}

func (r *requestRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.ParticipationRequest, error) {
	return r.filter(func(p domain.ParticipationRequest) bool {
		return p.EventID == eventID
	}), nil
}

func (r *requestRepository) ListPendingByEvent(ctx context.Context, eventID string) ([]*domain.ParticipationRequest, error) {
	return r.filter(func(p domain.ParticipationRequest) bool {
		return p.EventID == eventID && p.Status == domain.RequestStatusPending
	}), nil
}

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.ParticipationRequest, error) {
	out := r.filter(func(p domain.ParticipationRequest) bool {
		return p.RequesterID == requesterID
	})
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id string, from, to domain.RequestStatus) error {
	return r.store.view(r.tx, func(d *data) error {
		row, ok := d.requests[id]
		if !ok {
			return domain.ErrNotFound
		}
		if row.req.Status != from {
			return fmt.Errorf("%w: request %s is no longer %s", domain.ErrConflict, id, from)
		}
		row.req.Status = to
		d.requests[id] = row
		return nil
	})
}

func (r *requestRepository) BulkSetStatus(ctx context.Context, ids []string, status domain.RequestStatus) error {
	return r.store.view(r.tx, func(d *data) error {
		for _, id := range ids {
			row, ok := d.requests[id]
			if !ok {
				return domain.ErrNotFound
			}
			if row.req.Status != domain.RequestStatusPending {
				return fmt.Errorf("%w: request %s is no longer pending", domain.ErrConflict, id)
			}
		}
		for _, id := range ids {
			row := d.requests[id]
			row.req.Status = status
			d.requests[id] = row
		}
		return nil
	})
}

// filter returns copies of matching requests in insertion order.
func (r *requestRepository) filter(match func(domain.ParticipationRequest) bool) []*domain.ParticipationRequest {
	var rows []requestRow
	_ = r.store.view(r.tx, func(d *data) error {
		for _, row := range d.requests {
			if match(row.req) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]*domain.ParticipationRequest, len(rows))
	for i := range rows {
		req := rows[i].req
		out[i] = &req
	}
	return out
}
