package domain

import (
	"context"
	"fmt"
	"time"
)

// RequestStatus is the status of a participation request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusConfirmed RequestStatus = "CONFIRMED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCanceled  RequestStatus = "CANCELED"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusRejected || s == RequestStatusCanceled
}

// ParseDecision maps a batch target status. Only CONFIRMED and REJECTED are accepted.
func ParseDecision(s string) (RequestStatus, error) {
	switch st := RequestStatus(s); st {
	case RequestStatusConfirmed, RequestStatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: status must be CONFIRMED or REJECTED, got %q", ErrValidation, s)
}

// ParticipationRequest is a user's application to attend an event.
// swagger:model ParticipationRequest
type ParticipationRequest struct {
	ID          string        `json:"id"`
	EventID     string        `json:"event_id"`
	RequesterID string        `json:"requester_id"`
	Status      RequestStatus `json:"status"`
	Created     time.Time     `json:"created"`
}

// NewParticipationRequest returns a request in the given initial status. ID is set by the repository on create.
func NewParticipationRequest(eventID, requesterID string, status RequestStatus, created time.Time) *ParticipationRequest {
	return &ParticipationRequest{
		EventID:     eventID,
		RequesterID: requesterID,
		Status:      status,
		Created:     created,
	}
}

// RequestStatusUpdateResult is the outcome of a batch status change.
// swagger:model RequestStatusUpdateResult
type RequestStatusUpdateResult struct {
	ConfirmedRequests []*ParticipationRequest `json:"confirmed_requests"`
	RejectedRequests  []*ParticipationRequest `json:"rejected_requests"`
}

// ParticipationRequestRepository defines the interface for participation request storage.
type ParticipationRequestRepository interface {
	// Create returns ErrConflict when the requester already has a request for the event.
	Create(ctx context.Context, req *ParticipationRequest) error
	GetByID(ctx context.Context, id string) (*ParticipationRequest, error)
	GetByEventAndRequester(ctx context.Context, eventID, requesterID string) (*ParticipationRequest, error)
	// ListByIDs returns the requests found, in no particular order.
	ListByIDs(ctx context.Context, ids []string) ([]*ParticipationRequest, error)
	ListByEvent(ctx context.Context, eventID string) ([]*ParticipationRequest, error)
	ListPendingByEvent(ctx context.Context, eventID string) ([]*ParticipationRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*ParticipationRequest, error)
	// UpdateStatus moves a request from one status to another and returns ErrConflict
	// when its stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to RequestStatus) error
	// BulkSetStatus moves pending requests to status. It returns ErrConflict unless every
	// one of them was still pending.
	BulkSetStatus(ctx context.Context, ids []string, status RequestStatus) error
}

// AdmissionService defines the participation request admission engine.
type AdmissionService interface {
	CreateRequest(ctx context.Context, requesterID, eventID string) (*ParticipationRequest, error)
	CancelRequest(ctx context.Context, requesterID, requestID string) (*ParticipationRequest, error)
	ChangeRequestStatus(ctx context.Context, actor Actor, eventID string, requestIDs []string, target RequestStatus) (*RequestStatusUpdateResult, error)
	ListEventRequests(ctx context.Context, actor Actor, eventID string) ([]*ParticipationRequest, error)
	ListRequesterRequests(ctx context.Context, requesterID string) ([]*ParticipationRequest, error)
}
