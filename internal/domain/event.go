package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// EventState is the moderation state of an event.
type EventState string

const (
	// EventStateDraft means the event awaits moderation.
	EventStateDraft     EventState = "DRAFT"
	EventStatePublished EventState = "PUBLISHED"
	EventStateCanceled  EventState = "CANCELED"
)

// Scheduling constraints on EventDate.
const (
	MinLeadTime         = 2 * time.Hour
	MinAfterPublication = time.Hour
)

// Field length bounds.
const (
	titleMinLen       = 3
	titleMaxLen       = 120
	annotationMinLen  = 20
	annotationMaxLen  = 2000
	descriptionMinLen = 20
	descriptionMaxLen = 7000
)

// Location is a geographic point.
// swagger:model Location
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Event is a public event with bounded participant capacity.
// ConfirmedRequests always equals the number of CONFIRMED participation requests
// and never exceeds ParticipantLimit unless the limit is 0 (unlimited).
// swagger:model Event
type Event struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Annotation        string     `json:"annotation"`
	Description       string     `json:"description"`
	CategoryID        int64      `json:"category_id"`
	InitiatorID       string     `json:"initiator_id"`
	Location          Location   `json:"location"`
	Paid              bool       `json:"paid"`
	ParticipantLimit  int        `json:"participant_limit"`
	RequestModeration bool       `json:"request_moderation"`
	ConfirmedRequests int        `json:"confirmed_requests"`
	State             EventState `json:"state"`
	EventDate         time.Time  `json:"event_date"`
	CreatedOn         time.Time  `json:"created_on"`
	PublishedOn       *time.Time `json:"published_on,omitempty"`
	// Views is filled from the stats collaborator on reads and never persisted.
	Views int64 `json:"views"`
}

// NewEvent returns a DRAFT event built from input. ID is set by the repository on create.
func NewEvent(initiatorID string, in NewEventInput, createdOn time.Time) *Event {
	e := &Event{
		Title:             in.Title,
		Annotation:        in.Annotation,
		Description:       in.Description,
		CategoryID:        in.CategoryID,
		InitiatorID:       initiatorID,
		Location:          in.Location,
		RequestModeration: true,
		State:             EventStateDraft,
		EventDate:         in.EventDate,
		CreatedOn:         createdOn,
	}
	if in.Paid != nil {
		e.Paid = *in.Paid
	}
	if in.ParticipantLimit != nil {
		e.ParticipantLimit = *in.ParticipantLimit
	}
	if in.RequestModeration != nil {
		e.RequestModeration = *in.RequestModeration
	}
	return e
}

// Unlimited reports whether the event accepts any number of participants.
func (e *Event) Unlimited() bool {
	return e.ParticipantLimit == 0
}

// IsFull reports whether no confirmed slot is left.
func (e *Event) IsFull() bool {
	return !e.Unlimited() && e.ConfirmedRequests >= e.ParticipantLimit
}

// RemainingSlots returns limit - confirmed. Meaningless for unlimited events.
func (e *Event) RemainingSlots() int {
	return e.ParticipantLimit - e.ConfirmedRequests
}

// NewEventInput carries the fields accepted when creating an event.
type NewEventInput struct {
	Title             string
	Annotation        string
	Description       string
	CategoryID        int64
	Location          Location
	EventDate         time.Time
	Paid              *bool
	ParticipantLimit  *int
	RequestModeration *bool
}

// Validate checks field rules. It does not check EventDate against the clock.
func (in NewEventInput) Validate() error {
	var errs []string
	errs = appendLenErr(errs, "title", in.Title, titleMinLen, titleMaxLen)
	errs = appendLenErr(errs, "annotation", in.Annotation, annotationMinLen, annotationMaxLen)
	errs = appendLenErr(errs, "description", in.Description, descriptionMinLen, descriptionMaxLen)
	if in.CategoryID <= 0 {
		errs = append(errs, "category must be positive")
	}
	if in.EventDate.IsZero() {
		errs = append(errs, "event date is required")
	}
	if in.ParticipantLimit != nil && *in.ParticipantLimit < 0 {
		errs = append(errs, "participant limit must not be negative")
	}
	return joinValidation(errs)
}

// UpdateEventInput is a partial update. Nil fields are left unchanged.
// StateAction is the raw action name; an empty string means no transition.
type UpdateEventInput struct {
	Title             *string
	Annotation        *string
	Description       *string
	CategoryID        *int64
	Location          *Location
	EventDate         *time.Time
	Paid              *bool
	ParticipantLimit  *int
	RequestModeration *bool
	StateAction       string
}

// Validate checks field rules for the fields present.
func (in UpdateEventInput) Validate() error {
	var errs []string
	if in.Title != nil {
		errs = appendLenErr(errs, "title", *in.Title, titleMinLen, titleMaxLen)
	}
	if in.Annotation != nil {
		errs = appendLenErr(errs, "annotation", *in.Annotation, annotationMinLen, annotationMaxLen)
	}
	if in.Description != nil {
		errs = appendLenErr(errs, "description", *in.Description, descriptionMinLen, descriptionMaxLen)
	}
	if in.CategoryID != nil && *in.CategoryID <= 0 {
		errs = append(errs, "category must be positive")
	}
	if in.ParticipantLimit != nil && *in.ParticipantLimit < 0 {
		errs = append(errs, "participant limit must not be negative")
	}
	if in.StateAction != "" {
		if _, err := ParseStateAction(in.StateAction); err != nil {
			errs = append(errs, fmt.Sprintf("unknown state action %q", in.StateAction))
		}
	}
	return joinValidation(errs)
}

// ApplyFields copies the present descriptive fields onto e.
// It never touches State, PublishedOn or ConfirmedRequests.
func (in UpdateEventInput) ApplyFields(e *Event) {
	if in.Title != nil {
		e.Title = *in.Title
	}
	if in.Annotation != nil {
		e.Annotation = *in.Annotation
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.CategoryID != nil {
		e.CategoryID = *in.CategoryID
	}
	if in.Location != nil {
		e.Location = *in.Location
	}
	if in.EventDate != nil {
		e.EventDate = *in.EventDate
	}
	if in.Paid != nil {
		e.Paid = *in.Paid
	}
	if in.ParticipantLimit != nil {
		e.ParticipantLimit = *in.ParticipantLimit
	}
	if in.RequestModeration != nil {
		e.RequestModeration = *in.RequestModeration
	}
}

// CheckLeadTime fails with ErrValidation unless eventDate is later than now + MinLeadTime.
func CheckLeadTime(eventDate, now time.Time) error {
	if !eventDate.After(now.Add(MinLeadTime)) {
		return fmt.Errorf("%w: event date must be more than %s from now", ErrValidation, MinLeadTime)
	}
	return nil
}

// CheckPublicationGap fails with ErrValidation when eventDate is earlier than publishedOn + MinAfterPublication.
func CheckPublicationGap(eventDate time.Time, publishedOn *time.Time) error {
	if publishedOn == nil {
		return nil
	}
	if eventDate.Before(publishedOn.Add(MinAfterPublication)) {
		return fmt.Errorf("%w: event date must be at least %s after publication", ErrValidation, MinAfterPublication)
	}
	return nil
}

func appendLenErr(errs []string, field, v string, min, max int) []string {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	if n < min || n > max {
		return append(errs, fmt.Sprintf("%s must be between %d and %d characters", field, min, max))
	}
	return errs
}

func joinValidation(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
}

// EventRepository defines the interface for event storage.
// Update persists descriptive fields and state but never the confirmed counter,
// which only moves through CompareAndSetConfirmed.
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	// GetForUpdate reads the event and locks its row until the surrounding unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*Event, error)
	GetByIDAndInitiator(ctx context.Context, id, initiatorID string) (*Event, error)
	ListByInitiator(ctx context.Context, initiatorID string, params PaginationParams) ([]*Event, int, error)
	// Update returns ErrConflict when the stored state is no longer expected.
	Update(ctx context.Context, event *Event, expected EventState) error
	// CompareAndSetConfirmed sets the counter to next only if it still equals expected
	// and, when increasing, next does not exceed a non-zero participant limit.
	// It reports false when the stored row did not match.
	CompareAndSetConfirmed(ctx context.Context, id string, expected, next int) (bool, error)
}

// EventService defines the event publication lifecycle.
type EventService interface {
	CreateEvent(ctx context.Context, initiatorID string, in NewEventInput) (*Event, error)
	EditAsOwner(ctx context.Context, ownerID, eventID string, in UpdateEventInput) (*Event, error)
	EditAsAdmin(ctx context.Context, eventID string, in UpdateEventInput) (*Event, error)
	GetEventForOwner(ctx context.Context, ownerID, eventID string) (*Event, error)
	ListEventsByOwner(ctx context.Context, ownerID string, params PaginationParams) ([]*Event, int, error)
	GetPublishedEvent(ctx context.Context, eventID string, hit EndpointHit) (*Event, error)
}
