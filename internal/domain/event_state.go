package domain

import (
	"fmt"
	"time"
)

// StateAction is a requested lifecycle transition.
type StateAction string

const (
	// Owner actions.
	StateActionSendToReview StateAction = "SEND_TO_REVIEW"
	StateActionCancelReview StateAction = "CANCEL_REVIEW"
	// Administrator actions.
	StateActionPublish StateAction = "PUBLISH_EVENT"
	StateActionReject  StateAction = "REJECT_EVENT"
)

// ParseStateAction maps a raw action name to a StateAction.
func ParseStateAction(s string) (StateAction, error) {
	switch a := StateAction(s); a {
	case StateActionSendToReview, StateActionCancelReview, StateActionPublish, StateActionReject:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown state action %q", ErrValidation, s)
}

// ActorKind tags who is acting on an event.
type ActorKind int

const (
	ActorOwner ActorKind = iota + 1
	ActorAdmin
)

func (k ActorKind) String() string {
	switch k {
	case ActorOwner:
		return "owner"
	case ActorAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Actor identifies the caller of a lifecycle or admission operation.
type Actor struct {
	Kind   ActorKind
	UserID string
}

// Owner returns an actor acting as a regular user.
func Owner(userID string) Actor {
	return Actor{Kind: ActorOwner, UserID: userID}
}

// Admin returns an administrator actor. userID may be empty.
func Admin(userID string) Actor {
	return Actor{Kind: ActorAdmin, UserID: userID}
}

// IsAdmin reports whether the actor has administrator rights.
func (a Actor) IsAdmin() bool {
	return a.Kind == ActorAdmin
}

// CanManage reports whether the actor may moderate requests of e.
func (a Actor) CanManage(e *Event) bool {
	return a.IsAdmin() || (a.Kind == ActorOwner && a.UserID != "" && a.UserID == e.InitiatorID)
}

// ApplyStateAction runs one guarded lifecycle transition on e.
// Publishing stamps PublishedOn with now. Failed guards return ErrConflict and leave e unchanged.
func ApplyStateAction(e *Event, actor Actor, action StateAction, now time.Time) error {
	switch actor.Kind {
	case ActorAdmin:
		switch action {
		case StateActionPublish:
			if e.State != EventStateDraft {
				return fmt.Errorf("%w: only a pending event can be published, state is %s", ErrConflict, e.State)
			}
			published := now
			e.State = EventStatePublished
			e.PublishedOn = &published
			return nil
		case StateActionReject:
			if e.State == EventStatePublished {
				return fmt.Errorf("%w: a published event cannot be rejected", ErrConflict)
			}
			e.State = EventStateCanceled
			return nil
		case StateActionSendToReview, StateActionCancelReview:
			return fmt.Errorf("%w: %s is an owner action", ErrConflict, action)
		}
	case ActorOwner:
		switch action {
		case StateActionSendToReview, StateActionCancelReview:
			if e.State == EventStatePublished {
				return fmt.Errorf("%w: a published event cannot be changed by its owner", ErrConflict)
			}
			if action == StateActionSendToReview {
				e.State = EventStateDraft
			} else {
				e.State = EventStateCanceled
			}
			return nil
		case StateActionPublish, StateActionReject:
			return fmt.Errorf("%w: %s is an administrator action", ErrConflict, action)
		}
	default:
		return fmt.Errorf("%w: unknown actor", ErrConflict)
	}
	return fmt.Errorf("%w: unknown state action %q", ErrValidation, action)
}
