package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// RequestDecisionEmailData holds data for the participation decision email.
type RequestDecisionEmailData struct {
	Email      string
	Name       string
	EventTitle string
	EventID    string
	RequestID  string
	Status     RequestStatus
}

// EventModerationEmailData holds data for the event moderation outcome email.
type EventModerationEmailData struct {
	Email      string
	Name       string
	EventTitle string
	EventID    string
	State      EventState
}

// NotificationService sends best-effort notifications about committed decisions.
// Implementations log failures instead of returning them.
type NotificationService interface {
	RequestsDecided(ctx context.Context, event *Event, requests []*ParticipationRequest)
	EventModerated(ctx context.Context, event *Event)
}
