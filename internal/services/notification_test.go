package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"

	"eventadmission/internal/domain"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, html, text string) error {
	args := m.Called(ctx, to, subject, html, text)
	return args.Error(0)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(templateName string, data any) (string, string, string, error) {
	args := m.Called(templateName, data)
	return args.String(0), args.String(1), args.String(2), args.Error(3)
}

func TestNotificationService_RequestsDecided(t *testing.T) {
	ctx := context.Background()
	event := &domain.Event{ID: "ev-1", Title: "Go meetup", InitiatorID: "owner"}
	reqs := []*domain.ParticipationRequest{
		{ID: "r1", EventID: "ev-1", RequesterID: "a", Status: domain.RequestStatusConfirmed},
		{ID: "r2", EventID: "ev-1", RequesterID: "b", Status: domain.RequestStatusRejected},
		{ID: "r3", EventID: "ev-1", RequesterID: "ghost", Status: domain.RequestStatusRejected},
	}

	mailer := new(MockMailer)
	renderer := new(MockRenderer)
	renderer.On("Render", "request_decision", mock.MatchedBy(func(d *domain.RequestDecisionEmailData) bool {
		return d.RequestID == "r1" && d.Status == domain.RequestStatusConfirmed && d.EventTitle == "Go meetup"
	})).Return("Confirmed", "<p>yes</p>", "yes", nil)
	renderer.On("Render", "request_decision", mock.MatchedBy(func(d *domain.RequestDecisionEmailData) bool {
		return d.RequestID == "r2" && d.Status == domain.RequestStatusRejected
	})).Return("Rejected", "<p>no</p>", "no", nil)
	mailer.On("Send", mock.Anything, "a@example.com", "Confirmed", "<p>yes</p>", "yes").Return(nil)
	mailer.On("Send", mock.Anything, "b@example.com", "Rejected", "<p>no</p>", "no").Return(errors.New("ses throttled"))

	svc := NewNotificationService(mailer, renderer, newFakeUserRepo("owner", "a", "b"), testLogger)
	svc.RequestsDecided(ctx, event, reqs)

	renderer.AssertExpectations(t)
	mailer.AssertExpectations(t)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestNotificationService_RequestsDecided_Empty(t *testing.T) {
	mailer := new(MockMailer)
	renderer := new(MockRenderer)
	svc := NewNotificationService(mailer, renderer, newFakeUserRepo(), testLogger)

	svc.RequestsDecided(context.Background(), &domain.Event{ID: "ev-1"}, nil)

	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotificationService_EventModerated(t *testing.T) {
	ctx := context.Background()

	t.Run("mails the initiator", func(t *testing.T) {
		mailer := new(MockMailer)
		renderer := new(MockRenderer)
		renderer.On("Render", "event_moderation", &domain.EventModerationEmailData{
			Email: "owner@example.com", Name: "owner", EventTitle: "Go meetup", EventID: "ev-1", State: domain.EventStatePublished,
		}).Return("Published", "<p>live</p>", "live", nil)
		mailer.On("Send", mock.Anything, "owner@example.com", "Published", "<p>live</p>", "live").Return(nil)

		svc := NewNotificationService(mailer, renderer, newFakeUserRepo("owner"), testLogger)
		svc.EventModerated(ctx, &domain.Event{ID: "ev-1", Title: "Go meetup", InitiatorID: "owner", State: domain.EventStatePublished})

		renderer.AssertExpectations(t)
		mailer.AssertExpectations(t)
	})

	t.Run("render failure skips send", func(t *testing.T) {
		mailer := new(MockMailer)
		renderer := new(MockRenderer)
		renderer.On("Render", "event_moderation", mock.Anything).Return("", "", "", errors.New("missing template"))

		svc := NewNotificationService(mailer, renderer, newFakeUserRepo("owner"), testLogger)
		svc.EventModerated(ctx, &domain.Event{ID: "ev-1", InitiatorID: "owner", State: domain.EventStateCanceled})

		mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
