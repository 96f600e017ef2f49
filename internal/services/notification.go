package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"eventadmission/internal/domain"
)

// maxConcurrentSends bounds parallel mail deliveries for one batch decision.
const maxConcurrentSends = 4

type notificationService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	users    domain.UserRepository
	logger   *slog.Logger
}

// NewNotificationService returns a NotificationService that mails requesters and initiators
// about decisions. Delivery failures are logged and never surface to the caller.
func NewNotificationService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, users domain.UserRepository, logger *slog.Logger) domain.NotificationService {
	return &notificationService{mailer: mailer, renderer: renderer, users: users, logger: logger}
}

func (s *notificationService) RequestsDecided(ctx context.Context, event *domain.Event, requests []*domain.ParticipationRequest) {
	if event == nil || len(requests) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, req := range requests {
		g.Go(func() error {
			user, err := s.users.GetByID(ctx, req.RequesterID)
			if err != nil {
				s.logger.WarnContext(ctx, "decision email skipped", "request_id", req.ID, "err", err)
				return nil
			}
			data := &domain.RequestDecisionEmailData{
				Email:      user.Email,
				Name:       user.Name,
				EventTitle: event.Title,
				EventID:    event.ID,
				RequestID:  req.ID,
				Status:     req.Status,
			}
			if err := s.send(ctx, "request_decision", user.Email, data); err != nil {
				s.logger.WarnContext(ctx, "decision email failed", "request_id", req.ID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *notificationService) EventModerated(ctx context.Context, event *domain.Event) {
	if event == nil {
		return
	}
	user, err := s.users.GetByID(ctx, event.InitiatorID)
	if err != nil {
		s.logger.WarnContext(ctx, "moderation email skipped", "event_id", event.ID, "err", err)
		return
	}
	data := &domain.EventModerationEmailData{
		Email:      user.Email,
		Name:       user.Name,
		EventTitle: event.Title,
		EventID:    event.ID,
		State:      event.State,
	}
	if err := s.send(ctx, "event_moderation", user.Email, data); err != nil {
		s.logger.WarnContext(ctx, "moderation email failed", "event_id", event.ID, "err", err)
	}
}

func (s *notificationService) send(ctx context.Context, templateName, to string, data any) error {
	subject, htmlBody, textBody, err := s.renderer.Render(templateName, data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", templateName, err)
	}
	if err := s.mailer.Send(ctx, to, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("failed to send %s email: %w", templateName, err)
	}
	s.logger.DebugContext(ctx, "email sent", "template", templateName, "to", to)
	return nil
}
