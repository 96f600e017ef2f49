package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"eventadmission/internal/domain"
	"eventadmission/internal/metrics"
)

type eventService struct {
	tx             domain.Transactor
	events         domain.EventRepository
	users          domain.UserRepository
	stats          domain.StatsClient
	notifier       domain.NotificationService
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
	contextTimeout time.Duration
}

func NewEventService(
	tx domain.Transactor,
	events domain.EventRepository,
	users domain.UserRepository,
	stats domain.StatsClient,
	notifier domain.NotificationService,
	m *metrics.Metrics,
	logger *slog.Logger,
	timeout time.Duration,
	now func() time.Time,
) domain.EventService {
	if now == nil {
		now = time.Now
	}
	return &eventService{
		tx:             tx,
		events:         events,
		users:          users,
		stats:          stats,
		notifier:       notifier,
		metrics:        m,
		logger:         logger,
		now:            now,
		contextTimeout: timeout,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, initiatorID string, in domain.NewEventInput) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	if err := domain.CheckLeadTime(in.EventDate, now); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, initiatorID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, initiatorID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	event := domain.NewEvent(initiatorID, in, now)
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.InfoContext(ctx, "event created", "event_id", event.ID, "initiator_id", initiatorID)
	return event, nil
}

func (s *eventService) EditAsOwner(ctx context.Context, ownerID, eventID string, in domain.UpdateEventInput) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "EventService.EditAsOwner", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, spanError(span, err)
	}
	action, err := parseAction(in.StateAction)
	if err != nil {
		return nil, spanError(span, err)
	}

	var event *domain.Event
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st domain.Stores) error {
		e, err := lockEvent(ctx, st.Events, eventID)
		if err != nil {
			return err
		}
		if e.InitiatorID != ownerID {
			return fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
		}
		if e.State == domain.EventStatePublished {
			return fmt.Errorf("%w: a published event cannot be edited by its owner", domain.ErrConflict)
		}
		now := s.now()
		if in.EventDate != nil {
			if err := domain.CheckLeadTime(*in.EventDate, now); err != nil {
				return err
			}
		}

		read := e.State
		in.ApplyFields(e)
		if err := checkLimit(e); err != nil {
			return err
		}
		if action != "" {
			if err := domain.ApplyStateAction(e, domain.Owner(ownerID), action, now); err != nil {
				return err
			}
		}
		if err := st.Events.Update(ctx, e, read); err != nil {
			return wrapUpdate(err)
		}
		event = e
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	if action != "" {
		s.metrics.EventTransition(string(action))
	}
	s.decorateViews(ctx, event)
	return event, nil
}

func (s *eventService) EditAsAdmin(ctx context.Context, eventID string, in domain.UpdateEventInput) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "EventService.EditAsAdmin", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, spanError(span, err)
	}
	action, err := parseAction(in.StateAction)
	if err != nil {
		return nil, spanError(span, err)
	}

	var event *domain.Event
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st domain.Stores) error {
		e, err := lockEvent(ctx, st.Events, eventID)
		if err != nil {
			return err
		}

		read := e.State
		in.ApplyFields(e)
		if action != "" {
			if err := domain.ApplyStateAction(e, domain.Admin(""), action, s.now()); err != nil {
				return err
			}
		}
		// Date rules only bind once the event is (or becomes) published.
		if e.State == domain.EventStatePublished && (in.EventDate != nil || read != domain.EventStatePublished) {
			if err := domain.CheckPublicationGap(e.EventDate, e.PublishedOn); err != nil {
				return err
			}
		}
		if err := checkLimit(e); err != nil {
			return err
		}
		if err := st.Events.Update(ctx, e, read); err != nil {
			return wrapUpdate(err)
		}
		event = e
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	if action != "" {
		s.metrics.EventTransition(string(action))
		s.logger.InfoContext(ctx, "event moderated", "event_id", event.ID, "action", action, "state", event.State)
		s.notifier.EventModerated(ctx, event)
	}
	s.decorateViews(ctx, event)
	return event, nil
}

func (s *eventService) GetEventForOwner(ctx context.Context, ownerID, eventID string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := s.events.GetByIDAndInitiator(ctx, eventID, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	s.decorateViews(ctx, event)
	return event, nil
}

func (s *eventService) ListEventsByOwner(ctx context.Context, ownerID string, params domain.PaginationParams) ([]*domain.Event, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	events, total, err := s.events.ListByInitiator(ctx, ownerID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	s.decorateViews(ctx, events...)
	return events, total, nil
}

func (s *eventService) GetPublishedEvent(ctx context.Context, eventID string, hit domain.EndpointHit) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := getEvent(ctx, s.events, eventID)
	if err != nil {
		return nil, err
	}
	if event.State != domain.EventStatePublished {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
	}
	if hit.Timestamp.IsZero() {
		hit.Timestamp = s.now()
	}
	if err := s.stats.RecordHit(ctx, hit); err != nil {
		s.logger.WarnContext(ctx, "record hit failed", "event_id", eventID, "err", err)
	}
	s.decorateViews(ctx, event)
	return event, nil
}

// decorateViews fills Views for published events. Stats failures are logged and leave Views at 0.
func (s *eventService) decorateViews(ctx context.Context, events ...*domain.Event) {
	var uris []string
	var start time.Time
	for _, e := range events {
		e.Views = 0
		if e.PublishedOn == nil {
			continue
		}
		uris = append(uris, domain.EventURI(e.ID))
		if start.IsZero() || e.PublishedOn.Before(start) {
			start = *e.PublishedOn
		}
	}
	if len(uris) == 0 {
		return
	}
	views, err := s.stats.ViewsForEvents(ctx, start, s.now(), uris)
	if err != nil {
		s.logger.WarnContext(ctx, "fetch views failed", "events", len(uris), "err", err)
		return
	}
	for _, e := range events {
		if e.PublishedOn != nil {
			e.Views = views[domain.EventURI(e.ID)]
		}
	}
}

func checkLimit(event *domain.Event) error {
	if !event.Unlimited() && event.ConfirmedRequests > event.ParticipantLimit {
		return fmt.Errorf("%w: participant limit %d is below %d confirmed requests",
			domain.ErrConflict, event.ParticipantLimit, event.ConfirmedRequests)
	}
	return nil
}

// parseAction returns the empty action when none was requested.
func parseAction(raw string) (domain.StateAction, error) {
	if raw == "" {
		return "", nil
	}
	return domain.ParseStateAction(raw)
}

func wrapUpdate(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return err
	}
	return fmt.Errorf("update event: %w", err)
}
