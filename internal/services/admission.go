package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eventadmission/internal/domain"
	"eventadmission/internal/metrics"
)

var tracer = otel.Tracer("eventadmission/internal/services")

// errCounterRace aborts a unit of work whose confirmed-counter compare-and-set lost to a concurrent writer.
var errCounterRace = errors.New("confirmed counter changed concurrently")

// DefaultMaxAttempts bounds how many times a unit of work is retried after a counter race.
const DefaultMaxAttempts = 5

// AdmissionConfig tunes the admission engine.
type AdmissionConfig struct {
	MaxAttempts int
	Timeout     time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type admissionService struct {
	tx             domain.Transactor
	events         domain.EventRepository
	requests       domain.ParticipationRequestRepository
	users          domain.UserRepository
	notifier       domain.NotificationService
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
	maxAttempts    int
	contextTimeout time.Duration
}

func NewAdmissionService(
	tx domain.Transactor,
	events domain.EventRepository,
	requests domain.ParticipationRequestRepository,
	users domain.UserRepository,
	notifier domain.NotificationService,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg AdmissionConfig,
) domain.AdmissionService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &admissionService{
		tx:             tx,
		events:         events,
		requests:       requests,
		users:          users,
		notifier:       notifier,
		metrics:        m,
		logger:         logger,
		now:            cfg.Now,
		maxAttempts:    cfg.MaxAttempts,
		contextTimeout: cfg.Timeout,
	}
}

func (s *admissionService) CreateRequest(ctx context.Context, requesterID, eventID string) (*domain.ParticipationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "AdmissionService.CreateRequest", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("requester.id", requesterID),
	))
	defer span.End()

	if err := s.requireUser(ctx, requesterID); err != nil {
		return nil, spanError(span, err)
	}

	var created *domain.ParticipationRequest
	err := s.withRetry(ctx, "create_request", func(ctx context.Context, st domain.Stores) error {
		event, err := lockEvent(ctx, st.Events, eventID)
		if err != nil {
			return err
		}
		if event.InitiatorID == requesterID {
			return fmt.Errorf("%w: the initiator cannot request participation in their own event", domain.ErrConflict)
		}
		if event.State != domain.EventStatePublished {
			return fmt.Errorf("%w: event is not published", domain.ErrConflict)
		}
		if _, err := st.Requests.GetByEventAndRequester(ctx, eventID, requesterID); err == nil {
			return fmt.Errorf("%w: request already exists", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get existing request: %w", err)
		}
		if event.IsFull() {
			return fmt.Errorf("%w: participant limit reached", domain.ErrConflict)
		}

		status := domain.RequestStatusPending
		if !event.RequestModeration {
			status = domain.RequestStatusConfirmed
		}
		req := domain.NewParticipationRequest(eventID, requesterID, status, s.now())
		if err := st.Requests.Create(ctx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if status == domain.RequestStatusConfirmed {
			if err := moveConfirmed(ctx, st.Events, event, 1); err != nil {
				return err
			}
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	s.metrics.RequestCreated(string(created.Status))
	s.logger.InfoContext(ctx, "participation request created",
		"request_id", created.ID, "event_id", eventID, "requester_id", requesterID, "status", created.Status)
	return created, nil
}

func (s *admissionService) CancelRequest(ctx context.Context, requesterID, requestID string) (*domain.ParticipationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "AdmissionService.CancelRequest", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("requester.id", requesterID),
	))
	defer span.End()

	if err := s.requireUser(ctx, requesterID); err != nil {
		return nil, spanError(span, err)
	}

	var canceled *domain.ParticipationRequest
	err := s.withRetry(ctx, "cancel_request", func(ctx context.Context, st domain.Stores) error {
		req, err := getOwnRequest(ctx, st.Requests, requesterID, requestID)
		if err != nil {
			return err
		}
		event, err := lockEvent(ctx, st.Events, req.EventID)
		if err != nil {
			return err
		}
		// Re-read under the event lock; a batch decision may have committed meanwhile.
		if req, err = getOwnRequest(ctx, st.Requests, requesterID, requestID); err != nil {
			return err
		}
		if req.Status.Terminal() {
			return fmt.Errorf("%w: request is already %s", domain.ErrConflict, req.Status)
		}

		if err := st.Requests.UpdateStatus(ctx, req.ID, req.Status, domain.RequestStatusCanceled); err != nil {
			return fmt.Errorf("cancel request: %w", err)
		}
		if req.Status == domain.RequestStatusConfirmed {
			if err := moveConfirmed(ctx, st.Events, event, -1); err != nil {
				return err
			}
		}
		req.Status = domain.RequestStatusCanceled
		canceled = req
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	s.metrics.RequestCanceled()
	s.logger.InfoContext(ctx, "participation request canceled", "request_id", requestID, "event_id", canceled.EventID)
	return canceled, nil
}

func (s *admissionService) ChangeRequestStatus(ctx context.Context, actor domain.Actor, eventID string, requestIDs []string, target domain.RequestStatus) (*domain.RequestStatusUpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "AdmissionService.ChangeRequestStatus", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("actor.kind", actor.Kind.String()),
		attribute.String("target", string(target)),
		attribute.Int("requests", len(requestIDs)),
	))
	defer span.End()

	if err := validateBatch(requestIDs, target); err != nil {
		return nil, spanError(span, err)
	}

	var (
		event  *domain.Event
		result *domain.RequestStatusUpdateResult
	)
	err := s.withRetry(ctx, "change_status", func(ctx context.Context, st domain.Stores) error {
		ev, err := lockEvent(ctx, st.Events, eventID)
		if err != nil {
			return err
		}
		if !actor.CanManage(ev) {
			return fmt.Errorf("%w: only the initiator or an administrator can moderate requests", domain.ErrConflict)
		}
		ordered, err := loadPendingBatch(ctx, st.Requests, eventID, requestIDs)
		if err != nil {
			return err
		}
		res, err := decideBatch(ctx, st, ev, ordered, target)
		if err != nil {
			return err
		}
		event, result = ev, res
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	s.metrics.RequestsDecided(string(domain.RequestStatusConfirmed), len(result.ConfirmedRequests))
	s.metrics.RequestsDecided(string(domain.RequestStatusRejected), len(result.RejectedRequests))
	s.logger.InfoContext(ctx, "batch status changed",
		"event_id", eventID, "actor", actor.Kind.String(), "target", target,
		"confirmed", len(result.ConfirmedRequests), "rejected", len(result.RejectedRequests),
		"confirmed_total", event.ConfirmedRequests)

	decided := make([]*domain.ParticipationRequest, 0, len(result.ConfirmedRequests)+len(result.RejectedRequests))
	decided = append(decided, result.ConfirmedRequests...)
	decided = append(decided, result.RejectedRequests...)
	s.notifier.RequestsDecided(ctx, event, decided)
	return result, nil
}

func (s *admissionService) ListEventRequests(ctx context.Context, actor domain.Actor, eventID string) ([]*domain.ParticipationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := getEvent(ctx, s.events, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(event) {
		return nil, fmt.Errorf("%w: only the initiator or an administrator can list requests", domain.ErrConflict)
	}
	reqs, err := s.requests.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

func (s *admissionService) ListRequesterRequests(ctx context.Context, requesterID string) ([]*domain.ParticipationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := s.requireUser(ctx, requesterID); err != nil {
		return nil, err
	}
	reqs, err := s.requests.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

// withRetry runs fn in a unit of work, re-running it from scratch when it lost a counter race.
func (s *admissionService) withRetry(ctx context.Context, op string, fn func(ctx context.Context, st domain.Stores) error) error {
	for attempt := 1; ; attempt++ {
		err := s.tx.WithinTx(ctx, fn)
		if !errors.Is(err, errCounterRace) {
			return err
		}
		if attempt >= s.maxAttempts {
			s.metrics.CapacityExhausted(op)
			s.logger.WarnContext(ctx, "giving up after counter races", "operation", op, "attempts", attempt)
			return fmt.Errorf("%w: event capacity is changing concurrently, try again", domain.ErrConflict)
		}
		s.metrics.CapacityRetry(op)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (s *admissionService) requireUser(ctx context.Context, userID string) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
		}
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}

func validateBatch(requestIDs []string, target domain.RequestStatus) error {
	if _, err := domain.ParseDecision(string(target)); err != nil {
		return err
	}
	if len(requestIDs) == 0 {
		return fmt.Errorf("%w: request ids are required", domain.ErrValidation)
	}
	seen := make(map[string]struct{}, len(requestIDs))
	for _, id := range requestIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate request id %s", domain.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// loadPendingBatch returns the named requests in caller order. Every one must exist,
// belong to eventID and still be PENDING.
func loadPendingBatch(ctx context.Context, repo domain.ParticipationRequestRepository, eventID string, ids []string) ([]*domain.ParticipationRequest, error) {
	found, err := repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	byID := make(map[string]*domain.ParticipationRequest, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	ordered := make([]*domain.ParticipationRequest, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: request %s", domain.ErrNotFound, id)
		}
		if r.EventID != eventID {
			return nil, fmt.Errorf("%w: request %s belongs to another event", domain.ErrConflict, id)
		}
		if r.Status != domain.RequestStatusPending {
			return nil, fmt.Errorf("%w: request %s is %s, only pending requests can be decided", domain.ErrConflict, id, r.Status)
		}
		ordered = append(ordered, r)
	}
	return ordered, nil
}

// decideBatch confirms as many of ordered as capacity allows and rejects the rest.
// When the event becomes full every other pending request is rejected too.
func decideBatch(ctx context.Context, st domain.Stores, event *domain.Event, ordered []*domain.ParticipationRequest, target domain.RequestStatus) (*domain.RequestStatusUpdateResult, error) {
	var toConfirm, toReject []*domain.ParticipationRequest
	switch {
	case target == domain.RequestStatusRejected:
		toReject = ordered
	case event.Unlimited():
		toConfirm = ordered
	default:
		remaining := event.RemainingSlots()
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: participant limit reached", domain.ErrConflict)
		}
		n := min(remaining, len(ordered))
		toConfirm, toReject = ordered[:n], slices.Clone(ordered[n:])
	}

	if len(toConfirm) > 0 {
		if err := st.Requests.BulkSetStatus(ctx, requestIDs(toConfirm), domain.RequestStatusConfirmed); err != nil {
			return nil, fmt.Errorf("confirm requests: %w", err)
		}
		if err := moveConfirmed(ctx, st.Events, event, len(toConfirm)); err != nil {
			return nil, err
		}
	}

	if target == domain.RequestStatusConfirmed && !event.Unlimited() && event.ConfirmedRequests == event.ParticipantLimit {
		pending, err := st.Requests.ListPendingByEvent(ctx, event.ID)
		if err != nil {
			return nil, fmt.Errorf("list pending requests: %w", err)
		}
		inBatch := make(map[string]struct{}, len(toReject))
		for _, r := range toReject {
			inBatch[r.ID] = struct{}{}
		}
		for _, r := range pending {
			if _, ok := inBatch[r.ID]; !ok {
				toReject = append(toReject, r)
			}
		}
	}

	if len(toReject) > 0 {
		if err := st.Requests.BulkSetStatus(ctx, requestIDs(toReject), domain.RequestStatusRejected); err != nil {
			return nil, fmt.Errorf("reject requests: %w", err)
		}
	}

	for _, r := range toConfirm {
		r.Status = domain.RequestStatusConfirmed
	}
	for _, r := range toReject {
		r.Status = domain.RequestStatusRejected
	}
	return &domain.RequestStatusUpdateResult{
		ConfirmedRequests: nonNil(toConfirm),
		RejectedRequests:  nonNil(toReject),
	}, nil
}

// moveConfirmed shifts the event's confirmed counter by delta through compare-and-set.
func moveConfirmed(ctx context.Context, events domain.EventRepository, event *domain.Event, delta int) error {
	next := event.ConfirmedRequests + delta
	ok, err := events.CompareAndSetConfirmed(ctx, event.ID, event.ConfirmedRequests, next)
	if err != nil {
		return fmt.Errorf("update confirmed counter: %w", err)
	}
	if !ok {
		return errCounterRace
	}
	event.ConfirmedRequests = next
	return nil
}

func getEvent(ctx context.Context, events domain.EventRepository, eventID string) (*domain.Event, error) {
	event, err := events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// lockEvent reads the event inside a unit of work and holds its row until the work ends.
func lockEvent(ctx context.Context, events domain.EventRepository, eventID string) (*domain.Event, error) {
	event, err := events.GetForUpdate(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	return event, nil
}

// getOwnRequest hides requests of other users behind ErrNotFound.
func getOwnRequest(ctx context.Context, requests domain.ParticipationRequestRepository, requesterID, requestID string) (*domain.ParticipationRequest, error) {
	req, err := requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: request %s", domain.ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req.RequesterID != requesterID {
		return nil, fmt.Errorf("%w: request %s", domain.ErrNotFound, requestID)
	}
	return req, nil
}

func requestIDs(reqs []*domain.ParticipationRequest) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}

func nonNil(reqs []*domain.ParticipationRequest) []*domain.ParticipationRequest {
	if reqs == nil {
		return []*domain.ParticipationRequest{}
	}
	return reqs
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
