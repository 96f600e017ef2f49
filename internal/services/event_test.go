package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventadmission/internal/domain"
)

// fakeEventRepo is an in-memory EventRepository for tests.
type fakeEventRepo struct {
	byID      map[string]*domain.Event
	nextID    int
	err       error // if set, Create returns this error
	updateErr error
	locked    []string
	afterLock func(id string) // runs once the locked copy has been read
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		byID:   make(map[string]*domain.Event),
		nextID: 1,
	}
}

func (f *fakeEventRepo) Create(ctx context.Context, e *domain.Event) error {
	if f.err != nil {
		return f.err
	}
	e.ID = fmt.Sprintf("ev-%d", f.nextID)
	f.nextID++
	cp := *e
	f.byID[e.ID] = &cp
	return nil
}

func (f *fakeEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if e, ok := f.byID[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEventRepo) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	e, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.locked = append(f.locked, id)
	if f.afterLock != nil {
		f.afterLock(id)
	}
	return e, nil
}

func (f *fakeEventRepo) GetByIDAndInitiator(ctx context.Context, id, initiatorID string) (*domain.Event, error) {
	e, err := f.GetByID(ctx, id)
	if err != nil || e.InitiatorID != initiatorID {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeEventRepo) ListByInitiator(ctx context.Context, initiatorID string, params domain.PaginationParams) ([]*domain.Event, int, error) {
	var out []*domain.Event
	for i := 1; i < f.nextID; i++ {
		if e, ok := f.byID[fmt.Sprintf("ev-%d", i)]; ok && e.InitiatorID == initiatorID {
			cp := *e
			out = append(out, &cp)
		}
	}
	start, end := params.Window(len(out))
	return out[start:end], len(out), nil
}

func (f *fakeEventRepo) Update(ctx context.Context, e *domain.Event, expected domain.EventState) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.byID[e.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.State != expected {
		return fmt.Errorf("%w: event is %s", domain.ErrConflict, stored.State)
	}
	cp := *e
	cp.ConfirmedRequests = stored.ConfirmedRequests
	f.byID[e.ID] = &cp
	return nil
}

func (f *fakeEventRepo) CompareAndSetConfirmed(ctx context.Context, id string, expected, next int) (bool, error) {
	return false, errors.New("not used")
}

// fakeEventTx counts units of work and hands them the fakeEventRepo directly.
type fakeEventTx struct {
	events *fakeEventRepo
	calls  int
}

func (f *fakeEventTx) WithinTx(ctx context.Context, fn func(ctx context.Context, st domain.Stores) error) error {
	f.calls++
	return fn(ctx, domain.Stores{Events: f.events})
}

// fakeUserRepo knows a fixed set of users.
type fakeUserRepo struct {
	users map[string]*domain.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, id := range ids {
		f.users[id] = &domain.User{ID: id, Email: id + "@example.com", Name: id}
	}
	return f
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

// fakeStats returns canned view counts and records hits.
type fakeStats struct {
	views   map[string]int64
	err     error
	hits    []domain.EndpointHit
	queried [][]string
}

func (f *fakeStats) ViewsForEvents(ctx context.Context, start, end time.Time, uris []string) (map[string]int64, error) {
	f.queried = append(f.queried, uris)
	if f.err != nil {
		return nil, f.err
	}
	return f.views, nil
}

func (f *fakeStats) RecordHit(ctx context.Context, hit domain.EndpointHit) error {
	f.hits = append(f.hits, hit)
	return f.err
}

type eventFixture struct {
	repo     *fakeEventRepo
	tx       *fakeEventTx
	stats    *fakeStats
	notifier *recordingNotifier
	svc      domain.EventService
}

func newEventFixture() *eventFixture {
	repo := newFakeEventRepo()
	stats := &fakeStats{views: map[string]int64{}}
	notifier := &recordingNotifier{}
	tx := &fakeEventTx{events: repo}
	svc := NewEventService(tx, repo, newFakeUserRepo("owner", "other"), stats, notifier, nil, testLogger, time.Second, fixedNow)
	return &eventFixture{repo: repo, tx: tx, stats: stats, notifier: notifier, svc: svc}
}

func validNewEventInput() domain.NewEventInput {
	return domain.NewEventInput{
		Title:       "Go meetup",
		Annotation:  "An evening of talks about Go",
		Description: "Three talks about concurrency, tooling and testing",
		CategoryID:  1,
		Location:    domain.Location{Lat: 55.75, Lon: 37.61},
		EventDate:   testNow.Add(72 * time.Hour),
	}
}

func ptr[T any](v T) *T { return &v }

// seedPublished stores a published event owned by "owner".
func (f *eventFixture) seedPublished(t *testing.T, limit, confirmed int) *domain.Event {
	t.Helper()
	published := testNow.Add(-time.Hour)
	e := &domain.Event{
		Title: "Go meetup", InitiatorID: "owner", ParticipantLimit: limit, RequestModeration: true,
		State: domain.EventStatePublished, EventDate: testNow.Add(72 * time.Hour), CreatedOn: testNow.Add(-48 * time.Hour),
		PublishedOn: &published,
	}
	require.NoError(t, f.repo.Create(context.Background(), e))
	f.repo.byID[e.ID].ConfirmedRequests = confirmed
	return e
}

func (f *eventFixture) seedDraft(t *testing.T) *domain.Event {
	t.Helper()
	in := validNewEventInput()
	e, err := f.svc.CreateEvent(context.Background(), "owner", in)
	require.NoError(t, err)
	return e
}

func TestEventService_CreateEvent(t *testing.T) {
	tests := []struct {
		name      string
		initiator string
		mutate    func(in *domain.NewEventInput)
		wantErr   error
		check     func(t *testing.T, e *domain.Event)
	}{
		{
			name:      "defaults",
			initiator: "owner",
			check: func(t *testing.T, e *domain.Event) {
				assert.Equal(t, "ev-1", e.ID)
				assert.Equal(t, domain.EventStateDraft, e.State)
				assert.True(t, e.RequestModeration)
				assert.False(t, e.Paid)
				assert.Equal(t, 0, e.ParticipantLimit)
				assert.Equal(t, 0, e.ConfirmedRequests)
				assert.Equal(t, testNow, e.CreatedOn)
				assert.Nil(t, e.PublishedOn)
			},
		},
		{
			name:      "explicit options",
			initiator: "owner",
			mutate: func(in *domain.NewEventInput) {
				in.Paid = ptr(true)
				in.ParticipantLimit = ptr(25)
				in.RequestModeration = ptr(false)
			},
			check: func(t *testing.T, e *domain.Event) {
				assert.True(t, e.Paid)
				assert.Equal(t, 25, e.ParticipantLimit)
				assert.False(t, e.RequestModeration)
			},
		},
		{
			name:      "date too soon",
			initiator: "owner",
			mutate:    func(in *domain.NewEventInput) { in.EventDate = testNow.Add(2 * time.Hour) },
			wantErr:   domain.ErrValidation,
		},
		{
			name:      "short title",
			initiator: "owner",
			mutate:    func(in *domain.NewEventInput) { in.Title = "Go" },
			wantErr:   domain.ErrValidation,
		},
		{
			name:      "unknown initiator",
			initiator: "ghost",
			wantErr:   domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEventFixture()
			in := validNewEventInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			got, err := f.svc.CreateEvent(context.Background(), tt.initiator, in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.repo.byID)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestEventService_EditAsOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("updates fields and cancels review", func(t *testing.T) {
		f := newEventFixture()
		e := f.seedDraft(t)

		got, err := f.svc.EditAsOwner(ctx, "owner", e.ID, domain.UpdateEventInput{
			Title:       ptr("Go meetup #2"),
			StateAction: string(domain.StateActionCancelReview),
		})
		require.NoError(t, err)
		assert.Equal(t, "Go meetup #2", got.Title)
		assert.Equal(t, domain.EventStateCanceled, got.State)
		assert.Equal(t, domain.EventStateCanceled, f.repo.byID[e.ID].State)
		assert.Equal(t, 1, f.tx.calls)
		assert.Equal(t, []string{e.ID}, f.repo.locked)
	})

	t.Run("send back to review", func(t *testing.T) {
		f := newEventFixture()
		e := f.seedDraft(t)
		_, err := f.svc.EditAsOwner(ctx, "owner", e.ID, domain.UpdateEventInput{StateAction: string(domain.StateActionCancelReview)})
		require.NoError(t, err)

		got, err := f.svc.EditAsOwner(ctx, "owner", e.ID, domain.UpdateEventInput{StateAction: string(domain.StateActionSendToReview)})
		require.NoError(t, err)
		assert.Equal(t, domain.EventStateDraft, got.State)
	})

	tests := []struct {
		name    string
		owner   string
		publish bool
		in      domain.UpdateEventInput
		wantErr error
	}{
		{name: "not the owner", owner: "other", in: domain.UpdateEventInput{Title: ptr("Go meetup")}, wantErr: domain.ErrNotFound},
		{name: "published", owner: "owner", publish: true, in: domain.UpdateEventInput{Title: ptr("New title")}, wantErr: domain.ErrConflict},
		{name: "date too soon", owner: "owner", in: domain.UpdateEventInput{EventDate: ptr(testNow.Add(time.Hour))}, wantErr: domain.ErrValidation},
		{name: "admin action", owner: "owner", in: domain.UpdateEventInput{StateAction: string(domain.StateActionPublish)}, wantErr: domain.ErrConflict},
		{name: "unknown action", owner: "owner", in: domain.UpdateEventInput{StateAction: "ARCHIVE"}, wantErr: domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEventFixture()
			var id string
			if tt.publish {
				id = f.seedPublished(t, 0, 0).ID
			} else {
				id = f.seedDraft(t).ID
			}
			before := *f.repo.byID[id]

			_, err := f.svc.EditAsOwner(ctx, tt.owner, id, tt.in)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, *f.repo.byID[id])
		})
	}
}

func TestEventService_EditAsAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("publish", func(t *testing.T) {
		f := newEventFixture()
		e := f.seedDraft(t)

		got, err := f.svc.EditAsAdmin(ctx, e.ID, domain.UpdateEventInput{StateAction: string(domain.StateActionPublish)})
		require.NoError(t, err)
		assert.Equal(t, domain.EventStatePublished, got.State)
		require.NotNil(t, got.PublishedOn)
		assert.Equal(t, testNow, *got.PublishedOn)
		require.Len(t, f.notifier.moderated, 1)
		assert.Equal(t, e.ID, f.notifier.moderated[0].ID)
	})

	t.Run("reject draft", func(t *testing.T) {
		f := newEventFixture()
		e := f.seedDraft(t)

		got, err := f.svc.EditAsAdmin(ctx, e.ID, domain.UpdateEventInput{StateAction: string(domain.StateActionReject)})
		require.NoError(t, err)
		assert.Equal(t, domain.EventStateCanceled, got.State)
		assert.Nil(t, got.PublishedOn)
	})

	t.Run("edit published keeps publication time", func(t *testing.T) {
		f := newEventFixture()
		e := f.seedPublished(t, 10, 3)

		got, err := f.svc.EditAsAdmin(ctx, e.ID, domain.UpdateEventInput{ParticipantLimit: ptr(3)})
		require.NoError(t, err)
		assert.Equal(t, 3, got.ParticipantLimit)
		assert.Equal(t, 3, got.ConfirmedRequests)
		assert.Equal(t, *e.PublishedOn, *got.PublishedOn)
		assert.Empty(t, f.notifier.moderated)
	})

	tests := []struct {
		name      string
		published bool
		confirmed int
		in        domain.UpdateEventInput
		wantErr   error
	}{
		{name: "publish twice", published: true, in: domain.UpdateEventInput{StateAction: string(domain.StateActionPublish)}, wantErr: domain.ErrConflict},
		{name: "reject published", published: true, in: domain.UpdateEventInput{StateAction: string(domain.StateActionReject)}, wantErr: domain.ErrConflict},
		{name: "owner action", in: domain.UpdateEventInput{StateAction: string(domain.StateActionSendToReview)}, wantErr: domain.ErrConflict},
		{name: "publish too close to event", in: domain.UpdateEventInput{EventDate: ptr(testNow.Add(30 * time.Minute)), StateAction: string(domain.StateActionPublish)}, wantErr: domain.ErrValidation},
		{name: "move published event too close", published: true, in: domain.UpdateEventInput{EventDate: ptr(testNow.Add(-30 * time.Minute))}, wantErr: domain.ErrValidation},
		{name: "limit below confirmed", published: true, confirmed: 4, in: domain.UpdateEventInput{ParticipantLimit: ptr(3)}, wantErr: domain.ErrConflict},
		{name: "bad title", in: domain.UpdateEventInput{Title: ptr("")}, wantErr: domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEventFixture()
			var id string
			if tt.published {
				id = f.seedPublished(t, 10, tt.confirmed).ID
			} else {
				id = f.seedDraft(t).ID
			}
			before := *f.repo.byID[id]

			_, err := f.svc.EditAsAdmin(ctx, id, tt.in)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, *f.repo.byID[id])
			assert.Empty(t, f.notifier.moderated)
		})
	}

	t.Run("unknown event", func(t *testing.T) {
		f := newEventFixture()
		_, err := f.svc.EditAsAdmin(ctx, "missing", domain.UpdateEventInput{StateAction: string(domain.StateActionPublish)})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("storage conflict passes through", func(t *testing.T) {
		f := newEventFixture()
		e := f.seedPublished(t, 10, 0)
		f.repo.updateErr = fmt.Errorf("%w: participant limit is below confirmed requests", domain.ErrConflict)
		_, err := f.svc.EditAsAdmin(ctx, e.ID, domain.UpdateEventInput{ParticipantLimit: ptr(1)})
		require.ErrorIs(t, err, domain.ErrConflict)
	})
}

// publishBehindLock makes an admin publish land between the edit's read and its write.
func (f *eventFixture) publishBehindLock() {
	f.repo.afterLock = func(id string) {
		f.repo.afterLock = nil
		published := testNow.Add(-time.Minute)
		stored := f.repo.byID[id]
		stored.State = domain.EventStatePublished
		stored.PublishedOn = &published
		stored.ConfirmedRequests = 1
	}
}

func TestEventService_EditLosesToConcurrentPublish(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		edit func(svc domain.EventService, id string) error
	}{
		{
			name: "owner cancels review",
			edit: func(svc domain.EventService, id string) error {
				_, err := svc.EditAsOwner(ctx, "owner", id, domain.UpdateEventInput{StateAction: string(domain.StateActionCancelReview)})
				return err
			},
		},
		{
			name: "owner edits title",
			edit: func(svc domain.EventService, id string) error {
				_, err := svc.EditAsOwner(ctx, "owner", id, domain.UpdateEventInput{Title: ptr("Go meetup #2")})
				return err
			},
		},
		{
			name: "admin rejects",
			edit: func(svc domain.EventService, id string) error {
				_, err := svc.EditAsAdmin(ctx, id, domain.UpdateEventInput{StateAction: string(domain.StateActionReject)})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEventFixture()
			e := f.seedDraft(t)
			f.publishBehindLock()

			err := tt.edit(f.svc, e.ID)
			require.ErrorIs(t, err, domain.ErrConflict)

			stored := f.repo.byID[e.ID]
			assert.Equal(t, domain.EventStatePublished, stored.State)
			require.NotNil(t, stored.PublishedOn)
			assert.Equal(t, testNow.Add(-time.Minute), *stored.PublishedOn)
			assert.Equal(t, "Go meetup", stored.Title)
			assert.Equal(t, 1, stored.ConfirmedRequests)
			assert.Empty(t, f.notifier.moderated)
		})
	}
}

func TestEventService_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("owner reads include views for published events", func(t *testing.T) {
		f := newEventFixture()
		draft := f.seedDraft(t)
		pub := f.seedPublished(t, 0, 0)
		f.stats.views = map[string]int64{domain.EventURI(pub.ID): 42}

		events, total, err := f.svc.ListEventsByOwner(ctx, "owner", domain.PaginationParams{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, events, 2)
		assert.Equal(t, int64(0), events[0].Views)
		assert.Equal(t, int64(42), events[1].Views)
		require.Len(t, f.stats.queried, 1)
		assert.Equal(t, []string{domain.EventURI(pub.ID)}, f.stats.queried[0])

		got, err := f.svc.GetEventForOwner(ctx, "owner", draft.ID)
		require.NoError(t, err)
		assert.Equal(t, draft.ID, got.ID)
		assert.Len(t, f.stats.queried, 1, "drafts never query stats")

		_, err = f.svc.GetEventForOwner(ctx, "other", draft.ID)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("stats failure leaves views at zero", func(t *testing.T) {
		f := newEventFixture()
		pub := f.seedPublished(t, 0, 0)
		f.stats.err = errors.New("stats down")

		got, err := f.svc.GetEventForOwner(ctx, "owner", pub.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Views)
	})

	t.Run("public read records a hit", func(t *testing.T) {
		f := newEventFixture()
		pub := f.seedPublished(t, 0, 0)
		f.stats.views = map[string]int64{domain.EventURI(pub.ID): 7}

		got, err := f.svc.GetPublishedEvent(ctx, pub.ID, domain.EndpointHit{App: "eventadmission", URI: domain.EventURI(pub.ID), IP: "10.0.0.1"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.Views)
		require.Len(t, f.stats.hits, 1)
		assert.Equal(t, "10.0.0.1", f.stats.hits[0].IP)
		assert.Equal(t, testNow, f.stats.hits[0].Timestamp)
	})

	t.Run("public read hides drafts", func(t *testing.T) {
		f := newEventFixture()
		draft := f.seedDraft(t)

		_, err := f.svc.GetPublishedEvent(ctx, draft.ID, domain.EndpointHit{})
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, f.stats.hits)
	})
}

func TestParseAction(t *testing.T) {
	action, err := parseAction("")
	require.NoError(t, err)
	assert.Empty(t, action)

	action, err = parseAction(string(domain.StateActionPublish))
	require.NoError(t, err)
	assert.Equal(t, domain.StateActionPublish, action)

	_, err = parseAction("ARCHIVE")
	require.ErrorIs(t, err, domain.ErrValidation)
}
