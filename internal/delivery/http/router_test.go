package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventadmission/internal/adapters/auth"
	"eventadmission/internal/adapters/email"
	"eventadmission/internal/adapters/stats"
	"eventadmission/internal/delivery/http/controllers"
	"eventadmission/internal/delivery/http/helpers"
	"eventadmission/internal/domain"
	"eventadmission/internal/metrics"
	"eventadmission/internal/repository/memory"
	"eventadmission/internal/services"
)

const routerSecret = "router-test-secret"

type routerFixture struct {
	handler http.Handler
	issuer  domain.TokenIssuer
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	store := memory.NewStore()
	store.AddUser(domain.User{ID: "owner-1", Email: "owner@example.com", Name: "Owner"})
	store.AddUser(domain.User{ID: "user-2", Email: "guest@example.com", Name: "Guest"})

	mailer, err := email.NewMailer(email.MailerConfig{Provider: "noop"}, logger)
	require.NoError(t, err)
	renderer, err := email.NewTemplateRenderer()
	require.NoError(t, err)
	notifier := services.NewNotificationService(mailer, renderer, store.Users(), logger)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	eventSvc := services.NewEventService(store, store.Events(), store.Users(), stats.NewNoopClient(), notifier, m, logger, 5*time.Second, nil)
	admissionSvc := services.NewAdmissionService(store, store.Events(), store.Requests(), store.Users(), notifier, m, logger,
		services.AdmissionConfig{Timeout: 5 * time.Second})

	h := NewRouter(Controllers{
		Events:      controllers.NewEventController(logger, eventSvc),
		AdminEvents: controllers.NewAdminEventController(logger, eventSvc),
		Public:      controllers.NewPublicEventController(logger, eventSvc, "eventadmission"),
		Requests:    controllers.NewRequestController(logger, admissionSvc),
	}, RouterConfig{
		Verifier: auth.NewJWTVerifier(routerSecret),
		Logger:   logger,
		Gatherer: registry,
	})
	return &routerFixture{handler: h, issuer: auth.NewJWTIssuer(routerSecret)}
}

func (f *routerFixture) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, err := f.issuer.Issue(userID, userID+"@example.com", roles, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request and decodes the envelope's data into out when out is non-nil.
func (f *routerFixture) do(t *testing.T, method, path, token, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if out != nil && rr.Code < 300 {
		var envelope helpers.APIResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope))
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return rr
}

func TestRouter_AdmissionFlow(t *testing.T) {
	f := newRouterFixture(t)
	owner := f.token(t, "owner-1")
	guest := f.token(t, "user-2")
	admin := f.token(t, "admin-1", domain.RoleAdmin)

	date := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second).Format(time.RFC3339)
	var event domain.Event
	rr := f.do(t, http.MethodPost, "/events", owner, `{"title":"Go meetup","annotation":"An evening of talks about Go",
		"description":"Talks, pizza and networking for gophers","category":1,"event_date":"`+date+`","participant_limit":1}`, &event)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, domain.EventStateDraft, event.State)
	eventPath := "/events/" + event.ID

	rr = f.do(t, http.MethodPost, eventPath+"/requests", guest, "", nil)
	require.Equal(t, http.StatusConflict, rr.Code, "draft events do not accept requests")

	rr = f.do(t, http.MethodPatch, "/admin"+eventPath, owner, `{"state_action":"PUBLISH_EVENT"}`, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPatch, "/admin"+eventPath, admin, `{"state_action":"PUBLISH_EVENT"}`, &event)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, domain.EventStatePublished, event.State)

	rr = f.do(t, http.MethodGet, "/public"+eventPath, "", "", &event)
	require.Equal(t, http.StatusOK, rr.Code)

	var pending domain.ParticipationRequest
	rr = f.do(t, http.MethodPost, eventPath+"/requests", guest, "", &pending)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, domain.RequestStatusPending, pending.Status)

	rr = f.do(t, http.MethodPatch, eventPath+"/requests", guest,
		`{"request_ids":["`+pending.ID+`"],"status":"CONFIRMED"}`, nil)
	require.Equal(t, http.StatusConflict, rr.Code, "only the initiator moderates")

	var result domain.RequestStatusUpdateResult
	rr = f.do(t, http.MethodPatch, eventPath+"/requests", owner,
		`{"request_ids":["`+pending.ID+`"],"status":"CONFIRMED"}`, &result)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, result.ConfirmedRequests, 1)

	rr = f.do(t, http.MethodGet, eventPath, owner, "", &event)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, event.ConfirmedRequests)

	var mine []domain.ParticipationRequest
	rr = f.do(t, http.MethodGet, "/requests", guest, "", &mine)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, mine, 1)
	assert.Equal(t, domain.RequestStatusConfirmed, mine[0].Status)

	var canceled domain.ParticipationRequest
	rr = f.do(t, http.MethodPatch, "/requests/"+pending.ID+"/cancel", guest, "", &canceled)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, domain.RequestStatusCanceled, canceled.Status)

	rr = f.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `eventadmission_event_state_transitions_total{action="PUBLISH_EVENT"} 1`)
}

func TestRouter_Auth(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"missing token", http.MethodGet, "/events", "", http.StatusUnauthorized},
		{"bad scheme", http.MethodGet, "/requests", "Basic abc", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/requests", "Bearer abc", http.StatusUnauthorized},
		{"admin route without token", http.MethodPatch, "/admin/events/8f14e45f-ceea-467a-9575-6c5e0c7c4b0d", "", http.StatusUnauthorized},
		{"public route", http.MethodGet, "/public/events/8f14e45f-ceea-467a-9575-6c5e0c7c4b0d", "", http.StatusNotFound},
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"wrong method", http.MethodDelete, "/events", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			f.handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
