package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventadmission/internal/delivery/http/helpers"
	"eventadmission/internal/domain"
)

func TestAdminEventController_UpdateEvent(t *testing.T) {
	tests := []struct {
		name         string
		pathID       string
		body         string
		svcErr       error
		wantStatus   int
		wantBodyCode string
	}{
		{name: "publish", pathID: testEventID, body: `{"state_action":"PUBLISH_EVENT"}`, wantStatus: http.StatusOK},
		{
			name: "bad action", pathID: testEventID, body: `{"state_action":"ARCHIVE"}`, svcErr: domain.ErrValidation,
			wantStatus: http.StatusBadRequest, wantBodyCode: helpers.ErrCodeBadRequest,
		},
		{
			name: "already published", pathID: testEventID, body: `{"state_action":"PUBLISH_EVENT"}`, svcErr: domain.ErrConflict,
			wantStatus: http.StatusConflict, wantBodyCode: helpers.ErrCodeConflict,
		},
		{
			name: "unknown event", pathID: testEventID, body: `{}`, svcErr: domain.ErrNotFound,
			wantStatus: http.StatusNotFound, wantBodyCode: helpers.ErrCodeNotFound,
		},
		{
			name: "malformed id", pathID: "42", body: `{}`,
			wantStatus: http.StatusBadRequest, wantBodyCode: helpers.ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeEventService{err: tt.svcErr}
			if tt.svcErr == nil {
				fake.event = &domain.Event{ID: testEventID, State: domain.EventStatePublished}
			}
			ctrl := NewAdminEventController(testLogger, fake)

			req := httptest.NewRequest(http.MethodPatch, "http://test/admin/events/"+tt.pathID, strings.NewReader(tt.body))
			req.SetPathValue("eventID", tt.pathID)
			req = withPrincipal(req, "admin-1", domain.RoleAdmin)
			rr := httptest.NewRecorder()

			ctrl.UpdateEvent(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			envelope := decodeEnvelope(t, rr)
			if tt.wantStatus == http.StatusOK {
				var got domain.Event
				decodeData(t, envelope, &got)
				assert.Equal(t, domain.EventStatePublished, got.State)
				assert.Equal(t, testEventID, fake.gotID)
				assert.Equal(t, "PUBLISH_EVENT", fake.gotUpdate.StateAction)
				return
			}
			require.NotNil(t, envelope.Error)
			assert.Equal(t, tt.wantBodyCode, envelope.Error.Code)
		})
	}
}
