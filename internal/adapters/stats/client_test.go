package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventadmission/internal/domain"
)

func TestHTTPClient_ViewsForEvents(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/stats", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2026-03-01 10:00:00", q.Get("start"))
		assert.Equal(t, "2026-03-02 10:30:00", q.Get("end"))
		assert.Equal(t, []string{"/events/a", "/events/b"}, q["uris"])
		assert.Equal(t, "true", q.Get("unique"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]viewStats{{App: "eventadmission", URI: "/events/a", Hits: 12}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", srv.Client())
	views, err := c.ViewsForEvents(context.Background(), start, end, []string{"/events/a", "/events/b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"/events/a": 12}, views)
}

func TestHTTPClient_ViewsForEvents_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "bad status", handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{name: "bad body", handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, srv.Client()).ViewsForEvents(context.Background(), time.Now(), time.Now(), []string{"/events/a"})
			require.Error(t, err)
		})
	}
}

func TestHTTPClient_RecordHit(t *testing.T) {
	var got hitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/hit", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, srv.Client()).RecordHit(context.Background(), domain.EndpointHit{
		App: "eventadmission", URI: "/events/a", IP: "10.0.0.1",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, hitRequest{App: "eventadmission", URI: "/events/a", IP: "10.0.0.1", Timestamp: "2026-03-01 10:00:05"}, got)
}

func TestHTTPClient_RecordHit_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, srv.Client()).RecordHit(context.Background(), domain.EndpointHit{URI: "/events/a"})
	require.Error(t, err)
}

func TestNoopClient(t *testing.T) {
	c := NewNoopClient()
	views, err := c.ViewsForEvents(context.Background(), time.Now(), time.Now(), []string{"/events/a"})
	require.NoError(t, err)
	assert.Empty(t, views)
	require.NoError(t, c.RecordHit(context.Background(), domain.EndpointHit{}))
}
