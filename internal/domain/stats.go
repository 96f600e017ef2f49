package domain

import (
	"context"
	"time"
)

// EndpointHit is one recorded view of a public endpoint.
type EndpointHit struct {
	App       string    `json:"app"`
	URI       string    `json:"uri"`
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsClient talks to the view statistics service.
type StatsClient interface {
	// ViewsForEvents returns unique views keyed by URI (see EventURI) between start and end.
	// URIs with no views may be absent from the map.
	ViewsForEvents(ctx context.Context, start, end time.Time, uris []string) (map[string]int64, error)
	RecordHit(ctx context.Context, hit EndpointHit) error
}

// EventURI is the public path under which views of an event are counted.
func EventURI(eventID string) string {
	return "/events/" + eventID
}
