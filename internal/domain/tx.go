package domain

import "context"

// Stores groups the repositories bound to one unit of work.
type Stores struct {
	Events   EventRepository
	Requests ParticipationRequestRepository
}

// Transactor runs fn atomically. If fn returns an error every write made through
// the given Stores is discarded; otherwise all of them become visible together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
