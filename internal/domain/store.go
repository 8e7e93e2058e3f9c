package domain

import "context"

// CustomerStore persists customer profiles. Profiles are upserted, never
// deleted.
type CustomerStore interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	SaveCustomer(ctx context.Context, c *Customer) error
}

// HistoryStore is the append-only conversation log. AppendTurn assigns the
// next sequence number; GetHistory returns turns in arrival order.
type HistoryStore interface {
	AppendTurn(ctx context.Context, customerID string, turn Turn) (Turn, error)
	GetHistory(ctx context.Context, customerID string, limit int) ([]Turn, error)
	LastTurn(ctx context.Context, customerID string) (*Turn, error)
	CountTurns(ctx context.Context, customerID string) (int, error)
}

// Store combines the persistence surfaces backed by a single database.
type Store interface {
	CustomerStore
	HistoryStore
	Close() error
}
