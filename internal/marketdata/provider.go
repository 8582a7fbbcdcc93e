// Package marketdata delivers underlying snapshots and option chains to the
// screening pipeline. It owns the only shared mutable state in the system:
// the chain cache.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/optionseller/internal/domain"
)

// ErrUnavailable means no usable data exists for a symbol: a cache miss, a
// stale entry or a provider with nothing to offer. It is a normal condition.
var ErrUnavailable = errors.New("market data unavailable")

// Chain is everything the pipeline needs for one symbol.
type Chain struct {
	Snapshot  domain.UnderlyingSnapshot `json:"snapshot"`
	Contracts []domain.OptionContract   `json:"contracts"`
	FetchedAt time.Time                 `json:"fetched_at"`
}

// Provider fetches fresh data for a symbol. Implementations must honor ctx.
type Provider interface {
	Name() string
	FetchChain(ctx context.Context, symbol string) (Chain, error)
}

// Cache stores chains with a TTL. Get returns ErrUnavailable on a miss or a
// stale entry. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, symbol string) (Chain, error)
	Set(ctx context.Context, symbol string, chain Chain) error
}
