package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// FetcherConfig bounds the fan-out.
type FetcherConfig struct {
	Concurrency     int
	Timeout         time.Duration // per symbol
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultFetcherConfig returns conservative fan-out limits.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Concurrency:     8,
		Timeout:         10 * time.Second,
		RatePerSecond:   10,
		Burst:           10,
		BreakerFailures: 5,
		BreakerTimeout:  60 * time.Second,
	}
}

// Observer receives the outcome of every symbol fetch.
type Observer interface {
	ObserveFetch(source string, err error, elapsed time.Duration)
}

// Failure records a symbol that could not be fetched.
type Failure struct {
	Symbol string `json:"symbol"`
	Err    error  `json:"-"`
	Error  string `json:"error"`
}

// FetchResult holds the chains that arrived and the symbols that did not.
type FetchResult struct {
	Chains    map[string]Chain `json:"-"`
	Failures  []Failure        `json:"failures"`
	FromCache int              `json:"from_cache"`
}

// Fetcher reads through the cache to the provider, one bounded goroutine per
// symbol. A slow or failing symbol never blocks the others.
type Fetcher struct {
	provider Provider
	cache    Cache
	cfg      FetcherConfig
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	observer Observer
	log      zerolog.Logger
}

// NewFetcher creates a new fetcher. cache may be nil.
func NewFetcher(provider Provider, cache Cache, cfg FetcherConfig, log zerolog.Logger) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	l := log.With().Str("component", "fetcher").Str("provider", provider.Name()).Logger()

	st := gobreaker.Settings{Name: provider.Name()}
	st.Timeout = cfg.BreakerTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return cfg.BreakerFailures > 0 && counts.ConsecutiveFailures >= cfg.BreakerFailures
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrUnavailable)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		l.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Provider circuit breaker changed state")
	}

	return &Fetcher{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		breaker:  gobreaker.NewCircuitBreaker(st),
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		log:      l,
	}
}

// SetObserver sets the fetch observer
func (f *Fetcher) SetObserver(o Observer) {
	f.observer = o
}

// Fetch returns a cached chain or fetches a fresh one within the per-symbol timeout.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (Chain, error) {
	chain, _, err := f.fetch(ctx, symbol)
	return chain, err
}

// FetchAll fetches every symbol concurrently. It never fails as a whole:
// symbols that error or time out are listed in Failures.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) FetchResult {
	result := FetchResult{Chains: make(map[string]Chain, len(symbols))}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			chain, cached, err := f.fetch(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, Failure{Symbol: symbol, Err: err, Error: err.Error()})
				return nil
			}
			result.Chains[symbol] = chain
			if cached {
				result.FromCache++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Symbol < result.Failures[j].Symbol
	})

	f.log.Info().
		Int("requested", len(symbols)).
		Int("fetched", len(result.Chains)).
		Int("from_cache", result.FromCache).
		Int("failed", len(result.Failures)).
		Msg("Market data fetch completed")

	return result
}

func (f *Fetcher) fetch(ctx context.Context, symbol string) (Chain, bool, error) {
	if f.cache != nil {
		chain, err := f.cache.Get(ctx, symbol)
		if err == nil {
			f.observe("cache", nil, 0)
			return chain, true, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("Cache read failed, going to provider")
		}
	}

	start := time.Now()
	fctx := ctx
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	if err := f.limiter.Wait(fctx); err != nil {
		err = fmt.Errorf("rate limit wait for %s: %w", symbol, err)
		f.observe(f.provider.Name(), err, time.Since(start))
		return Chain{}, false, err
	}

	out, err := f.breaker.Execute(func() (interface{}, error) {
		return f.call(fctx, symbol)
	})
	f.observe(f.provider.Name(), err, time.Since(start))
	if err != nil {
		return Chain{}, false, fmt.Errorf("failed to fetch %s: %w", symbol, err)
	}
	chain := out.(Chain)

	if f.cache != nil {
		if err := f.cache.Set(ctx, symbol, chain); err != nil {
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache chain")
		}
	}
	return chain, false, nil
}

// call returns when the provider does or when ctx expires, whichever is first.
func (f *Fetcher) call(ctx context.Context, symbol string) (Chain, error) {
	type reply struct {
		chain Chain
		err   error
	}
	ch := make(chan reply, 1)
	go func() {
		chain, err := f.provider.FetchChain(ctx, symbol)
		ch <- reply{chain, err}
	}()

	select {
	case r := <-ch:
		return r.chain, r.err
	case <-ctx.Done():
		return Chain{}, ctx.Err()
	}
}

func (f *Fetcher) observe(source string, err error, elapsed time.Duration) {
	if f.observer != nil {
		f.observer.ObserveFetch(source, err, elapsed)
	}
}
