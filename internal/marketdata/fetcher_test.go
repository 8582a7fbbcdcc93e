package marketdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls   atomic.Int32
	fail    map[string]error
	block   map[string]bool
	ignores bool // ignore ctx while blocking
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchChain(ctx context.Context, symbol string) (Chain, error) {
	p.calls.Add(1)
	if p.block[symbol] {
		if p.ignores {
			time.Sleep(time.Second)
		} else {
			<-ctx.Done()
			return Chain{}, ctx.Err()
		}
	}
	if err, ok := p.fail[symbol]; ok {
		return Chain{}, err
	}
	return sampleChain(symbol), nil
}

type countingObserver struct {
	mu     sync.Mutex
	ok     map[string]int
	failed int
}

func (o *countingObserver) ObserveFetch(source string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
		return
	}
	if o.ok == nil {
		o.ok = make(map[string]int)
	}
	o.ok[source]++
}

func testConfig() FetcherConfig {
	cfg := DefaultFetcherConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.RatePerSecond = 0
	return cfg
}

func TestFetchAll_PartialResults(t *testing.T) {
	for _, ignores := range []bool{false, true} {
		p := &fakeProvider{
			fail:    map[string]error{"BAD": errors.New("upstream 500")},
			block:   map[string]bool{"SLOW": true},
			ignores: ignores,
		}
		f := NewFetcher(p, nil, testConfig(), zerolog.Nop())

		start := time.Now()
		result := f.FetchAll(context.Background(), []string{"AAPL", "SLOW", "MSFT", "BAD"})

		assert.Less(t, time.Since(start), 900*time.Millisecond, "slow symbol must not hold up the run")
		assert.Len(t, result.Chains, 2)
		assert.Contains(t, result.Chains, "AAPL")
		assert.Contains(t, result.Chains, "MSFT")

		require.Len(t, result.Failures, 2)
		assert.Equal(t, "BAD", result.Failures[0].Symbol)
		assert.Equal(t, "SLOW", result.Failures[1].Symbol)
		assert.ErrorIs(t, result.Failures[1].Err, context.DeadlineExceeded)
		assert.NotEmpty(t, result.Failures[0].Error)
	}
}

func TestFetchAll_ReadsThroughCache(t *testing.T) {
	p := &fakeProvider{}
	cache := NewMemoryCache(time.Hour)
	cache.now = func() time.Time { return cacheClock }
	obs := &countingObserver{}
	f := NewFetcher(p, cache, testConfig(), zerolog.Nop())
	f.SetObserver(obs)

	first := f.FetchAll(context.Background(), []string{"AAPL", "MSFT"})
	assert.Zero(t, first.FromCache)
	assert.Equal(t, int32(2), p.calls.Load())

	second := f.FetchAll(context.Background(), []string{"AAPL", "MSFT", "AMD"})
	assert.Equal(t, 2, second.FromCache)
	assert.Len(t, second.Chains, 3)
	assert.Equal(t, int32(3), p.calls.Load())

	assert.Equal(t, 2, obs.ok["cache"])
	assert.Equal(t, 3, obs.ok["fake"])
}

func TestFetch_BreakerOpens(t *testing.T) {
	p := &fakeProvider{fail: map[string]error{"AAPL": errors.New("boom")}}
	cfg := testConfig()
	cfg.BreakerFailures = 2
	f := NewFetcher(p, nil, cfg, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), "AAPL")
		require.Error(t, err)
	}
	_, err := f.Fetch(context.Background(), "AAPL")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestFetch_UnavailableDoesNotTripBreaker(t *testing.T) {
	p := &fakeProvider{fail: map[string]error{"AAPL": ErrUnavailable}}
	cfg := testConfig()
	cfg.BreakerFailures = 1
	f := NewFetcher(p, nil, cfg, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), "AAPL")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(3), p.calls.Load())
}
