package risk

import (
	"time"

	"github.com/rs/zerolog"
)

// Manager applies the configured limits. Its methods are pure functions of
// their arguments and the configuration.
type Manager struct {
	cfg    Config
	method VaRMethod
	log    zerolog.Logger
	now    func() time.Time
}

// NewManager creates a new risk manager. An unknown VaR method falls back to
// delta-normal.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	method, ok := MethodByName(cfg.VaRMethod)
	if !ok {
		method = DeltaNormal{}
	}
	return &Manager{
		cfg:    cfg,
		method: method,
		log:    log.With().Str("component", "risk_manager").Logger(),
		now:    time.Now,
	}
}

// Config returns the active configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// WithClock returns a copy of the manager that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}
