package domain

import (
	"fmt"
	"strings"
	"time"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ParsePositionStatus resolves a status filter. "all" returns the empty
// status, which matches every position.
func ParsePositionStatus(s string) (PositionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return PositionOpen, nil
	case "closed":
		return PositionClosed, nil
	case "all":
		return "", nil
	}
	return "", fmt.Errorf("unknown position status %q", s)
}

// WheelState tracks where a position sits in the wheel cycle: sell puts
// until assigned, then sell calls on the shares until called away.
type WheelState string

const (
	WheelNone       WheelState = ""
	WheelSellPut    WheelState = "sell_put"
	WheelAssigned   WheelState = "assigned"
	WheelSellCall   WheelState = "sell_call"
	WheelCalledAway WheelState = "called_away"
	WheelIdle       WheelState = "idle"
)

// ParseWheelState validates a wheel state name.
func ParseWheelState(s string) (WheelState, error) {
	switch st := WheelState(strings.ToLower(strings.TrimSpace(s))); st {
	case WheelNone, WheelSellPut, WheelAssigned, WheelSellCall, WheelCalledAway, WheelIdle:
		return st, nil
	}
	return "", fmt.Errorf("unknown wheel state %q", s)
}

// Position is an option-selling position held in the account.
// Money fields are totals for the whole position in dollars. Greeks are
// net short, per share of one contract.
type Position struct {
	ID              string         `json:"id"`
	Symbol          string         `json:"symbol"`
	Strategy        StrategyType   `json:"strategy"`
	Contracts       int            `json:"contracts"`
	EntryCredit     float64        `json:"entry_credit"`
	Margin          float64        `json:"margin"`
	MaxLoss         float64        `json:"max_loss"`
	CallStrike      float64        `json:"call_strike,omitempty"`
	PutStrike       float64        `json:"put_strike,omitempty"`
	Expiration      time.Time      `json:"expiration"`
	Delta           float64        `json:"delta"`
	Gamma           float64        `json:"gamma"`
	Theta           float64        `json:"theta"`
	Vega            float64        `json:"vega"`
	UnderlyingPrice float64        `json:"underlying_price"`
	Volatility      float64        `json:"volatility"`
	OpenedAt        time.Time      `json:"opened_at"`
	Status          PositionStatus `json:"status"`
	ClosePremium    float64        `json:"close_premium,omitempty"` // debit paid to close, whole position
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	WheelState      WheelState     `json:"wheel_state,omitempty"`
}

// IsOpen reports whether the position is still on the book. An empty status
// counts as open.
func (p Position) IsOpen() bool {
	return p.Status != PositionClosed
}

// RealizedPnL is the entry credit less the closing debit. Open positions
// have realized nothing.
func (p Position) RealizedPnL() float64 {
	if p.IsOpen() {
		return 0
	}
	return p.EntryCredit - p.ClosePremium
}

// TotalGreeks scales the per-share greeks to the whole position.
func (p Position) TotalGreeks() Greeks {
	return Greeks{Delta: p.Delta, Gamma: p.Gamma, Theta: p.Theta, Vega: p.Vega}.
		Scale(ContractMultiplier * float64(p.Contracts))
}

// OpenPositions filters out closed positions.
func OpenPositions(positions []Position) []Position {
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out
}

// EquivalentShares is the position delta expressed in shares of the underlying.
func (p Position) EquivalentShares() float64 {
	return p.Delta * ContractMultiplier * float64(p.Contracts)
}

// OptionDelta is the short options' delta per share, excluding the stock
// leg of a covered call.
func (p Position) OptionDelta() float64 {
	if p.Strategy == CoveredCall {
		return p.Delta - 1
	}
	return p.Delta
}

// NewPositionFromCandidate opens a position of n contracts on a screened
// candidate. Per-contract amounts are scaled to position totals.
func NewPositionFromCandidate(c StrategyCandidate, contracts int, openedAt time.Time) Position {
	n := float64(contracts)
	p := Position{
		Symbol:          c.Symbol,
		Strategy:        c.Strategy,
		Contracts:       contracts,
		EntryCredit:     c.NetCredit * n,
		Margin:          c.Margin * n,
		MaxLoss:         c.MaxLoss * n,
		Expiration:      c.Expiration,
		Delta:           c.Greeks.Delta,
		Gamma:           c.Greeks.Gamma,
		Theta:           c.Greeks.Theta,
		Vega:            c.Greeks.Vega,
		UnderlyingPrice: c.UnderlyingPrice,
		Volatility:      c.AverageIV(),
		OpenedAt:        openedAt,
		Status:          PositionOpen,
	}
	if call, ok := c.CallLeg(); ok {
		p.CallStrike = call.Contract.Strike
	}
	if put, ok := c.PutLeg(); ok {
		p.PutStrike = put.Contract.Strike
	}
	return p
}

// Validate checks the fields a stored position must carry.
func (p Position) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Symbol) == "" {
		problems = append(problems, "symbol is required")
	}
	switch p.Strategy {
	case CoveredCall:
		if p.CallStrike <= 0 {
			problems = append(problems, "covered_call requires call_strike")
		}
	case CashSecuredPut:
		if p.PutStrike <= 0 {
			problems = append(problems, "cash_secured_put requires put_strike")
		}
	case ShortStrangle:
		if p.CallStrike <= 0 || p.PutStrike <= 0 {
			problems = append(problems, "short_strangle requires call_strike and put_strike")
		}
	default:
		problems = append(problems, "unknown strategy "+string(p.Strategy))
	}
	if p.Contracts <= 0 {
		problems = append(problems, "contracts must be positive")
	}
	if p.Margin < 0 || p.MaxLoss < 0 {
		problems = append(problems, "margin and max_loss must not be negative")
	}
	if p.UnderlyingPrice <= 0 {
		problems = append(problems, "underlying_price must be positive")
	}
	if p.Volatility < 0 {
		problems = append(problems, "volatility must not be negative")
	}
	if p.Expiration.IsZero() {
		problems = append(problems, "expiration is required")
	}
	if p.Status != "" && p.Status != PositionOpen && p.Status != PositionClosed {
		problems = append(problems, "unknown status "+string(p.Status))
	}
	if _, err := ParseWheelState(string(p.WheelState)); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// PortfolioSummary counts open and closed positions and the premium they
// brought in.
type PortfolioSummary struct {
	OpenCount        int                  `json:"open_count"`
	ClosedCount      int                  `json:"closed_count"`
	RealizedPnL      float64              `json:"realized_pnl"`
	PremiumCollected float64              `json:"premium_collected"` // entry credit of open positions
	OpenMargin       float64              `json:"open_margin"`
	ByStrategy       map[StrategyType]int `json:"by_strategy"`
	BySymbol         map[string]int       `json:"by_symbol"`
	ByWheelState     map[WheelState]int   `json:"by_wheel_state"`
}

// PortfolioGreeks sums position greeks, in share-equivalent units, over the
// open book and per underlying.
type PortfolioGreeks struct {
	Positions int               `json:"positions"`
	Total     Greeks            `json:"total"`
	BySymbol  map[string]Greeks `json:"by_symbol"`
}

// Summarize builds the portfolio summary over positions of any status.
func Summarize(positions []Position) PortfolioSummary {
	s := PortfolioSummary{
		ByStrategy:   map[StrategyType]int{},
		BySymbol:     map[string]int{},
		ByWheelState: map[WheelState]int{},
	}
	for _, p := range positions {
		if !p.IsOpen() {
			s.ClosedCount++
			s.RealizedPnL += p.RealizedPnL()
			continue
		}
		s.OpenCount++
		s.PremiumCollected += p.EntryCredit
		s.OpenMargin += p.Margin
		s.ByStrategy[p.Strategy]++
		s.BySymbol[p.Symbol]++
		if p.WheelState != WheelNone {
			s.ByWheelState[p.WheelState]++
		}
	}
	return s
}

// AggregateGreeks sums the greeks of the open positions.
func AggregateGreeks(positions []Position) PortfolioGreeks {
	g := PortfolioGreeks{BySymbol: map[string]Greeks{}}
	for _, p := range OpenPositions(positions) {
		total := p.TotalGreeks()
		g.Positions++
		g.Total = g.Total.Add(total)
		g.BySymbol[p.Symbol] = g.BySymbol[p.Symbol].Add(total)
	}
	return g
}

// AlertKind classifies a RiskAlert
type AlertKind string

const (
	AlertVaR           AlertKind = "var_limit"
	AlertPerTradeLoss  AlertKind = "per_trade_loss"
	AlertMargin        AlertKind = "margin_utilization"
	AlertConcentration AlertKind = "concentration"
	AlertExpiry        AlertKind = "near_expiry"
	AlertDelta         AlertKind = "delta_exposure"
)

// RiskAlert is an advisory signal. It never fails a call.
type RiskAlert struct {
	Kind    AlertKind `json:"kind"`
	Symbol  string    `json:"symbol,omitempty"`
	Value   float64   `json:"value"`
	Limit   float64   `json:"limit"`
	Message string    `json:"message"`
}

// PortfolioRiskProfile aggregates risk over the current positions.
// It is recomputed on every request.
type PortfolioRiskProfile struct {
	Positions         int         `json:"positions"`
	Underlyings       int         `json:"underlyings"`
	Capital           float64     `json:"capital"`
	TotalMargin       float64     `json:"total_margin"`
	TotalMaxLoss      float64     `json:"total_max_loss"`
	TotalCredit       float64     `json:"total_credit"`
	MarginUtilization float64     `json:"margin_utilization"`
	VaR               float64     `json:"var"`
	ExpectedShortfall float64     `json:"expected_shortfall"`
	Confidence        float64     `json:"confidence"`
	HorizonDays       int         `json:"horizon_days"`
	Method            string      `json:"method"`
	Diversification   float64     `json:"diversification"`
	NetDollarDelta    float64     `json:"net_dollar_delta"`
	Alerts            []RiskAlert `json:"alerts"`
}
