package domain

// RejectReason is the machine-readable cause of a dropped contract or candidate.
type RejectReason string

const (
	ReasonInvalidInput         RejectReason = "invalid_input"
	ReasonNoCredit             RejectReason = "no_credit"
	ReasonUnderlyingPrice      RejectReason = "underlying_price"
	ReasonOpenInterest         RejectReason = "min_open_interest"
	ReasonVolume               RejectReason = "min_volume"
	ReasonSpread               RejectReason = "max_spread"
	ReasonSpreadAbs            RejectReason = "max_spread_abs"
	ReasonDTE                  RejectReason = "dte_range"
	ReasonDelta                RejectReason = "delta_range"
	ReasonAnnualizedReturn     RejectReason = "min_annualized_return"
	ReasonMaxLoss              RejectReason = "max_loss"
	ReasonProbability          RejectReason = "min_probability"
	ReasonIVRank               RejectReason = "iv_rank_range"
	ReasonVolatilityDegenerate RejectReason = "volatility_degenerate"
	ReasonEarnings             RejectReason = "earnings_window"
	ReasonTrend                RejectReason = "trend"
	ReasonVolatilityBand       RejectReason = "volatility_band"
	ReasonSymbolCap            RejectReason = "max_per_symbol"
)

// Rejection records why something was dropped from a run.
type Rejection struct {
	Symbol   string       `json:"symbol"`
	Strategy StrategyType `json:"strategy,omitempty"`
	Key      string       `json:"key"`
	Reason   RejectReason `json:"reason"`
	Detail   string       `json:"detail,omitempty"`
}
