package domain

// Factors are the per-candidate inputs of the composite score.
type Factors struct {
	AnnualizedReturn float64 `json:"annualized_return"`
	Probability      float64 `json:"probability"`
	Liquidity        float64 `json:"liquidity"` // 0-100
	IVRank           float64 `json:"iv_rank"`   // 0-1
}

// ScoredOpportunity is a candidate that survived screening in one run.
type ScoredOpportunity struct {
	Candidate  StrategyCandidate `json:"candidate"`
	Raw        Factors           `json:"raw_factors"`
	Normalized Factors           `json:"normalized_factors"`
	Score      float64           `json:"score"`
	Rank       int               `json:"rank"`
}
