package domain

import (
	"fmt"
	"sort"
)

type preset struct {
	delta          FloatRange
	minProbability float64
	minReturn      float64
	minOI          int64
	minVolume      int64
	maxSpread      float64 // 0 keeps the default
	maxDTE         int     // 0 keeps the default
	minIVRank      float64
	avoidEarnings  bool
}

var presets = map[string]preset{
	"conservative_income": {
		delta: FloatRange{Min: 0.15, Max: 0.30}, minProbability: 0.70, minReturn: 0.08,
		minOI: 200, minVolume: 100, maxSpread: 0.10, avoidEarnings: true,
	},
	"aggressive_income": {
		delta: FloatRange{Min: 0.20, Max: 0.45}, minProbability: 0.50, minReturn: 0.15,
		minOI: 100, minVolume: 50, maxSpread: 0.15, avoidEarnings: true,
	},
	"high_probability": {
		delta: FloatRange{Min: 0.10, Max: 0.25}, minProbability: 0.75, minReturn: 0.06,
		minOI: 300, minVolume: 150, maxSpread: 0.08, avoidEarnings: true,
	},
	"earnings_plays": {
		delta: FloatRange{Min: 0.15, Max: 0.35}, minProbability: 0.60, minReturn: 0.20,
		minOI: 500, minVolume: 200, maxDTE: 14, minIVRank: 0.60,
	},
}

// PresetNames lists the built-in screens.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the default criteria with a named built-in screen applied.
// The preset's delta, return and probability thresholds replace the
// per-strategy rules for every strategy.
func Preset(name string) (ScreeningCriteria, error) {
	p, ok := presets[name]
	if !ok {
		return ScreeningCriteria{}, fmt.Errorf("unknown preset %q (known: %v)", name, PresetNames())
	}

	c := DefaultCriteria()
	c.MinOpenInterest = p.minOI
	c.MinVolume = p.minVolume
	c.MinAnnualizedReturn = p.minReturn
	c.MinProbability = p.minProbability
	c.AvoidEarnings = p.avoidEarnings
	if p.maxSpread > 0 {
		c.MaxBidAskSpread = p.maxSpread
	}
	if p.maxDTE > 0 {
		c.DTERange.Max = p.maxDTE
		if c.DTERange.Min > p.maxDTE {
			c.DTERange.Min = 0
		}
	}
	c.IVRankRange.Min = p.minIVRank

	c.Strategies = make(map[StrategyType]StrategyRules, len(AllStrategies()))
	for _, s := range AllStrategies() {
		c.Strategies[s] = StrategyRules{DeltaRange: p.delta}
	}
	return c, nil
}
