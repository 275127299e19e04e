package enums

import "fmt"

// Strategy selects the provider scoring weights.
type Strategy string

const (
	StrategyCost     Strategy = "cost"
	StrategySpeed    Strategy = "speed"
	StrategyQuality  Strategy = "quality"
	StrategyBalanced Strategy = "balanced"
)

var validStrategies = []Strategy{
	StrategyCost,
	StrategySpeed,
	StrategyQuality,
	StrategyBalanced,
}

// String implements fmt.Stringer.
func (v Strategy) String() string {
	return string(v)
}

// IsValid reports whether the value is a known Strategy.
func (v Strategy) IsValid() bool {
	for _, candidate := range validStrategies {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseStrategy converts raw input into a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	for _, candidate := range validStrategies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid strategy %q", value)
}
