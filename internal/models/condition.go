package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Condition is the watched-value definition of a condition kind. The variant
// matches the kind: PriceCondition, SilenceCondition, or PortfolioCondition.
type Condition interface {
	ConditionKind() Kind
}

// PriceCondition watches a ticker against a threshold, e.g. NVDA < 130.
type PriceCondition struct {
	Ticker     string  `json:"ticker"`
	Operator   string  `json:"operator"`
	Value      float64 `json:"value"`
	Expression string  `json:"expression,omitempty"`
}

// SilenceCondition fires after the user has been inactive for ThresholdHours.
type SilenceCondition struct {
	ThresholdHours float64 `json:"threshold_hours"`
	Expression     string  `json:"expression,omitempty"`
}

// PortfolioCondition compares a portfolio metric against a threshold.
type PortfolioCondition struct {
	Metric     string  `json:"metric"`
	Operator   string  `json:"operator"`
	Threshold  float64 `json:"threshold"`
	Percent    bool    `json:"percent"`
	Expression string  `json:"expression,omitempty"`
}

func (PriceCondition) ConditionKind() Kind     { return KindPrice }
func (SilenceCondition) ConditionKind() Kind   { return KindSilence }
func (PortfolioCondition) ConditionKind() Kind { return KindPortfolio }

// Operators accepted by price and portfolio conditions.
var Operators = []string{"<", "<=", ">", ">=", "=="}

// Portfolio metrics. total_value is absolute; the others are percentages.
const (
	MetricAnyHoldingChange = "any_holding_change"
	MetricAnyHoldingUp     = "any_holding_up"
	MetricAnyHoldingDown   = "any_holding_down"
	MetricTotalChange      = "total_change"
	MetricTotalValue       = "total_value"
)

var PortfolioMetrics = []string{
	MetricAnyHoldingChange, MetricAnyHoldingUp, MetricAnyHoldingDown, MetricTotalChange, MetricTotalValue,
}

const (
	PriceExpressionFormat     = `"TICKER OP VALUE" with OP one of < <= > >= == (e.g. "NVDA < 130")`
	SilenceExpressionFormat   = `"inactive_hours > N" (e.g. "inactive_hours > 48")`
	PortfolioExpressionFormat = `"METRIC OP NUMBER" with METRIC one of any_holding_change, any_holding_up, any_holding_down, total_change (percent, e.g. "total_change < -5%") or total_value (absolute, e.g. "total_value > 100000")`
)

var (
	priceExpr     = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9.\-]{0,14})\s*(<=|>=|==|<|>)\s*\$?(-?\d+(?:\.\d+)?)\s*$`)
	silenceExpr   = regexp.MustCompile(`^\s*inactive_hours\s*>\s*(\d+(?:\.\d+)?)\s*$`)
	portfolioExpr = regexp.MustCompile(`^\s*(any_holding_change|any_holding_up|any_holding_down|total_change|total_value)\s*(<=|>=|==|<|>)\s*(-?\d+(?:\.\d+)?)\s*(%?)\s*$`)
	tickerPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9.\-]{0,14}$`)
)

// ValidTicker reports whether s looks like a ticker symbol.
func ValidTicker(s string) bool {
	return tickerPattern.MatchString(strings.TrimSpace(s))
}

// ValidOperator reports whether op is a supported comparison.
func ValidOperator(op string) bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// ParsePriceExpression parses "TICKER OP VALUE".
func ParsePriceExpression(expr string) (PriceCondition, error) {
	m := priceExpr.FindStringSubmatch(expr)
	if m == nil {
		return PriceCondition{}, fmt.Errorf("price expression %q is not supported; expected %s", expr, PriceExpressionFormat)
	}
	value, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return PriceCondition{}, fmt.Errorf("price expression %q has an invalid value: %w", expr, err)
	}
	return PriceCondition{
		Ticker:     strings.ToUpper(m[1]),
		Operator:   m[2],
		Value:      value,
		Expression: strings.TrimSpace(expr),
	}, nil
}

// ParseSilenceExpression parses "inactive_hours > N".
func ParseSilenceExpression(expr string) (SilenceCondition, error) {
	m := silenceExpr.FindStringSubmatch(expr)
	if m == nil {
		return SilenceCondition{}, fmt.Errorf("silence expression %q is not supported; expected %s", expr, SilenceExpressionFormat)
	}
	hours, err := strconv.ParseFloat(m[1], 64)
	if err != nil || hours <= 0 {
		return SilenceCondition{}, fmt.Errorf("silence expression %q needs a positive number of hours", expr)
	}
	return SilenceCondition{ThresholdHours: hours, Expression: strings.TrimSpace(expr)}, nil
}

// ParsePortfolioExpression parses "METRIC OP NUMBER[%]".
func ParsePortfolioExpression(expr string) (PortfolioCondition, error) {
	m := portfolioExpr.FindStringSubmatch(expr)
	if m == nil {
		return PortfolioCondition{}, fmt.Errorf("portfolio expression %q is not supported; expected %s", expr, PortfolioExpressionFormat)
	}
	threshold, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return PortfolioCondition{}, fmt.Errorf("portfolio expression %q has an invalid threshold: %w", expr, err)
	}
	metric := m[1]
	hasPercent := m[4] == "%"
	if metric == MetricTotalValue && hasPercent {
		return PortfolioCondition{}, fmt.Errorf("portfolio expression %q: total_value is an absolute amount and cannot be a percentage", expr)
	}
	return PortfolioCondition{
		Metric:     metric,
		Operator:   m[2],
		Threshold:  threshold,
		Percent:    metric != MetricTotalValue,
		Expression: strings.TrimSpace(expr),
	}, nil
}

// EncodeCondition serializes a condition for storage; nil encodes as nil.
func EncodeCondition(c Condition) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// DecodeCondition rebuilds the condition variant for kind. Time kinds carry
// no condition and decode to nil.
func DecodeCondition(kind Kind, raw []byte) (Condition, error) {
	if !kind.IsCondition() {
		return nil, nil
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s trigger has no stored condition", kind)
	}
	switch kind {
	case KindPrice:
		var c PriceCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case KindSilence:
		var c SilenceCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		var c PortfolioCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	}
}
