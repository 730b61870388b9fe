package portfolio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// maxAllocation is the total allocation limit in percent.
var maxAllocation = decimal.NewFromInt(100)

// Holding is one position of a portfolio. Allocation is a percentage.
// Fields beyond the known ones (shares, notes, ...) are kept in Extra and
// written back out, so they reach the prompts.
type Holding struct {
	Ticker     string          `json:"ticker"`
	Company    string          `json:"company,omitempty"`
	Allocation decimal.Decimal `json:"allocation"`
	Sector     string          `json:"sector,omitempty"`
	Extra      map[string]any  `json:"-"`
}

type holdingFields Holding

var holdingKeys = map[string]bool{"ticker": true, "company": true, "allocation": true, "sector": true}

// UnmarshalJSON decodes the known fields and collects the rest in Extra.
func (h *Holding) UnmarshalJSON(data []byte) error {
	var known holdingFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if holdingKeys[key] {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		if known.Extra == nil {
			known.Extra = make(map[string]any)
		}
		known.Extra[key] = v
	}

	*h = Holding(known)
	return nil
}

// MarshalJSON writes Extra next to the known fields. Known fields win
// over extras of the same name.
func (h Holding) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(holdingFields(h))
	if err != nil {
		return nil, err
	}
	if len(h.Extra) == 0 {
		return known, nil
	}

	out := make(map[string]any, len(h.Extra)+len(holdingKeys))
	for k, v := range h.Extra {
		out[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// Portfolio is the set of holdings analysed by the market pipeline.
type Portfolio struct {
	Holdings []Holding `json:"holdings"`
}

// Preferences steer the trading recommendations.
type Preferences struct {
	RiskTolerance     string   `json:"risk_tolerance"`
	PreferredSectors  []string `json:"preferred_sectors"`
	PreferredRegions  []string `json:"preferred_regions"`
	InvestmentHorizon string   `json:"investment_horizon"`
}

// Common preference values. Other values are accepted and passed through.
const (
	RiskConservative = "conservative"
	RiskModerate     = "moderate"
	RiskAggressive   = "aggressive"

	HorizonShort  = "short-term"
	HorizonMedium = "medium-term"
	HorizonLong   = "long-term"
)

// TotalAllocation sums the allocations of every holding.
func (p Portfolio) TotalAllocation() decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings {
		total = total.Add(h.Allocation)
	}
	return total
}

// Tickers returns the holdings' tickers in order.
func (p Portfolio) Tickers() []string {
	out := make([]string, len(p.Holdings))
	for i, h := range p.Holdings {
		out[i] = h.Ticker
	}
	return out
}

// Normalize trims fields and upper-cases tickers.
func (p *Portfolio) Normalize() {
	for i := range p.Holdings {
		h := &p.Holdings[i]
		h.Ticker = strings.ToUpper(strings.TrimSpace(h.Ticker))
		h.Company = strings.TrimSpace(h.Company)
		h.Sector = strings.TrimSpace(h.Sector)
	}
}

// Validate reports every problem of the portfolio. Field names are dotted
// paths below prefix, e.g. "portfolio.holdings.0.ticker".
func (p Portfolio) Validate(prefix string) error {
	errs := &errors.MultiError{}

	if len(p.Holdings) == 0 {
		errs.Add(errors.NewValidationError(join(prefix, "holdings"), "at least one holding is required", nil))
	}
	for i, h := range p.Holdings {
		field := join(prefix, fmt.Sprintf("holdings.%d", i))
		if strings.TrimSpace(h.Ticker) == "" {
			errs.Add(errors.NewValidationError(field+".ticker", "ticker is required", h.Ticker))
		}
		if h.Allocation.IsNegative() {
			errs.Add(errors.NewValidationError(field+".allocation", "allocation must not be negative", h.Allocation.String()))
		}
	}
	if total := p.TotalAllocation(); total.GreaterThan(maxAllocation) {
		errs.Add(errors.NewValidationError(join(prefix, "holdings"), "allocations must sum to at most 100", total.String()))
	}

	return errs.ToError()
}

// Normalize trims fields and lower-cases the enumerated values.
func (p *Preferences) Normalize() {
	p.RiskTolerance = strings.ToLower(strings.TrimSpace(p.RiskTolerance))
	p.InvestmentHorizon = strings.ToLower(strings.TrimSpace(p.InvestmentHorizon))
	if p.PreferredSectors == nil {
		p.PreferredSectors = []string{}
	}
	if p.PreferredRegions == nil {
		p.PreferredRegions = []string{}
	}
}

// Validate reports every missing preference.
func (p Preferences) Validate(prefix string) error {
	errs := &errors.MultiError{}
	if strings.TrimSpace(p.RiskTolerance) == "" {
		errs.Add(errors.NewValidationError(join(prefix, "risk_tolerance"), "risk tolerance is required", nil))
	}
	if strings.TrimSpace(p.InvestmentHorizon) == "" {
		errs.Add(errors.NewValidationError(join(prefix, "investment_horizon"), "investment horizon is required", nil))
	}
	return errs.ToError()
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}
