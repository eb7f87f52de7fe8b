// Package cost converts API usage into USD amounts and records spend.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   PerQueryRate         `yaml:"geocode" mapstructure:"geocode"`
	Places    PerQueryRate         `yaml:"places" mapstructure:"places"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerQueryRate holds a flat cost per query.
type PerQueryRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// GeocodeQuery returns the flat cost per paid geocoding query.
func (c *Calculator) GeocodeQuery() float64 {
	return c.rates.Geocode.PerQuery
}

// PlacesQuery returns the flat cost per Places text-search query.
func (c *Calculator) PlacesQuery() float64 {
	return c.rates.Places.PerQuery
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-1-20250805":   {Input: 15.00, Output: 75.00},
		},
		Geocode: PerQueryRate{PerQuery: 0.005},
		Places:  PerQueryRate{PerQuery: 0.032},
	}
}
