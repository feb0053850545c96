package services

import (
	"fmt"
	"strings"
)

// ExchangeRateProvider converts subject prices into the currency a payment
// was captured in.
type ExchangeRateProvider interface {
	// Rate returns the multiplier that converts an amount in from into to
	Rate(from, to string) (float64, error)
}

// StaticRateProvider serves a fixed "FROM:TO" -> rate table. Inverse pairs
// are derived when only one direction is configured.
type StaticRateProvider struct {
	rates map[string]float64
}

func NewStaticRateProvider(rates map[string]float64) *StaticRateProvider {
	normalized := make(map[string]float64, len(rates))
	for pair, rate := range rates {
		normalized[strings.ToUpper(pair)] = rate
	}
	return &StaticRateProvider{rates: normalized}
}

func (p *StaticRateProvider) Rate(from, to string) (float64, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return 1, nil
	}
	if rate, ok := p.rates[from+":"+to]; ok && rate > 0 {
		return rate, nil
	}
	if rate, ok := p.rates[to+":"+from]; ok && rate > 0 {
		return 1 / rate, nil
	}
	return 0, fmt.Errorf("no exchange rate from %s to %s", from, to)
}
