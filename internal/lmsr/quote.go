package lmsr

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// pricePlaces is the precision of reported instantaneous prices.
const pricePlaces = 8

// Quote describes a hypothetical move of the global state.
type Quote struct {
	Before        domain.Shares   `json:"before"`
	After         domain.Shares   `json:"after"`
	Payment       int64           `json:"payment"`
	PaymentShares decimal.Decimal `json:"payment_shares"`
	PriceFor      decimal.Decimal `json:"price_for"`
	PriceAgainst  decimal.Decimal `json:"price_against"`
}

// Prices returns the instantaneous probabilities of both outcomes in state
// s. An empty market prices both sides at one half.
func Prices(s domain.Shares) (forPrice, againstPrice decimal.Decimal, err error) {
	half := decimal.NewFromFloat(0.5)
	if s.Liquidity == 0 {
		if s.SharesFor != 0 || s.SharesAgainst != 0 {
			return decimal.Zero, decimal.Zero, fmt.Errorf("lmsr: price%s: shares without liquidity: %w", s, domain.ErrDomain)
		}
		return half, half, nil
	}
	l := float64(s.Liquidity)
	hi := math.Max(float64(s.SharesFor), float64(s.SharesAgainst))
	ef := math.Exp((float64(s.SharesFor) - hi) / l)
	ea := math.Exp((float64(s.SharesAgainst) - hi) / l)
	p := decimal.NewFromFloat(ef / (ef + ea)).Round(pricePlaces)
	return p, decimal.NewFromInt(1).Sub(p), nil
}

// Quote prices a move of the global state from before to after. The
// payment is also expressed in winning-share units.
func (e *Engine) Quote(before, after domain.Shares) (Quote, error) {
	pay, err := e.Payment(before, after)
	if err != nil {
		return Quote{}, err
	}
	pf, pa, err := Prices(after)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Before:        before,
		After:         after,
		Payment:       pay,
		PaymentShares: decimal.NewFromInt(pay).Div(decimal.NewFromInt(e.params.SatScaling)),
		PriceFor:      pf,
		PriceAgainst:  pa,
	}, nil
}
