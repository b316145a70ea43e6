// Package lmsr prices the binary market with Hanson's logarithmic market
// scoring rule and maps every reachable state onto a precomputed, Merkle
// committed price ladder so the covenant never evaluates ln/exp.
//
// The real-valued cost is quantized by ScalingFactor with math.Round (ties
// away from zero) and then rescaled into payment units by floor division.
package lmsr

import (
	"errors"
	"fmt"
	"math"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// Params fixes the numeric contract shared with the covenant verifier.
type Params struct {
	// ScalingFactor multiplies the real cost before rounding.
	ScalingFactor int64
	// SatScaling is the payment-unit value of one winning share.
	SatScaling int64
	// MaxLiquidity and MaxShares bound the ladder.
	MaxLiquidity uint8
	MaxShares    uint8
}

// DefaultParams returns the values the deployed covenant was compiled with.
func DefaultParams() Params {
	return Params{
		ScalingFactor: 1 << 32,
		SatScaling:    1 << 20,
		MaxLiquidity:  15,
		MaxShares:     63,
	}
}

// Validate checks that the parameters are internally consistent.
func (p Params) Validate() error {
	var errs []error
	if p.ScalingFactor <= 0 {
		errs = append(errs, fmt.Errorf("scaling factor must be positive"))
	}
	if p.SatScaling <= 0 {
		errs = append(errs, fmt.Errorf("sat scaling must be positive"))
	}
	if p.SatScaling > 0 && p.ScalingFactor%p.SatScaling != 0 {
		errs = append(errs, fmt.Errorf("scaling factor %d is not a multiple of sat scaling %d", p.ScalingFactor, p.SatScaling))
	}
	if p.MaxLiquidity == 0 {
		errs = append(errs, fmt.Errorf("max liquidity must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("lmsr: %w", errors.Join(errs...))
	}
	return nil
}

// Engine evaluates costs and ladder positions for one parameter set.
type Engine struct {
	params Params
	ratio  int64
}

// New creates an Engine.
func New(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{params: p, ratio: p.ScalingFactor / p.SatScaling}, nil
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

// Cost evaluates l·ln(e^(f/l) + e^(a/l)). The empty market costs nothing;
// shares without liquidity are outside the domain.
func Cost(s domain.Shares) (float64, error) {
	if s.Liquidity == 0 {
		if s.SharesFor != 0 || s.SharesAgainst != 0 {
			return 0, fmt.Errorf("lmsr: cost%s: shares without liquidity: %w", s, domain.ErrDomain)
		}
		return 0, nil
	}
	l := float64(s.Liquidity)
	return l * math.Log(math.Exp(float64(s.SharesFor)/l)+math.Exp(float64(s.SharesAgainst)/l)), nil
}

// Quantize scales a real cost to the integer the ladder commits to.
func (e *Engine) Quantize(cost float64) int64 {
	return int64(math.Round(cost * float64(e.params.ScalingFactor)))
}

// SatoshiBalance converts a quantized cost to payment units, flooring.
func (e *Engine) SatoshiBalance(quantized int64) int64 {
	q := quantized / e.ratio
	if quantized%e.ratio != 0 && quantized < 0 {
		q--
	}
	return q
}

// QuantizedCost is Quantize(Cost(s)).
func (e *Engine) QuantizedCost(s domain.Shares) (int64, error) {
	c, err := Cost(s)
	if err != nil {
		return 0, err
	}
	return e.Quantize(c), nil
}

// Balance is the payment-unit value the market must hold in state s.
func (e *Engine) Balance(s domain.Shares) (int64, error) {
	q, err := e.QuantizedCost(s)
	if err != nil {
		return 0, err
	}
	return e.SatoshiBalance(q), nil
}

// Payment is the signed amount a trade moving the market from before to
// after must add to the market balance. Negative values are refunds.
func (e *Engine) Payment(before, after domain.Shares) (int64, error) {
	prev, err := e.Balance(before)
	if err != nil {
		return 0, err
	}
	next, err := e.Balance(after)
	if err != nil {
		return 0, err
	}
	return next - prev, nil
}

// PayoutPerShare is what one winning share redeems for.
func (e *Engine) PayoutPerShare() int64 { return e.params.SatScaling }

// LadderSize is the number of ladder slots, reachable or not.
func (e *Engine) LadderSize() int {
	n := int(e.params.MaxShares) + 1
	return (int(e.params.MaxLiquidity) + 1) * n * n
}

// LadderIndex is the position of s in the ladder: l·(S+1)² + f·(S+1) + a.
func (e *Engine) LadderIndex(s domain.Shares) (int, error) {
	if s.Liquidity > e.params.MaxLiquidity || s.SharesFor > e.params.MaxShares || s.SharesAgainst > e.params.MaxShares {
		return 0, fmt.Errorf("lmsr: state %s beyond ladder bounds (%d,%d,%d): %w",
			s, e.params.MaxLiquidity, e.params.MaxShares, e.params.MaxShares, domain.ErrDomain)
	}
	n := int(e.params.MaxShares) + 1
	return int(s.Liquidity)*n*n + int(s.SharesFor)*n + int(s.SharesAgainst), nil
}

// SharesAt inverts LadderIndex.
func (e *Engine) SharesAt(index int) (domain.Shares, error) {
	if index < 0 || index >= e.LadderSize() {
		return domain.Shares{}, fmt.Errorf("lmsr: ladder index %d: %w", index, domain.ErrDomain)
	}
	n := int(e.params.MaxShares) + 1
	return domain.Shares{
		Liquidity:     uint8(index / (n * n)),
		SharesFor:     uint8(index / n % n),
		SharesAgainst: uint8(index % n),
	}, nil
}

// Add applies a signed per-field delta to the global counters, failing
// instead of wrapping.
func Add(global, before, after domain.Shares) (domain.Shares, error) {
	field := func(name string, g, b, a uint8) (uint8, error) {
		v := int(g) + int(a) - int(b)
		if v < 0 || v > domain.MaxField {
			return 0, fmt.Errorf("lmsr: global %s %d%+d out of range: %w", name, g, int(a)-int(b), domain.ErrDomain)
		}
		return uint8(v), nil
	}
	var out domain.Shares
	var err error
	if out.Liquidity, err = field("liquidity", global.Liquidity, before.Liquidity, after.Liquidity); err != nil {
		return domain.Shares{}, err
	}
	if out.SharesFor, err = field("shares_for", global.SharesFor, before.SharesFor, after.SharesFor); err != nil {
		return domain.Shares{}, err
	}
	if out.SharesAgainst, err = field("shares_against", global.SharesAgainst, before.SharesAgainst, after.SharesAgainst); err != nil {
		return domain.Shares{}, err
	}
	return out, nil
}
