package lmsr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

func sh(l, f, a uint8) domain.Shares {
	return domain.Shares{Liquidity: l, SharesFor: f, SharesAgainst: a}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultParams())
	require.NoError(t, err)
	return e
}

func TestCost(t *testing.T) {
	tests := []struct {
		name string
		s    domain.Shares
		want float64
		err  error
	}{
		{"empty", sh(0, 0, 0), 0, nil},
		{"liquidity only", sh(1, 0, 0), math.Ln2, nil},
		{"one for", sh(1, 1, 0), 1.3132616875182228, nil},
		{"balanced", sh(1, 1, 1), 1 + math.Ln2, nil},
		{"no liquidity", sh(0, 1, 0), 0, domain.ErrDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cost(tt.s)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestQuantizedBalances(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		s         domain.Shares
		quantized int64
		balance   int64
	}{
		{sh(1, 0, 0), 2977044472, 726817},
		{sh(1, 1, 0), 5640415999, 1377054},
		{sh(1, 1, 1), 7272011768, 1775393},
		{sh(2, 3, 1), 15575799294, 3802685},
		{sh(15, 63, 63), 315238606725, 76962550},
	}
	for _, tt := range tests {
		t.Run(tt.s.String(), func(t *testing.T) {
			q, err := e.QuantizedCost(tt.s)
			require.NoError(t, err)
			require.Equal(t, tt.quantized, q)
			require.Equal(t, tt.balance, e.SatoshiBalance(q))
		})
	}
}

func TestQuantizeRoundsHalfAwayFromZero(t *testing.T) {
	e := newEngine(t)
	half := 0.5 / float64(e.Params().ScalingFactor)
	require.Equal(t, int64(1), e.Quantize(half))
	require.Equal(t, int64(-1), e.Quantize(-half))
}

func TestSatoshiBalanceFloors(t *testing.T) {
	e := newEngine(t)
	require.Equal(t, int64(0), e.SatoshiBalance(4095))
	require.Equal(t, int64(1), e.SatoshiBalance(4096))
	require.Equal(t, int64(-1), e.SatoshiBalance(-1))
}

func TestPaymentScenario(t *testing.T) {
	e := newEngine(t)
	global := sh(1, 0, 0)
	next, err := Add(global, domain.Shares{}, sh(0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, sh(1, 1, 0), next)

	pay, err := e.Payment(global, next)
	require.NoError(t, err)
	require.Equal(t, int64(1377054-726817), pay)

	refund, err := e.Payment(next, global)
	require.NoError(t, err)
	require.Equal(t, -pay, refund)
}

func TestAddRejectsWrap(t *testing.T) {
	_, err := Add(sh(1, 0, 0), sh(0, 1, 0), sh(0, 0, 0))
	require.ErrorIs(t, err, domain.ErrDomain)

	_, err = Add(sh(1, 255, 0), sh(0, 0, 0), sh(0, 1, 0))
	require.ErrorIs(t, err, domain.ErrDomain)
}

func TestLadderIndex(t *testing.T) {
	e := newEngine(t)
	idx, err := e.LadderIndex(sh(1, 2, 3))
	require.NoError(t, err)
	require.Equal(t, 64*64+2*64+3, idx)

	back, err := e.SharesAt(idx)
	require.NoError(t, err)
	require.Equal(t, sh(1, 2, 3), back)

	require.Equal(t, 1<<16, e.LadderSize())

	_, err = e.LadderIndex(sh(16, 0, 0))
	require.ErrorIs(t, err, domain.ErrDomain)
	_, err = e.LadderIndex(sh(1, 64, 0))
	require.ErrorIs(t, err, domain.ErrDomain)
	_, err = e.SharesAt(e.LadderSize())
	require.ErrorIs(t, err, domain.ErrDomain)
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	p.SatScaling = 3
	_, err := New(p)
	require.Error(t, err)

	p = DefaultParams()
	p.MaxLiquidity = 0
	require.Error(t, p.Validate())
}

func FuzzCostMonotonic(f *testing.F) {
	f.Add(uint8(1), uint8(0), uint8(0))
	f.Add(uint8(15), uint8(63), uint8(10))
	f.Add(uint8(255), uint8(254), uint8(254))
	f.Fuzz(func(t *testing.T, l, fo, ag uint8) {
		if l == 0 || fo == 255 || ag == 255 {
			return
		}
		base, err := Cost(sh(l, fo, ag))
		if err != nil {
			t.Fatal(err)
		}
		up, _ := Cost(sh(l, fo+1, ag))
		if up < base {
			t.Fatalf("cost decreased in shares_for at %d,%d,%d", l, fo, ag)
		}
		up, _ = Cost(sh(l, fo, ag+1))
		if up < base {
			t.Fatalf("cost decreased in shares_against at %d,%d,%d", l, fo, ag)
		}
	})
}
