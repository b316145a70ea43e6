package market

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/merkle"
)

type harness struct {
	t       *testing.T
	h       hasher.Hasher
	engine  *lmsr.Engine
	ladder  *lmsr.Ladder
	machine *StateMachine
	table   *merkle.Table
	alice   *crypto.Signer
	bob     *crypto.Signer
}

func newHarness(t *testing.T, depth int) *harness {
	t.Helper()
	h := hasher.Default()
	p := lmsr.DefaultParams()
	p.MaxLiquidity = 3
	p.MaxShares = 7
	engine, err := lmsr.New(p)
	require.NoError(t, err)
	ladder, err := engine.BuildLadder(h)
	require.NoError(t, err)
	m, err := New(Config{Hasher: h, Engine: engine, LadderRoot: ladder.Root(), LedgerDepth: depth, Owners: crypto.OwnerVerifier{}})
	require.NoError(t, err)
	table, err := merkle.NewTable(h, depth, nil)
	require.NoError(t, err)
	alice, err := crypto.GenerateSigner()
	require.NoError(t, err)
	bob, err := crypto.GenerateSigner()
	require.NoError(t, err)
	return &harness{t: t, h: h, engine: engine, ladder: ladder, machine: m, table: table, alice: alice, bob: bob}
}

func sh(l, f, a uint8) domain.Shares {
	return domain.Shares{Liquidity: l, SharesFor: f, SharesAgainst: a}
}

func (hs *harness) entry(s *crypto.Signer, shares domain.Shares) domain.LedgerEntry {
	return domain.LedgerEntry{Owner: s.Owner(), Shares: shares}
}

// proposal builds an unsigned proposal moving slot's entry to after.
func (hs *harness) proposal(status domain.MarketStatus, slot int, after domain.LedgerEntry) Proposal {
	hs.t.Helper()
	before, err := hs.table.Entry(slot)
	require.NoError(hs.t, err)
	proof, err := hs.table.Proof(slot)
	require.NoError(hs.t, err)
	global, err := lmsr.Add(status.Shares, before.Shares, after.Shares)
	require.NoError(hs.t, err)
	prev, err := hs.ladder.Proof(status.Shares)
	require.NoError(hs.t, err)
	next, err := hs.ladder.Proof(global)
	require.NoError(hs.t, err)
	return Proposal{Before: before, After: after, Proof: proof, PrevPrice: prev, NextPrice: next}
}

// sign attaches the owner's spend signature to p.
func (hs *harness) sign(s *crypto.Signer, status domain.MarketStatus, p Proposal) Proposal {
	hs.t.Helper()
	tr, err := hs.machine.Prepare(status, p)
	require.NoError(hs.t, err)
	sig, err := s.SignSpend(hs.h, tr.PrevBlob, tr.NextBlob)
	require.NoError(hs.t, err)
	p.Signature = sig
	return p
}

// apply proposes and mirrors the accepted change into the local table.
func (hs *harness) apply(status domain.MarketStatus, slot int, p Proposal) (domain.MarketStatus, Transition) {
	hs.t.Helper()
	tr, err := hs.machine.Propose(status, p)
	require.NoError(hs.t, err)
	require.NoError(hs.t, hs.table.Set(slot, p.After))
	require.Equal(hs.t, tr.Next.BalanceTableRoot, hs.table.Root())
	return tr.Next, tr
}

func TestBootstrapAndPaymentScenario(t *testing.T) {
	hs := newHarness(t, 1)
	status := hs.machine.Genesis([]byte("meta"))
	require.Equal(t, domain.PhaseCreated, hs.machine.Phase(status))

	s := merkle.LeafDigest(hs.h, domain.SentinelEntry)
	require.Equal(t, hs.h.Sum(s[:], s[:]), status.BalanceTableRoot)

	// liquidity provider bootstraps the empty table
	lp := hs.entry(hs.alice, sh(1, 0, 0))
	p := hs.proposal(status, 1, lp)
	require.Equal(t, merkle.BootstrapProof(hs.h, 1), p.Proof)
	status, tr := hs.apply(status, 1, p)

	leaf := merkle.LeafDigest(hs.h, lp)
	require.Equal(t, hs.h.Sum(s[:], leaf[:]), status.BalanceTableRoot)
	require.Equal(t, sh(1, 0, 0), status.Shares)
	require.Equal(t, int64(726817), tr.Payment)
	require.Equal(t, domain.PhaseTrading, hs.machine.Phase(status))

	// a buyer of one "for" share against global (1,0,0)
	buy := hs.entry(hs.bob, sh(0, 1, 0))
	status, tr = hs.apply(status, 0, hs.proposal(status, 0, buy))
	require.Equal(t, sh(1, 1, 0), status.Shares)

	want := hs.engine.SatoshiBalance(hs.engine.Quantize(1.3132616875182228)) - hs.engine.SatoshiBalance(hs.engine.Quantize(0.6931471805599453))
	require.Equal(t, want, tr.Payment)
	require.Equal(t, int64(650237), tr.Payment)
	require.Equal(t, codec.EncodeStatus(status), tr.NextBlob)
}

func TestUpdateRequiresOwnerSignature(t *testing.T) {
	hs := newHarness(t, 1)
	status := hs.machine.Genesis(nil)
	status, _ = hs.apply(status, 1, hs.proposal(status, 1, hs.entry(hs.alice, sh(1, 0, 0))))

	more := hs.entry(hs.alice, sh(1, 0, 2))
	unsigned := hs.proposal(status, 1, more)

	_, err := hs.machine.Propose(status, unsigned)
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)

	_, err = hs.machine.Propose(status, hs.sign(hs.bob, status, unsigned))
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)

	next, tr := hs.apply(status, 1, hs.sign(hs.alice, status, unsigned))
	require.Equal(t, sh(1, 0, 2), next.Shares)
	require.Positive(t, tr.Payment)

	// selling back is a refund
	back := hs.proposal(next, 1, hs.entry(hs.alice, sh(1, 0, 0)))
	_, tr = hs.apply(next, 1, hs.sign(hs.alice, next, back))
	require.Negative(t, tr.Payment)
}

func TestProposeRejects(t *testing.T) {
	hs := newHarness(t, 1)
	status := hs.machine.Genesis(nil)
	status, _ = hs.apply(status, 1, hs.proposal(status, 1, hs.entry(hs.alice, sh(1, 0, 0))))

	t.Run("owner change", func(t *testing.T) {
		p := hs.proposal(status, 1, hs.entry(hs.bob, sh(1, 0, 0)))
		_, err := hs.machine.Propose(status, p)
		require.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("no-op", func(t *testing.T) {
		p := hs.proposal(status, 1, hs.entry(hs.alice, sh(1, 0, 0)))
		_, err := hs.machine.Propose(status, p)
		require.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("ownerless entry", func(t *testing.T) {
		p := hs.proposal(status, 0, domain.LedgerEntry{Shares: sh(0, 1, 0)})
		_, err := hs.machine.Propose(status, p)
		require.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("underflow", func(t *testing.T) {
		p := hs.proposal(status, 0, hs.entry(hs.bob, sh(0, 1, 0)))
		p.Before = hs.entry(hs.bob, sh(0, 0, 3))
		_, err := hs.machine.Propose(status, p)
		require.ErrorIs(t, err, domain.ErrDomain)
	})

	t.Run("beyond ladder", func(t *testing.T) {
		p := hs.proposal(status, 0, hs.entry(hs.bob, sh(0, 1, 0)))
		p.After = hs.entry(hs.bob, sh(0, 9, 0))
		_, err := hs.machine.Propose(status, p)
		require.ErrorIs(t, err, domain.ErrDomain)
	})

	t.Run("forged price", func(t *testing.T) {
		p := hs.proposal(status, 0, hs.entry(hs.bob, sh(0, 1, 0)))
		p.NextPrice.Balance--
		_, err := hs.machine.Propose(status, p)
		require.ErrorIs(t, err, domain.ErrProofInvalid)
	})

	t.Run("stale table proof", func(t *testing.T) {
		p := hs.proposal(status, 0, hs.entry(hs.bob, sh(0, 1, 0)))
		p.Proof = merkle.BootstrapProof(hs.h, 1)
		_, err := hs.machine.Propose(status, p)
		require.ErrorIs(t, err, domain.ErrProofInvalid)
	})

	t.Run("resolved", func(t *testing.T) {
		resolved := status
		resolved.Resolved = true
		resolved.Outcome = domain.OutcomeFor
		_, err := hs.machine.Propose(resolved, hs.proposal(status, 0, hs.entry(hs.bob, sh(0, 1, 0))))
		require.ErrorIs(t, err, domain.ErrState)
	})
}

func TestSharesWithoutLiquidity(t *testing.T) {
	hs := newHarness(t, 1)
	status := hs.machine.Genesis(nil)
	_, err := hs.machine.Propose(status, Proposal{
		Before:    domain.SentinelEntry,
		After:     hs.entry(hs.bob, sh(0, 1, 0)),
		Proof:     merkle.BootstrapProof(hs.h, 1),
		PrevPrice: mustPrice(t, hs, sh(0, 0, 0)),
	})
	require.ErrorIs(t, err, domain.ErrDomain)
}

func mustPrice(t *testing.T, hs *harness, s domain.Shares) lmsr.PriceProof {
	t.Helper()
	p, err := hs.ladder.Proof(s)
	require.NoError(t, err)
	return p
}

func TestConcurrentProposalsOnlyOneLands(t *testing.T) {
	hs := newHarness(t, 2)
	status := hs.machine.Genesis(nil)
	status, _ = hs.apply(status, 3, hs.proposal(status, 3, hs.entry(hs.alice, sh(1, 0, 0))))

	first := hs.proposal(status, 0, hs.entry(hs.bob, sh(0, 1, 0)))
	second := hs.proposal(status, 1, hs.entry(hs.bob, sh(0, 0, 1)))

	next, _ := hs.apply(status, 0, first)
	_, err := hs.machine.Propose(next, second)
	require.Error(t, err)
}

func TestPairedUpdate(t *testing.T) {
	hs := newHarness(t, 1)
	seed := hs.entry(hs.alice, sh(1, 2, 0))
	status, balance, err := hs.machine.Seed(nil, seed)
	require.NoError(t, err)
	require.Equal(t, merkle.PairedRoot(hs.h, seed), status.BalanceTableRoot)
	require.Equal(t, hs.engine.SatoshiBalance(mustPrice(t, hs, sh(1, 2, 0)).Balance), balance)
	require.Equal(t, domain.PhaseTrading, hs.machine.Phase(status))

	after := hs.entry(hs.alice, sh(1, 3, 0))
	p := Proposal{
		Before:    seed,
		After:     after,
		Proof:     merkle.PairedProof(hs.h, seed),
		PrevPrice: mustPrice(t, hs, sh(1, 2, 0)),
		NextPrice: mustPrice(t, hs, sh(1, 3, 0)),
	}
	tr, err := hs.machine.Propose(status, hs.sign(hs.alice, status, p))
	require.NoError(t, err)
	require.True(t, tr.Paired)
	require.Equal(t, merkle.PairedRoot(hs.h, after), tr.Next.BalanceTableRoot)
	require.Equal(t, sh(1, 3, 0), tr.Next.Shares)
}

func TestDuplicateSiblingRejected(t *testing.T) {
	hs := newHarness(t, 1)
	status := hs.machine.Genesis(nil)
	e := hs.entry(hs.alice, sh(1, 1, 0))
	status, _ = hs.apply(status, 1, hs.proposal(status, 1, e))

	// an identical second insert would make the root look self-paired
	_, err := hs.machine.Propose(status, hs.proposal(status, 0, e))
	require.ErrorIs(t, err, domain.ErrState)

	// so would moving a second entry of the same owner onto the first
	status, _ = hs.apply(status, 0, hs.proposal(status, 0, hs.entry(hs.alice, sh(1, 2, 0))))
	p := hs.proposal(status, 0, e)
	_, err = hs.machine.Prepare(status, p)
	require.ErrorIs(t, err, domain.ErrState)
	require.NotEqual(t, merkle.PairedRoot(hs.h, e), status.BalanceTableRoot)

	// a different entry next to e still updates a single leaf
	status, tr := hs.apply(status, 0, hs.sign(hs.alice, status, hs.proposal(status, 0, hs.entry(hs.alice, sh(1, 3, 0)))))
	require.False(t, tr.Paired)
	require.Equal(t, sh(2, 4, 0), status.Shares)
}

func TestSeedRejectsEmptyEntry(t *testing.T) {
	hs := newHarness(t, 1)
	_, _, err := hs.machine.Seed(nil, domain.SentinelEntry)
	require.ErrorIs(t, err, domain.ErrState)
}
