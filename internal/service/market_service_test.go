package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/merkle"
	"github.com/alanyoungcy/predictledger/internal/notify"
	"github.com/alanyoungcy/predictledger/internal/oracle"
	"github.com/alanyoungcy/predictledger/internal/rabin"
)

const oracleKeySize = 64

type fixture struct {
	t        *testing.T
	svc      *MarketService
	store    *memStore
	cache    *memCache
	bus      *memBus
	audit    *memAudit
	notifier *memNotifier
	engine   *lmsr.Engine
	oracles  []*rabin.PrivateKey
	registry []domain.OracleKey
	alice    *crypto.Signer
	bob      *crypto.Signer
}

func newFixture(t *testing.T, depth int) *fixture {
	t.Helper()
	h := hasher.Default()
	p := lmsr.DefaultParams()
	p.MaxLiquidity, p.MaxShares = 3, 7
	engine, err := lmsr.New(p)
	require.NoError(t, err)
	ladder, err := engine.BuildLadder(h)
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		store:    newMemStore(),
		cache:    newMemCache(),
		bus:      &memBus{},
		audit:    &memAudit{},
		notifier: &memNotifier{},
		engine:   engine,
	}
	for _, w := range []uint8{40, 60} {
		k, err := rabin.GenerateKey(nil, oracleKeySize)
		require.NoError(t, err)
		f.oracles = append(f.oracles, k)
		f.registry = append(f.registry, domain.OracleKey{PublicKey: k.PublicKey(), Weight: w})
	}
	f.alice, err = crypto.GenerateSigner()
	require.NoError(t, err)
	f.bob, err = crypto.GenerateSigner()
	require.NoError(t, err)

	f.svc, err = NewMarketService(Deps{
		Markets:     f.store,
		Statuses:    f.store,
		Ledger:      f.store,
		Resolutions: f.store,
		Audit:       f.audit,
		Cache:       f.cache,
		Locks:       &memLocks{},
		Bus:         f.bus,
		Notifier:    f.notifier,
		Hasher:      h,
		Ladder:      ladder,
		Engine:      engine,
		Owners:      crypto.OwnerVerifier{},
		OracleSigs:  rabin.Verifier{},
	}, Config{LedgerDepth: depth, OracleKeyLen: oracleKeySize}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return f
}

func sh(l, f, a uint8) domain.Shares {
	return domain.Shares{Liquidity: l, SharesFor: f, SharesAgainst: a}
}

func (f *fixture) create(seed *domain.Shares) string {
	f.t.Helper()
	v, err := f.svc.CreateMarket(context.Background(), CreateRequest{
		Details:  "Will the bridge open before 2027?",
		Creator:  f.alice.Owner(),
		Registry: f.registry,
		Seed:     seed,
	})
	require.NoError(f.t, err)
	return v.Record.ID
}

func (f *fixture) votes(outcome domain.Outcome, slots ...int) []domain.OracleVote {
	f.t.Helper()
	var out []domain.OracleVote
	for _, s := range slots {
		sig, pad, err := rabin.Sign(f.oracles[s], oracle.Message(outcome))
		require.NoError(f.t, err)
		out = append(out, domain.OracleVote{Slot: uint8(s), Signature: sig, PaddingByteCount: pad})
	}
	return out
}

// signedUpdate moves an existing entry and signs it through Prepare.
func (f *fixture) signedUpdate(id string, s *crypto.Signer, before, after domain.LedgerEntry) market.Proposal {
	f.t.Helper()
	prep, err := f.svc.Prepare(context.Background(), id, market.Proposal{Before: before, After: after})
	require.NoError(f.t, err)
	sig, err := s.Sign(prep.SpendDigest)
	require.NoError(f.t, err)
	p := prep.Proposal
	p.Signature = sig
	return p
}

func TestCreateMarket(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.create(nil)

	v, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseCreated, v.Phase)
	require.Equal(t, int64(0), v.Current.Version)
	require.Equal(t, "0.5", v.PriceFor.String())
	require.Equal(t, f.alice.Owner(), v.Info.Creator)
	require.Equal(t, merkle.EmptyRoot(hasher.Default(), 2), v.Current.Status.BalanceTableRoot)
	require.Equal(t, []string{Channel(id)}, f.bus.channels)
	require.Equal(t, notify.EventCreated, f.notifier.events[0].Kind)

	_, err = f.svc.CreateMarket(ctx, CreateRequest{
		Details:  "Will the bridge open before 2027?",
		Creator:  f.alice.Owner(),
		Registry: f.registry,
	})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestCreateMarketRejects(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.CreateMarket(ctx, CreateRequest{Details: "x", Registry: f.registry})
	require.ErrorIs(t, err, domain.ErrMalformed)

	_, err = f.svc.CreateMarket(ctx, CreateRequest{Details: "x", Creator: f.alice.Owner()})
	require.ErrorIs(t, err, domain.ErrDomain)
}

func TestTradeResolveRedeem(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.create(nil)

	alice := domain.LedgerEntry{Owner: f.alice.Owner(), Shares: sh(1, 2, 0)}
	rc, err := f.svc.Propose(ctx, id, market.Proposal{After: alice})
	require.NoError(t, err)
	want, err := f.engine.Payment(sh(0, 0, 0), sh(1, 2, 0))
	require.NoError(t, err)
	require.Equal(t, want, rc.Payment)
	require.Equal(t, int64(1), rc.Version.Version)
	require.Equal(t, 3, rc.Slot)

	bob := domain.LedgerEntry{Owner: f.bob.Owner(), Shares: sh(1, 0, 3)}
	rc, err = f.svc.Propose(ctx, id, market.Proposal{After: bob})
	require.NoError(t, err)
	require.Equal(t, 2, rc.Slot)
	require.Equal(t, sh(2, 2, 3), rc.Version.Status.Shares)

	entries, err := f.svc.Entries(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	ep, err := f.svc.EntryProof(ctx, id, 3)
	require.NoError(t, err)
	require.Equal(t, alice, ep.Entry)
	require.True(t, merkle.VerifyEntry(hasher.Default(), rc.Version.Status.BalanceTableRoot, alice, ep.Proof))

	// Updating without the owner's signature is refused.
	grown := domain.LedgerEntry{Owner: f.alice.Owner(), Shares: sh(1, 3, 0)}
	_, err = f.svc.Propose(ctx, id, market.Proposal{Before: alice, After: grown})
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)

	rc, err = f.svc.Propose(ctx, id, f.signedUpdate(id, f.alice, alice, grown))
	require.NoError(t, err)
	require.Equal(t, int64(3), rc.Version.Version)
	require.Equal(t, sh(2, 3, 3), rc.Version.Status.Shares)
	alice = grown

	q, err := f.svc.Quote(ctx, id, sh(0, 0, 0), sh(1, 1, 0))
	require.NoError(t, err)
	require.Equal(t, sh(3, 4, 3), q.After)
	require.Positive(t, q.Payment)

	// 40 of 100 is not a majority.
	_, err = f.svc.Resolve(ctx, id, ResolveRequest{Outcome: domain.OutcomeFor, Votes: f.votes(domain.OutcomeFor, 0)})
	require.ErrorIs(t, err, domain.ErrQuorumNotMet)

	wire, err := codec.EncodeVotes(f.votes(domain.OutcomeFor, 1), oracleKeySize)
	require.NoError(t, err)
	res, err := f.svc.Resolve(ctx, id, ResolveRequest{Outcome: domain.OutcomeFor, VotesWire: wire})
	require.NoError(t, err)
	require.Equal(t, domain.PhaseResolved, res.Phase)
	require.Equal(t, 60, res.Tally.Weight)

	rec, err := f.svc.GetResolution(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []int{1}, rec.Slots)

	_, err = f.svc.Resolve(ctx, id, ResolveRequest{Outcome: domain.OutcomeFor, Votes: f.votes(domain.OutcomeFor, 1)})
	require.ErrorIs(t, err, domain.ErrState)

	_, err = f.svc.Propose(ctx, id, market.Proposal{After: domain.LedgerEntry{Owner: f.bob.Owner(), Shares: sh(1, 1, 0)}})
	require.ErrorIs(t, err, domain.ErrState)

	cur, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	sig, err := f.alice.SignRedeem(hasher.Default(), cur.Current.Blob, codec.EncodeEntry(alice))
	require.NoError(t, err)
	rc, err = f.svc.Redeem(ctx, id, market.RedeemRequest{Entry: alice, Signature: sig})
	require.NoError(t, err)
	require.Equal(t, -3*f.engine.PayoutPerShare(), rc.Payment)
	require.Equal(t, sh(1, 0, 0), rc.Entry.Shares)

	_, err = f.svc.Redeem(ctx, id, market.RedeemRequest{Entry: alice, Signature: sig})
	require.ErrorIs(t, err, domain.ErrNotFound)

	hist, err := f.svc.History(ctx, id, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, hist, 6)
	require.Equal(t, domain.TransitionRedeem, hist[0].Kind)

	require.Contains(t, f.audit.events, "market.resolve")
	require.Contains(t, f.audit.events, "market.redeem")
}

func TestSeededPairedMarket(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	seed := sh(1, 1, 1)
	id := f.create(&seed)

	v, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseTrading, v.Phase)
	bal, err := f.engine.Balance(seed)
	require.NoError(t, err)
	require.Equal(t, bal, v.Current.Payment)

	e := domain.LedgerEntry{Owner: f.alice.Owner(), Shares: seed}
	next := domain.LedgerEntry{Owner: f.alice.Owner(), Shares: sh(1, 2, 1)}
	rc, err := f.svc.Propose(ctx, id, f.signedUpdate(id, f.alice, e, next))
	require.NoError(t, err)
	require.Equal(t, merkle.PairedRoot(hasher.Default(), next), rc.Version.Status.BalanceTableRoot)

	slots, err := f.store.Slots(ctx, id)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.Equal(t, next, slots[0].Entry)
	require.Equal(t, next, slots[1].Entry)
}

func TestStaleCacheConflicts(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.create(nil)
	genesis, err := f.svc.Status(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.Propose(ctx, id, market.Proposal{After: domain.LedgerEntry{Owner: f.alice.Owner(), Shares: sh(1, 1, 0)}})
	require.NoError(t, err)

	// Another writer's cache still holds version 0.
	require.NoError(t, f.cache.Set(ctx, genesis.Current))
	proposal := market.Proposal{After: domain.LedgerEntry{Owner: f.bob.Owner(), Shares: sh(1, 0, 1)}}
	_, err = f.svc.Propose(ctx, id, proposal)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.cache.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)

	rc, err := f.svc.Propose(ctx, id, proposal)
	require.NoError(t, err)
	require.Equal(t, int64(2), rc.Version.Version)
}

func TestUnknownMarket(t *testing.T) {
	f := newFixture(t, 2)
	_, err := f.svc.Status(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateMarketDefaultsToOperator(t *testing.T) {
	f := newFixture(t, 2)
	f.svc.cfg.Operator = f.bob.Owner()

	v, err := f.svc.CreateMarket(context.Background(), CreateRequest{Details: "operator market", Registry: f.registry})
	require.NoError(t, err)
	require.Equal(t, f.bob.Owner(), v.Info.Creator)
}

func TestEventsReplaysStream(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.create(nil)
	require.NoError(t, f.bus.StreamAppend(ctx, f.svc.cfg.StatusStream, []byte(`{"market_id":"other","version":0}`)))

	page, err := f.svc.Events(ctx, id, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, "1-0", page.Events[0].ID)
	require.Equal(t, "2-0", page.Next)

	var ev struct {
		MarketID string `json:"market_id"`
		Version  int64  `json:"version"`
		Kind     string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(page.Events[0].Payload, &ev))
	require.Equal(t, id, ev.MarketID)
	require.Equal(t, int64(0), ev.Version)
	require.Equal(t, string(domain.TransitionCreate), ev.Kind)

	page, err = f.svc.Events(ctx, id, page.Next, 0)
	require.NoError(t, err)
	require.Empty(t, page.Events)
	require.Equal(t, "2-0", page.Next)

	_, err = f.svc.Events(ctx, "missing", "", 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
