package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

func newTestBalanceEngine(t *testing.T) (*BalanceEngine, testRepos) {
	t.Helper()
	repos := newTestRepos(newTestDB(t))
	return &BalanceEngine{Entities: repos.entities, Events: repos.events}, repos
}

func insertLoan(t *testing.T, repos testRepos, meta repository.Metadata) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, repos.entities.Insert(context.Background(), repository.Entity{
		ID: id, OwnerID: testOwner, Name: "Car Loan",
		Category: repository.CategoryFinance, Metadata: meta,
	}))
	return id
}

func insertPayment(t *testing.T, repos testRepos, entityID string, amount decimal.Decimal, meta repository.Metadata) repository.LifeEvent {
	t.Helper()
	e := repository.LifeEvent{
		ID: uuid.NewString(), OwnerID: testOwner, EntityID: &entityID,
		Title: "Loan payment", EventType: repository.EventPayment,
		Amount: amount, OccurredOn: time.Now().UTC(),
		Status: repository.EventStatusPaid, Metadata: meta,
	}
	require.NoError(t, repos.events.Insert(context.Background(), e))
	return e
}

func requireMetaFloat(t *testing.T, m repository.Metadata, key string, want float64) {
	t.Helper()
	got, ok := m.Float(key)
	require.True(t, ok, "metadata key %s missing", key)
	require.InDelta(t, want, got, 0.01, "metadata key %s", key)
}

func TestAmortizationSplit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, repos := newTestBalanceEngine(t)

	loan := insertLoan(t, repos, repository.Metadata{
		"annual_rate":         0.0844,
		"remaining_principal": 24595.18,
	})
	payment := insertPayment(t, repos, loan, decimal.NewFromFloat(-664.70), nil)
	require.NoError(t, engine.ApplyEvent(ctx, payment))

	// interest = 24595.18 * 0.0844/12 = 172.99, principal = 491.71
	entity, err := repos.entities.Get(ctx, loan)
	require.NoError(t, err)
	requireMetaFloat(t, entity.Metadata, "remaining_principal", 24103.47)
	requireMetaFloat(t, entity.Metadata, "interest_paid_to_date", 172.99)

	stored, err := repos.events.Get(ctx, payment.ID)
	require.NoError(t, err)
	require.True(t, stored.Metadata.Bool("processed"))
	split, ok := stored.Metadata["split"].(map[string]any)
	require.True(t, ok)
	requireMetaFloat(t, repository.Metadata(split), "principal", 491.71)
	requireMetaFloat(t, repository.Metadata(split), "interest", 172.99)
}

func TestAmortizationRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, repos := newTestBalanceEngine(t)

	const startingPrincipal = 24595.18
	loan := insertLoan(t, repos, repository.Metadata{
		"annual_rate":         0.0844,
		"remaining_principal": startingPrincipal,
	})
	payment := insertPayment(t, repos, loan, decimal.NewFromFloat(-664.70), nil)
	require.NoError(t, engine.ApplyEvent(ctx, payment))

	processed, err := repos.events.Get(ctx, payment.ID)
	require.NoError(t, err)
	require.NoError(t, engine.ReverseEvent(ctx, *processed))

	entity, err := repos.entities.Get(ctx, loan)
	require.NoError(t, err)
	got, ok := entity.Metadata.Float("remaining_principal")
	require.True(t, ok)
	require.LessOrEqual(t, math.Abs(got-startingPrincipal), 0.01)
	requireMetaFloat(t, entity.Metadata, "interest_paid_to_date", 0)
}

func TestApplyEventIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, repos := newTestBalanceEngine(t)

	loan := insertLoan(t, repos, repository.Metadata{
		"annual_rate":         0.0844,
		"remaining_principal": 24595.18,
	})
	payment := insertPayment(t, repos, loan, decimal.NewFromFloat(-664.70), nil)
	require.NoError(t, engine.ApplyEvent(ctx, payment))

	// Re-applying the persisted event is a no-op: the processed flag guards.
	processed, err := repos.events.Get(ctx, payment.ID)
	require.NoError(t, err)
	require.NoError(t, engine.ApplyEvent(ctx, *processed))

	entity, err := repos.entities.Get(ctx, loan)
	require.NoError(t, err)
	requireMetaFloat(t, entity.Metadata, "remaining_principal", 24103.47)
}

func TestExtraPrincipalPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, repos := newTestBalanceEngine(t)

	loan := insertLoan(t, repos, repository.Metadata{
		"annual_rate":         0.06,
		"remaining_principal": 10000.0,
		"remaining_payments":  24.0,
	})
	payment := insertPayment(t, repos, loan, decimal.NewFromFloat(-1000),
		repository.Metadata{"is_extra_principal": true})
	require.NoError(t, engine.ApplyEvent(ctx, payment))

	entity, err := repos.entities.Get(ctx, loan)
	require.NoError(t, err)
	// All principal, no interest; savings = 1000 * 0.005 * 24 = 120.
	requireMetaFloat(t, entity.Metadata, "remaining_principal", 9000)
	requireMetaFloat(t, entity.Metadata, "interest_paid_to_date", 0)
	requireMetaFloat(t, entity.Metadata, "savings_accumulated", 120)
}

func TestSimpleBalanceDeduction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, repos := newTestBalanceEngine(t)

	card := insertLoan(t, repos, repository.Metadata{"balance": 500.0})
	payment := insertPayment(t, repos, card, decimal.NewFromFloat(-200), nil)
	require.NoError(t, engine.ApplyEvent(ctx, payment))

	entity, err := repos.entities.Get(ctx, card)
	require.NoError(t, err)
	requireMetaFloat(t, entity.Metadata, "remaining_balance", 300)

	// Overpaying floors at zero.
	second := insertPayment(t, repos, card, decimal.NewFromFloat(-900), nil)
	require.NoError(t, engine.ApplyEvent(ctx, second))
	entity, err = repos.entities.Get(ctx, card)
	require.NoError(t, err)
	requireMetaFloat(t, entity.Metadata, "remaining_balance", 0)
}

func TestApplyEventGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, repos := newTestBalanceEngine(t)

	// Non-FINANCE entities are never touched.
	asset := uuid.NewString()
	require.NoError(t, repos.entities.Insert(ctx, repository.Entity{
		ID: asset, OwnerID: testOwner, Name: "Car",
		Category: repository.CategoryAsset, Metadata: repository.Metadata{"balance": 100.0},
	}))
	e := insertPayment(t, repos, asset, decimal.NewFromFloat(-50), nil)
	require.NoError(t, engine.ApplyEvent(ctx, e))
	entity, err := repos.entities.Get(ctx, asset)
	require.NoError(t, err)
	requireMetaFloat(t, entity.Metadata, "balance", 100)

	// Scheduled payments wait until they are paid.
	loan := insertLoan(t, repos, repository.Metadata{"balance": 100.0})
	scheduled := repository.LifeEvent{
		ID: uuid.NewString(), OwnerID: testOwner, EntityID: &loan,
		Title: "Future payment", EventType: repository.EventPayment,
		Amount: decimal.NewFromFloat(-50), OccurredOn: time.Now().UTC(),
		Status: repository.EventStatusScheduled,
	}
	require.NoError(t, repos.events.Insert(ctx, scheduled))
	require.NoError(t, engine.ApplyEvent(ctx, scheduled))
	entity, err = repos.entities.Get(ctx, loan)
	require.NoError(t, err)
	requireMetaFloat(t, entity.Metadata, "balance", 100)
}
