package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mverde/ledgerpilot/internal/database/repository"
	"github.com/mverde/ledgerpilot/internal/tool"
)

func newTestExecutor(t *testing.T) (*Executor, testRepos, *sql.DB) {
	t.Helper()
	db := newTestDB(t)
	repos := newTestRepos(db)
	clock := func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	registry := tool.NewRegistry()
	registry.Register(&tool.QueryEventsTool{Events: repos.events, Clock: clock})
	tool.RegisterWriteTools(registry)
	x := &Executor{
		DB:       db,
		Registry: registry,
		Clock:    clock,
	}
	return x, repos, db
}

func TestExecuteBatchWithChainedReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "upsert_entity", Params: map[string]any{
			"name": "Honda Civic", "category": "ASSET",
			"metadata": map[string]any{"year": 2022.0},
		}},
		{Tool: "upsert_entity", Params: map[string]any{
			"name": "Acme Insurance", "category": "SERVICE",
		}},
		{Tool: "link_entities", Params: map[string]any{
			"subject_id": "find-first-vehicle",
			"relation":   "INSURED_BY",
			"object_id":  "new:Acme Insurance",
		}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.True(t, r.Success, "action %s: %s", r.Tool, r.Message)
	}

	car, err := repos.entities.Get(ctx, results[0].EntityID)
	require.NoError(t, err)
	require.Equal(t, "Honda Civic", car.Name)

	rels, err := repos.rels.ListByParent(ctx, car.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, repository.RelInsuredBy, rels[0].Type)
	require.Equal(t, results[1].EntityID, rels[0].ChildEntityID)
}

func TestUpsertEntityMergesMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	first, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "upsert_entity", Params: map[string]any{
			"name": "Car Loan", "category": "FINANCE",
			"metadata": map[string]any{"annual_rate": 0.0844, "lender": "CrediBank"},
		}},
	})
	require.NoError(t, err)
	id := first[0].EntityID

	second, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "upsert_entity", Params: map[string]any{
			"name": "Car Loan", "category": "FINANCE",
			"metadata": map[string]any{"remaining_principal": 24595.18},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, id, second[0].EntityID, "same (name, category) must not duplicate")

	loan, err := repos.entities.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "CrediBank", loan.Metadata.String("lender"))
	rate, ok := loan.Metadata.Float("annual_rate")
	require.True(t, ok)
	require.InDelta(t, 0.0844, rate, 1e-9)
	principal, ok := loan.Metadata.Float("remaining_principal")
	require.True(t, ok)
	require.InDelta(t, 24595.18, principal, 0.001)
}

func TestOpeningBalanceCreatesCalibrationEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "upsert_entity", Params: map[string]any{
			"name": "Checking", "category": "FINANCE", "balance": 1500.0,
		}},
	})
	require.NoError(t, err)

	events, err := repos.events.List(ctx, testOwner, repository.EventFilters{
		EntityID: results[0].EntityID, EventType: repository.EventCalibration,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "1500.00", events[0].Amount.StringFixed(2))
	require.True(t, events[0].Metadata.Bool("initial_balance"))
}

func TestRecordEventReconciliation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	record := func(date string) []ActionResult {
		results, err := x.ExecuteActions(ctx, testOwner, []Action{
			{Tool: "record_financial_event", Params: map[string]any{
				"amount": -45.0, "date": date, "description": "UBER *TRIP 8292",
			}},
		})
		require.NoError(t, err)
		return results
	}

	first := record("2026-03-05")
	require.True(t, first[0].Success)
	require.False(t, first[0].Reconciled)

	// Same amount one day later: inside the window, deduplicated.
	dup := record("2026-03-06")
	require.True(t, dup[0].Success)
	require.True(t, dup[0].Reconciled)
	require.Equal(t, first[0].EventID, dup[0].EventID)

	events, err := repos.events.List(ctx, testOwner, repository.EventFilters{Search: "Uber"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Three days later: outside the window, a new event.
	fresh := record("2026-03-09")
	require.False(t, fresh[0].Reconciled)
	events, err = repos.events.List(ctx, testOwner, repository.EventFilters{Search: "Uber"})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestRecordEventCreatesWalletOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	_, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": -10.0, "date": "2026-03-01", "description": "Coffee",
		}},
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": -20.0, "date": "2026-03-02", "description": "Lunch",
		}},
	})
	require.NoError(t, err)

	ents, err := repos.entities.ListActive(ctx, testOwner)
	require.NoError(t, err)
	var wallets int
	for _, e := range ents {
		if e.Category == repository.CategoryFinance {
			wallets++
			require.Equal(t, defaultWalletName, e.Name)
			require.True(t, e.Metadata.Bool("auto_created"))
		}
	}
	require.Equal(t, 1, wallets)
}

func TestReconciledEventDoesNotCreateWallet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	// An event already on record, not attached to any account.
	require.NoError(t, repos.events.Insert(ctx, repository.LifeEvent{
		ID: uuid.NewString(), OwnerID: testOwner, Title: "Uber",
		EventType: repository.EventExpense, Amount: decimal.NewFromInt(-45),
		OccurredOn: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		Status:     repository.EventStatusCompleted,
	}))

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": -45.0, "date": "2026-03-05", "description": "Uber",
		}},
	})
	require.NoError(t, err)
	require.True(t, results[0].Reconciled)

	// A deduplicated signal must not leave a fallback account behind.
	ents, err := repos.entities.ListActive(ctx, testOwner)
	require.NoError(t, err)
	require.Empty(t, ents)

	// A genuinely new event still gets its wallet.
	fresh, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": -45.0, "date": "2026-03-09", "description": "Uber",
		}},
	})
	require.NoError(t, err)
	require.False(t, fresh[0].Reconciled)
	ents, err = repos.entities.ListActive(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	require.Equal(t, defaultWalletName, ents[0].Name)
}

func TestRecordEventDefaultsTypeAndStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": -30.0, "date": "2026-03-01", "description": "Groceries",
		}},
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": 2000.0, "date": "2026-03-01", "description": "Salary deposit",
		}},
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": -99.0, "date": "2026-04-15", "description": "Insurance renewal",
		}},
	})
	require.NoError(t, err)

	expense, err := repos.events.Get(ctx, results[0].EventID)
	require.NoError(t, err)
	require.Equal(t, repository.EventExpense, expense.EventType)
	require.Equal(t, repository.EventStatusCompleted, expense.Status)

	income, err := repos.events.Get(ctx, results[1].EventID)
	require.NoError(t, err)
	require.Equal(t, repository.EventIncome, income.EventType)

	// Clock is 2026-03-10; a mid-April date is in the future.
	future, err := repos.events.Get(ctx, results[2].EventID)
	require.NoError(t, err)
	require.Equal(t, repository.EventStatusScheduled, future.Status)
}

func TestRecordEventLearnsTypeFromHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	netflix := uuid.NewString()
	require.NoError(t, repos.entities.Insert(ctx, repository.Entity{
		ID: netflix, OwnerID: testOwner, Name: "Netflix",
		Category: repository.CategoryService,
	}))
	// The executor's clock is pinned to 2026-03-10; all three fall inside
	// the trailing six months the suggestion considers.
	for i := 0; i < 3; i++ {
		require.NoError(t, repos.events.Insert(ctx, repository.LifeEvent{
			ID: uuid.NewString(), OwnerID: testOwner, EntityID: &netflix,
			Title: "Netflix", EventType: repository.EventService,
			Amount:     decimal.NewFromFloat(-15.99),
			OccurredOn: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0),
			Status:     repository.EventStatusCompleted,
		}))
	}

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "record_financial_event", Params: map[string]any{
			"amount": -15.99, "date": "2026-02-08", "description": "PAYPAL *NETFLIX",
		}},
	})
	require.NoError(t, err)
	require.True(t, results[0].Success)

	e, err := repos.events.Get(ctx, results[0].EventID)
	require.NoError(t, err)
	require.Equal(t, repository.EventService, e.EventType, "payee history overrides the sign heuristic")
}

func TestUnresolvableLinkFailsWithoutAborting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, _, _ := newTestExecutor(t)

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "link_entities", Params: map[string]any{
			"subject_id": "find-by-name:ghost",
			"relation":   "OWNED_BY",
			"object_id":  "find-by-name:phantom",
		}},
		{Tool: "upsert_entity", Params: map[string]any{
			"name": "Real Thing", "category": "SERVICE",
		}},
	})
	require.NoError(t, err)
	require.False(t, results[0].Success)
	require.Contains(t, results[0].Message, "could not resolve")
	require.True(t, results[1].Success, "later actions still run")
}

func TestSetRecurrenceIsAcknowledgedNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "set_recurrence", Params: map[string]any{
			"description": "Rent", "interval": "monthly", "amount": -1200.0,
		}},
	})
	require.NoError(t, err)
	require.True(t, results[0].Success)

	events, err := repos.events.List(ctx, testOwner, repository.EventFilters{})
	require.NoError(t, err)
	require.Empty(t, events, "recurrence must not materialize events")
}

func TestDeleteEventReversesBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, repos, _ := newTestExecutor(t)

	setup, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "upsert_entity", Params: map[string]any{
			"name": "Card", "category": "FINANCE",
			"metadata": map[string]any{"balance": 500.0},
		}},
	})
	require.NoError(t, err)
	card := setup[0].EntityID

	results, err := x.ExecuteActions(ctx, testOwner, []Action{
		{Tool: "record_financial_event", Params: map[string]any{
			"entity_id": card, "amount": -200.0, "date": "2026-03-01",
			"description": "Card payment", "type": "PAYMENT",
		}},
	})
	require.NoError(t, err)

	entity, err := repos.entities.Get(ctx, card)
	require.NoError(t, err)
	balance, _ := entity.Metadata.Float("remaining_balance")
	require.InDelta(t, 300, balance, 0.01)

	require.NoError(t, x.DeleteEvent(ctx, testOwner, results[0].EventID))

	entity, err = repos.entities.Get(ctx, card)
	require.NoError(t, err)
	balance, _ = entity.Metadata.Float("remaining_balance")
	require.InDelta(t, 500, balance, 0.01)

	gone, err := repos.events.Get(ctx, results[0].EventID)
	require.NoError(t, err)
	require.Nil(t, gone)
}
