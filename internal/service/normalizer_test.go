package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

func newTestNormalizer(t *testing.T) (*Normalizer, testRepos) {
	t.Helper()
	repos := newTestRepos(newTestDB(t))
	return &Normalizer{
		Entities: repos.entities,
		Events:   repos.events,
		Aliases:  repos.aliases,
	}, repos
}

func TestNormalizeMerchantStrings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, _ := newTestNormalizer(t)

	cases := map[string]string{
		"UBER *TRIP 8292":        "Uber",
		"PAYPAL *NETFLIX":        "Netflix",
		"WALMART 0023":           "Walmart",
		"SQ *COFFEE HOUSE":       "Coffee House",
		"AMAZON PURCHASE":        "Amazon",
		"Starbucks":              "Starbucks",
		"TELMEX 99881 factura":   "Telmex",
		"  spaced   out  store ": "Spaced Out Store",
	}
	for raw, want := range cases {
		got, err := n.Normalize(ctx, testOwner, raw)
		require.NoError(t, err)
		require.Equal(t, want, got, "raw %q", raw)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, _ := newTestNormalizer(t)

	for _, raw := range []string{"UBER *TRIP 8292", "PAYPAL *NETFLIX", "WALMART 0023", "Dentist Visit"} {
		once, err := n.Normalize(ctx, testOwner, raw)
		require.NoError(t, err)
		twice, err := n.Normalize(ctx, testOwner, once)
		require.NoError(t, err)
		require.Equal(t, once, twice, "raw %q", raw)
	}
}

func TestNormalizeAllDigitsFallsBackToOriginal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, _ := newTestNormalizer(t)

	got, err := n.Normalize(ctx, testOwner, "  884412039 ")
	require.NoError(t, err)
	require.Equal(t, "884412039", got)
}

func TestNormalizeAliasWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, repos := newTestNormalizer(t)

	require.NoError(t, repos.aliases.Upsert(ctx, repository.PayeeAlias{
		ID: uuid.NewString(), OwnerID: testOwner,
		Alias: "wlmrt", NormalizedName: "Walmart Supercenter",
	}))
	got, err := n.Normalize(ctx, testOwner, "POS *WLMRT 99231 receipt")
	require.NoError(t, err)
	require.Equal(t, "Walmart Supercenter", got)
}

func TestSuggestCategoryWindowFollowsInjectedClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, repos := newTestNormalizer(t)
	n.Clock = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	netflix := uuid.NewString()
	require.NoError(t, repos.entities.Insert(ctx, repository.Entity{
		ID: netflix, OwnerID: testOwner, Name: "Netflix",
		Category: repository.CategoryService,
	}))

	// Older than six months relative to the pinned clock: no baseline.
	require.NoError(t, repos.events.Insert(ctx, repository.LifeEvent{
		ID: uuid.NewString(), OwnerID: testOwner, EntityID: &netflix,
		Title: "Netflix", EventType: repository.EventService,
		Amount:     decimal.NewFromFloat(-15.99),
		OccurredOn: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		Status:     repository.EventStatusCompleted,
	}))
	got, err := n.SuggestCategory(ctx, testOwner, "Netflix")
	require.NoError(t, err)
	require.Nil(t, got)

	// Inside the window the type wins with confidence 90.
	require.NoError(t, repos.events.Insert(ctx, repository.LifeEvent{
		ID: uuid.NewString(), OwnerID: testOwner, EntityID: &netflix,
		Title: "Netflix", EventType: repository.EventService,
		Amount:     decimal.NewFromFloat(-15.99),
		OccurredOn: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:     repository.EventStatusCompleted,
	}))
	got, err = n.SuggestCategory(ctx, testOwner, "Netflix")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, repository.EventService, got.Category)
	require.Equal(t, 90, got.Confidence)
}

func TestSuggestDestinationLearnsFromHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, repos := newTestNormalizer(t)

	groceries := uuid.NewString()
	require.NoError(t, repos.entities.Insert(ctx, repository.Entity{
		ID: groceries, OwnerID: testOwner, Name: "Groceries",
		Category: repository.CategoryExpenseCategory,
	}))
	require.NoError(t, repos.events.Insert(ctx, repository.LifeEvent{
		ID: uuid.NewString(), OwnerID: testOwner, Title: "Walmart",
		EventType: repository.EventExpense, Amount: decimal.NewFromInt(-80),
		OccurredOn: time.Now().UTC(), Status: repository.EventStatusCompleted,
		ToEntityID: &groceries,
	}))

	dest, err := n.SuggestDestination(ctx, testOwner, "Walmart")
	require.NoError(t, err)
	require.Equal(t, groceries, dest)

	dest, err = n.SuggestDestination(ctx, testOwner, "Never Seen Before")
	require.NoError(t, err)
	require.Empty(t, dest)
}

func TestIsAnomaly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, repos := newTestNormalizer(t)

	account := uuid.NewString()
	require.NoError(t, repos.entities.Insert(ctx, repository.Entity{
		ID: account, OwnerID: testOwner, Name: "Checking",
		Category: repository.CategoryFinance,
	}))

	// No history: never an anomaly.
	hit, err := n.IsAnomaly(ctx, testOwner, account, decimal.NewFromInt(-5000))
	require.NoError(t, err)
	require.False(t, hit)

	for i := 0; i < 4; i++ {
		require.NoError(t, repos.events.Insert(ctx, repository.LifeEvent{
			ID: uuid.NewString(), OwnerID: testOwner, EntityID: &account,
			Title: "Coffee", EventType: repository.EventExpense,
			Amount:     decimal.NewFromInt(-50),
			OccurredOn: time.Now().UTC(), Status: repository.EventStatusCompleted,
		}))
	}

	hit, err = n.IsAnomaly(ctx, testOwner, account, decimal.NewFromInt(-400))
	require.NoError(t, err)
	require.True(t, hit)

	hit, err = n.IsAnomaly(ctx, testOwner, account, decimal.NewFromInt(-120))
	require.NoError(t, err)
	require.False(t, hit)
}
