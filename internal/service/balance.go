package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// BalanceEngine reacts to payment events against FINANCE entities: it splits
// payments into interest/principal, maintains remaining balances, and undoes
// the effect exactly when an event is deleted.
//
// It is invoked explicitly by the event-creation and event-deletion code
// paths. Its own writes go through metadata-only merges, which cannot re-fire
// the reaction: the reentrancy rule holds by construction.
type BalanceEngine struct {
	Entities *repository.EntityRepo
	Events   *repository.EventRepo
	Logger   *slog.Logger
}

var twelve = decimal.NewFromInt(12)

// ApplyEvent processes a freshly persisted event. Every guard failing is a
// silent no-op; the effect is applied exactly once per event.
func (b *BalanceEngine) ApplyEvent(ctx context.Context, e repository.LifeEvent) error {
	if e.EventType != repository.EventPayment && e.EventType != repository.EventAmortization {
		return nil
	}
	if e.Status != repository.EventStatusPaid && e.Status != repository.EventStatusCompleted {
		return nil
	}
	if e.Metadata.Bool("processed") {
		return nil
	}
	if e.EntityID == nil || *e.EntityID == "" {
		return nil
	}
	entity, err := b.Entities.Get(ctx, *e.EntityID)
	if err != nil {
		return err
	}
	if entity == nil || entity.Category != repository.CategoryFinance {
		return nil
	}

	payment := e.Amount.Abs()

	rate, hasRate := entity.Metadata.Float("annual_rate")
	principalLeft, hasPrincipal := entity.Metadata.Float("remaining_principal")
	if hasRate && hasPrincipal {
		return b.applyAmortizing(ctx, entity, e, payment, rate, principalLeft)
	}
	return b.applySimple(ctx, entity, e, payment)
}

// applyAmortizing splits the payment into interest and principal. The split
// is rounded to 2dp once, at persist time, and the same rounded figures
// drive both the entity update and any later reversal, so reversal is exact.
func (b *BalanceEngine) applyAmortizing(ctx context.Context, entity *repository.Entity, e repository.LifeEvent, payment decimal.Decimal, rate, principalLeft float64) error {
	monthlyRate := decimal.NewFromFloat(rate).Div(twelve)
	remaining := decimal.NewFromFloat(principalLeft)

	var interest, principal, savings decimal.Decimal
	if e.Metadata.Bool("is_extra_principal") {
		// Extra payments are all principal; accumulate the interest they save.
		principal = payment
		remainingPayments, _ := entity.Metadata.Float("remaining_payments")
		savings = payment.Mul(monthlyRate).Mul(decimal.NewFromFloat(remainingPayments))
	} else {
		interest = remaining.Mul(monthlyRate)
		principal = payment.Sub(interest)
	}

	interest = interest.Round(2)
	principal = principal.Round(2)
	savings = savings.Round(2)

	newPrincipal := remaining.Sub(principal)
	if newPrincipal.IsNegative() {
		newPrincipal = decimal.Zero
	}
	interestPaid, _ := entity.Metadata.Float("interest_paid_to_date")
	newInterestPaid := decimal.NewFromFloat(interestPaid).Add(interest)
	savingsAcc, _ := entity.Metadata.Float("savings_accumulated")
	newSavings := decimal.NewFromFloat(savingsAcc).Add(savings)

	patch := repository.Metadata{
		"remaining_principal":   newPrincipal.InexactFloat64(),
		"interest_paid_to_date": newInterestPaid.InexactFloat64(),
		// legacy mirrors
		"balance":           newPrincipal.InexactFloat64(),
		"remaining_balance": newPrincipal.InexactFloat64(),
	}
	if !savings.IsZero() || savingsAcc != 0 {
		patch["savings_accumulated"] = newSavings.InexactFloat64()
	}
	if err := b.Entities.MergeMetadata(ctx, entity.ID, patch); err != nil {
		return err
	}

	split := repository.Metadata{
		"principal": principal.InexactFloat64(),
		"interest":  interest.InexactFloat64(),
		"savings":   savings.InexactFloat64(),
	}
	if err := b.Events.MergeMetadata(ctx, e.ID, repository.Metadata{"processed": true, "split": map[string]any(split)}); err != nil {
		return err
	}
	b.logger().Debug("amortization applied",
		"event", e.ID, "entity", entity.ID,
		"principal", principal.StringFixed(2), "interest", interest.StringFixed(2))
	return nil
}

// applySimple deducts the payment from a plain balance, floored at zero.
func (b *BalanceEngine) applySimple(ctx context.Context, entity *repository.Entity, e repository.LifeEvent, payment decimal.Decimal) error {
	current, ok := entity.Metadata.Float("remaining_balance")
	if !ok {
		current, _ = entity.Metadata.Float("balance")
	}
	newBalance := decimal.NewFromFloat(current).Sub(payment)
	if newBalance.IsNegative() {
		newBalance = decimal.Zero
	}
	if err := b.Entities.MergeMetadata(ctx, entity.ID, repository.Metadata{
		"balance":           newBalance.InexactFloat64(),
		"remaining_balance": newBalance.InexactFloat64(),
	}); err != nil {
		return err
	}
	return b.Events.MergeMetadata(ctx, e.ID, repository.Metadata{"processed": true})
}

// ReverseEvent undoes a processed event's effect before deletion. Reversing
// an unprocessed event is a no-op.
func (b *BalanceEngine) ReverseEvent(ctx context.Context, e repository.LifeEvent) error {
	if e.EventType != repository.EventPayment && e.EventType != repository.EventAmortization {
		return nil
	}
	if !e.Metadata.Bool("processed") {
		return nil
	}
	if e.EntityID == nil || *e.EntityID == "" {
		return nil
	}
	entity, err := b.Entities.Get(ctx, *e.EntityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return nil
	}

	if split, ok := e.Metadata["split"].(map[string]any); ok {
		sm := repository.Metadata(split)
		principal, _ := sm.Float("principal")
		interest, _ := sm.Float("interest")
		savings, _ := sm.Float("savings")

		remaining, _ := entity.Metadata.Float("remaining_principal")
		newPrincipal := decimal.NewFromFloat(remaining).Add(decimal.NewFromFloat(principal))
		interestPaid, _ := entity.Metadata.Float("interest_paid_to_date")
		newInterestPaid := decimal.NewFromFloat(interestPaid).Sub(decimal.NewFromFloat(interest))
		if newInterestPaid.IsNegative() {
			newInterestPaid = decimal.Zero
		}
		savingsAcc, _ := entity.Metadata.Float("savings_accumulated")
		newSavings := decimal.NewFromFloat(savingsAcc).Sub(decimal.NewFromFloat(savings))
		if newSavings.IsNegative() {
			newSavings = decimal.Zero
		}

		patch := repository.Metadata{
			"remaining_principal":   newPrincipal.InexactFloat64(),
			"interest_paid_to_date": newInterestPaid.InexactFloat64(),
			"balance":               newPrincipal.InexactFloat64(),
			"remaining_balance":     newPrincipal.InexactFloat64(),
		}
		if _, has := entity.Metadata["savings_accumulated"]; has {
			patch["savings_accumulated"] = newSavings.InexactFloat64()
		}
		b.logger().Debug("amortization reversed", "event", e.ID, "entity", entity.ID)
		return b.Entities.MergeMetadata(ctx, entity.ID, patch)
	}

	current, ok := entity.Metadata.Float("remaining_balance")
	if !ok {
		current, _ = entity.Metadata.Float("balance")
	}
	restored := decimal.NewFromFloat(current).Add(e.Amount.Abs())
	return b.Entities.MergeMetadata(ctx, entity.ID, repository.Metadata{
		"balance":           restored.InexactFloat64(),
		"remaining_balance": restored.InexactFloat64(),
	})
}

func (b *BalanceEngine) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
