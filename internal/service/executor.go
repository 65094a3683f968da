package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mverde/ledgerpilot/internal/database"
	"github.com/mverde/ledgerpilot/internal/database/repository"
	"github.com/mverde/ledgerpilot/internal/tool"
)

// ActionResult reports the outcome of one executed action. Domain failures
// (unresolvable references, missing parameters) land here with Success=false;
// infrastructure failures roll back the whole batch instead.
type ActionResult struct {
	Tool       string         `json:"tool"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	EntityID   string         `json:"entity_id,omitempty"`
	EventID    string         `json:"event_id,omitempty"`
	Reconciled bool           `json:"reconciled,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Executor commits confirmed action batches. All actions of a batch share one
// transaction, and references between them ("new:<name>") resolve through a
// batch-local map.
type Executor struct {
	DB       *sql.DB
	Registry *tool.Registry
	Logger   *slog.Logger
	Clock    func() time.Time

	// ReconcileWindowDays and AnomalyMultiplier mirror the ingest tunables.
	ReconcileWindowDays int
	AnomalyMultiplier   float64
}

// defaultWalletName is the entity auto-created when an event arrives with no
// resolvable source and the owner has no FINANCE entity at all.
const defaultWalletName = "Wallet"

// txServices bundles the transaction-bound repositories and helpers used
// while executing one batch.
type txServices struct {
	entities *repository.EntityRepo
	events   *repository.EventRepo
	rels     *repository.RelationshipRepo
	resolver *Resolver
	norm     *Normalizer
	recon    *Reconciler
	balance  *BalanceEngine
}

func (x *Executor) bind(tx *sql.Tx) *txServices {
	entities := repository.NewEntityRepo(tx)
	events := repository.NewEventRepo(tx)
	return &txServices{
		entities: entities,
		events:   events,
		rels:     repository.NewRelationshipRepo(tx),
		resolver: &Resolver{Entities: entities},
		norm: &Normalizer{
			Entities:          entities,
			Events:            events,
			Aliases:           repository.NewAliasRepo(tx),
			Clock:             x.Clock,
			AnomalyMultiplier: x.AnomalyMultiplier,
		},
		recon:   &Reconciler{Events: events, WindowDays: x.ReconcileWindowDays},
		balance: &BalanceEngine{Entities: entities, Events: events, Logger: x.Logger},
	}
}

// ExecuteActions runs a confirmed batch. The returned error means the
// transaction rolled back and nothing was written; otherwise every result is
// committed, including the failed-but-non-fatal ones.
func (x *Executor) ExecuteActions(ctx context.Context, ownerID string, actions []Action) ([]ActionResult, error) {
	results := make([]ActionResult, 0, len(actions))
	err := database.WithTx(x.DB, func(tx *sql.Tx) error {
		svc := x.bind(tx)
		batch := BatchRefs{}
		for _, a := range actions {
			res, err := x.executeOne(ctx, svc, ownerID, a, batch)
			if err != nil {
				return fmt.Errorf("execute %s: %w", a.Tool, err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (x *Executor) executeOne(ctx context.Context, svc *txServices, ownerID string, a Action, batch BatchRefs) (ActionResult, error) {
	switch a.Tool {
	case "upsert_entity":
		return x.upsertEntity(ctx, svc, ownerID, a, batch)
	case "link_entities":
		return x.linkEntities(ctx, svc, ownerID, a, batch)
	case "record_financial_event", "record_event":
		return x.recordEvent(ctx, svc, ownerID, a, batch)
	case "set_recurrence":
		// Accepted and acknowledged; occurrence generation is not automated.
		return ActionResult{Tool: a.Tool, Success: true, Message: "recurrence noted; occurrences are recorded as they happen"}, nil
	default:
		t, err := x.Registry.Get(a.Tool)
		if err != nil {
			return ActionResult{Tool: a.Tool, Message: "unknown tool"}, nil
		}
		out, err := t.Execute(ctx, ownerID, a.Params)
		if err != nil {
			return ActionResult{Tool: a.Tool, Message: err.Error()}, nil
		}
		data, _ := out.(map[string]any)
		return ActionResult{Tool: a.Tool, Success: true, Message: "ok", Data: data}, nil
	}
}

func (x *Executor) upsertEntity(ctx context.Context, svc *txServices, ownerID string, a Action, batch BatchRefs) (ActionResult, error) {
	rawName := paramString(a.Params, "name")
	category := strings.ToUpper(strings.TrimSpace(paramString(a.Params, "category")))
	if rawName == "" || category == "" {
		return ActionResult{Tool: a.Tool, Message: "name and category are required"}, nil
	}
	name, err := svc.norm.Normalize(ctx, ownerID, rawName)
	if err != nil {
		return ActionResult{}, err
	}
	meta := repository.Metadata{}
	if m, ok := a.Params["metadata"].(map[string]any); ok {
		meta = repository.Metadata(m)
	}

	var existing *repository.Entity
	if ref := paramString(a.Params, "entity_id"); ref != "" {
		id, err := svc.resolver.Resolve(ctx, ownerID, ref, batch)
		if err != nil {
			return ActionResult{}, err
		}
		if id != "" {
			existing, err = svc.entities.Get(ctx, id)
			if err != nil {
				return ActionResult{}, err
			}
		}
	}
	if existing == nil {
		existing, err = svc.entities.FindExact(ctx, ownerID, name, category)
		if err != nil {
			return ActionResult{}, err
		}
	}

	if existing != nil {
		if len(meta) > 0 {
			if err := svc.entities.MergeMetadata(ctx, existing.ID, meta); err != nil {
				return ActionResult{}, err
			}
		}
		batch[rawName] = existing.ID
		batch[name] = existing.ID
		return ActionResult{Tool: a.Tool, Success: true, Message: "updated " + existing.Name, EntityID: existing.ID}, nil
	}

	id := uuid.NewString()
	balance, hasBalance := paramNumber(a.Params, "balance")
	if hasBalance && balance != 0 {
		meta = meta.Merge(repository.Metadata{"balance": balance, "remaining_balance": balance})
	}
	e := repository.Entity{
		ID:       id,
		OwnerID:  ownerID,
		Name:     name,
		Category: category,
		Status:   repository.EntityStatusActive,
		Metadata: meta,
	}
	if err := svc.entities.Insert(ctx, e); err != nil {
		return ActionResult{}, err
	}
	batch[rawName] = id
	batch[name] = id

	// An opening balance is a real dated record, not just a metadata field.
	if hasBalance && balance != 0 {
		entityID := id
		cal := repository.LifeEvent{
			ID:         uuid.NewString(),
			OwnerID:    ownerID,
			EntityID:   &entityID,
			Title:      "Initial balance",
			EventType:  repository.EventCalibration,
			Amount:     decimal.NewFromFloat(balance),
			OccurredOn: x.today(),
			Status:     repository.EventStatusCompleted,
			Metadata:   repository.Metadata{"initial_balance": true},
		}
		if err := svc.events.Insert(ctx, cal); err != nil {
			return ActionResult{}, err
		}
	}
	return ActionResult{Tool: a.Tool, Success: true, Message: "created " + name, EntityID: id}, nil
}

func (x *Executor) linkEntities(ctx context.Context, svc *txServices, ownerID string, a Action, batch BatchRefs) (ActionResult, error) {
	relType := strings.ToUpper(strings.TrimSpace(paramString(a.Params, "relation")))
	if relType == "" {
		relType = strings.ToUpper(strings.TrimSpace(paramString(a.Params, "relationship_type")))
	}
	subjectRef := paramString(a.Params, "subject_id")
	objectRef := paramString(a.Params, "object_id")
	if relType == "" || subjectRef == "" || objectRef == "" {
		return ActionResult{Tool: a.Tool, Message: "subject_id, relation and object_id are required"}, nil
	}

	subject, err := svc.resolver.Resolve(ctx, ownerID, subjectRef, batch)
	if err != nil {
		return ActionResult{}, err
	}
	object, err := svc.resolver.Resolve(ctx, ownerID, objectRef, batch)
	if err != nil {
		return ActionResult{}, err
	}
	if subject == "" || object == "" {
		return ActionResult{Tool: a.Tool, Message: fmt.Sprintf("could not resolve %q or %q", subjectRef, objectRef)}, nil
	}

	exists, err := svc.rels.Exists(ctx, subject, object, relType)
	if err != nil {
		return ActionResult{}, err
	}
	if exists {
		return ActionResult{Tool: a.Tool, Success: true, Message: "already linked", EntityID: subject}, nil
	}
	meta := repository.Metadata{}
	if m, ok := a.Params["metadata"].(map[string]any); ok {
		meta = repository.Metadata(m)
	}
	rel := repository.EntityRelationship{
		ID:             uuid.NewString(),
		ParentEntityID: subject,
		ChildEntityID:  object,
		Type:           relType,
		Metadata:       meta,
	}
	if err := svc.rels.Insert(ctx, rel); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Tool: a.Tool, Success: true, Message: "linked", EntityID: subject}, nil
}

func (x *Executor) recordEvent(ctx context.Context, svc *txServices, ownerID string, a Action, batch BatchRefs) (ActionResult, error) {
	amountF, ok := paramNumber(a.Params, "amount")
	if !ok {
		return ActionResult{Tool: a.Tool, Message: "amount is required"}, nil
	}
	amount := decimal.NewFromFloat(amountF)
	date := x.parseDate(paramString(a.Params, "date"))

	entityID, err := x.findSource(ctx, svc, ownerID, paramString(a.Params, "entity_id"), batch)
	if err != nil {
		return ActionResult{}, err
	}

	match, err := svc.recon.FindMatch(ctx, ownerID, amount, date, entityID)
	if err != nil {
		return ActionResult{}, err
	}
	if match != nil {
		return ActionResult{
			Tool: a.Tool, Success: true, Reconciled: true,
			Message: "already recorded: " + match.Title,
			EventID: match.ID, EntityID: entityID,
		}, nil
	}

	// Only a genuinely new event justifies inventing an account; a
	// reconciled duplicate above must leave no wallet behind.
	created := false
	if entityID == "" {
		entityID, err = x.createDefaultWallet(ctx, svc, ownerID)
		if err != nil {
			return ActionResult{}, err
		}
		created = true
	}

	description := paramString(a.Params, "description")
	title, err := svc.norm.Normalize(ctx, ownerID, description)
	if err != nil {
		return ActionResult{}, err
	}

	eventType := strings.ToUpper(strings.TrimSpace(paramString(a.Params, "type")))
	if eventType == "" {
		// History with a matching payee beats the sign heuristic.
		suggestion, err := svc.norm.SuggestCategory(ctx, ownerID, title)
		if err != nil {
			return ActionResult{}, err
		}
		switch {
		case suggestion != nil:
			eventType = suggestion.Category
		case amount.IsNegative():
			eventType = repository.EventExpense
		default:
			eventType = repository.EventIncome
		}
	}
	status := repository.EventStatusCompleted
	if date.After(x.today()) {
		status = repository.EventStatusScheduled
	}
	if title == "" {
		title = eventType
	}

	meta := repository.Metadata{}
	if m, ok := a.Params["metadata"].(map[string]any); ok {
		meta = repository.Metadata(m)
	}
	var toEntity *string
	if dest := paramString(a.Params, "to_entity_id"); dest != "" {
		if id, err := svc.resolver.Resolve(ctx, ownerID, dest, batch); err != nil {
			return ActionResult{}, err
		} else if id != "" {
			toEntity = &id
		}
	}
	if toEntity == nil {
		dest, err := svc.norm.SuggestDestination(ctx, ownerID, title)
		if err != nil {
			return ActionResult{}, err
		}
		if dest != "" {
			toEntity = &dest
			meta = meta.Merge(repository.Metadata{"auto_categorized": true})
		}
	}
	if entityID != "" && eventType == repository.EventExpense {
		anomalous, err := svc.norm.IsAnomaly(ctx, ownerID, entityID, amount)
		if err != nil {
			return ActionResult{}, err
		}
		if anomalous {
			meta = meta.Merge(repository.Metadata{"anomaly": true})
		}
	}

	e := repository.LifeEvent{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		EventType:   eventType,
		Amount:      amount,
		OccurredOn:  date,
		Status:      status,
		Metadata:    meta,
	}
	if entityID != "" {
		e.EntityID = &entityID
	}
	e.ToEntityID = toEntity
	if err := svc.events.Insert(ctx, e); err != nil {
		return ActionResult{}, err
	}
	if err := svc.balance.ApplyEvent(ctx, e); err != nil {
		return ActionResult{}, err
	}

	msg := "recorded " + title
	if created {
		msg += " (created default wallet)"
	}
	return ActionResult{Tool: a.Tool, Success: true, Message: msg, EventID: e.ID, EntityID: entityID}, nil
}

// findSource resolves the event's source entity without side effects:
// explicit reference first, then the owner's first FINANCE entity. An empty
// id means the owner has no account yet.
func (x *Executor) findSource(ctx context.Context, svc *txServices, ownerID, ref string, batch BatchRefs) (string, error) {
	if ref != "" {
		id, err := svc.resolver.Resolve(ctx, ownerID, ref, batch)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	first, err := svc.entities.FirstOfCategory(ctx, ownerID, repository.CategoryFinance)
	if err != nil {
		return "", err
	}
	if first != nil {
		return first.ID, nil
	}
	return "", nil
}

// createDefaultWallet inserts the fallback account so a transaction is never
// lost for lack of one.
func (x *Executor) createDefaultWallet(ctx context.Context, svc *txServices, ownerID string) (string, error) {
	wallet := repository.Entity{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Name:     defaultWalletName,
		Category: repository.CategoryFinance,
		Status:   repository.EntityStatusActive,
		Metadata: repository.Metadata{"auto_created": true},
	}
	if err := svc.entities.Insert(ctx, wallet); err != nil {
		return "", err
	}
	x.logger().Info("created default wallet", "owner", ownerID, "entity", wallet.ID)
	return wallet.ID, nil
}

// DeleteEvent reverses a processed event's balance effect and removes it, in
// one transaction.
func (x *Executor) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	return database.WithTx(x.DB, func(tx *sql.Tx) error {
		svc := x.bind(tx)
		e, err := svc.events.Get(ctx, eventID)
		if err != nil {
			return err
		}
		if e == nil || e.OwnerID != ownerID {
			return fmt.Errorf("event %s not found", eventID)
		}
		if err := svc.balance.ReverseEvent(ctx, *e); err != nil {
			return err
		}
		return svc.events.Delete(ctx, eventID)
	})
}

// parseDate is forgiving: YYYY-MM-DD, an RFC3339 prefix, or anything else
// falls back to today. The model occasionally emits timestamps.
func (x *Executor) parseDate(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(repository.DateOnly, s); err == nil {
		return t
	}
	if len(s) > len(repository.DateOnly) {
		if t, err := time.Parse(repository.DateOnly, s[:len(repository.DateOnly)]); err == nil {
			return t
		}
	}
	return x.today()
}

func (x *Executor) today() time.Time {
	now := x.Clock
	if now == nil {
		now = time.Now
	}
	t := now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (x *Executor) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}
