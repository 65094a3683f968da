// Package tool holds the catalog of capabilities exposed to the LLM.
package tool

import (
	"context"
	"fmt"
)

// Tool is one callable capability. Read-only tools execute immediately;
// write-intent tools only echo the planned action because all writes go
// through the action executor for transactional consistency.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	ReadOnly() bool
	Execute(ctx context.Context, ownerID string, params map[string]any) (any, error)
}

// Description is the prompt-facing view of a tool.
type Description struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"parameters"`
}

var ErrNotFound = fmt.Errorf("tool not found")

// Registry is a static, ordered catalog of tools.
type Registry struct {
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces it in place without
// changing catalog order.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t, nil
}

// DescribeAll returns tool descriptions in registration order; this list is
// embedded verbatim in the system prompt.
func (r *Registry) DescribeAll() []Description {
	out := make([]Description, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Description{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// writeIntent is the shared shape of tools whose execution is centralized in
// the action executor.
type writeIntent struct {
	name        string
	description string
	schema      map[string]any
}

func (w writeIntent) Name() string           { return w.name }
func (w writeIntent) Description() string    { return w.description }
func (w writeIntent) Schema() map[string]any { return w.schema }
func (w writeIntent) ReadOnly() bool         { return false }
func (w writeIntent) Execute(_ context.Context, _ string, params map[string]any) (any, error) {
	return map[string]any{"planned": true, "tool": w.name, "params": params}, nil
}

// RegisterWriteTools installs the write-intent catalog entries.
func RegisterWriteTools(r *Registry) {
	r.Register(writeIntent{
		name:        "upsert_entity",
		description: "Create or update an entity (account, asset, service, category). Merges metadata on update.",
		schema: objectSchema(map[string]any{
			"name":      prop("string", "Display name of the entity."),
			"category":  prop("string", "One of ASSET, FINANCE, HEALTH, PROJECT, SERVICE, INCOME_CATEGORY, EXPENSE_CATEGORY."),
			"metadata":  prop("object", "Optional domain fields (loan principal, interest rate, icon, specs)."),
			"entity_id": prop("string", "Existing entity UUID when updating."),
			"balance":   prop("number", "Opening balance; a non-zero value records an initial-balance event."),
		}, "name", "category"),
	})
	r.Register(writeIntent{
		name:        "link_entities",
		description: "Create a typed relationship between two entities.",
		schema: objectSchema(map[string]any{
			"subject_id": prop("string", "Parent entity reference (UUID, find-by-name:<text>, new:<text>, find-first-vehicle)."),
			"relation":   prop("string", "One of INSURED_BY, FINANCED_BY, LOCATED_IN, OWNED_BY, PART_OF, PAID_FROM."),
			"object_id":  prop("string", "Child entity reference, same grammar as subject_id."),
			"metadata":   prop("object", "Optional edge metadata."),
		}, "subject_id", "relation", "object_id"),
	})
	r.Register(writeIntent{
		name:        "record_financial_event",
		description: "Record an expense, income or payment. Negative amount is an outflow.",
		schema: objectSchema(map[string]any{
			"entity_id":   prop("string", "Source account/entity reference; omit to use the default wallet."),
			"amount":      prop("number", "Signed amount; negative = expense/outflow."),
			"date":        prop("string", "Occurrence date, YYYY-MM-DD."),
			"description": prop("string", "What happened, e.g. the merchant or payee."),
			"type":        prop("string", "EXPENSE, INCOME, PAYMENT, AMORTIZATION, SERVICE or MILESTONE. Defaults from the amount sign."),
		}, "amount", "date", "description"),
	})
	r.Register(writeIntent{
		name:        "set_recurrence",
		description: "Mark an event as recurring (monthly rent, salary). Accepted but not auto-materialized.",
		schema: objectSchema(map[string]any{
			"description": prop("string", "What recurs."),
			"interval":    prop("string", "daily, weekly, monthly or yearly."),
			"amount":      prop("number", "Signed amount per occurrence."),
		}, "description", "interval"),
	})
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}
