package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// Identifier is the parsed form of an entity reference produced by the
// model. The string grammar is parsed once here instead of re-checking
// prefixes throughout the executor.
type Identifier interface{ isIdentifier() }

// Literal is a well-formed UUID, returned as-is.
type Literal struct{ ID string }

// ByName is a case-insensitive substring search among ACTIVE entities.
type ByName struct{ Text string }

// BatchRef points at an entity created earlier in the same action batch.
type BatchRef struct{ Name string }

// FirstOfCategory picks the owner's first ACTIVE entity of a category.
type FirstOfCategory struct{ Category string }

// Unresolved is anything the grammar does not cover.
type Unresolved struct{ Raw string }

func (Literal) isIdentifier()         {}
func (ByName) isIdentifier()          {}
func (BatchRef) isIdentifier()        {}
func (FirstOfCategory) isIdentifier() {}
func (Unresolved) isIdentifier()      {}

// ParseIdentifier classifies a raw reference string.
func ParseIdentifier(raw string) Identifier {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Unresolved{Raw: raw}
	}
	if _, err := uuid.Parse(s); err == nil {
		return Literal{ID: s}
	}
	if rest, ok := strings.CutPrefix(s, "find-by-name:"); ok {
		return ByName{Text: strings.TrimSpace(rest)}
	}
	if rest, ok := strings.CutPrefix(s, "new:"); ok {
		return BatchRef{Name: strings.TrimSpace(rest)}
	}
	if s == "find-first-vehicle" {
		return FirstOfCategory{Category: repository.CategoryAsset}
	}
	return Unresolved{Raw: raw}
}

// BatchRefs maps names of entities created earlier in the current action
// batch to their ids. It is threaded explicitly through the executor so
// concurrent batches never interfere.
type BatchRefs map[string]string

func (b BatchRefs) lookup(name string) (string, bool) {
	if id, ok := b[name]; ok {
		return id, true
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for k, id := range b {
		if strings.ToLower(strings.TrimSpace(k)) == needle {
			return id, true
		}
	}
	return "", false
}

// Resolver maps loosely-typed identifiers to concrete entity ids.
type Resolver struct {
	Entities *repository.EntityRepo
}

// Resolve returns the entity id, or "" when the reference cannot be
// resolved. It is stateless apart from read-only lookups.
func (r *Resolver) Resolve(ctx context.Context, ownerID, raw string, batch BatchRefs) (string, error) {
	switch id := ParseIdentifier(raw).(type) {
	case Literal:
		return id.ID, nil
	case ByName:
		e, err := r.Entities.FindByName(ctx, ownerID, id.Text)
		if err != nil || e == nil {
			return "", err
		}
		return e.ID, nil
	case BatchRef:
		if found, ok := batch.lookup(id.Name); ok {
			return found, nil
		}
		return "", nil
	case FirstOfCategory:
		e, err := r.Entities.FirstOfCategory(ctx, ownerID, id.Category)
		if err != nil || e == nil {
			return "", err
		}
		return e.ID, nil
	default:
		return "", nil
	}
}
