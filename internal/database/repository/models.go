package repository

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Entity category tags. Closed but extensible: unknown tags round-trip
// through storage untouched.
const (
	CategoryAsset           = "ASSET"
	CategoryFinance         = "FINANCE"
	CategoryHealth          = "HEALTH"
	CategoryProject         = "PROJECT"
	CategoryService         = "SERVICE"
	CategoryIncomeCategory  = "INCOME_CATEGORY"
	CategoryExpenseCategory = "EXPENSE_CATEGORY"
)

// Entity lifecycle statuses.
const (
	EntityStatusActive   = "ACTIVE"
	EntityStatusArchived = "ARCHIVED"
)

// Relationship types between entities.
const (
	RelInsuredBy  = "INSURED_BY"
	RelFinancedBy = "FINANCED_BY"
	RelLocatedIn  = "LOCATED_IN"
	RelOwnedBy    = "OWNED_BY"
	RelPartOf     = "PART_OF"
	RelPaidFrom   = "PAID_FROM"
)

// Life event types.
const (
	EventExpense      = "EXPENSE"
	EventIncome       = "INCOME"
	EventPayment      = "PAYMENT"
	EventAmortization = "AMORTIZATION"
	EventService      = "SERVICE"
	EventMilestone    = "MILESTONE"
	EventCalibration  = "CALIBRATION"
)

// Life event statuses.
const (
	EventStatusCompleted = "COMPLETED"
	EventStatusScheduled = "SCHEDULED"
	EventStatusPaid      = "PAID"
)

// Pending confirmation statuses.
const (
	ConfirmationPending   = "pending"
	ConfirmationConfirmed = "confirmed"
	ConfirmationDiscarded = "discarded"
)

// Metadata is a free-form key-value bag persisted as JSON.
type Metadata map[string]any

// Merge returns a copy of m with the entries of other laid on top. Existing
// keys not present in other survive; this is the only way metadata is ever
// updated.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Float reads a numeric key, tolerating the types JSON decoding produces.
func (m Metadata) Float(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return 0, false
		}
		f, _ := d.Float64()
		return f, true
	default:
		return 0, false
	}
}

// Bool reads a boolean key.
func (m Metadata) Bool(key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// String reads a string key.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func marshalMetadata(m Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMetadata(raw string) (Metadata, error) {
	if raw == "" {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Metadata{}
	}
	return m, nil
}

// Entity represents an account, asset, person, service or category node.
type Entity struct {
	ID        string
	OwnerID   string
	Name      string
	Category  string
	Status    string
	Metadata  Metadata
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityRelationship is a directed typed edge between two entities.
type EntityRelationship struct {
	ID             string
	ParentEntityID string
	ChildEntityID  string
	Type           string
	Metadata       Metadata
	CreatedAt      time.Time
}

// LifeEvent is a dated financial/activity record. Amounts are signed:
// negative is an outflow.
type LifeEvent struct {
	ID          string
	OwnerID     string
	EntityID    *string
	ToEntityID  *string
	Title       string
	Description string
	EventType   string
	Amount      decimal.Decimal
	OccurredOn  time.Time
	Status      string
	Metadata    Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PendingConfirmation stages AI-extracted data awaiting human review.
type PendingConfirmation struct {
	ID           string
	OwnerID      string
	SourceKind   string
	SourceID     string
	RawPayload   string
	Draft        string
	Confidence   int
	NeedsReview  bool
	ReviewReason *string
	Status       string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

// PayeeAlias maps a raw merchant string fragment to a normalized name.
type PayeeAlias struct {
	ID             string
	OwnerID        string
	Alias          string
	NormalizedName string
	Category       *string
	CreatedAt      time.Time
}

// DateOnly is the storage format for occurrence dates.
const DateOnly = "2006-01-02"
