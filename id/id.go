// Package id defines TypeID-based identity types for all valueflow entities.
//
// Every entity in valueflow uses a single ID struct with a prefix that identifies
// the entity type. IDs are K-sortable (UUIDv7-based), globally unique,
// and URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all valueflow entity types.
const (
	PrefixAgent             Prefix = "agt"    // Economic agent (person, organization, project)
	PrefixResource          Prefix = "res"    // Economic resource
	PrefixProcess           Prefix = "proc"   // Production process
	PrefixExchange          Prefix = "xchg"   // Exchange (purchase, sale, contribution)
	PrefixEvent             Prefix = "evt"    // Economic event
	PrefixValueEquation     Prefix = "veq"    // Value equation
	PrefixBucket            Prefix = "vebkt"  // Value equation bucket
	PrefixBucketRule        Prefix = "vebr"   // Value equation bucket rule
	PrefixClaim             Prefix = "clm"    // Claim
	PrefixClaimEvent        Prefix = "clmevt" // Claim event
	PrefixDistribution      Prefix = "dist"   // Distribution run
	PrefixDistributionEvent Prefix = "devt"   // Distribution event (money sent)
	PrefixDisbursement      Prefix = "disb"   // Disbursement (funding debited)
)

// ID is the primary identifier type for all valueflow entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "res_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// MustParseWithPrefix is like ParseWithPrefix but panics on error.
func MustParseWithPrefix(s string, expected Prefix) ID {
	parsed, err := ParseWithPrefix(s, expected)
	if err != nil {
		panic(fmt.Sprintf("id: must parse with prefix %q: %v", expected, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// AgentID is a type-safe identifier for agents (prefix: "agt").
type AgentID = ID

// ResourceID is a type-safe identifier for resources (prefix: "res").
type ResourceID = ID

// ProcessID is a type-safe identifier for processes (prefix: "proc").
type ProcessID = ID

// ExchangeID is a type-safe identifier for exchanges (prefix: "xchg").
type ExchangeID = ID

// EventID is a type-safe identifier for events (prefix: "evt").
type EventID = ID

// ValueEquationID is a type-safe identifier for value equations (prefix: "veq").
type ValueEquationID = ID

// BucketID is a type-safe identifier for buckets (prefix: "vebkt").
type BucketID = ID

// BucketRuleID is a type-safe identifier for bucket rules (prefix: "vebr").
type BucketRuleID = ID

// ClaimID is a type-safe identifier for claims (prefix: "clm").
type ClaimID = ID

// ClaimEventID is a type-safe identifier for claim events (prefix: "clmevt").
type ClaimEventID = ID

// DistributionID is a type-safe identifier for distributions (prefix: "dist").
type DistributionID = ID

// DistributionEventID is a type-safe identifier for distribution events (prefix: "devt").
type DistributionEventID = ID

// DisbursementID is a type-safe identifier for disbursements (prefix: "disb").
type DisbursementID = ID

// AnyID is a type alias that accepts any valid prefix.
type AnyID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewAgentID generates a new unique agent ID.
func NewAgentID() ID { return New(PrefixAgent) }

// NewResourceID generates a new unique resource ID.
func NewResourceID() ID { return New(PrefixResource) }

// NewProcessID generates a new unique process ID.
func NewProcessID() ID { return New(PrefixProcess) }

// NewExchangeID generates a new unique exchange ID.
func NewExchangeID() ID { return New(PrefixExchange) }

// NewEventID generates a new unique event ID.
func NewEventID() ID { return New(PrefixEvent) }

// NewValueEquationID generates a new unique value equation ID.
func NewValueEquationID() ID { return New(PrefixValueEquation) }

// NewBucketID generates a new unique bucket ID.
func NewBucketID() ID { return New(PrefixBucket) }

// NewBucketRuleID generates a new unique bucket rule ID.
func NewBucketRuleID() ID { return New(PrefixBucketRule) }

// NewClaimID generates a new unique claim ID.
func NewClaimID() ID { return New(PrefixClaim) }

// NewClaimEventID generates a new unique claim event ID.
func NewClaimEventID() ID { return New(PrefixClaimEvent) }

// NewDistributionID generates a new unique distribution ID.
func NewDistributionID() ID { return New(PrefixDistribution) }

// NewDistributionEventID generates a new unique distribution event ID.
func NewDistributionEventID() ID { return New(PrefixDistributionEvent) }

// NewDisbursementID generates a new unique disbursement ID.
func NewDisbursementID() ID { return New(PrefixDisbursement) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseAgentID parses a string and validates the "agt" prefix.
func ParseAgentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAgent) }

// ParseResourceID parses a string and validates the "res" prefix.
func ParseResourceID(s string) (ID, error) { return ParseWithPrefix(s, PrefixResource) }

// ParseProcessID parses a string and validates the "proc" prefix.
func ParseProcessID(s string) (ID, error) { return ParseWithPrefix(s, PrefixProcess) }

// ParseExchangeID parses a string and validates the "xchg" prefix.
func ParseExchangeID(s string) (ID, error) { return ParseWithPrefix(s, PrefixExchange) }

// ParseEventID parses a string and validates the "evt" prefix.
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// ParseValueEquationID parses a string and validates the "veq" prefix.
func ParseValueEquationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixValueEquation) }

// ParseBucketID parses a string and validates the "vebkt" prefix.
func ParseBucketID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBucket) }

// ParseBucketRuleID parses a string and validates the "vebr" prefix.
func ParseBucketRuleID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBucketRule) }

// ParseClaimID parses a string and validates the "clm" prefix.
func ParseClaimID(s string) (ID, error) { return ParseWithPrefix(s, PrefixClaim) }

// ParseClaimEventID parses a string and validates the "clmevt" prefix.
func ParseClaimEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixClaimEvent) }

// ParseDistributionID parses a string and validates the "dist" prefix.
func ParseDistributionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDistribution) }

// ParseDistributionEventID parses a string and validates the "devt" prefix.
func ParseDistributionEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDistributionEvent) }

// ParseDisbursementID parses a string and validates the "disb" prefix.
func ParseDisbursementID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDisbursement) }

// ParseAny parses a string into an ID without type checking the prefix.
func ParseAny(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
