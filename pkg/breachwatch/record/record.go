// Package record defines the raw and canonical shapes that flow through the
// breach ingestion pipeline.
package record

import (
	"maps"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/quantity"
)

// IdentityKind tells which key an IncidentUID was derived from.
type IdentityKind string

const (
	// StrongKey identities hash the publisher's permalink.
	StrongKey IdentityKind = "strong"
	// WeakKey identities hash organisation, date and natural key.
	WeakKey IdentityKind = "weak"
)

// Canonical field names. They double as column names in the catalog stores.
const (
	FieldOriginURL        = "origin_url"
	FieldOrganizationName = "organization_name"
	FieldBreachDate       = "breach_date"
	FieldReportedDate     = "reported_date"
	FieldAffected         = "affected_individuals"
	FieldWhatWasLeaked    = "what_was_leaked"
	FieldDataTypes        = "data_types_compromised"
	FieldNaturalKey       = "natural_key"
	FieldTaxonomyVersion  = "taxonomy_version"
	FieldRawPayload       = "raw_payload"
)

// DateField is a normalized date together with the text it came from.
type DateField struct {
	Value      *time.Time
	Raw        string
	Precision  string
	Confidence float64
}

// IsSet reports whether a date was parsed.
func (d DateField) IsSet() bool { return d.Value != nil }

// ISO returns the date as YYYY-MM-DD, or "" when unset.
func (d DateField) ISO() string {
	if d.Value == nil {
		return ""
	}
	return d.Value.Format(time.DateOnly)
}

// BreachRecord is the canonical, deduplicated form of one incident notice.
type BreachRecord struct {
	SourceID         int    `validate:"required,gt=0"`
	OriginURL        string
	OrganizationName string `validate:"required"`

	BreachDate   DateField
	ReportedDate DateField

	AffectedIndividuals *int64              `validate:"omitempty,gte=0"`
	AffectedConfidence  quantity.Confidence `validate:"omitempty,oneof=exact estimate unknown"`
	AffectedRaw         string

	WhatWasLeaked   string
	DataTypes       []string `validate:"min=1,dive,oneof=government-id financial medical credentials biometric contact-info other-pii"`
	TaxonomyVersion string

	// NaturalKey is a source-specific identifier such as a case number.
	NaturalKey string

	IncidentUID  string
	IdentityKind IdentityKind

	RawPayload map[string]any
}

// Clone returns a deep copy of r (RawPayload is copied one level deep).
func (r BreachRecord) Clone() BreachRecord {
	out := r
	out.BreachDate = r.BreachDate.clone()
	out.ReportedDate = r.ReportedDate.clone()
	if r.AffectedIndividuals != nil {
		n := *r.AffectedIndividuals
		out.AffectedIndividuals = &n
	}
	if r.DataTypes != nil {
		out.DataTypes = append([]string(nil), r.DataTypes...)
	}
	if r.RawPayload != nil {
		out.RawPayload = maps.Clone(r.RawPayload)
	}
	return out
}

func (d DateField) clone() DateField {
	if d.Value != nil {
		v := *d.Value
		d.Value = &v
	}
	return d
}

// ConflictKind classifies a Conflict.
type ConflictKind string

const (
	// ValueConflict: the same identity carried a different, confidently known value.
	ValueConflict ConflictKind = "value-conflict"
	// WeakKeyCollision: as ValueConflict, but the identity came from the weak key,
	// so two distinct incidents may have been merged.
	WeakKeyCollision ConflictKind = "weak-key-collision"
)

// Conflict is an incoming value that was not applied because the catalog already
// held a confident, different value. It is kept for manual review.
type Conflict struct {
	IncidentUID string
	SourceID    int
	Field       string
	Existing    string
	Incoming    string
	Kind        ConflictKind
}
