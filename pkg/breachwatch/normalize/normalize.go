// Package normalize turns one source-specific RawExtraction into a canonical
// BreachRecord. It is the only place that knows which raw keys each publisher uses.
package normalize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cognicore/breachwatch/pkg/breachwatch/classify"
	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/quantity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/sanitize"
	"github.com/cognicore/breachwatch/pkg/breachwatch/temporal"
)

// Options configures a Normalizer. Nil components fall back to defaults.
type Options struct {
	Sources  []SourceConfig
	Dates    *temporal.Parser
	Taxonomy *classify.Taxonomy
	Logger   *slog.Logger
}

// Normalizer composes the sanitizer, the date and count parsers and the data-type
// classifier.
type Normalizer struct {
	sources  map[int]SourceConfig
	fields   map[int]fieldMap
	fallback fieldMap
	dates    *temporal.Parser
	taxonomy *classify.Taxonomy
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		sources:  make(map[int]SourceConfig, len(opts.Sources)),
		fields:   make(map[int]fieldMap, len(opts.Sources)),
		fallback: newFieldMap(SourceConfig{}),
		dates:    opts.Dates,
		taxonomy: opts.Taxonomy,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   opts.Logger,
	}
	for _, src := range opts.Sources {
		n.sources[src.ID] = src
		n.fields[src.ID] = newFieldMap(src)
	}
	if n.dates == nil {
		n.dates = temporal.New(temporal.Options{})
	}
	if n.taxonomy == nil {
		n.taxonomy = classify.Default()
	}
	if n.logger == nil {
		n.logger = slog.New(slog.DiscardHandler)
	}
	return n
}

// Source returns the configuration registered for id.
func (n *Normalizer) Source(id int) (SourceConfig, bool) {
	src, ok := n.sources[id]
	return src, ok
}

// Normalize produces a BreachRecord without identity. It fails only when the
// source id or organisation name is missing after sanitization; every other
// field degrades to null or low confidence.
func (n *Normalizer) Normalize(raw record.RawExtraction) (record.BreachRecord, error) {
	if raw.SourceID <= 0 {
		return record.BreachRecord{}, fmt.Errorf("%w: missing source_id", internalerr.ErrInvalidInput)
	}

	payload := sanitize.Map(raw.Fields)
	originURL := strings.TrimSpace(sanitize.Clean(raw.OriginURL))

	fm, ok := n.fields[raw.SourceID]
	if !ok {
		fm = n.fallback
	}
	locale := n.sources[raw.SourceID].Locale
	idx := index(payload)

	if originURL == "" {
		originURL = fm.text(idx, record.FieldOriginURL)
	}
	if originURL != "" {
		payload[record.FieldOriginURL] = originURL
	}

	org := collapse(fm.text(idx, record.FieldOrganizationName))
	breachRaw := fm.text(idx, record.FieldBreachDate)
	breach := n.dates.Parse(breachRaw, locale)

	if swapped, ok := n.repairSwap(org, breachRaw, breach, locale); ok {
		n.logger.Warn("organization and breach date columns look swapped",
			"source_id", raw.SourceID, "organization", org, "breach_date", breachRaw)
		org, breachRaw, breach = collapse(breachRaw), org, swapped
	}

	if org == "" {
		return record.BreachRecord{}, fmt.Errorf("%w: missing organization_name (source %d)", internalerr.ErrInvalidInput, raw.SourceID)
	}

	reportedRaw := fm.text(idx, record.FieldReportedDate)
	reported := n.dates.Parse(reportedRaw, locale)

	var count quantity.Result
	if v, ok := fm.lookup(idx, record.FieldAffected); ok {
		count = quantity.FromValue(v)
	} else {
		count = quantity.Result{Confidence: quantity.Unknown}
	}

	leaked := fm.text(idx, record.FieldWhatWasLeaked)

	rec := record.BreachRecord{
		SourceID:            raw.SourceID,
		OriginURL:           originURL,
		OrganizationName:    org,
		BreachDate:          dateField(breach),
		ReportedDate:        dateField(reported),
		AffectedIndividuals: count.Value,
		AffectedConfidence:  count.Confidence,
		AffectedRaw:         strings.TrimSpace(count.Raw),
		WhatWasLeaked:       leaked,
		DataTypes:           n.taxonomy.Classify(leaked),
		TaxonomyVersion:     n.taxonomy.Version().String(),
		NaturalKey:          fm.text(idx, FieldNaturalKey),
		RawPayload:          payload,
	}

	if err := n.validate.Struct(rec); err != nil {
		return record.BreachRecord{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
	}
	return rec, nil
}

// repairSwap detects an organisation name sitting in the date column while the
// organisation column holds a complete date.
func (n *Normalizer) repairSwap(org, breachRaw string, breach temporal.Result, locale string) (temporal.Result, bool) {
	if breach.OK || breachRaw == "" || org == "" {
		return temporal.Result{}, false
	}
	switch breach.Reason {
	case temporal.ReasonNoDigits, temporal.ReasonOrganization, temporal.ReasonLetterHeavy:
	default:
		return temporal.Result{}, false
	}
	fromOrg := n.dates.Parse(org, locale)
	if !fromOrg.OK || fromOrg.Precision != temporal.PrecisionDay {
		return temporal.Result{}, false
	}
	return fromOrg, true
}

func dateField(r temporal.Result) record.DateField {
	df := record.DateField{Raw: strings.TrimSpace(r.Raw)}
	if r.OK {
		d := r.Date
		df.Value = &d
		df.Precision = string(r.Precision)
		df.Confidence = r.Confidence
	}
	return df
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
