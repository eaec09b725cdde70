package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/cognicore/breachwatch/pkg/breachwatch/quantity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// Column names of the breaches table that are not canonical field names.
const (
	ColIncidentUID        = "incident_uid"
	ColSourceID           = "source_id"
	ColIdentityKind       = "identity_kind"
	ColBreachDateRaw      = "breach_date_raw"
	ColBreachPrecision    = "breach_date_precision"
	ColBreachConfidence   = "breach_date_confidence"
	ColReportedDateRaw    = "reported_date_raw"
	ColReportedPrecision  = "reported_date_precision"
	ColReportedConfidence = "reported_date_confidence"
	ColAffectedConfidence = "affected_confidence"
	ColAffectedRaw        = "affected_raw"
)

// fieldColumns expands a canonical field into the columns that store it.
var fieldColumns = map[string][]string{
	record.FieldOrganizationName: {record.FieldOrganizationName},
	record.FieldBreachDate:       {record.FieldBreachDate, ColBreachDateRaw, ColBreachPrecision, ColBreachConfidence},
	record.FieldReportedDate:     {record.FieldReportedDate, ColReportedDateRaw, ColReportedPrecision, ColReportedConfidence},
	record.FieldAffected:         {record.FieldAffected, ColAffectedConfidence, ColAffectedRaw},
	record.FieldWhatWasLeaked:    {record.FieldWhatWasLeaked},
	record.FieldDataTypes:        {record.FieldDataTypes, record.FieldTaxonomyVersion},
	record.FieldTaxonomyVersion:  {record.FieldTaxonomyVersion},
	record.FieldNaturalKey:       {record.FieldNaturalKey},
	record.FieldRawPayload:       {record.FieldRawPayload},
}

// SelectColumns is the column order every SQL backend reads rows in.
var SelectColumns = []string{
	ColIncidentUID, ColSourceID, ColIdentityKind, record.FieldOriginURL,
	record.FieldOrganizationName,
	record.FieldBreachDate, ColBreachDateRaw, ColBreachPrecision, ColBreachConfidence,
	record.FieldReportedDate, ColReportedDateRaw, ColReportedPrecision, ColReportedConfidence,
	record.FieldAffected, ColAffectedConfidence, ColAffectedRaw,
	record.FieldWhatWasLeaked, record.FieldDataTypes, record.FieldTaxonomyVersion,
	record.FieldNaturalKey, record.FieldRawPayload,
}

// NewOp builds the persistence operation for rec. Inserts carry every column;
// updates carry the columns behind the changed canonical fields.
func NewOp(kind OpKind, rec record.BreachRecord, changed ...string) (Op, error) {
	op := Op{
		Kind:        kind,
		SourceID:    rec.SourceID,
		IncidentUID: rec.IncidentUID,
	}
	if rec.OriginURL != "" && (kind == OpInsert || contains(changed, record.FieldOriginURL)) {
		origin := rec.OriginURL
		op.OriginURL = &origin
	}

	fields := changed
	if kind == OpInsert {
		fields = nil
	}
	cols, err := Columns(rec, fields...)
	if err != nil {
		return Op{}, err
	}
	if kind == OpInsert {
		cols[ColIdentityKind] = string(rec.IdentityKind)
	}
	op.Fields = cols
	return op, nil
}

// Columns renders rec as column values. With no fields every column except the
// key columns is rendered. Values are nil, string, int64 or float64.
func Columns(rec record.BreachRecord, fields ...string) (map[string]any, error) {
	want := make(map[string]bool)
	if len(fields) == 0 {
		for f := range fieldColumns {
			want[f] = true
		}
	}
	for _, f := range fields {
		if _, ok := fieldColumns[f]; ok {
			want[f] = true
		}
	}

	out := make(map[string]any)
	for f := range want {
		switch f {
		case record.FieldOrganizationName:
			out[f] = rec.OrganizationName
		case record.FieldBreachDate:
			putDate(out, rec.BreachDate, record.FieldBreachDate, ColBreachDateRaw, ColBreachPrecision, ColBreachConfidence)
		case record.FieldReportedDate:
			putDate(out, rec.ReportedDate, record.FieldReportedDate, ColReportedDateRaw, ColReportedPrecision, ColReportedConfidence)
		case record.FieldAffected:
			if rec.AffectedIndividuals != nil {
				out[record.FieldAffected] = *rec.AffectedIndividuals
			} else {
				out[record.FieldAffected] = nil
			}
			out[ColAffectedConfidence] = nullString(string(rec.AffectedConfidence))
			out[ColAffectedRaw] = nullString(rec.AffectedRaw)
		case record.FieldWhatWasLeaked:
			out[f] = nullString(rec.WhatWasLeaked)
		case record.FieldDataTypes:
			tags := rec.DataTypes
			if tags == nil {
				tags = []string{}
			}
			b, err := json.Marshal(tags)
			if err != nil {
				return nil, fmt.Errorf("encode data types: %w", err)
			}
			out[f] = string(b)
			out[record.FieldTaxonomyVersion] = nullString(rec.TaxonomyVersion)
		case record.FieldTaxonomyVersion:
			out[f] = nullString(rec.TaxonomyVersion)
		case record.FieldNaturalKey:
			out[f] = nullString(rec.NaturalKey)
		case record.FieldRawPayload:
			payload, err := CanonicalPayload(rec.RawPayload)
			if err != nil {
				return nil, err
			}
			out[f] = payload
		}
	}
	return out, nil
}

// CanonicalPayload encodes a raw payload as RFC 8785 canonical JSON so that the
// same payload is always stored as the same bytes.
func CanonicalPayload(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode raw payload: %w", err)
	}
	canon, err := jcs.Transform(b)
	if err != nil {
		return "", fmt.Errorf("canonicalize raw payload: %w", err)
	}
	return string(canon), nil
}

func putDate(out map[string]any, d record.DateField, valueCol, rawCol, precisionCol, confidenceCol string) {
	if d.Value != nil {
		out[valueCol] = d.ISO()
		out[confidenceCol] = d.Confidence
	} else {
		out[valueCol] = nil
		out[confidenceCol] = nil
	}
	out[rawCol] = nullString(d.Raw)
	out[precisionCol] = nullString(d.Precision)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SortedKeys returns the column names of fields in a stable order.
func SortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScanRow reads one row in SelectColumns order.
func ScanRow(scan func(dest ...any) error) (map[string]any, error) {
	vals := make([]any, len(SelectColumns))
	dest := make([]any, len(SelectColumns))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(SelectColumns))
	for i, col := range SelectColumns {
		row[col] = vals[i]
	}
	return row, nil
}

// FromColumns rebuilds a BreachRecord from a row keyed by column name.
func FromColumns(row map[string]any) (record.BreachRecord, error) {
	var rec record.BreachRecord
	var err error

	rec.IncidentUID = str(row[ColIncidentUID])
	rec.IdentityKind = record.IdentityKind(str(row[ColIdentityKind]))
	rec.OriginURL = str(row[record.FieldOriginURL])
	rec.OrganizationName = str(row[record.FieldOrganizationName])
	rec.WhatWasLeaked = str(row[record.FieldWhatWasLeaked])
	rec.TaxonomyVersion = str(row[record.FieldTaxonomyVersion])
	rec.NaturalKey = str(row[record.FieldNaturalKey])
	rec.AffectedConfidence = quantity.Confidence(str(row[ColAffectedConfidence]))
	rec.AffectedRaw = str(row[ColAffectedRaw])

	if id, ok, e := integer(row[ColSourceID]); e != nil {
		return rec, fmt.Errorf("source_id: %w", e)
	} else if ok {
		rec.SourceID = int(id)
	}
	if n, ok, e := integer(row[record.FieldAffected]); e != nil {
		return rec, fmt.Errorf("affected_individuals: %w", e)
	} else if ok {
		rec.AffectedIndividuals = &n
	}

	if rec.BreachDate, err = dateFrom(row, record.FieldBreachDate, ColBreachDateRaw, ColBreachPrecision, ColBreachConfidence); err != nil {
		return rec, err
	}
	if rec.ReportedDate, err = dateFrom(row, record.FieldReportedDate, ColReportedDateRaw, ColReportedPrecision, ColReportedConfidence); err != nil {
		return rec, err
	}

	if s := str(row[record.FieldDataTypes]); s != "" {
		if err := json.Unmarshal([]byte(s), &rec.DataTypes); err != nil {
			return rec, fmt.Errorf("data types: %w", err)
		}
	}
	if s := str(row[record.FieldRawPayload]); s != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		if err := dec.Decode(&rec.RawPayload); err != nil {
			return rec, fmt.Errorf("raw payload: %w", err)
		}
	}
	return rec, nil
}

func dateFrom(row map[string]any, valueCol, rawCol, precisionCol, confidenceCol string) (record.DateField, error) {
	d := record.DateField{
		Raw:       str(row[rawCol]),
		Precision: str(row[precisionCol]),
	}
	switch v := row[valueCol].(type) {
	case nil:
	case time.Time:
		t := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		d.Value = &t
	default:
		t, err := time.Parse(time.DateOnly, str(v))
		if err != nil {
			return d, fmt.Errorf("%s: %w", valueCol, err)
		}
		d.Value = &t
	}
	switch c := row[confidenceCol].(type) {
	case float64:
		d.Confidence = c
	case nil:
	default:
		f, err := strconv.ParseFloat(str(c), 64)
		if err != nil {
			return d, fmt.Errorf("%s: %w", confidenceCol, err)
		}
		d.Confidence = f
	}
	return d, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func integer(v any) (int64, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return t, true, nil
	case int:
		return int64(t), true, nil
	case float64:
		return int64(t), true, nil
	default:
		n, err := strconv.ParseInt(str(t), 10, 64)
		if err != nil {
			return 0, false, err
		}
		return n, true, nil
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
