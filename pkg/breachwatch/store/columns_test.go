package store

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/quantity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

func sampleRecord() record.BreachRecord {
	breach := time.Date(2024, time.March, 18, 0, 0, 0, 0, time.UTC)
	n := int64(4000)
	return record.BreachRecord{
		SourceID:            7,
		OriginURL:           "https://ag.example.gov/notice/1",
		OrganizationName:    "Acme Dental",
		BreachDate:          record.DateField{Value: &breach, Raw: "03/18/2024", Precision: "day", Confidence: 1},
		ReportedDate:        record.DateField{Raw: "pending"},
		AffectedIndividuals: &n,
		AffectedConfidence:  quantity.Exact,
		AffectedRaw:         "4,000",
		WhatWasLeaked:       "Names, SSNs",
		DataTypes:           []string{"government-id", "other-pii"},
		TaxonomyVersion:     "1.0.0",
		IncidentUID:         "uid-1",
		IdentityKind:        record.StrongKey,
		RawPayload:          map[string]any{"b": "2", "a": json.Number("1")},
	}
}

func TestColumnsRoundTrip(t *testing.T) {
	rec := sampleRecord()

	op, err := NewOp(OpInsert, rec)
	if err != nil {
		t.Fatalf("NewOp: %v", err)
	}
	if op.OriginURL == nil || *op.OriginURL != rec.OriginURL {
		t.Fatalf("insert op should carry the origin url")
	}

	row := map[string]any{
		ColIncidentUID:        op.IncidentUID,
		ColSourceID:           int64(op.SourceID),
		record.FieldOriginURL: *op.OriginURL,
	}
	for k, v := range op.Fields {
		row[k] = v
	}

	got, err := FromColumns(row)
	if err != nil {
		t.Fatalf("FromColumns: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("record did not survive the column mapping:\n got %+v\nwant %+v", got, rec)
	}
}

func TestNewOpUpdateCarriesChangedColumnsOnly(t *testing.T) {
	rec := sampleRecord()

	op, err := NewOp(OpUpdate, rec, record.FieldAffected)
	if err != nil {
		t.Fatalf("NewOp: %v", err)
	}
	want := []string{ColAffectedConfidence, record.FieldAffected, ColAffectedRaw}
	if got := SortedKeys(op.Fields); !reflect.DeepEqual(got, want) {
		t.Errorf("update columns = %v, want %v", got, want)
	}
	if op.OriginURL != nil {
		t.Error("origin url should only be written when it changed")
	}

	op, err = NewOp(OpUpdate, rec, record.FieldOriginURL)
	if err != nil {
		t.Fatalf("NewOp: %v", err)
	}
	if op.OriginURL == nil {
		t.Error("changed origin url should be written")
	}
}

func TestColumnsNullsForUnsetValues(t *testing.T) {
	cols, err := Columns(record.BreachRecord{SourceID: 1, OrganizationName: "X"})
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	for _, col := range []string{record.FieldBreachDate, ColBreachConfidence, record.FieldAffected, record.FieldWhatWasLeaked, record.FieldNaturalKey} {
		if cols[col] != nil {
			t.Errorf("%s = %v, want nil", col, cols[col])
		}
	}
	if cols[record.FieldDataTypes] != "[]" {
		t.Errorf("data types = %v, want []", cols[record.FieldDataTypes])
	}
	if cols[record.FieldRawPayload] != "{}" {
		t.Errorf("raw payload = %v, want {}", cols[record.FieldRawPayload])
	}
}

func TestCanonicalPayloadStable(t *testing.T) {
	a, err := CanonicalPayload(map[string]any{"z": 1, "a": []any{"x", 2.5}, "m": map[string]any{"k": nil}})
	if err != nil {
		t.Fatalf("CanonicalPayload: %v", err)
	}
	want := `{"a":["x",2.5],"m":{"k":null},"z":1}`
	if a != want {
		t.Errorf("CanonicalPayload = %s, want %s", a, want)
	}
}

func TestFromColumnsAcceptsDriverTypes(t *testing.T) {
	row := map[string]any{
		ColIncidentUID:         []byte("uid-2"),
		ColSourceID:            int64(3),
		record.FieldBreachDate: time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC),
		ColBreachConfidence:    []byte("0.7"),
		record.FieldDataTypes:  []byte(`["medical"]`),
		record.FieldAffected:   "250",
	}
	rec, err := FromColumns(row)
	if err != nil {
		t.Fatalf("FromColumns: %v", err)
	}
	if rec.IncidentUID != "uid-2" || rec.SourceID != 3 {
		t.Errorf("keys = %q/%d", rec.IncidentUID, rec.SourceID)
	}
	if rec.BreachDate.ISO() != "2023-07-01" || rec.BreachDate.Confidence != 0.7 {
		t.Errorf("breach date = %+v", rec.BreachDate)
	}
	if !reflect.DeepEqual(rec.DataTypes, []string{"medical"}) {
		t.Errorf("data types = %v", rec.DataTypes)
	}
	if rec.AffectedIndividuals == nil || *rec.AffectedIndividuals != 250 {
		t.Errorf("affected = %v", rec.AffectedIndividuals)
	}
}
