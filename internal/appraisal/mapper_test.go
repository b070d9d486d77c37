package appraisal

import (
	"encoding/json"
	"testing"
	"time"
)

func TestToPropertyMapsAllFields(t *testing.T) {
	city := "Austin"
	geo := "0123-45"
	desc := "LOT 1 BLK A"
	rec := RawRecord{
		PID:              "100045",
		DisplayName:      "SMITH JOHN",
		PropType:         "R",
		City:             &city,
		StreetPrimary:    "401 CONGRESS AVE",
		AssessedValue:    550000,
		AppraisedValue:   600000,
		GeoID:            &geo,
		LegalDescription: &desc,
	}

	now := time.Now().UTC()
	p, ok := ToProperty(rec, "smith", now)
	if !ok {
		t.Fatalf("expected record to map")
	}

	if p.PropertyID != "100045" || p.Name != "SMITH JOHN" || p.PropType != "R" {
		t.Fatalf("identity fields mismatched: %+v", p)
	}
	if p.City == nil || *p.City != "Austin" {
		t.Fatalf("expected city Austin, got %v", p.City)
	}
	if p.AssessedValue != 550000 || p.AppraisedValue != 600000 {
		t.Fatalf("value fields mismatched: %+v", p)
	}
	if p.GeoID == nil || *p.GeoID != geo || p.Description == nil || *p.Description != desc {
		t.Fatalf("nullable fields mismatched: %+v", p)
	}
	if p.SearchTerm != "smith" || !p.ScrapedAt.Equal(now) {
		t.Fatalf("provenance fields mismatched: %+v", p)
	}
}

func TestToPropertyDefaults(t *testing.T) {
	// Upstream omitted everything except the pid.
	var rec RawRecord
	if err := json.Unmarshal([]byte(`{"pid": 7}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p, ok := ToProperty(rec, "x", time.Now())
	if !ok {
		t.Fatalf("expected record to map")
	}
	if p.PropertyID != "7" {
		t.Fatalf("expected numeric pid stringified, got %q", p.PropertyID)
	}
	if p.AssessedValue != 0 || p.AppraisedValue != 0 {
		t.Fatalf("missing numerics should be 0, got %+v", p)
	}
	if p.Name != "" || p.PropertyAddress != "" {
		t.Fatalf("missing strings should be empty, got %+v", p)
	}
	if p.City != nil || p.GeoID != nil || p.Description != nil {
		t.Fatalf("missing nullable fields should stay nil, got %+v", p)
	}
}

func TestToPropertyClampsNegativeValues(t *testing.T) {
	rec := RawRecord{PID: "1", AssessedValue: -5, AppraisedValue: -1}
	p, ok := ToProperty(rec, "x", time.Now())
	if !ok {
		t.Fatalf("expected record to map")
	}
	if p.AssessedValue != 0 || p.AppraisedValue != 0 {
		t.Fatalf("negative values should clamp to 0, got %+v", p)
	}
}

func TestMapRecordsDropsMissingPID(t *testing.T) {
	records := []RawRecord{
		{PID: "1", DisplayName: "A"},
		{PID: "", DisplayName: "no key"},
		{PID: "  ", DisplayName: "blank key"},
		{PID: "2", DisplayName: "B"},
	}

	props := MapRecords(records, "term", time.Now())
	if len(props) != 2 {
		t.Fatalf("expected 2 mapped records, got %d", len(props))
	}
	if props[0].PropertyID != "1" || props[1].PropertyID != "2" {
		t.Fatalf("unexpected mapping order: %+v", props)
	}
}

func TestFlexFieldsTolerateUpstreamShapes(t *testing.T) {
	var rec RawRecord
	payload := `{"pid": "P-22", "assessedValue": "123456", "appraisedValue": 99.9}`
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if string(rec.PID) != "P-22" {
		t.Fatalf("string pid mishandled: %q", rec.PID)
	}
	if int64(rec.AssessedValue) != 123456 {
		t.Fatalf("numeric string mishandled: %d", rec.AssessedValue)
	}
	if int64(rec.AppraisedValue) != 99 {
		t.Fatalf("float value should truncate, got %d", rec.AppraisedValue)
	}
}
