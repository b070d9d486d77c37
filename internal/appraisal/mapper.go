package appraisal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tcad/internal/model"
)

// FlexString tolerates upstream fields that arrive as either a JSON
// string or a bare number; pid in particular has been observed both
// ways.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	*s = FlexString(string(b))
	return nil
}

// FlexInt tolerates numeric fields that arrive as a number, a numeric
// string, or null. Missing and unparseable values coerce to 0.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		raw = v
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*n = 0
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = FlexInt(i)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*n = FlexInt(int64(f))
		return nil
	}
	*n = 0
	return nil
}

// RawRecord is one upstream search result, with the field names the
// appraisal API actually uses.
type RawRecord struct {
	PID              FlexString `json:"pid"`
	DisplayName      string     `json:"displayName"`
	PropType         string     `json:"propType"`
	City             *string    `json:"city"`
	StreetPrimary    string     `json:"streetPrimary"`
	AssessedValue    FlexInt    `json:"assessedValue"`
	AppraisedValue   FlexInt    `json:"appraisedValue"`
	GeoID            *string    `json:"geoID"`
	LegalDescription *string    `json:"legalDescription"`
}

// ToProperty maps a raw upstream record onto the store model. Records
// without a pid cannot be keyed and are dropped (ok=false). Value
// fields are clamped non-negative so the store invariant holds no
// matter what the upstream sends.
func ToProperty(rec RawRecord, term string, scrapedAt time.Time) (model.Property, bool) {
	pid := strings.TrimSpace(string(rec.PID))
	if pid == "" {
		return model.Property{}, false
	}

	return model.Property{
		PropertyID:      pid,
		Name:            rec.DisplayName,
		PropType:        rec.PropType,
		City:            rec.City,
		PropertyAddress: rec.StreetPrimary,
		AssessedValue:   clampValue(int64(rec.AssessedValue)),
		AppraisedValue:  clampValue(int64(rec.AppraisedValue)),
		GeoID:           rec.GeoID,
		Description:     rec.LegalDescription,
		SearchTerm:      term,
		ScrapedAt:       scrapedAt,
	}, true
}

// MapRecords converts a batch of raw records, dropping unkeyable ones.
func MapRecords(records []RawRecord, term string, scrapedAt time.Time) []model.Property {
	out := make([]model.Property, 0, len(records))
	for _, rec := range records {
		if p, ok := ToProperty(rec, term, scrapedAt); ok {
			out = append(out, p)
		}
	}
	return out
}

func clampValue(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
