// Package domain holds the biorepository record model shared by every engine:
// records and their field names, storage coordinates, material classes, rule
// results and the error taxonomy surfaced to operators.
package domain

import "strings"

// Field names of a biorepository record, as exported by REDCap.
const (
	FieldStudyID          = "study_id"
	FieldStudy            = "study"
	FieldLabID            = "lab_id"
	FieldEventName        = "redcap_event_name"
	FieldSamplingDate     = "sampling_date"
	FieldBiomaterial      = "biomaterial"
	FieldTubePos          = "tube_pos"
	FieldRepeatInstrument = "redcap_repeat_instrument"
	FieldRepeatInstance   = "redcap_repeat_instance"
	FieldTubeID           = "tube_id"
	FieldBoxID            = "box_id"
	FieldFreezer          = "freezer"
	FieldRack             = "rack"
	FieldBox              = "box"
	FieldTubeStatus       = "tube_status"
)

// RequiredFields lists the columns every record set must carry, in report order.
var RequiredFields = []string{
	FieldStudyID,
	FieldStudy,
	FieldLabID,
	FieldEventName,
	FieldSamplingDate,
	FieldBiomaterial,
	FieldTubePos,
	FieldRepeatInstrument,
	FieldRepeatInstance,
	FieldTubeID,
	FieldBoxID,
	FieldFreezer,
	FieldRack,
	FieldBox,
	FieldTubeStatus,
}

// FirstDataRow is the 1-based line number of the first record in a tabular
// file; line 1 holds the header.
const FirstDataRow = 2

// Record is one physical sample tube: field name to raw string value.
type Record map[string]string

// Get returns the trimmed value of field, or "" when absent.
func (r Record) Get(field string) string {
	return strings.TrimSpace(r[field])
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Coordinate extracts the storage coordinate of the record in canonical form.
// The boolean is false when any of the four components is blank.
func (r Record) Coordinate() (Coordinate, bool) {
	c := NewCoordinate(r[FieldFreezer], r[FieldRack], r[FieldBox], r[FieldTubePos])
	return c, c.Complete()
}

// CloneRecords deep-copies a record slice.
func CloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// RowNumber converts a zero-based slice index into the file line number used in messages.
func RowNumber(i int) int { return i + FirstDataRow }
