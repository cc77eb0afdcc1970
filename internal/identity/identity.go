// Package identity maintains the bijection between study identifiers and the
// repository's sequential lab identifiers, and mints lab ids for study ids
// seen for the first time.
package identity

import (
	"fmt"
	"regexp"
	"strconv"

	"bioval/pkg/domain"
)

// StudyIDPattern is the required shape of a study identifier: XXX-XXX-XXX digits.
var StudyIDPattern = regexp.MustCompile(`^\d{3}-\d{3}-\d{3}$`)

// LabIDWidth is the zero-padded width of minted lab ids.
const LabIDWidth = 5

// Map is the study-id <-> lab-id bijection plus the set of lab ids in use.
type Map struct {
	StudyToLab map[string]string
	LabToStudy map[string]string
	Used       map[int]struct{}

	// owner is keyed by lab number so "00001" and "1" name the same patient.
	owner map[int]string
}

// Build reads the identifier pairs of the reference records. Rows with a
// blank study id or lab id are skipped. A study id bound to two lab ids, or
// the reverse, yields *domain.IdentityConflictError; a non-numeric lab id
// yields *domain.FormatError. Lab ids compare by number, so "00001" and "1"
// are the same id.
func Build(reference []domain.Record) (*Map, error) {
	m := &Map{
		StudyToLab: make(map[string]string),
		LabToStudy: make(map[string]string),
		Used:       make(map[int]struct{}),
		owner:      make(map[int]string),
	}
	for i, rec := range reference {
		study := rec.Get(domain.FieldStudyID)
		lab := rec.Get(domain.FieldLabID)
		if study == "" || lab == "" {
			continue
		}
		n, err := strconv.Atoi(lab)
		if err != nil || lab[0] == '+' || lab[0] == '-' {
			return nil, &domain.FormatError{Row: domain.RowNumber(i), Field: domain.FieldLabID, Value: lab}
		}
		if prev, ok := m.StudyToLab[study]; ok {
			if pn, _ := strconv.Atoi(prev); pn != n {
				return nil, &domain.IdentityConflictError{Kind: domain.IdentifierStudy, ID: study, Existing: prev, Conflict: lab}
			}
			continue
		}
		if prev, ok := m.owner[n]; ok && prev != study {
			return nil, &domain.IdentityConflictError{Kind: domain.IdentifierLab, ID: lab, Existing: prev, Conflict: study}
		}
		m.bind(study, lab, n)
	}
	return m, nil
}

// bind records a new pair in both directions.
func (m *Map) bind(study, lab string, n int) {
	m.StudyToLab[study] = lab
	m.LabToStudy[lab] = study
	m.Used[n] = struct{}{}
	m.owner[n] = study
}

// NextLabID returns 1 for an empty set, otherwise the largest used id plus one.
// Freed ids are never reused.
func NextLabID(used map[int]struct{}) int {
	next := 1
	for n := range used {
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}

// FormatLabID zero-pads a lab id to LabIDWidth digits.
func FormatLabID(n int) string {
	return fmt.Sprintf("%0*d", LabIDWidth, n)
}

// AssignLabIDs fills the lab_id of every import record. Known study ids keep
// their lab id; unseen ones receive consecutive new ids starting at the next
// free id of the reference data. Rows are numbered from the first data line.
//
// The import records are not modified: the returned slice holds updated
// copies. The messages start with the next available id computed before any
// assignment, followed by one line per newly minted id. Any blank or malformed
// study id aborts the whole pass.
func AssignLabIDs(imports, reference []domain.Record) ([]domain.Record, []string, error) {
	m, err := Build(reference)
	if err != nil {
		return nil, nil, err
	}
	next := NextLabID(m.Used)
	messages := []string{fmt.Sprintf("Next available lab patient ID: %s", FormatLabID(next))}

	out := domain.CloneRecords(imports)
	for i, rec := range out {
		row := domain.RowNumber(i)
		study := rec.Get(domain.FieldStudyID)
		if study == "" {
			return nil, nil, &domain.MissingFieldError{Row: row, Field: domain.FieldStudyID}
		}
		if !StudyIDPattern.MatchString(study) {
			return nil, nil, &domain.FormatError{Row: row, Field: domain.FieldStudyID, Value: study}
		}
		if lab, ok := m.StudyToLab[study]; ok {
			rec[domain.FieldLabID] = lab
			continue
		}
		lab := FormatLabID(next)
		rec[domain.FieldLabID] = lab
		m.bind(study, lab, next)
		next++
		messages = append(messages, fmt.Sprintf("Assigned lab patient ID %s to study ID %s", lab, study))
	}
	return out, messages, nil
}
