package identity

import (
	"errors"
	"testing"

	"bioval/pkg/domain"
)

func pair(study, lab string) domain.Record {
	return domain.Record{domain.FieldStudyID: study, domain.FieldLabID: lab}
}

func TestBuildSkipsBlankAndTracksUsed(t *testing.T) {
	m, err := Build([]domain.Record{
		pair("123-456-789", "00001"),
		pair("123-456-789", "00001"),
		pair("", "00007"),
		pair("222-222-222", ""),
		pair(" 333-333-333 ", "00003"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(m.StudyToLab) != 2 || m.StudyToLab["333-333-333"] != "00003" || m.LabToStudy["00001"] != "123-456-789" {
		t.Fatalf("unexpected map %+v", m)
	}
	if _, ok := m.Used[7]; ok {
		t.Fatalf("blank study id row should not mark lab id used")
	}
	if NextLabID(m.Used) != 4 {
		t.Fatalf("expected next id 4, got %d", NextLabID(m.Used))
	}
}

func TestBuildConflicts(t *testing.T) {
	cases := []struct {
		name string
		rows []domain.Record
		kind string
		id   string
	}{
		{"study with two labs", []domain.Record{pair("111-111-111", "00001"), pair("111-111-111", "00002")}, domain.IdentifierStudy, "111-111-111"},
		{"lab with two studies", []domain.Record{pair("111-111-111", "00001"), pair("222-222-222", "00001")}, domain.IdentifierLab, "00001"},
		{"lab number spelled twice", []domain.Record{pair("111-111-111", "00001"), pair("222-222-222", "1")}, domain.IdentifierLab, "1"},
		{"study with two lab numbers", []domain.Record{pair("111-111-111", "1"), pair("111-111-111", "002")}, domain.IdentifierStudy, "111-111-111"},
	}
	for _, tc := range cases {
		_, err := Build(tc.rows)
		var conflict *domain.IdentityConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("%s: expected IdentityConflictError, got %v", tc.name, err)
		}
		if conflict.Kind != tc.kind || conflict.ID != tc.id {
			t.Fatalf("%s: unexpected conflict %+v", tc.name, conflict)
		}
	}
}

func TestBuildComparesLabIDsByNumber(t *testing.T) {
	m, err := Build([]domain.Record{pair("111-111-111", "00001"), pair("111-111-111", "1")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.StudyToLab["111-111-111"] != "00001" || len(m.Used) != 1 {
		t.Fatalf("unexpected map %+v", m)
	}
	out, _, err := AssignLabIDs([]domain.Record{{domain.FieldStudyID: "222-222-222"}}, []domain.Record{pair("111-111-111", "1")})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got := out[0][domain.FieldLabID]; got != "00002" {
		t.Fatalf("lab id = %q", got)
	}
}

func TestBuildRejectsNonNumericLabID(t *testing.T) {
	_, err := Build([]domain.Record{pair("111-111-111", "00001"), pair("222-222-222", "LAB-2")})
	var format *domain.FormatError
	if !errors.As(err, &format) || format.Row != 3 || format.Field != domain.FieldLabID {
		t.Fatalf("expected lab id FormatError on row 3, got %v", err)
	}
	for _, lab := range []string{"-3", "+3"} {
		_, err = Build([]domain.Record{pair("111-111-111", lab)})
		if !errors.As(err, &format) || format.Value != lab {
			t.Fatalf("expected FormatError for signed lab id %q, got %v", lab, err)
		}
	}
}

func TestNextLabID(t *testing.T) {
	if NextLabID(nil) != 1 {
		t.Fatalf("empty set should yield 1")
	}
	if got := NextLabID(map[int]struct{}{1: {}, 3: {}}); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if FormatLabID(4) != "00004" || FormatLabID(123456) != "123456" {
		t.Fatalf("unexpected formatting")
	}
}

func TestAssignLabIDsMintsAndReuses(t *testing.T) {
	reference := []domain.Record{pair("100-000-001", "00001"), pair("100-000-003", "00003")}
	imports := []domain.Record{
		{domain.FieldStudyID: "111-111-111"},
		{domain.FieldStudyID: "100-000-003", domain.FieldLabID: ""},
		{domain.FieldStudyID: "111-111-111"},
		{domain.FieldStudyID: "222-222-222"},
	}
	out, messages, err := AssignLabIDs(imports, reference)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	want := []string{"00004", "00003", "00004", "00005"}
	for i, rec := range out {
		if rec[domain.FieldLabID] != want[i] {
			t.Fatalf("row %d lab id = %q want %q", i, rec[domain.FieldLabID], want[i])
		}
	}
	wantMsgs := []string{
		"Next available lab patient ID: 00004",
		"Assigned lab patient ID 00004 to study ID 111-111-111",
		"Assigned lab patient ID 00005 to study ID 222-222-222",
	}
	if len(messages) != len(wantMsgs) {
		t.Fatalf("messages = %v", messages)
	}
	for i := range wantMsgs {
		if messages[i] != wantMsgs[i] {
			t.Fatalf("message %d = %q want %q", i, messages[i], wantMsgs[i])
		}
	}
	if _, ok := imports[0][domain.FieldLabID]; ok {
		t.Fatalf("input records must not be modified")
	}
}

func TestAssignLabIDsIdempotentOnReassignedReference(t *testing.T) {
	reference := []domain.Record{pair("100-000-001", "00001")}
	first, _, err := AssignLabIDs([]domain.Record{{domain.FieldStudyID: "111-111-111"}}, reference)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	again, messages, err := AssignLabIDs([]domain.Record{{domain.FieldStudyID: "111-111-111"}}, append(reference, first...))
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if again[0][domain.FieldLabID] != first[0][domain.FieldLabID] {
		t.Fatalf("known study id got a new lab id: %v vs %v", again[0], first[0])
	}
	if len(messages) != 1 || messages[0] != "Next available lab patient ID: 00003" {
		t.Fatalf("unexpected messages %v", messages)
	}
}

func TestAssignLabIDsEmptyReference(t *testing.T) {
	out, messages, err := AssignLabIDs([]domain.Record{{domain.FieldStudyID: "555-555-555"}}, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if out[0][domain.FieldLabID] != "00001" || messages[0] != "Next available lab patient ID: 00001" {
		t.Fatalf("unexpected result %v %v", out, messages)
	}
}

func TestAssignLabIDsFailures(t *testing.T) {
	reference := []domain.Record{pair("100-000-001", "00001")}

	_, _, err := AssignLabIDs([]domain.Record{{domain.FieldStudyID: "111-111-111"}, {domain.FieldStudyID: "11-111-111"}}, reference)
	var format *domain.FormatError
	if !errors.As(err, &format) || format.Row != 3 || format.Value != "11-111-111" {
		t.Fatalf("expected FormatError on row 3, got %v", err)
	}

	_, _, err = AssignLabIDs([]domain.Record{{domain.FieldStudyID: "  "}}, reference)
	var missing *domain.MissingFieldError
	if !errors.As(err, &missing) || missing.Row != 2 || missing.Field != domain.FieldStudyID {
		t.Fatalf("expected MissingFieldError on row 2, got %v", err)
	}

	_, _, err = AssignLabIDs([]domain.Record{{domain.FieldStudyID: "111-111-111"}}, []domain.Record{pair("1", "00001"), pair("1", "00002")})
	var conflict *domain.IdentityConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected IdentityConflictError, got %v", err)
	}
}

func TestStudyIDPattern(t *testing.T) {
	valid := []string{"000-000-000", "123-456-789"}
	invalid := []string{"11-111-111", "1234-567-890", "abc-def-ghi", "123456789", "123-456-7890", "123_456_789"}
	for _, s := range valid {
		if !StudyIDPattern.MatchString(s) {
			t.Fatalf("%q should match", s)
		}
	}
	for _, s := range invalid {
		if StudyIDPattern.MatchString(s) {
			t.Fatalf("%q should not match", s)
		}
	}
}
