package tracker

import "testing"

func TestParseImportStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    ImportStrategy
		wantErr bool
	}{
		{"", StrategyCreateAndUpdate, false},
		{"create", StrategyCreate, false},
		{"UPDATE", StrategyUpdate, false},
		{" delete ", StrategyDelete, false},
		{"CREATE_AND_UPDATE", StrategyCreateAndUpdate, false},
		{"merge", "", true},
	}
	for _, tt := range tests {
		got, err := ParseImportStrategy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseImportStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseImportStrategy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseModes(t *testing.T) {
	if m, err := ParseAtomicMode(""); err != nil || m != AtomicAll {
		t.Errorf("expected default ALL, got %s (%v)", m, err)
	}
	if m, err := ParseAtomicMode("object"); err != nil || m != AtomicObject {
		t.Errorf("expected OBJECT, got %s (%v)", m, err)
	}
	if _, err := ParseAtomicMode("some"); err == nil {
		t.Error("expected error for unknown atomic mode")
	}
	if m, err := ParseValidationMode("fail_fast"); err != nil || m != ValidationFailFast {
		t.Errorf("expected FAIL_FAST, got %s (%v)", m, err)
	}
	if _, err := ParseValidationMode("partial"); err == nil {
		t.Error("expected error for unknown validation mode")
	}
}

func TestGenerateUID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		uid := GenerateUID()
		if !IsValidUID(uid) {
			t.Fatalf("generated invalid uid %q", uid)
		}
		if seen[uid] {
			t.Fatalf("duplicate uid %q", uid)
		}
		seen[uid] = true
	}
}

func TestIsValidUID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a1234567890", true},
		{"Abcdefghijk", true},
		{"1bcdefghijk", false},
		{"abc", false},
		{"abcdefghijk1", false},
		{"abcde-ghijk", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidUID(tt.in); got != tt.want {
			t.Errorf("IsValidUID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlatten_Nested(t *testing.T) {
	p := &Payload{
		TrackedEntities: []TrackedEntity{{
			UID:               "te000000001",
			TrackedEntityType: "tet00000001",
			OrgUnit:           "ou000000001",
			Enrollments: []Enrollment{{
				Program: "pr000000001",
				OrgUnit: "ou000000001",
				Events: []Event{
					{UID: "ev000000001", ProgramStage: "ps000000001", OrgUnit: "ou000000001"},
					{ProgramStage: "ps000000001", OrgUnit: "ou000000001"},
				},
			}},
		}},
	}

	if p.Size() != 4 {
		t.Fatalf("expected size 4, got %d", p.Size())
	}

	flat := Flatten(p)
	if len(flat.TrackedEntities) != 1 || len(flat.Enrollments) != 1 || len(flat.Events) != 2 {
		t.Fatalf("unexpected flattened sizes: %d/%d/%d", len(flat.TrackedEntities), len(flat.Enrollments), len(flat.Events))
	}
	if flat.TrackedEntities[0].Enrollments != nil {
		t.Error("expected nested enrollments to be removed")
	}
	en := flat.Enrollments[0]
	if en.TrackedEntity != "te000000001" {
		t.Errorf("expected enrollment to reference parent, got %q", en.TrackedEntity)
	}
	if !IsValidUID(en.UID) {
		t.Errorf("expected generated enrollment uid, got %q", en.UID)
	}
	for _, ev := range flat.Events {
		if ev.Enrollment != en.UID {
			t.Errorf("expected event enrollment %s, got %s", en.UID, ev.Enrollment)
		}
		if ev.Program != "pr000000001" {
			t.Errorf("expected event to inherit program, got %q", ev.Program)
		}
	}
	if flat.Events[0].UID != "ev000000001" {
		t.Errorf("expected existing uid to be kept, got %s", flat.Events[0].UID)
	}
	if p.TrackedEntities[0].Enrollments == nil {
		t.Error("expected source payload to be left untouched")
	}
}

func TestRelationshipItem_Ref(t *testing.T) {
	k, n := RelationshipItem{Event: "ev000000001"}.Ref()
	if n != 1 || k.Type != TypeEvent || k.UID != "ev000000001" {
		t.Errorf("unexpected ref %v (%d)", k, n)
	}
	_, n = RelationshipItem{Event: "a", TrackedEntity: "b"}.Ref()
	if n != 2 {
		t.Errorf("expected 2 references, got %d", n)
	}
	_, n = RelationshipItem{}.Ref()
	if n != 0 {
		t.Errorf("expected 0 references, got %d", n)
	}
}

func TestUser_CanCapture(t *testing.T) {
	facility := &OrganisationUnit{UID: "facility001", Path: "/country0001/district001/facility001"}
	other := &OrganisationUnit{UID: "facility002", Path: "/country0001/district002/facility002"}

	u := &User{UID: "user0000001", OrgUnits: []string{"district001"}}
	if !u.CanCapture(facility) {
		t.Error("expected district user to capture in child facility")
	}
	if u.CanCapture(other) {
		t.Error("expected district user not to capture in sibling district")
	}
	if u.CanCapture(nil) {
		t.Error("expected nil org unit to be rejected")
	}

	super := &User{UID: "admin000001", Authorities: []string{AuthorityAll}}
	if !super.CanCapture(other) {
		t.Error("expected superuser to capture anywhere")
	}
}
