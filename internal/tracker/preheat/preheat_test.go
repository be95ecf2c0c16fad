package preheat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/tracker"
)

func TestBuilder_Lookups(t *testing.T) {
	acting := &tracker.User{UID: "user0000001", Username: "admin"}
	nurse := &tracker.User{UID: "user0000002", Username: "nurse"}

	p := NewBuilder().
		WithUser(acting).
		AddUsers(nurse).
		AddPrograms(&tracker.Program{UID: "program0001"}).
		AddProgramStages(&tracker.ProgramStage{UID: "stage000001", Program: "program0001"}).
		Build()

	if p.User() != acting {
		t.Error("expected acting user to be set")
	}
	if u, ok := p.UserByUsername("nurse"); !ok || u != nurse {
		t.Error("expected nurse by username")
	}
	if _, ok := p.UserByUsername("admin"); !ok {
		t.Error("expected acting user to be indexed by username")
	}
	if _, ok := p.UserByUID("user0000002"); !ok {
		t.Error("expected nurse by uid")
	}
	if _, ok := p.Program("program0001"); !ok {
		t.Error("expected program")
	}
	if _, ok := p.ProgramStage("missing0001"); ok {
		t.Error("expected missing stage")
	}
}

func TestPreheat_ZeroValue(t *testing.T) {
	var p Preheat
	if _, ok := p.UserByUsername("x"); ok {
		t.Error("expected empty snapshot")
	}
	if p.Exists(tracker.Key{Type: tracker.TypeEvent, UID: "x"}) {
		t.Error("expected nothing to exist")
	}
	if got := p.ActiveEnrollments("te", "pr"); len(got) != 0 {
		t.Errorf("expected no enrollments, got %d", len(got))
	}
}

func TestPreheat_Records(t *testing.T) {
	p := NewBuilder().AddRecords(
		&Record{Type: tracker.TypeTrackedEntity, UID: "te000000001"},
		&Record{Type: tracker.TypeTrackedEntity, UID: "te000000002", Deleted: true},
		&Record{Type: tracker.TypeEnrollment, UID: "en000000001", TrackedEntity: "te000000001", Program: "pr000000001", Status: tracker.EnrollmentActive},
		&Record{Type: tracker.TypeEnrollment, UID: "en000000002", TrackedEntity: "te000000001", Program: "pr000000001", Status: tracker.EnrollmentCompleted},
		&Record{Type: tracker.TypeEnrollment, UID: "en000000003", TrackedEntity: "te000000001", Program: "pr000000002", Status: tracker.EnrollmentActive},
		&Record{Type: tracker.TypeEvent, UID: "ev000000001", Enrollment: "en000000001", ProgramStage: "ps000000001"},
		&Record{Type: tracker.TypeEvent, UID: "ev000000002", Enrollment: "en000000001", ProgramStage: "ps000000001", Deleted: true},
	).Build()

	if !p.Exists(tracker.Key{Type: tracker.TypeTrackedEntity, UID: "te000000001"}) {
		t.Error("expected te000000001 to exist")
	}
	deleted := tracker.Key{Type: tracker.TypeTrackedEntity, UID: "te000000002"}
	if p.Exists(deleted) {
		t.Error("expected deleted te not to exist")
	}
	if !p.IsDeleted(deleted) {
		t.Error("expected te000000002 to be deleted")
	}

	if got := p.ActiveEnrollments("te000000001", "pr000000001"); len(got) != 1 || got[0].UID != "en000000001" {
		t.Errorf("expected one active enrollment, got %v", got)
	}
	if got := p.Enrollments("te000000001", "pr000000001"); len(got) != 2 {
		t.Errorf("expected two enrollments, got %d", len(got))
	}
	if got := p.EventsInStage("en000000001", "ps000000001"); len(got) != 1 {
		t.Errorf("expected one non-deleted event in stage, got %d", len(got))
	}
}

func TestCollect(t *testing.T) {
	payload := tracker.Flatten(&tracker.Payload{
		TrackedEntities: []tracker.TrackedEntity{{
			UID: "te000000001", TrackedEntityType: "tet00000001", OrgUnit: "ou000000001",
			Enrollments: []tracker.Enrollment{{
				UID: "en000000001", Program: "pr000000001", OrgUnit: "ou000000001",
				Events: []tracker.Event{{
					UID: "ev000000001", ProgramStage: "ps000000001", OrgUnit: "ou000000002",
					AssignedUser: &tracker.UserRef{Username: "nurse"},
				}},
			}},
		}},
		Relationships: []tracker.Relationship{{
			UID: "rel00000001", RelationshipType: "rt000000001",
			From: tracker.RelationshipItem{TrackedEntity: "te000000009"},
			To:   tracker.RelationshipItem{Event: "ev000000001"},
		}},
	})

	ids := Collect(payload)
	if strings.Join(ids.OrgUnits, ",") != "ou000000001,ou000000002" {
		t.Errorf("unexpected org units %v", ids.OrgUnits)
	}
	if strings.Join(ids.TrackedEntities, ",") != "te000000001,te000000009" {
		t.Errorf("expected relationship item to be collected, got %v", ids.TrackedEntities)
	}
	if len(ids.Usernames) != 1 || ids.Usernames[0] != "nurse" {
		t.Errorf("unexpected usernames %v", ids.Usernames)
	}
	if len(ids.Users) != 0 {
		t.Errorf("expected no uids for username-only assignment, got %v", ids.Users)
	}
	if len(ids.Events) != 1 || len(ids.Programs) != 1 || len(ids.RelationshipTypes) != 1 {
		t.Errorf("unexpected identifiers %+v", ids)
	}
}

const fixtureYAML = `
user: admin
users:
  - uid: user0000001
    username: admin
    authorities: [ALL]
  - uid: user0000002
    username: nurse
    orgUnits: [district001]
orgUnits:
  - uid: facility001
    path: /country0001/district001/facility001
programs:
  - uid: program0001
    trackedEntityType: tet00000001
programStages:
  - uid: stage000001
    program: program0001
    enableUserAssignment: true
trackedEntityTypes:
  - uid: tet00000001
records:
  - type: TRACKED_ENTITY
    uid: te000000001
`

func TestLoadFixture(t *testing.T) {
	f, err := LoadFixture(strings.NewReader(fixtureYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := f.Preheat()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.User() == nil || p.User().Username != "admin" || !p.User().IsSuper() {
		t.Errorf("unexpected acting user %+v", p.User())
	}
	ps, ok := p.ProgramStage("stage000001")
	if !ok || !ps.EnableUserAssignment {
		t.Error("expected stage with user assignment enabled")
	}
	if !p.Exists(tracker.Key{Type: tracker.TypeTrackedEntity, UID: "te000000001"}) {
		t.Error("expected record from fixture")
	}
}

func TestLoadFixture_UnknownActingUser(t *testing.T) {
	f, err := LoadFixture(strings.NewReader("user: ghost\nusers: []\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Preheat(); err == nil {
		t.Error("expected error for unknown acting user")
	}
}

func TestLoadFixture_UnknownField(t *testing.T) {
	if _, err := LoadFixture(strings.NewReader("programz: []\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

type memCache struct {
	data    map[string][]byte
	failGet bool
	failSet bool
	sets    int
}

func (m *memCache) GetMany(_ context.Context, tenant, kind string, uids []string) (map[string][]byte, error) {
	if m.failGet {
		return nil, errors.New("cache down")
	}
	out := map[string][]byte{}
	for _, uid := range uids {
		if d, ok := m.data[tenant+kind+uid]; ok {
			out[uid] = d
		}
	}
	return out, nil
}

func (m *memCache) SetMany(_ context.Context, tenant, kind string, entries map[string][]byte) error {
	if m.failSet {
		return errors.New("cache read-only")
	}
	for uid, d := range entries {
		m.data[tenant+kind+uid] = d
		m.sets++
	}
	return nil
}

func TestCached_FetchesMissesAndWritesBack(t *testing.T) {
	cache := &memCache{data: map[string][]byte{
		"t1" + kindProgram + "program0001": []byte(`{"uid":"program0001","name":"cached"}`),
	}}
	var fetched []string
	fetch := func(_ context.Context, uids []string) ([]*tracker.Program, error) {
		fetched = append(fetched, uids...)
		out := make([]*tracker.Program, 0, len(uids))
		for _, uid := range uids {
			out = append(out, &tracker.Program{UID: uid, Name: "db"})
		}
		return out, nil
	}
	uidOf := func(p *tracker.Program) string { return p.UID }

	got, hits, err := cached(context.Background(), cache, zerolog.Nop(), "t1", kindProgram,
		[]string{"program0001", "program0002"}, uidOf, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected 1 hit, got %d", hits)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(got))
	}
	if len(fetched) != 1 || fetched[0] != "program0002" {
		t.Errorf("expected only the miss to be fetched, got %v", fetched)
	}
	if cache.sets != 1 {
		t.Errorf("expected fetched entry to be cached, got %d sets", cache.sets)
	}

	fetched = nil
	if _, hits, _ = cached(context.Background(), cache, zerolog.Nop(), "t1", kindProgram,
		[]string{"program0001", "program0002"}, uidOf, fetch); hits != 2 {
		t.Errorf("expected 2 hits on second lookup, got %d", hits)
	}
	if len(fetched) != 0 {
		t.Errorf("expected no fetch on full hit, got %v", fetched)
	}
}

func TestCached_CacheFailureFallsBack(t *testing.T) {
	var buf bytes.Buffer
	cache := &memCache{data: map[string][]byte{}, failGet: true, failSet: true}
	got, hits, err := cached(context.Background(), cache, zerolog.New(&buf), "t1", kindProgram, []string{"program0001"},
		func(p *tracker.Program) string { return p.UID },
		func(_ context.Context, uids []string) ([]*tracker.Program, error) {
			return []*tracker.Program{{UID: uids[0]}}, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 0 || len(got) != 1 {
		t.Errorf("expected full fetch, got %d hits and %d results", hits, len(got))
	}
	for _, msg := range []string{"metadata cache read failed", "metadata cache write failed"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("expected %q to be logged, got %s", msg, buf.String())
		}
	}
}

func TestCached_FetchError(t *testing.T) {
	_, _, err := cached(context.Background(), NopCache{}, zerolog.Nop(), "t1", kindProgram, []string{"program0001"},
		func(p *tracker.Program) string { return p.UID },
		func(context.Context, []string) ([]*tracker.Program, error) {
			return nil, errors.New("db down")
		})
	if err == nil {
		t.Error("expected fetch error to propagate")
	}
}

func TestOrgUnitsFor_IncludesRecordOrgUnits(t *testing.T) {
	records := []*Record{
		{Type: tracker.TypeTrackedEntity, UID: "te000000001", OrgUnit: "facility002"},
		{Type: tracker.TypeEnrollment, UID: "en000000001", OrgUnit: "facility001"},
		{Type: tracker.TypeRelationship, UID: "rel00000001"},
	}
	got := orgUnitsFor([]string{"facility001"}, records)
	if len(got) != 2 || got[0] != "facility001" || got[1] != "facility002" {
		t.Errorf("expected payload and record org units, got %v", got)
	}
	if got := orgUnitsFor(nil, nil); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
}
