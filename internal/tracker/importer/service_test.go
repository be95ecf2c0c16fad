package importer

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/preheat"
)

// -- Mock Store --

type mockStore struct {
	calls   []string
	txCount int
	inTx    bool
	failOn  string
	err     error
	events  []*tracker.Event
}

func (m *mockStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txCount++
	m.inTx = true
	defer func() { m.inTx = false }()
	return fn(ctx)
}

func (m *mockStore) record(call string, k tracker.Key) error {
	if !m.inTx {
		return errors.New(call + " called outside a transaction")
	}
	m.calls = append(m.calls, call+" "+k.UID)
	if m.failOn == call {
		return m.err
	}
	return nil
}

func (m *mockStore) CreateTrackedEntity(_ context.Context, te *tracker.TrackedEntity) error {
	return m.record("CreateTrackedEntity", te.Key())
}

func (m *mockStore) UpdateTrackedEntity(_ context.Context, te *tracker.TrackedEntity) error {
	return m.record("UpdateTrackedEntity", te.Key())
}

func (m *mockStore) CreateEnrollment(_ context.Context, en *tracker.Enrollment) error {
	return m.record("CreateEnrollment", en.Key())
}

func (m *mockStore) UpdateEnrollment(_ context.Context, en *tracker.Enrollment) error {
	return m.record("UpdateEnrollment", en.Key())
}

func (m *mockStore) CreateEvent(_ context.Context, ev *tracker.Event) error {
	m.events = append(m.events, ev)
	return m.record("CreateEvent", ev.Key())
}

func (m *mockStore) UpdateEvent(_ context.Context, ev *tracker.Event) error {
	m.events = append(m.events, ev)
	return m.record("UpdateEvent", ev.Key())
}

func (m *mockStore) CreateRelationship(_ context.Context, rel *tracker.Relationship) error {
	return m.record("CreateRelationship", rel.Key())
}

func (m *mockStore) Delete(_ context.Context, k tracker.Key) error {
	return m.record("Delete", k)
}

// -- Fixtures --

func testSource() StaticSource {
	p := preheat.NewBuilder().
		WithUser(&tracker.User{UID: "user0000001", Username: "admin", Authorities: []string{tracker.AuthorityAll}}).
		AddUsers(&tracker.User{UID: "user0000002", Username: "nurse"}).
		AddOrgUnits(&tracker.OrganisationUnit{UID: "facility001", Path: "/country0001/facility001"}).
		AddTrackedEntityTypes(&tracker.TrackedEntityType{UID: "tetPerson01"}).
		AddPrograms(&tracker.Program{UID: "programTrk1", TrackedEntityType: "tetPerson01"}).
		AddProgramStages(
			&tracker.ProgramStage{UID: "stageAssign", Program: "programTrk1", Repeatable: true, EnableUserAssignment: true},
			&tracker.ProgramStage{UID: "stageNoAsgn", Program: "programTrk1", Repeatable: true},
		).
		AddRecords(
			&preheat.Record{Type: tracker.TypeTrackedEntity, UID: "te000000001", OrgUnit: "facility001", TrackedEntityType: "tetPerson01"},
			&preheat.Record{Type: tracker.TypeEnrollment, UID: "en000000001", TrackedEntity: "te000000001",
				Program: "programTrk1", OrgUnit: "facility001", Status: tracker.EnrollmentActive},
		).
		Build()
	return StaticSource{Preheat: p}
}

func at(s string) *time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return &t
}

func newPayload() *tracker.Payload {
	return &tracker.Payload{
		TrackedEntities: []tracker.TrackedEntity{{
			UID: "te000000010", TrackedEntityType: "tetPerson01", OrgUnit: "facility001",
			Enrollments: []tracker.Enrollment{{
				UID: "en000000010", Program: "programTrk1", OrgUnit: "facility001",
				EnrolledAt: at("2024-01-01T00:00:00Z"),
				Events: []tracker.Event{{
					UID: "ev000000010", ProgramStage: "stageAssign", OrgUnit: "facility001",
					OccurredAt: at("2024-02-01T00:00:00Z"),
				}},
			}},
		}},
	}
}

// withInvalidEvent adds an event whose assigned user does not exist.
func withInvalidEvent(p *tracker.Payload) *tracker.Payload {
	p.Events = append(p.Events, tracker.Event{
		UID: "ev000000011", Enrollment: "en000000010", Program: "programTrk1",
		ProgramStage: "stageAssign", OrgUnit: "facility001", OccurredAt: at("2024-02-01T00:00:00Z"),
		AssignedUser: &tracker.UserRef{Username: "ghost"},
	})
	return p
}

func defaultParams() Params {
	p, _ := ParseParams("", "", "", "")
	return p
}

func newTestService(store Store) *Service {
	return NewService(testSource(), store, zerolog.Nop())
}

// -- Tests --

func TestImport_CreatesValidObjects(t *testing.T) {
	store := &mockStore{}
	report, err := newTestService(store).Import(context.Background(), "admin", newPayload(), defaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusOK {
		t.Errorf("expected OK, got %s with %v", report.Status, report.ValidationReport.Errors)
	}
	want := []string{"CreateTrackedEntity te000000010", "CreateEnrollment en000000010", "CreateEvent ev000000010"}
	if len(store.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, store.calls)
	}
	for i := range want {
		if store.calls[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], store.calls[i])
		}
	}
	if store.txCount != 1 {
		t.Errorf("expected one transaction, got %d", store.txCount)
	}
	if report.Stats.Created != 3 || report.Stats.Total != 3 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
	if report.TypeStats[tracker.TypeEvent].Created != 1 {
		t.Errorf("unexpected event stats %+v", report.TypeStats[tracker.TypeEvent])
	}
	if report.ID == "" {
		t.Error("expected import id")
	}
}

func TestImport_AtomicAllWithErrorsPersistsNothing(t *testing.T) {
	store := &mockStore{}
	report, err := newTestService(store).Import(context.Background(), "admin", withInvalidEvent(newPayload()), defaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusError {
		t.Errorf("expected ERROR, got %s", report.Status)
	}
	if len(store.calls) != 0 || store.txCount != 0 {
		t.Errorf("expected nothing persisted, got %v", store.calls)
	}
	if report.Stats.Ignored != 4 || report.Stats.Total != 4 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
	if len(report.ValidationReport.Errors) != 1 || report.ValidationReport.Errors[0].Code != "E1118" {
		t.Errorf("expected a single E1118, got %+v", report.ValidationReport.Errors)
	}
}

func TestImport_AtomicObjectPersistsValidObjects(t *testing.T) {
	store := &mockStore{}
	params := defaultParams()
	params.AtomicMode = tracker.AtomicObject

	report, err := newTestService(store).Import(context.Background(), "admin", withInvalidEvent(newPayload()), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusError {
		t.Errorf("expected ERROR, got %s", report.Status)
	}
	if report.Stats.Created != 3 || report.Stats.Ignored != 1 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
	for _, c := range store.calls {
		if c == "CreateEvent ev000000011" {
			t.Error("expected invalid event not to be persisted")
		}
	}
}

func TestImport_DryRunPersistsNothing(t *testing.T) {
	store := &mockStore{}
	params := defaultParams()
	params.DryRun = true

	report, err := newTestService(store).Import(context.Background(), "admin", newPayload(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusOK || len(store.calls) != 0 {
		t.Errorf("expected OK without store calls, got %s and %v", report.Status, store.calls)
	}
	if report.Stats.Ignored != 3 {
		t.Errorf("expected 3 ignored, got %+v", report.Stats)
	}
}

func TestImport_DryRunWithoutStore(t *testing.T) {
	params := defaultParams()
	params.DryRun = true
	if _, err := NewService(testSource(), nil, zerolog.Nop()).Import(context.Background(), "admin", newPayload(), params); err != nil {
		t.Errorf("expected dry run to work without a store, got %v", err)
	}
}

func TestImport_DeletesChildrenFirst(t *testing.T) {
	store := &mockStore{}
	params := defaultParams()
	params.Strategy = tracker.StrategyDelete
	payload := &tracker.Payload{TrackedEntities: []tracker.TrackedEntity{{
		UID:         "te000000001",
		Enrollments: []tracker.Enrollment{{UID: "en000000001"}},
	}}}

	report, err := newTestService(store).Import(context.Background(), "admin", payload, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("expected OK, got %s with %v", report.Status, report.ValidationReport.Errors)
	}
	if len(store.calls) != 2 || store.calls[0] != "Delete en000000001" || store.calls[1] != "Delete te000000001" {
		t.Errorf("expected enrollment to be deleted before its tracked entity, got %v", store.calls)
	}
	if report.Stats.Deleted != 2 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
}

func TestImport_WarningResolvesAssignedUser(t *testing.T) {
	store := &mockStore{}
	payload := &tracker.Payload{Events: []tracker.Event{{
		UID: "ev000000020", Enrollment: "en000000001", Program: "programTrk1",
		ProgramStage: "stageNoAsgn", OrgUnit: "facility001", OccurredAt: at("2024-02-01T00:00:00Z"),
		AssignedUser: &tracker.UserRef{Username: "nurse"},
	}}}

	report, err := newTestService(store).Import(context.Background(), "admin", payload, defaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusWarning {
		t.Errorf("expected WARNING, got %s", report.Status)
	}
	if len(report.ValidationReport.Warnings) != 1 || report.ValidationReport.Warnings[0].Code != "E1120" {
		t.Errorf("expected E1120 warning, got %+v", report.ValidationReport.Warnings)
	}
	if len(store.events) != 1 || store.events[0].AssignedUser.UID != "user0000002" {
		t.Errorf("expected assigned user uid to be resolved, got %+v", store.events)
	}
	if payload.Events[0].AssignedUser.UID != "" {
		t.Error("expected payload to be left untouched")
	}
}

func TestImport_FailFastPersistsNothing(t *testing.T) {
	payload := func() *tracker.Payload {
		return &tracker.Payload{TrackedEntities: []tracker.TrackedEntity{
			{UID: "te000000010", TrackedEntityType: "tetUnknown1", OrgUnit: "facility001"},
			{UID: "te000000011", TrackedEntityType: "tetUnknown1", OrgUnit: "facility009"},
		}}
	}
	tests := []struct {
		name   string
		atomic tracker.AtomicMode
		dryRun bool
	}{
		{"atomic object", tracker.AtomicObject, false},
		{"atomic all", tracker.AtomicAll, false},
		{"dry run", tracker.AtomicObject, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			params := defaultParams()
			params.Strategy = tracker.StrategyCreate
			params.AtomicMode = tt.atomic
			params.ValidationMode = tracker.ValidationFailFast
			params.DryRun = tt.dryRun

			report, err := newTestService(store).Import(context.Background(), "admin", payload(), params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Status != StatusError {
				t.Errorf("expected ERROR, got %s", report.Status)
			}
			if len(report.ValidationReport.Errors) != 1 {
				t.Errorf("expected validation to stop at the first error, got %+v", report.ValidationReport.Errors)
			}
			if len(store.calls) != 0 || store.txCount != 0 {
				t.Errorf("expected nothing persisted, got %v", store.calls)
			}
			if report.Stats.Ignored != 2 || report.Stats.Created != 0 {
				t.Errorf("unexpected stats %+v", report.Stats)
			}
		})
	}
}

func TestImport_RepeatedUIDIsReportedNotPersisted(t *testing.T) {
	store := &mockStore{}
	params := defaultParams()
	params.AtomicMode = tracker.AtomicObject

	payload := newPayload()
	payload.TrackedEntities = append(payload.TrackedEntities,
		tracker.TrackedEntity{UID: "te000000010", TrackedEntityType: "tetPerson01", OrgUnit: "facility001"},
		tracker.TrackedEntity{UID: "te000000012", TrackedEntityType: "tetPerson01", OrgUnit: "facility001"},
	)

	report, err := newTestService(store).Import(context.Background(), "admin", payload, params)
	if err != nil {
		t.Fatalf("expected a report instead of an abort, got %v", err)
	}
	if report.Status != StatusError {
		t.Errorf("expected ERROR, got %s", report.Status)
	}
	var repeats int
	for _, e := range report.ValidationReport.Errors {
		if e.Code == "E1125" {
			repeats++
		}
	}
	if repeats != 1 {
		t.Errorf("expected one E1125, got %+v", report.ValidationReport.Errors)
	}
	if len(store.calls) != 1 || store.calls[0] != "CreateTrackedEntity te000000012" {
		t.Errorf("expected only the distinct tracked entity to be created, got %v", store.calls)
	}
	if report.Stats.Created != 1 || report.Stats.Ignored != 4 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
}

func TestImport_StoreNotFoundAborts(t *testing.T) {
	store := &mockStore{failOn: "UpdateTrackedEntity", err: &NotFoundError{Resource: "TrackedEntity", ID: "te000000001"}}
	payload := &tracker.Payload{TrackedEntities: []tracker.TrackedEntity{{
		UID: "te000000001", TrackedEntityType: "tetPerson01", OrgUnit: "facility001",
	}}}

	_, err := newTestService(store).Import(context.Background(), "admin", payload, defaultParams())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if ErrorStatus(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %d", ErrorStatus(err))
	}
}

func TestImport_UnknownUserIsForbidden(t *testing.T) {
	_, err := newTestService(&mockStore{}).Import(context.Background(), "mallory", newPayload(), defaultParams())
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestImport_RejectsEmptyAndOversizedPayloads(t *testing.T) {
	svc := NewService(testSource(), &mockStore{}, zerolog.Nop(), WithMaxBundleSize(2))
	tests := []struct {
		name    string
		payload *tracker.Payload
	}{
		{"nil", nil},
		{"empty", &tracker.Payload{}},
		{"too large", newPayload()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(context.Background(), "admin", tt.payload, defaultParams())
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Errorf("expected ConflictError, got %v", err)
			}
		})
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams("create", "object", "fail_fast", "true")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Strategy != tracker.StrategyCreate || p.AtomicMode != tracker.AtomicObject ||
		p.ValidationMode != tracker.ValidationFailFast || !p.DryRun {
		t.Errorf("unexpected params %+v", p)
	}

	d := defaultParams()
	if d.Strategy != tracker.StrategyCreateAndUpdate || d.AtomicMode != tracker.AtomicAll ||
		d.ValidationMode != tracker.ValidationFull || d.DryRun {
		t.Errorf("unexpected defaults %+v", d)
	}

	for _, bad := range [][4]string{
		{"MERGE", "", "", ""},
		{"", "NONE", "", ""},
		{"", "", "PARTIAL", ""},
		{"", "", "", "maybe"},
	} {
		if _, err := ParseParams(bad[0], bad[1], bad[2], bad[3]); err == nil {
			t.Errorf("expected error for %v", bad)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&NotFoundError{Resource: "Program", ID: "x"}, http.StatusNotFound},
		{&ConflictError{Message: "x"}, http.StatusConflict},
		{&ForbiddenError{Message: "x"}, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ErrorStatus(tt.err); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
	wrapped := errors.Join(errors.New("persist"), &ConflictError{Message: "dup"})
	if ErrorStatus(wrapped) != http.StatusConflict {
		t.Error("expected wrapped conflict to map to 409")
	}
}
