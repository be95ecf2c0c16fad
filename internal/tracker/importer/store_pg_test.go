package importer

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/tracker/internal/tracker"
)

// -- Fake Querier --

var updatedTable = regexp.MustCompile(`UPDATE (\w+)`)

type fakeQuerier struct {
	children map[string][]string // parent uid -> child uids
	missing  map[string]bool
	queryErr error
	execs    []string
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	uid, _ := args[len(args)-1].(string)
	f.execs = append(f.execs, updatedTable.FindStringSubmatch(sql)[1]+" "+uid)
	if f.missing[uid] && !strings.Contains(sql, "relationship SET") {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeQuerier) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	uid, _ := args[0].(string)
	return &fakeRows{values: f.children[uid]}, nil
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

type fakeRows struct {
	values []string
	pos    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.values)
}

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.values[r.pos-1]
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	return []any{r.values[r.pos-1]}, nil
}

// -- Tests --

func TestSoftDelete_CascadesToChildren(t *testing.T) {
	q := &fakeQuerier{children: map[string][]string{
		"te000000001": {"en000000001"},
		"en000000001": {"ev000000001", "ev000000002"},
	}}

	err := softDelete(context.Background(), q, tracker.Key{Type: tracker.TypeTrackedEntity, UID: "te000000001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"relationship ev000000001", "event ev000000001",
		"relationship ev000000002", "event ev000000002",
		"relationship en000000001", "enrollment en000000001",
		"relationship te000000001", "tracked_entity te000000001",
	}
	if strings.Join(q.execs, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, q.execs)
	}
}

func TestSoftDelete_RelationshipHasNoDependents(t *testing.T) {
	q := &fakeQuerier{}
	if err := softDelete(context.Background(), q, tracker.Key{Type: tracker.TypeRelationship, UID: "rel00000001"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.execs) != 1 || q.execs[0] != "relationship rel00000001" {
		t.Errorf("expected a single update, got %v", q.execs)
	}
}

func TestSoftDelete_Errors(t *testing.T) {
	q := &fakeQuerier{missing: map[string]bool{"ev000000009": true}}
	err := softDelete(context.Background(), q, tracker.Key{Type: tracker.TypeEvent, UID: "ev000000009"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != "ev000000009" {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	q = &fakeQuerier{queryErr: errors.New("connection reset")}
	err = softDelete(context.Background(), q, tracker.Key{Type: tracker.TypeEnrollment, UID: "en000000001"})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected query error, got %v", err)
	}
	if len(q.execs) != 0 {
		t.Errorf("expected nothing updated, got %v", q.execs)
	}

	if err := softDelete(context.Background(), &fakeQuerier{}, tracker.Key{Type: "NOPE", UID: "x"}); err == nil {
		t.Error("expected error for unknown type")
	}
}
