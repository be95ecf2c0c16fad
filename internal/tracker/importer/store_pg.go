package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/tracker"
)

type storePG struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) db.Querier {
	return db.Q(ctx, s.pool)
}

func (s *storePG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, s.pool, fn)
}

func (s *storePG) CreateTrackedEntity(ctx context.Context, te *tracker.TrackedEntity) error {
	attrs, err := json.Marshal(orEmpty(te.Attributes))
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO tracked_entity (uid, tracked_entity_type, org_unit, inactive, attributes)
		VALUES ($1, $2, $3, $4, $5)`,
		te.UID, te.TrackedEntityType, te.OrgUnit, te.Inactive, attrs,
	)
	return created(te.Key(), err)
}

func (s *storePG) UpdateTrackedEntity(ctx context.Context, te *tracker.TrackedEntity) error {
	attrs, err := json.Marshal(orEmpty(te.Attributes))
	if err != nil {
		return err
	}
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tracked_entity SET
			tracked_entity_type = $2, org_unit = $3, inactive = $4, attributes = $5, updated_at = NOW()
		WHERE uid = $1 AND NOT deleted`,
		te.UID, te.TrackedEntityType, te.OrgUnit, te.Inactive, attrs,
	)
	return affected(te.Key(), tag, err)
}

func (s *storePG) CreateEnrollment(ctx context.Context, en *tracker.Enrollment) error {
	attrs, err := json.Marshal(orEmpty(en.Attributes))
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO enrollment (uid, tracked_entity, program, org_unit, status, enrolled_at, occurred_at, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		en.UID, en.TrackedEntity, en.Program, en.OrgUnit, enrollmentStatus(en.Status),
		en.EnrolledAt, en.OccurredAt, attrs,
	)
	return created(en.Key(), err)
}

func (s *storePG) UpdateEnrollment(ctx context.Context, en *tracker.Enrollment) error {
	attrs, err := json.Marshal(orEmpty(en.Attributes))
	if err != nil {
		return err
	}
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE enrollment SET
			org_unit = $2, status = $3, enrolled_at = $4, occurred_at = $5, attributes = $6, updated_at = NOW()
		WHERE uid = $1 AND NOT deleted`,
		en.UID, en.OrgUnit, enrollmentStatus(en.Status), en.EnrolledAt, en.OccurredAt, attrs,
	)
	return affected(en.Key(), tag, err)
}

func (s *storePG) CreateEvent(ctx context.Context, ev *tracker.Event) error {
	values, err := json.Marshal(orEmpty(ev.DataValues))
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO event (uid, enrollment, program, program_stage, org_unit, status,
			occurred_at, scheduled_at, completed_at, assigned_user, data_values)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.UID, nullable(ev.Enrollment), ev.Program, ev.ProgramStage, ev.OrgUnit, eventStatus(ev.Status),
		ev.OccurredAt, ev.ScheduledAt, ev.CompletedAt, assignedUser(ev.AssignedUser), values,
	)
	return created(ev.Key(), err)
}

func (s *storePG) UpdateEvent(ctx context.Context, ev *tracker.Event) error {
	values, err := json.Marshal(orEmpty(ev.DataValues))
	if err != nil {
		return err
	}
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE event SET
			org_unit = $2, status = $3, occurred_at = $4, scheduled_at = $5, completed_at = $6,
			assigned_user = $7, data_values = $8, updated_at = NOW()
		WHERE uid = $1 AND NOT deleted`,
		ev.UID, ev.OrgUnit, eventStatus(ev.Status), ev.OccurredAt, ev.ScheduledAt, ev.CompletedAt,
		assignedUser(ev.AssignedUser), values,
	)
	return affected(ev.Key(), tag, err)
}

func (s *storePG) CreateRelationship(ctx context.Context, rel *tracker.Relationship) error {
	from, _ := rel.From.Ref()
	to, _ := rel.To.Ref()
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO relationship (uid, relationship_type, from_type, from_uid, to_type, to_uid)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rel.UID, rel.RelationshipType, string(from.Type), from.UID, string(to.Type), to.UID,
	)
	return created(rel.Key(), err)
}

var tables = map[tracker.Type]string{
	tracker.TypeTrackedEntity: "tracked_entity",
	tracker.TypeEnrollment:    "enrollment",
	tracker.TypeEvent:         "event",
	tracker.TypeRelationship:  "relationship",
}

// children are the queries finding the live children of an object, keyed
// by the parent type.
var children = map[tracker.Type]struct {
	typ   tracker.Type
	query string
}{
	tracker.TypeTrackedEntity: {tracker.TypeEnrollment, `SELECT uid FROM enrollment WHERE tracked_entity = $1 AND NOT deleted`},
	tracker.TypeEnrollment:    {tracker.TypeEvent, `SELECT uid FROM event WHERE enrollment = $1 AND NOT deleted`},
}

// Delete soft deletes an object together with its live children and the
// relationships linking any of them, in the transaction of ctx.
func (s *storePG) Delete(ctx context.Context, k tracker.Key) error {
	return softDelete(ctx, s.conn(ctx), k)
}

func softDelete(ctx context.Context, q db.Querier, k tracker.Key) error {
	table, ok := tables[k.Type]
	if !ok {
		return fmt.Errorf("unknown tracker type %q", k.Type)
	}
	if err := deleteDependents(ctx, q, k); err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET deleted = TRUE WHERE uid = $1 AND NOT deleted`, table), k.UID)
	return affected(k, tag, err)
}

// deleteDependents soft deletes the children of k, deepest first, and then
// the relationships that link k.
func deleteDependents(ctx context.Context, q db.Querier, k tracker.Key) error {
	if k.Type == tracker.TypeRelationship {
		return nil
	}
	if c, ok := children[k.Type]; ok {
		rows, err := q.Query(ctx, c.query, k.UID)
		if err != nil {
			return fmt.Errorf("find children of %s: %w", k, err)
		}
		uids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan children of %s: %w", k, err)
		}
		for _, uid := range uids {
			if err := softDelete(ctx, q, tracker.Key{Type: c.typ, UID: uid}); err != nil {
				return err
			}
		}
	}
	_, err := q.Exec(ctx, `
		UPDATE relationship SET deleted = TRUE
		WHERE NOT deleted AND ((from_type = $1 AND from_uid = $2) OR (to_type = $1 AND to_uid = $2))`,
		string(k.Type), k.UID)
	if err != nil {
		return fmt.Errorf("delete relationships of %s: %w", k, err)
	}
	return nil
}

func created(k tracker.Key, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return &ConflictError{Message: fmt.Sprintf("%s already exists", k)}
	}
	return err
}

func affected(k tracker.Key, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: k.Type.Name(), ID: k.UID}
	}
	return nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// assignedUser returns the uid of the assigned user. The service resolves
// usernames to uids before anything is stored.
func assignedUser(ref *tracker.UserRef) *string {
	if ref == nil || ref.UID == "" {
		return nil
	}
	return &ref.UID
}

func enrollmentStatus(s string) string {
	if s == "" {
		return tracker.EnrollmentActive
	}
	return s
}

func eventStatus(s string) string {
	if s == "" {
		return tracker.EventActive
	}
	return s
}
