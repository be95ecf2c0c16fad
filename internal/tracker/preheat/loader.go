package preheat

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/metrics"
	"github.com/ehr/tracker/internal/tracker"
)

// Cache kinds.
const (
	kindProgram           = "program"
	kindProgramStage      = "programStage"
	kindTrackedEntityType = "trackedEntityType"
	kindRelationshipType  = "relationshipType"
)

// Loader builds snapshots from the tenant database. Each kind of object is
// fetched with a single uid = ANY($1) query.
type Loader struct {
	pool   *pgxpool.Pool
	cache  MetadataCache
	logger zerolog.Logger
}

func NewLoader(pool *pgxpool.Pool, cache MetadataCache, logger zerolog.Logger) *Loader {
	if cache == nil {
		cache = NopCache{}
	}
	return &Loader{
		pool:   pool,
		cache:  cache,
		logger: logger.With().Str("component", "preheat").Logger(),
	}
}

// Load builds the snapshot for the given identifiers with user as the acting
// user. Persisted records are loaded before organisation units so that the
// units of records referenced by uid only are part of the snapshot.
func (l *Loader) Load(ctx context.Context, user *tracker.User, ids Identifiers) (*Preheat, error) {
	start := time.Now()
	q := db.Q(ctx, l.pool)
	tenant := db.TenantFromContext(ctx)
	b := NewBuilder().WithUser(user)

	users, err := l.users(ctx, q, ids.Users, ids.Usernames)
	if err != nil {
		return nil, err
	}
	b.AddUsers(users...)

	records, err := l.records(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	b.AddRecords(records...)

	ous, err := l.orgUnits(ctx, q, orgUnitsFor(ids.OrgUnits, records))
	if err != nil {
		return nil, err
	}
	b.AddOrgUnits(ous...)

	teTypes, hits, err := cached(ctx, l.cache, l.logger, tenant, kindTrackedEntityType, ids.TrackedEntityTypes,
		func(t *tracker.TrackedEntityType) string { return t.UID },
		func(ctx context.Context, uids []string) ([]*tracker.TrackedEntityType, error) {
			return l.trackedEntityTypes(ctx, q, uids)
		})
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheLookup(kindTrackedEntityType, hits, len(ids.TrackedEntityTypes)-hits)
	b.AddTrackedEntityTypes(teTypes...)

	programs, hits, err := cached(ctx, l.cache, l.logger, tenant, kindProgram, ids.Programs,
		func(p *tracker.Program) string { return p.UID },
		func(ctx context.Context, uids []string) ([]*tracker.Program, error) {
			return l.programs(ctx, q, uids)
		})
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheLookup(kindProgram, hits, len(ids.Programs)-hits)
	b.AddPrograms(programs...)

	stages, hits, err := cached(ctx, l.cache, l.logger, tenant, kindProgramStage, ids.ProgramStages,
		func(ps *tracker.ProgramStage) string { return ps.UID },
		func(ctx context.Context, uids []string) ([]*tracker.ProgramStage, error) {
			return l.programStages(ctx, q, uids)
		})
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheLookup(kindProgramStage, hits, len(ids.ProgramStages)-hits)
	b.AddProgramStages(stages...)

	relTypes, hits, err := cached(ctx, l.cache, l.logger, tenant, kindRelationshipType, ids.RelationshipTypes,
		func(t *tracker.RelationshipType) string { return t.UID },
		func(ctx context.Context, uids []string) ([]*tracker.RelationshipType, error) {
			return l.relationshipTypes(ctx, q, uids)
		})
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheLookup(kindRelationshipType, hits, len(ids.RelationshipTypes)-hits)
	b.AddRelationshipTypes(relTypes...)

	p := b.Build()
	metrics.ObserveStage("preheat", start)
	l.logger.Debug().
		Str("tenant", tenant).
		Interface("stats", p.Stats()).
		Dur("took", time.Since(start)).
		Msg("preheat loaded")
	return p, nil
}

// UserByUsername loads a single user, typically the acting user of a
// request. It returns nil without error when the user does not exist.
func (l *Loader) UserByUsername(ctx context.Context, username string) (*tracker.User, error) {
	users, err := l.users(ctx, db.Q(ctx, l.pool), nil, []string{username})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

func (l *Loader) users(ctx context.Context, q db.Querier, uids, usernames []string) ([]*tracker.User, error) {
	if len(uids) == 0 && len(usernames) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, `
		SELECT uid, username, org_units, authorities
		FROM tracker_user
		WHERE uid = ANY($1) OR username = ANY($2)`, uids, usernames)
	if err != nil {
		return nil, fmt.Errorf("preheat users: %w", err)
	}
	return collect(rows, "users", func(row pgx.CollectableRow) (*tracker.User, error) {
		u := &tracker.User{}
		err := row.Scan(&u.UID, &u.Username, &u.OrgUnits, &u.Authorities)
		return u, err
	})
}

// orgUnitsFor returns the organisation units named in the payload together
// with those of the persisted records.
func orgUnitsFor(named []string, records []*Record) []string {
	set := uidSet{}
	for _, uid := range named {
		set.add(uid)
	}
	for _, r := range records {
		set.add(r.OrgUnit)
	}
	return set.sorted()
}

func (l *Loader) orgUnits(ctx context.Context, q db.Querier, uids []string) ([]*tracker.OrganisationUnit, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, `SELECT uid, name, path FROM organisation_unit WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("preheat organisation units: %w", err)
	}
	return collect(rows, "organisation units", func(row pgx.CollectableRow) (*tracker.OrganisationUnit, error) {
		ou := &tracker.OrganisationUnit{}
		err := row.Scan(&ou.UID, &ou.Name, &ou.Path)
		return ou, err
	})
}

func (l *Loader) trackedEntityTypes(ctx context.Context, q db.Querier, uids []string) ([]*tracker.TrackedEntityType, error) {
	rows, err := q.Query(ctx, `SELECT uid, name FROM tracked_entity_type WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("preheat tracked entity types: %w", err)
	}
	return collect(rows, "tracked entity types", func(row pgx.CollectableRow) (*tracker.TrackedEntityType, error) {
		t := &tracker.TrackedEntityType{}
		err := row.Scan(&t.UID, &t.Name)
		return t, err
	})
}

func (l *Loader) programs(ctx context.Context, q db.Querier, uids []string) ([]*tracker.Program, error) {
	rows, err := q.Query(ctx, `
		SELECT uid, name, COALESCE(tracked_entity_type, ''), without_registration,
		       only_enroll_once, display_incident_date, org_units
		FROM program WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("preheat programs: %w", err)
	}
	return collect(rows, "programs", func(row pgx.CollectableRow) (*tracker.Program, error) {
		p := &tracker.Program{}
		err := row.Scan(&p.UID, &p.Name, &p.TrackedEntityType, &p.WithoutRegistration,
			&p.OnlyEnrollOnce, &p.DisplayIncidentDate, &p.OrgUnits)
		return p, err
	})
}

func (l *Loader) programStages(ctx context.Context, q db.Querier, uids []string) ([]*tracker.ProgramStage, error) {
	rows, err := q.Query(ctx, `
		SELECT uid, name, program, repeatable, enable_user_assignment
		FROM program_stage WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("preheat program stages: %w", err)
	}
	return collect(rows, "program stages", func(row pgx.CollectableRow) (*tracker.ProgramStage, error) {
		ps := &tracker.ProgramStage{}
		err := row.Scan(&ps.UID, &ps.Name, &ps.Program, &ps.Repeatable, &ps.EnableUserAssignment)
		return ps, err
	})
}

func (l *Loader) relationshipTypes(ctx context.Context, q db.Querier, uids []string) ([]*tracker.RelationshipType, error) {
	rows, err := q.Query(ctx, `SELECT uid, name, from_type, to_type FROM relationship_type WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("preheat relationship types: %w", err)
	}
	return collect(rows, "relationship types", func(row pgx.CollectableRow) (*tracker.RelationshipType, error) {
		t := &tracker.RelationshipType{}
		var from, to string
		err := row.Scan(&t.UID, &t.Name, &from, &to)
		t.FromType, t.ToType = tracker.Type(from), tracker.Type(to)
		return t, err
	})
}

// records loads persisted tracker objects: everything referenced by uid,
// plus the enrollments of referenced tracked entities and the events of
// referenced enrollments, which enrollment and stage rules need.
func (l *Loader) records(ctx context.Context, q db.Querier, ids Identifiers) ([]*Record, error) {
	var out []*Record

	if len(ids.TrackedEntities) > 0 {
		rows, err := q.Query(ctx, `
			SELECT uid, tracked_entity_type, org_unit, deleted
			FROM tracked_entity WHERE uid = ANY($1)`, ids.TrackedEntities)
		if err != nil {
			return nil, fmt.Errorf("preheat tracked entities: %w", err)
		}
		tes, err := collect(rows, "tracked entities", func(row pgx.CollectableRow) (*Record, error) {
			r := &Record{Type: tracker.TypeTrackedEntity}
			err := row.Scan(&r.UID, &r.TrackedEntityType, &r.OrgUnit, &r.Deleted)
			return r, err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tes...)
	}

	if len(ids.Enrollments) > 0 || len(ids.TrackedEntities) > 0 {
		rows, err := q.Query(ctx, `
			SELECT uid, tracked_entity, program, org_unit, status, deleted
			FROM enrollment WHERE uid = ANY($1) OR tracked_entity = ANY($2)`,
			ids.Enrollments, ids.TrackedEntities)
		if err != nil {
			return nil, fmt.Errorf("preheat enrollments: %w", err)
		}
		ens, err := collect(rows, "enrollments", func(row pgx.CollectableRow) (*Record, error) {
			r := &Record{Type: tracker.TypeEnrollment}
			err := row.Scan(&r.UID, &r.TrackedEntity, &r.Program, &r.OrgUnit, &r.Status, &r.Deleted)
			return r, err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ens...)
	}

	if len(ids.Events) > 0 || len(ids.Enrollments) > 0 {
		rows, err := q.Query(ctx, `
			SELECT uid, COALESCE(enrollment, ''), program, program_stage, org_unit, status, deleted
			FROM event WHERE uid = ANY($1) OR enrollment = ANY($2)`,
			ids.Events, ids.Enrollments)
		if err != nil {
			return nil, fmt.Errorf("preheat events: %w", err)
		}
		evs, err := collect(rows, "events", func(row pgx.CollectableRow) (*Record, error) {
			r := &Record{Type: tracker.TypeEvent}
			err := row.Scan(&r.UID, &r.Enrollment, &r.Program, &r.ProgramStage, &r.OrgUnit, &r.Status, &r.Deleted)
			return r, err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}

	if len(ids.Relationships) > 0 {
		rows, err := q.Query(ctx, `SELECT uid, deleted FROM relationship WHERE uid = ANY($1)`, ids.Relationships)
		if err != nil {
			return nil, fmt.Errorf("preheat relationships: %w", err)
		}
		rels, err := collect(rows, "relationships", func(row pgx.CollectableRow) (*Record, error) {
			r := &Record{Type: tracker.TypeRelationship}
			err := row.Scan(&r.UID, &r.Deleted)
			return r, err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, rels...)
	}

	return out, nil
}

func collect[T any](rows pgx.Rows, what string, fn pgx.RowToFunc[T]) ([]T, error) {
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	return out, nil
}
