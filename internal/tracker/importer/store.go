package importer

import (
	"context"

	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/preheat"
)

// Store persists validated tracker objects. Every call made inside InTx
// joins the same transaction. Update and Delete return a NotFoundError when
// the row is gone; Create returns a ConflictError when the uid is taken.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateTrackedEntity(ctx context.Context, te *tracker.TrackedEntity) error
	UpdateTrackedEntity(ctx context.Context, te *tracker.TrackedEntity) error
	CreateEnrollment(ctx context.Context, en *tracker.Enrollment) error
	UpdateEnrollment(ctx context.Context, en *tracker.Enrollment) error
	CreateEvent(ctx context.Context, ev *tracker.Event) error
	UpdateEvent(ctx context.Context, ev *tracker.Event) error
	CreateRelationship(ctx context.Context, rel *tracker.Relationship) error

	// Delete soft deletes an object along with its live children and the
	// relationships linking them.
	Delete(ctx context.Context, k tracker.Key) error
}

// PreheatSource resolves the acting user and loads the preheat of an import.
// UserByUsername returns nil without error for unknown users.
type PreheatSource interface {
	UserByUsername(ctx context.Context, username string) (*tracker.User, error)
	Load(ctx context.Context, user *tracker.User, ids preheat.Identifiers) (*preheat.Preheat, error)
}

// StaticSource serves a fixed preheat, such as one read from a fixture file.
type StaticSource struct {
	Preheat *preheat.Preheat
}

func (s StaticSource) UserByUsername(_ context.Context, username string) (*tracker.User, error) {
	u := s.Preheat.User()
	if u == nil || (username != "" && u.Username != username) {
		return nil, nil
	}
	return u, nil
}

func (s StaticSource) Load(context.Context, *tracker.User, preheat.Identifiers) (*preheat.Preheat, error) {
	return s.Preheat, nil
}
