// Package importer runs tracker imports: it loads the preheat, validates the
// bundle and persists whatever the atomic mode allows in one transaction.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/metrics"
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
	"github.com/ehr/tracker/internal/tracker/preheat"
	"github.com/ehr/tracker/internal/tracker/validation"
)

type Service struct {
	preheats      PreheatSource
	store         Store
	pipeline      *validation.Pipeline
	maxBundleSize int
	logger        zerolog.Logger
}

type Option func(*Service)

// WithMaxBundleSize rejects payloads with more than n objects. Zero means
// no limit.
func WithMaxBundleSize(n int) Option {
	return func(s *Service) { s.maxBundleSize = n }
}

// WithRules replaces the built-in validation rules.
func WithRules(rules validation.Rules) Option {
	return func(s *Service) { s.pipeline = validation.NewPipeline(rules, s.logger) }
}

// NewService builds an import service. store may be nil for services that
// only ever run dry.
func NewService(preheats PreheatSource, store Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		preheats: preheats,
		store:    store,
		logger:   logger.With().Str("component", "importer").Logger(),
	}
	s.pipeline = validation.NewPipeline(validation.DefaultRules(), s.logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import validates payload on behalf of username and persists the result.
// Business rule violations end up in the report; the returned error is set
// only when the import was aborted.
func (s *Service) Import(ctx context.Context, username string, payload *tracker.Payload, params Params) (*ImportReport, error) {
	start := time.Now()
	id := uuid.NewString()
	log := s.logger.With().Str("import_id", id).Str("user", username).Logger()

	if payload == nil || payload.Size() == 0 {
		return nil, &ConflictError{Message: "payload holds no tracker objects"}
	}
	if s.maxBundleSize > 0 && payload.Size() > s.maxBundleSize {
		return nil, &ConflictError{Message: fmt.Sprintf("payload holds %d objects, the limit is %d", payload.Size(), s.maxBundleSize)}
	}

	user, err := s.preheats.UserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load acting user: %w", err)
	}
	if user == nil {
		return nil, &ForbiddenError{Message: fmt.Sprintf("user %q may not import tracker data", username)}
	}

	flat := tracker.Flatten(payload)
	p, err := s.preheats.Load(ctx, user, preheat.Collect(flat))
	if err != nil {
		return nil, fmt.Errorf("load preheat: %w", err)
	}

	b := bundle.New(p, flat, bundle.Options{
		Strategy:       params.Strategy,
		AtomicMode:     params.AtomicMode,
		ValidationMode: params.ValidationMode,
	})
	r := s.pipeline.Validate(b)
	report := newReport(id, params, r)

	invalid := func(k tracker.Key) bool { return r.IsInvalid(k.Type, k.UID) }
	switch {
	case params.DryRun:
		report.ignore(b)
	case r.HasErrors() && b.Options().AtomicMode == tracker.AtomicAll:
		report.ignore(b)
	case r.Done():
		// A fail-fast pass stopped early, so the rest of the bundle was never
		// validated.
		report.ignore(b)
	default:
		report.ignore(b.Without(func(k tracker.Key) bool { return !invalid(k) }))
		if err := s.persist(ctx, b.Without(invalid), report); err != nil {
			metrics.RecordImport("aborted")
			return nil, err
		}
	}
	report.finish()

	metrics.RecordImport(string(report.Status))
	for t, st := range report.TypeStats {
		metrics.RecordObjects(t.Name(), "created", st.Created)
		metrics.RecordObjects(t.Name(), "updated", st.Updated)
		metrics.RecordObjects(t.Name(), "deleted", st.Deleted)
		metrics.RecordObjects(t.Name(), "ignored", st.Ignored)
	}

	log.Info().
		Str("status", string(report.Status)).
		Bool("dry_run", params.DryRun).
		Int("created", report.Stats.Created).
		Int("updated", report.Stats.Updated).
		Int("deleted", report.Stats.Deleted).
		Int("ignored", report.Stats.Ignored).
		Int("errors", len(report.ValidationReport.Errors)).
		Dur("took", time.Since(start)).
		Msg("tracker import finished")
	return report, nil
}

// persist writes b in a single transaction. Creates and updates go parents
// first, deletes go children first. Counts are only added to the report once
// the transaction committed.
func (s *Service) persist(ctx context.Context, b *bundle.Bundle, report *ImportReport) error {
	if b.Size() == 0 {
		return nil
	}
	if s.store == nil {
		return errors.New("import service has no store")
	}
	defer metrics.ObserveStage("persist", time.Now())

	counts := make(map[tracker.Type]*Stats)
	count := func(t tracker.Type) *Stats {
		if counts[t] == nil {
			counts[t] = &Stats{}
		}
		return counts[t]
	}

	err := s.store.InTx(ctx, func(ctx context.Context) error {
		for _, t := range tracker.Types {
			for _, obj := range b.Objects(t) {
				strategy := b.Strategy(obj.Key())
				if strategy.IsDelete() {
					continue
				}
				persisted, err := s.save(ctx, b, obj, strategy)
				if err != nil {
					return fmt.Errorf("persist %s: %w", obj.Key(), err)
				}
				switch {
				case !persisted:
					count(t).Ignored++
				case strategy.IsCreate():
					count(t).Created++
				default:
					count(t).Updated++
				}
			}
		}
		for i := len(tracker.Types) - 1; i >= 0; i-- {
			t := tracker.Types[i]
			for _, obj := range b.Objects(t) {
				if !b.Strategy(obj.Key()).IsDelete() {
					continue
				}
				if err := s.store.Delete(ctx, obj.Key()); err != nil {
					return fmt.Errorf("delete %s: %w", obj.Key(), err)
				}
				count(t).Deleted++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for t, c := range counts {
		report.typeStats(t).add(*c)
	}
	return nil
}

// save creates or updates obj. Relationships cannot be updated; they are
// reported as ignored.
func (s *Service) save(ctx context.Context, b *bundle.Bundle, obj tracker.Object, strategy tracker.ImportStrategy) (bool, error) {
	create := strategy.IsCreate()
	switch o := obj.(type) {
	case *tracker.TrackedEntity:
		if create {
			return true, s.store.CreateTrackedEntity(ctx, o)
		}
		return true, s.store.UpdateTrackedEntity(ctx, o)
	case *tracker.Enrollment:
		if create {
			return true, s.store.CreateEnrollment(ctx, o)
		}
		return true, s.store.UpdateEnrollment(ctx, o)
	case *tracker.Event:
		ev := withAssignedUID(b, o)
		if create {
			return true, s.store.CreateEvent(ctx, ev)
		}
		return true, s.store.UpdateEvent(ctx, ev)
	case *tracker.Relationship:
		if create {
			return true, s.store.CreateRelationship(ctx, o)
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported tracker object %T", obj)
}

// withAssignedUID returns ev with its assigned user resolved to a uid. The
// bundle itself is left untouched.
func withAssignedUID(b *bundle.Bundle, ev *tracker.Event) *tracker.Event {
	ref := ev.AssignedUser
	if ref.IsEmpty() || ref.UID != "" {
		return ev
	}
	u, ok := b.Preheat().UserByUsername(ref.Username)
	if !ok {
		return ev
	}
	out := *ev
	out.AssignedUser = &tracker.UserRef{UID: u.UID, Username: u.Username}
	return &out
}
