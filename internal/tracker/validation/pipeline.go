package validation

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/metrics"
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

// Rules holds the validator of each tracker type.
type Rules struct {
	TrackedEntity Validator[*tracker.TrackedEntity]
	Enrollment    Validator[*tracker.Enrollment]
	Event         Validator[*tracker.Event]
	Relationship  Validator[*tracker.Relationship]
}

// DefaultRules returns the built-in rule tables.
func DefaultRules() Rules {
	return Rules{
		TrackedEntity: trackedEntityRules(),
		Enrollment:    enrollmentRules(),
		Event:         eventRules(),
		Relationship:  relationshipRules(),
	}
}

// Pipeline validates a bundle one tracker type at a time, parents first.
type Pipeline struct {
	rules  Validator[*bundle.Bundle]
	logger zerolog.Logger
}

func NewPipeline(rules Rules, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		rules: All(
			Each((*bundle.Bundle).TrackedEntities, rules.TrackedEntity),
			Each((*bundle.Bundle).Enrollments, rules.Enrollment),
			Each((*bundle.Bundle).Events, rules.Event),
			Each((*bundle.Bundle).Relationships, rules.Relationship),
		),
		logger: logger.With().Str("component", "validation").Logger(),
	}
}

// Validate runs every rule over the bundle and returns the findings. SKIP
// returns an empty reporter; FAIL_FAST stops at the first error. Objects
// referencing an invalid object are reported with E5000 so they are never
// persisted without their parent.
func (p *Pipeline) Validate(b *bundle.Bundle) *Reporter {
	mode := b.Options().ValidationMode
	r := NewReporter(mode == tracker.ValidationFailFast, p.logger)
	if mode == tracker.ValidationSkip {
		p.logger.Debug().Int("objects", b.Size()).Msg("validation skipped")
		return r
	}

	defer metrics.ObserveStage("validation", time.Now())
	p.rules.Validate(r, b, b)
	if !r.Done() {
		cascade(r, b)
	}

	p.logger.Debug().
		Int("objects", b.Size()).
		Int("errors", len(r.Errors())).
		Int("warnings", len(r.Warnings())).
		Int("invalid", r.InvalidCount()).
		Msg("validation finished")
	return r
}

// cascade marks objects invalid when an object they reference is invalid.
// Types are walked in import order so the invalidity of a tracked entity
// reaches the events of its enrollments.
func cascade(r *Reporter, b *bundle.Bundle) {
	check := func(obj tracker.Object, parents ...tracker.Key) {
		if r.HasErrorReport(obj) {
			return
		}
		for _, parent := range parents {
			if parent.UID != "" && r.IsInvalid(parent.Type, parent.UID) {
				k := obj.Key()
				r.AddError(obj, E5000, k.Type.Name(), k.UID, parent.Type.Name(), parent.UID)
				return
			}
		}
	}

	for _, en := range b.Enrollments() {
		check(en, tracker.Key{Type: tracker.TypeTrackedEntity, UID: en.TrackedEntity})
	}
	for _, ev := range b.Events() {
		check(ev, tracker.Key{Type: tracker.TypeEnrollment, UID: ev.Enrollment})
	}
	for _, rel := range b.Relationships() {
		from, _ := rel.From.Ref()
		to, _ := rel.To.Ref()
		check(rel, from, to)
	}
}
