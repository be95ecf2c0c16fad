package validation

import (
	"time"

	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

func enrollmentRules() Validator[*tracker.Enrollment] {
	return All(
		Named("unique", unique[*tracker.Enrollment]()),
		Named("uid", uidFormat[*tracker.Enrollment]()),
		Named("existence", existence[*tracker.Enrollment](existenceCodes{
			exists:  E1080,
			missing: E1081,
			deleted: E1113,
		})),
		Named("structure", SkipOn(structure[*tracker.Enrollment](E1122), tracker.StrategyDelete)),
		Named("program", SkipOn(Rule(validateEnrollmentProgram), tracker.StrategyDelete)),
		Named("orgUnit", orgUnitAccess(func(en *tracker.Enrollment) string { return en.OrgUnit }, E1070)),
		Named("trackedEntity", SkipOn(Rule(validateEnrollmentTrackedEntity), tracker.StrategyDelete)),
		Named("dates", SkipOn(Rule(validateEnrollmentDates), tracker.StrategyDelete)),
		Named("activeEnrollment", SkipOn(Rule(validateActiveEnrollment), tracker.StrategyUpdate, tracker.StrategyDelete)),
	)
}

func validateEnrollmentProgram(r *Reporter, b *bundle.Bundle, en *tracker.Enrollment) {
	if en.Program == "" {
		return
	}
	program, ok := b.Preheat().Program(en.Program)
	if !ok {
		r.AddError(en, E1069, en.Program)
		return
	}
	if !program.IsRegistration() {
		r.AddError(en, E1014, en.Program)
	}
	if en.OrgUnit != "" && !program.HasOrgUnit(en.OrgUnit) {
		r.AddError(en, E1041, en.OrgUnit, en.Program)
	}
}

func validateEnrollmentTrackedEntity(r *Reporter, b *bundle.Bundle, en *tracker.Enrollment) {
	if en.TrackedEntity == "" {
		return
	}
	if !b.Resolvable(tracker.Key{Type: tracker.TypeTrackedEntity, UID: en.TrackedEntity}) {
		r.AddError(en, E1068, en.TrackedEntity)
		return
	}
	program, ok := b.Preheat().Program(en.Program)
	if !ok || program.TrackedEntityType == "" {
		return
	}
	if tet := trackedEntityType(b, en.TrackedEntity); tet != "" && tet != program.TrackedEntityType {
		r.AddError(en, E1022, en.TrackedEntity, en.Program)
	}
}

func validateEnrollmentDates(r *Reporter, b *bundle.Bundle, en *tracker.Enrollment) {
	if en.EnrolledAt == nil {
		if b.Strategy(en.Key()).IsCreate() {
			r.AddError(en, E1025)
		}
		return
	}
	if en.EnrolledAt.After(now()) {
		r.AddError(en, E1020, en.EnrolledAt.Format(time.RFC3339))
	}
}

// validateActiveEnrollment allows one ACTIVE enrollment per tracked entity
// and program, counting persisted enrollments and the rest of the bundle.
// Programs that only enroll once reject any second enrollment.
func validateActiveEnrollment(r *Reporter, b *bundle.Bundle, en *tracker.Enrollment) {
	if en.TrackedEntity == "" || en.Program == "" {
		return
	}
	program, ok := b.Preheat().Program(en.Program)
	if !ok {
		return
	}
	status := en.Status
	if status == "" {
		status = tracker.EnrollmentActive
	}

	if program.OnlyEnrollOnce {
		if len(b.Preheat().Enrollments(en.TrackedEntity, en.Program)) > 0 || earlierInBundle(b, en, false) {
			r.AddError(en, E1016, en.TrackedEntity, en.Program)
			return
		}
	}
	if status != tracker.EnrollmentActive {
		return
	}
	if len(b.Preheat().ActiveEnrollments(en.TrackedEntity, en.Program)) > 0 || earlierInBundle(b, en, true) {
		r.AddError(en, E1015, en.TrackedEntity, en.Program)
	}
}

// earlierInBundle reports whether another enrollment of the same tracked
// entity and program precedes en in the bundle. With activeOnly set only
// ACTIVE enrollments count.
func earlierInBundle(b *bundle.Bundle, en *tracker.Enrollment, activeOnly bool) bool {
	for _, other := range b.Enrollments() {
		if other == en {
			return false
		}
		if other.UID == en.UID || other.TrackedEntity != en.TrackedEntity || other.Program != en.Program {
			continue
		}
		if !b.Strategy(other.Key()).IsCreate() {
			continue
		}
		if activeOnly && other.Status != "" && other.Status != tracker.EnrollmentActive {
			continue
		}
		return true
	}
	return false
}
