package validation

import (
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

func eventRules() Validator[*tracker.Event] {
	return All(
		Named("unique", unique[*tracker.Event]()),
		Named("uid", uidFormat[*tracker.Event]()),
		Named("existence", existence[*tracker.Event](existenceCodes{
			exists:  E1030,
			missing: E1032,
			deleted: E1082,
		})),
		Named("structure", SkipOn(structure[*tracker.Event](E1123), tracker.StrategyDelete)),
		Named("program", SkipOn(Rule(validateEventProgram), tracker.StrategyDelete)),
		Named("orgUnit", orgUnitAccess(func(ev *tracker.Event) string { return ev.OrgUnit }, E1011)),
		Named("enrollment", SkipOn(Rule(validateEventEnrollment), tracker.StrategyDelete)),
		Named("dates", SkipOn(Rule(validateEventDates), tracker.StrategyDelete)),
		Named("repeatable", SkipOn(Rule(validateRepeatableStage), tracker.StrategyUpdate, tracker.StrategyDelete)),
		Named("dataValues", SkipOn(Each(eventDataValues, Rule(validateDataValue)), tracker.StrategyDelete)),
		Named("assignedUser", SkipOn(Rule(validateAssignedUser), tracker.StrategyDelete)),
	)
}

func validateEventProgram(r *Reporter, b *bundle.Bundle, ev *tracker.Event) {
	var program *tracker.Program
	if ev.Program != "" {
		p, ok := b.Preheat().Program(ev.Program)
		if !ok {
			r.AddError(ev, E1010, ev.Program)
		} else {
			program = p
		}
	}
	if ev.ProgramStage != "" {
		stage, ok := b.Preheat().ProgramStage(ev.ProgramStage)
		if !ok {
			r.AddError(ev, E1013, ev.ProgramStage)
		} else if program != nil && stage.Program != program.UID {
			r.AddError(ev, E1035, ev.ProgramStage, ev.Program)
		}
	}
	if program != nil && ev.OrgUnit != "" && !program.HasOrgUnit(ev.OrgUnit) {
		r.AddError(ev, E1029, ev.OrgUnit, ev.Program)
	}
}

// validateEventEnrollment requires events of registration programs to point
// at an enrollment that is bundled or persisted.
func validateEventEnrollment(r *Reporter, b *bundle.Bundle, ev *tracker.Event) {
	program, ok := b.Preheat().Program(ev.Program)
	if !ok || !program.IsRegistration() {
		return
	}
	if ev.Enrollment == "" {
		r.AddError(ev, E1033, ev.UID)
		return
	}
	if !b.Resolvable(tracker.Key{Type: tracker.TypeEnrollment, UID: ev.Enrollment}) {
		r.AddError(ev, E1081, ev.Enrollment)
	}
}

func validateEventDates(r *Reporter, _ *bundle.Bundle, ev *tracker.Event) {
	switch ev.Status {
	case "", tracker.EventActive, tracker.EventCompleted, tracker.EventVisited:
		if ev.OccurredAt == nil {
			r.AddError(ev, E1031)
		}
	case tracker.EventSchedule, tracker.EventOverdue, tracker.EventSkipped:
		if ev.ScheduledAt == nil {
			r.AddError(ev, E1050)
		}
	}
}

// validateRepeatableStage allows a single event per enrollment in a stage
// that is not repeatable.
func validateRepeatableStage(r *Reporter, b *bundle.Bundle, ev *tracker.Event) {
	if ev.Enrollment == "" || ev.ProgramStage == "" {
		return
	}
	stage, ok := b.Preheat().ProgramStage(ev.ProgramStage)
	if !ok || stage.Repeatable {
		return
	}
	if len(b.Preheat().EventsInStage(ev.Enrollment, ev.ProgramStage)) > 0 {
		r.AddError(ev, E1039, ev.ProgramStage)
		return
	}
	for _, other := range b.Events() {
		if other == ev {
			return
		}
		if other.UID != ev.UID && other.Enrollment == ev.Enrollment &&
			other.ProgramStage == ev.ProgramStage && b.Strategy(other.Key()).IsCreate() {
			r.AddError(ev, E1039, ev.ProgramStage)
			return
		}
	}
}

// dataValueOf ties a data value to the event carrying it so findings are
// reported against the event.
type dataValueOf struct {
	event *tracker.Event
	tracker.DataValue
}

func eventDataValues(ev *tracker.Event) []dataValueOf {
	out := make([]dataValueOf, 0, len(ev.DataValues))
	for _, dv := range ev.DataValues {
		out = append(out, dataValueOf{event: ev, DataValue: dv})
	}
	return out
}

func validateDataValue(r *Reporter, _ *bundle.Bundle, dv dataValueOf) {
	if dv.DataElement != "" && !tracker.IsValidUID(dv.DataElement) {
		r.AddError(dv.event, E1302, dv.DataElement)
	}
}

// validateAssignedUser resolves the assigned user against the preheat. A
// username must be found in the by-username index; a uid alone must be well
// formed and found by uid. Assigning a user in a stage that does not allow
// it is only a warning.
func validateAssignedUser(r *Reporter, b *bundle.Bundle, ev *tracker.Event) {
	if ev.AssignedUser.IsEmpty() {
		return
	}
	if !assignedUserExists(b, ev.AssignedUser) {
		r.AddError(ev, E1118, ev.AssignedUser.String())
	}
	if stage, ok := b.Preheat().ProgramStage(ev.ProgramStage); ok && !stage.EnableUserAssignment {
		r.AddWarning(ev, E1120, ev.ProgramStage)
	}
}

func assignedUserExists(b *bundle.Bundle, ref *tracker.UserRef) bool {
	if ref.UID != "" && !tracker.IsValidUID(ref.UID) {
		return false
	}
	if ref.Username != "" {
		_, ok := b.Preheat().UserByUsername(ref.Username)
		return ok
	}
	_, ok := b.Preheat().UserByUID(ref.UID)
	return ok
}
