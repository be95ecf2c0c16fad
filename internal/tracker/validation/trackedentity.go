package validation

import (
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

func trackedEntityRules() Validator[*tracker.TrackedEntity] {
	return All(
		Named("unique", unique[*tracker.TrackedEntity]()),
		Named("uid", uidFormat[*tracker.TrackedEntity]()),
		Named("existence", existence[*tracker.TrackedEntity](existenceCodes{
			exists:  E1002,
			missing: E1063,
			deleted: E1114,
		})),
		Named("structure", SkipOn(structure[*tracker.TrackedEntity](E1121), tracker.StrategyDelete)),
		Named("trackedEntityType", SkipOn(Rule(validateTrackedEntityType), tracker.StrategyDelete)),
		Named("orgUnit", orgUnitAccess(func(te *tracker.TrackedEntity) string { return te.OrgUnit }, E1049)),
		Named("attributes", SkipOn(Rule(validateAttributes), tracker.StrategyDelete)),
	)
}

func validateTrackedEntityType(r *Reporter, b *bundle.Bundle, te *tracker.TrackedEntity) {
	if te.TrackedEntityType == "" {
		return
	}
	if _, ok := b.Preheat().TrackedEntityType(te.TrackedEntityType); !ok {
		r.AddError(te, E1005, te.TrackedEntityType)
	}
}

func validateAttributes(r *Reporter, _ *bundle.Bundle, te *tracker.TrackedEntity) {
	for _, a := range te.Attributes {
		if a.Attribute != "" && !tracker.IsValidUID(a.Attribute) {
			r.AddError(te, E1006, a.Attribute)
		}
	}
}
