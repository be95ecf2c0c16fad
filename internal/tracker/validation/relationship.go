package validation

import (
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

func relationshipRules() Validator[*tracker.Relationship] {
	return All(
		Named("unique", unique[*tracker.Relationship]()),
		Named("uid", uidFormat[*tracker.Relationship]()),
		Named("existence", existence[*tracker.Relationship](existenceCodes{
			exists:  E4015,
			missing: E4016,
			deleted: E4017,
		})),
		Named("structure", SkipOn(structure[*tracker.Relationship](E1124), tracker.StrategyDelete)),
		Named("relationshipType", SkipOn(Field(
			func(rel *tracker.Relationship) string { return rel.RelationshipType },
			func(uid string) bool { return uid == "" || tracker.IsValidUID(uid) },
			E4006,
		), tracker.StrategyDelete)),
		Named("items", SkipOn(Rule(validateRelationshipItems), tracker.StrategyDelete)),
	)
}

func validateRelationshipItems(r *Reporter, b *bundle.Bundle, rel *tracker.Relationship) {
	from, nFrom := rel.From.Ref()
	to, nTo := rel.To.Ref()
	if nFrom != 1 {
		r.AddError(rel, E4001, "from", rel.UID)
	}
	if nTo != 1 {
		r.AddError(rel, E4001, "to", rel.UID)
	}
	if nFrom != 1 || nTo != 1 {
		return
	}
	if from == to {
		r.AddError(rel, E4000, rel.UID)
	}
	for _, k := range []tracker.Key{from, to} {
		if !b.Resolvable(k) {
			r.AddError(rel, E4012, k.Type.Name(), k.UID)
		}
	}

	if rel.RelationshipType == "" {
		return
	}
	relType, ok := b.Preheat().RelationshipType(rel.RelationshipType)
	if !ok {
		if tracker.IsValidUID(rel.RelationshipType) {
			r.AddError(rel, E4006, rel.RelationshipType)
		}
		return
	}
	if relType.FromType != "" && relType.FromType != from.Type {
		r.AddError(rel, E4014, relType.UID, relType.FromType.Name(), "from", from.Type.Name())
	}
	if relType.ToType != "" && relType.ToType != to.Type {
		r.AddError(rel, E4014, relType.UID, relType.ToType.Name(), "to", to.Type.Name())
	}
}
