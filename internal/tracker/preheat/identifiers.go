package preheat

import (
	"sort"

	"github.com/ehr/tracker/internal/tracker"
)

// Identifiers are the references collected from a flattened payload.
type Identifiers struct {
	Users              []string
	Usernames          []string
	OrgUnits           []string
	Programs           []string
	ProgramStages      []string
	TrackedEntityTypes []string
	RelationshipTypes  []string
	TrackedEntities    []string
	Enrollments        []string
	Events             []string
	Relationships      []string
}

type uidSet map[string]struct{}

func (s uidSet) add(uid string) {
	if uid != "" {
		s[uid] = struct{}{}
	}
}

func (s uidSet) sorted() []string {
	out := make([]string, 0, len(s))
	for uid := range s {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// Collect gathers every uid the payload references. The payload is expected
// to be flattened.
func Collect(p *tracker.Payload) Identifiers {
	var (
		users, usernames, ous, programs, stages = uidSet{}, uidSet{}, uidSet{}, uidSet{}, uidSet{}
		teTypes, relTypes                       = uidSet{}, uidSet{}
		tes, enrollments, events, rels          = uidSet{}, uidSet{}, uidSet{}, uidSet{}
	)

	for _, te := range p.TrackedEntities {
		tes.add(te.UID)
		teTypes.add(te.TrackedEntityType)
		ous.add(te.OrgUnit)
	}
	for _, en := range p.Enrollments {
		enrollments.add(en.UID)
		tes.add(en.TrackedEntity)
		programs.add(en.Program)
		ous.add(en.OrgUnit)
	}
	for _, ev := range p.Events {
		events.add(ev.UID)
		enrollments.add(ev.Enrollment)
		programs.add(ev.Program)
		stages.add(ev.ProgramStage)
		ous.add(ev.OrgUnit)
		if !ev.AssignedUser.IsEmpty() {
			users.add(ev.AssignedUser.UID)
			usernames.add(ev.AssignedUser.Username)
		}
	}
	for _, r := range p.Relationships {
		rels.add(r.UID)
		relTypes.add(r.RelationshipType)
		for _, item := range []tracker.RelationshipItem{r.From, r.To} {
			tes.add(item.TrackedEntity)
			enrollments.add(item.Enrollment)
			events.add(item.Event)
		}
	}

	return Identifiers{
		Users:              users.sorted(),
		Usernames:          usernames.sorted(),
		OrgUnits:           ous.sorted(),
		Programs:           programs.sorted(),
		ProgramStages:      stages.sorted(),
		TrackedEntityTypes: teTypes.sorted(),
		RelationshipTypes:  relTypes.sorted(),
		TrackedEntities:    tes.sorted(),
		Enrollments:        enrollments.sorted(),
		Events:             events.sorted(),
		Relationships:      rels.sorted(),
	}
}
