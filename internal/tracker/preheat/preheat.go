// Package preheat holds the read-only metadata snapshot a tracker import is
// validated against. Everything an import references is loaded up front in
// a handful of batch queries so that validation never touches the database.
package preheat

import (
	"github.com/ehr/tracker/internal/tracker"
)

// Record describes a tracker object that is already persisted. Only the
// fields validation needs are kept.
type Record struct {
	Type              tracker.Type `json:"type" yaml:"type"`
	UID               string       `json:"uid" yaml:"uid"`
	Deleted           bool         `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	OrgUnit           string       `json:"orgUnit,omitempty" yaml:"orgUnit,omitempty"`
	Status            string       `json:"status,omitempty" yaml:"status,omitempty"`
	TrackedEntityType string       `json:"trackedEntityType,omitempty" yaml:"trackedEntityType,omitempty"`
	TrackedEntity     string       `json:"trackedEntity,omitempty" yaml:"trackedEntity,omitempty"`
	Program           string       `json:"program,omitempty" yaml:"program,omitempty"`
	ProgramStage      string       `json:"programStage,omitempty" yaml:"programStage,omitempty"`
	Enrollment        string       `json:"enrollment,omitempty" yaml:"enrollment,omitempty"`
}

func (r *Record) Key() tracker.Key {
	return tracker.Key{Type: r.Type, UID: r.UID}
}

// Preheat is an immutable snapshot. Construct it with a Builder or a Loader;
// the zero value is an empty snapshot.
type Preheat struct {
	user *tracker.User

	users           map[string]*tracker.User
	usersByUsername map[string]*tracker.User
	orgUnits        map[string]*tracker.OrganisationUnit
	programs        map[string]*tracker.Program
	programStages   map[string]*tracker.ProgramStage
	teTypes         map[string]*tracker.TrackedEntityType
	relTypes        map[string]*tracker.RelationshipType

	records map[tracker.Key]*Record
	// enrollment uids per tracked entity, event uids per enrollment
	enrollmentsByTE    map[string][]string
	eventsByEnrollment map[string][]string
}

// User returns the acting user of the import.
func (p *Preheat) User() *tracker.User { return p.user }

// UserByUID looks up a user by uid.
func (p *Preheat) UserByUID(uid string) (*tracker.User, bool) {
	u, ok := p.users[uid]
	return u, ok
}

// UserByUsername looks up a user by username.
func (p *Preheat) UserByUsername(username string) (*tracker.User, bool) {
	u, ok := p.usersByUsername[username]
	return u, ok
}

func (p *Preheat) OrgUnit(uid string) (*tracker.OrganisationUnit, bool) {
	ou, ok := p.orgUnits[uid]
	return ou, ok
}

func (p *Preheat) Program(uid string) (*tracker.Program, bool) {
	pr, ok := p.programs[uid]
	return pr, ok
}

func (p *Preheat) ProgramStage(uid string) (*tracker.ProgramStage, bool) {
	ps, ok := p.programStages[uid]
	return ps, ok
}

func (p *Preheat) TrackedEntityType(uid string) (*tracker.TrackedEntityType, bool) {
	t, ok := p.teTypes[uid]
	return t, ok
}

func (p *Preheat) RelationshipType(uid string) (*tracker.RelationshipType, bool) {
	t, ok := p.relTypes[uid]
	return t, ok
}

// Record returns the persisted state of a tracker object, including soft
// deleted ones.
func (p *Preheat) Record(k tracker.Key) (*Record, bool) {
	r, ok := p.records[k]
	return r, ok
}

// Exists reports whether a non-deleted object with the given key is persisted.
func (p *Preheat) Exists(k tracker.Key) bool {
	r, ok := p.records[k]
	return ok && !r.Deleted
}

// IsDeleted reports whether the object is persisted but soft deleted.
func (p *Preheat) IsDeleted(k tracker.Key) bool {
	r, ok := p.records[k]
	return ok && r.Deleted
}

// ActiveEnrollments returns persisted, non-deleted, ACTIVE enrollments of a
// tracked entity in a program.
func (p *Preheat) ActiveEnrollments(trackedEntity, program string) []*Record {
	var out []*Record
	for _, uid := range p.enrollmentsByTE[trackedEntity] {
		r := p.records[tracker.Key{Type: tracker.TypeEnrollment, UID: uid}]
		if r.Deleted || r.Program != program || r.Status != tracker.EnrollmentActive {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Enrollments returns persisted, non-deleted enrollments of a tracked entity
// in a program regardless of status.
func (p *Preheat) Enrollments(trackedEntity, program string) []*Record {
	var out []*Record
	for _, uid := range p.enrollmentsByTE[trackedEntity] {
		r := p.records[tracker.Key{Type: tracker.TypeEnrollment, UID: uid}]
		if r.Deleted || r.Program != program {
			continue
		}
		out = append(out, r)
	}
	return out
}

// EventsInStage returns persisted, non-deleted events of an enrollment in a
// program stage.
func (p *Preheat) EventsInStage(enrollment, stage string) []*Record {
	var out []*Record
	for _, uid := range p.eventsByEnrollment[enrollment] {
		r := p.records[tracker.Key{Type: tracker.TypeEvent, UID: uid}]
		if r.Deleted || r.ProgramStage != stage {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Stats reports how many entries of each kind the snapshot holds.
func (p *Preheat) Stats() map[string]int {
	return map[string]int{
		"users":              len(p.users),
		"orgUnits":           len(p.orgUnits),
		"programs":           len(p.programs),
		"programStages":      len(p.programStages),
		"trackedEntityTypes": len(p.teTypes),
		"relationshipTypes":  len(p.relTypes),
		"records":            len(p.records),
	}
}
