package preheat

import (
	"github.com/ehr/tracker/internal/tracker"
)

// Builder assembles a Preheat. It is not safe for concurrent use and must
// not be reused after Build.
type Builder struct {
	p *Preheat
}

func NewBuilder() *Builder {
	return &Builder{p: &Preheat{
		users:              make(map[string]*tracker.User),
		usersByUsername:    make(map[string]*tracker.User),
		orgUnits:           make(map[string]*tracker.OrganisationUnit),
		programs:           make(map[string]*tracker.Program),
		programStages:      make(map[string]*tracker.ProgramStage),
		teTypes:            make(map[string]*tracker.TrackedEntityType),
		relTypes:           make(map[string]*tracker.RelationshipType),
		records:            make(map[tracker.Key]*Record),
		enrollmentsByTE:    make(map[string][]string),
		eventsByEnrollment: make(map[string][]string),
	}}
}

// WithUser sets the acting user. The user is also indexed like any other.
func (b *Builder) WithUser(u *tracker.User) *Builder {
	b.p.user = u
	if u != nil {
		b.AddUsers(u)
	}
	return b
}

func (b *Builder) AddUsers(users ...*tracker.User) *Builder {
	for _, u := range users {
		b.p.users[u.UID] = u
		if u.Username != "" {
			b.p.usersByUsername[u.Username] = u
		}
	}
	return b
}

func (b *Builder) AddOrgUnits(ous ...*tracker.OrganisationUnit) *Builder {
	for _, ou := range ous {
		b.p.orgUnits[ou.UID] = ou
	}
	return b
}

func (b *Builder) AddPrograms(programs ...*tracker.Program) *Builder {
	for _, pr := range programs {
		b.p.programs[pr.UID] = pr
	}
	return b
}

func (b *Builder) AddProgramStages(stages ...*tracker.ProgramStage) *Builder {
	for _, ps := range stages {
		b.p.programStages[ps.UID] = ps
	}
	return b
}

func (b *Builder) AddTrackedEntityTypes(types ...*tracker.TrackedEntityType) *Builder {
	for _, t := range types {
		b.p.teTypes[t.UID] = t
	}
	return b
}

func (b *Builder) AddRelationshipTypes(types ...*tracker.RelationshipType) *Builder {
	for _, t := range types {
		b.p.relTypes[t.UID] = t
	}
	return b
}

// AddRecords registers persisted tracker objects.
func (b *Builder) AddRecords(records ...*Record) *Builder {
	for _, r := range records {
		k := r.Key()
		if _, dup := b.p.records[k]; dup {
			b.p.records[k] = r
			continue
		}
		b.p.records[k] = r
		switch r.Type {
		case tracker.TypeEnrollment:
			if r.TrackedEntity != "" {
				b.p.enrollmentsByTE[r.TrackedEntity] = append(b.p.enrollmentsByTE[r.TrackedEntity], r.UID)
			}
		case tracker.TypeEvent:
			if r.Enrollment != "" {
				b.p.eventsByEnrollment[r.Enrollment] = append(b.p.eventsByEnrollment[r.Enrollment], r.UID)
			}
		}
	}
	return b
}

func (b *Builder) Build() *Preheat {
	p := b.p
	b.p = nil
	return p
}
