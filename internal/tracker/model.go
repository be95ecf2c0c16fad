package tracker

import "time"

// Object is implemented by every importable tracker object.
type Object interface {
	Key() Key
}

// Enrollment statuses.
const (
	EnrollmentActive    = "ACTIVE"
	EnrollmentCompleted = "COMPLETED"
	EnrollmentCancelled = "CANCELLED"
)

// Event statuses.
const (
	EventActive    = "ACTIVE"
	EventCompleted = "COMPLETED"
	EventVisited   = "VISITED"
	EventSchedule  = "SCHEDULE"
	EventOverdue   = "OVERDUE"
	EventSkipped   = "SKIPPED"
)

type Attribute struct {
	Attribute string `json:"attribute" yaml:"attribute" validate:"required"`
	Value     string `json:"value" yaml:"value"`
}

type DataValue struct {
	DataElement string `json:"dataElement" yaml:"dataElement" validate:"required"`
	Value       string `json:"value" yaml:"value"`
}

type TrackedEntity struct {
	UID               string       `json:"trackedEntity" yaml:"trackedEntity"`
	TrackedEntityType string       `json:"trackedEntityType" yaml:"trackedEntityType" validate:"required"`
	OrgUnit           string       `json:"orgUnit" yaml:"orgUnit" validate:"required"`
	Inactive          bool         `json:"inactive,omitempty" yaml:"inactive,omitempty"`
	Attributes        []Attribute  `json:"attributes,omitempty" yaml:"attributes,omitempty" validate:"dive"`
	Enrollments       []Enrollment `json:"enrollments,omitempty" yaml:"enrollments,omitempty" validate:"-"`
}

func (te *TrackedEntity) Key() Key { return Key{Type: TypeTrackedEntity, UID: te.UID} }

type Enrollment struct {
	UID           string      `json:"enrollment" yaml:"enrollment"`
	TrackedEntity string      `json:"trackedEntity" yaml:"trackedEntity" validate:"required"`
	Program       string      `json:"program" yaml:"program" validate:"required"`
	OrgUnit       string      `json:"orgUnit" yaml:"orgUnit" validate:"required"`
	Status        string      `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=ACTIVE COMPLETED CANCELLED"`
	EnrolledAt    *time.Time  `json:"enrolledAt,omitempty" yaml:"enrolledAt,omitempty"`
	OccurredAt    *time.Time  `json:"occurredAt,omitempty" yaml:"occurredAt,omitempty"`
	Attributes    []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty" validate:"dive"`
	Events        []Event     `json:"events,omitempty" yaml:"events,omitempty" validate:"-"`
}

func (en *Enrollment) Key() Key { return Key{Type: TypeEnrollment, UID: en.UID} }

// UserRef identifies a user by uid and/or username.
type UserRef struct {
	UID      string `json:"uid,omitempty" yaml:"uid,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
}

// IsEmpty reports whether neither uid nor username is set.
func (u *UserRef) IsEmpty() bool {
	return u == nil || (u.UID == "" && u.Username == "")
}

func (u *UserRef) String() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.UID
}

type Event struct {
	UID          string      `json:"event" yaml:"event"`
	Enrollment   string      `json:"enrollment,omitempty" yaml:"enrollment,omitempty"`
	Program      string      `json:"program" yaml:"program" validate:"required"`
	ProgramStage string      `json:"programStage" yaml:"programStage" validate:"required"`
	OrgUnit      string      `json:"orgUnit" yaml:"orgUnit" validate:"required"`
	Status       string      `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=ACTIVE COMPLETED VISITED SCHEDULE OVERDUE SKIPPED"`
	OccurredAt   *time.Time  `json:"occurredAt,omitempty" yaml:"occurredAt,omitempty"`
	ScheduledAt  *time.Time  `json:"scheduledAt,omitempty" yaml:"scheduledAt,omitempty"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	AssignedUser *UserRef    `json:"assignedUser,omitempty" yaml:"assignedUser,omitempty" validate:"-"`
	DataValues   []DataValue `json:"dataValues,omitempty" yaml:"dataValues,omitempty" validate:"dive"`
}

func (ev *Event) Key() Key { return Key{Type: TypeEvent, UID: ev.UID} }

// RelationshipItem points at exactly one tracker object.
type RelationshipItem struct {
	TrackedEntity string `json:"trackedEntity,omitempty" yaml:"trackedEntity,omitempty"`
	Enrollment    string `json:"enrollment,omitempty" yaml:"enrollment,omitempty"`
	Event         string `json:"event,omitempty" yaml:"event,omitempty"`
}

// Ref returns the referenced object and the number of references set.
func (i RelationshipItem) Ref() (Key, int) {
	var k Key
	n := 0
	if i.TrackedEntity != "" {
		k, n = Key{Type: TypeTrackedEntity, UID: i.TrackedEntity}, n+1
	}
	if i.Enrollment != "" {
		k, n = Key{Type: TypeEnrollment, UID: i.Enrollment}, n+1
	}
	if i.Event != "" {
		k, n = Key{Type: TypeEvent, UID: i.Event}, n+1
	}
	return k, n
}

type Relationship struct {
	UID              string           `json:"relationship" yaml:"relationship"`
	RelationshipType string           `json:"relationshipType" yaml:"relationshipType" validate:"required"`
	From             RelationshipItem `json:"from" yaml:"from"`
	To               RelationshipItem `json:"to" yaml:"to"`
}

func (r *Relationship) Key() Key { return Key{Type: TypeRelationship, UID: r.UID} }

// Payload is the request body of a tracker import. Objects may be nested
// (enrollments inside tracked entities, events inside enrollments) or flat.
type Payload struct {
	TrackedEntities []TrackedEntity `json:"trackedEntities,omitempty" yaml:"trackedEntities,omitempty"`
	Enrollments     []Enrollment    `json:"enrollments,omitempty" yaml:"enrollments,omitempty"`
	Events          []Event         `json:"events,omitempty" yaml:"events,omitempty"`
	Relationships   []Relationship  `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// Size returns the number of objects in the payload after flattening.
func (p *Payload) Size() int {
	n := len(p.TrackedEntities) + len(p.Enrollments) + len(p.Events) + len(p.Relationships)
	for _, te := range p.TrackedEntities {
		n += len(te.Enrollments)
		for _, en := range te.Enrollments {
			n += len(en.Events)
		}
	}
	for _, en := range p.Enrollments {
		n += len(en.Events)
	}
	return n
}
