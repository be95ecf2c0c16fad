package tracker

import "strings"

// AuthorityAll grants every permission.
const AuthorityAll = "ALL"

// User is the acting user of an import or a user referenced by an event.
type User struct {
	UID         string   `json:"uid" yaml:"uid"`
	Username    string   `json:"username" yaml:"username"`
	OrgUnits    []string `json:"orgUnits,omitempty" yaml:"orgUnits,omitempty"`
	Authorities []string `json:"authorities,omitempty" yaml:"authorities,omitempty"`
}

// IsSuper reports whether the user holds the ALL authority.
func (u *User) IsSuper() bool {
	return u.HasAuthority(AuthorityAll)
}

func (u *User) HasAuthority(auth string) bool {
	for _, a := range u.Authorities {
		if a == auth {
			return true
		}
	}
	return false
}

// CanCapture reports whether ou lies within the user's capture scope.
func (u *User) CanCapture(ou *OrganisationUnit) bool {
	if u.IsSuper() {
		return true
	}
	if ou == nil {
		return false
	}
	for _, scope := range u.OrgUnits {
		if ou.IsDescendantOf(scope) {
			return true
		}
	}
	return false
}

type OrganisationUnit struct {
	UID  string `json:"uid" yaml:"uid"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Path lists ancestor uids from the root, e.g. "/root/district/facility".
	Path string `json:"path" yaml:"path"`
}

// IsDescendantOf reports whether the unit is uid or lies below it.
func (ou *OrganisationUnit) IsDescendantOf(uid string) bool {
	if ou.UID == uid {
		return true
	}
	for _, p := range strings.Split(ou.Path, "/") {
		if p == uid {
			return true
		}
	}
	return false
}

type TrackedEntityType struct {
	UID  string `json:"uid" yaml:"uid"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Program struct {
	UID               string `json:"uid" yaml:"uid"`
	Name              string `json:"name,omitempty" yaml:"name,omitempty"`
	TrackedEntityType string `json:"trackedEntityType,omitempty" yaml:"trackedEntityType,omitempty"`
	// WithoutRegistration marks event programs; they do not accept enrollments.
	WithoutRegistration bool `json:"withoutRegistration,omitempty" yaml:"withoutRegistration,omitempty"`
	OnlyEnrollOnce      bool `json:"onlyEnrollOnce,omitempty" yaml:"onlyEnrollOnce,omitempty"`
	DisplayIncidentDate bool `json:"displayIncidentDate,omitempty" yaml:"displayIncidentDate,omitempty"`
	// OrgUnits restricts where the program may be used. Empty means anywhere.
	OrgUnits []string `json:"orgUnits,omitempty" yaml:"orgUnits,omitempty"`
}

// IsRegistration reports whether the program tracks enrolled entities.
func (p *Program) IsRegistration() bool {
	return !p.WithoutRegistration
}

// HasOrgUnit reports whether the program is assigned to ou.
func (p *Program) HasOrgUnit(ou string) bool {
	if len(p.OrgUnits) == 0 {
		return true
	}
	for _, o := range p.OrgUnits {
		if o == ou {
			return true
		}
	}
	return false
}

type ProgramStage struct {
	UID                  string `json:"uid" yaml:"uid"`
	Name                 string `json:"name,omitempty" yaml:"name,omitempty"`
	Program              string `json:"program" yaml:"program"`
	Repeatable           bool   `json:"repeatable,omitempty" yaml:"repeatable,omitempty"`
	EnableUserAssignment bool   `json:"enableUserAssignment,omitempty" yaml:"enableUserAssignment,omitempty"`
}

type RelationshipType struct {
	UID  string `json:"uid" yaml:"uid"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// FromType and ToType constrain the kind of object on each side.
	FromType Type `json:"fromType" yaml:"fromType"`
	ToType   Type `json:"toType" yaml:"toType"`
}
