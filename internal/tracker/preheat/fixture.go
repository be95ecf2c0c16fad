package preheat

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ehr/tracker/internal/tracker"
)

// Fixture is a YAML description of a snapshot, used to validate payloads
// offline without a database.
type Fixture struct {
	// User is the username of the acting user; it must be listed in Users.
	User               string                       `yaml:"user"`
	Users              []*tracker.User              `yaml:"users"`
	OrgUnits           []*tracker.OrganisationUnit  `yaml:"orgUnits"`
	Programs           []*tracker.Program           `yaml:"programs"`
	ProgramStages      []*tracker.ProgramStage      `yaml:"programStages"`
	TrackedEntityTypes []*tracker.TrackedEntityType `yaml:"trackedEntityTypes"`
	RelationshipTypes  []*tracker.RelationshipType  `yaml:"relationshipTypes"`
	Records            []*Record                    `yaml:"records"`
}

// LoadFixture decodes a YAML fixture.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode preheat fixture: %w", err)
	}
	return &f, nil
}

// Preheat builds the snapshot described by the fixture.
func (f *Fixture) Preheat() (*Preheat, error) {
	b := NewBuilder().
		AddUsers(f.Users...).
		AddOrgUnits(f.OrgUnits...).
		AddPrograms(f.Programs...).
		AddProgramStages(f.ProgramStages...).
		AddTrackedEntityTypes(f.TrackedEntityTypes...).
		AddRelationshipTypes(f.RelationshipTypes...).
		AddRecords(f.Records...)

	if f.User != "" {
		var acting *tracker.User
		for _, u := range f.Users {
			if u.Username == f.User {
				acting = u
				break
			}
		}
		if acting == nil {
			return nil, fmt.Errorf("acting user %q is not listed in fixture users", f.User)
		}
		b.WithUser(acting)
	}
	return b.Build(), nil
}
