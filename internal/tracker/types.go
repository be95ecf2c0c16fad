package tracker

import (
	"fmt"
	"strings"
)

// Type identifies the kind of tracker object in an import.
type Type string

const (
	TypeTrackedEntity Type = "TRACKED_ENTITY"
	TypeEnrollment    Type = "ENROLLMENT"
	TypeEvent         Type = "EVENT"
	TypeRelationship  Type = "RELATIONSHIP"
)

// Types lists tracker types in the order they are validated and persisted.
// Parents come before the objects that reference them.
var Types = []Type{TypeTrackedEntity, TypeEnrollment, TypeEvent, TypeRelationship}

// Name returns a human readable name used in validation messages.
func (t Type) Name() string {
	switch t {
	case TypeTrackedEntity:
		return "TrackedEntity"
	case TypeEnrollment:
		return "Enrollment"
	case TypeEvent:
		return "Event"
	case TypeRelationship:
		return "Relationship"
	}
	return string(t)
}

// Key addresses a single tracker object.
type Key struct {
	Type Type   `json:"trackerType"`
	UID  string `json:"uid"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Type.Name(), k.UID)
}

// ImportStrategy controls whether objects are created, updated or deleted.
type ImportStrategy string

const (
	StrategyCreate          ImportStrategy = "CREATE"
	StrategyUpdate          ImportStrategy = "UPDATE"
	StrategyCreateAndUpdate ImportStrategy = "CREATE_AND_UPDATE"
	StrategyDelete          ImportStrategy = "DELETE"
)

func (s ImportStrategy) IsCreate() bool { return s == StrategyCreate }
func (s ImportStrategy) IsUpdate() bool { return s == StrategyUpdate }
func (s ImportStrategy) IsDelete() bool { return s == StrategyDelete }

// IsCreateAndUpdate reports whether the strategy is resolved per object.
func (s ImportStrategy) IsCreateAndUpdate() bool { return s == StrategyCreateAndUpdate }

// ParseImportStrategy parses a strategy name, defaulting to CREATE_AND_UPDATE.
func ParseImportStrategy(s string) (ImportStrategy, error) {
	switch ImportStrategy(strings.ToUpper(strings.TrimSpace(s))) {
	case "", StrategyCreateAndUpdate:
		return StrategyCreateAndUpdate, nil
	case StrategyCreate:
		return StrategyCreate, nil
	case StrategyUpdate:
		return StrategyUpdate, nil
	case StrategyDelete:
		return StrategyDelete, nil
	}
	return "", fmt.Errorf("invalid import strategy: %q", s)
}

// AtomicMode controls what gets persisted when some objects are invalid.
type AtomicMode string

const (
	// AtomicAll persists nothing if any object has an error.
	AtomicAll AtomicMode = "ALL"
	// AtomicObject persists every object that passed validation.
	AtomicObject AtomicMode = "OBJECT"
)

// ParseAtomicMode parses an atomic mode, defaulting to ALL.
func ParseAtomicMode(s string) (AtomicMode, error) {
	switch AtomicMode(strings.ToUpper(strings.TrimSpace(s))) {
	case "", AtomicAll:
		return AtomicAll, nil
	case AtomicObject:
		return AtomicObject, nil
	}
	return "", fmt.Errorf("invalid atomic mode: %q", s)
}

// ValidationMode controls how much validation runs.
type ValidationMode string

const (
	ValidationFull     ValidationMode = "FULL"
	ValidationFailFast ValidationMode = "FAIL_FAST"
	ValidationSkip     ValidationMode = "SKIP"
)

// ParseValidationMode parses a validation mode, defaulting to FULL.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch ValidationMode(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ValidationFull:
		return ValidationFull, nil
	case ValidationFailFast:
		return ValidationFailFast, nil
	case ValidationSkip:
		return ValidationSkip, nil
	}
	return "", fmt.Errorf("invalid validation mode: %q", s)
}
