package validation

import (
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/metrics"
	"github.com/ehr/tracker/internal/tracker"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Entry is a single finding about a tracker object.
type Entry struct {
	Code        Code         `json:"errorCode"`
	Message     string       `json:"message"`
	TrackerType tracker.Type `json:"trackerType"`
	UID         string       `json:"uid"`
	Args        []any        `json:"-"`
}

// Reporter collects the findings of one validation pass. Entries are only
// ever appended. Objects with at least one error are marked invalid.
type Reporter struct {
	failFast bool
	logger   zerolog.Logger

	errors   []Entry
	warnings []Entry
	invalid  map[tracker.Key]struct{}
}

// NewReporter returns an empty reporter. With failFast set, Done reports true
// as soon as the first error is added and composites stop early.
func NewReporter(failFast bool, logger zerolog.Logger) *Reporter {
	return &Reporter{
		failFast: failFast,
		logger:   logger,
		invalid:  make(map[tracker.Key]struct{}),
	}
}

func (r *Reporter) newEntry(obj tracker.Object, code Code, args []any) Entry {
	k := obj.Key()
	return Entry{
		Code:        code,
		Message:     code.Format(args...),
		TrackerType: k.Type,
		UID:         k.UID,
		Args:        args,
	}
}

// AddError records an error and marks obj invalid.
func (r *Reporter) AddError(obj tracker.Object, code Code, args ...any) {
	e := r.newEntry(obj, code, args)
	r.errors = append(r.errors, e)
	r.invalid[obj.Key()] = struct{}{}
	metrics.RecordFinding(string(code), string(SeverityError))
	r.logger.Debug().
		Str("code", string(code)).
		Str("tracker_type", string(e.TrackerType)).
		Str("uid", e.UID).
		Msg(e.Message)
}

// AddWarning records a warning. Warnings never make an object invalid.
func (r *Reporter) AddWarning(obj tracker.Object, code Code, args ...any) {
	e := r.newEntry(obj, code, args)
	r.warnings = append(r.warnings, e)
	metrics.RecordFinding(string(code), string(SeverityWarning))
	r.logger.Debug().
		Str("code", string(code)).
		Str("tracker_type", string(e.TrackerType)).
		Str("uid", e.UID).
		Str("severity", string(SeverityWarning)).
		Msg(e.Message)
}

func (r *Reporter) HasErrors() bool   { return len(r.errors) > 0 }
func (r *Reporter) HasWarnings() bool { return len(r.warnings) > 0 }

// HasErrorReport reports whether obj has at least one error.
func (r *Reporter) HasErrorReport(obj tracker.Object) bool {
	_, ok := r.invalid[obj.Key()]
	return ok
}

// HasCode reports whether any error or warning with code was recorded for obj.
func (r *Reporter) HasCode(obj tracker.Object, code Code) bool {
	k := obj.Key()
	for _, list := range [][]Entry{r.errors, r.warnings} {
		for _, e := range list {
			if e.Code == code && e.TrackerType == k.Type && e.UID == k.UID {
				return true
			}
		}
	}
	return false
}

// IsInvalid reports whether the object of type t with uid has an error.
func (r *Reporter) IsInvalid(t tracker.Type, uid string) bool {
	_, ok := r.invalid[tracker.Key{Type: t, UID: uid}]
	return ok
}

// InvalidCount returns the number of distinct invalid objects.
func (r *Reporter) InvalidCount() int { return len(r.invalid) }

func (r *Reporter) Errors() []Entry   { return r.errors }
func (r *Reporter) Warnings() []Entry { return r.warnings }

// FailFast reports whether the reporter was created in fail-fast mode.
func (r *Reporter) FailFast() bool { return r.failFast }

// Done reports whether validation should stop: fail-fast mode with at least
// one error recorded.
func (r *Reporter) Done() bool { return r.failFast && len(r.errors) > 0 }
