package importer

import (
	"fmt"
	"strconv"

	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
	"github.com/ehr/tracker/internal/tracker/validation"
)

// Params are the options of a single import request.
type Params struct {
	Strategy       tracker.ImportStrategy `json:"importStrategy"`
	AtomicMode     tracker.AtomicMode     `json:"atomicMode"`
	ValidationMode tracker.ValidationMode `json:"validationMode"`
	DryRun         bool                   `json:"dryRun"`
}

// ParseParams reads request parameters. Empty values fall back to the
// defaults CREATE_AND_UPDATE, ALL, FULL and a real run.
func ParseParams(strategy, atomicMode, validationMode, dryRun string) (Params, error) {
	var (
		p   Params
		err error
	)
	if p.Strategy, err = tracker.ParseImportStrategy(strategy); err != nil {
		return p, err
	}
	if p.AtomicMode, err = tracker.ParseAtomicMode(atomicMode); err != nil {
		return p, err
	}
	if p.ValidationMode, err = tracker.ParseValidationMode(validationMode); err != nil {
		return p, err
	}
	if dryRun != "" {
		if p.DryRun, err = strconv.ParseBool(dryRun); err != nil {
			return p, fmt.Errorf("invalid dryRun %q", dryRun)
		}
	}
	return p, nil
}

type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Ignored int `json:"ignored"`
	Total   int `json:"total"`
}

func (s *Stats) add(o Stats) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Deleted += o.Deleted
	s.Ignored += o.Ignored
	s.Total += o.Total
}

type ValidationReport struct {
	Errors   []validation.Entry `json:"errorReports"`
	Warnings []validation.Entry `json:"warningReports"`
}

// ImportReport is returned for every import that was not aborted, whether
// or not anything was persisted.
type ImportReport struct {
	ID               string                  `json:"id"`
	Status           Status                  `json:"status"`
	ValidationReport ValidationReport        `json:"validationReport"`
	Stats            Stats                   `json:"stats"`
	TypeStats        map[tracker.Type]*Stats `json:"typeStats,omitempty"`
	Params           Params                  `json:"params"`
}

func newReport(id string, params Params, r *validation.Reporter) *ImportReport {
	report := &ImportReport{
		ID: id,
		ValidationReport: ValidationReport{
			Errors:   r.Errors(),
			Warnings: r.Warnings(),
		},
		TypeStats: make(map[tracker.Type]*Stats),
		Params:    params,
	}
	if report.ValidationReport.Errors == nil {
		report.ValidationReport.Errors = []validation.Entry{}
	}
	if report.ValidationReport.Warnings == nil {
		report.ValidationReport.Warnings = []validation.Entry{}
	}
	switch {
	case r.HasErrors():
		report.Status = StatusError
	case r.HasWarnings():
		report.Status = StatusWarning
	default:
		report.Status = StatusOK
	}
	return report
}

func (r *ImportReport) typeStats(t tracker.Type) *Stats {
	s, ok := r.TypeStats[t]
	if !ok {
		s = &Stats{}
		r.TypeStats[t] = s
	}
	return s
}

// ignore counts every object of b as ignored.
func (r *ImportReport) ignore(b *bundle.Bundle) {
	for _, t := range tracker.Types {
		if n := len(b.Objects(t)); n > 0 {
			r.typeStats(t).Ignored += n
		}
	}
}

// finish fills in totals.
func (r *ImportReport) finish() {
	r.Stats = Stats{}
	for _, s := range r.TypeStats {
		s.Total = s.Created + s.Updated + s.Deleted + s.Ignored
		r.Stats.add(*s)
	}
}
