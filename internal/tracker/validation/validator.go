// Package validation checks a tracker bundle against business rules before
// anything is persisted. Rules are plain values composed with All, Each,
// Field, SkipOn and Named into one table per tracker type; findings are
// collected in a Reporter rather than returned as errors.
package validation

import (
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

// Validator checks a single value. Violations are reported through r, never
// returned. NeedsToRun lets a validator opt out of an import strategy.
type Validator[T any] interface {
	Validate(r *Reporter, b *bundle.Bundle, obj T)
	NeedsToRun(strategy tracker.ImportStrategy) bool
}

// Func adapts a function to a Validator that runs for every strategy.
type Func[T any] func(r *Reporter, b *bundle.Bundle, obj T)

func (f Func[T]) Validate(r *Reporter, b *bundle.Bundle, obj T) { f(r, b, obj) }

func (f Func[T]) NeedsToRun(tracker.ImportStrategy) bool { return true }

// Rule is Func with the type argument inferred from f.
func Rule[T any](f func(r *Reporter, b *bundle.Bundle, obj T)) Validator[T] {
	return Func[T](f)
}

// strategyOf returns the strategy obj is imported with. Values that are not
// tracker objects, like the bundle itself, use the bundle strategy.
func strategyOf[T any](b *bundle.Bundle, obj T) tracker.ImportStrategy {
	if o, ok := any(obj).(tracker.Object); ok {
		return b.Strategy(o.Key())
	}
	return b.ImportStrategy()
}

type all[T any] struct {
	validators []Validator[T]
}

// All runs every validator in declared order. A child is skipped when it
// does not need to run for the object's strategy; otherwise it runs exactly
// once, whatever the previous children reported. Only fail-fast mode stops
// the sequence early.
func All[T any](validators ...Validator[T]) Validator[T] {
	return all[T]{validators: validators}
}

func (a all[T]) Validate(r *Reporter, b *bundle.Bundle, obj T) {
	strategy := strategyOf(b, obj)
	for _, v := range a.validators {
		if r.Done() {
			return
		}
		if !v.NeedsToRun(strategy) {
			continue
		}
		v.Validate(r, b, obj)
	}
}

// NeedsToRun is true when at least one child needs to run.
func (a all[T]) NeedsToRun(strategy tracker.ImportStrategy) bool {
	for _, v := range a.validators {
		if v.NeedsToRun(strategy) {
			return true
		}
	}
	return false
}

type each[T, S any] struct {
	items     func(T) []S
	validator Validator[S]
}

// Each applies validator to every item returned by items. Tracker objects
// are skipped when validator does not need to run for their own strategy.
func Each[T, S any](items func(T) []S, validator Validator[S]) Validator[T] {
	return each[T, S]{items: items, validator: validator}
}

func (e each[T, S]) Validate(r *Reporter, b *bundle.Bundle, obj T) {
	for _, item := range e.items(obj) {
		if r.Done() {
			return
		}
		if !e.validator.NeedsToRun(strategyOf(b, item)) {
			continue
		}
		e.validator.Validate(r, b, item)
	}
}

func (e each[T, S]) NeedsToRun(tracker.ImportStrategy) bool { return true }

// Field reports code on obj when ok rejects the value returned by get. The
// value is passed to the message as its only argument.
func Field[T tracker.Object, S any](get func(T) S, ok func(S) bool, code Code) Validator[T] {
	return Func[T](func(r *Reporter, _ *bundle.Bundle, obj T) {
		v := get(obj)
		if !ok(v) {
			r.AddError(obj, code, v)
		}
	})
}

type skipOn[T any] struct {
	Validator[T]
	skip []tracker.ImportStrategy
}

// SkipOn wraps validator so it does not run for the given strategies.
func SkipOn[T any](validator Validator[T], strategies ...tracker.ImportStrategy) Validator[T] {
	return skipOn[T]{Validator: validator, skip: strategies}
}

func (s skipOn[T]) NeedsToRun(strategy tracker.ImportStrategy) bool {
	for _, skip := range s.skip {
		if skip == strategy {
			return false
		}
	}
	return s.Validator.NeedsToRun(strategy)
}

type named[T any] struct {
	Validator[T]
	name string
}

// Named labels a validator. The label is logged with the number of errors
// the validator reported.
func Named[T any](name string, validator Validator[T]) Validator[T] {
	return named[T]{Validator: validator, name: name}
}

func (n named[T]) Validate(r *Reporter, b *bundle.Bundle, obj T) {
	before := len(r.errors)
	n.Validator.Validate(r, b, obj)
	if added := len(r.errors) - before; added > 0 {
		r.logger.Debug().Str("rule", n.name).Int("errors", added).Msg("rule reported errors")
	}
}

func (n named[T]) Name() string { return n.name }
