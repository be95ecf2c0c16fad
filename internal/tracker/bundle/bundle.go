// Package bundle defines the unit of work of a tracker import.
package bundle

import (
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/preheat"
)

// Options are the import parameters a bundle carries.
type Options struct {
	Strategy       tracker.ImportStrategy
	AtomicMode     tracker.AtomicMode
	ValidationMode tracker.ValidationMode
}

// Bundle is the set of objects imported together, along with the acting
// user, the import options and the preheat they are validated against. It
// is not modified once built.
type Bundle struct {
	opts    Options
	preheat *preheat.Preheat

	trackedEntities []*tracker.TrackedEntity
	enrollments     []*tracker.Enrollment
	events          []*tracker.Event
	relationships   []*tracker.Relationship

	index      map[tracker.Key]tracker.Object
	strategies map[tracker.Key]tracker.ImportStrategy
}

// New builds a bundle from a flattened payload. Per-object strategies are
// resolved against the preheat: with CREATE_AND_UPDATE an object becomes an
// UPDATE when it is already persisted (even soft deleted) and a CREATE
// otherwise.
func New(p *preheat.Preheat, payload *tracker.Payload, opts Options) *Bundle {
	if p == nil {
		p = &preheat.Preheat{}
	}
	if opts.Strategy == "" {
		opts.Strategy = tracker.StrategyCreateAndUpdate
	}
	if opts.AtomicMode == "" {
		opts.AtomicMode = tracker.AtomicAll
	}
	if opts.ValidationMode == "" {
		opts.ValidationMode = tracker.ValidationFull
	}

	b := &Bundle{
		opts:       opts,
		preheat:    p,
		index:      make(map[tracker.Key]tracker.Object, payload.Size()),
		strategies: make(map[tracker.Key]tracker.ImportStrategy, payload.Size()),
	}
	for i := range payload.TrackedEntities {
		te := &payload.TrackedEntities[i]
		b.trackedEntities = append(b.trackedEntities, te)
		b.register(te)
	}
	for i := range payload.Enrollments {
		en := &payload.Enrollments[i]
		b.enrollments = append(b.enrollments, en)
		b.register(en)
	}
	for i := range payload.Events {
		ev := &payload.Events[i]
		b.events = append(b.events, ev)
		b.register(ev)
	}
	for i := range payload.Relationships {
		r := &payload.Relationships[i]
		b.relationships = append(b.relationships, r)
		b.register(r)
	}
	return b
}

func (b *Bundle) register(obj tracker.Object) {
	k := obj.Key()
	// First occurrence wins; later ones are reported by validation.
	if _, dup := b.index[k]; !dup {
		b.index[k] = obj
	}
	b.strategies[k] = b.resolve(k)
}

func (b *Bundle) resolve(k tracker.Key) tracker.ImportStrategy {
	if !b.opts.Strategy.IsCreateAndUpdate() {
		return b.opts.Strategy
	}
	if _, persisted := b.preheat.Record(k); persisted {
		return tracker.StrategyUpdate
	}
	return tracker.StrategyCreate
}

func (b *Bundle) Options() Options                       { return b.opts }
func (b *Bundle) Preheat() *preheat.Preheat              { return b.preheat }
func (b *Bundle) User() *tracker.User                    { return b.preheat.User() }
func (b *Bundle) ImportStrategy() tracker.ImportStrategy { return b.opts.Strategy }

func (b *Bundle) TrackedEntities() []*tracker.TrackedEntity { return b.trackedEntities }
func (b *Bundle) Enrollments() []*tracker.Enrollment        { return b.enrollments }
func (b *Bundle) Events() []*tracker.Event                  { return b.events }
func (b *Bundle) Relationships() []*tracker.Relationship    { return b.relationships }

// Strategy returns the resolved strategy of an object in the bundle.
func (b *Bundle) Strategy(k tracker.Key) tracker.ImportStrategy {
	if s, ok := b.strategies[k]; ok {
		return s
	}
	return b.resolve(k)
}

// Find returns the object with the given key if it is part of the bundle.
func (b *Bundle) Find(k tracker.Key) (tracker.Object, bool) {
	obj, ok := b.index[k]
	return obj, ok
}

// IsRepeat reports whether obj repeats the key of an object that appears
// earlier in the payload.
func (b *Bundle) IsRepeat(obj tracker.Object) bool {
	first, ok := b.index[obj.Key()]
	return ok && first != obj
}

// Enrollment returns a bundled enrollment by uid.
func (b *Bundle) Enrollment(uid string) (*tracker.Enrollment, bool) {
	obj, ok := b.index[tracker.Key{Type: tracker.TypeEnrollment, UID: uid}]
	if !ok {
		return nil, false
	}
	en, ok := obj.(*tracker.Enrollment)
	return en, ok
}

// Resolvable reports whether a reference points at an object that is either
// in the bundle or persisted and not deleted.
func (b *Bundle) Resolvable(k tracker.Key) bool {
	if _, ok := b.index[k]; ok {
		return true
	}
	return b.preheat.Exists(k)
}

// Objects returns the bundled objects of a type in payload order.
func (b *Bundle) Objects(t tracker.Type) []tracker.Object {
	var out []tracker.Object
	switch t {
	case tracker.TypeTrackedEntity:
		for _, o := range b.trackedEntities {
			out = append(out, o)
		}
	case tracker.TypeEnrollment:
		for _, o := range b.enrollments {
			out = append(out, o)
		}
	case tracker.TypeEvent:
		for _, o := range b.events {
			out = append(out, o)
		}
	case tracker.TypeRelationship:
		for _, o := range b.relationships {
			out = append(out, o)
		}
	}
	return out
}

// Size returns the number of objects in the bundle.
func (b *Bundle) Size() int {
	return len(b.trackedEntities) + len(b.enrollments) + len(b.events) + len(b.relationships)
}

// Without returns a new bundle holding only the objects for which drop
// returns false. Strategies and preheat are carried over.
func (b *Bundle) Without(drop func(tracker.Key) bool) *Bundle {
	nb := &Bundle{
		opts:       b.opts,
		preheat:    b.preheat,
		index:      make(map[tracker.Key]tracker.Object),
		strategies: make(map[tracker.Key]tracker.ImportStrategy),
	}
	keep := func(obj tracker.Object) bool {
		k := obj.Key()
		if drop(k) {
			return false
		}
		if _, dup := nb.index[k]; !dup {
			nb.index[k] = obj
		}
		nb.strategies[k] = b.strategies[k]
		return true
	}
	for _, o := range b.trackedEntities {
		if keep(o) {
			nb.trackedEntities = append(nb.trackedEntities, o)
		}
	}
	for _, o := range b.enrollments {
		if keep(o) {
			nb.enrollments = append(nb.enrollments, o)
		}
	}
	for _, o := range b.events {
		if keep(o) {
			nb.events = append(nb.events, o)
		}
	}
	for _, o := range b.relationships {
		if keep(o) {
			nb.relationships = append(nb.relationships, o)
		}
	}
	return nb
}
