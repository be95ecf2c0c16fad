package validation

import (
	"time"

	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

// now is replaced in tests.
var now = time.Now

// existenceCodes are the codes reported when an object's persisted state
// does not fit its strategy.
type existenceCodes struct {
	exists  Code
	missing Code
	deleted Code
}

// existence checks the object against the preheat: soft deleted objects can
// never be imported again, CREATE needs a new uid and UPDATE and DELETE need
// a persisted one.
func existence[T tracker.Object](codes existenceCodes) Validator[T] {
	return Func[T](func(r *Reporter, b *bundle.Bundle, obj T) {
		k := obj.Key()
		rec, found := b.Preheat().Record(k)
		switch {
		case found && rec.Deleted:
			r.AddError(obj, codes.deleted, k.UID)
		case found && b.Strategy(k).IsCreate():
			r.AddError(obj, codes.exists, k.UID)
		case !found && !b.Strategy(k).IsCreate():
			r.AddError(obj, codes.missing, k.UID)
		}
	})
}

// unique reports every occurrence of a uid after the first. The reporter
// marks the key invalid, so no copy of it is persisted.
func unique[T tracker.Object]() Validator[T] {
	return Func[T](func(r *Reporter, b *bundle.Bundle, obj T) {
		if b.IsRepeat(obj) {
			k := obj.Key()
			r.AddError(obj, E1125, k.Type.Name(), k.UID)
		}
	})
}

func uidFormat[T tracker.Object]() Validator[T] {
	return Func[T](func(r *Reporter, _ *bundle.Bundle, obj T) {
		k := obj.Key()
		if !tracker.IsValidUID(k.UID) {
			r.AddError(obj, E1048, k.Type.Name(), k.UID)
		}
	})
}

// orgUnitAccess resolves the object's organisation unit and checks that the
// acting user may capture data in it. DELETE and UPDATE fall back to the
// persisted organisation unit when the payload omits it.
func orgUnitAccess[T tracker.Object](orgUnit func(T) string, notFound Code) Validator[T] {
	return Func[T](func(r *Reporter, b *bundle.Bundle, obj T) {
		uid := orgUnit(obj)
		if uid == "" {
			if rec, ok := b.Preheat().Record(obj.Key()); ok {
				uid = rec.OrgUnit
			}
		}
		if uid == "" {
			return
		}
		ou, ok := b.Preheat().OrgUnit(uid)
		if !ok {
			r.AddError(obj, notFound, uid)
			return
		}
		user := b.User()
		if user == nil {
			r.AddError(obj, E1000, "", uid)
			return
		}
		if !user.CanCapture(ou) {
			r.AddError(obj, E1000, user.Username, uid)
		}
	})
}

// trackedEntityType returns the type of a tracked entity that is either in
// the bundle or persisted.
func trackedEntityType(b *bundle.Bundle, uid string) string {
	k := tracker.Key{Type: tracker.TypeTrackedEntity, UID: uid}
	if obj, ok := b.Find(k); ok {
		if te, ok := obj.(*tracker.TrackedEntity); ok {
			return te.TrackedEntityType
		}
	}
	if rec, ok := b.Preheat().Record(k); ok {
		return rec.TrackedEntityType
	}
	return ""
}

// enrollmentProgram returns the program of a bundled or persisted enrollment.
func enrollmentProgram(b *bundle.Bundle, uid string) string {
	if en, ok := b.Enrollment(uid); ok {
		return en.Program
	}
	if rec, ok := b.Preheat().Record(tracker.Key{Type: tracker.TypeEnrollment, UID: uid}); ok {
		return rec.Program
	}
	return ""
}
