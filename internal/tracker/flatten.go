package tracker

// Flatten returns a copy of the payload with nested enrollments and events
// moved to the top-level lists. Children take the uid of the parent they were
// nested in, and objects without a uid get a generated one.
func Flatten(p *Payload) *Payload {
	out := &Payload{}

	appendEnrollment := func(en Enrollment) {
		if en.UID == "" {
			en.UID = GenerateUID()
		}
		events := en.Events
		en.Events = nil
		out.Enrollments = append(out.Enrollments, en)
		for _, ev := range events {
			ev.Enrollment = en.UID
			if ev.Program == "" {
				ev.Program = en.Program
			}
			if ev.UID == "" {
				ev.UID = GenerateUID()
			}
			out.Events = append(out.Events, ev)
		}
	}

	for _, te := range p.TrackedEntities {
		if te.UID == "" {
			te.UID = GenerateUID()
		}
		enrollments := te.Enrollments
		te.Enrollments = nil
		out.TrackedEntities = append(out.TrackedEntities, te)
		for _, en := range enrollments {
			en.TrackedEntity = te.UID
			appendEnrollment(en)
		}
	}
	for _, en := range p.Enrollments {
		appendEnrollment(en)
	}
	for _, ev := range p.Events {
		if ev.UID == "" {
			ev.UID = GenerateUID()
		}
		out.Events = append(out.Events, ev)
	}
	for _, r := range p.Relationships {
		if r.UID == "" {
			r.UID = GenerateUID()
		}
		out.Relationships = append(out.Relationships, r)
	}
	return out
}
