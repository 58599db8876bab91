package logging

// Standardized attribute keys shared across components so log lines stay
// greppable regardless of which package emitted them.
const (
	FieldComponent = "component"

	FieldMatchID = "match_id"

	FieldCandidateID = "candidate_id"

	FieldWorkID = "work_id"

	FieldAttemptID = "attempt_id"

	FieldStep = "step"

	FieldEventType = "event_type"

	FieldErrorHint = "error_hint"
)
