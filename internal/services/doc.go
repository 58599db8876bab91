// Package services defines the shared error taxonomy for the
// canonicalization pipeline.
//
// Every component wraps failures with one of the exported sentinel errors so
// callers can classify them with errors.Is: not-found and invalid-state are
// surfaced to the caller unretried, concurrent-canonicalization is the only
// retryable class, stale-state is the store-level conditional-write miss that
// higher layers translate, and partial-canonicalization marks attempts that
// failed while holding the candidate lock and need operator attention.
package services
