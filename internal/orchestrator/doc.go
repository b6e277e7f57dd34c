// Package orchestrator contains the deployment transaction manager and the
// agent registry. It applies compiled resource graphs to the target runtime
// with all-or-nothing semantics: dependents are created before the primary
// resource, and any failure triggers a best-effort rollback in reverse
// creation order while the original error is surfaced to the caller.
package orchestrator
