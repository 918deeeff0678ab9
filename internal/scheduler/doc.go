// Package scheduler executes workflow runs against the pipeline engine.
//
// Every execution is tracked as a run record moving queued, running, then
// completed or failed. RunNow blocks the caller under a timeout sized for
// webhook handlers. Enqueue hands the run to a bounded worker pool and
// returns its id for later status lookup. EnqueueAll fans a run out over
// the active client roster with capped concurrency, isolating per-client
// failures on child run records under one batch parent.
package scheduler
