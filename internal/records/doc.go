// Package records provides the Record Gateway: the typed accessor over the
// persistent record store, encapsulating rate limiting and retry so that
// callers never talk to the store directly.
package records
