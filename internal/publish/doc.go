// Package publish delivers approved posts to their target platforms.
//
// A Registry maps channel names to Publisher adapters. The built-in
// adapters cover Facebook pages, Instagram business accounts, and
// LinkedIn, each against the platform's HTTP API. Adapters classify
// failures for the retry package: rate limits and server errors are
// transient, everything else is permanent and fails the post with a
// diagnostic.
package publish
