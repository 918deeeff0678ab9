// Package httpapi exposes beacon over HTTP. The WhatsApp webhook turns
// Twilio form posts into chat turns and answers with TwiML. The /api
// endpoints trigger pipeline runs (sync, async, and batch), submit ideas,
// and report run status, all in a {status, result|error} JSON envelope.
// Publish-bearing requests are refused with 422 when the credentials the
// target channels need are absent, before any run starts.
package httpapi
