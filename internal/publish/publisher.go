// ABOUTME: Publisher interface, credentials, and channel registry
// ABOUTME: Maps a post's target channel to the adapter that can deliver it

package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/beacon/internal/store"
)

// Channel names
const (
	ChannelFacebook  = "facebook"
	ChannelInstagram = "instagram"
	ChannelLinkedIn  = "linkedin"
)

// ErrMissingCredentials is returned when the credentials required for a
// channel are absent. Permanent; the affected post is failed immediately.
var ErrMissingCredentials = errors.New("missing publishing credentials")

// ErrUnknownChannel is returned when no adapter exists for a post's channel.
var ErrUnknownChannel = errors.New("unknown channel")

// Credentials holds per-client platform credentials, resolved by the caller
// (beacon never stores them beyond the client record).
type Credentials struct {
	FacebookPageID      string
	FacebookAccessToken string
	InstagramBusinessID string
	InstagramToken      string
	LinkedInAuthorURN   string
	LinkedInToken       string
}

// Publisher delivers one approved post to one platform.
// Implementations classify errors via the retry package: transient delivery
// failures are retried by the pipeline, permanent ones are not.
type Publisher interface {
	// Publish delivers the post and returns the platform's post id.
	Publish(ctx context.Context, post *store.Post, creds Credentials) (string, error)
}

// Registry maps channel names to publishers.
type Registry struct {
	publishers map[string]Publisher
}

// NewRegistry creates a registry with the given channel adapters.
func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

// Register adds an adapter for a channel, replacing any existing one.
func (r *Registry) Register(channel string, p Publisher) {
	r.publishers[strings.ToLower(channel)] = p
}

// For returns the adapter for a channel.
func (r *Registry) For(channel string) (Publisher, error) {
	p, ok := r.publishers[strings.ToLower(channel)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return p, nil
}

// Channels returns the registered channel names.
func (r *Registry) Channels() []string {
	out := make([]string, 0, len(r.publishers))
	for ch := range r.publishers {
		out = append(out, ch)
	}
	return out
}

// DefaultRegistry wires the three built-in platform adapters over the given
// HTTP client factory options.
func DefaultRegistry(opts ...AdapterOption) *Registry {
	r := NewRegistry()
	r.Register(ChannelFacebook, NewFacebook(opts...))
	r.Register(ChannelInstagram, NewInstagram(opts...))
	r.Register(ChannelLinkedIn, NewLinkedIn(opts...))
	return r
}
