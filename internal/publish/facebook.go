// ABOUTME: Facebook page publishing adapter over the Graph API
// ABOUTME: Uses the feed endpoint for text posts and the photos endpoint when an image is attached

package publish

import (
	"context"
	"fmt"
	"net/url"

	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

// Facebook publishes posts to a Facebook page.
type Facebook struct {
	cfg adapterConfig
}

// NewFacebook creates the Facebook adapter.
func NewFacebook(opts ...AdapterOption) *Facebook {
	return &Facebook{cfg: newAdapterConfig(opts...)}
}

// Publish delivers the post to the client's Facebook page.
func (f *Facebook) Publish(ctx context.Context, post *store.Post, creds Credentials) (string, error) {
	if creds.FacebookPageID == "" || creds.FacebookAccessToken == "" {
		return "", retry.Permanent(fmt.Errorf("%w: facebook", ErrMissingCredentials))
	}

	form := url.Values{}
	form.Set("access_token", creds.FacebookAccessToken)

	var endpoint string
	if post.ImageURL != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", f.cfg.graphBase, creds.FacebookPageID)
		form.Set("url", post.ImageURL)
		form.Set("caption", renderCaption(post))
	} else {
		endpoint = fmt.Sprintf("%s/%s/feed", f.cfg.graphBase, creds.FacebookPageID)
		form.Set("message", renderCaption(post))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := f.cfg.postForm(ctx, endpoint, form, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", retry.Permanent(fmt.Errorf("facebook: no post id in response"))
	}
	return result.ID, nil
}
