// ABOUTME: Instagram publishing adapter over the Graph API
// ABOUTME: Two-step flow: create a media container, then publish it

package publish

import (
	"context"
	"fmt"
	"net/url"

	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

// Instagram publishes posts to an Instagram business account.
// Instagram requires an image; posts without one fail permanently.
type Instagram struct {
	cfg adapterConfig
}

// NewInstagram creates the Instagram adapter.
func NewInstagram(opts ...AdapterOption) *Instagram {
	return &Instagram{cfg: newAdapterConfig(opts...)}
}

// Publish delivers the post to the client's Instagram account.
func (ig *Instagram) Publish(ctx context.Context, post *store.Post, creds Credentials) (string, error) {
	if creds.InstagramBusinessID == "" || creds.InstagramToken == "" {
		return "", retry.Permanent(fmt.Errorf("%w: instagram", ErrMissingCredentials))
	}
	if post.ImageURL == "" {
		return "", retry.Permanent(fmt.Errorf("instagram posts require an image"))
	}

	// Step 1: create the media container
	form := url.Values{}
	form.Set("image_url", post.ImageURL)
	form.Set("caption", renderCaption(post))
	form.Set("access_token", creds.InstagramToken)

	var container struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("%s/%s/media", ig.cfg.graphBase, creds.InstagramBusinessID)
	if err := ig.cfg.postForm(ctx, endpoint, form, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", retry.Permanent(fmt.Errorf("instagram: no media container created"))
	}

	// Step 2: publish the container
	publishForm := url.Values{}
	publishForm.Set("creation_id", container.ID)
	publishForm.Set("access_token", creds.InstagramToken)

	var result struct {
		ID string `json:"id"`
	}
	endpoint = fmt.Sprintf("%s/%s/media_publish", ig.cfg.graphBase, creds.InstagramBusinessID)
	if err := ig.cfg.postForm(ctx, endpoint, publishForm, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", retry.Permanent(fmt.Errorf("instagram: no post id in response"))
	}
	return result.ID, nil
}
