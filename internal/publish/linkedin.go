// ABOUTME: LinkedIn publishing adapter over the ugcPosts API
// ABOUTME: Text posts with optional article link; image assets are out of scope

package publish

import (
	"context"
	"fmt"

	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

// LinkedIn publishes posts on behalf of a member or organization URN.
type LinkedIn struct {
	cfg adapterConfig
}

// NewLinkedIn creates the LinkedIn adapter.
func NewLinkedIn(opts ...AdapterOption) *LinkedIn {
	return &LinkedIn{cfg: newAdapterConfig(opts...)}
}

// Publish delivers the post to LinkedIn.
func (li *LinkedIn) Publish(ctx context.Context, post *store.Post, creds Credentials) (string, error) {
	if creds.LinkedInAuthorURN == "" || creds.LinkedInToken == "" {
		return "", retry.Permanent(fmt.Errorf("%w: linkedin", ErrMissingCredentials))
	}

	payload := map[string]any{
		"author":         creds.LinkedInAuthorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": renderCaption(post)},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := li.cfg.postJSON(ctx, li.cfg.liBase+"/ugcPosts", creds.LinkedInToken, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", retry.Permanent(fmt.Errorf("linkedin: no post id in response"))
	}
	return result.ID, nil
}
