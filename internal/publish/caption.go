// ABOUTME: Caption assembly shared by the channel adapters
// ABOUTME: Joins the drafted caption, hashtags, and call to action into one message

package publish

import (
	"strings"

	"github.com/2389/beacon/internal/store"
)

// renderCaption builds the delivered message body from the post's parts.
// Blank parts are skipped so a caption-only post renders without trailing
// whitespace.
func renderCaption(post *store.Post) string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(post.Caption); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(post.Hashtags); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(post.CTA); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}
