// ABOUTME: Idea harvesting from client reference pages and Facebook pages
// ABOUTME: Scrapes headlines and recent posts into the idea backlog

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/2389/beacon/internal/publish"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/store"
)

const (
	defaultMaxPerSource = 5
	defaultTimeout      = 15 * time.Second
	userAgent           = "beacon/1.0 (+https://github.com/2389/beacon)"
	graphBase           = "https://graph.facebook.com/v18.0"
	summaryLimit        = 500
)

// ErrClientInactive is returned when harvesting is requested for a client
// that is not active.
var ErrClientInactive = errors.New("client is not active")

// candidate is one harvested idea before persistence.
type candidate struct {
	headline string
	summary  string
	imageURL string
	source   string
}

// Harvester collects content ideas from each client's configured sources:
// reference web pages, and the client's own Facebook page when credentials
// allow. Harvested ideas land in the backlog in state new.
type Harvester struct {
	records      *records.Gateway
	creds        publish.Credentials
	httpClient   *http.Client
	maxPerSource int
	graphBase    string
	dryRun       bool
	logger       *slog.Logger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithHTTPClient overrides the HTTP client used for all source fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Harvester) { h.httpClient = c }
}

// WithMaxPerSource caps how many ideas one source can contribute per run.
func WithMaxPerSource(n int) Option {
	return func(h *Harvester) { h.maxPerSource = n }
}

// WithGraphBaseURL overrides the Facebook Graph endpoint.
func WithGraphBaseURL(base string) Option {
	return func(h *Harvester) { h.graphBase = strings.TrimRight(base, "/") }
}

// WithDryRun reports what would be harvested without writing any ideas.
func WithDryRun(dry bool) Option {
	return func(h *Harvester) { h.dryRun = dry }
}

// New creates a Harvester over the record gateway. The Facebook credentials
// are optional; without them only web sources are harvested.
func New(rec *records.Gateway, creds publish.Credentials, opts ...Option) *Harvester {
	h := &Harvester{
		records:      rec,
		creds:        creds,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		maxPerSource: defaultMaxPerSource,
		graphBase:    graphBase,
		logger:       slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Report summarizes one harvest pass over multiple clients.
type Report struct {
	Clients int `json:"clients"`
	Ideas   int `json:"ideas"`
	Failed  int `json:"failed"`
}

// HarvestAll harvests every active client, at most maxClients (<= 0 means
// all). One client's failure is counted and logged, never propagated to the
// rest of the batch.
func (h *Harvester) HarvestAll(ctx context.Context, maxClients int) (Report, error) {
	clients, err := h.records.ListActiveClients(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing clients: %w", err)
	}
	if maxClients > 0 && len(clients) > maxClients {
		clients = clients[:maxClients]
	}

	report := Report{Clients: len(clients)}
	for _, client := range clients {
		n, err := h.HarvestClient(ctx, client.ID)
		if err != nil {
			h.logger.Error("harvesting client", "client_id", client.ID, "error", err)
			report.Failed++
			continue
		}
		report.Ideas += n
	}
	return report, nil
}

// HarvestClient harvests one client's sources and returns how many ideas
// were created. A source that cannot be fetched or parsed is skipped; the
// remaining sources still run.
func (h *Harvester) HarvestClient(ctx context.Context, clientID string) (int, error) {
	client, err := h.records.GetClient(ctx, clientID)
	if err != nil {
		return 0, err
	}
	if !client.Active() {
		return 0, fmt.Errorf("%w: %s", ErrClientInactive, clientID)
	}

	var candidates []candidate
	for _, src := range client.SourceURLs {
		src = strings.TrimSpace(src)
		if !strings.HasPrefix(src, "http") {
			continue
		}
		found, err := h.scrapeSite(ctx, src)
		if err != nil {
			h.logger.Warn("scraping source", "client_id", client.ID, "url", src, "error", err)
			continue
		}
		candidates = append(candidates, found...)
	}

	if h.pageHarvestEnabled(client) {
		found, err := h.fetchPagePosts(ctx)
		if err != nil {
			h.logger.Warn("fetching page posts", "client_id", client.ID, "error", err)
		} else {
			candidates = append(candidates, found...)
		}
	}

	created := 0
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c.headline == "" || seen[c.headline] {
			continue
		}
		seen[c.headline] = true

		if h.dryRun {
			h.logger.Info("would create idea", "client_id", client.ID, "headline", c.headline, "source", c.source)
			created++
			continue
		}

		idea := &store.Idea{
			ID:        uuid.NewString(),
			ClientID:  client.ID,
			Headline:  clip(c.headline, 100),
			Summary:   clip(c.summary, summaryLimit),
			ImageURL:  c.imageURL,
			Origin:    store.OriginCurated,
			State:     store.IdeaNew,
			Priority:  "medium",
			CreatedAt: time.Now().UTC(),
		}
		if err := h.records.CreateIdea(ctx, idea); err != nil {
			return created, fmt.Errorf("storing idea: %w", err)
		}
		created++
	}

	h.logger.Info("harvested ideas", "client_id", client.ID, "sources", len(client.SourceURLs), "created", created)
	return created, nil
}

// pageHarvestEnabled reports whether the client's own Facebook page can be
// mined for idea material.
func (h *Harvester) pageHarvestEnabled(client *store.Client) bool {
	if h.creds.FacebookPageID == "" || h.creds.FacebookAccessToken == "" {
		return false
	}
	for _, ch := range client.Channels {
		if strings.EqualFold(ch, publish.ChannelFacebook) {
			return true
		}
	}
	return false
}

// scrapeSite pulls candidate ideas from one web page: the top headings with
// their following paragraph, falling back to Open Graph metadata on pages
// without headings.
func (h *Harvester) scrapeSite(ctx context.Context, pageURL string) ([]candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	var found []candidate
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		headline := strings.TrimSpace(sel.Text())
		if headline == "" {
			return true
		}
		summary := headline
		if next := sel.Next(); next.Is("p") {
			if text := strings.TrimSpace(next.Text()); text != "" {
				summary = text
			}
		}
		found = append(found, candidate{
			headline: headline,
			summary:  summary,
			source:   pageURL,
		})
		return len(found) < h.maxPerSource
	})

	if len(found) == 0 {
		if c, ok := openGraphCandidate(doc, pageURL); ok {
			found = append(found, c)
		}
	}
	return found, nil
}

// openGraphCandidate builds one candidate from a page's metadata.
func openGraphCandidate(doc *goquery.Document, pageURL string) (candidate, bool) {
	meta := func(sel string) string {
		v, _ := doc.Find(sel).First().Attr("content")
		return strings.TrimSpace(v)
	}

	title := meta(`meta[property="og:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		return candidate{}, false
	}

	summary := meta(`meta[property="og:description"]`)
	if summary == "" {
		summary = meta(`meta[name="description"]`)
	}
	if summary == "" {
		summary = title
	}

	return candidate{
		headline: title,
		summary:  summary,
		imageURL: meta(`meta[property="og:image"]`),
		source:   pageURL,
	}, true
}

// pagePost is one entry of the Graph API posts listing.
type pagePost struct {
	Message      string `json:"message"`
	FullPicture  string `json:"full_picture"`
	PermalinkURL string `json:"permalink_url"`
}

// fetchPagePosts mines the configured Facebook page's recent posts for
// idea material.
func (h *Harvester) fetchPagePosts(ctx context.Context) ([]candidate, error) {
	endpoint := fmt.Sprintf("%s/%s/posts", h.graphBase, h.creds.FacebookPageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("access_token", h.creds.FacebookAccessToken)
	q.Set("fields", "message,full_picture,permalink_url")
	q.Set("limit", fmt.Sprint(h.maxPerSource))
	req.URL.RawQuery = q.Encode()

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching page posts: status %d", resp.StatusCode)
	}

	var listing struct {
		Data []pagePost `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding page posts: %w", err)
	}

	var found []candidate
	for _, post := range listing.Data {
		if post.Message == "" {
			continue
		}
		source := post.PermalinkURL
		if source == "" {
			source = "facebook page " + h.creds.FacebookPageID
		}
		found = append(found, candidate{
			headline: clip(post.Message, 100),
			summary:  post.Message,
			imageURL: post.FullPicture,
			source:   source,
		})
		if len(found) == h.maxPerSource {
			break
		}
	}
	return found, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max-3]) + "..."
}
