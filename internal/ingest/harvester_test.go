// ABOUTME: Tests for the idea harvester
// ABOUTME: Covers web scraping, metadata fallback, page mining, and batch isolation

package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/beacon/internal/publish"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/retry"
	"github.com/2389/beacon/internal/store"
)

var fastPolicy = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

const newsPage = `<html><body>
<h1>Autumn menu launches next week</h1>
<p>Pumpkin everything, plus two new sourdough variants.</p>
<h2>We won best bakery 2026</h2>
<p>The city guide gave us first place.</p>
<h2>Autumn menu launches next week</h2>
<h3></h3>
</body></html>`

const metaOnlyPage = `<html><head>
<title>Corner Bakery</title>
<meta property="og:title" content="Our story">
<meta property="og:description" content="Baking since 1998.">
<meta property="og:image" content="https://images.example.com/shop.jpg">
</head><body><div>no headings here</div></body></html>`

type env struct {
	mock *store.MockStore
	rec  *records.Gateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mock := store.NewMockStore()
	rec := records.New(mock, records.WithPolicy(fastPolicy), records.WithRateLimit(1000, 1000))
	return &env{mock: mock, rec: rec}
}

func (e *env) seedClient(t *testing.T, id string, mutate ...func(*store.Client)) {
	t.Helper()
	c := &store.Client{
		ID:        id,
		Name:      "Corner Bakery",
		Phone:     "+1555" + id,
		Status:    store.ClientActive,
		Channels:  []string{"facebook"},
		CreatedAt: time.Now().UTC(),
	}
	for _, m := range mutate {
		m(c)
	}
	require.NoError(t, e.mock.UpsertClient(context.Background(), c))
	time.Sleep(time.Millisecond)
}

func (e *env) ideas(t *testing.T, clientID string) []*store.Idea {
	t.Helper()
	ideas, err := e.mock.ListIdeasByState(context.Background(), clientID, store.IdeaNew, 0)
	require.NoError(t, err)
	return ideas
}

func TestHarvestClientScrapesHeadings(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, newsPage)
	}))
	defer srv.Close()

	env.seedClient(t, "client-1", func(c *store.Client) { c.SourceURLs = []string{srv.URL} })

	h := New(env.rec, publish.Credentials{})
	n, err := h.HarvestClient(context.Background(), "client-1")
	require.NoError(t, err)
	// Duplicate and empty headlines are dropped.
	assert.Equal(t, 2, n)

	ideas := env.ideas(t, "client-1")
	require.Len(t, ideas, 2)
	assert.Equal(t, "Autumn menu launches next week", ideas[0].Headline)
	assert.Equal(t, "Pumpkin everything, plus two new sourdough variants.", ideas[0].Summary)
	assert.Equal(t, store.OriginCurated, ideas[0].Origin)
	assert.Equal(t, store.IdeaNew, ideas[0].State)
}

func TestHarvestClientMetadataFallback(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, metaOnlyPage)
	}))
	defer srv.Close()

	env.seedClient(t, "client-1", func(c *store.Client) { c.SourceURLs = []string{srv.URL} })

	h := New(env.rec, publish.Credentials{})
	n, err := h.HarvestClient(context.Background(), "client-1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ideas := env.ideas(t, "client-1")
	assert.Equal(t, "Our story", ideas[0].Headline)
	assert.Equal(t, "Baking since 1998.", ideas[0].Summary)
	assert.Equal(t, "https://images.example.com/shop.jpg", ideas[0].ImageURL)
}

func TestHarvestClientMinesPagePosts(t *testing.T) {
	env := newEnv(t)
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page-9/posts", r.URL.Path)
		assert.Equal(t, "fb-tok", r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{"data":[
			{"message":"Customers loved the rye special","full_picture":"https://images.example.com/rye.jpg","permalink_url":"https://fb.example.com/p/1"},
			{"message":""},
			{"message":"Holiday hours announcement"}
		]}`)
	}))
	defer graph.Close()

	env.seedClient(t, "client-1")

	h := New(env.rec,
		publish.Credentials{FacebookPageID: "page-9", FacebookAccessToken: "fb-tok"},
		WithGraphBaseURL(graph.URL))
	n, err := h.HarvestClient(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ideas := env.ideas(t, "client-1")
	require.Len(t, ideas, 2)
	assert.Equal(t, "Customers loved the rye special", ideas[0].Headline)
	assert.Equal(t, "https://images.example.com/rye.jpg", ideas[0].ImageURL)
}

func TestHarvestClientSkipsPageWithoutFacebookChannel(t *testing.T) {
	env := newEnv(t)
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("graph endpoint should not be called")
	}))
	defer graph.Close()

	env.seedClient(t, "client-1", func(c *store.Client) { c.Channels = []string{"linkedin"} })

	h := New(env.rec,
		publish.Credentials{FacebookPageID: "page-9", FacebookAccessToken: "fb-tok"},
		WithGraphBaseURL(graph.URL))
	n, err := h.HarvestClient(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHarvestClientMaxPerSource(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 1; i <= 10; i++ {
			fmt.Fprintf(w, "<h2>Headline %d</h2>", i)
		}
	}))
	defer srv.Close()

	env.seedClient(t, "client-1", func(c *store.Client) { c.SourceURLs = []string{srv.URL} })

	h := New(env.rec, publish.Credentials{}, WithMaxPerSource(3))
	n, err := h.HarvestClient(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestHarvestClientBadSourceSkipped(t *testing.T) {
	env := newEnv(t)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<h1>Still works</h1>")
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	env.seedClient(t, "client-1", func(c *store.Client) {
		c.SourceURLs = []string{bad.URL, good.URL, "not a url"}
	})

	h := New(env.rec, publish.Credentials{})
	n, err := h.HarvestClient(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Still works", env.ideas(t, "client-1")[0].Headline)
}

func TestHarvestClientInactive(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t, "client-1", func(c *store.Client) { c.Status = store.ClientInactive })

	h := New(env.rec, publish.Credentials{})
	_, err := h.HarvestClient(context.Background(), "client-1")
	assert.ErrorIs(t, err, ErrClientInactive)
}

func TestHarvestClientDryRun(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<h1>Would be an idea</h1>")
	}))
	defer srv.Close()

	env.seedClient(t, "client-1", func(c *store.Client) { c.SourceURLs = []string{srv.URL} })

	h := New(env.rec, publish.Credentials{}, WithDryRun(true))
	n, err := h.HarvestClient(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, env.ideas(t, "client-1"))
}

func TestHarvestAllIsolatesFailures(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<h1>Fresh idea</h1>")
	}))
	defer srv.Close()

	env.seedClient(t, "client-1", func(c *store.Client) { c.SourceURLs = []string{srv.URL} })
	env.seedClient(t, "client-2", func(c *store.Client) { c.SourceURLs = []string{srv.URL} })

	// client-1's record disappears between listing and harvesting.
	require.NoError(t, env.mock.DeleteClient(context.Background(), "client-1"))

	h := New(env.rec, publish.Credentials{})
	report, err := h.HarvestAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Clients)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Ideas)
	assert.Len(t, env.ideas(t, "client-2"), 1)
}

func TestHarvestAllCapsClients(t *testing.T) {
	env := newEnv(t)
	for i := 1; i <= 4; i++ {
		env.seedClient(t, fmt.Sprintf("client-%d", i))
	}

	h := New(env.rec, publish.Credentials{})
	report, err := h.HarvestAll(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Clients)
}
