// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides client/idea/post/run persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			channels TEXT NOT NULL DEFAULT '',
			brand_voice TEXT NOT NULL DEFAULT '',
			source_urls TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			approval_mode TEXT NOT NULL DEFAULT 'manager',
			cadence TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,

			CHECK (status IN ('active', 'inactive')),
			CHECK (approval_mode IN ('manager', 'auto'))
		);

		CREATE INDEX IF NOT EXISTS idx_clients_phone ON clients(phone);
		CREATE INDEX IF NOT EXISTS idx_clients_status ON clients(status);

		CREATE TABLE IF NOT EXISTS ideas (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			headline TEXT NOT NULL,
			summary TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			origin TEXT NOT NULL,
			state TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (client_id) REFERENCES clients(id),

			CHECK (origin IN ('curated', 'client-submitted')),
			CHECK (state IN ('new', 'drafted', 'discarded'))
		);

		CREATE INDEX IF NOT EXISTS idx_ideas_client_state
			ON ideas(client_id, state, created_at);

		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			idea_id TEXT NOT NULL,
			caption TEXT NOT NULL,
			hashtags TEXT NOT NULL DEFAULT '',
			cta TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			diagnostic TEXT NOT NULL DEFAULT '',
			platform_post_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (client_id) REFERENCES clients(id),
			FOREIGN KEY (idea_id) REFERENCES ideas(id),

			CHECK (state IN ('pending', 'approved', 'rejected', 'published', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_posts_client_state
			ON posts(client_id, state, created_at);

		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			stages TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			outcomes TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			finished_at DATETIME,

			CHECK (mode IN ('sync', 'async')),
			CHECK (status IN ('queued', 'running', 'completed', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_runs_client ON runs(client_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Clients ---

// UpsertClient inserts or replaces a client record. Exposed for seeding
// and tests; production client records are managed externally.
func (s *SQLiteStore) UpsertClient(ctx context.Context, c *Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO clients
			(id, name, phone, status, channels, brand_voice, source_urls, instructions, approval_mode, cadence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Phone, c.Status, strings.Join(c.Channels, ","),
		c.BrandVoice, strings.Join(c.SourceURLs, ","),
		c.Instructions, c.ApprovalMode, c.Cadence, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID
func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, status, channels, brand_voice, source_urls, instructions, approval_mode, cadence, created_at
		FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

// GetClientByPhone retrieves a client by its messaging channel handle
func (s *SQLiteStore) GetClientByPhone(ctx context.Context, phone string) (*Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, status, channels, brand_voice, source_urls, instructions, approval_mode, cadence, created_at
		FROM clients WHERE phone = ?`, phone)
	return scanClient(row)
}

// ListActiveClients returns all clients with status 'active', oldest first
func (s *SQLiteStore) ListActiveClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, status, channels, brand_voice, source_urls, instructions, approval_mode, cadence, created_at
		FROM clients WHERE status = ? ORDER BY created_at`, ClientActive)
	if err != nil {
		return nil, fmt.Errorf("listing active clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*Client, error) {
	var c Client
	var channels, sourceURLs string
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Status, &channels,
		&c.BrandVoice, &sourceURLs, &c.Instructions, &c.ApprovalMode, &c.Cadence, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning client: %w", err)
	}
	if channels != "" {
		c.Channels = strings.Split(channels, ",")
	}
	if sourceURLs != "" {
		c.SourceURLs = strings.Split(sourceURLs, ",")
	}
	return &c, nil
}

// --- Ideas ---

// CreateIdea stores a new idea
func (s *SQLiteStore) CreateIdea(ctx context.Context, idea *Idea) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ideas (id, client_id, headline, summary, image_url, channel, origin, state, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.ID, idea.ClientID, idea.Headline, idea.Summary, idea.ImageURL,
		idea.Channel, idea.Origin, idea.State, idea.Priority, idea.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating idea: %w", err)
	}
	return nil
}

// GetIdea retrieves an idea by ID
func (s *SQLiteStore) GetIdea(ctx context.Context, id string) (*Idea, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, headline, summary, image_url, channel, origin, state, priority, created_at
		FROM ideas WHERE id = ?`, id)
	return scanIdea(row)
}

// ListIdeasByState returns the client's ideas in the given state, oldest first
func (s *SQLiteStore) ListIdeasByState(ctx context.Context, clientID, state string, limit int) ([]*Idea, error) {
	query := `
		SELECT id, client_id, headline, summary, image_url, channel, origin, state, priority, created_at
		FROM ideas WHERE client_id = ? AND state = ? ORDER BY created_at, id`
	args := []any{clientID, state}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ideas: %w", err)
	}
	defer rows.Close()

	var ideas []*Idea
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// TransitionIdea moves an idea between states with an optimistic state check
func (s *SQLiteStore) TransitionIdea(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ideas SET state = ? WHERE id = ? AND state = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("transitioning idea: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transitioning idea: %w", err)
	}
	if n == 0 {
		// Distinguish missing from stale
		if _, err := s.GetIdea(ctx, id); err != nil {
			return err
		}
		return ErrStaleState
	}
	return nil
}

func scanIdea(row rowScanner) (*Idea, error) {
	var idea Idea
	err := row.Scan(&idea.ID, &idea.ClientID, &idea.Headline, &idea.Summary,
		&idea.ImageURL, &idea.Channel, &idea.Origin, &idea.State, &idea.Priority, &idea.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning idea: %w", err)
	}
	return &idea, nil
}

// --- Posts ---

// CreatePost stores a new post
func (s *SQLiteStore) CreatePost(ctx context.Context, post *Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, client_id, idea_id, caption, hashtags, cta, channel, image_url,
			state, diagnostic, platform_post_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.ClientID, post.IdeaID, post.Caption, post.Hashtags, post.CTA,
		post.Channel, post.ImageURL, post.State, post.Diagnostic, post.PlatformPostID,
		post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating post: %w", err)
	}
	return nil
}

// GetPost retrieves a post by ID
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, idea_id, caption, hashtags, cta, channel, image_url,
			state, diagnostic, platform_post_id, created_at, updated_at
		FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// ListPostsByState returns the client's posts in the given state, oldest first
func (s *SQLiteStore) ListPostsByState(ctx context.Context, clientID, state string, limit int) ([]*Post, error) {
	query := `
		SELECT id, client_id, idea_id, caption, hashtags, cta, channel, image_url,
			state, diagnostic, platform_post_id, created_at, updated_at
		FROM posts WHERE client_id = ? AND state = ? ORDER BY created_at, id`
	args := []any{clientID, state}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// TransitionPost moves a post between states with an optimistic state check
func (s *SQLiteStore) TransitionPost(ctx context.Context, id, from, to string, update *PostUpdate) error {
	diagnostic, platformID := "", ""
	if update != nil {
		diagnostic = update.Diagnostic
		platformID = update.PlatformPostID
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET state = ?, diagnostic = ?, platform_post_id = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		to, diagnostic, platformID, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("transitioning post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transitioning post: %w", err)
	}
	if n == 0 {
		if _, err := s.GetPost(ctx, id); err != nil {
			return err
		}
		return ErrStaleState
	}
	return nil
}

// UpdatePostContent updates a post's body fields without touching state
func (s *SQLiteStore) UpdatePostContent(ctx context.Context, id string, update *ContentUpdate) error {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if update != nil {
		if update.Caption != nil {
			post.Caption = *update.Caption
		}
		if update.Hashtags != nil {
			post.Hashtags = *update.Hashtags
		}
		if update.CTA != nil {
			post.CTA = *update.CTA
		}
		if update.ImageURL != nil {
			post.ImageURL = *update.ImageURL
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE posts SET caption = ?, hashtags = ?, cta = ?, image_url = ?, updated_at = ? WHERE id = ?`,
		post.Caption, post.Hashtags, post.CTA, post.ImageURL, time.Now(), id)
	if err != nil {
		return fmt.Errorf("updating post content: %w", err)
	}
	return nil
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.ClientID, &p.IdeaID, &p.Caption, &p.Hashtags, &p.CTA,
		&p.Channel, &p.ImageURL, &p.State, &p.Diagnostic, &p.PlatformPostID,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning post: %w", err)
	}
	return &p, nil
}

// --- Runs ---

// CreateRun stores a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, client_id, parent_id, stages, mode, status, outcomes, error,
			created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ClientID, run.ParentID, strings.Join(run.Stages, ","),
		run.Mode, run.Status, run.Outcomes, run.Error,
		run.CreatedAt, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, parent_id, stages, mode, status, outcomes, error,
			created_at, started_at, finished_at
		FROM runs WHERE id = ?`, id)

	var r Run
	var stages string
	err := row.Scan(&r.ID, &r.ClientID, &r.ParentID, &stages, &r.Mode, &r.Status,
		&r.Outcomes, &r.Error, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if stages != "" {
		r.Stages = strings.Split(stages, ",")
	}
	return &r, nil
}

// UpdateRunStatus advances a run's status and records outcomes/error.
// Timestamps follow the status: running sets started_at, terminal statuses
// set finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string, outcomes, errText string) error {
	var timestampCol string
	switch status {
	case RunRunning:
		timestampCol = "started_at"
	case RunCompleted, RunFailed:
		timestampCol = "finished_at"
	default:
		timestampCol = "created_at" // no-op overwrite with the same semantics
	}

	query := fmt.Sprintf(
		`UPDATE runs SET status = ?, outcomes = ?, error = ?, %s = COALESCE(%s, ?) WHERE id = ?`,
		timestampCol, timestampCol)
	res, err := s.db.ExecContext(ctx, query, status, outcomes, errText, time.Now(), id)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
