// ABOUTME: Entry point for the beacon marketing assistant
// ABOUTME: Serves the webhook/API or drives pipeline stages from the command line

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/beacon/internal/chat"
	"github.com/2389/beacon/internal/config"
	"github.com/2389/beacon/internal/genai"
	"github.com/2389/beacon/internal/httpapi"
	"github.com/2389/beacon/internal/ingest"
	"github.com/2389/beacon/internal/messenger"
	"github.com/2389/beacon/internal/pipeline"
	"github.com/2389/beacon/internal/publish"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/scheduler"
	"github.com/2389/beacon/internal/session"
	"github.com/2389/beacon/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _
| |__   ___  __ _  ___ ___  _ __
| '_ \ / _ \/ _' |/ __/ _ \| '_ \
| |_) |  __/ (_| | (_| (_) | | | |
|_.__/ \___|\__,_|\___\___/|_| |_|
`

// getConfigPath returns the path to the beacon config file.
// Priority: BEACON_CONFIG env var > XDG_CONFIG_HOME/beacon/beacon.yaml > ~/.config/beacon/beacon.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BEACON_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "beacon.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "beacon", "beacon.yaml")
}

func main() {
	// Local .env files are a development convenience; missing is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: beacon <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the webhook and API server")
		fmt.Println("  workflow   Run curate, draft and publish for a client (or all)")
		fmt.Println("  curate     Generate content ideas")
		fmt.Println("  draft      Draft posts from curated ideas")
		fmt.Println("  publish    Deliver approved posts")
		fmt.Println("  submit     Record a client-submitted idea")
		fmt.Println("  ingest     Harvest ideas from client source pages")
		fmt.Println("  health     Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "workflow":
		err = runStages(ctx, "workflow", []string{pipeline.StageCurate, pipeline.StageDraft, pipeline.StagePublish})
	case "curate":
		err = runStages(ctx, "curate", []string{pipeline.StageCurate})
	case "draft":
		err = runStages(ctx, "draft", []string{pipeline.StageDraft})
	case "publish":
		err = runStages(ctx, "publish", []string{pipeline.StagePublish})
	case "submit":
		err = runSubmit(ctx)
	case "ingest":
		err = runIngest(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired service stack behind every command.
type app struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	records   *records.Gateway
	engine    *pipeline.Engine
	sched     *scheduler.Scheduler
	sessions  *session.Cache
	chat      *chat.Service
	harvester *ingest.Harvester
	creds     publish.Credentials
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rec := records.New(st)

	var temperature *float32
	if cfg.Generation.Temperature != 0 {
		t := cfg.Generation.Temperature
		temperature = &t
	}
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.Generation.BaseURL,
		Region:      cfg.Generation.Region,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		Temperature: temperature,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	gen := genai.NewService(chatModel, genai.WithTimeout(cfg.Generation.Timeout))

	creds := publish.Credentials{
		FacebookPageID:      cfg.Publishers.Facebook.PageID,
		FacebookAccessToken: cfg.Publishers.Facebook.AccessToken,
		InstagramBusinessID: cfg.Publishers.Instagram.BusinessID,
		InstagramToken:      cfg.Publishers.Instagram.AccessToken,
		LinkedInAuthorURN:   cfg.Publishers.LinkedIn.AuthorURN,
		LinkedInToken:       cfg.Publishers.LinkedIn.AccessToken,
	}

	engine := pipeline.New(rec, gen, publish.DefaultRegistry(), pipeline.StaticCredentials{Credentials: creds})
	sched := scheduler.New(engine, rec,
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithRunTimeout(cfg.Scheduler.RunTimeout),
	)

	sessions := session.NewCache(session.DefaultTTL, session.DefaultMaxSize)
	outbound := messenger.NewTwilio(cfg.Messaging.AccountSID, cfg.Messaging.AuthToken, cfg.Messaging.FromNumber)
	chatSvc := chat.New(rec, engine, sessions, sched, outbound)
	harv := ingest.New(rec, creds)

	return &app{
		cfg:       cfg,
		store:     st,
		records:   rec,
		engine:    engine,
		sched:     sched,
		sessions:  sessions,
		chat:      chatSvc,
		harvester: harv,
		creds:     creds,
	}, nil
}

func (a *app) Close() {
	a.sched.Close()
	a.sessions.Close()
	_ = a.store.Close()
}

func runServe(ctx context.Context) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to config file")
	quiet := fs.Bool("quiet", false, "suppress the startup banner")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if !*quiet {
		cyan := color.New(color.FgCyan)
		gray := color.New(color.FgHiBlack)
		green := color.New(color.FgGreen)

		cyan.Print(banner)
		gray.Printf("    version: %s\n\n", version)
		green.Print("    ▶ ")
		fmt.Printf("Config:    %s\n", *configPath)
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
		green.Print("    ▶ ")
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
		green.Print("    ▶ ")
		fmt.Printf("Model:     %s\n", cfg.Generation.Model)
		fmt.Println()
	}

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	server := httpapi.NewServer(app.chat, app.engine, app.sched, app.records, app.harvester, app.creds, httpapi.Defaults{
		NumIdeas:   cfg.Defaults.NumIdeas,
		NumPosts:   cfg.Defaults.NumPosts,
		MaxClients: cfg.Scheduler.MaxClients,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting beacon",
		"config", *configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"environment", cfg.Environment,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runStages(ctx context.Context, name string, stages []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to config file")
	clientID := fs.String("client", "", "client ID to run for")
	allClients := fs.Bool("all-clients", false, "run for every active client")
	maxClients := fs.Int("max-clients", 0, "cap on clients in an all-clients run")
	numIdeas := fs.Int("num-ideas", 0, "ideas to curate per run")
	numPosts := fs.Int("num-posts", 0, "posts to draft per run")
	quiet := fs.Bool("quiet", false, "print only the run ID and status")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	if *clientID == "" && !*allClients {
		return fmt.Errorf("--client or --all-clients is required")
	}
	if *clientID != "" && *allClients {
		return fmt.Errorf("--client and --all-clients are mutually exclusive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(setupLogger(cfg.Logging))

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := scheduler.Opts{NumIdeas: *numIdeas, NumPosts: *numPosts}
	if opts.NumIdeas <= 0 {
		opts.NumIdeas = cfg.Defaults.NumIdeas
	}
	if opts.NumPosts <= 0 {
		opts.NumPosts = cfg.Defaults.NumPosts
	}

	var run *store.Run
	if *allClients {
		limit := *maxClients
		if limit <= 0 {
			limit = cfg.Scheduler.MaxClients
		}
		run, err = app.sched.EnqueueAll(ctx, stages, opts, limit)
	} else {
		run, err = app.sched.RunNow(ctx, *clientID, stages, opts)
	}
	if err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}

	printRun(os.Stdout, run, *quiet)
	if run.Status == store.RunFailed {
		return fmt.Errorf("run %s failed", run.ID)
	}
	return nil
}

func runSubmit(ctx context.Context) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to config file")
	clientID := fs.String("client", "", "client ID to record the idea for")
	imageURL := fs.String("image-url", "", "image to attach to the idea")
	channel := fs.String("channel", "", "target channel for the eventual post")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *clientID == "" {
		return fmt.Errorf("--client is required")
	}
	if text == "" {
		return fmt.Errorf("idea text is required: beacon submit --client ID <text>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(setupLogger(cfg.Logging))

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	idea, err := app.engine.SubmitIdea(ctx, *clientID, text, *imageURL, *channel)
	if err != nil {
		return fmt.Errorf("submitting idea: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Idea recorded: %s\n", idea.ID)
	fmt.Printf("  headline: %s\n", idea.Headline)
	return nil
}

func runIngest(ctx context.Context) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to config file")
	clientID := fs.String("client", "", "client ID to harvest for")
	allClients := fs.Bool("all-clients", false, "harvest for every active client")
	maxClients := fs.Int("max-clients", 0, "cap on clients in an all-clients harvest")
	dryRun := fs.Bool("dry-run", false, "report what would be harvested without writing ideas")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	if *clientID == "" && !*allClients {
		return fmt.Errorf("--client or --all-clients is required")
	}
	if *clientID != "" && *allClients {
		return fmt.Errorf("--client and --all-clients are mutually exclusive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(setupLogger(cfg.Logging))

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	harv := app.harvester
	if *dryRun {
		harv = ingest.New(app.records, app.creds, ingest.WithDryRun(true))
	}

	green := color.New(color.FgGreen)
	if *allClients {
		limit := *maxClients
		if limit <= 0 {
			limit = cfg.Scheduler.MaxClients
		}
		report, err := harv.HarvestAll(ctx, limit)
		if err != nil {
			return fmt.Errorf("harvesting ideas: %w", err)
		}
		green.Print("✓ ")
		fmt.Printf("Clients:  %d\n", report.Clients)
		fmt.Printf("  ideas:  %d\n", report.Ideas)
		if report.Failed > 0 {
			fmt.Printf("  failed: %d\n", report.Failed)
		}
		return nil
	}

	n, err := harv.HarvestClient(ctx, *clientID)
	if err != nil {
		return fmt.Errorf("harvesting ideas: %w", err)
	}
	green.Print("✓ ")
	fmt.Printf("Ideas harvested: %d\n", n)
	return nil
}

func runHealth(ctx context.Context) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to config file")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/healthz", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// printRun renders one run record for the terminal. Outcomes are a JSON
// array for single-client runs and an object for batch parents, so the
// re-indent goes through any.
func printRun(w io.Writer, run *store.Run, quiet bool) {
	if quiet {
		fmt.Fprintf(w, "%s %s\n", run.ID, run.Status)
		return
	}

	statusColor := color.New(color.FgGreen)
	if run.Status == store.RunFailed {
		statusColor = color.New(color.FgRed)
	}

	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Stages:   %s\n", strings.Join(run.Stages, ", "))
	fmt.Fprint(w, "Status:   ")
	statusColor.Fprintln(w, run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", run.Error)
	}
	if json.Valid([]byte(run.Outcomes)) {
		var pretty any
		if err := json.Unmarshal([]byte(run.Outcomes), &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "          ", "  ")
			fmt.Fprintf(w, "Outcomes: %s\n", out)
		}
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
