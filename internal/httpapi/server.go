// ABOUTME: HTTP boundary: the WhatsApp webhook and the operations API
// ABOUTME: chi router, JSON envelopes, preflight credential checks before publish runs

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/beacon/internal/chat"
	"github.com/2389/beacon/internal/ingest"
	"github.com/2389/beacon/internal/messenger"
	"github.com/2389/beacon/internal/pipeline"
	"github.com/2389/beacon/internal/publish"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/scheduler"
	"github.com/2389/beacon/internal/store"
)

// Server wires the webhook and API handlers to the domain services.
type Server struct {
	chat      *chat.Service
	engine    *pipeline.Engine
	sched     *scheduler.Scheduler
	records   *records.Gateway
	harvester *ingest.Harvester
	creds     publish.Credentials
	defaults  Defaults
	logger    *slog.Logger
}

// Defaults carries per-run stage defaults from configuration.
type Defaults struct {
	NumIdeas   int
	NumPosts   int
	MaxClients int
}

// NewServer creates the HTTP boundary.
func NewServer(chatSvc *chat.Service, engine *pipeline.Engine, sched *scheduler.Scheduler, rec *records.Gateway, harv *ingest.Harvester, creds publish.Credentials, defaults Defaults) *Server {
	if defaults.NumIdeas <= 0 {
		defaults.NumIdeas = 3
	}
	if defaults.NumPosts <= 0 {
		defaults.NumPosts = 3
	}
	return &Server{
		chat:      chatSvc,
		engine:    engine,
		sched:     sched,
		records:   rec,
		harvester: harv,
		creds:     creds,
		defaults:  defaults,
		logger:    slog.Default().With("component", "httpapi"),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook/whatsapp", s.handleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/workflow", s.handleWorkflow(false))
		r.Post("/workflow/async", s.handleWorkflow(true))
		r.Post("/curate", s.handleStage(pipeline.StageCurate))
		r.Post("/draft", s.handleStage(pipeline.StageDraft))
		r.Post("/publish", s.handlePublish)
		r.Post("/ideas", s.handleSubmitIdea)
		r.Post("/ingest", s.handleIngest)
		r.Get("/runs/{id}", s.handleRunStatus)
	})
	return r
}

// --- envelopes ---

type envelope struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func writeResult(w http.ResponseWriter, code int, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Status: "ok", Result: result})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Status: "error", Error: msg})
}

// runView is the JSON shape of a run record.
type runView struct {
	ID       string          `json:"id"`
	ClientID string          `json:"client_id,omitempty"`
	ParentID string          `json:"parent_id,omitempty"`
	Stages   []string        `json:"stages,omitempty"`
	Mode     string          `json:"mode"`
	Status   string          `json:"status"`
	Outcomes json.RawMessage `json:"outcomes,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func viewRun(run *store.Run) runView {
	v := runView{
		ID:       run.ID,
		ClientID: run.ClientID,
		ParentID: run.ParentID,
		Stages:   run.Stages,
		Mode:     run.Mode,
		Status:   run.Status,
		Error:    run.Error,
	}
	if json.Valid([]byte(run.Outcomes)) {
		v.Outcomes = json.RawMessage(run.Outcomes)
	}
	return v
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleWebhook answers inbound WhatsApp messages with TwiML. The handler
// is bounded so the platform's webhook timeout never fires first.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	phone := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := r.FormValue("Body")
	imageURL := ""
	if r.FormValue("NumMedia") != "" && r.FormValue("NumMedia") != "0" {
		imageURL = r.FormValue("MediaUrl0")
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduler.DefaultRunTimeout)
	defer cancel()

	reply := s.chat.HandleMessage(ctx, phone, body, imageURL)

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, messenger.TwiML(reply))
}

type runRequest struct {
	ClientID   string `json:"client_id"`
	AllClients bool   `json:"all_clients"`
	MaxClients int    `json:"max_clients"`
	NumIdeas   int    `json:"num_ideas"`
	NumPosts   int    `json:"num_posts"`
}

func (s *Server) decodeRunRequest(w http.ResponseWriter, r *http.Request) (*runRequest, bool) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.NumIdeas <= 0 {
		req.NumIdeas = s.defaults.NumIdeas
	}
	if req.NumPosts <= 0 {
		req.NumPosts = s.defaults.NumPosts
	}
	if req.MaxClients <= 0 {
		req.MaxClients = s.defaults.MaxClients
	}
	return &req, true
}

func (s *Server) handleWorkflow(async bool) http.HandlerFunc {
	stages := []string{pipeline.StageCurate, pipeline.StageDraft, pipeline.StagePublish}
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decodeRunRequest(w, r)
		if !ok {
			return
		}
		if msg := s.credentialGap(r.Context(), req); msg != "" {
			writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}
		s.dispatch(w, r, req, stages, async)
	}
}

func (s *Server) handleStage(stage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decodeRunRequest(w, r)
		if !ok {
			return
		}
		s.dispatch(w, r, req, []string{stage}, false)
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}
	if msg := s.credentialGap(r.Context(), req); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	// Batch publishes run async by nature; single-client ones answer inline.
	s.dispatch(w, r, req, []string{pipeline.StagePublish}, req.AllClients)
}

// dispatch routes a decoded request to the right scheduler entry point.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *runRequest, stages []string, async bool) {
	opts := scheduler.Opts{NumIdeas: req.NumIdeas, NumPosts: req.NumPosts}

	switch {
	case req.AllClients:
		run, err := s.sched.EnqueueAll(r.Context(), stages, opts, req.MaxClients)
		if err != nil {
			s.logger.Error("batch run failed", "error", err)
			writeError(w, http.StatusInternalServerError, "batch run failed")
			return
		}
		writeResult(w, http.StatusOK, viewRun(run))

	case req.ClientID == "":
		writeError(w, http.StatusBadRequest, "client_id is required (or set all_clients)")

	case async:
		runID, err := s.sched.Enqueue(r.Context(), req.ClientID, stages, opts)
		if err != nil {
			if errors.Is(err, scheduler.ErrQueueFull) {
				writeError(w, http.StatusServiceUnavailable, "queue is full, try again later")
				return
			}
			s.logger.Error("enqueueing run", "client_id", req.ClientID, "error", err)
			writeError(w, http.StatusInternalServerError, "enqueueing run failed")
			return
		}
		writeResult(w, http.StatusAccepted, map[string]string{"run_id": runID})

	default:
		run, err := s.sched.RunNow(r.Context(), req.ClientID, stages, opts)
		if err != nil {
			s.logger.Error("running stages", "client_id", req.ClientID, "error", err)
			writeError(w, http.StatusInternalServerError, "run failed to start")
			return
		}
		code := http.StatusOK
		if run.Status == store.RunFailed {
			if strings.Contains(run.Error, pipeline.ErrClientInactive.Error()) {
				code = http.StatusConflict
			} else {
				code = http.StatusInternalServerError
			}
		}
		writeResult(w, code, viewRun(run))
	}
}

// credentialGap reports the first publishing channel the request would hit
// that has no credentials configured. Empty means ready to publish.
func (s *Server) credentialGap(ctx context.Context, req *runRequest) string {
	channels := map[string]bool{}
	if req.AllClients {
		clients, err := s.records.ListActiveClients(ctx)
		if err != nil {
			return ""
		}
		for _, c := range clients {
			for _, ch := range c.Channels {
				channels[strings.ToLower(ch)] = true
			}
		}
	} else if req.ClientID != "" {
		client, err := s.records.GetClient(ctx, req.ClientID)
		if err != nil {
			return ""
		}
		for _, ch := range client.Channels {
			channels[strings.ToLower(ch)] = true
		}
	}

	for ch := range channels {
		switch ch {
		case publish.ChannelFacebook:
			if s.creds.FacebookPageID == "" || s.creds.FacebookAccessToken == "" {
				return "facebook credentials are not configured"
			}
		case publish.ChannelInstagram:
			if s.creds.InstagramBusinessID == "" || s.creds.InstagramToken == "" {
				return "instagram credentials are not configured"
			}
		case publish.ChannelLinkedIn:
			if s.creds.LinkedInAuthorURN == "" || s.creds.LinkedInToken == "" {
				return "linkedin credentials are not configured"
			}
		}
	}
	return ""
}

type ideaRequest struct {
	ClientID string `json:"client_id"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url"`
	Channel  string `json:"channel"`
}

func (s *Server) handleSubmitIdea(w http.ResponseWriter, r *http.Request) {
	var req ideaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClientID == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "client_id and text are required")
		return
	}

	idea, err := s.engine.SubmitIdea(r.Context(), req.ClientID, req.Text, req.ImageURL, req.Channel)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "client not found")
		case errors.Is(err, pipeline.ErrClientInactive):
			writeError(w, http.StatusConflict, "client is not active")
		default:
			s.logger.Error("submitting idea", "client_id", req.ClientID, "error", err)
			writeError(w, http.StatusInternalServerError, "submitting idea failed")
		}
		return
	}

	writeResult(w, http.StatusCreated, map[string]string{
		"idea_id":  idea.ID,
		"headline": idea.Headline,
		"state":    idea.State,
	})
}

type ingestRequest struct {
	ClientID   string `json:"client_id"`
	AllClients bool   `json:"all_clients"`
	MaxClients int    `json:"max_clients"`
}

// handleIngest harvests idea sources for one client or all active clients.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.AllClients {
		if req.MaxClients <= 0 {
			req.MaxClients = s.defaults.MaxClients
		}
		report, err := s.harvester.HarvestAll(r.Context(), req.MaxClients)
		if err != nil {
			s.logger.Error("harvesting all clients", "error", err)
			writeError(w, http.StatusInternalServerError, "harvest failed")
			return
		}
		writeResult(w, http.StatusOK, report)
		return
	}

	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required (or set all_clients)")
		return
	}

	n, err := s.harvester.HarvestClient(r.Context(), req.ClientID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "client not found")
		case errors.Is(err, ingest.ErrClientInactive):
			writeError(w, http.StatusConflict, "client is not active")
		default:
			s.logger.Error("harvesting client", "client_id", req.ClientID, "error", err)
			writeError(w, http.StatusInternalServerError, "harvest failed")
		}
		return
	}
	writeResult(w, http.StatusOK, map[string]int{"ideas": n})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	run, err := s.sched.Status(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("loading run", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading run failed")
		return
	}
	writeResult(w, http.StatusOK, viewRun(run))
}
