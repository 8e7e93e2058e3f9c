// Package channel hosts the transports that feed the orchestrator: the
// webhook HTTP server (messaging-platform events plus the admin API) and the
// Telegram long-polling channel.
package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"personabot/internal/domain"
	"personabot/internal/knowledge"
	"personabot/internal/metrics"
)

// Conversation is the orchestration surface a transport needs.
type Conversation interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage) (domain.Reply, error)
	HandleFollow(ctx context.Context, customerID, displayName string) (domain.Reply, error)
}

// WebhookConfig configures the HTTP server.
type WebhookConfig struct {
	Host            string
	Port            int
	Path            string // webhook URL path (default: /webhook)
	Secret          string // HMAC secret for verifying webhook signatures
	AdminToken      string // bearer token for /api endpoints; empty leaves them open
	MetricsEnabled  bool
	MetricsEndpoint string
	Logger          *slog.Logger
}

// Webhook serves platform events and the read-only admin API.
type Webhook struct {
	cfg       WebhookConfig
	orch      Conversation
	customers domain.CustomerStore
	history   domain.HistoryStore
	knowledge *knowledge.Store
	logger    *slog.Logger
	server    *http.Server
}

// WebhookPayload is the expected JSON body for webhook events.
type WebhookPayload struct {
	Event       string `json:"event"` // "message" | "follow"
	CustomerID  string `json:"customer_id"`
	DisplayName string `json:"display_name,omitempty"`
	Text        string `json:"text,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"` // unix millis; 0 means now
}

func NewWebhook(cfg WebhookConfig, orch Conversation, customers domain.CustomerStore,
	history domain.HistoryStore, ks *knowledge.Store) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Webhook{
		cfg:       cfg,
		orch:      orch,
		customers: customers,
		history:   history,
		knowledge: ks,
		logger:    cfg.Logger,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Handler builds the full route table. Exposed separately so tests can drive
// it through httptest.
func (w *Webhook) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+w.cfg.Path, w.handleEvent)
	mux.HandleFunc("GET /healthz", w.handleHealth)
	mux.HandleFunc("GET /api/customers/{id}", w.requireAdmin(w.handleGetCustomer))
	mux.HandleFunc("GET /api/customers/{id}/history", w.requireAdmin(w.handleGetHistory))
	mux.HandleFunc("GET /api/knowledge/cases", w.requireAdmin(w.handleGetCases))
	mux.HandleFunc("GET /api/knowledge/faqs", w.requireAdmin(w.handleGetFAQs))
	mux.HandleFunc("POST /api/knowledge/reload", w.requireAdmin(w.handleReload))
	if w.cfg.MetricsEnabled {
		endpoint := w.cfg.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux.HandleFunc("GET "+endpoint, metrics.Collector.Handler())
	}
	return mux
}

// Start runs the HTTP server until ctx is cancelled.
func (w *Webhook) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port),
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.server.Addr, "path", w.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (w *Webhook) handleEvent(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB max
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if w.cfg.Secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, w.cfg.Secret, sig) {
			http.Error(rw, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if payload.CustomerID == "" {
		http.Error(rw, "customer_id is required", http.StatusBadRequest)
		return
	}

	var reply domain.Reply
	switch payload.Event {
	case "follow":
		reply, err = w.orch.HandleFollow(r.Context(), payload.CustomerID, payload.DisplayName)
	case "", "message":
		if payload.Text == "" {
			http.Error(rw, "text is required", http.StatusBadRequest)
			return
		}
		ts := time.Now()
		if payload.Timestamp > 0 {
			ts = time.UnixMilli(payload.Timestamp)
		}
		reply, err = w.orch.HandleMessage(r.Context(), domain.InboundMessage{
			Channel:    "webhook",
			CustomerID: payload.CustomerID,
			Text:       payload.Text,
			Timestamp:  ts,
		})
	default:
		http.Error(rw, "unknown event", http.StatusBadRequest)
		return
	}

	switch {
	case errors.Is(err, domain.ErrOutOfOrderTurn):
		http.Error(rw, "out-of-order message", http.StatusConflict)
		return
	case err != nil:
		w.logger.Error("event handling failed",
			"customer", payload.CustomerID, "error", err)
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(rw, http.StatusOK, map[string]string{
		"reply":   reply.Text,
		"outcome": string(reply.Outcome),
	})
}

func (w *Webhook) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetCustomer returns the stored profile. An unknown customer yields
// an empty unclassified profile, not an error.
func (w *Webhook) handleGetCustomer(rw http.ResponseWriter, r *http.Request) {
	c, err := w.customers.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if c == nil {
		c = &domain.Customer{ID: r.PathValue("id"), Persona: domain.PersonaUnclassified}
	}
	writeJSON(rw, http.StatusOK, c)
}

// handleGetHistory returns the recent turns, oldest first. An unknown
// customer yields an empty list, not an error.
func (w *Webhook) handleGetHistory(rw http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			http.Error(rw, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	turns, err := w.history.GetHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(rw, http.StatusOK, turns)
}

func (w *Webhook) handleGetCases(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, w.knowledge.Current().Cases)
}

func (w *Webhook) handleGetFAQs(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, w.knowledge.Current().FAQs)
}

func (w *Webhook) handleReload(rw http.ResponseWriter, r *http.Request) {
	if err := w.knowledge.Reload(); err != nil {
		w.logger.Error("knowledge reload failed", "error", err)
		http.Error(rw, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	snap := w.knowledge.Current()
	writeJSON(rw, http.StatusOK, map[string]int{
		"cases": len(snap.Cases),
		"faqs":  len(snap.FAQs),
	})
}

func (w *Webhook) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if w.cfg.AdminToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+w.cfg.AdminToken {
				http.Error(rw, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

// verifyHMAC verifies the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
