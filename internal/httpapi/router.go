// Package httpapi exposes the broker, the note store and the change feed over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/blob"
	"github.com/fleetsapp/fleets/internal/service"
)

// Bot sends replies back into the bot conversation.
type Bot interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Server wires services into HTTP handlers.
type Server struct {
	log           *zap.Logger
	auth          service.AuthService
	notes         service.NoteService
	inbox         service.InboxService
	bot           Bot
	blobs         *blob.Store
	signKey       []byte
	webhookSecret string // optional X-Telegram-Bot-Api-Secret-Token check
}

// Config collects Server dependencies.
type Config struct {
	Log           *zap.Logger
	Auth          service.AuthService
	Notes         service.NoteService
	Inbox         service.InboxService
	Bot           Bot
	Blobs         *blob.Store
	SignKey       []byte
	WebhookSecret string
}

// New constructs the HTTP server layer.
func New(cfg Config) *Server {
	return &Server{
		log:           cfg.Log,
		auth:          cfg.Auth,
		notes:         cfg.Notes,
		inbox:         cfg.Inbox,
		bot:           cfg.Bot,
		blobs:         cfg.Blobs,
		signKey:       cfg.SignKey,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Router assembles all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log))
	r.Use(Logging(s.log))

	r.Post("/webhook/telegram", s.handleWebhook)
	r.Post("/auth/claim", s.handleClaim)
	r.Mount(blobURLPrefix, s.blobs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(s.signKey))
		r.Get("/notes", s.handleListNotes)
		r.Post("/notes", s.handleInsertNote)
		r.Patch("/notes/{id}", s.handleUpdateNote)
		r.Delete("/notes/{id}", s.handleDeleteNote)
		r.Get("/feed", s.handleFeed)
		r.Post("/files", s.handleUpload)
		r.Get("/inbox", s.handleListInbox)
		r.Post("/inbox", s.handleCapture)
		r.Patch("/inbox/{id}", s.handleInboxStatus)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
