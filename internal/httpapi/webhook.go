package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/service"
	"github.com/fleetsapp/fleets/internal/telegram"
)

const (
	replyHelp    = "Send /start <session_id> from the login screen to sign in."
	replySuccess = "You're in! Switch back to the app."
	replyFailure = "Sign-in failed, please try again from the app."
	replyLimited = "Too many attempts, try again later."
)

// handleWebhook turns a `/start <session_id>` command into a fulfilled
// session. The platform always gets a 200 back (even on handler failure) so
// it does not hammer the endpoint with redeliveries; the user-facing outcome
// travels through the bot conversation instead.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" {
		got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
			httpError(w, http.StatusUnauthorized, "bad webhook secret")
			return
		}
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.log.Warn("webhook: bad payload", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}
	msg := upd.Message
	if msg == nil || msg.From == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	sessionID, isStart := telegram.ParseStart(msg.Text)
	if !isStart {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if sessionID == "" {
		s.reply(ctx, msg.Chat.ID, replyHelp)
		w.WriteHeader(http.StatusOK)
		return
	}

	ident := service.BotIdentity{
		TelegramID: msg.From.ID,
		FirstName:  msg.From.FirstName,
		Username:   msg.From.Username,
	}
	user, err := s.auth.Fulfill(ctx, ident, sessionID, remoteIP(r))
	switch {
	case err == nil:
		s.log.Info("webhook: session fulfilled", zap.String("user", user.ID.String()))
		s.reply(ctx, msg.Chat.ID, replySuccess)
	case errors.Is(err, errs.ErrRateLimited):
		s.reply(ctx, msg.Chat.ID, replyLimited)
	default:
		s.log.Error("webhook: fulfillment failed", zap.Error(err))
		s.reply(ctx, msg.Chat.ID, replyFailure)
	}
	w.WriteHeader(http.StatusOK)
}

// handleClaim is the polling endpoint. Absence of the session — before
// fulfillment or after a prior claim — reads as pending, never as an error.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad payload")
		return
	}
	tokens, err := s.auth.Claim(r.Context(), req.SessionID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, convert.ToWireTokens(tokens))
	case errors.Is(err, errs.ErrSessionPending):
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
	default:
		s.log.Error("claim failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
	}
}

// reply is best-effort: a lost bot message only degrades UX, the session
// state is already settled.
func (s *Server) reply(ctx context.Context, chatID int64, text string) {
	if s.bot == nil {
		return
	}
	if err := s.bot.SendMessage(ctx, chatID, text); err != nil {
		s.log.Warn("bot reply failed", zap.Error(err))
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
