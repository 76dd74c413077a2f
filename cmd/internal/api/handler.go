// Package api implements Beacon's request/response surface: registration,
// login, channel management, and message history.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"beacon/cmd/internal/auth"
	"beacon/cmd/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	maxBodyBytes       = 64 << 10
	defaultHistorySize = 50
	maxHistorySize     = 200
)

type contextKey struct{ name string }

var identityKey = contextKey{name: "identity"}

// Handler serves the REST API.
type Handler struct {
	log      *slog.Logger
	users    auth.UserStore
	tokens   *auth.TokenService
	channels realtime.ChannelStore
	messages realtime.MessageStore
	validate *validator.Validate
}

// NewHandler constructs the API handler.
func NewHandler(log *slog.Logger, users auth.UserStore, tokens *auth.TokenService, channels realtime.ChannelStore, messages realtime.MessageStore) *Handler {
	return &Handler{
		log:      log,
		users:    users,
		tokens:   tokens,
		channels: channels,
		messages: messages,
		validate: validator.New(),
	}
}

// Register mounts the API routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/auth/register", h.handleRegister)
	r.Post("/api/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/users/me", h.handleMe)
		r.Get("/api/channels", h.handleListChannels)
		r.Post("/api/channels", h.handleCreateChannel)
		r.Put("/api/channels/{channel}", h.handleUpdateChannel)
		r.Delete("/api/channels/{channel}", h.handleDeleteChannel)
		r.Get("/api/channels/{channel}/messages", h.handleChannelHistory)
		r.Get("/api/messages/{message}", h.handleGetMessage)
		r.Delete("/api/messages/{message}", h.handleDeleteMessage)
	})
}

// ---- auth ----

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Avatar   string `json:"avatarUrl" validate:"omitempty,url"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid registration fields")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid password")
		return
	}

	user, err := h.users.CreateUser(r.Context(), auth.CreateUserInput{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		AvatarURL:    req.Avatar,
		Now:          time.Now().UTC(),
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email_taken", "email already registered")
		return
	}
	if err != nil {
		h.log.Error("api.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "registration failed")
		return
	}

	h.issueToken(w, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid login fields")
		return
	}

	user, err := h.users.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err != nil {
		h.log.Error("api.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "login failed")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	h.issueToken(w, user)
}

func (h *Handler) issueToken(w http.ResponseWriter, user auth.User) {
	token, err := h.tokens.Issue(user, time.Now().UTC())
	if err != nil {
		h.log.Error("api.token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: toUserResponse(user)})
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// requireAuth parses "Authorization: Bearer <token>" and stores the verified
// identity in the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(raw, prefix) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		identity, err := h.tokens.Verify(r.Context(), strings.TrimPrefix(raw, prefix))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

// identityFrom returns the verified identity stored by requireAuth.
func identityFrom(r *http.Request) (realtime.Identity, bool) {
	identity, ok := r.Context().Value(identityKey).(realtime.Identity)
	return identity, ok
}

// ---- users ----

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	user, err := h.users.UserByID(r.Context(), identity.ID)
	if errors.Is(err, auth.ErrUserNotFound) {
		// Valid token for a user that no longer exists.
		writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
		return
	}
	if err != nil {
		h.log.Error("api.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "user lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ---- channels ----

type createChannelRequest struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}

type channelResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toChannelResponse(c realtime.Channel) channelResponse {
	return channelResponse{ID: c.ID, Name: c.Name, OwnerID: c.OwnerID, CreatedAt: c.CreatedAt}
}

func (h *Handler) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.ListChannels(r.Context())
	if err != nil {
		h.log.Error("api.channels.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "listing channels failed")
		return
	}

	out := make([]channelResponse, 0, len(channels))
	for _, c := range channels {
		out = append(out, toChannelResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req createChannelRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid channel name")
		return
	}

	c, err := h.channels.CreateChannel(r.Context(), req.Name, identity.ID, time.Now().UTC())
	if err != nil {
		h.log.Error("api.channels.create.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "creating channel failed")
		return
	}
	writeJSON(w, http.StatusCreated, toChannelResponse(c))
}

// ownedChannel fetches a channel and enforces that the caller owns it.
// Seeded channels have no owner and are never mutable through the API.
func (h *Handler) ownedChannel(w http.ResponseWriter, r *http.Request) (realtime.Channel, bool) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return realtime.Channel{}, false
	}

	c, err := h.channels.GetChannel(r.Context(), chi.URLParam(r, "channel"))
	if errors.Is(err, realtime.ErrChannelNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "channel not found")
		return realtime.Channel{}, false
	}
	if err != nil {
		h.log.Error("api.channels.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "channel lookup failed")
		return realtime.Channel{}, false
	}

	if c.OwnerID == "" || c.OwnerID != identity.ID {
		writeError(w, http.StatusForbidden, "forbidden", "not the channel owner")
		return realtime.Channel{}, false
	}
	return c, true
}

func (h *Handler) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedChannel(w, r)
	if !ok {
		return
	}

	var req createChannelRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid channel name")
		return
	}

	updated, err := h.channels.UpdateChannel(r.Context(), c.ID, req.Name)
	if err != nil {
		h.log.Error("api.channels.update.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "updating channel failed")
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(updated))
}

func (h *Handler) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedChannel(w, r)
	if !ok {
		return
	}

	if err := h.channels.DeleteChannel(r.Context(), c.ID); err != nil {
		h.log.Error("api.channels.delete.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "deleting channel failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- history ----

type messageResponse struct {
	ID          string    `json:"id"`
	ChannelID   *string   `json:"channelId"`
	SenderID    string    `json:"senderId"`
	RecipientID *string   `json:"recipientId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

func (h *Handler) handleChannelHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel")

	exists, err := h.channels.ChannelExists(r.Context(), channelID)
	if err != nil {
		h.log.Error("api.history.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "history lookup failed")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "not_found", "channel not found")
		return
	}

	limit := defaultHistorySize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxHistorySize {
		limit = maxHistorySize
	}

	msgs, err := h.messages.ListChannelMessages(r.Context(), channelID, limit)
	if err != nil {
		h.log.Error("api.history.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "history lookup failed")
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func toMessageResponse(m realtime.StoredMessage) messageResponse {
	return messageResponse{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Timestamp:   m.CreatedAt,
	}
}

func (h *Handler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	m, err := h.messages.GetMessage(r.Context(), chi.URLParam(r, "message"))
	if errors.Is(err, realtime.ErrMessageNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return
	}
	if err != nil {
		h.log.Error("api.messages.get.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "message lookup failed")
		return
	}

	// Direct messages are visible to their two participants only.
	if m.RecipientID != nil && identity.ID != m.SenderID && identity.ID != *m.RecipientID {
		writeError(w, http.StatusForbidden, "forbidden", "not a participant")
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	m, err := h.messages.GetMessage(r.Context(), chi.URLParam(r, "message"))
	if errors.Is(err, realtime.ErrMessageNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return
	}
	if err != nil {
		h.log.Error("api.messages.delete.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "message lookup failed")
		return
	}

	if m.SenderID != identity.ID {
		writeError(w, http.StatusForbidden, "forbidden", "not the message sender")
		return
	}

	if err := h.messages.DeleteMessage(r.Context(), m.ID); err != nil && !errors.Is(err, realtime.ErrMessageNotFound) {
		h.log.Error("api.messages.delete.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "deleting message failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
