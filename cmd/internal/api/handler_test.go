package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"beacon/cmd/internal/auth"
	"beacon/cmd/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	server   *httptest.Server
	users    *auth.MemoryUserStore
	channels *realtime.MemoryChannelStore
	messages *realtime.MemoryMessageStore
	tokens   *auth.TokenService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	f := &apiFixture{
		users:    auth.NewMemoryUserStore(),
		channels: realtime.NewMemoryChannelStore("general"),
		messages: realtime.NewMemoryMessageStore(),
		tokens:   tokens,
	}

	h := NewHandler(slog.New(slog.DiscardHandler), f.users, tokens, f.channels, f.messages)
	r := chi.NewRouter()
	h.Register(r)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *apiFixture) register(t *testing.T, email, username string) tokenResponse {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"username": username,
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[tokenResponse](t, resp)
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)

	reg := f.register(t, "ada@example.com", "ada")
	req.NotEmpty(reg.Token)
	req.Equal("ada@example.com", reg.User.Email)
	req.Equal("ada", reg.User.Username)
	req.NotEmpty(reg.User.ID)

	// The issued token verifies to the registered identity.
	identity, err := f.tokens.Verify(context.Background(), reg.Token)
	req.NoError(err)
	req.Equal(reg.User.ID, identity.ID)

	resp := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ADA@example.com",
		"password": "hunter2hunter2",
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	login := decodeBody[tokenResponse](t, resp)
	req.Equal(reg.User.ID, login.User.ID)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{
			name: "bad email",
			body: map[string]string{"email": "not-an-email", "username": "ada", "password": "hunter2hunter2"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "short username",
			body: map[string]string{"email": "a@example.com", "username": "ab", "password": "hunter2hunter2"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "short password",
			body: map[string]string{"email": "a@example.com", "username": "ada", "password": "short"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "bad avatar url",
			body: map[string]string{"email": "a@example.com", "username": "ada", "password": "hunter2hunter2", "avatarUrl": "not a url"},
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := f.do(t, http.MethodPost, "/api/auth/register", "", tc.body)
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)

	r, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/auth/register", bytes.NewBufferString("{not json"))
	req.NoError(err)
	resp, err := f.server.Client().Do(r)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	req.Equal("bad_request", body.Error.Code)
}

func TestRegisterEmailConflict(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)
	f.register(t, "ada@example.com", "ada")

	resp := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "ada@example.com",
		"username": "impostor",
		"password": "hunter2hunter2",
	})
	req.Equal(http.StatusConflict, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	req.Equal("email_taken", body.Error.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)
	f.register(t, "ada@example.com", "ada")

	// Wrong password and unknown user yield the same response shape.
	for _, body := range []map[string]string{
		{"email": "ada@example.com", "password": "wrong password"},
		{"email": "ghost@example.com", "password": "hunter2hunter2"},
	} {
		resp := f.do(t, http.MethodPost, "/api/auth/login", "", body)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
		got := decodeBody[errorResponse](t, resp)
		req.Equal("invalid_credentials", got.Error.Code)
	}
}

func TestChannelRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/channels", "", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/channels", "garbage-token", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestChannelListAndCreate(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)
	token := f.register(t, "ada@example.com", "ada").Token

	resp := f.do(t, http.MethodGet, "/api/channels", token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	list := decodeBody[[]channelResponse](t, resp)
	req.Len(list, 1)
	req.Equal("general", list[0].Name)

	resp = f.do(t, http.MethodPost, "/api/channels", token, map[string]string{"name": "lounge"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	created := decodeBody[channelResponse](t, resp)
	req.Equal("lounge", created.Name)
	req.NotEmpty(created.ID)
	req.NotEmpty(created.OwnerID)

	resp = f.do(t, http.MethodPost, "/api/channels", token, map[string]string{"name": ""})
	req.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/channels", token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(decodeBody[[]channelResponse](t, resp), 2)
}

func TestChannelHistory(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)
	reg := f.register(t, "ada@example.com", "ada")

	channels, err := f.channels.ListChannels(context.Background())
	req.NoError(err)
	channelID := channels[0].ID

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		_, err := f.messages.StoreMessage(context.Background(), realtime.StoreMessageInput{
			ChannelID: &channelID,
			SenderID:  reg.User.ID,
			Content:   fmt.Sprintf("msg-%d", i),
			Now:       base.Add(time.Duration(i) * time.Second),
		})
		req.NoError(err)
	}

	resp := f.do(t, http.MethodGet, "/api/channels/"+channelID+"/messages?limit=2", reg.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	msgs := decodeBody[[]messageResponse](t, resp)
	req.Len(msgs, 2)
	req.Equal("msg-2", msgs[0].Content)
	req.Equal("msg-3", msgs[1].Content)
	req.Equal(reg.User.ID, msgs[0].SenderID)
	req.NotNil(msgs[0].ChannelID)

	resp = f.do(t, http.MethodGet, "/api/channels/no-such/messages", reg.Token, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestUsersMe(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)
	reg := f.register(t, "ada@example.com", "ada")

	resp := f.do(t, http.MethodGet, "/api/users/me", reg.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	me := decodeBody[userResponse](t, resp)
	req.Equal(reg.User.ID, me.ID)
	req.Equal("ada@example.com", me.Email)
	req.Equal("ada", me.Username)

	resp = f.do(t, http.MethodGet, "/api/users/me", "", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestChannelUpdateAndDelete(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)
	owner := f.register(t, "ada@example.com", "ada")
	other := f.register(t, "bob@example.com", "bob")

	resp := f.do(t, http.MethodPost, "/api/channels", owner.Token, map[string]string{"name": "lounge"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	lounge := decodeBody[channelResponse](t, resp)
	req.Equal(owner.User.ID, lounge.OwnerID)

	// Only the owner may rename.
	resp = f.do(t, http.MethodPut, "/api/channels/"+lounge.ID, other.Token, map[string]string{"name": "den"})
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/channels/"+lounge.ID, owner.Token, map[string]string{"name": "den"})
	req.Equal(http.StatusOK, resp.StatusCode)
	renamed := decodeBody[channelResponse](t, resp)
	req.Equal("den", renamed.Name)
	req.Equal(lounge.ID, renamed.ID)

	resp = f.do(t, http.MethodPut, "/api/channels/no-such", owner.Token, map[string]string{"name": "den"})
	req.Equal(http.StatusNotFound, resp.StatusCode)

	// Seeded channels have no owner and stay immutable.
	channels, err := f.channels.ListChannels(context.Background())
	req.NoError(err)
	var generalID string
	for _, c := range channels {
		if c.Name == "general" {
			generalID = c.ID
		}
	}
	req.NotEmpty(generalID)
	resp = f.do(t, http.MethodDelete, "/api/channels/"+generalID, owner.Token, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/channels/"+lounge.ID, other.Token, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/channels/"+lounge.ID, owner.Token, nil)
	req.Equal(http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/channels/"+lounge.ID, owner.Token, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestMessageGetAndDelete(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	f := newAPIFixture(t)
	sender := f.register(t, "ada@example.com", "ada")
	recipient := f.register(t, "bob@example.com", "bob")
	outsider := f.register(t, "eve@example.com", "eve")

	channels, err := f.channels.ListChannels(context.Background())
	req.NoError(err)
	channelID := channels[0].ID

	public, err := f.messages.StoreMessage(context.Background(), realtime.StoreMessageInput{
		ChannelID: &channelID,
		SenderID:  sender.User.ID,
		Content:   "hello room",
	})
	req.NoError(err)

	direct, err := f.messages.StoreMessage(context.Background(), realtime.StoreMessageInput{
		RecipientID: &recipient.User.ID,
		SenderID:    sender.User.ID,
		Content:     "hello bob",
	})
	req.NoError(err)

	// Channel messages are readable by any authenticated user.
	resp := f.do(t, http.MethodGet, "/api/messages/"+public.ID, outsider.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	got := decodeBody[messageResponse](t, resp)
	req.Equal("hello room", got.Content)

	// Direct messages are only visible to the two participants.
	resp = f.do(t, http.MethodGet, "/api/messages/"+direct.ID, recipient.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/messages/"+direct.ID, outsider.Token, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/messages/no-such", sender.Token, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)

	// Only the sender may delete.
	resp = f.do(t, http.MethodDelete, "/api/messages/"+public.ID, recipient.Token, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/messages/"+public.ID, sender.Token, nil)
	req.Equal(http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/messages/"+public.ID, sender.Token, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}
