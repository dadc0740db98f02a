package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/storage"
)

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

func newTestClient(url, token string) (*Client, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return New(url, 2*time.Second, staticTokens(token), store), store
}

func TestClient_GetDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"name":"A","email":"a@b.com"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL, "tok-1")
	resp, err := client.Get(context.Background(), "/traveler/dashboard")
	require.NoError(t, err)

	var user domain.User
	require.NoError(t, resp.Decode(&user))
	assert.Equal(t, uint(1), user.ID)
	assert.Equal(t, "a@b.com", user.Email)
}

func TestClient_NoAuthorizationWhenAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL, "")
	_, err := client.Get(context.Background(), "/")
	require.NoError(t, err)
}

func TestClient_StatusErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   domain.ErrorKind
	}{
		{http.StatusBadRequest, domain.KindGeneric},
		{http.StatusUnauthorized, domain.KindUnauthorized},
		{http.StatusForbidden, domain.KindForbidden},
		{http.StatusNotFound, domain.KindNotFound},
		{http.StatusConflict, domain.KindConflict},
		{http.StatusInternalServerError, domain.KindServerError},
		{http.StatusServiceUnavailable, domain.KindServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client, _ := newTestClient(srv.URL, "tok-1")
			_, err := client.Get(context.Background(), "/x")
			require.Error(t, err)

			apiErr, ok := domain.AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestClient_ServerMessageWins(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message envelope", `{"message":"Email already registered"}`, "Email already registered"},
		{"error envelope", `{"error":"bad input"}`, "bad input"},
		{"json string", `"plain json string"`, "plain json string"},
		{"plain text", "plain text body", "plain text body"},
		{"empty body", "", domain.KindConflict.DefaultMessage()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, _ := newTestClient(srv.URL, "")
			_, err := client.Post(context.Background(), "/x", nil)
			apiErr, ok := domain.AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestClient_UnauthorizedPurgesStoredRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, store := newTestClient(srv.URL, "tok-1")
	require.NoError(t, store.Set(storage.TokenKey, "tok-1"))
	require.NoError(t, store.Set(storage.UserKey, `{"id":1}`))

	_, err := client.Get(context.Background(), "/traveler/dashboard")
	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUnauthorized, apiErr.Kind)

	_, err = store.Get(storage.TokenKey)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, err = store.Get(storage.UserKey)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	store := storage.NewMemoryStore()
	client := New(srv.URL, 20*time.Millisecond, staticTokens(""), store)

	_, err := client.Get(context.Background(), "/slow")
	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindTimeout, apiErr.Kind)
	assert.True(t, apiErr.Network())
}

func TestClient_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "/slow")
	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindTimeout, apiErr.Kind)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, _ := newTestClient(srv.URL, "")
	_, err := client.Get(context.Background(), "/x")
	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUnreachable, apiErr.Kind)
	assert.True(t, apiErr.Network())
}

func TestClient_PostFormSendsFieldsAndFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "A", r.FormValue("name"))
		assert.Equal(t, "a@b.com", r.FormValue("email"))

		file, header, err := r.FormFile("profilePicture")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "me.png", header.Filename)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL, "tok-1")
	_, err := client.PostForm(context.Background(), "/traveler/register/init",
		map[string]string{"name": "A", "email": "a@b.com"},
		&domain.Upload{Filename: "me.png", ContentType: "image/png", Data: []byte{1, 2, 3}})
	require.NoError(t, err)
}

func TestResponse_Message(t *testing.T) {
	resp := &Response{Status: 200, Body: []byte(`{"message":"OTP sent"}`)}
	assert.Equal(t, "OTP sent", resp.Message())

	resp = &Response{Status: 200, Body: []byte("Logged out")}
	assert.Equal(t, "Logged out", resp.Message())

	resp = &Response{Status: 200, Body: []byte(`{"id":1}`)}
	assert.Empty(t, resp.Message())
}
