package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_LoginDoesNotStoreToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@example.com", body["email"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"token":"tok","expires_at":"2026-01-01T00:00:00Z","user":{"id":3,"email":"a@example.com","role":"user"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	res, err := c.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, int64(3), res.User.ID)
	assert.Empty(t, c.Token())
}

func TestClient_SendsBearerAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/expenses", r.URL.Path)
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "Food", r.URL.Query().Get("category"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.False(t, r.URL.Query().Has("offset"))
		_, _ = io.WriteString(w, `{"expenses":[{"id":1,"category":"Food","amount_cents":250,"date":"2025-01-02"}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	c.SetToken("secret")
	list, err := c.ListExpenses(context.Background(), ListOptions{From: "2025-01-01", Category: "Food", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(250), list[0].AmountCents)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"validation failed","fields":[{"field":"category","message":"is required"}]}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).CreateExpense(context.Background(), ExpenseInput{})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "validation failed", apiErr.Message)
	assert.Equal(t, "is required", apiErr.Fields["category"])
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(err))
	assert.False(t, IsNetworkError(err))
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).Health(context.Background())
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Contains(t, err.Error(), "502 Bad Gateway")
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, time.Second).Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.Equal(t, 0, StatusOf(err))
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"proxy bad gateway", http.StatusBadGateway, true},
		{"service unavailable", http.StatusServiceUnavailable, true},
		{"internal error", http.StatusInternalServerError, true},
		{"validation", http.StatusUnprocessableEntity, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, "<html>upstream</html>")
			}))
			defer srv.Close()

			err := New(srv.URL, time.Second).Health(context.Background())
			require.Error(t, err)
			assert.False(t, IsNetworkError(err))
			assert.Equal(t, tt.want, IsUnavailable(err))
		})
	}
	assert.False(t, IsUnavailable(nil))
}

func TestClient_CanceledContextIsNotNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(srv.URL, time.Second).Health(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsNetworkError(err))
}

func TestClient_UploadPhoto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("\xff\xd8\xff\xe0fakejpeg"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/expenses/42/photo", r.URL.Path)
		f, hdr, err := r.FormFile("photo")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "receipt.jpg", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "\xff\xd8\xff\xe0fakejpeg", string(data))
		_, _ = io.WriteString(w, `{"id":42,"has_photo":true}`)
	}))
	defer srv.Close()

	e, err := New(srv.URL, time.Second).UploadPhoto(context.Background(), 42, path)
	require.NoError(t, err)
	assert.True(t, e.HasPhoto)

	_, err = New(srv.URL, time.Second).UploadPhoto(context.Background(), 42, filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
	assert.False(t, IsNetworkError(err))
}

func TestClient_AdminSetDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/admin/users/7/disabled", r.URL.Path)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body["disabled"])
		_, _ = io.WriteString(w, `{"id":7,"disabled":true}`)
	}))
	defer srv.Close()

	u, err := New(srv.URL, time.Second).AdminSetDisabled(context.Background(), 7, true)
	require.NoError(t, err)
	assert.True(t, u.Disabled)
}
