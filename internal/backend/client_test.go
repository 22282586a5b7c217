package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick-relay/internal/translator"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(NewHTTPClient(Options{}))
	require.NoError(t, err)
	return client
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestOpenSendsJSONWithoutAuth(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	body, err := newTestClient(t).Open(context.Background(), translator.WireRequest{
		URL:  srv.URL + "/v1/chat/completions",
		Body: []byte(`{"model":"m"}`),
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n\n", string(data))
	assert.Equal(t, `{"model":"m"}`, gotBody)
}

func TestOpenMapsNon2xxToStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Open(context.Background(), translator.WireRequest{URL: srv.URL})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "Server responded with 500: Internal Server Error", err.Error())
}

func TestOpenTransportErrorIsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t).Open(context.Background(), translator.WireRequest{URL: url})
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
	assert.Contains(t, err.Error(), url)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"llama-3","object":"model","owned_by":"local"}]}`)
	}))
	defer srv.Close()

	list, err := newTestClient(t).ListModels(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "llama-3", list[0].ID)
	assert.Equal(t, "local", list[0].OwnedBy)
}

func TestListModelsRequiresBase(t *testing.T) {
	_, err := newTestClient(t).ListModels(context.Background(), " / ")
	assert.Error(t, err)
}
