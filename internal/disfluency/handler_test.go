package disfluency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCount(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body CountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Count
}

func TestHandler_GetAndPost(t *testing.T) {
	l := NewLedger()
	h := Handler(l)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/disfluency", nil))
	assert.Equal(t, 0, decodeCount(t, rec))

	for want := 1; want <= 3; want++ {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/disfluency", nil))
		assert.Equal(t, want, decodeCount(t, rec))
	}
	assert.Equal(t, 3, l.Count())
}

func TestHandler_RejectsOtherMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(NewLedger()).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/disfluency", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestClient_GetAndBump(t *testing.T) {
	l := NewLedger()
	mux := http.NewServeMux()
	mux.Handle("/disfluency", Handler(l))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	n, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.Bump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Bump reads back the server value, which includes other clients' events.
	l.Increment()
	n, err = c.Bump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClient_UnreachableDoesNotAssumeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n, err := NewClient(url, 200*time.Millisecond).Bump(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Zero(t, n)
}

func TestClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Get(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "busy")
}
