package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Martian-dev/inbox-triage/internal/eventstore/sqlite"
	"github.com/Martian-dev/inbox-triage/internal/sync"
)

type fakeHandler struct {
	result sync.Result
	called bool
	body   []byte
}

func (f *fakeHandler) Handle(ctx context.Context, body []byte) sync.Result {
	f.called = true
	f.body = body
	return f.result
}

type fakeVerifier struct{ err error }

func (f *fakeVerifier) Verify(r *http.Request) error { return f.err }

type fakeLister struct {
	recs     []sqlite.TriageRecord
	err      error
	gotTier  string
	gotLimit int
}

func (f *fakeLister) RecentTriages(ctx context.Context, tier string, limit int) ([]sqlite.TriageRecord, error) {
	f.gotTier = tier
	f.gotLimit = limit
	return f.recs, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("healthz reports up", func(t *testing.T) {
		srv := New(&fakeHandler{}, nil, nil, testLogger())
		w := doRequest(srv.Router(), http.MethodGet, "/healthz", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status": "up"}`, w.Body.String())
	})

	t.Run("metrics endpoint responds", func(t *testing.T) {
		srv := New(&fakeHandler{}, nil, nil, testLogger())
		w := doRequest(srv.Router(), http.MethodGet, "/metrics", "")

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("push outcomes map to the expected status codes", func(t *testing.T) {
		cases := []struct {
			name       string
			result     sync.Result
			wantStatus int
			wantBody   string
		}{
			{
				name:       "processed",
				result:     sync.Result{Outcome: sync.OutcomeProcessed, Processed: 2},
				wantStatus: http.StatusOK,
				wantBody:   `{"status": "ok"}`,
			},
			{
				name:       "stale skip",
				result:     sync.Result{Outcome: sync.OutcomeSkippedStale},
				wantStatus: http.StatusOK,
				wantBody:   `{"status": "skipped", "reason": "old_notification"}`,
			},
			{
				name:       "verification",
				result:     sync.Result{Outcome: sync.OutcomeSkippedVerification},
				wantStatus: http.StatusNoContent,
			},
			{
				name:       "checkpoint reset",
				result:     sync.Result{Outcome: sync.OutcomeCheckpointReset},
				wantStatus: http.StatusNoContent,
			},
			{
				name:       "auth error still acks",
				result:     sync.Result{Outcome: sync.OutcomeAuthError, Err: errors.New("bad credentials")},
				wantStatus: http.StatusOK,
				wantBody:   `{"status": "auth_error", "message": "bad credentials"}`,
			},
			{
				name:       "unexpected error asks for redelivery",
				result:     sync.Result{Outcome: sync.OutcomeError, Err: errors.New("boom")},
				wantStatus: http.StatusInternalServerError,
				wantBody:   `{"error": "boom"}`,
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				srv := New(&fakeHandler{result: tc.result}, nil, nil, testLogger())
				w := doRequest(srv.Router(), http.MethodPost, "/gmail/push", `{"message": {}}`)

				assert.Equal(t, tc.wantStatus, w.Code)
				if tc.wantBody != "" {
					assert.JSONEq(t, tc.wantBody, w.Body.String())
				} else {
					assert.Empty(t, w.Body.String())
				}
			})
		}
	})

	t.Run("push body reaches the handler", func(t *testing.T) {
		handler := &fakeHandler{result: sync.Result{Outcome: sync.OutcomeProcessed}}
		srv := New(handler, nil, nil, testLogger())

		doRequest(srv.Router(), http.MethodPost, "/gmail/push", `{"message": {"data": "abc"}}`)

		assert.True(t, handler.called)
		assert.Equal(t, `{"message": {"data": "abc"}}`, string(handler.body))
	})

	t.Run("rejected token returns 401 before the handler runs", func(t *testing.T) {
		handler := &fakeHandler{result: sync.Result{Outcome: sync.OutcomeProcessed}}
		srv := New(handler, &fakeVerifier{err: errors.New("bad token")}, nil, testLogger())

		w := doRequest(srv.Router(), http.MethodPost, "/gmail/push", `{}`)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, handler.called)
	})

	t.Run("accepted token reaches the handler", func(t *testing.T) {
		handler := &fakeHandler{result: sync.Result{Outcome: sync.OutcomeProcessed}}
		srv := New(handler, &fakeVerifier{}, nil, testLogger())

		w := doRequest(srv.Router(), http.MethodPost, "/gmail/push", `{}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, handler.called)
	})

	t.Run("events endpoint lists recent triages", func(t *testing.T) {
		lister := &fakeLister{recs: []sqlite.TriageRecord{
			{EventID: "e1", Tier: "critical"},
			{EventID: "e2", Tier: "digest"},
		}}
		srv := New(&fakeHandler{}, nil, lister, testLogger())

		w := doRequest(srv.Router(), http.MethodGet, "/triage/events", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":2`)
		assert.Equal(t, "", lister.gotTier)
		assert.Equal(t, 50, lister.gotLimit)
	})

	t.Run("events endpoint passes tier and limit through", func(t *testing.T) {
		lister := &fakeLister{}
		srv := New(&fakeHandler{}, nil, lister, testLogger())

		w := doRequest(srv.Router(), http.MethodGet, "/triage/events?tier=critical&limit=5", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "critical", lister.gotTier)
		assert.Equal(t, 5, lister.gotLimit)
	})

	t.Run("events limit is capped", func(t *testing.T) {
		lister := &fakeLister{}
		srv := New(&fakeHandler{}, nil, lister, testLogger())

		doRequest(srv.Router(), http.MethodGet, "/triage/events?limit=9999", "")

		assert.Equal(t, 500, lister.gotLimit)
	})

	t.Run("invalid limit is rejected", func(t *testing.T) {
		srv := New(&fakeHandler{}, nil, &fakeLister{}, testLogger())

		w := doRequest(srv.Router(), http.MethodGet, "/triage/events?limit=abc", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("events endpoint absent without a store", func(t *testing.T) {
		srv := New(&fakeHandler{}, nil, nil, testLogger())

		w := doRequest(srv.Router(), http.MethodGet, "/triage/events", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("store failure surfaces as 500", func(t *testing.T) {
		lister := &fakeLister{err: errors.New("db closed")}
		srv := New(&fakeHandler{}, nil, lister, testLogger())

		w := doRequest(srv.Router(), http.MethodGet, "/triage/events", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
